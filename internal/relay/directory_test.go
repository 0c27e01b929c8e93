package relay

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDirectoryJoinSnapshots(t *testing.T) {
	d := NewDirectory(RoomCapacity)

	snap, err := d.Join("ABC123", "x", nil)
	require.NoError(t, err)
	assert.Empty(t, snap)

	snap, err = d.Join("ABC123", "y", nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"x"}, snap)

	_, err = d.Join("ABC123", "z", nil)
	assert.ErrorIs(t, err, ErrRoomFull)

	assert.Equal(t, []RoomInfo{{ID: "ABC123", Members: []string{"x", "y"}}}, d.Snapshot())
}

func TestDirectoryRejoinIsIdempotent(t *testing.T) {
	d := NewDirectory(RoomCapacity)
	_, err := d.Join("R", "x", nil)
	require.NoError(t, err)
	_, err = d.Join("R", "y", nil)
	require.NoError(t, err)

	var calls int
	snap, err := d.Join("R", "y", func(snapshot []string, added bool) {
		calls++
		assert.False(t, added)
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"x"}, snap)
	assert.Equal(t, 1, calls)
	assert.Equal(t, []string{"x"}, d.Members("R", "y"))
}

func TestDirectoryLeaveRemovesEmptyRoom(t *testing.T) {
	d := NewDirectory(RoomCapacity)
	d.Join("R", "x", nil)
	d.Join("R", "y", nil)

	var remaining []string
	assert.True(t, d.Leave("R", "x", func(r []string) { remaining = r }))
	assert.Equal(t, []string{"y"}, remaining)
	assert.Equal(t, 1, d.Len())

	assert.False(t, d.Leave("R", "x", nil), "second leave is a no-op")

	assert.True(t, d.Leave("R", "y", nil))
	assert.Equal(t, 0, d.Len())
	assert.Empty(t, d.Snapshot())

	// The room is created again on the next join and the newcomer is first.
	snap, err := d.Join("R", "z", nil)
	require.NoError(t, err)
	assert.Empty(t, snap)
}

func TestDirectoryLeaveUnknownRoom(t *testing.T) {
	d := NewDirectory(RoomCapacity)
	assert.False(t, d.Leave("nope", "x", nil))
	assert.Nil(t, d.Members("nope", "x"))
}

func TestDirectoryConcurrentJoinsElectOneInitiator(t *testing.T) {
	for i := 0; i < 200; i++ {
		d := NewDirectory(RoomCapacity)

		var (
			wg      sync.WaitGroup
			mu      sync.Mutex
			empty   int
			full    int
			members int
		)
		for j := 0; j < 4; j++ {
			wg.Add(1)
			go func(conn string) {
				defer wg.Done()
				snap, err := d.Join("R", conn, nil)
				mu.Lock()
				defer mu.Unlock()
				switch {
				case err != nil:
					full++
				case len(snap) == 0:
					empty++
					members++
				default:
					members++
				}
			}(fmt.Sprintf("c%d", j))
		}
		wg.Wait()

		require.Equal(t, 1, empty, "exactly one joiner sees an empty room")
		require.Equal(t, RoomCapacity, members)
		require.Equal(t, 4-RoomCapacity, full)
	}
}

func TestDirectoryJoinRacingWithLastLeave(t *testing.T) {
	for i := 0; i < 200; i++ {
		d := NewDirectory(RoomCapacity)
		d.Join("R", "x", nil)

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			d.Leave("R", "x", nil)
		}()
		go func() {
			defer wg.Done()
			_, err := d.Join("R", "y", nil)
			assert.NoError(t, err)
		}()
		wg.Wait()

		// Whatever the interleaving, y must end up in a live room.
		assert.Equal(t, []RoomInfo{{ID: "R", Members: []string{"y"}}}, d.Snapshot())
	}
}
