package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/Revaiowo/streamRTC/internal/config"
	"github.com/Revaiowo/streamRTC/internal/relay"
	"github.com/Revaiowo/streamRTC/internal/ui"
)

var roomsCmd = &cobra.Command{
	Use:   "rooms",
	Short: "List the occupied rooms on a relay",
	Long: `List the rooms a relay currently holds and who is in them.

Examples:
  streamrtc rooms
  streamrtc rooms --server wss://relay.example.com/ws`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
		defer cancel()

		sp := ui.NewWaitingSpinner("Fetching rooms...")
		sp.Start()
		rooms, err := fetchRooms(ctx, http.DefaultClient, cfg.Client.ServerURL)
		sp.Stop()
		if err != nil {
			return err
		}

		rows := make([]ui.RoomRow, len(rooms))
		for i, r := range rooms {
			rows[i] = ui.RoomRow{Room: r.ID, Members: r.Members}
		}
		ui.RenderRooms(os.Stdout, rows, relay.RoomCapacity)
		return nil
	},
}

func init() {
	flags := roomsCmd.Flags()
	flags.String("server", config.DefaultServerURL, "signaling server WebSocket URL")
	bindFlag(v, config.KeyServerURL, flags.Lookup("server"))

	rootCmd.AddCommand(roomsCmd)
}

// roomsURL maps the relay's WebSocket URL to its /rooms endpoint.
func roomsURL(serverURL string) (string, error) {
	u, err := url.Parse(serverURL)
	if err != nil {
		return "", fmt.Errorf("invalid server URL: %w", err)
	}

	switch u.Scheme {
	case "ws":
		u.Scheme = "http"
	case "wss":
		u.Scheme = "https"
	case "http", "https":
	default:
		return "", fmt.Errorf("invalid server URL scheme %q", u.Scheme)
	}

	u.Path = strings.TrimSuffix(strings.TrimSuffix(u.Path, "/"), "/ws") + "/rooms"
	u.RawQuery = ""
	return u.String(), nil
}

func fetchRooms(ctx context.Context, client *http.Client, serverURL string) ([]relay.RoomInfo, error) {
	endpoint, err := roomsURL(serverURL)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch rooms: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch rooms: unexpected status %s", resp.Status)
	}

	var rooms []relay.RoomInfo
	if err := json.NewDecoder(resp.Body).Decode(&rooms); err != nil {
		return nil, fmt.Errorf("decode rooms: %w", err)
	}
	return rooms, nil
}
