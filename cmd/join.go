package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/Revaiowo/streamRTC/internal/config"
	"github.com/Revaiowo/streamRTC/internal/protocol"
	"github.com/Revaiowo/streamRTC/internal/session"
	"github.com/Revaiowo/streamRTC/internal/ui"
)

// leaveGrace bounds how long we wait for the session to finish after leaving.
const leaveGrace = 2 * time.Second

var flagPlain bool

var joinCmd = &cobra.Command{
	Use:     "join [room-id]",
	Aliases: []string{"j"},
	Short:   "Join a room and start a call",
	Long: `Join a room and call whoever else is in it. The first person in a room
waits; the second one connects to them. Media comes from files: an IVF
(VP8) video and an Ogg (Opus) audio file, each looping.

Without a room ID a new memorable one is generated for you to share.

Examples:
  streamrtc join --video cam.ivf --audio mic.ogg
  streamrtc join ABC123 --video cam.ivf --audio mic.ogg
  streamrtc join abc123 --receive-only
  streamrtc join ABC123 --video cam.ivf --server wss://relay.example.com/ws --relay`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 0 {
			return joinRoom(cmd.Context(), protocol.NewRoomID(), true, cfg.Client)
		}
		room, err := protocol.NormalizeRoomID(args[0])
		if err != nil {
			return fmt.Errorf("%s: %w", args[0], err)
		}
		return joinRoom(cmd.Context(), room, false, cfg.Client)
	},
}

func init() {
	flags := joinCmd.Flags()
	flags.String("server", config.DefaultServerURL, "signaling server WebSocket URL")
	flags.String("codec", protocol.CodecJSON, "signaling wire codec: json or msgpack")
	flags.String("video", "", "IVF (VP8) file to send as video")
	flags.String("audio", "", "Ogg (Opus) file to send as audio")
	flags.Bool("receive-only", false, "send no media, only receive")
	flags.String("stun", config.DefaultSTUN, "STUN server URL")
	flags.String("turn", "", "TURN server URL")
	flags.String("turn-user", "", "TURN username")
	flags.String("turn-pass", "", "TURN password")
	flags.Bool("relay", false, "force all media through the TURN server")
	flags.BoolVar(&flagPlain, "plain", false, "print state changes line by line instead of a live view")

	bindFlag(v, config.KeyServerURL, flags.Lookup("server"))
	bindFlag(v, config.KeyCodec, flags.Lookup("codec"))
	bindFlag(v, config.KeyVideoFile, flags.Lookup("video"))
	bindFlag(v, config.KeyAudioFile, flags.Lookup("audio"))
	bindFlag(v, config.KeyReceiveOnly, flags.Lookup("receive-only"))
	bindFlag(v, config.KeySTUNServer, flags.Lookup("stun"))
	bindFlag(v, config.KeyTURNServer, flags.Lookup("turn"))
	bindFlag(v, config.KeyTURNUser, flags.Lookup("turn-user"))
	bindFlag(v, config.KeyTURNPass, flags.Lookup("turn-pass"))
	bindFlag(v, config.KeyForceRelay, flags.Lookup("relay"))

	rootCmd.AddCommand(joinCmd)
}

func joinRoom(ctx context.Context, room string, created bool, clientCfg config.Client) error {
	fmt.Println()
	fmt.Println(ui.NewRoomInfo(room, clientCfg.ServerURL, created).View())
	fmt.Println()

	if clientCfg.ForceRelay && clientCfg.TURNServer == "" {
		ui.PrintWarning("--relay has no effect without a TURN server (--turn)")
	}

	local := ui.LocalMedia{
		Video: !clientCfg.ReceiveOnly && clientCfg.VideoFile != "",
		Audio: !clientCfg.ReceiveOnly && clientCfg.AudioFile != "",
	}
	plain := flagPlain || !isatty.IsTerminal(os.Stdout.Fd())

	var (
		callUI  *ui.CallUI
		printer *ui.UpdatePrinter
	)
	if plain {
		printer = ui.NewUpdatePrinter(os.Stdout)
	}

	ended := make(chan session.Update, 1)
	var connectedAt time.Time
	onUpdate := func(u session.Update) {
		if u.State == session.Connected && connectedAt.IsZero() {
			connectedAt = time.Now()
		}
		if printer != nil {
			printer.Print(u)
		} else if callUI != nil {
			callUI.Push(u)
		}
		if u.State == session.Failed || u.State == session.Closed {
			select {
			case ended <- u:
			default:
			}
		}
	}

	sp := ui.NewConnectionSpinner("Connecting to server...")
	sp.Start()
	conn, err := NewConnectionContext(ctx, clientCfg, logger, onUpdate, sp.UpdateMessage)
	if err != nil {
		sp.Error("Could not reach the server")
		return err
	}
	defer conn.Close()
	sp.Success("Connected as " + conn.SelfID)

	if plain {
		ui.PrintInfo("Media: " + local.String())
	} else {
		callUI = ui.NewCallUI(local, conn.Session.Leave)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go conn.Session.Run(runCtx)

	if callUI != nil {
		callUI.Start()
	}
	conn.Session.Enter(room)

	var last session.Update
	select {
	case last = <-ended:
	case <-ctx.Done():
		conn.Session.Leave()
		select {
		case last = <-ended:
		case <-time.After(leaveGrace):
			last = conn.Session.Snapshot()
		}
	}

	cancel()
	<-conn.Session.Done()
	if callUI != nil {
		callUI.Stop()
	}

	received := conn.Received()
	summary := ui.CallSummary{
		Room:     room,
		Role:     last.Role.String(),
		Peer:     last.RemotePeer,
		Duration: "-",
		Packets:  received.Packets,
		Bytes:    received.Bytes,
		Outcome:  ui.StateText(last),
	}
	if !connectedAt.IsZero() {
		summary.Duration = time.Since(connectedAt).Truncate(time.Second).String()
	}
	fmt.Println()
	ui.RenderCallSummary(summary)

	return callError(last)
}

// callError decides whether the way the call ended is worth a non-zero exit.
func callError(u session.Update) error {
	if u.State != session.Failed || errors.Is(u.Err, session.ErrPeerLeft) {
		return nil
	}
	msg := session.UserMessage(u.Err)
	if msg == "" {
		msg = "call failed"
	}
	return errors.New(strings.TrimSuffix(msg, "."))
}
