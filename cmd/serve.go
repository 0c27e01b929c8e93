package cmd

import (
	"context"
	"errors"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/Revaiowo/streamRTC/internal/config"
	"github.com/Revaiowo/streamRTC/internal/server"
)

var serveCmd = &cobra.Command{
	Use:     "serve",
	Aliases: []string{"s"},
	Short:   "Run the signaling relay",
	Long: `Run the signaling relay. Clients connect over WebSocket at /ws and are
paired two to a room. /health, /rooms and /metrics expose liveness, the
occupied rooms and Prometheus metrics.

Examples:
  streamrtc serve
  streamrtc serve --listen :9000 --allowed-origins https://call.example.com
  STREAMRTC_RELAY_ALLOWED_ORIGINS='*' streamrtc serve`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return serve(cmd.Context(), cfg.Relay)
	},
}

func init() {
	flags := serveCmd.Flags()
	flags.String("listen", config.DefaultListen, "address to listen on")
	flags.StringSlice("allowed-origins", []string{config.DefaultAllowedOrigin}, "browser origins allowed to connect, * for any")
	flags.Float64("rate-limit", 50, "messages per second allowed per connection, 0 to disable")

	bindFlag(v, config.KeyListen, flags.Lookup("listen"))
	bindFlag(v, config.KeyAllowedOrigins, flags.Lookup("allowed-origins"))
	bindFlag(v, config.KeyRateLimit, flags.Lookup("rate-limit"))

	rootCmd.AddCommand(serveCmd)
}

func serve(ctx context.Context, relayCfg config.Relay) error {
	srv := server.New(relayCfg, logger)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(srv.ListenAndServe)
	g.Go(func() error {
		<-ctx.Done()
		logger.Info("shutting down signaling server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), relayCfg.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		return nil
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
