package cmd

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Revaiowo/streamRTC/internal/config"
	"github.com/Revaiowo/streamRTC/internal/logging"
	"github.com/Revaiowo/streamRTC/internal/ui"
	"github.com/Revaiowo/streamRTC/internal/version"
)

var (
	v          = config.New()
	cfg        *config.Config
	logger     = slog.Default()
	configFile string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "streamrtc",
	Short: "Two-party video calls over WebRTC with a tiny signaling relay",
	Long: `streamRTC runs the signaling relay that pairs two peers in a room and a
command-line client that joins a room and streams audio and video to
whoever else is in it. Media flows peer to peer; the relay only moves
offers, answers and ICE candidates.`,
	Version: version.Version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return loadConfig(v, configFile)
	},
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&configFile, "config", "", "config file (default ./config.yaml if present)")
	flags.String("log-level", "", "log level: debug, info, warn, error")
	flags.String("log-format", "", "log format: text or json")

	bindFlag(v, config.KeyLogLevel, flags.Lookup("log-level"))
	bindFlag(v, config.KeyLogFormat, flags.Lookup("log-format"))
}

// loadConfig reads the config file and builds the logger every command uses.
func loadConfig(v *viper.Viper, path string) error {
	if err := config.ReadFile(v, path); err != nil {
		return err
	}

	loaded, err := config.Load(v)
	if err != nil {
		return err
	}

	l, err := logging.Setup(loaded.LogLevel, loaded.LogFormat)
	if err != nil {
		return err
	}

	cfg = loaded
	logger = l
	return nil
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		ui.PrintError(err.Error())
		stop()
		os.Exit(1)
	}
}
