// Bluos is a command line remote for BluOS music players.
//
// It finds a player with multicast DNS (or talks to the one given with
// --device), shows what it is playing and sends it transport and volume
// commands.
//
// Usage:
//
//	bluos [command] [flags]
//
// Running without arguments shows the current player state.
// See 'bluos --help' for available commands.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/muurk/bluos/internal/config"
	"github.com/muurk/bluos/internal/logging"
	"github.com/muurk/bluos/internal/ui"
	"github.com/muurk/bluos/internal/version"
)

// errReported marks an error whose failure box was already printed
var errReported = errors.New("reported")

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	logging.Sync()

	if err != nil {
		if !errors.Is(err, errReported) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}

// Global flags
var (
	deviceFlag  string
	configPath  string
	logLevel    string
	waitTimeout time.Duration
)

var rootCmd = &cobra.Command{
	Use:   "bluos",
	Short: "BluOS player remote",
	Long: `A command line remote for BluOS music players.

Finds a player on the local network with multicast DNS, or uses the one
given with --device, the endpoint in the config file, or a nickname from
its devices section.

If no command is specified, the current player state is shown.`,
	Version:           version.Full(),
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: setup,
	RunE:              runStatus,
}

func init() {
	// Disable automatic completion command generation
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	rootCmd.PersistentFlags().StringVar(&deviceFlag, "device", "", "Player address or nickname (skips discovery)")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default is the user config directory)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error); silent when unset")
	rootCmd.PersistentFlags().DurationVar(&waitTimeout, "timeout", 15*time.Second, "How long one-shot commands wait for the player")

	rootCmd.AddCommand(versionCmd)
}

// cfg is loaded once by setup for every command
var cfg *config.Config

// setup loads the config file and starts logging. The flag wins over
// BLUOS_LOG_LEVEL, which wins over the file.
func setup(cmd *cobra.Command, args []string) error {
	loaded, err := config.Open(configPath)
	if err != nil {
		return err
	}
	cfg = loaded
	return setupLogging()
}

func setupLogging() error {
	level := logLevel
	if level == "" && os.Getenv(logging.LogLevelEnvVar) == "" {
		level = cfg.LogLevel
	}
	return logging.Initialize(level)
}

// withTimeout bounds a one-shot command by --timeout
func withTimeout(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return context.WithTimeout(cmd.Context(), waitTimeout)
}

// report prints a failure box to stderr and marks err as shown
func report(title string, err error) error {
	ui.NewPrinter(os.Stderr).PrintError(title, err)
	return fmt.Errorf("%s: %w", title, errors.Join(errReported, err))
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	// Version needs no config
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("bluos %s\n", version.Full())
	},
}
