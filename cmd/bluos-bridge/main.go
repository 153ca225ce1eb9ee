// Bluos-bridge exposes a BluOS player over HTTP and websockets.
//
// It keeps one live state subscription to the player and serves it to any
// number of clients: GET /state for a snapshot, /ws for pushed snapshots,
// POST /commands/{name} for transport and volume control, and /metrics for
// Prometheus.
//
// Usage:
//
//	bluos-bridge serve [flags]
//
// See 'bluos-bridge serve --help' for available options.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/muurk/bluos/internal/config"
	"github.com/muurk/bluos/internal/logging"
	"github.com/muurk/bluos/internal/player"
	"github.com/muurk/bluos/internal/server"
	"github.com/muurk/bluos/internal/stream"
	"github.com/muurk/bluos/internal/version"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	logging.Sync()

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "bluos-bridge",
	Short: "BluOS HTTP and websocket bridge",
	Long: `A small HTTP server that follows one BluOS player and republishes its
normalized state to web clients.

For one-off control from a shell, use the separate 'bluos' command.`,
	Version:      version.Full(),
	SilenceUsage: true,
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(versionCmd)
}

// Serve command and flags
var (
	deviceFlag string
	configPath string
	logLevel   string
	host       string
	port       int
	certPath   string
	keyPath    string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the bridge",
	Long: `Start the bridge and follow the player.

Settings come from the bridge section of the config file; flags override
them. HTTPS is served when both --cert and --key are given.`,
	Example: `  # Follow the first player discovered on the network
  bluos-bridge serve

  # Fixed player, listen on all interfaces
  bluos-bridge serve --device 192.168.1.40 --host 0.0.0.0

  # HTTPS with debug logging
  bluos-bridge serve --cert cert.pem --key key.pem --log-level debug`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&deviceFlag, "device", "", "Player address or nickname (skips discovery)")
	serveCmd.Flags().StringVar(&configPath, "config", "", "Config file (default is the user config directory)")
	serveCmd.Flags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	serveCmd.Flags().StringVar(&host, "host", "", "Listen host (default from config)")
	serveCmd.Flags().IntVar(&port, "port", 0, "Listen port (default from config)")
	serveCmd.Flags().StringVar(&certPath, "cert", "", "Path to TLS certificate file")
	serveCmd.Flags().StringVar(&keyPath, "key", "", "Path to TLS private key file")
	serveCmd.Flags().Duration("push-interval", 0, "Minimum gap between websocket pushes (default from config)")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Open(configPath)
	if err != nil {
		return err
	}
	if err := logging.Initialize(logLevel); err != nil {
		return err
	}

	serverConfig, err := bridgeConfig(cmd, cfg)
	if err != nil {
		return err
	}

	p := cfg.NewPlayer(deviceFlag)
	srv := server.New(serverConfig, p)

	g, ctx := errgroup.WithContext(cmd.Context())
	g.Go(func() error {
		return srv.ListenAndServe(ctx)
	})
	g.Go(func() error {
		return logStates(ctx, p)
	})
	return g.Wait()
}

// bridgeConfig merges the config file's bridge section with the flags
func bridgeConfig(cmd *cobra.Command, cfg *config.Config) (*server.Config, error) {
	sc := &server.Config{
		Host:         cfg.Bridge.Host,
		Port:         cfg.Bridge.Port,
		PushInterval: cfg.Bridge.PushInterval,
		CertPath:     cfg.Bridge.TLSCert,
		KeyPath:      cfg.Bridge.TLSKey,
	}

	flags := cmd.Flags()
	if flags.Changed("host") {
		sc.Host = host
	}
	if flags.Changed("port") {
		if port < 1 || port > 65535 {
			return nil, fmt.Errorf("--port must be between 1 and 65535, got %d", port)
		}
		sc.Port = port
	}
	if flags.Changed("push-interval") {
		d, err := flags.GetDuration("push-interval")
		if err != nil {
			return nil, err
		}
		sc.PushInterval = d
	}
	if flags.Changed("cert") || flags.Changed("key") {
		if (certPath == "") != (keyPath == "") {
			return nil, errors.New("both --cert and --key must be provided together")
		}
		sc.CertPath, sc.KeyPath = certPath, keyPath
	}

	return sc, nil
}

// logStates holds a state subscription for the bridge's lifetime, so the
// player stays followed between clients, and logs every change. A failed
// stream is resubscribed after a backoff, which restarts discovery.
func logStates(ctx context.Context, p *player.Player) error {
	log := logging.Named("bridge")

	eb := backoff.NewExponentialBackOff()
	eb.MaxElapsedTime = 0
	b := backoff.WithContext(eb, ctx)

	for {
		sub := p.State().Subscribe()
		received, err := follow(ctx, sub, log)
		sub.Close()

		if ctx.Err() != nil {
			return nil
		}
		if received {
			b.Reset()
		}
		delay := b.NextBackOff()
		log.Warn("state stream ended, resubscribing", zap.Error(err), zap.Duration("delay", delay))

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(delay):
		}
	}
}

// follow logs states until the subscription ends. It reports whether any
// state arrived.
func follow(ctx context.Context, sub *stream.Subscription[player.State], log *zap.Logger) (bool, error) {
	received := false
	for {
		select {
		case <-ctx.Done():
			return received, ctx.Err()
		case s, ok := <-sub.C():
			if !ok {
				return received, sub.Err()
			}
			received = true
			log.Info("state", zap.Stringer("now_playing", s))
		}
	}
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("bluos-bridge %s\n", version.Full())
	},
}
