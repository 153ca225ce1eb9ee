package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/muurk/bluos/internal/discovery"
	"github.com/muurk/bluos/internal/player"
	"github.com/muurk/bluos/internal/ui"
)

var (
	scanTimeout time.Duration
	jsonOutput  bool
)

func init() {
	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(endpointCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(watchCmd)
}

// scanCmd lists every player on the network
var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Scan for BluOS players on the network",
	Long: `Browse for BluOS players using mDNS/DNS-SD.

Unlike the other commands, which stop at the first player that answers,
scan listens for the whole timeout and lists every player and hub with its
endpoint, model and firmware version.`,
	Example: `  # Scan with the configured timeout (5 seconds by default)
  bluos scan

  # Longer scan for networks with many players
  bluos scan --timeout 15s

  # JSON output for scripting
  bluos scan --json`,
	RunE: runScan,
}

func init() {
	scanCmd.Flags().DurationVar(&scanTimeout, "timeout", 0, "Scan duration (default from config)")
	scanCmd.Flags().BoolVar(&jsonOutput, "json", false, "Print JSON")
}

func runScan(cmd *cobra.Command, args []string) error {
	scanner := discovery.NewScanner()
	scanner.Services = cfg.Discovery.Services
	scanner.Timeout = cfg.Discovery.ScanTimeout
	if scanTimeout > 0 {
		scanner.Timeout = scanTimeout
	}

	printer := ui.NewPrinter(os.Stdout)
	if !jsonOutput {
		printer.Println(fmt.Sprintf("Scanning for BluOS players (timeout: %s)...", scanner.Timeout))
		printer.Newline()
	}

	devices, err := scanner.ScanForDevices(cmd.Context())
	if err != nil {
		return report("Scan", err)
	}

	if jsonOutput {
		return printer.PrintJSON(devices)
	}
	printer.PrintDevices(devices)
	if len(devices) > 0 {
		printer.Newline()
		printer.Println("Use 'bluos --device <endpoint>' to talk to a specific player")
	}
	return nil
}

// endpointCmd prints the endpoint commands would use
var endpointCmd = &cobra.Command{
	Use:   "endpoint",
	Short: "Print the endpoint of the player",
	Long: `Resolve the player endpoint the way every other command does and print it.

With --device or a configured endpoint this just normalizes the address;
otherwise it runs multicast discovery until the first player answers.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := withTimeout(cmd)
		defer cancel()

		endpoint, err := cfg.NewPlayer(deviceFlag).Endpoint(ctx)
		if err != nil {
			return report("Discovery", err)
		}
		fmt.Println(endpoint)
		return nil
	},
}

// statusCmd prints one snapshot
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show what the player is doing",
	Long: `Wait for the first complete snapshot of the player and print it.

The snapshot combines the player's status with its sync status: device
name and model, source, track, progress, volume, repeat and shuffle.`,
	Example: `  bluos status
  bluos status --device 192.168.1.40
  bluos status --json`,
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().BoolVar(&jsonOutput, "json", false, "Print JSON")
}

func runStatus(cmd *cobra.Command, args []string) error {
	ctx, cancel := withTimeout(cmd)
	defer cancel()

	state, err := cfg.NewPlayer(deviceFlag).Snapshot(ctx)
	if err != nil {
		return report("Status", err)
	}

	printer := ui.NewPrinter(os.Stdout)
	if jsonOutput {
		return printer.PrintJSON(state)
	}
	printer.PrintState(state)
	return nil
}

// watchCmd follows the player
var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Follow the player live",
	Long: `Show the player state as it changes.

On a terminal this is an interactive now-playing view with key bindings
for play/pause, skipping, volume, mute, shuffle and repeat (press ? for
the full list). When stdout is not a terminal, or with --json, every
snapshot is written as one line of JSON instead.`,
	Example: `  bluos watch
  bluos watch --json | jq .playback.song`,
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().BoolVar(&jsonOutput, "json", false, "Write JSON lines instead of the interactive view")
}

func runWatch(cmd *cobra.Command, args []string) error {
	p := cfg.NewPlayer(deviceFlag)

	if !jsonOutput && ui.IsTerminal() {
		if err := ui.RunNowPlaying(cmd.Context(), p, p.State()); err != nil {
			return report("Watch", err)
		}
		return nil
	}

	if err := watchJSON(cmd, p); err != nil {
		return report("Watch", err)
	}
	return nil
}

// watchJSON writes one JSON line per snapshot until interrupted
func watchJSON(cmd *cobra.Command, p *player.Player) error {
	sub := p.State().Subscribe()
	defer sub.Close()

	printer := ui.NewPrinter(os.Stdout)
	for {
		select {
		case <-cmd.Context().Done():
			return nil
		case state, ok := <-sub.C():
			if !ok {
				if err := sub.Err(); err != nil {
					return err
				}
				return errors.New("state stream closed")
			}
			if err := printer.PrintJSONLine(state); err != nil {
				return err
			}
		}
	}
}
