package main

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/muurk/bluos/internal/bluos"
	"github.com/muurk/bluos/internal/player"
	"github.com/muurk/bluos/internal/ui"
)

// Command flags
var (
	seekTo   int
	volumeDB float64
)

func init() {
	rootCmd.AddCommand(
		playCmd,
		simpleCommand("pause", "Pause playback", "Paused", (*player.Player).Pause),
		simpleCommand("toggle", "Toggle between play and pause", "Toggled", (*player.Player).Toggle),
		simpleCommand("stop", "Stop playback", "Stopped", (*player.Player).Stop),
		simpleCommand("next", "Skip to the next track", "Skipped", (*player.Player).Next),
		simpleCommand("previous", "Go back to the previous track", "Went back", (*player.Player).Previous),
		simpleCommand("mute", "Mute the player", "Muted", func(p *player.Player, ctx context.Context) error {
			return p.Mute(ctx, true)
		}),
		simpleCommand("unmute", "Unmute the player", "Unmuted", func(p *player.Player, ctx context.Context) error {
			return p.Mute(ctx, false)
		}),
		shuffleCmd,
		repeatCmd,
		volumeCmd,
	)
}

// control runs one player command and prints the outcome
func control(cmd *cobra.Command, title string, run func(p *player.Player, ctx context.Context) error, details ...ui.Detail) error {
	ctx, cancel := withTimeout(cmd)
	defer cancel()

	p := cfg.NewPlayer(deviceFlag)

	// Keep discovery alive so the endpoint below is the cached one
	hold := p.Endpoints().Subscribe()
	defer hold.Close()

	if err := run(p, ctx); err != nil {
		return report(title, err)
	}

	if endpoint, err := p.Endpoint(ctx); err == nil {
		details = append([]ui.Detail{{Key: "Player", Value: endpoint}}, details...)
	}
	ui.NewPrinter(os.Stdout).PrintSuccess(title, details...)
	return nil
}

// simpleCommand builds a command without arguments
func simpleCommand(use, short, title string, run func(p *player.Player, ctx context.Context) error) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return control(cmd, title, run)
		},
	}
}

var playCmd = &cobra.Command{
	Use:   "play",
	Short: "Start or resume playback",
	Example: `  bluos play
  # Jump to 1:30 in the current track
  bluos play --seek 90`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Flags().Changed("seek") {
			if seekTo < 0 {
				return fmt.Errorf("--seek must not be negative, got %d", seekTo)
			}
			return control(cmd, "Seeking", func(p *player.Player, ctx context.Context) error {
				return p.Seek(ctx, seekTo)
			}, ui.Detail{Key: "Position", Value: ui.FormatDuration(float64(seekTo))})
		}
		return control(cmd, "Playing", (*player.Player).Play)
	},
}

func init() {
	playCmd.Flags().IntVar(&seekTo, "seek", 0, "Position in seconds to play from")
}

var shuffleCmd = &cobra.Command{
	Use:       "shuffle on|off",
	Short:     "Turn shuffle on or off",
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{"on", "off"},
	RunE: func(cmd *cobra.Command, args []string) error {
		on, err := parseOnOff(args[0])
		if err != nil {
			return err
		}
		return control(cmd, "Shuffle "+args[0], func(p *player.Player, ctx context.Context) error {
			return p.Shuffle(ctx, on)
		})
	},
}

var repeatCmd = &cobra.Command{
	Use:       "repeat all|one|off",
	Short:     "Set the repeat mode",
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{string(bluos.RepeatAll), string(bluos.RepeatOne), string(bluos.RepeatOff)},
	RunE: func(cmd *cobra.Command, args []string) error {
		mode, err := bluos.ParseRepeatMode(args[0])
		if err != nil {
			return err
		}
		return control(cmd, "Repeat "+string(mode), func(p *player.Player, ctx context.Context) error {
			return p.Repeat(ctx, mode)
		})
	},
}

var volumeCmd = &cobra.Command{
	Use:   "volume <0-100>|up|down",
	Short: "Set or step the volume",
	Long: `Set the volume to a level between 0 and 100, or step it up or down.

Steps are in decibels, like the player's own volume buttons.`,
	Example: `  bluos volume 25
  bluos volume up
  bluos volume down --db 3`,
	Args: cobra.ExactArgs(1),
	RunE: runVolume,
}

func init() {
	volumeCmd.Flags().Float64Var(&volumeDB, "db", bluos.DefaultVolumeStep, "Step size in dB for up/down")
}

func runVolume(cmd *cobra.Command, args []string) error {
	switch args[0] {
	case "up", "down":
		if volumeDB <= 0 {
			return fmt.Errorf("--db must be positive, got %g", volumeDB)
		}
		db := volumeDB
		if args[0] == "down" {
			db = -db
		}
		return control(cmd, "Volume "+args[0], func(p *player.Player, ctx context.Context) error {
			return p.StepVolume(ctx, db)
		}, ui.Detail{Key: "Step", Value: fmt.Sprintf("%+.1f dB", db)})
	}

	level, err := parseLevel(args[0])
	if err != nil {
		return err
	}
	return control(cmd, "Volume set", func(p *player.Player, ctx context.Context) error {
		return p.SetVolume(ctx, float64(level)/100)
	}, ui.Detail{Key: "Level", Value: fmt.Sprintf("%d%%", level)})
}

func parseOnOff(s string) (bool, error) {
	switch s {
	case "on":
		return true, nil
	case "off":
		return false, nil
	}
	return false, fmt.Errorf("expected on or off, got %q", s)
}

func parseLevel(s string) (int, error) {
	level, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("expected a level between 0 and 100, up or down, got %q", s)
	}
	if level < 0 || level > 100 {
		return 0, fmt.Errorf("volume level must be between 0 and 100, got %d", level)
	}
	return level, nil
}
