package bluos

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"go.uber.org/zap"
)

// RepeatMode is the player's repeat setting
type RepeatMode string

const (
	RepeatAll RepeatMode = "all"
	RepeatOne RepeatMode = "one"
	RepeatOff RepeatMode = "off"
)

// ParseRepeatMode accepts "all", "one" or "off"
func ParseRepeatMode(s string) (RepeatMode, error) {
	switch m := RepeatMode(s); m {
	case RepeatAll, RepeatOne, RepeatOff:
		return m, nil
	}
	return "", fmt.Errorf("invalid repeat mode %q (want all, one or off)", s)
}

// repeatStates maps modes to the numeric state parameter of /Repeat
var repeatStates = map[RepeatMode]string{
	RepeatAll: "0",
	RepeatOne: "1",
	RepeatOff: "2",
}

// DefaultVolumeStep is the decibel step used by volume up/down
const DefaultVolumeStep = 0.8

// Play starts or resumes playback
func (c *Client) Play(ctx context.Context) error {
	c.logger().Debug("play")
	return c.command(ctx, "/Play", nil)
}

// Seek starts playback at the given offset into the current track
func (c *Client) Seek(ctx context.Context, seconds int) error {
	c.logger().Debug("seek", zap.Int("seconds", seconds))
	return c.command(ctx, "/Play", url.Values{"seek": {strconv.Itoa(seconds)}})
}

// Pause pauses playback
func (c *Client) Pause(ctx context.Context) error {
	c.logger().Debug("pause")
	return c.command(ctx, "/Pause", nil)
}

// Toggle switches between playing and paused
func (c *Client) Toggle(ctx context.Context) error {
	c.logger().Debug("toggle")
	return c.command(ctx, "/Pause", url.Values{"toggle": {"1"}})
}

// Stop stops playback
func (c *Client) Stop(ctx context.Context) error {
	c.logger().Debug("stop")
	return c.command(ctx, "/Stop", nil)
}

// Skip moves to the next track
func (c *Client) Skip(ctx context.Context) error {
	c.logger().Debug("skip")
	return c.command(ctx, "/Skip", nil)
}

// Back moves to the previous track, or the start of the current one
func (c *Client) Back(ctx context.Context) error {
	c.logger().Debug("back")
	return c.command(ctx, "/Back", nil)
}

// Shuffle turns shuffle on or off
func (c *Client) Shuffle(ctx context.Context, on bool) error {
	c.logger().Debug("shuffle", zap.Bool("on", on))
	return c.command(ctx, "/Shuffle", url.Values{"state": {boolParam(on)}})
}

// Repeat sets the repeat mode
func (c *Client) Repeat(ctx context.Context, mode RepeatMode) error {
	state, ok := repeatStates[mode]
	if !ok {
		return NewValidationError(fmt.Sprintf("invalid repeat mode %q", mode))
	}
	c.logger().Debug("repeat", zap.String("mode", string(mode)))
	return c.command(ctx, "/Repeat", url.Values{"state": {state}})
}

// Mute mutes or unmutes the player
func (c *Client) Mute(ctx context.Context, muted bool) error {
	c.logger().Debug("mute", zap.Bool("muted", muted))
	return c.command(ctx, "/Volume", url.Values{"mute": {boolParam(muted)}})
}

// SetVolume sets the volume level, 0 to 1
func (c *Client) SetVolume(ctx context.Context, level float64) error {
	if level < 0 || level > 1 {
		return NewValidationError(fmt.Sprintf("volume level %v out of range [0, 1]", level))
	}
	c.logger().Debug("set volume", zap.Float64("level", level))
	return c.command(ctx, "/Volume", url.Values{"level": {strconv.FormatFloat(level*100, 'f', -1, 64)}})
}

// StepVolume changes the volume by db decibels; negative values lower it
func (c *Client) StepVolume(ctx context.Context, db float64) error {
	c.logger().Debug("step volume", zap.Float64("db", db))
	return c.command(ctx, "/Volume", url.Values{"db": {strconv.FormatFloat(db, 'f', -1, 64) + "dB"}})
}

func boolParam(b bool) string {
	if b {
		return "1"
	}
	return "0"
}
