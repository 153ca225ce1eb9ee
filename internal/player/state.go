package player

import (
	"encoding/json"
	"strconv"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/muurk/bluos/internal/bluos"
)

// PlaybackStatus is the normalized transport state
type PlaybackStatus string

const (
	Playing    PlaybackStatus = "playing"
	Paused     PlaybackStatus = "paused"
	Stopped    PlaybackStatus = "stopped"
	Streaming  PlaybackStatus = "streaming"
	Connecting PlaybackStatus = "connecting"
)

// Quality is a named tier ("cd", "hd", "dolby-audio", "mqa", "mqa-authored")
// or the numeric code some sources report instead.
type Quality string

const (
	QualityCD          Quality = "cd"
	QualityHD          Quality = "hd"
	QualityDolbyAudio  Quality = "dolby-audio"
	QualityMQA         Quality = "mqa"
	QualityMQAAuthored Quality = "mqa-authored"
)

// Numeric reports whether q is a bare code rather than a tier
func (q Quality) Numeric() (float64, bool) {
	n, err := strconv.ParseFloat(string(q), 64)
	return n, err == nil
}

// MarshalJSON writes numeric codes as JSON numbers
func (q Quality) MarshalJSON() ([]byte, error) {
	if n, ok := q.Numeric(); ok {
		return json.Marshal(n)
	}
	return json.Marshal(string(q))
}

// Device identifies the player
type Device struct {
	BrandName string `json:"brandName,omitempty"`
	ModelID   string `json:"modelId,omitempty"`
	ModelName string `json:"modelName,omitempty"`
	Icon      string `json:"icon,omitempty"`
	Name      string `json:"name,omitempty"`
}

// Source is the active input or streaming service
type Source struct {
	Name string `json:"name,omitempty"`
	Icon string `json:"icon,omitempty"`
}

// Playback describes what is playing. Progress is 0..1 of Duration.
type Playback struct {
	Song   string `json:"song,omitempty"`
	Album  string `json:"album,omitempty"`
	Artist string `json:"artist,omitempty"`

	Status   PlaybackStatus   `json:"status,omitempty"`
	Image    string           `json:"image,omitempty"`
	Quality  Quality          `json:"quality,omitempty"`
	Progress *float64         `json:"progress,omitempty"`
	Duration *float64         `json:"duration,omitempty"`
	Repeat   bluos.RepeatMode `json:"repeat,omitempty"`
	Shuffle  *bool            `json:"shuffle,omitempty"`
}

// Volume is the output level. Level is 0..1.
type Volume struct {
	Muted    *bool    `json:"muted,omitempty"`
	Level    *float64 `json:"level,omitempty"`
	Decibels *float64 `json:"decibels,omitempty"`
}

// State is the normalized snapshot handed to consumers. Every part is
// optional; nothing is filled in that the player did not report.
type State struct {
	Device   *Device   `json:"device,omitempty"`
	Source   *Source   `json:"source,omitempty"`
	Playback *Playback `json:"playback,omitempty"`
	Volume   *Volume   `json:"volume,omitempty"`
}

// An absent part and an empty one compare equal.
var stateCompare = cmp.Options{
	cmpopts.AcyclicTransformer("device", func(d *Device) Device { return derefOrZero(d) }),
	cmpopts.AcyclicTransformer("source", func(s *Source) Source { return derefOrZero(s) }),
	cmpopts.AcyclicTransformer("playback", func(p *Playback) Playback { return derefOrZero(p) }),
	cmpopts.AcyclicTransformer("volume", func(v *Volume) Volume { return derefOrZero(v) }),
}

func derefOrZero[T any](p *T) T {
	if p == nil {
		var zero T
		return zero
	}
	return *p
}

// stateFields has State's fields without its methods; cmp would otherwise
// call State.Equal.
type stateFields State

// Equal reports whether two snapshots carry the same information
func (s State) Equal(other State) bool {
	return cmp.Equal(stateFields(s), stateFields(other), stateCompare)
}

// Diff describes how two snapshots differ, for debug logging
func (s State) Diff(other State) string {
	return cmp.Diff(stateFields(s), stateFields(other), stateCompare)
}

// String returns a one-line summary, e.g. "Living Room: So What - Miles Davis (playing)"
func (s State) String() string {
	name := "player"
	if s.Device != nil && s.Device.Name != "" {
		name = s.Device.Name
	}
	if s.Playback == nil {
		return name + ": idle"
	}
	line := name + ": "
	switch {
	case s.Playback.Song != "" && s.Playback.Artist != "":
		line += s.Playback.Song + " - " + s.Playback.Artist
	case s.Playback.Song != "":
		line += s.Playback.Song
	case s.Source != nil && s.Source.Name != "":
		line += s.Source.Name
	default:
		line += "-"
	}
	if s.Playback.Status != "" {
		line += " (" + string(s.Playback.Status) + ")"
	}
	return line
}
