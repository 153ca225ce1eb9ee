package player

import (
	"math"
	"net/url"
	"time"

	"github.com/muurk/bluos/internal/bluos"
)

var playbackStatuses = map[string]PlaybackStatus{
	bluos.StatePlay:       Playing,
	bluos.StatePause:      Paused,
	bluos.StateStop:       Stopped,
	bluos.StateStream:     Streaming,
	bluos.StateConnecting: Connecting,
}

var qualities = map[string]Quality{
	"cd":          QualityCD,
	"hd":          QualityHD,
	"dolbyAudio":  QualityDolbyAudio,
	"mqa":         QualityMQA,
	"mqaAuthored": QualityMQAAuthored,
}

var repeatModes = map[float64]bluos.RepeatMode{
	0: bluos.RepeatAll,
	1: bluos.RepeatOne,
	2: bluos.RepeatOff,
}

// Normalize builds the consumer-facing snapshot from a player's status and
// sync status. elapsed is the time since status arrived and is only used to
// advance progress while playing. Relative icon and image paths are resolved
// against endpoint. sync may be nil.
func Normalize(endpoint string, status *bluos.Status, sync *bluos.SyncStatus, elapsed time.Duration) State {
	if status == nil {
		status = &bluos.Status{}
	}
	if sync == nil {
		sync = &bluos.SyncStatus{}
	}

	var s State
	device := func() *Device {
		if s.Device == nil {
			s.Device = &Device{}
		}
		return s.Device
	}
	source := func() *Source {
		if s.Source == nil {
			s.Source = &Source{}
		}
		return s.Source
	}
	playback := func() *Playback {
		if s.Playback == nil {
			s.Playback = &Playback{}
		}
		return s.Playback
	}
	volume := func() *Volume {
		if s.Volume == nil {
			s.Volume = &Volume{}
		}
		return s.Volume
	}

	// Device
	if sync.Brand != "" {
		device().BrandName = sync.Brand
	}
	if sync.Model != "" {
		device().ModelID = sync.Model
	}
	if sync.ModelName != "" {
		device().ModelName = sync.ModelName
	}
	if sync.Icon != "" {
		device().Icon = resolveURL(endpoint, sync.Icon)
	}
	if sync.Name != "" {
		device().Name = sync.Name
	}

	// Volume: status wins over sync status, field by field
	if mute := first(status.Mute, sync.Mute); mute != nil {
		volume().Muted = ptr(*mute == 1)
	}
	if level := first(status.Volume, sync.Volume); level != nil {
		volume().Level = ptr(*level / 100)
	}
	if db := first(status.DB, sync.DB); db != nil {
		volume().Decibels = ptr(*db)
	}
	if s.Volume != nil && s.Volume.Level != nil && *s.Volume.Level == 0 {
		s.Volume.Muted = ptr(true)
	}
	if s.Volume != nil && s.Volume.Muted != nil && *s.Volume.Muted {
		if db := first(status.MuteDB, sync.MuteDB); db != nil {
			s.Volume.Decibels = ptr(*db)
		}
		if level := first(status.MuteVolume, sync.MuteVolume); level != nil {
			s.Volume.Level = ptr(*level / 100)
		}
	}

	// Source
	capture := status.Service == bluos.ServiceCapture
	if status.ServiceName != "" {
		source().Name = status.ServiceName
	} else if status.Service != "" {
		source().Name = status.Service
	}
	if status.ServiceIcon != "" {
		source().Icon = resolveURL(endpoint, status.ServiceIcon)
	}
	if capture && status.Title1 != "" {
		source().Name = status.Title1
	}
	if capture && status.Image != "" {
		source().Icon = resolveURL(endpoint, status.Image)
	}

	// Playback
	if !capture {
		if song := firstString(status.Title1, status.Name); song != "" {
			playback().Song = song
		}
		if album := firstString(status.Title3, status.Album); album != "" {
			playback().Album = album
		}
		if artist := firstString(status.Title2, status.Artist); artist != "" {
			playback().Artist = artist
		}
	}
	if ps, ok := playbackStatuses[status.State]; ok {
		playback().Status = ps
	}
	if !capture && status.Image != "" {
		playback().Image = resolveURL(endpoint, status.Image)
	}
	if status.Secs != nil && status.TotLen != nil {
		playback().Progress = ptr(progress(status, elapsed))
	}
	if status.TotLen != nil {
		playback().Duration = ptr(*status.TotLen)
	}
	if status.Quality != "" {
		if q, ok := qualities[status.Quality]; ok {
			playback().Quality = q
		} else if _, numeric := Quality(status.Quality).Numeric(); numeric {
			playback().Quality = Quality(status.Quality)
		}
	}
	if !capture {
		if status.Repeat != nil {
			if mode, ok := repeatModes[*status.Repeat]; ok {
				playback().Repeat = mode
			}
		}
		if status.Shuffle != nil {
			switch *status.Shuffle {
			case 0:
				playback().Shuffle = ptr(false)
			case 1:
				playback().Shuffle = ptr(true)
			}
		}
	}

	return s
}

// progress interpolates the play position between polls. It only moves while
// playing or streaming and stays within [0, 1].
func progress(status *bluos.Status, elapsed time.Duration) float64 {
	if status.State != bluos.StatePlay && status.State != bluos.StateStream {
		return 0
	}
	total := *status.TotLen
	if total <= 0 {
		return 0
	}
	p := (*status.Secs + elapsed.Seconds()) / total
	return math.Max(0, math.Min(p, 1))
}

func resolveURL(endpoint, ref string) string {
	base, err := url.Parse(endpoint)
	if err != nil {
		return ref
	}
	u, err := base.Parse(ref)
	if err != nil {
		return ref
	}
	return u.String()
}

func first(values ...*float64) *float64 {
	for _, v := range values {
		if v != nil {
			return v
		}
	}
	return nil
}

func firstString(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func ptr[T any](v T) *T {
	return &v
}
