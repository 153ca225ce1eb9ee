package player

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/muurk/bluos/internal/bluos"
)

const endpoint = "http://10.0.0.5:11000/"

func num(v float64) *float64 { return &v }

func TestNormalize_Empty(t *testing.T) {
	s := Normalize(endpoint, &bluos.Status{ETag: "a"}, &bluos.SyncStatus{}, 0)
	assert.Nil(t, s.Device)
	assert.Nil(t, s.Source)
	assert.Nil(t, s.Playback)
	assert.Nil(t, s.Volume)

	assert.Equal(t, State{}, Normalize(endpoint, nil, nil, 0))
}

func TestNormalize_Progress(t *testing.T) {
	playing := &bluos.Status{State: bluos.StatePlay, Secs: num(10), TotLen: num(100)}

	s := Normalize(endpoint, playing, nil, 0)
	require.NotNil(t, s.Playback)
	require.NotNil(t, s.Playback.Progress)
	assert.InDelta(t, 0.10, *s.Playback.Progress, 1e-9)
	assert.Equal(t, 100.0, *s.Playback.Duration)

	// 50 ticks of 10ms
	s = Normalize(endpoint, playing, nil, 500*time.Millisecond)
	assert.InDelta(t, 0.105, *s.Playback.Progress, 1e-9)

	s = Normalize(endpoint, &bluos.Status{State: bluos.StateStream, Secs: num(99), TotLen: num(100)}, nil, 5*time.Second)
	assert.Equal(t, 1.0, *s.Playback.Progress, "clamped")
}

func TestNormalize_ProgressNonDecreasing(t *testing.T) {
	playing := &bluos.Status{State: bluos.StatePlay, Secs: num(30), TotLen: num(240)}

	prev := -1.0
	for tick := 0; tick < 1000; tick++ {
		s := Normalize(endpoint, playing, nil, time.Duration(tick)*DefaultTickInterval)
		p := *s.Playback.Progress
		assert.GreaterOrEqual(t, p, prev)
		assert.GreaterOrEqual(t, p, 0.0)
		assert.LessOrEqual(t, p, 1.0)
		prev = p
	}
}

func TestNormalize_ProgressHeldWhenNotPlaying(t *testing.T) {
	for _, state := range []string{bluos.StatePause, bluos.StateStop, bluos.StateConnecting, ""} {
		s := Normalize(endpoint, &bluos.Status{State: state, Secs: num(50), TotLen: num(100)}, nil, time.Second)
		require.NotNil(t, s.Playback, state)
		assert.Equal(t, 0.0, *s.Playback.Progress, state)
	}

	s := Normalize(endpoint, &bluos.Status{State: bluos.StatePlay, Secs: num(5), TotLen: num(0)}, nil, 0)
	assert.Equal(t, 0.0, *s.Playback.Progress, "unknown length")

	s = Normalize(endpoint, &bluos.Status{State: bluos.StatePlay, Secs: num(5)}, nil, 0)
	assert.Nil(t, s.Playback.Progress, "no progress without a length")
}

func TestNormalize_Capture(t *testing.T) {
	s := Normalize(endpoint, &bluos.Status{
		Service:     "Capture",
		ServiceName: "Analog Input",
		Title1:      "Aux In",
		Image:       "/aux.png",
		Repeat:      num(0),
		Shuffle:     num(1),
	}, nil, 0)

	require.NotNil(t, s.Source)
	assert.Equal(t, "Aux In", s.Source.Name)
	assert.Equal(t, "http://10.0.0.5:11000/aux.png", s.Source.Icon)
	assert.Nil(t, s.Playback, "no song, image, repeat or shuffle for an input")
}

func TestNormalize_Source(t *testing.T) {
	s := Normalize(endpoint, &bluos.Status{Service: "Tidal", ServiceName: "TIDAL", ServiceIcon: "/Sources/images/TidalIcon.png"}, nil, 0)
	assert.Equal(t, &Source{Name: "TIDAL", Icon: "http://10.0.0.5:11000/Sources/images/TidalIcon.png"}, s.Source)

	s = Normalize(endpoint, &bluos.Status{Service: "Tidal"}, nil, 0)
	assert.Equal(t, &Source{Name: "Tidal"}, s.Source)

	s = Normalize(endpoint, &bluos.Status{ServiceIcon: "https://cdn.example.com/icon.png"}, nil, 0)
	assert.Equal(t, "https://cdn.example.com/icon.png", s.Source.Icon, "absolute URLs are kept")
}

func TestNormalize_Track(t *testing.T) {
	s := Normalize(endpoint, &bluos.Status{
		Title1: "So What", Title2: "Miles Davis", Title3: "Kind of Blue",
		Name: "ignored", Artist: "ignored", Album: "ignored",
		Image: "/Artwork?id=1",
	}, nil, 0)
	assert.Equal(t, "So What", s.Playback.Song)
	assert.Equal(t, "Miles Davis", s.Playback.Artist)
	assert.Equal(t, "Kind of Blue", s.Playback.Album)
	assert.Equal(t, "http://10.0.0.5:11000/Artwork?id=1", s.Playback.Image)

	s = Normalize(endpoint, &bluos.Status{Name: "Song", Artist: "Artist", Album: "Album"}, nil, 0)
	assert.Equal(t, "Song", s.Playback.Song)
	assert.Equal(t, "Artist", s.Playback.Artist)
	assert.Equal(t, "Album", s.Playback.Album)
}

func TestNormalize_PlaybackStatus(t *testing.T) {
	tests := map[string]PlaybackStatus{
		"play":       Playing,
		"pause":      Paused,
		"stop":       Stopped,
		"stream":     Streaming,
		"connecting": Connecting,
	}
	for state, want := range tests {
		s := Normalize(endpoint, &bluos.Status{State: state}, nil, 0)
		assert.Equal(t, want, s.Playback.Status, state)
	}
}

func TestNormalize_Quality(t *testing.T) {
	tests := map[string]Quality{
		"cd":          QualityCD,
		"hd":          QualityHD,
		"dolbyAudio":  QualityDolbyAudio,
		"mqa":         QualityMQA,
		"mqaAuthored": QualityMQAAuthored,
		"320000":      Quality("320000"),
	}
	for in, want := range tests {
		s := Normalize(endpoint, &bluos.Status{Quality: in}, nil, 0)
		assert.Equal(t, want, s.Playback.Quality, in)
	}
}

func TestNormalize_RepeatAndShuffle(t *testing.T) {
	modes := map[float64]bluos.RepeatMode{0: bluos.RepeatAll, 1: bluos.RepeatOne, 2: bluos.RepeatOff}
	for in, want := range modes {
		s := Normalize(endpoint, &bluos.Status{Repeat: num(in)}, nil, 0)
		assert.Equal(t, want, s.Playback.Repeat)
	}

	s := Normalize(endpoint, &bluos.Status{Shuffle: num(1)}, nil, 0)
	assert.True(t, *s.Playback.Shuffle)
	s = Normalize(endpoint, &bluos.Status{Shuffle: num(0)}, nil, 0)
	assert.False(t, *s.Playback.Shuffle)
}

func TestNormalize_Device(t *testing.T) {
	s := Normalize(endpoint, &bluos.Status{}, &bluos.SyncStatus{
		Brand: "Bluesound", Model: "N130", ModelName: "NODE", Name: "Living Room",
		Icon: "/images/players/N125_nt.png",
	}, 0)

	assert.Equal(t, &Device{
		BrandName: "Bluesound",
		ModelID:   "N130",
		ModelName: "NODE",
		Name:      "Living Room",
		Icon:      "http://10.0.0.5:11000/images/players/N125_nt.png",
	}, s.Device)
}

func TestNormalize_Volume(t *testing.T) {
	tests := []struct {
		name   string
		status bluos.Levels
		sync   bluos.Levels
		want   *Volume
	}{
		{
			name:   "status wins",
			status: bluos.Levels{Mute: num(0), Volume: num(30), DB: num(-25)},
			sync:   bluos.Levels{Mute: num(1), Volume: num(50), DB: num(-10)},
			want:   &Volume{Muted: ptr(false), Level: ptr(0.30), Decibels: ptr(-25.0)},
		},
		{
			name:   "sync status fills gaps field by field",
			status: bluos.Levels{Volume: num(30)},
			sync:   bluos.Levels{Mute: num(0), Volume: num(50), DB: num(-10)},
			want:   &Volume{Muted: ptr(false), Level: ptr(0.30), Decibels: ptr(-10.0)},
		},
		{
			name:   "zero level means muted",
			status: bluos.Levels{Mute: num(0), Volume: num(0), DB: num(-80)},
			want:   &Volume{Muted: ptr(true), Level: ptr(0.0), Decibels: ptr(-80.0)},
		},
		{
			name:   "muted reports the mute levels",
			status: bluos.Levels{Mute: num(1), Volume: num(0), DB: num(-100), MuteVolume: num(25), MuteDB: num(-30)},
			want:   &Volume{Muted: ptr(true), Level: ptr(0.25), Decibels: ptr(-30.0)},
		},
		{
			name:   "mute levels from sync status",
			status: bluos.Levels{Mute: num(1), Volume: num(0), DB: num(-100)},
			sync:   bluos.Levels{MuteVolume: num(40), MuteDB: num(-20)},
			want:   &Volume{Muted: ptr(true), Level: ptr(0.40), Decibels: ptr(-20.0)},
		},
		{
			name:   "mute levels ignored when not muted",
			status: bluos.Levels{Mute: num(0), Volume: num(20), DB: num(-35), MuteVolume: num(40), MuteDB: num(-20)},
			want:   &Volume{Muted: ptr(false), Level: ptr(0.20), Decibels: ptr(-35.0)},
		},
		{
			name:   "muted without mute levels keeps the regular ones",
			status: bluos.Levels{Mute: num(1), Volume: num(20), DB: num(-35)},
			want:   &Volume{Muted: ptr(true), Level: ptr(0.20), Decibels: ptr(-35.0)},
		},
		{
			name: "nothing reported",
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := Normalize(endpoint, &bluos.Status{Levels: tt.status}, &bluos.SyncStatus{Levels: tt.sync}, 0)
			if tt.want == nil {
				assert.Nil(t, s.Volume)
				return
			}
			require.NotNil(t, s.Volume)
			assert.Equal(t, *tt.want.Muted, *s.Volume.Muted, "muted")
			assert.InDelta(t, *tt.want.Level, *s.Volume.Level, 1e-9, "level")
			assert.InDelta(t, *tt.want.Decibels, *s.Volume.Decibels, 1e-9, "decibels")
		})
	}
}

func TestState_EqualTreatsEmptyAsAbsent(t *testing.T) {
	a := State{Device: &Device{Name: "Living Room"}}
	b := State{Device: &Device{Name: "Living Room"}, Source: &Source{}, Volume: &Volume{}}
	assert.True(t, a.Equal(b))
	assert.Empty(t, a.Diff(b))

	c := State{Device: &Device{Name: "Kitchen"}}
	assert.False(t, a.Equal(c))
	assert.NotEmpty(t, a.Diff(c))

	assert.False(t, State{Volume: &Volume{Muted: ptr(false)}}.Equal(State{}), "false is not absent")
}

func TestState_JSON(t *testing.T) {
	s := State{
		Playback: &Playback{Song: "So What", Status: Playing, Quality: "320000", Progress: ptr(0.5)},
		Volume:   &Volume{Level: ptr(0.3)},
	}
	b, err := json.Marshal(s)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"playback": {"song": "So What", "status": "playing", "quality": 320000, "progress": 0.5},
		"volume": {"level": 0.3}
	}`, string(b))

	b, err = json.Marshal(Playback{Quality: QualityMQA})
	require.NoError(t, err)
	assert.JSONEq(t, `{"quality": "mqa"}`, string(b))
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "player: idle", State{}.String())
	assert.Equal(t, "Living Room: So What - Miles Davis (playing)", State{
		Device:   &Device{Name: "Living Room"},
		Playback: &Playback{Song: "So What", Artist: "Miles Davis", Status: Playing},
	}.String())
	assert.Equal(t, "player: Aux In (playing)", State{
		Source:   &Source{Name: "Aux In"},
		Playback: &Playback{Status: Playing},
	}.String())
}
