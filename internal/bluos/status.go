package bluos

import (
	"math"
	"strconv"
)

// Playback states reported in the state field of /Status.
const (
	StatePlay       = "play"
	StatePause      = "pause"
	StateStop       = "stop"
	StateStream     = "stream"
	StateConnecting = "connecting"
)

// ServiceCapture is the service id of the line-in and optical inputs.
const ServiceCapture = "Capture"

// Quality tiers reported in the quality field of /Status. Some firmware sends a
// bare number instead.
var qualityTiers = []string{"cd", "hd", "dolbyAudio", "mqa", "mqaAuthored"}

// Levels are the volume fields shared by /Status and /SyncStatus.
type Levels struct {
	Mute       *float64 // 0 or 1
	MuteDB     *float64 // decibels restored on unmute
	MuteVolume *float64 // 0..100 restored on unmute
	DB         *float64
	Volume     *float64 // 0..100, -1 for fixed-level outputs
}

// Status is the validated payload of GET /Status. Optional strings are empty
// when absent; optional numbers are nil.
type Status struct {
	ETag     string
	SyncStat *float64

	State   string
	Image   string
	Quality string // tier name or numeric code, as sent

	Name   string
	Album  string
	Artist string
	Title1 string
	Title2 string
	Title3 string

	Shuffle *float64
	Secs    *float64
	TotLen  *float64
	Repeat  *float64

	Levels

	Service     string
	ServiceName string
	ServiceIcon string
}

// SyncStatus is the validated payload of GET /SyncStatus.
type SyncStatus struct {
	Brand     string
	Model     string
	ModelName string
	Icon      string
	Name      string

	Levels
}

// ParseStatus decodes and validates a /Status document.
func ParseStatus(data []byte) (*Status, error) {
	doc, err := decodeDocument(data)
	if err != nil {
		return nil, err
	}
	if doc.root != "status" {
		return nil, NewValidationError("expected <status>, got <" + doc.root + ">")
	}

	r := &fieldReader{doc: doc}
	s := &Status{
		ETag:     r.required("etag"),
		SyncStat: r.number("syncStat", math.Inf(-1), math.Inf(1)),
		State:    r.oneOf("state", StatePlay, StatePause, StateStop, StateStream, StateConnecting),
		Image:    r.str("image"),
		Quality:  readQuality(r),
		Name:     r.str("name"),
		Album:    r.str("album"),
		Artist:   r.str("artist"),
		Title1:   r.str("title1"),
		Title2:   r.str("title2"),
		Title3:   r.str("title3"),
		Shuffle:  r.number("shuffle", 0, 1),
		Secs:     r.number("secs", 0, math.Inf(1)),
		TotLen:   r.number("totlen", 0, math.Inf(1)),
		Repeat:   r.number("repeat", 0, 2),
		Levels:   readLevels(r),

		Service:     r.str("service"),
		ServiceName: r.str("serviceName"),
		ServiceIcon: r.str("serviceIcon"),
	}
	if err := r.err("status"); err != nil {
		return nil, err
	}
	return s, nil
}

// ParseSyncStatus decodes and validates a /SyncStatus document.
func ParseSyncStatus(data []byte) (*SyncStatus, error) {
	doc, err := decodeDocument(data)
	if err != nil {
		return nil, err
	}
	if doc.root != "SyncStatus" {
		return nil, NewValidationError("expected <SyncStatus>, got <" + doc.root + ">")
	}

	r := &fieldReader{doc: doc}
	s := &SyncStatus{
		Brand:     r.str("brand"),
		Model:     r.str("model"),
		ModelName: r.str("modelName"),
		Icon:      r.str("icon"),
		Name:      r.str("name"),
		Levels:    readLevels(r),
	}
	if err := r.err("sync status"); err != nil {
		return nil, err
	}
	return s, nil
}

func readLevels(r *fieldReader) Levels {
	return Levels{
		Mute:       r.number("mute", 0, 1),
		MuteDB:     r.number("muteDb", -100, 0),
		MuteVolume: r.number("muteVolume", 0, 100),
		DB:         r.number("db", -100, 0),
		Volume:     r.number("volume", -1, 100),
	}
}

func readQuality(r *fieldReader) string {
	raw, ok := r.doc.fields["quality"]
	if !ok {
		return ""
	}
	if _, err := strconv.ParseFloat(raw, 64); err == nil {
		return raw
	}
	return r.oneOf("quality", qualityTiers...)
}
