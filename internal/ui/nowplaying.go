package ui

import (
	"fmt"
	"math"
	"strings"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/lipgloss"

	"github.com/muurk/bluos/internal/player"
)

// RenderState renders a snapshot as the now-playing card
func RenderState(s player.State, width int) string {
	width = clampWidth(width)
	inner := width - 6

	var lines []string
	lines = append(lines, renderDeviceLine(s.Device))

	if s.Playback != nil {
		lines = append(lines, "")
		lines = append(lines, renderTrack(s.Playback)...)
		if bar := renderProgress(s.Playback, inner); bar != "" {
			lines = append(lines, bar)
		}
	} else {
		lines = append(lines, "", NoteStyle.Render("Nothing playing"))
	}

	lines = append(lines, "")
	if s.Source != nil && s.Source.Name != "" {
		lines = append(lines, field("Source", s.Source.Name))
	}
	if s.Volume != nil {
		lines = append(lines, field("Volume", FormatVolume(s.Volume)))
	}
	if s.Playback != nil {
		if modes := renderModes(s.Playback); modes != "" {
			lines = append(lines, field("Mode", modes))
		}
	}

	return CardStyle(width).Render(strings.Join(lines, "\n"))
}

func renderDeviceLine(d *player.Device) string {
	if d == nil || d.Name == "" {
		return DeviceNameStyle.Render("BluOS player")
	}
	line := DeviceNameStyle.Render(d.Name)
	model := strings.TrimSpace(d.BrandName + " " + d.ModelName)
	if model != "" {
		line += "  " + DeviceModelStyle.Render(model)
	}
	return line
}

func renderTrack(p *player.Playback) []string {
	title := p.Song
	if title == "" {
		title = "Unknown title"
	}
	lines := []string{StatusMarker(p.Status) + " " + SongStyle.Render(title)}

	var by []string
	if p.Artist != "" {
		by = append(by, p.Artist)
	}
	if p.Album != "" {
		by = append(by, p.Album)
	}
	if len(by) > 0 {
		lines = append(lines, "  "+ArtistStyle.Render(strings.Join(by, " - ")))
	}
	return lines
}

// renderProgress draws the bar with elapsed and total time. Streams
// without a duration get no bar.
func renderProgress(p *player.Playback, width int) string {
	if p.Duration == nil || *p.Duration <= 0 {
		return ""
	}
	fraction := 0.0
	if p.Progress != nil {
		fraction = *p.Progress
	}

	times := fmt.Sprintf(" %s / %s",
		FormatDuration(fraction**p.Duration), FormatDuration(*p.Duration))

	barWidth := width - lipgloss.Width(times)
	if barWidth < 10 {
		barWidth = 10
	}
	bar := progress.New(
		progress.WithSolidFill(string(PrimaryColor)),
		progress.WithoutPercentage(),
		progress.WithWidth(barWidth),
	)
	return bar.ViewAs(fraction) + NoteStyle.Render(times)
}

func renderModes(p *player.Playback) string {
	var modes []string
	if p.Quality != "" {
		modes = append(modes, "quality "+string(p.Quality))
	}
	if p.Repeat != "" {
		modes = append(modes, "repeat "+string(p.Repeat))
	}
	if p.Shuffle != nil {
		if *p.Shuffle {
			modes = append(modes, "shuffle on")
		} else {
			modes = append(modes, "shuffle off")
		}
	}
	return strings.Join(modes, "  ")
}

func field(label, value string) string {
	return LabelStyle.Render(label) + ValueStyle.Render(value)
}

// StatusMarker returns the colored transport symbol for a playback status
func StatusMarker(status player.PlaybackStatus) string {
	switch status {
	case player.Playing, player.Streaming:
		return lipgloss.NewStyle().Foreground(SuccessColor).Render(PlayingMarker)
	case player.Paused:
		return lipgloss.NewStyle().Foreground(WarningColor).Render(PausedMarker)
	case player.Connecting:
		return lipgloss.NewStyle().Foreground(MutedColor).Render("…")
	default:
		return lipgloss.NewStyle().Foreground(MutedColor).Render(StoppedMarker)
	}
}

// FormatVolume renders a volume as "25%", "25% (muted)" or "-30.5 dB"
func FormatVolume(v *player.Volume) string {
	var parts []string
	if v.Level != nil {
		parts = append(parts, fmt.Sprintf("%d%%", int(math.Round(*v.Level*100))))
	}
	if v.Decibels != nil {
		parts = append(parts, fmt.Sprintf("%.1f dB", *v.Decibels))
	}
	if v.Muted != nil && *v.Muted {
		parts = append(parts, "(muted)")
	}
	if len(parts) == 0 {
		return "-"
	}
	return strings.Join(parts, " ")
}

// FormatDuration formats seconds as m:ss, or h:mm:ss past an hour
func FormatDuration(seconds float64) string {
	if seconds < 0 || math.IsNaN(seconds) {
		seconds = 0
	}
	total := int(seconds)
	h, m, s := total/3600, (total%3600)/60, total%60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}
