package ui

import (
	"fmt"
	"strings"

	"github.com/muurk/bluos/internal/discovery"
)

// RenderDeviceList renders the players found by a scan
func RenderDeviceList(devices []*discovery.Device, width int) string {
	width = clampWidth(width)

	if len(devices) == 0 {
		return NewWarningResult("No players found").SetWidth(width).Render() + "\n" + strings.Join([]string{
			TroubleshootingTitleStyle.Render("Troubleshooting:"),
			TroubleshootingItemStyle.Render("  • Check that this computer is on the same network as the player"),
			TroubleshootingItemStyle.Render("  • Multicast may be blocked by the router or a VPN"),
			TroubleshootingItemStyle.Render("  • Try increasing --timeout for slower networks"),
			TroubleshootingItemStyle.Render("  • Use --device to address a player directly"),
		}, "\n")
	}

	var lines []string
	lines = append(lines, DeviceNameStyle.Render(fmt.Sprintf("Found %d player(s)", len(devices))), "")

	for i, d := range devices {
		name := d.Instance
		if name == "" {
			name = d.Hostname
		}
		head := fmt.Sprintf("%d. %s", i+1, DeviceNameStyle.Render(name))
		if model := d.GetMetadata("model"); model != "" {
			head += "  " + DeviceModelStyle.Render(model)
		}
		lines = append(lines, head)
		lines = append(lines, "   "+field("Endpoint", d.Endpoint()))
		lines = append(lines, "   "+field("Service", d.Service))
		if v := d.GetMetadata("version"); v != "" {
			lines = append(lines, "   "+field("Firmware", v))
		}
		if i < len(devices)-1 {
			lines = append(lines, "")
		}
	}

	return CardStyle(width).Render(strings.Join(lines, "\n"))
}
