// Package ui renders the bluos command line output.
//
// One-shot commands (status, scan, player commands) print through a
// Printer: a now-playing card for a snapshot, a device list for a scan,
// and success or failure boxes for commands. Failures carry the
// troubleshooting hint of the device error that caused them.
//
// The watch command runs NowPlayingModel, a Bubble Tea program that
// follows the player's state subscription and maps keys to player
// commands:
//
//	space  play/pause      n  next       b  previous
//	+ / -  volume step     m  mute       s  shuffle
//	r      cycle repeat    ?  all keys   q  quit
//
// Logging is controlled by BLUOS_LOG_LEVEL. When unset, zap logging is
// silent so the styled output is not interleaved with log lines.
package ui
