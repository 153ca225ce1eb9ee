// Package player keeps a live, normalized view of a BluOS player.
//
// The engine is a chain of shared streams, each started by its first
// subscriber and stopped by its last:
//
//	endpoints -> status (long poll) -> sync status (on syncStat change)
//	                 \__________________________/
//	                              |
//	                     reconciler (+ 10ms tick) -> State
//
// The status loop issues GET /Status with the last etag so the player holds
// the request until something changes. Failures are retried with PowerBackOff
// and a full fetch; consumers see a gap, never an error. Only a discovery
// failure ends the State stream.
//
// Normalize turns a status and sync status into State with fixed precedence:
// status values win over sync status, mute-specific levels win while muted,
// and the Capture input reports its title as the source instead of a song.
package player
