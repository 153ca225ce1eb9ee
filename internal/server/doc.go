// Package server implements bluos-bridge, a small HTTP front for one player.
//
// Endpoints:
//
//	GET  /state            current normalized state as JSON
//	GET  /ws               websocket; one {"type":"state"} message per change
//	POST /commands/{name}  play, pause, toggle, stop, next, previous,
//	                       shuffle?on=, repeat?mode=, mute, unmute,
//	                       volume?level=0..100 or volume?db=
//	GET  /metrics          Prometheus metrics of the sync engine
//	GET  /healthz          liveness
//
// Command parameters may be sent in the query string or as a form body.
// Websocket pushes are throttled to one per PushInterval; intermediate
// snapshots are dropped in favor of the newest. The server pings every
// client and drops those that stop answering.
//
// The player streams behind the bridge are only active while something
// needs them: an open websocket or a pending GET /state.
package server
