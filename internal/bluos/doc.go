// Package bluos provides an HTTP client for BluOS players.
//
// A player exposes a small XML API on port 11000:
//
//	GET /Status?etag=<etag>&timeout=<seconds>   playback state, long-polled
//	GET /SyncStatus                              device identity and volume
//	GET /Play, /Pause, /Stop, /Skip, /Back       transport commands
//	GET /Shuffle, /Repeat, /Volume               settings
//
// Responses are decoded into Status and SyncStatus and validated against the
// value ranges the firmware documents; a response outside them is reported as
// a validation error rather than passed on.
//
// Errors are returned as *DeviceError, classified by ErrorType so callers can
// decide whether to retry and what to tell the user:
//
//	status, err := client.Status(ctx, "", 0)
//	if err != nil {
//	    fmt.Println(bluos.GetShortErrorMessage(err))
//	    fmt.Println(bluos.GetTroubleshootingHint(err))
//	}
//
// Every request carries an x-request-id header, which is also logged at debug
// level together with the response size.
package bluos
