// Package discovery locates BluOS players with multicast DNS.
//
// Players advertise DNS-SD services (_musc, _mush, _musp and _musz over TCP).
// Two ways of finding them are provided:
//
//   - Resolver follows the PTR -> SRV -> A chain in mDNS answers and reports
//     the first player's base URL ("http://10.0.0.5:11000/"). It queries every
//     500ms until an answer completes the chain, then stops querying.
//   - Scanner browses every service type for a fixed time and lists all the
//     devices that answered. The scan command uses it.
//
// Endpoints wraps a Resolver in a shared broadcast: the first subscriber starts
// discovery, later ones get the cached address, and the last one to leave
// stops it. All resolutions in a process share one reference-counted multicast
// socket (SharedSocket).
//
// # Usage Example
//
//	endpoints := discovery.NewEndpoints(discovery.NewResolver(nil))
//	endpoint, err := stream.First[string](ctx, endpoints)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println("player at", endpoint)
//
// # Network Requirements
//
// - Requires multicast support on the network interface
// - Players must be on the same local network segment
// - Firewall must allow mDNS (UDP port 5353)
package discovery
