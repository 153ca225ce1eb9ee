package discovery

import (
	"errors"
	"fmt"
)

// ErrTransport marks a failure of the multicast socket: bind, send or
// receive. It ends the resolution; discovery restarts only on a fresh
// subscription.
var ErrTransport = errors.New("mdns transport failure")

func transportError(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrTransport, op, err)
}
