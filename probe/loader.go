package probe

import (
	"context"

	"github.com/lanewave/pagelink-go/messaging"
)

// Frame is a loaded probe target as seen from the prober's own context:
// a port into the target and a way to tear it down.
type Frame interface {
	// Port returns the port connect attempts are sent through.
	Port() messaging.Port

	// Close unloads the frame.
	Close() error
}

// Loader materializes remote documents for probing. Load returns once the
// target has finished its synchronous boot; a target that cannot be loaded
// is unreachable, which the prober counts as unsubscribed.
type Loader interface {
	Load(ctx context.Context, url string) (Frame, error)
}
