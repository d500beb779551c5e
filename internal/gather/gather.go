// Package gather defines the contract for data gathering processes.
package gather

import (
	"context"
)

// Gatherer is the interface for all data gathering processes.
type Gatherer interface {
	// Name returns the gatherer identifier.
	Name() string
	// Run executes the gathering process. It returns once the process has
	// finished or aborted; cancelling ctx requests an orderly stop at the
	// next consistent boundary.
	Run(ctx context.Context) error
}
