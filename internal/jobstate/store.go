package jobstate

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound signals that no state exists for the job id.
var ErrNotFound = errors.New("job state not found")

// Store is the key-value capability the tracker needs. Update must apply fn
// atomically per job id (compare-and-swap or equivalent) so the monotonicity
// rule survives a read-modify-write race; per-job single-writer access makes
// contention rare but the store must still not lose writes.
type Store interface {
	Get(ctx context.Context, jobID string) (*State, error)
	// Update loads the current state (nil when absent), applies fn, and
	// persists the returned state with the given TTL. Returning nil from fn
	// makes the call a no-op without error.
	Update(ctx context.Context, jobID string, ttl time.Duration, fn func(current *State) (*State, error)) error
	Delete(ctx context.Context, jobID string) error
}
