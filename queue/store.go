package queue

import "context"

// Store is the durable FIFO backing the hit queue. Implementations must
// uphold the single in-flight invariant: once Acquire returns a hit, it is
// returned again (not a different one) on every subsequent Acquire call
// until Release or the process crashes and the hit is re-acquired after
// restart (spec §4.6, §4.9 state machine).
type Store interface {
	// Enqueue appends hit to the tail of the ready list. Must persist
	// before returning so a crash immediately after Enqueue does not lose
	// the hit.
	Enqueue(ctx context.Context, hit *EdgeHit) error

	// Acquire returns the current in-flight hit if one is already held
	// (e.g. resuming after a restart), otherwise moves the head of the
	// ready list into the in-flight slot and returns it. Returns
	// ok == false if both are empty.
	Acquire(ctx context.Context) (*EdgeHit, bool, error)

	// Release clears the in-flight slot after a terminal outcome
	// (success or fatal failure) for requestID.
	Release(ctx context.Context, requestID string) error

	// Stats reports queue depth for operational visibility.
	Stats(ctx context.Context) (Stats, error)
}
