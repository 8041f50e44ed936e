package counter

import "context"

// Storage is the key-value store counters are persisted in.
// Get reports ok=false when the key has never been written.
type Storage interface {
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Put(ctx context.Context, key string, value string) error
}

// Incrementer is implemented by storages able to add one to a stored integer atomically.
// Implementations return ErrCorruptValue (possibly wrapped) when the stored value is not an integer.
type Incrementer interface {
	Increment(ctx context.Context, key string) (int64, error)
}
