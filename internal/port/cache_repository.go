package port

import (
	"context"
	"time"
)

type LeaseLocker interface {
	// Acquire blocks until the lease for key is held or ctx is done. The
	// returned release func is safe to call once the caller's work ends.
	Acquire(ctx context.Context, key string, ttl time.Duration) (release func(context.Context) error, err error)
}
