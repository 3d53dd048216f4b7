package revocation

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/Skotchmaster/usergate/internal/logging"
)

const DefaultTimeout = 500 * time.Millisecond

// Store is a blacklist of token identifiers. Implementations must never
// report a jti as revoked once ttl has elapsed since Revoke.
type Store interface {
	Revoke(ctx context.Context, jti string, ttl time.Duration) error
	IsRevoked(ctx context.Context, jti string) (bool, error)
}

// Guard applies the fail-open policy on top of a Store: a backend that
// cannot answer in time is treated as "not revoked". Every such decision is
// logged and counted so that it shows up in monitoring.
type Guard struct {
	store    Store
	timeout  time.Duration
	failOpen atomic.Int64
	failures atomic.Int64
}

func NewGuard(store Store, timeout time.Duration) *Guard {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Guard{store: store, timeout: timeout}
}

func (g *Guard) IsRevoked(ctx context.Context, jti string) bool {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	revoked, err := g.store.IsRevoked(ctx, jti)
	if err != nil {
		n := g.failOpen.Add(1)
		logging.FromContext(ctx).Error("revocation_check_failed",
			"policy", "fail_open", "jti", jti, "fail_open_total", n, "error", err)
		return false
	}
	return revoked
}

// Revoke blacklists jti for ttl. A non-positive ttl means the token is
// already expired and nothing is stored.
func (g *Guard) Revoke(ctx context.Context, jti string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	if err := g.store.Revoke(ctx, jti, ttl); err != nil {
		g.failures.Add(1)
		return err
	}
	return nil
}

type Stats struct {
	FailOpen       int64 `json:"revocation_fail_open"`
	RevokeFailures int64 `json:"revocation_revoke_failures"`
}

func (g *Guard) Stats() Stats {
	return Stats{
		FailOpen:       g.failOpen.Load(),
		RevokeFailures: g.failures.Load(),
	}
}
