package sealing

import (
	"context"
	"errors"
	"time"
)

// Sealer converts tile values to and from opaque handles.
// Implementations may block (remote or simulated latency); callers pass a
// context to bound the wait.
type Sealer interface {
	Seal(ctx context.Context, v uint32) (Handle, error)
	Unseal(ctx context.Context, h Handle) (uint32, error)
}

// AuthOptions parameterises an authorization request.
type AuthOptions struct {
	Environment string        // e.g. "testnet"
	Expiry      time.Duration // permit lifetime; zero means provider default
}

// Permit is the authorization artifact returned by a provider.
type Permit struct {
	Identity    string    `json:"identity"`
	Environment string    `json:"environment"`
	Token       string    `json:"-"`
	IssuedAt    time.Time `json:"issuedAt"`
	ExpiresAt   time.Time `json:"expiresAt"`
}

// Expired reports whether the permit is no longer valid at now.
func (p Permit) Expired(now time.Time) bool {
	return !p.ExpiresAt.IsZero() && !now.Before(p.ExpiresAt)
}

// Authorizer grants permits to a connected identity.
type Authorizer interface {
	Authorize(ctx context.Context, identity string, opts AuthOptions) (Permit, error)
}

// Provider is the full sealing capability.
type Provider interface {
	Sealer
	Authorizer
}

// Availability is the tri-state loader signal.
type Availability int

const (
	AvailabilityPending Availability = iota
	AvailabilityLoaded
	AvailabilityFailed
)

func (a Availability) String() string {
	switch a {
	case AvailabilityLoaded:
		return "loaded"
	case AvailabilityFailed:
		return "failed"
	default:
		return "pending"
	}
}

// Error taxonomy. Callers classify with errors.Is.
var (
	ErrProviderUnavailable   = errors.New("sealing provider unavailable")
	ErrAuthorizationRequired = errors.New("authorization required")
	ErrAuthorizationFailed   = errors.New("authorization failed")
	ErrOperationTimeout      = errors.New("sealing operation timed out")
	ErrUnsealFailure         = errors.New("unseal failed")
	ErrSealFailure           = errors.New("seal failed")
)

// IsAddress reports whether s looks like a 0x-prefixed 20-byte hex address.
func IsAddress(s string) bool {
	if len(s) != 42 || s[0] != '0' || (s[1] != 'x' && s[1] != 'X') {
		return false
	}
	for _, r := range s[2:] {
		switch {
		case r >= '0' && r <= '9', r >= 'a' && r <= 'f', r >= 'A' && r <= 'F':
		default:
			return false
		}
	}
	return true
}

// pause waits for d or until ctx is done.
func pause(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
