package sealing

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"strings"
	"time"
)

// MockProvider is the transparent pass-through used in mock mode.
// Handles carry the plaintext; nothing is protected.
type MockProvider struct {
	// PermitTTL is the lifetime of permits when the caller gives no expiry.
	PermitTTL time.Duration
	// Now is the clock used for permits (time.Now when nil).
	Now func() time.Time
}

// NewMockProvider returns a mock provider with a 24h default permit lifetime.
func NewMockProvider() *MockProvider {
	return &MockProvider{PermitTTL: 24 * time.Hour}
}

// Seal wraps v in a mock handle.
func (m *MockProvider) Seal(ctx context.Context, v uint32) (Handle, error) {
	if err := ctx.Err(); err != nil {
		return Handle{}, err
	}
	return Handle{scheme: SchemeMock, payload: binary.AppendUvarint(nil, uint64(v))}, nil
}

// Unseal reads the plaintext back out of a mock handle.
func (m *MockProvider) Unseal(ctx context.Context, h Handle) (uint32, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if h.scheme != SchemeMock {
		return 0, fmt.Errorf("%w: %s handle given to mock provider", ErrUnsealFailure, h.scheme)
	}
	v, n := binary.Uvarint(h.payload)
	if n <= 0 || n != len(h.payload) || v > math.MaxUint32 {
		return 0, fmt.Errorf("%w: malformed mock handle", ErrUnsealFailure)
	}
	return uint32(v), nil
}

// Authorize grants an unsigned permit to any non-empty identity.
func (m *MockProvider) Authorize(ctx context.Context, identity string, opts AuthOptions) (Permit, error) {
	if err := ctx.Err(); err != nil {
		return Permit{}, err
	}
	identity = strings.TrimSpace(identity)
	if identity == "" {
		return Permit{}, fmt.Errorf("%w: empty identity", ErrAuthorizationFailed)
	}
	now := time.Now
	if m.Now != nil {
		now = m.Now
	}
	ttl := opts.Expiry
	if ttl <= 0 {
		ttl = m.PermitTTL
	}
	issued := now().UTC()
	p := Permit{Identity: identity, Environment: opts.Environment, IssuedAt: issued}
	if ttl > 0 {
		p.ExpiresAt = issued.Add(ttl)
	}
	return p, nil
}
