package sealing

import (
	"context"
	"fmt"
)

// Dispatcher is the Sealer a session hands to its engine.
// New values are sealed by the real provider only while active reports true;
// otherwise they go through the mock. Handles are always unsealed by the
// provider family that produced them, so a grid can mix both kinds after a
// mode change.
type Dispatcher struct {
	real   func() Sealer
	active func() bool
	mock   *MockProvider
}

// NewDispatcher builds a dispatcher. real may return nil while no provider is loaded.
func NewDispatcher(real func() Sealer, active func() bool) *Dispatcher {
	return &Dispatcher{real: real, active: active, mock: NewMockProvider()}
}

// Sealed reports whether Seal would currently use the real provider.
func (d *Dispatcher) Sealed() bool {
	return d.active != nil && d.active() && d.real != nil && d.real() != nil
}

func (d *Dispatcher) Seal(ctx context.Context, v uint32) (Handle, error) {
	if d.active != nil && d.active() && d.real != nil {
		if r := d.real(); r != nil {
			return r.Seal(ctx, v)
		}
	}
	return d.mock.Seal(ctx, v)
}

func (d *Dispatcher) Unseal(ctx context.Context, h Handle) (uint32, error) {
	switch h.scheme {
	case SchemeNone:
		return 0, fmt.Errorf("%w: empty cell", ErrUnsealFailure)
	case SchemeMock:
		return d.mock.Unseal(ctx, h)
	}
	var r Sealer
	if d.real != nil {
		r = d.real()
	}
	if r == nil {
		return 0, fmt.Errorf("%w: %w", ErrUnsealFailure, ErrProviderUnavailable)
	}
	return r.Unseal(ctx, h)
}
