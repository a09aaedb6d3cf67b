// internal/sealing/loader.go
//
// Process-wide provider loader.
// The loader is resolved once at startup and passed to every session. It
// exposes the two environment signals the readiness machine samples:
//   - Attached():     a provider object exists.
//   - Availability(): pending until a seal/unseal self-test finishes, then
//                     loaded or failed.

package sealing

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Loader attaches a provider in the background and reports its state.
type Loader struct {
	mu       sync.RWMutex
	raw      Provider // as opened, used for permit verification
	provider Provider // raw wrapped with the call deadline
	state    Availability
	err      error
	done     chan struct{}
}

// NewLoader returns a loader with nothing attached.
func NewLoader() *Loader {
	return &Loader{done: make(chan struct{})}
}

// Ready returns a loader that already holds p.
func Ready(p Provider) *Loader {
	l := NewLoader()
	l.raw, l.provider, l.state = p, p, AvailabilityLoaded
	close(l.done)
	return l
}

// Start opens the provider after delay, attaches it and runs a self-test.
// It returns immediately; Done is closed once the outcome is known.
func (l *Loader) Start(ctx context.Context, delay, callTimeout time.Duration, open func(context.Context) (Provider, error)) {
	go func() {
		defer close(l.done)
		if err := pause(ctx, delay); err != nil {
			l.finish(AvailabilityFailed, fmt.Errorf("%w: %v", ErrProviderUnavailable, err))
			return
		}
		raw, err := open(ctx)
		if err != nil {
			l.finish(AvailabilityFailed, fmt.Errorf("%w: %v", ErrProviderUnavailable, err))
			return
		}
		p := WithDeadline(raw, callTimeout)

		l.mu.Lock()
		l.raw, l.provider = raw, p
		l.mu.Unlock()

		if err := selfTest(ctx, p); err != nil {
			l.finish(AvailabilityFailed, err)
			return
		}
		l.finish(AvailabilityLoaded, nil)
	}()
}

func (l *Loader) finish(a Availability, err error) {
	l.mu.Lock()
	l.state, l.err = a, err
	l.mu.Unlock()
	if err != nil {
		log.Warn().Err(err).Msg("sealing provider failed to load")
		return
	}
	log.Info().Msg("sealing provider loaded")
}

func selfTest(ctx context.Context, p Sealer) error {
	const selfTestValue = 2048
	h, err := p.Seal(ctx, selfTestValue)
	if err != nil {
		return fmt.Errorf("%w: self-test seal: %v", ErrProviderUnavailable, err)
	}
	v, err := p.Unseal(ctx, h)
	if err != nil {
		return fmt.Errorf("%w: self-test unseal: %v", ErrProviderUnavailable, err)
	}
	if v != selfTestValue {
		return fmt.Errorf("%w: self-test returned %d", ErrProviderUnavailable, v)
	}
	return nil
}

// Attached reports whether a provider object exists.
func (l *Loader) Attached() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.provider != nil
}

// Availability reports the loader signal.
func (l *Loader) Availability() Availability {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state
}

// Err returns the load failure, if any.
func (l *Loader) Err() error {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.err
}

// Done is closed when loading has finished either way.
func (l *Loader) Done() <-chan struct{} { return l.done }

// Sealer returns the loaded provider, or nil until loading succeeds.
func (l *Loader) Sealer() Sealer {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.state != AvailabilityLoaded {
		return nil
	}
	return l.provider
}

// Authorizer returns the loaded provider, or nil until loading succeeds.
func (l *Loader) Authorizer() Authorizer {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.state != AvailabilityLoaded {
		return nil
	}
	return l.provider
}

// VerifyPermit checks p against the provider that issued it.
// Providers without signed permits only get an expiry check.
func (l *Loader) VerifyPermit(p Permit, now time.Time) error {
	if p.Expired(now) {
		return fmt.Errorf("%w: permit expired", ErrAuthorizationRequired)
	}
	l.mu.RLock()
	raw := l.raw
	l.mu.RUnlock()
	v, ok := raw.(interface {
		VerifyPermit(string) (Permit, error)
	})
	if !ok {
		return nil
	}
	got, err := v.VerifyPermit(p.Token)
	if err != nil {
		return err
	}
	if !strings.EqualFold(got.Identity, p.Identity) {
		return fmt.Errorf("%w: permit identity mismatch", ErrAuthorizationRequired)
	}
	return nil
}

// BootOptions selects and configures the provider opened by Boot.
type BootOptions struct {
	Mode         string // "aead", "mock" or "off"
	Secret       []byte
	Environments []string
	MaxPermit    time.Duration
	Latency      time.Duration
	LoadDelay    time.Duration
	CallTimeout  time.Duration
}

// Boot starts a loader for opts.Mode. Mode "off" never attaches anything,
// which leaves sessions to time out into mock play.
func Boot(ctx context.Context, opts BootOptions) *Loader {
	l := NewLoader()
	switch strings.ToLower(opts.Mode) {
	case "off":
		log.Info().Msg("sealing disabled; sessions will fall back to mock mode")
	case "mock":
		l.Start(ctx, opts.LoadDelay, opts.CallTimeout, func(context.Context) (Provider, error) {
			m := NewMockProvider()
			if opts.MaxPermit > 0 {
				m.PermitTTL = opts.MaxPermit
			}
			return m, nil
		})
	case "aead", "":
		l.Start(ctx, opts.LoadDelay, opts.CallTimeout, func(context.Context) (Provider, error) {
			return NewAEADProvider(AEADConfig{
				Secret:       opts.Secret,
				Environments: opts.Environments,
				MaxPermit:    opts.MaxPermit,
				Latency:      opts.Latency,
			})
		})
	default:
		l.Start(ctx, 0, 0, func(context.Context) (Provider, error) {
			return nil, errors.New("unknown sealing mode " + opts.Mode)
		})
	}
	return l
}
