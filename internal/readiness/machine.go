package readiness

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/robalobadob/sealed2048/internal/sealing"
)

const (
	DefaultBootTimeout  = 8 * time.Second
	DefaultCallTimeout  = 15 * time.Second
	DefaultPollInterval = 250 * time.Millisecond
)

// Environment is what the machine samples on every poll.
// *sealing.Loader implements it.
type Environment interface {
	Attached() bool
	Availability() sealing.Availability
	Authorizer() sealing.Authorizer
}

// Credentials is an authorization request.
type Credentials struct {
	Identity    string
	Environment string
	Expiry      time.Duration
}

// Observer is told about every state change. Observers run with the
// machine locked and must not call back into it.
type Observer func(from, to State, st Status)

// Option configures a Machine.
type Option func(*Machine)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option { return func(m *Machine) { m.now = now } }

// WithBootTimeout bounds how long booting may last without a signal.
func WithBootTimeout(d time.Duration) Option { return func(m *Machine) { m.bootTimeout = d } }

// WithCallTimeout bounds a single provider authorization call.
func WithCallTimeout(d time.Duration) Option { return func(m *Machine) { m.callTimeout = d } }

// WithObserver registers a transition observer.
func WithObserver(o Observer) Option {
	return func(m *Machine) { m.observers = append(m.observers, o) }
}

// Machine tracks availability and authorization of the sealing provider.
// All operations are total: they always land in a named state and report
// problems through Status.LastError instead of returning errors.
type Machine struct {
	mu          sync.Mutex
	env         Environment
	now         func() time.Time
	bootTimeout time.Duration
	callTimeout time.Duration
	observers   []Observer

	state    State
	lastErr  string
	gen      uint64
	since    time.Time
	bootedAt time.Time
	permit   *sealing.Permit
	failures int
}

var errStillBooting = errors.New("still booting")

// New returns a machine in the booting state. env may be nil, in which case
// the machine times out into sealing-unavailable.
func New(env Environment, opts ...Option) *Machine {
	m := &Machine{
		env:         env,
		now:         time.Now,
		bootTimeout: DefaultBootTimeout,
		callTimeout: DefaultCallTimeout,
		state:       StateBooting,
	}
	for _, o := range opts {
		o(m)
	}
	m.bootedAt = m.now()
	m.since = m.bootedAt
	return m
}

// Status returns the current snapshot.
func (m *Machine) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status()
}

// Mode reports whether new values should be sealed for real.
func (m *Machine) Mode() Mode {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.Mode()
}

// Permit returns the cached authorization artifact, if any.
func (m *Machine) Permit() (sealing.Permit, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.permit == nil {
		return sealing.Permit{}, false
	}
	return *m.permit, true
}

// Failures counts faults recorded through RecordFailure.
func (m *Machine) Failures() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.failures
}

// Poll samples the environment and advances the lifecycle.
func (m *Machine) Poll() Status {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch m.state {
	case StateBooting, StateUnavailable:
		switch m.availability() {
		case sealing.AvailabilityLoaded:
			m.transition(StateAvailable, nil)
		case sealing.AvailabilityFailed:
			m.transition(StateUnavailable, fmt.Errorf("%w: loader reported failure", sealing.ErrProviderUnavailable))
		default:
			if m.state == StateBooting && m.now().Sub(m.bootedAt) >= m.bootTimeout {
				m.transition(StateUnavailable, fmt.Errorf("%w: no signal after %s", sealing.ErrProviderUnavailable, m.bootTimeout))
			}
		}
	case StateAvailable:
		if m.availability() == sealing.AvailabilityLoaded {
			m.transition(StateNeedsAuthorization, nil)
		} else {
			m.transition(StateUnavailable, fmt.Errorf("%w: provider went away", sealing.ErrProviderUnavailable))
		}
	case StateAuthorized:
		if m.permit != nil && m.permit.Expired(m.now()) {
			m.permit = nil
			m.transition(StateNeedsAuthorization, fmt.Errorf("%w: permit expired", sealing.ErrAuthorizationRequired))
		}
	}
	return m.status()
}

// Watch re-polls every interval until booting ends or the boot timeout
// passes, then forces sealing-unavailable if a signal never arrived.
func (m *Machine) Watch(ctx context.Context, interval time.Duration) Status {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	b := retry.NewConstant(interval)
	err := retry.Do(ctx, retry.WithMaxDuration(m.bootTimeout, b), func(ctx context.Context) error {
		if st := m.Poll(); st.State == StateBooting {
			return retry.RetryableError(errStillBooting)
		}
		return nil
	})
	if err != nil {
		m.giveUp(err)
	}
	return m.Poll()
}

func (m *Machine) giveUp(cause error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == StateBooting {
		m.transition(StateUnavailable, fmt.Errorf("%w: stopped waiting: %v", sealing.ErrProviderUnavailable, cause))
	}
}

// Authorize requests a permit for creds.Identity. The machine lock is not
// held during the provider call; if Authorize, Reset or Fallback runs in the
// meantime this call's result is discarded, even when the later Authorize
// stopped early for a missing provider or identity.
func (m *Machine) Authorize(ctx context.Context, creds Credentials) Status {
	m.mu.Lock()
	if m.state == StateFailed {
		defer m.mu.Unlock()
		return m.status()
	}
	auth := m.authorizer()
	if auth == nil {
		m.gen++
		m.permit = nil
		m.transition(StateUnavailable, fmt.Errorf("%w: cannot authorize", sealing.ErrProviderUnavailable))
		defer m.mu.Unlock()
		return m.status()
	}
	identity := strings.TrimSpace(creds.Identity)
	if identity == "" {
		m.gen++
		m.permit = nil
		m.transition(StateNeedsAuthorization, fmt.Errorf("%w: connect an identity first", sealing.ErrAuthorizationRequired))
		defer m.mu.Unlock()
		return m.status()
	}
	m.gen++
	gen := m.gen
	m.permit = nil
	m.transition(StateAuthorizing, nil)
	timeout := m.callTimeout
	m.mu.Unlock()

	permit, err := sealing.Await(ctx, timeout, "authorize", func(ctx context.Context) (sealing.Permit, error) {
		return auth.Authorize(ctx, identity, sealing.AuthOptions{Environment: creds.Environment, Expiry: creds.Expiry})
	})

	m.mu.Lock()
	defer m.mu.Unlock()
	if gen != m.gen {
		return m.status()
	}
	switch {
	case err == nil:
		m.permit = &permit
		m.transition(StateAuthorized, nil)
	case errors.Is(err, context.Canceled):
		m.transition(StateNeedsAuthorization, fmt.Errorf("%w: request cancelled", sealing.ErrAuthorizationRequired))
	case errors.Is(err, sealing.ErrOperationTimeout), errors.Is(err, sealing.ErrAuthorizationFailed):
		m.transition(StateFailed, err)
	case errors.Is(err, context.DeadlineExceeded):
		m.transition(StateFailed, fmt.Errorf("%w: %v", sealing.ErrOperationTimeout, err))
	default:
		m.transition(StateFailed, fmt.Errorf("%w: %v", sealing.ErrAuthorizationFailed, err))
	}
	return m.status()
}

// Reset drops the cached permit and supersedes any pending authorization.
func (m *Machine) Reset() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gen++
	m.permit = nil
	if m.availability() == sealing.AvailabilityLoaded {
		m.transition(StateAvailable, nil)
	} else {
		m.transition(StateMock, fmt.Errorf("%w: playing unsealed", sealing.ErrProviderUnavailable))
	}
	return m.status()
}

// Fallback switches to mock mode, recording reason when non-empty.
func (m *Machine) Fallback(reason string) Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gen++
	m.permit = nil
	var err error
	if reason != "" {
		err = errors.New(reason)
	}
	m.transition(StateMock, err)
	return m.status()
}

// Fail moves to failed. Only Reset leaves it.
func (m *Machine) Fail(err error) Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gen++
	m.permit = nil
	m.transition(StateFailed, err)
	return m.status()
}

// RecordFailure stores a sealing fault seen during play. A fault while
// authorized degrades the session to mock mode.
func (m *Machine) RecordFailure(err error) Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		return m.status()
	}
	m.failures++
	if m.state == StateAuthorized {
		m.gen++
		m.permit = nil
		m.transition(StateMock, err)
		return m.status()
	}
	m.lastErr = err.Error()
	return m.status()
}

func (m *Machine) availability() sealing.Availability {
	if m.env == nil {
		return sealing.AvailabilityPending
	}
	a := m.env.Availability()
	if a == sealing.AvailabilityLoaded && !m.env.Attached() {
		return sealing.AvailabilityPending
	}
	return a
}

func (m *Machine) authorizer() sealing.Authorizer {
	if m.availability() != sealing.AvailabilityLoaded {
		return nil
	}
	return m.env.Authorizer()
}

// transition must be called with mu held. A nil err clears LastError.
func (m *Machine) transition(to State, err error) {
	if err != nil {
		m.lastErr = err.Error()
	} else {
		m.lastErr = ""
	}
	if to == m.state {
		return
	}
	from := m.state
	m.state = to
	m.since = m.now()
	st := m.status()
	for _, o := range m.observers {
		o(from, to, st)
	}
}

func (m *Machine) status() Status {
	return Status{State: m.state, LastError: m.lastErr, Generation: m.gen, Since: m.since}
}
