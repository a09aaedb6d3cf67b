// internal/session/session.go
//
// One player's game: board, score, achievements and sealing lifecycle.
// Responsibilities:
//   - Serialize moves so two never race on the same board.
//   - Route sealing through the readiness machine (real only when authorized).
//   - Record sealing faults into the machine and keep playing in mock mode.
//   - Expose a display snapshot (tiles, score, terminal flag, readiness, achievements).
//
// Only EnableSealing and Claim report sealing problems to the caller; every
// other operation absorbs them into the readiness status.

package session

import (
	"context"
	crand "crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/semaphore"

	"github.com/robalobadob/sealed2048/internal/game"
	"github.com/robalobadob/sealed2048/internal/metrics"
	"github.com/robalobadob/sealed2048/internal/progress"
	"github.com/robalobadob/sealed2048/internal/readiness"
	"github.com/robalobadob/sealed2048/internal/sealing"
)

const (
	ModeClassic = "classic"
	ModeDaily   = "daily"
)

// ErrSealingNotEnabled wraps the sealing sentinel explaining why.
var ErrSealingNotEnabled = errors.New("sealing not enabled")

// Backend is the shared sealing provider handle. *sealing.Loader implements it.
type Backend interface {
	readiness.Environment
	Sealer() sealing.Sealer
}

// PermitVerifier is implemented by backends that can check a cached permit.
type PermitVerifier interface {
	VerifyPermit(p sealing.Permit, now time.Time) error
}

// Minter records claimed achievements somewhere durable.
type Minter interface {
	Mint(ctx context.Context, c progress.Claim) error
}

// Result describes a finished game.
type Result struct {
	SessionID  string
	Mode       string
	Owner      string
	Date       string
	Score      uint64
	MaxTile    uint32
	Moves      int
	Sealed     bool
	FinishedAt time.Time
}

// Config configures New. Zero values get sensible defaults.
type Config struct {
	ID      string
	Mode    string
	Owner   string
	Date    string
	Catalog []progress.Achievement

	// Rand returns the randomness for a fresh board; it is called again on Restart.
	Rand     func() game.Rand
	Minter   Minter
	OnFinish func(ctx context.Context, r Result)
	Now      func() time.Time
	Machine  []readiness.Option
}

// Session is safe for concurrent use.
type Session struct {
	id      string
	mode    string
	owner   string
	date    string
	now     func() time.Time
	newRand func() game.Rand

	backend    Backend
	machine    *readiness.Machine
	dispatcher *sealing.Dispatcher
	tracker    *progress.Tracker
	minter     Minter
	onFinish   func(context.Context, Result)

	// turn is held for the whole of a move, restart or claim.
	turn *semaphore.Weighted

	mu           sync.RWMutex
	engine       *game.Engine
	grid         game.Grid
	score        uint64
	moves        int
	terminal     bool
	finished     bool
	achievements []progress.Achievement
}

// New creates a session with two spawned tiles. backend may be nil, in
// which case the session plays in mock mode once booting times out.
func New(ctx context.Context, backend Backend, cfg Config) (*Session, error) {
	s := &Session{
		id:       cfg.ID,
		mode:     cfg.Mode,
		owner:    cfg.Owner,
		date:     cfg.Date,
		now:      cfg.Now,
		newRand:  cfg.Rand,
		backend:  backend,
		minter:   cfg.Minter,
		onFinish: cfg.OnFinish,
		turn:     semaphore.NewWeighted(1),
	}
	if s.id == "" {
		s.id = uuid.NewString()
	}
	if s.mode == "" {
		s.mode = ModeClassic
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.newRand == nil {
		s.newRand = randomSource
	}

	opts := append([]readiness.Option{readiness.WithObserver(s.observe)}, cfg.Machine...)
	s.machine = readiness.New(backend, opts...)
	s.dispatcher = sealing.NewDispatcher(s.realSealer, func() bool {
		return s.machine.Mode() == readiness.ModeSealed
	})
	s.tracker = progress.NewTracker(s.dispatcher)
	s.machine.Poll()

	catalog := cfg.Catalog
	if catalog == nil {
		var err error
		if catalog, err = progress.DefaultCatalog(); err != nil {
			return nil, err
		}
	}
	s.achievements = progress.Fresh(catalog)

	if err := s.reset(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Session) realSealer() sealing.Sealer {
	if s.backend == nil {
		return nil
	}
	return s.backend.Sealer()
}

func randomSource() game.Rand {
	var seed [16]byte
	_, _ = crand.Read(seed[:])
	return rand.New(rand.NewPCG(binary.LittleEndian.Uint64(seed[:8]), binary.LittleEndian.Uint64(seed[8:])))
}

// DailyRand is a deterministic source for daily boards.
func DailyRand(seed uint64) func() game.Rand {
	return func() game.Rand {
		return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	}
}

func (s *Session) ID() string    { return s.id }
func (s *Session) Mode() string  { return s.mode }
func (s *Session) Owner() string { return s.owner }

// Machine exposes the readiness machine for polling loops.
func (s *Session) Machine() *readiness.Machine { return s.machine }

// reset builds a fresh board. Callers hold turn, or own s exclusively.
func (s *Session) reset(ctx context.Context) error {
	engine := game.NewEngine(s.dispatcher, s.newRand())
	var g game.Grid
	for i := 0; i < 2; i++ {
		next, err := engine.SpawnRandomTile(ctx, g)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			s.fault(err)
		}
		g = next
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.engine = engine
	s.grid = g
	s.score = 0
	s.moves = 0
	s.terminal = false
	s.finished = false
	s.achievements = progress.Fresh(s.achievements)
	return nil
}

// MoveOutcome summarizes one Move call.
type MoveOutcome struct {
	Changed    bool   `json:"changed"`
	ScoreDelta uint64 `json:"scoreDelta"`
	Terminal   bool   `json:"terminal"`
}

// Move slides the board. A changed board gets a new tile. If ctx ends
// before the move completes nothing changes and ctx.Err() is returned.
func (s *Session) Move(ctx context.Context, dir game.Direction) (MoveOutcome, error) {
	if err := s.turn.Acquire(ctx, 1); err != nil {
		return MoveOutcome{}, err
	}
	defer s.turn.Release(1)

	s.mu.RLock()
	g, engine, terminal, list := s.grid, s.engine, s.terminal, s.achievements
	s.mu.RUnlock()
	if terminal {
		return MoveOutcome{Terminal: true}, nil
	}

	start := time.Now()
	res, err := engine.Move(ctx, g, dir)
	if errors.Is(err, game.ErrBadDirection) {
		return MoveOutcome{}, err
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return MoveOutcome{}, ctxErr
	}
	s.fault(err)
	if !res.Changed {
		metrics.ObserveMove(string(s.machine.Mode()), false, 0, time.Since(start))
		return MoveOutcome{}, nil
	}

	next, err := engine.SpawnRandomTile(ctx, res.Grid)
	if ctxErr := ctx.Err(); ctxErr != nil {
		return MoveOutcome{}, ctxErr
	}
	s.fault(err)

	list, err = s.tracker.Evaluate(ctx, next, list)
	s.fault(err)
	done, err := engine.IsTerminal(ctx, next)
	if ctxErr := ctx.Err(); ctxErr != nil {
		return MoveOutcome{}, ctxErr
	}
	s.fault(err)

	s.mu.Lock()
	s.grid = next
	s.score += res.ScoreDelta
	s.moves++
	s.terminal = done
	s.achievements = list
	finish := done && !s.finished
	if finish {
		s.finished = true
	}
	score, moves := s.score, s.moves
	s.mu.Unlock()

	metrics.ObserveMove(string(s.machine.Mode()), true, res.Merges, time.Since(start))
	if finish {
		s.finish(ctx, next, score, moves)
	}
	return MoveOutcome{Changed: true, ScoreDelta: res.ScoreDelta, Terminal: done}, nil
}

func (s *Session) finish(ctx context.Context, g game.Grid, score uint64, moves int) {
	top, err := game.MaxValue(ctx, s.dispatcher, g)
	s.fault(err)
	sealed := s.dispatcher.Sealed()
	metrics.ObserveFinished(s.mode, sealed)
	log.Info().
		Str("gameId", s.id).
		Str("mode", s.mode).
		Uint64("score", score).
		Uint32("maxTile", top).
		Int("moves", moves).
		Msg("game finished")
	if s.onFinish == nil {
		return
	}
	s.onFinish(ctx, Result{
		SessionID:  s.id,
		Mode:       s.mode,
		Owner:      s.owner,
		Date:       s.date,
		Score:      score,
		MaxTile:    top,
		Moves:      moves,
		Sealed:     sealed,
		FinishedAt: s.now(),
	})
}

// Restart replaces the board. Claimed achievements stay claimed.
func (s *Session) Restart(ctx context.Context) error {
	if err := s.turn.Acquire(ctx, 1); err != nil {
		return err
	}
	defer s.turn.Release(1)
	return s.reset(ctx)
}

// EnableSealing authorizes the provider for creds. On anything other than
// authorized the returned error wraps the matching sealing sentinel.
func (s *Session) EnableSealing(ctx context.Context, creds readiness.Credentials) (readiness.Status, error) {
	s.machine.Poll()
	st := s.machine.Authorize(ctx, creds)
	if st.State == readiness.StateAuthorized {
		return st, nil
	}
	if st.State == readiness.StateFailed {
		metrics.ObserveFault("authorize")
	}
	return st, statusError(st)
}

func statusError(st readiness.Status) error {
	var base error
	switch st.State {
	case readiness.StateAuthorized:
		return nil
	case readiness.StateUnavailable, readiness.StateBooting, readiness.StateMock:
		base = sealing.ErrProviderUnavailable
	case readiness.StateNeedsAuthorization, readiness.StateAvailable, readiness.StateAuthorizing:
		base = sealing.ErrAuthorizationRequired
	default:
		base = sealing.ErrAuthorizationFailed
	}
	if st.LastError == "" {
		return fmt.Errorf("%w: %w (%s)", ErrSealingNotEnabled, base, st.State)
	}
	return fmt.Errorf("%w: %w: %s", ErrSealingNotEnabled, base, st.LastError)
}

// ResetAuthorization drops the permit and supersedes any pending authorize.
func (s *Session) ResetAuthorization() readiness.Status {
	return s.machine.Reset()
}

// Claim marks an unlocked achievement claimed and hands it to the minter.
// It requires an authorized session holding a valid permit. Claiming an
// already claimed achievement returns it unchanged.
func (s *Session) Claim(ctx context.Context, id string) (progress.Achievement, error) {
	if err := s.turn.Acquire(ctx, 1); err != nil {
		return progress.Achievement{}, err
	}
	defer s.turn.Release(1)

	st := s.machine.Poll()
	permit, ok := s.machine.Permit()
	if st.State != readiness.StateAuthorized || !ok {
		return progress.Achievement{}, statusError(st)
	}
	if v, ok := s.backend.(PermitVerifier); ok {
		if err := v.VerifyPermit(permit, s.now()); err != nil {
			err = fmt.Errorf("%w: %w", sealing.ErrAuthorizationFailed, err)
			s.machine.Fail(err)
			metrics.ObserveFault("authorize")
			return progress.Achievement{}, err
		}
	}

	s.mu.RLock()
	list := s.achievements
	s.mu.RUnlock()

	current, found := progress.Find(list, id)
	if found && current.Claimed {
		return current, nil
	}
	updated, err := progress.MarkClaimed(list, id)
	if err != nil {
		return current, err
	}
	claimed, _ := progress.Find(updated, id)

	if s.minter != nil {
		err := s.minter.Mint(ctx, progress.Claim{
			Identity:    permit.Identity,
			SessionID:   s.id,
			Achievement: claimed,
			ClaimedAt:   s.now(),
		})
		if err != nil {
			return current, fmt.Errorf("mint %s: %w", id, err)
		}
	}

	s.mu.Lock()
	s.achievements = updated
	s.mu.Unlock()
	log.Info().Str("gameId", s.id).Str("achievement", id).Str("identity", permit.Identity).Msg("achievement claimed")
	return claimed, nil
}

// Poll advances the readiness machine.
func (s *Session) Poll() readiness.Status { return s.machine.Poll() }

// Watch polls until booting resolves or the boot timeout passes.
func (s *Session) Watch(ctx context.Context, interval time.Duration) readiness.Status {
	return s.machine.Watch(ctx, interval)
}

// PlayUnsealed drops to mock mode on the player's request. Tiles already
// sealed stay readable; new ones are mock until sealing is enabled again.
func (s *Session) PlayUnsealed() readiness.Status {
	return s.machine.Fallback("mock mode chosen by player")
}

// fault records sealing errors from play. Cancellation is not a fault.
func (s *Session) fault(err error) {
	if err == nil || errors.Is(err, context.Canceled) {
		return
	}
	switch {
	case errors.Is(err, sealing.ErrSealFailure):
		metrics.ObserveFault("seal")
	case errors.Is(err, sealing.ErrOperationTimeout):
		metrics.ObserveFault("timeout")
	default:
		metrics.ObserveFault("unseal")
	}
	st := s.machine.RecordFailure(err)
	log.Warn().Err(err).Str("gameId", s.id).Str("state", string(st.State)).Msg("sealing fault")
}

func (s *Session) observe(from, to readiness.State, st readiness.Status) {
	metrics.ObserveTransition(string(from), string(to))
	ev := log.Info().Str("gameId", s.id).Str("from", string(from)).Str("to", string(to))
	if st.LastError != "" {
		ev = ev.Str("lastError", st.LastError)
	}
	ev.Msg("readiness transition")
}
