// internal/store/memory.go
//
// In-memory store of live game sessions.
// Sessions are ephemeral: they live in a size-bounded LRU and are lost on
// restart. Finished results are persisted separately by internal/scores.
//
// Characteristics:
//   - Keyed by session ID.
//   - Least recently used sessions are evicted once capacity is reached.
//   - Safe for concurrent use (the LRU is internally locked).

package store

import (
	"context"
	"errors"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog/log"

	"github.com/robalobadob/sealed2048/internal/metrics"
	"github.com/robalobadob/sealed2048/internal/session"
)

// DefaultCapacity bounds the number of live sessions.
const DefaultCapacity = 10000

// ErrNotFound is returned by Get for unknown or evicted sessions.
var ErrNotFound = errors.New("not found")

// Store defines the persistence interface for live sessions.
type Store interface {
	// Save persists or refreshes a session.
	Save(ctx context.Context, s *session.Session) error

	// Get retrieves a session by ID.
	Get(ctx context.Context, id string) (*session.Session, error)

	// Len reports how many sessions are held.
	Len() int
}

type memory struct {
	sessions *lru.Cache[string, *session.Session]
}

// NewMemoryStore builds an LRU-bounded store. capacity <= 0 uses DefaultCapacity.
func NewMemoryStore(capacity int) (Store, error) {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	c, err := lru.NewWithEvict(capacity, func(id string, _ *session.Session) {
		log.Debug().Str("gameId", id).Msg("session evicted")
	})
	if err != nil {
		return nil, err
	}
	return &memory{sessions: c}, nil
}

func (m *memory) Save(ctx context.Context, s *session.Session) error {
	m.sessions.Add(s.ID(), s)
	metrics.SetLiveSessions(m.sessions.Len())
	return nil
}

func (m *memory) Get(ctx context.Context, id string) (*session.Session, error) {
	if s, ok := m.sessions.Get(id); ok {
		return s, nil
	}
	return nil, ErrNotFound
}

func (m *memory) Len() int {
	return m.sessions.Len()
}
