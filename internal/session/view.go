package session

import (
	"context"

	"github.com/robalobadob/sealed2048/internal/game"
	"github.com/robalobadob/sealed2048/internal/progress"
	"github.com/robalobadob/sealed2048/internal/readiness"
	"github.com/robalobadob/sealed2048/internal/sealing"
)

// Unreadable marks a tile whose value could not be unsealed for display.
const Unreadable = -1

// View is what a client renders.
type View struct {
	ID           string                      `json:"id"`
	Mode         string                      `json:"mode"`
	Date         string                      `json:"date,omitempty"`
	Tiles        [game.Size][game.Size]int64 `json:"tiles"`
	SealedTiles  int                         `json:"sealedTiles"`
	Score        uint64                      `json:"score"`
	Moves        int                         `json:"moves"`
	Terminal     bool                        `json:"terminal"`
	MaxTile      uint32                      `json:"maxTile"`
	Readiness    readiness.Status            `json:"readiness"`
	SealingMode  readiness.Mode              `json:"sealingMode"`
	Faults       int                         `json:"faults"`
	Achievements []progress.Achievement      `json:"achievements"`
}

// Snapshot unseals a copy of the board for display. Cells that fail to
// unseal show as Unreadable and are recorded as faults.
func (s *Session) Snapshot(ctx context.Context) View {
	s.mu.RLock()
	v := View{
		ID:           s.id,
		Mode:         s.mode,
		Date:         s.date,
		Score:        s.score,
		Moves:        s.moves,
		Terminal:     s.terminal,
		Achievements: progress.Clone(s.achievements),
	}
	g := s.grid
	s.mu.RUnlock()

	for r := 0; r < game.Size; r++ {
		for c := 0; c < game.Size; c++ {
			h := g[r][c]
			if h.IsZero() {
				continue
			}
			if h.Scheme() != sealing.SchemeMock {
				v.SealedTiles++
			}
			n, err := s.dispatcher.Unseal(ctx, h)
			if err != nil {
				if ctx.Err() == nil {
					s.fault(err)
				}
				v.Tiles[r][c] = Unreadable
				continue
			}
			v.Tiles[r][c] = int64(n)
			if n > v.MaxTile {
				v.MaxTile = n
			}
		}
	}
	v.Readiness = s.machine.Poll()
	v.SealingMode = v.Readiness.State.Mode()
	v.Faults = s.machine.Failures()
	return v
}
