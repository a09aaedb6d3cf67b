// internal/game/engine.go
//
// Core game engine for a sliding-tile board of sealed values.
// Responsibilities:
//   - Spawn tiles (2 with p=0.9, otherwise 4) on a random empty cell.
//   - Slide and merge along a direction using the classic single-pass rule.
//   - Detect terminal boards (no empty cell, no equal neighbours).
//
// Notes:
//   - Every value is unsealed before it is compared and sealed before it is
//     stored; the engine never inspects a handle directly.
//   - Operations take a Grid by value and return a new one.
//   - A non-nil error from Spawn/Move/IsTerminal reports sealing faults; the
//     returned board is still consistent. Faults degrade to "no merge".
//     Context cancellation returns the input board untouched.

package game

import (
	"context"
	"fmt"

	"github.com/hashicorp/go-multierror"

	"github.com/robalobadob/sealed2048/internal/sealing"
)

// Rand is the randomness the engine needs. *math/rand/v2.Rand satisfies it.
type Rand interface {
	IntN(n int) int
	Float64() float64
}

// FourProbability is the chance a spawned tile is a 4.
const FourProbability = 0.1

// Engine runs board operations against an injected Sealer.
type Engine struct {
	sealer sealing.Sealer
	rng    Rand
}

// NewEngine binds an engine to a sealer and a randomness source.
func NewEngine(s sealing.Sealer, rng Rand) *Engine {
	return &Engine{sealer: s, rng: rng}
}

// SpawnRandomTile places a sealed 2 or 4 on a uniformly chosen empty cell.
// A full board is returned unchanged.
func (e *Engine) SpawnRandomTile(ctx context.Context, g Grid) (Grid, error) {
	empty := g.EmptyCells()
	if len(empty) == 0 {
		return g, nil
	}
	p := empty[e.rng.IntN(len(empty))]
	v := uint32(2)
	if e.rng.Float64() < FourProbability {
		v = 4
	}
	h, err := e.sealer.Seal(ctx, v)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return g, ctxErr
		}
		return g, fmt.Errorf("spawn at %d,%d: %w", p.Row, p.Col, err)
	}
	g[p.Row][p.Col] = h
	return g, nil
}

// Move slides the board in dir. The board is rotated so dir becomes "left",
// each row is compacted and merged, then the board is rotated back.
func (e *Engine) Move(ctx context.Context, g Grid, dir Direction) (MoveResult, error) {
	k, ok := dir.turns()
	if !ok {
		return MoveResult{Grid: g}, ErrBadDirection
	}
	work := rotate(g, k)

	var faults *multierror.Error
	var res MoveResult
	for r := 0; r < Size; r++ {
		row, delta, merges, err := e.slideRow(ctx, work[r])
		if err != nil {
			faults = multierror.Append(faults, fmt.Errorf("row %d: %w", r, err))
		}
		work[r] = row
		res.ScoreDelta += delta
		res.Merges += merges
	}
	if err := ctx.Err(); err != nil {
		return MoveResult{Grid: g}, err
	}

	res.Grid = rotate(work, (4-k)%4)
	res.Changed = !res.Grid.Equal(g)
	return res, faults.ErrorOrNil()
}

// slideRow compacts row toward index 0 and merges equal neighbours once.
// Each cell is unsealed at most once, in order.
func (e *Engine) slideRow(ctx context.Context, row [Size]sealing.Handle) ([Size]sealing.Handle, uint64, int, error) {
	cells := make([]sealing.Handle, 0, Size)
	for _, h := range row {
		if !h.IsZero() {
			cells = append(cells, h)
		}
	}

	var faults *multierror.Error
	vals := make([]uint32, len(cells))
	known := make([]bool, len(cells))
	tried := make([]bool, len(cells))
	value := func(i int) (uint32, bool) {
		if !tried[i] {
			tried[i] = true
			v, err := e.sealer.Unseal(ctx, cells[i])
			if err != nil {
				faults = multierror.Append(faults, err)
			} else {
				vals[i], known[i] = v, true
			}
		}
		return vals[i], known[i]
	}

	var out [Size]sealing.Handle
	var delta uint64
	merges := 0
	j := 0
	for i := 0; i < len(cells); {
		if i+1 < len(cells) {
			a, okA := value(i)
			b, okB := value(i + 1)
			if okA && okB && a == b {
				merged, err := e.sealer.Seal(ctx, a*2)
				if err == nil {
					out[j] = merged
					delta += uint64(a) * 2
					merges++
					j++
					i += 2
					continue
				}
				faults = multierror.Append(faults, err)
			}
		}
		out[j] = cells[i]
		j++
		i++
	}
	return out, delta, merges, faults.ErrorOrNil()
}

// IsTerminal reports whether no move can change the board.
// Cells that fail to unseal never match anything.
func (e *Engine) IsTerminal(ctx context.Context, g Grid) (bool, error) {
	if len(g.EmptyCells()) > 0 {
		return false, nil
	}
	var faults *multierror.Error
	var vals [Size][Size]uint32
	var known [Size][Size]bool
	for r := 0; r < Size; r++ {
		for c := 0; c < Size; c++ {
			v, err := e.sealer.Unseal(ctx, g[r][c])
			if err != nil {
				faults = multierror.Append(faults, fmt.Errorf("cell %d,%d: %w", r, c, err))
				continue
			}
			vals[r][c], known[r][c] = v, true
		}
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}
	for r := 0; r < Size; r++ {
		for c := 0; c < Size; c++ {
			if !known[r][c] {
				continue
			}
			if c+1 < Size && known[r][c+1] && vals[r][c] == vals[r][c+1] {
				return false, faults.ErrorOrNil()
			}
			if r+1 < Size && known[r+1][c] && vals[r][c] == vals[r+1][c] {
				return false, faults.ErrorOrNil()
			}
		}
	}
	return true, faults.ErrorOrNil()
}

// MaxValue is the largest unsealed value on g; unreadable cells are skipped.
func MaxValue(ctx context.Context, s sealing.Sealer, g Grid) (uint32, error) {
	var faults *multierror.Error
	var top uint32
	for r := 0; r < Size; r++ {
		for c := 0; c < Size; c++ {
			if g[r][c].IsZero() {
				continue
			}
			v, err := s.Unseal(ctx, g[r][c])
			if err != nil {
				faults = multierror.Append(faults, fmt.Errorf("cell %d,%d: %w", r, c, err))
				continue
			}
			if v > top {
				top = v
			}
		}
	}
	return top, faults.ErrorOrNil()
}

// rotate turns g clockwise k quarter turns.
func rotate(g Grid, k int) Grid {
	for ; k > 0; k-- {
		var out Grid
		for r := 0; r < Size; r++ {
			for c := 0; c < Size; c++ {
				out[r][c] = g[Size-1-c][r]
			}
		}
		g = out
	}
	return g
}
