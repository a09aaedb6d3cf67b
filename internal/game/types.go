// internal/game/types.go
//
// Core type definitions for the sliding-tile engine.
// Defines:
//   - Grid: the 4x4 board of sealed handles (value type, copied on assignment).
//   - Direction: one of left/right/up/down.
//   - MoveResult: outcome of a single move.

package game

import (
	"errors"
	"strings"

	"github.com/robalobadob/sealed2048/internal/sealing"
)

// Size is the board edge length.
const Size = 4

// Grid holds one sealed handle per cell; the zero handle is an empty cell.
// Grid is an array, so passing it around copies it.
type Grid [Size][Size]sealing.Handle

// Pos addresses a cell.
type Pos struct {
	Row int `json:"row"`
	Col int `json:"col"`
}

// EmptyCells lists empty positions in row-major order.
func (g Grid) EmptyCells() []Pos {
	var out []Pos
	for r := 0; r < Size; r++ {
		for c := 0; c < Size; c++ {
			if g[r][c].IsZero() {
				out = append(out, Pos{r, c})
			}
		}
	}
	return out
}

// Equal reports whether every cell holds the same handle.
func (g Grid) Equal(o Grid) bool {
	for r := 0; r < Size; r++ {
		for c := 0; c < Size; c++ {
			if !g[r][c].Equal(o[r][c]) {
				return false
			}
		}
	}
	return true
}

// Direction is a slide direction.
type Direction string

const (
	Left  Direction = "left"
	Right Direction = "right"
	Up    Direction = "up"
	Down  Direction = "down"
)

// ErrBadDirection is returned by ParseDirection.
var ErrBadDirection = errors.New("invalid direction")

// ParseDirection accepts the direction names plus arrow/vim/wasd aliases.
func ParseDirection(s string) (Direction, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "left", "l", "h", "a", "arrowleft":
		return Left, nil
	case "right", "r", "d", "arrowright":
		return Right, nil
	case "up", "u", "k", "w", "arrowup":
		return Up, nil
	case "down", "j", "s", "arrowdown":
		return Down, nil
	}
	return "", ErrBadDirection
}

// turns is the number of clockwise quarter turns that brings d onto Left.
func (d Direction) turns() (int, bool) {
	switch d {
	case Left:
		return 0, true
	case Down:
		return 1, true
	case Right:
		return 2, true
	case Up:
		return 3, true
	}
	return 0, false
}

// MoveResult is the outcome of Engine.Move.
type MoveResult struct {
	Grid       Grid
	ScoreDelta uint64 // sum of merge results only
	Changed    bool   // any cell differs from the input
	Merges     int
}
