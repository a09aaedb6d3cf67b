// internal/progress/progress.go
//
// Milestones derived from the largest tile on the board.
// Responsibilities:
//   - Unlock achievements once the board's max value reaches their threshold.
//   - Mark unlocked achievements as claimed.
//   - Load the built-in catalog from assets/achievements.txt.
//
// Lists are treated as immutable: every operation returns a fresh slice.

package progress

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/robalobadob/sealed2048/assets"
	"github.com/robalobadob/sealed2048/internal/game"
	"github.com/robalobadob/sealed2048/internal/sealing"
)

var (
	ErrUnknownAchievement = errors.New("unknown achievement")
	ErrNotUnlocked        = errors.New("achievement not unlocked")
)

// Achievement is one milestone. Claimed implies Unlocked.
type Achievement struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Threshold uint32 `json:"threshold"`
	Unlocked  bool   `json:"unlocked"`
	Claimed   bool   `json:"claimed"`
}

// Claim is what gets handed to the minting side when a player claims.
type Claim struct {
	Identity    string
	SessionID   string
	Achievement Achievement
	ClaimedAt   time.Time
}

// Tracker evaluates boards against an achievement list.
type Tracker struct {
	unsealer sealing.Sealer
}

func NewTracker(s sealing.Sealer) *Tracker {
	return &Tracker{unsealer: s}
}

// Evaluate unlocks every locked achievement whose threshold the board's
// maximum value has reached. Unreadable cells are skipped and reported in
// the error; unlocks found from the readable cells still apply.
func (t *Tracker) Evaluate(ctx context.Context, g game.Grid, list []Achievement) ([]Achievement, error) {
	top, err := game.MaxValue(ctx, t.unsealer, g)
	if ctxErr := ctx.Err(); ctxErr != nil {
		return Clone(list), ctxErr
	}
	out := Clone(list)
	for i := range out {
		if !out[i].Unlocked && top >= out[i].Threshold {
			out[i].Unlocked = true
		}
	}
	return out, err
}

// MarkClaimed sets Claimed on id. Claiming twice is a no-op.
func MarkClaimed(list []Achievement, id string) ([]Achievement, error) {
	out := Clone(list)
	for i := range out {
		if out[i].ID != id {
			continue
		}
		if !out[i].Unlocked {
			return out, fmt.Errorf("%w: %s", ErrNotUnlocked, id)
		}
		out[i].Claimed = true
		return out, nil
	}
	return out, fmt.Errorf("%w: %s", ErrUnknownAchievement, id)
}

// Find returns the achievement with id.
func Find(list []Achievement, id string) (Achievement, bool) {
	for _, a := range list {
		if a.ID == id {
			return a, true
		}
	}
	return Achievement{}, false
}

// Fresh resets the list for a new game, keeping what was already claimed.
func Fresh(list []Achievement) []Achievement {
	out := Clone(list)
	for i := range out {
		if !out[i].Claimed {
			out[i].Unlocked = false
		}
	}
	return out
}

func Clone(list []Achievement) []Achievement {
	if list == nil {
		return nil
	}
	return append([]Achievement(nil), list...)
}

// DefaultCatalog parses the embedded catalog, sorted as listed.
func DefaultCatalog() ([]Achievement, error) {
	lines, err := assets.AchievementLines()
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	return ParseCatalog(lines)
}

// ParseCatalog reads "id threshold title..." lines.
func ParseCatalog(lines []string) ([]Achievement, error) {
	out := make([]Achievement, 0, len(lines))
	seen := make(map[string]bool, len(lines))
	for n, line := range lines {
		f := strings.Fields(line)
		if len(f) < 3 {
			return nil, fmt.Errorf("catalog line %d: want id, threshold and title", n+1)
		}
		th, err := strconv.ParseUint(f[1], 10, 32)
		if err != nil || th == 0 {
			return nil, fmt.Errorf("catalog line %d: bad threshold %q", n+1, f[1])
		}
		if seen[f[0]] {
			return nil, fmt.Errorf("catalog line %d: duplicate id %q", n+1, f[0])
		}
		seen[f[0]] = true
		out = append(out, Achievement{
			ID:        f[0],
			Threshold: uint32(th),
			Title:     strings.Join(f[2:], " "),
		})
	}
	return out, nil
}
