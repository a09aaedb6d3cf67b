package main

import (
	"context"
	"fmt"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robalobadob/sealed2048/internal/game"
	"github.com/robalobadob/sealed2048/internal/progress"
	"github.com/robalobadob/sealed2048/internal/readiness"
	"github.com/robalobadob/sealed2048/internal/sealing"
	"github.com/robalobadob/sealed2048/internal/session"
)

type fakePlayer struct {
	moves   []game.Direction
	claimed []string
	resets  int
	mocks   int
	enable  error
	view    session.View
}

func (f *fakePlayer) Move(_ context.Context, dir game.Direction) (session.MoveOutcome, error) {
	f.moves = append(f.moves, dir)
	return session.MoveOutcome{Changed: true, ScoreDelta: 4}, nil
}

func (f *fakePlayer) Restart(context.Context) error { return nil }

func (f *fakePlayer) EnableSealing(context.Context, readiness.Credentials) (readiness.Status, error) {
	if f.enable != nil {
		return readiness.Status{State: readiness.StateFailed}, f.enable
	}
	return readiness.Status{State: readiness.StateAuthorized}, nil
}

func (f *fakePlayer) ResetAuthorization() readiness.Status {
	f.resets++
	return readiness.Status{State: readiness.StateAvailable}
}

func (f *fakePlayer) PlayUnsealed() readiness.Status {
	f.mocks++
	return readiness.Status{State: readiness.StateMock}
}

func (f *fakePlayer) Claim(_ context.Context, id string) (progress.Achievement, error) {
	f.claimed = append(f.claimed, id)
	return progress.Achievement{ID: id, Title: "Tile 128", Claimed: true}, nil
}

func (f *fakePlayer) Snapshot(context.Context) session.View { return f.view }

func key(s string) tea.KeyMsg {
	switch s {
	case "left":
		return tea.KeyMsg{Type: tea.KeyLeft}
	case "up":
		return tea.KeyMsg{Type: tea.KeyUp}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

// press sends a key and runs the resulting command once, feeding its
// message back into the model.
func press(t *testing.T, m model, k string) model {
	t.Helper()
	next, cmd := m.Update(key(k))
	m = next.(model)
	if cmd != nil {
		next, _ = m.Update(cmd())
		m = next.(model)
	}
	return m
}

func TestKeysMoveTheBoard(t *testing.T) {
	f := &fakePlayer{}
	m := newModel(context.Background(), f, readiness.Credentials{}, 0)

	m = press(t, m, "left")
	m = press(t, m, "k")
	m = press(t, m, "s")

	assert.Equal(t, []game.Direction{game.Left, game.Up, game.Down}, f.moves)
	assert.False(t, m.busy)
	assert.Equal(t, "+4", m.status)
}

func TestBusyModelIgnoresKeys(t *testing.T) {
	f := &fakePlayer{}
	m := newModel(context.Background(), f, readiness.Credentials{}, 0)
	m.busy = true

	next, cmd := m.Update(key("h"))
	assert.Nil(t, cmd)
	assert.True(t, next.(model).busy)
	assert.Empty(t, f.moves)
}

func TestEnableSealingNeedsIdentity(t *testing.T) {
	f := &fakePlayer{}
	m := newModel(context.Background(), f, readiness.Credentials{}, 0)

	m = press(t, m, "e")
	assert.True(t, m.statusErr)
	assert.Contains(t, m.status, "play.identity")
}

func TestEnableSealingReportsFailure(t *testing.T) {
	f := &fakePlayer{enable: fmt.Errorf("%w: %w", session.ErrSealingNotEnabled, sealing.ErrAuthorizationFailed)}
	creds := readiness.Credentials{Identity: "0x1111111111111111111111111111111111111111", Environment: "testnet"}
	m := newModel(context.Background(), f, creds, 0)

	m = press(t, m, "e")
	assert.True(t, m.statusErr)
	assert.Contains(t, m.status, "Authorization failed")

	m = press(t, m, "x")
	assert.Equal(t, 1, f.resets)
	assert.False(t, m.statusErr)
}

func TestMockKeyPlaysUnsealed(t *testing.T) {
	f := &fakePlayer{}
	m := newModel(context.Background(), f, readiness.Credentials{}, 0)

	m = press(t, m, "m")
	assert.Equal(t, 1, f.mocks)
	assert.False(t, m.statusErr)
	assert.Contains(t, m.status, "mock")
}

func TestClaimPicksFirstUnlocked(t *testing.T) {
	f := &fakePlayer{view: session.View{Achievements: []progress.Achievement{
		{ID: "tile-128", Title: "Tile 128", Threshold: 128, Unlocked: true, Claimed: true},
		{ID: "tile-256", Title: "Tile 256", Threshold: 256, Unlocked: true},
		{ID: "tile-512", Title: "Tile 512", Threshold: 512},
	}}}
	m := newModel(context.Background(), f, readiness.Credentials{}, 0)
	next, _ := m.Update(snapshotMsg(f.view))
	m = next.(model)

	m = press(t, m, "c")
	require.Equal(t, []string{"tile-256"}, f.claimed)
	assert.False(t, m.statusErr)
}

func TestClaimWithNothingUnlocked(t *testing.T) {
	f := &fakePlayer{}
	m := newModel(context.Background(), f, readiness.Credentials{}, 0)

	m = press(t, m, "c")
	assert.Empty(t, f.claimed)
	assert.True(t, m.statusErr)
}

func TestViewRendersBoard(t *testing.T) {
	v := session.View{Score: 12, Moves: 3, MaxTile: 8}
	v.Tiles[0][0] = 8
	v.Tiles[1][1] = session.Unreadable
	v.Readiness = readiness.Status{State: readiness.StateMock}
	v.SealingMode = readiness.ModeMock
	m := newModel(context.Background(), &fakePlayer{}, readiness.Credentials{}, 0)
	m.view = v

	out := m.View()
	assert.Contains(t, out, "score 12")
	assert.Contains(t, out, "??")
	assert.Contains(t, out, "sealing: mock")
}

func TestQuit(t *testing.T) {
	m := newModel(context.Background(), &fakePlayer{}, readiness.Credentials{}, 0)
	_, cmd := m.Update(key("q"))
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
}
