package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/robalobadob/sealed2048/internal/game"
	"github.com/robalobadob/sealed2048/internal/progress"
	"github.com/robalobadob/sealed2048/internal/readiness"
	"github.com/robalobadob/sealed2048/internal/sealing"
	"github.com/robalobadob/sealed2048/internal/session"
)

// player is the part of *session.Session the model drives.
type player interface {
	Move(ctx context.Context, dir game.Direction) (session.MoveOutcome, error)
	Restart(ctx context.Context) error
	EnableSealing(ctx context.Context, creds readiness.Credentials) (readiness.Status, error)
	ResetAuthorization() readiness.Status
	PlayUnsealed() readiness.Status
	Claim(ctx context.Context, id string) (progress.Achievement, error)
	Snapshot(ctx context.Context) session.View
}

// Messages produced by commands.
type (
	tickMsg     time.Time
	snapshotMsg session.View
	moveDoneMsg struct {
		outcome session.MoveOutcome
		err     error
	}
	sealingDoneMsg struct {
		status readiness.Status
		err    error
	}
	claimDoneMsg struct {
		achievement progress.Achievement
		err         error
	}
	restartDoneMsg struct{ err error }
)

type model struct {
	ctx   context.Context
	play  player
	creds readiness.Credentials
	poll  time.Duration

	view      session.View
	busy      bool
	status    string
	statusErr bool
	width     int
	height    int
}

func newModel(ctx context.Context, p player, creds readiness.Credentials, poll time.Duration) model {
	if poll <= 0 {
		poll = 250 * time.Millisecond
	}
	return model{
		ctx:    ctx,
		play:   p,
		creds:  creds,
		poll:   poll,
		status: "Arrows or hjkl to move. e: enable sealing, m: mock mode, c: claim, r: restart, q: quit.",
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(snapshotCmd(m.ctx, m.play), tickCmd(m.poll))
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil
	case tickMsg:
		// Snapshot polls the readiness machine, so booting and fallback show up.
		if m.busy {
			return m, tickCmd(m.poll)
		}
		return m, tea.Batch(snapshotCmd(m.ctx, m.play), tickCmd(m.poll))
	case snapshotMsg:
		m.view = session.View(msg)
		return m, nil
	case moveDoneMsg:
		m.busy = false
		if msg.err != nil {
			m.setError(fmt.Sprintf("Move failed: %v", msg.err))
		} else if msg.outcome.Terminal {
			m.setStatus("No moves left. Press r to play again.")
		} else if !msg.outcome.Changed {
			m.setStatus("Nothing moved.")
		} else {
			m.setStatus(fmt.Sprintf("+%d", msg.outcome.ScoreDelta))
		}
		return m, snapshotCmd(m.ctx, m.play)
	case sealingDoneMsg:
		m.busy = false
		if msg.err != nil {
			m.setError(sealingMessage(msg.status, msg.err))
		} else {
			m.setStatus("Sealing enabled. New tiles are sealed.")
		}
		return m, snapshotCmd(m.ctx, m.play)
	case claimDoneMsg:
		m.busy = false
		if msg.err != nil {
			m.setError(fmt.Sprintf("Claim failed: %v", msg.err))
		} else {
			m.setStatus(fmt.Sprintf("Claimed %q.", msg.achievement.Title))
		}
		return m, snapshotCmd(m.ctx, m.play)
	case restartDoneMsg:
		m.busy = false
		if msg.err != nil {
			m.setError(fmt.Sprintf("Restart failed: %v", msg.err))
		} else {
			m.setStatus("New game.")
		}
		return m, snapshotCmd(m.ctx, m.play)
	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	return m, nil
}

func (m model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	key := msg.String()
	if key == "q" || key == "ctrl+c" {
		return m, tea.Quit
	}
	if m.busy {
		return m, nil
	}
	switch key {
	case "left", "h", "a":
		return m.move(game.Left)
	case "right", "l", "d":
		return m.move(game.Right)
	case "up", "k", "w":
		return m.move(game.Up)
	case "down", "j", "s":
		return m.move(game.Down)
	case "r":
		m.busy = true
		return m, restartCmd(m.ctx, m.play)
	case "e":
		if m.creds.Identity == "" {
			m.setError("Set play.identity (TILES_PLAY_IDENTITY) to enable sealing.")
			return m, nil
		}
		m.busy = true
		m.setStatus("Authorizing...")
		return m, enableCmd(m.ctx, m.play, m.creds)
	case "x":
		st := m.play.ResetAuthorization()
		m.setStatus(fmt.Sprintf("Sealing reset (%s).", st.State))
		return m, snapshotCmd(m.ctx, m.play)
	case "m":
		st := m.play.PlayUnsealed()
		m.setStatus(fmt.Sprintf("Playing unsealed (%s). Press e to seal again.", st.State))
		return m, snapshotCmd(m.ctx, m.play)
	case "c":
		id, ok := claimable(m.view.Achievements)
		if !ok {
			m.setError("Nothing to claim yet.")
			return m, nil
		}
		m.busy = true
		return m, claimCmd(m.ctx, m.play, id)
	}
	return m, nil
}

func (m model) move(dir game.Direction) (tea.Model, tea.Cmd) {
	m.busy = true
	return m, moveCmd(m.ctx, m.play, dir)
}

func (m *model) setStatus(s string) {
	m.status = s
	m.statusErr = false
}

func (m *model) setError(s string) {
	m.status = s
	m.statusErr = true
}

// claimable returns the first unlocked achievement not yet claimed.
func claimable(list []progress.Achievement) (string, bool) {
	for _, a := range list {
		if a.Unlocked && !a.Claimed {
			return a.ID, true
		}
	}
	return "", false
}

func sealingMessage(st readiness.Status, err error) string {
	switch {
	case errors.Is(err, sealing.ErrProviderUnavailable):
		return "Sealing provider unavailable. Playing in mock mode."
	case errors.Is(err, sealing.ErrOperationTimeout):
		return "Authorization timed out. Press x to reset."
	case errors.Is(err, sealing.ErrAuthorizationFailed):
		return fmt.Sprintf("Authorization failed (%s). Press x to reset.", st.State)
	}
	return fmt.Sprintf("Sealing not enabled: %v", err)
}

// --- commands ---

func tickCmd(d time.Duration) tea.Cmd {
	return tea.Tick(d, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func snapshotCmd(ctx context.Context, p player) tea.Cmd {
	return func() tea.Msg { return snapshotMsg(p.Snapshot(ctx)) }
}

func moveCmd(ctx context.Context, p player, dir game.Direction) tea.Cmd {
	return func() tea.Msg {
		out, err := p.Move(ctx, dir)
		return moveDoneMsg{outcome: out, err: err}
	}
}

func restartCmd(ctx context.Context, p player) tea.Cmd {
	return func() tea.Msg { return restartDoneMsg{err: p.Restart(ctx)} }
}

func enableCmd(ctx context.Context, p player, creds readiness.Credentials) tea.Cmd {
	return func() tea.Msg {
		st, err := p.EnableSealing(ctx, creds)
		return sealingDoneMsg{status: st, err: err}
	}
}

func claimCmd(ctx context.Context, p player, id string) tea.Cmd {
	return func() tea.Msg {
		a, err := p.Claim(ctx, id)
		return claimDoneMsg{achievement: a, err: err}
	}
}
