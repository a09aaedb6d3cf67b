// cmd/tiles-play/main.go
//
// Terminal client for sealed 2048.
// Responsibilities:
//   - Load config (same sources as the server) and boot the sealing provider.
//   - Start one local session and hand it to the bubbletea program.
//
// Notes:
//   - Logs go to tiles-play.log so they don't tear the alt screen.

package main

import (
	"context"
	"fmt"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/robalobadob/sealed2048/internal/config"
	"github.com/robalobadob/sealed2048/internal/daily"
	"github.com/robalobadob/sealed2048/internal/progress"
	"github.com/robalobadob/sealed2048/internal/readiness"
	"github.com/robalobadob/sealed2048/internal/sealing"
	"github.com/robalobadob/sealed2048/internal/session"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "tiles-play:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logFile, err := os.OpenFile("tiles-play.log", os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open log: %w", err)
	}
	defer logFile.Close()
	log.Logger = zerolog.New(logFile).With().Timestamp().Logger()
	if lvl, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		zerolog.SetGlobalLevel(lvl)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	catalog, err := progress.DefaultCatalog()
	if err != nil {
		return err
	}

	loader := sealing.Boot(ctx, sealing.BootOptions{
		Mode:         cfg.Sealing.Mode,
		Secret:       []byte(cfg.Sealing.Secret),
		Environments: cfg.Sealing.Environments,
		MaxPermit:    cfg.Sealing.MaxPermit,
		Latency:      cfg.Sealing.Latency,
		LoadDelay:    cfg.Sealing.LoadDelay,
		CallTimeout:  cfg.Readiness.CallTimeout,
	})

	sc := session.Config{
		Mode:    session.ModeClassic,
		Owner:   "local",
		Catalog: catalog,
		Machine: []readiness.Option{
			readiness.WithBootTimeout(cfg.Readiness.BootTimeout),
			readiness.WithCallTimeout(cfg.Readiness.CallTimeout),
		},
	}
	if cfg.Play.Mode == session.ModeDaily {
		today := time.Now().UTC()
		sc.Mode = session.ModeDaily
		sc.Date = daily.DateKey(today)
		sc.Rand = session.DailyRand(daily.Seed(today, cfg.Daily.Salt))
	}

	sess, err := session.New(ctx, loader, sc)
	if err != nil {
		return fmt.Errorf("start session: %w", err)
	}
	// Settle booting into available or unavailable without waiting on a key.
	go sess.Watch(ctx, cfg.Readiness.PollInterval)

	creds := readiness.Credentials{
		Identity:    cfg.Play.Identity,
		Environment: cfg.Play.Environment,
		Expiry:      cfg.Play.Expiry,
	}
	p := tea.NewProgram(newModel(ctx, sess, creds, cfg.Readiness.PollInterval), tea.WithAltScreen())
	_, err = p.Run()
	return err
}
