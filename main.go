package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/robalobadob/sealed2048/internal/claims"
	"github.com/robalobadob/sealed2048/internal/config"
	"github.com/robalobadob/sealed2048/internal/database"
	"github.com/robalobadob/sealed2048/internal/httpserver"
	"github.com/robalobadob/sealed2048/internal/progress"
	"github.com/robalobadob/sealed2048/internal/scores"
	"github.com/robalobadob/sealed2048/internal/sealing"
	"github.com/robalobadob/sealed2048/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}
	if lvl, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		zerolog.SetGlobalLevel(lvl)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.OpenMigrated(cfg.DB.Path)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.DB.Path).Msg("open database")
	}
	defer db.Close()

	catalog, err := progress.DefaultCatalog()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load achievement catalog")
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

	mem, err := store.NewMemoryStore(cfg.Sessions.Capacity)
	if err != nil {
		log.Fatal().Err(err).Msg("create session store")
	}

	srv := httpserver.New(httpserver.Deps{
		Store:   mem,
		Backend: loader,
		Scores:  scores.NewStore(db),
		Claims:  claims.NewLedger(db),
		Catalog: catalog,
		Config:  cfg,
	})

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
			log.Warn().Err(err).Msg("shutdown")
		}
	}()

	log.Info().Str("port", cfg.Port).Str("sealing", cfg.Sealing.Mode).Msg("starting sealed2048 server")
	if err := srv.Start(":" + cfg.Port); err != nil {
		log.Fatal().Err(err).Msg("server exited")
	}
	log.Info().Msg("server stopped")
}
