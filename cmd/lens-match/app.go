package main

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/ironsheep/lens-match/internal/config"
	"github.com/ironsheep/lens-match/internal/lens"
	"github.com/ironsheep/lens-match/internal/logging"
	"github.com/ironsheep/lens-match/internal/models"
	"github.com/ironsheep/lens-match/internal/store"
)

// app holds everything a command needs; close releases it.
type app struct {
	cfg     *config.Config
	logger  *slog.Logger
	store   *store.Store
	runtime *models.Runtime
	svc     *lens.Service
}

func openApp() (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	logger := logging.Configure(cfg.App.LogLevel)

	st, err := store.Open(cfg.App.DataDir)
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}
	st.SetLogger(logger)
	if cfg.App.SeedDefaults {
		n, err := st.SeedDefaults()
		if err != nil {
			st.Close()
			return nil, fmt.Errorf("seeding default rules: %w", err)
		}
		if n > 0 {
			logger.Info("installed default rules", "count", n)
		}
	}

	rt, err := lens.NewRuntime(cfg, logger)
	if err != nil {
		st.Close()
		return nil, err
	}

	eng := lens.NewEngine(rt, cfg.Labels.ConfidenceFloor, logger)
	svc := lens.New(st, eng, rt, lens.Options{
		MaxImageSide: cfg.App.MaxImageSide,
		Logger:       logger,
	})

	return &app{cfg: cfg, logger: logger, store: st, runtime: rt, svc: svc}, nil
}

func (a *app) close() error {
	return errors.Join(a.runtime.Close(), a.store.Close())
}
