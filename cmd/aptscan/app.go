package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Kelll31/aptscan/internal/client"
	"github.com/Kelll31/aptscan/internal/config"
	"github.com/Kelll31/aptscan/internal/logging"
	"github.com/Kelll31/aptscan/internal/orchestrator"
	"github.com/Kelll31/aptscan/internal/push"
	"github.com/Kelll31/aptscan/internal/store"
	"github.com/Kelll31/aptscan/internal/validator"
)

// app holds the wired-up service graph behind every subcommand.
type app struct {
	cfg          *config.Config
	client       *client.Client
	validator    *validator.Validator
	store        *store.Store
	orchestrator *orchestrator.Orchestrator
	listener     *push.Listener
	logger       logging.Logger
}

// newApp loads configuration and builds the client, validator, store,
// orchestrator and push listener. The caller owns the returned app and
// must call close when done.
func newApp(ctx context.Context, cmd *cobra.Command) (*app, error) {
	configPath, _ := cmd.Flags().GetString("config")
	offline, _ := cmd.Flags().GetBool("offline")

	cfg, err := config.LoadOrDefault(configPath)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if offline {
		cfg.Client.Backend = client.BackendOffline
	}

	logger := logging.NewStdoutLogger("aptscan")

	c, err := client.New(cfg.Client, nil, logger)
	if err != nil {
		return nil, fmt.Errorf("creating client: %w", err)
	}

	st, err := store.Open(cfg.ResolvedStatePath(), logger)
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("opening state store: %w", err)
	}

	v := validator.New(c, validator.DefaultTTL, logger)
	orch := orchestrator.New(&cfg.Orchestrator, c, v, st, logger)
	if err := orch.Start(ctx); err != nil {
		st.Close()
		c.Close()
		return nil, fmt.Errorf("starting orchestrator: %w", err)
	}

	a := &app{
		cfg:          cfg,
		client:       c,
		validator:    v,
		store:        st,
		orchestrator: orch,
		logger:       logger,
	}

	// Push updates only make sense against a real service.
	if cfg.Client.Backend != client.BackendOffline && cfg.PushURL != "" {
		a.listener = push.NewListener(cfg.PushURL, orch.ApplyPushEvent, logger)
		a.listener.Start(ctx)
	}

	return a, nil
}

// close tears the graph down in reverse construction order. The
// orchestrator persists its snapshot as part of Close.
func (a *app) close() {
	if a.listener != nil {
		a.listener.Stop()
	}
	a.orchestrator.Close()
	a.store.Close()
	a.client.Close()
}
