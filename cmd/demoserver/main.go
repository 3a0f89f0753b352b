// Command demoserver runs a self-contained scanning service for local
// development and demos. It answers the same HTTP API the real service
// exposes and streams push updates over a websocket, fabricating
// deterministic results so the client stack can be exercised without
// any scanning infrastructure.
//
// Usage: go run ./cmd/demoserver [listen address]
// Default listen address: :9090
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Kelll31/aptscan/internal/demoserver"
	"github.com/Kelll31/aptscan/internal/logging"
)

func main() {
	cfg := demoserver.DefaultConfig()
	if len(os.Args) > 1 {
		cfg.ListenAddr = os.Args[1]
	}

	logger := logging.NewStdoutLogger("demoserver")
	server := demoserver.NewServer(cfg, logger)
	httpSrv := server.HTTPServer()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("demo service listening", logging.Field{Key: "addr", Value: cfg.ListenAddr})
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return server.RunEngine(ctx)
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
