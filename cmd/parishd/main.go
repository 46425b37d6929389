// Command parishd is the long-running daemon: it owns the run state store,
// the workflow orchestrator, and the HTTP API.
package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"parish/internal/config"
	"parish/internal/daemon"
	"parish/internal/events"
	"parish/internal/logging"
	"parish/internal/modules"
	"parish/internal/progress"
	"parish/internal/runstate"
	"parish/internal/workflow"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, _, _, err := config.Load("")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger, err := logging.NewFromConfig(cfg)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}

	store, err := runstate.Open(cfg)
	if err != nil {
		logger.Error("open run state store", logging.Error(err))
		return
	}

	eventManager := events.NewManager(cfg)
	tracker := progress.NewTracker(cfg, logger)
	handlers := modules.NewSet(cfg, logger)
	orch := workflow.New(cfg, eventManager, store, tracker, handlers, logger)

	d, err := daemon.New(cfg, store, eventManager, tracker, orch, logger)
	if err != nil {
		logger.Error("create daemon", logging.Error(err))
		_ = store.Close()
		return
	}
	defer d.Close()

	if err := d.Start(ctx); err != nil {
		logger.Error("start daemon", logging.Error(err))
		return
	}

	<-ctx.Done()
	logger.Info("parishd shutting down")
}
