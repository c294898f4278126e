package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/sethdford/hivemind/internal/accel"
	"github.com/sethdford/hivemind/internal/admission"
	"github.com/sethdford/hivemind/internal/config"
	"github.com/sethdford/hivemind/internal/natsbus"
	"github.com/sethdford/hivemind/internal/roles"
	"github.com/sethdford/hivemind/internal/store"
	"github.com/sethdford/hivemind/internal/trail"
	"github.com/sethdford/hivemind/internal/worker"
)

var version = "dev"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "version":
		fmt.Printf("hivemind %s\n", version)
	case "engine":
		if err := runEngine(); err != nil {
			slog.Error("engine failed", "error", err)
			os.Exit(1)
		}
	case "backup":
		if err := runBackup(os.Args[2:]); err != nil {
			slog.Error("backup failed", "error", err)
			os.Exit(1)
		}
	case "restore":
		if err := runRestore(os.Args[2:]); err != nil {
			slog.Error("restore failed", "error", err)
			os.Exit(1)
		}
	default:
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintf(os.Stderr, "Usage: hivemind <command>\n\nCommands:\n  engine     Start the swarm coordination engine\n  backup     Archive the data directory\n  restore    Restore a data directory archive\n  version    Print version\n")
}

func runEngine() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	slog.Info("starting hivemind engine", "version", version)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// SQLite store
	db, err := store.New(cfg.Store)
	if err != nil {
		return fmt.Errorf("init store: %w", err)
	}
	defer db.Close()
	slog.Info("store initialized", "path", cfg.Store.Path)

	// Embedded NATS
	bus, err := natsbus.New(cfg.NATS)
	if err != nil {
		return fmt.Errorf("init nats: %w", err)
	}
	defer bus.Close()
	slog.Info("nats started", "port", cfg.NATS.Port)

	events, err := natsbus.NewClient(bus)
	if err != nil {
		return fmt.Errorf("init nats client: %w", err)
	}
	defer events.Close()

	// Accelerator backend
	acc, err := accel.New(cfg.Accelerator)
	if err != nil {
		return err
	}
	slog.Info("accelerator selected", "backend", acc.Name())

	// Pheromone trail field
	trails := trail.NewManager(db, acc, events, cfg.Trails)
	go trails.RunDecayLoop(ctx)

	// Spawn admission
	policy := roles.New(cfg.Roles)
	dispatcher := worker.NewDispatcher(events)
	ctrl := admission.New(cfg.Admission, policy, dispatcher, db, events)
	go ctrl.Run(ctx)

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	slog.Info("shutting down", "signal", sig)
	cancel()

	return nil
}
