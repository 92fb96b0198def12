package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/urfave/cli/v3"

	"tally/internal/config"
	"tally/internal/events"
	"tally/internal/gateway"
	"tally/internal/heartbeat"
	"tally/internal/history"
	"tally/internal/intent"
	"tally/internal/models"
	"tally/internal/orchestrator"
	"tally/internal/retention"
	"tally/internal/storage"
	"tally/internal/todo"
	"tally/internal/tools"
)

// NewServeCommand returns the serve subcommand.
func NewServeCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Start the Tally gateway server",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "host",
				Usage: "Host to listen on",
			},
			&cli.IntFlag{
				Name:  "port",
				Usage: "Port to listen on",
			},
		},
		Action: runServe,
	}
}

func runServe(_ context.Context, cmd *cli.Command) error {
	if cmd.Bool("debug") {
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug})))
	}

	configPath := cmd.String("config")
	cfg, err := config.Load(configPath)
	if err != nil {
		slog.Warn("config not found, using defaults", "path", configPath, "error", err)
		cfg = config.Default()
	}

	// CLI flags override config
	if cmd.IsSet("host") {
		cfg.Server.Host = cmd.String("host")
	}
	if cmd.IsSet("port") {
		cfg.Server.Port = cmd.Int("port")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	// Event bus
	bus := events.NewBus(cfg.Events.BufferSize)
	defer bus.Close()

	if cfg.Events.LogDir != "" {
		logger := storage.NewEventLogger(cfg.Events.LogDir, bus)
		defer logger.Close()
	}

	// Storage
	db, err := storage.Open(cfg.Storage.Path)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer db.Close()

	taskStore := todo.NewSQLStore(db)
	histStore := history.NewSQLStore(db)
	registry := tools.NewTaskRegistry(taskStore)

	resolver, err := buildResolver(ctx, cfg)
	if err != nil {
		return fmt.Errorf("init resolver: %w", err)
	}

	orch := orchestrator.New(histStore, registry, resolver, bus, orchestrator.Options{
		HistoryWindow: cfg.History.Window,
	})

	// Retention janitor
	janitor, err := retention.NewJanitor(cfg.Retention, taskStore, histStore, bus)
	if err != nil {
		return fmt.Errorf("init retention: %w", err)
	}
	janitor.Start()
	defer janitor.Stop()

	// Gateway server
	server := gateway.NewServer(cfg.Server, orch, histStore, taskStore, bus)

	hb := heartbeat.NewWriter(
		filepath.Join(config.TallyPath(), "heartbeat.json"),
		fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
	)
	hb.Start()
	defer hb.Stop()

	// SIGHUP re-reads config and .env so auth tokens and API keys can be
	// rotated without a restart.
	reloader := config.NewReloader(configPath, config.DotenvPath(), cfg)
	reloader.OnReload(func(c *config.Config) {
		server.SetAuthTokens(c.Server.AuthTokens)
	})
	sighup := make(chan os.Signal, 1)
	signal.Notify(sighup, syscall.SIGHUP)
	defer signal.Stop(sighup)
	go func() {
		for range sighup {
			if err := reloader.Reload(); err != nil {
				slog.Error("config reload failed", "error", err)
			}
		}
	}()

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	select {
	case <-ctx.Done():
		slog.Info("shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

// buildResolver picks rule-based or model-backed intent resolution from config.
func buildResolver(ctx context.Context, cfg *config.Config) (intent.Resolver, error) {
	if cfg.Resolver.Driver != "model" {
		return intent.NewRuleResolver(), nil
	}

	registry := models.NewRegistry(cfg.Models)
	name := cfg.Resolver.Provider
	if name == "" {
		name = registry.DefaultName()
	}
	chatModel, err := registry.Get(ctx, name)
	if err != nil {
		return nil, err
	}
	slog.Info("model resolver enabled", "provider", name)
	return intent.NewModelResolver(chatModel), nil
}
