package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/dj-pearson/gym-unity-edge/internal/alert"
	"github.com/dj-pearson/gym-unity-edge/internal/config"
	"github.com/dj-pearson/gym-unity-edge/internal/lock"
	"github.com/dj-pearson/gym-unity-edge/internal/log"
	"github.com/dj-pearson/gym-unity-edge/internal/maintenance"
	"github.com/dj-pearson/gym-unity-edge/internal/monitor"
	"github.com/dj-pearson/gym-unity-edge/internal/ratelimit"
	"github.com/dj-pearson/gym-unity-edge/internal/schemas"
	"github.com/dj-pearson/gym-unity-edge/internal/server"
	"github.com/dj-pearson/gym-unity-edge/internal/storage"
)

const version = "0.1.0"

const pagerEventsURL = "https://events.pagerduty.com/v2/enqueue"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	switch cmd {
	case "start":
		os.Exit(runStart(args))
	case "secrets":
		os.Exit(runSecrets(args))
	case "version":
		fmt.Printf("edged version %s\n", version)
		os.Exit(0)
	case "help", "--help", "-h":
		printUsage()
		os.Exit(0)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Print(`edged - Webhook ingress, rate limiting, and query monitoring edge daemon

Usage:
  edged <command> [flags]

Commands:
  start          Start the daemon
  secrets lock   Record the secrets file checksum after an intentional edit
  version        Print version
  help           Show this help

Flags for start:
  --config       Path to configuration file or directory
`)
}

func runStart(args []string) int {
	fs := flag.NewFlagSet("start", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to configuration file or directory")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to parse flags: %v\n", err)
		return 1
	}

	// Local overrides for development; absent in production.
	_ = godotenv.Load()

	if *configPath == "" {
		discovered, err := config.DiscoverConfigPath()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to discover config: %v\n", err)
			return 1
		}
		*configPath = discovered
		fmt.Fprintf(os.Stderr, "Using discovered config: %s\n", *configPath)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}

	log.Setup(cfg.Service.LogLevel)
	logger := log.WithComponent("main")
	logger.Info("edged starting", "version", version, "config", *configPath)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var secrets *config.Secrets
	if cfg.Secrets.Path != "" {
		secrets, err = config.LoadSecrets(cfg.Secrets.Path, cfg.Secrets.Locked)
		if err != nil {
			logger.Error("failed to load secrets", "path", cfg.Secrets.Path, "error", err)
			return 1
		}
	}

	if cfg.RateLimit.Backend == "sqlite" {
		lockPath := lock.ForDatabase(cfg.RateLimit.SQLitePath)
		dbLock, err := lock.Acquire(lockPath)
		if err != nil {
			logger.Error("failed to acquire instance lock", "path", lockPath, "error", err)
			return 1
		}
		defer dbLock.Release()
		logger.Info("acquired instance lock", "path", lockPath)
	}

	store, sweeper, closeStore, err := buildStore(ctx, cfg.RateLimit, logger)
	if err != nil {
		logger.Error("failed to open counter store", "backend", cfg.RateLimit.Backend, "error", err)
		return 1
	}
	defer closeStore()

	limiter := ratelimit.New(store, policiesFrom(cfg.RateLimit))

	var notifier monitor.Notifier
	if dispatcher := buildDispatcher(cfg.Alerts); dispatcher != nil {
		notifier = dispatcher
	}
	mon := monitor.New(monitor.Config{
		BufferSize:        cfg.Monitor.BufferSize,
		SlowThreshold:     cfg.Monitor.SlowThreshold,
		CriticalThreshold: cfg.Monitor.CriticalThreshold,
	}, notifier, limiter)

	srv, err := server.New(cfg.Server, cfg.Webhooks, secrets, schemas.All(), limiter, mon)
	if err != nil {
		logger.Error("failed to build server", "error", err)
		return 1
	}

	sched := maintenance.New(sweeper, mon)
	if err := sched.Start(maintenance.SweepSpec(cfg.RateLimit.SweepEvery)); err != nil {
		logger.Error("failed to start maintenance scheduler", "error", err)
		return 1
	}
	defer sched.Stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Start(ctx)
	})

	if err := g.Wait(); err != nil && err != context.Canceled {
		logger.Error("edged exited with error", "error", err)
		return 1
	}

	logger.Info("edged stopped")
	return 0
}

func runSecrets(args []string) int {
	if len(args) < 1 || args[0] != "lock" {
		fmt.Fprintln(os.Stderr, "Usage: edged secrets lock [--config path]")
		return 1
	}

	fs := flag.NewFlagSet("secrets lock", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to configuration file or directory")
	if err := fs.Parse(args[1:]); err != nil {
		return 1
	}

	if *configPath == "" {
		discovered, err := config.DiscoverConfigPath()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to discover config: %v\n", err)
			return 1
		}
		*configPath = discovered
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}
	if cfg.Secrets.Path == "" {
		fmt.Fprintln(os.Stderr, "No secrets file configured")
		return 1
	}

	if err := config.WriteLock(cfg.Secrets.Path); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to write lock: %v\n", err)
		return 1
	}
	fmt.Printf("Locked %s\n", cfg.Secrets.Path)
	return 0
}

// buildStore opens the configured counter backend. SQLite stores need
// periodic sweeping; Redis expires rows natively.
func buildStore(ctx context.Context, cfg config.RateLimitConfig, logger *slog.Logger) (ratelimit.Store, ratelimit.Sweeper, func(), error) {
	switch cfg.Backend {
	case "redis":
		store, err := ratelimit.NewRedisStore(ctx, cfg.Redis)
		if err != nil {
			return nil, nil, nil, err
		}
		logger.Info("counter store opened", "backend", "redis", "addr", cfg.Redis.Addr)
		return store, nil, func() { _ = store.Close() }, nil
	default:
		db, err := storage.OpenSQLite(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, nil, nil, err
		}
		if err := storage.BootstrapSQLite(ctx, db); err != nil {
			db.Close()
			return nil, nil, nil, err
		}
		store := ratelimit.NewSQLiteStore(db)
		logger.Info("counter store opened", "backend", "sqlite", "path", cfg.SQLitePath)
		return store, store, func() { _ = db.Close() }, nil
	}
}

func policiesFrom(cfg config.RateLimitConfig) map[string]ratelimit.Policy {
	policies := ratelimit.DefaultPolicies()
	for name, policy := range cfg.Policies {
		policies[name] = policy
	}
	return policies
}

func buildDispatcher(cfg config.AlertsConfig) *alert.Dispatcher {
	client := alert.DefaultHTTPClient()
	var channels []alert.Channel
	if cfg.PagerKey != "" {
		channels = append(channels, &alert.PagerChannel{URL: pagerEventsURL, RoutingKey: cfg.PagerKey, Client: client})
	}
	if cfg.ChatWebhook != "" {
		channels = append(channels, &alert.ChatChannel{WebhookURL: cfg.ChatWebhook, Client: client})
	}
	if cfg.WebhookURL != "" {
		channels = append(channels, &alert.WebhookChannel{URL: cfg.WebhookURL, Client: client})
	}
	if len(channels) == 0 {
		return nil
	}
	return alert.NewDispatcher(channels, cfg.Cooldown)
}
