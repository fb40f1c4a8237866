package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/marmos91/tinyhttpd/internal/logger"
	"github.com/marmos91/tinyhttpd/internal/server"
	"github.com/marmos91/tinyhttpd/pkg/config"
	"github.com/marmos91/tinyhttpd/pkg/credentials"
	"github.com/marmos91/tinyhttpd/pkg/dbpool"
	"github.com/spf13/pflag"
)

const usage = `tinyhttpd - epoll HTTP server

Usage:
  tinyhttpd [start] [flags]   Run the server (default)
  tinyhttpd init [--force]    Write a default config file

Flags:
`

func main() {
	args := os.Args[1:]
	cmd := "start"
	if len(args) > 0 && (args[0] == "start" || args[0] == "init") {
		cmd, args = args[0], args[1:]
	}

	var err error
	switch cmd {
	case "init":
		err = runInit(args)
	default:
		err = runStart(args)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runInit(args []string) error {
	fs := pflag.NewFlagSet("init", pflag.ContinueOnError)
	force := fs.BoolP("force", "f", false, "Overwrite an existing config file")
	path := fs.StringP("config", "c", "", "Write to this path instead of the default location")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *path != "" {
		if err := config.InitConfigToPath(*path, *force); err != nil {
			return err
		}
		fmt.Printf("Configuration written to %s\n", *path)
		return nil
	}

	written, err := config.InitConfig(*force)
	if err != nil {
		return err
	}
	fmt.Printf("Configuration written to %s\n", written)
	return nil
}

func runStart(args []string) error {
	fs := pflag.NewFlagSet("start", pflag.ContinueOnError)
	fs.Usage = func() {
		fmt.Fprint(os.Stderr, usage)
		fs.PrintDefaults()
	}
	configPath := fs.StringP("config", "c", "", "Path to config file (default $XDG_CONFIG_HOME/tinyhttpd/config.yaml)")
	port := fs.IntP("port", "p", config.DefaultPort, "Port to listen on")
	root := fs.StringP("root", "r", "./www", "Document root")
	trigMode := fs.IntP("trig-mode", "m", 0, "Trigger modes: 0 LT+LT, 1 LT+ET, 2 ET+LT, 3 ET+ET")
	threads := fs.IntP("threads", "t", 8, "Number of worker goroutines")
	model := fs.StringP("model", "a", string(server.ModelProactor), "Concurrency model: proactor or reactor")
	logLevel := fs.StringP("log-level", "l", "INFO", "Log level (DEBUG, INFO, WARN, ERROR)")
	linger := fs.BoolP("linger", "o", false, "Enable SO_LINGER on client sockets")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	// Flags override file and environment values only when given.
	if fs.Changed("port") {
		cfg.Server.Port = *port
	}
	if fs.Changed("root") {
		cfg.Server.DocRoot = *root
	}
	if fs.Changed("trig-mode") {
		cfg.Server.TrigMode = server.TrigMode(*trigMode)
	}
	if fs.Changed("threads") {
		cfg.Server.Workers = *threads
	}
	if fs.Changed("model") {
		cfg.Server.Model = server.Model(*model)
	}
	if fs.Changed("log-level") {
		cfg.Logging.Level = *logLevel
	}
	if fs.Changed("linger") {
		cfg.Server.Linger = *linger
	}
	config.ApplyDefaults(cfg)
	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	if err := logger.Init(cfg.Logging.LoggerConfig()); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer func() { _ = logger.Close() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)
	signal.Ignore(syscall.SIGPIPE)

	go func() {
		sig := <-sigChan
		logger.Info("Received signal %v, shutting down", sig)
		cancel()
	}()

	index, handles, closeStore, err := openCredentials(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	metricsResult := config.InitializeMetrics(cfg)
	if metricsResult.Server != nil {
		go func() {
			if err := metricsResult.Server.Start(ctx); err != nil {
				logger.Error("Metrics server error: %v", err)
			}
		}()
		defer func() {
			stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer stopCancel()
			_ = metricsResult.Server.Stop(stopCtx)
		}()
	}

	srv, err := server.New(cfg.Server, index, handles, metricsResult.HTTPMetrics)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	logger.Info("tinyhttpd starting on %s:%d (root=%s, trig_mode=%s, model=%s, workers=%d)",
		cfg.Server.BindAddress, cfg.Server.Port, cfg.Server.DocRoot,
		cfg.Server.TrigMode, cfg.Server.Model, cfg.Server.Workers)

	if err := srv.Serve(ctx); err != nil {
		return fmt.Errorf("server error: %w", err)
	}

	logger.Info("tinyhttpd stopped")
	return nil
}

// openCredentials creates the configured store, loads its accounts and
// builds the handle pool. With credentials disabled all three are nil.
func openCredentials(ctx context.Context, cfg *config.Config) (*credentials.Index, *dbpool.Pool[*credentials.Conn], func(), error) {
	store, err := config.CreateCredentialStore(ctx, &cfg.Credentials)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to create credential store: %w", err)
	}
	if store == nil {
		logger.Info("Credential store disabled, login and register are unavailable")
		return nil, nil, func() {}, nil
	}

	closeStore := func() {
		if err := store.Close(); err != nil {
			logger.Error("Failed to close credential store: %v", err)
		}
	}

	index, err := credentials.Load(ctx, store)
	if err != nil {
		closeStore()
		return nil, nil, nil, err
	}

	handles, err := credentials.NewConnPool(store, cfg.Credentials.PoolSize)
	if err != nil {
		closeStore()
		return nil, nil, nil, fmt.Errorf("failed to create credential handle pool: %w", err)
	}

	logger.Info("Loaded %d account(s) from %s credential store", index.Len(), cfg.Credentials.Type)
	return index, handles, func() {
		_ = handles.Close()
		closeStore()
	}, nil
}
