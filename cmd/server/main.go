package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/nocops/itsm-agent/internal/clients"
	"github.com/nocops/itsm-agent/internal/config"
	"github.com/nocops/itsm-agent/internal/logger"
	"github.com/nocops/itsm-agent/internal/modelbridge"
	"github.com/nocops/itsm-agent/internal/orchestrator"
	"github.com/nocops/itsm-agent/internal/server"
	"github.com/nocops/itsm-agent/internal/tools"
	"golang.org/x/sync/errgroup"
)

// version is set at build time with -ldflags "-X main.version=..."
var version = "dev"

func main() {
	configPath := flag.String("config", "", "Path to an optional YAML configuration file")
	envPath := flag.String("env", ".env", "Path to a .env file loaded before the environment is read")
	flag.Parse()

	if err := run(*configPath, *envPath); err != nil {
		fmt.Fprintf(os.Stderr, "itsm-agent: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath, envPath string) error {
	// .env is optional; real environment variables still apply
	envErr := godotenv.Load(envPath)

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return err
	}

	log, err := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer log.Sync()
	logger.InitLogger(log)

	mainLog := log.WithComponent("main")
	if envErr != nil {
		mainLog.Warn("Could not load %s, continuing with existing environment: %v", envPath, envErr)
	} else {
		mainLog.Info("Loaded environment from %s", envPath)
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	client := clients.NewOpenAIClient(clients.ModelClientConfig{
		APIBase:     cfg.LLM.APIBase,
		APIKey:      cfg.LLM.APIKey,
		Model:       cfg.LLM.Model,
		Temperature: cfg.LLM.Temperature,
		MaxTokens:   cfg.LLM.MaxTokens,
	})

	registry, err := tools.NewTicketTools(
		cfg.Backends.RAGURL,
		cfg.Backends.ESDBURL,
		cfg.Backends.ESDBIndex,
		cfg.Backends.StardustURL,
		tools.BackendOptions{
			Timeout:    cfg.Backends.Timeout,
			MaxRetries: cfg.Backends.MaxRetries,
			RatePerSec: cfg.Backends.RatePerSec,
			Burst:      cfg.Backends.Burst,
		},
	)
	if err != nil {
		return fmt.Errorf("build tools: %w", err)
	}

	executor, err := orchestrator.NewExecutor(client, registry, cfg.Agent)
	if err != nil {
		return fmt.Errorf("build executor: %w", err)
	}

	bridge := modelbridge.NewModelBridge(executor, cfg.Server.EngineTimeout)

	gate, err := server.NewAuthGate(cfg.Auth)
	if err != nil {
		return fmt.Errorf("build auth gate: %w", err)
	}

	if cfg.Logging.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	mcp := mcpserver.NewStreamableHTTPServer(tools.NewMCPServer(registry, version))
	srv := server.New(bridge, gate,
		server.WithModelAlias(cfg.Server.ModelAlias),
		server.WithMCP(mcp),
	)

	httpServer := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		mainLog.Info("Starting itsm-agent %s on %s (model=%s, auth=%s, tools=%v)",
			version, cfg.Server.Addr, cfg.LLM.Model, gate.Mode(), registry.Names())
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gCtx.Done()
		mainLog.Info("Shutting down, draining for up to %s", cfg.Server.ShutdownTimeout)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		mainLog.WithError(err).Error("Server stopped with error")
		return err
	}
	mainLog.Info("Server stopped")
	return nil
}
