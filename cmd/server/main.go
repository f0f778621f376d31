package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/apex/log"
	"github.com/spf13/cobra"

	"github.com/katakuxiko/ragsearch/internal/api"
	"github.com/katakuxiko/ragsearch/internal/config"
	"github.com/katakuxiko/ragsearch/internal/logging"
	"github.com/katakuxiko/ragsearch/internal/service"
	"github.com/katakuxiko/ragsearch/internal/store"
)

const shutdownTimeout = 15 * time.Second

func main() {
	if err := newServerCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newServerCommand() *cobra.Command {
	var envFile, addr, logLevel string

	cmd := &cobra.Command{
		Use:          "server",
		Short:        "Serve the RAG query API",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), envFile, addr, logLevel)
		},
	}
	cmd.Flags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before reading the environment")
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides SERVER_ADDR)")
	cmd.Flags().StringVar(&logLevel, "log-level", "", "log level (overrides LOG_LEVEL)")
	return cmd
}

func run(ctx context.Context, envFile, addr, logLevel string) error {
	cfg, cfgErr := config.Load(envFile)
	if cfg == nil {
		return cfgErr
	}
	if addr != "" {
		cfg.ServerAddr = addr
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	if err := logging.Setup(cfg.LogLevel, cfg.LogFormat); err != nil {
		return err
	}

	// A broken configuration keeps the pipeline down for the life of the
	// process, but the server still starts so /health can say so.
	var rag api.Answerer
	startErr := cfgErr
	if startErr == nil {
		svc, closeFn, err := buildRAGService(cfg)
		if err != nil {
			startErr = err
		} else {
			rag = svc
			defer closeFn()
		}
	}
	if startErr != nil {
		log.WithError(startErr).Error("rag service unavailable, serving health checks only")
	}

	app := api.NewApp(cfg.CORSOrigins)
	api.RegisterRoutes(app, api.NewHandler(rag, startErr))

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() { errCh <- app.Listen(cfg.ServerAddr) }()
	log.WithFields(log.Fields{
		"addr":    cfg.ServerAddr,
		"backend": cfg.SearchBackend,
		"ready":   rag != nil,
	}).Info("server started")

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		log.Info("shutting down")
		return app.ShutdownWithTimeout(shutdownTimeout)
	}
}

// buildRAGService constructs the clients once; they are shared read-only by
// every request afterwards.
func buildRAGService(cfg *config.Config) (*service.RAGService, func(), error) {
	llm := service.NewLLMClient(cfg)

	var searcher service.Searcher
	closeFn := func() {}
	switch cfg.SearchBackend {
	case config.BackendPgVector:
		pg, err := store.NewPgStore(cfg.PgConn, cfg.EmbedDimensions)
		if err != nil {
			return nil, nil, fmt.Errorf("connect pgvector: %w", err)
		}
		searcher = pg
		closeFn = func() { _ = pg.Close() }
	default:
		searcher = store.NewAzureSearch(cfg)
	}

	retriever := service.NewRetriever(llm, searcher)
	return service.NewRAGService(retriever, llm, cfg.TopK), closeFn, nil
}
