package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/structify/rfpchunk/internal/api"
	"github.com/structify/rfpchunk/internal/chunking"
	"github.com/structify/rfpchunk/internal/config"
	"github.com/structify/rfpchunk/internal/llm"
	"github.com/structify/rfpchunk/internal/storage"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	log := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLevel(cfg.LogLevel),
	}))

	if err := cfg.Validate(); err != nil {
		log.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	// Initialize clients.
	stats := llm.NewStats(time.Hour)
	completer := llm.NewClient(cfg.LLMBaseURL, cfg.LLMAPIKey, llm.Options{
		Model:       cfg.LLMModel,
		Temperature: cfg.LLMTemperature,
		MaxTokens:   cfg.LLMMaxTokens,
		Timeout:     cfg.LLMTimeout,
	}, stats)

	store, err := storage.NewStore(cfg.StorageDir, log)
	if err != nil {
		log.Error("failed to initialize storage", "error", err)
		os.Exit(1)
	}

	// Initialize pipeline.
	limits := chunking.Limits{
		MinTokens:    cfg.MinChunkTokens,
		TargetTokens: cfg.TargetChunkTokens,
		MaxTokens:    cfg.MaxChunkTokens,
	}
	pipe := chunking.NewPipeline(completer, limits, cfg.CharsPerPage, log)

	// Initialize HTTP server.
	srv := api.NewServer(pipe, store, stats, log, cfg)

	httpServer := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      srv,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown.
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		log.Info("shutting down...")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		httpServer.Shutdown(shutdownCtx)

		completer.Close()
	}()

	log.Info("starting rfpchunk", "port", cfg.Port, "model", cfg.LLMModel)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Error("server error", "error", err)
		os.Exit(1)
	}
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
