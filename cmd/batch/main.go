// Command batch chunks a directory of layout-analyzed documents
// (*.json layout results) without going through the HTTP API.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/schollz/progressbar/v3"

	"github.com/structify/rfpchunk/internal/chunking"
	"github.com/structify/rfpchunk/internal/config"
	"github.com/structify/rfpchunk/internal/document"
	"github.com/structify/rfpchunk/internal/layout"
	"github.com/structify/rfpchunk/internal/llm"
	"github.com/structify/rfpchunk/internal/storage"
)

func main() {
	inputDir := flag.String("input", "", "directory of layout result JSON files")
	configPath := flag.String("config", "", "path to YAML config file")
	flag.Parse()

	if *inputDir == "" {
		fmt.Fprintln(os.Stderr, "usage: batch -input <dir> [-config <file>]")
		os.Exit(2)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}

	log := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))

	stats := llm.NewStats(time.Hour)
	completer := llm.NewClient(cfg.LLMBaseURL, cfg.LLMAPIKey, llm.Options{
		Model:       cfg.LLMModel,
		Temperature: cfg.LLMTemperature,
		MaxTokens:   cfg.LLMMaxTokens,
		Timeout:     cfg.LLMTimeout,
	}, stats)
	defer completer.Close()

	store, err := storage.NewStore(cfg.StorageDir, log)
	if err != nil {
		fmt.Fprintln(os.Stderr, "storage:", err)
		os.Exit(1)
	}

	pipe := chunking.NewPipeline(completer, chunking.Limits{
		MinTokens:    cfg.MinChunkTokens,
		TargetTokens: cfg.TargetChunkTokens,
		MaxTokens:    cfg.MaxChunkTokens,
	}, cfg.CharsPerPage, log)

	files, err := filepath.Glob(filepath.Join(*inputDir, "*.json"))
	if err != nil || len(files) == 0 {
		fmt.Fprintln(os.Stderr, "no layout result files found in", *inputDir)
		os.Exit(1)
	}

	bar := progressbar.NewOptions(len(files),
		progressbar.OptionSetDescription("chunking"),
		progressbar.OptionShowCount(),
		progressbar.OptionClearOnFinish(),
	)

	var processed, failed, totalChunks, fallbacks int
	for _, path := range files {
		if err := processFile(context.Background(), pipe, store, path, &totalChunks, &fallbacks); err != nil {
			color.Red("%s: %v", filepath.Base(path), err)
			failed++
		} else {
			processed++
		}
		bar.Add(1)
	}

	color.Green("processed %d documents, %d chunks", processed, totalChunks)
	if fallbacks > 0 {
		color.Yellow("%d documents used fallback chunking", fallbacks)
	}
	if failed > 0 {
		color.Red("%d documents failed", failed)
		os.Exit(1)
	}
}

func processFile(ctx context.Context, pipe *chunking.Pipeline, store *storage.Store, path string, totalChunks, fallbacks *int) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var result layout.Result
	if err := json.Unmarshal(data, &result); err != nil {
		return fmt.Errorf("parse layout result: %w", err)
	}

	meta := &document.Metadata{
		DocumentID:    docIDFromPath(path),
		DocumentTitle: strings.TrimSuffix(filepath.Base(path), ".json"),
	}

	rawText, tables, images := layout.Extract(&result)
	if _, err := store.SaveRawText(meta.DocumentID, rawText); err == nil {
		for i := range tables {
			store.SaveTable(meta.DocumentID, &tables[i])
		}
		for i := range images {
			store.SaveFigureText(meta.DocumentID, &images[i])
		}
	}

	res, err := pipe.Process(ctx, rawText, tables, images, meta)
	if err != nil {
		return err
	}
	if res.FallbackUsed {
		*fallbacks++
	}
	*totalChunks += len(res.Chunks)

	_, err = store.SaveChunks(meta.DocumentID, res.Chunks)
	return err
}

// docIDFromPath keeps the file stem as a readable id component and
// appends a short random suffix so re-runs never overwrite each other.
func docIDFromPath(path string) string {
	stem := strings.TrimSuffix(filepath.Base(path), ".json")
	return fmt.Sprintf("%s-%s", stem, uuid.NewString()[:8])
}
