package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/nstogner/autodev/pkg/domain"
	"github.com/nstogner/autodev/pkg/features"
	featuresqlite "github.com/nstogner/autodev/pkg/features/sqlite"
	"github.com/nstogner/autodev/pkg/model/gemini"
	"github.com/nstogner/autodev/pkg/server"
	"github.com/nstogner/autodev/pkg/session"
	"github.com/nstogner/autodev/pkg/tools"
)

const instructions = `You are an autonomous software developer working inside a project directory.
You build the application described by the project spec, one feature at a time.

Use the feature tracker tools to decide what to work on: take the next pending
feature, implement it with the file and shell tools, verify it, then mark it
passing. Re-check previously passing features when your changes could affect
them. When the user describes a new application, write its specification to
prompts/app_spec.txt and create the feature list with feature_create_bulk.`

func main() {
	// Setup logger.
	opts := &slog.HandlerOptions{Level: slog.LevelDebug}
	logger := slog.New(slog.NewTextHandler(os.Stderr, opts))
	slog.SetDefault(logger)

	// Config.
	addr := flag.String("addr", ":8080", "listen address")
	modelName := flag.String("model", "gemini-2.5-pro", "model name")
	dataDir := flag.String("data-dir", "data", "directory holding project workspaces")
	flag.Parse()

	apiKey := os.Getenv("GEMINI_API_KEY")
	if apiKey == "" {
		slog.Error("GEMINI_API_KEY environment variable not set")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	projectsDir, err := filepath.Abs(*dataDir)
	if err != nil {
		slog.Error("Failed to resolve data dir", "error", err)
		os.Exit(1)
	}
	if err := os.MkdirAll(projectsDir, 0o755); err != nil {
		slog.Error("Failed to create data dir", "error", err)
		os.Exit(1)
	}

	// Initialize model provider.
	provider, err := gemini.New(ctx, apiKey)
	if err != nil {
		slog.Error("Failed to initialize Gemini provider", "error", err)
		os.Exit(1)
	}

	// One feature store per project, shared between sessions and the
	// stats endpoint, closed on shutdown.
	stores := &storeCache{
		projectsDir: projectsDir,
		stores:      make(map[string]*featuresqlite.Store),
	}
	defer stores.CloseAll()

	registry := session.NewRegistry(func(project string) (*session.Session, error) {
		store, err := stores.Get(project)
		if err != nil {
			return nil, err
		}
		reg := tools.NewRegistry(filepath.Join(projectsDir, project))
		features.RegisterTools(reg, store)
		return session.New(project, session.Config{
			Provider:     provider,
			Tools:        reg,
			Model:        *modelName,
			Instructions: instructions,
		}), nil
	})

	srv := server.New(projectsDir, registry, func(ctx context.Context, project string) (domain.FeatureStats, error) {
		store, err := stores.Get(project)
		if err != nil {
			return domain.FeatureStats{}, err
		}
		return store.Stats(ctx)
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start(*addr)
	}()

	select {
	case err := <-errCh:
		slog.Error("Server failed", "error", err)
		os.Exit(1)
	case <-ctx.Done():
	}

	slog.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server shutdown", "error", err)
	}
	registry.CleanupAll()
}

// storeCache opens one sqlite feature store per project on demand.
type storeCache struct {
	projectsDir string

	mu     sync.Mutex
	stores map[string]*featuresqlite.Store
}

func (c *storeCache) Get(project string) (*featuresqlite.Store, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if s, ok := c.stores[project]; ok {
		return s, nil
	}
	dir := filepath.Join(c.projectsDir, project)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	s, err := featuresqlite.New(filepath.Join(dir, "features.db"))
	if err != nil {
		return nil, err
	}
	c.stores[project] = s
	return s, nil
}

func (c *storeCache) CloseAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for project, s := range c.stores {
		if err := s.Close(); err != nil {
			slog.Warn("Failed to close feature store", "project", project, "error", err)
		}
	}
	c.stores = map[string]*featuresqlite.Store{}
}
