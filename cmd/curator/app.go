package main

import (
	"context"
	"fmt"

	"github.com/jonathan/video-curator/internal/analysis"
	"github.com/jonathan/video-curator/internal/config"
	"github.com/jonathan/video-curator/internal/curator"
	"github.com/jonathan/video-curator/internal/db"
	"github.com/jonathan/video-curator/internal/funnel"
	"github.com/jonathan/video-curator/internal/llm"
	"github.com/jonathan/video-curator/internal/platform"
	"github.com/jonathan/video-curator/internal/quota"
	"github.com/jonathan/video-curator/internal/rotation"
)

// defaultFallbackTopics seed the rotation policy's topic queries until the
// operator configures their own.
var defaultFallbackTopics = []string{
	"chess lesson",
	"chess tutorial for beginners",
	"chess middlegame strategy",
	"chess endgame technique",
}

// app bundles the wired service graph behind every subcommand.
type app struct {
	cfg          config.Config
	db           *db.DB
	tracker      *quota.Tracker
	toggle       *curator.Toggle
	orchestrator *curator.Orchestrator
	llmClient    llm.Client
	worker       *analysis.Worker
}

// loadAppConfig loads the optional config file and fills credentials from
// the environment.
func loadAppConfig(path string) (config.Config, error) {
	var cfg config.Config
	if path != "" {
		loaded, err := config.LoadConfig(path)
		if err != nil {
			return cfg, fmt.Errorf("failed to load config: %w", err)
		}
		if err := loaded.Validate(); err != nil {
			return cfg, err
		}
		cfg = *loaded
	}
	cfg.FromEnv()
	return cfg, nil
}

// newApp connects the database and external clients and wires the
// orchestrator stack.
func newApp(ctx context.Context, cfg config.Config) (*app, error) {
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL environment variable is required")
	}
	if cfg.YouTubeAPIKey == "" {
		return nil, fmt.Errorf("YOUTUBE_API_KEY environment variable is required")
	}

	database, err := db.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	platClient, err := platform.NewClient(ctx, cfg.YouTubeAPIKey)
	if err != nil {
		database.Close()
		return nil, fmt.Errorf("failed to create platform client: %w", err)
	}

	tracker := quota.NewTracker(database, cfg.DailyQuotaBudget, platClient)

	settings, err := database.GetSettings(ctx)
	if err != nil {
		database.Close()
		return nil, fmt.Errorf("failed to read settings: %w", err)
	}
	toggle := curator.NewToggle(settings.Enabled, database)

	topics := settings.FallbackTopics
	if len(topics) == 0 {
		topics = defaultFallbackTopics
	}
	policy := rotation.New(database, topics)

	runCfg := curator.DefaultConfig()
	if cfg.MaxSearchesPerRun > 0 {
		runCfg.MaxSearchesPerRun = cfg.MaxSearchesPerRun
	}
	if cfg.MaxResultsPerSearch > 0 {
		runCfg.MaxResultsPerSearch = int64(cfg.MaxResultsPerSearch)
	}
	if cfg.TargetLibrarySize > 0 {
		runCfg.TargetLibrarySize = cfg.TargetLibrarySize
	}

	a := &app{
		cfg:     cfg,
		db:      database,
		tracker: tracker,
		toggle:  toggle,
		orchestrator: curator.New(
			database, platClient, tracker,
			funnel.New(database, funnel.DefaultConfig()),
			policy, toggle, runCfg,
		),
	}

	// The analysis worker is optional: without a Gemini key the curation
	// pipeline still runs, the queue just accumulates.
	if cfg.GeminiAPIKey != "" {
		gem, err := llm.NewGeminiClient(ctx, nil, cfg.GeminiAPIKey)
		if err != nil {
			database.Close()
			return nil, fmt.Errorf("failed to create LLM client: %w", err)
		}
		a.llmClient = gem
		a.worker = analysis.NewWorker(database, gem, cfg.AnalysisConcurrency)
	}

	return a, nil
}

func (a *app) Close() {
	if a.llmClient != nil {
		_ = a.llmClient.Close()
	}
	a.db.Close()
}
