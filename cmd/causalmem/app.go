package main

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/causalmem/causalmem/internal/config"
	"github.com/causalmem/causalmem/internal/embed"
	"github.com/causalmem/causalmem/internal/engine"
	"github.com/causalmem/causalmem/internal/judge"
	"github.com/causalmem/causalmem/internal/storage/sqlite"
)

// newLogger builds the process logger. Logs go to stderr so the MCP stdio
// transport keeps stdout clean for protocol frames.
func newLogger() (*zap.Logger, error) {
	zcfg := zap.NewProductionConfig()
	if verboseFlag {
		zcfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	}
	return zcfg.Build()
}

// buildEngine assembles the memory core from configuration: sqlite store,
// cached embedder, and judge. Without Anthropic credentials the judge is
// disabled and events link only via the similarity fallback.
func buildEngine(ctx context.Context, cfg *config.Config, log *zap.Logger) (*engine.Engine, error) {
	store, err := sqlite.New(ctx, cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening event store: %w", err)
	}

	embedder, err := embed.NewOpenAI(cfg.EmbeddingModel, cfg.LLMTimeout, log)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("initializing embedder: %w", err)
	}
	cached, err := embed.NewCached(embedder, cfg.EmbeddingCacheSize)
	if err != nil {
		store.Close()
		return nil, err
	}

	var j judge.Judge
	anthropicJudge, err := judge.NewAnthropic(judge.Options{
		Model:       cfg.LLMModel,
		Temperature: cfg.LLMTemperature,
		Timeout:     cfg.LLMTimeout,
	}, log)
	if err != nil {
		log.Warn("causality judge disabled, events will link via similarity only",
			zap.Error(err))
		j = judge.Disabled{}
	} else {
		j = anthropicJudge
	}

	return engine.New(store, cached, j, engine.Options{
		SimilarityThreshold: cfg.SimilarityThreshold,
		SoftLinkThreshold:   cfg.SoftLinkThreshold,
		MaxPotentialCauses:  cfg.MaxPotentialCauses,
		TimeDecayHours:      cfg.TimeDecayHours,
		MaxConsequenceDepth: cfg.MaxConsequenceDepth,
	}, log), nil
}
