package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/higherself-ai/higherself/internal/llm"
	"github.com/higherself-ai/higherself/internal/llm/prompt"
	"github.com/higherself-ai/higherself/internal/llm/provider"
	"github.com/higherself-ai/higherself/internal/retry"
	"github.com/higherself-ai/higherself/pkg/config"
	"github.com/higherself-ai/higherself/pkg/session"
)

// loadConfig reads the config file named by the persistent flag.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	return config.Load(path)
}

// buildCompleter wires the configured provider behind a retrying
// completion client.
func buildCompleter(cfg *config.Config) (*llm.Client, error) {
	p, err := provider.New(cfg.Provider, map[string]any{
		"api_key":  cfg.OpenAIKey,
		"base_url": cfg.BaseURL,
	})
	if err != nil {
		return nil, fmt.Errorf("create provider: %w", err)
	}

	return llm.NewClient(p, llm.ClientConfig{
		Model:       cfg.Model,
		Temperature: cfg.Temperature,
		MaxTokens:   cfg.MaxTokens,
		Retry: retry.Policy{
			MaxAttempts: cfg.Retry.MaxAttempts,
			BaseDelay:   cfg.Retry.BaseDelay,
		},
		Timeout: cfg.Timeout,
	}), nil
}

// buildComposer creates the prompt composer from config.
func buildComposer(cfg *config.Config) *prompt.Composer {
	var opts []prompt.Option
	if cfg.Persona != "" {
		opts = append(opts, prompt.WithPersona(cfg.Persona))
	}
	if cfg.TokenBudget > 0 {
		opts = append(opts, prompt.WithTokenBudget(cfg.TokenBudget))
	}
	return prompt.NewComposer(opts...)
}

// buildRepository creates the configured session repository.
func buildRepository(cfg *config.Config) (session.Repository, error) {
	switch cfg.Storage.Backend {
	case "file":
		return session.NewFileRepository(cfg.Storage.Dir)
	case "redis":
		return session.NewRedisRepository(session.RedisConfig{
			Addr:     cfg.Storage.Redis.Addr,
			Password: cfg.Storage.Redis.Password,
			DB:       cfg.Storage.Redis.DB,
			Prefix:   cfg.Storage.Redis.Prefix,
		})
	case "memory":
		return session.NewMemoryRepository(), nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
}

// buildStore loads the session store over the configured repository.
func buildStore(ctx context.Context, cfg *config.Config) (*session.Store, error) {
	repo, err := buildRepository(cfg)
	if err != nil {
		return nil, err
	}
	return session.NewStore(ctx, repo)
}
