package cmd

import (
	"log/slog"

	"github.com/nextlevelbuilder/deskbot/internal/config"
	"github.com/nextlevelbuilder/deskbot/internal/providers"
)

func newProvider(cfg *config.Config) providers.Provider {
	p := cfg.Providers.OpenAI
	provider := providers.NewOpenAIProvider("openai", p.APIKey, p.APIBase, cfg.AISettings().Model)
	slog.Info("registered provider", "name", provider.Name(), "model", provider.DefaultModel())
	return provider
}
