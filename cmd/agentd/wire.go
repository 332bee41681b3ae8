package main

import (
	"context"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xela07ax/spaceai-agent-pipeline/internal/domain"
	"github.com/xela07ax/spaceai-agent-pipeline/internal/infra"
	"github.com/xela07ax/spaceai-agent-pipeline/internal/llm"
	"github.com/xela07ax/spaceai-agent-pipeline/internal/llm/openai"
	"github.com/xela07ax/spaceai-agent-pipeline/internal/notify"
	"github.com/xela07ax/spaceai-agent-pipeline/internal/pipeline"
)

func loadConfig(cmd *cobra.Command) (*infra.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	return infra.LoadConfig(path)
}

func llmConfig(cfg *infra.Config) llm.Config {
	return llm.Config{
		BaseURL:     cfg.LLM.BaseURL,
		APIKey:      cfg.LLM.APIKey,
		MaxTokens:   cfg.LLM.MaxTokens,
		Temperature: float32(cfg.LLM.Temperature),
		Timeout:     cfg.LLM.Timeout,
	}
}

// buildModel — OpenAI-совместимый клиент за лимитером, предохранителем и ретраями.
func buildModel(cfg *infra.Config, metrics *pipeline.Metrics) llm.Provider {
	client := openai.New(llmConfig(cfg))
	return llm.NewReliableProvider("openai", client, llm.ReliabilityConfig{
		RatePerSecond:    cfg.LLM.RatePerSecond,
		Burst:            cfg.LLM.Burst,
		Attempts:         cfg.LLM.Attempts,
		CallTimeout:      cfg.LLM.Timeout,
		CBMaxRequests:    cfg.Engine.CBMaxRequests,
		CBInterval:       cfg.Engine.CBInterval,
		CBTimeout:        cfg.Engine.CBTimeout,
		CBFailureTrigger: cfg.Engine.CBFailureTrigger,
		OnBreakerChange:  metrics.BreakerObserver(),
	})
}

// echoModel возвращает собранный промпт как ответ; для офлайн-прогонов.
func echoModel() llm.Provider {
	return llm.ProviderFunc(func(_ context.Context, req llm.Request) (*llm.Response, error) {
		return &llm.Response{Output: req.Prompt}, nil
	})
}

func buildNotifier(cfg *infra.Config, logger *zap.Logger) *notify.Notifier {
	n := notify.NewNotifier(logger)
	n.Register(domain.ChannelWebhook, notify.NewWebhookTransport(nil))
	if cfg.Telegram.BotToken != "" {
		tg, err := notify.NewTelegramTransport(cfg.Telegram.BotToken)
		if err != nil {
			// Канал telegram будет отдавать unsupported, остальные работают
			logger.Warn("telegram transport disabled", zap.Error(err))
		} else {
			n.Register(domain.ChannelTelegram, tg)
		}
	}
	return n
}
