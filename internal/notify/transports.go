package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"
	"unicode/utf8"

	"github.com/avast/retry-go/v5"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/xela07ax/spaceai-agent-pipeline/internal/domain"
)

// LogTransport пишет уведомление в структурированный лог.
type LogTransport struct {
	logger *zap.Logger
}

func NewLogTransport(logger *zap.Logger) *LogTransport {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogTransport{logger: logger.Named("channel")}
}

func (t *LogTransport) Send(_ context.Context, ch domain.ChannelConfig, msg Message) error {
	t.logger.Info("agent notification",
		zap.String("channel_id", ch.ID),
		zap.String("agent_id", msg.AgentID),
		zap.String("run_id", msg.RunID),
		zap.String("text", msg.Text))
	return nil
}

// WebhookTransport отправляет JSON POST на Target канала.
type WebhookTransport struct {
	client   *http.Client
	attempts uint
}

func NewWebhookTransport(client *http.Client) *WebhookTransport {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &WebhookTransport{client: client, attempts: 3}
}

func (t *WebhookTransport) Send(ctx context.Context, ch domain.ChannelConfig, msg Message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal webhook body: %w", err)
	}

	r := retry.New(
		retry.Context(ctx),
		retry.Attempts(t.attempts),
		retry.DelayType(func(n uint, err error, config retry.DelayContext) time.Duration {
			return retry.BackOffDelay(n, err, config)
		}),
	)
	return r.Do(func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, ch.Target, bytes.NewReader(body))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := t.client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		_, _ = io.Copy(io.Discard, resp.Body)

		if resp.StatusCode >= 300 {
			return fmt.Errorf("webhook responded with status %d", resp.StatusCode)
		}
		return nil
	})
}

const maxTelegramMessage = 4096

// TelegramTransport шлёт сообщение в чат, Target канала — chat id.
type TelegramTransport struct {
	bot *tgbotapi.BotAPI
}

func NewTelegramTransport(token string) (*TelegramTransport, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create bot: %w", err)
	}
	return &TelegramTransport{bot: bot}, nil
}

// NewTelegramTransportWithEndpoint позволяет указать свой Bot API сервер.
// endpoint в формате tgbotapi.APIEndpoint: "https://host/bot%s/%s".
func NewTelegramTransportWithEndpoint(token, endpoint string, client *http.Client) (*TelegramTransport, error) {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	bot, err := tgbotapi.NewBotAPIWithClient(token, endpoint, client)
	if err != nil {
		return nil, fmt.Errorf("create bot: %w", err)
	}
	return &TelegramTransport{bot: bot}, nil
}

func (t *TelegramTransport) Send(_ context.Context, ch domain.ChannelConfig, msg Message) error {
	chatID, err := strconv.ParseInt(ch.Target, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid telegram chat id %q: %w", ch.Target, err)
	}
	text := msg.Text
	if msg.AgentName != "" {
		text = msg.AgentName + ":\n" + text
	}
	for _, part := range splitMessage(text) {
		if _, err := t.bot.Send(tgbotapi.NewMessage(chatID, part)); err != nil {
			return fmt.Errorf("send telegram message: %w", err)
		}
	}
	return nil
}

func splitMessage(text string) []string {
	if len(text) <= maxTelegramMessage {
		return []string{text}
	}
	var parts []string
	for len(text) > maxTelegramMessage {
		end := maxTelegramMessage
		// не режем многобайтовый символ пополам
		for end > 0 && !utf8.RuneStart(text[end]) {
			end--
		}
		parts = append(parts, text[:end])
		text = text[end:]
	}
	return append(parts, text)
}
