package notify

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xela07ax/spaceai-agent-pipeline/internal/domain"
)

// Message — текст уведомления и контекст запуска.
type Message struct {
	AgentID   string    `json:"agent_id"`
	AgentName string    `json:"agent_name"`
	RunID     string    `json:"run_id"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// Transport доставляет сообщение в канал конкретного типа.
type Transport interface {
	Send(ctx context.Context, ch domain.ChannelConfig, msg Message) error
}

type Result struct {
	ChannelID string             `json:"channel_id"`
	Type      domain.ChannelType `json:"type"`
	Status    domain.StepStatus  `json:"status"`
	Error     string             `json:"error,omitempty"`
}

const defaultFanOut = 8

type Notifier struct {
	transports map[domain.ChannelType]Transport
	limit      int
	logger     *zap.Logger
}

// NewNotifier создаёт нотификатор с транспортом log; остальные подключаются через Register.
func NewNotifier(logger *zap.Logger) *Notifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	n := &Notifier{
		transports: make(map[domain.ChannelType]Transport),
		limit:      defaultFanOut,
		logger:     logger.Named("notify"),
	}
	n.Register(domain.ChannelLog, NewLogTransport(logger))
	return n
}

func (n *Notifier) Register(t domain.ChannelType, tr Transport) {
	n.transports[t] = tr
}

// Notify рассылает сообщение во все каналы параллельно. Результат — по одному на канал, в порядке конфигурации.
func (n *Notifier) Notify(ctx context.Context, channels []domain.ChannelConfig, msg Message) []Result {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}
	results := make([]Result, len(channels))

	var g errgroup.Group
	g.SetLimit(n.limit)
	seen := make(map[string]bool, len(channels))
	for i, ch := range channels {
		results[i] = Result{ChannelID: ch.ID, Type: ch.Type}
		if !ch.Enabled {
			results[i].Status = domain.StepSkipped
			continue
		}
		err := checkChannel(ch)
		if err == nil && seen[ch.ID] {
			err = fmt.Errorf("%w: duplicate channel id %q", domain.ErrInvalidChannel, ch.ID)
		}
		seen[ch.ID] = true
		tr, ok := n.transports[ch.Type]
		if err == nil && !ok {
			err = fmt.Errorf("%w: %s", domain.ErrUnsupportedChannel, ch.Type)
		}
		if err != nil {
			results[i].Status = domain.StepError
			results[i].Error = err.Error()
			continue
		}

		g.Go(func() error {
			// Ошибка канала остаётся в его результате и не отменяет соседей
			if err := tr.Send(ctx, ch, msg); err != nil {
				results[i].Status = domain.StepError
				results[i].Error = err.Error()
				n.logger.Warn("channel delivery failed",
					zap.String("channel_id", ch.ID),
					zap.String("type", string(ch.Type)),
					zap.String("agent_id", msg.AgentID),
					zap.Error(err))
				return nil
			}
			results[i].Status = domain.StepSuccess
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// checkChannel — проверка одного канала до отправки.
func checkChannel(ch domain.ChannelConfig) error {
	if ch.ID == "" {
		return fmt.Errorf("%w: channel without id", domain.ErrInvalidChannel)
	}
	switch ch.Type {
	case domain.ChannelTelegram, domain.ChannelWebhook:
		if ch.Target == "" {
			return fmt.Errorf("%w: target is required", domain.ErrInvalidChannel)
		}
	}
	return nil
}
