package control

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	resubscribeDelay = 5 * time.Second
	reconnectDelay   = time.Second
)

// listen держит подписку на канал флага, пока жив ctx. После каждой (пере)подписки
// состояние перечитывается из БД: сигналы, пришедшие во время разрыва, потеряны.
func (m *FlagManager) listen(ctx context.Context) {
	for {
		sub, err := m.subscribe(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			m.logger.Error("flag subscription failed", zap.String("chan", m.channel), zap.Error(err))
			if !sleepCtx(ctx, resubscribeDelay) {
				return
			}
			continue
		}

		if err := m.Init(ctx); err != nil {
			m.logger.Error("flag resync failed", zap.Error(err))
		}
		done := m.consume(ctx, sub.Channel())
		_ = sub.Close()
		if done || !sleepCtx(ctx, reconnectDelay) {
			return
		}
	}
}

func (m *FlagManager) subscribe(ctx context.Context) (*redis.PubSub, error) {
	sub := m.rdb.Subscribe(ctx, m.channel)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, err
	}
	return sub, nil
}

// consume применяет сигналы; true — ctx отменён, false — канал закрыт и нужна переподписка.
func (m *FlagManager) consume(ctx context.Context, ch <-chan *redis.Message) bool {
	for {
		select {
		case <-ctx.Done():
			return true
		case msg, ok := <-ch:
			if !ok {
				return false
			}
			id, on, valid := ParseSignal(msg.Payload)
			if !valid {
				m.logger.Warn("invalid flag signal", zap.String("payload", msg.Payload))
				continue
			}
			m.apply(id, on)
		}
	}
}

// ParseSignal разбирает "agent_id:status", status — true/false или on/off.
func ParseSignal(payload string) (string, bool, bool) {
	i := strings.LastIndex(payload, ":")
	if i <= 0 || i == len(payload)-1 {
		return "", false, false
	}
	id, raw := payload[:i], strings.ToLower(payload[i+1:])
	switch raw {
	case "on":
		return id, true, true
	case "off":
		return id, false, true
	}
	status, err := strconv.ParseBool(raw)
	if err != nil {
		return "", false, false
	}
	return id, status, true
}

// FormatSignal — обратная операция к ParseSignal.
func FormatSignal(id string, status bool) string {
	return id + ":" + strconv.FormatBool(status)
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
