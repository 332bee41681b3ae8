package control

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/xela07ax/spaceai-agent-pipeline/internal/infra"
)

// FlagSource — долговременное хранилище флагов (колонка в таблице agents).
type FlagSource interface {
	FlaggedIDs(ctx context.Context, column string) ([]string, error)
}

// FlagManager держит L1-кэш булевого флага агентов (пауза, dry-run),
// синхронизированный с Redis set и сигналами Pub/Sub.
type FlagManager struct {
	column  string
	setKey  string
	lockKey string
	channel string

	repo   FlagSource
	rdb    *redis.Client
	logger *zap.Logger

	mu  sync.RWMutex
	ids map[string]bool
}

func newFlagManager(column, setKey, lockKey, channel string, rdb *redis.Client, repo FlagSource, logger *zap.Logger) *FlagManager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FlagManager{
		column:  column,
		setKey:  setKey,
		lockKey: lockKey,
		channel: channel,
		repo:    repo,
		rdb:     rdb,
		logger:  logger.With(zap.String("mod", column)),
		ids:     make(map[string]bool),
	}
}

// NewPausedFlags — агенты на паузе не получают события.
func NewPausedFlags(rdb *redis.Client, repo FlagSource, logger *zap.Logger) *FlagManager {
	return newFlagManager("paused", infra.RedisKeyPausedAgents, infra.RedisKeyLockPaused, infra.RedisChanPause, rdb, repo, logger)
}

// NewDryRunFlags — агенты в dry-run имитируют запись в БД и вызовы агентов.
func NewDryRunFlags(rdb *redis.Client, repo FlagSource, logger *zap.Logger) *FlagManager {
	return newFlagManager("dry_run", infra.RedisKeyDryRunAgents, infra.RedisKeyLockDryRun, infra.RedisChanDryRun, rdb, repo, logger)
}

// Init загружает состояние флага из БД (источник истины) и сверяет с ним Redis.
// Вызывается при старте и после каждого переподключения слушателя.
func (m *FlagManager) Init(ctx context.Context) error {
	var ids []string
	if m.repo != nil {
		var err error
		ids, err = m.repo.FlaggedIDs(ctx, m.column)
		if err != nil {
			return fmt.Errorf("failed to fetch %s agents from DB: %w", m.column, err)
		}
	}
	m.replaceLocal(ids)
	m.reconcileRedis(ctx, ids)
	return nil
}

// StartListener подписывается на изменения флага в реальном времени. Блокирует до отмены ctx.
func (m *FlagManager) StartListener(ctx context.Context) {
	if m.rdb == nil {
		return
	}
	m.listen(ctx)
}

// Set меняет флаг локально и рассылает сигнал остальным инстансам.
func (m *FlagManager) Set(ctx context.Context, agentID string, on bool) error {
	m.apply(agentID, on)
	if m.rdb == nil {
		return nil
	}

	pipe := m.rdb.TxPipeline()
	if on {
		pipe.SAdd(ctx, m.setKey, agentID)
	} else {
		pipe.SRem(ctx, m.setKey, agentID)
	}
	pipe.Publish(ctx, m.channel, FormatSignal(agentID, on))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("broadcast %s signal: %w", m.column, err)
	}
	return nil
}

func (m *FlagManager) apply(agentID string, on bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if on {
		m.ids[agentID] = true
	} else {
		delete(m.ids, agentID)
	}
}

// Has — быстрый метод для проверки в горячем пути
func (m *FlagManager) Has(agentID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.ids[agentID]
}

// IDs возвращает отсортированный список агентов с включённым флагом.
func (m *FlagManager) IDs() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.ids))
	for id := range m.ids {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
