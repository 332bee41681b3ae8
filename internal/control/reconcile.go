package control

import (
	"context"
	"time"

	"go.uber.org/zap"
)

const reconcileLockTTL = 30 * time.Second

// replaceLocal заменяет L1 целиком: флаг, снятый пока слушатель был отключён, не должен залипнуть.
func (m *FlagManager) replaceLocal(ids []string) {
	next := make(map[string]bool, len(ids))
	for _, id := range ids {
		next[id] = true
	}
	m.mu.Lock()
	m.ids = next
	m.mu.Unlock()
}

// reconcileRedis приводит Redis set к списку из БД. Работает один инстанс за раз (SetNX),
// остальные молча пропускают шаг. Ошибки Redis не мешают старту: L1 уже заполнен.
func (m *FlagManager) reconcileRedis(ctx context.Context, ids []string) {
	if m.rdb == nil {
		return
	}
	got, err := m.rdb.SetNX(ctx, m.lockKey, "reconciling", reconcileLockTTL).Result()
	if err != nil || !got {
		return
	}
	defer m.rdb.Del(context.WithoutCancel(ctx), m.lockKey)

	current, err := m.rdb.SMembers(ctx, m.setKey).Result()
	if err != nil {
		m.logger.Warn("could not read flag set", zap.String("key", m.setKey), zap.Error(err))
		return
	}

	want := make(map[string]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	var stale []any
	for _, id := range current {
		if !want[id] {
			stale = append(stale, id)
		}
		delete(want, id)
	}
	missing := make([]any, 0, len(want))
	for id := range want {
		missing = append(missing, id)
	}
	if len(stale) == 0 && len(missing) == 0 {
		return
	}

	pipe := m.rdb.TxPipeline()
	if len(missing) > 0 {
		pipe.SAdd(ctx, m.setKey, missing...)
	}
	if len(stale) > 0 {
		pipe.SRem(ctx, m.setKey, stale...)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		m.logger.Warn("flag set reconcile failed", zap.String("key", m.setKey), zap.Error(err))
		return
	}
	m.logger.Info("flag set reconciled with database",
		zap.Int("added", len(missing)), zap.Int("removed", len(stale)))
}
