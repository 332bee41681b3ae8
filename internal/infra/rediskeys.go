package infra

// Все ключи живут под общим префиксом, чтобы несколько сервисов могли делить один Redis.
const RedisNamespace = "agentpipe"

// Флаги агентов: множество id + блокировка прогрева + канал сигналов.
const (
	RedisKeyPausedAgents = RedisNamespace + ":agents:paused_set"
	RedisKeyLockPaused   = RedisNamespace + ":lock:warmup:paused"
	RedisChanPause       = RedisNamespace + ":agents:pause-signal"

	RedisKeyDryRunAgents = RedisNamespace + ":agents:dry_run_set"
	RedisKeyLockDryRun   = RedisNamespace + ":lock:warmup:dry_run"
	RedisChanDryRun      = RedisNamespace + ":agents:dry-run-signal"
)

// RedisChanUIPrefix — события назначений типа ui_component.
const RedisChanUIPrefix = RedisNamespace + ":ui:"

// UIChannel возвращает канал Pub/Sub для компонента интерфейса.
func UIChannel(component string) string {
	return RedisChanUIPrefix + component
}
