package domain

import "time"

// Dashboard — сводка для консоли: агенты и запуски за окно.
type Dashboard struct {
	Agents AgentStats `json:"agents"`
	Runs   RunStats   `json:"runs"`
}

type AgentStats struct {
	Total  int `json:"total"`
	Paused int `json:"paused"`
	DryRun int `json:"dry_run"`
}

type RunStats struct {
	Window     time.Duration `json:"window"`
	Total      int64         `json:"total"`
	Completed  int64         `json:"completed"`
	Aborted    int64         `json:"aborted"`
	P95Latency float64       `json:"p95_latency_ms"`
	PerMinute  float64       `json:"runs_per_minute"`
}
