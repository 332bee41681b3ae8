package history

/*
Recorder — асинхронный приёмник журналов запусков.

- Record не блокирует раннер: журнал кладётся в буферизированный канал,
  при переполнении сбрасывается с ошибкой в лог (load shedding).
- Воркер копит журналы и пишет пачкой по таймеру или по достижении BatchSize.
- Stop закрывает вход и дожидается финального flush (drain pattern).
*/

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/xela07ax/spaceai-agent-pipeline/internal/domain"
)

// Store определяет, куда физически сохраняются журналы.
type Store interface {
	WriteBatch(ctx context.Context, logs []*domain.ExecutionLog) error
}

// Reader отдаёт историю запусков агента, новые первыми.
type Reader interface {
	ListRuns(ctx context.Context, agentID string, limit int) ([]*domain.ExecutionLog, error)
}

type Options struct {
	BufferSize    int
	BatchSize     int
	FlushInterval time.Duration
	// Fill — gauge заполненности буфера, опционально.
	Fill prometheus.Gauge
}

type Recorder struct {
	ch     chan *domain.ExecutionLog
	repo   Store
	opts   Options
	logger *zap.Logger
	wg     sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

func NewRecorder(repo Store, logger *zap.Logger, opts Options) *Recorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.BufferSize <= 0 {
		opts.BufferSize = 1000
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 100
	}
	if opts.FlushInterval <= 0 {
		opts.FlushInterval = 500 * time.Millisecond
	}
	return &Recorder{
		ch:     make(chan *domain.ExecutionLog, opts.BufferSize),
		repo:   repo,
		opts:   opts,
		logger: logger.With(zap.String("mod", "history")),
	}
}

func (r *Recorder) Start() {
	r.wg.Add(1)
	go r.worker()
}

// Stop «запирает» вход и ждёт, пока воркер всё допишет.
func (r *Recorder) Stop() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	close(r.ch)
	r.mu.Unlock()

	r.logger.Info("stopping history recorder: flushing buffer...")
	r.wg.Wait()
	r.logger.Info("history recorder stopped gracefully")
}

// Record принимает только запечатанный журнал.
func (r *Recorder) Record(log *domain.ExecutionLog) {
	if log == nil || !log.Sealed() {
		r.logger.Warn("unsealed execution log rejected")
		return
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		r.logger.Warn("execution log dropped: recorder is stopping", zap.String("run_id", log.ID))
		return
	}

	select {
	case r.ch <- log:
		r.observeFill()
	default:
		r.logger.Error("history_buffer_overflow",
			zap.String("agent_id", log.AgentID),
			zap.String("run_id", log.ID),
			zap.String("trace_id", log.TraceID))
	}
}

func (r *Recorder) observeFill() {
	if r.opts.Fill != nil {
		r.opts.Fill.Set(float64(len(r.ch)))
	}
}

func (r *Recorder) worker() {
	defer r.wg.Done()

	batch := make([]*domain.ExecutionLog, 0, r.opts.BatchSize)
	ticker := time.NewTicker(r.opts.FlushInterval)
	defer ticker.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}
		// Background: контекст запуска к этому моменту уже может быть отменён
		if err := r.repo.WriteBatch(context.Background(), batch); err != nil {
			r.logger.Error("history flush failed", zap.Int("size", len(batch)), zap.Error(err))
		}
		batch = make([]*domain.ExecutionLog, 0, r.opts.BatchSize)
		r.observeFill()
	}

	for {
		select {
		case log, ok := <-r.ch:
			if !ok {
				flush()
				return
			}
			batch = append(batch, log)
			if len(batch) >= r.opts.BatchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}
