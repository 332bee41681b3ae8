package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/avast/retry-go/v5"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"
)

// ReliabilityConfig — лимиты и предохранитель вокруг вызовов модели.
type ReliabilityConfig struct {
	RatePerSecond    float64
	Burst            int
	Attempts         uint
	CallTimeout      time.Duration
	CBMaxRequests    uint32
	CBInterval       time.Duration
	CBTimeout        time.Duration
	CBFailureTrigger uint32
	// OnBreakerChange вызывается при смене состояния предохранителя.
	OnBreakerChange func(name string, open bool)
}

func DefaultReliability() ReliabilityConfig {
	return ReliabilityConfig{
		RatePerSecond:    10,
		Burst:            5,
		Attempts:         3,
		CallTimeout:      60 * time.Second,
		CBMaxRequests:    3,
		CBInterval:       5 * time.Second,
		CBTimeout:        30 * time.Second,
		CBFailureTrigger: 5,
	}
}

// ReliableProvider оборачивает Provider лимитером, предохранителем и ретраями.
type ReliableProvider struct {
	next        Provider
	cb          *gobreaker.CircuitBreaker
	limiter     *rate.Limiter
	attempts    uint
	callTimeout time.Duration
}

func NewReliableProvider(name string, next Provider, cfg ReliabilityConfig) *ReliableProvider {
	def := DefaultReliability()
	if cfg.RatePerSecond <= 0 {
		cfg.RatePerSecond = def.RatePerSecond
	}
	if cfg.Burst <= 0 {
		cfg.Burst = def.Burst
	}
	if cfg.Attempts == 0 {
		cfg.Attempts = def.Attempts
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = def.CallTimeout
	}
	if cfg.CBFailureTrigger == 0 {
		cfg.CBFailureTrigger = def.CBFailureTrigger
	}

	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: cfg.CBMaxRequests,
		Interval:    cfg.CBInterval,
		Timeout:     cfg.CBTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.CBFailureTrigger
		},
	}
	if cfg.OnBreakerChange != nil {
		notify := cfg.OnBreakerChange
		settings.OnStateChange = func(name string, _ gobreaker.State, to gobreaker.State) {
			notify(name, to == gobreaker.StateOpen)
		}
	}

	return &ReliableProvider{
		next:        next,
		cb:          gobreaker.NewCircuitBreaker(settings),
		limiter:     rate.NewLimiter(rate.Limit(cfg.RatePerSecond), cfg.Burst),
		attempts:    cfg.Attempts,
		callTimeout: cfg.CallTimeout,
	}
}

func (p *ReliableProvider) Invoke(ctx context.Context, req Request) (*Response, error) {
	if req.Model == "" {
		return nil, ErrNoModel
	}
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit exceeded: %w", err)
	}

	res, err := p.cb.Execute(func() (interface{}, error) {
		var out *Response
		r := retry.New(
			retry.Context(ctx),
			retry.Attempts(p.attempts),
			retry.DelayType(func(n uint, err error, config retry.DelayContext) time.Duration {
				var tErr *ThrottleError
				if errors.As(err, &tErr) && tErr.RetryAfter > 0 {
					return tErr.RetryAfter
				}
				return retry.BackOffDelay(n, err, config)
			}),
		)
		retryErr := r.Do(func() error {
			tCtx, cancel := context.WithTimeout(ctx, p.callTimeout)
			defer cancel()

			var callErr error
			out, callErr = p.next.Invoke(tCtx, req)
			return callErr
		})
		return out, retryErr
	})
	if err != nil {
		return nil, err
	}
	return res.(*Response), nil
}
