package llm

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var ErrNoModel = errors.New("model is not selected")

// Provider — внешний коллаборатор, вызывающий языковую модель.
type Provider interface {
	Invoke(ctx context.Context, req Request) (*Response, error)
}

// ProviderFunc позволяет использовать функцию как Provider.
type ProviderFunc func(ctx context.Context, req Request) (*Response, error)

func (f ProviderFunc) Invoke(ctx context.Context, req Request) (*Response, error) { return f(ctx, req) }

type Request struct {
	Model  string         `json:"model"`
	Prompt string         `json:"prompt"`
	Input  map[string]any `json:"input,omitempty"`
}

type Response struct {
	Output string `json:"output"`
	Usage  Usage  `json:"usage"`
}

type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
	TotalTokens  int `json:"total_tokens"`
}

// Config — настройки OpenAI-совместимого бэкенда.
type Config struct {
	BaseURL     string
	APIKey      string
	MaxTokens   int
	Temperature float32
	Timeout     time.Duration
}

// ThrottleError возвращается бэкендом при 429, RetryAfter берётся из заголовка.
type ThrottleError struct {
	RetryAfter time.Duration
	Cause      error
}

func (e *ThrottleError) Error() string {
	return fmt.Sprintf("throttled: retry after %v (cause: %v)", e.RetryAfter, e.Cause)
}

func (e *ThrottleError) Unwrap() error { return e.Cause }
