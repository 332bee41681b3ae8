package infra

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/multierr"
)

// Config — корневая структура конфигурации сервиса агентов.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Auth     AuthConfig     `mapstructure:"auth"`
	LLM      LLMConfig      `mapstructure:"llm"`
	Engine   EngineConfig   `mapstructure:"engine"`
	Telegram TelegramConfig `mapstructure:"telegram"`
	Logger   LoggerConfig   `mapstructure:"logger"`
}

// ServerConfig описывает настройки HTTP-сервера.
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// Addr возвращает адрес для http.Server.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// DatabaseConfig описывает подключение к PostgreSQL.
type DatabaseConfig struct {
	URL      string `mapstructure:"url"`
	MaxConns int32  `mapstructure:"max_conns"`
	MinConns int32  `mapstructure:"min_conns"`
}

// RedisConfig описывает подключение к Redis (Pub/Sub и Cache).
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// AuthConfig содержит публичный ключ для проверки JWT. Без ключа API открыт.
type AuthConfig struct {
	PublicKeyPath string        `mapstructure:"public_key_path"`
	Issuer        string        `mapstructure:"issuer"`
	Audience      string        `mapstructure:"audience"`
	Leeway        time.Duration `mapstructure:"leeway"`
	PublicKey     []byte
}

// LLMConfig — OpenAI-совместимый провайдер и его защита.
type LLMConfig struct {
	BaseURL     string        `mapstructure:"base_url"`
	APIKey      string        `mapstructure:"api_key"`
	MaxTokens   int           `mapstructure:"max_tokens"`
	Temperature float64       `mapstructure:"temperature"`
	Timeout     time.Duration `mapstructure:"timeout"`

	RatePerSecond float64 `mapstructure:"rate_per_second"`
	Burst         int     `mapstructure:"burst"`
	Attempts      uint    `mapstructure:"attempts"`
}

// EngineConfig содержит настройки исполнения пайплайна.
type EngineConfig struct {
	Concurrency int `mapstructure:"concurrency"`

	HistoryBufferSize    int           `mapstructure:"history_buffer_size"`
	HistoryBatchSize     int           `mapstructure:"history_batch_size"`
	HistoryFlushInterval time.Duration `mapstructure:"history_flush_interval"`

	// Настройки Circuit Breaker для модели
	CBMaxRequests    uint32        `mapstructure:"cb_max_requests"`
	CBInterval       time.Duration `mapstructure:"cb_interval"`
	CBTimeout        time.Duration `mapstructure:"cb_timeout"`
	CBFailureTrigger uint32        `mapstructure:"cb_failure_trigger"`
}

// TelegramConfig — токен бота для канала telegram. Пустой токен отключает транспорт.
type TelegramConfig struct {
	BotToken string `mapstructure:"bot_token"`
}

// LoggerConfig настраивает поведение zap логгера.
type LoggerConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // json, console
}

// LoadConfig инициализирует конфигурацию, объединяя значения из файла и ENV.
// path может быть пустым, тогда config.yaml ищется в . и ./configs.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
	}

	// SERVER_PORT=9000 перекроет server.port
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Если файла нет — работаем на ENV и дефолтах
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode into struct: %w", err)
	}

	// Сначала проверяем, не лежит ли сам PEM-ключ в ENV (для Docker/K8s)
	cfg.Auth.PublicKey = loadKeyResource(cfg.Auth.PublicKeyPath, "AUTH_PUBLIC_KEY_DATA")

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

// Validate собирает все проблемы конфигурации разом, а не по одной.
func (c *Config) Validate() error {
	var err error
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		err = multierr.Append(err, fmt.Errorf("server.port out of range: %d", c.Server.Port))
	}
	if c.Engine.Concurrency < 1 {
		err = multierr.Append(err, errors.New("engine.concurrency must be >= 1"))
	}
	if c.Engine.HistoryBatchSize > c.Engine.HistoryBufferSize {
		err = multierr.Append(err, fmt.Errorf("engine.history_batch_size %d exceeds buffer %d",
			c.Engine.HistoryBatchSize, c.Engine.HistoryBufferSize))
	}
	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		err = multierr.Append(err, fmt.Errorf("llm.temperature out of range: %v", c.LLM.Temperature))
	}
	if c.LLM.RatePerSecond <= 0 {
		err = multierr.Append(err, errors.New("llm.rate_per_second must be positive"))
	}
	return err
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 5*time.Second)
	v.SetDefault("server.write_timeout", 60*time.Second)
	// Пустые значения нужны, чтобы AutomaticEnv подхватил DATABASE_URL, LLM_API_KEY и т.п.
	v.SetDefault("database.url", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("llm.api_key", "")
	v.SetDefault("telegram.bot_token", "")
	v.SetDefault("auth.public_key_path", "")
	v.SetDefault("auth.issuer", "")
	v.SetDefault("auth.audience", "")
	v.SetDefault("database.max_conns", 15)
	v.SetDefault("database.min_conns", 5)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("llm.base_url", "https://api.openai.com/v1")
	v.SetDefault("llm.max_tokens", 1024)
	v.SetDefault("llm.temperature", 0.2)
	v.SetDefault("llm.timeout", 30*time.Second)
	v.SetDefault("llm.rate_per_second", 5)
	v.SetDefault("llm.burst", 10)
	v.SetDefault("llm.attempts", 3)
	v.SetDefault("engine.concurrency", 4)
	v.SetDefault("engine.history_buffer_size", 1000)
	v.SetDefault("engine.history_batch_size", 100)
	v.SetDefault("engine.history_flush_interval", 500*time.Millisecond)
	v.SetDefault("engine.cb_max_requests", 3)
	v.SetDefault("engine.cb_interval", 60*time.Second)
	v.SetDefault("engine.cb_timeout", 30*time.Second)
	v.SetDefault("engine.cb_failure_trigger", 5)
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "json")
}

func loadKeyResource(path string, envDataKey string) []byte {
	// Если ключ прилетел напрямую в ENV (PEM)
	if data := os.Getenv(envDataKey); data != "" {
		return []byte(data)
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err == nil {
			return data
		}
	}
	return nil
}
