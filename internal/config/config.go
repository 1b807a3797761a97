package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"strings"
	"time"

	"bedtime-server/internal/ai"
	"bedtime-server/internal/breaker"
	"bedtime-server/pkg/utils"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// BreakerConfig - настройки предохранителя одного провайдера.
// Читаются с префиксом провайдера: OPENAI_BREAKER_TIMEOUT, GEMINI_BREAKER_CAPACITY и т.д.
type BreakerConfig struct {
	Timeout         time.Duration `split_words:"true" default:"45s"`
	ErrorThreshold  float64       `split_words:"true" default:"50"`
	ResetTimeout    time.Duration `split_words:"true" default:"120s"`
	RollingWindow   time.Duration `split_words:"true" default:"60s"`
	RollingBuckets  int           `split_words:"true" default:"10"`
	Capacity        int           `split_words:"true" default:"10"`
	VolumeThreshold uint32        `split_words:"true" default:"0"`
}

// Settings переводит конфигурацию в настройки предохранителя.
func (b BreakerConfig) Settings(name string) breaker.Settings {
	return breaker.Settings{
		Name:                     name,
		Timeout:                  b.Timeout,
		ErrorThresholdPercentage: b.ErrorThreshold,
		ResetTimeout:             b.ResetTimeout,
		RollingCountTimeout:      b.RollingWindow,
		RollingCountBuckets:      b.RollingBuckets,
		Capacity:                 b.Capacity,
		VolumeThreshold:          b.VolumeThreshold,
	}
}

// Config holds the application configuration.
type Config struct {
	Env         string `envconfig:"ENV" default:"development"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`
	LogEncoding string `envconfig:"LOG_ENCODING" default:"json"`
	ServerPort  string `envconfig:"SERVER_PORT" default:"8080"`

	// WriteTimeout должен превышать таймаут предохранителя.
	ReadTimeout     time.Duration `envconfig:"SERVER_READ_TIMEOUT" default:"15s"`
	WriteTimeout    time.Duration `envconfig:"SERVER_WRITE_TIMEOUT" default:"90s"`
	IdleTimeout     time.Duration `envconfig:"SERVER_IDLE_TIMEOUT" default:"60s"`
	ShutdownTimeout time.Duration `envconfig:"SERVER_SHUTDOWN_TIMEOUT" default:"15s"`

	CORSAllowedOrigins string `envconfig:"CORS_ALLOWED_ORIGINS" default:"http://localhost:3000"`

	// Каталог Docker Secrets; в тестах подменяется.
	SecretsDir string `envconfig:"SECRETS_DIR" default:"/run/secrets"`

	// PostgreSQL. Пустой DB_HOST - настройки и история хранятся в памяти.
	DBHost           string        `envconfig:"DB_HOST"`
	DBPort           string        `envconfig:"DB_PORT" default:"5432"`
	DBUser           string        `envconfig:"DB_USER" default:"postgres"`
	DBName           string        `envconfig:"DB_NAME" default:"bedtime"`
	DBSSLMode        string        `envconfig:"DB_SSL_MODE" default:"disable"`
	DBMaxConns       int           `envconfig:"DB_MAX_CONNS" default:"10"`
	DBIdleTimeout    time.Duration `envconfig:"DB_IDLE_TIMEOUT" default:"5m"`
	DBConnectRetries int           `envconfig:"DB_CONNECT_RETRIES" default:"5"`
	DBRetryDelay     time.Duration `envconfig:"DB_RETRY_DELAY" default:"3s"`
	// Секретное поле БЕЗ envconfig тега
	DBPassword string `ignored:"true"`

	// Redis. Пустой REDIS_ADDR - кэш историй и хэш user:{id}:meta отключены.
	RedisAddr           string        `envconfig:"REDIS_ADDR"`
	RedisDB             int           `envconfig:"REDIS_DB" default:"0"`
	RedisConnectRetries int           `envconfig:"REDIS_CONNECT_RETRIES" default:"5"`
	RedisRetryDelay     time.Duration `envconfig:"REDIS_RETRY_DELAY" default:"2s"`
	StoryCacheTTL       time.Duration `envconfig:"STORY_CACHE_TTL" default:"24h"`
	UserMetaTTL         time.Duration `envconfig:"USER_META_TTL" default:"720h"`
	// Секретное поле БЕЗ envconfig тега
	RedisPassword string `ignored:"true"`

	// RabbitMQ. Пустой URL - события не публикуются.
	RabbitMQURL      string `envconfig:"RABBITMQ_URL"`
	StoryEventsQueue string `envconfig:"STORY_EVENTS_QUEUE" default:"story_generated_events"`

	// AI провайдеры
	AIPrimaryProvider string        `envconfig:"AI_PRIMARY_PROVIDER" default:"openai"`
	AIRequestTimeout  time.Duration `envconfig:"AI_REQUEST_TIMEOUT" default:"60s"`
	AIMaxAttempts     int           `envconfig:"AI_MAX_ATTEMPTS" default:"3"`
	AIBaseRetryDelay  time.Duration `envconfig:"AI_BASE_RETRY_DELAY" default:"1s"`
	StoryTemperature  float64       `envconfig:"STORY_TEMPERATURE" default:"0.8"`
	StoryMaxTokens    int           `envconfig:"STORY_MAX_TOKENS" default:"1024"`

	OpenAIModel   string        `envconfig:"OPENAI_MODEL" default:"gpt-4o-mini"`
	OpenAIBaseURL string        `envconfig:"OPENAI_BASE_URL"`
	OpenAIBreaker BreakerConfig `envconfig:"OPENAI_BREAKER"`
	OpenAIAPIKey  string        `ignored:"true"`

	GeminiModel   string        `envconfig:"GEMINI_MODEL" default:"gemini-2.0-flash"`
	GeminiBreaker BreakerConfig `envconfig:"GEMINI_BREAKER"`
	GeminiAPIKey  string        `ignored:"true"`

	OllamaHost    string        `envconfig:"OLLAMA_HOST"`
	OllamaModel   string        `envconfig:"OLLAMA_MODEL" default:"llama3.1"`
	OllamaBreaker BreakerConfig `envconfig:"OLLAMA_BREAKER"`

	// Clerk. Пустой ключ - режим разработки, доверяем X-User-ID.
	ClerkJWTPublicKey string `envconfig:"CLERK_JWT_PUBLIC_KEY"`
	ClerkIssuer       string `envconfig:"CLERK_ISSUER"`

	// BackgroundTimeout ограничивает фоновые записи после генерации.
	BackgroundTimeout time.Duration `envconfig:"BACKGROUND_TIMEOUT" default:"10s"`
}

// ProviderConfig - клиент и предохранитель одного настроенного провайдера.
type ProviderConfig struct {
	Client  ai.ClientConfig
	Breaker breaker.Settings
}

// LoadConfig загружает .env (если есть), переменные окружения и секреты.
func LoadConfig(envFilePath string) (*Config, error) {
	if envFilePath != "" {
		if _, err := os.Stat(envFilePath); err == nil {
			if err := godotenv.Load(envFilePath); err != nil {
				return nil, fmt.Errorf("could not load %s: %w", envFilePath, err)
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("error checking %s: %w", envFilePath, err)
		}
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("error processing env vars: %w", err)
	}

	// Секреты необязательны: без ключа провайдер просто не регистрируется.
	cfg.OpenAIAPIKey = optionalSecret(cfg.SecretsDir, "openai_api_key")
	cfg.GeminiAPIKey = optionalSecret(cfg.SecretsDir, "gemini_api_key")
	cfg.DBPassword = optionalSecret(cfg.SecretsDir, "db_password")
	cfg.RedisPassword = optionalSecret(cfg.SecretsDir, "redis_password")

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func optionalSecret(dir, name string) string {
	secret, err := utils.LookupSecret(dir, name)
	if err != nil {
		return ""
	}
	return secret
}

// Validate проверяет, что основной провайдер настроен и параметры согласованы.
func (c *Config) Validate() error {
	var errs []error

	primary, err := ai.ParseProvider(c.AIPrimaryProvider)
	if err != nil {
		errs = append(errs, fmt.Errorf("AI_PRIMARY_PROVIDER: %w", err))
	} else if !c.providerConfigured(primary) {
		errs = append(errs, fmt.Errorf("primary AI provider '%s' has no credentials or host configured", primary))
	}
	if c.AIMaxAttempts < 1 {
		errs = append(errs, fmt.Errorf("AI_MAX_ATTEMPTS must be at least 1, got %d", c.AIMaxAttempts))
	}
	for _, p := range c.Providers() {
		if err := p.Breaker.Validate(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// PrimaryProvider возвращает провайдера по умолчанию.
func (c *Config) PrimaryProvider() ai.Provider {
	p, _ := ai.ParseProvider(c.AIPrimaryProvider)
	return p
}

func (c *Config) providerConfigured(p ai.Provider) bool {
	switch p {
	case ai.ProviderOpenAI:
		return c.OpenAIAPIKey != ""
	case ai.ProviderGemini:
		return c.GeminiAPIKey != ""
	case ai.ProviderOllama:
		return c.OllamaHost != ""
	}
	return false
}

// Providers возвращает настроенных провайдеров в порядке openai, gemini, ollama.
func (c *Config) Providers() []ProviderConfig {
	var out []ProviderConfig
	if c.providerConfigured(ai.ProviderOpenAI) {
		out = append(out, ProviderConfig{
			Client: ai.ClientConfig{
				Provider: ai.ProviderOpenAI,
				APIKey:   c.OpenAIAPIKey,
				BaseURL:  c.OpenAIBaseURL,
				Model:    c.OpenAIModel,
				Timeout:  c.AIRequestTimeout,
			},
			Breaker: c.OpenAIBreaker.Settings(string(ai.ProviderOpenAI)),
		})
	}
	if c.providerConfigured(ai.ProviderGemini) {
		out = append(out, ProviderConfig{
			Client: ai.ClientConfig{
				Provider: ai.ProviderGemini,
				APIKey:   c.GeminiAPIKey,
				Model:    c.GeminiModel,
				Timeout:  c.AIRequestTimeout,
			},
			Breaker: c.GeminiBreaker.Settings(string(ai.ProviderGemini)),
		})
	}
	if c.providerConfigured(ai.ProviderOllama) {
		out = append(out, ProviderConfig{
			Client: ai.ClientConfig{
				Provider: ai.ProviderOllama,
				BaseURL:  c.OllamaHost,
				Model:    c.OllamaModel,
				Timeout:  c.AIRequestTimeout,
			},
			Breaker: c.OllamaBreaker.Settings(string(ai.ProviderOllama)),
		})
	}
	return out
}

// GetAllowedOrigins splits the CORSAllowedOrigins string into a slice.
func (c *Config) GetAllowedOrigins() []string {
	if strings.TrimSpace(c.CORSAllowedOrigins) == "" {
		return nil
	}
	var origins []string
	for _, o := range strings.Split(c.CORSAllowedOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	return origins
}

// UsePostgres сообщает, что настроена внешняя база.
func (c *Config) UsePostgres() bool {
	return c.DBHost != ""
}

// UseRedis сообщает, что настроен Redis.
func (c *Config) UseRedis() bool {
	return c.RedisAddr != ""
}

func (c *Config) dsnURL() *url.URL {
	return &url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.DBUser, c.DBPassword),
		Host:     net.JoinHostPort(c.DBHost, c.DBPort),
		Path:     "/" + c.DBName,
		RawQuery: "sslmode=" + url.QueryEscape(c.DBSSLMode),
	}
}

// GetDSN возвращает строку подключения к PostgreSQL.
func (c *Config) GetDSN() string {
	return c.dsnURL().String()
}

// GetMaskedDSN возвращает DSN со скрытым паролем для логов.
func (c *Config) GetMaskedDSN() string {
	return c.dsnURL().Redacted()
}
