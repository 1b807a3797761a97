package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"bedtime-server/internal/ai"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// cleanEnv убирает переменные, которые могут прийти из окружения разработчика.
func cleanEnv(t *testing.T) string {
	t.Helper()
	for _, key := range []string{
		"AI_PRIMARY_PROVIDER", "AI_MAX_ATTEMPTS", "OPENAI_API_KEY", "GEMINI_API_KEY", "OLLAMA_HOST",
		"DB_HOST", "DB_PASSWORD", "REDIS_ADDR", "REDIS_PASSWORD", "RABBITMQ_URL",
		"OPENAI_BREAKER_TIMEOUT", "OPENAI_BREAKER_CAPACITY", "GEMINI_BREAKER_ERROR_THRESHOLD",
		"CORS_ALLOWED_ORIGINS", "CLERK_JWT_PUBLIC_KEY",
	} {
		t.Setenv(key, "")
		require.NoError(t, os.Unsetenv(key))
	}
	dir := t.TempDir()
	t.Setenv("SECRETS_DIR", dir)
	return dir
}

func writeSecret(t *testing.T, dir, name, value string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(value+"\n"), 0o600))
}

func TestLoadConfig_DefaultsWithSecretFile(t *testing.T) {
	dir := cleanEnv(t)
	writeSecret(t, dir, "openai_api_key", "sk-test")

	cfg, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, "sk-test", cfg.OpenAIAPIKey)
	assert.Equal(t, ai.ProviderOpenAI, cfg.PrimaryProvider())
	assert.Equal(t, 3, cfg.AIMaxAttempts)
	assert.Equal(t, 24*time.Hour, cfg.StoryCacheTTL)
	assert.False(t, cfg.UsePostgres())
	assert.False(t, cfg.UseRedis())

	providers := cfg.Providers()
	require.Len(t, providers, 1)
	s := providers[0].Breaker
	assert.Equal(t, "openai", s.Name)
	assert.Equal(t, 45*time.Second, s.Timeout)
	assert.Equal(t, 50.0, s.ErrorThresholdPercentage)
	assert.Equal(t, 120*time.Second, s.ResetTimeout)
	assert.Equal(t, 60*time.Second, s.RollingCountTimeout)
	assert.Equal(t, 10, s.RollingCountBuckets)
	assert.Equal(t, 10, s.Capacity)
	assert.Equal(t, "gpt-4o-mini", providers[0].Client.Model)
}

func TestLoadConfig_EnvFallbackAndBreakerOverrides(t *testing.T) {
	cleanEnv(t)
	t.Setenv("GEMINI_API_KEY", "g-key")
	t.Setenv("OPENAI_API_KEY", "sk-env")
	t.Setenv("AI_PRIMARY_PROVIDER", "Gemini")
	t.Setenv("OPENAI_BREAKER_TIMEOUT", "5s")
	t.Setenv("OPENAI_BREAKER_CAPACITY", "3")
	t.Setenv("GEMINI_BREAKER_ERROR_THRESHOLD", "75")

	cfg, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, ai.ProviderGemini, cfg.PrimaryProvider())
	providers := cfg.Providers()
	require.Len(t, providers, 2)
	assert.Equal(t, ai.ProviderOpenAI, providers[0].Client.Provider)
	assert.Equal(t, 5*time.Second, providers[0].Breaker.Timeout)
	assert.Equal(t, 3, providers[0].Breaker.Capacity)
	assert.Equal(t, ai.ProviderGemini, providers[1].Client.Provider)
	assert.Equal(t, 75.0, providers[1].Breaker.ErrorThresholdPercentage)
	assert.Equal(t, 45*time.Second, providers[1].Breaker.Timeout)
}

func TestLoadConfig_PrimaryMustBeConfigured(t *testing.T) {
	cleanEnv(t)

	_, err := LoadConfig("")
	assert.ErrorContains(t, err, "primary AI provider 'openai'")

	t.Setenv("AI_PRIMARY_PROVIDER", "claude")
	_, err = LoadConfig("")
	assert.ErrorContains(t, err, "AI_PRIMARY_PROVIDER")
}

func TestLoadConfig_InvalidBreakerSettings(t *testing.T) {
	dir := cleanEnv(t)
	writeSecret(t, dir, "openai_api_key", "sk-test")
	t.Setenv("OPENAI_BREAKER_CAPACITY", "0")

	_, err := LoadConfig("")
	assert.ErrorContains(t, err, "capacity must be positive")
}

func TestLoadConfig_DotEnvFile(t *testing.T) {
	cleanEnv(t)
	envFile := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("OLLAMA_HOST=http://ollama:11434\nAI_PRIMARY_PROVIDER=ollama\n"), 0o600))
	t.Cleanup(func() {
		os.Unsetenv("OLLAMA_HOST")
		os.Unsetenv("AI_PRIMARY_PROVIDER")
	})

	cfg, err := LoadConfig(envFile)
	require.NoError(t, err)
	assert.Equal(t, ai.ProviderOllama, cfg.PrimaryProvider())
	require.Len(t, cfg.Providers(), 1)
	assert.Equal(t, "http://ollama:11434", cfg.Providers()[0].Client.BaseURL)

	// отсутствующий файл не ошибка
	_, err = LoadConfig(filepath.Join(t.TempDir(), "missing.env"))
	assert.NoError(t, err)
}

func TestConfig_DSNAndOrigins(t *testing.T) {
	cfg := &Config{
		DBHost:             "db",
		DBPort:             "5432",
		DBUser:             "story",
		DBPassword:         "p@ss:word",
		DBName:             "bedtime",
		DBSSLMode:          "disable",
		CORSAllowedOrigins: "http://a.test, http://b.test,,",
	}

	assert.Equal(t, "postgres://story:p%40ss%3Aword@db:5432/bedtime?sslmode=disable", cfg.GetDSN())
	masked := cfg.GetMaskedDSN()
	assert.NotContains(t, masked, "p%40ss")
	assert.Contains(t, masked, "story:xxxxx@db:5432")
	assert.True(t, cfg.UsePostgres())
	assert.Equal(t, []string{"http://a.test", "http://b.test"}, cfg.GetAllowedOrigins())
}
