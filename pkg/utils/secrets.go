package utils

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// DefaultSecretsDir - стандартный путь Docker Secrets.
const DefaultSecretsDir = "/run/secrets"

// ErrSecretNotFound возвращается, когда секрет не найден ни в файле, ни в окружении.
var ErrSecretNotFound = errors.New("secret not found")

// ReadSecret читает секрет из файла в стандартном пути Docker Secrets.
func ReadSecret(secretName string) (string, error) {
	return ReadSecretFrom(DefaultSecretsDir, secretName)
}

// ReadSecretFrom читает секрет из файла dir/secretName.
func ReadSecretFrom(dir, secretName string) (string, error) {
	filePath := filepath.Join(dir, secretName)
	secretBytes, err := os.ReadFile(filePath)
	if err != nil {
		return "", fmt.Errorf("failed to read secret file %s: %w", filePath, err)
	}
	secret := strings.TrimSpace(string(secretBytes))
	if secret == "" {
		return "", fmt.Errorf("secret file %s is empty", filePath)
	}
	return secret, nil
}

// LookupSecret ищет секрет сначала в файле, затем в переменной окружения
// с именем secretName в верхнем регистре (OPENAI_API_KEY для openai_api_key).
// Переменные окружения нужны для локального запуска без Docker.
func LookupSecret(dir, secretName string) (string, error) {
	if secret, err := ReadSecretFrom(dir, secretName); err == nil {
		return secret, nil
	}
	if v := strings.TrimSpace(os.Getenv(strings.ToUpper(secretName))); v != "" {
		return v, nil
	}
	return "", fmt.Errorf("%w: %s", ErrSecretNotFound, secretName)
}
