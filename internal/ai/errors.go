package ai

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/ollama/ollama/api"
	openaigo "github.com/sashabaranov/go-openai"
	"google.golang.org/genai"
)

// ProviderError нормализует ошибки разных SDK: провайдер и HTTP статус.
type ProviderError struct {
	Provider   Provider
	StatusCode int // 0, если ответа не было (сеть, таймаут)
	Err        error
}

func (e *ProviderError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s: status %d: %v", e.Provider, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Provider, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// IsServerError сообщает, что провайдер ответил 5xx. Только такие ошибки
// имеет смысл повторять на уровне вызывающего кода.
func IsServerError(err error) bool {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.StatusCode >= http.StatusInternalServerError
	}
	return statusCodeOf(err) >= http.StatusInternalServerError
}

// wrapProviderError оборачивает ошибку SDK в ProviderError и ErrAIGenerationFailed.
func wrapProviderError(provider Provider, err error) error {
	return &ProviderError{
		Provider:   provider,
		StatusCode: statusCodeOf(err),
		Err:        fmt.Errorf("%w: %w", ErrAIGenerationFailed, err),
	}
}

// statusCodeOf достает HTTP статус из ошибок go-openai, genai и ollama.
func statusCodeOf(err error) int {
	var oaAPIErr *openaigo.APIError
	if errors.As(err, &oaAPIErr) {
		return oaAPIErr.HTTPStatusCode
	}
	var oaReqErr *openaigo.RequestError
	if errors.As(err, &oaReqErr) {
		return oaReqErr.HTTPStatusCode
	}
	var gErr genai.APIError
	if errors.As(err, &gErr) {
		return gErr.Code
	}
	var gErrPtr *genai.APIError
	if errors.As(err, &gErrPtr) {
		return gErrPtr.Code
	}
	var oStatus api.StatusError
	if errors.As(err, &oStatus) {
		return oStatus.StatusCode
	}
	var oStatusPtr *api.StatusError
	if errors.As(err, &oStatusPtr) {
		return oStatusPtr.StatusCode
	}
	return 0
}
