package ai

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// fallbackEncoding используется для моделей, которых tiktoken не знает (Gemini, Ollama).
const fallbackEncoding = "cl100k_base"

// loadEncoding может скачивать словарь BPE по сети.
func loadEncoding(model string) (*tiktoken.Tiktoken, error) {
	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		return tiktoken.GetEncoding(fallbackEncoding)
	}
	return enc, nil
}

type encodingEntry struct {
	once sync.Once
	done chan struct{}
	enc  *tiktoken.Tiktoken // nil, если словарь недоступен
}

// encodingCache загружает токенизаторы вне общей блокировки: мьютекс
// защищает только карту, загрузка идет в фоне один раз на модель.
type encodingCache struct {
	mu      sync.Mutex
	entries map[string]*encodingEntry
	load    func(model string) (*tiktoken.Tiktoken, error)
}

func newEncodingCache(load func(model string) (*tiktoken.Tiktoken, error)) *encodingCache {
	return &encodingCache{entries: map[string]*encodingEntry{}, load: load}
}

var encodings = newEncodingCache(loadEncoding)

func (c *encodingCache) entry(model string) *encodingEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[model]
	if !ok {
		e = &encodingEntry{done: make(chan struct{})}
		c.entries[model] = e
	}
	return e
}

// warmup запускает загрузку в фоне. Неудачная загрузка не повторяется.
func (c *encodingCache) warmup(model string) *encodingEntry {
	e := c.entry(model)
	e.once.Do(func() {
		go func() {
			defer close(e.done)
			if enc, err := c.load(model); err == nil {
				e.enc = enc
			}
		}()
	})
	return e
}

// ready возвращает токенизатор, только если он уже загружен. Не блокируется.
func (c *encodingCache) ready(model string) *tiktoken.Tiktoken {
	e := c.entry(model)
	select {
	case <-e.done:
		return e.enc
	default:
		c.warmup(model)
		return nil
	}
}

func (c *encodingCache) estimate(model, text string) int {
	if text == "" {
		return 0
	}
	enc := c.ready(model)
	if enc == nil {
		return (len(text) + 3) / 4
	}
	return len(enc.Encode(text, nil, nil))
}

// WarmupEncoding загружает токенизатор модели в фоне, чтобы первая оценка
// не ждала скачивания словаря.
func WarmupEncoding(model string) {
	encodings.warmup(model)
}

// EstimateTokens - приблизительное число токенов текста для модели.
// Используется, когда провайдер не вернул usage. Пока токенизатор не загружен
// или недоступен, оценивает по 4 символа на токен.
func EstimateTokens(model, text string) int {
	return encodings.estimate(model, text)
}

// estimateUsage заполняет UsageInfo локальной оценкой.
func estimateUsage(model, systemPrompt, userInput, completion string) UsageInfo {
	prompt := EstimateTokens(model, systemPrompt) + EstimateTokens(model, userInput)
	completionTokens := EstimateTokens(model, completion)
	return UsageInfo{
		PromptTokens:     prompt,
		CompletionTokens: completionTokens,
		TotalTokens:      prompt + completionTokens,
		Estimated:        true,
	}
}
