package personalization

import (
	"context"
	"fmt"
	"sort"

	"bedtime-server/internal/ai"
	"bedtime-server/internal/breaker"
	"bedtime-server/internal/models"

	"go.uber.org/zap"
)

// FallbackModel помечает ответы, сгенерированные шаблоном.
const FallbackModel = "fallback-template"

// GuardedProvider - AI клиент одного провайдера за собственным предохранителем.
type GuardedProvider struct {
	provider ai.Provider
	model    string
	client   ai.Client
	breaker  *breaker.Breaker[ai.TextRequest, ai.TextResponse]
	fallback *FallbackGenerator
	logger   *zap.Logger
}

// ProviderHealth - состояние провайдера для /providers/health.
type ProviderHealth struct {
	Provider ai.Provider      `json:"provider"`
	Model    string           `json:"model"`
	Primary  bool             `json:"primary"`
	State    string           `json:"state"`
	Stats    breaker.Snapshot `json:"stats"`
}

// NewGuardedProvider оборачивает client предохранителем с настройками settings.
func NewGuardedProvider(provider ai.Provider, model string, client ai.Client, settings breaker.Settings, fallback *FallbackGenerator, logger *zap.Logger, opts ...breaker.Option) (*GuardedProvider, error) {
	if client == nil {
		return nil, fmt.Errorf("guarded provider %s: client is required", provider)
	}
	if fallback == nil {
		fallback = NewFallbackGenerator(nil)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if settings.Name == "" {
		settings.Name = string(provider)
	}

	g := &GuardedProvider{
		provider: provider,
		model:    model,
		client:   client,
		fallback: fallback,
		logger:   logger.Named("GuardedProvider").With(zap.String("provider", string(provider))),
	}

	cb, err := breaker.New(settings, g.call, g.fallbackResponse, logger, opts...)
	if err != nil {
		return nil, fmt.Errorf("guarded provider %s: %w", provider, err)
	}
	g.breaker = cb
	return g, nil
}

func (g *GuardedProvider) call(ctx context.Context, req ai.TextRequest) (ai.TextResponse, error) {
	text, usage, err := g.client.GenerateText(ctx, req.UserID, req.SystemPrompt, req.UserPrompt, req.Params)
	if err != nil {
		return ai.TextResponse{}, err
	}
	return ai.TextResponse{Text: text, Usage: usage, Provider: g.provider, Model: g.model}, nil
}

// fallbackResponse не делает I/O: шаблонная история, если запрос несет StoryInput,
// иначе пустой ответ.
func (g *GuardedProvider) fallbackResponse(_ context.Context, req ai.TextRequest, cause error) ai.TextResponse {
	g.logger.Debug("Serving fallback response", zap.Error(cause), zap.Bool("story", req.Story != nil))
	if req.Story == nil {
		return ai.TextResponse{Provider: g.provider, Model: FallbackModel}
	}
	return ai.TextResponse{
		Text:     g.fallback.Generate(*req.Story),
		Provider: g.provider,
		Model:    FallbackModel,
	}
}

// Generate выполняет запрос через предохранитель. Ошибки провайдера в Result.Cause.
func (g *GuardedProvider) Generate(ctx context.Context, req ai.TextRequest) breaker.Result[ai.TextResponse] {
	return g.breaker.Fire(ctx, req)
}

func (g *GuardedProvider) Provider() ai.Provider { return g.provider }

func (g *GuardedProvider) Model() string { return g.model }

// Health возвращает текущее состояние предохранителя.
func (g *GuardedProvider) Health() ProviderHealth {
	stats := g.breaker.Stats()
	return ProviderHealth{
		Provider: g.provider,
		Model:    g.model,
		State:    stats.State,
		Stats:    stats,
	}
}

// Providers - реестр защищенных провайдеров с провайдером по умолчанию.
// Создается один раз в main и передается в движок и обработчики.
type Providers struct {
	primary ai.Provider
	byName  map[ai.Provider]*GuardedProvider
}

// NewProviders собирает реестр. primary должен быть среди list.
func NewProviders(primary ai.Provider, list ...*GuardedProvider) (*Providers, error) {
	p := &Providers{primary: primary, byName: make(map[ai.Provider]*GuardedProvider, len(list))}
	for _, gp := range list {
		if gp == nil {
			continue
		}
		if _, dup := p.byName[gp.provider]; dup {
			return nil, fmt.Errorf("provider %s registered twice", gp.provider)
		}
		p.byName[gp.provider] = gp
	}
	if _, ok := p.byName[primary]; !ok {
		return nil, fmt.Errorf("%w: primary provider '%s' is not configured", models.ErrProviderUnavailable, primary)
	}
	return p, nil
}

// Get возвращает провайдера по имени; пустое имя - провайдер по умолчанию.
func (p *Providers) Get(name ai.Provider) (*GuardedProvider, error) {
	if p == nil {
		return nil, models.ErrProviderUnavailable
	}
	if name == "" {
		name = p.primary
	}
	gp, ok := p.byName[name]
	if !ok {
		return nil, fmt.Errorf("%w: '%s'", models.ErrProviderUnavailable, name)
	}
	return gp, nil
}

func (p *Providers) Primary() ai.Provider { return p.primary }

// Health возвращает состояние всех провайдеров, отсортированное по имени.
func (p *Providers) Health() []ProviderHealth {
	out := make([]ProviderHealth, 0, len(p.byName))
	for _, gp := range p.byName {
		h := gp.Health()
		h.Primary = gp.provider == p.primary
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Provider < out[j].Provider })
	return out
}
