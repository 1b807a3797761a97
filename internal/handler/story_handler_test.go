package handler_test

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"bedtime-server/internal/ai"
	"bedtime-server/internal/breaker"
	"bedtime-server/internal/database"
	"bedtime-server/internal/handler"
	"bedtime-server/internal/middleware"
	"bedtime-server/internal/mocks"
	"bedtime-server/internal/models"
	"bedtime-server/internal/personalization"
	"bedtime-server/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type handlerFixture struct {
	router  *gin.Engine
	engine  *mocks.MockStoryGenerator
	client  *mocks.MockAIClient
	prefs   service.PreferencesService
	history *database.MemoryStoryHistoryRepository
}

type fixtureOption func(*fixtureOptions)

type fixtureOptions struct {
	prefs    service.PreferencesService
	settings breaker.Settings
}

func withPreferencesService(p service.PreferencesService) fixtureOption {
	return func(o *fixtureOptions) { o.prefs = p }
}

func withBreakerSettings(s breaker.Settings) fixtureOption {
	return func(o *fixtureOptions) { o.settings = s }
}

func newHandlerFixture(t *testing.T, opts ...fixtureOption) *handlerFixture {
	t.Helper()

	settings := breaker.DefaultSettings("openai")
	settings.Timeout = 2 * time.Second
	settings.VolumeThreshold = 100
	o := fixtureOptions{settings: settings}
	for _, opt := range opts {
		opt(&o)
	}

	f := &handlerFixture{
		engine:  mocks.NewMockStoryGenerator(t),
		client:  mocks.NewMockAIClient(t),
		history: database.NewMemoryStoryHistoryRepository(),
	}
	f.prefs = o.prefs
	if f.prefs == nil {
		f.prefs = service.NewPreferencesService(database.NewMemoryPreferencesRepository(), nil, zap.NewNop())
	}

	gp, err := personalization.NewGuardedProvider(ai.ProviderOpenAI, "gpt-4o-mini", f.client, o.settings, nil, zap.NewNop())
	require.NoError(t, err)
	providers, err := personalization.NewProviders(ai.ProviderOpenAI, gp)
	require.NoError(t, err)

	h := handler.NewStoryHandler(f.engine, providers, f.prefs, f.history,
		handler.RetryPolicy{MaxAttempts: 3, BaseDelay: time.Millisecond}, zap.NewNop())

	f.router = gin.New()
	h.RegisterRoutes(f.router, middleware.Authenticate(nil, zap.NewNop()))
	return f
}

func (f *handlerFixture) do(method, path, userID string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if userID != "" {
		req.Header.Set(middleware.DevUserIDHeader, userID)
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func TestGenerateStory_Success(t *testing.T) {
	f := newHandlerFixture(t)
	story := &models.Story{ID: "story-1", Title: "Alice's Quest", Content: "Once upon a time...", Theme: "adventure"}

	f.engine.On("GeneratePersonalizedStory", mock.Anything, mock.MatchedBy(func(r personalization.StoryRequest) bool {
		return r.UserID == "user_1" && r.Input.ChildName == "Alice" && r.Provider == ai.ProviderGemini &&
			assert.ObjectsAreEqual([]string{"magic"}, r.Input.Interests)
	})).Return(story).Once()

	w := f.do(http.MethodPost, "/api/v1/stories/generate", "user_1", map[string]any{
		"childName": "Alice",
		"gender":    "girl",
		"theme":     "adventure",
		"interests": []string{"magic"},
		"provider":  "Gemini",
	})

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	got := decode[models.Story](t, w)
	assert.Equal(t, "Alice's Quest", got.Title)
}

func TestGenerateStory_AnonymousAllowed(t *testing.T) {
	f := newHandlerFixture(t)
	f.engine.On("GeneratePersonalizedStory", mock.Anything, mock.MatchedBy(func(r personalization.StoryRequest) bool {
		return r.UserID == "" && r.Provider == ""
	})).Return(&models.Story{ID: "s"}).Once()

	w := f.do(http.MethodPost, "/api/v1/stories/generate", "", map[string]any{"childName": "Sam", "theme": "space"})
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestGenerateStory_ValidationErrors(t *testing.T) {
	f := newHandlerFixture(t)

	cases := []struct {
		name    string
		body    any
		details string
	}{
		{"missing name", map[string]any{"theme": "space"}, "childName is required"},
		{"missing theme", map[string]any{"childName": "Sam"}, "theme is required"},
		{"blank name", map[string]any{"childName": "   ", "theme": "space"}, "childName is required"},
		{"unknown gender", map[string]any{"childName": "Sam", "theme": "space", "gender": "robot"}, "gender must be one of"},
		{"too many interests", map[string]any{"childName": "Sam", "theme": "space", "interests": make([]string, 21)}, "interests must not exceed 20"},
		{"unknown provider", map[string]any{"childName": "Sam", "theme": "space", "provider": "claude"}, "unknown ai provider"},
		{"malformed json", "not an object", "invalid request body"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := f.do(http.MethodPost, "/api/v1/stories/generate", "user_1", tc.body)
			require.Equal(t, http.StatusBadRequest, w.Code)
			resp := decode[models.ErrorResponse](t, w)
			assert.Contains(t, resp.Details, tc.details)
		})
	}
	f.engine.AssertNotCalled(t, "GeneratePersonalizedStory", mock.Anything, mock.Anything)
}

func TestGenerateText_Success(t *testing.T) {
	f := newHandlerFixture(t)
	f.client.On("GenerateText", mock.Anything, "user_1", "Be brief.", "Say hi", mock.Anything).
		Return("Hi!", ai.UsageInfo{PromptTokens: 5, CompletionTokens: 2, TotalTokens: 7}, nil).Once()

	w := f.do(http.MethodPost, "/api/v1/ai/generate", "user_1", map[string]any{"systemPrompt": "Be brief.", "prompt": "Say hi"})

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	resp := decode[ai.TextResponse](t, w)
	assert.Equal(t, "Hi!", resp.Text)
	assert.Equal(t, ai.ProviderOpenAI, resp.Provider)
	assert.Equal(t, 7, resp.Usage.TotalTokens)
}

func TestGenerateText_RetriesServerErrors(t *testing.T) {
	f := newHandlerFixture(t)
	serverErr := &ai.ProviderError{Provider: ai.ProviderOpenAI, StatusCode: http.StatusBadGateway, Err: errors.New("upstream")}

	f.client.On("GenerateText", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return("", ai.UsageInfo{}, serverErr).Twice()
	f.client.On("GenerateText", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return("Recovered", ai.UsageInfo{}, nil).Once()

	w := f.do(http.MethodPost, "/api/v1/ai/generate", "user_1", map[string]any{"prompt": "hello"})

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "Recovered", decode[ai.TextResponse](t, w).Text)
}

func TestGenerateText_GivesUpAfterMaxAttempts(t *testing.T) {
	f := newHandlerFixture(t)
	serverErr := &ai.ProviderError{Provider: ai.ProviderOpenAI, StatusCode: http.StatusServiceUnavailable, Err: errors.New("overloaded")}
	f.client.On("GenerateText", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return("", ai.UsageInfo{}, serverErr).Times(3)

	w := f.do(http.MethodPost, "/api/v1/ai/generate", "user_1", map[string]any{"prompt": "hello"})

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	resp := decode[models.ErrorResponse](t, w)
	assert.Contains(t, resp.Details, "status 503")
}

func TestGenerateText_ClientErrorIsNotRetried(t *testing.T) {
	f := newHandlerFixture(t)
	clientErr := &ai.ProviderError{Provider: ai.ProviderOpenAI, StatusCode: http.StatusBadRequest, Err: errors.New("bad prompt")}
	f.client.On("GenerateText", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return("", ai.UsageInfo{}, clientErr).Once()

	w := f.do(http.MethodPost, "/api/v1/ai/generate", "user_1", map[string]any{"prompt": "hello"})
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestGenerateText_OpenBreakerIsNotRetried(t *testing.T) {
	settings := breaker.DefaultSettings("openai")
	settings.Timeout = 2 * time.Second
	f := newHandlerFixture(t, withBreakerSettings(settings))
	serverErr := &ai.ProviderError{Provider: ai.ProviderOpenAI, StatusCode: http.StatusInternalServerError, Err: errors.New("boom")}
	// первый отказ размыкает предохранитель, повтор отклоняется без вызова провайдера
	f.client.On("GenerateText", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return("", ai.UsageInfo{}, serverErr).Once()

	w := f.do(http.MethodPost, "/api/v1/ai/generate", "user_1", map[string]any{"prompt": "hello"})
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, decode[models.ErrorResponse](t, w).Details, "circuit breaker is open")
}

func TestGenerateText_RequiresUserAndKnownProvider(t *testing.T) {
	f := newHandlerFixture(t)

	w := f.do(http.MethodPost, "/api/v1/ai/generate", "", map[string]any{"prompt": "hello"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	// ollama известен, но не настроен
	w = f.do(http.MethodPost, "/api/v1/ai/generate", "user_1", map[string]any{"prompt": "hello", "provider": "ollama"})
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	w = f.do(http.MethodPost, "/api/v1/ai/generate", "user_1", map[string]any{"systemPrompt": "x"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, decode[models.ErrorResponse](t, w).Details, "prompt is required")
}

func TestPreferences_GetAndUpdate(t *testing.T) {
	f := newHandlerFixture(t)

	w := f.do(http.MethodGet, "/api/v1/preferences", "user_1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	prefs := decode[models.UserPreferences](t, w)
	assert.Equal(t, "user_1", prefs.UserID)
	assert.Equal(t, models.DefaultAgeGroup, prefs.AgeGroup)

	w = f.do(http.MethodPut, "/api/v1/preferences", "user_1", map[string]any{
		"preferredThemes": []string{"ocean"},
		"ageGroup":        "7-9",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	prefs = decode[models.UserPreferences](t, w)
	assert.Equal(t, []string{"ocean"}, prefs.PreferredThemes)
	assert.Equal(t, "7-9", prefs.AgeGroup)

	w = f.do(http.MethodPut, "/api/v1/preferences", "user_1", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(http.MethodGet, "/api/v1/preferences", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestPreferences_UpdateFailure(t *testing.T) {
	prefs := mocks.NewMockPreferencesService(t)
	f := newHandlerFixture(t, withPreferencesService(prefs))
	prefs.On("UpdateUserPreferences", mock.Anything, "user_1", mock.Anything).Return(false).Once()

	w := f.do(http.MethodPut, "/api/v1/preferences", "user_1", map[string]any{"ageGroup": "7-9"})
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestPreferences_Metadata(t *testing.T) {
	prefs := mocks.NewMockPreferencesService(t)
	f := newHandlerFixture(t, withPreferencesService(prefs))
	prefs.On("UserMetadata", mock.Anything, "user_1").Return(models.UserMetadata{StoryCount: 3, LastTheme: "space"}, nil).Once()

	w := f.do(http.MethodGet, "/api/v1/preferences/metadata", "user_1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	meta := decode[models.UserMetadata](t, w)
	assert.Equal(t, 3, meta.StoryCount)
	assert.Equal(t, "space", meta.LastTheme)
}

func TestHistory_ListAndPaginate(t *testing.T) {
	f := newHandlerFixture(t)
	base := time.Date(2026, 1, 1, 20, 0, 0, 0, time.UTC)
	for i, title := range []string{"First", "Second", "Third"} {
		require.NoError(t, f.history.Save(t.Context(), models.StoryHistoryRecord{
			ID: title, UserID: "user_1", Title: title, CreatedAt: base.Add(time.Duration(i) * time.Hour),
		}))
	}
	require.NoError(t, f.history.Save(t.Context(), models.StoryHistoryRecord{ID: "other", UserID: "user_2", CreatedAt: base}))

	w := f.do(http.MethodGet, "/api/v1/stories/history?limit=2", "user_1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	page := decode[struct {
		Data   []models.StoryHistoryRecord `json:"data"`
		Limit  int                         `json:"limit"`
		Offset int                         `json:"offset"`
	}](t, w)
	require.Len(t, page.Data, 2)
	assert.Equal(t, "Third", page.Data[0].Title)
	assert.Equal(t, 2, page.Limit)

	w = f.do(http.MethodGet, "/api/v1/stories/history?limit=2&offset=2", "user_1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "First")

	for _, q := range []string{"limit=0", "limit=abc", "offset=-1"} {
		w = f.do(http.MethodGet, "/api/v1/stories/history?"+q, "user_1", nil)
		assert.Equal(t, http.StatusBadRequest, w.Code, q)
	}
}

func TestProvidersHealth(t *testing.T) {
	f := newHandlerFixture(t)

	w := f.do(http.MethodGet, "/api/v1/providers/health", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	resp := decode[struct {
		Primary   string                           `json:"primary"`
		Providers []personalization.ProviderHealth `json:"providers"`
	}](t, w)
	assert.Equal(t, "openai", resp.Primary)
	require.Len(t, resp.Providers, 1)
	assert.True(t, resp.Providers[0].Primary)
	assert.Equal(t, "closed", resp.Providers[0].State)
}

func TestValidateStoryInput(t *testing.T) {
	assert.NoError(t, handler.ValidateStoryInput(models.StoryInput{ChildName: "Ann", Theme: "magic", Gender: "Female"}))
	assert.ErrorIs(t, handler.ValidateStoryInput(models.StoryInput{Theme: "magic"}), models.ErrInvalidInput)
	assert.ErrorIs(t, handler.ValidateStoryInput(models.StoryInput{ChildName: "Ann", Theme: " "}), models.ErrInvalidInput)
	assert.ErrorIs(t, handler.ValidateStoryInput(models.StoryInput{ChildName: "Ann", Theme: "magic", Gender: "x"}), models.ErrInvalidInput)
}
