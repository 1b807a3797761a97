package personalization_test

import (
	"context"
	"errors"
	"math/rand/v2"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"bedtime-server/internal/ai"
	"bedtime-server/internal/breaker"
	"bedtime-server/internal/cache"
	"bedtime-server/internal/mocks"
	"bedtime-server/internal/models"
	"bedtime-server/internal/personalization"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const liveStory = "# The Moon Garden\n\nAlice walked softly through the moon garden and smiled."

func aliceInput() models.StoryInput {
	return models.StoryInput{
		ChildName: "Alice",
		Gender:    models.GenderGirl,
		Theme:     "adventure",
		Interests: []string{"magic", "adventure"},
	}
}

type engineFixture struct {
	engine  *personalization.Engine
	client  *mocks.MockAIClient
	store   *mocks.MockKeyValueStore
	prefs   *mocks.MockPreferencesProvider
	history *mocks.MockStoryHistoryRepository
	events  *mocks.MockStoryEventPublisher
	guarded *personalization.GuardedProvider
}

func newEngineFixture(t *testing.T, settings breaker.Settings) *engineFixture {
	t.Helper()
	f := &engineFixture{
		client:  mocks.NewMockAIClient(t),
		store:   mocks.NewMockKeyValueStore(t),
		prefs:   mocks.NewMockPreferencesProvider(t),
		history: mocks.NewMockStoryHistoryRepository(t),
		events:  mocks.NewMockStoryEventPublisher(t),
	}
	fallback := personalization.NewFallbackGenerator(rand.NewPCG(1, 1))

	var err error
	f.guarded, err = personalization.NewGuardedProvider(ai.ProviderOpenAI, "gpt-4o-mini", f.client, settings, fallback, zap.NewNop())
	require.NoError(t, err)
	providers, err := personalization.NewProviders(ai.ProviderOpenAI, f.guarded)
	require.NoError(t, err)

	f.engine = personalization.NewEngine(personalization.EngineConfig{
		Providers:   providers,
		Cache:       cache.NewStoryCache(f.store, 0, zap.NewNop()),
		Preferences: f.prefs,
		History:     f.history,
		Events:      f.events,
		Fallback:    fallback,
	}, zap.NewNop())
	return f
}

func (f *engineFixture) drain(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, f.engine.Shutdown(ctx))
}

func (f *engineFixture) expectSideEffects(fallback bool) {
	f.history.On("Save", mock.Anything, mock.MatchedBy(func(rec models.StoryHistoryRecord) bool {
		return rec.UserID == "user_1" && rec.Fallback == fallback
	})).Return(nil).Once()
	f.events.On("PublishStoryGenerated", mock.Anything, mock.MatchedBy(func(ev models.StoryGeneratedEvent) bool {
		return ev.UserID == "user_1" && ev.Fallback == fallback
	})).Return(nil).Once()
}

func TestEngine_CacheHitSkipsProvider(t *testing.T) {
	f := newEngineFixture(t, breaker.DefaultSettings("openai"))
	f.store.On("Get", mock.Anything, "story:Alice:adventure,magic:adventure:girl").
		Return("# Alice's Quest\n\nOnce upon a time...", nil).Twice()
	f.history.On("Save", mock.Anything, mock.Anything).Return(nil).Twice()
	f.events.On("PublishStoryGenerated", mock.Anything, mock.Anything).Return(nil).Twice()

	first := f.engine.GeneratePersonalizedStory(context.Background(), personalization.StoryRequest{UserID: "user_1", Input: aliceInput()})
	second := f.engine.GeneratePersonalizedStory(context.Background(), personalization.StoryRequest{UserID: "user_1", Input: aliceInput()})
	f.drain(t)

	require.NotNil(t, first)
	assert.Equal(t, "Alice's Quest", first.Title)
	assert.Equal(t, "Once upon a time...", first.Content)
	assert.True(t, first.Metadata.Cached)
	assert.False(t, first.Metadata.Fallback)
	assert.Equal(t, "she", first.Metadata.Pronoun)
	assert.Equal(t, "her", first.Metadata.PossessivePronoun)

	// тот же текст, новый ID
	assert.Equal(t, first.Title, second.Title)
	assert.NotEqual(t, first.ID, second.ID)
	_, err := uuid.Parse(first.ID)
	assert.NoError(t, err)

	f.client.AssertNotCalled(t, "GenerateText", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	f.prefs.AssertNotCalled(t, "RecordGeneration", mock.Anything, mock.Anything, mock.Anything)
}

func TestEngine_LiveGeneration(t *testing.T) {
	f := newEngineFixture(t, breaker.DefaultSettings("openai"))
	key := "story:Alice:adventure,magic:adventure:girl"
	prefs := models.DefaultUserPreferences("user_1")
	prefs.LearningInterests = []string{"stars"}

	f.store.On("Get", mock.Anything, key).Return("", models.ErrNotFound).Once()
	f.prefs.On("GetUserPreferences", mock.Anything, "user_1").Return(prefs).Once()
	f.client.On("GenerateText", mock.Anything, "user_1", mock.Anything,
		mock.MatchedBy(func(prompt string) bool {
			return strings.Contains(prompt, "Alice") && strings.Contains(prompt, "stars")
		}), mock.Anything).
		Return(liveStory, ai.UsageInfo{TotalTokens: 42}, nil).Once()
	f.store.On("Set", mock.Anything, key, liveStory, cache.DefaultTTL).Return(nil).Once()
	f.prefs.On("RecordGeneration", mock.Anything, "user_1", mock.AnythingOfType("*models.Story")).Return(nil).Once()
	f.expectSideEffects(false)

	story := f.engine.GeneratePersonalizedStory(context.Background(), personalization.StoryRequest{UserID: "user_1", Input: aliceInput()})
	f.drain(t)

	require.NotNil(t, story)
	assert.Equal(t, "The Moon Garden", story.Title)
	assert.False(t, story.Metadata.Fallback)
	assert.False(t, story.Metadata.Cached)
	assert.Empty(t, story.Metadata.Error)
	assert.Equal(t, "openai", story.Metadata.Provider)
	assert.Equal(t, 9, story.Metadata.WordCount)
	assert.Equal(t, 1, story.Metadata.ReadingTime)
	assert.Equal(t, aliceInput(), story.Input)
}

func TestEngine_ProviderFailureFallsBack(t *testing.T) {
	f := newEngineFixture(t, breaker.DefaultSettings("openai"))
	f.store.On("Get", mock.Anything, mock.Anything).Return("", models.ErrNotFound).Once()
	f.prefs.On("GetUserPreferences", mock.Anything, "user_1").Return(models.DefaultUserPreferences("user_1")).Once()
	f.client.On("GenerateText", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return("", ai.UsageInfo{}, &ai.ProviderError{Provider: ai.ProviderOpenAI, StatusCode: 503, Err: errors.New("overloaded")}).Once()
	f.expectSideEffects(true)

	story := f.engine.GeneratePersonalizedStory(context.Background(), personalization.StoryRequest{UserID: "user_1", Input: aliceInput()})
	f.drain(t)

	require.NotNil(t, story)
	assert.True(t, story.Metadata.Fallback)
	assert.Contains(t, story.Metadata.Error, "overloaded")
	assert.Contains(t, story.Content+story.Title, "Alice")
	assert.GreaterOrEqual(t, story.Metadata.ReadingTime, 1)

	// кэш не пишется, счетчик не растет
	f.store.AssertNotCalled(t, "Set", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	f.prefs.AssertNotCalled(t, "RecordGeneration", mock.Anything, mock.Anything, mock.Anything)
}

func TestEngine_NeverPanics(t *testing.T) {
	f := newEngineFixture(t, breaker.DefaultSettings("openai"))
	f.store.On("Get", mock.Anything, mock.Anything).Return("", models.ErrNotFound).Once()
	f.prefs.On("GetUserPreferences", mock.Anything, "user_1").Panic("preferences exploded").Once()

	var story *models.Story
	require.NotPanics(t, func() {
		story = f.engine.GeneratePersonalizedStory(context.Background(), personalization.StoryRequest{UserID: "user_1", Input: aliceInput()})
	})
	f.drain(t)

	require.NotNil(t, story)
	assert.True(t, story.Metadata.Fallback)
	assert.Contains(t, story.Metadata.Error, "preferences exploded")
	assert.Contains(t, story.Content+story.Title, "Alice")
	assert.NotEmpty(t, story.ID)
}

func TestEngine_CacheErrorsAreSwallowed(t *testing.T) {
	f := newEngineFixture(t, breaker.DefaultSettings("openai"))
	f.store.On("Get", mock.Anything, mock.Anything).Return("", errors.New("redis down")).Once()
	f.client.On("GenerateText", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(liveStory, ai.UsageInfo{}, nil).Once()
	f.store.On("Set", mock.Anything, mock.Anything, liveStory, mock.Anything).Return(errors.New("redis down")).Once()

	prefs := models.DefaultUserPreferences("")
	story := f.engine.GeneratePersonalizedStory(context.Background(), personalization.StoryRequest{Input: aliceInput(), Preferences: prefs})
	f.drain(t)

	assert.False(t, story.Metadata.Fallback)
	assert.Equal(t, "The Moon Garden", story.Title)
}

func TestEngine_OpenBreakerServesFallbackWithoutCallingProvider(t *testing.T) {
	settings := breaker.DefaultSettings("openai")
	f := newEngineFixture(t, settings)
	f.store.On("Get", mock.Anything, mock.Anything).Return("", models.ErrNotFound)

	var calls atomic.Int32
	f.client.On("GenerateText", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Run(func(mock.Arguments) { calls.Add(1) }).
		Return("", ai.UsageInfo{}, errors.New("connection reset"))

	req := personalization.StoryRequest{Input: aliceInput(), Preferences: models.DefaultUserPreferences("")}
	first := f.engine.GeneratePersonalizedStory(context.Background(), req)
	assert.True(t, first.Metadata.Fallback)
	assert.Equal(t, "open", f.guarded.Health().State)

	before := f.guarded.Health().Stats
	for i := 0; i < 5; i++ {
		s := f.engine.GeneratePersonalizedStory(context.Background(), req)
		assert.True(t, s.Metadata.Fallback)
		assert.Contains(t, s.Metadata.Error, "open")
	}
	after := f.guarded.Health().Stats
	f.drain(t)

	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, uint64(5), after.Rejects-before.Rejects)
	assert.Equal(t, uint64(5), after.Fallbacks-before.Fallbacks)
}

func TestEngine_UnknownProviderFallsBack(t *testing.T) {
	f := newEngineFixture(t, breaker.DefaultSettings("openai"))
	f.store.On("Get", mock.Anything, mock.Anything).Return("", models.ErrNotFound).Once()

	story := f.engine.GeneratePersonalizedStory(context.Background(), personalization.StoryRequest{
		Input:    aliceInput(),
		Provider: ai.ProviderGemini,
	})
	f.drain(t)

	assert.True(t, story.Metadata.Fallback)
	assert.Contains(t, story.Metadata.Error, string(ai.ProviderGemini))
}

func TestEngine_ConcurrentRequestsOverCapacity(t *testing.T) {
	settings := breaker.DefaultSettings("openai")
	settings.Capacity = 10
	f := newEngineFixture(t, settings)
	f.store.On("Get", mock.Anything, mock.Anything).Return("", models.ErrNotFound)
	f.store.On("Set", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)

	release := make(chan struct{})
	var entered atomic.Int32
	f.client.On("GenerateText", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Run(func(mock.Arguments) {
			entered.Add(1)
			<-release
		}).
		Return(liveStory, ai.UsageInfo{}, nil)

	req := personalization.StoryRequest{Input: aliceInput(), Preferences: models.DefaultUserPreferences("")}
	results := make(chan *models.Story, 15)
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- f.engine.GeneratePersonalizedStory(context.Background(), req)
		}()
	}
	require.Eventually(t, func() bool { return entered.Load() == 10 }, 2*time.Second, 5*time.Millisecond)

	// слоты заняты: остальные 5 отклоняются сразу
	for i := 0; i < 5; i++ {
		s := f.engine.GeneratePersonalizedStory(context.Background(), req)
		assert.True(t, s.Metadata.Fallback)
		results <- s
	}
	close(release)
	wg.Wait()
	close(results)
	f.drain(t)

	var live, fallback int
	for s := range results {
		if s.Metadata.Fallback {
			fallback++
		} else {
			live++
		}
	}
	assert.Equal(t, int32(10), entered.Load())
	assert.Equal(t, 10, live)
	assert.Equal(t, 5, fallback)
}
