package models

import "time"

// Gender управляет выбором местоимений в истории.
type Gender string

const (
	GenderBoy     Gender = "boy"
	GenderGirl    Gender = "girl"
	GenderNeutral Gender = "neutral"
)

// StoryInput - параметры генерации, введенные пользователем в мастере.
// Внутри пайплайна не изменяется: функции, которым нужен отсортированный
// список интересов, работают с копией.
type StoryInput struct {
	ChildName               string   `json:"childName" binding:"required,max=64"`
	Gender                  Gender   `json:"gender" binding:"omitempty,gender"`
	Theme                   string   `json:"theme" binding:"required,max=64"`
	Interests               []string `json:"interests" binding:"max=20,dive,max=64"`
	FavoriteCharacters      []string `json:"favoriteCharacters,omitempty" binding:"max=20,dive,max=64"`
	MostLikedCharacterTypes []string `json:"mostLikedCharacterTypes,omitempty" binding:"max=20,dive,max=64"`
	ReadingLevel            string   `json:"readingLevel,omitempty" binding:"max=32"`
	Mood                    string   `json:"mood,omitempty" binding:"max=32"`
}

// StoryMetadata - производные данные истории.
type StoryMetadata struct {
	Pronoun           string    `json:"pronoun"`
	PossessivePronoun string    `json:"possessivePronoun"`
	GeneratedAt       time.Time `json:"generatedAt"`
	WordCount         int       `json:"wordCount"`
	ReadingTime       int       `json:"readingTime"` // минуты
	// Fallback выставлен всегда, когда текст получен не от успешного вызова провайдера.
	Fallback bool   `json:"fallback"`
	Error    string `json:"error,omitempty"`
	Cached   bool   `json:"cached"`
	Provider string `json:"provider,omitempty"`
}

// Story - результат генерации. После возврата не изменяется.
type Story struct {
	ID        string        `json:"id"`
	Title     string        `json:"title"`
	Content   string        `json:"content"`
	Theme     string        `json:"theme"`
	CreatedAt time.Time     `json:"createdAt"`
	Input     StoryInput    `json:"input"`
	Metadata  StoryMetadata `json:"metadata"`
}

// StoryHistoryRecord - облегченная копия истории для сохранения в историю пользователя.
type StoryHistoryRecord struct {
	ID          string    `db:"id" json:"id"`
	UserID      string    `db:"user_id" json:"userId"`
	Title       string    `db:"title" json:"title"`
	Theme       string    `db:"theme" json:"theme"`
	ChildName   string    `db:"child_name" json:"childName"`
	WordCount   int       `db:"word_count" json:"wordCount"`
	ReadingTime int       `db:"reading_time" json:"readingTime"`
	Fallback    bool      `db:"fallback" json:"fallback"`
	CreatedAt   time.Time `db:"created_at" json:"createdAt"`
}

// NewStoryHistoryRecord копирует поля истории в запись истории.
func NewStoryHistoryRecord(userID string, story *Story) StoryHistoryRecord {
	return StoryHistoryRecord{
		ID:          story.ID,
		UserID:      userID,
		Title:       story.Title,
		Theme:       story.Theme,
		ChildName:   story.Input.ChildName,
		WordCount:   story.Metadata.WordCount,
		ReadingTime: story.Metadata.ReadingTime,
		Fallback:    story.Metadata.Fallback,
		CreatedAt:   story.CreatedAt,
	}
}

// StoryGeneratedEvent публикуется после каждой сгенерированной истории.
type StoryGeneratedEvent struct {
	StoryID     string    `json:"story_id"`
	UserID      string    `json:"user_id"`
	Theme       string    `json:"theme"`
	Provider    string    `json:"provider,omitempty"`
	Fallback    bool      `json:"fallback"`
	Cached      bool      `json:"cached"`
	WordCount   int       `json:"word_count"`
	GeneratedAt time.Time `json:"generated_at"`
}
