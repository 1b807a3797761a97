package models

import "time"

// DefaultAgeGroup используется, пока пользователь не указал возраст.
const DefaultAgeGroup = "4-6"

// NotificationSettings - настройки уведомлений пользователя.
type NotificationSettings struct {
	Email        bool `json:"email"`
	Push         bool `json:"push"`
	WeeklyDigest bool `json:"weeklyDigest"`
}

// UserPreferences - сохраненные настройки пользователя.
type UserPreferences struct {
	UserID               string               `db:"user_id" json:"userId"`
	PreferredThemes      []string             `db:"preferred_themes" json:"preferredThemes"`
	LearningInterests    []string             `db:"learning_interests" json:"learningInterests"`
	AgeGroup             string               `db:"age_group" json:"ageGroup"`
	StoryCount           int                  `db:"story_count" json:"storyCount"`
	NotificationSettings NotificationSettings `db:"notification_settings" json:"notificationSettings"`
	CreatedAt            time.Time            `db:"created_at" json:"createdAt"`
	UpdatedAt            time.Time            `db:"updated_at" json:"updatedAt"`
}

// DefaultUserPreferences возвращает настройки по умолчанию для нового пользователя.
func DefaultUserPreferences(userID string) *UserPreferences {
	now := time.Now().UTC()
	return &UserPreferences{
		UserID:            userID,
		PreferredThemes:   []string{},
		LearningInterests: []string{},
		AgeGroup:          DefaultAgeGroup,
		StoryCount:        0,
		NotificationSettings: NotificationSettings{
			Email:        true,
			Push:         false,
			WeeklyDigest: false,
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// PreferencesUpdate - частичное обновление настроек. nil поля не меняются.
type PreferencesUpdate struct {
	PreferredThemes      *[]string             `json:"preferredThemes,omitempty" binding:"omitempty,max=20"`
	LearningInterests    *[]string             `json:"learningInterests,omitempty" binding:"omitempty,max=20"`
	AgeGroup             *string               `json:"ageGroup,omitempty" binding:"omitempty,max=16"`
	NotificationSettings *NotificationSettings `json:"notificationSettings,omitempty"`
}

// IsEmpty сообщает, что обновление ничего не меняет.
func (u PreferencesUpdate) IsEmpty() bool {
	return u.PreferredThemes == nil && u.LearningInterests == nil && u.AgeGroup == nil && u.NotificationSettings == nil
}

// Apply применяет обновление к prefs и обновляет UpdatedAt.
func (u PreferencesUpdate) Apply(prefs *UserPreferences) {
	if u.PreferredThemes != nil {
		prefs.PreferredThemes = append([]string(nil), (*u.PreferredThemes)...)
	}
	if u.LearningInterests != nil {
		prefs.LearningInterests = append([]string(nil), (*u.LearningInterests)...)
	}
	if u.AgeGroup != nil {
		prefs.AgeGroup = *u.AgeGroup
	}
	if u.NotificationSettings != nil {
		prefs.NotificationSettings = *u.NotificationSettings
	}
	prefs.UpdatedAt = time.Now().UTC()
}

// UserMetadata - служебные счетчики пользователя из хэша key-value хранилища.
type UserMetadata struct {
	StoryCount  int       `json:"storyCount"`
	LastStoryAt time.Time `json:"lastStoryAt"`
	LastTheme   string    `json:"lastTheme"`
}
