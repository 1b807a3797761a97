package personalization

import (
	"fmt"
	"strings"

	"bedtime-server/internal/models"
)

// MaxStoryWords - ориентировочный предел длины тела истории.
const MaxStoryWords = 500

const systemPrompt = `You are a gentle, imaginative children's storyteller who writes calm, age-appropriate bedtime stories.
Stories are warm, positive and free of violence or frightening content, and they end on a peaceful, sleepy note.`

// Prompt - системный и пользовательский промпты для провайдера.
type Prompt struct {
	System string
	User   string
}

// BuildPrompt собирает промпт из ввода и сохраненных настроек. Чистая функция.
// prefs может быть nil.
func BuildPrompt(input models.StoryInput, prefs *models.UserPreferences) Prompt {
	p := DerivePronouns(input.Gender)

	var b strings.Builder
	fmt.Fprintf(&b, "Write a bedtime story for a child named %s. Use the pronouns %s/%s (possessive: %s) when referring to %s.\n",
		input.ChildName, p.Subject, p.Object, p.Possessive, input.ChildName)
	fmt.Fprintf(&b, "Theme: %s - %s.\n", input.Theme, ThemeDescription(input.Theme))

	if el, ok := LookupThemeElements(input.Theme); ok {
		b.WriteString("\nSuggestions you may use:\n")
		fmt.Fprintf(&b, "- Settings: %s\n", strings.Join(el.Settings, ", "))
		fmt.Fprintf(&b, "- Characters: %s\n", strings.Join(el.Characters, ", "))
		fmt.Fprintf(&b, "- Challenges: %s\n", strings.Join(el.Challenges, ", "))
	}

	details := make([]string, 0, 6)
	if len(input.Interests) > 0 {
		details = append(details, fmt.Sprintf("%s loves %s.", input.ChildName, strings.Join(input.Interests, ", ")))
	}
	if len(input.FavoriteCharacters) > 0 {
		details = append(details, fmt.Sprintf("Favorite characters to include: %s.", strings.Join(input.FavoriteCharacters, ", ")))
	}
	if len(input.MostLikedCharacterTypes) > 0 {
		details = append(details, fmt.Sprintf("Character types %s enjoys most: %s.", p.Subject, strings.Join(input.MostLikedCharacterTypes, ", ")))
	}
	if input.ReadingLevel != "" {
		details = append(details, fmt.Sprintf("Reading level: %s.", input.ReadingLevel))
	}
	if input.Mood != "" {
		details = append(details, fmt.Sprintf("The story should feel %s.", input.Mood))
	}
	if prefs != nil {
		if len(prefs.LearningInterests) > 0 {
			details = append(details, fmt.Sprintf("Gently weave in something to learn about: %s.", strings.Join(prefs.LearningInterests, ", ")))
		}
		if prefs.AgeGroup != "" {
			details = append(details, fmt.Sprintf("Write for a child aged %s years.", prefs.AgeGroup))
		}
	}
	if len(details) > 0 {
		b.WriteString("\nAbout the child:\n")
		for _, d := range details {
			b.WriteString("- ")
			b.WriteString(d)
			b.WriteByte('\n')
		}
	}

	b.WriteString("\nFormatting:\n")
	b.WriteString("- Start with a single markdown title line beginning with '# '.\n")
	fmt.Fprintf(&b, "- After the title, write the story body in plain paragraphs, at most %d words.\n", MaxStoryWords)
	fmt.Fprintf(&b, "- Make %s the hero of the story.\n", input.ChildName)

	return Prompt{System: systemPrompt, User: b.String()}
}
