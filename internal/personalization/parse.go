package personalization

import (
	"strings"
)

// WordsPerMinute - скорость чтения для оценки времени.
const WordsPerMinute = 200

// ParseStoryText делит сырой текст по первой строке-заголовку markdown
// ("# Title", "## Title"). Заголовок - текст этой строки без решеток,
// содержимое - все после нее. Строки вида "#1 best day" заголовком не считаются.
// Без заголовка возвращается defaultTitle и весь текст.
func ParseStoryText(raw, defaultTitle string) (title, content string) {
	lines := strings.Split(strings.ReplaceAll(raw, "\r\n", "\n"), "\n")
	for i, line := range lines {
		text, ok := headingText(line)
		if !ok {
			continue
		}
		title = text
		if title == "" {
			title = defaultTitle
		}
		content = strings.TrimSpace(strings.Join(lines[i+1:], "\n"))
		return title, content
	}
	return defaultTitle, strings.TrimSpace(raw)
}

// headingText распознает ATX-заголовок: от 1 до 6 '#', затем пробел или конец строки.
func headingText(line string) (string, bool) {
	trimmed := strings.TrimSpace(line)
	rest := strings.TrimLeft(trimmed, "#")
	level := len(trimmed) - len(rest)
	if level == 0 || level > 6 {
		return "", false
	}
	if rest != "" && rest[0] != ' ' && rest[0] != '\t' {
		return "", false
	}
	return strings.TrimSpace(rest), true
}

// CountWords считает слова, разделенные пробельными символами.
func CountWords(s string) int {
	return len(strings.Fields(s))
}

// ReadingTime - минуты чтения: ceil(words / 200), минимум 1.
func ReadingTime(words int) int {
	minutes := (words + WordsPerMinute - 1) / WordsPerMinute
	return max(minutes, 1)
}

// DefaultTitle - заголовок, если текст пришел без него.
func DefaultTitle(childName string) string {
	if strings.TrimSpace(childName) == "" {
		return "A Bedtime Story"
	}
	return childName + "'s Bedtime Story"
}
