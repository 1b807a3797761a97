package personalization

import "strings"

// ThemeElements - подсказки для промпта по теме.
type ThemeElements struct {
	Settings   []string
	Characters []string
	Challenges []string
}

// DefaultTheme используется, когда тема неизвестна.
const DefaultTheme = "adventure"

var themeDescriptions = map[string]string{
	"adventure":   "an exciting journey full of discovery, courage and new places",
	"fantasy":     "a magical world with enchanted creatures and wondrous kingdoms",
	"science":     "a curious exploration of how the world works, with experiments and discoveries",
	"animals":     "a heartwarming tale with friendly animals and the natural world",
	"space":       "a cosmic voyage among stars, planets and friendly aliens",
	"ocean":       "an underwater adventure with sea creatures and hidden treasures",
	"friendship":  "a warm story about kindness, sharing and being a good friend",
	"magic":       "a spellbinding story of gentle magic, wands and wishes",
	"dinosaurs":   "a prehistoric adventure with friendly dinosaurs",
	"superheroes": "a story about everyday heroes who use their powers to help others",
}

var themeElements = map[string]ThemeElements{
	"adventure": {
		Settings:   []string{"a hidden forest trail", "a misty mountain", "an old lighthouse"},
		Characters: []string{"a wise old owl", "a brave little fox", "a friendly explorer"},
		Challenges: []string{"finding the way home", "crossing a wobbly bridge", "solving a treasure map riddle"},
	},
	"fantasy": {
		Settings:   []string{"a castle in the clouds", "an enchanted garden", "a kingdom under a rainbow"},
		Characters: []string{"a kind dragon", "a tiny fairy", "a talking unicorn"},
		Challenges: []string{"breaking a sleepy spell", "returning a lost crown", "helping a shy giant"},
	},
	"science": {
		Settings:   []string{"a cozy laboratory", "a backyard observatory", "a museum at night"},
		Characters: []string{"a helpful robot", "a curious inventor", "a clever scientist"},
		Challenges: []string{"fixing a broken machine", "discovering why the sky changes color", "growing a giant plant"},
	},
	"animals": {
		Settings:   []string{"a sunny farm", "a quiet meadow", "a jungle full of sounds"},
		Characters: []string{"a playful puppy", "a gentle elephant", "a sleepy bear cub"},
		Challenges: []string{"helping a lost kitten", "building a nest", "finding the best napping spot"},
	},
	"space": {
		Settings:   []string{"a shiny rocket ship", "the rings of Saturn", "a moon base"},
		Characters: []string{"a friendly alien", "a brave astronaut", "a twinkling star"},
		Challenges: []string{"fixing the rocket engine", "visiting a new planet", "guiding a lost comet home"},
	},
	"ocean": {
		Settings:   []string{"a coral reef", "a sunken ship", "an underwater city"},
		Characters: []string{"a wise sea turtle", "a playful dolphin", "a shy octopus"},
		Challenges: []string{"finding a hidden pearl", "cleaning up the reef", "helping a whale sing again"},
	},
	"friendship": {
		Settings:   []string{"a neighborhood park", "a treehouse", "a school playground"},
		Characters: []string{"a new kid in town", "a loyal best friend", "a grumpy neighbor with a kind heart"},
		Challenges: []string{"making a new friend", "sharing a favorite toy", "saying sorry after an argument"},
	},
	"magic": {
		Settings:   []string{"a wizard's tower", "a library of flying books", "a moonlit glade"},
		Characters: []string{"a young wizard", "a mischievous cat", "a friendly ghost"},
		Challenges: []string{"learning a new spell", "fixing a spell gone wrong", "finding a lost magic wand"},
	},
	"dinosaurs": {
		Settings:   []string{"a prehistoric valley", "a volcano island", "a dinosaur museum that comes alive"},
		Characters: []string{"a gentle brontosaurus", "a tiny triceratops", "a friendly T-rex"},
		Challenges: []string{"finding a lost dinosaur egg", "escaping a rumbling volcano", "teaching a dinosaur to dance"},
	},
	"superheroes": {
		Settings:   []string{"a bustling city", "a secret hideout", "a rooftop at sunset"},
		Characters: []string{"a caped hero", "a loyal sidekick", "a reformed villain"},
		Challenges: []string{"rescuing a kitten from a tree", "stopping a runaway train", "discovering a new superpower"},
	},
}

// Themes возвращает каталог поддерживаемых тем.
func Themes() []string {
	return []string{"adventure", "fantasy", "science", "animals", "space", "ocean", "friendship", "magic", "dinosaurs", "superheroes"}
}

// ThemeDescription возвращает описание темы. Для неизвестной темы - общее описание с ее названием.
func ThemeDescription(theme string) string {
	if d, ok := themeDescriptions[normalizeTheme(theme)]; ok {
		return d
	}
	return "a story about " + theme
}

// LookupThemeElements возвращает подсказки для темы, если тема есть в каталоге.
func LookupThemeElements(theme string) (ThemeElements, bool) {
	el, ok := themeElements[normalizeTheme(theme)]
	return el, ok
}

func normalizeTheme(theme string) string {
	return strings.ToLower(strings.TrimSpace(theme))
}
