package personalization

import (
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"bedtime-server/internal/models"
)

// FallbackChildName подставляется, если имя пустое: история не бывает безымянной.
const FallbackChildName = "Little One"

// Плейсхолдеры шаблонов.
const (
	phChildName  = "{childName}"
	phPronoun    = "{pronoun}"
	phPossessive = "{possessivePronoun}"
	phTheme      = "{theme}"
)

// fallbackTemplates - шаблоны по темам. Тема без шаблонов использует DefaultTheme.
var fallbackTemplates = map[string][]string{
	"adventure": {
		"# {childName}'s Great Adventure\n\nOnce upon a time, there was a brave child named {childName}. One evening, {pronoun} found a mysterious map tucked inside {possessivePronoun} favorite book. The map led through a whispering forest, over a sparkling stream and up a gentle hill. Along the way, {childName} met a wise old owl who shared a secret: the greatest treasure is the courage you carry inside. When {childName} reached the top of the hill, the stars were shining just for {possessivePronoun} adventure. Smiling, {childName} walked home, climbed into bed and dreamed of tomorrow's {theme}.\n\nThe End.",
		"# {childName} and the Hidden Path\n\nIn a cozy little town lived {childName}, who loved to explore. One sunny afternoon, {pronoun} spotted a narrow path behind the garden that nobody had noticed before. Step by step, {childName} followed it past tall sunflowers and a babbling brook, all the way to a tiny wooden door in an old oak tree. Inside was a room full of glowing fireflies who had been waiting for a friend. They danced around {possessivePronoun} head until the moon came up, then lit the way home. That night {childName} fell asleep with a heart full of {theme}.\n\nThe End.",
		"# The Brave Journey of {childName}\n\nWhen the wind began to sing through the trees, {childName} knew it was time for an adventure. With {possessivePronoun} backpack ready, {pronoun} set off across the meadow to help a little rabbit find its family. They climbed over rocks, tiptoed past a sleeping bear and crossed a bridge made of smooth stones. At last they found the rabbit's family waiting by a warm, glowing burrow. Everyone cheered for {childName}, the bravest explorer of all. Back home, tucked in tight, {childName} smiled and drifted off to sleep.\n\nThe End.",
	},
	"fantasy": {
		"# {childName} and the Kind Dragon\n\nFar beyond the rainbow hills, {childName} discovered a dragon who was afraid of the dark. Every night the dragon hid its head under its wing. So {childName} shared {possessivePronoun} secret: the dark is just the sky resting, and the stars are its night-lights. Together they counted stars until the dragon's eyes grew heavy. The dragon promised to fly {childName} to the castle in the clouds one day. Then, with a soft yawn, {pronoun} waved goodnight to the sleepy dragon and floated home on a dream.\n\nThe End.",
		"# The Enchanted Garden of {childName}\n\nIn a garden where flowers could whisper, {childName} found a tiny fairy with a torn wing. Carefully, {pronoun} wrapped the wing in a petal and sang a gentle song. The song was so kind that the whole garden began to glow, and the fairy's wing was whole again. To say thank you, the fairy sprinkled a little stardust on {possessivePronoun} pillow, so every dream would be a happy one. And that night, {childName} dreamed of a magical land of {theme}.\n\nThe End.",
	},
	"space": {
		"# {childName}'s Trip to the Stars\n\nThree, two, one, liftoff! {childName} zoomed into space in a shiny silver rocket. Out the window, {pronoun} saw planets with rings, moons made of silver and a comet with a sparkly tail. On a small blue planet, {childName} met a friendly alien who loved to giggle. They bounced in low gravity and shared {possessivePronoun} favorite snack. When it was time to go, the alien gave {childName} a tiny star to keep. Back on Earth, the star glowed softly beside the bed as {childName} fell fast asleep.\n\nThe End.",
		"# {childName} and the Lost Comet\n\nOne night, a little comet lost its way and landed right in {childName}'s backyard. It was scared and far from home. So {childName} built a cardboard rocket, and {pronoun} guided the comet back across the Milky Way, past sleepy planets and twinkling stars. The comet's family shone extra bright to say thank you, lighting up the whole sky. From {possessivePronoun} window, {childName} watched the glowing thank-you and smiled all the way into dreamland.\n\nThe End.",
	},
	"ocean": {
		"# {childName} Under the Sea\n\nWith a splash, {childName} dove beneath the waves into a world of coral and color. A wise sea turtle offered {childName} a ride, and {pronoun} held on tight as they glided past dancing fish and a shy octopus. At the bottom of the sea, they found a sunken ship filled with shells that hummed lullabies. The turtle let {childName} choose one to keep. Back on the beach, {childName} held the shell to {possessivePronoun} ear and heard the ocean singing goodnight.\n\nThe End.",
		"# {childName} and the Singing Whale\n\nOne evening, {childName} heard a sad song drifting across the ocean. A young whale had forgotten the words to its favorite tune. So {childName} sat on the shore, and {pronoun} hummed the melody until the whale remembered. The whale sang so beautifully that the waves swayed and the moon leaned closer to listen. Wrapped in {possessivePronoun} blanket, {childName} fell asleep to the gentle song of the sea.\n\nThe End.",
	},
	"animals": {
		"# {childName} and the Sleepy Bear Cub\n\nIn a quiet meadow, {childName} met a little bear cub who could not fall asleep. {childName} knew just what to do. First, {pronoun} showed the cub how to take slow, deep breaths like the wind. Then they counted fluffy clouds as they turned pink and gold. Finally, {childName} shared {possessivePronoun} favorite lullaby. Before the song was over, the cub was snoring softly. {childName} tiptoed home, snuggled into bed and drifted off too.\n\nThe End.",
	},
	"friendship": {
		"# {childName} Makes a New Friend\n\nOn the first day at the park, {childName} noticed a child sitting alone on a swing. Remembering how it felt to be new, {pronoun} walked over and shared {possessivePronoun} favorite ball. Soon they were laughing, racing and building a sandcastle taller than the slide. When the sun began to set, they promised to meet again tomorrow. That night, {childName} fell asleep smiling, because the best adventures are the ones we share with friends.\n\nThe End.",
	},
	"magic": {
		"# {childName}'s First Spell\n\nIn a tower full of flying books, a friendly wizard gave {childName} a little wooden wand. \"Magic comes from kindness,\" said the wizard. {childName} thought of {possessivePronoun} family, waved the wand, and the whole room filled with glowing bubbles that smelled like cookies. The wizard clapped, and {pronoun} laughed with delight. On the way home, the bubbles followed {childName} and floated gently around the bed, glowing softly until every dream was full of {theme}.\n\nThe End.",
	},
	"dinosaurs": {
		"# {childName} and the Tiny Triceratops\n\nDeep in a prehistoric valley, {childName} found a tiny triceratops looking for its mother. Together they followed giant footprints past ferns taller than houses and a volcano that only puffed little clouds. When they found the mother triceratops, she gave a happy rumble and let {childName} ride on her back. As the sun set over the valley, {pronoun} waved goodbye to {possessivePronoun} new friends and dreamed of dinosaurs all night long.\n\nThe End.",
	},
}

// FallbackGenerator рендерит шаблонную историю без обращения к провайдеру.
// Безопасен для параллельного использования.
type FallbackGenerator struct {
	mu  sync.Mutex
	rnd *rand.Rand
}

// NewFallbackGenerator создает генератор. src == nil - PCG с посевом от времени.
func NewFallbackGenerator(src rand.Source) *FallbackGenerator {
	if src == nil {
		now := uint64(time.Now().UnixNano())
		src = rand.NewPCG(now, now>>17|1)
	}
	return &FallbackGenerator{rnd: rand.New(src)}
}

// Bucket возвращает набор шаблонов, из которого будет выбрана история для темы.
func (g *FallbackGenerator) Bucket(theme string) []string {
	if templates, ok := fallbackTemplates[normalizeTheme(theme)]; ok && len(templates) > 0 {
		return templates
	}
	return fallbackTemplates[DefaultTheme]
}

// Generate возвращает историю в формате "# Title\n\nBody". Никогда не падает.
func (g *FallbackGenerator) Generate(input models.StoryInput) string {
	bucket := g.Bucket(input.Theme)

	g.mu.Lock()
	idx := g.rnd.IntN(len(bucket))
	g.mu.Unlock()

	name := strings.TrimSpace(input.ChildName)
	if name == "" {
		name = FallbackChildName
	}
	theme := strings.TrimSpace(input.Theme)
	if theme == "" {
		theme = DefaultTheme
	}
	p := DerivePronouns(input.Gender)

	r := strings.NewReplacer(
		phChildName, name,
		phPronoun, p.Subject,
		phPossessive, p.Possessive,
		phTheme, theme,
	)
	return r.Replace(bucket[idx])
}

var defaultFallback = NewFallbackGenerator(nil)

// GenerateFallbackStory рендерит историю генератором по умолчанию.
func GenerateFallbackStory(input models.StoryInput) string {
	return defaultFallback.Generate(input)
}
