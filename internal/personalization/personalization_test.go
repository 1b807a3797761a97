package personalization_test

import (
	"math/rand/v2"
	"strings"
	"sync"
	"testing"

	"bedtime-server/internal/models"
	"bedtime-server/internal/personalization"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDerivePronouns(t *testing.T) {
	cases := []struct {
		gender models.Gender
		want   personalization.Pronouns
	}{
		{"girl", personalization.Pronouns{Subject: "she", Object: "her", Possessive: "her"}},
		{"Female", personalization.Pronouns{Subject: "she", Object: "her", Possessive: "her"}},
		{"boy", personalization.Pronouns{Subject: "he", Object: "him", Possessive: "his"}},
		{"male", personalization.Pronouns{Subject: "he", Object: "him", Possessive: "his"}},
		{"neutral", personalization.Pronouns{Subject: "they", Object: "them", Possessive: "their"}},
		{"", personalization.Pronouns{Subject: "they", Object: "them", Possessive: "their"}},
		{"robot", personalization.Pronouns{Subject: "they", Object: "them", Possessive: "their"}},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, personalization.DerivePronouns(tc.gender), "gender %q", tc.gender)
	}
}

func TestBuildPrompt_EmbedsInputAndPreferences(t *testing.T) {
	input := models.StoryInput{
		ChildName:               "Alice",
		Gender:                  models.GenderGirl,
		Theme:                   "space",
		Interests:               []string{"rockets", "cats"},
		FavoriteCharacters:      []string{"Captain Whiskers"},
		MostLikedCharacterTypes: []string{"robots"},
		ReadingLevel:            "beginner",
		Mood:                    "calm",
	}
	prefs := models.DefaultUserPreferences("u1")
	prefs.LearningInterests = []string{"planets"}
	prefs.AgeGroup = "4-6"

	p := personalization.BuildPrompt(input, prefs)

	assert.NotEmpty(t, p.System)
	for _, want := range []string{
		"Alice",
		"she/her",
		"possessive: her",
		personalization.ThemeDescription("space"),
		"Suggestions you may use",
		"a friendly alien",
		"rockets, cats",
		"Captain Whiskers",
		"robots",
		"beginner",
		"calm",
		"planets",
		"aged 4-6",
		"'# '",
		"at most 500 words",
	} {
		assert.Contains(t, p.User, want)
	}
}

func TestBuildPrompt_UnknownThemeAndNoPreferences(t *testing.T) {
	p := personalization.BuildPrompt(models.StoryInput{ChildName: "Sam", Theme: "trains"}, nil)

	assert.Contains(t, p.User, "Sam")
	assert.Contains(t, p.User, "they/them")
	assert.Contains(t, p.User, "a story about trains")
	assert.NotContains(t, p.User, "Suggestions you may use")
	assert.NotContains(t, p.User, "About the child")
}

func TestBuildPrompt_Pure(t *testing.T) {
	input := models.StoryInput{ChildName: "Max", Theme: "ocean", Interests: []string{"b", "a"}}
	first := personalization.BuildPrompt(input, nil)
	second := personalization.BuildPrompt(input, nil)

	assert.Equal(t, first, second)
	assert.Equal(t, []string{"b", "a"}, input.Interests)
}

func TestParseStoryText(t *testing.T) {
	title, content := personalization.ParseStoryText("# Alice's Quest\n\nOnce upon a time...", "Default")
	assert.Equal(t, "Alice's Quest", title)
	assert.Equal(t, "Once upon a time...", content)

	title, content = personalization.ParseStoryText("Preamble line\n## Deep Title\nBody line one\nBody line two", "Default")
	assert.Equal(t, "Deep Title", title)
	assert.Equal(t, "Body line one\nBody line two", content)

	title, content = personalization.ParseStoryText("No heading here.\nJust text.", "Default")
	assert.Equal(t, "Default", title)
	assert.Equal(t, "No heading here.\nJust text.", content)

	title, _ = personalization.ParseStoryText("#\n\nBody", "Default")
	assert.Equal(t, "Default", title)

	// "#1" и "#tag" не заголовки: текст выше них не теряется
	raw := "Tonight Mia felt brave.\n#1 best day ever, she said.\n#sleepy"
	title, content = personalization.ParseStoryText(raw, "Default")
	assert.Equal(t, "Default", title)
	assert.Equal(t, raw, content)

	title, content = personalization.ParseStoryText("Intro\n#1 fan\n### Real Title\nBody", "Default")
	assert.Equal(t, "Real Title", title)
	assert.Equal(t, "Body", content)
}

func TestReadingTime(t *testing.T) {
	assert.Equal(t, 2, personalization.ReadingTime(400))
	assert.Equal(t, 1, personalization.ReadingTime(1))
	assert.Equal(t, 1, personalization.ReadingTime(0))
	assert.Equal(t, 1, personalization.ReadingTime(200))
	assert.Equal(t, 2, personalization.ReadingTime(201))

	words := strings.TrimSpace(strings.Repeat("word ", 400))
	assert.Equal(t, 400, personalization.CountWords(words))
	assert.Equal(t, 2, personalization.ReadingTime(personalization.CountWords(words)))
}

func TestFallback_AlwaysContainsName(t *testing.T) {
	gen := personalization.NewFallbackGenerator(rand.NewPCG(1, 2))
	themes := append(personalization.Themes(), "", "trains", "UNKNOWN theme")

	for _, theme := range themes {
		for _, gender := range []models.Gender{models.GenderBoy, models.GenderGirl, models.GenderNeutral, "other"} {
			for i := 0; i < 5; i++ {
				out := gen.Generate(models.StoryInput{ChildName: "Zoë", Theme: theme, Gender: gender})
				require.NotEmpty(t, out)
				assert.Contains(t, out, "Zoë", "theme %q", theme)
				assert.NotContains(t, out, "{", "unreplaced placeholder for theme %q", theme)
			}
		}
	}
}

func TestFallback_ParsesLikeProviderOutput(t *testing.T) {
	gen := personalization.NewFallbackGenerator(rand.NewPCG(3, 4))
	out := gen.Generate(models.StoryInput{ChildName: "Leo", Theme: "space", Gender: models.GenderBoy})

	require.True(t, strings.HasPrefix(out, "# "))
	title, content := personalization.ParseStoryText(out, "Default")
	assert.NotEqual(t, "Default", title)
	assert.NotEmpty(t, content)
}

func TestFallback_EmptyNameIsReplaced(t *testing.T) {
	out := personalization.GenerateFallbackStory(models.StoryInput{Theme: "adventure"})
	assert.Contains(t, out, personalization.FallbackChildName)
}

func TestFallback_BucketDeterminism(t *testing.T) {
	gen := personalization.NewFallbackGenerator(rand.NewPCG(42, 42))

	// неизвестная тема использует набор adventure
	assert.Equal(t, gen.Bucket("adventure"), gen.Bucket("trains"))
	assert.NotEqual(t, gen.Bucket("adventure"), gen.Bucket("space"))

	render := func(tmpl string) string {
		return strings.NewReplacer("{childName}", "Mia", "{pronoun}", "she", "{possessivePronoun}", "her", "{theme}", "ocean").Replace(tmpl)
	}
	allowed := make(map[string]bool)
	for _, tmpl := range gen.Bucket("ocean") {
		allowed[render(tmpl)] = true
	}
	for i := 0; i < 20; i++ {
		out := gen.Generate(models.StoryInput{ChildName: "Mia", Theme: "ocean", Gender: models.GenderGirl})
		assert.True(t, allowed[out], "output must come from the ocean bucket")
	}

	// одинаковый посев дает одинаковую последовательность
	a := personalization.NewFallbackGenerator(rand.NewPCG(7, 7))
	b := personalization.NewFallbackGenerator(rand.NewPCG(7, 7))
	for i := 0; i < 10; i++ {
		in := models.StoryInput{ChildName: "Kai", Theme: "adventure"}
		assert.Equal(t, a.Generate(in), b.Generate(in))
	}
}

func TestFallback_ConcurrentUse(t *testing.T) {
	gen := personalization.NewFallbackGenerator(nil)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			out := gen.Generate(models.StoryInput{ChildName: "Ada", Theme: "magic"})
			assert.Contains(t, out, "Ada")
		}()
	}
	wg.Wait()
}
