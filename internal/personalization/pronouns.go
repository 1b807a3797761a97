package personalization

import (
	"strings"

	"bedtime-server/internal/models"
)

// Pronouns - формы местоимения ребенка для промпта и шаблонов.
type Pronouns struct {
	Subject    string // she / he / they
	Object     string // her / him / them
	Possessive string // her / his / their
}

var (
	pronounsGirl    = Pronouns{Subject: "she", Object: "her", Possessive: "her"}
	pronounsBoy     = Pronouns{Subject: "he", Object: "him", Possessive: "his"}
	pronounsNeutral = Pronouns{Subject: "they", Object: "them", Possessive: "their"}
)

// DerivePronouns выбирает местоимения по полу. Неизвестные значения дают they/them.
func DerivePronouns(gender models.Gender) Pronouns {
	switch strings.ToLower(strings.TrimSpace(string(gender))) {
	case "girl", "female":
		return pronounsGirl
	case "boy", "male":
		return pronounsBoy
	default:
		return pronounsNeutral
	}
}
