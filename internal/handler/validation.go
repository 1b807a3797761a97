package handler

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"bedtime-server/internal/models"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

var registerValidatorsOnce sync.Once

// knownGenders - значения, для которых выбираются местоимения; остальное отклоняется.
var knownGenders = map[string]struct{}{
	"boy":     {},
	"girl":    {},
	"male":    {},
	"female":  {},
	"neutral": {},
}

// RegisterValidators регистрирует правило "gender" и json имена полей
// в валидаторе gin. Безопасно вызывать повторно.
func RegisterValidators() {
	registerValidatorsOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		v.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})
		_ = v.RegisterValidation("gender", func(fl validator.FieldLevel) bool {
			return isKnownGender(fl.Field().String())
		})
	})
}

func isKnownGender(g string) bool {
	_, ok := knownGenders[strings.ToLower(strings.TrimSpace(g))]
	return ok
}

// ValidateStoryInput проверяет то, что не выражается тегами binding:
// имя и тема не могут состоять из одних пробелов.
func ValidateStoryInput(input models.StoryInput) error {
	if strings.TrimSpace(input.ChildName) == "" {
		return fmt.Errorf("%w: childName is required", models.ErrInvalidInput)
	}
	if strings.TrimSpace(input.Theme) == "" {
		return fmt.Errorf("%w: theme is required", models.ErrInvalidInput)
	}
	if input.Gender != "" && !isKnownGender(string(input.Gender)) {
		return fmt.Errorf("%w: gender must be one of boy, girl, neutral", models.ErrInvalidInput)
	}
	return nil
}

// describeBindingError превращает ошибку binding в понятное сообщение.
func describeBindingError(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return "invalid request body"
	}

	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		field := fe.Field()
		switch fe.Tag() {
		case "required":
			msgs = append(msgs, field+" is required")
		case "max":
			msgs = append(msgs, fmt.Sprintf("%s must not exceed %s", field, fe.Param()))
		case "gender":
			msgs = append(msgs, field+" must be one of boy, girl, neutral")
		case "oneof":
			msgs = append(msgs, fmt.Sprintf("%s must be one of %s", field, fe.Param()))
		case "gte", "gt", "lte", "lt":
			msgs = append(msgs, fmt.Sprintf("%s is out of range (%s %s)", field, fe.Tag(), fe.Param()))
		default:
			msgs = append(msgs, field+" is invalid")
		}
	}
	return strings.Join(msgs, "; ")
}
