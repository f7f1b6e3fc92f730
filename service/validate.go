package service

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/kevinaaaquil/bookreviews/models"
)

const minPublicationYear = 1000

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

var validate = newValidator()

func maxPublicationYear() int {
	return time.Now().Year() + 10
}

func newValidator() *validator.Validate {
	v := validator.New()
	// Report fields by their JSON names so messages match the request body.
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})
	mustRegister(v, "looseemail", func(fl validator.FieldLevel) bool {
		return emailPattern.MatchString(fl.Field().String())
	})
	mustRegister(v, "genre", func(fl validator.FieldLevel) bool {
		return models.ValidGenre(fl.Field().String())
	})
	mustRegister(v, "pubyear", func(fl validator.FieldLevel) bool {
		y := fl.Field().Int()
		return y >= minPublicationYear && y <= int64(maxPublicationYear())
	})
	return v
}

func mustRegister(v *validator.Validate, tag string, fn validator.Func) {
	if err := v.RegisterValidation(tag, fn); err != nil {
		panic(fmt.Sprintf("register %s validation: %v", tag, err))
	}
}

// checkInput validates a tagged input struct and turns the first failure into a
// validation error with a readable message.
func checkInput(in any) error {
	err := validate.Struct(in)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		return invalid("%s", describe(verrs[0]))
	}
	return fmt.Errorf("validate input: %w", err)
}

func describe(fe validator.FieldError) string {
	field := fe.Field()
	isString := fe.Kind() == reflect.String
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "min":
		if isString {
			return fmt.Sprintf("%s must be at least %s characters long", field, fe.Param())
		}
		return fmt.Sprintf("%s must be at least %s", field, fe.Param())
	case "max":
		if isString {
			return fmt.Sprintf("%s cannot exceed %s characters", field, fe.Param())
		}
		return fmt.Sprintf("%s cannot exceed %s", field, fe.Param())
	case "looseemail":
		return "please provide a valid email address"
	case "genre":
		return "genre must be one of: " + strings.Join(models.Genres, ", ")
	case "pubyear":
		return fmt.Sprintf("year must be between %d and %d", minPublicationYear, maxPublicationYear())
	}
	return field + " is invalid"
}
