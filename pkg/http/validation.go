package http

import (
	"reflect"
	"strings"

	"shortener/pkg/keycodec"
	"shortener/pkg/service"

	"github.com/go-playground/validator/v10"
)

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	// An empty key asks for an auto key, so it passes here.
	_ = v.RegisterValidation("shortkey", func(fl validator.FieldLevel) bool {
		key := fl.Field().String()
		return key == "" || keycodec.ValidKey(key)
	})
	return v
}

// validationFailure classifies validator output. A bad custom key gets its
// own error so clients can tell it from other field problems.
func validationFailure(err error) (code string, details []string) {
	errs, ok := err.(validator.ValidationErrors)
	if !ok {
		return "VALIDATION_ERROR", []string{err.Error()}
	}
	code = "VALIDATION_ERROR"
	for _, fe := range errs {
		if fe.Tag() == "shortkey" {
			code = "INVALID_KEY_FORMAT"
		}
		details = append(details, getValidationErrorMessage(fe))
	}
	return code, details
}

func getValidationErrorMessage(err validator.FieldError) string {
	switch err.Tag() {
	case "required":
		return err.Field() + " is required"
	case "max":
		return err.Field() + " must be at most " + err.Param() + " characters"
	case "shortkey":
		return service.ErrInvalidKeyFormat.Error()
	default:
		return err.Field() + " is invalid"
	}
}
