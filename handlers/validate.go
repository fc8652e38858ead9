package handlers

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/camden-git/faceenhancer/media"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("image_format", func(fl validator.FieldLevel) bool {
		_, err := media.ParseFormat(fl.Field().String())
		return err == nil
	})
	return v
}

// validateStruct returns one message per failed field, or nil.
func validateStruct(payload interface{}) []string {
	err := validate.Struct(payload)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return []string{err.Error()}
	}
	msgs := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		if fe.Param() != "" {
			msgs = append(msgs, fmt.Sprintf("%s failed '%s=%s' (got %v)", fe.Field(), fe.Tag(), fe.Param(), fe.Value()))
		} else {
			msgs = append(msgs, fmt.Sprintf("%s failed '%s' (got %v)", fe.Field(), fe.Tag(), fe.Value()))
		}
	}
	return msgs
}
