package http

import (
	"reflect"

	"github.com/go-playground/validator/v10"

	"github.com/sust-cse/approval-engine/pkg/utils"
)

// structValidator plugs the shared validator (with its custom tags) into gin binding
type structValidator struct {
	validate *validator.Validate
}

func newStructValidator() *structValidator {
	v := utils.NewValidator()
	v.SetTagName("binding")
	return &structValidator{validate: v}
}

func (s *structValidator) ValidateStruct(obj any) error {
	if obj == nil {
		return nil
	}
	value := reflect.ValueOf(obj)
	for value.Kind() == reflect.Pointer {
		if value.IsNil() {
			return nil
		}
		value = value.Elem()
	}
	if value.Kind() != reflect.Struct {
		return nil
	}
	return s.validate.Struct(value.Interface())
}

func (s *structValidator) Engine() any {
	return s.validate
}
