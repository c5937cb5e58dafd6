// Package schema validates the free-form details attached to submissions.
package schema

import (
	"embed"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/sust-cse/approval-engine/internal/domain/entity"
	"github.com/sust-cse/approval-engine/internal/domain/workflow"
)

//go:embed schemas/*.json
var files embed.FS

// Validator checks submission details against per-kind JSON schemas
type Validator struct {
	applications map[entity.ApplicationKind]*gojsonschema.Schema
	costRequest  *gojsonschema.Schema
}

// NewValidator compiles the embedded schemas
func NewValidator() (*Validator, error) {
	v := &Validator{applications: make(map[entity.ApplicationKind]*gojsonschema.Schema)}

	kinds := map[entity.ApplicationKind]string{
		entity.ApplicationKindLeave:     "schemas/leave.json",
		entity.ApplicationKindEquipment: "schemas/equipment.json",
		entity.ApplicationKindGeneral:   "schemas/general.json",
	}
	for kind, file := range kinds {
		s, err := compile(file)
		if err != nil {
			return nil, err
		}
		v.applications[kind] = s
	}

	s, err := compile("schemas/cost_request.json")
	if err != nil {
		return nil, err
	}
	v.costRequest = s

	return v, nil
}

func compile(file string) (*gojsonschema.Schema, error) {
	raw, err := files.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("read schema %s: %w", file, err)
	}
	s, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return nil, fmt.Errorf("compile schema %s: %w", file, err)
	}
	return s, nil
}

// ValidateApplication checks the details of an application of the given kind
func (v *Validator) ValidateApplication(kind entity.ApplicationKind, details json.RawMessage) error {
	s, ok := v.applications[kind]
	if !ok {
		return fmt.Errorf("%w: unknown application kind %q", workflow.ErrValidation, kind)
	}
	return validate(s, details)
}

// ValidateCostRequest checks optional cost request details
func (v *Validator) ValidateCostRequest(details json.RawMessage) error {
	if len(details) == 0 {
		return nil
	}
	return validate(v.costRequest, details)
}

func validate(s *gojsonschema.Schema, details json.RawMessage) error {
	if len(details) == 0 {
		details = json.RawMessage(`{}`)
	}

	result, err := s.Validate(gojsonschema.NewBytesLoader(details))
	if err != nil {
		return fmt.Errorf("%w: details are not valid JSON: %v", workflow.ErrValidation, err)
	}

	if !result.Valid() {
		var errs []string
		for _, desc := range result.Errors() {
			errs = append(errs, desc.String())
		}
		return fmt.Errorf("%w: %s", workflow.ErrValidation, strings.Join(errs, "; "))
	}

	return nil
}
