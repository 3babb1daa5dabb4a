package validation

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"
)

// JSONSchema defines the structure for input/output schemas
type JSONSchema struct {
	Type                 string              `json:"type"`
	Properties           map[string]Property `json:"properties"`
	Required             []string            `json:"required,omitempty"`
	AdditionalProperties bool                `json:"additionalProperties"`
}

type Property struct {
	Type        string              `json:"type,omitempty"`
	Description string              `json:"description,omitempty"`
	Enum        []string            `json:"enum,omitempty"`
	Pattern     *string             `json:"pattern,omitempty"`
	MinLength   *int                `json:"minLength,omitempty"`
	MaxLength   *int                `json:"maxLength,omitempty"`
	Items       *Property           `json:"items,omitempty"`
	Properties  map[string]Property `json:"properties,omitempty"`
	Required    []string            `json:"required,omitempty"`
}

type ValidationResult struct {
	Valid  bool              `json:"valid"`
	Errors []ValidationError `json:"errors,omitempty"`
}

type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// Validator is a compiled schema, safe for concurrent use.
type Validator struct {
	schema *gojsonschema.Schema
}

// Compile turns a JSONSchema into a Validator.
func Compile(s JSONSchema) (*Validator, error) {
	raw, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("marshal schema: %w", err)
	}
	compiled, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return &Validator{schema: compiled}, nil
}

// MustCompile is like Compile but panics on an invalid schema.
func MustCompile(s JSONSchema) *Validator {
	v, err := Compile(s)
	if err != nil {
		panic(err)
	}
	return v
}

// Validate checks a Go value (struct, map or raw JSON bytes) against the schema.
func (v *Validator) Validate(document interface{}) *ValidationResult {
	var loader gojsonschema.JSONLoader
	switch doc := document.(type) {
	case []byte:
		loader = gojsonschema.NewBytesLoader(doc)
	case json.RawMessage:
		loader = gojsonschema.NewBytesLoader(doc)
	default:
		loader = gojsonschema.NewGoLoader(doc)
	}

	result, err := v.schema.Validate(loader)
	if err != nil {
		return &ValidationResult{
			Valid: false,
			Errors: []ValidationError{{
				Field:   "(root)",
				Message: err.Error(),
				Code:    "INVALID_DOCUMENT",
			}},
		}
	}

	errors := make([]ValidationError, 0, len(result.Errors()))
	for _, re := range result.Errors() {
		errors = append(errors, toValidationError(re))
	}

	return &ValidationResult{
		Valid:  result.Valid(),
		Errors: errors,
	}
}

func toValidationError(re gojsonschema.ResultError) ValidationError {
	field := re.Field()
	if re.Type() == "required" {
		if prop, ok := re.Details()["property"].(string); ok {
			if field == gojsonschema.STRING_CONTEXT_ROOT {
				field = prop
			} else {
				field = field + "." + prop
			}
		}
	}
	return ValidationError{
		Field:   field,
		Message: re.Description(),
		Code:    strings.ToUpper(re.Type()),
	}
}

var (
	cacheMu sync.Mutex
	cache   = map[string]*Validator{}
)

// ValidateInput validates input against the schema, compiling it once per name.
func ValidateInput(name string, input interface{}, schema JSONSchema) *ValidationResult {
	cacheMu.Lock()
	v, ok := cache[name]
	if !ok {
		var err error
		v, err = Compile(schema)
		if err != nil {
			cacheMu.Unlock()
			return &ValidationResult{Errors: []ValidationError{{Field: "(schema)", Message: err.Error(), Code: "INVALID_SCHEMA"}}}
		}
		cache[name] = v
	}
	cacheMu.Unlock()

	return v.Validate(input)
}

// GetSchemaFromJSON parses JSON schema from string
func GetSchemaFromJSON(schemaJSON string) (JSONSchema, error) {
	var schema JSONSchema
	err := json.Unmarshal([]byte(schemaJSON), &schema)
	return schema, err
}

// GetErrorMessages returns a simple list of error messages
func (vr *ValidationResult) GetErrorMessages() []string {
	messages := make([]string, len(vr.Errors))
	for i, err := range vr.Errors {
		messages[i] = fmt.Sprintf("%s: %s", err.Field, err.Message)
	}
	return messages
}

// HasErrors checks if validation has errors for specific field
func (vr *ValidationResult) HasErrors(field string) bool {
	for _, err := range vr.Errors {
		if err.Field == field {
			return true
		}
	}
	return false
}

// GetErrorsForField returns errors for a specific field
func (vr *ValidationResult) GetErrorsForField(field string) []ValidationError {
	var fieldErrors []ValidationError
	for _, err := range vr.Errors {
		if err.Field == field || strings.HasPrefix(err.Field, field+".") || strings.HasPrefix(err.Field, field+"[") {
			fieldErrors = append(fieldErrors, err)
		}
	}
	return fieldErrors
}

// StringPtr and IntPtr help build Property literals.
func StringPtr(s string) *string { return &s }

func IntPtr(i int) *int { return &i }
