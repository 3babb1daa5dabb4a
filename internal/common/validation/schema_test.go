package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSchema() JSONSchema {
	return JSONSchema{
		Type:     "object",
		Required: []string{"cpr", "organization"},
		Properties: map[string]Property{
			"cpr":          {Type: "string", Pattern: StringPtr(`^\d{6}-?\d{4}$`)},
			"organization": {Type: "string", MinLength: IntPtr(1)},
		},
		AdditionalProperties: true,
	}
}

func TestValidator_Validate(t *testing.T) {
	v := MustCompile(testSchema())

	tests := []struct {
		name      string
		document  interface{}
		valid     bool
		badFields []string
	}{
		{
			name:     "valid map",
			document: map[string]interface{}{"cpr": "010101-1234", "organization": "Klinik A"},
			valid:    true,
		},
		{
			name:     "valid raw json without dash",
			document: []byte(`{"cpr":"0101011234","organization":"Klinik A"}`),
			valid:    true,
		},
		{
			name:      "missing organization",
			document:  map[string]interface{}{"cpr": "010101-1234"},
			badFields: []string{"organization"},
		},
		{
			name:      "bad cpr and empty organization",
			document:  map[string]interface{}{"cpr": "abc", "organization": ""},
			badFields: []string{"cpr", "organization"},
		},
		{
			name:      "wrong type",
			document:  map[string]interface{}{"cpr": 101011234, "organization": "Klinik A"},
			badFields: []string{"cpr"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := v.Validate(tt.document)
			assert.Equal(t, tt.valid, result.Valid)
			for _, f := range tt.badFields {
				assert.True(t, result.HasErrors(f), "expected error for %s, got %v", f, result.GetErrorMessages())
			}
		})
	}
}

func TestValidator_InvalidJSON(t *testing.T) {
	result := MustCompile(testSchema()).Validate([]byte(`{not json`))

	assert.False(t, result.Valid)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, "INVALID_DOCUMENT", result.Errors[0].Code)
}

func TestValidateInput_CachesByName(t *testing.T) {
	first := ValidateInput("work-item", map[string]interface{}{"cpr": "010101-1234", "organization": "A"}, testSchema())
	assert.True(t, first.Valid)

	// The cached schema is used even when a different one is passed.
	second := ValidateInput("work-item", map[string]interface{}{"cpr": "010101-1234", "organization": "A"}, JSONSchema{Type: "array"})
	assert.True(t, second.Valid)
}

func TestGetErrorsForField(t *testing.T) {
	vr := &ValidationResult{Errors: []ValidationError{
		{Field: "cpr", Message: "bad"},
		{Field: "organization.name", Message: "bad"},
	}}

	assert.Len(t, vr.GetErrorsForField("organization"), 1)
	assert.Equal(t, []string{"cpr: bad", "organization.name: bad"}, vr.GetErrorMessages())
}
