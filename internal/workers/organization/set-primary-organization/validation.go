package setprimaryorganization

import (
	"strings"

	"primary-organization/internal/common/errors"
	"primary-organization/internal/common/validation"
)

func GetInputSchema() validation.JSONSchema {
	return validation.JSONSchema{
		Type: "object",
		Properties: map[string]validation.Property{
			"cpr": {
				Type:        "string",
				Description: "Citizen CPR number",
				Pattern:     validation.StringPtr(`^\d{6}-?\d{4}$`),
			},
			"organization": {
				Type:        "string",
				Description: "Name of the organization to make primary",
				MinLength:   validation.IntPtr(1),
			},
		},
		Required:             []string{"cpr", "organization"},
		AdditionalProperties: true,
	}
}

func validateInput(input *Input) error {
	result := validation.ValidateInput(WorkerName, input, GetInputSchema())
	if result.Valid {
		return nil
	}
	return errors.NewValidationFailedError(strings.Join(result.GetErrorMessages(), "; "))
}
