// internal/models/organization.go
package models

import "time"

// IdentifierTypeCPR is the national citizen identifier type.
const IdentifierTypeCPR = "cpr"

type Organization struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type PatientIdentifier struct {
	Type       string `json:"type"`
	Identifier string `json:"identifier"`
}

// Citizen is a Nexus patient.
type Citizen struct {
	ID                int64             `json:"id"`
	FirstName         string            `json:"firstName,omitempty"`
	LastName          string            `json:"lastName,omitempty"`
	PatientIdentifier PatientIdentifier `json:"patientIdentifier"`
}

// CPR returns the identifier when it is of type cpr.
func (c Citizen) CPR() (string, bool) {
	if c.PatientIdentifier.Type != IdentifierTypeCPR {
		return "", false
	}
	return c.PatientIdentifier.Identifier, true
}

// OrganizationRelation links a citizen to an organization.
// A nil EffectiveEndDate means the relation is open ended and is sent as null.
type OrganizationRelation struct {
	ID                  int64        `json:"id"`
	Organization        Organization `json:"organization"`
	PrimaryOrganization bool         `json:"primaryOrganization"`
	EffectiveStartDate  *time.Time   `json:"effectiveStartDate,omitempty"`
	EffectiveEndDate    *time.Time   `json:"effectiveEndDate"`
	Version             int          `json:"version,omitempty"`
}

// FindRelation returns the first relation to the named organization.
func FindRelation(relations []OrganizationRelation, organizationName string) (*OrganizationRelation, bool) {
	for i := range relations {
		if relations[i].Organization.Name == organizationName {
			return &relations[i], true
		}
	}
	return nil, false
}
