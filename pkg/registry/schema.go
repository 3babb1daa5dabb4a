// pkg/registry/schema.go
package registry

// OrganizationRegistry is the JSON document form of the approved list.
type OrganizationRegistry struct {
	Version       string   `json:"version"`
	LastUpdated   string   `json:"lastUpdated"`
	Organizations []string `json:"organizations"`
}
