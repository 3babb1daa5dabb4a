// Package nexus is a client for the KMD Nexus REST API.
package nexus

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"primary-organization/internal/common/errors"
	apihttp "primary-organization/internal/common/http"
	"primary-organization/internal/models"
)

type Client struct {
	http *apihttp.Client
}

// NewClient creates a client for baseURL. hc carries authorization,
// typically auth.KeycloakClient.HTTPClient().
func NewClient(baseURL string, timeout time.Duration, hc *http.Client) *Client {
	opts := []apihttp.Option{}
	if hc != nil {
		opts = append(opts, apihttp.WithHTTPClient(hc))
	}
	return &Client{http: apihttp.NewClient(baseURL, timeout, opts...)}
}

// ListOrganizations returns the full organization directory.
func (c *Client) ListOrganizations(ctx context.Context) ([]models.Organization, error) {
	var orgs []models.Organization
	if _, err := c.http.DoJSON(ctx, http.MethodGet, "organizations", nil, &orgs); err != nil {
		return nil, mapError(err, "organizations")
	}
	return orgs, nil
}

// ListCitizens returns the citizens attached to org.
func (c *Client) ListCitizens(ctx context.Context, org models.Organization) ([]models.Citizen, error) {
	path := fmt.Sprintf("organizations/%d/patients", org.ID)
	var citizens []models.Citizen
	if _, err := c.http.DoJSON(ctx, http.MethodGet, path, nil, &citizens); err != nil {
		return nil, mapError(err, path)
	}
	return citizens, nil
}

// GetCitizen resolves a citizen by cpr. Only a citizen whose identifier
// equals cpr, ignoring dashes, is returned; anything else is a
// CITIZEN_NOT_FOUND error naming the identifier.
func (c *Client) GetCitizen(ctx context.Context, cpr string) (*models.Citizen, error) {
	path := "patients?identifier=" + url.QueryEscape(cpr)
	var citizens []models.Citizen
	if _, err := c.http.DoJSON(ctx, http.MethodGet, path, nil, &citizens); err != nil {
		mapped := mapError(err, "patients")
		if errors.IsCode(mapped, errors.ErrCodeResourceNotFound) {
			return nil, errors.NewCitizenNotFoundError(cpr)
		}
		return nil, mapped
	}
	want := normalizeCPR(cpr)
	for i := range citizens {
		if normalizeCPR(citizens[i].PatientIdentifier.Identifier) == want {
			return &citizens[i], nil
		}
	}
	return nil, errors.NewCitizenNotFoundError(cpr)
}

func normalizeCPR(cpr string) string {
	return strings.ReplaceAll(strings.TrimSpace(cpr), "-", "")
}

// ListRelations returns the citizen's organization relations.
func (c *Client) ListRelations(ctx context.Context, citizen models.Citizen) ([]models.OrganizationRelation, error) {
	path := fmt.Sprintf("patients/%d/organizations", citizen.ID)
	var relations []models.OrganizationRelation
	if _, err := c.http.DoJSON(ctx, http.MethodGet, path, nil, &relations); err != nil {
		return nil, mapError(err, path)
	}
	return relations, nil
}

// UpdateRelation writes the primary flag and end date of relation.
func (c *Client) UpdateRelation(ctx context.Context, citizen models.Citizen, relation models.OrganizationRelation, primary bool, endDate *time.Time) (*models.OrganizationRelation, error) {
	relation.PrimaryOrganization = primary
	relation.EffectiveEndDate = endDate

	path := fmt.Sprintf("patients/%d/organizations/%d", citizen.ID, relation.ID)
	var updated models.OrganizationRelation
	status, err := c.http.DoJSON(ctx, http.MethodPut, path, relation, &updated)
	if err != nil {
		return nil, mapError(err, path)
	}
	if status == http.StatusNoContent || updated.ID == 0 {
		return &relation, nil
	}
	return &updated, nil
}

// mapError turns transport and status failures into StandardErrors.
func mapError(err error, resource string) error {
	if std, ok := errors.AsStandardError(err); ok {
		return std
	}

	var se *apihttp.StatusError
	if stderrors.As(err, &se) {
		switch {
		case se.StatusCode == http.StatusNotFound:
			return errors.NewResourceNotFoundError("nexus", resource)
		case se.StatusCode == http.StatusBadRequest,
			se.StatusCode == http.StatusConflict,
			se.StatusCode == http.StatusUnprocessableEntity:
			return errors.NewBusinessRuleError("Nexus rejected the request", fmt.Sprintf("%s: %s", resource, se.Body))
		case se.StatusCode == http.StatusUnauthorized, se.StatusCode == http.StatusForbidden:
			return errors.NewAuthenticationError(fmt.Sprintf("nexus %s: status %d", resource, se.StatusCode))
		default:
			return errors.NewExternalServiceError("nexus", se)
		}
	}

	var timeout interface{ Timeout() bool }
	if stderrors.Is(err, context.DeadlineExceeded) || (stderrors.As(err, &timeout) && timeout.Timeout()) {
		return errors.NewTimeoutError("nexus", err)
	}
	return errors.NewExternalServiceError("nexus", err)
}
