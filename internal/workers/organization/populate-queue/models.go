package populatequeue

import (
	"context"

	"primary-organization/internal/common/logger"
	"primary-organization/internal/common/workqueue"
	"primary-organization/internal/models"
)

// Directory is the part of the Nexus API the populator reads.
type Directory interface {
	ListOrganizations(ctx context.Context) ([]models.Organization, error)
	ListCitizens(ctx context.Context, org models.Organization) ([]models.Citizen, error)
}

type ServiceDependencies struct {
	Logger    logger.Logger
	Directory Directory
	Queue     workqueue.Queue
}

// Summary counts what one population run did.
type Summary struct {
	OrganizationsMatched  int `json:"organizationsMatched"`
	CitizensSeen          int `json:"citizensSeen"`
	Enqueued              int `json:"enqueued"`
	Duplicates            int `json:"duplicates"`
	EnqueueFailed         int `json:"enqueueFailed"`
	SkippedIdentifierType int `json:"skippedIdentifierType"`
	SkippedExcluded       int `json:"skippedExcluded"`
}

func (s *Summary) fields() map[string]interface{} {
	return map[string]interface{}{
		"organizationsMatched":  s.OrganizationsMatched,
		"citizensSeen":          s.CitizensSeen,
		"enqueued":              s.Enqueued,
		"duplicates":            s.Duplicates,
		"enqueueFailed":         s.EnqueueFailed,
		"skippedIdentifierType": s.SkippedIdentifierType,
		"skippedExcluded":       s.SkippedExcluded,
	}
}
