package populatequeue

import (
	"context"

	"primary-organization/internal/common/errors"
	"primary-organization/internal/common/logger"
	"primary-organization/internal/common/workqueue"
	"primary-organization/internal/models"
	"primary-organization/pkg/registry"
)

type Service struct {
	config    *Config
	logger    logger.Logger
	directory Directory
	queue     workqueue.Queue
	approved  *registry.Approved
	excluded  map[string]struct{}
}

func NewService(deps ServiceDependencies, config *Config) *Service {
	excluded := make(map[string]struct{}, len(config.ExcludedIdentifiers))
	for _, id := range config.ExcludedIdentifiers {
		excluded[id] = struct{}{}
	}

	return &Service{
		config:    config,
		logger:    deps.Logger,
		directory: deps.Directory,
		queue:     deps.Queue,
		approved:  registry.NewApproved(config.Approved...),
		excluded:  excluded,
	}
}

// Execute enqueues one work item per eligible citizen of every approved
// organization. Directory failures abort the run; enqueue failures are
// logged and counted.
func (s *Service) Execute(ctx context.Context) (*Summary, error) {
	summary := &Summary{}

	orgs, err := s.listOrganizations(ctx)
	if err != nil {
		return summary, err
	}

	for _, org := range orgs {
		if !s.approved.Contains(org.Name) {
			continue
		}
		summary.OrganizationsMatched++

		citizens, err := s.listCitizens(ctx, org)
		if err != nil {
			return summary, err
		}

		s.logger.Info("Adding citizens from organization", map[string]interface{}{
			"organization": org.Name,
			"count":        len(citizens),
		})

		for _, citizen := range citizens {
			summary.CitizensSeen++
			s.enqueue(ctx, org, citizen, summary)
		}
	}

	return summary, nil
}

func (s *Service) enqueue(ctx context.Context, org models.Organization, citizen models.Citizen, summary *Summary) {
	if citizen.PatientIdentifier.Type != s.config.IdentifierType {
		summary.SkippedIdentifierType++
		return
	}

	cpr := citizen.PatientIdentifier.Identifier
	if _, skip := s.excluded[cpr]; skip {
		summary.SkippedExcluded++
		return
	}

	payload := models.WorkItemPayload{CPR: cpr, Organization: org.Name}
	if err := s.queue.Add(ctx, payload, payload.Reference()); err != nil {
		if errors.IsCode(err, errors.ErrCodeDuplicateWorkItem) {
			summary.Duplicates++
		} else {
			summary.EnqueueFailed++
		}
		s.logger.Error("Error adding item to workqueue", map[string]interface{}{
			"data":      payload,
			"errorCode": string(errors.CodeOf(err)),
			"error":     err.Error(),
		})
		return
	}
	summary.Enqueued++
}

func (s *Service) listOrganizations(ctx context.Context) ([]models.Organization, error) {
	ctx, cancel := context.WithTimeout(ctx, s.config.Timeout)
	defer cancel()
	return s.directory.ListOrganizations(ctx)
}

func (s *Service) listCitizens(ctx context.Context, org models.Organization) ([]models.Citizen, error) {
	ctx, cancel := context.WithTimeout(ctx, s.config.Timeout)
	defer cancel()
	return s.directory.ListCitizens(ctx, org)
}
