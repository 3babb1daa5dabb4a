package setprimaryorganization

import (
	"context"

	"primary-organization/internal/common/logger"
	"primary-organization/internal/common/tracking"
	"primary-organization/internal/models"
)

type Service struct {
	config   *Config
	logger   logger.Logger
	citizens Citizens
	tracker  tracking.Tracker
}

func NewService(deps ServiceDependencies, config *Config) *Service {
	return &Service{
		config:   config,
		logger:   deps.Logger,
		citizens: deps.Citizens,
		tracker:  deps.Tracker,
	}
}

// Execute makes the payload organization the citizen's primary one.
// A missing relation or one that is already primary is a skip, not an error.
func (s *Service) Execute(ctx context.Context, input *Input) (*Output, error) {
	if err := validateInput(input); err != nil {
		return nil, err
	}

	output := &Output{CPR: input.CPR, Organization: input.Organization}

	citizen, err := s.citizens.GetCitizen(ctx, input.CPR)
	if err != nil {
		return nil, err
	}
	output.CitizenID = citizen.ID

	relations, err := s.citizens.ListRelations(ctx, *citizen)
	if err != nil {
		return nil, err
	}
	output.RelationsFound = len(relations)

	relation, found := models.FindRelation(relations, input.Organization)
	if !found {
		s.logger.Info("Citizen has no relation to organization, skipping", map[string]interface{}{
			"cpr":          input.CPR,
			"organization": input.Organization,
		})
		output.Outcome = models.OutcomeSkippedNoRelation
		return output, nil
	}
	output.RelationID = relation.ID

	if relation.PrimaryOrganization {
		s.logger.Info("Organization is already primary, skipping", map[string]interface{}{
			"cpr":          input.CPR,
			"organization": input.Organization,
		})
		output.Outcome = models.OutcomeSkippedAlreadyPrimary
		return output, nil
	}

	if _, err := s.citizens.UpdateRelation(ctx, *citizen, *relation, true, nil); err != nil {
		return nil, err
	}

	if err := s.tracker.TrackTask(ctx, s.config.TaskLabel); err != nil {
		return nil, err
	}

	s.logger.Info("Set primary organization", map[string]interface{}{
		"cpr":          input.CPR,
		"organization": input.Organization,
		"relationId":   relation.ID,
	})

	output.Outcome = models.OutcomeSucceeded
	return output, nil
}
