package setprimaryorganization

import (
	"context"
	"time"

	"primary-organization/internal/common/logger"
	"primary-organization/internal/common/notify"
	"primary-organization/internal/common/tracking"
	"primary-organization/internal/models"
)

// Input is the payload of one work item.
type Input = models.WorkItemPayload

type Output struct {
	Outcome        models.ProcessOutcome `json:"outcome"`
	CPR            string                `json:"cpr"`
	Organization   string                `json:"organization"`
	CitizenID      int64                 `json:"citizenId,omitempty"`
	RelationID     int64                 `json:"relationId,omitempty"`
	RelationsFound int                   `json:"relationsFound"`
}

// Citizens is the part of the Nexus API the processor uses.
type Citizens interface {
	GetCitizen(ctx context.Context, cpr string) (*models.Citizen, error)
	ListRelations(ctx context.Context, citizen models.Citizen) ([]models.OrganizationRelation, error)
	UpdateRelation(ctx context.Context, citizen models.Citizen, relation models.OrganizationRelation, primary bool, endDate *time.Time) (*models.OrganizationRelation, error)
}

type ServiceDependencies struct {
	Logger   logger.Logger
	Citizens Citizens
	Tracker  tracking.Tracker
}

// Executor runs the per-item business logic.
type Executor interface {
	Execute(ctx context.Context, input *Input) (*Output, error)
}

// Summary counts what one processing run did.
type Summary struct {
	Processed             int       `json:"processed"`
	Succeeded             int       `json:"succeeded"`
	SkippedNoRelation     int       `json:"skippedNoRelation"`
	SkippedAlreadyPrimary int       `json:"skippedAlreadyPrimary"`
	Failed                int       `json:"failed"`
	Failures              []Failure `json:"failures,omitempty"`
}

// Failure is an item left failed for manual triage.
type Failure struct {
	Reference string `json:"reference"`
	Code      string `json:"code"`
	Message   string `json:"message"`
}

func (s *Summary) record(outcome models.ProcessOutcome) {
	switch outcome {
	case models.OutcomeSucceeded:
		s.Succeeded++
	case models.OutcomeSkippedNoRelation:
		s.SkippedNoRelation++
	case models.OutcomeSkippedAlreadyPrimary:
		s.SkippedAlreadyPrimary++
	}
}

func (s *Summary) fields() map[string]interface{} {
	return map[string]interface{}{
		"processed":             s.Processed,
		"succeeded":             s.Succeeded,
		"skippedNoRelation":     s.SkippedNoRelation,
		"skippedAlreadyPrimary": s.SkippedAlreadyPrimary,
		"failed":                s.Failed,
	}
}

// RunSummary converts the summary for the notifier.
func (s *Summary) RunSummary(process string, aborted error) notify.RunSummary {
	failures := make([]notify.Failure, 0, len(s.Failures))
	for _, f := range s.Failures {
		failures = append(failures, notify.Failure{Reference: f.Reference, Message: f.Message})
	}
	return notify.RunSummary{
		Process:   process,
		Processed: s.Processed,
		Succeeded: s.Succeeded,
		Skipped:   s.SkippedNoRelation + s.SkippedAlreadyPrimary,
		Failed:    s.Failed,
		Failures:  failures,
		Aborted:   aborted,
	}
}
