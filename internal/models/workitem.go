// internal/models/workitem.go
package models

// WorkItemPayload is the data carried by one queued work item.
type WorkItemPayload struct {
	CPR          string `json:"cpr"`
	Organization string `json:"organization"`
}

// Reference is the deduplication key of the item.
func (p WorkItemPayload) Reference() string {
	return p.CPR
}

// ProcessOutcome is the terminal state of a processed item.
type ProcessOutcome string

const (
	OutcomeSucceeded             ProcessOutcome = "succeeded"
	OutcomeSkippedNoRelation     ProcessOutcome = "skipped_no_relation"
	OutcomeSkippedAlreadyPrimary ProcessOutcome = "skipped_already_primary"
	OutcomeFailed                ProcessOutcome = "failed"
)

// Done reports whether the outcome commits the item as completed.
func (o ProcessOutcome) Done() bool {
	return o != OutcomeFailed
}
