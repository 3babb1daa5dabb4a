package camunda

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"primary-organization/internal/common/errors"
	"primary-organization/internal/common/logger"
	"primary-organization/internal/common/workqueue"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
)

// QueueConfig maps work-queue operations onto a Zeebe process: Add
// publishes a message that starts one instance per item, Next activates
// one job of JobType.
type QueueConfig struct {
	MessageName    string
	JobType        string
	WorkerName     string
	JobTimeout     time.Duration
	RequestTimeout time.Duration
	MessageTTL     time.Duration
}

// Queue is a workqueue.Queue on top of Zeebe.
type Queue struct {
	client *Client
	cfg    QueueConfig
	log    logger.Logger
}

func NewQueue(client *Client, cfg QueueConfig, log logger.Logger) *Queue {
	return &Queue{client: client, cfg: cfg, log: log}
}

// itemVariables are the process variables carried by each instance.
type itemVariables struct {
	Reference string          `json:"reference"`
	Data      json.RawMessage `json:"data"`
}

// Add publishes the item. The reference doubles as message id, so the
// broker rejects a second publish of the same reference within the TTL.
func (q *Queue) Add(ctx context.Context, data interface{}, reference string) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return errors.NewWorkItemError("Invalid work item data", err.Error())
	}
	vars := itemVariables{Reference: reference, Data: raw}

	return q.client.ExecuteWithRetry(ctx, func(ctx context.Context) error {
		cmd, err := q.client.GetClient().NewPublishMessageCommand().
			MessageName(q.cfg.MessageName).
			CorrelationKey(reference).
			MessageId(reference).
			TimeToLive(q.cfg.MessageTTL).
			VariablesFromObject(vars)
		if err != nil {
			return errors.NewWorkItemError("Invalid work item data", err.Error())
		}
		_, err = cmd.Send(ctx)
		if err != nil && isAlreadyExists(err) {
			return errors.NewDuplicateWorkItemError(reference)
		}
		return err
	}, "publish-message")
}

// Clear is a no-op: published messages cannot be withdrawn and expire
// on their TTL.
func (q *Queue) Clear(ctx context.Context, status workqueue.Status) error {
	q.log.Info("Clear is not supported by the zeebe backend, relying on message TTL", map[string]interface{}{
		"status":     string(status),
		"messageTTL": q.cfg.MessageTTL.String(),
	})
	return nil
}

func (q *Queue) Next(ctx context.Context) (*workqueue.Item, error) {
	var jobs []entities.Job
	err := q.client.ExecuteWithRetry(ctx, func(ctx context.Context) error {
		// The client derives the long-polling window from the deadline.
		if q.cfg.RequestTimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, q.cfg.RequestTimeout)
			defer cancel()
		}
		var err error
		jobs, err = q.client.GetClient().NewActivateJobsCommand().
			JobType(q.cfg.JobType).
			MaxJobsToActivate(1).
			Timeout(q.cfg.JobTimeout).
			WorkerName(q.cfg.WorkerName).
			Send(ctx)
		return err
	}, "activate-jobs")
	if err != nil {
		return nil, err
	}
	if len(jobs) == 0 {
		return nil, workqueue.ErrEmpty
	}
	return q.itemFromJob(jobs[0])
}

func (q *Queue) itemFromJob(job entities.Job) (*workqueue.Item, error) {
	var vars itemVariables
	if err := json.Unmarshal([]byte(job.GetVariables()), &vars); err != nil {
		return nil, fmt.Errorf("decode variables of job %d: %w", job.GetKey(), err)
	}
	return workqueue.NewItem(q, strconv.FormatInt(job.GetKey(), 10), vars.Reference, vars.Data), nil
}

func (q *Queue) Complete(ctx context.Context, item *workqueue.Item) error {
	key, err := jobKey(item)
	if err != nil {
		return err
	}
	return q.client.ExecuteWithRetry(ctx, func(ctx context.Context) error {
		_, err := q.client.GetClient().NewCompleteJobCommand().JobKey(key).Send(ctx)
		return err
	}, "complete-job")
}

// Fail fails the job with no retries left so an incident is raised for
// manual review.
func (q *Queue) Fail(ctx context.Context, item *workqueue.Item, message string) error {
	key, err := jobKey(item)
	if err != nil {
		return err
	}
	return q.client.ExecuteWithRetry(ctx, func(ctx context.Context) error {
		_, err := q.client.GetClient().NewFailJobCommand().
			JobKey(key).
			Retries(0).
			ErrorMessage(message).
			Send(ctx)
		return err
	}, "fail-job")
}

func jobKey(item *workqueue.Item) (int64, error) {
	key, err := strconv.ParseInt(item.ID, 10, 64)
	if err != nil {
		return 0, errors.NewWorkItemError("Invalid job key", item.ID)
	}
	return key, nil
}
