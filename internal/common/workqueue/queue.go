// Package workqueue is the work-item queue shared by the populate and
// process phases, with interchangeable backends.
package workqueue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
)

// ErrEmpty is returned by Next when there are no more pending items.
var ErrEmpty = errors.New("workqueue: no pending items")

// Status of a work item.
type Status string

const (
	StatusNew        Status = "new"
	StatusInProgress Status = "in progress"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Queue is implemented by every backend.
type Queue interface {
	// Add enqueues data under reference. A reference already present
	// yields an error with code DUPLICATE_WORK_ITEM.
	Add(ctx context.Context, data interface{}, reference string) error
	// Clear deletes every item with the given status.
	Clear(ctx context.Context, status Status) error
	// Next claims the next pending item, or returns ErrEmpty.
	Next(ctx context.Context) (*Item, error)
	Complete(ctx context.Context, item *Item) error
	Fail(ctx context.Context, item *Item, message string) error
}

// Item is a claimed work item. It is finalized at most once.
type Item struct {
	ID        string
	Reference string
	Data      json.RawMessage

	queue     Queue
	mu        sync.Mutex
	finalized bool
	status    Status
	message   string
}

// NewItem binds a claimed item to the queue that finalizes it.
func NewItem(q Queue, id, reference string, data []byte) *Item {
	return &Item{
		ID:        id,
		Reference: reference,
		Data:      json.RawMessage(data),
		queue:     q,
		status:    StatusInProgress,
	}
}

// GetReference returns the deduplication key of the item.
func (i *Item) GetReference() string {
	return i.Reference
}

// Decode unmarshals the item data into v.
func (i *Item) Decode(v interface{}) error {
	if len(i.Data) == 0 {
		return fmt.Errorf("work item %s has no data", i.ID)
	}
	return json.Unmarshal(i.Data, v)
}

// Fail marks the item failed with message. Calls after the first
// finalization are no-ops.
func (i *Item) Fail(ctx context.Context, message string) error {
	return i.finalize(ctx, StatusFailed, message)
}

// Complete marks the item completed unless already finalized.
func (i *Item) Complete(ctx context.Context) error {
	return i.finalize(ctx, StatusCompleted, "")
}

func (i *Item) finalize(ctx context.Context, status Status, message string) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	if i.finalized {
		return nil
	}

	var err error
	if status == StatusFailed {
		err = i.queue.Fail(ctx, i, message)
	} else {
		err = i.queue.Complete(ctx, i)
	}
	if err != nil {
		return err
	}

	i.finalized = true
	i.status = status
	i.message = message
	return nil
}

// Status returns the current status of the item.
func (i *Item) Status() Status {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.status
}

// Finalized reports whether the item was completed or failed.
func (i *Item) Finalized() bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.finalized
}

// Message returns the failure message, if any.
func (i *Item) Message() string {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.message
}
