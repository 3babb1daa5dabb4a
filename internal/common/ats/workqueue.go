package ats

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"primary-organization/internal/common/errors"
	"primary-organization/internal/common/workqueue"
)

// Workqueue is one automation server work queue.
type Workqueue struct {
	client *Client
	id     string
}

// Workqueue returns the queue with the given id.
func (c *Client) Workqueue(id string) *Workqueue {
	return &Workqueue{client: c, id: id}
}

type addRequest struct {
	Data      interface{} `json:"data"`
	Reference string      `json:"reference"`
}

type clearRequest struct {
	WorkitemStatus string `json:"workitem_status"`
}

type statusRequest struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

type workItemResponse struct {
	ID        int64           `json:"id"`
	Data      json.RawMessage `json:"data"`
	Reference string          `json:"reference"`
	Status    string          `json:"status"`
	Message   string          `json:"message"`
}

func (w *Workqueue) path(action string) string {
	return fmt.Sprintf("workqueues/%s/%s", w.id, action)
}

func (w *Workqueue) Add(ctx context.Context, data interface{}, reference string) error {
	_, err := w.client.http.DoJSON(ctx, http.MethodPost, w.path("add"), addRequest{Data: data, Reference: reference}, nil)
	if err == nil {
		return nil
	}
	switch statusOf(err) {
	case http.StatusConflict:
		return errors.NewDuplicateWorkItemError(reference)
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return errors.NewWorkItemError("Work item rejected", err.Error())
	default:
		return errors.NewQueueConnectionError("ats", err)
	}
}

func (w *Workqueue) Clear(ctx context.Context, status workqueue.Status) error {
	_, err := w.client.http.DoJSON(ctx, http.MethodPost, w.path("clear"), clearRequest{WorkitemStatus: string(status)}, nil)
	if err != nil {
		return errors.NewQueueConnectionError("ats", err)
	}
	return nil
}

func (w *Workqueue) Next(ctx context.Context) (*workqueue.Item, error) {
	var resp workItemResponse
	status, err := w.client.http.DoJSON(ctx, http.MethodGet, w.path("next_item"), nil, &resp)
	if err != nil {
		if statusOf(err) == http.StatusNotFound {
			return nil, workqueue.ErrEmpty
		}
		return nil, errors.NewQueueConnectionError("ats", err)
	}
	if status == http.StatusNoContent || resp.ID == 0 {
		return nil, workqueue.ErrEmpty
	}
	return workqueue.NewItem(w, strconv.FormatInt(resp.ID, 10), resp.Reference, resp.Data), nil
}

func (w *Workqueue) Complete(ctx context.Context, item *workqueue.Item) error {
	return w.setStatus(ctx, item, workqueue.StatusCompleted, "")
}

func (w *Workqueue) Fail(ctx context.Context, item *workqueue.Item, message string) error {
	return w.setStatus(ctx, item, workqueue.StatusFailed, message)
}

func (w *Workqueue) setStatus(ctx context.Context, item *workqueue.Item, status workqueue.Status, message string) error {
	path := fmt.Sprintf("workitems/%s/status", item.ID)
	_, err := w.client.http.DoJSON(ctx, http.MethodPut, path, statusRequest{Status: string(status), Message: message}, nil)
	if err == nil {
		return nil
	}
	if statusOf(err) == http.StatusNotFound {
		return errors.NewWorkItemError("Work item not found", item.ID)
	}
	return errors.NewQueueConnectionError("ats", err)
}
