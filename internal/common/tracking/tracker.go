// Package tracking records audit events for performed tasks.
package tracking

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"primary-organization/internal/common/errors"
	"primary-organization/internal/common/logger"

	"github.com/elastic/go-elasticsearch/v8"
)

// Tracker records one event per performed task.
type Tracker interface {
	TrackTask(ctx context.Context, label string) error
}

// Event is one recorded task.
type Event struct {
	ProcessName string    `json:"process_name"`
	TaskLabel   string    `json:"task_label"`
	Count       int       `json:"count"`
	CreatedAt   time.Time `json:"created_at"`
}

// Execer is satisfied by *sql.DB and *sql.Tx.
type Execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

const insertEventQuery = `INSERT INTO tracking_task_events (process_name, task_label, count, created_at) VALUES ($1, $2, $3, $4)`

// PostgresTracker inserts events into tracking_task_events.
type PostgresTracker struct {
	db      Execer
	process string
	now     func() time.Time
}

func NewPostgresTracker(db Execer, processName string) *PostgresTracker {
	return &PostgresTracker{db: db, process: processName, now: time.Now}
}

func (t *PostgresTracker) TrackTask(ctx context.Context, label string) error {
	ev := newEvent(t.process, label, t.now())
	if _, err := t.db.ExecContext(ctx, insertEventQuery, ev.ProcessName, ev.TaskLabel, ev.Count, ev.CreatedAt); err != nil {
		return errors.NewTrackingFailedError(err)
	}
	return nil
}

// ElasticsearchTracker indexes events as documents.
type ElasticsearchTracker struct {
	es      *elasticsearch.Client
	index   string
	process string
	now     func() time.Time
}

func NewElasticsearchTracker(es *elasticsearch.Client, index, processName string) *ElasticsearchTracker {
	return &ElasticsearchTracker{es: es, index: index, process: processName, now: time.Now}
}

func (t *ElasticsearchTracker) TrackTask(ctx context.Context, label string) error {
	body, err := json.Marshal(newEvent(t.process, label, t.now()))
	if err != nil {
		return errors.NewTrackingFailedError(err)
	}

	res, err := t.es.Index(
		t.index,
		bytes.NewReader(body),
		t.es.Index.WithContext(ctx),
	)
	if err != nil {
		return errors.NewTrackingFailedError(err)
	}
	defer res.Body.Close()

	if res.IsError() {
		raw, _ := io.ReadAll(io.LimitReader(res.Body, 2048))
		return errors.NewTrackingFailedError(fmt.Errorf("index %s: %s: %s", t.index, res.Status(), raw))
	}
	return nil
}

// NoopTracker only logs.
type NoopTracker struct {
	log logger.Logger
}

func NewNoopTracker(log logger.Logger) *NoopTracker {
	return &NoopTracker{log: log}
}

func (t *NoopTracker) TrackTask(ctx context.Context, label string) error {
	t.log.Debug("Tracking disabled, task not recorded", map[string]interface{}{"task": label})
	return nil
}

func newEvent(process, label string, at time.Time) Event {
	return Event{
		ProcessName: process,
		TaskLabel:   label,
		Count:       1,
		CreatedAt:   at.UTC(),
	}
}
