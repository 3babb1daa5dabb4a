package workqueue

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"time"

	"primary-organization/internal/common/errors"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RedisQueue keeps items in three keys under workqueue:<name>:
//
//	:items  hash id -> record JSON
//	:refs   hash reference -> id (dedupe)
//	:new    list of pending ids
type RedisQueue struct {
	client redis.Cmdable
	prefix string
	now    func() time.Time
}

type redisRecord struct {
	ID        string          `json:"id"`
	Reference string          `json:"reference"`
	Data      json.RawMessage `json:"data"`
	Status    Status          `json:"status"`
	Message   string          `json:"message,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// NewRedisQueue creates a queue named name on client.
func NewRedisQueue(client redis.Cmdable, name string) *RedisQueue {
	return &RedisQueue{
		client: client,
		prefix: "workqueue:" + name,
		now:    time.Now,
	}
}

func (q *RedisQueue) itemsKey() string { return q.prefix + ":items" }
func (q *RedisQueue) refsKey() string  { return q.prefix + ":refs" }
func (q *RedisQueue) newKey() string   { return q.prefix + ":new" }

func (q *RedisQueue) Add(ctx context.Context, data interface{}, reference string) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return errors.NewWorkItemError("Invalid work item data", err.Error())
	}

	id := uuid.NewString()
	claimed, err := q.client.HSetNX(ctx, q.refsKey(), reference, id).Result()
	if err != nil {
		return errors.NewQueueConnectionError("redis", err)
	}
	if !claimed {
		return errors.NewDuplicateWorkItemError(reference)
	}

	now := q.now().UTC()
	rec, err := json.Marshal(redisRecord{
		ID:        id,
		Reference: reference,
		Data:      raw,
		Status:    StatusNew,
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		return errors.NewWorkItemError("Invalid work item data", err.Error())
	}

	_, err = q.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, q.itemsKey(), id, rec)
		pipe.RPush(ctx, q.newKey(), id)
		return nil
	})
	if err != nil {
		// Release the claimed reference so the item can be queued again.
		if delErr := q.client.HDel(ctx, q.refsKey(), reference).Err(); delErr != nil {
			err = stderrors.Join(err, fmt.Errorf("release reference %s: %w", reference, delErr))
		}
		return errors.NewQueueConnectionError("redis", err)
	}
	return nil
}

func (q *RedisQueue) Clear(ctx context.Context, status Status) error {
	all, err := q.client.HGetAll(ctx, q.itemsKey()).Result()
	if err != nil {
		return errors.NewQueueConnectionError("redis", err)
	}

	var ids, refs []string
	for id, raw := range all {
		var rec redisRecord
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			continue
		}
		if rec.Status == status {
			ids = append(ids, id)
			refs = append(refs, rec.Reference)
		}
	}

	_, err = q.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		if len(ids) > 0 {
			pipe.HDel(ctx, q.itemsKey(), ids...)
			pipe.HDel(ctx, q.refsKey(), refs...)
		}
		if status == StatusNew {
			pipe.Del(ctx, q.newKey())
		}
		return nil
	})
	if err != nil {
		return errors.NewQueueConnectionError("redis", err)
	}
	return nil
}

func (q *RedisQueue) Next(ctx context.Context) (*Item, error) {
	for {
		id, err := q.client.LPop(ctx, q.newKey()).Result()
		if stderrors.Is(err, redis.Nil) {
			return nil, ErrEmpty
		}
		if err != nil {
			return nil, errors.NewQueueConnectionError("redis", err)
		}

		rec, err := q.load(ctx, id)
		if stderrors.Is(err, redis.Nil) {
			// Cleared after it was pushed.
			continue
		}
		if err != nil {
			return nil, err
		}

		rec.Status = StatusInProgress
		if err := q.save(ctx, rec); err != nil {
			return nil, err
		}
		return NewItem(q, rec.ID, rec.Reference, rec.Data), nil
	}
}

func (q *RedisQueue) Complete(ctx context.Context, item *Item) error {
	return q.setStatus(ctx, item.ID, StatusCompleted, "")
}

func (q *RedisQueue) Fail(ctx context.Context, item *Item, message string) error {
	return q.setStatus(ctx, item.ID, StatusFailed, message)
}

// Get returns the stored status and message of an item.
func (q *RedisQueue) Get(ctx context.Context, id string) (Status, string, error) {
	rec, err := q.load(ctx, id)
	if err != nil {
		return "", "", err
	}
	return rec.Status, rec.Message, nil
}

func (q *RedisQueue) setStatus(ctx context.Context, id string, status Status, message string) error {
	rec, err := q.load(ctx, id)
	if stderrors.Is(err, redis.Nil) {
		return errors.NewWorkItemError("Work item not found", id)
	}
	if err != nil {
		return err
	}
	rec.Status = status
	rec.Message = message
	return q.save(ctx, rec)
}

func (q *RedisQueue) load(ctx context.Context, id string) (*redisRecord, error) {
	raw, err := q.client.HGet(ctx, q.itemsKey(), id).Result()
	if stderrors.Is(err, redis.Nil) {
		return nil, err
	}
	if err != nil {
		return nil, errors.NewQueueConnectionError("redis", err)
	}
	var rec redisRecord
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return nil, fmt.Errorf("decode work item %s: %w", id, err)
	}
	return &rec, nil
}

func (q *RedisQueue) save(ctx context.Context, rec *redisRecord) error {
	rec.UpdatedAt = q.now().UTC()
	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode work item %s: %w", rec.ID, err)
	}
	if err := q.client.HSet(ctx, q.itemsKey(), rec.ID, raw).Err(); err != nil {
		return errors.NewQueueConnectionError("redis", err)
	}
	return nil
}
