package workqueue

import (
	"context"
	"errors"
	"fmt"
)

// HandlerFunc processes one claimed item.
type HandlerFunc func(ctx context.Context, item *Item) error

// Stats counts the outcome of a drain.
type Stats struct {
	Processed int
	Completed int
	Failed    int
}

// Drain claims items until the queue is empty. Every claimed item is
// finalized exactly once:
//   - fn returns nil: the item is completed unless fn already failed it;
//   - fn returns an error: the item is failed with the error text and
//     Drain returns the error;
//   - fn panics: the item is failed and the panic is re-raised.
func Drain(ctx context.Context, q Queue, fn HandlerFunc) (Stats, error) {
	var stats Stats

	for {
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		item, err := q.Next(ctx)
		if errors.Is(err, ErrEmpty) {
			return stats, nil
		}
		if err != nil {
			return stats, fmt.Errorf("claim next work item: %w", err)
		}

		stats.Processed++
		runErr := process(ctx, item, fn)
		if item.Status() == StatusFailed {
			stats.Failed++
		} else if item.Status() == StatusCompleted {
			stats.Completed++
		}
		if runErr != nil {
			return stats, runErr
		}
	}
}

func process(ctx context.Context, item *Item, fn HandlerFunc) (err error) {
	defer func() {
		if r := recover(); r != nil {
			_ = item.Fail(context.WithoutCancel(ctx), fmt.Sprintf("panic: %v", r))
			panic(r)
		}
	}()

	if err = fn(ctx, item); err != nil {
		if failErr := item.Fail(context.WithoutCancel(ctx), err.Error()); failErr != nil {
			return errors.Join(err, fmt.Errorf("fail work item %s: %w", item.ID, failErr))
		}
		return err
	}

	if err = item.Complete(ctx); err != nil {
		return fmt.Errorf("complete work item %s: %w", item.ID, err)
	}
	return nil
}
