package worker

import (
	"context"
	"fmt"
	"sync"

	"wacrm/internal/observability"
	"wacrm/internal/store"
)

const DefaultBatchSize = 20

type RunStore interface {
	CountUnfinishedActions(ctx context.Context) (int, error)
	ListUnfinishedActionIDs(ctx context.Context) ([]string, error)
	GetActionsByIDs(ctx context.Context, ids []string) ([]store.PendingAction, error)
}

// Progress is notified after each completed batch.
type Progress func(batch, total int)

// Runner drains every currently-unfinished action in one run. It snapshots
// the unfinished ids up front and pages over the snapshot, so actions
// changing status mid-run cannot shift later pages or be fetched twice.
// Batches run strictly in order; the actions inside a batch run concurrently.
type Runner struct {
	Store     RunStore
	Processor *Processor
	BatchSize int
}

func (r *Runner) Run(ctx context.Context, progress Progress) error {
	batchSize := r.BatchSize
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	count, err := r.Store.CountUnfinishedActions(ctx)
	if err != nil {
		return fmt.Errorf("count unfinished actions: %w", err)
	}
	observability.PendingActions.Set(float64(count))
	if count == 0 {
		return nil
	}

	ids, err := r.Store.ListUnfinishedActionIDs(ctx)
	if err != nil {
		return fmt.Errorf("snapshot unfinished actions: %w", err)
	}

	batches := (len(ids) + batchSize - 1) / batchSize
	for i := 0; i < batches; i++ {
		end := (i + 1) * batchSize
		if end > len(ids) {
			end = len(ids)
		}

		page, err := r.Store.GetActionsByIDs(ctx, ids[i*batchSize:end])
		if err != nil {
			return fmt.Errorf("fetch batch %d/%d: %w", i+1, batches, err)
		}

		var (
			wg       sync.WaitGroup
			mu       sync.Mutex
			firstErr error
		)
		for _, act := range page {
			wg.Add(1)
			go func(act store.PendingAction) {
				defer wg.Done()
				if _, err := r.Processor.Process(ctx, act); err != nil {
					mu.Lock()
					if firstErr == nil {
						firstErr = err
					}
					mu.Unlock()
				}
			}(act)
		}
		wg.Wait()

		// Process only errors on store write failures; those abort the run
		// once the in-flight batch has drained.
		if firstErr != nil {
			return firstErr
		}

		observability.Batches.Inc()
		if progress != nil {
			progress(i+1, batches)
		}
	}
	return nil
}
