package scheduler

import (
	"context"
	"fmt"

	"finsight/internal/domain/finsync"
	"finsight/internal/domain/item"
)

// ItemSyncer is the part of the sync engine scheduled jobs need.
type ItemSyncer interface {
	Items(ctx context.Context) ([]*item.Item, error)
	ResyncItem(ctx context.Context, it *item.Item) (finsync.Counts, error)
}

// ResyncJob refreshes one linked Item over the default window.
type ResyncJob struct {
	item   *item.Item
	syncer ItemSyncer
}

func NewResyncJob(it *item.Item, syncer ItemSyncer) *ResyncJob {
	return &ResyncJob{item: it, syncer: syncer}
}

func (j *ResyncJob) Execute(ctx context.Context) error {
	if _, err := j.syncer.ResyncItem(ctx, j.item); err != nil {
		return fmt.Errorf("resync failed: %w", err)
	}
	return nil
}

func (j *ResyncJob) UserID() string {
	return j.item.UserID
}

func (j *ResyncJob) Description() string {
	return fmt.Sprintf("Scheduled resync of item %s", j.item.ItemID)
}

// ResyncJobProvider returns a job provider that resyncs every linked Item.
func ResyncJobProvider(syncer ItemSyncer) func(context.Context) ([]Job, error) {
	return func(ctx context.Context) ([]Job, error) {
		items, err := syncer.Items(ctx)
		if err != nil {
			return nil, err
		}

		jobs := make([]Job, 0, len(items))
		for _, it := range items {
			jobs = append(jobs, NewResyncJob(it, syncer))
		}
		return jobs, nil
	}
}
