// Package match runs the background side of the match engine: the ingest
// queue for new items, periodic embedding backfill, and the occasional full
// rebuild.
package match

import (
	"context"
	"log/slog"
	"time"

	"github.com/refound-dev/refound/store"
)

// Ingestor is the engine surface the runner drives.
type Ingestor interface {
	Ingest(ctx context.Context, item *store.Item)
	PurgeReferences(ctx context.Context, itemUID string)
	Rebuild(ctx context.Context) (int, error)
}

// BackfillStore finds items whose embeddings were never computed.
type BackfillStore interface {
	FindItemsMissingEmbedding(ctx context.Context, limit int) ([]*store.Item, error)
}

// Runner processes match work off the request path.
type Runner struct {
	ingestor Ingestor
	store    BackfillStore
	queue    chan *store.Item

	backfillInterval time.Duration
	rebuildInterval  time.Duration
	batchSize        int
}

// NewRunner creates a match runner. The queue is bounded; overflow is safe
// because the backfill pass picks up anything dropped.
func NewRunner(ingestor Ingestor, backfillStore BackfillStore) *Runner {
	return &Runner{
		ingestor:         ingestor,
		store:            backfillStore,
		queue:            make(chan *store.Item, 128),
		backfillInterval: 2 * time.Minute,
		rebuildInterval:  24 * time.Hour,
		batchSize:        16,
	}
}

// EnqueueIngest schedules match computation for a new item without blocking
// the caller. A full queue drops the item; the backfill pass covers it.
func (r *Runner) EnqueueIngest(item *store.Item) {
	select {
	case r.queue <- item:
	default:
		slog.Warn("match ingest queue full, deferring to backfill", "item_uid", item.UID)
	}
}

// PurgeReferences removes all match entries pointing at the item. Runs
// synchronously so claims and deletes observe the purge.
func (r *Runner) PurgeReferences(ctx context.Context, itemUID string) {
	r.ingestor.PurgeReferences(ctx, itemUID)
}

// Run processes the ingest queue and periodic maintenance until ctx is done.
func (r *Runner) Run(ctx context.Context) {
	backfillTicker := time.NewTicker(r.backfillInterval)
	defer backfillTicker.Stop()
	rebuildTicker := time.NewTicker(r.rebuildInterval)
	defer rebuildTicker.Stop()

	for {
		select {
		case item := <-r.queue:
			r.ingestor.Ingest(ctx, item)
		case <-backfillTicker.C:
			r.backfill(ctx)
		case <-rebuildTicker.C:
			if _, err := r.ingestor.Rebuild(ctx); err != nil {
				slog.Error("scheduled match rebuild failed", "error", err)
			}
		case <-ctx.Done():
			slog.Info("match runner stopped")
			return
		}
	}
}

// RunOnce drains pending maintenance once (for manual trigger).
func (r *Runner) RunOnce(ctx context.Context) {
	r.backfill(ctx)
}

// backfill ingests items that have an image but never got an embedding,
// covering provider outages and queue overflow.
func (r *Runner) backfill(ctx context.Context) {
	items, err := r.store.FindItemsMissingEmbedding(ctx, r.batchSize)
	if err != nil {
		slog.Error("failed to find items missing embeddings", "error", err)
		return
	}
	if len(items) == 0 {
		return
	}

	slog.Info("backfilling item embeddings", "count", len(items))
	for _, item := range items {
		select {
		case <-ctx.Done():
			return
		default:
		}
		r.ingestor.Ingest(ctx, item)
	}
}
