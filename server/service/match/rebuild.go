package match

import (
	"context"
	"log/slog"
	"math"

	"github.com/refound-dev/refound/store"
)

// Rebuild recomputes match candidates across all open items. It repairs
// one-sided matches left by interrupted ingests and picks up items whose
// embeddings only became available later. Existing entries are preserved by
// the add-if-absent semantics of the store; Rebuild only ever adds.
//
// Returns the number of qualifying pairs examined (including already
// recorded ones).
func (e *Engine) Rebuild(ctx context.Context) (int, error) {
	status := store.ItemStatusOpen
	items, err := e.store.ListItems(ctx, &store.FindItem{Status: &status})
	if err != nil {
		return 0, err
	}

	eligible := make([]*store.Item, 0, len(items))
	for _, item := range items {
		if !item.HasImage() {
			continue
		}
		if err := e.ensureEmbedding(ctx, item); err != nil {
			slog.Warn("rebuild skipping item: embedding unavailable",
				"item_uid", item.UID, "error", err)
			continue
		}
		eligible = append(eligible, item)
	}

	matched := 0
	for i, a := range eligible {
		for _, b := range eligible[i+1:] {
			if a.Kind == b.Kind {
				continue
			}
			if a.OrganizationType != b.OrganizationType || a.ScopeID() != b.ScopeID() {
				continue
			}

			score := e.scorePair(a, b)
			if math.IsNaN(score) || score < Threshold {
				continue
			}
			if err := e.recordMatch(ctx, a, b, score); err != nil {
				slog.Warn("rebuild failed to record match",
					"item_uid", a.UID, "candidate_uid", b.UID, "error", err)
				continue
			}
			matched++
		}
	}

	slog.Info("match rebuild finished", "items", len(eligible), "matched", matched)
	return matched, nil
}
