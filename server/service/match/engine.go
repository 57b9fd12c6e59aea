// Package match computes and maintains match candidates between lost and
// found items. It is the only writer of the per-item match lists: every
// mutation flows through Ingest, PurgeReferences or Rebuild.
package match

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"strings"

	"github.com/refound-dev/refound/store"
)

// Threshold is the minimum cosine similarity persisted as a match.
// Scores exactly at the threshold qualify.
const Threshold = 0.75

// EmbeddingProvider produces an embedding vector for an image.
type EmbeddingProvider interface {
	Embed(ctx context.Context, imageURL string) ([]float32, error)
}

// ItemStore is the slice of the store the engine operates on.
// *store.Store satisfies it.
type ItemStore interface {
	ListItems(ctx context.Context, find *store.FindItem) ([]*store.Item, error)
	FindOppositeOpenItems(ctx context.Context, item *store.Item) ([]*store.Item, error)
	UpdateItemEmbedding(ctx context.Context, uid string, embedding []float32) error
	AddMatchCandidate(ctx context.Context, itemUID string, candidate *store.MatchCandidate) error
	PullMatchReference(ctx context.Context, candidateUID string) error
}

// Engine scores newly posted items against opposite-kind open items in the
// same organization scope and records qualifying matches on both sides.
type Engine struct {
	store    ItemStore
	provider EmbeddingProvider

	// imageBaseURL prefixes relative image paths so the external embedding
	// service can fetch them.
	imageBaseURL string
}

// NewEngine creates a match engine.
func NewEngine(itemStore ItemStore, provider EmbeddingProvider, imageBaseURL string) *Engine {
	return &Engine{
		store:        itemStore,
		provider:     provider,
		imageBaseURL: strings.TrimRight(imageBaseURL, "/"),
	}
}

// Ingest matches a newly created item against its candidates. It never
// returns an error: matching failures degrade to "no matches found" and must
// not surface to the item-creation response. Failures on one candidate do not
// stop processing of the rest.
func (e *Engine) Ingest(ctx context.Context, item *store.Item) {
	if !item.HasImage() {
		// No image means the item never participates in matching.
		return
	}

	if err := e.ensureEmbedding(ctx, item); err != nil {
		slog.Warn("match ingest skipped: embedding unavailable",
			"item_uid", item.UID, "error", err)
		return
	}

	candidates, err := e.store.FindOppositeOpenItems(ctx, item)
	if err != nil {
		slog.Error("match ingest failed to list candidates",
			"item_uid", item.UID, "error", err)
		return
	}

	matched := 0
	for _, candidate := range candidates {
		recorded, err := e.processCandidate(ctx, item, candidate)
		if err != nil {
			slog.Warn("match candidate processing failed",
				"item_uid", item.UID, "candidate_uid", candidate.UID, "error", err)
			continue
		}
		if recorded {
			matched++
		}
	}

	slog.Info("match ingest finished",
		"item_uid", item.UID, "candidates", len(candidates), "matched", matched)
}

// PurgeReferences removes every match entry pointing at itemUID, store-wide.
// It is idempotent; a second call finds nothing to remove. Called after an
// item is deleted or claimed.
func (e *Engine) PurgeReferences(ctx context.Context, itemUID string) {
	if err := e.store.PullMatchReference(ctx, itemUID); err != nil {
		slog.Error("failed to purge match references",
			"item_uid", itemUID, "error", err)
	}
}

// processCandidate runs the per-candidate pipeline: lazy embedding backfill,
// scoring with lost/found assignment, threshold gate, symmetric write.
func (e *Engine) processCandidate(ctx context.Context, item, candidate *store.Item) (bool, error) {
	if !candidate.HasEmbedding() {
		if !candidate.HasImage() {
			return false, nil
		}
		// Lazy backfill keeps older posts without embeddings matchable.
		if err := e.ensureEmbedding(ctx, candidate); err != nil {
			return false, err
		}
	}

	score := e.scorePair(item, candidate)
	if math.IsNaN(score) || score < Threshold {
		return false, nil
	}

	return true, e.recordMatch(ctx, item, candidate, score)
}

// ensureEmbedding populates the item's embedding, computing and persisting it
// when missing. Once present an embedding is never recomputed.
func (e *Engine) ensureEmbedding(ctx context.Context, item *store.Item) error {
	if item.HasEmbedding() {
		return nil
	}
	if e.provider == nil {
		return errors.New("embedding provider not configured")
	}

	vector, err := e.provider.Embed(ctx, e.imageURL(item))
	if err != nil {
		return err
	}
	if err := e.store.UpdateItemEmbedding(ctx, item.UID, vector); err != nil {
		return err
	}
	item.Embedding = vector
	return nil
}

// scorePair compares the lost item's embedding against the found item's,
// assigned by each item's own kind regardless of which one is being ingested.
func (e *Engine) scorePair(a, b *store.Item) float64 {
	lost, found := a, b
	if a.Kind == store.ItemKindFound {
		lost, found = b, a
	}
	return CosineSimilarity(lost.Embedding, found.Embedding)
}

// recordMatch writes the match on both items as two independent atomic point
// updates. The pair of writes is deliberately not transactional: a crash in
// between leaves a one-sided match that Rebuild repairs later.
func (e *Engine) recordMatch(ctx context.Context, a, b *store.Item, score float64) error {
	var errs []error
	if err := e.store.AddMatchCandidate(ctx, a.UID, &store.MatchCandidate{CandidateUID: b.UID, Score: score}); err != nil {
		errs = append(errs, err)
	}
	if err := e.store.AddMatchCandidate(ctx, b.UID, &store.MatchCandidate{CandidateUID: a.UID, Score: score}); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (e *Engine) imageURL(item *store.Item) string {
	if item.ImagePath == nil {
		return ""
	}
	path := *item.ImagePath
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	return e.imageBaseURL + "/uploads/" + strings.TrimLeft(path, "/")
}
