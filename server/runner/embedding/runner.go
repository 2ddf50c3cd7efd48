// Package embedding runs the background sweep that backfills embeddings for
// audio samples that don't have one yet.
package embedding

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/crateai/cratedig/server/embedding"
	"github.com/crateai/cratedig/server/vectorstore"
	"github.com/crateai/cratedig/store"
)

type Runner struct {
	store      *store.Store
	embeddings *embedding.Service
	vectors    *vectorstore.Store
	interval   time.Duration
	batchSize  int
}

// NewRunner creates an embedding backfill runner. Small batches keep memory
// peaks down when the CLAP sidecar is active.
func NewRunner(st *store.Store, embeddings *embedding.Service, vectors *vectorstore.Store) *Runner {
	return &Runner{
		store:      st,
		embeddings: embeddings,
		vectors:    vectors,
		interval:   2 * time.Minute,
		batchSize:  8,
	}
}

// Run starts the background task.
func (r *Runner) Run(ctx context.Context) {
	// Process once on startup
	r.processPendingAudios(ctx)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.processPendingAudios(ctx)
		case <-ctx.Done():
			slog.Info("embedding runner stopped")
			return
		}
	}
}

// RunOnce processes pending audios once (for manual trigger).
func (r *Runner) RunOnce(ctx context.Context) {
	r.processPendingAudios(ctx)
}

func (r *Runner) processPendingAudios(ctx context.Context) {
	audios, err := r.store.FindAudiosWithoutEmbedding(ctx, &store.FindAudiosWithoutEmbedding{
		// Fetch more than one batch, but process in small batches.
		Limit: r.batchSize * 20,
	})
	if err != nil {
		slog.Error("failed to find audios without embedding", "error", err)
		return
	}

	if len(audios) == 0 {
		return
	}

	slog.Info("processing audios for embedding", "count", len(audios))

	processed := 0
	for i := 0; i < len(audios); i += r.batchSize {
		select {
		case <-ctx.Done():
			slog.Info("embedding processing cancelled", "processed", i, "total", len(audios))
			return
		default:
		}

		end := i + r.batchSize
		if end > len(audios) {
			end = len(audios)
		}
		batch := audios[i:end]

		processed += r.processBatch(ctx, batch)
		slog.Info("batch processed", "count", len(batch), "progress", fmt.Sprintf("%d/%d", end, len(audios)))
	}

	// New vectors only become queryable after a snapshot refresh.
	if processed > 0 {
		if err := r.vectors.Refresh(ctx, r.store); err != nil {
			slog.Error("failed to refresh vector store after backfill", "error", err)
		}
	}
}

// processBatch ensures embeddings for one batch. A failure on one audio does
// not affect the others.
func (r *Runner) processBatch(ctx context.Context, audios []*store.Audio) int {
	processed := 0
	for _, audio := range audios {
		if _, err := r.embeddings.EnsureEmbedding(ctx, audio, false); err != nil {
			slog.Error("failed to ensure embedding", "audio_id", audio.ID, "error", err)
			continue
		}
		processed++
	}
	return processed
}
