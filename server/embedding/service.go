// Package embedding guarantees that every audio sample has a persisted,
// unit-norm vector before it participates in vector-store queries.
package embedding

import (
	"context"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"math"

	"github.com/crateai/cratedig/internal/profile"
	"github.com/crateai/cratedig/store"
)

// SourceCLAP marks embeddings produced by the CLAP provider. Fallback
// embeddings carry the configured fallback tag instead.
const SourceCLAP = "clap"

// fingerprintModel identifies the deterministic hash-derived vectors.
const fingerprintModel = "fingerprint-sha256"

// Service generates and persists audio embeddings.
type Service struct {
	store   *store.Store
	profile *profile.Profile
	clap    ClapProvider
}

// NewService creates an embedding service. clap may be nil.
func NewService(st *store.Store, profile *profile.Profile, clap ClapProvider) *Service {
	return &Service{
		store:   st,
		profile: profile,
		clap:    clap,
	}
}

// EnsureEmbedding returns the persisted embedding for an audio sample,
// generating and persisting one if none exists. With force, a new vector is
// generated even when a record exists. Returns nil only when generation
// yields nothing and no prior embedding exists.
func (s *Service) EnsureEmbedding(ctx context.Context, audio *store.Audio, force bool) (*store.AudioEmbedding, error) {
	if !force {
		existing, err := s.store.GetAudioEmbedding(ctx, audio.ID)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			return existing, nil
		}
	}

	vector, model, source := s.generateEmbedding(ctx, audio)
	if len(vector) == 0 {
		slog.Warn("no embedding could be generated", "audio_id", audio.ID, "filename", audio.Filename)
		return s.store.GetAudioEmbedding(ctx, audio.ID)
	}

	return s.store.UpsertAudioEmbedding(ctx, &store.AudioEmbedding{
		AudioID:   audio.ID,
		UserID:    audio.UserID,
		Model:     model,
		Source:    source,
		Embedding: vector,
	})
}

// generateEmbedding attempts CLAP first when enabled, then falls back to the
// deterministic fingerprint embedding. CLAP failures are logged and
// suppressed; they never propagate.
func (s *Service) generateEmbedding(ctx context.Context, audio *store.Audio) (vector []float32, model, source string) {
	if s.profile.IsCLAPEnabled() && s.clap != nil && s.clap.Available() {
		clapVector, err := s.clap.Embed(ctx, audio.FilePath)
		if err != nil {
			slog.Warn("clap embedding failed, falling back",
				"audio_id", audio.ID, "file_path", audio.FilePath, "error", err)
		} else if len(clapVector) > 0 {
			return normalize(clapVector), s.profile.CLAPModel, SourceCLAP
		}
	}

	return s.fingerprintEmbedding(audio), fingerprintModel, s.profile.EmbeddingFallback
}

// fingerprintEmbedding derives a deterministic unit-norm vector from the
// audio fingerprint, or from stable identity fields when no fingerprint
// exists. Stable across processes for the same seed.
func (s *Service) fingerprintEmbedding(audio *store.Audio) []float32 {
	dim := s.profile.EmbeddingDim
	if dim < profile.MinEmbeddingDim {
		dim = profile.MinEmbeddingDim
	}

	seed := ""
	if audio.Fingerprint != nil && *audio.Fingerprint != "" {
		seed = *audio.Fingerprint
	} else {
		seed = fmt.Sprintf("%d:%s:%d", audio.UserID, audio.Filename, audio.ID)
	}

	vector := make([]float32, 0, dim)
	digest := sha256.Sum256([]byte(seed))
	for len(vector) < dim {
		for _, b := range digest {
			vector = append(vector, float32(b)/255*2-1)
			if len(vector) == dim {
				break
			}
		}
		digest = sha256.Sum256(digest[:])
	}

	return normalize(vector)
}

// normalize divides the vector by its L2 norm. A zero-norm input is
// returned unchanged; consumers treat the zero vector as "no embedding".
func normalize(vector []float32) []float32 {
	var sum float64
	for _, v := range vector {
		sum += float64(v) * float64(v)
	}
	if sum == 0 {
		return vector
	}

	norm := math.Sqrt(sum)
	normalized := make([]float32, len(vector))
	for i, v := range vector {
		normalized[i] = float32(float64(v) / norm)
	}
	return normalized
}
