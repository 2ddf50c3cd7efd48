package store

import "context"

// AudioEmbedding represents the vector embedding of an audio sample.
// The vector is unit-norm, or the zero vector for pathological inputs;
// consumers treat a zero vector as "no embedding".
type AudioEmbedding struct {
	ID        int32
	AudioID   int32
	UserID    int32
	Model     string    // Model identifier, e.g., "laion/clap-htsat-fused"
	Source    string    // "clap" or the configured fallback tag
	Embedding []float32
	CreatedTs int64
	UpdatedTs int64
}

// FindAudioEmbedding is the find condition for audio embeddings.
type FindAudioEmbedding struct {
	AudioID *int32
	UserID  *int32
}

// UpsertAudioEmbedding inserts or updates an audio embedding keyed by audio id.
func (s *Store) UpsertAudioEmbedding(ctx context.Context, embedding *AudioEmbedding) (*AudioEmbedding, error) {
	return s.driver.UpsertAudioEmbedding(ctx, embedding)
}

// GetAudioEmbedding gets the embedding of a specific audio sample.
func (s *Store) GetAudioEmbedding(ctx context.Context, audioID int32) (*AudioEmbedding, error) {
	list, err := s.driver.ListAudioEmbeddings(ctx, &FindAudioEmbedding{
		AudioID: &audioID,
	})
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, nil
	}
	return list[0], nil
}

// ListAudioEmbeddings lists audio embeddings.
func (s *Store) ListAudioEmbeddings(ctx context.Context, find *FindAudioEmbedding) ([]*AudioEmbedding, error) {
	return s.driver.ListAudioEmbeddings(ctx, find)
}

// DeleteAudioEmbedding deletes an audio embedding.
func (s *Store) DeleteAudioEmbedding(ctx context.Context, audioID int32) error {
	return s.driver.DeleteAudioEmbedding(ctx, audioID)
}
