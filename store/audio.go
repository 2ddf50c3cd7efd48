package store

import "context"

// Audio represents an uploaded audio sample. Records are owned by the upload
// pipeline; the recommendation core treats them as read-only apart from test
// and tooling seeding.
type Audio struct {
	ID          int32
	UserID      int32
	Filename    string
	FilePath    string
	Fingerprint *string
	UploadedTs  int64

	// Analysis is the optional symbolic feature descriptor produced by the
	// analysis pipeline. Nil when the sample has not been analyzed yet.
	Analysis *AudioAnalysis
}

// AudioAnalysis represents the symbolic feature descriptor of an audio sample.
type AudioAnalysis struct {
	AudioID int32
	Tempo   *float64 // BPM
	Key     *string  // e.g., "C major"
	Mode    *string  // "major" or "minor"
	Genres  []string
	Moods   []string
}

// FindAudio is the find condition for audio records.
type FindAudio struct {
	ID                  *int32
	UserID              *int32
	Limit               *int
	OrderByUploadedDesc bool
}

// UpsertAudioAnalysis specifies the data for upserting an audio analysis.
type UpsertAudioAnalysis struct {
	AudioID int32
	Tempo   *float64
	Key     *string
	Mode    *string
	Genres  []string
	Moods   []string
}

// AudioVector is the denormalized projection of an audio record joined with
// its analysis and embedding, consumed by the in-memory vector store.
type AudioVector struct {
	AudioID    int32
	UserID     int32
	Filename   string
	Tempo      *float64
	Key        *string
	Genres     []string
	Moods      []string
	Embedding  []float32 // nil when no embedding exists
	UploadedTs int64
}

// FindAudioVector is the find condition for the vector-store scan.
type FindAudioVector struct {
	UserID *int32
}

// FindAudiosWithoutEmbedding is the find condition for audios missing an
// embedding. An empty Model matches audios with no embedding at all.
type FindAudiosWithoutEmbedding struct {
	Model string
	Limit int
}

// CreateAudio creates an audio record.
func (s *Store) CreateAudio(ctx context.Context, create *Audio) (*Audio, error) {
	return s.driver.CreateAudio(ctx, create)
}

// ListAudios lists audio records joined with their analysis.
func (s *Store) ListAudios(ctx context.Context, find *FindAudio) ([]*Audio, error) {
	return s.driver.ListAudios(ctx, find)
}

// GetAudio gets a single audio record by id, consulting the store cache first.
func (s *Store) GetAudio(ctx context.Context, id int32) (*Audio, error) {
	if cached, ok := s.audioCache.Get(audioCacheKey(id)); ok {
		return cached.(*Audio), nil
	}

	list, err := s.driver.ListAudios(ctx, &FindAudio{ID: &id})
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, nil
	}

	audio := list[0]
	s.audioCache.Set(audioCacheKey(id), audio)
	return audio, nil
}

// UpsertAudioAnalysis inserts or updates the analysis of an audio record.
func (s *Store) UpsertAudioAnalysis(ctx context.Context, upsert *UpsertAudioAnalysis) (*AudioAnalysis, error) {
	s.audioCache.Delete(audioCacheKey(upsert.AudioID))
	return s.driver.UpsertAudioAnalysis(ctx, upsert)
}

// ListAudioVectors performs the full scan of audio records joined with
// analysis and embedding that feeds the vector store.
func (s *Store) ListAudioVectors(ctx context.Context, find *FindAudioVector) ([]*AudioVector, error) {
	return s.driver.ListAudioVectors(ctx, find)
}

// FindAudiosWithoutEmbedding finds audios that don't have embeddings for the
// specified model.
func (s *Store) FindAudiosWithoutEmbedding(ctx context.Context, find *FindAudiosWithoutEmbedding) ([]*Audio, error) {
	return s.driver.FindAudiosWithoutEmbedding(ctx, find)
}
