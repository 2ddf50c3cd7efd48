package vectorstore

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crateai/cratedig/server/session"
	"github.com/crateai/cratedig/store"
	storetest "github.com/crateai/cratedig/store/test"
)

func floatPtr(f float64) *float64 { return &f }
func strPtr(s string) *string     { return &s }

func newStoreWithEntries(entries ...*Entry) *Store {
	s := New()
	s.entries = entries
	return s
}

func TestQueryEmptySnapshot(t *testing.T) {
	s := New()
	matches := s.Query(&session.Context{}, 10)
	assert.Empty(t, matches)
}

func TestQueryTempoHint(t *testing.T) {
	s := newStoreWithEntries(
		&Entry{AudioID: 1, Tempo: floatPtr(128)},
		&Entry{AudioID: 2, Tempo: floatPtr(90)},
	)

	matches := s.Query(&session.Context{BPM: floatPtr(128)}, 10)
	require.Len(t, matches, 2)

	assert.Equal(t, int32(1), matches[0].AudioID)
	assert.InDelta(t, 0.2, matches[0].Components["tempo_hint"], 1e-9)

	wantFar := 0.2 * math.Exp(-38.0/12.0)
	assert.InDelta(t, wantFar, matches[1].Components["tempo_hint"], 1e-9)
}

func TestQueryKeyAndGenreAndMood(t *testing.T) {
	s := newStoreWithEntries(&Entry{
		AudioID: 1,
		Key:     strPtr("C major"),
		Genres:  []string{"Electronic", "House"},
		Moods:   []string{"uplifting", "bright", "happy", "euphoric"},
	})

	ctx := &session.Context{
		Key:      strPtr("C major"),
		Genre:    strPtr("House"),
		MoodTags: []string{"uplifting", "bright", "happy", "euphoric"},
	}
	matches := s.Query(ctx, 10)
	require.Len(t, matches, 1)

	m := matches[0]
	assert.InDelta(t, 0.15, m.Components["key_match"], 1e-9)
	assert.InDelta(t, 0.10, m.Components["genre_match"], 1e-9)
	// Mood overlap of 4 is capped at 0.15.
	assert.InDelta(t, 0.15, m.Components["mood_overlap"], 1e-9)
	assert.InDelta(t, 0.15+0.10+0.15, m.BaseScore, 1e-9)
}

func TestQueryKeyMismatchAddsNothing(t *testing.T) {
	s := newStoreWithEntries(&Entry{AudioID: 1, Key: strPtr("D minor")})

	matches := s.Query(&session.Context{Key: strPtr("C major")}, 10)
	require.Len(t, matches, 1)
	assert.NotContains(t, matches[0].Components, "key_match")
	assert.Zero(t, matches[0].BaseScore)
}

func TestQueryEmbeddingSimilarity(t *testing.T) {
	s := newStoreWithEntries(
		&Entry{AudioID: 1, Embedding: []float32{1, 0, 0}},
		&Entry{AudioID: 2, Embedding: []float32{-1, 0, 0}},
		&Entry{AudioID: 3, Embedding: []float32{0, 0, 0}},
	)

	matches := s.Query(&session.Context{TargetEmbedding: []float32{1, 0, 0}}, 10)
	require.Len(t, matches, 3)

	assert.Equal(t, int32(1), matches[0].AudioID)
	assert.InDelta(t, 1.0, matches[0].Components["embedding"], 1e-6)

	// Negative similarity is never recorded.
	for _, m := range matches[1:] {
		assert.NotContains(t, m.Components, "embedding")
		assert.Zero(t, m.BaseScore)
	}
}

func TestQueryZeroVectorTreatedAsNoEmbedding(t *testing.T) {
	s := newStoreWithEntries(&Entry{AudioID: 1, Embedding: []float32{0, 0, 0}})

	matches := s.Query(&session.Context{TargetEmbedding: []float32{1, 0, 0}}, 10)
	require.Len(t, matches, 1)
	assert.Empty(t, matches[0].Components)
}

func TestQueryTopKBound(t *testing.T) {
	s := newStoreWithEntries(
		&Entry{AudioID: 1, Tempo: floatPtr(120)},
		&Entry{AudioID: 2, Tempo: floatPtr(121)},
		&Entry{AudioID: 3, Tempo: floatPtr(122)},
	)

	matches := s.Query(&session.Context{BPM: floatPtr(120)}, 2)
	assert.Len(t, matches, 2)
}

func TestQueryTiesKeepSnapshotOrder(t *testing.T) {
	s := newStoreWithEntries(
		&Entry{AudioID: 7, Tempo: floatPtr(100)},
		&Entry{AudioID: 3, Tempo: floatPtr(100)},
		&Entry{AudioID: 9, Tempo: floatPtr(100)},
	)

	matches := s.Query(&session.Context{BPM: floatPtr(100)}, 10)
	require.Len(t, matches, 3)
	assert.Equal(t, int32(7), matches[0].AudioID)
	assert.Equal(t, int32(3), matches[1].AudioID)
	assert.Equal(t, int32(9), matches[2].AudioID)
}

func TestCosineSimilarity(t *testing.T) {
	assert.InDelta(t, 1.0, CosineSimilarity([]float32{1, 2, 3}, []float32{1, 2, 3}), 1e-6)
	assert.InDelta(t, -1.0, CosineSimilarity([]float32{1, 0}, []float32{-1, 0}), 1e-6)
	assert.Zero(t, CosineSimilarity([]float32{1, 2}, nil))
	assert.Zero(t, CosineSimilarity([]float32{0, 0}, []float32{1, 1}))

	// Dimension mismatch uses the shared prefix.
	assert.InDelta(t, 1.0, CosineSimilarity([]float32{1, 0}, []float32{1, 0, 5, 5}), 1e-6)
}

func TestRefreshBuildsSnapshotFromStore(t *testing.T) {
	ctx := context.Background()
	st := storetest.NewTestingStore(ctx, t)

	embedded, err := st.CreateAudio(ctx, &store.Audio{
		UserID:     1,
		Filename:   "pad.wav",
		FilePath:   "/samples/pad.wav",
		UploadedTs: time.Now().Unix(),
	})
	require.NoError(t, err)
	_, err = st.UpsertAudioAnalysis(ctx, &store.UpsertAudioAnalysis{
		AudioID: embedded.ID,
		Tempo:   floatPtr(124),
		Key:     strPtr("F minor"),
		Genres:  []string{"Ambient"},
	})
	require.NoError(t, err)
	_, err = st.UpsertAudioEmbedding(ctx, &store.AudioEmbedding{
		AudioID:   embedded.ID,
		UserID:    1,
		Model:     "fingerprint-sha256",
		Source:    "fingerprint",
		Embedding: []float32{0.6, 0.8},
	})
	require.NoError(t, err)

	// No embedding; must be rejected from the snapshot.
	_, err = st.CreateAudio(ctx, &store.Audio{
		UserID:     1,
		Filename:   "raw.wav",
		FilePath:   "/samples/raw.wav",
		UploadedTs: time.Now().Unix(),
	})
	require.NoError(t, err)

	s := New()
	require.NoError(t, s.Refresh(ctx, st))
	require.Equal(t, 1, s.Size())

	matches := s.Query(&session.Context{BPM: floatPtr(124)}, 10)
	require.Len(t, matches, 1)
	entry := matches[0].Entry
	assert.Equal(t, embedded.ID, entry.AudioID)
	assert.Equal(t, "pad.wav", entry.Filename)
	require.NotNil(t, entry.Key)
	assert.Equal(t, "F minor", *entry.Key)
	assert.Equal(t, []string{"Ambient"}, entry.Genres)
	assert.Equal(t, []float32{0.6, 0.8}, entry.Embedding)
}
