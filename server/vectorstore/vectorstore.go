// Package vectorstore maintains an in-memory snapshot of audio descriptors
// and embeddings and serves ranked candidate lists for a session context.
package vectorstore

import (
	"context"
	"log/slog"
	"math"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/crateai/cratedig/server/session"
	"github.com/crateai/cratedig/store"
)

// Score weights for the symbolic components. Embedding similarity is added
// unweighted when positive.
const (
	tempoHintWeight   = 0.2
	tempoHintDecayBPM = 12.0
	keyMatchWeight    = 0.15
	genreMatchWeight  = 0.10
	moodOverlapStep   = 0.05
	moodOverlapCap    = 0.15
)

// Entry is the denormalized projection of one audio sample held in a
// snapshot. Entries are immutable once published.
type Entry struct {
	AudioID    int32
	UserID     int32
	Filename   string
	Tempo      *float64
	Key        *string
	Genres     []string
	Moods      []string
	Embedding  []float32
	UploadedAt time.Time
}

// Match is a scored candidate returned by Query.
type Match struct {
	AudioID    int32
	Entry      *Entry
	BaseScore  float64
	Components map[string]float64
}

// Store is the in-memory vector store. The snapshot is a fresh slice swapped
// in atomically on refresh completion, so readers never observe a partially
// built entry.
type Store struct {
	mu      sync.RWMutex
	entries []*Entry

	group singleflight.Group
}

var (
	globalStore *Store
	globalOnce  sync.Once
)

// Get returns the process-global vector store.
func Get() *Store {
	globalOnce.Do(func() {
		globalStore = New()
	})
	return globalStore
}

// New creates an empty vector store.
func New() *Store {
	return &Store{}
}

// Refresh rebuilds the snapshot from a full scan of audio records joined
// with analysis and embedding. Concurrent refreshes are collapsed into one
// scan. An abandoned scan leaves the previous snapshot intact.
func (s *Store) Refresh(ctx context.Context, st *store.Store) error {
	_, err, _ := s.group.Do("refresh", func() (any, error) {
		vectors, err := st.ListAudioVectors(ctx, &store.FindAudioVector{})
		if err != nil {
			return nil, err
		}

		entries := make([]*Entry, 0, len(vectors))
		for _, v := range vectors {
			// Rows without an embedding are rejected; the zero vector is
			// kept and treated as "no embedding" at scoring time.
			if len(v.Embedding) == 0 {
				continue
			}
			entries = append(entries, &Entry{
				AudioID:    v.AudioID,
				UserID:     v.UserID,
				Filename:   v.Filename,
				Tempo:      v.Tempo,
				Key:        v.Key,
				Genres:     v.Genres,
				Moods:      v.Moods,
				Embedding:  v.Embedding,
				UploadedAt: time.Unix(v.UploadedTs, 0),
			})
		}

		s.mu.Lock()
		s.entries = entries
		s.mu.Unlock()

		slog.Debug("vector store refreshed", "entries", len(entries))
		return nil, nil
	})
	return err
}

// Size returns the number of entries in the current snapshot.
func (s *Store) Size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Query scores every entry in the snapshot against the session context and
// returns the topK candidates ordered by base score descending. Ties keep
// snapshot iteration order. An empty snapshot yields an empty list.
func (s *Store) Query(sessionCtx *session.Context, topK int) []*Match {
	if sessionCtx == nil {
		sessionCtx = &session.Context{}
	}
	if topK <= 0 {
		topK = 10
	}

	s.mu.RLock()
	entries := s.entries
	s.mu.RUnlock()

	matches := make([]*Match, 0, len(entries))
	for _, entry := range entries {
		score, components := scoreEntry(sessionCtx, entry)
		matches = append(matches, &Match{
			AudioID:    entry.AudioID,
			Entry:      entry,
			BaseScore:  score,
			Components: components,
		})
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].BaseScore > matches[j].BaseScore
	})

	if len(matches) > topK {
		matches = matches[:topK]
	}
	return matches
}

// scoreEntry computes the hybrid base score for one entry. Only components
// that fired are recorded.
func scoreEntry(sessionCtx *session.Context, entry *Entry) (float64, map[string]float64) {
	score := 0.0
	components := map[string]float64{}

	// Embedding similarity: only strictly positive contributions count.
	if len(sessionCtx.TargetEmbedding) > 0 && hasEmbedding(entry.Embedding) {
		sim := CosineSimilarity(sessionCtx.TargetEmbedding, entry.Embedding)
		if sim > 0 {
			components["embedding"] = sim
			score += sim
		}
	}

	// Tempo hint with exponential decay over a 12 BPM scale.
	if sessionCtx.BPM != nil && entry.Tempo != nil {
		t := math.Exp(-math.Abs(*entry.Tempo-*sessionCtx.BPM) / tempoHintDecayBPM)
		components["tempo_hint"] = tempoHintWeight * t
		score += tempoHintWeight * t
	}

	// Exact key match.
	if sessionCtx.Key != nil && entry.Key != nil && *sessionCtx.Key == *entry.Key {
		components["key_match"] = keyMatchWeight
		score += keyMatchWeight
	}

	// Genre match.
	if sessionCtx.Genre != nil && containsString(entry.Genres, *sessionCtx.Genre) {
		components["genre_match"] = genreMatchWeight
		score += genreMatchWeight
	}

	// Mood overlap, capped.
	if len(sessionCtx.MoodTags) > 0 && len(entry.Moods) > 0 {
		moodSet := sessionCtx.MoodTagSet()
		overlap := 0
		for _, mood := range entry.Moods {
			if _, ok := moodSet[mood]; ok {
				overlap++
			}
		}
		if overlap >= 1 {
			boost := math.Min(float64(overlap)*moodOverlapStep, moodOverlapCap)
			components["mood_overlap"] = boost
			score += boost
		}
	}

	return score, components
}

// CosineSimilarity computes cosine similarity over the first
// min(len(a), len(b)) dimensions, clamped to [-1, 1].
func CosineSimilarity(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	if n == 0 {
		return 0
	}

	var dotProduct, normA, normB float64
	for i := 0; i < n; i++ {
		dotProduct += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	sim := dotProduct / (math.Sqrt(normA) * math.Sqrt(normB))
	return math.Max(-1, math.Min(1, sim))
}

// hasEmbedding reports whether the entry carries a usable embedding.
// The zero vector signals a pathological input and counts as "no embedding".
func hasEmbedding(embedding []float32) bool {
	for _, v := range embedding {
		if v != 0 {
			return true
		}
	}
	return false
}

func containsString(list []string, target string) bool {
	for _, s := range list {
		if s == target {
			return true
		}
	}
	return false
}
