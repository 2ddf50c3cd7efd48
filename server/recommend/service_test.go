package recommend

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crateai/cratedig/internal/profile"
	"github.com/crateai/cratedig/server/embedding"
	"github.com/crateai/cratedig/server/session"
	"github.com/crateai/cratedig/server/vectorstore"
	"github.com/crateai/cratedig/store"
	storetest "github.com/crateai/cratedig/store/test"
)

func float64Ptr(v float64) *float64 { return &v }
func stringPtr(v string) *string    { return &v }

func testProfile() *profile.Profile {
	return &profile.Profile{
		Mode:               "dev",
		Driver:             "sqlite",
		EmbeddingDim:       64,
		EmbeddingFallback:  "fingerprint",
		RecommendationMode: ModeFusion,
	}
}

type fixture struct {
	store      *store.Store
	service    *Service
	embeddings *embedding.Service
	sessions   *session.Cache
}

func newFixture(ctx context.Context, t *testing.T) *fixture {
	st := storetest.NewTestingStore(ctx, t)
	p := testProfile()

	sessions := session.NewCache(session.DefaultTTL)
	t.Cleanup(sessions.Close)

	return &fixture{
		store:      st,
		service:    NewService(st, vectorstore.New(), sessions, p),
		embeddings: embedding.NewService(st, p, nil),
		sessions:   sessions,
	}
}

// seedSample creates an audio record with optional analysis and, when
// withEmbedding is set, a persisted fingerprint embedding.
func (f *fixture) seedSample(ctx context.Context, t *testing.T, userID int32, filename string, uploadedTs int64, analysis *store.UpsertAudioAnalysis, withEmbedding bool) *store.Audio {
	audio, err := f.store.CreateAudio(ctx, &store.Audio{
		UserID:     userID,
		Filename:   filename,
		FilePath:   "/samples/" + filename,
		UploadedTs: uploadedTs,
	})
	require.NoError(t, err)

	if analysis != nil {
		analysis.AudioID = audio.ID
		_, err := f.store.UpsertAudioAnalysis(ctx, analysis)
		require.NoError(t, err)
	}
	if withEmbedding {
		_, err := f.embeddings.EnsureEmbedding(ctx, audio, false)
		require.NoError(t, err)
	}
	return audio
}

func assertComponentAccounting(t *testing.T, item *Item) {
	sum := 0.0
	for _, value := range item.ScoreComponents {
		sum += value
	}
	assert.InDelta(t, item.Score, sum, 1e-6, "components of %s must sum to its score", item.Filename)
}

func TestRequestValidate(t *testing.T) {
	request := &Request{}
	require.NoError(t, request.Validate())
	assert.Equal(t, DefaultTopK, request.TopK)

	assert.Error(t, (&Request{TopK: -1}).Validate())
	assert.Error(t, (&Request{TopK: 51}).Validate())
	assert.Error(t, (&Request{Mode: "hybrid"}).Validate())
	assert.NoError(t, (&Request{TopK: 50, Mode: ModeRules}).Validate())
}

func TestExactTempoKeyFusionWin(t *testing.T) {
	ctx := context.Background()
	f := newFixture(ctx, t)
	now := time.Now().Unix()

	a := f.seedSample(ctx, t, 1, "lead.wav", now, &store.UpsertAudioAnalysis{
		Tempo:  float64Ptr(128),
		Key:    stringPtr("C major"),
		Genres: []string{"Electronic"},
		Moods:  []string{"uplifting"},
	}, true)
	f.seedSample(ctx, t, 1, "dusty.wav", now, &store.UpsertAudioAnalysis{
		Tempo:  float64Ptr(90),
		Key:    stringPtr("D minor"),
		Genres: []string{"LoFi"},
		Moods:  []string{"moody"},
	}, true)

	f.service.UpdateContext(1, &session.Context{
		BPM:      float64Ptr(128),
		Key:      stringPtr("C major"),
		MoodTags: []string{"uplifting"},
	})

	resp, err := f.service.GetRecommendations(ctx, 1, &Request{TopK: 3})
	require.NoError(t, err)
	require.NotEmpty(t, resp.Suggestions)

	first := resp.Suggestions[0]
	assert.Equal(t, a.ID, first.AudioID)
	assert.InDelta(t, 0.25, first.ScoreComponents["tempo"], 1e-6)
	assert.Contains(t, []string{SourceFusion, SourceEmbeddingFusion, SourceHeuristic}, first.Source)
	assert.Equal(t, []string{"Electronic", "uplifting"}, first.Tags)
	require.NotNil(t, first.Rationale)
	assert.Contains(t, *first.Rationale, "Exact key match")

	for _, item := range resp.Suggestions {
		assert.GreaterOrEqual(t, item.Score, 0.0)
		assertComponentAccounting(t, item)
	}
}

func TestEmptyVectorStoreFallback(t *testing.T) {
	ctx := context.Background()
	f := newFixture(ctx, t)

	audio := f.seedSample(ctx, t, 1, "raw.wav", time.Now().Unix(), nil, false)

	resp, err := f.service.GetRecommendations(ctx, 1, &Request{TopK: 1})
	require.NoError(t, err)
	require.Len(t, resp.Suggestions, 1)

	item := resp.Suggestions[0]
	assert.Equal(t, audio.ID, item.AudioID)
	assert.Equal(t, SourceFallback, item.Source)
	assert.Equal(t, 0.1, item.Score)
	assert.Equal(t, map[string]float64{"fallback": 0.1}, item.ScoreComponents)
	require.NotNil(t, item.Rationale)
	assert.Equal(t, "Recent addition", *item.Rationale)
	// The elected mode survives the fall-through.
	assert.Equal(t, ModeFusion, resp.Mode)
}

func TestRulesModeForced(t *testing.T) {
	ctx := context.Background()
	f := newFixture(ctx, t)
	now := time.Now().Unix()

	contextual := f.seedSample(ctx, t, 1, "groove.wav", now, &store.UpsertAudioAnalysis{
		Tempo: float64Ptr(120),
		Key:   stringPtr("G minor"),
		Moods: []string{"uplifting"},
	}, false)
	f.seedSample(ctx, t, 1, "stray.wav", now, &store.UpsertAudioAnalysis{
		Tempo: float64Ptr(80),
		Key:   stringPtr("C major"),
	}, false)

	f.service.UpdateContext(1, &session.Context{
		BPM:      float64Ptr(120),
		Key:      stringPtr("G minor"),
		MoodTags: []string{"uplifting"},
	})

	resp, err := f.service.GetRecommendations(ctx, 1, &Request{TopK: 2, Mode: ModeRules})
	require.NoError(t, err)
	require.NotEmpty(t, resp.Suggestions)
	assert.Equal(t, ModeRules, resp.Mode)

	first := resp.Suggestions[0]
	assert.Equal(t, contextual.ID, first.AudioID)
	assert.Equal(t, SourceRules, first.Source)
	assert.Contains(t, first.ScoreComponents, "tempo_rules")
	assert.Contains(t, first.ScoreComponents, "key_rules")
	assert.InDelta(t, 0.5, first.ScoreComponents["key_rules"], 1e-6)
	assert.InDelta(t, 0.1, first.ScoreComponents["mood_rules"], 1e-6)
}

func TestRelativeKeyPartialCredit(t *testing.T) {
	ctx := context.Background()
	f := newFixture(ctx, t)

	f.seedSample(ctx, t, 1, "minor.wav", time.Now().Unix(), &store.UpsertAudioAnalysis{
		Key: stringPtr("C minor"),
	}, true)

	f.service.UpdateContext(1, &session.Context{Key: stringPtr("C major")})

	resp, err := f.service.GetRecommendations(ctx, 1, &Request{TopK: 1})
	require.NoError(t, err)
	require.Len(t, resp.Suggestions, 1)

	item := resp.Suggestions[0]
	assert.InDelta(t, 0.1, item.ScoreComponents["key_relative"], 1e-6)
	assert.NotContains(t, item.ScoreComponents, "key")
	require.NotNil(t, item.Rationale)
	assert.Contains(t, *item.Rationale, "Relative key match")
}

func TestFreshnessBoost(t *testing.T) {
	ctx := context.Background()
	f := newFixture(ctx, t)
	now := time.Now()

	analysis := func() *store.UpsertAudioAnalysis {
		return &store.UpsertAudioAnalysis{Tempo: float64Ptr(124)}
	}
	fresh := f.seedSample(ctx, t, 1, "fresh.wav", now.Unix(), analysis(), true)
	stale := f.seedSample(ctx, t, 1, "stale.wav", now.AddDate(0, 0, -20).Unix(), analysis(), true)

	f.service.UpdateContext(1, &session.Context{BPM: float64Ptr(124)})

	resp, err := f.service.GetRecommendations(ctx, 1, &Request{TopK: 2})
	require.NoError(t, err)
	require.Len(t, resp.Suggestions, 2)

	assert.Equal(t, fresh.ID, resp.Suggestions[0].AudioID)
	assert.Equal(t, stale.ID, resp.Suggestions[1].AudioID)
	assert.InDelta(t, 0.1, resp.Suggestions[0].ScoreComponents["freshness"], 1e-6)
	assert.NotContains(t, resp.Suggestions[1].ScoreComponents, "freshness")
}

func TestFusionFreshnessUnknownUploadTime(t *testing.T) {
	svc := &Service{}
	match := &vectorstore.Match{
		Entry: &vectorstore.Entry{AudioID: 1, Filename: "undated.wav"},
	}

	item := svc.buildFusionItem(match, &session.Context{}, time.Now())

	assert.InDelta(t, 0.1, item.ScoreComponents["freshness"], 1e-6)
	require.NotNil(t, item.Rationale)
	assert.Contains(t, *item.Rationale, "Fresh upload")
}

func TestEmbeddingFusionProvenance(t *testing.T) {
	ctx := context.Background()
	f := newFixture(ctx, t)

	audio := f.seedSample(ctx, t, 1, "target.wav", time.Now().Unix(), nil, true)

	persisted, err := f.store.GetAudioEmbedding(ctx, audio.ID)
	require.NoError(t, err)
	require.NotNil(t, persisted)

	f.service.UpdateContext(1, &session.Context{TargetEmbedding: persisted.Embedding})

	resp, err := f.service.GetRecommendations(ctx, 1, &Request{TopK: 1})
	require.NoError(t, err)
	require.Len(t, resp.Suggestions, 1)

	item := resp.Suggestions[0]
	assert.Equal(t, SourceEmbeddingFusion, item.Source)
	assert.Greater(t, item.ScoreComponents["embedding"], 0.0)
	assertComponentAccounting(t, item)
}

func TestUserIsolation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(ctx, t)
	now := time.Now().Unix()

	mine := f.seedSample(ctx, t, 1, "mine.wav", now, &store.UpsertAudioAnalysis{
		Tempo: float64Ptr(100),
	}, true)
	f.seedSample(ctx, t, 2, "theirs.wav", now, &store.UpsertAudioAnalysis{
		Tempo: float64Ptr(100),
	}, true)

	f.service.UpdateContext(1, &session.Context{BPM: float64Ptr(100)})

	resp, err := f.service.GetRecommendations(ctx, 1, &Request{TopK: 10})
	require.NoError(t, err)
	require.Len(t, resp.Suggestions, 1)
	assert.Equal(t, mine.ID, resp.Suggestions[0].AudioID)
}

func TestTopKBoundsSuggestions(t *testing.T) {
	ctx := context.Background()
	f := newFixture(ctx, t)
	now := time.Now().Unix()

	for i := 0; i < 5; i++ {
		f.seedSample(ctx, t, 1, "loop.wav", now, &store.UpsertAudioAnalysis{
			Tempo: float64Ptr(110),
		}, true)
	}
	f.service.UpdateContext(1, &session.Context{BPM: float64Ptr(110)})

	resp, err := f.service.GetRecommendations(ctx, 1, &Request{TopK: 2})
	require.NoError(t, err)
	assert.Len(t, resp.Suggestions, 2)
}

func TestContextRoundTrip(t *testing.T) {
	ctx := context.Background()
	f := newFixture(ctx, t)

	stored := f.service.UpdateContext(1, &session.Context{
		BPM:      float64Ptr(98),
		Genre:    stringPtr("Hip-Hop"),
		MoodTags: []string{"dark"},
	})

	resp, err := f.service.GetRecommendations(ctx, 1, &Request{TopK: 1})
	require.NoError(t, err)
	assert.Equal(t, stored, resp.Context)
}

func TestFallbackResolvesThroughAudioCache(t *testing.T) {
	ctx := context.Background()
	f := newFixture(ctx, t)

	audio := f.seedSample(ctx, t, 1, "fresh-crate.wav", time.Now().Unix(), nil, false)

	// First fallback hit resolves and caches the bare record.
	resp, err := f.service.GetRecommendations(ctx, 1, &Request{TopK: 1})
	require.NoError(t, err)
	require.Len(t, resp.Suggestions, 1)
	assert.Equal(t, SourceFallback, resp.Suggestions[0].Source)
	assert.Empty(t, resp.Suggestions[0].Tags)

	// Re-analysis invalidates the cached record; the next fallback hit
	// must see the fresh descriptor.
	_, err = f.store.UpsertAudioAnalysis(ctx, &store.UpsertAudioAnalysis{
		AudioID: audio.ID,
		Tempo:   float64Ptr(140),
		Genres:  []string{"DnB"},
		Moods:   []string{"driving"},
	})
	require.NoError(t, err)

	resp, err = f.service.GetRecommendations(ctx, 1, &Request{TopK: 1})
	require.NoError(t, err)
	require.Len(t, resp.Suggestions, 1)

	item := resp.Suggestions[0]
	assert.Equal(t, []string{"DnB", "driving"}, item.Tags)
	require.NotNil(t, item.Tempo)
	assert.Equal(t, 140.0, *item.Tempo)
}

func TestEmptyLibraryYieldsEmptySuggestions(t *testing.T) {
	ctx := context.Background()
	f := newFixture(ctx, t)

	resp, err := f.service.GetRecommendations(ctx, 42, &Request{TopK: 5})
	require.NoError(t, err)
	assert.Empty(t, resp.Suggestions)
	assert.Equal(t, ModeFusion, resp.Mode)
}
