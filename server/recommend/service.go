package recommend

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/crateai/cratedig/internal/observability"
	"github.com/crateai/cratedig/internal/profile"
	"github.com/crateai/cratedig/server/session"
	"github.com/crateai/cratedig/server/vectorstore"
	"github.com/crateai/cratedig/store"
)

// Fusion weights layered on top of the vector-store base score.
const (
	fusionTempoWeight     = 0.25
	fusionTempoScaleBPM   = 12.0
	fusionKeyWeight       = 0.2
	fusionRelativeKey     = 0.1
	fusionFreshnessWeight = 0.1
	freshnessWindowDays   = 14.0
)

// Service is the recommendation engine. It owns mode selection, fusion
// scoring on top of the vector store, and the rules and fallback tiers.
type Service struct {
	store       *store.Store
	vectors     *vectorstore.Store
	sessions    *session.Cache
	defaultMode string
	logger      *slog.Logger
}

// NewService creates a recommendation service.
func NewService(st *store.Store, vectors *vectorstore.Store, sessions *session.Cache, profile *profile.Profile) *Service {
	return &Service{
		store:       st,
		vectors:     vectors,
		sessions:    sessions,
		defaultMode: profile.RecommendationMode,
		logger:      slog.Default(),
	}
}

// UpdateContext replaces the user's session context wholesale and returns
// the stored snapshot.
func (s *Service) UpdateContext(userID int32, sessionCtx *session.Context) *session.Context {
	if sessionCtx == nil {
		sessionCtx = &session.Context{}
	}
	s.sessions.SetContext(userID, sessionCtx)
	return sessionCtx
}

// GetContext returns the user's current session context, or nil.
func (s *Service) GetContext(userID int32) *session.Context {
	return s.sessions.GetContext(userID)
}

// GetRecommendations returns ranked suggestions for the user's current
// session context. The fusion tier falls through to rules and then to
// fallback when it produces nothing; the response Mode stays the effective
// requested mode regardless of which tier supplied the items.
func (s *Service) GetRecommendations(ctx context.Context, userID int32, request *Request) (*Response, error) {
	if request == nil {
		request = &Request{}
	}
	if err := request.Validate(); err != nil {
		return nil, err
	}

	mode := request.Mode
	if mode == "" {
		mode = s.defaultMode
	}
	if mode == "" {
		mode = ModeFusion
	}
	reqCtx := observability.NewRequestContext(s.logger, mode, userID)

	sessionCtx := s.sessions.GetContext(userID)
	if sessionCtx == nil {
		sessionCtx = &session.Context{}
	}

	var items []*Item
	var err error
	switch mode {
	case ModeRules:
		items, err = s.ruleBased(ctx, userID, sessionCtx, request.TopK)
	default:
		items, err = s.fusion(ctx, userID, sessionCtx, request.TopK)
	}
	if err != nil {
		reqCtx.Error("recommendation query failed", err)
		return nil, err
	}

	source := ""
	if len(items) > 0 {
		source = items[0].Source
	}
	reqCtx.Info("recommendations served",
		slog.Int("count", len(items)),
		slog.String("source", source),
		slog.Int64(observability.LogFieldDuration, reqCtx.DurationMs()))

	return &Response{
		Context:     sessionCtx,
		Suggestions: items,
		Mode:        mode,
	}, nil
}

// fusion runs the vector-store query and layers tempo, key and freshness
// refinements on top of each candidate's base score.
func (s *Service) fusion(ctx context.Context, userID int32, sessionCtx *session.Context, topK int) ([]*Item, error) {
	// A cold store is refreshed once; concurrent callers collapse into the
	// same scan inside the vector store.
	if len(s.vectors.Query(sessionCtx, 1)) == 0 {
		if err := s.vectors.Refresh(ctx, s.store); err != nil {
			return nil, err
		}
	}

	candidates := s.vectors.Query(sessionCtx, max(topK*3, 10))
	now := time.Now()

	items := make([]*Item, 0, len(candidates))
	for _, match := range candidates {
		if match.Entry.UserID != userID {
			continue
		}
		items = append(items, s.buildFusionItem(match, sessionCtx, now))
	}

	sort.SliceStable(items, func(i, j int) bool {
		return items[i].Score > items[j].Score
	})
	if len(items) > topK {
		items = items[:topK]
	}

	if len(items) == 0 {
		return s.ruleBased(ctx, userID, sessionCtx, topK)
	}
	return items, nil
}

// buildFusionItem refines one vector-store match into a suggestion.
func (s *Service) buildFusionItem(match *vectorstore.Match, sessionCtx *session.Context, now time.Time) *Item {
	entry := match.Entry
	score := match.BaseScore
	components := make(map[string]float64, len(match.Components)+3)
	for name, value := range match.Components {
		components[name] = value
	}
	var fragments []string

	if sessionCtx.BPM != nil && entry.Tempo != nil {
		delta := math.Abs(*entry.Tempo - *sessionCtx.BPM)
		closeness := math.Max(0, 1-delta/fusionTempoScaleBPM)
		components["tempo"] = fusionTempoWeight * closeness
		score += fusionTempoWeight * closeness
		fragments = append(fragments, fmt.Sprintf("Tempo within %.1f BPM", delta))
	}

	if sessionCtx.Key != nil && entry.Key != nil {
		if *sessionCtx.Key == *entry.Key {
			components["key"] = fusionKeyWeight
			score += fusionKeyWeight
			fragments = append(fragments, "Exact key match")
		} else if samePitchClass(*sessionCtx.Key, *entry.Key) {
			components["key_relative"] = fusionRelativeKey
			score += fusionRelativeKey
			fragments = append(fragments, "Relative key match")
		}
	}

	// An unknown upload time counts as age zero.
	ageDays := 0
	if !entry.UploadedAt.IsZero() {
		ageDays = int(now.Sub(entry.UploadedAt).Hours() / 24)
	}
	freshness := math.Max(0, 1-float64(ageDays)/freshnessWindowDays)
	if freshness > 0 {
		components["freshness"] = fusionFreshnessWeight * freshness
		score += fusionFreshnessWeight * freshness
		fragments = append(fragments, "Fresh upload")
	}

	source := SourceFusion
	if _, ok := components["embedding"]; ok {
		source = SourceEmbeddingFusion
	} else if match.BaseScore > 0 {
		source = SourceHeuristic
	}

	return &Item{
		AudioID:         entry.AudioID,
		Filename:        entry.Filename,
		Score:           math.Max(0, score),
		Rationale:       joinRationale(fragments),
		Tags:            dedupTags(entry.Genres, entry.Moods),
		Tempo:           entry.Tempo,
		Source:          source,
		ScoreComponents: components,
	}
}

// samePitchClass reports whether two key names share the leading pitch
// token, e.g. "C major" and "C minor".
func samePitchClass(a, b string) bool {
	ta := strings.SplitN(a, " ", 2)[0]
	tb := strings.SplitN(b, " ", 2)[0]
	return ta != "" && ta == tb
}
