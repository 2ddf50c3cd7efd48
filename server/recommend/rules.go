package recommend

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/crateai/cratedig/server/session"
	"github.com/crateai/cratedig/store"
)

// Rule weights. Tempo closeness is unweighted here; the rules tier reads as
// a transparent checklist rather than a tuned blend.
const (
	ruleTempoScaleBPM = 12.0
	ruleKeyWeight     = 0.5
	ruleMoodStep      = 0.1
	ruleMoodCap       = 0.3
)

// ruleBased scores the user's analyzed samples with simple symbolic rules,
// no embeddings involved. Samples where no rule fires are dropped; an empty
// result falls through to the fallback ranker.
func (s *Service) ruleBased(ctx context.Context, userID int32, sessionCtx *session.Context, topK int) ([]*Item, error) {
	limit := max(topK*3, 10)
	audios, err := s.store.ListAudios(ctx, &store.FindAudio{
		UserID: &userID,
		Limit:  &limit,
	})
	if err != nil {
		return nil, err
	}

	items := make([]*Item, 0, len(audios))
	for _, audio := range audios {
		if item := buildRuleItem(audio, sessionCtx); item != nil {
			items = append(items, item)
		}
	}

	sort.SliceStable(items, func(i, j int) bool {
		return items[i].Score > items[j].Score
	})
	if len(items) > topK {
		items = items[:topK]
	}

	if len(items) == 0 {
		return s.fallback(ctx, userID, topK)
	}
	return items, nil
}

// buildRuleItem applies the rule checklist to one sample. Returns nil when
// the sample has no analysis or no rule fired.
func buildRuleItem(audio *store.Audio, sessionCtx *session.Context) *Item {
	analysis := audio.Analysis
	if analysis == nil {
		return nil
	}

	score := 0.0
	components := map[string]float64{}
	var fragments []string

	if sessionCtx.BPM != nil && analysis.Tempo != nil {
		delta := math.Abs(*analysis.Tempo - *sessionCtx.BPM)
		closeness := math.Max(0, 1-delta/ruleTempoScaleBPM)
		components["tempo_rules"] = closeness
		score += closeness
		fragments = append(fragments, fmt.Sprintf("Tempo diff %.1f BPM", delta))
	}

	if sessionCtx.Key != nil && analysis.Key != nil && *sessionCtx.Key == *analysis.Key {
		components["key_rules"] = ruleKeyWeight
		score += ruleKeyWeight
		fragments = append(fragments, "Exact key match")
	}

	if len(sessionCtx.MoodTags) > 0 && len(analysis.Moods) > 0 {
		moodSet := sessionCtx.MoodTagSet()
		overlap := 0
		for _, mood := range analysis.Moods {
			if _, ok := moodSet[mood]; ok {
				overlap++
			}
		}
		if overlap >= 1 {
			boost := math.Min(float64(overlap)*ruleMoodStep, ruleMoodCap)
			components["mood_rules"] = boost
			score += boost
		}
	}

	if len(components) == 0 {
		return nil
	}

	// Rules tags keep duplicates; genres and moods are reported as-is.
	tags := make([]string, 0, len(analysis.Genres)+len(analysis.Moods))
	tags = append(tags, analysis.Genres...)
	tags = append(tags, analysis.Moods...)

	return &Item{
		AudioID:         audio.ID,
		Filename:        audio.Filename,
		Score:           math.Max(0, score),
		Rationale:       joinRationale(fragments),
		Tags:            tags,
		Tempo:           analysis.Tempo,
		Source:          SourceRules,
		ScoreComponents: components,
	}
}
