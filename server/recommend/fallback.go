package recommend

import (
	"context"

	"github.com/crateai/cratedig/store"
)

const fallbackScore = 0.1

// fallback returns the user's most recent uploads with a fixed nominal
// score, so a fresh library still gets suggestions before any analysis or
// embedding exists. Records are resolved through the store's audio cache;
// the fallback path is the hot one for fresh libraries.
func (s *Service) fallback(ctx context.Context, userID int32, topK int) ([]*Item, error) {
	recent, err := s.store.ListAudios(ctx, &store.FindAudio{
		UserID:              &userID,
		Limit:               &topK,
		OrderByUploadedDesc: true,
	})
	if err != nil {
		return nil, err
	}

	rationale := "Recent addition"
	items := make([]*Item, 0, len(recent))
	for _, listed := range recent {
		audio, err := s.store.GetAudio(ctx, listed.ID)
		if err != nil {
			return nil, err
		}
		if audio == nil {
			continue
		}
		tags := []string{}
		var tempo *float64
		if audio.Analysis != nil {
			tags = dedupTags(audio.Analysis.Genres, audio.Analysis.Moods)
			tempo = audio.Analysis.Tempo
		}
		items = append(items, &Item{
			AudioID:         audio.ID,
			Filename:        audio.Filename,
			Score:           fallbackScore,
			Rationale:       &rationale,
			Tags:            tags,
			Tempo:           tempo,
			Source:          SourceFallback,
			ScoreComponents: map[string]float64{"fallback": fallbackScore},
		})
	}
	return items, nil
}
