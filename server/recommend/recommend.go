// Package recommend produces ranked sample suggestions for a session
// context, with human-readable rationale and per-feature score attribution.
package recommend

import (
	"strings"

	"github.com/pkg/errors"

	"github.com/crateai/cratedig/server/session"
)

// Recommendation modes.
const (
	ModeFusion = "fusion"
	ModeRules  = "rules"
)

// Provenance labels on returned items.
const (
	SourceEmbeddingFusion = "embedding-fusion"
	SourceFusion          = "fusion"
	SourceHeuristic       = "heuristic"
	SourceRules           = "rules"
	SourceFallback        = "fallback"
)

// TopK bounds.
const (
	DefaultTopK = 10
	MaxTopK     = 50
)

// Request is a recommendation query.
type Request struct {
	TopK int
	// IncludeRationale is accepted for API compatibility; rationale is
	// always populated when score components exist.
	IncludeRationale bool
	// Mode overrides the service default when set.
	Mode string
}

// Validate checks bounds and applies the TopK default.
func (r *Request) Validate() error {
	if r.TopK == 0 {
		r.TopK = DefaultTopK
	}
	if r.TopK < 1 || r.TopK > MaxTopK {
		return errors.Errorf("top_k must be between 1 and %d, got %d", MaxTopK, r.TopK)
	}
	switch r.Mode {
	case "", ModeFusion, ModeRules:
	default:
		return errors.Errorf("unknown mode %q: only 'fusion' and 'rules' are supported", r.Mode)
	}
	return nil
}

// Item is one ranked suggestion.
type Item struct {
	AudioID         int32              `json:"audio_id"`
	Filename        string             `json:"filename"`
	Score           float64            `json:"score"`
	Rationale       *string            `json:"rationale,omitempty"`
	Tags            []string           `json:"tags"`
	Tempo           *float64           `json:"tempo,omitempty"`
	Source          string             `json:"source"`
	ScoreComponents map[string]float64 `json:"score_components,omitempty"`
}

// Response is the ranked result of a recommendation query. Mode is the
// effective mode; a fusion call that fell through to rules or fallback still
// reports "fusion", with item sources revealing provenance.
type Response struct {
	Context     *session.Context `json:"context"`
	Suggestions []*Item          `json:"suggestions"`
	Mode        string           `json:"mode"`
}

// dedupTags merges tag lists preserving first-seen order.
func dedupTags(lists ...[]string) []string {
	seen := make(map[string]struct{})
	tags := []string{}
	for _, list := range lists {
		for _, tag := range list {
			if _, ok := seen[tag]; ok {
				continue
			}
			seen[tag] = struct{}{}
			tags = append(tags, tag)
		}
	}
	return tags
}

// joinRationale joins rationale fragments; nil when none fired.
func joinRationale(fragments []string) *string {
	if len(fragments) == 0 {
		return nil
	}
	joined := strings.Join(fragments, "; ")
	return &joined
}
