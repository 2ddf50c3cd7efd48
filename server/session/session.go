// Package session holds the per-user creative session context and its cache.
package session

import "time"

// Context is a snapshot of the user's current creative intent. All fields
// are individually optional; an entirely empty context is valid.
type Context struct {
	BPM             *float64 `json:"bpm,omitempty"`
	Key             *string  `json:"key,omitempty"`
	Mode            *string  `json:"mode,omitempty"`
	MoodTags        []string `json:"mood_tags,omitempty"`
	Genre           *string  `json:"genre,omitempty"`
	Energy          *float64 `json:"energy,omitempty"` // in [0, 1]
	ProjectID       *string  `json:"project_id,omitempty"`
	UserPreferences []string `json:"user_preferences,omitempty"`
	// TargetEmbedding is not required to be unit-norm on input; consumers
	// normalize as needed.
	TargetEmbedding []float32 `json:"target_embedding,omitempty"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// MoodTagSet returns the mood tags as a set for overlap computation.
func (c *Context) MoodTagSet() map[string]struct{} {
	set := make(map[string]struct{}, len(c.MoodTags))
	for _, tag := range c.MoodTags {
		set[tag] = struct{}{}
	}
	return set
}
