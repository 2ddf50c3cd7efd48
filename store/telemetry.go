package store

import "context"

// Telemetry event kinds accepted by the ingest path.
const (
	TelemetryEventView    = "view"
	TelemetryEventPreview = "preview"
	TelemetryEventAccept  = "accept"
	TelemetryEventSkip    = "skip"
)

// TelemetryEvent represents a single client feedback event about a
// recommended sample.
type TelemetryEvent struct {
	ID        int64
	SessionID string
	Event     string // view, preview, accept, skip
	AudioID   *int32
	Score     *float64
	Rank      *int32
	Source    *string
	Metadata  map[string]any
	CreatedTs int64
}

// FindTelemetryEvent is the find condition for telemetry events.
type FindTelemetryEvent struct {
	SessionID *string
	Event     *string
	AudioID   *int32
	Limit     *int
}

// CreateTelemetryEvents persists a batch of telemetry events.
func (s *Store) CreateTelemetryEvents(ctx context.Context, creates []*TelemetryEvent) ([]*TelemetryEvent, error) {
	return s.driver.CreateTelemetryEvents(ctx, creates)
}

// ListTelemetryEvents lists telemetry events.
func (s *Store) ListTelemetryEvents(ctx context.Context, find *FindTelemetryEvent) ([]*TelemetryEvent, error) {
	return s.driver.ListTelemetryEvents(ctx, find)
}

// CountTelemetryEvents counts telemetry events matching the condition.
func (s *Store) CountTelemetryEvents(ctx context.Context, find *FindTelemetryEvent) (int64, error) {
	return s.driver.CountTelemetryEvents(ctx, find)
}
