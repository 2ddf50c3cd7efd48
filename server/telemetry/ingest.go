// Package telemetry accepts batched client feedback about recommendations
// and persists it for offline ranking refinement.
package telemetry

import (
	"context"
	"log/slog"
	"time"

	"github.com/lithammer/shortuuid/v4"
	"github.com/pkg/errors"

	"github.com/crateai/cratedig/store"
)

// Event is one client feedback event inside a batch.
type Event struct {
	Event    string         `json:"event"`
	AudioID  *int32         `json:"audio_id,omitempty"`
	Score    *float64       `json:"score,omitempty"`
	Rank     *int32         `json:"rank,omitempty"`
	Source   *string        `json:"source,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Batch is a group of events reported under one session id. SessionID is
// optional; an id is assigned on ingest when absent.
type Batch struct {
	SessionID string   `json:"session_id,omitempty"`
	Events    []*Event `json:"events"`
}

// Result reports what an ingest call persisted.
type Result struct {
	SessionID string `json:"session_id"`
	Accepted  int    `json:"accepted"`
}

// Service validates and persists telemetry batches. Duplicate events are
// tolerated; idempotency is not guaranteed.
type Service struct {
	store *store.Store
}

// NewService creates a telemetry ingest service.
func NewService(st *store.Store) *Service {
	return &Service{store: st}
}

// Ingest validates the whole batch up front, then persists it in one write.
// A single malformed event rejects the batch; nothing is partially stored.
func (s *Service) Ingest(ctx context.Context, batch *Batch) (*Result, error) {
	if batch == nil {
		return nil, errors.New("telemetry batch is required")
	}
	for i, event := range batch.Events {
		if err := validateEvent(event); err != nil {
			return nil, errors.Wrapf(err, "event %d", i)
		}
	}

	sessionID := batch.SessionID
	if sessionID == "" {
		sessionID = shortuuid.New()
	}

	if len(batch.Events) == 0 {
		return &Result{SessionID: sessionID}, nil
	}

	now := time.Now().Unix()
	creates := make([]*store.TelemetryEvent, 0, len(batch.Events))
	for _, event := range batch.Events {
		creates = append(creates, &store.TelemetryEvent{
			SessionID: sessionID,
			Event:     event.Event,
			AudioID:   event.AudioID,
			Score:     event.Score,
			Rank:      event.Rank,
			Source:    event.Source,
			Metadata:  event.Metadata,
			CreatedTs: now,
		})
	}

	persisted, err := s.store.CreateTelemetryEvents(ctx, creates)
	if err != nil {
		return nil, errors.Wrap(err, "persist telemetry batch")
	}

	slog.Debug("telemetry batch ingested", "session_id", sessionID, "events", len(persisted))
	return &Result{SessionID: sessionID, Accepted: len(persisted)}, nil
}

func validateEvent(event *Event) error {
	if event == nil {
		return errors.New("event is required")
	}
	switch event.Event {
	case store.TelemetryEventView, store.TelemetryEventPreview, store.TelemetryEventAccept, store.TelemetryEventSkip:
	default:
		return errors.Errorf("unknown event %q", event.Event)
	}
	if event.AudioID != nil && *event.AudioID < 1 {
		return errors.Errorf("audio_id must be >= 1, got %d", *event.AudioID)
	}
	if event.Rank != nil && *event.Rank < 0 {
		return errors.Errorf("rank must be >= 0, got %d", *event.Rank)
	}
	return nil
}
