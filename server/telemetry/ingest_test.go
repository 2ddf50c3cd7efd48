package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crateai/cratedig/store"
	storetest "github.com/crateai/cratedig/store/test"
)

func int32Ptr(v int32) *int32       { return &v }
func float64Ptr(v float64) *float64 { return &v }
func stringPtr(v string) *string    { return &v }

func TestIngestPersistsBatch(t *testing.T) {
	ctx := context.Background()
	st := storetest.NewTestingStore(ctx, t)
	svc := NewService(st)

	result, err := svc.Ingest(ctx, &Batch{
		SessionID: "session-1",
		Events: []*Event{
			{
				Event:   store.TelemetryEventView,
				AudioID: int32Ptr(7),
				Score:   float64Ptr(0.95),
				Rank:    int32Ptr(0),
				Source:  stringPtr("embedding-fusion"),
				Metadata: map[string]any{
					"surface": "browser",
				},
			},
			{Event: store.TelemetryEventAccept, AudioID: int32Ptr(7), Rank: int32Ptr(0)},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "session-1", result.SessionID)
	assert.Equal(t, 2, result.Accepted)

	// Listed newest first.
	sessionID := "session-1"
	events, err := st.ListTelemetryEvents(ctx, &store.FindTelemetryEvent{SessionID: &sessionID})
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, store.TelemetryEventAccept, events[0].Event)
	assert.Equal(t, store.TelemetryEventView, events[1].Event)
	require.NotNil(t, events[1].AudioID)
	assert.Equal(t, int32(7), *events[1].AudioID)
	assert.Equal(t, "browser", events[1].Metadata["surface"])
}

func TestIngestAssignsSessionID(t *testing.T) {
	ctx := context.Background()
	st := storetest.NewTestingStore(ctx, t)
	svc := NewService(st)

	result, err := svc.Ingest(ctx, &Batch{
		Events: []*Event{{Event: store.TelemetryEventPreview}},
	})
	require.NoError(t, err)
	assert.NotEmpty(t, result.SessionID)
	assert.Equal(t, 1, result.Accepted)
}

func TestIngestEmptyBatch(t *testing.T) {
	ctx := context.Background()
	st := storetest.NewTestingStore(ctx, t)
	svc := NewService(st)

	result, err := svc.Ingest(ctx, &Batch{SessionID: "empty"})
	require.NoError(t, err)
	assert.Equal(t, 0, result.Accepted)

	count, err := st.CountTelemetryEvents(ctx, &store.FindTelemetryEvent{})
	require.NoError(t, err)
	assert.Equal(t, int64(0), count)
}

func TestIngestRejectsMalformedEvents(t *testing.T) {
	ctx := context.Background()
	st := storetest.NewTestingStore(ctx, t)
	svc := NewService(st)

	cases := []struct {
		name  string
		event *Event
	}{
		{"unknown kind", &Event{Event: "hover"}},
		{"zero audio id", &Event{Event: store.TelemetryEventView, AudioID: int32Ptr(0)}},
		{"negative rank", &Event{Event: store.TelemetryEventSkip, Rank: int32Ptr(-1)}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Ingest(ctx, &Batch{
				SessionID: "bad",
				Events:    []*Event{{Event: store.TelemetryEventView}, tc.event},
			})
			require.Error(t, err)
		})
	}

	// A rejected batch stores nothing.
	count, err := st.CountTelemetryEvents(ctx, &store.FindTelemetryEvent{})
	require.NoError(t, err)
	assert.Equal(t, int64(0), count)

	_, err = svc.Ingest(ctx, nil)
	require.Error(t, err)
}
