package server

import (
	"context"
	"testing"
	"time"

	"github.com/crateai/cratedig/internal/profile"
	storetest "github.com/crateai/cratedig/store/test"
)

func TestServerShutdownWaitsForRunner(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	st := storetest.NewTestingStore(ctx, t)

	p := &profile.Profile{
		Mode:               "dev",
		Driver:             "sqlite",
		EmbeddingDim:       64,
		EmbeddingFallback:  "fingerprint",
		RecommendationMode: "fusion",
	}
	s := NewServer(p, st)
	s.Start(ctx)

	cancel()

	done := make(chan struct{})
	go func() {
		s.Shutdown()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("shutdown did not complete after cancellation")
	}

	// The session cache is closed; reads behave as "no context".
	if got := s.Sessions.GetContext(1); got != nil {
		t.Fatalf("expected no context after shutdown, got %+v", got)
	}
}
