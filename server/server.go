// Package server wires the recommendation core services over one store.
// Transport (HTTP, gRPC) is an external collaborator; it talks to the
// exported services on Server.
package server

import (
	"context"
	"log/slog"
	"sync"

	"github.com/crateai/cratedig/internal/profile"
	"github.com/crateai/cratedig/server/embedding"
	"github.com/crateai/cratedig/server/recommend"
	embeddingrunner "github.com/crateai/cratedig/server/runner/embedding"
	"github.com/crateai/cratedig/server/session"
	"github.com/crateai/cratedig/server/telemetry"
	"github.com/crateai/cratedig/server/vectorstore"
	"github.com/crateai/cratedig/store"
)

// Server aggregates the recommendation core services.
type Server struct {
	Profile *profile.Profile
	Store   *store.Store

	Sessions    *session.Cache
	Vectors     *vectorstore.Store
	Embeddings  *embedding.Service
	Recommender *recommend.Service
	Telemetry   *telemetry.Service

	runner *embeddingrunner.Runner
	wg     sync.WaitGroup
}

// NewServer builds the service graph on top of a migrated store.
func NewServer(instanceProfile *profile.Profile, storeInstance *store.Store) *Server {
	sessions := session.NewCache(session.DefaultTTL)
	vectors := vectorstore.Get()

	clap := embedding.NewSidecarProvider(&embedding.SidecarConfig{
		BaseURL: instanceProfile.CLAPBaseURL,
		APIKey:  instanceProfile.CLAPAPIKey,
		Model:   instanceProfile.CLAPModel,
	})
	embeddings := embedding.NewService(storeInstance, instanceProfile, clap)

	return &Server{
		Profile:     instanceProfile,
		Store:       storeInstance,
		Sessions:    sessions,
		Vectors:     vectors,
		Embeddings:  embeddings,
		Recommender: recommend.NewService(storeInstance, vectors, sessions, instanceProfile),
		Telemetry:   telemetry.NewService(storeInstance),
		runner:      embeddingrunner.NewRunner(storeInstance, embeddings, vectors),
	}
}

// Start warms the vector store and launches the embedding runner. It returns
// immediately; the runner stops when ctx is cancelled.
func (s *Server) Start(ctx context.Context) {
	if err := s.Vectors.Refresh(ctx, s.Store); err != nil {
		slog.Warn("initial vector store refresh failed", "error", err)
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.runner.Run(ctx)
	}()
}

// Shutdown waits for the runner to exit, then releases the session cache.
// The caller must cancel the Start context first. The store is owned by the
// caller.
func (s *Server) Shutdown() {
	s.wg.Wait()
	s.Sessions.Close()
}
