package store

import (
	"context"
	"database/sql"
)

// Driver is an interface for store driver.
// It contains all methods that store database driver should implement.
type Driver interface {
	GetDB() *sql.DB
	Close() error

	IsInitialized(ctx context.Context) (bool, error)

	// Audio model related methods.
	CreateAudio(ctx context.Context, create *Audio) (*Audio, error)
	ListAudios(ctx context.Context, find *FindAudio) ([]*Audio, error)
	UpsertAudioAnalysis(ctx context.Context, upsert *UpsertAudioAnalysis) (*AudioAnalysis, error)

	// ListAudioVectors performs the full scan of audio records joined with
	// analysis and embedding used to rebuild the vector-store snapshot.
	ListAudioVectors(ctx context.Context, find *FindAudioVector) ([]*AudioVector, error)

	// AudioEmbedding model related methods.
	UpsertAudioEmbedding(ctx context.Context, embedding *AudioEmbedding) (*AudioEmbedding, error)
	ListAudioEmbeddings(ctx context.Context, find *FindAudioEmbedding) ([]*AudioEmbedding, error)
	DeleteAudioEmbedding(ctx context.Context, audioID int32) error
	FindAudiosWithoutEmbedding(ctx context.Context, find *FindAudiosWithoutEmbedding) ([]*Audio, error)

	// TelemetryEvent model related methods.
	CreateTelemetryEvents(ctx context.Context, creates []*TelemetryEvent) ([]*TelemetryEvent, error)
	ListTelemetryEvents(ctx context.Context, find *FindTelemetryEvent) ([]*TelemetryEvent, error)
	CountTelemetryEvents(ctx context.Context, find *FindTelemetryEvent) (int64, error)
}
