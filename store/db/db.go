package db

import (
	"github.com/pkg/errors"

	"github.com/crateai/cratedig/internal/profile"
	"github.com/crateai/cratedig/store"
	"github.com/crateai/cratedig/store/db/postgres"
	"github.com/crateai/cratedig/store/db/sqlite"
)

// NewDBDriver creates new db driver based on profile.
//
// SQLite is the default driver and stores embeddings as JSON text; the
// in-memory vector store does all scoring, so no native vector type is
// needed. PostgreSQL with pgvector is available for larger libraries.
func NewDBDriver(profile *profile.Profile) (store.Driver, error) {
	var driver store.Driver
	var err error

	switch profile.Driver {
	case "sqlite":
		driver, err = sqlite.NewDB(profile)
	case "postgres":
		driver, err = postgres.NewDB(profile)
	default:
		return nil, errors.Errorf("unknown db driver %q: only 'sqlite' and 'postgres' are supported", profile.Driver)
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to create db driver")
	}
	return driver, nil
}
