package test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/crateai/cratedig/internal/profile"
	"github.com/crateai/cratedig/store"
	"github.com/crateai/cratedig/store/db/sqlite"
)

// NewTestingStore creates a store backed by a temporary SQLite database with
// the schema applied. The database is removed with the test's temp dir.
func NewTestingStore(ctx context.Context, t *testing.T) *store.Store {
	p := &profile.Profile{
		Mode:    "dev",
		Driver:  "sqlite",
		DSN:     filepath.Join(t.TempDir(), "cratedig_test.db"),
		Version: "test",
	}
	require.NoError(t, p.Validate())

	driver, err := sqlite.NewDB(p)
	require.NoError(t, err)

	st := store.New(driver, p)
	require.NoError(t, st.Migrate(ctx))

	t.Cleanup(func() {
		_ = st.Close()
	})

	return st
}
