// Package test provides store helpers for package-level tests. The
// testing store runs against an in-memory SQLite database so tests need
// no external services.
package test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/wsu2059q/qvqchat/internal/profile"
	"github.com/wsu2059q/qvqchat/store"
	"github.com/wsu2059q/qvqchat/store/db/sqlite"
)

// NewTestingStore opens an in-memory store with the schema applied.
func NewTestingStore(ctx context.Context, t *testing.T) *store.Store {
	p := profile.Default()
	p.Driver = "sqlite"
	p.DSN = ":memory:"

	driver, err := sqlite.NewDB(p)
	require.NoError(t, err)

	ts := store.New(driver, p)
	require.NoError(t, ts.Migrate(ctx))
	t.Cleanup(func() {
		_ = ts.Close()
	})
	return ts
}
