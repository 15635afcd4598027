// Package storetest opens throwaway SQLite-backed stores for tests.
package storetest

import (
	"context"
	"fmt"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nikhil/taskhub/internal/config"
	"github.com/nikhil/taskhub/internal/database"
	"github.com/nikhil/taskhub/internal/models"
	"github.com/nikhil/taskhub/internal/store"
)

// Config returns a SQLite database config inside t.TempDir().
func Config(t testing.TB) config.DatabaseConfig {
	t.Helper()
	return config.DatabaseConfig{
		Driver: config.DriverSQLite,
		Path:   filepath.Join(t.TempDir(), "taskhub.db"),
	}
}

// New opens a fresh store. Its clock advances one millisecond per reading so
// join order is always distinguishable.
func New(t testing.TB) *store.Store {
	t.Helper()
	db, err := database.Open(context.Background(), Config(t))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return store.New(db, config.DriverSQLite).WithClock(TickingClock(time.Unix(1_700_000_000, 0)))
}

// TickingClock returns a clock that moves forward by 1ms on every call.
func TickingClock(start time.Time) func() time.Time {
	var ticks atomic.Int64
	return func() time.Time {
		return start.Add(time.Duration(ticks.Add(1)) * time.Millisecond)
	}
}

// User inserts a user named name.
func User(t testing.TB, s *store.Store, name string) models.User {
	t.Helper()
	u, err := s.CreateUser(context.Background(), models.User{
		Username: name,
		Email:    fmt.Sprintf("%s@example.com", name),
	})
	require.NoError(t, err)
	return u
}
