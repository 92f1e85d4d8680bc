// Package storetest opens throwaway in-memory SQLite databases with the
// schema applied, for tests that want real SQL behind the stores.
package storetest

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"pawfund/internal/store"
)

// MemoryDSN names a fresh shared-cache in-memory database. It lives as long
// as at least one connection to it stays open.
func MemoryDSN() string {
	name := strings.ReplaceAll(uuid.NewString(), "-", "")
	return fmt.Sprintf("file:%s?mode=memory&cache=shared&_busy_timeout=5000", name)
}

func NewDB(t testing.TB) *sqlx.DB {
	t.Helper()
	return Open(t, MemoryDSN())
}

// Open connects to dsn, migrates it and closes it when the test ends.
func Open(t testing.TB, dsn string) *sqlx.DB {
	t.Helper()

	db, err := store.Open(context.Background(), dsn)
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := store.Migrate(context.Background(), db); err != nil {
		t.Fatalf("migrate test db: %v", err)
	}
	return db
}
