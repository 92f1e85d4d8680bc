package store

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"
	_ "github.com/tursodatabase/libsql-client-go/libsql"
)

// Open connects to the database named by dsn. The driver follows the DSN:
// postgres URLs and keyword strings use pgx, "file:" uses SQLite and
// "libsql://" uses Turso.
func Open(ctx context.Context, dsn string) (*sqlx.DB, error) {
	driver, err := driverFor(dsn)
	if err != nil {
		return nil, err
	}

	db, err := sqlx.ConnectContext(ctx, driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", driver, err)
	}

	switch driver {
	case "sqlite3":
		// SQLite allows one writer; a single connection also keeps a
		// shared in-memory database alive.
		db.SetMaxOpenConns(1)
	case "pgx":
		db.SetMaxOpenConns(20)
		db.SetMaxIdleConns(10)
		db.SetConnMaxIdleTime(15 * time.Minute)
		db.SetConnMaxLifetime(time.Hour)
	}

	slog.Default().InfoContext(ctx, "database connected", "module", "store", "driver", driver)
	return db, nil
}

func driverFor(dsn string) (string, error) {
	switch {
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"), strings.Contains(dsn, "host="):
		return "pgx", nil
	case strings.HasPrefix(dsn, "file:"):
		return "sqlite3", nil
	case strings.HasPrefix(dsn, "libsql://"):
		return "libsql", nil
	default:
		return "", fmt.Errorf("unsupported DSN %q", redact(dsn))
	}
}

func redact(dsn string) string {
	if i := strings.Index(dsn, "@"); i >= 0 {
		if j := strings.Index(dsn, "://"); j >= 0 && j < i {
			return dsn[:j+3] + "***" + dsn[i:]
		}
	}
	return dsn
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS campaigns (
		id               TEXT PRIMARY KEY,
		owner_id         TEXT NOT NULL,
		pet_reference    TEXT NOT NULL,
		pet_name         TEXT NOT NULL DEFAULT '',
		image_url        TEXT NOT NULL DEFAULT '',
		description      TEXT NOT NULL DEFAULT '',
		long_description TEXT NOT NULL DEFAULT '',
		target_cents     BIGINT NOT NULL CHECK (target_cents > 0),
		donated_cents    BIGINT NOT NULL DEFAULT 0 CHECK (donated_cents >= 0),
		deadline         TIMESTAMP NOT NULL,
		paused           BOOLEAN NOT NULL DEFAULT FALSE,
		created_at       TIMESTAMP NOT NULL,
		updated_at       TIMESTAMP NOT NULL,
		deleted_at       TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS donations (
		id                TEXT PRIMARY KEY,
		campaign_id       TEXT NOT NULL REFERENCES campaigns (id),
		donor_id          TEXT,
		amount_cents      BIGINT NOT NULL CHECK (amount_cents > 0),
		payment_reference TEXT NOT NULL UNIQUE,
		status            TEXT NOT NULL CHECK (status IN ('confirmed', 'refunded')),
		created_at        TIMESTAMP NOT NULL,
		refunded_at       TIMESTAMP
	)`,
	`CREATE INDEX IF NOT EXISTS donations_campaign_idx ON donations (campaign_id, created_at)`,
	`CREATE INDEX IF NOT EXISTS donations_donor_idx ON donations (donor_id, created_at)`,
	`CREATE TABLE IF NOT EXISTS reconciliation_faults (
		id          TEXT PRIMARY KEY,
		kind        TEXT NOT NULL,
		campaign_id TEXT NOT NULL,
		entry_id    TEXT NOT NULL,
		delta_cents BIGINT NOT NULL,
		detail      TEXT NOT NULL DEFAULT '',
		created_at  TIMESTAMP NOT NULL,
		resolved_at TIMESTAMP
	)`,
}

// Migrate creates the tables if they do not exist yet.
func Migrate(ctx context.Context, db *sqlx.DB) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

func utcNow() time.Time {
	return time.Now().UTC()
}
