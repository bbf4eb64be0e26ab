package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

// Open connects to Postgres and verifies the connection.
func Open(ctx context.Context, url string) (*sql.DB, error) {
	db, err := sql.Open("postgres", url)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("postgres ping failed: %w", err)
	}
	return db, nil
}

// Schema holds the DDL for all tables this core owns. loyalty_cards carries a
// single authoritative balance column; derived totals come from the
// point_transactions log, never from a second mutable column.
const Schema = `
CREATE TABLE IF NOT EXISTS loyalty_programs (
	id          UUID PRIMARY KEY,
	business_id UUID NOT NULL,
	name        TEXT NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS enrollments (
	id          UUID PRIMARY KEY,
	customer_id UUID NOT NULL,
	program_id  UUID NOT NULL,
	status      TEXT NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL,
	updated_at  TIMESTAMPTZ NOT NULL
);

-- At most one non-terminal enrollment per (customer, program) pair.
CREATE UNIQUE INDEX IF NOT EXISTS enrollments_open_pair
	ON enrollments (customer_id, program_id)
	WHERE status NOT IN ('DECLINED', 'REVOKED');

CREATE TABLE IF NOT EXISTS approval_requests (
	id            UUID PRIMARY KEY,
	enrollment_id UUID NOT NULL REFERENCES enrollments (id),
	status        TEXT NOT NULL,
	requested_at  TIMESTAMPTZ NOT NULL,
	responded_at  TIMESTAMPTZ,
	expires_at    TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS approval_requests_pending
	ON approval_requests (expires_at)
	WHERE status = 'PENDING';

CREATE TABLE IF NOT EXISTS loyalty_cards (
	id            UUID PRIMARY KEY,
	enrollment_id UUID NOT NULL UNIQUE REFERENCES enrollments (id),
	balance       BIGINT NOT NULL DEFAULT 0 CHECK (balance >= 0),
	tier          TEXT NOT NULL,
	version       BIGINT NOT NULL DEFAULT 1,
	active        BOOLEAN NOT NULL DEFAULT TRUE,
	created_at    TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS point_transactions (
	id              UUID PRIMARY KEY,
	card_id         UUID NOT NULL REFERENCES loyalty_cards (id),
	delta           BIGINT NOT NULL,
	source          TEXT NOT NULL,
	idempotency_key TEXT NOT NULL UNIQUE,
	balance_after   BIGINT NOT NULL,
	created_at      TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS point_transactions_card
	ON point_transactions (card_id, created_at);
`

// EnsureSchema applies the DDL. All statements are idempotent.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}
