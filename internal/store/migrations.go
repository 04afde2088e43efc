package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// schema is applied by `fundlink migrate`. Every statement is idempotent so
// the command can run on each deploy.
const schema = `
CREATE EXTENSION IF NOT EXISTS pgcrypto;

CREATE TABLE IF NOT EXISTS users (
	id               UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	name             TEXT NOT NULL,
	email            TEXT NOT NULL,
	password_hash    TEXT NOT NULL,
	role             TEXT NOT NULL DEFAULT '',
	industry         TEXT NOT NULL DEFAULT '',
	investment_range TEXT NOT NULL DEFAULT '',
	bio              TEXT NOT NULL DEFAULT '',
	created_at       TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at       TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	last_active_at   TIMESTAMPTZ
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_users_email ON users (lower(email));
CREATE INDEX IF NOT EXISTS idx_users_role ON users (role);

CREATE TABLE IF NOT EXISTS campaigns (
	id            UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	vendor_id     UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	title         TEXT NOT NULL,
	description   TEXT NOT NULL DEFAULT '',
	category      TEXT NOT NULL DEFAULT '',
	goal_amount   BIGINT NOT NULL CHECK (goal_amount > 0),
	raised_amount BIGINT NOT NULL DEFAULT 0 CHECK (raised_amount >= 0),
	backer_count  INTEGER NOT NULL DEFAULT 0 CHECK (backer_count >= 0),
	status        TEXT NOT NULL DEFAULT 'active',
	deadline      TIMESTAMPTZ,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_campaigns_vendor ON campaigns (vendor_id);
CREATE INDEX IF NOT EXISTS idx_campaigns_status ON campaigns (status, created_at DESC);

CREATE TABLE IF NOT EXISTS contributions (
	id                UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	campaign_id       UUID NOT NULL REFERENCES campaigns(id) ON DELETE CASCADE,
	contributor_id    UUID REFERENCES users(id) ON DELETE SET NULL,
	contributor_name  TEXT NOT NULL DEFAULT '',
	amount            BIGINT NOT NULL CHECK (amount > 0),
	payment_reference TEXT NOT NULL UNIQUE,
	status            TEXT NOT NULL DEFAULT 'awaiting_confirmation',
	message           TEXT NOT NULL DEFAULT '',
	rejection_reason  TEXT,
	gateway_event_id  TEXT,
	created_at        TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at        TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	verified_at       TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS idx_contributions_campaign ON contributions (campaign_id, status);
CREATE INDEX IF NOT EXISTS idx_contributions_contributor ON contributions (contributor_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_contributions_pending ON contributions (created_at)
	WHERE status IN ('awaiting_confirmation', 'verifying');

CREATE TABLE IF NOT EXISTS conversations (
	key             TEXT PRIMARY KEY,
	participant_a   UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	participant_b   UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	last_seq        BIGINT NOT NULL DEFAULT 0,
	last_message_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_conversations_a ON conversations (participant_a);
CREATE INDEX IF NOT EXISTS idx_conversations_b ON conversations (participant_b);

CREATE TABLE IF NOT EXISTS messages (
	id               UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	conversation_key TEXT NOT NULL REFERENCES conversations(key) ON DELETE CASCADE,
	seq              BIGINT NOT NULL,
	sender_id        UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	receiver_id      UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	body             TEXT NOT NULL,
	read             BOOLEAN NOT NULL DEFAULT FALSE,
	created_at       TIMESTAMPTZ NOT NULL DEFAULT clock_timestamp(),
	UNIQUE (conversation_key, seq)
);
CREATE INDEX IF NOT EXISTS idx_messages_unread ON messages (receiver_id) WHERE NOT read;

CREATE TABLE IF NOT EXISTS settings (
	key        TEXT PRIMARY KEY,
	value      JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS event_outbox (
	id                    BIGSERIAL PRIMARY KEY,
	exchange              TEXT NOT NULL,
	routing_key           TEXT NOT NULL,
	payload               JSONB NOT NULL,
	status                TEXT NOT NULL DEFAULT 'pending',
	attempts              INTEGER NOT NULL DEFAULT 0,
	next_attempt_at       TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	processing_started_at TIMESTAMPTZ,
	published_at          TIMESTAMPTZ,
	last_error            TEXT,
	created_at            TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_event_outbox_pending ON event_outbox (status, next_attempt_at);
`

// Migrate creates or upgrades the schema.
func Migrate(ctx context.Context, db *pgxpool.Pool) error {
	if _, err := db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}
