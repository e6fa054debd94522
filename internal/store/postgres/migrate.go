package postgres

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
)

// schema is applied as one idempotent script. seq columns preserve the
// insertion order the engine promises for bids, messages, and ratings.
const schema = `
CREATE TABLE IF NOT EXISTS rfps (
	id               TEXT PRIMARY KEY,
	requester_id     TEXT NOT NULL,
	task_type        TEXT NOT NULL,
	task_description TEXT NOT NULL DEFAULT '',
	requirements     JSONB NOT NULL DEFAULT '{}',
	max_budget       DOUBLE PRECISION,
	deadline         TIMESTAMPTZ,
	status           TEXT NOT NULL,
	created_at       TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_rfps_status ON rfps (status);

CREATE TABLE IF NOT EXISTS bids (
	seq                          BIGSERIAL,
	id                           TEXT PRIMARY KEY,
	rfp_id                       TEXT NOT NULL REFERENCES rfps (id),
	bidder_id                    TEXT NOT NULL,
	bidder_name                  TEXT NOT NULL DEFAULT '',
	price                        DOUBLE PRECISION NOT NULL,
	estimated_completion_time_ms BIGINT,
	capabilities_summary         TEXT NOT NULL DEFAULT '',
	reputation_score             DOUBLE PRECISION,
	metadata                     JSONB NOT NULL DEFAULT '{}',
	created_at                   TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_bids_rfp ON bids (rfp_id, seq);

CREATE TABLE IF NOT EXISTS assignments (
	id               TEXT PRIMARY KEY,
	rfp_id           TEXT NOT NULL UNIQUE REFERENCES rfps (id),
	winning_bid_id   TEXT NOT NULL,
	requester_id     TEXT NOT NULL,
	provider_id      TEXT NOT NULL,
	agreed_price     DOUBLE PRECISION NOT NULL,
	task_description TEXT NOT NULL DEFAULT '',
	payment_escrow   TEXT,
	status           TEXT NOT NULL,
	created_at       TIMESTAMPTZ NOT NULL,
	completed_at     TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS negotiation_messages (
	seq          BIGSERIAL,
	id           TEXT PRIMARY KEY,
	rfp_id       TEXT NOT NULL,
	from_agent   TEXT NOT NULL,
	to_agent     TEXT NOT NULL,
	message_type TEXT NOT NULL DEFAULT '',
	content      TEXT NOT NULL DEFAULT '',
	metadata     JSONB NOT NULL DEFAULT '{}',
	created_at   TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_messages_rfp ON negotiation_messages (rfp_id, seq);

CREATE TABLE IF NOT EXISTS provider_ratings (
	seq             BIGSERIAL,
	id              TEXT PRIMARY KEY,
	assignment_id   TEXT NOT NULL,
	consumer_id     TEXT NOT NULL,
	provider_id     TEXT NOT NULL,
	rating          DOUBLE PRECISION NOT NULL,
	data_quality    DOUBLE PRECISION NOT NULL,
	response_time   DOUBLE PRECISION NOT NULL,
	value_for_price DOUBLE PRECISION NOT NULL,
	review_text     TEXT,
	created_at      TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_ratings_provider ON provider_ratings (provider_id, seq);

CREATE TABLE IF NOT EXISTS reputation_records (
	provider_id      TEXT PRIMARY KEY,
	total_ratings    INTEGER NOT NULL,
	average_rating   DOUBLE PRECISION NOT NULL,
	reputation_score DOUBLE PRECISION NOT NULL
);

CREATE TABLE IF NOT EXISTS subscriptions (
	agent_id   TEXT PRIMARY KEY,
	task_types TEXT[] NOT NULL DEFAULT '{}'
);
`

// Migrate creates the schema if it does not exist
func Migrate(ctx context.Context, pool PoolInterface) error {
	if _, err := pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	log.Info().Msg("Database schema up to date")
	return nil
}
