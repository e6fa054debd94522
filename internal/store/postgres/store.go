// Package postgres is the persistent Store backend for the negotiation
// engine. It implements the same repository interface as the in-memory
// store, so swapping it in is a construction-time decision.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"github.com/thisissamridh/Mesh/internal/market"
)

// PoolInterface defines the pool operations the store needs. Satisfied by
// *pgxpool.Pool and by pgxmock in tests.
type PoolInterface interface {
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Store is the PostgreSQL-backed market.Store
type Store struct {
	pool PoolInterface
}

// New creates a store on an existing pool
func New(pool PoolInterface) *Store {
	return &Store{pool: pool}
}

// Connect opens a connection pool from a DSN and verifies it
func Connect(ctx context.Context, dsn string) (*Store, *pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to parse database config: %w", err)
	}
	cfg.MaxConnLifetime = time.Hour
	cfg.MaxConnIdleTime = 30 * time.Minute
	cfg.HealthCheckPeriod = time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("failed to ping database: %w", err)
	}

	log.Info().Msg("Database connection pool created")
	return New(pool), pool, nil
}

func (s *Store) InsertRFP(ctx context.Context, rfp *market.RFP) error {
	query := `
		INSERT INTO rfps (
			id, requester_id, task_type, task_description, requirements,
			max_budget, deadline, status, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := s.pool.Exec(ctx, query,
		rfp.ID, rfp.RequesterID, string(rfp.Category), rfp.Description,
		rfp.Requirements, rfp.MaxBudget, rfp.Deadline, string(rfp.Status), rfp.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert rfp: %w", err)
	}
	return nil
}

const rfpColumns = `id, requester_id, task_type, task_description, requirements,
		max_budget, deadline, status, created_at`

func scanRFP(row pgx.Row) (*market.RFP, error) {
	var rfp market.RFP
	var category, status string
	err := row.Scan(
		&rfp.ID, &rfp.RequesterID, &category, &rfp.Description, &rfp.Requirements,
		&rfp.MaxBudget, &rfp.Deadline, &status, &rfp.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	rfp.Category = market.TaskCategory(category)
	rfp.Status = market.RFPStatus(status)
	return &rfp, nil
}

func (s *Store) GetRFP(ctx context.Context, id string) (*market.RFP, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+rfpColumns+` FROM rfps WHERE id = $1`, id)
	rfp, err := scanRFP(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("rfp %s: %w", id, market.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get rfp: %w", err)
	}
	return rfp, nil
}

func (s *Store) ListRFPs(ctx context.Context) ([]*market.RFP, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+rfpColumns+` FROM rfps ORDER BY created_at ASC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("list rfps: %w", err)
	}
	defer rows.Close()

	var out []*market.RFP
	for rows.Next() {
		rfp, err := scanRFP(rows)
		if err != nil {
			return nil, fmt.Errorf("scan rfp: %w", err)
		}
		out = append(out, rfp)
	}
	return out, rows.Err()
}

func (s *Store) SetRFPStatus(ctx context.Context, id string, status market.RFPStatus) error {
	tag, err := s.pool.Exec(ctx, `UPDATE rfps SET status = $2 WHERE id = $1`, id, string(status))
	if err != nil {
		return fmt.Errorf("set rfp status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("rfp %s: %w", id, market.ErrNotFound)
	}
	return nil
}

func (s *Store) InsertBid(ctx context.Context, bid *market.Bid) error {
	query := `
		INSERT INTO bids (
			id, rfp_id, bidder_id, bidder_name, price,
			estimated_completion_time_ms, capabilities_summary,
			reputation_score, metadata, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err := s.pool.Exec(ctx, query,
		bid.ID, bid.RFPID, bid.BidderID, bid.BidderName, bid.Price,
		bid.ETAms, bid.Capabilities, bid.Reputation, bid.Metadata, bid.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert bid: %w", err)
	}
	return nil
}

func (s *Store) ListBids(ctx context.Context, rfpID string) ([]*market.Bid, error) {
	query := `
		SELECT id, rfp_id, bidder_id, bidder_name, price,
		       estimated_completion_time_ms, capabilities_summary,
		       reputation_score, metadata, created_at
		FROM bids WHERE rfp_id = $1 ORDER BY seq ASC
	`
	rows, err := s.pool.Query(ctx, query, rfpID)
	if err != nil {
		return nil, fmt.Errorf("list bids: %w", err)
	}
	defer rows.Close()

	out := []*market.Bid{}
	for rows.Next() {
		var bid market.Bid
		err := rows.Scan(
			&bid.ID, &bid.RFPID, &bid.BidderID, &bid.BidderName, &bid.Price,
			&bid.ETAms, &bid.Capabilities, &bid.Reputation, &bid.Metadata, &bid.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan bid: %w", err)
		}
		out = append(out, &bid)
	}
	return out, rows.Err()
}

func (s *Store) CountBids(ctx context.Context) (int, error) {
	var n int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM bids`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count bids: %w", err)
	}
	return n, nil
}

// AssignWinner inserts the assignment and flips its RFP to accepted in one
// transaction, so a failure part-way through leaves neither row behind.
func (s *Store) AssignWinner(ctx context.Context, a *market.TaskAssignment) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("assign winner: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
		INSERT INTO assignments (
			id, rfp_id, winning_bid_id, requester_id, provider_id,
			agreed_price, task_description, payment_escrow, status,
			created_at, completed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	_, err = tx.Exec(ctx, query,
		a.ID, a.RFPID, a.WinningBidID, a.RequesterID, a.ProviderID,
		a.AgreedPrice, a.Description, a.EscrowRef, string(a.Status),
		a.CreatedAt, a.CompletedAt,
	)
	if err != nil {
		// rfp_id carries a UNIQUE constraint: one assignment per RFP, ever.
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return fmt.Errorf("rfp %s already assigned: %w", a.RFPID, market.ErrInvalidState)
		}
		return fmt.Errorf("insert assignment: %w", err)
	}

	tag, err := tx.Exec(ctx, `UPDATE rfps SET status = $2 WHERE id = $1`,
		a.RFPID, string(market.RFPStatusAccepted))
	if err != nil {
		return fmt.Errorf("accept rfp: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("rfp %s: %w", a.RFPID, market.ErrNotFound)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("assign winner: %w", err)
	}
	return nil
}

const assignmentColumns = `id, rfp_id, winning_bid_id, requester_id, provider_id,
		agreed_price, task_description, payment_escrow, status, created_at, completed_at`

func scanAssignment(row pgx.Row) (*market.TaskAssignment, error) {
	var a market.TaskAssignment
	var status string
	err := row.Scan(
		&a.ID, &a.RFPID, &a.WinningBidID, &a.RequesterID, &a.ProviderID,
		&a.AgreedPrice, &a.Description, &a.EscrowRef, &status, &a.CreatedAt, &a.CompletedAt,
	)
	if err != nil {
		return nil, err
	}
	a.Status = market.AssignmentStatus(status)
	return &a, nil
}

func (s *Store) GetAssignment(ctx context.Context, id string) (*market.TaskAssignment, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+assignmentColumns+` FROM assignments WHERE id = $1`, id)
	a, err := scanAssignment(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("assignment %s: %w", id, market.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get assignment: %w", err)
	}
	return a, nil
}

func (s *Store) AssignmentForRFP(ctx context.Context, rfpID string) (*market.TaskAssignment, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+assignmentColumns+` FROM assignments WHERE rfp_id = $1`, rfpID)
	a, err := scanAssignment(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("rfp %s has no assignment: %w", rfpID, market.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get assignment for rfp: %w", err)
	}
	return a, nil
}

func (s *Store) SetAssignmentStatus(ctx context.Context, id string, status market.AssignmentStatus, completedAt *time.Time) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE assignments SET status = $2, completed_at = COALESCE($3, completed_at) WHERE id = $1`,
		id, string(status), completedAt,
	)
	if err != nil {
		return fmt.Errorf("set assignment status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("assignment %s: %w", id, market.ErrNotFound)
	}
	return nil
}

func (s *Store) CountAssignments(ctx context.Context) (int, error) {
	var n int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM assignments`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count assignments: %w", err)
	}
	return n, nil
}

func (s *Store) InsertMessage(ctx context.Context, msg *market.NegotiationMessage) error {
	query := `
		INSERT INTO negotiation_messages (
			id, rfp_id, from_agent, to_agent, message_type, content, metadata, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := s.pool.Exec(ctx, query,
		msg.ID, msg.RFPID, msg.FromAgent, msg.ToAgent, msg.Type, msg.Content, msg.Metadata, msg.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert negotiation message: %w", err)
	}
	return nil
}

func (s *Store) ListMessages(ctx context.Context, rfpID string) ([]*market.NegotiationMessage, error) {
	query := `
		SELECT id, rfp_id, from_agent, to_agent, message_type, content, metadata, created_at
		FROM negotiation_messages WHERE rfp_id = $1 ORDER BY seq ASC
	`
	rows, err := s.pool.Query(ctx, query, rfpID)
	if err != nil {
		return nil, fmt.Errorf("list negotiation messages: %w", err)
	}
	defer rows.Close()

	out := []*market.NegotiationMessage{}
	for rows.Next() {
		var msg market.NegotiationMessage
		err := rows.Scan(
			&msg.ID, &msg.RFPID, &msg.FromAgent, &msg.ToAgent, &msg.Type,
			&msg.Content, &msg.Metadata, &msg.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan negotiation message: %w", err)
		}
		out = append(out, &msg)
	}
	return out, rows.Err()
}

func (s *Store) InsertRating(ctx context.Context, r *market.ProviderRating) error {
	query := `
		INSERT INTO provider_ratings (
			id, assignment_id, consumer_id, provider_id, rating,
			data_quality, response_time, value_for_price, review_text, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err := s.pool.Exec(ctx, query,
		r.ID, r.AssignmentID, r.ConsumerID, r.ProviderID, r.Rating,
		r.DataQuality, r.ResponseTime, r.ValueForPrice, r.ReviewText, r.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert rating: %w", err)
	}
	return nil
}

func (s *Store) ListRatings(ctx context.Context, providerID string) ([]*market.ProviderRating, error) {
	query := `
		SELECT id, assignment_id, consumer_id, provider_id, rating,
		       data_quality, response_time, value_for_price, review_text, created_at
		FROM provider_ratings WHERE provider_id = $1 ORDER BY seq ASC
	`
	rows, err := s.pool.Query(ctx, query, providerID)
	if err != nil {
		return nil, fmt.Errorf("list ratings: %w", err)
	}
	defer rows.Close()

	out := []*market.ProviderRating{}
	for rows.Next() {
		var r market.ProviderRating
		err := rows.Scan(
			&r.ID, &r.AssignmentID, &r.ConsumerID, &r.ProviderID, &r.Rating,
			&r.DataQuality, &r.ResponseTime, &r.ValueForPrice, &r.ReviewText, &r.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan rating: %w", err)
		}
		out = append(out, &r)
	}
	return out, rows.Err()
}

func (s *Store) UpsertReputation(ctx context.Context, rec *market.ReputationRecord) error {
	query := `
		INSERT INTO reputation_records (provider_id, total_ratings, average_rating, reputation_score)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (provider_id) DO UPDATE SET
			total_ratings = EXCLUDED.total_ratings,
			average_rating = EXCLUDED.average_rating,
			reputation_score = EXCLUDED.reputation_score
	`
	_, err := s.pool.Exec(ctx, query, rec.ProviderID, rec.TotalRatings, rec.AverageRating, rec.Score)
	if err != nil {
		return fmt.Errorf("upsert reputation: %w", err)
	}
	return nil
}

func (s *Store) GetReputation(ctx context.Context, providerID string) (*market.ReputationRecord, error) {
	query := `
		SELECT provider_id, total_ratings, average_rating, reputation_score
		FROM reputation_records WHERE provider_id = $1
	`
	var rec market.ReputationRecord
	err := s.pool.QueryRow(ctx, query, providerID).Scan(
		&rec.ProviderID, &rec.TotalRatings, &rec.AverageRating, &rec.Score,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("provider %s has no reputation record: %w", providerID, market.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get reputation: %w", err)
	}
	return &rec, nil
}

func (s *Store) SetSubscriptions(ctx context.Context, agentID string, categories []market.TaskCategory) error {
	cats := make([]string, len(categories))
	for i, c := range categories {
		cats[i] = string(c)
	}
	query := `
		INSERT INTO subscriptions (agent_id, task_types)
		VALUES ($1, $2)
		ON CONFLICT (agent_id) DO UPDATE SET task_types = EXCLUDED.task_types
	`
	if _, err := s.pool.Exec(ctx, query, agentID, cats); err != nil {
		return fmt.Errorf("set subscriptions: %w", err)
	}
	return nil
}

func (s *Store) Subscribers(ctx context.Context, category market.TaskCategory) ([]string, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT agent_id FROM subscriptions WHERE $1 = ANY(task_types)`, string(category))
	if err != nil {
		return nil, fmt.Errorf("list subscribers: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan subscriber: %w", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func (s *Store) CountSubscribedAgents(ctx context.Context) (int, error) {
	var n int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM subscriptions`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count subscribed agents: %w", err)
	}
	return n, nil
}
