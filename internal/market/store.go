package market

import (
	"context"
	"time"
)

// Store is the persistence boundary for the negotiation engine. The engine
// is handed a Store at construction time and never reaches for globals, so
// a persistent backend can be swapped in behind this interface (see
// internal/store/postgres).
//
// Individual operations are atomic. Read-modify-write sequences that span
// several calls (bid intake, rating aggregation) are serialized by the
// engine's per-key locks, not by the store.
type Store interface {
	// RFPs. ListRFPs returns RFPs in creation order. RFPs are never deleted.
	InsertRFP(ctx context.Context, rfp *RFP) error
	GetRFP(ctx context.Context, id string) (*RFP, error)
	ListRFPs(ctx context.Context) ([]*RFP, error)
	SetRFPStatus(ctx context.Context, id string, status RFPStatus) error

	// Bids. ListBids returns bids in insertion order; an unknown RFP id
	// yields an empty slice, not an error.
	InsertBid(ctx context.Context, bid *Bid) error
	ListBids(ctx context.Context, rfpID string) ([]*Bid, error)
	CountBids(ctx context.Context) (int, error)

	// Assignments. At most one assignment ever references a given RFP.
	// AssignWinner records the assignment and moves its RFP to Accepted in
	// one atomic step, so a mid-sequence failure cannot strand an
	// assignment against a still-open RFP.
	AssignWinner(ctx context.Context, a *TaskAssignment) error
	GetAssignment(ctx context.Context, id string) (*TaskAssignment, error)
	AssignmentForRFP(ctx context.Context, rfpID string) (*TaskAssignment, error)
	SetAssignmentStatus(ctx context.Context, id string, status AssignmentStatus, completedAt *time.Time) error
	CountAssignments(ctx context.Context) (int, error)

	// Negotiation messages, append-only per RFP.
	InsertMessage(ctx context.Context, msg *NegotiationMessage) error
	ListMessages(ctx context.Context, rfpID string) ([]*NegotiationMessage, error)

	// Ratings and reputation aggregates.
	InsertRating(ctx context.Context, r *ProviderRating) error
	ListRatings(ctx context.Context, providerID string) ([]*ProviderRating, error)
	UpsertReputation(ctx context.Context, rec *ReputationRecord) error
	GetReputation(ctx context.Context, providerID string) (*ReputationRecord, error)

	// Subscriptions. SetSubscriptions replaces the agent's whole set.
	SetSubscriptions(ctx context.Context, agentID string, categories []TaskCategory) error
	Subscribers(ctx context.Context, category TaskCategory) ([]string, error)
	CountSubscribedAgents(ctx context.Context) (int, error)
}
