package market

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// TaskCategory represents the kind of work an RFP asks for
type TaskCategory string

const (
	TaskPriceData      TaskCategory = "price_data"
	TaskSwapSimulation TaskCategory = "swap_simulation"
	TaskSwapExecution  TaskCategory = "swap_execution"
	TaskAnalytics      TaskCategory = "analytics"
	TaskOracleData     TaskCategory = "oracle_data"
	TaskCustom         TaskCategory = "custom"
)

// Valid reports whether the category is one of the known task categories
func (c TaskCategory) Valid() bool {
	switch c {
	case TaskPriceData, TaskSwapSimulation, TaskSwapExecution,
		TaskAnalytics, TaskOracleData, TaskCustom:
		return true
	}
	return false
}

// RFPStatus represents the RFP lifecycle state
type RFPStatus string

const (
	RFPStatusOpen      RFPStatus = "open"
	RFPStatusClosed    RFPStatus = "closed"
	RFPStatusAccepted  RFPStatus = "accepted"
	RFPStatusCompleted RFPStatus = "completed"
	RFPStatusCancelled RFPStatus = "cancelled"
)

// canTransition reports whether an RFP may move from one status to another.
// Open fans out to Accepted/Closed/Cancelled, Accepted may complete,
// Completed and Cancelled are terminal.
func canTransition(from, to RFPStatus) bool {
	switch from {
	case RFPStatusOpen:
		return to == RFPStatusAccepted || to == RFPStatusClosed || to == RFPStatusCancelled
	case RFPStatusAccepted:
		return to == RFPStatusCompleted
	}
	return false
}

// AssignmentStatus represents the task assignment state
type AssignmentStatus string

const (
	AssignmentAssigned   AssignmentStatus = "assigned"
	AssignmentInProgress AssignmentStatus = "in_progress"
	AssignmentCompleted  AssignmentStatus = "completed"
	AssignmentFailed     AssignmentStatus = "failed"
)

// RFP is a request for proposal broadcast by an agent looking for a service
type RFP struct {
	ID           string         `json:"rfp_id"`
	RequesterID  string         `json:"requester_id"`
	Category     TaskCategory   `json:"task_type"`
	Description  string         `json:"task_description"`
	Requirements map[string]any `json:"requirements"`
	MaxBudget    *float64       `json:"max_budget,omitempty"`
	Deadline     *time.Time     `json:"deadline,omitempty"`
	Status       RFPStatus      `json:"status"`
	CreatedAt    time.Time      `json:"created_at"`
}

// Bid is a priced offer submitted against an open RFP. Immutable once created.
type Bid struct {
	ID           string         `json:"bid_id"`
	RFPID        string         `json:"rfp_id"`
	BidderID     string         `json:"bidder_id"`
	BidderName   string         `json:"bidder_name"`
	Price        float64        `json:"price"`
	ETAms        *int64         `json:"estimated_completion_time_ms,omitempty"`
	Capabilities string         `json:"capabilities_summary"`
	Reputation   *float64       `json:"reputation_score,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
}

// BidEvaluation is a derived score for one bid. Recomputed on demand; the
// assignment, not the evaluation, is the system of record for the decision.
type BidEvaluation struct {
	BidID           string  `json:"bid_id"`
	Score           float64 `json:"score"`
	PriceScore      float64 `json:"price_score"`
	SpeedScore      float64 `json:"speed_score"`
	ReputationScore float64 `json:"reputation_score"`
	Selected        bool    `json:"selected"`
}

// TaskAssignment is the binding record of which bid won an RFP
type TaskAssignment struct {
	ID           string           `json:"assignment_id"`
	RFPID        string           `json:"rfp_id"`
	WinningBidID string           `json:"winning_bid_id"`
	RequesterID  string           `json:"requester_id"`
	ProviderID   string           `json:"provider_id"`
	AgreedPrice  float64          `json:"agreed_price"`
	Description  string           `json:"task_description"`
	EscrowRef    *string          `json:"payment_escrow,omitempty"`
	Status       AssignmentStatus `json:"status"`
	CreatedAt    time.Time        `json:"created_at"`
	CompletedAt  *time.Time       `json:"completed_at,omitempty"`
}

// NegotiationMessage is a free-form agent-to-agent note scoped to an RFP
type NegotiationMessage struct {
	ID        string         `json:"message_id"`
	RFPID     string         `json:"rfp_id"`
	FromAgent string         `json:"from_agent"`
	ToAgent   string         `json:"to_agent"`
	Type      string         `json:"message_type"` // question, counter_offer, acceptance, rejection
	Content   string         `json:"content"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// ProviderRating is a consumer's post-task review of a provider.
// All four sub-scores are 1-5 stars. Immutable once created.
type ProviderRating struct {
	ID            string    `json:"rating_id"`
	AssignmentID  string    `json:"assignment_id"`
	ConsumerID    string    `json:"consumer_id"`
	ProviderID    string    `json:"provider_id"`
	Rating        float64   `json:"rating"`
	DataQuality   float64   `json:"data_quality"`
	ResponseTime  float64   `json:"response_time"`
	ValueForPrice float64   `json:"value_for_price"`
	ReviewText    *string   `json:"review_text,omitempty"`
	CreatedAt     time.Time `json:"timestamp"`
}

// ReputationRecord holds a provider's running rating aggregates. Created
// lazily on the first rating and updated on every one after that.
type ReputationRecord struct {
	ProviderID    string  `json:"provider_id"`
	TotalRatings  int     `json:"total_ratings"`
	AverageRating float64 `json:"average_rating"`
	// Score blends quality and volume 60/40, with the volume bonus
	// capped at 100 ratings: 0.6*(avg/5) + 0.4*min(count/100, 1).
	Score float64 `json:"reputation_score"`
}

// ReputationSummary is the full reputation view for a provider, including
// the per-sub-metric averages
type ReputationSummary struct {
	ProviderID    string  `json:"provider_id"`
	Score         float64 `json:"reputation_score"`
	TotalRatings  int     `json:"total_ratings"`
	AverageRating float64 `json:"average_rating"`
	Breakdown     struct {
		DataQuality   float64 `json:"data_quality"`
		ResponseTime  float64 `json:"response_time"`
		ValueForPrice float64 `json:"value_for_price"`
	} `json:"breakdown"`
}

// Stats summarizes marketplace activity
type Stats struct {
	TotalRFPs        int `json:"total_rfps"`
	OpenRFPs         int `json:"open_rfps"`
	TotalBids        int `json:"total_bids"`
	TotalAssignments int `json:"total_assignments"`
	ActiveAgents     int `json:"active_agents"`
}

// newID generates a short prefixed identifier, e.g. "rfp_1a2b3c4d"
func newID(prefix string) string {
	hex := strings.ReplaceAll(uuid.NewString(), "-", "")
	return prefix + "_" + hex[:8]
}
