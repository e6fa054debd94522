package transport

import (
	"context"
	"fmt"

	"github.com/thisissamridh/Mesh/internal/market"
	"github.com/thisissamridh/Mesh/internal/registry"
)

// ---- RFP lifecycle ----

type createRFPRequest struct {
	RequesterID     string              `json:"requester_id"`
	TaskType        market.TaskCategory `json:"task_type"`
	TaskDescription string              `json:"task_description"`
	Requirements    map[string]any      `json:"requirements,omitempty"`
	MaxBudget       *float64            `json:"max_budget,omitempty"`
	DeadlineSeconds *int64              `json:"deadline_seconds,omitempty"`
}

func (s *Service) handleCreateRFP(ctx context.Context, data []byte) (any, error) {
	req, err := decode[createRFPRequest](data)
	if err != nil {
		return nil, err
	}
	rfp, err := s.engine.CreateRFP(ctx, market.CreateRFPParams{
		RequesterID:     req.RequesterID,
		Category:        req.TaskType,
		Description:     req.TaskDescription,
		Requirements:    req.Requirements,
		MaxBudget:       req.MaxBudget,
		DeadlineSeconds: req.DeadlineSeconds,
	})
	if err != nil {
		return nil, err
	}
	if s.notifier != nil {
		s.notifier.RFPCreated(ctx, rfp)
	}
	return rfp, nil
}

type rfpIDRequest struct {
	RFPID string `json:"rfp_id"`
}

func (s *Service) handleGetRFP(ctx context.Context, data []byte) (any, error) {
	req, err := decode[rfpIDRequest](data)
	if err != nil {
		return nil, err
	}
	return s.engine.GetRFP(ctx, req.RFPID)
}

type listOpenRFPsRequest struct {
	TaskType  *market.TaskCategory `json:"task_type,omitempty"`
	MaxBudget *float64             `json:"max_budget,omitempty"`
}

type listOpenRFPsResponse struct {
	RFPs  []*market.RFP `json:"rfps"`
	Count int           `json:"count"`
}

func (s *Service) handleListOpenRFPs(ctx context.Context, data []byte) (any, error) {
	req, err := decode[listOpenRFPsRequest](data)
	if err != nil {
		return nil, err
	}
	rfps, err := s.engine.ListOpenRFPs(ctx, req.TaskType, req.MaxBudget)
	if err != nil {
		return nil, err
	}
	return &listOpenRFPsResponse{RFPs: rfps, Count: len(rfps)}, nil
}

type okResponse struct {
	Success bool   `json:"success"`
	RFPID   string `json:"rfp_id,omitempty"`
}

func (s *Service) handleCloseRFP(ctx context.Context, data []byte) (any, error) {
	req, err := decode[rfpIDRequest](data)
	if err != nil {
		return nil, err
	}
	if err := s.engine.CloseRFP(ctx, req.RFPID); err != nil {
		return nil, err
	}
	if s.notifier != nil {
		if rfp, err := s.engine.GetRFP(ctx, req.RFPID); err == nil {
			s.notifier.RFPClosed(ctx, rfp)
		}
	}
	return &okResponse{Success: true, RFPID: req.RFPID}, nil
}

func (s *Service) handleCancelRFP(ctx context.Context, data []byte) (any, error) {
	req, err := decode[rfpIDRequest](data)
	if err != nil {
		return nil, err
	}
	if err := s.engine.CancelRFP(ctx, req.RFPID); err != nil {
		return nil, err
	}
	return &okResponse{Success: true, RFPID: req.RFPID}, nil
}

func (s *Service) handleStats(ctx context.Context, _ []byte) (any, error) {
	return s.engine.Stats(ctx)
}

// ---- Bidding ----

type submitBidRequest struct {
	RFPID        string         `json:"rfp_id"`
	BidderID     string         `json:"bidder_id"`
	BidderName   string         `json:"bidder_name"`
	Price        float64        `json:"price"`
	ETAms        *int64         `json:"estimated_completion_time_ms,omitempty"`
	Capabilities string         `json:"capabilities_summary"`
	Reputation   *float64       `json:"reputation_score,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

func (s *Service) handleSubmitBid(ctx context.Context, data []byte) (any, error) {
	req, err := decode[submitBidRequest](data)
	if err != nil {
		return nil, err
	}
	bid, err := s.engine.SubmitBid(ctx, market.SubmitBidParams{
		RFPID:        req.RFPID,
		BidderID:     req.BidderID,
		BidderName:   req.BidderName,
		Price:        req.Price,
		ETAms:        req.ETAms,
		Capabilities: req.Capabilities,
		Reputation:   req.Reputation,
		Metadata:     req.Metadata,
	})
	if err != nil {
		return nil, err
	}
	if s.notifier != nil {
		if rfp, err := s.engine.GetRFP(ctx, req.RFPID); err == nil {
			s.notifier.BidSubmitted(ctx, rfp, bid)
		}
	}
	return bid, nil
}

func (s *Service) handleListBids(ctx context.Context, data []byte) (any, error) {
	req, err := decode[rfpIDRequest](data)
	if err != nil {
		return nil, err
	}
	return s.engine.GetBids(ctx, req.RFPID)
}

type evaluateBidsRequest struct {
	RFPID            string   `json:"rfp_id"`
	PriceWeight      *float64 `json:"price_weight,omitempty"`
	SpeedWeight      *float64 `json:"speed_weight,omitempty"`
	ReputationWeight *float64 `json:"reputation_weight,omitempty"`
}

func (s *Service) handleEvaluateBids(ctx context.Context, data []byte) (any, error) {
	req, err := decode[evaluateBidsRequest](data)
	if err != nil {
		return nil, err
	}
	// Stock 0.4/0.3/0.3 split when the caller omits weights.
	price, speed, reputation := 0.4, 0.3, 0.3
	if req.PriceWeight != nil {
		price = *req.PriceWeight
	}
	if req.SpeedWeight != nil {
		speed = *req.SpeedWeight
	}
	if req.ReputationWeight != nil {
		reputation = *req.ReputationWeight
	}
	return s.engine.EvaluateBids(ctx, req.RFPID, price, speed, reputation)
}

type selectWinnerRequest struct {
	RFPID string `json:"rfp_id"`
	BidID string `json:"bid_id"`
}

func (s *Service) handleSelectWinner(ctx context.Context, data []byte) (any, error) {
	req, err := decode[selectWinnerRequest](data)
	if err != nil {
		return nil, err
	}
	assignment, err := s.engine.SelectWinner(ctx, req.RFPID, req.BidID)
	if err != nil {
		return nil, err
	}
	if s.notifier != nil {
		if rfp, err := s.engine.GetRFP(ctx, req.RFPID); err == nil {
			s.notifier.WinnerSelected(ctx, rfp, assignment)
		}
	}
	return assignment, nil
}

// ---- Negotiation ----

type sendNegotiationRequest struct {
	RFPID       string         `json:"rfp_id"`
	FromAgent   string         `json:"from_agent"`
	ToAgent     string         `json:"to_agent"`
	MessageType string         `json:"message_type"`
	Content     string         `json:"content"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

func (s *Service) handleSendNegotiation(ctx context.Context, data []byte) (any, error) {
	req, err := decode[sendNegotiationRequest](data)
	if err != nil {
		return nil, err
	}
	return s.engine.SendNegotiation(ctx, req.RFPID, req.FromAgent, req.ToAgent, req.MessageType, req.Content, req.Metadata)
}

func (s *Service) handleListNegotiations(ctx context.Context, data []byte) (any, error) {
	req, err := decode[rfpIDRequest](data)
	if err != nil {
		return nil, err
	}
	return s.engine.GetNegotiations(ctx, req.RFPID)
}

// ---- Assignments ----

type assignmentIDRequest struct {
	AssignmentID string `json:"assignment_id"`
}

func (s *Service) handleGetAssignment(ctx context.Context, data []byte) (any, error) {
	req, err := decode[assignmentIDRequest](data)
	if err != nil {
		return nil, err
	}
	return s.engine.GetAssignment(ctx, req.AssignmentID)
}

type assignmentStatusRequest struct {
	AssignmentID string                  `json:"assignment_id"`
	Status       market.AssignmentStatus `json:"status"`
}

func (s *Service) handleAssignmentStatus(ctx context.Context, data []byte) (any, error) {
	req, err := decode[assignmentStatusRequest](data)
	if err != nil {
		return nil, err
	}
	return s.engine.UpdateAssignmentStatus(ctx, req.AssignmentID, req.Status)
}

type settleAssignmentRequest struct {
	AssignmentID string `json:"assignment_id"`
}

type settleAssignmentResponse struct {
	Assignment  *market.TaskAssignment `json:"assignment"`
	Transaction string                 `json:"transaction,omitempty"`
	Success     bool                   `json:"success"`
	Error       string                 `json:"error,omitempty"`
}

// handleSettleAssignment pays the provider through the external
// facilitator, then marks the assignment (and its RFP) completed and
// bumps the provider's transaction counter. The engine itself never
// touches money; this handler is the seam between the two.
func (s *Service) handleSettleAssignment(ctx context.Context, data []byte) (any, error) {
	req, err := decode[settleAssignmentRequest](data)
	if err != nil {
		return nil, err
	}
	if s.payments == nil {
		return nil, fmt.Errorf("no settlement provider configured: %w", market.ErrInvalidState)
	}

	assignment, err := s.engine.GetAssignment(ctx, req.AssignmentID)
	if err != nil {
		return nil, err
	}
	provider, err := s.directory.Get(assignment.ProviderID)
	if err != nil {
		return nil, err
	}

	settlement, err := s.payments.Settle(ctx, provider.Endpoint, assignment.AgreedPrice, assignment.ID)
	if err != nil {
		return nil, fmt.Errorf("settle assignment %s: %w", assignment.ID, err)
	}
	if !settlement.Success {
		return &settleAssignmentResponse{Assignment: assignment, Success: false, Error: settlement.Error}, nil
	}

	updated, err := s.engine.UpdateAssignmentStatus(ctx, assignment.ID, market.AssignmentCompleted)
	if err != nil {
		return nil, err
	}
	if _, err := s.directory.RecordTransaction(assignment.ProviderID); err != nil {
		s.logger.Warn().Err(err).Str("provider_id", assignment.ProviderID).Msg("Failed to bump transaction counter")
	}
	return &settleAssignmentResponse{
		Assignment:  updated,
		Transaction: settlement.Transaction,
		Success:     true,
	}, nil
}

// ---- Agent directory ----

func (s *Service) handleRegisterAgent(_ context.Context, data []byte) (any, error) {
	req, err := decode[registry.Registration](data)
	if err != nil {
		return nil, err
	}
	return s.directory.Register(*req)
}

type agentIDRequest struct {
	AgentID string `json:"agent_id"`
}

func (s *Service) handleGetAgent(_ context.Context, data []byte) (any, error) {
	req, err := decode[agentIDRequest](data)
	if err != nil {
		return nil, err
	}
	return s.directory.Get(req.AgentID)
}

type listAgentsRequest struct {
	TaskType       market.TaskCategory  `json:"task_type,omitempty"`
	MaxPrice       *float64             `json:"max_price,omitempty"`
	CapabilityName string               `json:"capability_name,omitempty"`
	Status         registry.AgentStatus `json:"status,omitempty"`
}

type listAgentsResponse struct {
	Agents []*registry.AgentInfo `json:"agents"`
	Count  int                   `json:"count"`
}

func (s *Service) handleListAgents(_ context.Context, data []byte) (any, error) {
	req, err := decode[listAgentsRequest](data)
	if err != nil {
		return nil, err
	}
	agents := s.directory.List(registry.Query{
		Category:       req.TaskType,
		MaxPrice:       req.MaxPrice,
		CapabilityName: req.CapabilityName,
		Status:         req.Status,
	})
	return &listAgentsResponse{Agents: agents, Count: len(agents)}, nil
}

func (s *Service) handleUnregisterAgent(_ context.Context, data []byte) (any, error) {
	req, err := decode[agentIDRequest](data)
	if err != nil {
		return nil, err
	}
	if err := s.directory.Unregister(req.AgentID); err != nil {
		return nil, err
	}
	return &okResponse{Success: true}, nil
}

type setAgentStatusRequest struct {
	AgentID string               `json:"agent_id"`
	Status  registry.AgentStatus `json:"status"`
}

func (s *Service) handleSetAgentStatus(_ context.Context, data []byte) (any, error) {
	req, err := decode[setAgentStatusRequest](data)
	if err != nil {
		return nil, err
	}
	if err := s.directory.SetStatus(req.AgentID, req.Status); err != nil {
		return nil, err
	}
	return &okResponse{Success: true}, nil
}

type transactionResponse struct {
	AgentID           string `json:"agent_id"`
	TotalTransactions int    `json:"total_transactions"`
}

func (s *Service) handleRecordTransaction(_ context.Context, data []byte) (any, error) {
	req, err := decode[agentIDRequest](data)
	if err != nil {
		return nil, err
	}
	total, err := s.directory.RecordTransaction(req.AgentID)
	if err != nil {
		return nil, err
	}
	return &transactionResponse{AgentID: req.AgentID, TotalTransactions: total}, nil
}

// ---- Subscriptions ----

type subscribeRequest struct {
	AgentID   string                `json:"agent_id"`
	TaskTypes []market.TaskCategory `json:"task_types"`
}

func (s *Service) handleSubscribe(ctx context.Context, data []byte) (any, error) {
	req, err := decode[subscribeRequest](data)
	if err != nil {
		return nil, err
	}
	if err := s.engine.Subscribe(ctx, req.AgentID, req.TaskTypes); err != nil {
		return nil, err
	}
	return &okResponse{Success: true}, nil
}

// ---- Ratings & reputation ----

type recordRatingRequest struct {
	ProviderID    string  `json:"provider_id"`
	AssignmentID  string  `json:"assignment_id"`
	ConsumerID    string  `json:"consumer_id"`
	Rating        float64 `json:"rating"`
	DataQuality   float64 `json:"data_quality"`
	ResponseTime  float64 `json:"response_time"`
	ValueForPrice float64 `json:"value_for_price"`
	ReviewText    *string `json:"review_text,omitempty"`
}

func (s *Service) handleRecordRating(ctx context.Context, data []byte) (any, error) {
	req, err := decode[recordRatingRequest](data)
	if err != nil {
		return nil, err
	}
	return s.engine.RecordRating(ctx, market.RecordRatingParams{
		ProviderID:    req.ProviderID,
		AssignmentID:  req.AssignmentID,
		ConsumerID:    req.ConsumerID,
		Rating:        req.Rating,
		DataQuality:   req.DataQuality,
		ResponseTime:  req.ResponseTime,
		ValueForPrice: req.ValueForPrice,
		ReviewText:    req.ReviewText,
	})
}

type providerIDRequest struct {
	ProviderID string `json:"provider_id"`
	Limit      int    `json:"limit,omitempty"`
}

func (s *Service) handleGetReputation(ctx context.Context, data []byte) (any, error) {
	req, err := decode[providerIDRequest](data)
	if err != nil {
		return nil, err
	}
	return s.engine.GetReputation(ctx, req.ProviderID)
}

type ratingsResponse struct {
	ProviderID    string                   `json:"provider_id"`
	TotalRatings  int                      `json:"total_ratings"`
	RecentRatings []*market.ProviderRating `json:"recent_ratings"`
}

func (s *Service) handleGetRatings(ctx context.Context, data []byte) (any, error) {
	req, err := decode[providerIDRequest](data)
	if err != nil {
		return nil, err
	}
	ratings, err := s.engine.GetRatings(ctx, req.ProviderID, req.Limit)
	if err != nil {
		return nil, err
	}
	summary, err := s.engine.GetReputation(ctx, req.ProviderID)
	if err != nil {
		return nil, err
	}
	return &ratingsResponse{
		ProviderID:    req.ProviderID,
		TotalRatings:  summary.TotalRatings,
		RecentRatings: ratings,
	}, nil
}
