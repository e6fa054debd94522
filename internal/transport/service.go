// Package transport exposes the negotiation engine's operation set over
// NATS request/reply. Handlers stay thin: decode, call the engine, map
// the error taxonomy onto wire codes. No business rules live here.
package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/thisissamridh/Mesh/internal/market"
	"github.com/thisissamridh/Mesh/internal/notify"
	"github.com/thisissamridh/Mesh/internal/payment"
	"github.com/thisissamridh/Mesh/internal/registry"
)

// Error codes carried on the wire
const (
	CodeNotFound     = "not_found"
	CodeInvalidState = "invalid_state"
	CodeValidation   = "validation"
	CodeBadRequest   = "bad_request"
	CodeInternal     = "internal"
)

// Reply is the envelope for every response
type Reply struct {
	OK    bool            `json:"ok"`
	Data  json.RawMessage `json:"data,omitempty"`
	Error *ReplyError     `json:"error,omitempty"`
}

// ReplyError carries a machine code plus a human message
type ReplyError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Service serves the marketplace API on NATS subjects under a prefix
// (default "mesh."), e.g. mesh.rfp.create, mesh.agents.register.
type Service struct {
	nc        *nats.Conn
	engine    *market.Engine
	directory *registry.Directory
	notifier  *notify.Notifier // optional
	payments  payment.Provider // optional
	prefix    string
	logger    zerolog.Logger
	subs      []*nats.Subscription
}

// Config configures the transport service
type Config struct {
	Prefix string // subject prefix, default "mesh."
}

// NewService creates the service; Start must be called to subscribe.
// Notifier and payments are optional; the matching operations degrade
// (no events posted, settle rejected) when they are absent.
func NewService(nc *nats.Conn, engine *market.Engine, directory *registry.Directory, notifier *notify.Notifier, payments payment.Provider, cfg Config, logger zerolog.Logger) *Service {
	prefix := cfg.Prefix
	if prefix == "" {
		prefix = "mesh."
	}
	return &Service{
		nc:        nc,
		engine:    engine,
		directory: directory,
		notifier:  notifier,
		payments:  payments,
		prefix:    prefix,
		logger:    logger,
	}
}

// handler decodes a request and produces a response payload
type handler func(ctx context.Context, data []byte) (any, error)

// Start subscribes every operation under the service prefix. Instances
// share the "registryd" queue group so deployments can scale reads.
func (s *Service) Start() error {
	ops := map[string]handler{
		"rfp.create":         s.handleCreateRFP,
		"rfp.get":            s.handleGetRFP,
		"rfp.list_open":      s.handleListOpenRFPs,
		"rfp.close":          s.handleCloseRFP,
		"rfp.cancel":         s.handleCancelRFP,
		"rfp.stats":          s.handleStats,
		"bid.submit":         s.handleSubmitBid,
		"bid.list":           s.handleListBids,
		"bid.evaluate":       s.handleEvaluateBids,
		"bid.select":         s.handleSelectWinner,
		"negotiation.send":   s.handleSendNegotiation,
		"negotiation.list":   s.handleListNegotiations,
		"assignment.get":     s.handleGetAssignment,
		"assignment.status":  s.handleAssignmentStatus,
		"assignment.settle":  s.handleSettleAssignment,
		"agents.register":    s.handleRegisterAgent,
		"agents.get":         s.handleGetAgent,
		"agents.list":        s.handleListAgents,
		"agents.unregister":  s.handleUnregisterAgent,
		"agents.set_status":  s.handleSetAgentStatus,
		"agents.transaction": s.handleRecordTransaction,
		"agents.subscribe":   s.handleSubscribe,
		"agents.rate":        s.handleRecordRating,
		"agents.reputation":  s.handleGetReputation,
		"agents.ratings":     s.handleGetRatings,
	}

	for op, h := range ops {
		subject := s.prefix + op
		sub, err := s.nc.QueueSubscribe(subject, "registryd", s.wrap(subject, h))
		if err != nil {
			return fmt.Errorf("subscribe %s: %w", subject, err)
		}
		s.subs = append(s.subs, sub)
	}

	s.logger.Info().
		Str("prefix", s.prefix).
		Int("operations", len(ops)).
		Msg("Transport service started")
	return nil
}

// Stop drains all subscriptions
func (s *Service) Stop() {
	for _, sub := range s.subs {
		if err := sub.Drain(); err != nil {
			s.logger.Warn().Err(err).Str("subject", sub.Subject).Msg("Failed to drain subscription")
		}
	}
}

func (s *Service) wrap(subject string, h handler) nats.MsgHandler {
	return func(msg *nats.Msg) {
		ctx := context.Background()

		data, err := h(ctx, msg.Data)
		if err != nil {
			s.respondError(msg, subject, err)
			return
		}

		payload, err := json.Marshal(data)
		if err != nil {
			s.respondError(msg, subject, fmt.Errorf("encode response: %w", err))
			return
		}
		s.respond(msg, subject, &Reply{OK: true, Data: payload})
	}
}

func (s *Service) respondError(msg *nats.Msg, subject string, err error) {
	code := CodeInternal
	switch {
	case errors.Is(err, market.ErrNotFound):
		code = CodeNotFound
	case errors.Is(err, market.ErrInvalidState):
		code = CodeInvalidState
	case errors.Is(err, market.ErrValidation):
		code = CodeValidation
	case errors.As(err, new(*json.SyntaxError)), errors.As(err, new(*json.UnmarshalTypeError)):
		code = CodeBadRequest
	}

	s.logger.Debug().Err(err).Str("subject", subject).Str("code", code).Msg("Request failed")
	s.respond(msg, subject, &Reply{OK: false, Error: &ReplyError{Code: code, Message: err.Error()}})
}

func (s *Service) respond(msg *nats.Msg, subject string, reply *Reply) {
	data, err := json.Marshal(reply)
	if err != nil {
		s.logger.Error().Err(err).Str("subject", subject).Msg("Failed to marshal reply")
		return
	}
	if err := msg.Respond(data); err != nil {
		s.logger.Warn().Err(err).Str("subject", subject).Msg("Failed to respond")
	}
}

func decode[T any](data []byte) (*T, error) {
	var req T
	if len(data) > 0 {
		if err := json.Unmarshal(data, &req); err != nil {
			return nil, fmt.Errorf("decode request: %w", err)
		}
	}
	return &req, nil
}
