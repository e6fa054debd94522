package notify

import (
	"context"
	"encoding/json"

	"github.com/rs/zerolog"

	"github.com/thisissamridh/Mesh/internal/market"
)

// Notifier turns engine activity into board events, resolving recipients
// from the engine's subscription directory at publish time. Publishing is
// best-effort: a board failure is logged, never surfaced to the caller,
// since notifications are advisory.
type Notifier struct {
	board  *Board
	engine *market.Engine
	logger zerolog.Logger
}

// NewNotifier creates a notifier
func NewNotifier(board *Board, engine *market.Engine, logger zerolog.Logger) *Notifier {
	return &Notifier{board: board, engine: engine, logger: logger}
}

// RFPCreated announces a new open RFP to its category's subscribers
func (n *Notifier) RFPCreated(ctx context.Context, rfp *market.RFP) {
	recipients, err := n.engine.Subscribers(ctx, rfp.Category)
	if err != nil {
		n.logger.Warn().Err(err).Str("rfp_id", rfp.ID).Msg("Failed to resolve subscribers")
	}
	n.post(ctx, &Event{
		Kind:       EventRFPCreated,
		RFPID:      rfp.ID,
		Category:   string(rfp.Category),
		Recipients: recipients,
		Payload:    marshal(n.logger, rfp),
	})
}

// BidSubmitted announces a new bid to the RFP's requester side pollers
func (n *Notifier) BidSubmitted(ctx context.Context, rfp *market.RFP, bid *market.Bid) {
	n.post(ctx, &Event{
		Kind:     EventBidSubmitted,
		RFPID:    rfp.ID,
		Category: string(rfp.Category),
		Payload:  marshal(n.logger, bid),
	})
}

// WinnerSelected announces a completed selection
func (n *Notifier) WinnerSelected(ctx context.Context, rfp *market.RFP, a *market.TaskAssignment) {
	n.post(ctx, &Event{
		Kind:       EventWinnerSelected,
		RFPID:      rfp.ID,
		Category:   string(rfp.Category),
		Recipients: []string{a.ProviderID, a.RequesterID},
		Payload:    marshal(n.logger, a),
	})
}

// RFPClosed announces that an RFP left the Open state without a winner
func (n *Notifier) RFPClosed(ctx context.Context, rfp *market.RFP) {
	n.post(ctx, &Event{
		Kind:     EventRFPClosed,
		RFPID:    rfp.ID,
		Category: string(rfp.Category),
	})
}

func (n *Notifier) post(ctx context.Context, ev *Event) {
	if err := n.board.Post(ctx, ev); err != nil {
		n.logger.Warn().Err(err).Str("kind", string(ev.Kind)).Str("rfp_id", ev.RFPID).Msg("Failed to post board event")
	}
}

func marshal(logger zerolog.Logger, v any) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		logger.Warn().Err(err).Msg("Failed to marshal event payload")
		return nil
	}
	return data
}
