package market

import (
	"context"
	"fmt"
	"time"
)

// SendNegotiation appends a message to an RFP's negotiation log. Pure
// append: neither the agents nor the RFP are validated, matching the
// discovery endpoints' permissive read semantics.
func (e *Engine) SendNegotiation(ctx context.Context, rfpID, fromAgent, toAgent, messageType, content string, metadata map[string]any) (*NegotiationMessage, error) {
	msg := &NegotiationMessage{
		ID:        newID("msg"),
		RFPID:     rfpID,
		FromAgent: fromAgent,
		ToAgent:   toAgent,
		Type:      messageType,
		Content:   content,
		Metadata:  metadata,
		CreatedAt: time.Now().UTC(),
	}

	if err := e.store.InsertMessage(ctx, msg); err != nil {
		return nil, fmt.Errorf("send negotiation message: %w", err)
	}
	return msg, nil
}

// GetNegotiations returns an RFP's negotiation messages in insertion
// order; an unknown RFP yields an empty list
func (e *Engine) GetNegotiations(ctx context.Context, rfpID string) ([]*NegotiationMessage, error) {
	return e.store.ListMessages(ctx, rfpID)
}
