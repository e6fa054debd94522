package market

import (
	"context"
	"fmt"
	"time"
)

// SubmitBidParams are the caller-supplied fields for a new bid
type SubmitBidParams struct {
	RFPID        string
	BidderID     string
	BidderName   string
	Price        float64
	ETAms        *int64
	Capabilities string
	// Reputation is the bidder's reputation snapshot at submission time.
	// It stays fixed on the bid; later ratings only affect future bids.
	Reputation *float64
	Metadata   map[string]any
}

// SubmitBid appends a bid to an Open RFP. The status check and the append
// run under the RFP's lock so a concurrent winner selection cannot slip a
// bid into a closed RFP. A bidder may bid more than once on the same RFP;
// the bids coexist.
func (e *Engine) SubmitBid(ctx context.Context, p SubmitBidParams) (*Bid, error) {
	if p.BidderID == "" {
		return nil, fmt.Errorf("bidder id is required: %w", ErrValidation)
	}
	if p.Price < 0 {
		return nil, fmt.Errorf("price must be non-negative: %w", ErrValidation)
	}
	if p.ETAms != nil && *p.ETAms < 0 {
		return nil, fmt.Errorf("estimated completion time must be non-negative: %w", ErrValidation)
	}
	if p.Reputation != nil && (*p.Reputation < 0 || *p.Reputation > 1) {
		return nil, fmt.Errorf("reputation snapshot must be in [0,1]: %w", ErrValidation)
	}

	unlock := e.rfpLocks.lock(p.RFPID)
	defer unlock()

	rfp, err := e.store.GetRFP(ctx, p.RFPID)
	if err != nil {
		return nil, err
	}
	if rfp.Status != RFPStatusOpen {
		return nil, fmt.Errorf("rfp %s is not open for bids: %w", p.RFPID, ErrInvalidState)
	}

	bid := &Bid{
		ID:           newID("bid"),
		RFPID:        p.RFPID,
		BidderID:     p.BidderID,
		BidderName:   p.BidderName,
		Price:        p.Price,
		ETAms:        p.ETAms,
		Capabilities: p.Capabilities,
		Reputation:   p.Reputation,
		Metadata:     p.Metadata,
		CreatedAt:    time.Now().UTC(),
	}

	if err := e.store.InsertBid(ctx, bid); err != nil {
		return nil, fmt.Errorf("submit bid: %w", err)
	}
	return bid, nil
}

// GetBids returns all bids for an RFP in insertion order. An unknown RFP
// yields an empty list, not an error; pollers read "nothing here yet".
func (e *Engine) GetBids(ctx context.Context, rfpID string) ([]*Bid, error) {
	return e.store.ListBids(ctx, rfpID)
}
