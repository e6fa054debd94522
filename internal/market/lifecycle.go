package market

import (
	"context"
	"fmt"
	"time"
)

// CreateRFPParams are the caller-supplied fields for a new RFP.
// Requirements is opaque to the engine: stored and echoed, never
// interpreted.
type CreateRFPParams struct {
	RequesterID     string
	Category        TaskCategory
	Description     string
	Requirements    map[string]any
	MaxBudget       *float64
	DeadlineSeconds *int64
}

// CreateRFP creates a new RFP in Open status. A relative deadline is
// converted to an absolute timestamp once, here.
func (e *Engine) CreateRFP(ctx context.Context, p CreateRFPParams) (*RFP, error) {
	if p.RequesterID == "" {
		return nil, fmt.Errorf("requester id is required: %w", ErrValidation)
	}
	if !p.Category.Valid() {
		return nil, fmt.Errorf("unknown task category %q: %w", p.Category, ErrValidation)
	}
	if p.MaxBudget != nil && *p.MaxBudget < 0 {
		return nil, fmt.Errorf("max budget must be non-negative: %w", ErrValidation)
	}
	if p.DeadlineSeconds != nil && *p.DeadlineSeconds < 0 {
		return nil, fmt.Errorf("deadline seconds must be non-negative: %w", ErrValidation)
	}

	now := time.Now().UTC()
	var deadline *time.Time
	if p.DeadlineSeconds != nil {
		d := now.Add(time.Duration(*p.DeadlineSeconds) * time.Second)
		deadline = &d
	}

	requirements := p.Requirements
	if requirements == nil {
		requirements = map[string]any{}
	}

	rfp := &RFP{
		ID:           newID("rfp"),
		RequesterID:  p.RequesterID,
		Category:     p.Category,
		Description:  p.Description,
		Requirements: requirements,
		MaxBudget:    p.MaxBudget,
		Deadline:     deadline,
		Status:       RFPStatusOpen,
		CreatedAt:    now,
	}

	if err := e.store.InsertRFP(ctx, rfp); err != nil {
		return nil, fmt.Errorf("create rfp: %w", err)
	}
	return rfp, nil
}

// GetRFP returns the RFP with the given id
func (e *Engine) GetRFP(ctx context.Context, id string) (*RFP, error) {
	return e.store.GetRFP(ctx, id)
}

// ListOpenRFPs returns RFPs currently in Open status, in creation order.
// An optional category filter keeps one category; an optional budget
// filter keeps RFPs whose declared budget is at most the filter value
// (cheap asks first semantics, deliberately).
func (e *Engine) ListOpenRFPs(ctx context.Context, category *TaskCategory, maxBudget *float64) ([]*RFP, error) {
	rfps, err := e.store.ListRFPs(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]*RFP, 0, len(rfps))
	for _, rfp := range rfps {
		if rfp.Status != RFPStatusOpen {
			continue
		}
		if category != nil && rfp.Category != *category {
			continue
		}
		if maxBudget != nil && (rfp.MaxBudget == nil || *rfp.MaxBudget > *maxBudget) {
			continue
		}
		out = append(out, rfp)
	}
	return out, nil
}

// CloseRFP moves an Open RFP to Closed without selecting a winner
func (e *Engine) CloseRFP(ctx context.Context, id string) error {
	return e.transitionRFP(ctx, id, RFPStatusClosed)
}

// CancelRFP moves an Open RFP to Cancelled
func (e *Engine) CancelRFP(ctx context.Context, id string) error {
	return e.transitionRFP(ctx, id, RFPStatusCancelled)
}

// transitionRFP applies a status transition under the RFP's lock,
// enforcing the lifecycle graph
func (e *Engine) transitionRFP(ctx context.Context, id string, to RFPStatus) error {
	unlock := e.rfpLocks.lock(id)
	defer unlock()

	rfp, err := e.store.GetRFP(ctx, id)
	if err != nil {
		return err
	}
	if !canTransition(rfp.Status, to) {
		return fmt.Errorf("rfp %s is %s, cannot become %s: %w", id, rfp.Status, to, ErrInvalidState)
	}
	return e.store.SetRFPStatus(ctx, id, to)
}
