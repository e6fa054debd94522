package market

import (
	"context"
	"fmt"
	"time"
)

// SelectWinner accepts a bid and creates the binding task assignment. The
// RFP must still be Open; a second selection on the same RFP therefore
// fails with ErrInvalidState. Provider id and price are snapshotted from
// the bid at this instant. The assignment insert and the status flip are
// one store operation, and the whole selection runs under the RFP's lock,
// so concurrent selections or bid submissions on the same RFP cannot
// interleave.
func (e *Engine) SelectWinner(ctx context.Context, rfpID, bidID string) (*TaskAssignment, error) {
	unlock := e.rfpLocks.lock(rfpID)
	defer unlock()

	rfp, err := e.store.GetRFP(ctx, rfpID)
	if err != nil {
		return nil, err
	}
	if rfp.Status != RFPStatusOpen {
		return nil, fmt.Errorf("rfp %s is %s, winner can only be selected while open: %w", rfpID, rfp.Status, ErrInvalidState)
	}

	bids, err := e.store.ListBids(ctx, rfpID)
	if err != nil {
		return nil, err
	}
	var winner *Bid
	for _, b := range bids {
		if b.ID == bidID {
			winner = b
			break
		}
	}
	if winner == nil {
		return nil, fmt.Errorf("bid %s: %w", bidID, ErrNotFound)
	}

	assignment := &TaskAssignment{
		ID:           newID("assign"),
		RFPID:        rfpID,
		WinningBidID: winner.ID,
		RequesterID:  rfp.RequesterID,
		ProviderID:   winner.BidderID,
		AgreedPrice:  winner.Price,
		Description:  rfp.Description,
		Status:       AssignmentAssigned,
		CreatedAt:    time.Now().UTC(),
	}

	if err := e.store.AssignWinner(ctx, assignment); err != nil {
		return nil, fmt.Errorf("select winner: %w", err)
	}
	return assignment, nil
}

// GetAssignment returns an assignment by id
func (e *Engine) GetAssignment(ctx context.Context, id string) (*TaskAssignment, error) {
	return e.store.GetAssignment(ctx, id)
}

// GetAssignmentForRFP returns the single assignment referencing an RFP,
// or ErrNotFound if no winner has been selected
func (e *Engine) GetAssignmentForRFP(ctx context.Context, rfpID string) (*TaskAssignment, error) {
	return e.store.AssignmentForRFP(ctx, rfpID)
}

// assignmentTransitions is the allowed assignment status graph
var assignmentTransitions = map[AssignmentStatus][]AssignmentStatus{
	AssignmentAssigned:   {AssignmentInProgress, AssignmentCompleted, AssignmentFailed},
	AssignmentInProgress: {AssignmentCompleted, AssignmentFailed},
}

// UpdateAssignmentStatus advances an assignment through
// assigned -> in_progress -> completed/failed. Completing the assignment
// stamps CompletedAt and moves the underlying RFP to Completed.
func (e *Engine) UpdateAssignmentStatus(ctx context.Context, id string, status AssignmentStatus) (*TaskAssignment, error) {
	a, err := e.store.GetAssignment(ctx, id)
	if err != nil {
		return nil, err
	}

	unlock := e.rfpLocks.lock(a.RFPID)
	defer unlock()

	// Re-read under the lock; a concurrent update may have advanced it.
	a, err = e.store.GetAssignment(ctx, id)
	if err != nil {
		return nil, err
	}

	allowed := false
	for _, next := range assignmentTransitions[a.Status] {
		if next == status {
			allowed = true
			break
		}
	}
	if !allowed {
		return nil, fmt.Errorf("assignment %s is %s, cannot become %s: %w", id, a.Status, status, ErrInvalidState)
	}

	var completedAt *time.Time
	if status == AssignmentCompleted {
		now := time.Now().UTC()
		completedAt = &now
	}
	if err := e.store.SetAssignmentStatus(ctx, id, status, completedAt); err != nil {
		return nil, err
	}
	if status == AssignmentCompleted {
		if err := e.store.SetRFPStatus(ctx, a.RFPID, RFPStatusCompleted); err != nil {
			return nil, err
		}
	}
	return e.store.GetAssignment(ctx, id)
}
