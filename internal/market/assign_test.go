package market

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSelectWinner(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	rfp := openRFP(t, e, TaskPriceData, 0.01)
	bid := submitBid(t, e, rfp.ID, "agent-provider", 0.005, nil, nil)

	assignment, err := e.SelectWinner(ctx, rfp.ID, bid.ID)
	require.NoError(t, err)

	assert.Regexp(t, `^assign_[0-9a-f]{8}$`, assignment.ID)
	assert.Equal(t, rfp.ID, assignment.RFPID)
	assert.Equal(t, bid.ID, assignment.WinningBidID)
	assert.Equal(t, rfp.RequesterID, assignment.RequesterID)
	assert.Equal(t, "agent-provider", assignment.ProviderID)
	assert.Equal(t, 0.005, assignment.AgreedPrice)
	assert.Equal(t, AssignmentAssigned, assignment.Status)
	assert.Nil(t, assignment.CompletedAt)

	got, err := e.GetRFP(ctx, rfp.ID)
	require.NoError(t, err)
	assert.Equal(t, RFPStatusAccepted, got.Status)
}

func TestSelectWinnerRequiresOpenRFP(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	rfp := openRFP(t, e, TaskPriceData, 0.01)
	bid := submitBid(t, e, rfp.ID, "agent-provider", 0.005, nil, nil)
	require.NoError(t, e.CloseRFP(ctx, rfp.ID))

	_, err := e.SelectWinner(ctx, rfp.ID, bid.ID)
	assert.ErrorIs(t, err, ErrInvalidState)

	_, err = e.GetAssignmentForRFP(ctx, rfp.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSelectWinnerUnknownBid(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	rfp := openRFP(t, e, TaskPriceData, 0.01)

	_, err := e.SelectWinner(ctx, rfp.ID, "bid_missing1")
	assert.ErrorIs(t, err, ErrNotFound)

	// The failed selection must not flip the RFP.
	got, err := e.GetRFP(ctx, rfp.ID)
	require.NoError(t, err)
	assert.Equal(t, RFPStatusOpen, got.Status)
}

func TestSelectWinnerConcurrent(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	rfp := openRFP(t, e, TaskPriceData, 0.01)
	bid := submitBid(t, e, rfp.ID, "agent-provider", 0.005, nil, nil)

	const n = 10
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = e.SelectWinner(ctx, rfp.ID, bid.ID)
		}(i)
	}
	wg.Wait()

	// Exactly one selection wins; the rest see the RFP already accepted.
	won := 0
	for _, err := range errs {
		if err == nil {
			won++
		} else {
			assert.True(t, errors.Is(err, ErrInvalidState))
		}
	}
	assert.Equal(t, 1, won)

	stats, err := e.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.TotalAssignments)
}

func TestUpdateAssignmentStatus(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	rfp := openRFP(t, e, TaskPriceData, 0.01)
	bid := submitBid(t, e, rfp.ID, "agent-provider", 0.005, nil, nil)
	assignment, err := e.SelectWinner(ctx, rfp.ID, bid.ID)
	require.NoError(t, err)

	a, err := e.UpdateAssignmentStatus(ctx, assignment.ID, AssignmentInProgress)
	require.NoError(t, err)
	assert.Equal(t, AssignmentInProgress, a.Status)

	a, err = e.UpdateAssignmentStatus(ctx, assignment.ID, AssignmentCompleted)
	require.NoError(t, err)
	assert.Equal(t, AssignmentCompleted, a.Status)
	require.NotNil(t, a.CompletedAt)

	// Completing the assignment completes the underlying RFP.
	got, err := e.GetRFP(ctx, rfp.ID)
	require.NoError(t, err)
	assert.Equal(t, RFPStatusCompleted, got.Status)

	// Terminal states reject further transitions.
	_, err = e.UpdateAssignmentStatus(ctx, assignment.ID, AssignmentFailed)
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestUpdateAssignmentStatusFailed(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	rfp := openRFP(t, e, TaskPriceData, 0.01)
	bid := submitBid(t, e, rfp.ID, "agent-provider", 0.005, nil, nil)
	assignment, err := e.SelectWinner(ctx, rfp.ID, bid.ID)
	require.NoError(t, err)

	a, err := e.UpdateAssignmentStatus(ctx, assignment.ID, AssignmentFailed)
	require.NoError(t, err)
	assert.Equal(t, AssignmentFailed, a.Status)
	assert.Nil(t, a.CompletedAt)

	// A failed assignment leaves the RFP accepted.
	got, err := e.GetRFP(ctx, rfp.ID)
	require.NoError(t, err)
	assert.Equal(t, RFPStatusAccepted, got.Status)
}

func TestGetAssignmentNotFound(t *testing.T) {
	e := newTestEngine(t)
	_, err := e.GetAssignment(context.Background(), "assign_missing")
	assert.ErrorIs(t, err, ErrNotFound)
}
