package market

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemStoreReturnsCopies(t *testing.T) {
	s := NewMemStore()
	ctx := context.Background()

	rfp := &RFP{ID: "rfp_aaaa0001", RequesterID: "a", Category: TaskPriceData, Status: RFPStatusOpen, CreatedAt: time.Now()}
	require.NoError(t, s.InsertRFP(ctx, rfp))

	got, err := s.GetRFP(ctx, "rfp_aaaa0001")
	require.NoError(t, err)
	got.Status = RFPStatusCancelled

	// Mutating the returned value must not leak into the store.
	again, err := s.GetRFP(ctx, "rfp_aaaa0001")
	require.NoError(t, err)
	assert.Equal(t, RFPStatusOpen, again.Status)
}

func TestMemStoreOneAssignmentPerRFP(t *testing.T) {
	s := NewMemStore()
	ctx := context.Background()

	require.NoError(t, s.InsertRFP(ctx, &RFP{ID: "rfp_aaaa0001", Status: RFPStatusOpen}))

	first := &TaskAssignment{ID: "assign_aaaa01", RFPID: "rfp_aaaa0001", Status: AssignmentAssigned}
	require.NoError(t, s.AssignWinner(ctx, first))

	second := &TaskAssignment{ID: "assign_aaaa02", RFPID: "rfp_aaaa0001", Status: AssignmentAssigned}
	assert.ErrorIs(t, s.AssignWinner(ctx, second), ErrInvalidState)

	got, err := s.AssignmentForRFP(ctx, "rfp_aaaa0001")
	require.NoError(t, err)
	assert.Equal(t, "assign_aaaa01", got.ID)
}

func TestMemStoreAssignWinnerAcceptsRFP(t *testing.T) {
	s := NewMemStore()
	ctx := context.Background()

	require.NoError(t, s.InsertRFP(ctx, &RFP{ID: "rfp_aaaa0001", Status: RFPStatusOpen}))

	a := &TaskAssignment{ID: "assign_aaaa01", RFPID: "rfp_aaaa0001", Status: AssignmentAssigned}
	require.NoError(t, s.AssignWinner(ctx, a))

	rfp, err := s.GetRFP(ctx, "rfp_aaaa0001")
	require.NoError(t, err)
	assert.Equal(t, RFPStatusAccepted, rfp.Status)

	// An unknown RFP is rejected outright, nothing is recorded.
	orphan := &TaskAssignment{ID: "assign_aaaa02", RFPID: "rfp_bbbb0001", Status: AssignmentAssigned}
	assert.ErrorIs(t, s.AssignWinner(ctx, orphan), ErrNotFound)
	_, err = s.AssignmentForRFP(ctx, "rfp_bbbb0001")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemStoreListRFPsPreservesInsertionOrder(t *testing.T) {
	s := NewMemStore()
	ctx := context.Background()

	ids := []string{"rfp_aaaa0003", "rfp_aaaa0001", "rfp_aaaa0002"}
	for _, id := range ids {
		require.NoError(t, s.InsertRFP(ctx, &RFP{ID: id, Status: RFPStatusOpen}))
	}

	rfps, err := s.ListRFPs(ctx)
	require.NoError(t, err)
	require.Len(t, rfps, 3)
	for i, id := range ids {
		assert.Equal(t, id, rfps[i].ID)
	}
}

// The in-memory store satisfies the same contract as the postgres backend.
var _ Store = (*MemStore)(nil)
