package market

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateRFP(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	deadline := int64(3600)
	rfp, err := e.CreateRFP(ctx, CreateRFPParams{
		RequesterID:     "agent-consumer",
		Category:        TaskPriceData,
		Description:     "SOL/USDC spot price",
		Requirements:    map[string]any{"pair": "SOL/USDC"},
		MaxBudget:       f64(0.01),
		DeadlineSeconds: &deadline,
	})
	require.NoError(t, err)

	assert.Regexp(t, `^rfp_[0-9a-f]{8}$`, rfp.ID)
	assert.Equal(t, RFPStatusOpen, rfp.Status)
	assert.Equal(t, "agent-consumer", rfp.RequesterID)
	require.NotNil(t, rfp.Deadline)
	assert.True(t, rfp.Deadline.After(rfp.CreatedAt))

	got, err := e.GetRFP(ctx, rfp.ID)
	require.NoError(t, err)
	assert.Equal(t, rfp.ID, got.ID)
	assert.Equal(t, "SOL/USDC", got.Requirements["pair"])
}

func TestCreateRFPValidation(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	tests := []struct {
		name   string
		params CreateRFPParams
	}{
		{
			name:   "missing requester",
			params: CreateRFPParams{Category: TaskPriceData},
		},
		{
			name:   "unknown category",
			params: CreateRFPParams{RequesterID: "a", Category: TaskCategory("juggling")},
		},
		{
			name:   "negative budget",
			params: CreateRFPParams{RequesterID: "a", Category: TaskPriceData, MaxBudget: f64(-1)},
		},
		{
			name:   "negative deadline",
			params: CreateRFPParams{RequesterID: "a", Category: TaskPriceData, DeadlineSeconds: i64(-5)},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.CreateRFP(ctx, tt.params)
			assert.ErrorIs(t, err, ErrValidation)
		})
	}
}

func TestGetRFPNotFound(t *testing.T) {
	e := newTestEngine(t)
	_, err := e.GetRFP(context.Background(), "rfp_missing1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRFPTransitions(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	t.Run("close open rfp", func(t *testing.T) {
		rfp := openRFP(t, e, TaskPriceData, 0.01)
		require.NoError(t, e.CloseRFP(ctx, rfp.ID))

		got, err := e.GetRFP(ctx, rfp.ID)
		require.NoError(t, err)
		assert.Equal(t, RFPStatusClosed, got.Status)
	})

	t.Run("cancel open rfp", func(t *testing.T) {
		rfp := openRFP(t, e, TaskPriceData, 0.01)
		require.NoError(t, e.CancelRFP(ctx, rfp.ID))

		got, err := e.GetRFP(ctx, rfp.ID)
		require.NoError(t, err)
		assert.Equal(t, RFPStatusCancelled, got.Status)
	})

	t.Run("closed rfp cannot be cancelled", func(t *testing.T) {
		rfp := openRFP(t, e, TaskPriceData, 0.01)
		require.NoError(t, e.CloseRFP(ctx, rfp.ID))
		assert.ErrorIs(t, e.CancelRFP(ctx, rfp.ID), ErrInvalidState)
	})

	t.Run("double close fails", func(t *testing.T) {
		rfp := openRFP(t, e, TaskPriceData, 0.01)
		require.NoError(t, e.CloseRFP(ctx, rfp.ID))
		assert.ErrorIs(t, e.CloseRFP(ctx, rfp.ID), ErrInvalidState)
	})

	t.Run("unknown rfp", func(t *testing.T) {
		assert.ErrorIs(t, e.CloseRFP(ctx, "rfp_missing1"), ErrNotFound)
	})
}

func TestListOpenRFPs(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	cheap := openRFP(t, e, TaskPriceData, 0.01)
	pricey := openRFP(t, e, TaskPriceData, 5.0)
	analytics := openRFP(t, e, TaskAnalytics, 0.02)
	closed := openRFP(t, e, TaskPriceData, 0.01)
	require.NoError(t, e.CloseRFP(ctx, closed.ID))

	t.Run("no filters returns all open in creation order", func(t *testing.T) {
		rfps, err := e.ListOpenRFPs(ctx, nil, nil)
		require.NoError(t, err)
		require.Len(t, rfps, 3)
		assert.Equal(t, cheap.ID, rfps[0].ID)
		assert.Equal(t, pricey.ID, rfps[1].ID)
		assert.Equal(t, analytics.ID, rfps[2].ID)
	})

	t.Run("category filter", func(t *testing.T) {
		rfps, err := e.ListOpenRFPs(ctx, cat(TaskAnalytics), nil)
		require.NoError(t, err)
		require.Len(t, rfps, 1)
		assert.Equal(t, analytics.ID, rfps[0].ID)
	})

	// The budget filter keeps RFPs whose declared budget is at most the
	// filter value, so a high filter matches everything and a low filter
	// matches only the cheap asks.
	t.Run("budget filter keeps cheap asks", func(t *testing.T) {
		rfps, err := e.ListOpenRFPs(ctx, nil, f64(0.05))
		require.NoError(t, err)
		require.Len(t, rfps, 2)
		assert.Equal(t, cheap.ID, rfps[0].ID)
		assert.Equal(t, analytics.ID, rfps[1].ID)
	})

	t.Run("budget filter excludes undeclared budgets", func(t *testing.T) {
		noBudget, err := e.CreateRFP(ctx, CreateRFPParams{RequesterID: "a", Category: TaskCustom})
		require.NoError(t, err)

		rfps, err := e.ListOpenRFPs(ctx, nil, f64(100))
		require.NoError(t, err)
		for _, rfp := range rfps {
			assert.NotEqual(t, noBudget.ID, rfp.ID)
		}
	})
}
