package market

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// allAgents resolves every id as a registered agent
type allAgents struct{}

func (allAgents) KnownAgent(string) bool { return true }

// noAgents resolves nothing
type noAgents struct{}

func (noAgents) KnownAgent(string) bool { return false }

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	return NewEngine(NewMemStore(), allAgents{})
}

func openRFP(t *testing.T, e *Engine, category TaskCategory, budget float64) *RFP {
	t.Helper()
	rfp, err := e.CreateRFP(context.Background(), CreateRFPParams{
		RequesterID: "agent-consumer",
		Category:    category,
		Description: "SOL/USDC spot price",
		MaxBudget:   &budget,
	})
	require.NoError(t, err)
	require.Equal(t, RFPStatusOpen, rfp.Status)
	return rfp
}

func i64(v int64) *int64               { return &v }
func f64(v float64) *float64           { return &v }
func cat(c TaskCategory) *TaskCategory { return &c }

func TestStats(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	rfp := openRFP(t, e, TaskPriceData, 0.01)
	openRFP(t, e, TaskAnalytics, 0.05)

	bid, err := e.SubmitBid(ctx, SubmitBidParams{RFPID: rfp.ID, BidderID: "agent-provider", Price: 0.005})
	require.NoError(t, err)
	_, err = e.SelectWinner(ctx, rfp.ID, bid.ID)
	require.NoError(t, err)
	require.NoError(t, e.Subscribe(ctx, "agent-provider", []TaskCategory{TaskPriceData}))

	stats, err := e.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.TotalRFPs)
	assert.Equal(t, 1, stats.OpenRFPs)
	assert.Equal(t, 1, stats.TotalBids)
	assert.Equal(t, 1, stats.TotalAssignments)
	assert.Equal(t, 1, stats.ActiveAgents)
}

func TestKeyedMutexSerializesPerKey(t *testing.T) {
	var km keyedMutex
	var mu sync.Mutex
	counter := 0

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := km.lock("shared")
			defer unlock()
			mu.Lock()
			counter++
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 50, counter)
}
