package payment

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFacilitator(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

func TestSettle(t *testing.T) {
	var got settleRequest
	srv := newFacilitator(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/settle", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		json.NewEncoder(w).Encode(Settlement{
			Success:     true,
			Transaction: "5xY...receipt",
			Network:     "solana-devnet",
		})
	})

	c := NewClient(ClientConfig{FacilitatorURL: srv.URL}, zerolog.Nop())
	settlement, err := c.Settle(context.Background(), "http://provider:9001", 0.005, "assign_aaaa0001")
	require.NoError(t, err)

	assert.True(t, settlement.Success)
	assert.Equal(t, "5xY...receipt", settlement.Transaction)
	assert.Equal(t, "http://provider:9001", got.ProviderEndpoint)
	assert.Equal(t, 0.005, got.Amount)
	assert.Equal(t, "assign_aaaa0001", got.AssignmentID)
}

func TestSettleFacilitatorFailureIsNotAnError(t *testing.T) {
	srv := newFacilitator(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(Settlement{Success: false, Error: "insufficient funds"})
	})

	c := NewClient(ClientConfig{FacilitatorURL: srv.URL}, zerolog.Nop())
	settlement, err := c.Settle(context.Background(), "http://provider:9001", 0.005, "assign_aaaa0001")
	require.NoError(t, err)
	assert.False(t, settlement.Success)
	assert.Equal(t, "insufficient funds", settlement.Error)
}

func TestSettleHTTPError(t *testing.T) {
	srv := newFacilitator(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})

	c := NewClient(ClientConfig{FacilitatorURL: srv.URL}, zerolog.Nop())
	_, err := c.Settle(context.Background(), "http://provider:9001", 0.005, "assign_aaaa0001")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "500")
}

func TestSettleBreakerOpensAfterRepeatedFailures(t *testing.T) {
	srv := newFacilitator(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusServiceUnavailable)
	})

	c := NewClient(ClientConfig{FacilitatorURL: srv.URL}, zerolog.Nop())
	ctx := context.Background()

	// Enough consecutive failures to cross the trip threshold.
	for i := 0; i < int(facilitatorMinRequests); i++ {
		_, err := c.Settle(ctx, "http://provider:9001", 0.005, "assign_aaaa0001")
		require.Error(t, err)
	}

	_, err := c.Settle(ctx, "http://provider:9001", 0.005, "assign_aaaa0001")
	require.Error(t, err)
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
}

func TestSettleRateLimiterHonorsContext(t *testing.T) {
	srv := newFacilitator(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(Settlement{Success: true})
	})

	// One request per hundred seconds: the first consumes the burst, the
	// second must wait and should bail out on the cancelled context.
	c := NewClient(ClientConfig{FacilitatorURL: srv.URL, RatePerSecond: 0.01}, zerolog.Nop())

	_, err := c.Settle(context.Background(), "http://provider:9001", 0.005, "assign_aaaa0001")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = c.Settle(ctx, "http://provider:9001", 0.005, "assign_aaaa0002")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}
