// Package payment is the client for the external settlement facilitator.
// The negotiation engine never imports it; the daemon settles an
// assignment through this client and then reports completion back to the
// engine. Pay-and-get-receipt is treated as atomic here; retries, if
// any, belong to the caller.
package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"
)

// Settlement is the facilitator's answer to a settle request
type Settlement struct {
	Success     bool            `json:"success"`
	Transaction string          `json:"transaction,omitempty"` // opaque receipt reference
	Network     string          `json:"network,omitempty"`
	Payload     json.RawMessage `json:"payload,omitempty"` // delivered task output, if any
	Error       string          `json:"error,omitempty"`
}

// settleRequest is the wire form of a settlement call
type settleRequest struct {
	ProviderEndpoint string  `json:"provider_endpoint"`
	Amount           float64 `json:"amount"`
	AssignmentID     string  `json:"assignment_id"`
}

// Provider settles marketplace payments
type Provider interface {
	Settle(ctx context.Context, providerEndpoint string, amount float64, assignmentID string) (*Settlement, error)
}

// ClientConfig configures the facilitator client
type ClientConfig struct {
	FacilitatorURL string
	Timeout        time.Duration
	RatePerSecond  float64 // outbound request rate limit; 0 disables
}

// Client talks to the settlement facilitator over HTTP, behind a circuit
// breaker and a client-side rate limit
type Client struct {
	baseURL string
	http    *http.Client
	breaker *gobreaker.CircuitBreaker
	limiter *rate.Limiter
	logger  zerolog.Logger
	metrics *breakerMetrics
}

// NewClient creates a facilitator client
func NewClient(cfg ClientConfig, logger zerolog.Logger) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}

	var limiter *rate.Limiter
	if cfg.RatePerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSecond), 1)
	}

	metrics := getBreakerMetrics()
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "facilitator",
		MaxRequests: facilitatorHalfOpenMaxReqs,
		Interval:    facilitatorCountInterval,
		Timeout:     facilitatorOpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= facilitatorMinRequests && failureRatio >= facilitatorFailureRatio
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			metrics.recordState(name, to)
			logger.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Circuit breaker state changed")
		},
	})

	return &Client{
		baseURL: cfg.FacilitatorURL,
		http:    &http.Client{Timeout: cfg.Timeout},
		breaker: breaker,
		limiter: limiter,
		logger:  logger,
		metrics: metrics,
	}
}

// Settle pays a provider and returns the facilitator's receipt. A
// facilitator-reported failure (success=false) is returned as a
// Settlement, not an error; only transport and protocol problems error
// out and count against the breaker.
func (c *Client) Settle(ctx context.Context, providerEndpoint string, amount float64, assignmentID string) (*Settlement, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limit wait: %w", err)
		}
	}

	result, err := c.breaker.Execute(func() (interface{}, error) {
		return c.settle(ctx, settleRequest{
			ProviderEndpoint: providerEndpoint,
			Amount:           amount,
			AssignmentID:     assignmentID,
		})
	})
	if err != nil {
		c.metrics.recordRequest("facilitator", false)
		return nil, err
	}
	c.metrics.recordRequest("facilitator", true)
	return result.(*Settlement), nil
}

func (c *Client) settle(ctx context.Context, req settleRequest) (*Settlement, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal settle request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/settle", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build settle request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("settle request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read settle response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("facilitator returned %d: %s", resp.StatusCode, data)
	}

	var settlement Settlement
	if err := json.Unmarshal(data, &settlement); err != nil {
		return nil, fmt.Errorf("decode settle response: %w", err)
	}

	c.logger.Info().
		Bool("success", settlement.Success).
		Str("transaction", settlement.Transaction).
		Str("assignment_id", req.AssignmentID).
		Msg("Settlement response")

	return &settlement, nil
}
