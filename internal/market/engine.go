package market

import (
	"context"
	"sync"
)

// AgentResolver answers whether a provider id belongs to a registered
// agent. Implemented by the registry directory; the engine only needs the
// lookup, not the whole registry surface.
type AgentResolver interface {
	KnownAgent(id string) bool
}

// Engine is the RFP negotiation engine: RFP lifecycle, bid intake,
// scoring, winner selection, negotiation messages, ratings, and
// subscriptions. It owns no transport and does no logging; it returns
// structured errors for the caller to surface.
type Engine struct {
	store  Store
	agents AgentResolver

	// rfpLocks serializes read-modify-write sections per RFP id
	// (bid intake against status, winner selection). providerLocks does
	// the same per provider id for rating aggregation.
	rfpLocks      keyedMutex
	providerLocks keyedMutex
}

// NewEngine creates an engine on top of the given store. The resolver
// backs the rating precondition that a rated provider is a registered
// agent.
func NewEngine(store Store, agents AgentResolver) *Engine {
	return &Engine{
		store:  store,
		agents: agents,
	}
}

// Stats returns marketplace activity totals
func (e *Engine) Stats(ctx context.Context) (*Stats, error) {
	rfps, err := e.store.ListRFPs(ctx)
	if err != nil {
		return nil, err
	}
	open := 0
	for _, rfp := range rfps {
		if rfp.Status == RFPStatusOpen {
			open++
		}
	}

	bids, err := e.store.CountBids(ctx)
	if err != nil {
		return nil, err
	}
	assignments, err := e.store.CountAssignments(ctx)
	if err != nil {
		return nil, err
	}
	agents, err := e.store.CountSubscribedAgents(ctx)
	if err != nil {
		return nil, err
	}

	return &Stats{
		TotalRFPs:        len(rfps),
		OpenRFPs:         open,
		TotalBids:        bids,
		TotalAssignments: assignments,
		ActiveAgents:     agents,
	}, nil
}

// keyedMutex hands out one mutex per key, created on first use. Entries
// are never reaped; the key space (RFP and provider ids) is small and
// retained for audit anyway.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// lock acquires the mutex for key and returns its unlock func
func (k *keyedMutex) lock(key string) func() {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[string]*sync.Mutex)
	}
	m, ok := k.locks[key]
	if !ok {
		m = &sync.Mutex{}
		k.locks[key] = m
	}
	k.mu.Unlock()

	m.Lock()
	return m.Unlock
}
