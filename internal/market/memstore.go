package market

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MemStore is the in-memory Store implementation. All collections live
// behind one RWMutex; getters hand out copies so callers never observe a
// partial write through an aliased pointer.
type MemStore struct {
	mu sync.RWMutex

	rfps     map[string]*RFP
	rfpOrder []string

	bids map[string][]*Bid // rfp id -> bids in insertion order

	assignments map[string]*TaskAssignment
	byRFP       map[string]string // rfp id -> assignment id

	messages map[string][]*NegotiationMessage // rfp id -> messages

	ratings     map[string][]*ProviderRating // provider id -> ratings
	reputations map[string]*ReputationRecord

	subscriptions map[string][]TaskCategory // agent id -> categories
}

// NewMemStore creates an empty in-memory store
func NewMemStore() *MemStore {
	return &MemStore{
		rfps:          make(map[string]*RFP),
		bids:          make(map[string][]*Bid),
		assignments:   make(map[string]*TaskAssignment),
		byRFP:         make(map[string]string),
		messages:      make(map[string][]*NegotiationMessage),
		ratings:       make(map[string][]*ProviderRating),
		reputations:   make(map[string]*ReputationRecord),
		subscriptions: make(map[string][]TaskCategory),
	}
}

func (s *MemStore) InsertRFP(_ context.Context, rfp *RFP) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.rfps[rfp.ID]; exists {
		return fmt.Errorf("rfp %s already exists", rfp.ID)
	}
	cp := *rfp
	s.rfps[rfp.ID] = &cp
	s.rfpOrder = append(s.rfpOrder, rfp.ID)
	return nil
}

func (s *MemStore) GetRFP(_ context.Context, id string) (*RFP, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rfp, ok := s.rfps[id]
	if !ok {
		return nil, fmt.Errorf("rfp %s: %w", id, ErrNotFound)
	}
	cp := *rfp
	return &cp, nil
}

func (s *MemStore) ListRFPs(_ context.Context) ([]*RFP, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*RFP, 0, len(s.rfpOrder))
	for _, id := range s.rfpOrder {
		cp := *s.rfps[id]
		out = append(out, &cp)
	}
	return out, nil
}

func (s *MemStore) SetRFPStatus(_ context.Context, id string, status RFPStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rfp, ok := s.rfps[id]
	if !ok {
		return fmt.Errorf("rfp %s: %w", id, ErrNotFound)
	}
	rfp.Status = status
	return nil
}

func (s *MemStore) InsertBid(_ context.Context, bid *Bid) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *bid
	s.bids[bid.RFPID] = append(s.bids[bid.RFPID], &cp)
	return nil
}

func (s *MemStore) ListBids(_ context.Context, rfpID string) ([]*Bid, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	bids := s.bids[rfpID]
	out := make([]*Bid, 0, len(bids))
	for _, b := range bids {
		cp := *b
		out = append(out, &cp)
	}
	return out, nil
}

func (s *MemStore) CountBids(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	total := 0
	for _, bids := range s.bids {
		total += len(bids)
	}
	return total, nil
}

func (s *MemStore) AssignWinner(_ context.Context, a *TaskAssignment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.byRFP[a.RFPID]; ok {
		return fmt.Errorf("rfp %s already assigned to %s: %w", a.RFPID, existing, ErrInvalidState)
	}
	rfp, ok := s.rfps[a.RFPID]
	if !ok {
		return fmt.Errorf("rfp %s: %w", a.RFPID, ErrNotFound)
	}
	cp := *a
	s.assignments[a.ID] = &cp
	s.byRFP[a.RFPID] = a.ID
	rfp.Status = RFPStatusAccepted
	return nil
}

func (s *MemStore) GetAssignment(_ context.Context, id string) (*TaskAssignment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.assignments[id]
	if !ok {
		return nil, fmt.Errorf("assignment %s: %w", id, ErrNotFound)
	}
	cp := *a
	return &cp, nil
}

func (s *MemStore) AssignmentForRFP(_ context.Context, rfpID string) (*TaskAssignment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byRFP[rfpID]
	if !ok {
		return nil, fmt.Errorf("rfp %s has no assignment: %w", rfpID, ErrNotFound)
	}
	cp := *s.assignments[id]
	return &cp, nil
}

func (s *MemStore) SetAssignmentStatus(_ context.Context, id string, status AssignmentStatus, completedAt *time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.assignments[id]
	if !ok {
		return fmt.Errorf("assignment %s: %w", id, ErrNotFound)
	}
	a.Status = status
	if completedAt != nil {
		t := *completedAt
		a.CompletedAt = &t
	}
	return nil
}

func (s *MemStore) CountAssignments(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.assignments), nil
}

func (s *MemStore) InsertMessage(_ context.Context, msg *NegotiationMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *msg
	s.messages[msg.RFPID] = append(s.messages[msg.RFPID], &cp)
	return nil
}

func (s *MemStore) ListMessages(_ context.Context, rfpID string) ([]*NegotiationMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	msgs := s.messages[rfpID]
	out := make([]*NegotiationMessage, 0, len(msgs))
	for _, m := range msgs {
		cp := *m
		out = append(out, &cp)
	}
	return out, nil
}

func (s *MemStore) InsertRating(_ context.Context, r *ProviderRating) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *r
	s.ratings[r.ProviderID] = append(s.ratings[r.ProviderID], &cp)
	return nil
}

func (s *MemStore) ListRatings(_ context.Context, providerID string) ([]*ProviderRating, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ratings := s.ratings[providerID]
	out := make([]*ProviderRating, 0, len(ratings))
	for _, r := range ratings {
		cp := *r
		out = append(out, &cp)
	}
	return out, nil
}

func (s *MemStore) UpsertReputation(_ context.Context, rec *ReputationRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *rec
	s.reputations[rec.ProviderID] = &cp
	return nil
}

func (s *MemStore) GetReputation(_ context.Context, providerID string) (*ReputationRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.reputations[providerID]
	if !ok {
		return nil, fmt.Errorf("provider %s has no reputation record: %w", providerID, ErrNotFound)
	}
	cp := *rec
	return &cp, nil
}

func (s *MemStore) SetSubscriptions(_ context.Context, agentID string, categories []TaskCategory) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.subscriptions[agentID] = append([]TaskCategory(nil), categories...)
	return nil
}

func (s *MemStore) Subscribers(_ context.Context, category TaskCategory) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []string
	for agentID, categories := range s.subscriptions {
		for _, c := range categories {
			if c == category {
				out = append(out, agentID)
				break
			}
		}
	}
	return out, nil
}

func (s *MemStore) CountSubscribedAgents(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.subscriptions), nil
}
