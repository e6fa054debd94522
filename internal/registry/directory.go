// Package registry tracks the agents known to the marketplace: who they
// are, what they offer, and whether they are currently active. The
// negotiation engine consults it through the market.AgentResolver
// interface when ratings come in.
package registry

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/thisissamridh/Mesh/internal/market"
)

// AgentStatus represents an agent's availability
type AgentStatus string

const (
	StatusActive      AgentStatus = "active"
	StatusInactive    AgentStatus = "inactive"
	StatusMaintenance AgentStatus = "maintenance"
)

// Capability is one advertised service with its price
type Capability struct {
	Name        string              `json:"name"`
	Description string              `json:"description,omitempty"`
	Category    market.TaskCategory `json:"task_type"`
	Price       float64             `json:"price"`
}

// Registration is the payload an agent submits to join the directory
type Registration struct {
	AgentID      string       `json:"agent_id"`
	Name         string       `json:"name"`
	Description  string       `json:"description,omitempty"`
	Endpoint     string       `json:"endpoint,omitempty"`
	Wallet       string       `json:"wallet_address,omitempty"`
	Capabilities []Capability `json:"capabilities,omitempty"`
}

// AgentInfo is a registered agent. Counters and reputation survive
// re-registration.
type AgentInfo struct {
	Registration
	Status            AgentStatus `json:"status"`
	RegisteredAt      time.Time   `json:"registered_at"`
	LastSeen          time.Time   `json:"last_seen"`
	TotalTransactions int         `json:"total_transactions"`
}

// Query filters directory listings. Zero-value fields match everything.
type Query struct {
	Category       market.TaskCategory
	MaxPrice       *float64 // keep agents with at least one capability at or under this price
	CapabilityName string   // case-insensitive substring match
	Status         AgentStatus
}

// ErrAgentNotFound is returned for lookups of unregistered agents
var ErrAgentNotFound = fmt.Errorf("agent: %w", market.ErrNotFound)

// Directory is the in-memory agent registry
type Directory struct {
	mu     sync.RWMutex
	agents map[string]*AgentInfo
}

// NewDirectory creates an empty directory
func NewDirectory() *Directory {
	return &Directory{agents: make(map[string]*AgentInfo)}
}

// Register adds an agent or refreshes an existing registration. On
// re-registration the descriptive fields are replaced while status,
// registration time, and the transaction counter carry over.
func (d *Directory) Register(reg Registration) (*AgentInfo, error) {
	if reg.AgentID == "" {
		return nil, fmt.Errorf("agent id is required: %w", market.ErrValidation)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	now := time.Now().UTC()
	if existing, ok := d.agents[reg.AgentID]; ok {
		existing.Registration = reg
		existing.LastSeen = now
		cp := *existing
		return &cp, nil
	}

	info := &AgentInfo{
		Registration: reg,
		Status:       StatusActive,
		RegisteredAt: now,
		LastSeen:     now,
	}
	d.agents[reg.AgentID] = info
	cp := *info
	return &cp, nil
}

// Get returns a registered agent by id
func (d *Directory) Get(agentID string) (*AgentInfo, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	info, ok := d.agents[agentID]
	if !ok {
		return nil, fmt.Errorf("%s: %w", agentID, ErrAgentNotFound)
	}
	cp := *info
	return &cp, nil
}

// List returns agents matching the query
func (d *Directory) List(q Query) []*AgentInfo {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var out []*AgentInfo
	for _, info := range d.agents {
		if q.Status != "" && info.Status != q.Status {
			continue
		}
		if q.Category != "" && !hasCategory(info, q.Category) {
			continue
		}
		if q.MaxPrice != nil && !hasAffordableCapability(info, *q.MaxPrice) {
			continue
		}
		if q.CapabilityName != "" && !hasCapabilityNamed(info, q.CapabilityName) {
			continue
		}
		cp := *info
		out = append(out, &cp)
	}
	return out
}

// Unregister removes an agent
func (d *Directory) Unregister(agentID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.agents[agentID]; !ok {
		return fmt.Errorf("%s: %w", agentID, ErrAgentNotFound)
	}
	delete(d.agents, agentID)
	return nil
}

// SetStatus updates an agent's availability and refreshes last-seen
func (d *Directory) SetStatus(agentID string, status AgentStatus) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	info, ok := d.agents[agentID]
	if !ok {
		return fmt.Errorf("%s: %w", agentID, ErrAgentNotFound)
	}
	info.Status = status
	info.LastSeen = time.Now().UTC()
	return nil
}

// RecordTransaction bumps an agent's completed-transaction counter
func (d *Directory) RecordTransaction(agentID string) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	info, ok := d.agents[agentID]
	if !ok {
		return 0, fmt.Errorf("%s: %w", agentID, ErrAgentNotFound)
	}
	info.TotalTransactions++
	info.LastSeen = time.Now().UTC()
	return info.TotalTransactions, nil
}

// KnownAgent implements market.AgentResolver
func (d *Directory) KnownAgent(agentID string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.agents[agentID]
	return ok
}

func hasCategory(info *AgentInfo, category market.TaskCategory) bool {
	for _, cap := range info.Capabilities {
		if cap.Category == category {
			return true
		}
	}
	return false
}

func hasAffordableCapability(info *AgentInfo, maxPrice float64) bool {
	for _, cap := range info.Capabilities {
		if cap.Price <= maxPrice {
			return true
		}
	}
	return false
}

func hasCapabilityNamed(info *AgentInfo, name string) bool {
	for _, cap := range info.Capabilities {
		if strings.Contains(strings.ToLower(cap.Name), strings.ToLower(name)) {
			return true
		}
	}
	return false
}
