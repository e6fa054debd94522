package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thisissamridh/Mesh/internal/market"
)

func priceCapability(price float64) Capability {
	return Capability{
		Name:     "sol-usdc-price",
		Category: market.TaskPriceData,
		Price:    price,
	}
}

func TestRegister(t *testing.T) {
	d := NewDirectory()

	info, err := d.Register(Registration{
		AgentID:      "agent-provider",
		Name:         "Jupiter Price Provider",
		Endpoint:     "http://localhost:9001",
		Capabilities: []Capability{priceCapability(0.005)},
	})
	require.NoError(t, err)
	assert.Equal(t, StatusActive, info.Status)
	assert.False(t, info.RegisteredAt.IsZero())
	assert.Equal(t, 0, info.TotalTransactions)

	got, err := d.Get("agent-provider")
	require.NoError(t, err)
	assert.Equal(t, "Jupiter Price Provider", got.Name)
}

func TestRegisterValidation(t *testing.T) {
	d := NewDirectory()
	_, err := d.Register(Registration{Name: "nameless"})
	assert.ErrorIs(t, err, market.ErrValidation)
}

func TestReRegisterPreservesCounters(t *testing.T) {
	d := NewDirectory()

	first, err := d.Register(Registration{AgentID: "agent-provider", Name: "v1"})
	require.NoError(t, err)
	require.NoError(t, d.SetStatus("agent-provider", StatusMaintenance))
	_, err = d.RecordTransaction("agent-provider")
	require.NoError(t, err)

	second, err := d.Register(Registration{AgentID: "agent-provider", Name: "v2"})
	require.NoError(t, err)
	assert.Equal(t, "v2", second.Name)
	assert.Equal(t, StatusMaintenance, second.Status)
	assert.Equal(t, first.RegisteredAt, second.RegisteredAt)
	assert.Equal(t, 1, second.TotalTransactions)
}

func TestGetNotFound(t *testing.T) {
	d := NewDirectory()
	_, err := d.Get("agent-ghost")
	assert.ErrorIs(t, err, ErrAgentNotFound)
	assert.ErrorIs(t, err, market.ErrNotFound)
}

func TestList(t *testing.T) {
	d := NewDirectory()

	_, err := d.Register(Registration{
		AgentID:      "agent-cheap",
		Capabilities: []Capability{priceCapability(0.001)},
	})
	require.NoError(t, err)
	_, err = d.Register(Registration{
		AgentID:      "agent-pricey",
		Capabilities: []Capability{priceCapability(0.5)},
	})
	require.NoError(t, err)
	_, err = d.Register(Registration{
		AgentID: "agent-analytics",
		Capabilities: []Capability{{
			Name:     "wallet-analytics",
			Category: market.TaskAnalytics,
			Price:    0.01,
		}},
	})
	require.NoError(t, err)
	require.NoError(t, d.SetStatus("agent-pricey", StatusInactive))

	t.Run("all", func(t *testing.T) {
		assert.Len(t, d.List(Query{}), 3)
	})

	t.Run("by category", func(t *testing.T) {
		got := d.List(Query{Category: market.TaskPriceData})
		assert.Len(t, got, 2)
	})

	t.Run("by max price", func(t *testing.T) {
		max := 0.01
		got := d.List(Query{MaxPrice: &max})
		require.Len(t, got, 2)
		for _, info := range got {
			assert.NotEqual(t, "agent-pricey", info.AgentID)
		}
	})

	t.Run("by capability substring", func(t *testing.T) {
		got := d.List(Query{CapabilityName: "ANALYTICS"})
		require.Len(t, got, 1)
		assert.Equal(t, "agent-analytics", got[0].AgentID)
	})

	t.Run("by status", func(t *testing.T) {
		got := d.List(Query{Status: StatusInactive})
		require.Len(t, got, 1)
		assert.Equal(t, "agent-pricey", got[0].AgentID)
	})
}

func TestUnregister(t *testing.T) {
	d := NewDirectory()
	_, err := d.Register(Registration{AgentID: "agent-provider"})
	require.NoError(t, err)

	require.NoError(t, d.Unregister("agent-provider"))
	assert.False(t, d.KnownAgent("agent-provider"))
	assert.ErrorIs(t, d.Unregister("agent-provider"), ErrAgentNotFound)
}

func TestKnownAgentResolver(t *testing.T) {
	d := NewDirectory()
	var resolver market.AgentResolver = d

	assert.False(t, resolver.KnownAgent("agent-provider"))
	_, err := d.Register(Registration{AgentID: "agent-provider"})
	require.NoError(t, err)
	assert.True(t, resolver.KnownAgent("agent-provider"))
}

func TestRecordTransaction(t *testing.T) {
	d := NewDirectory()
	_, err := d.Register(Registration{AgentID: "agent-provider"})
	require.NoError(t, err)

	n, err := d.RecordTransaction("agent-provider")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	n, err = d.RecordTransaction("agent-provider")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	_, err = d.RecordTransaction("agent-ghost")
	assert.ErrorIs(t, err, ErrAgentNotFound)
}
