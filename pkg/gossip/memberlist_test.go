package gossip

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPeerSet_UniqueInsertion(t *testing.T) {
	ps := NewPeerSet("a", "b")
	require.True(t, ps.Add("c"))
	require.False(t, ps.Add("a"), "duplicate must be rejected")
	require.Equal(t, []NodeID{"a", "b", "c"}, ps.Names())

	i, ok := ps.IndexOf("c")
	require.True(t, ok)
	require.Equal(t, 2, i)

	_, ok = ps.IndexOf("C")
	require.False(t, ok, "lookup is exact")
}

func TestPeerSet_ZeroValue(t *testing.T) {
	var ps PeerSet
	require.True(t, ps.Add("x"))
	require.Equal(t, 1, ps.Len())
	require.True(t, ps.Contains("x"))
}

func TestPeerSet_NamesIsCopy(t *testing.T) {
	ps := NewPeerSet("a")
	names := ps.Names()
	names[0] = "z"
	require.Equal(t, NodeID("a"), ps.Names()[0])
}

func TestLivenessTable_OneWay(t *testing.T) {
	ps := NewPeerSet("a", "b", "c")
	lt := NewLivenessTable(ps)
	now := time.Unix(100, 0)

	require.Equal(t, []bool{false, false, false}, lt.Flags())
	require.False(t, lt.AllConfirmed())

	require.True(t, lt.Confirm(1, now))
	require.False(t, lt.Confirm(1, now.Add(time.Second)), "second confirm is a no-op")
	require.Equal(t, 1, lt.ConfirmedCount())

	require.False(t, lt.Confirm(-1, now))
	require.False(t, lt.Confirm(3, now))

	lt.Confirm(0, now)
	lt.Confirm(2, now)
	require.True(t, lt.AllConfirmed())
	require.Equal(t, []bool{true, true, true}, lt.Flags())

	members := lt.Members()
	require.Len(t, members, 3)
	assert.Equal(t, 2, members[1].ID)
	assert.Equal(t, NodeID("b"), members[1].Name)
	assert.Equal(t, now, members[1].ConfirmedAt, "first confirmation time is kept")
}

func TestLivenessTable_Empty(t *testing.T) {
	lt := NewLivenessTable(NewPeerSet())
	require.True(t, lt.AllConfirmed())
	require.Empty(t, lt.Members())
}
