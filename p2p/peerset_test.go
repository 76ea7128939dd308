package p2p

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPeerSet_RegisterIgnoresSelfAndDuplicates(t *testing.T) {
	ps := NewPeerSet("me:9000")
	require.False(t, ps.Register("me:9000"))
	require.False(t, ps.Register(""))

	require.True(t, ps.Register("peer:9001"))
	require.False(t, ps.Register("peer:9001"))
	require.Equal(t, 1, ps.Len())
}

func TestPeerSet_RegisterRespectsMaxPeers(t *testing.T) {
	ps := NewPeerSet("me:9000")
	for i := 0; i < MaxPeers; i++ {
		require.True(t, ps.Register(addrFor(i)))
	}
	require.Equal(t, MaxPeers, ps.Len())
	require.False(t, ps.Register("overflow:1"))
}

func addrFor(i int) string {
	return "peer" + string(rune('a'+i)) + ":9000"
}

func TestPeerSet_FailureAccounting(t *testing.T) {
	ps := NewPeerSet("me:9000")
	ps.Register("peer:9001")

	ps.RecordFailure("peer:9001")
	ps.RecordFailure("peer:9001")
	require.Equal(t, 2, ps.Failures("peer:9001"))

	ps.RecordSuccess("peer:9001")
	require.Equal(t, 0, ps.Failures("peer:9001"))
}

func TestPeerSet_BroadcastTargetsExcludesSenderAndOverFailurePeers(t *testing.T) {
	ps := NewPeerSet("me:9000")
	ps.Register("a:1")
	ps.Register("b:2")
	ps.Register("c:3")

	for i := 0; i < MaxFailures; i++ {
		ps.RecordFailure("c:3")
	}

	targets := ps.BroadcastTargets("a:1")
	require.ElementsMatch(t, []string{"b:2"}, targets)
}
