package hostfile

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"github.com/ryandielhenn/peerprobe/pkg/gossip"
)

func TestParse(t *testing.T) {
	in := "peer1\n\n  peer2  \r\npeer3\n\t\n"
	peers, dups, err := Parse(strings.NewReader(in))
	require.NoError(t, err)
	require.Empty(t, dups)
	require.Equal(t, []gossip.NodeID{"peer1", "peer2", "peer3"}, peers.Names())
}

func TestParse_NoTrailingNewline(t *testing.T) {
	peers, _, err := Parse(strings.NewReader("a\nb"))
	require.NoError(t, err)
	require.Equal(t, 2, peers.Len())
}

func TestParse_Duplicates(t *testing.T) {
	peers, dups, err := Parse(strings.NewReader("me\nother\nme\nother\n"))
	require.NoError(t, err)
	require.Equal(t, []gossip.NodeID{"me", "other"}, peers.Names())
	require.Equal(t, []string{"me", "other"}, dups)
}

func TestParse_Empty(t *testing.T) {
	_, _, err := Parse(strings.NewReader("\n  \n"))
	require.Equal(t, ErrNoPeers, errors.Cause(err))
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "hostsfile.txt")
	require.NoError(t, os.WriteFile(path, []byte("peer1\npeer2\n"), 0o644))

	peers, _, err := Load(path)
	require.NoError(t, err)
	require.True(t, peers.Contains("peer2"))

	_, _, err = Load(filepath.Join(dir, "missing.txt"))
	require.Error(t, err)
	require.True(t, os.IsNotExist(errors.Cause(err)))
}
