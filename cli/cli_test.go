package cli

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/meshkv/meshkv/internal/config"
	"github.com/meshkv/meshkv/key"
)

func TestParseKeyArgHexRoundTrips(t *testing.T) {
	var want key.Key
	for i := range want {
		want[i] = byte(i)
	}
	hex := ""
	for _, b := range want {
		hex += string("0123456789abcdef"[b>>4]) + string("0123456789abcdef"[b&0xf])
	}

	got := parseKeyArg(hex)
	require.Equal(t, want, got)
}

func TestParseKeyArgFallsBackToHashing(t *testing.T) {
	got := parseKeyArg("not-a-hex-key")
	require.Equal(t, key.FromBytes([]byte("not-a-hex-key")), got)
}

func TestRequestedGroupsDefaultsToConfiguredGroups(t *testing.T) {
	prev := rootArgs.groups
	defer func() { rootArgs.groups = prev }()
	rootArgs.groups = nil

	cfg := &config.Config{Nodes: []config.NodeConfig{
		{Address: "10.0.0.1:1025", Groups: []uint32{1, 2}},
		{Address: "10.0.0.2:1025", Groups: []uint32{2, 3}},
	}}
	groups := requestedGroups(cfg)
	require.ElementsMatch(t, []key.GroupID{1, 2, 3}, groups)
}

func TestRequestedGroupsHonorsExplicitFlag(t *testing.T) {
	prev := rootArgs.groups
	defer func() { rootArgs.groups = prev }()
	rootArgs.groups = []string{"5", "6"}

	cfg := &config.Config{Nodes: []config.NodeConfig{{Address: "10.0.0.1:1025", Groups: []uint32{1}}}}
	groups := requestedGroups(cfg)
	require.Equal(t, []key.GroupID{5, 6}, groups)
}
