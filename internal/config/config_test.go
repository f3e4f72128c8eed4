package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseConfigBytesAppliesDefaults(t *testing.T) {
	c, err := ParseConfigBytes([]byte(`
nodes:
  - address: "10.0.0.1:1025"
    groups: [1, 2]
`))
	require.NoError(t, err)
	require.Len(t, c.Nodes, 1)
	require.Equal(t, "10.0.0.1:1025", c.Nodes[0].Address)
	require.EqualValues(t, []uint32{1, 2}, c.Nodes[0].Groups)
	require.EqualValues(t, 5, c.Client.TimeoutS, "timeout_s must default to 5")
	require.EqualValues(t, 5, c.Client.DialTimeoutS, "dial_timeout_s must default to 5")
}

func TestParseConfigBytesRejectsEmptyDocument(t *testing.T) {
	_, err := ParseConfigBytes([]byte(``))
	require.Error(t, err)
}

func TestParseConfigBytesRejectsNoNodes(t *testing.T) {
	_, err := ParseConfigBytes([]byte(`nodes: []`))
	require.Error(t, err)
}

func TestParseConfigBytesRejectsUnknownKey(t *testing.T) {
	_, err := ParseConfigBytes([]byte(`
nodes:
  - address: "10.0.0.1:1025"
    groups: [1]
bogus_key: 1
`))
	require.Error(t, err, "UnmarshalStrict must reject unknown top-level keys")
}

func TestParseConfigBytesWithTLS(t *testing.T) {
	c, err := ParseConfigBytes([]byte(`
nodes:
  - address: "10.0.0.1:1025"
    groups: [1]
    tls:
      ca_file: /etc/meshkv/ca.pem
      cert_file: /etc/meshkv/client.pem
      key_file: /etc/meshkv/client.key
      server_name: node0.cluster.local
client:
  timeout_s: 10
`))
	require.NoError(t, err)
	require.NotNil(t, c.Nodes[0].TLS)
	require.Equal(t, "node0.cluster.local", c.Nodes[0].TLS.ServerName)
	require.EqualValues(t, 10, c.Client.TimeoutS)
	require.EqualValues(t, 5, c.Client.DialTimeoutS, "dial_timeout_s must still default when only timeout_s is set")
}
