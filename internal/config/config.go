// Package config loads the cluster/session descriptor this module's
// binaries need to build a routing table, connection pool and default
// session policy: which nodes exist, which groups/backends they serve, and
// the client-side defaults of spec.md §6's session configuration surface.
// Parsed with the teacher's own yaml-config library the same way
// config.ParseConfig does: strict unmarshal, struct-tag driven defaults.
package config

import (
	"fmt"
	"os"

	"github.com/pkg/errors"
	yaml "github.com/zrepl/yaml-config"
)

// Config is the top-level document: the cluster's node list plus the
// client defaults every Session inherits unless overridden at the call
// site.
type Config struct {
	Nodes  []NodeConfig `yaml:"nodes"`
	Client *ClientConfig `yaml:"client,optional,fromdefaults"`
}

// NodeConfig describes one cluster member: its dial address, the replica
// groups it serves, and (optionally) the backends within those groups a
// ToEachBackend send can target directly.
type NodeConfig struct {
	Address  string     `yaml:"address"`
	Groups   []uint32   `yaml:"groups"`
	Backends []uint32   `yaml:"backends,optional"`
	TLS      *TLSConfig `yaml:"tls,optional"`
}

// TLSConfig names the material tlsconf.NodeClientConfig needs to dial this
// node over mutual TLS instead of plain TCP.
type TLSConfig struct {
	CAFile     string `yaml:"ca_file"`
	CertFile   string `yaml:"cert_file"`
	KeyFile    string `yaml:"key_file"`
	ServerName string `yaml:"server_name"`
}

// ClientConfig is the client-side subset of spec.md §6's session/server
// configuration surface: the defaults a Session is constructed with,
// overridable per call via Session.CleanClone.
type ClientConfig struct {
	TimeoutS     uint32 `yaml:"timeout_s,optional,positive,default=5"`
	DialTimeoutS uint32 `yaml:"dial_timeout_s,optional,positive,default=5"`
}

// ParseConfig reads and strictly unmarshals the YAML document at path.
func ParseConfig(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "config: read file")
	}
	return ParseConfigBytes(b)
}

// ParseConfigBytes strictly unmarshals b, rejecting unknown keys the way
// the teacher's yaml-config does for every job type.
func ParseConfigBytes(b []byte) (*Config, error) {
	var c *Config
	if err := yaml.UnmarshalStrict(b, &c); err != nil {
		return nil, errors.Wrap(err, "config: parse")
	}
	if c == nil {
		return nil, fmt.Errorf("config: empty document")
	}
	if len(c.Nodes) == 0 {
		return nil, fmt.Errorf("config: at least one node is required")
	}
	return c, nil
}
