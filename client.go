// Package meshkv wires the request engine's pieces — routing table,
// connection pool, transaction table, deadline queue and session defaults
// — into a runnable Session, the way the teacher's daemon package wires a
// job's config into a running connecter+endpoint pair. It is the one
// place every packaged piece (dispatch, transport, session, routing,
// internal/config, internal/metrics, internal/logger) comes together for
// a library caller or the cmd/meshkvctl binary.
package meshkv

import (
	"crypto/tls"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/meshkv/meshkv/dispatch"
	"github.com/meshkv/meshkv/internal/config"
	"github.com/meshkv/meshkv/internal/logger"
	"github.com/meshkv/meshkv/internal/metrics"
	"github.com/meshkv/meshkv/key"
	"github.com/meshkv/meshkv/routing"
	"github.com/meshkv/meshkv/session"
	"github.com/meshkv/meshkv/tlsconf"
	"github.com/meshkv/meshkv/transport"
	"github.com/meshkv/meshkv/util/envconst"
)

// backendConcurrency bounds how many ToEachBackend submissions this
// module will have in flight to a single (node, backend) pair at once
// (spec §5's per-backend i/o pool). Overridable for load testing without
// touching the cluster config file.
var backendConcurrency = envconst.Int64("MESHKV_BACKEND_CONCURRENCY", 8)

// Client owns every long-lived resource a Session needs and is the unit
// Close shuts down: the connection pool and the deadline queue both run
// background goroutines.
type Client struct {
	dispatcher *dispatch.Dispatcher
	self       key.NodeAddress
	log        *logger.Logger
	metrics    *metrics.Collector
}

// New builds a Client from cfg: a Ring populated from cfg.Nodes, a
// transaction table, a deadline queue bound to that table (so an expired
// transaction is removed, not leaked — spec §4.7), and a connection pool
// dialing plain TCP or mutual TLS per node depending on whether that
// node's NodeConfig.TLS is set. log may be nil (falls back to NewNull) and
// m may be nil (metrics become no-ops).
func New(cfg *config.Config, log *logger.Logger, m *metrics.Collector) (*Client, error) {
	if log == nil {
		log = logger.NewNull()
	}
	if m == nil {
		m = metrics.New()
	}

	ring := routing.NewRing()
	tlsByAddr := map[string]*config.TLSConfig{}
	for _, n := range cfg.Nodes {
		addr, err := parseNodeAddress(n.Address)
		if err != nil {
			return nil, errors.Wrapf(err, "meshkv: node %q", n.Address)
		}
		for _, g := range n.Groups {
			ring.AddNode(key.GroupID(g), addr)
		}
		if n.TLS != nil {
			tlsByAddr[addr.String()] = n.TLS
		}
	}

	dialTimeout := time.Duration(cfg.Client.DialTimeoutS) * time.Second
	dial, err := dialerFor(tlsByAddr, dialTimeout)
	if err != nil {
		return nil, err
	}

	table := transport.NewTable()
	pool := transport.NewPool(dial, table, log, m)
	deadlines := transport.NewDeadlineQueue(table, m)

	d := &dispatch.Dispatcher{
		Routing:      ring,
		Pool:         pool,
		Transactions: table,
		Deadlines:    deadlines,
		Backends:     dispatch.NewBackendLimiter(backendConcurrency),
	}

	return &Client{dispatcher: d, log: log, metrics: m}, nil
}

// NewSession returns a Session built with cfg.Client's defaults against
// groups, ready for the caller to CleanClone and adjust policy on per
// spec §4.1.
func (c *Client) NewSession(cfg *config.Config, groups []key.GroupID) *session.Session {
	s := session.New(c.dispatcher, c.self, c.log, c.metrics)
	s.Groups = groups
	s.Timeout = time.Duration(cfg.Client.TimeoutS) * time.Second
	return s
}

// Close tears down the connection pool and deadline queue. It does not
// block on outstanding transactions; callers that need a clean shutdown
// should drain their own in-flight operations first.
func (c *Client) Close() {
	c.dispatcher.Pool.CloseAll()
	c.dispatcher.Deadlines.Close()
}

// dialerFor returns a Dialer that dials each node plainly unless that
// node's address appears in tlsByAddr, in which case it dials with that
// node's own TLS material. Per-node client certs are uncommon in
// practice, but keying the dialer map by address rather than picking one
// config for the whole cluster costs nothing and avoids silently reusing
// the wrong node's certificate.
func dialerFor(tlsByAddr map[string]*config.TLSConfig, timeout time.Duration) (transport.Dialer, error) {
	plain := transport.DialTCP(timeout)
	if len(tlsByAddr) == 0 {
		return plain, nil
	}

	tlsDialers := make(map[string]transport.Dialer, len(tlsByAddr))
	for addr, t := range tlsByAddr {
		pool, err := tlsconf.ParseCAFile(t.CAFile)
		if err != nil {
			return nil, errors.Wrapf(err, "meshkv: tls config for %s: ca file", addr)
		}
		cert, err := tls.LoadX509KeyPair(t.CertFile, t.KeyFile)
		if err != nil {
			return nil, errors.Wrapf(err, "meshkv: tls config for %s: client cert", addr)
		}
		cfg, err := tlsconf.NodeClientConfig(t.ServerName, pool, cert)
		if err != nil {
			return nil, errors.Wrapf(err, "meshkv: tls config for %s", addr)
		}
		tlsDialers[addr] = transport.DialTLS(timeout, cfg)
	}

	return func(addr key.NodeAddress) (net.Conn, error) {
		if d, ok := tlsDialers[addr.String()]; ok {
			return d(addr)
		}
		return plain(addr)
	}, nil
}

func parseNodeAddress(s string) (key.NodeAddress, error) {
	host, portStr, found := strings.Cut(s, ":")
	if !found {
		return key.NodeAddress{}, fmt.Errorf("meshkv: address %q missing port", s)
	}
	port, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil {
		return key.NodeAddress{}, fmt.Errorf("meshkv: address %q: %w", s, err)
	}
	return key.NodeAddress{Host: host, Port: uint16(port)}, nil
}
