// Package tlsconf builds the client-side tls.Config used to dial nodes
// over mutual TLS, adapted from the teacher's server+client pair down to
// just the client half: this module never accepts connections, only
// opens them (spec §6, "transport cap" is a client concern here).
package tlsconf

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"os"
)

// ParseCAFile loads a PEM-encoded CA bundle used to verify node
// certificates.
func ParseCAFile(certfile string) (*x509.CertPool, error) {
	pool := x509.NewCertPool()
	pem, err := os.ReadFile(certfile)
	if err != nil {
		return nil, err
	}
	if !pool.AppendCertsFromPEM(pem) {
		return nil, errors.New("tlsconf: no certificates parsed from PEM")
	}
	return pool, nil
}

// NodeClientConfig builds the tls.Config a transport.Dialer hands to
// tls.Client when a node descriptor requests TLS: serverName must match the
// node certificate's CN/SAN, rootCA is the pool ParseCAFile returned, and
// clientCert authenticates this client to the node (meshkv nodes require
// mutual TLS, not just server auth).
func NodeClientConfig(serverName string, rootCA *x509.CertPool, clientCert tls.Certificate) (*tls.Config, error) {
	if serverName == "" {
		return nil, errors.New("tlsconf: serverName must not be empty")
	}
	if rootCA == nil {
		return nil, errors.New("tlsconf: rootCA must not be nil")
	}
	return &tls.Config{
		Certificates: []tls.Certificate{clientCert},
		RootCAs:      rootCA,
		ServerName:   serverName,
	}, nil
}
