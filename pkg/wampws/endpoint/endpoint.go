// Package endpoint turns a WAMP server URL into the address the session dials.
package endpoint

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
)

// ErrInvalidEndpoint is returned when an endpoint string cannot be resolved.
var ErrInvalidEndpoint = errors.New("invalid endpoint")

const (
	DefaultPort          = 80
	DefaultEncryptedPort = 443
)

// Endpoint is the resolved form of a server URL. It is immutable once resolved.
type Endpoint struct {
	Host      string
	Port      int
	Encrypted bool
}

// Resolve parses a URL-shaped endpoint such as "ws://host:8080/" or
// "https://host/". The https and wss schemes select an encrypted transport
// and default to port 443; every other accepted scheme defaults to port 80.
func Resolve(endpoint string) (Endpoint, error) {
	u, err := url.Parse(strings.TrimSpace(endpoint))
	if err != nil {
		return Endpoint{}, fmt.Errorf("%w: %q: %v", ErrInvalidEndpoint, endpoint, err)
	}

	var ep Endpoint
	switch strings.ToLower(u.Scheme) {
	case "https", "wss":
		ep.Encrypted = true
	case "http", "ws":
	default:
		return Endpoint{}, fmt.Errorf("%w: %q: unsupported scheme %q", ErrInvalidEndpoint, endpoint, u.Scheme)
	}

	ep.Host = u.Hostname()
	if ep.Host == "" {
		return Endpoint{}, fmt.Errorf("%w: %q: missing host", ErrInvalidEndpoint, endpoint)
	}

	if portStr := u.Port(); portStr != "" {
		port, err := strconv.Atoi(portStr)
		if err != nil || port <= 0 || port > 65535 {
			return Endpoint{}, fmt.Errorf("%w: %q: bad port %q", ErrInvalidEndpoint, endpoint, portStr)
		}
		ep.Port = port
	} else if ep.Encrypted {
		ep.Port = DefaultEncryptedPort
	} else {
		ep.Port = DefaultPort
	}

	return ep, nil
}

// Address returns the host:port pair to dial.
func (e Endpoint) Address() string {
	return net.JoinHostPort(e.Host, strconv.Itoa(e.Port))
}

// HostHeader returns the value for the handshake's Host header. The port is
// only included when it differs from the scheme default.
func (e Endpoint) HostHeader() string {
	if e.Port == e.defaultPort() {
		if strings.Contains(e.Host, ":") {
			return "[" + e.Host + "]"
		}
		return e.Host
	}
	return e.Address()
}

// Scheme returns the canonical URL scheme for the endpoint.
func (e Endpoint) Scheme() string {
	if e.Encrypted {
		return "wss"
	}
	return "ws"
}

func (e Endpoint) String() string {
	return e.Scheme() + "://" + e.HostHeader()
}

func (e Endpoint) defaultPort() int {
	if e.Encrypted {
		return DefaultEncryptedPort
	}
	return DefaultPort
}
