package session

import (
	"bufio"
	"context"
	"crypto/tls"
	"io"
	"net"
	"time"

	"github.com/tsarna/wampws/pkg/wampws/endpoint"
)

// Stream is the byte stream a session owns between Connect and Disconnect.
// Reads go through a buffer so bytes read ahead by ReadLine are not lost to
// the frame decoder.
type Stream interface {
	io.Reader
	io.Writer
	io.Closer
	ReadLine() (string, error)
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
}

// DialFunc opens the underlying connection to an endpoint.
type DialFunc func(ctx context.Context, ep endpoint.Endpoint) (net.Conn, error)

type connStream struct {
	conn net.Conn
	r    *bufio.Reader
}

// NewStream wraps a connection as a Stream.
func NewStream(conn net.Conn) Stream {
	return &connStream{conn: conn, r: bufio.NewReader(conn)}
}

func (s *connStream) Read(p []byte) (int, error) {
	return s.r.Read(p)
}

func (s *connStream) ReadLine() (string, error) {
	return s.r.ReadString('\n')
}

func (s *connStream) Write(p []byte) (int, error) {
	return s.conn.Write(p)
}

func (s *connStream) Close() error {
	return s.conn.Close()
}

func (s *connStream) SetReadDeadline(t time.Time) error {
	return s.conn.SetReadDeadline(t)
}

func (s *connStream) SetWriteDeadline(t time.Time) error {
	return s.conn.SetWriteDeadline(t)
}

// DefaultDialer dials TCP, or TLS when the endpoint is encrypted. Server
// certificates are verified with the system roots.
func DefaultDialer(ctx context.Context, ep endpoint.Endpoint) (net.Conn, error) {
	if ep.Encrypted {
		d := &tls.Dialer{Config: &tls.Config{ServerName: ep.Host}}
		return d.DialContext(ctx, "tcp", ep.Address())
	}
	var d net.Dialer
	return d.DialContext(ctx, "tcp", ep.Address())
}
