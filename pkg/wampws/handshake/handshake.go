// Package handshake performs the HTTP/1.1 upgrade that switches a byte
// stream to WebSocket framing.
package handshake

import (
	"crypto/rand"
	"crypto/sha1"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/textproto"
	"sort"
	"strings"
)

var (
	// ErrNoResponse means the server closed the stream or sent nothing.
	ErrNoResponse = errors.New("server did not respond to the upgrade request")
	// ErrUnexpectedStatus means the status line was not "HTTP/1.1 101".
	ErrUnexpectedStatus = errors.New("unexpected upgrade response")
	// ErrInvalidAccept is returned in strict mode when Sec-WebSocket-Accept
	// does not match the key that was sent.
	ErrInvalidAccept = errors.New("invalid Sec-WebSocket-Accept")
)

const (
	DefaultKeyLength = 16

	switchingProtocols = "HTTP/1.1 101"
	acceptGUID         = "258EAFA5-E914-47DA-95CA-C5AB0DC85B11"
)

// LineReadWriter is the part of a byte stream the handshake needs.
// ReadLine returns one line including its terminator.
type LineReadWriter interface {
	io.Writer
	ReadLine() (string, error)
}

type options struct {
	validateAccept bool
	headers        map[string][]string
	key            string
}

// Option customises a handshake.
type Option func(*options)

// WithAcceptValidation enables checking Sec-WebSocket-Accept against the
// key. Servers that omit the header fail in this mode.
func WithAcceptValidation(enabled bool) Option {
	return func(o *options) {
		o.validateAccept = enabled
	}
}

// WithHeaders adds extra request headers after the standard ones.
func WithHeaders(headers map[string][]string) Option {
	return func(o *options) {
		if o.headers == nil {
			o.headers = make(map[string][]string)
		}
		for k, v := range headers {
			o.headers[k] = append(o.headers[k], v...)
		}
	}
}

// WithKey fixes the Sec-WebSocket-Key instead of generating one.
func WithKey(key string) Option {
	return func(o *options) {
		o.key = key
	}
}

// Perform writes the upgrade request for target to rw and validates the
// response. On success the stream is positioned at the first frame.
func Perform(rw LineReadWriter, host, target string, opts ...Option) error {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}

	key := o.key
	if key == "" {
		var err error
		key, err = GenerateKey(DefaultKeyLength)
		if err != nil {
			return err
		}
	}

	if _, err := io.WriteString(rw, BuildRequest(host, target, key, o.headers)); err != nil {
		return fmt.Errorf("writing upgrade request: %w", err)
	}

	status, err := rw.ReadLine()
	if err != nil && status == "" {
		return fmt.Errorf("%w: %v", ErrNoResponse, err)
	}
	if err := ValidateStatusLine(status); err != nil {
		return err
	}

	headers, err := readHeaders(rw)
	if err != nil {
		return err
	}

	if o.validateAccept {
		got := headers.Get("Sec-WebSocket-Accept")
		if want := ComputeAccept(key); got != want {
			return fmt.Errorf("%w: got %q, want %q", ErrInvalidAccept, got, want)
		}
	}

	return nil
}

// BuildRequest renders the upgrade request. Extra headers are written in
// sorted order after the fixed ones.
func BuildRequest(host, target, key string, extra map[string][]string) string {
	var b strings.Builder
	b.WriteString("GET " + target + " HTTP/1.1\r\n")
	b.WriteString("Host: " + host + "\r\n")
	b.WriteString("Upgrade: WebSocket\r\n")
	b.WriteString("Connection: Upgrade\r\n")
	b.WriteString("Sec-WebSocket-Key: " + key + "\r\n")
	b.WriteString("Sec-WebSocket-Version: 13\r\n")
	b.WriteString("Origin: *\r\n")

	names := make([]string, 0, len(extra))
	for name := range extra {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		for _, value := range extra[name] {
			b.WriteString(textproto.CanonicalMIMEHeaderKey(name) + ": " + value + "\r\n")
		}
	}

	b.WriteString("\r\n")
	return b.String()
}

// ValidateStatusLine checks the first line of the upgrade response.
func ValidateStatusLine(line string) error {
	if line == "" {
		return ErrNoResponse
	}
	if len(line) < len(switchingProtocols) || line[:len(switchingProtocols)] != switchingProtocols {
		got := strings.TrimRight(line, "\r\n")
		if len(got) > len(switchingProtocols) {
			got = got[:len(switchingProtocols)]
		}
		return fmt.Errorf("%w: expected %s, got %q", ErrUnexpectedStatus, switchingProtocols, got)
	}
	return nil
}

// readHeaders consumes header lines up to and including the blank line.
func readHeaders(rw LineReadWriter) (textproto.MIMEHeader, error) {
	headers := make(textproto.MIMEHeader)
	for {
		line, err := rw.ReadLine()
		trimmed := strings.TrimRight(line, "\r\n")
		if err != nil && line == "" {
			return nil, fmt.Errorf("%w: response headers truncated: %v", ErrNoResponse, err)
		}
		if trimmed == "" {
			return headers, nil
		}
		if name, value, ok := strings.Cut(trimmed, ":"); ok {
			headers.Add(strings.TrimSpace(name), strings.TrimSpace(value))
		}
		if err != nil {
			return nil, fmt.Errorf("%w: response headers truncated: %v", ErrNoResponse, err)
		}
	}
}

// GenerateKey returns length random bytes, base64 encoded.
func GenerateKey(length int) (string, error) {
	if length <= 0 {
		length = DefaultKeyLength
	}
	buf := make([]byte, length)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generating handshake key: %w", err)
	}
	return base64.StdEncoding.EncodeToString(buf), nil
}

// ComputeAccept returns the Sec-WebSocket-Accept value a compliant server
// derives from key.
func ComputeAccept(key string) string {
	h := sha1.New()
	h.Write([]byte(key + acceptGUID))
	return base64.StdEncoding.EncodeToString(h.Sum(nil))
}
