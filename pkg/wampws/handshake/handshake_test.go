package handshake

import (
	"bufio"
	"bytes"
	"encoding/base64"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedConn records what is written and replays a canned response.
type scriptedConn struct {
	written  bytes.Buffer
	response *bufio.Reader
	writeErr error
}

func newScriptedConn(response string) *scriptedConn {
	return &scriptedConn{response: bufio.NewReader(strings.NewReader(response))}
}

func (c *scriptedConn) Write(p []byte) (int, error) {
	if c.writeErr != nil {
		return 0, c.writeErr
	}
	return c.written.Write(p)
}

func (c *scriptedConn) ReadLine() (string, error) {
	return c.response.ReadString('\n')
}

const okResponse = "HTTP/1.1 101 Switching Protocols\r\n" +
	"Upgrade: websocket\r\n" +
	"Connection: Upgrade\r\n" +
	"Sec-WebSocket-Accept: s3pPLMBiTxaQ9kYGzzhZRbK+xOo=\r\n" +
	"\r\n"

func TestGenerateKey(t *testing.T) {
	for _, n := range []int{1, 4, 16, 17, 32, 100} {
		key, err := GenerateKey(n)
		require.NoError(t, err)

		decoded, err := base64.StdEncoding.DecodeString(key)
		require.NoError(t, err)
		assert.Len(t, decoded, n)
	}

	t.Run("default length", func(t *testing.T) {
		key, err := GenerateKey(0)
		require.NoError(t, err)
		decoded, err := base64.StdEncoding.DecodeString(key)
		require.NoError(t, err)
		assert.Len(t, decoded, DefaultKeyLength)
	})

	t.Run("keys are random", func(t *testing.T) {
		a, _ := GenerateKey(DefaultKeyLength)
		b, _ := GenerateKey(DefaultKeyLength)
		assert.NotEqual(t, a, b)
	})
}

func TestComputeAccept(t *testing.T) {
	// RFC 6455 section 1.3 example.
	assert.Equal(t, "s3pPLMBiTxaQ9kYGzzhZRbK+xOo=", ComputeAccept("dGhlIHNhbXBsZSBub25jZQ=="))
}

func TestBuildRequest(t *testing.T) {
	req := BuildRequest("example.com", "/websocket/", "dGhlIHNhbXBsZSBub25jZQ==", nil)

	expected := "GET /websocket/ HTTP/1.1\r\n" +
		"Host: example.com\r\n" +
		"Upgrade: WebSocket\r\n" +
		"Connection: Upgrade\r\n" +
		"Sec-WebSocket-Key: dGhlIHNhbXBsZSBub25jZQ==\r\n" +
		"Sec-WebSocket-Version: 13\r\n" +
		"Origin: *\r\n" +
		"\r\n"
	assert.Equal(t, expected, req)

	t.Run("extra headers are appended in order", func(t *testing.T) {
		req := BuildRequest("h", "/", "k", map[string][]string{
			"x-b":           {"2"},
			"authorization": {"Bearer t"},
		})
		assert.True(t, strings.HasSuffix(req, "Origin: *\r\nAuthorization: Bearer t\r\nX-B: 2\r\n\r\n"), req)
	})
}

func TestValidateStatusLine(t *testing.T) {
	assert.NoError(t, ValidateStatusLine("HTTP/1.1 101 Switching Protocols\r\n"))
	assert.NoError(t, ValidateStatusLine("HTTP/1.1 101"))

	err := ValidateStatusLine("HTTP/1.1 400 Bad Request\r\n")
	assert.ErrorIs(t, err, ErrUnexpectedStatus)
	assert.Contains(t, err.Error(), "HTTP/1.1 400")

	assert.ErrorIs(t, ValidateStatusLine("HTTP/1.0 101 Switching"), ErrUnexpectedStatus)
	assert.ErrorIs(t, ValidateStatusLine("HTTP/1.1"), ErrUnexpectedStatus)
	assert.ErrorIs(t, ValidateStatusLine(""), ErrNoResponse)
}

func TestPerform(t *testing.T) {
	t.Run("writes the upgrade request and accepts 101", func(t *testing.T) {
		conn := newScriptedConn(okResponse + "FRAME")
		err := Perform(conn, "example.com", "/websocket/", WithKey("dGhlIHNhbXBsZSBub25jZQ=="))
		require.NoError(t, err)

		assert.True(t, strings.HasPrefix(conn.written.String(), "GET /websocket/ HTTP/1.1\r\nHost: example.com\r\n"))
		assert.Contains(t, conn.written.String(), "Sec-WebSocket-Key: dGhlIHNhbXBsZSBub25jZQ==\r\n")

		// Headers were consumed, the frame bytes are next.
		rest, _ := conn.response.ReadString('\n')
		assert.Equal(t, "FRAME", rest)
	})

	t.Run("generated key is sent", func(t *testing.T) {
		conn := newScriptedConn(okResponse)
		require.NoError(t, Perform(conn, "h", "/"))

		var key string
		for _, line := range strings.Split(conn.written.String(), "\r\n") {
			if v, ok := strings.CutPrefix(line, "Sec-WebSocket-Key: "); ok {
				key = v
			}
		}
		decoded, err := base64.StdEncoding.DecodeString(key)
		require.NoError(t, err)
		assert.Len(t, decoded, DefaultKeyLength)
	})

	t.Run("bad status", func(t *testing.T) {
		conn := newScriptedConn("HTTP/1.1 400 Bad Request\r\n\r\n")
		err := Perform(conn, "h", "/")
		assert.ErrorIs(t, err, ErrUnexpectedStatus)
	})

	t.Run("no response", func(t *testing.T) {
		conn := newScriptedConn("")
		err := Perform(conn, "h", "/")
		assert.ErrorIs(t, err, ErrNoResponse)
	})

	t.Run("truncated headers", func(t *testing.T) {
		conn := newScriptedConn("HTTP/1.1 101 Switching Protocols\r\nUpgrade: websocket\r\n")
		err := Perform(conn, "h", "/")
		assert.ErrorIs(t, err, ErrNoResponse)
	})

	t.Run("write failure", func(t *testing.T) {
		conn := newScriptedConn(okResponse)
		conn.writeErr = errors.New("broken pipe")
		err := Perform(conn, "h", "/")
		assert.ErrorContains(t, err, "broken pipe")
	})

	t.Run("strict mode accepts a matching accept value", func(t *testing.T) {
		conn := newScriptedConn(okResponse)
		err := Perform(conn, "h", "/", WithKey("dGhlIHNhbXBsZSBub25jZQ=="), WithAcceptValidation(true))
		assert.NoError(t, err)
	})

	t.Run("strict mode rejects a wrong accept value", func(t *testing.T) {
		conn := newScriptedConn(okResponse)
		err := Perform(conn, "h", "/", WithAcceptValidation(true))
		assert.ErrorIs(t, err, ErrInvalidAccept)
	})

	t.Run("lenient mode ignores a wrong accept value", func(t *testing.T) {
		conn := newScriptedConn(okResponse)
		assert.NoError(t, Perform(conn, "h", "/"))
	})

	t.Run("extra headers", func(t *testing.T) {
		conn := newScriptedConn(okResponse)
		err := Perform(conn, "h", "/", WithHeaders(map[string][]string{"Authorization": {"Bearer abc"}}))
		require.NoError(t, err)
		assert.Contains(t, conn.written.String(), "Authorization: Bearer abc\r\n")
	})
}
