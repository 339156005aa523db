package endpoint

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolve(t *testing.T) {
	t.Run("https with explicit port", func(t *testing.T) {
		ep, err := Resolve("https://host:9000/")
		require.NoError(t, err)
		assert.Equal(t, Endpoint{Host: "host", Port: 9000, Encrypted: true}, ep)
	})

	t.Run("https defaults to 443", func(t *testing.T) {
		ep, err := Resolve("https://host/")
		require.NoError(t, err)
		assert.Equal(t, 443, ep.Port)
		assert.True(t, ep.Encrypted)
	})

	t.Run("wss is encrypted", func(t *testing.T) {
		ep, err := Resolve("wss://example.com/ws")
		require.NoError(t, err)
		assert.Equal(t, Endpoint{Host: "example.com", Port: 443, Encrypted: true}, ep)
	})

	t.Run("ws with explicit port", func(t *testing.T) {
		ep, err := Resolve("ws://host:8080/")
		require.NoError(t, err)
		assert.Equal(t, Endpoint{Host: "host", Port: 8080, Encrypted: false}, ep)
	})

	t.Run("plain scheme defaults to 80", func(t *testing.T) {
		ep, err := Resolve("http://localhost/websocket/")
		require.NoError(t, err)
		assert.Equal(t, 80, ep.Port)
		assert.False(t, ep.Encrypted)
	})

	t.Run("scheme is case insensitive", func(t *testing.T) {
		ep, err := Resolve("HTTPS://Host:1234")
		require.NoError(t, err)
		assert.True(t, ep.Encrypted)
		assert.Equal(t, 1234, ep.Port)
	})

	t.Run("ipv6 host", func(t *testing.T) {
		ep, err := Resolve("ws://[::1]:8080/")
		require.NoError(t, err)
		assert.Equal(t, "::1", ep.Host)
		assert.Equal(t, "[::1]:8080", ep.Address())
	})
}

func TestResolveErrors(t *testing.T) {
	cases := map[string]string{
		"no host":         "http:///path",
		"no scheme":       "localhost:8080",
		"unknown scheme":  "ftp://host/",
		"bad port":        "ws://host:abc/",
		"port range":      "ws://host:70000/",
		"empty":           "",
		"unparseable url": "ws://host:8080/%zz",
	}

	for name, input := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Resolve(input)
			assert.ErrorIs(t, err, ErrInvalidEndpoint)
		})
	}
}

func TestEndpointStrings(t *testing.T) {
	plain := Endpoint{Host: "host", Port: 80}
	assert.Equal(t, "host:80", plain.Address())
	assert.Equal(t, "host", plain.HostHeader())
	assert.Equal(t, "ws://host", plain.String())

	custom := Endpoint{Host: "host", Port: 8080}
	assert.Equal(t, "host:8080", custom.HostHeader())

	secure := Endpoint{Host: "host", Port: 443, Encrypted: true}
	assert.Equal(t, "host", secure.HostHeader())
	assert.Equal(t, "wss://host", secure.String())

	v6 := Endpoint{Host: "::1", Port: 80}
	assert.Equal(t, "[::1]", v6.HostHeader())
}
