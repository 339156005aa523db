package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tsarna/wampws/pkg/wampws/session"
	"github.com/zclconf/go-cty/cty"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
)

func buildConfig(t *testing.T, src string) (*Config, error) {
	t.Helper()
	cfg, diags := NewConfig().WithLogger(zaptest.NewLogger(t)).WithSources([]byte(src)).Build()
	if diags.HasErrors() {
		return nil, diags
	}
	return cfg, nil
}

func TestBuildMinimal(t *testing.T) {
	cfg, err := buildConfig(t, `endpoint = "ws://localhost:9000/"`)
	require.NoError(t, err)

	assert.Equal(t, "localhost", cfg.Endpoint.Host)
	assert.Equal(t, 9000, cfg.Endpoint.Port)
	assert.False(t, cfg.Endpoint.Encrypted)
	assert.Empty(t, cfg.Target)
	assert.Zero(t, cfg.DialTimeout)
	assert.Zero(t, cfg.IOTimeout)
	assert.False(t, cfg.StrictHandshake)
	assert.Empty(t, cfg.Subscriptions)
	assert.Empty(t, cfg.Prefixes)
	assert.Empty(t, cfg.Schedules)
}

func TestBuildFull(t *testing.T) {
	t.Setenv("WAMPWS_TEST_HOST", "example.org")

	cfg, err := buildConfig(t, `
const {
  topic = "${base}events"
  base  = "http://${env.WAMPWS_TEST_HOST}/"
}

function "shout" {
  params = [s]
  result = upper(s)
}

endpoint         = "wss://${env.WAMPWS_TEST_HOST}/"
target           = "/ws/"
dial_timeout     = 5
io_timeout       = "PT30S"
strict_handshake = true
max_message_size = 1024
headers          = { Origin = "http://localhost" }
subscriptions    = [topic, "${base}other"]
timezone         = "UTC"

prefix "calc" {
  uri = "${base}calc#"
}

schedule "heartbeat" {
  cron    = "@every 10s"
  topic   = topic
  payload = { msg = shout("alive") }
}
`)
	require.NoError(t, err)

	assert.Equal(t, "example.org", cfg.Endpoint.Host)
	assert.Equal(t, 443, cfg.Endpoint.Port)
	assert.True(t, cfg.Endpoint.Encrypted)
	assert.Equal(t, "/ws/", cfg.Target)
	assert.Equal(t, 5*time.Second, cfg.DialTimeout)
	assert.Equal(t, 30*time.Second, cfg.IOTimeout)
	assert.True(t, cfg.StrictHandshake)
	assert.Equal(t, uint64(1024), cfg.MaxMessageSize)
	assert.Equal(t, map[string]string{"Origin": "http://localhost"}, cfg.Headers)
	assert.Equal(t, []string{"http://example.org/events", "http://example.org/other"}, cfg.Subscriptions)
	assert.Equal(t, "UTC", cfg.Timezone)

	require.Len(t, cfg.Prefixes, 1)
	assert.Equal(t, "calc", cfg.Prefixes[0].Name)
	assert.Equal(t, "http://example.org/calc#", cfg.Prefixes[0].URI)

	require.Len(t, cfg.Schedules, 1)
	assert.Equal(t, "heartbeat", cfg.Schedules[0].Name)
	assert.Equal(t, "@every 10s", cfg.Schedules[0].Cron)
	assert.Equal(t, "http://example.org/events", cfg.Schedules[0].Topic)

	assert.Equal(t, cty.StringVal("http://example.org/"), cfg.Constants["base"])
	assert.Contains(t, cfg.Functions, "shout")
	assert.Contains(t, cfg.Functions, "log_info")
	assert.Same(t, cfg.EvalContext(), cfg.evalCtx)
}

func TestBuildMultipleSources(t *testing.T) {
	cfg, diags := NewConfig().
		WithSources(
			[]byte(`const { host = "localhost" }`),
			[]byte(`endpoint = "ws://${host}:8080/"`),
		).
		Build()
	require.False(t, diags.HasErrors(), diags.Error())

	assert.Equal(t, "localhost", cfg.Endpoint.Host)
	assert.Equal(t, 8080, cfg.Endpoint.Port)
	assert.NotNil(t, cfg.Logger)
}

func TestBuildErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
	}{
		{"missing endpoint", `target = "/"`},
		{"non-string endpoint", `endpoint = 42`},
		{"unsupported scheme", `endpoint = "ftp://localhost/"`},
		{"target without slash", "endpoint = \"ws://h/\"\ntarget = \"ws\""},
		{"bad dial timeout", "endpoint = \"ws://h/\"\ndial_timeout = \"soon\""},
		{"negative io timeout", "endpoint = \"ws://h/\"\nio_timeout = -1"},
		{"negative max message size", "endpoint = \"ws://h/\"\nmax_message_size = -1"},
		{"unknown attribute", "endpoint = \"ws://h/\"\nport = 80"},
		{"unknown block", "endpoint = \"ws://h/\"\nbus \"main\" {}"},
		{"bad timezone", "endpoint = \"ws://h/\"\ntimezone = \"Nowhere/Special\""},
		{"duplicate prefix", `
endpoint = "ws://h/"
prefix "a" { uri = "http://x/" }
prefix "a" { uri = "http://y/" }
`},
		{"duplicate schedule", `
endpoint = "ws://h/"
schedule "s" {
  cron  = "@hourly"
  topic = "http://x/"
}
schedule "s" {
  cron  = "@daily"
  topic = "http://x/"
}
`},
		{"bad cron", `
endpoint = "ws://h/"
schedule "s" {
  cron  = "every now and then"
  topic = "http://x/"
}
`},
		{"bad schedule timezone", `
endpoint = "ws://h/"
schedule "s" {
  cron     = "@hourly"
  topic    = "http://x/"
  timezone = "Mars/Olympus_Mons"
}
`},
		{"empty schedule topic", `
endpoint = "ws://h/"
schedule "s" {
  cron  = "@hourly"
  topic = ""
}
`},
		{"const cycle", `
endpoint = "ws://h/"
const {
  a = b
  b = a
}
`},
		{"self-referencing const", `
endpoint = "ws://h/"
const {
  a = "${a}x"
}
`},
		{"duplicate const", `
endpoint = "ws://h/"
const { a = 1 }
const { a = 2 }
`},
		{"reserved const", `
endpoint = "ws://h/"
const { env = 1 }
`},
		{"undefined variable", `endpoint = nowhere`},
		{"function overrides builtin", `
endpoint = "ws://h/"
function "upper" {
  params = [s]
  result = s
}
`},
		{"syntax error", `endpoint = `},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := buildConfig(t, tt.src)
			assert.Error(t, err)
			assert.Nil(t, cfg)
		})
	}
}

func TestBuildNoSources(t *testing.T) {
	cfg, diags := NewConfig().Build()
	assert.True(t, diags.HasErrors())
	assert.Nil(t, cfg)
}

func TestBuildFromDirectory(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "client.hcl"), []byte(`endpoint = "ws://localhost/"`), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "conf.d"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "conf.d", "subs.wamp"), []byte(`subscriptions = ["http://x/y"]`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README.md"), []byte(`not = hcl = at all`), 0o644))

	cfg, diags := NewConfig().WithLogger(zap.NewNop()).WithSources(dir).Build()
	require.False(t, diags.HasErrors(), diags.Error())

	assert.Equal(t, "localhost", cfg.Endpoint.Host)
	assert.Equal(t, []string{"http://x/y"}, cfg.Subscriptions)
}

func TestParseConfigFiles(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		bodies, diags := ParseConfigFiles(filepath.Join(t.TempDir(), "nope.hcl"))
		assert.True(t, diags.HasErrors())
		assert.Empty(t, bodies)
	})

	t.Run("path list", func(t *testing.T) {
		dir := t.TempDir()
		a := filepath.Join(dir, "a.hcl")
		b := filepath.Join(dir, "b.hcl")
		require.NoError(t, os.WriteFile(a, []byte(`x = 1`), 0o644))
		require.NoError(t, os.WriteFile(b, []byte(`y = 2`), 0o644))

		bodies, diags := ParseConfigFiles([]string{a, b})
		require.False(t, diags.HasErrors())
		assert.Len(t, bodies, 2)
	})

	t.Run("invalid source type", func(t *testing.T) {
		_, diags := ParseConfigFiles(42)
		assert.True(t, diags.HasErrors())
	})
}

func TestSessionFromConfig(t *testing.T) {
	cfg, err := buildConfig(t, `
endpoint     = "ws://localhost:9000/"
target       = "/ws/"
dial_timeout = "2s"
headers      = { Origin = "http://localhost" }
`)
	require.NoError(t, err)

	s, err := cfg.NewSession()
	require.NoError(t, err)

	assert.Equal(t, cfg.Endpoint, s.Endpoint())
	assert.Equal(t, session.Disconnected, s.State())
}
