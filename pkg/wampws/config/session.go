package config

import (
	"github.com/tsarna/wampws/pkg/wampws/session"
)

// SessionBuilder returns a session builder preconfigured from c. Callers
// may add options, such as a dialer or metrics provider, before Build.
func (c *Config) SessionBuilder() *session.SessionBuilder {
	b := session.NewSession().
		WithEndpoint(c.Endpoint).
		WithLogger(c.Logger).
		WithTarget(c.Target).
		WithDialTimeout(c.DialTimeout).
		WithIOTimeout(c.IOTimeout).
		WithStrictHandshake(c.StrictHandshake).
		WithMaxMessageSize(c.MaxMessageSize)

	for key, value := range c.Headers {
		b.WithHeader(key, value)
	}

	return b
}

// NewSession builds a Disconnected session from c.
func (c *Config) NewSession() (*session.Session, error) {
	return c.SessionBuilder().Build()
}
