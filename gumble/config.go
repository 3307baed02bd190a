package gumble

import (
	"crypto/tls"
	"log/slog"
	"time"
)

// Config parameterises a Session. Construct with NewConfig and adjust
// fields before calling NewSession.
type Config struct {
	// Address is the server's "host:port" (default Mumble port 64738).
	Address string
	// Username, Password, Tokens authenticate the connection.
	Username string
	Password string
	Tokens   []string
	// Release is the client release string sent in the Version message;
	// defaults to "gumble" if empty.
	Release string

	// TLSConfig is cloned and used for the connection; leave nil to use
	// Go's defaults (system root CAs, no client certificate).
	TLSConfig *tls.Config
	// Certificate, if set, is attached to TLSConfig.Certificates for
	// registered-identity servers.
	Certificate    tls.Certificate
	HasCertificate bool

	// Reconnect configures automatic reconnection. Off unless Enabled
	// is set (assign DefaultReconnectPolicy() to opt in); zero backoff
	// parameters resolve to the documented defaults.
	Reconnect ReconnectPolicy

	// OpusBitrate is the outbound Opus target in bits/sec; 0 defaults to
	// 40000.
	OpusBitrate int
	// FrameDuration is the outbound frame size: 10, 20, or 40ms. 0 defaults to 10ms.
	FrameDuration time.Duration

	// CommandQueueCapacity bounds buffered host commands; 0 uses
	// defaultCommandQueueCapacity.
	CommandQueueCapacity int

	// Logger receives structured warnings for dropped frames, decode
	// errors, and reconnect attempts. Defaults to
	// slog.Default().
	Logger *slog.Logger

	// Listeners, if set, is used directly instead of Session
	// constructing its own -- useful for attaching listeners before
	// Start so the connected callback is never missed.
	Listeners *Listeners
	// DeferCallbacks selects the deferred-dispatch callback mode: callbacks run on a dedicated goroutine outside any component
	// lock instead of synchronously while that lock is held.
	DeferCallbacks bool
}

// LoadCertificate reads a client certificate pair from certFile and
// keyFile and attaches it to the Config, for servers that tie
// registered identities to certificates.
func (c *Config) LoadCertificate(certFile, keyFile string) error {
	cert, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		return err
	}
	c.Certificate = cert
	c.HasCertificate = true
	return nil
}

// NewConfig returns a Config with the documented defaults applied.
func NewConfig(address, username, password string) *Config {
	return &Config{
		Address:       address,
		Username:      username,
		Password:      password,
		Reconnect:     ReconnectPolicy{}.withDefaults(),
		OpusBitrate:   40000,
		FrameDuration: 10 * time.Millisecond,
		Logger:        slog.Default(),
	}
}
