package gumble

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tikki/gumble/gumble/mumbleproto"
)

// State is a Transport's position in its connection lifecycle.
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateHandshaking
	StateReady
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateHandshaking:
		return "handshaking"
	case StateReady:
		return "ready"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// ClientVersion is the protocol version this client advertises during
// the handshake, packed as major<<16 | minor<<8 | patch.
const ClientVersion = 1<<16 | 5<<8 | 0

// ReconnectPolicy configures Transport's automatic reconnection on
// protocol error or idle timeout.
type ReconnectPolicy struct {
	// Enabled turns on automatic reconnection. Off in the zero value;
	// DefaultReconnectPolicy sets it.
	Enabled bool
	// MaxRetries bounds the number of reconnect attempts per outage
	// before giving up. Defaults to 10.
	MaxRetries int
	// Backoff is the initial delay between reconnect attempts, doubling
	// each attempt up to MaxBackoff. Defaults to 1s.
	Backoff time.Duration
	// MaxBackoff caps the backoff delay. Defaults to 30s.
	MaxBackoff time.Duration
}

// DefaultReconnectPolicy returns an enabled reconnection policy with
// the standard backoff parameters, for hosts opting in to automatic
// reconnects.
func DefaultReconnectPolicy() ReconnectPolicy {
	return ReconnectPolicy{
		Enabled:    true,
		MaxRetries: 10,
		Backoff:    1 * time.Second,
		MaxBackoff: 30 * time.Second,
	}
}

func (p ReconnectPolicy) withDefaults() ReconnectPolicy {
	if p.MaxRetries <= 0 {
		p.MaxRetries = 10
	}
	if p.Backoff <= 0 {
		p.Backoff = 1 * time.Second
	}
	if p.MaxBackoff <= 0 {
		p.MaxBackoff = 30 * time.Second
	}
	return p
}

// pingInterval is the keepalive cadence.
const pingInterval = 20 * time.Second

// maxMissedPings is the number of un-replied pings after which the
// connection is considered dead.
const maxMissedPings = 3

// TransportConfig parameterises a Transport.
type TransportConfig struct {
	Addr      string
	Dialer    *net.Dialer
	TLSConfig *tls.Config

	Username string
	Password string
	Tokens   []string
	Release  string

	Reconnect ReconnectPolicy
	Logger    *slog.Logger

	// OnControl is invoked from the read loop for every control frame
	// except UDPTunnel. Must not block.
	OnControl func(MessageType, []byte)
	// OnVoice is invoked from the read loop for every UDPTunnel frame.
	OnVoice func([]byte)
	// OnStateChange is invoked whenever the lifecycle state changes.
	OnStateChange func(State)
}

// Transport owns one Mumble control connection and its reconnect
// lifecycle: Idle -> Connecting -> Handshaking -> Ready ->
// Closing -> Closed, re-entering Connecting on transient failure when
// reconnection is enabled.
type Transport struct {
	cfg TransportConfig

	state atomic.Int32

	mu   sync.Mutex
	conn *Conn

	closing atomic.Bool
	synced  chan error // per-attempt; closed connections replace it

	lastPing    atomic.Int64 // unix nanos
	rttNanos    atomic.Int64
	missedPings atomic.Int32
	tcpReceived atomic.Uint32
}

// NewTransport constructs a Transport. Call Run to drive its lifecycle.
func NewTransport(cfg TransportConfig) *Transport {
	cfg.Reconnect = cfg.Reconnect.withDefaults()
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Dialer == nil {
		cfg.Dialer = new(net.Dialer)
	}
	t := &Transport{cfg: cfg}
	t.setState(StateIdle)
	return t
}

func (t *Transport) setState(s State) {
	t.state.Store(int32(s))
	if t.cfg.OnStateChange != nil {
		t.cfg.OnStateChange(s)
	}
}

// State returns the transport's current lifecycle state.
func (t *Transport) State() State {
	return State(t.state.Load())
}

// Run drives the connect/handshake/serve/reconnect lifecycle until ctx
// is cancelled, Close is called, or reconnection is disabled/exhausted
// after a failure. It blocks for the life of the session.
func (t *Transport) Run(ctx context.Context) error {
	attempt := 0
	backoff := t.cfg.Reconnect.Backoff

	for {
		t.setState(StateConnecting)
		err := t.runOnce(ctx)
		if err == nil {
			t.setState(StateClosed)
			return nil
		}
		if t.closing.Load() || ctx.Err() != nil {
			t.setState(StateClosed)
			return err
		}
		if _, ok := err.(*RejectError); ok {
			t.setState(StateClosed)
			return err
		}
		if !t.cfg.Reconnect.Enabled {
			t.setState(StateClosed)
			return err
		}

		attempt++
		if attempt > t.cfg.Reconnect.MaxRetries {
			t.cfg.Logger.Error("gumble: giving up reconnecting", "attempts", attempt-1, "error", err)
			t.setState(StateClosed)
			return fmt.Errorf("gumble: reconnect attempts exhausted: %w", err)
		}

		t.cfg.Logger.Warn("gumble: connection lost, reconnecting",
			"error", err, "attempt", attempt, "backoff", backoff)

		select {
		case <-ctx.Done():
			t.setState(StateClosed)
			return ctx.Err()
		case <-time.After(backoff):
		}

		backoff *= 2
		if backoff > t.cfg.Reconnect.MaxBackoff {
			backoff = t.cfg.Reconnect.MaxBackoff
		}
	}
}

// runOnce performs one dial+handshake+serve cycle, returning nil only
// when the caller asked to Close (graceful shutdown); any other return
// value is treated as a reconnectable failure by Run.
func (t *Transport) runOnce(ctx context.Context) error {
	tlsConn, err := tls.DialWithDialer(t.cfg.Dialer, "tcp", t.cfg.Addr, t.cfg.TLSConfig)
	if err != nil {
		return errTransport("dial", err)
	}

	t.mu.Lock()
	t.conn = NewConn(tlsConn)
	t.synced = make(chan error, 1)
	t.mu.Unlock()

	t.setState(StateHandshaking)
	if err := t.handshake(); err != nil {
		tlsConn.Close()
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return t.readLoop() })
	g.Go(func() error { return t.pingLoop(gctx) })
	// pingLoop/parent-ctx cancellation only stops the ticker; readLoop is
	// blocked in a synchronous Read, so it needs the socket closed to
	// unblock and observe the group's error.
	go func() {
		<-gctx.Done()
		t.conn.Close()
	}()

	select {
	case err := <-t.synced:
		if err != nil {
			t.conn.Close()
			g.Wait()
			return err
		}
		t.setState(StateReady)
	case <-gctx.Done():
		t.conn.Close()
		g.Wait()
		return gctx.Err()
	}

	err = g.Wait()
	t.setState(StateClosing)
	t.conn.Close()
	if t.closing.Load() {
		return nil
	}
	return err
}

func (t *Transport) handshake() error {
	release := t.cfg.Release
	if release == "" {
		release = "gumble"
	}

	version := &mumbleproto.Version{
		Version:   ClientVersion,
		Release:   release,
		OS:        runtime.GOOS,
		OSVersion: runtime.GOARCH,
	}
	if err := t.conn.WriteFrame(MessageVersion, version.Marshal()); err != nil {
		return errTransport("send version", err)
	}

	auth := &mumbleproto.Authenticate{
		Username: t.cfg.Username,
		Password: t.cfg.Password,
		Tokens:   t.cfg.Tokens,
		Opus:     true,
	}
	if err := t.conn.WriteFrame(MessageAuthenticate, auth.Marshal()); err != nil {
		return errTransport("send authenticate", err)
	}
	return nil
}

// readLoop pumps inbound frames to the configured callbacks until the
// connection errors out or is closed.
func (t *Transport) readLoop() error {
	for {
		typ, payload, err := t.conn.ReadFrame()
		if err != nil {
			return err
		}
		if typ == MessageUDPTunnel {
			if t.cfg.OnVoice != nil {
				t.cfg.OnVoice(payload)
			}
			continue
		}
		t.tcpReceived.Add(1)
		if t.cfg.OnControl != nil {
			t.cfg.OnControl(typ, payload)
		}
	}
}

// pingLoop sends a keepalive Ping every pingInterval and declares the
// connection dead after maxMissedPings consecutive un-replied pings.
func (t *Transport) pingLoop(ctx context.Context) error {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if t.missedPings.Load() >= maxMissedPings {
				return errTransport("ping timeout: server unresponsive", nil)
			}
			ping := &mumbleproto.Ping{
				Timestamp:  uint64(time.Now().UnixNano()),
				TCPPackets: t.tcpReceived.Load(),
				TCPPingAvg: float32(t.rttNanos.Load()) / 1e6,
			}
			t.lastPing.Store(time.Now().UnixNano())
			t.missedPings.Add(1)
			if err := t.conn.WriteFrame(MessagePing, ping.Marshal()); err != nil {
				return errTransport("send ping", err)
			}
		}
	}
}

// RecordPingReply resets the missed-ping counter and updates the RTT
// estimate; called by the dispatcher whenever an inbound Ping is
// received.
func (t *Transport) RecordPingReply() {
	t.missedPings.Store(0)
	if last := t.lastPing.Load(); last != 0 {
		t.rttNanos.Store(time.Now().UnixNano() - last)
	}
}

// RTT returns the most recently measured control-channel round-trip
// time, or 0 before the first ping reply.
func (t *Transport) RTT() time.Duration {
	return time.Duration(t.rttNanos.Load())
}

// MarkSynced unblocks runOnce's handshake wait. cause is non-nil when
// the server sent a Reject instead of completing the sync sequence.
func (t *Transport) MarkSynced(cause error) {
	t.mu.Lock()
	ch := t.synced
	t.mu.Unlock()
	if ch == nil {
		return
	}
	select {
	case ch <- cause:
	default:
	}
}

// Send writes one framed control message, serialised atomically with
// any concurrent writer.
func (t *Transport) Send(typ MessageType, payload []byte) error {
	t.mu.Lock()
	conn := t.conn
	t.mu.Unlock()
	if conn == nil {
		return errNotConnected("transport has no active connection")
	}
	return conn.WriteFrame(typ, payload)
}

// SendVoice frames and sends one outbound voice packet.
func (t *Transport) SendVoice(payload []byte) error {
	return t.Send(MessageUDPTunnel, payload)
}

// Close requests a graceful shutdown; Run returns nil once the current
// connection, if any, unwinds.
func (t *Transport) Close() error {
	t.closing.Store(true)
	t.setState(StateClosing)
	t.mu.Lock()
	conn := t.conn
	t.mu.Unlock()
	if conn == nil {
		return nil
	}
	return conn.Close()
}

// ConnectionState exposes the negotiated TLS state of the current
// connection, or the zero value if not connected.
func (t *Transport) ConnectionState() tls.ConnectionState {
	t.mu.Lock()
	conn := t.conn
	t.mu.Unlock()
	if conn == nil {
		return tls.ConnectionState{}
	}
	return conn.ConnectionState()
}
