package gumble

import (
	"context"
	"crypto/tls"
	"encoding/binary"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tikki/gumble/gumble/mumbleproto"
)

// Session is the single owning object of a connection: it wires
// Transport, the Control Dispatcher, Voice Codec routing, Inbound/
// Outbound Audio, the Command Queue, the state shadows, and Callback
// Fan-out together, and is the host-facing entry point.
type Session struct {
	cfg Config

	transport *Transport
	commands  *CommandQueue
	blobs     *BlobCache
	users     *Users
	channels  *Channels
	listeners *Listeners
	limits    *MessageLimits
	outbound  *OutboundAudio

	localSession atomic.Uint32
	haveSession  atomic.Bool
	maxBandwidth atomic.Uint32

	verMu         sync.Mutex
	serverVersion mumbleproto.Version
	codecVersion  mumbleproto.CodecVersion

	readyOnce sync.Once
	readyCh   chan struct{}

	ctx    context.Context
	cancel context.CancelFunc
	group  *errgroup.Group

	runErr    atomic.Value // error
	closeOnce sync.Once
}

// NewSession builds a Session and every component hanging off it, but
// does not connect -- call Start for that.
func NewSession(cfg *Config) (*Session, error) {
	c := *cfg
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.FrameDuration == 0 {
		c.FrameDuration = 10 * time.Millisecond
	}
	if c.OpusBitrate == 0 {
		c.OpusBitrate = 40000
	}
	c.Reconnect = c.Reconnect.withDefaults()

	s := &Session{cfg: c, limits: &MessageLimits{}, readyCh: make(chan struct{})}

	if c.Listeners != nil {
		s.listeners = c.Listeners
	} else {
		s.listeners = NewListeners(c.DeferCallbacks)
	}

	s.commands = NewCommandQueue(c.CommandQueueCapacity)
	s.blobs = NewBlobCache(s.requestBlob)
	s.users = NewUsers(s.blobs, s.listeners, s.commands, s.limits, c.Logger)
	s.channels = NewChannels(s.blobs, s.listeners, s.commands, s.limits)
	s.channels.users = s.users
	s.users.channels = s.channels
	s.users.reauthenticate = s.reauthenticate

	tlsConfig := c.TLSConfig
	if tlsConfig == nil {
		tlsConfig = &tls.Config{}
	} else {
		tlsConfig = tlsConfig.Clone()
	}
	if c.HasCertificate {
		tlsConfig.Certificates = append(tlsConfig.Certificates, c.Certificate)
	}

	s.transport = NewTransport(TransportConfig{
		Addr:          c.Address,
		TLSConfig:     tlsConfig,
		Username:      c.Username,
		Password:      c.Password,
		Tokens:        c.Tokens,
		Release:       c.Release,
		Reconnect:     c.Reconnect,
		Logger:        c.Logger,
		OnControl:     s.handleControl,
		OnVoice:       s.handleVoice,
		OnStateChange: s.handleStateChange,
	})

	outbound, err := NewOutboundAudio(s.transport.SendVoice, c.OpusBitrate, c.FrameDuration, c.Logger)
	if err != nil {
		return nil, err
	}
	s.outbound = outbound

	return s, nil
}

// Start begins connecting in the background. Use IsReady to wait for the handshake to complete.
func (s *Session) Start() {
	s.ctx, s.cancel = context.WithCancel(context.Background())
	g, ctx := errgroup.WithContext(s.ctx)
	s.group = g

	g.Go(func() error { return s.transport.Run(ctx) })
	g.Go(func() error { return s.outbound.Run(ctx) })
	g.Go(func() error { return s.commandLoop(ctx) })
	if s.cfg.DeferCallbacks {
		g.Go(func() error { s.listeners.Run(ctx); return nil })
	}

	go func() {
		err := g.Wait()
		s.runErr.Store(errOrNil(err))
	}()
}

// errOrNil boxes a possibly-nil error into a non-nil interface value
// so atomic.Value.Store never receives the untyped nil that would
// panic it.
func errOrNil(err error) error {
	if err == nil {
		return errNone
	}
	return err
}

// errNone is the sentinel stored in Session.runErr while no failure
// has occurred.
var errNone = &Error{Kind: -1, Message: "no error"}

// Err returns the reason the runtime stopped, or nil while it is
// still running or stopped cleanly.
func (s *Session) Err() error {
	v := s.runErr.Load()
	if v == nil || v == errNone {
		return nil
	}
	return v.(error)
}

// IsReady blocks until the handshake completes or timeout elapses
// (timeout <= 0 waits forever), returning whether it completed.
func (s *Session) IsReady(timeout time.Duration) bool {
	if timeout <= 0 {
		<-s.readyCh
		return true
	}
	select {
	case <-s.readyCh:
		return true
	case <-time.After(timeout):
		return false
	}
}

// Users returns the user-table state shadow.
func (s *Session) Users() *Users { return s.users }

// Channels returns the channel-tree state shadow.
func (s *Session) Channels() *Channels { return s.channels }

// Blobs returns the comment/texture/description blob cache.
func (s *Session) Blobs() *BlobCache { return s.blobs }

// Listeners returns the callback fan-out, for attaching host
// observers.
func (s *Session) Listeners() *Listeners { return s.listeners }

// LocalSession returns the local connection's session id, known once
// ServerSync has arrived.
func (s *Session) LocalSession() (uint32, bool) {
	return s.localSession.Load(), s.haveSession.Load()
}

// MaxBandwidth returns the server's advertised total bandwidth cap in
// bits/sec, or 0 if the server has not announced one.
func (s *Session) MaxBandwidth() uint32 { return s.maxBandwidth.Load() }

// ServerVersion returns the server's Version announcement.
func (s *Session) ServerVersion() mumbleproto.Version {
	s.verMu.Lock()
	defer s.verMu.Unlock()
	return s.serverVersion
}

// ServerCodecVersion returns the server's codec preference
// announcement.
func (s *Session) ServerCodecVersion() mumbleproto.CodecVersion {
	s.verMu.Lock()
	defer s.verMu.Unlock()
	return s.codecVersion
}

// Myself returns the local user's shadow, if its UserState has arrived
// yet.
func (s *Session) Myself() (*User, bool) { return s.users.Myself() }

// State returns the transport's lifecycle state.
func (s *Session) State() State { return s.transport.State() }

// MessageTarget is satisfied by *Channel and *User, the two recipients
// a text message may address.
type MessageTarget interface {
	SendTextMessage(string) error
}

// SendTextMessage sends text to target (a *Channel or *User), checked
// against the server's advertised length limits.
func (s *Session) SendTextMessage(target MessageTarget, text string) error {
	return target.SendTextMessage(text)
}

// MoveSelf asks the server to move the local user into channelID.
func (s *Session) MoveSelf(channelID uint32) error {
	session, ok := s.LocalSession()
	if !ok {
		return errNotConnected("local session id not yet known")
	}
	msg := &mumbleproto.UserState{Session: uint32Ptr(session), ChannelID: uint32Ptr(channelID)}
	s.commands.Submit(MessageUserState, msg.Marshal())
	return nil
}

func (s *Session) withUser(session uint32, f func(*User) *Command) error {
	user, ok := s.users.BySession(session)
	if !ok {
		return errNotConnected("unknown session")
	}
	f(user)
	return nil
}

// Mute, Unmute, Deafen, Undeafen, Suppress, SetRecording operate on the
// user with the given session id.
func (s *Session) Mute(session uint32) error     { return s.withUser(session, (*User).Mute) }
func (s *Session) Unmute(session uint32) error   { return s.withUser(session, (*User).Unmute) }
func (s *Session) Deafen(session uint32) error   { return s.withUser(session, (*User).Deafen) }
func (s *Session) Undeafen(session uint32) error { return s.withUser(session, (*User).Undeafen) }
func (s *Session) Suppress(session uint32) error { return s.withUser(session, (*User).Suppress) }
func (s *Session) SetRecording(session uint32, recording bool) error {
	return s.withUser(session, func(u *User) *Command { return u.SetRecording(recording) })
}

// NewChannel asks the server to create a channel under parent.
func (s *Session) NewChannel(parent uint32, name string, temporary bool) *Command {
	return s.channels.New(parent, name, temporary)
}

// RemoveChannel asks the server to delete a channel.
func (s *Session) RemoveChannel(id uint32) *Command {
	return s.channels.RemoveChannel(id)
}

// SetVoiceTarget configures which sessions/channel a whisper target id
// routes to.
func (s *Session) SetVoiceTarget(id uint32, sessions []uint32) *Command {
	msg := &mumbleproto.VoiceTarget{ID: id, Targets: []mumbleproto.VoiceTargetEntry{{Session: sessions}}}
	return s.commands.Submit(MessageVoiceTarget, msg.Marshal())
}

// SetReceiveSound toggles the session-wide default for decoding
// inbound voice.
func (s *Session) SetReceiveSound(v bool) {
	s.users.SetReceiveSound(v)
}

// AddSound encodes and paces pcm (s16le, 48kHz mono) out over the
// selected voice target. target selects the 5-bit
// routing field (0 normal, 1..30 whisper, 31 loopback).
func (s *Session) AddSound(pcm []byte, target uint8) error {
	s.outbound.SetTarget(target)
	return s.outbound.Write(pcm)
}

// EndTalkBurst closes the current outbound talk burst: the final
// voice frame is flagged end-of-transmission so receivers close out
// the stream, and sequence numbering restarts for the next burst.
func (s *Session) EndTalkBurst() error {
	return s.outbound.EndBurst()
}

// RTT returns the most recently measured control-channel round-trip
// time, or 0 before the first ping reply.
func (s *Session) RTT() time.Duration { return s.transport.RTT() }

// OutboundLagged reports whether outbound pacing has dropped a frame
// since the last ClearOutboundLagged.
func (s *Session) OutboundLagged() bool { return s.outbound.Lagged() }

// ClearOutboundLagged resets the outbound lagged flag.
func (s *Session) ClearOutboundLagged() { s.outbound.ClearLagged() }

// Close performs an orderly shutdown: drain pending outbound audio
// briefly, close the transport, then stop accepting commands and
// release every still-queued command with an error.
func (s *Session) Close() error {
	var closeErr error
	s.closeOnce.Do(func() {
		s.outbound.Drain(200 * time.Millisecond)
		closeErr = s.transport.Close()
		s.commands.Close()
		if s.cancel != nil {
			s.cancel()
		}
		if s.group != nil {
			s.group.Wait()
		}
	})
	return closeErr
}

func (s *Session) commandLoop(ctx context.Context) error {
	for {
		cmd, err := s.commands.Next(ctx)
		if err != nil {
			return err
		}
		if cmd == nil {
			return nil
		}
		sendErr := s.transport.Send(cmd.Type, cmd.Payload)
		s.commands.Complete(cmd, sendErr)
	}
}

// reauthenticate re-sends Authenticate with an extra ACL token, used
// by User.MoveIn.
func (s *Session) reauthenticate(token string) {
	auth := &mumbleproto.Authenticate{
		Username: s.cfg.Username,
		Password: s.cfg.Password,
		Tokens:   append(append([]string{}, s.cfg.Tokens...), token),
		Opus:     true,
	}
	if err := s.transport.Send(MessageAuthenticate, auth.Marshal()); err != nil {
		s.cfg.Logger.Warn("gumble: failed to re-authenticate with extra token", "error", err)
	}
}

// requestBlob sends the wire RequestBlob for hash, unpacked as five
// big-endian uint32s per Mumble's SHA-1-hash convention.
func (s *Session) requestBlob(kind BlobKind, hash []byte) error {
	ints := unpackHash(hash)
	msg := &mumbleproto.RequestBlob{}
	switch kind {
	case BlobUserComment:
		msg.SessionComment = ints
	case BlobUserTexture:
		msg.SessionTexture = ints
	case BlobChannelDescription:
		msg.ChannelDescription = ints
	}
	s.commands.Submit(MessageRequestBlob, msg.Marshal())
	return nil
}

func unpackHash(hash []byte) []uint32 {
	out := make([]uint32, 5)
	for i := 0; i < 5; i++ {
		start := i * 4
		if start+4 > len(hash) {
			break
		}
		out[i] = binary.BigEndian.Uint32(hash[start : start+4])
	}
	return out
}

// handleControl demultiplexes one inbound control frame.
func (s *Session) handleControl(typ MessageType, payload []byte) {
	switch typ {
	case MessageServerConfig:
		var m mumbleproto.ServerConfig
		if err := m.Unmarshal(payload); err != nil {
			s.cfg.Logger.Warn("gumble: malformed ServerConfig", "error", err)
			return
		}
		s.limits.SetMaxMessageLength(m.MessageLength)
		s.limits.SetMaxImageLength(m.ImageMessageLength)
		if m.MaxBandwidth != 0 {
			s.maxBandwidth.Store(m.MaxBandwidth)
		}

	case MessageServerSync:
		var m mumbleproto.ServerSync
		if err := m.Unmarshal(payload); err != nil {
			s.cfg.Logger.Warn("gumble: malformed ServerSync", "error", err)
			s.transport.MarkSynced(err)
			return
		}
		s.localSession.Store(m.Session)
		s.haveSession.Store(true)
		if m.MaxBandwidth != 0 {
			s.maxBandwidth.Store(m.MaxBandwidth)
		}
		s.users.SetLocalSession(m.Session)
		s.transport.MarkSynced(nil)
		s.readyOnce.Do(func() { close(s.readyCh) })
		s.listeners.OnConnect(&ConnectEvent{Session: s})

	case MessageReject:
		var m mumbleproto.Reject
		if err := m.Unmarshal(payload); err != nil {
			s.cfg.Logger.Warn("gumble: malformed Reject", "error", err)
		}
		s.transport.MarkSynced(&RejectError{RejectType: m.Type, Reason: m.Reason})

	case MessageChannelState:
		var m mumbleproto.ChannelState
		if err := m.Unmarshal(payload); err != nil {
			s.cfg.Logger.Warn("gumble: malformed ChannelState", "error", err)
			return
		}
		s.channels.Upsert(&m)

	case MessageChannelRemove:
		var m mumbleproto.ChannelRemove
		if err := m.Unmarshal(payload); err != nil {
			s.cfg.Logger.Warn("gumble: malformed ChannelRemove", "error", err)
			return
		}
		s.channels.Delete(m.ChannelID)

	case MessageUserState:
		var m mumbleproto.UserState
		if err := m.Unmarshal(payload); err != nil {
			s.cfg.Logger.Warn("gumble: malformed UserState", "error", err)
			return
		}
		if _, err := s.users.Upsert(&m); err != nil {
			s.cfg.Logger.Warn("gumble: failed to apply UserState", "error", err)
		}

	case MessageUserRemove:
		var m mumbleproto.UserRemove
		if err := m.Unmarshal(payload); err != nil {
			s.cfg.Logger.Warn("gumble: malformed UserRemove", "error", err)
			return
		}
		s.users.Remove(&m)

	case MessageTextMessage:
		var m mumbleproto.TextMessage
		if err := m.Unmarshal(payload); err != nil {
			s.cfg.Logger.Warn("gumble: malformed TextMessage", "error", err)
			return
		}
		s.fireTextMessage(&m)

	case MessagePing:
		s.transport.RecordPingReply()

	case MessageVersion:
		var m mumbleproto.Version
		if err := m.Unmarshal(payload); err != nil {
			s.cfg.Logger.Warn("gumble: malformed Version", "error", err)
			return
		}
		s.verMu.Lock()
		s.serverVersion = m
		s.verMu.Unlock()

	case MessageCodecVersion:
		var m mumbleproto.CodecVersion
		if err := m.Unmarshal(payload); err != nil {
			s.cfg.Logger.Warn("gumble: malformed CodecVersion", "error", err)
			return
		}
		s.verMu.Lock()
		s.codecVersion = m
		s.verMu.Unlock()

	case MessagePermissionDenied:
		s.listeners.OnPermissionDenied(&RawEvent{Type: typ, Payload: payload})
	case MessageACL:
		s.listeners.OnACLReceived(&RawEvent{Type: typ, Payload: payload})
	case MessageContextActionModify, MessageContextAction:
		s.listeners.OnContextAction(&RawEvent{Type: typ, Payload: payload})

	case MessageQueryUsers, MessageUserStats, MessageBanList,
		MessageUserList, MessageVoiceTarget, MessagePermissionQuery,
		MessageSuggestConfig:
		s.listeners.OnRawControl(&RawEvent{Type: typ, Payload: payload})

	case MessageCryptSetup:
		// Carries UDP crypto keys; voice is tunnelled over TCP here, so
		// there is no session state to update.

	default:
		s.cfg.Logger.Debug("gumble: unhandled control message", "type", typ)
	}
}

func (s *Session) fireTextMessage(m *mumbleproto.TextMessage) {
	var sender *User
	if m.Actor != nil {
		sender, _ = s.users.BySession(*m.Actor)
	}
	var chans []*Channel
	for _, id := range m.ChannelID {
		if ch, ok := s.channels.ByID(id); ok {
			chans = append(chans, ch)
		}
	}
	var trees []*Channel
	for _, id := range m.TreeID {
		if ch, ok := s.channels.ByID(id); ok {
			trees = append(trees, ch)
		}
	}
	s.listeners.OnTextMessage(&TextMessageEvent{
		Sender:   sender,
		Channels: chans,
		Trees:    trees,
		Message:  m.Message,
	})
}

// handleVoice decodes one inbound UDPTunnel payload and routes it to
// the sender's InboundQueue. Varint-mangled packets drop silently --
// voice is lossy -- while structural errors are logged.
func (s *Session) handleVoice(payload []byte) {
	pkt, err := DecodeVoicePacket(payload)
	if err != nil {
		var verr *Error
		if errors.As(err, &verr) && verr.Kind == KindVarint {
			return
		}
		s.cfg.Logger.Warn("gumble: dropping malformed voice packet", "error", err)
		return
	}
	s.users.RouteVoice(pkt)
}

func (s *Session) handleStateChange(state State) {
	if state == StateClosed {
		s.listeners.OnDisconnect(&DisconnectEvent{Session: s, Err: s.Err()})
	}
}
