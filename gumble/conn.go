package gumble

import (
	"crypto/tls"
	"encoding/binary"
	"io"
	"sync"
)

// MessageType identifies a control-channel frame. Values match the
// Mumble wire protocol's message type enumeration.
type MessageType uint16

const (
	MessageVersion MessageType = iota
	MessageUDPTunnel
	MessageAuthenticate
	MessagePing
	MessageReject
	MessageServerSync
	MessageChannelRemove
	MessageChannelState
	MessageUserRemove
	MessageUserState
	MessageBanList
	MessageTextMessage
	MessagePermissionDenied
	MessageACL
	MessageQueryUsers
	MessageCryptSetup
	MessageContextActionModify
	MessageContextAction
	MessageUserList
	MessageVoiceTarget
	MessagePermissionQuery
	MessageCodecVersion
	MessageUserStats
	MessageRequestBlob
	MessageServerConfig
	MessageSuggestConfig
)

// frameHeaderSize is the 2-byte type + 4-byte length header preceding
// every control frame.
const frameHeaderSize = 6

// maxFrameLength bounds a single frame payload to guard against a
// malicious or corrupt length field causing an unbounded allocation.
const maxFrameLength = 8 * 1024 * 1024

// Conn wraps a TLS connection with Mumble's control framing: each
// frame is fully buffered before being handed to the caller. Writes
// are serialised by a single lock so that frames interleave atomically
// on the wire.
type Conn struct {
	tls *tls.Conn

	writeMu sync.Mutex
}

// NewConn wraps an established TLS connection.
func NewConn(c *tls.Conn) *Conn {
	return &Conn{tls: c}
}

// ReadFrame blocks until one full frame has been read, returning its
// type and payload. It never returns a partial frame.
func (c *Conn) ReadFrame() (MessageType, []byte, error) {
	var header [frameHeaderSize]byte
	if _, err := io.ReadFull(c.tls, header[:]); err != nil {
		return 0, nil, err
	}

	typ := MessageType(binary.BigEndian.Uint16(header[:2]))
	length := binary.BigEndian.Uint32(header[2:])
	if length > maxFrameLength {
		return 0, nil, errProtocol("frame length exceeds maximum", nil)
	}

	payload := make([]byte, length)
	if length > 0 {
		if _, err := io.ReadFull(c.tls, payload); err != nil {
			return 0, nil, err
		}
	}

	return typ, payload, nil
}

// WriteFrame atomically writes one frame's header and payload.
func (c *Conn) WriteFrame(typ MessageType, payload []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	var header [frameHeaderSize]byte
	binary.BigEndian.PutUint16(header[:2], uint16(typ))
	binary.BigEndian.PutUint32(header[2:], uint32(len(payload)))

	if _, err := c.tls.Write(header[:]); err != nil {
		return err
	}
	if len(payload) > 0 {
		if _, err := c.tls.Write(payload); err != nil {
			return err
		}
	}
	return nil
}

// Close closes the underlying TLS connection.
func (c *Conn) Close() error {
	return c.tls.Close()
}

// ConnectionState exposes the negotiated TLS connection state, useful
// for certificate pinning or logging.
func (c *Conn) ConnectionState() tls.ConnectionState {
	return c.tls.ConnectionState()
}
