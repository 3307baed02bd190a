package mumbleproto

import (
	"math"

	"google.golang.org/protobuf/encoding/protowire"
)

// Version is sent by both client and server during the handshake.
type Version struct {
	Version   uint32
	Release   string
	OS        string
	OSVersion string
}

func (m *Version) Marshal() []byte {
	var b []byte
	b = appendVarint(b, 1, uint64(m.Version))
	b = appendString(b, 2, m.Release)
	b = appendString(b, 3, m.OS)
	b = appendString(b, 4, m.OSVersion)
	return b
}

func (m *Version) Unmarshal(data []byte) error {
	return forEachField(data, func(num protowire.Number, typ protowire.Type, rest []byte) ([]byte, error) {
		switch num {
		case 1:
			v, r, err := consumeVarint(rest)
			m.Version = u32(v)
			return r, err
		case 2:
			v, r, err := consumeBytes(rest)
			if err == nil {
				m.Release = string(v)
			}
			return r, err
		case 3:
			v, r, err := consumeBytes(rest)
			if err == nil {
				m.OS = string(v)
			}
			return r, err
		case 4:
			v, r, err := consumeBytes(rest)
			if err == nil {
				m.OSVersion = string(v)
			}
			return r, err
		}
		return skipField(num, typ, rest)
	})
}

// Authenticate is sent by the client during the handshake.
type Authenticate struct {
	Username string
	Password string
	Tokens   []string
	Opus     bool
}

func (m *Authenticate) Marshal() []byte {
	var b []byte
	b = appendString(b, 1, m.Username)
	b = appendString(b, 2, m.Password)
	for _, tok := range m.Tokens {
		b = appendString(b, 3, tok)
	}
	b = appendBool(b, 5, m.Opus)
	return b
}

// Ping carries keepalive / RTT accounting. The UDP fields stay zero
// on a control-only connection.
type Ping struct {
	Timestamp  uint64
	Good       uint32
	Late       uint32
	Lost       uint32
	Resync     uint32
	UDPPackets uint32
	TCPPackets uint32
	UDPPingAvg float32
	UDPPingVar float32
	TCPPingAvg float32
	TCPPingVar float32
}

func (m *Ping) Marshal() []byte {
	var b []byte
	b = appendVarint(b, 1, m.Timestamp)
	b = appendVarint(b, 2, uint64(m.Good))
	b = appendVarint(b, 3, uint64(m.Late))
	b = appendVarint(b, 4, uint64(m.Lost))
	b = appendVarint(b, 5, uint64(m.Resync))
	b = appendVarint(b, 6, uint64(m.UDPPackets))
	b = appendVarint(b, 7, uint64(m.TCPPackets))
	b = appendFixed32(b, 8, math.Float32bits(m.UDPPingAvg))
	b = appendFixed32(b, 9, math.Float32bits(m.UDPPingVar))
	b = appendFixed32(b, 10, math.Float32bits(m.TCPPingAvg))
	b = appendFixed32(b, 11, math.Float32bits(m.TCPPingVar))
	return b
}

func (m *Ping) Unmarshal(data []byte) error {
	return forEachField(data, func(num protowire.Number, typ protowire.Type, rest []byte) ([]byte, error) {
		switch num {
		case 1:
			v, r, err := consumeVarint(rest)
			m.Timestamp = v
			return r, err
		case 2:
			v, r, err := consumeVarint(rest)
			m.Good = u32(v)
			return r, err
		case 3:
			v, r, err := consumeVarint(rest)
			m.Late = u32(v)
			return r, err
		case 4:
			v, r, err := consumeVarint(rest)
			m.Lost = u32(v)
			return r, err
		case 5:
			v, r, err := consumeVarint(rest)
			m.Resync = u32(v)
			return r, err
		case 6:
			v, r, err := consumeVarint(rest)
			m.UDPPackets = u32(v)
			return r, err
		case 7:
			v, r, err := consumeVarint(rest)
			m.TCPPackets = u32(v)
			return r, err
		case 8:
			v, r, err := consumeFixed32(rest)
			m.UDPPingAvg = math.Float32frombits(v)
			return r, err
		case 9:
			v, r, err := consumeFixed32(rest)
			m.UDPPingVar = math.Float32frombits(v)
			return r, err
		case 10:
			v, r, err := consumeFixed32(rest)
			m.TCPPingAvg = math.Float32frombits(v)
			return r, err
		case 11:
			v, r, err := consumeFixed32(rest)
			m.TCPPingVar = math.Float32frombits(v)
			return r, err
		}
		return skipField(num, typ, rest)
	})
}

// rejectTypeNames maps the wire RejectType enum to the names used in
// RejectError, matching the real Mumble.proto enumeration.
var rejectTypeNames = map[int32]string{
	0: "None",
	1: "WrongVersion",
	2: "InvalidUsername",
	3: "WrongUserPW",
	4: "WrongServerPW",
	5: "UsernameInUse",
	6: "ServerFull",
	7: "NoCertificate",
	8: "AuthenticatorFail",
}

// Reject is sent when the server refuses the connection.
type Reject struct {
	Type   string
	Reason string
}

func (m *Reject) Unmarshal(data []byte) error {
	return forEachField(data, func(num protowire.Number, typ protowire.Type, rest []byte) ([]byte, error) {
		switch num {
		case 1:
			v, r, err := consumeVarint(rest)
			if err == nil {
				name, ok := rejectTypeNames[int32(v)]
				if !ok {
					name = "Unknown"
				}
				m.Type = name
			}
			return r, err
		case 2:
			v, r, err := consumeBytes(rest)
			if err == nil {
				m.Reason = string(v)
			}
			return r, err
		}
		return skipField(num, typ, rest)
	})
}

// ServerSync announces the local session id.
type ServerSync struct {
	Session      uint32
	MaxBandwidth uint32
	WelcomeText  string
	Permissions  uint64
}

func (m *ServerSync) Unmarshal(data []byte) error {
	return forEachField(data, func(num protowire.Number, typ protowire.Type, rest []byte) ([]byte, error) {
		switch num {
		case 1:
			v, r, err := consumeVarint(rest)
			m.Session = u32(v)
			return r, err
		case 2:
			v, r, err := consumeVarint(rest)
			m.MaxBandwidth = u32(v)
			return r, err
		case 3:
			v, r, err := consumeBytes(rest)
			if err == nil {
				m.WelcomeText = string(v)
			}
			return r, err
		case 4:
			v, r, err := consumeVarint(rest)
			m.Permissions = v
			return r, err
		}
		return skipField(num, typ, rest)
	})
}

// ServerConfig announces server-side limits.
type ServerConfig struct {
	MaxBandwidth       uint32
	WelcomeText        string
	AllowHTML          bool
	MessageLength      uint32
	ImageMessageLength uint32
	MaxUsers           uint32
}

func (m *ServerConfig) Unmarshal(data []byte) error {
	return forEachField(data, func(num protowire.Number, typ protowire.Type, rest []byte) ([]byte, error) {
		switch num {
		case 1:
			v, r, err := consumeVarint(rest)
			m.MaxBandwidth = u32(v)
			return r, err
		case 2:
			v, r, err := consumeBytes(rest)
			if err == nil {
				m.WelcomeText = string(v)
			}
			return r, err
		case 3:
			v, r, err := consumeVarint(rest)
			m.AllowHTML = v != 0
			return r, err
		case 4:
			v, r, err := consumeVarint(rest)
			m.MessageLength = u32(v)
			return r, err
		case 5:
			v, r, err := consumeVarint(rest)
			m.ImageMessageLength = u32(v)
			return r, err
		case 6:
			v, r, err := consumeVarint(rest)
			m.MaxUsers = u32(v)
			return r, err
		}
		return skipField(num, typ, rest)
	})
}

// CodecVersion announces which legacy codecs the server prefers.
type CodecVersion struct {
	Alpha       int32
	Beta        int32
	PreferAlpha bool
	Opus        bool
}

func (m *CodecVersion) Unmarshal(data []byte) error {
	return forEachField(data, func(num protowire.Number, typ protowire.Type, rest []byte) ([]byte, error) {
		switch num {
		case 1:
			v, r, err := consumeVarint(rest)
			m.Alpha = int32(v)
			return r, err
		case 2:
			v, r, err := consumeVarint(rest)
			m.Beta = int32(v)
			return r, err
		case 3:
			v, r, err := consumeVarint(rest)
			m.PreferAlpha = v != 0
			return r, err
		case 4:
			v, r, err := consumeVarint(rest)
			m.Opus = v != 0
			return r, err
		}
		return skipField(num, typ, rest)
	})
}

// CryptSetup carries the OCB-AES128 session keys for the (unused here)
// UDP transport; Mumble always tunnels voice over TCP in this client,
// but the server still sends this message during handshake.
type CryptSetup struct {
	Key         []byte
	ClientNonce []byte
	ServerNonce []byte
}

func (m *CryptSetup) Unmarshal(data []byte) error {
	return forEachField(data, func(num protowire.Number, typ protowire.Type, rest []byte) ([]byte, error) {
		switch num {
		case 1:
			v, r, err := consumeBytes(rest)
			m.Key = v
			return r, err
		case 2:
			v, r, err := consumeBytes(rest)
			m.ClientNonce = v
			return r, err
		case 3:
			v, r, err := consumeBytes(rest)
			m.ServerNonce = v
			return r, err
		}
		return skipField(num, typ, rest)
	})
}

// ChannelState upserts a channel.
type ChannelState struct {
	ChannelID       uint32
	Parent          *uint32
	Name            *string
	Links           []uint32
	Description     *string
	Temporary       *bool
	Position        *int32
	DescriptionHash []byte
	MaxUsers        *uint32

	Unknown UnknownFields
}

func (m *ChannelState) Unmarshal(data []byte) error {
	return forEachField(data, func(num protowire.Number, typ protowire.Type, rest []byte) ([]byte, error) {
		switch num {
		case 1:
			v, r, err := consumeVarint(rest)
			m.ChannelID = u32(v)
			return r, err
		case 2:
			v, r, err := consumeVarint(rest)
			m.Parent = ptrU32(u32(v))
			return r, err
		case 3:
			v, r, err := consumeBytes(rest)
			if err == nil {
				m.Name = ptrString(string(v))
			}
			return r, err
		case 4:
			v, r, err := consumeVarint(rest)
			m.Links = append(m.Links, u32(v))
			return r, err
		case 5:
			v, r, err := consumeBytes(rest)
			if err == nil {
				m.Description = ptrString(string(v))
			}
			return r, err
		case 8:
			v, r, err := consumeVarint(rest)
			m.Temporary = ptrBool(v != 0)
			return r, err
		case 9:
			v, r, err := consumeVarint(rest)
			p := int32(v)
			m.Position = &p
			return r, err
		case 10:
			v, r, err := consumeBytes(rest)
			m.DescriptionHash = v
			return r, err
		case 11:
			v, r, err := consumeVarint(rest)
			m.MaxUsers = ptrU32(u32(v))
			return r, err
		}
		return keepUnknown(&m.Unknown, num, typ, rest)
	})
}

// Marshal serialises a ChannelState for the CreateChannel /
// ChannelState update command paths. ChannelID is omitted
// when zero so a CreateChannel command (which has no id yet -- the
// server assigns one) doesn't accidentally target the root channel.
func (m *ChannelState) Marshal() []byte {
	var b []byte
	if m.ChannelID != 0 {
		b = appendVarint(b, 1, uint64(m.ChannelID))
	}
	if m.Parent != nil {
		b = appendVarint(b, 2, uint64(*m.Parent))
	}
	if m.Name != nil {
		b = appendString(b, 3, *m.Name)
	}
	if m.Description != nil {
		b = appendString(b, 5, *m.Description)
	}
	if m.Temporary != nil {
		b = appendBool(b, 8, *m.Temporary)
	}
	if m.Position != nil {
		b = appendVarint(b, 9, uint64(uint32(*m.Position)))
	}
	if m.MaxUsers != nil {
		b = appendVarint(b, 11, uint64(*m.MaxUsers))
	}
	return b
}

// ChannelRemove signals a channel's deletion.
type ChannelRemove struct {
	ChannelID uint32
}

func (m *ChannelRemove) Marshal() []byte {
	return appendVarint(nil, 1, uint64(m.ChannelID))
}

func (m *ChannelRemove) Unmarshal(data []byte) error {
	return forEachField(data, func(num protowire.Number, typ protowire.Type, rest []byte) ([]byte, error) {
		if num == 1 {
			v, r, err := consumeVarint(rest)
			m.ChannelID = u32(v)
			return r, err
		}
		return skipField(num, typ, rest)
	})
}

// UserState upserts a user, or carries a ModUserState command's
// requested changes.
type UserState struct {
	Session     *uint32
	Actor       *uint32
	Name        *string
	UserID      *uint32
	ChannelID   *uint32
	Mute        *bool
	Deaf        *bool
	Suppress    *bool
	SelfMute    *bool
	SelfDeaf    *bool
	Comment     *string
	CommentHash []byte
	Texture     []byte
	TextureHash []byte
	Recording   *bool

	Unknown UnknownFields
}

func (m *UserState) Unmarshal(data []byte) error {
	return forEachField(data, func(num protowire.Number, typ protowire.Type, rest []byte) ([]byte, error) {
		switch num {
		case 1:
			v, r, err := consumeVarint(rest)
			m.Session = ptrU32(u32(v))
			return r, err
		case 2:
			v, r, err := consumeVarint(rest)
			m.Actor = ptrU32(u32(v))
			return r, err
		case 3:
			v, r, err := consumeBytes(rest)
			if err == nil {
				m.Name = ptrString(string(v))
			}
			return r, err
		case 4:
			v, r, err := consumeVarint(rest)
			m.UserID = ptrU32(u32(v))
			return r, err
		case 5:
			v, r, err := consumeVarint(rest)
			m.ChannelID = ptrU32(u32(v))
			return r, err
		case 6:
			v, r, err := consumeVarint(rest)
			m.Mute = ptrBool(v != 0)
			return r, err
		case 7:
			v, r, err := consumeVarint(rest)
			m.Deaf = ptrBool(v != 0)
			return r, err
		case 8:
			v, r, err := consumeVarint(rest)
			m.Suppress = ptrBool(v != 0)
			return r, err
		case 9:
			v, r, err := consumeVarint(rest)
			m.SelfMute = ptrBool(v != 0)
			return r, err
		case 10:
			v, r, err := consumeVarint(rest)
			m.SelfDeaf = ptrBool(v != 0)
			return r, err
		case 11:
			v, r, err := consumeBytes(rest)
			m.Texture = v
			return r, err
		case 14:
			v, r, err := consumeBytes(rest)
			if err == nil {
				m.Comment = ptrString(string(v))
			}
			return r, err
		case 16:
			v, r, err := consumeBytes(rest)
			m.CommentHash = v
			return r, err
		case 17:
			v, r, err := consumeBytes(rest)
			m.TextureHash = v
			return r, err
		case 19:
			v, r, err := consumeVarint(rest)
			m.Recording = ptrBool(v != 0)
			return r, err
		}
		return keepUnknown(&m.Unknown, num, typ, rest)
	})
}

// Marshal serialises the subset of fields set (non-nil) -- used both
// for outbound ModUserState commands and tests.
func (m *UserState) Marshal() []byte {
	var b []byte
	if m.Session != nil {
		b = appendVarint(b, 1, uint64(*m.Session))
	}
	if m.Actor != nil {
		b = appendVarint(b, 2, uint64(*m.Actor))
	}
	if m.Name != nil {
		b = appendString(b, 3, *m.Name)
	}
	if m.UserID != nil {
		b = appendVarint(b, 4, uint64(*m.UserID))
	}
	if m.ChannelID != nil {
		b = appendVarint(b, 5, uint64(*m.ChannelID))
	}
	if m.Mute != nil {
		b = appendBool(b, 6, *m.Mute)
	}
	if m.Deaf != nil {
		b = appendBool(b, 7, *m.Deaf)
	}
	if m.Suppress != nil {
		b = appendBool(b, 8, *m.Suppress)
	}
	if m.SelfMute != nil {
		b = appendBool(b, 9, *m.SelfMute)
	}
	if m.SelfDeaf != nil {
		b = appendBool(b, 10, *m.SelfDeaf)
	}
	if m.Texture != nil {
		b = appendBytes(b, 11, m.Texture)
	}
	if m.Comment != nil {
		b = appendString(b, 14, *m.Comment)
	}
	if m.Recording != nil {
		b = appendBool(b, 19, *m.Recording)
	}
	return b
}

// UserRemove signals a user's disconnection or kick.
type UserRemove struct {
	Session uint32
	Actor   *uint32
	Reason  *string
	Ban     *bool
}

func (m *UserRemove) Unmarshal(data []byte) error {
	return forEachField(data, func(num protowire.Number, typ protowire.Type, rest []byte) ([]byte, error) {
		switch num {
		case 1:
			v, r, err := consumeVarint(rest)
			m.Session = u32(v)
			return r, err
		case 2:
			v, r, err := consumeVarint(rest)
			m.Actor = ptrU32(u32(v))
			return r, err
		case 3:
			v, r, err := consumeBytes(rest)
			if err == nil {
				m.Reason = ptrString(string(v))
			}
			return r, err
		case 4:
			v, r, err := consumeVarint(rest)
			m.Ban = ptrBool(v != 0)
			return r, err
		}
		return skipField(num, typ, rest)
	})
}

// TextMessage carries a chat message to channels, trees, or sessions.
type TextMessage struct {
	Actor     *uint32
	Session   []uint32
	ChannelID []uint32
	TreeID    []uint32
	Message   string
}

func (m *TextMessage) Marshal() []byte {
	var b []byte
	for _, s := range m.Session {
		b = appendVarint(b, 2, uint64(s))
	}
	for _, c := range m.ChannelID {
		b = appendVarint(b, 3, uint64(c))
	}
	for _, t := range m.TreeID {
		b = appendVarint(b, 4, uint64(t))
	}
	b = appendString(b, 5, m.Message)
	return b
}

func (m *TextMessage) Unmarshal(data []byte) error {
	return forEachField(data, func(num protowire.Number, typ protowire.Type, rest []byte) ([]byte, error) {
		switch num {
		case 1:
			v, r, err := consumeVarint(rest)
			m.Actor = ptrU32(u32(v))
			return r, err
		case 2:
			v, r, err := consumeVarint(rest)
			m.Session = append(m.Session, u32(v))
			return r, err
		case 3:
			v, r, err := consumeVarint(rest)
			m.ChannelID = append(m.ChannelID, u32(v))
			return r, err
		case 4:
			v, r, err := consumeVarint(rest)
			m.TreeID = append(m.TreeID, u32(v))
			return r, err
		case 5:
			v, r, err := consumeBytes(rest)
			if err == nil {
				m.Message = string(v)
			}
			return r, err
		}
		return skipField(num, typ, rest)
	})
}

// RequestBlob asks the server for comment/texture/description bytes
// behind a hash the shadow has not resolved yet. Hashes
// are transmitted unpacked as five big-endian uint32s.
type RequestBlob struct {
	SessionTexture     []uint32
	SessionComment     []uint32
	ChannelDescription []uint32
}

func (m *RequestBlob) Marshal() []byte {
	var b []byte
	for _, v := range m.SessionTexture {
		b = appendVarint(b, 1, uint64(v))
	}
	for _, v := range m.SessionComment {
		b = appendVarint(b, 2, uint64(v))
	}
	for _, v := range m.ChannelDescription {
		b = appendVarint(b, 3, uint64(v))
	}
	return b
}

// VoiceTargetEntry selects one set of sessions (or a channel+group) a
// VoiceTarget id applies to.
type VoiceTargetEntry struct {
	Session   []uint32
	ChannelID *uint32
	Group     *string
}

// VoiceTarget assigns sessions/channels to a whisper target id.
type VoiceTarget struct {
	ID      uint32
	Targets []VoiceTargetEntry
}

func (m *VoiceTarget) Marshal() []byte {
	var b []byte
	b = appendVarint(b, 1, uint64(m.ID))
	for _, t := range m.Targets {
		var tb []byte
		for _, s := range t.Session {
			tb = appendVarint(tb, 1, uint64(s))
		}
		if t.ChannelID != nil {
			tb = appendVarint(tb, 2, uint64(*t.ChannelID))
		}
		if t.Group != nil {
			tb = appendString(tb, 3, *t.Group)
		}
		b = appendBytes(b, 2, tb)
	}
	return b
}

// RawMessage holds an uninterpreted control message -- used for
// message types the dispatcher forwards verbatim via the "raw
// control" callback.
type RawMessage struct {
	Payload []byte
}
