package gumble

import (
	"bytes"
	"log/slog"
	"sync"

	"github.com/tikki/gumble/gumble/mumbleproto"
)

// User mirrors one server-known user, keyed by its
// 32-bit session id. Every attribute field is guarded by the owning
// Users table's lock; the InboundQueue it owns has its own
// independent lock.
type User struct {
	users *Users

	session uint32

	name            string
	channelID       uint32
	mute            bool
	deaf            bool
	selfMute        bool
	selfDeaf        bool
	suppress        bool
	recording       bool
	hasActor        bool
	actor           uint32
	hasUserID       bool
	userID          uint32
	comment         string
	commentHash     []byte
	textureHash     []byte
	unknown         mumbleproto.UnknownFields

	sound *InboundQueue

	soundMu sync.Mutex
	onSound func(*SoundChunk)
}

// Session returns the user's 32-bit session id, stable for the life of
// this connection but not across reconnects.
func (u *User) Session() uint32 { return u.session }

// IsSelf reports whether this User is the local connection's own user.
func (u *User) IsSelf() bool {
	session, ok := u.users.MyselfSession()
	return ok && session == u.session
}

func (u *User) Name() string {
	u.users.mu.RLock()
	defer u.users.mu.RUnlock()
	return u.name
}

func (u *User) ChannelID() uint32 {
	u.users.mu.RLock()
	defer u.users.mu.RUnlock()
	return u.channelID
}

func (u *User) Channel() (*Channel, bool) {
	return u.users.channels.ByID(u.ChannelID())
}

func (u *User) Muted() bool {
	u.users.mu.RLock()
	defer u.users.mu.RUnlock()
	return u.mute
}

func (u *User) Deafened() bool {
	u.users.mu.RLock()
	defer u.users.mu.RUnlock()
	return u.deaf
}

func (u *User) SelfMute() bool {
	u.users.mu.RLock()
	defer u.users.mu.RUnlock()
	return u.selfMute
}

func (u *User) SelfDeaf() bool {
	u.users.mu.RLock()
	defer u.users.mu.RUnlock()
	return u.selfDeaf
}

func (u *User) Suppressed() bool {
	u.users.mu.RLock()
	defer u.users.mu.RUnlock()
	return u.suppress
}

func (u *User) Recording() bool {
	u.users.mu.RLock()
	defer u.users.mu.RUnlock()
	return u.recording
}

func (u *User) Comment() string {
	u.users.mu.RLock()
	defer u.users.mu.RUnlock()
	return u.comment
}

func (u *User) CommentHash() []byte {
	u.users.mu.RLock()
	defer u.users.mu.RUnlock()
	return u.commentHash
}

func (u *User) TextureHash() []byte {
	u.users.mu.RLock()
	defer u.users.mu.RUnlock()
	return u.textureHash
}

// UnknownFields returns a snapshot of wire fields the library does not
// model, keyed by protobuf field number.
func (u *User) UnknownFields() mumbleproto.UnknownFields {
	u.users.mu.RLock()
	defer u.users.mu.RUnlock()
	out := make(mumbleproto.UnknownFields, len(u.unknown))
	for num, raw := range u.unknown {
		out[num] = raw
	}
	return out
}

// OnSoundReceived registers the callback invoked for every chunk
// decoded into this user's InboundQueue. A nil f clears it.
func (u *User) OnSoundReceived(f func(*SoundChunk)) {
	u.soundMu.Lock()
	defer u.soundMu.Unlock()
	u.onSound = f
}

func (u *User) fireSound(chunk *SoundChunk) {
	u.soundMu.Lock()
	cb := u.onSound
	u.soundMu.Unlock()
	if cb != nil {
		cb(chunk)
	}
	u.users.listeners.OnSoundReceived(&SoundEvent{User: u, Chunk: chunk})
}

// SetReceiveSound toggles decoding/buffering for just this user's
// queue. It takes effect only while session-wide reception
// (Users.SetReceiveSound) is enabled.
func (u *User) SetReceiveSound(v bool) {
	u.sound.SetReceiveSound(v)
}

func (u *User) modUserState(f func(*mumbleproto.UserState)) *Command {
	msg := &mumbleproto.UserState{Session: uint32Ptr(u.session)}
	f(msg)
	return u.users.commands.Submit(MessageUserState, msg.Marshal())
}

// Mute mutes this user; muting the local user sets self_mute instead
// of mute.
func (u *User) Mute() *Command {
	if u.IsSelf() {
		return u.modUserState(func(m *mumbleproto.UserState) { m.SelfMute = boolPtr(true) })
	}
	return u.modUserState(func(m *mumbleproto.UserState) { m.Mute = boolPtr(true) })
}

func (u *User) Unmute() *Command {
	if u.IsSelf() {
		return u.modUserState(func(m *mumbleproto.UserState) { m.SelfMute = boolPtr(false) })
	}
	return u.modUserState(func(m *mumbleproto.UserState) { m.Mute = boolPtr(false) })
}

func (u *User) Deafen() *Command {
	if u.IsSelf() {
		return u.modUserState(func(m *mumbleproto.UserState) { m.SelfDeaf = boolPtr(true) })
	}
	return u.modUserState(func(m *mumbleproto.UserState) { m.Deaf = boolPtr(true) })
}

func (u *User) Undeafen() *Command {
	if u.IsSelf() {
		return u.modUserState(func(m *mumbleproto.UserState) { m.SelfDeaf = boolPtr(false) })
	}
	return u.modUserState(func(m *mumbleproto.UserState) { m.Deaf = boolPtr(false) })
}

func (u *User) Suppress() *Command {
	return u.modUserState(func(m *mumbleproto.UserState) { m.Suppress = boolPtr(true) })
}

func (u *User) Unsuppress() *Command {
	return u.modUserState(func(m *mumbleproto.UserState) { m.Suppress = boolPtr(false) })
}

func (u *User) SetRecording(recording bool) *Command {
	return u.modUserState(func(m *mumbleproto.UserState) { m.Recording = boolPtr(recording) })
}

// SetComment sets this user's comment.
func (u *User) SetComment(comment string) *Command {
	return u.modUserState(func(m *mumbleproto.UserState) { m.Comment = stringPtr(comment) })
}

// SetTexture sets this user's avatar texture.
func (u *User) SetTexture(texture []byte) *Command {
	return u.modUserState(func(m *mumbleproto.UserState) { m.Texture = texture })
}

// Register registers the user with the server (mostly meaningful for
// the local user).
func (u *User) Register() *Command {
	return u.modUserState(func(m *mumbleproto.UserState) { m.UserID = uint32Ptr(0) })
}

// MoveIn moves this user into channelID, optionally re-authenticating
// with an extra ACL token first.
func (u *User) MoveIn(channelID uint32, token string) *Command {
	if token != "" && u.users.reauthenticate != nil {
		u.users.reauthenticate(token)
	}
	return u.modUserState(func(m *mumbleproto.UserState) { m.ChannelID = uint32Ptr(channelID) })
}

// SendTextMessage sends a private chat message to this user, checking
// its length against the server's advertised limits.
func (u *User) SendTextMessage(message string) error {
	if err := u.users.limits.CheckText(message); err != nil {
		return err
	}
	msg := &mumbleproto.TextMessage{Session: []uint32{u.session}, Message: message}
	u.users.commands.Submit(MessageTextMessage, msg.Marshal())
	return nil
}

// applyState merges msg into u, returning the set of changed field
// names. session, actor, and the hash fields (whose inline
// bytes are cached separately) are excluded from the diff.
func (u *User) applyState(msg *mumbleproto.UserState, logger *slog.Logger) map[string]bool {
	diff := make(map[string]bool)

	if msg.Actor != nil {
		u.actor = *msg.Actor
		u.hasActor = true
	}
	if msg.Name != nil && u.name != *msg.Name {
		u.name = *msg.Name
		diff["name"] = true
	}
	if msg.UserID != nil && (!u.hasUserID || u.userID != *msg.UserID) {
		u.userID = *msg.UserID
		u.hasUserID = true
		diff["user_id"] = true
	}
	if msg.ChannelID != nil && u.channelID != *msg.ChannelID {
		u.channelID = *msg.ChannelID
		diff["channel_id"] = true
	}
	if msg.Mute != nil && u.mute != *msg.Mute {
		u.mute = *msg.Mute
		diff["mute"] = true
	}
	if msg.Deaf != nil && u.deaf != *msg.Deaf {
		u.deaf = *msg.Deaf
		diff["deaf"] = true
	}
	if msg.Suppress != nil && u.suppress != *msg.Suppress {
		u.suppress = *msg.Suppress
		diff["suppress"] = true
	}
	if msg.SelfMute != nil && u.selfMute != *msg.SelfMute {
		u.selfMute = *msg.SelfMute
		diff["self_mute"] = true
	}
	if msg.SelfDeaf != nil && u.selfDeaf != *msg.SelfDeaf {
		u.selfDeaf = *msg.SelfDeaf
		diff["self_deaf"] = true
	}
	if msg.Recording != nil && u.recording != *msg.Recording {
		u.recording = *msg.Recording
		diff["recording"] = true
	}

	if msg.CommentHash != nil {
		if !bytes.Equal(u.commentHash, msg.CommentHash) {
			u.commentHash = msg.CommentHash
		}
		if msg.Comment != nil {
			u.comment = *msg.Comment
			u.users.blobs.Set(msg.CommentHash, []byte(*msg.Comment))
		} else {
			u.users.blobs.RequestIfMissing(BlobUserComment, msg.CommentHash)
		}
	} else if msg.Comment != nil && u.comment != *msg.Comment {
		u.comment = *msg.Comment
		diff["comment"] = true
	}

	if msg.TextureHash != nil {
		if !bytes.Equal(u.textureHash, msg.TextureHash) {
			u.textureHash = msg.TextureHash
		}
		if msg.Texture != nil {
			u.users.blobs.Set(msg.TextureHash, msg.Texture)
		} else {
			u.users.blobs.RequestIfMissing(BlobUserTexture, msg.TextureHash)
		}
	}

	if len(msg.Unknown) > 0 {
		if u.unknown == nil {
			u.unknown = make(mumbleproto.UnknownFields)
		}
		for num, raw := range msg.Unknown {
			u.unknown[num] = raw
		}
	}

	return diff
}
