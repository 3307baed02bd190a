package gumble

import (
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/tikki/gumble/gumble/mumbleproto"
)

// Users is the user-table state shadow, keyed by
// 32-bit session id. Rather than a long-lived "myself" pointer, the
// local user is tracked as a stable session id plus lookup.
type Users struct {
	mu sync.RWMutex

	bySession map[uint32]*User

	myself     uint32
	haveMyself bool

	// channels backs User.Channel(); set once by Session after both
	// tables exist, read-only thereafter.
	channels *Channels

	blobs          *BlobCache
	listeners      *Listeners
	commands       *CommandQueue
	limits         *MessageLimits
	logger         *slog.Logger
	reauthenticate func(token string)

	receiveSound atomic.Bool
}

// NewUsers constructs an empty Users table. Sound reception defaults
// to enabled, matching InboundQueue's own default.
func NewUsers(blobs *BlobCache, listeners *Listeners, commands *CommandQueue, limits *MessageLimits, logger *slog.Logger) *Users {
	if logger == nil {
		logger = slog.Default()
	}
	u := &Users{
		bySession: make(map[uint32]*User),
		blobs:     blobs,
		listeners: listeners,
		commands:  commands,
		limits:    limits,
		logger:    logger,
	}
	u.receiveSound.Store(true)
	return u
}

// SetLocalSession records which session id is this connection's own
// user, called once the server's ServerSync message arrives.
func (u *Users) SetLocalSession(session uint32) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.myself = session
	u.haveMyself = true
}

// MyselfSession returns the local session id, if known yet.
func (u *Users) MyselfSession() (uint32, bool) {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return u.myself, u.haveMyself
}

// Myself returns the local User, if its UserState has arrived yet.
func (u *Users) Myself() (*User, bool) {
	u.mu.RLock()
	defer u.mu.RUnlock()
	if !u.haveMyself {
		return nil, false
	}
	user, ok := u.bySession[u.myself]
	return user, ok
}

// BySession returns the user with the given session id, if known.
func (u *Users) BySession(session uint32) (*User, bool) {
	u.mu.RLock()
	defer u.mu.RUnlock()
	user, ok := u.bySession[session]
	return user, ok
}

// All returns a snapshot of every currently connected user.
func (u *Users) All() []*User {
	u.mu.RLock()
	defer u.mu.RUnlock()
	out := make([]*User, 0, len(u.bySession))
	for _, user := range u.bySession {
		out = append(out, user)
	}
	return out
}

// Count reports the number of connected users.
func (u *Users) Count() int {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return len(u.bySession)
}

// SetReceiveSound toggles session-wide voice routing. While false, no
// inbound voice is routed to any user, whatever that user's own
// User.SetReceiveSound setting; while true, the per-user setting
// decides.
func (u *Users) SetReceiveSound(v bool) {
	u.receiveSound.Store(v)
}

func (u *Users) inChannel(channelID uint32) []*User {
	u.mu.RLock()
	defer u.mu.RUnlock()
	var out []*User
	for _, user := range u.bySession {
		if user.channelID == channelID {
			out = append(out, user)
		}
	}
	return out
}

// Upsert applies an inbound UserState, creating the user on first
// sight or diffing it against its existing state. The
// create/update callback fires while the table lock is held.
func (u *Users) Upsert(msg *mumbleproto.UserState) (*User, error) {
	if msg.Session == nil {
		return nil, errProtocol("UserState without a session id", nil)
	}
	session := *msg.Session

	u.mu.Lock()
	defer u.mu.Unlock()

	user, existed := u.bySession[session]
	if !existed {
		queue, err := NewInboundQueue(u.logger)
		if err != nil {
			return nil, err
		}
		user = &User{users: u, session: session, sound: queue}
		u.bySession[session] = user
	}
	diff := user.applyState(msg, u.logger)

	if !existed {
		u.listeners.OnUserCreated(&UserChangeEvent{User: user, Diff: diff})
	} else if len(diff) > 0 {
		u.listeners.OnUserUpdated(&UserChangeEvent{User: user, Diff: diff})
	}
	return user, nil
}

// Remove deletes a user on the server's say-so.
func (u *Users) Remove(msg *mumbleproto.UserRemove) {
	u.mu.Lock()
	defer u.mu.Unlock()

	user, ok := u.bySession[msg.Session]
	if !ok {
		return
	}
	delete(u.bySession, msg.Session)
	u.listeners.OnUserRemoved(&UserChangeEvent{User: user})
}

// RouteVoice decodes and enqueues every frame of an inbound voice
// packet into its sender's InboundQueue, firing the sound_received
// callback for each chunk produced.
// Multi-frame legacy packets give the nth frame sequence base+n.
func (u *Users) RouteVoice(pkt *VoicePacket) {
	if !u.receiveSound.Load() {
		return
	}
	u.mu.RLock()
	user, ok := u.bySession[pkt.Sender]
	u.mu.RUnlock()
	if !ok {
		return
	}
	for i, frame := range pkt.Frames {
		end := pkt.End && i == len(pkt.Frames)-1
		chunk := user.sound.Add(frame, pkt.Sequence+int64(i), pkt.Type, pkt.Target, end)
		if chunk != nil {
			user.fireSound(chunk)
		}
	}
}
