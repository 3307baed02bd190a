package gumble

// ConnectEvent fires once ServerSync completes the handshake and the
// local session id is known.
type ConnectEvent struct {
	Session *Session
}

// DisconnectReason distinguishes why a Session stopped running.
type DisconnectReason int

const (
	DisconnectError DisconnectReason = iota
	DisconnectUser
	DisconnectKicked
	DisconnectRejected
)

// DisconnectEvent fires when the transport gives up for good, whether
// the host asked for it or reconnection was exhausted.
type DisconnectEvent struct {
	Session *Session
	Reason  DisconnectReason
	Err     error
}

// UserChangeEvent reports a user create/update/remove, carrying the
// diff set of changed attribute names. Diff is nil for removal.
type UserChangeEvent struct {
	User *User
	Diff map[string]bool
}

// ChannelChangeEvent reports a channel create/update/remove, carrying
// the diff set of changed attribute names. Diff is nil for removal.
type ChannelChangeEvent struct {
	Channel *Channel
	Diff    map[string]bool
}

// TextMessageEvent carries one inbound chat message with its
// identities resolved against the current state shadows. Sender is
// nil if the actor left before the message was dispatched to
// callbacks.
type TextMessageEvent struct {
	Sender   *User
	Channels []*Channel
	Trees    []*Channel
	Message  string
}

// SoundEvent carries one decoded, jitter-ordered chunk of a user's
// inbound audio.
type SoundEvent struct {
	User  *User
	Chunk *SoundChunk
}

// RawEvent carries an uninterpreted control message for the callback
// kinds the dispatcher surfaces without parsing their payload.
type RawEvent struct {
	Type    MessageType
	Payload []byte
}
