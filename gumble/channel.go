package gumble

import (
	"bytes"

	"github.com/tikki/gumble/gumble/mumbleproto"
)

// Channel mirrors one server-known channel. Every
// field is guarded by the owning Channels table's lock; Channel itself
// holds no lock of its own.
type Channel struct {
	channels *Channels

	id              uint32
	parent          uint32
	hasParent       bool
	name            string
	description     string
	descriptionHash []byte
	temporary       bool
	maxUsers        uint32
	position        int32
	links           []uint32
	unknown         mumbleproto.UnknownFields
}

// ID returns the channel's 32-bit identifier (0 is always the root).
func (ch *Channel) ID() uint32 {
	ch.channels.mu.RLock()
	defer ch.channels.mu.RUnlock()
	return ch.id
}

// Parent returns the parent channel id and whether this channel has
// one (the root never does).
func (ch *Channel) Parent() (uint32, bool) {
	ch.channels.mu.RLock()
	defer ch.channels.mu.RUnlock()
	return ch.parent, ch.hasParent
}

// Name returns the channel's display name.
func (ch *Channel) Name() string {
	ch.channels.mu.RLock()
	defer ch.channels.mu.RUnlock()
	return ch.name
}

// Description returns the channel's inline description, if the server
// sent one directly rather than just a hash.
func (ch *Channel) Description() string {
	ch.channels.mu.RLock()
	defer ch.channels.mu.RUnlock()
	return ch.description
}

// DescriptionHash returns the 20-byte hash identifying the channel's
// description blob, or nil if the server has not advertised one.
func (ch *Channel) DescriptionHash() []byte {
	ch.channels.mu.RLock()
	defer ch.channels.mu.RUnlock()
	return ch.descriptionHash
}

// Temporary reports whether the channel is removed once empty.
func (ch *Channel) Temporary() bool {
	ch.channels.mu.RLock()
	defer ch.channels.mu.RUnlock()
	return ch.temporary
}

// MaxUsers returns the channel's configured user limit, 0 meaning
// unlimited.
func (ch *Channel) MaxUsers() uint32 {
	ch.channels.mu.RLock()
	defer ch.channels.mu.RUnlock()
	return ch.maxUsers
}

// Position returns the channel's sort-order hint.
func (ch *Channel) Position() int32 {
	ch.channels.mu.RLock()
	defer ch.channels.mu.RUnlock()
	return ch.position
}

// UnknownFields returns a snapshot of wire fields the library does not
// model, keyed by protobuf field number.
func (ch *Channel) UnknownFields() mumbleproto.UnknownFields {
	ch.channels.mu.RLock()
	defer ch.channels.mu.RUnlock()
	out := make(mumbleproto.UnknownFields, len(ch.unknown))
	for num, raw := range ch.unknown {
		out[num] = raw
	}
	return out
}

// Children returns the channel's immediate children.
func (ch *Channel) Children() []*Channel {
	return ch.channels.childrenOf(ch.ID())
}

// Descendants returns every channel transitively under this one.
func (ch *Channel) Descendants() []*Channel {
	var out []*Channel
	var walk func(*Channel)
	walk = func(c *Channel) {
		for _, child := range c.Children() {
			out = append(out, child)
			walk(child)
		}
	}
	walk(ch)
	return out
}

// Users returns the users currently in this channel.
func (ch *Channel) Users() []*User {
	if ch.channels.users == nil {
		return nil
	}
	return ch.channels.users.inChannel(ch.ID())
}

// Tree returns the channel's ancestry from the root down to (and
// including) itself.
func (ch *Channel) Tree() []*Channel {
	return ch.channels.Tree(ch)
}

// Move asks the server to move session into this channel. Moving the
// local user is Session.MoveSelf.
func (ch *Channel) Move(session uint32) *Command {
	msg := &mumbleproto.UserState{Session: uint32Ptr(session), ChannelID: uint32Ptr(ch.ID())}
	return ch.channels.commands.Submit(MessageUserState, msg.Marshal())
}

// Remove asks the server to delete this channel.
func (ch *Channel) Remove() *Command {
	msg := &mumbleproto.ChannelRemove{ChannelID: ch.ID()}
	return ch.channels.commands.Submit(MessageChannelRemove, msg.Marshal())
}

// SendTextMessage sends a chat message to this channel, checking its
// length against the server's advertised limits.
func (ch *Channel) SendTextMessage(message string) error {
	if err := ch.channels.limits.CheckText(message); err != nil {
		return err
	}
	msg := &mumbleproto.TextMessage{ChannelID: []uint32{ch.ID()}, Message: message}
	ch.channels.commands.Submit(MessageTextMessage, msg.Marshal())
	return nil
}

// applyState merges msg into ch, returning the set of changed field
// names. Must be called with channels.mu held
// for writing; session/actor fields are never part of ch's state so
// they are not diffed.
func (ch *Channel) applyState(msg *mumbleproto.ChannelState) map[string]bool {
	diff := make(map[string]bool)

	if msg.Parent != nil && (!ch.hasParent || ch.parent != *msg.Parent) {
		ch.parent = *msg.Parent
		ch.hasParent = true
		diff["parent"] = true
	}
	if msg.Name != nil && ch.name != *msg.Name {
		ch.name = *msg.Name
		diff["name"] = true
	}
	if msg.Description != nil && ch.description != *msg.Description {
		ch.description = *msg.Description
		diff["description"] = true
	}
	if msg.Temporary != nil && ch.temporary != *msg.Temporary {
		ch.temporary = *msg.Temporary
		diff["temporary"] = true
	}
	if msg.Position != nil && ch.position != *msg.Position {
		ch.position = *msg.Position
		diff["position"] = true
	}
	if msg.MaxUsers != nil && ch.maxUsers != *msg.MaxUsers {
		ch.maxUsers = *msg.MaxUsers
		diff["max_users"] = true
	}
	for _, link := range msg.Links {
		found := false
		for _, existing := range ch.links {
			if existing == link {
				found = true
				break
			}
		}
		if !found {
			ch.links = append(ch.links, link)
			diff["links"] = true
		}
	}

	if msg.DescriptionHash != nil {
		if !bytes.Equal(ch.descriptionHash, msg.DescriptionHash) {
			ch.descriptionHash = msg.DescriptionHash
			diff["description_hash"] = true
		}
		if msg.Description != nil {
			ch.channels.blobs.Set(msg.DescriptionHash, []byte(*msg.Description))
		} else {
			ch.channels.blobs.RequestIfMissing(BlobChannelDescription, msg.DescriptionHash)
		}
	}

	if len(msg.Unknown) > 0 {
		if ch.unknown == nil {
			ch.unknown = make(mumbleproto.UnknownFields)
		}
		for num, raw := range msg.Unknown {
			ch.unknown[num] = raw
		}
	}

	return diff
}

func uint32Ptr(v uint32) *uint32 { return &v }
func boolPtr(v bool) *bool       { return &v }
func stringPtr(v string) *string { return &v }
