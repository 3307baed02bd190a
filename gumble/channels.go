package gumble

import (
	"fmt"
	"sync"

	"github.com/tikki/gumble/gumble/mumbleproto"
)

// Channels is the channel-tree state shadow: keyed by
// 32-bit channel_id, root (0) is always present, and every non-root
// channel's parent names a present channel.
type Channels struct {
	mu sync.RWMutex

	byID map[uint32]*Channel

	// users backs Channel.Users(); set once by Session after both
	// tables exist, read-only thereafter.
	users *Users

	blobs     *BlobCache
	listeners *Listeners
	commands  *CommandQueue
	limits    *MessageLimits
}

// NewChannels constructs a Channels table seeded with the always-
// present root channel.
func NewChannels(blobs *BlobCache, listeners *Listeners, commands *CommandQueue, limits *MessageLimits) *Channels {
	c := &Channels{
		byID:      make(map[uint32]*Channel),
		blobs:     blobs,
		listeners: listeners,
		commands:  commands,
		limits:    limits,
	}
	c.byID[0] = &Channel{channels: c, id: 0}
	return c
}

// ByID returns the channel with the given id, if known.
func (c *Channels) ByID(id uint32) (*Channel, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ch, ok := c.byID[id]
	return ch, ok
}

// Root returns the always-present channel 0.
func (c *Channels) Root() *Channel {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.byID[0]
}

// All returns a snapshot of every known channel.
func (c *Channels) All() []*Channel {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*Channel, 0, len(c.byID))
	for _, ch := range c.byID {
		out = append(out, ch)
	}
	return out
}

// Count reports the number of known channels.
func (c *Channels) Count() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.byID)
}

// Upsert applies an inbound ChannelState, creating the channel on
// first sight or diffing it against its existing state.
// The create/update callback fires while the table lock is held.
func (c *Channels) Upsert(msg *mumbleproto.ChannelState) *Channel {
	c.mu.Lock()
	defer c.mu.Unlock()

	ch, existed := c.byID[msg.ChannelID]
	if !existed {
		ch = &Channel{channels: c, id: msg.ChannelID}
		c.byID[msg.ChannelID] = ch
	}
	diff := ch.applyState(msg)

	if !existed {
		c.listeners.OnChannelCreated(&ChannelChangeEvent{Channel: ch, Diff: diff})
	} else if len(diff) > 0 {
		c.listeners.OnChannelUpdated(&ChannelChangeEvent{Channel: ch, Diff: diff})
	}
	return ch
}

// Delete removes a channel on the server's say-so, cascading only the
// children's parent link -- children are not auto-deleted; the server
// is expected to send their own removals.
func (c *Channels) Delete(id uint32) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ch, ok := c.byID[id]
	if !ok {
		return
	}
	delete(c.byID, id)
	for _, other := range c.byID {
		if other.hasParent && other.parent == id {
			other.hasParent = false
			other.parent = 0
		}
	}
	c.listeners.OnChannelRemoved(&ChannelChangeEvent{Channel: ch})
}

// FindByTree walks from the root matching children by name at each
// level, failing on the first miss.
func (c *Channels) FindByTree(path []string) (*Channel, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	current := c.byID[0]
	for _, name := range path {
		next := c.childByNameLocked(current.id, name)
		if next == nil {
			return nil, errUnknownChannel(fmt.Sprintf("cannot find channel %v", path))
		}
		current = next
	}
	return current, nil
}

// FindByName returns a channel matching name anywhere in the tree,
// ignoring position; when several channels share the name, which one
// is returned is not defined. The empty string matches the root.
func (c *Channels) FindByName(name string) (*Channel, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if name == "" {
		return c.byID[0], nil
	}
	for _, ch := range c.byID {
		if ch.name == name {
			return ch, nil
		}
	}
	return nil, errUnknownChannel(fmt.Sprintf("channel %q does not exist", name))
}

func (c *Channels) childByNameLocked(parent uint32, name string) *Channel {
	for _, ch := range c.byID {
		if ch.hasParent && ch.parent == parent && ch.name == name {
			return ch
		}
	}
	return nil
}

func (c *Channels) childrenOf(id uint32) []*Channel {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var out []*Channel
	for _, ch := range c.byID {
		if ch.hasParent && ch.parent == id {
			out = append(out, ch)
		}
	}
	return out
}

// Tree returns ch's ancestry from the root down to (and including)
// itself.
func (c *Channels) Tree(ch *Channel) []*Channel {
	c.mu.RLock()
	defer c.mu.RUnlock()

	tree := []*Channel{ch}
	current := ch
	for current.id != 0 {
		parent, ok := c.byID[current.parent]
		if !ok {
			break
		}
		tree = append([]*Channel{parent}, tree...)
		current = parent
	}
	return tree
}

// New asks the server to create a channel. The
// server assigns the channel_id; the resulting ChannelState arrives
// through the normal Upsert path.
func (c *Channels) New(parent uint32, name string, temporary bool) *Command {
	msg := &mumbleproto.ChannelState{
		Parent:    uint32Ptr(parent),
		Name:      stringPtr(name),
		Temporary: boolPtr(temporary),
	}
	return c.commands.Submit(MessageChannelState, msg.Marshal())
}

// RemoveChannel asks the server to delete the channel with the given
// id.
func (c *Channels) RemoveChannel(id uint32) *Command {
	msg := &mumbleproto.ChannelRemove{ChannelID: id}
	return c.commands.Submit(MessageChannelRemove, msg.Marshal())
}
