package gumble

import (
	"testing"

	"github.com/tikki/gumble/gumble/mumbleproto"
)

func newTestChannels() *Channels {
	commands := NewCommandQueue(0)
	blobs := NewBlobCache(func(BlobKind, []byte) error { return nil })
	listeners := NewListeners(false)
	return NewChannels(blobs, listeners, commands, &MessageLimits{})
}

func TestChannelsRootAlwaysPresent(t *testing.T) {
	t.Parallel()
	c := newTestChannels()

	root := c.Root()
	if root == nil || root.ID() != 0 {
		t.Fatalf("Root() = %v, want channel 0", root)
	}
	if c.Count() != 1 {
		t.Fatalf("Count() = %d, want 1", c.Count())
	}
}

func TestChannelsUpsertCreatesThenUpdates(t *testing.T) {
	t.Parallel()
	c := newTestChannels()

	name := "Lobby"
	ch := c.Upsert(&mumbleproto.ChannelState{ChannelID: 1, Parent: uint32Ptr(0), Name: &name})
	if ch.Name() != "Lobby" {
		t.Fatalf("Name() = %q, want Lobby", ch.Name())
	}
	if _, ok := c.ByID(1); !ok {
		t.Fatal("channel 1 not registered")
	}

	renamed := "Lounge"
	ch2 := c.Upsert(&mumbleproto.ChannelState{ChannelID: 1, Name: &renamed})
	if ch2 != ch {
		t.Fatal("Upsert created a second Channel instead of updating the existing one")
	}
	if ch.Name() != "Lounge" {
		t.Fatalf("Name() after update = %q, want Lounge", ch.Name())
	}
}

func TestChannelsFindByTree(t *testing.T) {
	t.Parallel()
	c := newTestChannels()

	parentName := "Games"
	childName := "Chess"
	c.Upsert(&mumbleproto.ChannelState{ChannelID: 1, Parent: uint32Ptr(0), Name: &parentName})
	c.Upsert(&mumbleproto.ChannelState{ChannelID: 2, Parent: uint32Ptr(1), Name: &childName})

	found, err := c.FindByTree([]string{"Games", "Chess"})
	if err != nil {
		t.Fatalf("FindByTree: %v", err)
	}
	if found.ID() != 2 {
		t.Fatalf("FindByTree ID = %d, want 2", found.ID())
	}

	if _, err := c.FindByTree([]string{"Games", "Checkers"}); err == nil {
		t.Fatal("FindByTree with a missing segment should fail")
	}
}

func TestChannelsFindByName(t *testing.T) {
	t.Parallel()
	c := newTestChannels()

	name := "Meeting Room"
	c.Upsert(&mumbleproto.ChannelState{ChannelID: 3, Parent: uint32Ptr(0), Name: &name})

	found, err := c.FindByName("Meeting Room")
	if err != nil {
		t.Fatalf("FindByName: %v", err)
	}
	if found.ID() != 3 {
		t.Fatalf("FindByName ID = %d, want 3", found.ID())
	}

	if _, err := c.FindByName(""); err != nil {
		t.Fatalf("FindByName(\"\") should resolve to root: %v", err)
	}
}

func TestChannelsDeleteDetachesChildrenWithoutRemovingThem(t *testing.T) {
	t.Parallel()
	c := newTestChannels()

	parentName := "Parent"
	childName := "Child"
	c.Upsert(&mumbleproto.ChannelState{ChannelID: 1, Parent: uint32Ptr(0), Name: &parentName})
	c.Upsert(&mumbleproto.ChannelState{ChannelID: 2, Parent: uint32Ptr(1), Name: &childName})

	c.Delete(1)

	if _, ok := c.ByID(1); ok {
		t.Fatal("channel 1 should be gone")
	}
	child, ok := c.ByID(2)
	if !ok {
		t.Fatal("channel 2 should survive its parent's removal")
	}
	if _, hasParent := child.Parent(); hasParent {
		t.Fatal("child should have lost its parent link")
	}
}

func TestChannelsTreeWalksAncestry(t *testing.T) {
	t.Parallel()
	c := newTestChannels()

	a, b := "A", "B"
	c.Upsert(&mumbleproto.ChannelState{ChannelID: 1, Parent: uint32Ptr(0), Name: &a})
	c.Upsert(&mumbleproto.ChannelState{ChannelID: 2, Parent: uint32Ptr(1), Name: &b})
	leaf, _ := c.ByID(2)

	tree := c.Tree(leaf)
	if len(tree) != 3 {
		t.Fatalf("Tree() length = %d, want 3 (root, A, B)", len(tree))
	}
	if tree[0].ID() != 0 || tree[len(tree)-1].ID() != 2 {
		t.Fatalf("Tree() = %v, want root-first leaf-last", tree)
	}
}
