// Package gumbleutil holds small composable helpers for hosts using
// gumble.
package gumbleutil

import "github.com/tikki/gumble/gumble"

// Listener is a zero-value-usable EventListener: embed it and override
// only the callbacks a host cares about, instead of implementing all
// fourteen methods.
type Listener struct {
	Connect          func(*gumble.ConnectEvent)
	Disconnect       func(*gumble.DisconnectEvent)
	ChannelCreated   func(*gumble.ChannelChangeEvent)
	ChannelUpdated   func(*gumble.ChannelChangeEvent)
	ChannelRemoved   func(*gumble.ChannelChangeEvent)
	UserCreated      func(*gumble.UserChangeEvent)
	UserUpdated      func(*gumble.UserChangeEvent)
	UserRemoved      func(*gumble.UserChangeEvent)
	SoundReceived    func(*gumble.SoundEvent)
	TextMessage      func(*gumble.TextMessageEvent)
	ContextAction    func(*gumble.RawEvent)
	PermissionDenied func(*gumble.RawEvent)
	ACLReceived      func(*gumble.RawEvent)
	RawControl       func(*gumble.RawEvent)
}

func (l Listener) OnConnect(e *gumble.ConnectEvent) {
	if l.Connect != nil {
		l.Connect(e)
	}
}

func (l Listener) OnDisconnect(e *gumble.DisconnectEvent) {
	if l.Disconnect != nil {
		l.Disconnect(e)
	}
}

func (l Listener) OnChannelCreated(e *gumble.ChannelChangeEvent) {
	if l.ChannelCreated != nil {
		l.ChannelCreated(e)
	}
}

func (l Listener) OnChannelUpdated(e *gumble.ChannelChangeEvent) {
	if l.ChannelUpdated != nil {
		l.ChannelUpdated(e)
	}
}

func (l Listener) OnChannelRemoved(e *gumble.ChannelChangeEvent) {
	if l.ChannelRemoved != nil {
		l.ChannelRemoved(e)
	}
}

func (l Listener) OnUserCreated(e *gumble.UserChangeEvent) {
	if l.UserCreated != nil {
		l.UserCreated(e)
	}
}

func (l Listener) OnUserUpdated(e *gumble.UserChangeEvent) {
	if l.UserUpdated != nil {
		l.UserUpdated(e)
	}
}

func (l Listener) OnUserRemoved(e *gumble.UserChangeEvent) {
	if l.UserRemoved != nil {
		l.UserRemoved(e)
	}
}

func (l Listener) OnSoundReceived(e *gumble.SoundEvent) {
	if l.SoundReceived != nil {
		l.SoundReceived(e)
	}
}

func (l Listener) OnTextMessage(e *gumble.TextMessageEvent) {
	if l.TextMessage != nil {
		l.TextMessage(e)
	}
}

func (l Listener) OnContextAction(e *gumble.RawEvent) {
	if l.ContextAction != nil {
		l.ContextAction(e)
	}
}

func (l Listener) OnPermissionDenied(e *gumble.RawEvent) {
	if l.PermissionDenied != nil {
		l.PermissionDenied(e)
	}
}

func (l Listener) OnACLReceived(e *gumble.RawEvent) {
	if l.ACLReceived != nil {
		l.ACLReceived(e)
	}
}

func (l Listener) OnRawControl(e *gumble.RawEvent) {
	if l.RawControl != nil {
		l.RawControl(e)
	}
}

var _ gumble.EventListener = Listener{}

// AutoBitrate derives a conservative outbound Opus bitrate from the
// number of users currently on the server, staying under maxBandwidth
// (bits/sec, from ServerConfig) with headroom for control traffic and
// other users' streams.
func AutoBitrate(userCount int, maxBandwidth uint32) int {
	const (
		minBitrate = 8000
		maxBitrate = 96000
		overhead   = 0.9 // reserve 10% of the cap for control traffic
	)
	if maxBandwidth == 0 || userCount <= 0 {
		return maxBitrate
	}
	share := int(float64(maxBandwidth) * overhead)
	if userCount > 1 {
		share /= userCount
	}
	if share < minBitrate {
		return minBitrate
	}
	if share > maxBitrate {
		return maxBitrate
	}
	return share
}
