package gumble

import (
	"context"
	"sync"
)

// EventListener receives lifecycle notifications. Implementations are
// invoked while the originating component's lock is held unless
// deferred dispatch is enabled: a listener must not call back into
// that component's mutating operations, only enqueue commands.
type EventListener interface {
	OnConnect(*ConnectEvent)
	OnDisconnect(*DisconnectEvent)
	OnChannelCreated(*ChannelChangeEvent)
	OnChannelUpdated(*ChannelChangeEvent)
	OnChannelRemoved(*ChannelChangeEvent)
	OnUserCreated(*UserChangeEvent)
	OnUserUpdated(*UserChangeEvent)
	OnUserRemoved(*UserChangeEvent)
	OnSoundReceived(*SoundEvent)
	OnTextMessage(*TextMessageEvent)
	OnContextAction(*RawEvent)
	OnPermissionDenied(*RawEvent)
	OnACLReceived(*RawEvent)
	OnRawControl(*RawEvent)
}

// Detach unregisters a previously Attached listener.
type Detach func()

// defaultDeferredQueueCapacity bounds how many deferred callback
// closures may be buffered before Run has a chance to drain them.
const defaultDeferredQueueCapacity = 256

// Listeners is the Callback Fan-out component: every
// component that mutates shared state calls through one Listeners
// value, which in turn invokes every host-attached EventListener.
// Listeners itself implements EventListener so state shadows hold a
// single reference regardless of how many hosts have attached.
type Listeners struct {
	mu    sync.Mutex
	next  int
	items map[int]EventListener

	deferred bool
	queue    chan func()
}

// NewListeners constructs a Listeners fan-out. When deferred is true
// (Config.DeferCallbacks), callbacks are queued and invoked later from
// Run instead of synchronously under the originating lock.
func NewListeners(deferred bool) *Listeners {
	l := &Listeners{items: make(map[int]EventListener), deferred: deferred}
	if deferred {
		l.queue = make(chan func(), defaultDeferredQueueCapacity)
	}
	return l
}

// Attach registers l to receive every future callback, returning a
// Detach func to unregister it.
func (ls *Listeners) Attach(l EventListener) Detach {
	ls.mu.Lock()
	id := ls.next
	ls.next++
	ls.items[id] = l
	ls.mu.Unlock()

	return func() {
		ls.mu.Lock()
		delete(ls.items, id)
		ls.mu.Unlock()
	}
}

func (ls *Listeners) snapshot() []EventListener {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	out := make([]EventListener, 0, len(ls.items))
	for _, l := range ls.items {
		out = append(out, l)
	}
	return out
}

func (ls *Listeners) dispatch(f func()) {
	if ls.deferred {
		select {
		case ls.queue <- f:
		default:
			// queue full: drop rather than block the originating
			// component's lock holder.
		}
		return
	}
	f()
}

// Run drains the deferred-callback queue until ctx is cancelled. It is
// a no-op unless this Listeners was constructed with deferred=true.
func (ls *Listeners) Run(ctx context.Context) {
	if !ls.deferred {
		return
	}
	for {
		select {
		case f := <-ls.queue:
			f()
		case <-ctx.Done():
			return
		}
	}
}

func fire[E any](ls *Listeners, call func(EventListener, E), e E) {
	ls.dispatch(func() {
		for _, l := range ls.snapshot() {
			call(l, e)
		}
	})
}

func (ls *Listeners) OnConnect(e *ConnectEvent) { fire(ls, EventListener.OnConnect, e) }
func (ls *Listeners) OnDisconnect(e *DisconnectEvent) {
	fire(ls, EventListener.OnDisconnect, e)
}
func (ls *Listeners) OnChannelCreated(e *ChannelChangeEvent) {
	fire(ls, EventListener.OnChannelCreated, e)
}
func (ls *Listeners) OnChannelUpdated(e *ChannelChangeEvent) {
	fire(ls, EventListener.OnChannelUpdated, e)
}
func (ls *Listeners) OnChannelRemoved(e *ChannelChangeEvent) {
	fire(ls, EventListener.OnChannelRemoved, e)
}
func (ls *Listeners) OnUserCreated(e *UserChangeEvent) { fire(ls, EventListener.OnUserCreated, e) }
func (ls *Listeners) OnUserUpdated(e *UserChangeEvent) { fire(ls, EventListener.OnUserUpdated, e) }
func (ls *Listeners) OnUserRemoved(e *UserChangeEvent) { fire(ls, EventListener.OnUserRemoved, e) }
func (ls *Listeners) OnSoundReceived(e *SoundEvent) { fire(ls, EventListener.OnSoundReceived, e) }
func (ls *Listeners) OnTextMessage(e *TextMessageEvent) { fire(ls, EventListener.OnTextMessage, e) }
func (ls *Listeners) OnContextAction(e *RawEvent) { fire(ls, EventListener.OnContextAction, e) }
func (ls *Listeners) OnPermissionDenied(e *RawEvent) {
	fire(ls, EventListener.OnPermissionDenied, e)
}
func (ls *Listeners) OnACLReceived(e *RawEvent) { fire(ls, EventListener.OnACLReceived, e) }
func (ls *Listeners) OnRawControl(e *RawEvent)  { fire(ls, EventListener.OnRawControl, e) }

var _ EventListener = (*Listeners)(nil)
