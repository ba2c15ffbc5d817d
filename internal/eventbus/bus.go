// Package eventbus implements the typed synchronous/asynchronous pub-sub
// fabric the trade lifecycle core is built on (spec.md §4.2). It is grounded
// on optionx_cpp's utils/pubsub/EventBus: one type-keyed map of callbacks and
// listeners guarded by a subscriptions mutex, a separate queue mutex for
// NotifyAsync, and "copy the subscriber list under lock, dispatch without
// the lock held" semantics so handlers may publish further events without
// deadlocking the bus.
package eventbus

import (
	"reflect"
	"sync"

	"github.com/optionx/optionx/internal/domain"
)

// Owner is an opaque handle used only for unsubscription; the bus never
// dereferences it (spec.md §4.2).
type Owner interface{}

type callbackRecord struct {
	owner    Owner
	callback func(domain.Event)
}

// Bus is a typed pub/sub dispatcher. The zero value is not usable; use New.
type Bus struct {
	subMu     sync.RWMutex
	callbacks map[reflect.Type][]callbackRecord
	listeners map[reflect.Type][]domain.EventListener

	queueMu sync.Mutex
	queue   []domain.Event
}

// New creates an empty Bus.
func New() *Bus {
	return &Bus{
		callbacks: make(map[reflect.Type][]callbackRecord),
		listeners: make(map[reflect.Type][]domain.EventListener),
	}
}

// Subscribe registers a typed callback for events of the same Go type as
// sample. owner identifies the subscription for later Unsubscribe/
// UnsubscribeAll calls; it is never invoked or dereferenced.
func Subscribe[E domain.Event](bus *Bus, owner Owner, callback func(E)) {
	var sample E
	t := reflect.TypeOf(sample)
	rec := callbackRecord{
		owner: owner,
		callback: func(e domain.Event) {
			if typed, ok := e.(E); ok {
				callback(typed)
			}
		},
	}
	bus.subMu.Lock()
	bus.callbacks[t] = append(bus.callbacks[t], rec)
	bus.subMu.Unlock()
}

// SubscribeListener registers listener to receive every event of the type
// sample represents, via its OnEvent method.
func SubscribeListener[E domain.Event](bus *Bus, listener domain.EventListener) {
	var sample E
	t := reflect.TypeOf(sample)
	bus.subMu.Lock()
	for _, existing := range bus.listeners[t] {
		if existing == listener {
			bus.subMu.Unlock()
			return
		}
	}
	bus.listeners[t] = append(bus.listeners[t], listener)
	bus.subMu.Unlock()
}

// Unsubscribe removes every subscription (callback or listener) owned by
// owner for the event type E.
func Unsubscribe[E domain.Event](bus *Bus, owner Owner) {
	var sample E
	t := reflect.TypeOf(sample)
	bus.subMu.Lock()
	defer bus.subMu.Unlock()
	bus.removeCallbacksLocked(t, owner)
	bus.removeListenerLocked(t, owner)
}

// UnsubscribeAll removes every subscription owned by owner, across all event
// types. It is idempotent and safe to call from within a handler, including
// one invoked by the bus itself (spec.md §4.2, "Cancellation").
func (b *Bus) UnsubscribeAll(owner Owner) {
	b.subMu.Lock()
	defer b.subMu.Unlock()
	for t := range b.callbacks {
		b.removeCallbacksLocked(t, owner)
	}
	for t := range b.listeners {
		b.removeListenerLocked(t, owner)
	}
}

func (b *Bus) removeCallbacksLocked(t reflect.Type, owner Owner) {
	recs := b.callbacks[t]
	if len(recs) == 0 {
		return
	}
	kept := recs[:0]
	for _, r := range recs {
		if r.owner != owner {
			kept = append(kept, r)
		}
	}
	b.callbacks[t] = kept
}

func (b *Bus) removeListenerLocked(t reflect.Type, owner Owner) {
	listener, ok := owner.(domain.EventListener)
	if !ok {
		return
	}
	list := b.listeners[t]
	if len(list) == 0 {
		return
	}
	kept := list[:0]
	for _, l := range list {
		if l != listener {
			kept = append(kept, l)
		}
	}
	b.listeners[t] = kept
}

// Notify delivers event synchronously, on the caller's goroutine, to every
// live subscription in subscription order. The subscriber list is copied
// under the subscriptions lock and then invoked without it held, so handlers
// may call Notify/NotifyAsync/Subscribe/Unsubscribe themselves without
// deadlocking (spec.md §4.2, "Thread model").
func (b *Bus) Notify(event domain.Event) {
	t := reflect.TypeOf(event)

	b.subMu.RLock()
	callbacks := append([]callbackRecord(nil), b.callbacks[t]...)
	listeners := append([]domain.EventListener(nil), b.listeners[t]...)
	b.subMu.RUnlock()

	for _, rec := range callbacks {
		rec.callback(event)
	}
	for _, l := range listeners {
		l.OnEvent(event)
	}
}

// NotifyAsync enqueues event for delivery on a later call to Process, which
// the task scheduler's worker goroutine is expected to call each tick.
func (b *Bus) NotifyAsync(event domain.Event) {
	b.queueMu.Lock()
	b.queue = append(b.queue, event)
	b.queueMu.Unlock()
}

// Process drains the async queue, delivering each event with the same
// semantics as Notify, in enqueue order.
func (b *Bus) Process() {
	b.queueMu.Lock()
	pending := b.queue
	b.queue = nil
	b.queueMu.Unlock()

	for _, event := range pending {
		b.Notify(event)
	}
}
