package realtime

import (
	"sync"

	"github.com/rs/zerolog"
)

const subscriberBufferSize = 64

// Emitter fans notifications out to subscribers. Delivery is FIFO per
// subscriber in the order the router received the events; nothing is
// persisted, and unsubscribing stops delivery immediately without recalling
// in-flight notifications.
type Emitter struct {
	logger zerolog.Logger

	mu     sync.Mutex
	subs   map[*subscriber]struct{}
	closed bool
}

type subscriber struct {
	ch   chan Notification
	done chan struct{}
	once sync.Once
}

// NewEmitter creates an emitter with no subscribers.
func NewEmitter(logger zerolog.Logger) *Emitter {
	return &Emitter{
		logger: logger.With().Str("component", "notification_emitter").Logger(),
		subs:   make(map[*subscriber]struct{}),
	}
}

// Subscribe registers a consumer and returns its unsubscribe function. Each
// subscriber drains its own FIFO queue on a dedicated goroutine, so one slow
// consumer cannot reorder or block another.
func (e *Emitter) Subscribe(onNotification func(Notification)) func() {
	sub := &subscriber{
		ch:   make(chan Notification, subscriberBufferSize),
		done: make(chan struct{}),
	}

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return func() {}
	}
	e.subs[sub] = struct{}{}
	e.mu.Unlock()

	go func() {
		for {
			select {
			case n := <-sub.ch:
				select {
				case <-sub.done:
					return
				default:
				}
				onNotification(n)
			case <-sub.done:
				return
			}
		}
	}()

	return func() {
		sub.once.Do(func() { close(sub.done) })
		e.mu.Lock()
		delete(e.subs, sub)
		e.mu.Unlock()
	}
}

// Emit queues a notification for every current subscriber. A subscriber
// whose queue is full loses the notification; the emitter logs and moves on
// rather than blocking the router.
func (e *Emitter) Emit(n Notification) {
	e.mu.Lock()
	defer e.mu.Unlock()

	for sub := range e.subs {
		select {
		case sub.ch <- n:
		default:
			e.logger.Warn().Str("kind", string(n.Kind)).Msg("subscriber queue full, notification dropped")
		}
	}
}

// Close stops all subscribers.
func (e *Emitter) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return
	}
	e.closed = true
	for sub := range e.subs {
		sub.once.Do(func() { close(sub.done) })
		delete(e.subs, sub)
	}
}
