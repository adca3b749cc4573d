// Package bus is an in-process, topic-based publish/subscribe primitive.
//
// Handlers run synchronously, in subscription order, on the publisher's
// goroutine. They must not block: consumers that do real work hand the
// payload off to their own goroutine (see stream.Serve).
package bus

import (
	"fmt"
	"log/slog"
	"sync"
)

// Handler receives one published payload. A returned error is logged and
// does not stop delivery to later handlers.
type Handler[T any] func(T) error

type subscriber[T any] struct {
	id      uint64
	handler Handler[T]
}

// Bus fans payloads out to the handlers subscribed to a topic.
type Bus[T any] struct {
	name   string
	logger *slog.Logger

	// pub serializes Publish so every subscriber observes one order.
	pub sync.Mutex

	mu     sync.RWMutex
	nextID uint64
	subs   map[string][]subscriber[T]
}

func New[T any](name string, logger *slog.Logger) *Bus[T] {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus[T]{
		name:   name,
		logger: logger.With("bus", name),
		subs:   make(map[string][]subscriber[T]),
	}
}

func (b *Bus[T]) Name() string { return b.name }

// Subscription is the handle returned by Subscribe.
type Subscription struct {
	topic string
	id    uint64
	once  sync.Once
	drop  func(topic string, id uint64)
}

func (s *Subscription) Topic() string { return s.topic }

// Close removes the handler. Safe to call more than once.
func (s *Subscription) Close() {
	if s == nil {
		return
	}
	s.once.Do(func() { s.drop(s.topic, s.id) })
}

// Subscribe registers h for topic. Events published before this call are
// never delivered to it.
func (b *Bus[T]) Subscribe(topic string, h Handler[T]) *Subscription {
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.subs[topic] = append(b.subs[topic], subscriber[T]{id: id, handler: h})
	b.mu.Unlock()

	return &Subscription{topic: topic, id: id, drop: b.remove}
}

// Unsubscribe is equivalent to sub.Close.
func (b *Bus[T]) Unsubscribe(sub *Subscription) {
	sub.Close()
}

func (b *Bus[T]) remove(topic string, id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.subs[topic]
	for i, s := range subs {
		if s.id != id {
			continue
		}
		// Copy so a Publish iterating the old slice is unaffected.
		next := make([]subscriber[T], 0, len(subs)-1)
		next = append(next, subs[:i]...)
		next = append(next, subs[i+1:]...)
		if len(next) == 0 {
			delete(b.subs, topic)
		} else {
			b.subs[topic] = next
		}
		return
	}
}

// Publish delivers payload to every handler currently subscribed to topic
// and returns how many handlers ran without error.
func (b *Bus[T]) Publish(topic string, payload T) int {
	b.pub.Lock()
	defer b.pub.Unlock()

	b.mu.RLock()
	subs := b.subs[topic]
	b.mu.RUnlock()

	delivered := 0
	for _, s := range subs {
		if err := b.call(s, payload); err != nil {
			b.logger.Warn("subscriber failed", "topic", topic, "subscriber", s.id, "error", err)
			continue
		}
		delivered++
	}
	return delivered
}

func (b *Bus[T]) call(s subscriber[T], payload T) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return s.handler(payload)
}

// Subscribers reports the number of handlers on topic.
func (b *Bus[T]) Subscribers(topic string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[topic])
}
