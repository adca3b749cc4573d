// Package stream bridges one bus subscription to one outbound push stream.
package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/playperu/riftbound/internal/arcade"
	"github.com/playperu/riftbound/internal/bus"
)

const (
	DefaultKeepAlive  = 15 * time.Second
	DefaultCloseDelay = 100 * time.Millisecond
	defaultBuffer     = 16
)

// Sink is the client side of a stream session.
type Sink interface {
	Event(data []byte) error
	KeepAlive() error
}

type Options[T any] struct {
	// KeepAlive is the liveness frame interval. Zero means DefaultKeepAlive.
	KeepAlive time.Duration
	// Filter drops events for which it returns false. Nil passes everything.
	Filter func(T) bool
	// Encode serializes one event. Nil means json.Marshal.
	Encode func(T) ([]byte, error)
	// Once ends the session CloseDelay after the first delivered event.
	Once       bool
	CloseDelay time.Duration
	// Buffer bounds the per-session queue; overflow drops the newest event.
	Buffer int
	// Replay runs once the subscription is live. Its events are queued
	// behind anything already published, so state read inside Replay is
	// never older than what follows it.
	Replay func() []T
	Logger *slog.Logger
}

// maxReplay is the queue room kept free for Replay events.
const maxReplay = 4

// Serve subscribes to topic on b and pushes qualifying events to sink until
// ctx is cancelled, the sink fails, or (Once) the single expected event has
// been delivered. The subscription and keep-alive timer are released before
// Serve returns.
func Serve[T any](ctx context.Context, b *bus.Bus[T], topic string, sink Sink, opts Options[T]) error {
	if opts.KeepAlive <= 0 {
		opts.KeepAlive = DefaultKeepAlive
	}
	if opts.CloseDelay <= 0 {
		opts.CloseDelay = DefaultCloseDelay
	}
	if opts.Buffer <= 0 {
		opts.Buffer = defaultBuffer
	}
	if opts.Encode == nil {
		opts.Encode = func(v T) ([]byte, error) { return json.Marshal(v) }
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("bus", b.Name(), "topic", topic)

	events := make(chan T, opts.Buffer+maxReplay)
	sub := b.Subscribe(topic, func(v T) error {
		if opts.Filter != nil && !opts.Filter(v) {
			return nil
		}
		if len(events) >= opts.Buffer {
			logger.Warn("stream buffer full, dropping event")
			return nil
		}
		select {
		case events <- v:
		default:
			logger.Warn("stream buffer full, dropping event")
		}
		return nil
	})
	defer sub.Close()

	if opts.Replay != nil {
		for _, v := range opts.Replay() {
			select {
			case events <- v:
			default:
				logger.Warn("stream buffer full, dropping replayed event")
			}
		}
	}

	ping := time.NewTicker(opts.KeepAlive)
	defer ping.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case v := <-events:
			data, err := opts.Encode(v)
			if err != nil {
				logger.Error("encoding stream event", "error", err)
				continue
			}
			if err := sink.Event(data); err != nil {
				return fmt.Errorf("%w: writing event: %v", arcade.ErrUnavailable, err)
			}
			if opts.Once {
				sub.Close()
				return linger(ctx, opts.CloseDelay)
			}
		case <-ping.C:
			if err := sink.KeepAlive(); err != nil {
				return fmt.Errorf("%w: writing keep-alive: %v", arcade.ErrUnavailable, err)
			}
		}
	}
}

// linger gives the client a moment to read the terminal frame.
func linger(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
	return nil
}
