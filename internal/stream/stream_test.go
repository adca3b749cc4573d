package stream_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/playperu/riftbound/internal/arcade"
	"github.com/playperu/riftbound/internal/bus"
	"github.com/playperu/riftbound/internal/stream"
)

type fakeSink struct {
	mu         sync.Mutex
	events     []string
	keepAlives int
	failWrites bool
	got        chan string
}

func newFakeSink() *fakeSink {
	return &fakeSink{got: make(chan string, 16)}
}

func (s *fakeSink) Event(data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWrites {
		return errors.New("broken pipe")
	}
	s.events = append(s.events, string(data))
	s.got <- string(data)
	return nil
}

func (s *fakeSink) KeepAlive() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.keepAlives++
	return nil
}

func (s *fakeSink) counts() (int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events), s.keepAlives
}

type msg struct {
	Machine string `json:"machine"`
	N       int    `json:"n"`
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// waitSubscribed blocks until Serve has registered its handler.
func waitSubscribed[T any](t *testing.T, b *bus.Bus[T], topic string, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for b.Subscribers(topic) != n {
		if time.Now().After(deadline) {
			t.Fatalf("subscribers on %q = %d, want %d", topic, b.Subscribers(topic), n)
		}
		time.Sleep(time.Millisecond)
	}
}

func TestServeFiltersAndDelivers(t *testing.T) {
	b := bus.New[msg]("scan", quietLogger())
	sink := newFakeSink()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- stream.Serve(ctx, b, "scan", sink, stream.Options[msg]{
			Filter: func(m msg) bool { return m.Machine == "kiosk-7" },
			Logger: quietLogger(),
		})
	}()
	waitSubscribed(t, b, "scan", 1)

	b.Publish("scan", msg{Machine: "kiosk-1", N: 1})
	b.Publish("scan", msg{Machine: "kiosk-7", N: 2})

	select {
	case got := <-sink.got:
		if got != `{"machine":"kiosk-7","n":2}` {
			t.Errorf("frame = %s", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for frame")
	}

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Serve: %v", err)
	}
	if n, _ := sink.counts(); n != 1 {
		t.Errorf("frames = %d, want 1 (filtered event must not produce a frame)", n)
	}
}

func TestServeTeardownOnDisconnect(t *testing.T) {
	b := bus.New[msg]("button", quietLogger())
	sink := newFakeSink()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- stream.Serve(ctx, b, "button", sink, stream.Options[msg]{
			KeepAlive: 5 * time.Millisecond,
			Logger:    quietLogger(),
		})
	}()
	waitSubscribed(t, b, "button", 1)

	deadline := time.Now().Add(2 * time.Second)
	for {
		if _, ka := sink.counts(); ka > 0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("no keep-alive emitted")
		}
		time.Sleep(time.Millisecond)
	}

	cancel()
	<-done

	if got := b.Subscribers("button"); got != 0 {
		t.Fatalf("subscribers after disconnect = %d, want 0", got)
	}
	_, before := sink.counts()
	time.Sleep(30 * time.Millisecond)
	if _, after := sink.counts(); after != before {
		t.Errorf("keep-alives after teardown: %d -> %d", before, after)
	}
}

func TestServeOnceClosesAfterFirstEvent(t *testing.T) {
	b := bus.New[msg]("registration", quietLogger())
	sink := newFakeSink()

	done := make(chan error, 1)
	go func() {
		done <- stream.Serve(context.Background(), b, "request-resolved:1", sink, stream.Options[msg]{
			Once:       true,
			CloseDelay: 5 * time.Millisecond,
			Logger:     quietLogger(),
		})
	}()
	waitSubscribed(t, b, "request-resolved:1", 1)

	b.Publish("request-resolved:1", msg{N: 1})

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Serve: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("once session did not close")
	}

	if got := b.Subscribers("request-resolved:1"); got != 0 {
		t.Errorf("subscribers = %d, want 0", got)
	}
	b.Publish("request-resolved:1", msg{N: 2})
	if n, _ := sink.counts(); n != 1 {
		t.Errorf("frames = %d, want 1", n)
	}
}

func TestServeReplayQueuesBehindPublished(t *testing.T) {
	b := bus.New[msg]("kiosk", quietLogger())
	sink := newFakeSink()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	subscribed := make(chan int, 1)
	go stream.Serve(ctx, b, "kiosk-7", sink, stream.Options[msg]{
		Logger: quietLogger(),
		Replay: func() []msg {
			subscribed <- b.Subscribers("kiosk-7")
			// A change that lands while the snapshot is being read.
			b.Publish("kiosk-7", msg{N: 1})
			return []msg{{N: 2}}
		},
	})

	if n := <-subscribed; n != 1 {
		t.Fatalf("replay ran with %d subscribers, want 1", n)
	}
	for _, want := range []string{`{"machine":"","n":1}`, `{"machine":"","n":2}`} {
		select {
		case got := <-sink.got:
			if got != want {
				t.Errorf("frame = %s, want %s", got, want)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for %s", want)
		}
	}
}

func TestServeOnceEndsOnReplayedEvent(t *testing.T) {
	b := bus.New[msg]("registration", quietLogger())
	sink := newFakeSink()

	done := make(chan error, 1)
	go func() {
		done <- stream.Serve(context.Background(), b, "request-resolved:3", sink, stream.Options[msg]{
			Once:       true,
			CloseDelay: time.Millisecond,
			Logger:     quietLogger(),
			Replay:     func() []msg { return []msg{{N: 3}} },
		})
	}()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Serve: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("once session waited for a publish it already had")
	}
	if n, _ := sink.counts(); n != 1 {
		t.Errorf("frames = %d, want 1", n)
	}
	if got := b.Subscribers("request-resolved:3"); got != 0 {
		t.Errorf("subscribers = %d, want 0", got)
	}
}

func TestServeWriteFailureIsUnavailable(t *testing.T) {
	b := bus.New[msg]("scan", quietLogger())
	sink := newFakeSink()
	sink.failWrites = true

	done := make(chan error, 1)
	go func() {
		done <- stream.Serve(context.Background(), b, "scan", sink, stream.Options[msg]{Logger: quietLogger()})
	}()
	waitSubscribed(t, b, "scan", 1)

	b.Publish("scan", msg{N: 1})

	select {
	case err := <-done:
		if !errors.Is(err, arcade.ErrUnavailable) {
			t.Fatalf("err = %v, want ErrUnavailable", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not stop on write failure")
	}
	if got := b.Subscribers("scan"); got != 0 {
		t.Errorf("subscribers = %d, want 0", got)
	}
}

func TestPublishDoesNotBlockOnSlowSession(t *testing.T) {
	b := bus.New[msg]("scan", quietLogger())
	block := make(chan struct{})
	sink := &blockingSink{release: block}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go stream.Serve(ctx, b, "scan", sink, stream.Options[msg]{Buffer: 2, Logger: quietLogger()})
	waitSubscribed(t, b, "scan", 1)

	finished := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			b.Publish("scan", msg{N: i})
		}
		close(finished)
	}()

	select {
	case <-finished:
	case <-time.After(2 * time.Second):
		t.Fatal("publisher stalled on a slow subscriber")
	}
	close(block)
}

type blockingSink struct{ release chan struct{} }

func (s *blockingSink) Event([]byte) error { <-s.release; return nil }
func (s *blockingSink) KeepAlive() error   { return nil }

func TestSSEWriterFraming(t *testing.T) {
	rec := httptest.NewRecorder()
	w, err := stream.NewSSEWriter(rec)
	if err != nil {
		t.Fatalf("NewSSEWriter: %v", err)
	}
	if err := w.Event([]byte(`{"a":1}`)); err != nil {
		t.Fatal(err)
	}
	if err := w.KeepAlive(); err != nil {
		t.Fatal(err)
	}

	if got := rec.Header().Get("Content-Type"); got != "text/event-stream" {
		t.Errorf("content-type = %q", got)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "data: {\"a\":1}\n\n") {
		t.Errorf("missing data frame in %q", body)
	}
	if !strings.HasSuffix(body, ": keep-alive\n\n") {
		t.Errorf("missing keep-alive frame in %q", body)
	}
}
