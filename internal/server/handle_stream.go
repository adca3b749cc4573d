package server

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/playperu/riftbound/internal/bus"
	"github.com/playperu/riftbound/internal/stream"
)

// serveSSE runs one stream session over the response until the client
// goes away.
func serveSSE[T any](w http.ResponseWriter, r *http.Request, logger *slog.Logger, b *bus.Bus[T], topic string, opts stream.Options[T]) {
	sink, err := stream.NewSSEWriter(w)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}
	serveSink(r.Context(), logger, b, topic, sink, opts)
}

func serveSink[T any](ctx context.Context, logger *slog.Logger, b *bus.Bus[T], topic string, sink stream.Sink, opts stream.Options[T]) {
	opts.Logger = logger
	if err := stream.Serve(ctx, b, topic, sink, opts); err != nil {
		logger.Debug("stream ended", "topic", topic, "error", err)
	}
}

// machineParam reads the optional machineId query filter.
func machineParam(r *http.Request) string {
	return strings.TrimSpace(r.URL.Query().Get("machineId"))
}

func sameMachine(id *string, want string) bool {
	return want == "" || (id != nil && *id == want)
}
