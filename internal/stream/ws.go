package stream

import (
	"context"
	"time"

	"nhooyr.io/websocket"
)

const wsWriteTimeout = 5 * time.Second

// WSSink sends each event as one websocket text message and uses ping
// frames for liveness. The connection must have a reader running (see
// websocket.Conn.CloseRead) for pings to complete.
type WSSink struct {
	ctx  context.Context
	conn *websocket.Conn
}

func NewWSSink(ctx context.Context, conn *websocket.Conn) *WSSink {
	return &WSSink{ctx: ctx, conn: conn}
}

func (s *WSSink) Event(data []byte) error {
	ctx, cancel := context.WithTimeout(s.ctx, wsWriteTimeout)
	defer cancel()
	return s.conn.Write(ctx, websocket.MessageText, data)
}

func (s *WSSink) KeepAlive() error {
	ctx, cancel := context.WithTimeout(s.ctx, wsWriteTimeout)
	defer cancel()
	return s.conn.Ping(ctx)
}
