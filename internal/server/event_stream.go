package server

import (
	"context"
	"log/slog"
	"time"

	"dropp/internal/middleware"
	"dropp/internal/notifications"
	"dropp/internal/observability"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
)

// EventStreamReady is the first frame of every stream. Events published
// after it are delivered.
const EventStreamReady = "stream_ready"

const (
	// Time allowed to write a frame to the peer.
	streamWriteWait = 10 * time.Second

	// Time allowed to read the next pong from the peer.
	streamPongWait = 60 * time.Second

	// Send pings with this period. Must be less than streamPongWait.
	streamPingPeriod = (streamPongWait * 9) / 10

	// Clients only send control frames.
	streamMaxMessageSize = 512

	streamBuffer = 64
)

// RequireUpgrade rejects plain HTTP requests to websocket routes.
func RequireUpgrade(c *fiber.Ctx) error {
	if websocket.IsWebSocketUpgrade(c) {
		return c.Next()
	}
	return fiber.ErrUpgradeRequired
}

// EventStream handles GET /api/ws. It subscribes to the caller's
// notifications channel and forwards each event as a JSON text frame until
// either side closes the connection.
func (s *Server) EventStream() fiber.Handler {
	return websocket.New(func(conn *websocket.Conn) {
		defer func() { _ = conn.Close() }()

		username, _ := conn.Locals(middleware.UsernameLocal).(string)
		if username == "" {
			return
		}

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		events := make(chan notifications.Event, streamBuffer)
		err := s.notifier.Subscribe(ctx, username, func(ev notifications.Event) {
			select {
			case events <- ev:
			default:
				observability.EventStreamDrops.Inc()
			}
		})
		if err != nil {
			observability.Logger.Warn("event stream subscribe failed",
				slog.String("username", username),
				slog.String("error", err.Error()),
			)
			_ = conn.WriteJSON(fiber.Map{"error": "event stream unavailable"})
			return
		}

		observability.ActiveEventStreams.Inc()
		defer observability.ActiveEventStreams.Dec()

		_ = conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
		if err := conn.WriteJSON(notifications.Event{
			Type:      EventStreamReady,
			Target:    username,
			CreatedAt: time.Now().UTC(),
		}); err != nil {
			return
		}

		go readStream(conn, username, cancel)
		writeStream(ctx, conn, events)
	})
}

// readStream discards client frames and cancels the stream once the peer
// goes away.
func readStream(conn *websocket.Conn, username string, cancel context.CancelFunc) {
	defer cancel()

	conn.SetReadLimit(streamMaxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(streamPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(streamPongWait))
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				observability.Logger.Debug("event stream closed",
					slog.String("username", username),
					slog.String("error", err.Error()),
				)
			}
			return
		}
	}
}

// writeStream is the only writer on conn after the ready frame.
func writeStream(ctx context.Context, conn *websocket.Conn, events <-chan notifications.Event) {
	ticker := time.NewTicker(streamPingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			_ = conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
			_ = conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		case ev := <-events:
			_ = conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
			if err := conn.WriteJSON(ev); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
