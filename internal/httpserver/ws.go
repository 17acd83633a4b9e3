// internal/httpserver/ws.go
//
// WebSocket change stream for one session.
//   - Server -> client: {"type":"state","state":{...}} on connect and after
//     every state change; {"type":"ignored","reason":"..."} when an intent
//     did not apply; {"type":"error","error":"..."} for malformed frames.
//   - Client -> server: intents, same JSON shape as POST /game/intent.
//
// One goroutine writes (snapshots, replies, pings), the handler goroutine
// reads. The stream ends when the client goes away or the session's engine
// stops.

package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"

	"github.com/robalobadob/riddlerush/internal/game"
	"github.com/robalobadob/riddlerush/internal/store"
)

const (
	writeWait     = 10 * time.Second
	pongWait      = 30 * time.Second
	pingPeriod    = 25 * time.Second
	maxFrameSize  = 4096
	dispatchWait  = 5 * time.Second
	outboxBacklog = 16
)

// frame is every server -> client message.
type frame struct {
	Type   string          `json:"type"`
	State  *game.GameState `json:"state,omitempty"`
	Reason string          `json:"reason,omitempty"`
	Error  string          `json:"error,omitempty"`
}

type streamClient struct {
	conn   *websocket.Conn
	sess   *store.Session
	log    zerolog.Logger
	outbox chan frame
	closed chan struct{} // closed when writePump exits
}

// handleStream upgrades the request and pumps until either side goes away.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r.Context())
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already replied with an HTTP error
		hlog.FromRequest(r).Debug().Err(err).Msg("websocket upgrade")
		return
	}

	c := &streamClient{
		conn:   conn,
		sess:   sess,
		log:    hlog.FromRequest(r).With().Str("session", sess.ID).Logger(),
		outbox: make(chan frame, outboxBacklog),
		closed: make(chan struct{}),
	}
	states, unsubscribe := sess.Engine.Subscribe()
	defer unsubscribe()

	// Written before writePump starts so it is always the first frame; any
	// change after Subscribe follows it through states.
	initial := sess.Engine.Snapshot().Redacted()
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(frame{Type: "state", State: &initial}); err != nil {
		c.log.Debug().Err(err).Msg("initial snapshot")
		_ = conn.Close()
		return
	}

	go c.writePump(states)
	c.readPump()
	c.log.Debug().Msg("stream closed")
}

// readPump dispatches client intents until the connection fails.
func (c *streamClient) readPump() {
	c.conn.SetReadLimit(maxFrameSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.log.Debug().Err(err).Msg("read")
			}
			return
		}
		c.sess.Touch()

		var in game.Intent
		if err := json.Unmarshal(msg, &in); err != nil || in.Kind == "" {
			c.send(frame{Type: "error", Error: "bad_intent"})
			continue
		}

		ctx, cancel := context.WithTimeout(context.Background(), dispatchWait)
		_, err = c.sess.Engine.Dispatch(ctx, in)
		cancel()
		switch {
		case err == nil:
			// the new state arrives through the subscription
		case errors.Is(err, game.ErrInvalidTransition):
			c.send(frame{Type: "ignored", Reason: err.Error()})
		case errors.Is(err, game.ErrStopped):
			return
		default:
			c.send(frame{Type: "error", Error: err.Error()})
		}
	}
}

// send queues f unless the writer is gone.
func (c *streamClient) send(f frame) {
	select {
	case c.outbox <- f:
	case <-c.closed:
	}
}

// writePump is the only writer on the connection.
func (c *streamClient) writePump(states <-chan game.GameState) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		close(c.closed)
		_ = c.conn.Close()
	}()

	for {
		select {
		case st, ok := <-states:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// engine stopped (session ended or swept) or reader gone
				_ = c.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session ended"))
				return
			}
			view := st.Redacted()
			if err := c.conn.WriteJSON(frame{Type: "state", State: &view}); err != nil {
				return
			}
		case f := <-c.outbox:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(f); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
