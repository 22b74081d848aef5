package server

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/hersh/gotris-engine/internal/game"
	"github.com/hersh/gotris-engine/internal/protocol"
	"github.com/hersh/gotris-engine/internal/session"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingInterval   = (pongWait * 9) / 10
	maxMessageSize = 16384
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// viewer is one websocket attached to a session. Only writePump writes to
// the connection.
type viewer struct {
	conn    *websocket.Conn
	session *session.Session
	replies chan []byte
	logger  *zap.Logger
}

func (s *Server) serveWS(w http.ResponseWriter, r *http.Request) {
	sess, err := s.hub.Get(chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, err)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	v := &viewer{
		conn:    conn,
		session: sess,
		replies: make(chan []byte, 16),
		logger:  s.logger.With(zap.String("session", sess.ID), zap.String("remote", r.RemoteAddr)),
	}
	v.logger.Info("viewer connected")

	snapshots := sess.Subscribe()
	go v.writePump(snapshots)
	v.readPump()

	sess.Unsubscribe(snapshots)
	v.logger.Info("viewer disconnected")
}

// writePump forwards snapshots and replies until the subscription closes.
func (v *viewer) writePump(snapshots <-chan game.Snapshot) {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		v.conn.Close()
	}()

	for {
		select {
		case snap, ok := <-snapshots:
			v.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				v.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session closed"))
				return
			}
			data, err := protocol.Marshal(protocol.MsgSnapshot, protocol.FromSnapshot(v.session.ID, snap))
			if err != nil {
				v.logger.Error("marshal snapshot", zap.Error(err))
				continue
			}
			if err := v.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case msg := <-v.replies:
			v.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := v.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			v.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := v.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump applies incoming commands until the connection drops.
func (v *viewer) readPump() {
	defer v.conn.Close()

	v.conn.SetReadLimit(maxMessageSize)
	v.conn.SetReadDeadline(time.Now().Add(pongWait))
	v.conn.SetPongHandler(func(string) error {
		v.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := v.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				v.logger.Warn("websocket read failed", zap.Error(err))
			}
			return
		}
		v.handleMessage(message)
	}
}

func (v *viewer) handleMessage(raw []byte) {
	typ, err := protocol.Peek(raw)
	if err != nil {
		v.reply(protocol.ErrorPayload{Message: err.Error()})
		return
	}
	if typ != protocol.MsgCommand {
		v.reply(protocol.ErrorPayload{Message: "unexpected message type " + string(typ)})
		return
	}

	var payload protocol.CommandPayload
	if err := protocol.ExtractPayload(raw, &payload); err != nil {
		v.reply(protocol.ErrorPayload{Message: err.Error()})
		return
	}
	cmd, err := session.ParseCommand(payload.Command)
	if err == nil {
		err = v.session.Apply(cmd, payload.Value)
	}
	if err != nil {
		v.reply(protocol.ErrorPayload{Message: err.Error(), Command: payload.Command})
	}
}

func (v *viewer) reply(p protocol.ErrorPayload) {
	data, err := protocol.Marshal(protocol.MsgError, p)
	if err != nil {
		v.logger.Error("marshal reply", zap.Error(err))
		return
	}
	select {
	case v.replies <- data:
	default:
		v.logger.Warn("reply queue full, dropping message")
	}
}
