package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"market-chat/errors"
	"market-chat/gateway"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/samber/lo"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 16 * 1024
)

type WSHandler struct {
	log          *slog.Logger
	gateway      *gateway.Gateway
	upgrader     websocket.Upgrader
	replyTimeout time.Duration
}

// NewWSHandler accepts upgrades from the allowed origins, an empty list or "*" allows any origin.
func NewWSHandler(log *slog.Logger, gw *gateway.Gateway, allowedOrigins []string, replyTimeout time.Duration) *WSHandler {
	return &WSHandler{
		log:          log,
		gateway:      gw,
		replyTimeout: replyTimeout,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     checkOrigin(allowedOrigins),
		},
	}
}

func checkOrigin(allowedOrigins []string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" || len(allowedOrigins) == 0 || lo.Contains(allowedOrigins, "*") {
			return true
		}
		return lo.Contains(allowedOrigins, origin)
	}
}

// Serve handles GET /ws. The caller is authenticated before the upgrade.
func (h *WSHandler) Serve(c *gin.Context) {
	identity, ok := IdentityFrom(c)
	if !ok {
		abortWithError(c, errors.ErrUnauthorized)
		return
	}
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// The upgrader already replied to the client
		h.log.Debug("Websocket upgrade failed", "error", err)
		return
	}

	session := h.gateway.Open(identity)
	go h.writePump(conn, session)
	h.readPump(conn, session)
}

// readPump handles the commands of one connection sequentially and closes the session on exit.
func (h *WSHandler) readPump(conn *websocket.Conn, session *gateway.Session) {
	defer func() {
		h.gateway.Close(session)
		_ = conn.Close()
	}()

	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-session.Done():
			cancel()
		case <-ctx.Done():
		}
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.log.Debug("Websocket read failed", "session", session.ID(), "error", err)
			}
			return
		}

		var reply gateway.Outbound
		in, err := gateway.DecodeInbound(data)
		if err != nil {
			reply = gateway.ErrorFrame(err, "")
		} else {
			reply = h.gateway.Handle(ctx, session, in)
		}

		replyCtx, cancelReply := context.WithTimeout(ctx, h.replyTimeout)
		err = session.Enqueue(replyCtx, reply)
		cancelReply()
		if err != nil {
			h.log.Warn("Dropping slow connection", "session", session.ID(), "user", session.UserID(), "error", err)
			return
		}
	}
}

func (h *WSHandler) writePump(conn *websocket.Conn, session *gateway.Session) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = conn.Close()
	}()

	for {
		select {
		case frame := <-session.Outbound():
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(frame); err != nil {
				h.log.Debug("Websocket write failed", "session", session.ID(), "error", err)
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-session.Done():
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}
