package stream

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"virtual-trader/internal/auth"
	apperrors "virtual-trader/internal/errors"
	"virtual-trader/internal/logging"
)

// Client to server message types.
const (
	MsgSubscribeStock     = "subscribe:stock"
	MsgUnsubscribeStock   = "unsubscribe:stock"
	MsgSubscribeStocks    = "subscribe:stocks"
	MsgSubscribePortfolio = "subscribe:portfolio"
	MsgPing               = "ping"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	readLimit  = 4096
)

// TokenVerifier resolves an identity token to a user id.
type TokenVerifier interface {
	ParseToken(token string) (string, error)
}

type clientMessage struct {
	Type    string   `json:"type"`
	Symbol  string   `json:"symbol,omitempty"`
	Symbols []string `json:"symbols,omitempty"`
}

// PongPayload is the payload of pong.
type PongPayload struct {
	Timestamp time.Time `json:"timestamp"`
}

// WSHandler serves the realtime websocket.
type WSHandler struct {
	realtime *Realtime
	verifier TokenVerifier
	upgrader websocket.Upgrader
	logger   zerolog.Logger
}

// NewWSHandler creates the websocket handler. origin "*" accepts any origin.
func NewWSHandler(realtime *Realtime, verifier TokenVerifier, origin string, logger zerolog.Logger) *WSHandler {
	return &WSHandler{
		realtime: realtime,
		verifier: verifier,
		logger:   logging.WithComponent(logger, "ws"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return allowOrigin(r, origin) },
		},
	}
}

func allowOrigin(r *http.Request, origin string) bool {
	if origin == "" || origin == "*" {
		return true
	}
	reqOrigin := r.Header.Get("Origin")
	if reqOrigin == "" {
		return true
	}
	return strings.EqualFold(reqOrigin, origin)
}

func (h *WSHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Debug().Err(err).Msg("Websocket upgrade failed")
		return
	}
	defer conn.Close()

	userID, err := h.verifier.ParseToken(auth.TokenFromRequest(r))
	if err != nil {
		h.logger.Info().Err(err).Str("remote", r.RemoteAddr).Msg("Websocket authentication failed")
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		conn.WriteJSON(Event{Type: EventError, Data: ErrorPayload{Message: apperrors.UserMessage(err)}})
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "authentication required"))
		return
	}

	hub := h.realtime.Hub()
	sub := hub.Register(userID)
	defer hub.Unregister(sub)

	logger := logging.WithUser(h.logger, userID)
	logger.Debug().Str("subscriber", sub.ID).Msg("Client connected")
	hub.Send(sub, h.realtime.CurrentMarketStatus())

	ctx, cancel := context.WithCancel(context.WithoutCancel(r.Context()))
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		h.readLoop(ctx, conn, sub, logger)
	}()

	h.writeLoop(conn, sub, done)
	logger.Debug().Str("subscriber", sub.ID).Uint64("dropped", sub.Dropped()).Msg("Client disconnected")
}

func (h *WSHandler) readLoop(ctx context.Context, conn *websocket.Conn, sub *Subscriber, logger zerolog.Logger) {
	conn.SetReadLimit(readLimit)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	hub := h.realtime.Hub()
	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			return
		}
		conn.SetReadDeadline(time.Now().Add(pongWait))

		var msg clientMessage
		if err := json.Unmarshal(payload, &msg); err != nil {
			hub.Send(sub, errorEvent("malformed message"))
			continue
		}

		switch strings.TrimSpace(msg.Type) {
		case MsgSubscribeStock:
			err = h.realtime.SubscribeStock(ctx, sub, msg.Symbol)
		case MsgUnsubscribeStock:
			h.realtime.UnsubscribeStock(sub, msg.Symbol)
		case MsgSubscribeStocks:
			err = h.realtime.SubscribeStocks(ctx, sub, msg.Symbols)
		case MsgSubscribePortfolio:
			err = h.realtime.SubscribePortfolio(ctx, sub)
		case MsgPing:
			hub.Send(sub, Event{Type: EventPong, Data: PongPayload{Timestamp: time.Now()}})
		default:
			hub.Send(sub, errorEvent("unknown message type: "+msg.Type))
		}
		if err != nil {
			logger.Debug().Err(err).Str("type", msg.Type).Msg("Subscription failed")
			hub.Send(sub, errorEvent(apperrors.UserMessage(err)))
		}
	}
}

// writeLoop is the only writer on conn once the client is authenticated.
func (h *WSHandler) writeLoop(conn *websocket.Conn, sub *Subscriber, done <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case ev, ok := <-sub.Events():
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"))
				return
			}
			if err := conn.WriteJSON(ev); err != nil {
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}

func errorEvent(message string) Event {
	return Event{Type: EventError, Data: ErrorPayload{Message: message}}
}
