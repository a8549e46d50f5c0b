package server

import (
	"encoding/json"
	"net/http"
	"net/url"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/KaramelBytes/dropsight/internal/logging"
	"github.com/KaramelBytes/dropsight/internal/pipeline"
)

// WebSocket message types
const (
	// Client -> Server
	MsgTypeDismiss   = "dismiss"
	MsgTypeDragEnter = "drag:enter"
	MsgTypeDragOver  = "drag:over"
	MsgTypeDragLeave = "drag:leave"
	MsgTypePing      = "ping"

	// Server -> Client
	MsgTypeState = "state"
	MsgTypePong  = "pong"
	MsgTypeError = "error"
)

// WSMessage is the envelope for both directions.
type WSMessage struct {
	Type      string `json:"type" msgpack:"type"`
	ID        string `json:"id,omitempty" msgpack:"id,omitempty"`
	Payload   any    `json:"payload,omitempty" msgpack:"payload,omitempty"`
	Timestamp int64  `json:"timestamp" msgpack:"timestamp"`
}

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

// HandleWebSocket pushes every state change to the client and accepts view
// events. ?format=msgpack switches frames to binary msgpack.
func (h *Handlers) HandleWebSocket(c echo.Context) error {
	ws, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}
	defer ws.Close()
	log := logging.FromContext(c.Request().Context())
	log.Debug("websocket connected")

	binary := c.QueryParam("format") == "msgpack"
	updates := make(chan pipeline.Snapshot, 1)
	replies := make(chan WSMessage, 8)
	done := make(chan struct{})

	stop := h.ctrl.Subscribe(func(s pipeline.Snapshot) { keepLatest(updates, s) })
	defer stop()

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		ticker := time.NewTicker(pingPeriod)
		defer ticker.Stop()
		for {
			var msg WSMessage
			select {
			case s := <-updates:
				msg = WSMessage{Type: MsgTypeState, Payload: newStateView(s)}
			case msg = <-replies:
			case <-ticker.C:
				_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
				if err := ws.WriteMessage(websocket.PingMessage, nil); err != nil {
					return
				}
				continue
			case <-done:
				return
			}
			msg.Timestamp = time.Now().UnixMilli()
			if err := writeMessage(ws, msg, binary); err != nil {
				log.Debug("websocket write failed", "error", err)
				return
			}
		}
	}()

	ws.SetReadLimit(64 * 1024)
	_ = ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error { return ws.SetReadDeadline(time.Now().Add(pongWait)) })

	for {
		msg, err := readMessage(ws)
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Debug("websocket closed", "error", err)
			}
			break
		}
		_ = ws.SetReadDeadline(time.Now().Add(pongWait))
		if reply, ok := h.handleEvent(msg); ok {
			select {
			case replies <- reply:
			default:
			}
		}
	}

	close(done)
	<-writerDone
	return nil
}

// handleEvent applies a client event; it returns a reply when one is due.
func (h *Handlers) handleEvent(msg WSMessage) (WSMessage, bool) {
	switch msg.Type {
	case MsgTypePing:
		return WSMessage{Type: MsgTypePong, ID: msg.ID}, true
	case MsgTypeDismiss:
		if err := h.ctrl.Dismiss(); err != nil {
			return WSMessage{Type: MsgTypeError, ID: msg.ID, Payload: fromPipeline(err)}, true
		}
	case MsgTypeDragEnter:
		h.ctrl.DragEnter()
	case MsgTypeDragOver:
		h.ctrl.DragOver()
	case MsgTypeDragLeave:
		h.ctrl.DragLeave()
	default:
		return WSMessage{Type: MsgTypeError, ID: msg.ID, Payload: &APIError{
			Code: "INVALID_TYPE", Message: "unknown message type: " + msg.Type,
		}}, true
	}
	return WSMessage{}, false
}

// keepLatest replaces any unsent snapshot; only the newest state matters.
func keepLatest(ch chan pipeline.Snapshot, s pipeline.Snapshot) {
	for {
		select {
		case ch <- s:
			return
		default:
		}
		select {
		case <-ch:
		default:
		}
	}
}

func writeMessage(ws *websocket.Conn, msg WSMessage, binary bool) error {
	_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
	if !binary {
		return ws.WriteJSON(msg)
	}
	data, err := msgpack.Marshal(msg)
	if err != nil {
		return err
	}
	return ws.WriteMessage(websocket.BinaryMessage, data)
}

func readMessage(ws *websocket.Conn) (WSMessage, error) {
	var msg WSMessage
	kind, data, err := ws.ReadMessage()
	if err != nil {
		return msg, err
	}
	if kind == websocket.BinaryMessage {
		err = msgpack.Unmarshal(data, &msg)
	} else {
		err = json.Unmarshal(data, &msg)
	}
	if err != nil {
		msg = WSMessage{Type: "invalid"}
	}
	return msg, nil
}

// sameHost only admits browser connections from the page this server served.
func sameHost(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	return err == nil && u.Host == r.Host
}
