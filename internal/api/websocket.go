package api

import (
	"net/http"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/feniks/backend/internal/logging"
	"github.com/feniks/backend/internal/models"
	"github.com/feniks/backend/internal/wizard"
)

// WebSocket message types for the session channel
const (
	// Client -> Server messages
	MsgTypePing     = "ping"
	MsgTypeForm     = "form"
	MsgTypeContinue = "continue"
	MsgTypeBack     = "back"
	MsgTypeAnalyze  = "analyze"

	// Server -> Client messages
	MsgTypeConnected = "connected"
	MsgTypeSession   = "session"
	MsgTypePong      = "pong"
	MsgTypeError     = "error"
)

// WSMessage is one frame on the session channel.
type WSMessage struct {
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp int64           `json:"timestamp"`
}

// WSErrorPayload is the payload of an error frame.
type WSErrorPayload struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// WebSocketHandler pushes session state to the browser and accepts wizard
// actions over one connection.
type WebSocketHandler struct {
	sessions SessionManager
	upgrader websocket.Upgrader
	interval time.Duration
	logger   *zap.Logger
}

// NewWebSocketHandler creates a new session channel handler
func NewWebSocketHandler(sessions SessionManager, logger *zap.Logger) *WebSocketHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WebSocketHandler{
		sessions: sessions,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  16 * 1024,
			WriteBufferSize: 64 * 1024,
		},
		interval: DefaultProgressInterval,
		logger:   logger,
	}
}

// HandleWebSocket upgrades the connection and serves the session channel
// until the client disconnects or the session disappears.
func (wsh *WebSocketHandler) HandleWebSocket(c echo.Context) error {
	id := c.Param("sessionId")
	sess, err := wsh.sessions.Get(id)
	if err != nil {
		return sessionError(err, id)
	}

	ws, err := wsh.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// Upgrade has already replied to the client.
		return nil
	}

	log := wsh.logger.With(zap.String("session", logging.ShortID(id)))
	log.Debug("websocket connected")

	incoming := make(chan WSMessage)
	stop := make(chan struct{})
	done := make(chan struct{})
	go wsh.readLoop(ws, incoming, stop, done, log)

	defer func() {
		close(stop)
		ws.Close()
		<-done
		log.Debug("websocket disconnected")
	}()

	wsh.send(ws, MsgTypeConnected, sess)

	ticker := time.NewTicker(wsh.interval)
	defer ticker.Stop()

	last := sess.UpdatedAt
	for {
		select {
		case <-done:
			return nil

		case msg := <-incoming:
			if s, ok := wsh.handleMessage(ws, id, msg); ok {
				wsh.send(ws, MsgTypeSession, s)
				last = s.UpdatedAt
			}

		case <-ticker.C:
			s, err := wsh.sessions.Get(id)
			if err != nil {
				wsh.sendError(ws, "session not found", "NOT_FOUND")
				return nil
			}
			if !s.UpdatedAt.Equal(last) {
				wsh.send(ws, MsgTypeSession, s)
				last = s.UpdatedAt
			}
		}
	}
}

func (wsh *WebSocketHandler) readLoop(ws *websocket.Conn, incoming chan<- WSMessage, stop <-chan struct{}, done chan<- struct{}, log *zap.Logger) {
	defer close(done)
	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Debug("websocket read failed", zap.Error(err))
			}
			return
		}

		var msg WSMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			msg = WSMessage{Type: "invalid"}
		}
		select {
		case incoming <- msg:
		case <-stop:
			return
		}
	}
}

// handleMessage applies one client frame. It reports the new session state
// when the frame changed it.
func (wsh *WebSocketHandler) handleMessage(ws *websocket.Conn, id string, msg WSMessage) (models.Session, bool) {
	var (
		s   models.Session
		err error
	)
	switch msg.Type {
	case MsgTypePing:
		wsh.sendMessage(ws, WSMessage{Type: MsgTypePong, Timestamp: time.Now().UnixMilli()})
		return s, false
	case MsgTypeForm:
		var patch models.FormPatch
		if err := json.Unmarshal(msg.Payload, &patch); err != nil {
			wsh.sendError(ws, "Invalid form payload: "+err.Error(), "INVALID_PAYLOAD")
			return s, false
		}
		s, err = wsh.sessions.Dispatch(id, wizard.FormFieldSet{Patch: patch})
	case MsgTypeContinue:
		s, err = wsh.sessions.Dispatch(id, wizard.StepContinue{})
	case MsgTypeBack:
		s, err = wsh.sessions.Dispatch(id, wizard.StepBack{})
	case MsgTypeAnalyze:
		s, err = wsh.sessions.StartAnalysis(id)
	default:
		wsh.sendError(ws, "Unknown message type: "+msg.Type, "INVALID_TYPE")
		return s, false
	}

	if err != nil {
		if apiErr, ok := sessionError(err, id).(*APIError); ok {
			wsh.sendError(ws, apiErr.Message, apiErr.Code)
		}
		return s, false
	}
	return s, true
}

func (wsh *WebSocketHandler) send(ws *websocket.Conn, msgType string, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		wsh.logger.Warn("failed to encode websocket payload", zap.Error(err))
		return
	}
	wsh.sendMessage(ws, WSMessage{Type: msgType, Payload: data, Timestamp: time.Now().UnixMilli()})
}

func (wsh *WebSocketHandler) sendMessage(ws *websocket.Conn, msg WSMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	ws.SetWriteDeadline(time.Now().Add(10 * time.Second))
	if err := ws.WriteMessage(websocket.TextMessage, data); err != nil {
		wsh.logger.Debug("websocket write failed", zap.Error(err))
	}
}

func (wsh *WebSocketHandler) sendError(ws *websocket.Conn, message, code string) {
	wsh.send(ws, MsgTypeError, WSErrorPayload{Message: message, Code: code})
}
