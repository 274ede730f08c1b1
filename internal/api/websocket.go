package api

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/coinlens/coinlens/internal/planner"
)

const writeWait = 10 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Browser dashboards connect cross-origin.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// wsMessage is the envelope for streamed analysis messages.
type wsMessage struct {
	Type      string    `json:"type"` // "event", "result", "error"
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data"`
}

// handleAnalyzeWS runs one analysis over a websocket, streaming progress
// events as the plan executes and the full result at the end.
func (s *Server) handleAnalyzeWS(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Warn().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	var req AnalyzeRequest
	if err := conn.ReadJSON(&req); err != nil {
		writeWS(conn, nil, wsMessage{Type: "error", Timestamp: time.Now(), Data: "invalid request: " + err.Error()})
		return
	}

	plan, initial, err := s.prepare(&req)
	if err != nil {
		writeWS(conn, nil, wsMessage{Type: "error", Timestamp: time.Now(), Data: err.Error()})
		return
	}

	// Events arrive from concurrently running steps; serialize writes.
	var writeMu sync.Mutex
	sink := func(event planner.Event) {
		writeWS(conn, &writeMu, wsMessage{Type: "event", Timestamp: event.Timestamp, Data: event})
	}

	result, err := s.runner.Execute(c.Request.Context(), plan, initial, sink)
	if err != nil {
		writeWS(conn, &writeMu, wsMessage{Type: "error", Timestamp: time.Now(), Data: err.Error()})
		return
	}

	writeWS(conn, &writeMu, wsMessage{Type: "result", Timestamp: time.Now(), Data: buildResponse(result)})
}

func writeWS(conn *websocket.Conn, mu *sync.Mutex, msg wsMessage) {
	if mu != nil {
		mu.Lock()
		defer mu.Unlock()
	}

	data, err := json.Marshal(msg)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to marshal websocket message")
		return
	}
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		log.Debug().Err(err).Msg("WebSocket write failed")
	}
}
