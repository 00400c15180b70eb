package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/MeKo-Tech/wallsight/internal/geometry"
	"github.com/MeKo-Tech/wallsight/internal/matcher"
	"github.com/MeKo-Tech/wallsight/internal/relocalize"
	"github.com/MeKo-Tech/wallsight/internal/utils"
)

const (
	wsReadTimeout  = 60 * time.Second
	wsPingInterval = 30 * time.Second
	wsWriteTimeout = 10 * time.Second
)

// WebSocket upgrader with reasonable defaults. Frames are whole images, so
// the read buffer is larger than gorilla's default.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  64 * 1024,
	WriteBufferSize: 4 * 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Allow connections from any origin in development
		return true
	},
}

// WebSocket message types sent by /ws/relocalize.
const (
	wsTypeReady   = "ready"
	wsTypeAttempt = "attempt"
	wsTypeMatch   = "match"
	wsTypeError   = "error"
)

// WebSocketMessage is one JSON message sent to a relocalization client.
type WebSocketMessage struct {
	Type      string          `json:"type"`
	ProjectID string          `json:"project_id,omitempty"`
	Attempt   int             `json:"attempt,omitempty"`
	Result    *matcher.Result `json:"result,omitempty"`
	Corners   *geometry.Quad  `json:"corners,omitempty"`
	ElapsedMS int64           `json:"elapsed_ms,omitempty"`
	Error     string          `json:"error,omitempty"`
	Message   string          `json:"message,omitempty"`
}

// wsWriter serializes writes to a connection shared by the reader and the
// scanning goroutine.
type wsWriter struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (w *wsWriter) send(msg WebSocketMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	_ = w.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	if err := w.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return err
	}
	websocketMessagesTotal.WithLabelValues("sent").Inc()
	return nil
}

func (w *wsWriter) close(code int, reason string) {
	msg := websocket.FormatCloseMessage(code, reason)
	_ = w.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(wsWriteTimeout))
}

// relocalizeWebSocketHandler streams client camera frames into a scanner
// for one project. Each binary message is an encoded image; the server
// answers every finished attempt and closes the connection after a match.
func (s *Server) relocalizeWebSocketHandler(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("project")
	if id == "" {
		s.writeError(w, http.StatusBadRequest, "missing_project", "Query parameter project is required", "")
		return
	}
	p, ok := s.lookupProject(r.Context(), w, id)
	if !ok {
		return
	}
	if p.Fingerprint.IsEmpty() {
		s.writeError(w, http.StatusUnprocessableEntity, "no_features",
			"Project has no usable fingerprint", guidanceDetailedTarget)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("Failed to upgrade connection to WebSocket", "error", err)
		return
	}
	defer func() { _ = conn.Close() }()

	websocketConnections.Inc()
	defer websocketConnections.Dec()

	s.logger.Info("relocalization stream opened", "project", p.ID, "remote_addr", r.RemoteAddr)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	out := &wsWriter{conn: conn}
	frames := &relocalize.FrameBuffer{}

	go s.readFrames(conn, out, frames, cancel)
	go keepAlive(ctx, conn)

	if err := out.send(WebSocketMessage{Type: wsTypeReady, ProjectID: p.ID}); err != nil {
		return
	}

	start := time.Now()
	scanner := relocalize.NewScanner(s.matcher, s.scanner).
		WithLogger(s.logger).
		OnAttempt(func(a relocalize.Attempt) {
			outcome := "no_match"
			if a.Result.IsMatch {
				outcome = "match"
			}
			matchAttemptsTotal.WithLabelValues("websocket", outcome).Inc()
			matchInliers.WithLabelValues("websocket").Observe(float64(a.Result.InlierCount))
			if a.Result.IsMatch {
				return
			}
			res := a.Result
			_ = out.send(WebSocketMessage{
				Type:      wsTypeAttempt,
				ProjectID: p.ID,
				Attempt:   a.Number,
				Result:    &res,
				ElapsedMS: a.Elapsed.Milliseconds(),
			})
		})

	outcome, err := scanner.Scan(ctx, frames, p.Fingerprint)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			s.logger.Warn("relocalization stream failed", "project", p.ID, "error", err)
			_ = out.send(WebSocketMessage{Type: wsTypeError, Error: "scan_failed", Message: err.Error()})
		}
		return
	}
	matchDuration.WithLabelValues("websocket").Observe(time.Since(start).Seconds())

	msg := WebSocketMessage{
		Type:      wsTypeMatch,
		ProjectID: p.ID,
		Attempt:   outcome.Attempts,
		Result:    &outcome.Result,
		ElapsedMS: outcome.Elapsed.Milliseconds(),
	}
	if corners, ok := outcome.Result.TargetCorners(p.Fingerprint); ok {
		msg.Corners = &corners
	}
	if err := out.send(msg); err != nil {
		return
	}
	out.close(websocket.CloseNormalClosure, "target found")
	s.logger.Info("relocalization stream matched", "project", p.ID,
		"attempts", outcome.Attempts, "frames", frames.Received())
}

// readFrames decodes binary messages into frames until the connection ends,
// then cancels the scan.
func (s *Server) readFrames(conn *websocket.Conn, out *wsWriter, frames *relocalize.FrameBuffer, cancel context.CancelFunc) {
	defer cancel()

	_ = conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
	})
	conn.SetReadLimit(s.maxUploadBytes())

	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				s.logger.Error("WebSocket error", "error", err)
			}
			return
		}
		websocketMessagesTotal.WithLabelValues("received").Inc()
		_ = conn.SetReadDeadline(time.Now().Add(wsReadTimeout))

		if messageType != websocket.BinaryMessage {
			_ = out.send(WebSocketMessage{Type: wsTypeError, Error: "invalid_message",
				Message: "send frames as binary image messages"})
			continue
		}
		img, _, err := utils.DecodeImage(bytes.NewReader(data))
		if err != nil {
			_ = out.send(WebSocketMessage{Type: wsTypeError, Error: "invalid_image", Message: err.Error()})
			continue
		}
		frames.Put(img)
	}
}

// keepAlive pings the client until ctx is done.
func keepAlive(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(wsPingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteTimeout)); err != nil {
				return
			}
		}
	}
}
