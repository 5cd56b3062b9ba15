package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/MeKo-Tech/ocrbench/internal/engine"
	"github.com/MeKo-Tech/ocrbench/internal/ocrapi"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// WebSocket upgrader with reasonable defaults.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// WebSocketOCRRequest is one image sent as a text message. Image is base64
// encoded in JSON.
type WebSocketOCRRequest struct {
	FileName       string `json:"file_name"`
	Image          []byte `json:"image"`
	ModelName      string `json:"model_name,omitempty"`
	LoggingEnabled bool   `json:"logging_enabled,omitempty"`
}

// WebSocketConnWriter is an interface for writing WebSocket messages.
type WebSocketConnWriter interface {
	WriteMessage(messageType int, data []byte) error
}

// WebSocketOCRResponse represents an OCR response via WebSocket.
type WebSocketOCRResponse struct {
	Type      string             `json:"type"`
	Status    string             `json:"status"` // "processing", "completed", "error"
	Result    *ocrapi.FileResult `json:"result,omitempty"`
	Error     string             `json:"error,omitempty"`
	ErrorType string             `json:"error_type,omitempty"`
	RequestID string             `json:"request_id,omitempty"`
}

// ocrWebSocketHandler handles WebSocket connections for real-time OCR.
func (s *Server) ocrWebSocketHandler(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("Failed to upgrade connection to WebSocket", "error", err)
		return
	}
	defer func() {
		_ = conn.Close()
	}()

	websocketConnections.Inc()
	defer websocketConnections.Dec()

	s.logger.Info("WebSocket connection established", "remote_addr", r.RemoteAddr)
	s.handleWebSocketConnection(r.Context(), conn)
}

// handleWebSocketConnection processes messages until the peer goes away.
func (s *Server) handleWebSocketConnection(ctx context.Context, conn *websocket.Conn) {
	// Set read deadline to prevent hanging connections
	_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	done := make(chan struct{})
	defer close(done)
	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				if err := conn.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(10*time.Second)); err != nil {
					return
				}
			}
		}
	}()

	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Error("WebSocket error", "error", err)
			}
			return
		}
		websocketMessagesTotal.WithLabelValues("received").Inc()
		_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))

		if messageType == websocket.TextMessage {
			s.handleWebSocketMessage(ctx, conn, data)
		}
	}
}

// handleWebSocketMessage answers one request with a processing notice
// followed by the result or an error.
func (s *Server) handleWebSocketMessage(ctx context.Context, conn WebSocketConnWriter, data []byte) {
	var req WebSocketOCRRequest
	if err := json.Unmarshal(data, &req); err != nil {
		s.sendWebSocketError(conn, "", "invalid_request", fmt.Sprintf("Failed to parse request: %v", err))
		return
	}
	requestID := uuid.NewString()

	if req.FileName == "" {
		req.FileName = "image"
	}
	if int64(len(req.Image)) > s.maxFileBytes {
		ocrRequestsTotal.WithLabelValues("websocket", "rejected").Inc()
		err := &FileTooLargeError{File: req.FileName, Size: int64(len(req.Image)), Limit: s.maxFileBytes}
		s.sendWebSocketError(conn, requestID, "invalid_request", err.Error())
		return
	}
	if err := validateImage(req.FileName, "", req.Image); err != nil {
		ocrRequestsTotal.WithLabelValues("websocket", "rejected").Inc()
		s.sendWebSocketError(conn, requestID, "invalid_request", err.Error())
		return
	}
	model, err := s.engines.Resolve(req.ModelName)
	if err != nil {
		ocrRequestsTotal.WithLabelValues("websocket", "rejected").Inc()
		s.sendWebSocketError(conn, requestID, "invalid_request", err.Error())
		return
	}

	s.sendWebSocketResponse(conn, WebSocketOCRResponse{
		Type:      "ocr_response",
		Status:    "processing",
		RequestID: requestID,
	})

	res, err := s.recognize(ctx, model, req.Image, engine.RequestOptions{
		FileName:       req.FileName,
		LoggingEnabled: req.LoggingEnabled,
	})
	if err != nil {
		ocrRequestsTotal.WithLabelValues("websocket", "error").Inc()
		s.sendWebSocketError(conn, requestID, "processing_error", fmt.Sprintf("OCR processing failed: %v", err))
		return
	}

	ocrRequestsTotal.WithLabelValues("websocket", "success").Inc()
	s.sendWebSocketResponse(conn, WebSocketOCRResponse{
		Type:      "ocr_response",
		Status:    "completed",
		Result:    &res,
		RequestID: requestID,
	})
}

// sendWebSocketResponse sends a response message over WebSocket.
func (s *Server) sendWebSocketResponse(conn WebSocketConnWriter, response WebSocketOCRResponse) {
	data, err := json.Marshal(response)
	if err != nil {
		s.logger.Error("Failed to marshal WebSocket response", "error", err)
		return
	}

	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		s.logger.Error("Failed to send WebSocket message", "error", err)
		return
	}

	websocketMessagesTotal.WithLabelValues("sent").Inc()
}

// sendWebSocketError sends an error message over WebSocket.
func (s *Server) sendWebSocketError(conn WebSocketConnWriter, requestID, errorType, message string) {
	s.sendWebSocketResponse(conn, WebSocketOCRResponse{
		Type:      "error",
		Status:    "error",
		Error:     message,
		ErrorType: errorType,
		RequestID: requestID,
	})
}
