package handlers

import (
	"context"
	"encoding/json"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/EvianLUO/bertopic-analysis-tool/internal/apperr"
	"github.com/EvianLUO/bertopic-analysis-tool/pkg/logger"
)

// WebSocketHandler runs analyses over a websocket and streams each stage as it starts.
type WebSocketHandler struct {
	analysis *AnalysisHandler
}

func NewWebSocketHandler(analysis *AnalysisHandler) *WebSocketHandler {
	return &WebSocketHandler{
		analysis: analysis,
	}
}

// Upgrade rejects plain HTTP requests on websocket routes.
func Upgrade(c *fiber.Ctx) error {
	if websocket.IsWebSocketUpgrade(c) {
		return c.Next()
	}
	return fiber.ErrUpgradeRequired
}

func (h *WebSocketHandler) HandleConnection(c *websocket.Conn) {
	logger.Info("WebSocket connection established")

	defer func() {
		c.Close()
		logger.Info("WebSocket connection closed")
	}()

	for {
		_, raw, err := c.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Error("Failed to read WebSocket message", zap.Error(err))
			}
			break
		}

		var p analyzePayload
		if err := json.Unmarshal(raw, &p); err != nil {
			h.sendError(c, "Invalid message")
			continue
		}

		if err := h.streamAnalysis(c, p); err != nil {
			logger.Error("Failed to stream analysis", zap.Error(err))
			break
		}
	}
}

// streamAnalysis returns an error only when the connection is no longer writable.
func (h *WebSocketHandler) streamAnalysis(c *websocket.Conn, p analyzePayload) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Analyze reports stages from this goroutine, so writes never interleave.
	var writeErr error
	progress := func(stage string) {
		if writeErr != nil {
			return
		}
		if writeErr = c.WriteJSON(fiber.Map{"type": "stage", "stage": stage}); writeErr != nil {
			cancel()
		}
	}

	req, err := h.analysis.request(ctx, p)
	if err != nil {
		return h.sendError(c, err.Error())
	}

	resp, err := h.analysis.analyzer.Analyze(ctx, req, progress)
	if writeErr != nil {
		return writeErr
	}
	if err != nil {
		msg := err.Error()
		if !apperr.IsInput(err) {
			msg = "Analysis failed: " + msg
		}
		return h.sendError(c, msg)
	}

	return c.WriteJSON(fiber.Map{
		"type":   "complete",
		"result": resp,
	})
}

func (h *WebSocketHandler) sendError(c *websocket.Conn, errorMsg string) error {
	return c.WriteJSON(fiber.Map{
		"type":  "error",
		"error": errorMsg,
	})
}
