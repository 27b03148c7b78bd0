package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/samspacey/bsa-data/internal/models"
	"github.com/samspacey/bsa-data/internal/services"
	"github.com/samspacey/bsa-data/pkg/utils"
	"github.com/sirupsen/logrus"
)

// turnTimeout bounds one full turn, including the two model calls.
const turnTimeout = 60 * time.Second

const maxMessageLength = 2000

type ChatHandler struct {
	chatService *services.ChatService
	logger      *logrus.Logger
}

func NewChatHandler(chatService *services.ChatService, logger *logrus.Logger) *ChatHandler {
	return &ChatHandler{
		chatService: chatService,
		logger:      logger,
	}
}

// HandleChat processes one conversational turn
func (h *ChatHandler) HandleChat(c *gin.Context) {
	startTime := time.Now()

	var req models.ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.WithError(err).Error("Invalid chat request")
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid request format", err)
		return
	}

	req.Message = strings.TrimSpace(req.Message)
	if req.Message == "" {
		utils.ErrorResponse(c, http.StatusBadRequest, "Message cannot be empty", nil)
		return
	}
	if len(req.Message) > maxMessageLength {
		utils.ErrorResponse(c, http.StatusBadRequest, "Message too long (max 2000 characters)", nil)
		return
	}
	if req.SessionID != "" && !utils.ValidateSessionID(req.SessionID) {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid session ID", nil)
		return
	}

	h.logger.WithFields(logrus.Fields{
		"session_id": req.SessionID,
		"ip_address": c.ClientIP(),
	}).Info("Processing chat turn")

	ctx, cancel := context.WithTimeout(c.Request.Context(), turnTimeout)
	defer cancel()

	response, err := h.chatService.HandleTurn(ctx, req)
	if err != nil {
		var upstream *services.UpstreamError
		if errors.As(err, &upstream) {
			h.logger.WithError(err).WithField("stage", upstream.Stage).Error("Chat turn failed upstream")
			utils.ErrorResponse(c, http.StatusServiceUnavailable, "A dependency is unavailable, please retry shortly", err)
			return
		}
		h.logger.WithError(err).Error("Chat turn failed")
		utils.ErrorResponse(c, http.StatusInternalServerError, "Chat turn failed", err)
		return
	}

	h.logger.WithFields(logrus.Fields{
		"session_id":    response.SessionID,
		"metrics_count": len(response.Metrics),
		"evidence":      len(response.EvidenceSnippets),
		"response_time": time.Since(startTime).Milliseconds(),
	}).Info("Chat turn completed")

	utils.SuccessResponse(c, http.StatusOK, "Turn completed", response)
}

// HandleReset clears conversation state for a session
func (h *ChatHandler) HandleReset(c *gin.Context) {
	var req models.ResetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid request format", err)
		return
	}
	if req.SessionID != "" && !utils.ValidateSessionID(req.SessionID) {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid session ID", nil)
		return
	}

	if err := h.chatService.Reset(c.Request.Context(), req.SessionID); err != nil {
		h.logger.WithError(err).Error("Failed to reset session")
		utils.ErrorResponse(c, http.StatusInternalServerError, "Failed to reset session", err)
		return
	}

	h.logger.WithField("session_id", req.SessionID).Info("Session reset")
	utils.SuccessResponse(c, http.StatusOK, "Session reset", nil)
}
