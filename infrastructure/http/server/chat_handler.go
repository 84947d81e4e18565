package server

import (
	"net/http"

	"market-chat/domain"
	"market-chat/errors"
	"market-chat/gateway"
	"market-chat/observability"
	"market-chat/services"

	"github.com/gin-gonic/gin"
)

type ChatHandler struct {
	chat       services.IChatService
	monitoring *observability.MonitoringManager
}

func NewChatHandler(chat services.IChatService, monitoring *observability.MonitoringManager) *ChatHandler {
	return &ChatHandler{chat: chat, monitoring: monitoring}
}

type sendRequest struct {
	Content   string `json:"content"`
	ClientRef string `json:"clientRef"`
}

type sendResponse struct {
	ClientRef string         `json:"clientRef,omitempty"`
	Message   domain.Message `json:"message"`
}

type errorResponse struct {
	Code   errors.Code `json:"code"`
	Reason string      `json:"reason"`
}

// Conversations handles GET /api/chat/conversations.
func (h *ChatHandler) Conversations(c *gin.Context) {
	identity, ok := IdentityFrom(c)
	if !ok {
		abortWithError(c, errors.ErrUnauthorized)
		return
	}
	summaries, err := h.chat.Conversations(identity.UserID)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, summaries)
}

// History handles GET /api/chat/messages/:userId.
func (h *ChatHandler) History(c *gin.Context) {
	identity, ok := IdentityFrom(c)
	if !ok {
		abortWithError(c, errors.ErrUnauthorized)
		return
	}
	messages, err := h.chat.History(identity.UserID, domain.UserID(c.Param("userId")))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, messages)
}

// Send handles POST /api/chat/messages/:userId, the same operation as a websocket send.
func (h *ChatHandler) Send(c *gin.Context) {
	identity, ok := IdentityFrom(c)
	if !ok {
		abortWithError(c, errors.ErrUnauthorized)
		return
	}
	var body sendRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		abortWithError(c, errors.Validation("malformed body: %v", err))
		return
	}
	message, err := h.chat.Send(c.Request.Context(), domain.SendCommand{
		Sender:    identity.UserID,
		Receiver:  domain.UserID(c.Param("userId")),
		Content:   body.Content,
		ClientRef: body.ClientRef,
	})
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, sendResponse{ClientRef: body.ClientRef, Message: message})
}

// Stats handles GET /debug/stats.
func (h *ChatHandler) Stats(c *gin.Context) {
	c.JSON(http.StatusOK, h.monitoring.GetLatest())
}

func abortWithError(c *gin.Context, err error) {
	frame := gateway.ErrorFrame(err, "")
	c.AbortWithStatusJSON(errors.MapToHTTPStatus(err), errorResponse{Code: frame.Code, Reason: frame.Reason})
}
