// Message HTTP handlers (guest surface).
//
// This file exposes the widget-facing message endpoints:
//   - POST /conversations/{id}/messages   (send; Idempotency-Key aware)
//   - GET  /conversations/{id}/messages   (transcript, paginated, ETag support)
//   - GET  /conversations/{id}/stream     (SSE live view: past + future)
//
// A failed send never swallows the guest's text: error responses echo the
// submitted content so the widget can restore the input box.
package handlers

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tutorlane/support-chat-backend/internal/domain"
	"github.com/tutorlane/support-chat-backend/internal/guest"
	"github.com/tutorlane/support-chat-backend/internal/http/middleware"
	"github.com/tutorlane/support-chat-backend/internal/repo"
	"github.com/tutorlane/support-chat-backend/internal/services"
)

//
// DTOs
//

// SendMessageRequest is the JSON payload for sending a message.
type SendMessageRequest struct {
	// Content is the message body (required, non-blank).
	Content string `json:"content" binding:"required" example:"My tutor hasn't confirmed the lesson yet"`
	// SenderName optionally overrides the display name for this message.
	SenderName string `json:"sender_name" example:"Alice"`
}

// SendErrorResponse extends the error envelope with the submitted content so
// the client can restore the guest's input after a failed send.
type SendErrorResponse struct {
	ErrorResponse
	// Content echoes the rejected message body.
	Content string `json:"content,omitempty"`
}

// ListMessagesResponse wraps a page of the transcript.
type ListMessagesResponse struct {
	Messages   []domain.Message `json:"messages"`
	Pagination Pagination       `json:"pagination"`
}

// SendMessageResponse wraps a persisted message; Replayed is true when the
// Idempotency-Key matched an earlier send and no new row was written.
type SendMessageResponse struct {
	Message  domain.Message `json:"message"`
	Replayed bool           `json:"replayed"`
}

// failSend writes a send-specific error envelope that echoes content.
func failSend(c *gin.Context, status int, code, msg, content string) {
	c.AbortWithStatusJSON(status, SendErrorResponse{
		ErrorResponse: ErrorResponse{
			RequestID: c.Writer.Header().Get("X-Request-ID"),
			Code:      code,
			Message:   msg,
		},
		Content: content,
	})
}

// sendAs validates the payload and performs the send for either surface,
// translating service errors to HTTP. senderID/senderName identify the
// author; senderType is domain.SenderGuest or domain.SenderAdmin.
func (h *Handlers) sendAs(c *gin.Context, conversationID, senderType, senderID, defaultName string) {
	var req SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	name := req.SenderName
	if name == "" {
		name = defaultName
	}

	key, _ := middleware.GetIdempotencyKey(c)
	msg, replayed, err := h.msgSvc.SendIdempotent(c.Request.Context(),
		conversationID, senderType, senderID, name, req.Content, key, h.IdempotencyTTL)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrEmptyMessage):
			failSend(c, http.StatusBadRequest, ErrCodeBadRequest, "message is empty", req.Content)
		case errors.Is(err, services.ErrTooLong):
			failSend(c, http.StatusBadRequest, ErrCodeBadRequest, "message too long", req.Content)
		case errors.Is(err, services.ErrConversationNotFound):
			failSend(c, http.StatusNotFound, ErrCodeNotFound, "conversation not found", req.Content)
		case errors.Is(err, services.ErrConversationClosed):
			failSend(c, http.StatusConflict, ErrCodeConversationClosed, "conversation is closed", req.Content)
		default:
			failSend(c, http.StatusInternalServerError, ErrCodeSendFailed, err.Error(), req.Content)
		}
		return
	}

	if !replayed {
		middleware.IncMessageSent(senderType)
	}
	ok(c, http.StatusCreated, SendMessageResponse{Message: *msg, Replayed: replayed})
}

// SendMessage godoc
// @ID          sendMessage
// @Summary     Send a message
// @Description Appends a guest message to an owned conversation. Supports Idempotency-Key for safe retries. Error responses echo the content so the widget can restore the input.
// @Tags        Messages
// @Accept      json
// @Produce     json
//
// @Param       id               path    string  true   "Conversation ID (UUID)"  format(uuid)
// @Param       Idempotency-Key  header  string  false  "Safe-retry key"
// @Param       body             body    handlers.SendMessageRequest  true  "Message payload"
//
// @Success     201  {object}  handlers.SendMessageResponse
// @Failure     400  {object}  handlers.SendErrorResponse  "Empty or malformed message"
// @Failure     404  {object}  handlers.SendErrorResponse  "Conversation not found"
// @Failure     409  {object}  handlers.SendErrorResponse  "Conversation closed"
// @Router      /conversations/{id}/messages [post]
func (h *Handlers) SendMessage(c *gin.Context) {
	guestID := guest.FromContext(c)
	conversationID := c.Param("id")

	// Ownership first: foreign conversations are indistinguishable from
	// missing ones.
	conv, err := h.convSvc.GetOwned(c.Request.Context(), conversationID, guestID)
	if err != nil {
		fail(c, http.StatusNotFound, ErrCodeNotFound, "conversation not found")
		return
	}
	h.sendAs(c, conversationID, domain.SenderGuest, guestID, conv.GuestName)
}

// ListConversationMessages godoc
// @ID          listConversationMessages
// @Summary     Conversation transcript (paginated)
// @Description Returns messages in created_at order. Supports weak ETag via If-None-Match and may return 304.
// @Tags        Messages
// @Produce     json
//
// @Param       id             path    string  true  "Conversation ID (UUID)"       format(uuid)
// @Param       If-None-Match  header  string  false "Return 304 if ETag matches"
// @Param       page           query   int     false "Page number"     minimum(1) default(1)
// @Param       page_size      query   int     false "Items per page"  minimum(1) maximum(100) default(20)
//
// @Success     200  {object}  handlers.ListMessagesResponse
// @Header      200  {string}  ETag  "Weak ETag for current transcript"
// @Success     304  {string}  string "Not Modified"
// @Failure     404  {object}  handlers.ErrorResponse  "Not found"
// @Router      /conversations/{id}/messages [get]
func (h *Handlers) ListConversationMessages(c *gin.Context) {
	guestID := guest.FromContext(c)
	conversationID := c.Param("id")

	if _, err := h.convSvc.GetOwned(c.Request.Context(), conversationID, guestID); err != nil {
		fail(c, http.StatusNotFound, ErrCodeNotFound, "conversation not found")
		return
	}
	h.listTranscript(c, conversationID)
}

// listTranscript serves the paginated transcript with ETag pre-check for
// either surface; ownership/authorization happens in the caller.
func (h *Handlers) listTranscript(c *gin.Context, conversationID string) {
	ctx := c.Request.Context()
	page, pageSize := clampPagination(c)

	// ETag pre-check (best effort). Read-state flips bump updated_at, so a
	// watermark advance invalidates cached transcripts too.
	if h.DB != nil {
		count, maxTS, err := repo.MessagesStats(ctx, h.DB, conversationID)
		if err == nil {
			var ts int64
			if maxTS != nil {
				ts = maxTS.UnixNano()
			}
			etag := fmt.Sprintf(`W/"msgs:%s:%d:%d"`, conversationID, count, ts)
			c.Header("ETag", etag)
			if inm := c.GetHeader("If-None-Match"); inm != "" && inm == etag {
				c.Status(http.StatusNotModified)
				return
			}
		}
	}

	items, total, err := h.msgSvc.ListPage(ctx, conversationID, page, pageSize)
	if err != nil {
		if errors.Is(err, services.ErrConversationNotFound) {
			fail(c, http.StatusNotFound, ErrCodeNotFound, "conversation not found")
			return
		}
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}

	totalPages := int((total + int64(pageSize) - 1) / int64(pageSize))
	ok(c, http.StatusOK, ListMessagesResponse{
		Messages: items,
		Pagination: Pagination{
			Page:       page,
			PageSize:   pageSize,
			Total:      total,
			TotalPages: totalPages,
			HasNext:    page < totalPages,
		},
	})
}

// StreamMessages godoc
// @ID          streamMessages
// @Summary     Live transcript stream (SSE)
// @Description Streams the stored transcript followed by every future message as server-sent events, in created_at order, each exactly once.
// @Tags        Messages
// @Produce     text/event-stream
//
// @Param       id  path  string  true  "Conversation ID (UUID)"  format(uuid)
//
// @Success     200  {string}  string  "event stream"
// @Failure     404  {object}  handlers.ErrorResponse  "Not found"
// @Router      /conversations/{id}/stream [get]
func (h *Handlers) StreamMessages(c *gin.Context) {
	guestID := guest.FromContext(c)
	conversationID := c.Param("id")

	if _, err := h.convSvc.GetOwned(c.Request.Context(), conversationID, guestID); err != nil {
		fail(c, http.StatusNotFound, ErrCodeNotFound, "conversation not found")
		return
	}
	h.streamTranscript(c, conversationID)
}

// streamTranscript runs the SSE loop for either surface.
func (h *Handlers) streamTranscript(c *gin.Context, conversationID string) {
	sub, err := h.msgSvc.Subscribe(c.Request.Context(), conversationID)
	if err != nil {
		if errors.Is(err, services.ErrConversationNotFound) {
			fail(c, http.StatusNotFound, ErrCodeNotFound, "conversation not found")
			return
		}
		fail(c, http.StatusInternalServerError, ErrCodeStreamFailed, err.Error())
		return
	}
	defer sub.Cancel()

	middleware.StreamOpened()
	defer middleware.StreamClosed()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no") // disable proxy buffering

	clientGone := c.Request.Context().Done()
	c.Stream(func(w io.Writer) bool {
		select {
		case m, okRecv := <-sub.C:
			if !okRecv {
				return false
			}
			c.SSEvent("message", m)
			return true
		case <-clientGone:
			return false
		}
	})
}
