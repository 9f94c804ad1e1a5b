// Admin console HTTP handlers.
//
// This file exposes the staff-facing endpoints. Staff identify themselves
// with the X-Admin-ID header (authentication itself lives at the proxy):
//   - GET  /admin/conversations               (inbox, paginated, ETag support)
//   - GET  /admin/conversations/{id}          (conversation detail + unread)
//   - GET  /admin/conversations/{id}/messages (transcript)
//   - GET  /admin/conversations/{id}/stream   (SSE live view)
//   - POST /admin/conversations/{id}/messages (reply)
//   - POST /admin/conversations/{id}/read     (advance read watermark)
//   - GET  /admin/conversations/{id}/unread   (unread guest-message count)
//   - POST /admin/conversations/{id}/close    (close; idempotent)
//
// The console and the widget never talk to each other directly; everything
// they observe of one another flows through the store and the broker.
package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tutorlane/support-chat-backend/internal/domain"
	"github.com/tutorlane/support-chat-backend/internal/repo"
	"github.com/tutorlane/support-chat-backend/internal/services"
)

// HeaderAdminID identifies the staff member behind an admin request.
const HeaderAdminID = "X-Admin-ID"

// adminID extracts the staff identity, or "" when the header is absent.
func adminID(c *gin.Context) string {
	return strings.TrimSpace(c.GetHeader(HeaderAdminID))
}

// RequireAdmin rejects requests without a staff identity. Mounted on the
// /admin group; real authentication happens upstream.
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		if adminID(c) == "" {
			Fail(c, http.StatusUnauthorized, ErrCodeUnauthorized, "X-Admin-ID header required")
			return
		}
		c.Next()
	}
}

//
// DTOs
//

// AdminConversationDetail is a conversation plus console-specific counters.
type AdminConversationDetail struct {
	Conversation domain.Conversation `json:"conversation"`
	Unread       int64               `json:"unread"`
}

// MarkReadRequest names the watermark message for a read advance.
type MarkReadRequest struct {
	// WatermarkMessageID is the newest message the admin has seen.
	WatermarkMessageID string `json:"watermark_message_id" binding:"required" format:"uuid"`
}

// MarkReadResponse reports how many messages the watermark advance flipped.
type MarkReadResponse struct {
	Updated int64 `json:"updated"`
}

// UnreadResponse carries the unread guest-message count.
type UnreadResponse struct {
	Unread int64 `json:"unread"`
}

//
// Handlers
//

// AdminInbox godoc
// @ID          adminInbox
// @Summary     Conversation inbox (paginated)
// @Description Lists conversations newest-activity first, optionally filtered by status. Supports weak ETag via If-None-Match.
// @Tags        Admin
// @Produce     json
//
// @Param       X-Admin-ID     header  string  true  "Staff identity"
// @Param       status         query   string  false "Filter: open | in_progress | closed"
// @Param       If-None-Match  header  string  false "Return 304 if ETag matches"
// @Param       page           query   int     false "Page number"     minimum(1) default(1)
// @Param       page_size      query   int     false "Items per page"  minimum(1) maximum(100) default(20)
//
// @Success     200  {object}  handlers.ListConversationsResponse
// @Header      200  {string}  ETag  "Weak ETag for current inbox"
// @Success     304  {string}  string "Not Modified"
// @Failure     401  {object}  handlers.ErrorResponse  "Missing staff identity"
// @Router      /admin/conversations [get]
func (h *Handlers) AdminInbox(c *gin.Context) {
	ctx := c.Request.Context()
	status := strings.TrimSpace(c.Query("status"))
	page, pageSize := clampPagination(c)

	if status != "" && !domain.ValidStatus(status) {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "unknown status filter")
		return
	}

	// ETag pre-check (best effort).
	if h.DB != nil {
		count, maxTS, err := repo.ConversationsStats(ctx, h.DB, status)
		if err == nil {
			var ts int64
			if maxTS != nil {
				ts = maxTS.UnixNano()
			}
			etag := fmt.Sprintf(`W/"inbox:%s:%d:%d"`, status, count, ts)
			c.Header("ETag", etag)
			if inm := c.GetHeader("If-None-Match"); inm != "" && inm == etag {
				c.Status(http.StatusNotModified)
				return
			}
		}
	}

	items, total, err := h.convSvc.ListPage(ctx, status, page, pageSize)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}

	totalPages := int((total + int64(pageSize) - 1) / int64(pageSize))
	ok(c, http.StatusOK, ListConversationsResponse{
		Conversations: items,
		Pagination: Pagination{
			Page:       page,
			PageSize:   pageSize,
			Total:      total,
			TotalPages: totalPages,
			HasNext:    page < totalPages,
		},
	})
}

// AdminGetConversation godoc
// @ID          adminGetConversation
// @Summary     Conversation detail
// @Description Returns a conversation with its unread guest-message count.
// @Tags        Admin
// @Produce     json
//
// @Param       X-Admin-ID  header  string  true  "Staff identity"
// @Param       id          path    string  true  "Conversation ID (UUID)"  format(uuid)
//
// @Success     200  {object}  handlers.AdminConversationDetail
// @Failure     404  {object}  handlers.ErrorResponse  "Not found"
// @Router      /admin/conversations/{id} [get]
func (h *Handlers) AdminGetConversation(c *gin.Context) {
	ctx := c.Request.Context()
	conv, err := h.convSvc.Get(ctx, c.Param("id"))
	if err != nil {
		fail(c, http.StatusNotFound, ErrCodeNotFound, "conversation not found")
		return
	}
	unread, err := h.msgSvc.UnreadCount(ctx, conv.ID)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	ok(c, http.StatusOK, AdminConversationDetail{Conversation: *conv, Unread: unread})
}

// AdminListMessages godoc
// @ID          adminListMessages
// @Summary     Conversation transcript (paginated)
// @Description Returns messages in created_at order for the console. Supports weak ETag.
// @Tags        Admin
// @Produce     json
//
// @Param       X-Admin-ID  header  string  true  "Staff identity"
// @Param       id          path    string  true  "Conversation ID (UUID)"  format(uuid)
//
// @Success     200  {object}  handlers.ListMessagesResponse
// @Failure     404  {object}  handlers.ErrorResponse  "Not found"
// @Router      /admin/conversations/{id}/messages [get]
func (h *Handlers) AdminListMessages(c *gin.Context) {
	h.listTranscript(c, c.Param("id"))
}

// AdminStreamMessages godoc
// @ID          adminStreamMessages
// @Summary     Live transcript stream (SSE)
// @Description Streams the stored transcript followed by future messages for the console.
// @Tags        Admin
// @Produce     text/event-stream
//
// @Param       X-Admin-ID  header  string  true  "Staff identity"
// @Param       id          path    string  true  "Conversation ID (UUID)"  format(uuid)
//
// @Success     200  {string}  string  "event stream"
// @Failure     404  {object}  handlers.ErrorResponse  "Not found"
// @Router      /admin/conversations/{id}/stream [get]
func (h *Handlers) AdminStreamMessages(c *gin.Context) {
	h.streamTranscript(c, c.Param("id"))
}

// AdminReply godoc
// @ID          adminReply
// @Summary     Reply to a conversation
// @Description Appends an admin message. The first reply to an open conversation advances it to in_progress. Supports Idempotency-Key.
// @Tags        Admin
// @Accept      json
// @Produce     json
//
// @Param       X-Admin-ID       header  string  true   "Staff identity"
// @Param       id               path    string  true   "Conversation ID (UUID)"  format(uuid)
// @Param       Idempotency-Key  header  string  false  "Safe-retry key"
// @Param       body             body    handlers.SendMessageRequest  true  "Message payload"
//
// @Success     201  {object}  handlers.SendMessageResponse
// @Failure     400  {object}  handlers.SendErrorResponse  "Empty or malformed message"
// @Failure     404  {object}  handlers.SendErrorResponse  "Conversation not found"
// @Failure     409  {object}  handlers.SendErrorResponse  "Conversation closed"
// @Router      /admin/conversations/{id}/messages [post]
func (h *Handlers) AdminReply(c *gin.Context) {
	aid := adminID(c)
	h.sendAs(c, c.Param("id"), domain.SenderAdmin, aid, aid)
}

// AdminMarkRead godoc
// @ID          adminMarkRead
// @Summary     Advance the read watermark
// @Description Marks every unread guest message at or before the watermark message as read. Replaying the same watermark updates zero rows and still succeeds.
// @Tags        Admin
// @Accept      json
// @Produce     json
//
// @Param       X-Admin-ID  header  string  true  "Staff identity"
// @Param       id          path    string  true  "Conversation ID (UUID)"  format(uuid)
// @Param       body        body    handlers.MarkReadRequest  true  "Watermark"
//
// @Success     200  {object}  handlers.MarkReadResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Malformed payload"
// @Failure     404  {object}  handlers.ErrorResponse  "Conversation or watermark not found"
// @Router      /admin/conversations/{id}/read [post]
func (h *Handlers) AdminMarkRead(c *gin.Context) {
	var req MarkReadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "watermark_message_id required")
		return
	}

	n, err := h.msgSvc.MarkRead(c.Request.Context(), c.Param("id"), req.WatermarkMessageID)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrConversationNotFound):
			fail(c, http.StatusNotFound, ErrCodeNotFound, "conversation not found")
		case errors.Is(err, services.ErrMessageNotFound):
			fail(c, http.StatusNotFound, ErrCodeNotFound, "watermark message not found in conversation")
		default:
			fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		}
		return
	}
	ok(c, http.StatusOK, MarkReadResponse{Updated: n})
}

// AdminUnread godoc
// @ID          adminUnread
// @Summary     Unread guest-message count
// @Description Returns the number of guest messages not yet covered by the read watermark.
// @Tags        Admin
// @Produce     json
//
// @Param       X-Admin-ID  header  string  true  "Staff identity"
// @Param       id          path    string  true  "Conversation ID (UUID)"  format(uuid)
//
// @Success     200  {object}  handlers.UnreadResponse
// @Failure     404  {object}  handlers.ErrorResponse  "Not found"
// @Router      /admin/conversations/{id}/unread [get]
func (h *Handlers) AdminUnread(c *gin.Context) {
	n, err := h.msgSvc.UnreadCount(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, services.ErrConversationNotFound) {
			fail(c, http.StatusNotFound, ErrCodeNotFound, "conversation not found")
			return
		}
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	ok(c, http.StatusOK, UnreadResponse{Unread: n})
}

// AdminClose godoc
// @ID          adminClose
// @Summary     Close a conversation
// @Description Moves a conversation to closed. Closing an already-closed conversation succeeds with 204 since the desired end state holds.
// @Tags        Admin
// @Produce     json
//
// @Param       X-Admin-ID  header  string  true  "Staff identity"
// @Param       id          path    string  true  "Conversation ID (UUID)"  format(uuid)
//
// @Success     204  {string}  string  "No Content"
// @Failure     404  {object}  handlers.ErrorResponse  "Not found"
// @Router      /admin/conversations/{id}/close [post]
func (h *Handlers) AdminClose(c *gin.Context) {
	err := h.convSvc.Close(c.Request.Context(), c.Param("id"))
	switch {
	case err == nil, errors.Is(err, services.ErrConversationClosed):
		// Already closed is the state the caller wanted.
		noContent(c)
	case errors.Is(err, services.ErrConversationNotFound):
		fail(c, http.StatusNotFound, ErrCodeNotFound, "conversation not found")
	default:
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
	}
}
