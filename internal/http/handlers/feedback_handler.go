// Feedback HTTP handlers.
//
// This file exposes the conversation-rating endpoint for the guest surface:
//   - POST /conversations/{id}/feedback
//
// Ratings are only accepted from the owning guest, only on closed
// conversations, and only once.
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tutorlane/support-chat-backend/internal/guest"
	"github.com/tutorlane/support-chat-backend/internal/services"
)

// FeedbackRequest is the JSON payload for rating a conversation.
type FeedbackRequest struct {
	// Value must be 1 (helpful) or -1 (not helpful).
	Value int `json:"value" binding:"required" example:"1"`
}

// LeaveFeedback godoc
// @ID          leaveFeedback
// @Summary     Rate a closed conversation
// @Description Records a -1/+1 rating by the owning guest. One rating per guest per conversation.
// @Tags        Feedback
// @Accept      json
// @Produce     json
//
// @Param       id    path  string  true  "Conversation ID (UUID)"  format(uuid)
// @Param       body  body  handlers.FeedbackRequest  true  "Rating"
//
// @Success     204  {string}  string  "No Content"
// @Failure     400  {object}  handlers.ErrorResponse  "Invalid rating value"
// @Failure     403  {object}  handlers.ErrorResponse  "Not the conversation owner"
// @Failure     404  {object}  handlers.ErrorResponse  "Conversation not found"
// @Failure     409  {object}  handlers.ErrorResponse  "Not closed yet, or already rated"
// @Router      /conversations/{id}/feedback [post]
func (h *Handlers) LeaveFeedback(c *gin.Context) {
	var req FeedbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "value is required (-1 or 1)")
		return
	}

	err := h.fbSvc.Rate(c.Request.Context(), guest.FromContext(c), c.Param("id"), req.Value)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrInvalidRating):
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "value must be -1 or 1")
		case errors.Is(err, services.ErrConversationNotFound):
			fail(c, http.StatusNotFound, ErrCodeNotFound, "conversation not found")
		case errors.Is(err, services.ErrForbiddenRating):
			fail(c, http.StatusForbidden, ErrCodeForbidden, "cannot rate this conversation")
		case errors.Is(err, services.ErrConversationNotClosed):
			fail(c, http.StatusConflict, ErrCodeConflict, "conversation is not closed yet")
		case errors.Is(err, services.ErrDuplicateRating):
			fail(c, http.StatusConflict, ErrCodeConflict, "rating already exists")
		default:
			fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		}
		return
	}
	noContent(c)
}
