// Conversation HTTP handlers (guest surface).
//
// This file exposes the widget-facing endpoints for identity and
// conversation lifecycle:
//   - POST /guest/session          (resolve or mint the guest identity)
//   - GET  /support/provider       (resolved live-support strategy)
//   - POST /conversations          (open a conversation; degraded mode on failure)
//   - GET  /conversations/{id}     (fetch own conversation)
//   - GET  /conversations          (resume: list own conversations)
//
// Handlers are transport-thin: they validate input, call application
// services, and translate results into HTTP responses.
package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/tutorlane/support-chat-backend/internal/catalog"
	"github.com/tutorlane/support-chat-backend/internal/domain"
	"github.com/tutorlane/support-chat-backend/internal/guest"
	"github.com/tutorlane/support-chat-backend/internal/http/middleware"
	"github.com/tutorlane/support-chat-backend/internal/services"
	"github.com/tutorlane/support-chat-backend/internal/support"
	"github.com/tutorlane/support-chat-backend/internal/utils"
)

//
// Service contracts (context-aware)
//

// ConversationService defines conversation lifecycle operations consumed by
// HTTP handlers. Implementations must be safe for concurrent use and honor
// the provided context.
type ConversationService interface {
	// Create opens a conversation for the guest; name is required.
	Create(ctx context.Context, guestID, guestName string, guestEmail *string) (*domain.Conversation, error)
	// Get fetches a conversation by id.
	Get(ctx context.Context, id string) (*domain.Conversation, error)
	// GetOwned fetches a conversation and verifies guest ownership.
	GetOwned(ctx context.Context, id, guestID string) (*domain.Conversation, error)
	// Close moves a conversation to its terminal status.
	Close(ctx context.Context, id string) error
	// ListPage returns a page of conversations plus the total count.
	ListPage(ctx context.Context, status string, page, pageSize int) ([]domain.Conversation, int64, error)
	// ListForGuest returns every conversation created under a guest id.
	ListForGuest(ctx context.Context, guestID string) ([]domain.Conversation, error)
}

// MessageService defines message persistence, read tracking, and live
// subscription operations consumed by HTTP handlers.
type MessageService interface {
	// Send persists a message and fans it out to subscribers.
	Send(ctx context.Context, conversationID, senderType, senderID, senderName, content string) (*domain.Message, error)
	// SendIdempotent is Send with Idempotency-Key replay semantics.
	SendIdempotent(ctx context.Context, conversationID, senderType, senderID, senderName, content, key string, ttl time.Duration) (*domain.Message, bool, error)
	// List returns the full transcript in created_at order.
	List(ctx context.Context, conversationID string) ([]domain.Message, error)
	// ListPage returns a page of the transcript plus the total count.
	ListPage(ctx context.Context, conversationID string, page, pageSize int) ([]domain.Message, int64, error)
	// Subscribe opens a live view over past and future messages.
	Subscribe(ctx context.Context, conversationID string) (*services.Subscription, error)
	// MarkRead advances the read watermark and reports rows changed.
	MarkRead(ctx context.Context, conversationID, watermarkMessageID string) (int64, error)
	// UnreadCount counts unread guest messages.
	UnreadCount(ctx context.Context, conversationID string) (int64, error)
}

// FeedbackService defines the conversation-rating operation.
type FeedbackService interface {
	// Rate submits a rating (-1 or 1) for a closed conversation.
	Rate(ctx context.Context, guestID, conversationID string, value int) error
}

//
// Handler wiring
//

// Handlers groups the HTTP endpoints for both surfaces. It depends on
// abstract service interfaces to keep transport concerns separate from
// business logic.
type Handlers struct {
	convSvc ConversationService
	msgSvc  MessageService
	fbSvc   FeedbackService

	topics   *catalog.Catalog
	provider support.Provider

	// DB backs the ETag pre-checks on transcript and inbox reads; nil
	// disables them and the endpoints serve full responses.
	DB *gorm.DB

	// SupportEmail feeds the degraded-mode email action.
	SupportEmail string
	// IdempotencyTTL bounds how long a send replay window stays open.
	IdempotencyTTL time.Duration
}

// New constructs a Handlers instance bound to the given services, topic
// catalog, and resolved support provider.
func New(convSvc ConversationService, msgSvc MessageService, fbSvc FeedbackService, topics *catalog.Catalog, provider support.Provider) *Handlers {
	return &Handlers{
		convSvc:        convSvc,
		msgSvc:         msgSvc,
		fbSvc:          fbSvc,
		topics:         topics,
		provider:       provider,
		IdempotencyTTL: 24 * time.Hour,
	}
}

//
// DTOs
//

// GuestSessionResponse reports the resolved guest identity.
type GuestSessionResponse struct {
	GuestID string `json:"guest_id" example:"g-1717248000000-3af2b19c44aa"`
	// Persisted is false when the client refused the cookie and the
	// identity only lives for this browsing session.
	Persisted bool `json:"persisted"`
}

// CreateConversationRequest is the JSON payload for opening a conversation.
type CreateConversationRequest struct {
	// GuestName is the display name shown to support staff (required).
	GuestName string `json:"guest_name" binding:"required" example:"Alice"`
	// GuestEmail optionally lets staff follow up out-of-band.
	GuestEmail string `json:"guest_email" example:"alice@example.com"`
	// TopicSlug optionally records which help topic led here.
	TopicSlug string `json:"topic_slug" example:"live-support"`
}

// DegradedResponse is returned with a 503 when the store refuses to open a
// conversation. The widget renders Fallback.Message as a system notice and
// offers exactly the three recovery actions.
type DegradedResponse struct {
	RequestID string           `json:"request_id,omitempty"`
	Code      string           `json:"code" example:"create_failed"`
	Message   string           `json:"message"`
	Fallback  support.Fallback `json:"fallback"`
}

// Pagination carries pagination metadata for list responses.
type Pagination struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
	HasNext    bool  `json:"has_next"`
}

// ListConversationsResponse wraps a page of conversations.
type ListConversationsResponse struct {
	Conversations []domain.Conversation `json:"conversations"`
	Pagination    Pagination            `json:"pagination"`
}

//
// Helpers
//

// clampPagination parses and bounds page and page_size query params.
func clampPagination(c *gin.Context) (page, pageSize int) {
	const (
		defaultPage     = 1
		defaultPageSize = 20
		maxPageSize     = 100
	)
	page = utils.AtoiDefault(c.Query("page"), defaultPage)
	if page < 1 {
		page = 1
	}
	pageSize = utils.AtoiDefault(c.Query("page_size"), defaultPageSize)
	if pageSize < 1 {
		pageSize = 1
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	return
}

//
// Handlers
//

// GuestSession godoc
// @ID          guestSession
// @Summary     Resolve the guest identity
// @Description Returns the durable guest id, minting one (and setting the cookie) on first contact.
// @Tags        Guest
// @Produce     json
//
// @Success     200  {object}  handlers.GuestSessionResponse
// @Router      /guest/session [post]
func (h *Handlers) GuestSession(c *gin.Context) {
	id, persisted := guest.EnsureID(c)
	ok(c, http.StatusOK, GuestSessionResponse{GuestID: id, Persisted: persisted})
}

// SupportProvider godoc
// @ID          supportProvider
// @Summary     Resolved live-support strategy
// @Description Reports whether live conversations are handled by the built-in pipeline or an external product. Resolved once at startup.
// @Tags        Guest
// @Produce     json
//
// @Success     200  {object}  support.Provider
// @Router      /support/provider [get]
func (h *Handlers) SupportProvider(c *gin.Context) {
	ok(c, http.StatusOK, h.provider)
}

// CreateConversation godoc
// @ID          createConversation
// @Summary     Open a support conversation
// @Description Opens a conversation for the current guest. On store failure responds 503 with a degraded-mode payload offering retry, email, and menu recovery actions.
// @Tags        Conversations
// @Accept      json
// @Produce     json
//
// @Param       body  body  handlers.CreateConversationRequest  true  "Guest details"
//
// @Success     201  {object}  domain.Conversation
// @Failure     400  {object}  handlers.ErrorResponse   "Missing guest name"
// @Failure     503  {object}  handlers.DegradedResponse "Store unavailable; degraded mode"
// @Router      /conversations [post]
func (h *Handlers) CreateConversation(c *gin.Context) {
	guestID := guest.FromContext(c)

	var req CreateConversationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}

	var email *string
	if e := strings.TrimSpace(req.GuestEmail); e != "" {
		email = &e
	}

	conv, err := h.convSvc.Create(c.Request.Context(), guestID, req.GuestName, email)
	if err != nil {
		if errors.Is(err, services.ErrGuestNameRequired) {
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "guest name is required")
			return
		}
		// Degraded mode: the guest keeps working options instead of a wall.
		middleware.IncConversationStarted("degraded")
		middleware.LoggerFrom(c).Error().Err(err).Msg("conversation creation failed")
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, DegradedResponse{
			RequestID: c.Writer.Header().Get("X-Request-ID"),
			Code:      ErrCodeCreateFailed,
			Message:   "could not start a conversation",
			Fallback:  support.NewFallback(h.SupportEmail),
		})
		return
	}
	middleware.IncConversationStarted("created")

	// Record the originating help topic as a system line (best effort).
	if slug := strings.TrimSpace(req.TopicSlug); slug != "" && h.topics != nil {
		if opt, found := h.topics.Option(slug); found {
			_, _ = h.msgSvc.Send(c.Request.Context(), conv.ID,
				domain.SenderSystem, "system", "System",
				"Topic: "+opt.Meta().Title)
		}
	}

	ok(c, http.StatusCreated, conv)
}

// GetConversation godoc
// @ID          getConversation
// @Summary     Fetch own conversation
// @Description Returns a conversation the current guest owns. Foreign conversations look like 404.
// @Tags        Conversations
// @Produce     json
//
// @Param       id  path  string  true  "Conversation ID (UUID)"  format(uuid)
//
// @Success     200  {object}  domain.Conversation
// @Failure     404  {object}  handlers.ErrorResponse  "Not found"
// @Router      /conversations/{id} [get]
func (h *Handlers) GetConversation(c *gin.Context) {
	conv, err := h.convSvc.GetOwned(c.Request.Context(), c.Param("id"), guest.FromContext(c))
	if err != nil {
		fail(c, http.StatusNotFound, ErrCodeNotFound, "conversation not found")
		return
	}
	ok(c, http.StatusOK, conv)
}

// ListMyConversations godoc
// @ID          listMyConversations
// @Summary     List own conversations
// @Description Returns the guest's conversations, newest first, so the widget can resume a live one.
// @Tags        Conversations
// @Produce     json
//
// @Success     200  {array}   domain.Conversation
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /conversations [get]
func (h *Handlers) ListMyConversations(c *gin.Context) {
	items, err := h.convSvc.ListForGuest(c.Request.Context(), guest.FromContext(c))
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}
	ok(c, http.StatusOK, items)
}
