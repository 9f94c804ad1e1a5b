package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tutorlane/support-chat-backend/internal/catalog"
	"github.com/tutorlane/support-chat-backend/internal/domain"
	"github.com/tutorlane/support-chat-backend/internal/guest"
	"github.com/tutorlane/support-chat-backend/internal/http/middleware"
	"github.com/tutorlane/support-chat-backend/internal/services"
	"github.com/tutorlane/support-chat-backend/internal/support"
)

const testGuestID = "g-1717248000000-3af2b19c44aa"

//
// Service fakes. Behavior is injected per test through function fields; a nil
// field means "not expected to be called" and returns a zero-ish default.
//

type fakeConvSvc struct {
	createFn       func(ctx context.Context, guestID, guestName string, guestEmail *string) (*domain.Conversation, error)
	getFn          func(ctx context.Context, id string) (*domain.Conversation, error)
	getOwnedFn     func(ctx context.Context, id, guestID string) (*domain.Conversation, error)
	closeFn        func(ctx context.Context, id string) error
	listPageFn     func(ctx context.Context, status string, page, pageSize int) ([]domain.Conversation, int64, error)
	listForGuestFn func(ctx context.Context, guestID string) ([]domain.Conversation, error)
}

func (f *fakeConvSvc) Create(ctx context.Context, guestID, guestName string, guestEmail *string) (*domain.Conversation, error) {
	if f.createFn != nil {
		return f.createFn(ctx, guestID, guestName, guestEmail)
	}
	return &domain.Conversation{ID: "c-1", GuestID: guestID, GuestName: guestName, Status: domain.StatusOpen}, nil
}

func (f *fakeConvSvc) Get(ctx context.Context, id string) (*domain.Conversation, error) {
	if f.getFn != nil {
		return f.getFn(ctx, id)
	}
	return &domain.Conversation{ID: id, GuestID: testGuestID, GuestName: "Alice", Status: domain.StatusOpen}, nil
}

func (f *fakeConvSvc) GetOwned(ctx context.Context, id, guestID string) (*domain.Conversation, error) {
	if f.getOwnedFn != nil {
		return f.getOwnedFn(ctx, id, guestID)
	}
	return &domain.Conversation{ID: id, GuestID: guestID, GuestName: "Alice", Status: domain.StatusOpen}, nil
}

func (f *fakeConvSvc) Close(ctx context.Context, id string) error {
	if f.closeFn != nil {
		return f.closeFn(ctx, id)
	}
	return nil
}

func (f *fakeConvSvc) ListPage(ctx context.Context, status string, page, pageSize int) ([]domain.Conversation, int64, error) {
	if f.listPageFn != nil {
		return f.listPageFn(ctx, status, page, pageSize)
	}
	return nil, 0, nil
}

func (f *fakeConvSvc) ListForGuest(ctx context.Context, guestID string) ([]domain.Conversation, error) {
	if f.listForGuestFn != nil {
		return f.listForGuestFn(ctx, guestID)
	}
	return nil, nil
}

type fakeMsgSvc struct {
	sendFn      func(ctx context.Context, conversationID, senderType, senderID, senderName, content string) (*domain.Message, error)
	sendIdemFn  func(ctx context.Context, conversationID, senderType, senderID, senderName, content, key string, ttl time.Duration) (*domain.Message, bool, error)
	listFn      func(ctx context.Context, conversationID string) ([]domain.Message, error)
	listPageFn  func(ctx context.Context, conversationID string, page, pageSize int) ([]domain.Message, int64, error)
	subscribeFn func(ctx context.Context, conversationID string) (*services.Subscription, error)
	markReadFn  func(ctx context.Context, conversationID, watermarkMessageID string) (int64, error)
	unreadFn    func(ctx context.Context, conversationID string) (int64, error)
}

func (f *fakeMsgSvc) Send(ctx context.Context, conversationID, senderType, senderID, senderName, content string) (*domain.Message, error) {
	if f.sendFn != nil {
		return f.sendFn(ctx, conversationID, senderType, senderID, senderName, content)
	}
	return &domain.Message{ID: "m-1", ConversationID: conversationID, SenderType: senderType, SenderID: senderID, SenderName: senderName, Content: content}, nil
}

func (f *fakeMsgSvc) SendIdempotent(ctx context.Context, conversationID, senderType, senderID, senderName, content, key string, ttl time.Duration) (*domain.Message, bool, error) {
	if f.sendIdemFn != nil {
		return f.sendIdemFn(ctx, conversationID, senderType, senderID, senderName, content, key, ttl)
	}
	m, err := f.Send(ctx, conversationID, senderType, senderID, senderName, content)
	return m, false, err
}

func (f *fakeMsgSvc) List(ctx context.Context, conversationID string) ([]domain.Message, error) {
	if f.listFn != nil {
		return f.listFn(ctx, conversationID)
	}
	return nil, nil
}

func (f *fakeMsgSvc) ListPage(ctx context.Context, conversationID string, page, pageSize int) ([]domain.Message, int64, error) {
	if f.listPageFn != nil {
		return f.listPageFn(ctx, conversationID, page, pageSize)
	}
	return nil, 0, nil
}

func (f *fakeMsgSvc) Subscribe(ctx context.Context, conversationID string) (*services.Subscription, error) {
	if f.subscribeFn != nil {
		return f.subscribeFn(ctx, conversationID)
	}
	ch := make(chan domain.Message)
	close(ch)
	return &services.Subscription{C: ch, Cancel: func() {}}, nil
}

func (f *fakeMsgSvc) MarkRead(ctx context.Context, conversationID, watermarkMessageID string) (int64, error) {
	if f.markReadFn != nil {
		return f.markReadFn(ctx, conversationID, watermarkMessageID)
	}
	return 0, nil
}

func (f *fakeMsgSvc) UnreadCount(ctx context.Context, conversationID string) (int64, error) {
	if f.unreadFn != nil {
		return f.unreadFn(ctx, conversationID)
	}
	return 0, nil
}

type fakeFbSvc struct {
	rateFn func(ctx context.Context, guestID, conversationID string, value int) error
}

func (f *fakeFbSvc) Rate(ctx context.Context, guestID, conversationID string, value int) error {
	if f.rateFn != nil {
		return f.rateFn(ctx, guestID, conversationID, value)
	}
	return nil
}

//
// Test wiring
//

const testTopicsYAML = `
categories:
  - name: lessons
    options:
      - slug: book-lesson
        title: Booking a lesson
        emoji: "📅"
        description: How scheduling works
        order_index: 1
        content:
          title: Booking a lesson
          body: Pick a time on the tutor profile and confirm.
          bullet_points:
            - Times show in your local timezone
      - slug: live-support
        title: Chat with support
        order_index: 2
        admin_chat: true
  - name: payments
    options:
      - slug: refund-policy
        title: Refund policy
        order_index: 1
        content:
          title: Refund policy
          body: Unattended lessons are refunded in full within 14 days.
`

func testCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	cat, err := catalog.Parse([]byte(testTopicsYAML))
	if err != nil {
		t.Fatalf("parse test catalog: %v", err)
	}
	return cat
}

func newHandlers(conv *fakeConvSvc, msg *fakeMsgSvc, fb *fakeFbSvc, cat *catalog.Catalog) *Handlers {
	h := New(conv, msg, fb, cat, support.Provider{Mode: support.ModePipeline})
	h.SupportEmail = "support@tutorlane.example"
	return h
}

// newStatsDB builds an in-memory store for endpoints whose ETag pre-checks
// read aggregate stats directly through Handlers.DB.
func newStatsDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:supporthdl_%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&domain.Conversation{}, &domain.Message{}); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

// testRouter mounts every handler under the paths the real router uses, with
// the guest identity preset so ownership checks resolve.
func testRouter(h *Handlers) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set(guest.ContextKey, testGuestID)
		c.Next()
	})
	r.Use(middleware.IdempotencyValidator(middleware.IdempotencyOptions{}, nil, nil))

	r.POST("/guest/session", h.GuestSession)
	r.GET("/support/provider", h.SupportProvider)

	r.GET("/topics", h.ListTopics)
	r.GET("/topics/search", h.SearchTopics)
	r.GET("/topics/:slug", h.GetTopic)

	r.POST("/conversations", h.CreateConversation)
	r.GET("/conversations", h.ListMyConversations)
	r.GET("/conversations/:id", h.GetConversation)
	r.POST("/conversations/:id/messages", h.SendMessage)
	r.GET("/conversations/:id/messages", h.ListConversationMessages)
	r.GET("/conversations/:id/stream", h.StreamMessages)
	r.POST("/conversations/:id/feedback", h.LeaveFeedback)

	admin := r.Group("/admin", RequireAdmin())
	admin.GET("/conversations", h.AdminInbox)
	admin.GET("/conversations/:id", h.AdminGetConversation)
	admin.GET("/conversations/:id/messages", h.AdminListMessages)
	admin.GET("/conversations/:id/stream", h.AdminStreamMessages)
	admin.POST("/conversations/:id/messages", h.AdminReply)
	admin.POST("/conversations/:id/read", h.AdminMarkRead)
	admin.GET("/conversations/:id/unread", h.AdminUnread)
	admin.POST("/conversations/:id/close", h.AdminClose)

	return r
}

func doJSON(t *testing.T, r http.Handler, method, path string, body any, hdr map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var rd *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		rd = bytes.NewReader(raw)
	} else {
		rd = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, rd)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(&closeNotifyRecorder{w}, req)
	return w
}

// closeNotifyRecorder adds the http.CloseNotifier method gin's c.Stream
// requires, which httptest.ResponseRecorder does not implement.
type closeNotifyRecorder struct {
	*httptest.ResponseRecorder
}

func (c *closeNotifyRecorder) CloseNotify() <-chan bool { return make(chan bool) }

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response %q: %v", w.Body.String(), err)
	}
	return out
}
