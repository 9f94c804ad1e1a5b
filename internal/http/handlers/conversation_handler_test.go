package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"

	"github.com/tutorlane/support-chat-backend/internal/domain"
	"github.com/tutorlane/support-chat-backend/internal/services"
	"github.com/tutorlane/support-chat-backend/internal/support"
)

func TestGuestSession_MintsAndReportsIdentity(t *testing.T) {
	h := newHandlers(&fakeConvSvc{}, &fakeMsgSvc{}, &fakeFbSvc{}, testCatalog(t))
	r := testRouter(h)

	w := doJSON(t, r, http.MethodPost, "/guest/session", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	resp := decode[GuestSessionResponse](t, w)
	if resp.GuestID == "" {
		t.Fatal("expected a guest id")
	}
	if !resp.Persisted {
		t.Error("fresh identity should be reported persisted (cookie written)")
	}
	if !strings.Contains(w.Header().Get("Set-Cookie"), "sc_guest_id=") {
		t.Errorf("expected guest cookie, got %q", w.Header().Get("Set-Cookie"))
	}
}

func TestGuestSession_ReusesCookie(t *testing.T) {
	h := newHandlers(&fakeConvSvc{}, &fakeMsgSvc{}, &fakeFbSvc{}, testCatalog(t))
	r := testRouter(h)

	w := doJSON(t, r, http.MethodPost, "/guest/session", nil, map[string]string{
		"Cookie": "sc_guest_id=" + testGuestID,
	})
	resp := decode[GuestSessionResponse](t, w)
	if resp.GuestID != testGuestID {
		t.Errorf("guest id = %q, want cookie value %q", resp.GuestID, testGuestID)
	}
	if !resp.Persisted {
		t.Error("cookie-backed identity should report persisted")
	}
}

func TestSupportProvider_ReportsResolvedStrategy(t *testing.T) {
	h := newHandlers(&fakeConvSvc{}, &fakeMsgSvc{}, &fakeFbSvc{}, testCatalog(t))
	h.provider = support.Provider{Mode: support.ModeExternal, ExternalURL: "https://chat.example.com/widget"}
	r := testRouter(h)

	w := doJSON(t, r, http.MethodGet, "/support/provider", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	resp := decode[support.Provider](t, w)
	if resp.Mode != support.ModeExternal || resp.ExternalURL != "https://chat.example.com/widget" {
		t.Errorf("unexpected provider payload: %+v", resp)
	}
}

func TestCreateConversation_Succeeds(t *testing.T) {
	var gotGuestID, gotName string
	conv := &fakeConvSvc{
		createFn: func(_ context.Context, guestID, guestName string, _ *string) (*domain.Conversation, error) {
			gotGuestID, gotName = guestID, guestName
			return &domain.Conversation{ID: "c-new", GuestID: guestID, GuestName: guestName, Status: domain.StatusOpen}, nil
		},
	}
	h := newHandlers(conv, &fakeMsgSvc{}, &fakeFbSvc{}, testCatalog(t))
	r := testRouter(h)

	w := doJSON(t, r, http.MethodPost, "/conversations",
		CreateConversationRequest{GuestName: "Alice", GuestEmail: "alice@example.com"}, nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201 (body %s)", w.Code, w.Body.String())
	}
	if gotGuestID != testGuestID || gotName != "Alice" {
		t.Errorf("service called with (%q, %q)", gotGuestID, gotName)
	}
	resp := decode[domain.Conversation](t, w)
	if resp.ID != "c-new" || resp.Status != domain.StatusOpen {
		t.Errorf("unexpected conversation: %+v", resp)
	}
}

func TestCreateConversation_RecordsTopicSystemLine(t *testing.T) {
	var sysContent, sysSender string
	msg := &fakeMsgSvc{
		sendFn: func(_ context.Context, _, senderType, _, _, content string) (*domain.Message, error) {
			sysSender, sysContent = senderType, content
			return &domain.Message{ID: "m-sys"}, nil
		},
	}
	h := newHandlers(&fakeConvSvc{}, msg, &fakeFbSvc{}, testCatalog(t))
	r := testRouter(h)

	w := doJSON(t, r, http.MethodPost, "/conversations",
		CreateConversationRequest{GuestName: "Alice", TopicSlug: "live-support"}, nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201", w.Code)
	}
	if sysSender != domain.SenderSystem {
		t.Errorf("system line sender = %q, want system", sysSender)
	}
	if sysContent != "Topic: Chat with support" {
		t.Errorf("system line content = %q", sysContent)
	}
}

func TestCreateConversation_MissingNameRejected(t *testing.T) {
	h := newHandlers(&fakeConvSvc{}, &fakeMsgSvc{}, &fakeFbSvc{}, testCatalog(t))
	r := testRouter(h)

	for _, body := range []any{
		map[string]string{},
		CreateConversationRequest{GuestName: ""},
	} {
		w := doJSON(t, r, http.MethodPost, "/conversations", body, nil)
		if w.Code != http.StatusBadRequest {
			t.Errorf("body %+v: status = %d, want 400", body, w.Code)
		}
	}
}

func TestCreateConversation_BlankNameRejectedByService(t *testing.T) {
	conv := &fakeConvSvc{
		createFn: func(context.Context, string, string, *string) (*domain.Conversation, error) {
			return nil, services.ErrGuestNameRequired
		},
	}
	h := newHandlers(conv, &fakeMsgSvc{}, &fakeFbSvc{}, testCatalog(t))
	r := testRouter(h)

	w := doJSON(t, r, http.MethodPost, "/conversations",
		CreateConversationRequest{GuestName: "   "}, nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
	resp := decode[ErrorResponse](t, w)
	if resp.Code != ErrCodeBadRequest {
		t.Errorf("error code = %q", resp.Code)
	}
}

func TestCreateConversation_DegradedModeOffersThreeActions(t *testing.T) {
	conv := &fakeConvSvc{
		createFn: func(context.Context, string, string, *string) (*domain.Conversation, error) {
			return nil, errors.New("disk full")
		},
	}
	h := newHandlers(conv, &fakeMsgSvc{}, &fakeFbSvc{}, testCatalog(t))
	r := testRouter(h)

	w := doJSON(t, r, http.MethodPost, "/conversations",
		CreateConversationRequest{GuestName: "Alice"}, nil)
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", w.Code)
	}
	resp := decode[DegradedResponse](t, w)
	if resp.Code != ErrCodeCreateFailed {
		t.Errorf("code = %q, want %q", resp.Code, ErrCodeCreateFailed)
	}
	if resp.Fallback.Message == "" {
		t.Error("degraded payload should carry a guest-facing message")
	}
	actions := resp.Fallback.Actions
	if len(actions) != 3 {
		t.Fatalf("got %d recovery actions, want exactly 3", len(actions))
	}
	wantOrder := []string{support.ActionRetry, support.ActionEmail, support.ActionMenu}
	for i, want := range wantOrder {
		if actions[i].ID != want {
			t.Errorf("action[%d] = %q, want %q", i, actions[i].ID, want)
		}
	}
	if actions[1].Target != "mailto:support@tutorlane.example" {
		t.Errorf("email action target = %q", actions[1].Target)
	}
}

func TestGetConversation_OwnershipHidesForeign(t *testing.T) {
	conv := &fakeConvSvc{
		getOwnedFn: func(_ context.Context, id, guestID string) (*domain.Conversation, error) {
			if guestID != testGuestID {
				t.Fatalf("guest id = %q", guestID)
			}
			return nil, services.ErrConversationNotFound
		},
	}
	h := newHandlers(conv, &fakeMsgSvc{}, &fakeFbSvc{}, testCatalog(t))
	r := testRouter(h)

	w := doJSON(t, r, http.MethodGet, "/conversations/c-foreign", nil, nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", w.Code)
	}
}

func TestListMyConversations(t *testing.T) {
	conv := &fakeConvSvc{
		listForGuestFn: func(_ context.Context, guestID string) ([]domain.Conversation, error) {
			return []domain.Conversation{
				{ID: "c-2", GuestID: guestID},
				{ID: "c-1", GuestID: guestID},
			}, nil
		},
	}
	h := newHandlers(conv, &fakeMsgSvc{}, &fakeFbSvc{}, testCatalog(t))
	r := testRouter(h)

	w := doJSON(t, r, http.MethodGet, "/conversations", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	resp := decode[[]domain.Conversation](t, w)
	if len(resp) != 2 || resp[0].ID != "c-2" {
		t.Errorf("unexpected list: %+v", resp)
	}
}
