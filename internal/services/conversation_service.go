// Package services – ConversationService
//
// This file implements ConversationService, which manages the lifecycle of
// support conversations. A conversation moves forward only: open →
// in_progress → closed, with open → closed as a legal shortcut. The service
// validates guest input, coordinates repository operations for creation,
// lookup, listing (with pagination), and status transitions, and translates
// zero-row transition updates back into precise service errors.
//
// Service-level errors (e.g., ErrConversationNotFound) are returned for
// predictable cases so handlers can map them to HTTP results consistently.
package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"gorm.io/gorm"

	"github.com/tutorlane/support-chat-backend/internal/domain"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// ConversationRepo defines the repository contract required by
// ConversationService. Implementations are responsible for persistence of
// conversation aggregates.
type ConversationRepo interface {
	// CreateConversation inserts a new open conversation for the guest.
	CreateConversation(ctx context.Context, db *gorm.DB, guestID, guestName string, guestEmail *string) (*domain.Conversation, error)

	// GetConversation fetches a conversation by ID.
	GetConversation(ctx context.Context, db *gorm.DB, id string) (*domain.Conversation, error)

	// TransitionStatus applies a guarded status change and reports rows hit.
	TransitionStatus(ctx context.Context, db *gorm.DB, id, to string) (int64, error)

	// CountConversations returns the total for pagination ("" = all statuses).
	CountConversations(ctx context.Context, db *gorm.DB, status string) (int64, error)

	// ListConversationsPage returns a page ordered by newest activity.
	ListConversationsPage(ctx context.Context, db *gorm.DB, status string, offset, limit int) ([]domain.Conversation, error)

	// ListConversationsByGuest returns every conversation a guest created.
	ListConversationsByGuest(ctx context.Context, db *gorm.DB, guestID string) ([]domain.Conversation, error)
}

// ConversationService provides conversation-level operations such as
// creating, listing, and closing conversations. It enforces guest-name rules
// and the monotonic status machine.
type ConversationService struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB
	// Repo is the conversation repository used by this service.
	Repo ConversationRepo

	// MaxNameRunes caps stored guest names by rune length.
	MaxNameRunes int
}

// NewConversationService constructs a ConversationService with sane defaults.
func NewConversationService(db *gorm.DB, r ConversationRepo) *ConversationService {
	return &ConversationService{
		DB:           db,
		Repo:         r,
		MaxNameRunes: 80,
	}
}

// Create opens a new conversation for the guest. The name is required and
// normalized; the optional email is stored as supplied. Store failures are
// wrapped in ErrCreateConversation so the transport layer can switch the
// widget into its degraded mode.
func (s *ConversationService) Create(ctx context.Context, guestID, guestName string, guestEmail *string) (*domain.Conversation, error) {
	tr := otel.Tracer("services/ConversationService")
	ctx, span := tr.Start(ctx, "Create",
		trace.WithAttributes(attribute.String("guest.id", guestID)),
	)
	defer span.End()

	guestName = normalizeName(guestName)
	if guestName == "" {
		return nil, ErrGuestNameRequired
	}
	if s.MaxNameRunes > 0 && utf8.RuneCountInString(guestName) > s.MaxNameRunes {
		guestName = string([]rune(guestName)[:s.MaxNameRunes])
	}
	if guestEmail != nil {
		if e := strings.TrimSpace(*guestEmail); e == "" {
			guestEmail = nil
		} else {
			guestEmail = &e
		}
	}

	conv, err := s.Repo.CreateConversation(ctx, s.DB, guestID, guestName, guestEmail)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCreateConversation, err)
	}
	return conv, nil
}

// Get fetches a conversation by ID.
func (s *ConversationService) Get(ctx context.Context, id string) (*domain.Conversation, error) {
	conv, err := s.Repo.GetConversation(ctx, s.DB, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrConversationNotFound
		}
		return nil, err
	}
	return conv, nil
}

// GetOwned fetches a conversation and verifies it belongs to the guest.
// Foreign conversations are indistinguishable from missing ones.
func (s *ConversationService) GetOwned(ctx context.Context, id, guestID string) (*domain.Conversation, error) {
	conv, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if conv.GuestID != guestID {
		return nil, ErrConversationNotFound
	}
	return conv, nil
}

// AdvanceToInProgress moves an open conversation to in_progress. Calling it
// on a conversation already in progress is a no-op; calling it on a closed
// conversation returns ErrConversationClosed.
func (s *ConversationService) AdvanceToInProgress(ctx context.Context, id string) error {
	tr := otel.Tracer("services/ConversationService")
	ctx, span := tr.Start(ctx, "AdvanceToInProgress",
		trace.WithAttributes(attribute.String("conversation.id", id)),
	)
	defer span.End()

	n, err := s.Repo.TransitionStatus(ctx, s.DB, id, domain.StatusInProgress)
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	return s.explainNoop(ctx, id, domain.StatusInProgress)
}

// Close moves a conversation to closed from either live status. Closing an
// already-closed conversation returns ErrConversationClosed; the handler
// treats that as success since the desired end state already holds.
func (s *ConversationService) Close(ctx context.Context, id string) error {
	tr := otel.Tracer("services/ConversationService")
	ctx, span := tr.Start(ctx, "Close",
		trace.WithAttributes(attribute.String("conversation.id", id)),
	)
	defer span.End()

	n, err := s.Repo.TransitionStatus(ctx, s.DB, id, domain.StatusClosed)
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	return s.explainNoop(ctx, id, domain.StatusClosed)
}

// explainNoop turns a zero-row transition into the precise reason: the row
// is missing, already at/past the target, or closed.
func (s *ConversationService) explainNoop(ctx context.Context, id, target string) error {
	conv, err := s.Repo.GetConversation(ctx, s.DB, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrConversationNotFound
		}
		return err
	}
	if conv.Status == domain.StatusClosed {
		return ErrConversationClosed
	}
	if conv.Status == target {
		return nil // already there; idempotent
	}
	return ErrConversationNotFound
}

// ListPage returns a page of conversations for the admin inbox, optionally
// filtered by status, newest activity first. It applies defaults for invalid
// page/pageSize and returns the total count.
func (s *ConversationService) ListPage(ctx context.Context, status string, page, pageSize int) ([]domain.Conversation, int64, error) {
	tr := otel.Tracer("services/ConversationService")
	ctx, span := tr.Start(ctx, "ListPage",
		trace.WithAttributes(
			attribute.String("filter.status", status),
			attribute.Int("page", page),
			attribute.Int("page_size", pageSize),
		),
	)
	defer span.End()

	if status != "" && !domain.ValidStatus(status) {
		return []domain.Conversation{}, 0, nil
	}
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	offset := (page - 1) * pageSize

	total, err := s.Repo.CountConversations(ctx, s.DB, status)
	if err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []domain.Conversation{}, 0, nil
	}

	items, err := s.Repo.ListConversationsPage(ctx, s.DB, status, offset, pageSize)
	return items, total, err
}

// ListForGuest returns all conversations created under the guest's identity,
// newest first. The widget uses it to resume a still-open exchange.
func (s *ConversationService) ListForGuest(ctx context.Context, guestID string) ([]domain.Conversation, error) {
	return s.Repo.ListConversationsByGuest(ctx, s.DB, guestID)
}

// normalizeName trims whitespace and collapses internal runs to one space.
func normalizeName(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
