package services

import (
	"context"
	"errors"
	"fmt"
	"testing"

	sqlite "github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tutorlane/support-chat-backend/internal/domain"
	"github.com/tutorlane/support-chat-backend/internal/repo"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:supportsvc_%s?mode=memory&cache=shared", uuid.NewString())

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	db.Exec("PRAGMA foreign_keys=ON;")
	if err := db.AutoMigrate(
		&domain.Conversation{},
		&domain.Message{},
		&domain.ConversationFeedback{},
		&domain.Idempotency{},
	); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

// gormConversationRepo adapts the free repo functions to ConversationRepo.
type gormConversationRepo struct{}

func (gormConversationRepo) CreateConversation(ctx context.Context, db *gorm.DB, guestID, guestName string, guestEmail *string) (*domain.Conversation, error) {
	return repo.CreateConversation(ctx, db, guestID, guestName, guestEmail)
}
func (gormConversationRepo) GetConversation(ctx context.Context, db *gorm.DB, id string) (*domain.Conversation, error) {
	return repo.GetConversation(ctx, db, id)
}
func (gormConversationRepo) TransitionStatus(ctx context.Context, db *gorm.DB, id, to string) (int64, error) {
	return repo.TransitionStatus(ctx, db, id, to)
}
func (gormConversationRepo) CountConversations(ctx context.Context, db *gorm.DB, status string) (int64, error) {
	return repo.CountConversations(ctx, db, status)
}
func (gormConversationRepo) ListConversationsPage(ctx context.Context, db *gorm.DB, status string, offset, limit int) ([]domain.Conversation, error) {
	return repo.ListConversationsPage(ctx, db, status, offset, limit)
}
func (gormConversationRepo) ListConversationsByGuest(ctx context.Context, db *gorm.DB, guestID string) ([]domain.Conversation, error) {
	return repo.ListConversationsByGuest(ctx, db, guestID)
}

func newConvService(t *testing.T) (*ConversationService, *gorm.DB) {
	t.Helper()
	db := newTestDB(t)
	return NewConversationService(db, gormConversationRepo{}), db
}

func TestConversation_Create_RequiresName(t *testing.T) {
	svc, _ := newConvService(t)

	for _, name := range []string{"", "   ", "\t\n"} {
		if _, err := svc.Create(context.Background(), "g1", name, nil); !errors.Is(err, ErrGuestNameRequired) {
			t.Fatalf("name %q: err = %v; want ErrGuestNameRequired", name, err)
		}
	}
}

func TestConversation_Create_NormalizesNameAndEmail(t *testing.T) {
	svc, _ := newConvService(t)

	email := "  alice@example.com "
	conv, err := svc.Create(context.Background(), "g1", "  Alice   Smith ", &email)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if conv.GuestName != "Alice Smith" {
		t.Fatalf("name = %q; want %q", conv.GuestName, "Alice Smith")
	}
	if conv.GuestEmail == nil || *conv.GuestEmail != "alice@example.com" {
		t.Fatalf("email = %v", conv.GuestEmail)
	}
	if conv.Status != domain.StatusOpen {
		t.Fatalf("status = %q; want open", conv.Status)
	}
}

func TestConversation_Create_BlankEmailDropped(t *testing.T) {
	svc, _ := newConvService(t)

	blank := "   "
	conv, err := svc.Create(context.Background(), "g1", "Alice", &blank)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if conv.GuestEmail != nil {
		t.Fatalf("blank email stored: %v", *conv.GuestEmail)
	}
}

type failingConversationRepo struct{ gormConversationRepo }

func (failingConversationRepo) CreateConversation(context.Context, *gorm.DB, string, string, *string) (*domain.Conversation, error) {
	return nil, errors.New("disk full")
}

func TestConversation_Create_WrapsStoreFailure(t *testing.T) {
	db := newTestDB(t)
	svc := NewConversationService(db, failingConversationRepo{})

	_, err := svc.Create(context.Background(), "g1", "Alice", nil)
	if !errors.Is(err, ErrCreateConversation) {
		t.Fatalf("err = %v; want ErrCreateConversation", err)
	}
}

func TestConversation_GetOwned(t *testing.T) {
	svc, _ := newConvService(t)
	ctx := context.Background()
	conv, _ := svc.Create(ctx, "g1", "Alice", nil)

	if _, err := svc.GetOwned(ctx, conv.ID, "g1"); err != nil {
		t.Fatalf("owner lookup: %v", err)
	}
	if _, err := svc.GetOwned(ctx, conv.ID, "g2"); !errors.Is(err, ErrConversationNotFound) {
		t.Fatalf("foreign lookup err = %v; want ErrConversationNotFound", err)
	}
	if _, err := svc.GetOwned(ctx, "missing", "g1"); !errors.Is(err, ErrConversationNotFound) {
		t.Fatalf("missing lookup err = %v; want ErrConversationNotFound", err)
	}
}

func TestConversation_AdvanceToInProgress(t *testing.T) {
	svc, _ := newConvService(t)
	ctx := context.Background()
	conv, _ := svc.Create(ctx, "g1", "Alice", nil)

	if err := svc.AdvanceToInProgress(ctx, conv.ID); err != nil {
		t.Fatalf("advance: %v", err)
	}
	// Idempotent repeat.
	if err := svc.AdvanceToInProgress(ctx, conv.ID); err != nil {
		t.Fatalf("repeat advance: %v", err)
	}

	if err := svc.Close(ctx, conv.ID); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := svc.AdvanceToInProgress(ctx, conv.ID); !errors.Is(err, ErrConversationClosed) {
		t.Fatalf("advance closed err = %v; want ErrConversationClosed", err)
	}
	if err := svc.AdvanceToInProgress(ctx, "missing"); !errors.Is(err, ErrConversationNotFound) {
		t.Fatalf("advance missing err = %v; want ErrConversationNotFound", err)
	}
}

func TestConversation_Close(t *testing.T) {
	svc, _ := newConvService(t)
	ctx := context.Background()

	// open → closed shortcut
	conv, _ := svc.Create(ctx, "g1", "Alice", nil)
	if err := svc.Close(ctx, conv.ID); err != nil {
		t.Fatalf("close open: %v", err)
	}

	// Re-close signals the state already holds.
	if err := svc.Close(ctx, conv.ID); !errors.Is(err, ErrConversationClosed) {
		t.Fatalf("re-close err = %v; want ErrConversationClosed", err)
	}
	if err := svc.Close(ctx, "missing"); !errors.Is(err, ErrConversationNotFound) {
		t.Fatalf("close missing err = %v; want ErrConversationNotFound", err)
	}

	got, _ := svc.Get(ctx, conv.ID)
	if got.Status != domain.StatusClosed {
		t.Fatalf("status = %q; want closed", got.Status)
	}
}

func TestConversation_ListPage(t *testing.T) {
	svc, _ := newConvService(t)
	ctx := context.Background()

	a, _ := svc.Create(ctx, "g1", "Alice", nil)
	_, _ = svc.Create(ctx, "g2", "Bob", nil)
	_ = svc.Close(ctx, a.ID)

	items, total, err := svc.ListPage(ctx, domain.StatusOpen, 0, 0) // defaults kick in
	if err != nil {
		t.Fatalf("ListPage: %v", err)
	}
	if total != 1 || len(items) != 1 {
		t.Fatalf("open page: total=%d len=%d; want 1/1", total, len(items))
	}

	items, total, err = svc.ListPage(ctx, "", 1, 10)
	if err != nil || total != 2 || len(items) != 2 {
		t.Fatalf("all page: total=%d len=%d err=%v", total, len(items), err)
	}

	// Garbage filter matches nothing rather than erroring.
	items, total, err = svc.ListPage(ctx, "pending", 1, 10)
	if err != nil || total != 0 || len(items) != 0 {
		t.Fatalf("bad filter: total=%d len=%d err=%v", total, len(items), err)
	}
}

func TestConversation_ListForGuest(t *testing.T) {
	svc, _ := newConvService(t)
	ctx := context.Background()
	_, _ = svc.Create(ctx, "g1", "Alice", nil)
	_, _ = svc.Create(ctx, "g1", "Alice", nil)
	_, _ = svc.Create(ctx, "g2", "Bob", nil)

	mine, err := svc.ListForGuest(ctx, "g1")
	if err != nil || len(mine) != 2 {
		t.Fatalf("got %d err=%v; want 2", len(mine), err)
	}
}
