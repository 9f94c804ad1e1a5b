package repo

import (
	"context"
	"testing"
	"time"

	"github.com/tutorlane/support-chat-backend/internal/domain"
)

func TestConversationsStats(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t, &domain.Conversation{})

	count, maxAt, err := ConversationsStats(ctx, db, "")
	if err != nil || count != 0 || maxAt != nil {
		t.Fatalf("empty stats: count=%d maxAt=%v err=%v", count, maxAt, err)
	}

	a, _ := CreateConversation(ctx, db, "g1", "Alice", nil)
	_, _ = CreateConversation(ctx, db, "g2", "Bob", nil)
	_, _ = TransitionStatus(ctx, db, a.ID, domain.StatusClosed)

	count, maxAt, err = ConversationsStats(ctx, db, domain.StatusOpen)
	if err != nil || count != 1 || maxAt == nil {
		t.Fatalf("open stats: count=%d maxAt=%v err=%v", count, maxAt, err)
	}

	count, _, _ = ConversationsStats(ctx, db, "")
	if count != 2 {
		t.Fatalf("all stats count = %d; want 2", count)
	}
}

func TestMessagesStats_ReadFlipBumpsMax(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t, &domain.Conversation{}, &domain.Message{})
	conv := seedConversation(t, db)

	count, maxAt, err := MessagesStats(ctx, db, conv.ID)
	if err != nil || count != 0 || maxAt != nil {
		t.Fatalf("empty stats: count=%d maxAt=%v err=%v", count, maxAt, err)
	}

	m, _ := CreateMessage(db, conv.ID, domain.SenderGuest, "g1", "Alice", "hi")
	count, before, err := MessagesStats(ctx, db, conv.ID)
	if err != nil || count != 1 || before == nil {
		t.Fatalf("stats: count=%d maxAt=%v err=%v", count, before, err)
	}

	time.Sleep(5 * time.Millisecond)
	if _, err := MarkReadUpTo(db, conv.ID, m.CreatedAt, m.ID); err != nil {
		t.Fatalf("MarkReadUpTo: %v", err)
	}

	_, after, _ := MessagesStats(ctx, db, conv.ID)
	if after == nil || !after.After(*before) {
		t.Fatalf("updated_at did not advance after read flip: before=%v after=%v", before, after)
	}
}
