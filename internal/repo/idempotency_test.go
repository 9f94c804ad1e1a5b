package repo

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/tutorlane/support-chat-backend/internal/domain"
)

func TestIdempotency_CreateAndGet(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t, &domain.Idempotency{})

	rec, err := CreateIdempotency(ctx, db, "g1", "c1", "key-1", "m1", 201, time.Hour)
	if err != nil {
		t.Fatalf("CreateIdempotency: %v", err)
	}
	if rec.MessageID != "m1" || rec.Status != 201 {
		t.Fatalf("unexpected record: %+v", rec)
	}

	got, err := GetIdempotency(ctx, db, "g1", "c1", "key-1", time.Now().UTC())
	if err != nil || got.MessageID != "m1" {
		t.Fatalf("GetIdempotency: %+v err=%v", got, err)
	}
}

func TestIdempotency_MissScopes(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t, &domain.Idempotency{})
	now := time.Now().UTC()

	_, _ = CreateIdempotency(ctx, db, "g1", "c1", "key-1", "m1", 201, time.Hour)

	// Same key under a different sender or conversation is a miss.
	if _, err := GetIdempotency(ctx, db, "g2", "c1", "key-1", now); err != ErrNotFound {
		t.Fatalf("cross-sender err = %v; want ErrNotFound", err)
	}
	if _, err := GetIdempotency(ctx, db, "g1", "c2", "key-1", now); err != ErrNotFound {
		t.Fatalf("cross-conversation err = %v; want ErrNotFound", err)
	}
	if _, err := GetIdempotency(ctx, db, "g1", "", "key-1", now); err != ErrNotFound {
		t.Fatalf("blank conversation err = %v; want ErrNotFound", err)
	}
}

func TestIdempotency_ExpiredIsMiss(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t, &domain.Idempotency{})

	_, _ = CreateIdempotency(ctx, db, "g1", "c1", "key-1", "m1", 201, -time.Minute)
	if _, err := GetIdempotency(ctx, db, "g1", "c1", "key-1", time.Now().UTC()); err != ErrNotFound {
		t.Fatalf("expired err = %v; want ErrNotFound", err)
	}
}

func TestIdempotency_DuplicateKey(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t, &domain.Idempotency{})

	_, _ = CreateIdempotency(ctx, db, "g1", "c1", "key-1", "m1", 201, time.Hour)
	_, err := CreateIdempotency(ctx, db, "g1", "c1", "key-1", "m2", 201, time.Hour)
	if !errors.Is(err, ErrDuplicate) {
		t.Fatalf("err = %v; want ErrDuplicate", err)
	}
}
