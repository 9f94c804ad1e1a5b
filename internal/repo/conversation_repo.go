// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the
// Conversation model.
//
// All functions are context-aware and accept a *gorm.DB handle, making them
// safe for use within transactions or connection-scoped operations. They
// follow the "thin repository" approach: no business logic, only CRUD
// persistence and query composition.
//
// Error semantics:
//   - When a conversation is not found, functions return
//     gorm.ErrRecordNotFound (also exported here as ErrNotFound).
//   - Status changes are guarded at the SQL level: a transition UPDATE only
//     matches rows whose current status permits the move, so a lost race
//     simply affects zero rows and the caller re-reads to find out why.
//   - On DB errors (constraint violations, connectivity issues, etc.),
//     the raw gorm error is propagated.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tutorlane/support-chat-backend/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
// It aliases gorm.ErrRecordNotFound for convenience and consistency
// across the service layer and handlers.
var ErrNotFound = gorm.ErrRecordNotFound

// CreateConversation inserts a new open conversation for the given guest.
// The id is a randomly generated UUID (string) and CreatedAt is set to UTC.
// No per-guest deduplication happens here: every call creates a new row.
func CreateConversation(ctx context.Context, db *gorm.DB, guestID, guestName string, guestEmail *string) (*domain.Conversation, error) {
	c := &domain.Conversation{
		ID:         uuid.NewString(),
		GuestID:    guestID,
		GuestName:  guestName,
		GuestEmail: guestEmail,
		Status:     domain.StatusOpen,
		CreatedAt:  time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Create(c).Error; err != nil {
		return nil, err
	}
	return c, nil
}

// GetConversation fetches a single conversation by id, or ErrNotFound.
func GetConversation(ctx context.Context, db *gorm.DB, id string) (*domain.Conversation, error) {
	var c domain.Conversation
	if err := db.WithContext(ctx).Where("id = ?", id).First(&c).Error; err != nil {
		return nil, err
	}
	return &c, nil
}

// TransitionStatus moves a conversation to the target status, but only when
// its current status permits that move (open→in_progress, open→closed,
// in_progress→closed). It returns the number of rows changed: 0 means the
// conversation either does not exist or is not in a status that allows the
// transition; the caller distinguishes the two by re-reading the row.
func TransitionStatus(ctx context.Context, db *gorm.DB, id, to string) (int64, error) {
	var froms []string
	switch to {
	case domain.StatusInProgress:
		froms = []string{domain.StatusOpen}
	case domain.StatusClosed:
		froms = []string{domain.StatusOpen, domain.StatusInProgress}
	default:
		return 0, gorm.ErrInvalidData
	}
	res := db.WithContext(ctx).
		Model(&domain.Conversation{}).
		Where("id = ? AND status IN ?", id, froms).
		Update("status", to)
	return res.RowsAffected, res.Error
}

// TouchLastMessage records the timestamp of the newest message.
func TouchLastMessage(ctx context.Context, db *gorm.DB, id string, at time.Time) error {
	return db.WithContext(ctx).
		Model(&domain.Conversation{}).
		Where("id = ?", id).
		Update("last_message_at", at).Error
}

// CountConversations returns the total number of conversations, optionally
// filtered by status ("" counts all).
func CountConversations(ctx context.Context, db *gorm.DB, status string) (int64, error) {
	q := db.WithContext(ctx).Model(&domain.Conversation{})
	if status != "" {
		q = q.Where("status = ?", status)
	}
	var total int64
	err := q.Count(&total).Error
	return total, err
}

// ListConversationsPage returns a page of conversations for the admin inbox,
// optionally filtered by status, newest activity first (conversations that
// never received a message sort by creation time).
//
// The caller is responsible for computing offset and limit (e.g., (page-1)*pageSize).
func ListConversationsPage(ctx context.Context, db *gorm.DB, status string, offset, limit int) ([]domain.Conversation, error) {
	q := db.WithContext(ctx).Model(&domain.Conversation{})
	if status != "" {
		q = q.Where("status = ?", status)
	}
	var out []domain.Conversation
	err := q.
		Order("COALESCE(last_message_at, created_at) DESC, id DESC").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}

// ListConversationsByGuest returns all conversations created under a guest
// id, newest first. Used by the widget to resume a still-open exchange.
func ListConversationsByGuest(ctx context.Context, db *gorm.DB, guestID string) ([]domain.Conversation, error) {
	var out []domain.Conversation
	err := db.WithContext(ctx).
		Where("guest_id = ?", guestID).
		Order("created_at DESC").
		Find(&out).Error
	return out, err
}
