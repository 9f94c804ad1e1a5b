// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for conversation
// ratings.
package repo

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tutorlane/support-chat-backend/internal/domain"
)

// ErrDuplicate indicates a unique-constraint violation, e.g. a guest rating
// the same conversation twice.
var ErrDuplicate = errors.New("duplicate")

// CreateFeedback inserts a conversation rating. A second rating by the same
// guest on the same conversation violates the unique index and is mapped to
// ErrDuplicate.
func CreateFeedback(db *gorm.DB, conversationID, guestID string, value int) (*domain.ConversationFeedback, error) {
	fb := &domain.ConversationFeedback{
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		GuestID:        guestID,
		Value:          value,
		CreatedAt:      time.Now().UTC(),
	}
	if err := db.Create(fb).Error; err != nil {
		// glebarez/sqlite often returns plain-text errors for UNIQUE violations.
		low := strings.ToLower(err.Error())
		if errors.Is(err, gorm.ErrDuplicatedKey) ||
			strings.Contains(low, "unique constraint failed") ||
			strings.Contains(low, "constraint failed: unique") {
			return nil, ErrDuplicate
		}
		return nil, err
	}
	return fb, nil
}
