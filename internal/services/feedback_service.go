// Package services – FeedbackService
//
// This file implements the FeedbackService, which governs how guests rate a
// finished conversation (-1 or +1). It enforces business rules (conversation
// existence, guest ownership, closed-only restriction, uniqueness) and
// persists the rating atomically. Service-level errors (e.g.
// ErrInvalidRating, ErrConversationNotClosed, ErrForbiddenRating,
// ErrDuplicateRating) are returned for predictable cases so handlers can map
// them to HTTP results consistently.
package services

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/tutorlane/support-chat-backend/internal/domain"
	"github.com/tutorlane/support-chat-backend/internal/repo"
)

// FeedbackService implements the use-cases around conversation ratings.
// It validates the operation (ownership, status, uniqueness) and persists
// the rating using the provided GORM handle.
type FeedbackService struct {
	// DB is the database handle used for all rating operations.
	DB *gorm.DB
}

// Rate records a rating value for conversationID on behalf of guestID.
//
// Semantics and validation:
//   - value must be exactly -1 or 1; otherwise ErrInvalidRating.
//   - conversationID must exist; otherwise ErrConversationNotFound.
//   - The conversation must belong to guestID; otherwise ErrForbiddenRating.
//   - Ratings are allowed only on closed conversations; live conversations
//     are rejected with ErrConversationNotClosed.
//   - A guest may rate a conversation at most once; a second attempt yields
//     ErrDuplicateRating.
//
// The checks and the insert run in one transaction so a conversation cannot
// slip between statuses mid-validation.
func (s *FeedbackService) Rate(ctx context.Context, guestID, conversationID string, value int) error {
	if value != -1 && value != 1 {
		return ErrInvalidRating
	}

	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		conv, err := repo.GetConversation(ctx, tx, conversationID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrConversationNotFound
			}
			return err
		}

		if conv.GuestID != guestID {
			return ErrForbiddenRating
		}
		if conv.Status != domain.StatusClosed {
			return ErrConversationNotClosed
		}

		if _, err := repo.CreateFeedback(tx, conversationID, guestID, value); err != nil {
			if errors.Is(err, repo.ErrDuplicate) {
				return ErrDuplicateRating
			}
			return err
		}
		return nil
	})
}
