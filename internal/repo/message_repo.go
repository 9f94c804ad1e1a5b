// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the Message
// model, including the read-watermark updates used by the admin console.
package repo

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tutorlane/support-chat-backend/internal/domain"
)

// CreateMessage inserts a new message row. Content immutability is a schema
// contract: nothing in this package ever updates content, sender fields or
// the owning conversation after insert; only is_read may change.
func CreateMessage(db *gorm.DB, conversationID, senderType, senderID, senderName, content string) (*domain.Message, error) {
	m := &domain.Message{
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		SenderType:     senderType,
		SenderID:       senderID,
		SenderName:     senderName,
		Content:        content,
		CreatedAt:      time.Now().UTC(),
	}
	return m, db.Create(m).Error
}

// ListMessages returns messages ordered deterministically (CreatedAt ASC, ID ASC).
func ListMessages(db *gorm.DB, conversationID string, limit int) ([]domain.Message, error) {
	var out []domain.Message
	q := db.Where("conversation_id = ?", conversationID).Order("created_at ASC, id ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&out).Error
	return out, err
}

// CountMessages uses a raw COUNT so a missing table surfaces as an error (as tests expect).
func CountMessages(db *gorm.DB, conversationID string) (int64, error) {
	var total int64
	err := db.Raw("SELECT COUNT(*) FROM messages WHERE conversation_id = ?", conversationID).Scan(&total).Error
	return total, err
}

// ListMessagesPage returns a paginated slice ordered (CreatedAt ASC, ID ASC).
func ListMessagesPage(db *gorm.DB, conversationID string, offset, limit int) ([]domain.Message, error) {
	var out []domain.Message
	err := db.
		Where("conversation_id = ?", conversationID).
		Order("created_at ASC, id ASC").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}

// GetMessage fetches a message by ID.
func GetMessage(db *gorm.DB, id string) (*domain.Message, error) {
	var m domain.Message
	if err := db.Where("id = ?", id).First(&m).Error; err != nil {
		return nil, err
	}
	return &m, nil
}

// CountUnread returns the number of unread guest-authored messages in a
// conversation. Admin- and system-authored messages are never unread.
func CountUnread(db *gorm.DB, conversationID string) (int64, error) {
	var total int64
	err := db.Model(&domain.Message{}).
		Where("conversation_id = ? AND sender_type = ? AND is_read = ?",
			conversationID, domain.SenderGuest, false).
		Count(&total).Error
	return total, err
}

// MarkReadUpTo flips is_read for every unread guest-authored message at or
// before the watermark position (watermarkAt, watermarkID). Already-read and
// non-guest messages are untouched, so re-running with the same watermark
// affects zero rows. Returns the number of rows changed.
func MarkReadUpTo(db *gorm.DB, conversationID string, watermarkAt time.Time, watermarkID string) (int64, error) {
	res := db.Model(&domain.Message{}).
		Where("conversation_id = ? AND sender_type = ? AND is_read = ?",
			conversationID, domain.SenderGuest, false).
		Where("created_at < ? OR (created_at = ? AND id <= ?)",
			watermarkAt, watermarkAt, watermarkID).
		Update("is_read", true)
	return res.RowsAffected, res.Error
}
