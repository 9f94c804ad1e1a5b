// Package domain defines the persistence models for support conversations,
// messages, and conversation ratings. These types are mapped with GORM and
// form the core data layer of the guest-support application.
package domain

import (
	"time"
)

// Conversation statuses. The lifecycle is monotonic: an open conversation may
// advance to in_progress (first admin reply) or jump straight to closed; a
// closed conversation is terminal and is never reopened; continued contact
// creates a new conversation.
const (
	StatusOpen       = "open"
	StatusInProgress = "in_progress"
	StatusClosed     = "closed"
)

// Message sender types. System messages are service-authored notices and are
// never counted as unread.
const (
	SenderGuest  = "guest"
	SenderAdmin  = "admin"
	SenderSystem = "system"
)

// CanTransition reports whether a conversation status change is allowed by
// the public API. Valid moves are open→in_progress, open→closed and
// in_progress→closed. Everything else, including any transition out of
// closed and all reverse moves, is rejected.
func CanTransition(from, to string) bool {
	switch from {
	case StatusOpen:
		return to == StatusInProgress || to == StatusClosed
	case StatusInProgress:
		return to == StatusClosed
	default:
		return false
	}
}

// ValidStatus reports whether s is one of the known conversation statuses.
func ValidStatus(s string) bool {
	return s == StatusOpen || s == StatusInProgress || s == StatusClosed
}

// ValidSenderType reports whether s is one of the known sender types.
func ValidSenderType(s string) bool {
	return s == SenderGuest || s == SenderAdmin || s == SenderSystem
}

// Conversation represents a bounded exchange between one anonymous guest and
// admin staff. The guest holds no server-side account; GuestID is a
// client-persisted correlation key supplied at escalation time.
//
// Fields:
//   - ID: stable UUID primary key (char(36)).
//   - GuestID: opaque client-held identity; indexed for guest lookups.
//   - GuestName: display name collected at escalation (required).
//   - GuestEmail: optional contact address; nullable.
//   - Status: open | in_progress | closed (monotonic, see CanTransition).
//   - LastMessageAt: timestamp of the newest message, nil until first send.
//   - CreatedAt / UpdatedAt: timestamps managed by GORM.
type Conversation struct {
	ID            string     `json:"id"              gorm:"type:char(36);primaryKey"`
	GuestID       string     `json:"guest_id"        gorm:"type:varchar(64);not null;index:idx_guest_convs"`
	GuestName     string     `json:"guest_name"      gorm:"type:varchar(120);not null"`
	GuestEmail    *string    `json:"guest_email,omitempty" gorm:"type:varchar(254)"`
	Status        string     `json:"status"          gorm:"type:varchar(16);not null;default:'open';index;check:status IN ('open','in_progress','closed')"`
	LastMessageAt *time.Time `json:"last_message_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// TableName returns the database table name for Conversation.
func (Conversation) TableName() string { return "conversations" }

// Message represents a single utterance within a conversation, authored by
// the guest, an admin, or the system. Once created, sender type, content and
// owning conversation are immutable; only IsRead may be flipped, and only
// for guest-authored messages observed by an admin console.
//
// Fields:
//   - ID: UUID primary key (char(36)).
//   - ConversationID: foreign key to the owning conversation (indexed).
//   - SenderType: "guest", "admin" or "system" (enforced by DB constraint).
//   - SenderID / SenderName: identity and display name of the author.
//   - Content: full text content of the message.
//   - IsRead: read marker; meaningful only for guest messages.
//   - CreatedAt / UpdatedAt: timestamps managed by GORM.
//   - Conversation: FK association, ensures cascade delete/update.
type Message struct {
	ID             string    `json:"id"              gorm:"type:char(36);primaryKey"`
	ConversationID string    `json:"conversation_id" gorm:"type:char(36);not null;index:idx_conv_msgs,priority:1"`
	SenderType     string    `json:"sender_type"     gorm:"type:varchar(16);not null;check:sender_type IN ('guest','admin','system')"`
	SenderID       string    `json:"sender_id"       gorm:"type:varchar(64);not null"`
	SenderName     string    `json:"sender_name"     gorm:"type:varchar(120);not null"`
	Content        string    `json:"content"         gorm:"type:text;not null"`
	IsRead         bool      `json:"is_read"         gorm:"not null;default:false"`
	CreatedAt      time.Time `json:"created_at"      gorm:"index:idx_conv_msgs,priority:2"`
	UpdatedAt      time.Time `json:"updated_at"`

	// Conversation is the parent exchange. Messages are cascade-deleted
	// if their conversation is removed.
	Conversation Conversation `json:"-" gorm:"foreignKey:ConversationID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for Message.
func (Message) TableName() string { return "messages" }

// ConversationFeedback represents a guest-provided rating on their own closed
// conversation. A guest can only rate a conversation once (enforced by the
// unique index).
type ConversationFeedback struct {
	ID             string    `json:"id"              gorm:"type:char(36);primaryKey"`
	ConversationID string    `json:"conversation_id" gorm:"type:char(36);not null;index;uniqueIndex:ux_feedback_conv_guest"`
	GuestID        string    `json:"guest_id"        gorm:"type:varchar(64);not null;uniqueIndex:ux_feedback_conv_guest"`
	Value          int       `json:"value"           gorm:"not null;check:value IN (-1,1)"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`

	// Conversation is the rated exchange. Feedback is cascade-deleted if
	// the underlying conversation is removed.
	Conversation Conversation `json:"-" gorm:"foreignKey:ConversationID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for ConversationFeedback.
func (ConversationFeedback) TableName() string { return "conversation_feedback" }
