// Package services – MessageService
//
// This file implements MessageService, the application-level component that
// owns message sends and live subscriptions. It validates input, checks the
// target conversation is live, persists the message and the conversation's
// last-activity timestamp atomically, then publishes the committed row to
// the in-process broker.
//
// Ordering: a per-conversation send gate serializes the insert+publish pair,
// so broker delivery order matches created_at order within a conversation.
// Subscribers get a snapshot of the transcript stitched to the live feed
// (subscribe first, then snapshot, then dedupe the overlap), which yields
// every past and future message exactly once in created_at order. A consumer
// that outruns its buffer is resynchronized from the store instead of losing
// messages: the broker flags the gap and the forwarding loop backfills the
// transcript before resuming the live tail.
//
// Observability: all public methods are OpenTelemetry-instrumented; spans
// include conversation/sender identifiers and pagination parameters where
// applicable.
package services

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"gorm.io/gorm"

	"github.com/tutorlane/support-chat-backend/internal/domain"
	"github.com/tutorlane/support-chat-backend/internal/repo"
	"github.com/tutorlane/support-chat-backend/internal/stream"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Subscription is a live view over one conversation's messages: everything
// already stored, then everything sent later, in created_at order. Cancel
// releases the subscription and eventually closes C; it is idempotent.
type Subscription struct {
	C      <-chan domain.Message
	Cancel func()
}

// MessageService coordinates message persistence, read tracking, and live
// fan-out.
type MessageService struct {
	DB     *gorm.DB
	Broker *stream.Broker

	// MaxContentRunes caps message bodies; 0 disables the check.
	MaxContentRunes int

	// SubscribeBuffer sizes per-subscriber channels (values < 1 → 32).
	SubscribeBuffer int

	// gates holds one *sync.Mutex per conversation so concurrent sends to
	// the same conversation commit and publish in a single order.
	gates sync.Map
}

// gate returns the send mutex for a conversation, creating it on first use.
func (s *MessageService) gate(conversationID string) *sync.Mutex {
	if mu, ok := s.gates.Load(conversationID); ok {
		return mu.(*sync.Mutex)
	}
	mu, _ := s.gates.LoadOrStore(conversationID, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

// Send validates and persists a message in the target conversation, bumps
// the conversation's last-activity timestamp, and fans the committed row out
// to subscribers. When an admin replies to a still-open conversation the
// conversation advances to in_progress in the same transaction.
func (s *MessageService) Send(ctx context.Context, conversationID, senderType, senderID, senderName, content string) (*domain.Message, error) {
	tr := otel.Tracer("services/MessageService")
	ctx, span := tr.Start(ctx, "Send",
		trace.WithAttributes(
			attribute.String("conversation.id", conversationID),
			attribute.String("sender.type", senderType),
		),
	)
	defer span.End()

	content = strings.TrimSpace(content)
	if content == "" {
		return nil, ErrEmptyMessage
	}
	if s.MaxContentRunes > 0 && utf8.RuneCountInString(content) > s.MaxContentRunes {
		return nil, ErrTooLong
	}
	if !domain.ValidSenderType(senderType) {
		return nil, errors.New("unknown sender type: " + senderType)
	}

	conv, err := repo.GetConversation(ctx, s.DB, conversationID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrConversationNotFound
		}
		return nil, err
	}
	if conv.Status == domain.StatusClosed {
		return nil, ErrConversationClosed
	}

	mu := s.gate(conversationID)
	mu.Lock()
	defer mu.Unlock()

	var msg *domain.Message
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		m, err := repo.CreateMessage(tx, conversationID, senderType, senderID, senderName, content)
		if err != nil {
			return err
		}
		msg = m
		if err := repo.TouchLastMessage(ctx, tx, conversationID, m.CreatedAt); err != nil {
			return err
		}
		// First admin reply picks the conversation up.
		if senderType == domain.SenderAdmin && conv.Status == domain.StatusOpen {
			if _, err := repo.TransitionStatus(ctx, tx, conversationID, domain.StatusInProgress); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if s.Broker != nil {
		s.Broker.Publish(conversationID, *msg)
	}
	return msg, nil
}

// Subscribe returns a live view over the conversation: the stored transcript
// followed by future messages, each delivered once. A consumer that drains
// too slowly is backfilled from the store rather than skipped. The
// subscription ends when ctx is cancelled or Cancel is called.
func (s *MessageService) Subscribe(ctx context.Context, conversationID string) (*Subscription, error) {
	tr := otel.Tracer("services/MessageService")
	ctx, span := tr.Start(ctx, "Subscribe",
		trace.WithAttributes(attribute.String("conversation.id", conversationID)),
	)
	defer span.End()

	if _, err := repo.GetConversation(ctx, s.DB, conversationID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrConversationNotFound
		}
		return nil, err
	}

	buf := s.SubscribeBuffer
	if buf < 1 {
		buf = 32
	}

	// Subscribe before snapshotting: a message committed between the two
	// shows up in both and is dropped once by the dedupe below. The reverse
	// order would lose it entirely.
	live, cancelLive := s.Broker.Subscribe(conversationID, buf)

	snapshot, err := repo.ListMessages(s.DB.WithContext(ctx), conversationID, 0)
	if err != nil {
		cancelLive()
		return nil, err
	}

	out := make(chan domain.Message, buf)
	done := make(chan struct{})
	var once sync.Once
	cancel := func() {
		once.Do(func() {
			cancelLive()
			close(done)
		})
	}

	go func() {
		defer close(out)
		defer cancel()

		// delivered is kept for the life of the subscription so resync
		// backfills never re-deliver a message.
		delivered := make(map[string]struct{}, len(snapshot))
		emit := func(m domain.Message) bool {
			select {
			case out <- m:
				return true
			case <-done:
				return false
			case <-ctx.Done():
				return false
			}
		}

		for _, m := range snapshot {
			delivered[m.ID] = struct{}{}
			if !emit(m) {
				return
			}
		}
		for {
			select {
			case ev := <-live:
				if ev.Resync {
					// The broker evicted events while this consumer lagged.
					// Re-read the transcript and deliver what was missed,
					// still in created_at order. A failed re-read would leave
					// a hole, so the stream ends and the client replays on
					// reconnect.
					missed, rerr := repo.ListMessages(s.DB.WithContext(ctx), conversationID, 0)
					if rerr != nil {
						return
					}
					for _, m := range missed {
						if _, dup := delivered[m.ID]; dup {
							continue
						}
						delivered[m.ID] = struct{}{}
						if !emit(m) {
							return
						}
					}
				}
				if _, dup := delivered[ev.Message.ID]; dup {
					// Overlap with the snapshot or a backfill; already out.
					continue
				}
				delivered[ev.Message.ID] = struct{}{}
				if !emit(ev.Message) {
					return
				}
			case <-done:
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	return &Subscription{C: out, Cancel: cancel}, nil
}

// List returns the full transcript in created_at order.
func (s *MessageService) List(ctx context.Context, conversationID string) ([]domain.Message, error) {
	if _, err := repo.GetConversation(ctx, s.DB, conversationID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrConversationNotFound
		}
		return nil, err
	}
	return repo.ListMessages(s.DB.WithContext(ctx), conversationID, 0)
}

// ListPage returns paginated messages for a conversation.
func (s *MessageService) ListPage(ctx context.Context, conversationID string, page, pageSize int) ([]domain.Message, int64, error) {
	tr := otel.Tracer("services/MessageService")
	ctx, span := tr.Start(ctx, "ListPage",
		trace.WithAttributes(
			attribute.String("conversation.id", conversationID),
			attribute.Int("page", page),
			attribute.Int("page_size", pageSize),
		),
	)
	defer span.End()

	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 50
	}
	offset := (page - 1) * pageSize

	if _, err := repo.GetConversation(ctx, s.DB, conversationID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, 0, ErrConversationNotFound
		}
		return nil, 0, err
	}

	total, err := repo.CountMessages(s.DB.WithContext(ctx), conversationID)
	if err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []domain.Message{}, 0, nil
	}

	items, err := repo.ListMessagesPage(s.DB.WithContext(ctx), conversationID, offset, pageSize)
	return items, total, err
}

// MarkRead flips every unread guest message at or before the watermark
// message to read and returns how many rows changed. The watermark must be a
// message of the same conversation; replays change zero rows and succeed.
func (s *MessageService) MarkRead(ctx context.Context, conversationID, watermarkMessageID string) (int64, error) {
	tr := otel.Tracer("services/MessageService")
	ctx, span := tr.Start(ctx, "MarkRead",
		trace.WithAttributes(
			attribute.String("conversation.id", conversationID),
			attribute.String("watermark.id", watermarkMessageID),
		),
	)
	defer span.End()

	if _, err := repo.GetConversation(ctx, s.DB, conversationID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, ErrConversationNotFound
		}
		return 0, err
	}

	wm, err := repo.GetMessage(s.DB.WithContext(ctx), watermarkMessageID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, ErrMessageNotFound
		}
		return 0, err
	}
	if wm.ConversationID != conversationID {
		return 0, ErrMessageNotFound
	}

	return repo.MarkReadUpTo(s.DB.WithContext(ctx), conversationID, wm.CreatedAt, wm.ID)
}

// UnreadCount returns the number of unread guest messages in a conversation.
func (s *MessageService) UnreadCount(ctx context.Context, conversationID string) (int64, error) {
	if _, err := repo.GetConversation(ctx, s.DB, conversationID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, ErrConversationNotFound
		}
		return 0, err
	}
	return repo.CountUnread(s.DB.WithContext(ctx), conversationID)
}

// SendIdempotent wraps Send with an Idempotency-Key lookup scoped to
// (sender, conversation). A replay within the TTL returns the original
// message without inserting a second row; replayed reports whether the
// result came from the cache.
func (s *MessageService) SendIdempotent(ctx context.Context, conversationID, senderType, senderID, senderName, content, key string, ttl time.Duration) (msg *domain.Message, replayed bool, err error) {
	key = strings.TrimSpace(key)
	if key == "" {
		m, err := s.Send(ctx, conversationID, senderType, senderID, senderName, content)
		return m, false, err
	}

	now := time.Now().UTC()
	if rec, err := repo.GetIdempotency(ctx, s.DB, senderID, conversationID, key, now); err == nil {
		prior, gerr := repo.GetMessage(s.DB.WithContext(ctx), rec.MessageID)
		if gerr == nil {
			return prior, true, nil
		}
		// Record outlived its message; fall through and send fresh.
	}

	m, err := s.Send(ctx, conversationID, senderType, senderID, senderName, content)
	if err != nil {
		return nil, false, err
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	if _, cerr := repo.CreateIdempotency(ctx, s.DB, senderID, conversationID, key, m.ID, 201, ttl); cerr != nil && !errors.Is(cerr, repo.ErrDuplicate) {
		// Losing the race to record the key is harmless; the message stands.
		return m, false, nil
	}
	return m, false, nil
}
