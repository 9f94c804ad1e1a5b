// Package stream implements the in-process change feed behind live message
// subscriptions. The Broker fans persisted messages out to every subscriber
// of a conversation without polling; the guest widget and any number of
// admin consoles each hold an independent subscription to the same feed.
//
// Delivery is non-blocking: a subscriber that stops draining its channel
// never stalls senders. When a buffer overflows the oldest buffered event is
// evicted so the newest one still lands, and that event carries a Resync flag
// telling the consumer events were lost in between. Consumers that need a
// complete, ordered view pair the live feed with store reads (see
// services.MessageService.Subscribe, which re-reads the transcript whenever
// Resync is set).
package stream

import (
	"sync"

	"github.com/tutorlane/support-chat-backend/internal/domain"
)

// Event is a published message plus its per-conversation sequence number.
// Sequence numbers are assigned under the broker lock at publish time, so
// they define a total order per conversation for the life of the process.
//
// Resync is set when this subscriber's buffer overflowed since the previous
// event it received: one or more events were discarded, and a consumer that
// needs a complete view must re-read the store before trusting the feed
// again.
type Event struct {
	Seq     uint64
	Message domain.Message
	Resync  bool
}

type subscriber struct {
	ch chan Event
	// gapped records a pending overflow; guarded by the broker mutex. It is
	// cleared when an event carrying the Resync flag is buffered.
	gapped bool
}

type feed struct {
	seq  uint64
	next int
	subs map[int]*subscriber
}

// Broker is a per-conversation publish/subscribe hub. The zero value is not
// usable; construct with New. Safe for concurrent use.
type Broker struct {
	mu    sync.Mutex
	feeds map[string]*feed
}

// New creates an empty broker.
func New() *Broker {
	return &Broker{feeds: make(map[string]*feed)}
}

// Publish delivers m to every current subscriber of the conversation. When a
// subscriber's buffer is full the oldest buffered event is evicted for that
// subscriber only, so the newest event always lands, flagged with Resync.
// Publishing to a conversation nobody watches is a no-op.
func (b *Broker) Publish(conversationID string, m domain.Message) {
	b.mu.Lock()
	defer b.mu.Unlock()

	f, ok := b.feeds[conversationID]
	if !ok {
		return
	}
	f.seq++
	for _, sub := range f.subs {
		evt := Event{Seq: f.seq, Message: m, Resync: sub.gapped}
		select {
		case sub.ch <- evt:
			sub.gapped = false
		default:
			// Full buffer: evict the oldest event so this one still lands,
			// and flag the gap so the consumer re-reads the store.
			select {
			case <-sub.ch:
			default:
			}
			sub.gapped = true
			evt.Resync = true
			select {
			case sub.ch <- evt:
				sub.gapped = false
			default:
			}
		}
	}
}

// Subscribe registers a listener for the conversation's future messages.
// bufSize controls the channel buffer (values < 1 are coerced to 1). The
// returned cancel function releases the subscription; it is idempotent.
// Failing to cancel leaks the subscription for the life of the process only.
func (b *Broker) Subscribe(conversationID string, bufSize int) (<-chan Event, func()) {
	if bufSize < 1 {
		bufSize = 1
	}
	ch := make(chan Event, bufSize)

	b.mu.Lock()
	f, ok := b.feeds[conversationID]
	if !ok {
		f = &feed{subs: make(map[int]*subscriber)}
		b.feeds[conversationID] = f
	}
	id := f.next
	f.next++
	f.subs[id] = &subscriber{ch: ch}
	b.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			if f, ok := b.feeds[conversationID]; ok {
				delete(f.subs, id)
				if len(f.subs) == 0 {
					delete(b.feeds, conversationID)
				}
			}
			b.mu.Unlock()
		})
	}
	return ch, cancel
}

// Subscribers returns the number of active subscriptions for a conversation.
func (b *Broker) Subscribers(conversationID string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if f, ok := b.feeds[conversationID]; ok {
		return len(f.subs)
	}
	return 0
}
