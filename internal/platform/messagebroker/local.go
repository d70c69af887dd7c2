package messagebroker

import (
	"context"
	"log/slog"
	"strings"
	"sync"
)

// Handler receives a message published on the local bus.
type Handler func(subject string, data []byte)

type subscription struct {
	id      int
	pattern string
	handler Handler
}

// LocalBus is an in-process Publisher used when no NATS server is configured.
// Subjects are matched with NATS-style tokens: "*" matches one token, ">" the rest.
type LocalBus struct {
	mu     sync.RWMutex
	subs   []subscription
	nextID int
	logger *slog.Logger
}

func NewLocalBus(logger *slog.Logger) *LocalBus {
	return &LocalBus{logger: logger.With("component", "local_bus")}
}

// Subscribe registers handler for pattern and returns a function that removes it.
func (b *LocalBus) Subscribe(pattern string, handler Handler) (unsubscribe func()) {
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.subs = append(b.subs, subscription{id: id, pattern: pattern, handler: handler})
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		for i, s := range b.subs {
			if s.id == id {
				b.subs = append(b.subs[:i], b.subs[i+1:]...)
				return
			}
		}
	}
}

// Publish delivers data synchronously to every matching subscriber.
func (b *LocalBus) Publish(ctx context.Context, subject string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.RLock()
	matched := make([]Handler, 0, len(b.subs))
	for _, s := range b.subs {
		if subjectMatches(s.pattern, subject) {
			matched = append(matched, s.handler)
		}
	}
	b.mu.RUnlock()

	b.logger.DebugContext(ctx, "Local bus publish", "subject", subject, "subscribers", len(matched), "data_len", len(data))
	for _, h := range matched {
		h(subject, data)
	}
	return nil
}

func (b *LocalBus) Close() {
	b.mu.Lock()
	b.subs = nil
	b.mu.Unlock()
}

func subjectMatches(pattern, subject string) bool {
	pt := strings.Split(pattern, ".")
	st := strings.Split(subject, ".")
	for i, tok := range pt {
		if tok == ">" {
			return len(st) > i
		}
		if i >= len(st) {
			return false
		}
		if tok != "*" && tok != st[i] {
			return false
		}
	}
	return len(pt) == len(st)
}
