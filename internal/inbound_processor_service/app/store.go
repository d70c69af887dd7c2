package app

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aradsms/smsbridge/internal/inbound_processor_service/domain"
)

// StoreOptions configures a MessageStore.
type StoreOptions struct {
	Retention  time.Duration
	HistoryCap int
	Now        func() time.Time
}

// Snapshot is a consistent copy of the store contents.
type Snapshot struct {
	Latest       *domain.InboundMessage
	Count        uint64
	History      []domain.StoredMessage
	LastStoredAt time.Time
}

// MessageStore keeps the latest message, a running count and a bounded history
// for one instance. All mutations happen under mu; pruning runs in the
// background once history grows past the cap.
type MessageStore struct {
	mu           sync.Mutex
	latest       *domain.InboundMessage
	count        uint64
	history      []domain.StoredMessage
	lastStoredAt time.Time
	pruning      bool
	closed       bool

	retention  time.Duration
	historyCap int
	now        func() time.Time
	logger     *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewMessageStore(opts StoreOptions, logger *slog.Logger) *MessageStore {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.HistoryCap <= 0 {
		opts.HistoryCap = 1000
	}
	if opts.Retention <= 0 {
		opts.Retention = 180 * 24 * time.Hour
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &MessageStore{
		retention:  opts.Retention,
		historyCap: opts.HistoryCap,
		now:        opts.Now,
		logger:     logger.With("component", "message_store"),
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Store records msg as the latest message, increments the count and appends it
// to history.
func (s *MessageStore) Store(msg domain.InboundMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("%w: store closed", domain.ErrStorage)
	}

	now := s.now().UTC()
	latest := msg.Clone()
	s.latest = &latest
	s.count++
	s.history = append(s.history, domain.StoredMessage{InboundMessage: msg.Clone(), StoredAt: now})
	s.lastStoredAt = now

	if len(s.history) > s.historyCap && !s.pruning {
		s.pruning = true
		s.wg.Add(1)
		go s.backgroundPrune()
	}
	return nil
}

func (s *MessageStore) backgroundPrune() {
	defer s.wg.Done()
	defer func() {
		s.mu.Lock()
		s.pruning = false
		s.mu.Unlock()
	}()

	removed, err := s.Prune(s.ctx)
	if err != nil {
		s.logger.Debug("History prune cancelled", "error", err)
		return
	}
	historyPrunedCounter.Add(float64(removed))
	s.logger.Debug("History pruned", "removed", removed)
}

// Prune drops history entries stored more than the retention period ago.
// Entries exactly at the cutoff and entries with an unknown storage time are kept.
func (s *MessageStore) Prune(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return 0, err
	}

	cutoff := s.now().UTC().Add(-s.retention)
	kept := s.history[:0:0]
	for _, entry := range s.history {
		if !entry.StoredAt.IsZero() && entry.StoredAt.Before(cutoff) {
			continue
		}
		kept = append(kept, entry)
	}
	removed := len(s.history) - len(kept)
	s.history = kept
	return removed, nil
}

// Snapshot returns copies of the latest message and history.
func (s *MessageStore) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		Count:        s.count,
		LastStoredAt: s.lastStoredAt,
		History:      make([]domain.StoredMessage, len(s.history)),
	}
	if s.latest != nil {
		latest := s.latest.Clone()
		snap.Latest = &latest
	}
	for i, entry := range s.history {
		snap.History[i] = domain.StoredMessage{InboundMessage: entry.Clone(), StoredAt: entry.StoredAt}
	}
	return snap
}

// Close cancels an in-flight prune and waits for it to finish. Later Store calls fail.
func (s *MessageStore) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	s.cancel()
	s.wg.Wait()
}
