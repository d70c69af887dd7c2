package app

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aradsms/smsbridge/internal/inbound_processor_service/domain"
)

func testMessage(id string) domain.InboundMessage {
	return domain.InboundMessage{
		Body:            "body " + id,
		Sender:          "0412345678",
		MessageID:       id,
		Provider:        domain.ProviderTwilio,
		MatchedKeywords: []string{"kw"},
	}
}

func TestMessageStore_Store(t *testing.T) {
	clock := newFakeClock(testNow)
	s := NewMessageStore(StoreOptions{Now: clock.Now}, testLogger())
	defer s.Close()

	require.NoError(t, s.Store(testMessage("1")))
	clock.Advance(time.Second)
	require.NoError(t, s.Store(testMessage("2")))

	snap := s.Snapshot()
	assert.Equal(t, uint64(2), snap.Count)
	require.NotNil(t, snap.Latest)
	assert.Equal(t, "2", snap.Latest.MessageID)
	require.Len(t, snap.History, 2)
	assert.Equal(t, "1", snap.History[0].MessageID)
	assert.Equal(t, testNow, snap.History[0].StoredAt)
	assert.Equal(t, testNow.Add(time.Second), snap.LastStoredAt)
}

func TestMessageStore_SnapshotIsCopy(t *testing.T) {
	clock := newFakeClock(testNow)
	s := NewMessageStore(StoreOptions{Now: clock.Now}, testLogger())
	defer s.Close()

	require.NoError(t, s.Store(testMessage("1")))
	snap := s.Snapshot()
	snap.History[0].Body = "changed"
	snap.History[0].MatchedKeywords[0] = "changed"
	snap.Latest.MatchedKeywords[0] = "changed"

	again := s.Snapshot()
	assert.Equal(t, "body 1", again.History[0].Body)
	assert.Equal(t, []string{"kw"}, again.History[0].MatchedKeywords)
	assert.Equal(t, []string{"kw"}, again.Latest.MatchedKeywords)
}

func TestMessageStore_PruneBoundaries(t *testing.T) {
	clock := newFakeClock(testNow)
	retention := 24 * time.Hour
	s := NewMessageStore(StoreOptions{Now: clock.Now, Retention: retention}, testLogger())
	defer s.Close()

	cutoff := testNow.Add(-retention)
	s.history = []domain.StoredMessage{
		{InboundMessage: testMessage("expired"), StoredAt: cutoff.Add(-time.Nanosecond)},
		{InboundMessage: testMessage("boundary"), StoredAt: cutoff},
		{InboundMessage: testMessage("unknown")},
		{InboundMessage: testMessage("recent"), StoredAt: testNow},
	}

	removed, err := s.Prune(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	var ids []string
	for _, e := range s.Snapshot().History {
		ids = append(ids, e.MessageID)
	}
	assert.Equal(t, []string{"boundary", "unknown", "recent"}, ids)
}

func TestMessageStore_PruneCancelled(t *testing.T) {
	s := NewMessageStore(StoreOptions{}, testLogger())
	defer s.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := s.Prune(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestMessageStore_OverCapTriggersPrune(t *testing.T) {
	clock := newFakeClock(testNow)
	s := NewMessageStore(StoreOptions{Now: clock.Now, Retention: time.Hour, HistoryCap: 2}, testLogger())
	defer s.Close()

	require.NoError(t, s.Store(testMessage("1")))
	require.NoError(t, s.Store(testMessage("2")))
	clock.Advance(2 * time.Hour)
	require.NoError(t, s.Store(testMessage("3")))

	assert.Eventually(t, func() bool {
		return len(s.Snapshot().History) == 1
	}, time.Second, 5*time.Millisecond)

	snap := s.Snapshot()
	assert.Equal(t, "3", snap.History[0].MessageID)
	assert.Equal(t, uint64(3), snap.Count)
}

func TestMessageStore_CountMatchesStores(t *testing.T) {
	clock := newFakeClock(testNow)
	s := NewMessageStore(StoreOptions{Now: clock.Now, HistoryCap: 10}, testLogger())
	defer s.Close()

	for i := 0; i < 25; i++ {
		require.NoError(t, s.Store(testMessage(fmt.Sprint(i))))
	}
	snap := s.Snapshot()
	assert.Equal(t, uint64(25), snap.Count)
	assert.Equal(t, "24", snap.Latest.MessageID)
}

func TestMessageStore_StoreAfterClose(t *testing.T) {
	s := NewMessageStore(StoreOptions{}, testLogger())
	s.Close()

	err := s.Store(testMessage("1"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrStorage))
}
