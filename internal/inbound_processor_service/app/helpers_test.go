package app

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/aradsms/smsbridge/internal/inbound_processor_service/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(t time.Time) *fakeClock { return &fakeClock{now: t} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// recordingPublisher keeps every published event in order.
type recordingPublisher struct {
	mu     sync.Mutex
	events []domain.Event
}

func (p *recordingPublisher) PublishEvent(_ context.Context, event domain.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *recordingPublisher) Events() []domain.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]domain.Event(nil), p.events...)
}

func (p *recordingPublisher) Types() []domain.EventType {
	var out []domain.EventType
	for _, e := range p.Events() {
		out = append(out, e.Type)
	}
	return out
}

func newTestRuntime(t *testing.T, cfg domain.InstanceConfig, clock *fakeClock) *Runtime {
	t.Helper()
	if cfg.ID == "" {
		cfg.ID = "inst-1"
	}
	if cfg.Name == "" {
		cfg.Name = "Test"
	}
	extractor, err := NewExtractor(cfg.Provider, testLogger(), clock.Now)
	require.NoError(t, err)
	rt := &Runtime{
		Config:    cfg,
		Store:     NewMessageStore(StoreOptions{Now: clock.Now}, testLogger()),
		Matcher:   NewKeywordMatcher(cfg.Keywords, testLogger()),
		Extractor: extractor,
	}
	t.Cleanup(rt.Store.Close)
	return rt
}

type scheduledJob struct {
	name     string
	interval time.Duration
	startNow bool
	task     func()
	stopped  bool
}

// fakeScheduler records jobs instead of running them.
type fakeScheduler struct {
	mu   sync.Mutex
	jobs []*scheduledJob
}

func (s *fakeScheduler) Every(name string, interval time.Duration, startNow bool, task func()) (func() error, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job := &scheduledJob{name: name, interval: interval, startNow: startNow, task: task}
	s.jobs = append(s.jobs, job)
	return func() error {
		s.mu.Lock()
		job.stopped = true
		s.mu.Unlock()
		return nil
	}, nil
}

func (s *fakeScheduler) Job(name string) *scheduledJob {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, j := range s.jobs {
		if j.name == name {
			return j
		}
	}
	return nil
}
