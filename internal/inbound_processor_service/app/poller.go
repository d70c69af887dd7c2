package app

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/aradsms/smsbridge/internal/inbound_processor_service/provider"
)

// JobScheduler runs a task at a fixed interval until the returned stop function is called.
type JobScheduler interface {
	Every(name string, interval time.Duration, startNow bool, task func()) (stop func() error, err error)
}

// MessageLister lists provider messages sent since a point in time.
type MessageLister interface {
	ListMessages(ctx context.Context, since time.Time) ([]provider.TwilioMessage, error)
}

type PollerOptions struct {
	Interval time.Duration
	Lookback time.Duration
	Now      func() time.Time
}

// Poller periodically lists recent inbound messages for a polling-mode
// instance and feeds unseen ones through the pipeline, oldest first.
type Poller struct {
	rt       *Runtime
	pipeline *Pipeline
	lister   MessageLister
	seen     *DedupWindow
	opts     PollerOptions
	logger   *slog.Logger

	mu     sync.Mutex
	stopFn func() error
	ctx    context.Context
	cancel context.CancelFunc
}

func NewPoller(rt *Runtime, pipeline *Pipeline, lister MessageLister, opts PollerOptions, logger *slog.Logger) *Poller {
	if opts.Interval <= 0 {
		opts.Interval = 60 * time.Second
	}
	if opts.Lookback <= 0 {
		opts.Lookback = 24 * time.Hour
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Poller{
		rt:       rt,
		pipeline: pipeline,
		lister:   lister,
		seen:     NewDedupWindow(DefaultDedupCapacity),
		opts:     opts,
		logger:   logger.With("component", "poller", "instance_id", rt.ID()),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start schedules poll cycles, the first one immediately.
func (p *Poller) Start(s JobScheduler) error {
	stop, err := s.Every("poll:"+p.rt.ID(), p.opts.Interval, true, p.runCycle)
	if err != nil {
		return err
	}
	p.mu.Lock()
	p.stopFn = stop
	p.mu.Unlock()
	p.logger.Info("Poller started", "interval", p.opts.Interval.String(), "lookback", p.opts.Lookback.String())
	return nil
}

// Stop cancels an in-flight cycle and removes the scheduled job.
func (p *Poller) Stop() {
	p.cancel()
	p.mu.Lock()
	stop := p.stopFn
	p.stopFn = nil
	p.mu.Unlock()
	if stop != nil {
		if err := stop(); err != nil {
			p.logger.Warn("Failed to remove poll job", "error", err)
		}
	}
}

func (p *Poller) runCycle() {
	ctx, cancel := context.WithTimeout(p.ctx, p.opts.Interval)
	defer cancel()

	processed, err := p.PollOnce(ctx)
	if err != nil {
		pollCyclesCounter.WithLabelValues(p.rt.ID(), "error").Inc()
		p.logger.Error("Poll cycle failed; retrying next interval", "error", err)
		return
	}
	pollCyclesCounter.WithLabelValues(p.rt.ID(), "ok").Inc()
	if processed > 0 {
		p.logger.Info("Poll cycle processed messages", "count", processed)
	}
}

type polledMessage struct {
	msg provider.TwilioMessage
	at  time.Time
}

// PollOnce runs a single poll cycle and returns how many new messages were
// handed to the pipeline. Every listed inbound message is marked seen, whatever
// the pipeline decided about it.
func (p *Poller) PollOnce(ctx context.Context) (int, error) {
	now := p.opts.Now()
	since := now.Add(-p.opts.Lookback)

	msgs, err := p.lister.ListMessages(ctx, since)
	if err != nil {
		return 0, err
	}

	pending := make([]polledMessage, 0, len(msgs))
	for _, m := range msgs {
		if !m.IsInbound() || m.SID == "" {
			continue
		}
		if p.seen.Seen(m.SID) {
			dedupSkipsCounter.WithLabelValues(p.rt.ID()).Inc()
			continue
		}
		at, ok := ParseProviderTimestamp(m.Fields()["DateSent"])
		if !ok {
			at = now.UTC()
		} else if at.Before(since) {
			continue
		}
		pending = append(pending, polledMessage{msg: m, at: at})
	}
	sort.SliceStable(pending, func(i, j int) bool { return pending[i].at.Before(pending[j].at) })

	processed := 0
	for _, pm := range pending {
		if err := ctx.Err(); err != nil {
			return processed, err
		}
		if _, err := p.pipeline.ProcessFields(ctx, p.rt, pm.msg.Fields(), SourcePoll); err == nil {
			processed++
		}
		p.seen.Mark(pm.msg.SID)
	}
	return processed, nil
}
