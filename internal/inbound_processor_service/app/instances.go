package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/aradsms/smsbridge/internal/inbound_processor_service/domain"
	"github.com/aradsms/smsbridge/internal/inbound_processor_service/provider"
	"github.com/aradsms/smsbridge/internal/platform/readiness"
)

// WebhookRegistrar maps webhook ids to instances for the HTTP dispatcher.
type WebhookRegistrar interface {
	Register(webhookID, instanceID string)
	Unregister(webhookID string)
}

// TwilioAPI is what the manager needs from a Twilio account client.
type TwilioAPI interface {
	MessageLister
	ValidateCredentials(ctx context.Context) error
}

// TwilioClientFactory builds a client for an instance's credentials.
type TwilioClientFactory func(cfg domain.InstanceConfig) TwilioAPI

type ManagerOptions struct {
	Store StoreOptions
	Poll  PollerOptions
	// Setup bounds the credential readiness wait.
	Setup readiness.Options
	Now   func() time.Time
}

// InstanceStatus is the listing view of an instance.
type InstanceStatus struct {
	ID        string             `json:"id"`
	Name      string             `json:"name"`
	Provider  domain.ProviderTag `json:"provider"`
	Mode      domain.Mode        `json:"mode"`
	WebhookID string             `json:"webhook_id,omitempty"`
	Ready     bool               `json:"ready"`
	Error     string             `json:"error,omitempty"`
}

type pendingSetup struct {
	cfg     domain.InstanceConfig
	lastErr error
}

// Instance ids become event subject tokens and webhook ids become URL path
// segments, so both are limited to the same safe alphabet.
var (
	instanceIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)
	webhookIDPattern  = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)
)

// ErrManagerClosed is returned by Setup once Close has been called.
var ErrManagerClosed = errors.New("instance manager closed")

// Manager owns the runtime of every configured instance. Instances whose
// setup failed on a readiness check stay pending until RetryPending succeeds.
type Manager struct {
	mu       sync.RWMutex
	runtimes map[string]*Runtime
	pending  map[string]pendingSetup
	closed   bool

	pipeline  *Pipeline
	registrar WebhookRegistrar
	scheduler JobScheduler
	twilio    TwilioClientFactory
	opts      ManagerOptions
	validate  *validator.Validate
	logger    *slog.Logger
}

func NewManager(pipeline *Pipeline, registrar WebhookRegistrar, scheduler JobScheduler, twilio TwilioClientFactory, opts ManagerOptions, logger *slog.Logger) *Manager {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Store.Now == nil {
		opts.Store.Now = opts.Now
	}
	if opts.Poll.Now == nil {
		opts.Poll.Now = opts.Now
	}
	return &Manager{
		runtimes:  make(map[string]*Runtime),
		pending:   make(map[string]pendingSetup),
		pipeline:  pipeline,
		registrar: registrar,
		scheduler: scheduler,
		twilio:    twilio,
		opts:      opts,
		validate:  NewValidator(),
		logger:    logger.With("component", "instance_manager"),
	}
}

// NormalizeInstanceConfig fills generated identifiers and tidies list fields.
// It is idempotent.
func NormalizeInstanceConfig(cfg domain.InstanceConfig) (domain.InstanceConfig, error) {
	cfg.ID = strings.TrimSpace(cfg.ID)
	if cfg.ID == "" {
		cfg.ID = uuid.NewString()
	}
	cfg.Name = strings.TrimSpace(cfg.Name)
	if cfg.Mode == "" {
		cfg.Mode = domain.ModeWebhook
	}
	cfg.WebhookID = strings.TrimSpace(cfg.WebhookID)
	if cfg.WebhookID == "" && cfg.Mode == domain.ModeWebhook {
		id, err := GenerateWebhookID()
		if err != nil {
			return cfg, err
		}
		cfg.WebhookID = id
	}
	if cfg.WebhookSecret == "" && cfg.Provider == domain.ProviderMobileMessage {
		secret, err := GenerateSecret(32)
		if err != nil {
			return cfg, err
		}
		cfg.WebhookSecret = secret
	}
	cfg.SenderWhitelist = splitList(cfg.SenderWhitelist)
	cfg.SenderBlacklist = splitList(cfg.SenderBlacklist)
	cfg.Keywords = splitKeywords(cfg.Keywords)
	cfg.DefaultSender = strings.TrimSpace(cfg.DefaultSender)
	return cfg, nil
}

// splitList expands comma-separated entries and drops blanks.
func splitList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, entry := range in {
		for _, part := range strings.Split(entry, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

// splitKeywords is splitList except that regex keywords are kept whole, since
// a pattern may legitimately contain commas.
func splitKeywords(in []string) []string {
	out := make([]string, 0, len(in))
	for _, entry := range in {
		if strings.HasPrefix(strings.TrimSpace(entry), regexKeywordPrefix) {
			out = append(out, strings.TrimSpace(entry))
			continue
		}
		out = append(out, splitList([]string{entry})...)
	}
	return out
}

func (m *Manager) validateConfig(cfg domain.InstanceConfig) error {
	if err := m.validate.Struct(cfg); err != nil {
		return fmt.Errorf("%w: %s: %v", domain.ErrInvalidConfig, cfg.Name, err)
	}
	if !instanceIDPattern.MatchString(cfg.ID) {
		return fmt.Errorf("%w: %s: instance id %q may only contain letters, digits, '-' and '_'", domain.ErrInvalidConfig, cfg.Name, cfg.ID)
	}
	if cfg.Mode == domain.ModePolling && cfg.Provider != domain.ProviderTwilio {
		return fmt.Errorf("%w: %s: polling is only supported for %s", domain.ErrInvalidConfig, cfg.Name, domain.ProviderTwilio)
	}
	if cfg.WebhookID != "" && !webhookIDPattern.MatchString(cfg.WebhookID) {
		return fmt.Errorf("%w: %s: webhook id must be URL-safe", domain.ErrInvalidConfig, cfg.Name)
	}
	return nil
}

// Setup validates cfg, checks provider readiness when configured, builds the
// instance runtime, registers its webhook and starts polling. A readiness
// failure returns ErrNotReady and leaves the instance pending.
func (m *Manager) Setup(ctx context.Context, cfg domain.InstanceConfig) (*Runtime, error) {
	generatedWebhook := strings.TrimSpace(cfg.WebhookID) == "" && cfg.EffectiveMode() == domain.ModeWebhook
	cfg, err := NormalizeInstanceConfig(cfg)
	if err != nil {
		return nil, err
	}
	if err := m.validateConfig(cfg); err != nil {
		return nil, err
	}

	m.mu.RLock()
	closed := m.closed
	_, exists := m.runtimes[cfg.ID]
	conflict := m.webhookConflictLocked(cfg)
	m.mu.RUnlock()
	if closed {
		return nil, ErrManagerClosed
	}
	if exists {
		return nil, fmt.Errorf("%w: instance %s already set up", domain.ErrInvalidConfig, cfg.ID)
	}
	if conflict != "" {
		return nil, fmt.Errorf("%w: webhook id already used by instance %s", domain.ErrInvalidConfig, conflict)
	}

	logger := m.logger.With("instance_id", cfg.ID, "instance_name", cfg.Name, "provider", string(cfg.Provider))
	if generatedWebhook {
		logger.WarnContext(ctx, "Generated a webhook id that changes on every restart; pin it in the instance config (see `smsbridge webhook-id`)",
			"webhook_id", cfg.WebhookID)
	}

	var twilioClient TwilioAPI
	if cfg.Provider == domain.ProviderTwilio && m.twilio != nil {
		twilioClient = m.twilio(cfg)
	}

	if cfg.ValidateCredentials && twilioClient != nil {
		check := func(ctx context.Context) error {
			err := twilioClient.ValidateCredentials(ctx)
			if errors.Is(err, provider.ErrPermanent) {
				return readiness.Permanent(err)
			}
			return err
		}
		if err := readiness.Wait(ctx, logger, "twilio credentials", check, m.opts.Setup); err != nil {
			m.markPending(cfg, err)
			logger.WarnContext(ctx, "Instance setup deferred", "error", err)
			return nil, fmt.Errorf("%w: %s: %v", domain.ErrNotReady, cfg.Name, err)
		}
	}

	extractor, err := NewExtractor(cfg.Provider, m.logger, m.opts.Now)
	if err != nil {
		return nil, err
	}
	rt := &Runtime{
		Config:    cfg,
		Store:     NewMessageStore(m.opts.Store, logger),
		Matcher:   NewKeywordMatcher(cfg.Keywords, logger),
		Extractor: extractor,
	}

	if cfg.Mode == domain.ModePolling {
		if twilioClient == nil || m.scheduler == nil {
			rt.Store.Close()
			return nil, fmt.Errorf("%w: %s: polling needs a provider client and scheduler", domain.ErrInvalidConfig, cfg.Name)
		}
		rt.poller = NewPoller(rt, m.pipeline, twilioClient, m.opts.Poll, m.logger)
		if err := rt.poller.Start(m.scheduler); err != nil {
			rt.Store.Close()
			m.markPending(cfg, err)
			return nil, fmt.Errorf("%w: %s: %v", domain.ErrNotReady, cfg.Name, err)
		}
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		rt.close()
		return nil, ErrManagerClosed
	}
	m.runtimes[cfg.ID] = rt
	delete(m.pending, cfg.ID)
	m.mu.Unlock()

	if cfg.Mode == domain.ModeWebhook && m.registrar != nil {
		m.registrar.Register(cfg.WebhookID, cfg.ID)
	}
	m.updateGauge()

	logger.InfoContext(ctx, "Instance set up", "mode", string(cfg.Mode), "webhook_id", cfg.WebhookID, "keywords", len(cfg.Keywords))
	return rt, nil
}

func (m *Manager) webhookConflictLocked(cfg domain.InstanceConfig) string {
	if cfg.WebhookID == "" {
		return ""
	}
	for id, rt := range m.runtimes {
		if id != cfg.ID && rt.Config.WebhookID == cfg.WebhookID {
			return id
		}
	}
	return ""
}

func (m *Manager) markPending(cfg domain.InstanceConfig, err error) {
	m.mu.Lock()
	if !m.closed {
		m.pending[cfg.ID] = pendingSetup{cfg: cfg, lastErr: err}
	}
	m.mu.Unlock()
	m.updateGauge()
}

// RetryPending attempts setup again for every pending instance.
func (m *Manager) RetryPending(ctx context.Context) {
	m.mu.RLock()
	configs := make([]domain.InstanceConfig, 0, len(m.pending))
	for _, p := range m.pending {
		configs = append(configs, p.cfg)
	}
	m.mu.RUnlock()

	for _, cfg := range configs {
		if ctx.Err() != nil {
			return
		}
		if _, err := m.Setup(ctx, cfg); err != nil {
			m.logger.WarnContext(ctx, "Pending instance still not ready", "instance_id", cfg.ID, "error", err)
		}
	}
}

// StartRetryJob schedules RetryPending at the given interval. Each run is
// bounded by the interval and abandoned once ctx is cancelled.
func (m *Manager) StartRetryJob(ctx context.Context, every time.Duration) (func() error, error) {
	if m.scheduler == nil {
		return nil, errors.New("no scheduler configured")
	}
	return m.scheduler.Every("setup-retry", every, false, func() {
		if ctx.Err() != nil {
			return
		}
		ctx, cancel := context.WithTimeout(ctx, every)
		defer cancel()
		m.RetryPending(ctx)
	})
}

// Teardown unregisters the webhook, stops polling, cancels any in-flight prune
// and drops the instance.
func (m *Manager) Teardown(id string) error {
	m.mu.Lock()
	rt, ok := m.runtimes[id]
	delete(m.runtimes, id)
	_, wasPending := m.pending[id]
	delete(m.pending, id)
	m.mu.Unlock()

	if !ok {
		if wasPending {
			m.updateGauge()
			return nil
		}
		return fmt.Errorf("%w: %s", domain.ErrInstanceNotFound, id)
	}

	if rt.Config.WebhookID != "" && m.registrar != nil {
		m.registrar.Unregister(rt.Config.WebhookID)
	}
	rt.close()
	m.updateGauge()
	m.logger.Info("Instance torn down", "instance_id", id)
	return nil
}

func (m *Manager) Get(id string) (*Runtime, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rt, ok := m.runtimes[id]
	return rt, ok
}

// InstanceConfig returns the configuration of a ready instance.
func (m *Manager) InstanceConfig(id string) (domain.InstanceConfig, bool) {
	rt, ok := m.Get(id)
	if !ok {
		return domain.InstanceConfig{}, false
	}
	return rt.Config, true
}

// List returns ready and pending instances ordered by name.
func (m *Manager) List() []InstanceStatus {
	m.mu.RLock()
	out := make([]InstanceStatus, 0, len(m.runtimes)+len(m.pending))
	for _, rt := range m.runtimes {
		out = append(out, statusOf(rt.Config, true, nil))
	}
	for _, p := range m.pending {
		out = append(out, statusOf(p.cfg, false, p.lastErr))
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func statusOf(cfg domain.InstanceConfig, ready bool, err error) InstanceStatus {
	st := InstanceStatus{
		ID:        cfg.ID,
		Name:      cfg.Name,
		Provider:  cfg.Provider,
		Mode:      cfg.EffectiveMode(),
		WebhookID: cfg.WebhookID,
		Ready:     ready,
	}
	if err != nil {
		st.Error = err.Error()
	}
	return st
}

// Close tears down every instance. Later Setup calls fail with ErrManagerClosed.
func (m *Manager) Close() {
	m.mu.Lock()
	m.closed = true
	ids := make([]string, 0, len(m.runtimes))
	for id := range m.runtimes {
		ids = append(ids, id)
	}
	m.mu.Unlock()

	for _, id := range ids {
		_ = m.Teardown(id)
	}
	m.mu.Lock()
	m.pending = make(map[string]pendingSetup)
	m.mu.Unlock()
	m.updateGauge()
}

func (m *Manager) updateGauge() {
	m.mu.RLock()
	ready, pending := len(m.runtimes), len(m.pending)
	m.mu.RUnlock()
	instancesGauge.WithLabelValues("ready").Set(float64(ready))
	instancesGauge.WithLabelValues("pending").Set(float64(pending))
}
