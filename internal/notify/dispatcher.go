package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"storefront/internal/metrics"
	"storefront/internal/model"

	"github.com/rs/zerolog"
)

const (
	defaultPollInterval   = 2 * time.Second
	defaultBatchSize      = 50
	defaultMaxAttempts    = 3
	defaultRetryBaseDelay = 50 * time.Millisecond
)

var errAttachmentStore = errors.New("attachment store not configured")

// DispatcherOptions holds the dispatcher settings.
type DispatcherOptions struct {
	Logger         zerolog.Logger
	Publisher      EventPublisher
	Attachments    AttachmentStore
	Metrics        *metrics.Metrics
	PollInterval   time.Duration
	BatchSize      int
	MaxAttempts    int
	RetryBaseDelay time.Duration
	SendDelay      time.Duration
}

// Option configures a Dispatcher.
type Option func(*DispatcherOptions)

// WithLogger sets the dispatcher logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(opts *DispatcherOptions) {
		opts.Logger = logger
	}
}

// WithEventPublisher sets the broker publisher for event records.
// Without one, event records are marked sent.
func WithEventPublisher(publisher EventPublisher) Option {
	return func(opts *DispatcherOptions) {
		opts.Publisher = publisher
	}
}

// WithAttachments sets the store attachment keys are resolved against.
func WithAttachments(store AttachmentStore) Option {
	return func(opts *DispatcherOptions) {
		opts.Attachments = store
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *metrics.Metrics) Option {
	return func(opts *DispatcherOptions) {
		opts.Metrics = m
	}
}

// WithPollInterval sets how often the outbox is polled.
func WithPollInterval(interval time.Duration) Option {
	return func(opts *DispatcherOptions) {
		opts.PollInterval = interval
	}
}

// WithBatchSize sets how many records are pulled per cycle.
func WithBatchSize(batchSize int) Option {
	return func(opts *DispatcherOptions) {
		opts.BatchSize = batchSize
	}
}

// WithMaxAttempts sets the number of delivery attempts before a record is marked failed.
func WithMaxAttempts(maxAttempts int) Option {
	return func(opts *DispatcherOptions) {
		opts.MaxAttempts = maxAttempts
	}
}

// WithRetryBaseDelay sets the base delay of the exponential backoff.
func WithRetryBaseDelay(delay time.Duration) Option {
	return func(opts *DispatcherOptions) {
		opts.RetryBaseDelay = delay
	}
}

// WithSendDelay sets the pause between two emails, to stay under provider rate limits.
func WithSendDelay(delay time.Duration) Option {
	return func(opts *DispatcherOptions) {
		opts.SendDelay = delay
	}
}

// Dispatcher delivers pending outbox records.
type Dispatcher struct {
	repo           Repository
	sender         Sender
	publisher      EventPublisher
	attachments    AttachmentStore
	metrics        *metrics.Metrics
	logger         zerolog.Logger
	pollInterval   time.Duration
	batchSize      int
	maxAttempts    int
	retryBaseDelay time.Duration
	sendDelay      time.Duration
	sleep          func(ctx context.Context, d time.Duration) error
}

// NewDispatcher creates an outbox dispatcher.
func NewDispatcher(repo Repository, sender Sender, options ...Option) *Dispatcher {
	opts := DispatcherOptions{
		Logger:         zerolog.Nop(),
		PollInterval:   defaultPollInterval,
		BatchSize:      defaultBatchSize,
		MaxAttempts:    defaultMaxAttempts,
		RetryBaseDelay: defaultRetryBaseDelay,
	}
	for _, option := range options {
		option(&opts)
	}

	if opts.PollInterval <= 0 {
		opts.PollInterval = defaultPollInterval
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = defaultBatchSize
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = defaultMaxAttempts
	}
	if opts.RetryBaseDelay < 0 {
		opts.RetryBaseDelay = 0
	}
	if opts.SendDelay < 0 {
		opts.SendDelay = 0
	}

	return &Dispatcher{
		repo:           repo,
		sender:         sender,
		publisher:      opts.Publisher,
		attachments:    opts.Attachments,
		metrics:        opts.Metrics,
		logger:         opts.Logger.With().Str("component", "outbox-dispatcher").Logger(),
		pollInterval:   opts.PollInterval,
		batchSize:      opts.BatchSize,
		maxAttempts:    opts.MaxAttempts,
		retryBaseDelay: opts.RetryBaseDelay,
		sendDelay:      opts.SendDelay,
		sleep:          sleepContext,
	}
}

// Run polls the outbox until ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context) error {
	if d.repo == nil || d.sender == nil {
		d.logger.Warn().Msg("outbox dispatcher is disabled: repo or sender is nil")
		return nil
	}

	ticker := time.NewTicker(d.pollInterval)
	defer ticker.Stop()

	d.logger.Info().Dur("poll_interval", d.pollInterval).Msg("outbox dispatcher started")
	d.ProcessOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			d.logger.Info().Msg("outbox dispatcher stopped")
			return nil
		case <-ticker.C:
			d.ProcessOnce(ctx)
		}
	}
}

// ProcessOnce runs one polling cycle and returns the number of records delivered.
func (d *Dispatcher) ProcessOnce(ctx context.Context) int {
	if ctx.Err() != nil {
		return 0
	}

	records, err := d.repo.PullPending(ctx, d.batchSize)
	if err != nil {
		d.logger.Warn().Err(err).Msg("failed to pull pending notifications")
		return 0
	}

	delivered := 0
	emailsSent := 0
	for _, n := range records {
		if ctx.Err() != nil {
			break
		}
		if n.Channel == model.ChannelEmail && emailsSent > 0 && d.sendDelay > 0 {
			if err := d.sleep(ctx, d.sendDelay); err != nil {
				break
			}
		}

		attempts, err := d.deliverWithRetry(ctx, n)
		if n.Channel == model.ChannelEmail {
			emailsSent++
		}
		if err != nil {
			d.logger.Error().Err(err).
				Str("notification_id", n.ID.String()).
				Str("channel", string(n.Channel)).
				Str("kind", n.Kind).
				Int("attempts", attempts).
				Msg("notification delivery failed after retries")
			d.metrics.Notification(string(n.Channel), "failed")
			if markErr := d.repo.MarkFailed(ctx, n.ID.String(), attempts, err.Error()); markErr != nil {
				d.logger.Warn().Err(markErr).Str("notification_id", n.ID.String()).Msg("failed to mark notification as failed")
			}
			continue
		}

		d.metrics.Notification(string(n.Channel), "sent")
		if err := d.repo.MarkSent(ctx, n.ID.String()); err != nil {
			d.logger.Warn().Err(err).Str("notification_id", n.ID.String()).Msg("failed to mark notification as sent")
			continue
		}
		delivered++
	}

	d.refreshBacklogMetrics(ctx)
	return delivered
}

func (d *Dispatcher) deliverWithRetry(ctx context.Context, n model.Notification) (int, error) {
	var lastErr error
	attempts := n.Attempts

	for attempt := 1; attempt <= d.maxAttempts; attempt++ {
		attempts++
		err := d.deliver(ctx, n)
		if err == nil {
			return attempts, nil
		}
		lastErr = err
		d.metrics.Notification(string(n.Channel), "retry")

		if attempt >= d.maxAttempts {
			break
		}
		if err := d.sleep(ctx, d.retryBackoff(attempt)); err != nil {
			return attempts, err
		}
	}

	return attempts, fmt.Errorf("delivery failed after %d attempts: %w", d.maxAttempts, lastErr)
}

func (d *Dispatcher) deliver(ctx context.Context, n model.Notification) error {
	switch n.Channel {
	case model.ChannelEmail:
		email, err := d.render(ctx, n)
		if err != nil {
			return err
		}
		return d.sender.Send(ctx, email)
	case model.ChannelEvent:
		if d.publisher == nil {
			d.logger.Debug().Str("event_type", n.Kind).Msg("no event publisher configured, skipping event")
			return nil
		}
		return d.publisher.Publish(ctx, n.ID.String(), n.Kind, n.Recipient, []byte(n.Body))
	default:
		return fmt.Errorf("unknown notification channel %q", n.Channel)
	}
}

func (d *Dispatcher) render(ctx context.Context, n model.Notification) (Email, error) {
	email := Email{
		To:      splitRecipients(n.Recipient),
		Subject: n.Subject,
		HTML:    n.Body,
	}
	if len(email.To) == 0 {
		return Email{}, fmt.Errorf("notification %s has no recipient", n.ID)
	}
	if n.AttachmentKey == "" {
		return email, nil
	}
	if d.attachments == nil {
		return Email{}, errAttachmentStore
	}

	content, err := d.attachments.Get(ctx, n.AttachmentKey)
	if err != nil {
		return Email{}, fmt.Errorf("failed to load attachment %s: %w", n.AttachmentKey, err)
	}
	name := n.AttachmentName
	if name == "" {
		name = n.AttachmentKey
	}
	email.Attachments = []Attachment{{Filename: name, Content: content}}
	return email, nil
}

func (d *Dispatcher) refreshBacklogMetrics(ctx context.Context) {
	if d.metrics == nil {
		return
	}
	stats, err := d.repo.Stats(ctx)
	if err != nil {
		d.logger.Warn().Err(err).Msg("failed to collect outbox backlog stats")
		return
	}
	d.metrics.OutboxBacklog(stats.Pending, stats.Failed)
}

func (d *Dispatcher) retryBackoff(attempt int) time.Duration {
	if d.retryBaseDelay <= 0 {
		return 0
	}
	const maxDuration = time.Duration(1<<63 - 1)
	delay := d.retryBaseDelay
	for i := 1; i < attempt; i++ {
		if delay > maxDuration/2 {
			return maxDuration
		}
		delay *= 2
	}
	return delay
}

func splitRecipients(s string) []string {
	var out []string
	for _, r := range strings.Split(s, ",") {
		if r = strings.TrimSpace(r); r != "" {
			out = append(out, r)
		}
	}
	return out
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
