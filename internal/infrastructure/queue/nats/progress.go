package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/kirillkom/smartdoc-agent/internal/core/domain"
	"github.com/kirillkom/smartdoc-agent/internal/core/ports"
	"github.com/kirillkom/smartdoc-agent/internal/infrastructure/resilience"
)

// ProgressEvent is the wire form of a batch progress update.
type ProgressEvent struct {
	domain.BatchProgress
	PublishedAt time.Time `json:"published_at"`
}

// ProgressPublisher forwards batch progress to a NATS subject. Publish
// failures are logged and dropped; they never stall a batch.
type ProgressPublisher struct {
	conn     *nats.Conn
	subject  string
	executor *resilience.Executor
	logger   *slog.Logger
	now      func() time.Time
}

// PublishResilienceConfig is the default publish policy: one attempt, no
// backoff. Repeated failures open the breaker and later events fail fast.
func PublishResilienceConfig() resilience.Config {
	cfg := resilience.DefaultConfig()
	cfg.RetryMaxAttempts = 1
	cfg.RetryInitialBackoff = 0
	cfg.RetryMaxBackoff = 0
	cfg.BreakerMinRequests = 3
	cfg.BreakerOpenTimeout = 30 * time.Second
	return cfg
}

type Options struct {
	ConnectTimeout       time.Duration
	ReconnectWait        time.Duration
	MaxReconnects        int
	RetryOnFailedConnect *bool
	ResilienceExecutor   *resilience.Executor
	Logger               *slog.Logger
}

var _ ports.ProgressReporter = (*ProgressPublisher)(nil)

func New(url, subject string) (*ProgressPublisher, error) {
	return NewWithOptions(url, subject, Options{})
}

func NewWithOptions(url, subject string, options Options) (*ProgressPublisher, error) {
	connectTimeout := options.ConnectTimeout
	if connectTimeout <= 0 {
		connectTimeout = 2 * time.Second
	}
	reconnectWait := options.ReconnectWait
	if reconnectWait <= 0 {
		reconnectWait = 2 * time.Second
	}
	maxReconnects := options.MaxReconnects
	if maxReconnects <= 0 {
		maxReconnects = 60
	}
	retryOnFailedConnect := true
	if options.RetryOnFailedConnect != nil {
		retryOnFailedConnect = *options.RetryOnFailedConnect
	}
	logger := options.Logger
	if logger == nil {
		logger = slog.Default()
	}
	executor := options.ResilienceExecutor
	if executor == nil {
		executor = resilience.NewExecutor(PublishResilienceConfig()).WithLogger(logger)
	}

	conn, err := nats.Connect(
		url,
		nats.Name("smartdoc-agent"),
		nats.Timeout(connectTimeout),
		nats.ReconnectWait(reconnectWait),
		nats.MaxReconnects(maxReconnects),
		nats.RetryOnFailedConnect(retryOnFailedConnect),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("nats_disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("nats_reconnected", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return &ProgressPublisher{
		conn:     conn,
		subject:  subject,
		executor: executor,
		logger:   logger,
		now:      time.Now,
	}, nil
}

func (p *ProgressPublisher) Close() {
	if p.conn != nil {
		p.conn.Close()
	}
}

func (p *ProgressPublisher) ReportProgress(ctx context.Context, progress domain.BatchProgress) {
	if err := p.Publish(ctx, progress); err != nil {
		p.logger.Warn("progress_publish_failed",
			"document", progress.Document,
			"completed", progress.Completed,
			"total", progress.Total,
			"error", err,
		)
	}
}

func (p *ProgressPublisher) Publish(ctx context.Context, progress domain.BatchProgress) error {
	payload, err := encodeProgress(progress, p.now())
	if err != nil {
		return err
	}
	err = p.executor.Execute(ctx, "nats.publish", func(context.Context) error {
		if err := p.conn.Publish(p.subject, payload); err != nil {
			return fmt.Errorf("nats publish: %w", err)
		}
		return nil
	}, classifyNATSError)
	if err != nil {
		return wrapTemporaryIfNeeded(err)
	}
	return nil
}

// SubscribeProgress delivers decoded events until ctx is done, then drains.
func (p *ProgressPublisher) SubscribeProgress(ctx context.Context, handler func(context.Context, ProgressEvent)) error {
	deliver := func(msg *nats.Msg) {
		if errors.Is(ctx.Err(), context.Canceled) {
			return
		}
		event, err := decodeProgress(msg.Data)
		if err != nil {
			p.logger.Warn("progress_decode_failed", "error", err)
			return
		}
		handler(ctx, event)
	}
	sub, err := resilience.ExecuteValue(ctx, p.executor, "nats.subscribe", func(context.Context) (*nats.Subscription, error) {
		return p.conn.Subscribe(p.subject, deliver)
	}, classifyNATSError)
	if err != nil {
		return fmt.Errorf("nats subscribe: %w", err)
	}

	if err := p.conn.Flush(); err != nil {
		return fmt.Errorf("nats flush: %w", err)
	}

	<-ctx.Done()
	if err := sub.Drain(); err != nil {
		return fmt.Errorf("nats drain subscription: %w", err)
	}
	if err := p.conn.FlushTimeout(5 * time.Second); err != nil {
		return fmt.Errorf("nats flush after drain: %w", err)
	}
	return nil
}

func encodeProgress(progress domain.BatchProgress, at time.Time) ([]byte, error) {
	payload, err := json.Marshal(ProgressEvent{BatchProgress: progress, PublishedAt: at.UTC()})
	if err != nil {
		return nil, fmt.Errorf("encode progress: %w", err)
	}
	return payload, nil
}

func decodeProgress(data []byte) (ProgressEvent, error) {
	var event ProgressEvent
	if err := json.Unmarshal(data, &event); err != nil {
		return ProgressEvent{}, fmt.Errorf("decode progress: %w", err)
	}
	if event.Total <= 0 || event.Completed < 0 || event.Completed > event.Total {
		return ProgressEvent{}, fmt.Errorf("decode progress: inconsistent counts %d/%d", event.Completed, event.Total)
	}
	return event, nil
}

// Watch is SubscribeProgress without the wire envelope.
func (p *ProgressPublisher) Watch(ctx context.Context, fn func(domain.BatchProgress)) error {
	return p.SubscribeProgress(ctx, func(_ context.Context, event ProgressEvent) {
		fn(event.BatchProgress)
	})
}
