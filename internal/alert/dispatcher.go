package alert

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"
)

const publishTimeout = 10 * time.Second

// Dispatcher fans out decision events to webhooks and streaming sinks.
// A nil *Dispatcher is valid and drops every event.
type Dispatcher struct {
	webhooks []WebhookConfig
	sinks    []Sink
	logger   *slog.Logger
	wg       sync.WaitGroup
}

// NewDispatcher creates a Dispatcher. Returns nil if there is nothing to
// dispatch to.
func NewDispatcher(webhooks []WebhookConfig, sinks []Sink, logger *slog.Logger) *Dispatcher {
	if len(webhooks) == 0 && len(sinks) == 0 {
		return nil
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{webhooks: webhooks, sinks: sinks, logger: logger}
}

// FromConfig builds the sinks described by cfg. Unreachable Redis is an
// error; Kafka connects lazily.
func FromConfig(ctx context.Context, cfg Config, logger *slog.Logger) (*Dispatcher, error) {
	var sinks []Sink
	if cfg.Redis.Addr != "" {
		r, err := NewRedisSink(ctx, cfg.Redis)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, r)
	}
	if len(cfg.Kafka.Brokers) > 0 {
		k, err := NewKafkaSink(cfg.Kafka)
		if err != nil {
			for _, s := range sinks {
				_ = s.Close()
			}
			return nil, err
		}
		sinks = append(sinks, k)
	}
	return NewDispatcher(cfg.Webhooks, sinks, logger), nil
}

// Dispatch sends the event to every matching webhook and to all sinks.
// Delivery runs in background goroutines; the caller never blocks.
func (d *Dispatcher) Dispatch(event Event) {
	if d == nil {
		return
	}
	for _, cfg := range d.webhooks {
		if !matches(cfg.Events, event) {
			continue
		}
		d.wg.Add(1)
		go func(cfg WebhookConfig) {
			defer d.wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
			defer cancel()
			if err := Send(ctx, cfg, event); err != nil {
				d.logger.Warn("webhook alert failed", "url", cfg.URL, "proposal_id", event.ProposalID, "error", err)
			}
		}(cfg)
	}
	for _, s := range d.sinks {
		d.wg.Add(1)
		go func(s Sink) {
			defer d.wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
			defer cancel()
			if err := s.Publish(ctx, event); err != nil {
				d.logger.Warn("alert sink failed", "sink", s.Name(), "proposal_id", event.ProposalID, "error", err)
			}
		}(s)
	}
}

// Wait blocks until all in-flight deliveries finish.
func (d *Dispatcher) Wait() {
	if d == nil {
		return
	}
	d.wg.Wait()
}

// Close waits for in-flight deliveries and closes the sinks.
func (d *Dispatcher) Close() error {
	if d == nil {
		return nil
	}
	d.wg.Wait()
	var errs []error
	for _, s := range d.sinks {
		errs = append(errs, s.Close())
	}
	return errors.Join(errs...)
}

func matches(events []string, event Event) bool {
	if len(events) == 0 {
		events = DefaultEvents
	}
	for _, e := range events {
		if strings.EqualFold(e, string(event.Decision)) || e == "*" {
			return true
		}
	}
	return false
}
