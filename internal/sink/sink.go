// Package sink fans fired alerts out to persistence and live
// subscribers without blocking the tick pipeline.
package sink

import (
	"context"

	"github.com/tickwatch/tickwatch/internal/logger"
	"github.com/tickwatch/tickwatch/internal/models"
)

// AlertWriter appends an alert to durable storage.
type AlertWriter interface {
	InsertAlert(alert *models.Alert) error
}

// Broadcaster pushes an alert to all currently connected subscribers.
type Broadcaster interface {
	Broadcast(alert models.Alert)
}

// Notifier sends an alert over an out-of-band channel. Optional.
type Notifier interface {
	Notify(alert models.Alert) error
}

const defaultQueueSize = 256

// Sink decouples alert delivery from tick processing with a buffered
// queue and a single dispatcher goroutine. Every target is best-effort:
// a storage failure never suppresses the broadcast and vice versa, and
// nothing is retried.
type Sink struct {
	writer      AlertWriter
	broadcaster Broadcaster
	notifier    Notifier

	queue chan models.Alert
	done  chan struct{}
}

// Option configures a Sink.
type Option func(*Sink)

// WithNotifier attaches an optional out-of-band notification target.
func WithNotifier(n Notifier) Option {
	return func(s *Sink) { s.notifier = n }
}

// WithQueueSize overrides the dispatch queue capacity.
func WithQueueSize(n int) Option {
	return func(s *Sink) { s.queue = make(chan models.Alert, n) }
}

// New builds a sink. Run must be called for dispatching to happen.
func New(writer AlertWriter, broadcaster Broadcaster, opts ...Option) *Sink {
	s := &Sink{
		writer:      writer,
		broadcaster: broadcaster,
		queue:       make(chan models.Alert, defaultQueueSize),
		done:        make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Dispatch hands an alert to the dispatcher queue and returns
// immediately. If the queue is full the alert is dropped with a log
// line; tick processing is never stalled by a slow sink target.
func (s *Sink) Dispatch(alert models.Alert) {
	select {
	case s.queue <- alert:
	default:
		logger.Warn("Alert queue full, dropping alert for %s", alert.Symbol)
	}
}

// Run consumes the queue until ctx is cancelled, then drains whatever is
// already queued and returns. Done() is closed on exit.
func (s *Sink) Run(ctx context.Context) {
	defer close(s.done)
	for {
		select {
		case <-ctx.Done():
			for {
				select {
				case alert := <-s.queue:
					s.deliver(alert)
				default:
					return
				}
			}
		case alert := <-s.queue:
			s.deliver(alert)
		}
	}
}

// Done reports dispatcher completion, for orderly shutdown.
func (s *Sink) Done() <-chan struct{} {
	return s.done
}

func (s *Sink) deliver(alert models.Alert) {
	if err := s.writer.InsertAlert(&alert); err != nil {
		logger.Error("Failed to persist alert for %s: %v", alert.Symbol, err)
	}

	s.broadcaster.Broadcast(alert)

	if s.notifier != nil {
		if err := s.notifier.Notify(alert); err != nil {
			logger.Warn("Failed to send alert notification for %s: %v", alert.Symbol, err)
		}
	}
}
