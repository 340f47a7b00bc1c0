// Package eventing provides fire-and-forget event publication for
// analytics-style notifications (experiment winners, cache health).
// Publishers never block the caller's primary operation: failures are the
// publisher's problem to log, not the caller's to handle.
package eventing

import (
	"context"
	"sync"

	"github.com/pgclosets/go-common/logger"
)

// Publisher emits named events with an opaque payload.
type Publisher interface {
	// Publish sends data on subject. Implementations are fire-and-forget;
	// a returned error is informational and callers may ignore it.
	Publish(ctx context.Context, subject string, data []byte) error
	// Close releases publisher resources.
	Close() error
}

type logPublisher struct {
	log logger.Logger
}

var _ Publisher = (*logPublisher)(nil)

// NewLogPublisher returns a Publisher that records events to the logger.
// It is the default sink when no transport is configured.
func NewLogPublisher(log logger.Logger) Publisher {
	return &logPublisher{log: log.WithPrefix("event")}
}

func (p *logPublisher) Publish(_ context.Context, subject string, data []byte) error {
	p.log.Info("%s %s", subject, string(data))
	return nil
}

func (p *logPublisher) Close() error {
	return nil
}

// CapturePublisher collects published events in memory for assertions in
// tests.
type CapturePublisher struct {
	mutex  sync.Mutex
	events []CapturedEvent
}

// CapturedEvent is one event recorded by CapturePublisher.
type CapturedEvent struct {
	Subject string
	Data    []byte
}

var _ Publisher = (*CapturePublisher)(nil)

// NewCapturePublisher returns an empty capture publisher.
func NewCapturePublisher() *CapturePublisher {
	return &CapturePublisher{}
}

func (p *CapturePublisher) Publish(_ context.Context, subject string, data []byte) error {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	stored := make([]byte, len(data))
	copy(stored, data)
	p.events = append(p.events, CapturedEvent{Subject: subject, Data: stored})
	return nil
}

func (p *CapturePublisher) Close() error {
	return nil
}

// Events returns a snapshot of everything published so far.
func (p *CapturePublisher) Events() []CapturedEvent {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	out := make([]CapturedEvent, len(p.events))
	copy(out, p.events)
	return out
}
