// Package notify hands events to the external notification system. Delivery,
// retries and reminder cancellation are owned by the consumer of the queue.
package notify

import (
	"context"
	"encoding/json"
	"time"

	"github.com/mind-engage/mindengage-exams/internal/logger"
)

const (
	EventExamSubmitted = "exam.submitted"
	EventExamAssigned  = "exam.assigned"
	EventExamReminder  = "exam.reminder"
)

// Dispatcher sends one event. A nil eta means deliver now.
type Dispatcher interface {
	Send(ctx context.Context, event string, payload map[string]any, eta *time.Time) error
}

// Message is the queued form of an event.
type Message struct {
	Event     string         `json:"event"`
	Payload   map[string]any `json:"payload"`
	ETA       *time.Time     `json:"eta,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

func encode(event string, payload map[string]any, eta *time.Time, now time.Time) ([]byte, error) {
	return json.Marshal(Message{Event: event, Payload: payload, ETA: eta, CreatedAt: now.UTC()})
}

// LogDispatcher writes events to the log. Used when no queue is configured.
type LogDispatcher struct {
	Log *logger.Logger
}

func (d LogDispatcher) Send(_ context.Context, event string, payload map[string]any, eta *time.Time) error {
	if eta != nil {
		d.Log.Info("notification scheduled", "event", event, "eta", eta.UTC(), "payload", payload)
		return nil
	}
	d.Log.Info("notification", "event", event, "payload", payload)
	return nil
}

// FireTimeout bounds a detached send.
var FireTimeout = 5 * time.Second

// Fire sends on a detached goroutine and never reports failure to the caller.
// done, when non-nil, is closed once the send returns.
func Fire(d Dispatcher, log *logger.Logger, event string, payload map[string]any, done chan<- struct{}) {
	FireAt(d, log, event, payload, nil, done)
}

// FireAt is Fire for an event that should be delivered at eta.
func FireAt(d Dispatcher, log *logger.Logger, event string, payload map[string]any, eta *time.Time, done chan<- struct{}) {
	if d == nil {
		if done != nil {
			close(done)
		}
		return
	}
	go func() {
		if done != nil {
			defer close(done)
		}
		defer func() {
			if r := recover(); r != nil {
				log.Error("notification dispatch panicked", "event", event, "panic", r)
			}
		}()
		ctx, cancel := context.WithTimeout(context.Background(), FireTimeout)
		defer cancel()
		if err := d.Send(ctx, event, payload, eta); err != nil {
			log.Warn("notification dispatch failed", "event", event, "error", err)
		}
	}()
}
