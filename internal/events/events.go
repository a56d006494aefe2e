// Package events defines the lifecycle notifications the session layer and
// the API client emit, and a few sinks to consume them. Sinks are injected
// into the components that emit; there is no process-wide emitter.
package events

import (
	"log/slog"
	"sync/atomic"
	"time"
)

// Kind identifies a lifecycle event.
type Kind string

// Event kinds.
const (
	KindRetry              Kind = "retry"
	KindRetriesExhausted   Kind = "retries_exhausted"
	KindTokenRefreshed     Kind = "token_refreshed"
	KindTokenRefreshFailed Kind = "token_refresh_failed"
	KindTokenRevoked       Kind = "token_revoked"
)

// Event is one notification. Fields not relevant to a kind are zero.
type Event struct {
	Kind       Kind
	Time       time.Time
	Session    string // session variant for token events
	Method     string
	Path       string
	Attempt    int // 1-based attempt that failed
	StatusCode int // 0 for network errors
	Backoff    time.Duration
	Err        error
}

// Sink receives events. Emit must not block for long: it runs on the
// request's goroutine.
type Sink interface {
	Emit(Event)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(Event)

// Emit calls f(e).
func (f SinkFunc) Emit(e Event) { f(e) }

// Discard drops every event.
var Discard Sink = SinkFunc(func(Event) {})

// OrDiscard returns s, or Discard when s is nil.
func OrDiscard(s Sink) Sink {
	if s == nil {
		return Discard
	}

	return s
}

// Multi fans an event out to every sink in order.
func Multi(sinks ...Sink) Sink {
	return SinkFunc(func(e Event) {
		for _, s := range sinks {
			if s != nil {
				s.Emit(e)
			}
		}
	})
}

// ChannelSink forwards events to a channel without blocking. Events that do
// not fit are dropped and counted.
type ChannelSink struct {
	ch      chan<- Event
	dropped atomic.Int64
}

// NewChannelSink returns a sink writing to ch.
func NewChannelSink(ch chan<- Event) *ChannelSink {
	return &ChannelSink{ch: ch}
}

// Emit sends e if the channel has room.
func (c *ChannelSink) Emit(e Event) {
	select {
	case c.ch <- e:
	default:
		c.dropped.Add(1)
	}
}

// Dropped returns how many events did not fit in the channel.
func (c *ChannelSink) Dropped() int64 {
	return c.dropped.Load()
}

// NewLogSink logs every event at Debug, and failures at Warn.
func NewLogSink(logger *slog.Logger) Sink {
	if logger == nil {
		logger = slog.Default()
	}

	return SinkFunc(func(e Event) {
		attrs := []any{slog.String("kind", string(e.Kind))}

		if e.Session != "" {
			attrs = append(attrs, slog.String("session", e.Session))
		}

		if e.Method != "" {
			attrs = append(attrs, slog.String("method", e.Method), slog.String("path", e.Path))
		}

		if e.Attempt > 0 {
			attrs = append(attrs, slog.Int("attempt", e.Attempt))
		}

		if e.StatusCode != 0 {
			attrs = append(attrs, slog.Int("status", e.StatusCode))
		}

		if e.Backoff > 0 {
			attrs = append(attrs, slog.Duration("backoff", e.Backoff))
		}

		if e.Err != nil {
			attrs = append(attrs, slog.String("error", e.Err.Error()))
		}

		switch e.Kind {
		case KindRetriesExhausted, KindTokenRefreshFailed:
			logger.Warn("sdk event", attrs...)
		default:
			logger.Debug("sdk event", attrs...)
		}
	})
}
