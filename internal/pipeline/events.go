// File: internal/pipeline/events.go
// Description: Buffered event sink for the observable pipeline stream.
// Events are purely informational; the sink must never block or fail the
// pipeline, so emission drops on a full buffer instead of waiting.

package pipeline

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/xkilldash9x/chisel-cli/api/schemas"
)

var _ schemas.EventSink = (*ChannelSink)(nil)

// ChannelSink fans pipeline events out to a single consumer over a
// buffered channel.
type ChannelSink struct {
	ch      chan schemas.PipelineEvent
	dropped atomic.Int64

	closeOnce sync.Once
}

// NewChannelSink creates a sink with the given buffer capacity. A zero or
// negative capacity gets a small default so emission stays non-blocking.
func NewChannelSink(buffer int) *ChannelSink {
	if buffer <= 0 {
		buffer = 64
	}
	return &ChannelSink{ch: make(chan schemas.PipelineEvent, buffer)}
}

// Emit delivers an event if buffer space allows and drops it otherwise.
func (s *ChannelSink) Emit(ev schemas.PipelineEvent) {
	if ev.Time.IsZero() {
		ev.Time = time.Now().UTC()
	}
	select {
	case s.ch <- ev:
	default:
		s.dropped.Add(1)
	}
}

// Events exposes the stream for consumption.
func (s *ChannelSink) Events() <-chan schemas.PipelineEvent { return s.ch }

// Dropped reports how many events were discarded on a full buffer.
func (s *ChannelSink) Dropped() int64 { return s.dropped.Load() }

// Close ends the stream. Emit must not be called after Close; the
// orchestrator closes the sink only after Run returns.
func (s *ChannelSink) Close() {
	s.closeOnce.Do(func() { close(s.ch) })
}

// nopSink satisfies EventSink when the caller does not care about events.
type nopSink struct{}

func (nopSink) Emit(schemas.PipelineEvent) {}
