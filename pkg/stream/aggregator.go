// Package stream turns the transport's sequence of text deltas into a
// continuously updated view of one in-flight assistant reply.
package stream

import (
	"errors"

	"advisorai/pkg/domain"
	"advisorai/pkg/extract"
)

// State tracks the lifecycle of one aggregated reply.
type State int

const (
	StatePending State = iota
	StateStreaming
	StateCompleted
	StateFailed
)

// ErrTerminal is returned when a delta arrives after the aggregator reached
// a terminal state.
var ErrTerminal = errors.New("stream aggregator already finished")

// Sink receives every published snapshot. A sink whose target has vanished
// (deleted conversation) simply ignores the snapshot; the aggregator never
// learns or cares.
type Sink func(domain.Snapshot)

// Aggregator consumes deltas for a single assistant turn. It re-extracts
// directives from the full accumulated text after every delta and merges
// grounding sources as they arrive. Not safe for concurrent use; a turn's
// deltas are applied sequentially.
type Aggregator struct {
	state   State
	raw     string
	sources []domain.GroundingSource
	last    domain.Snapshot
	sink    Sink
}

// New returns an aggregator in the pending state. sink may be nil.
func New(sink Sink) *Aggregator {
	if sink == nil {
		sink = func(domain.Snapshot) {}
	}
	return &Aggregator{sink: sink}
}

// State reports the current lifecycle state.
func (a *Aggregator) State() State {
	return a.state
}

// Apply concatenates one delta, recomputes the snapshot from the whole
// accumulated text, and publishes it with streaming still in progress.
func (a *Aggregator) Apply(chunk domain.StreamChunk) error {
	if a.state == StateCompleted || a.state == StateFailed {
		return ErrTerminal
	}
	a.state = StateStreaming
	a.raw += chunk.Text
	a.sources = MergeSources(a.sources, chunk.Sources)

	res := extract.Extract(a.raw)
	a.last = domain.Snapshot{
		RawText:     a.raw,
		DisplayText: res.DisplayText,
		Step:        res.Step,
		Chart:       res.Chart,
		Suggestions: res.Suggestions,
		Options:     res.Options,
		Sources:     a.sources,
		IsStreaming: true,
	}
	a.sink(a.last)
	return nil
}

// Complete marks the turn finished and publishes the final snapshot, leaving
// the derived fields exactly as last computed.
func (a *Aggregator) Complete() (domain.Snapshot, error) {
	if a.state == StateCompleted || a.state == StateFailed {
		return domain.Snapshot{}, ErrTerminal
	}
	a.state = StateCompleted
	a.last.IsStreaming = false
	a.sink(a.last)
	return a.last, nil
}

// Fail discards everything streamed so far and publishes a snapshot whose
// only content is the given apology text.
func (a *Aggregator) Fail(apology string) (domain.Snapshot, error) {
	if a.state == StateCompleted || a.state == StateFailed {
		return domain.Snapshot{}, ErrTerminal
	}
	a.state = StateFailed
	a.last = domain.Snapshot{
		RawText:     apology,
		DisplayText: apology,
		IsStreaming: false,
	}
	a.sink(a.last)
	return a.last, nil
}
