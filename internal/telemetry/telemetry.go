// Package telemetry provides a JSONL event stream for recording what a release
// run did. Every pipeline stage, proposal reconciliation, and release outcome
// is recorded as a structured JSON event so CI runs can be audited afterwards.
package telemetry

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"
)

// Event kinds identify the type of telemetry event.
const (
	KindRunStart           = "run_start"
	KindStageStart         = "stage_start"
	KindStageDone          = "stage_done"
	KindProposalReconciled = "proposal_reconciled"
	KindReleaseCreated     = "release_created"
	KindReleaseSkipped     = "release_skipped"
	KindRunDone            = "run_done"
)

// Event represents a single telemetry record. Each event carries a timestamp,
// a kind tag, and optional context identifiers (stage, package) along with
// arbitrary structured data.
type Event struct {
	Timestamp time.Time `json:"ts"`
	Kind      string    `json:"kind"`
	Stage     string    `json:"stage,omitempty"`
	Package   string    `json:"package,omitempty"`
	Data      any       `json:"data,omitempty"`
}

// Emitter writes telemetry events to a JSONL file. It is safe for concurrent
// use by multiple goroutines. A nil *Emitter is a valid no-op emitter.
type Emitter struct {
	file *os.File
	enc  *json.Encoder
	mu   sync.Mutex
	now  func() time.Time
}

// NewEmitter creates a new Emitter that writes JSONL events to the file at
// path. The file is created if it does not exist, or appended to if it does.
func NewEmitter(path string) (*Emitter, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("telemetry: open %s: %w", path, err)
	}
	return &Emitter{
		file: f,
		enc:  json.NewEncoder(f),
		now:  time.Now,
	}, nil
}

// Emit writes a single event to the JSONL file. A zero Timestamp is filled
// with the current time. Calling Emit on a nil Emitter is a no-op.
func (e *Emitter) Emit(evt Event) error {
	if e == nil {
		return nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if evt.Timestamp.IsZero() {
		evt.Timestamp = e.now().UTC()
	}
	if err := e.enc.Encode(evt); err != nil {
		return fmt.Errorf("telemetry: encode event: %w", err)
	}
	return nil
}

// Stage records the start of a named stage and returns a func that records
// its completion with the stage's error, if any.
func (e *Emitter) Stage(name string) func(err error) {
	start := time.Now()
	_ = e.Emit(Event{Kind: KindStageStart, Stage: name})
	return func(err error) {
		data := map[string]any{"duration_ms": time.Since(start).Milliseconds()}
		if err != nil {
			data["error"] = err.Error()
		}
		_ = e.Emit(Event{Kind: KindStageDone, Stage: name, Data: data})
	}
}

// Close flushes and closes the underlying file. Calling Close on a nil
// Emitter is a no-op.
func (e *Emitter) Close() error {
	if e == nil {
		return nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.file.Close(); err != nil {
		return fmt.Errorf("telemetry: close: %w", err)
	}
	return nil
}
