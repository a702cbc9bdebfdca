// Package events is the durable event pipeline: typed event builders
// that validate, annotate and queue events in the store, and the flush
// path that claims queued batches and settles them against the
// collector's verdict.
package events

import (
	"encoding/json"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/pulsekit/pulsekit/internal/device"
	"github.com/pulsekit/pulsekit/internal/state"
	"github.com/pulsekit/pulsekit/internal/store"
	"github.com/pulsekit/pulsekit/internal/transport"
	"github.com/pulsekit/pulsekit/internal/validate"
	"github.com/pulsekit/pulsekit/pkg/types"
)

// ProcessInterval is the default cadence of the recurring flush.
const ProcessInterval = 8 * time.Second

// MaxEventCount bounds one flush batch. Oversized backlogs are sent
// oldest first across multiple flushes.
const MaxEventCount = 500

// Transport is the collector capability the pipeline depends on,
// narrowed to an interface so tests can fake the wire.
type Transport interface {
	SendEvents(events []types.Event) (transport.Outcome, map[string]any)
	SendSDKError(category transport.ErrorCategory, area transport.ErrorArea, action transport.ErrorAction, parameter transport.ErrorParameter, reason string)
}

// Options tunes the pipeline.
type Options struct {
	MaxBatchSize       int
	EnableSDKInitEvent bool
	EnableHealthEvent  bool
}

// Pipeline owns event construction and the flush cycle. All methods
// run on the scheduler worker.
type Pipeline struct {
	store     *store.Store
	state     *state.State
	device    *device.Info
	transport Transport
	opts      Options

	keepRunning bool
}

// New wires a pipeline. The zero MaxBatchSize falls back to the
// default batch bound.
func New(st *store.Store, sta *state.State, dev *device.Info, tr Transport, opts Options) *Pipeline {
	if opts.MaxBatchSize <= 0 {
		opts.MaxBatchSize = MaxEventCount
	}
	return &Pipeline{store: st, state: sta, device: dev, transport: tr, opts: opts}
}

func (p *Pipeline) healthAnnotations() types.Event {
	if p.device == nil {
		return nil
	}
	return p.device.HealthAnnotations()
}

// EnsureQueueRunning arms the recurring flush.
func (p *Pipeline) EnsureQueueRunning() {
	p.keepRunning = true
}

// StopQueue disarms the recurring flush. Queued rows stay in the store
// until a later session re-enables it.
func (p *Pipeline) StopQueue() {
	p.keepRunning = false
}

// ProcessQueue is the recurring flush body. A no-op while the queue is
// stopped.
func (p *Pipeline) ProcessQueue() {
	if !p.keepRunning {
		return
	}
	p.ProcessEvents("", true)
}

// ProcessEvents flushes queued rows with status "new", optionally
// filtered by category. performCleanup additionally recovers rows
// stuck in a claimed status and synthesizes session-end events for
// sessions that never closed.
func (p *Pipeline) ProcessEvents(category string, performCleanup bool) {
	if !p.state.SubmissionEnabled() {
		return
	}

	requestID := uuid.NewString()

	if performCleanup {
		p.cleanupEvents()
		p.fixMissingSessionEndEvents()
	}

	payloads, err := p.store.NewEventPayloads(category)
	if err != nil {
		log.Printf("events: failed to read queue: %v", err)
		return
	}
	if len(payloads) == 0 {
		log.Printf("events: queue empty, nothing to send")
		p.updateSessionSnapshot()
		return
	}

	// Bound oversized backlogs to the oldest rows by timestamp so the
	// claim covers exactly the selected set.
	boundTS := int64(0)
	bounded := false
	if len(payloads) > p.opts.MaxBatchSize {
		ts, ok, err := p.store.BoundTimestamp(category, p.opts.MaxBatchSize)
		if err != nil || !ok {
			return
		}
		boundTS, bounded = ts, true
		if payloads, err = p.store.NewEventPayloadsUpTo(category, ts); err != nil {
			log.Printf("events: failed to read bounded queue: %v", err)
			return
		}
	}

	log.Printf("events: sending %d event(s)", len(payloads))

	if bounded {
		err = p.store.ClaimNewUpTo(requestID, category, boundTS)
	} else {
		err = p.store.ClaimNew(requestID, category)
	}
	if err != nil {
		log.Printf("events: failed to claim batch: %v", err)
		return
	}

	batch := make([]types.Event, 0, len(payloads))
	for _, raw := range payloads {
		var ev types.Event
		if err := json.Unmarshal(raw, &ev); err != nil {
			// A single corrupt row never blocks the batch.
			log.Printf("events: skipping undecodable queued event: %v", err)
			continue
		}
		if _, present := ev["client_ts"]; present && !validate.ClientTS(ev.ClientTS()) {
			delete(ev, "client_ts")
		}
		batch = append(batch, ev)
	}

	outcome, body := p.transport.SendEvents(batch)
	switch outcome {
	case transport.Ok:
		if err := p.store.DeleteRequest(requestID); err != nil {
			log.Printf("events: failed to delete sent batch: %v", err)
			return
		}
		log.Printf("events: %d event(s) sent", len(batch))
	case transport.NoResponse:
		log.Printf("events: failed to reach collector, retrying next flush")
		if err := p.store.RevertRequest(requestID); err != nil {
			log.Printf("events: failed to revert batch: %v", err)
		}
	default:
		// Any answered request counts as processed: the collector saw
		// the payload and retrying would only duplicate or re-fail.
		if outcome == transport.BadRequest {
			if rejected, ok := body["events"].([]any); ok {
				log.Printf("events: %d event(s) sent, %d failed server validation", len(batch), len(rejected))
			} else {
				log.Printf("events: batch rejected by collector")
			}
		} else {
			log.Printf("events: failed to send events: %s", outcome)
		}
		if err := p.store.DeleteRequest(requestID); err != nil {
			log.Printf("events: failed to delete rejected batch: %v", err)
		}
	}
}

// cleanupEvents resets rows stuck in a claimed status after a crash
// between claim and settle.
func (p *Pipeline) cleanupEvents() {
	if err := p.store.ResetAllToNew(); err != nil {
		log.Printf("events: cleanup failed: %v", err)
	}
}

// fixMissingSessionEndEvents synthesizes a session-end event for every
// continuity marker left by a session that never closed, using its last
// snapshot. Length is the span from session start to the snapshot's
// timestamp, clamped at zero.
func (p *Pipeline) fixMissingSessionEndEvents() {
	if !p.state.SubmissionEnabled() {
		return
	}

	sessions, err := p.store.StaleSessions(p.state.SessionID())
	if err != nil {
		log.Printf("events: failed to read stale sessions: %v", err)
		return
	}
	if len(sessions) == 0 {
		return
	}

	log.Printf("events: %d session(s) located with missing session_end event", len(sessions))

	for _, session := range sessions {
		var endEvent types.Event
		if err := json.Unmarshal(session.Snapshot, &endEvent); err != nil {
			log.Printf("events: skipping undecodable session snapshot: %v", err)
			continue
		}

		length := endEvent.ClientTS() - session.StartTS
		if length < 0 {
			length = 0
		}

		endEvent["category"] = types.CategorySessionEnd
		endEvent["length"] = length
		p.addEventToStore(endEvent)
	}
}

// addEventToStore annotates an event and queues it durably. Events in
// non-critical categories are blocked while the store exceeds its size
// ceiling.
func (p *Pipeline) addEventToStore(data types.Event) {
	if !p.state.SubmissionEnabled() {
		return
	}
	if !p.store.Ready() {
		log.Printf("events: could not add event, datastore not ready")
		return
	}
	if !p.state.Initialized() {
		log.Printf("events: could not add event, sdk is not initialized")
		return
	}

	category := data.Category()
	if p.store.TooLargeForEvents() && !criticalCategory(category) {
		log.Printf("events: database too large, event blocked")
		p.transport.SendSDKError(transport.CategoryDatabase, transport.AreaAddEventsToStore,
			transport.ActionDatabaseTooLarge, 0, "")
		return
	}

	ev := p.state.EventAnnotations()
	ev.Merge(data)

	payload, err := json.Marshal(ev)
	if err != nil {
		log.Printf("events: failed to encode event: %v", err)
		return
	}

	if err := p.store.InsertEvent(ev.Category(), ev.SessionID(), ev.ClientTS(), payload); err != nil {
		log.Printf("events: failed to queue event: %v", err)
		return
	}

	// The continuity marker tracks the last event of the open session;
	// the end event closes it instead.
	if category == types.CategorySessionEnd {
		if err := p.store.DeleteSession(ev.SessionID()); err != nil {
			log.Printf("events: failed to close session marker: %v", err)
		}
	} else {
		p.updateSessionSnapshot()
	}
}

// updateSessionSnapshot refreshes the continuity marker of the open
// session with a current annotation snapshot, the basis for a
// synthesized session-end after an unclean shutdown.
func (p *Pipeline) updateSessionSnapshot() {
	if !p.state.SessionStarted() {
		return
	}

	ev := p.state.EventAnnotations()
	p.addDimensions(ev)
	p.addCustomFields(ev, p.state.ValidatedCustomFields(nil))

	payload, err := json.Marshal(ev)
	if err != nil {
		log.Printf("events: failed to encode session snapshot: %v", err)
		return
	}
	if err := p.store.UpsertSession(ev.SessionID(), p.state.SessionStart(), payload); err != nil {
		log.Printf("events: failed to update session snapshot: %v", err)
	}
}

func (p *Pipeline) addDimensions(ev types.Event) {
	ev.SetIfNotEmpty("custom_01", p.state.Dimension01())
	ev.SetIfNotEmpty("custom_02", p.state.Dimension02())
	ev.SetIfNotEmpty("custom_03", p.state.Dimension03())
}

func (p *Pipeline) addCustomFields(ev types.Event, fields map[string]any) {
	if len(fields) > 0 {
		ev["custom_fields"] = fields
	}
}

func (p *Pipeline) reportInvalid(r validate.Result) {
	p.transport.SendSDKError(r.Category, r.Area, r.Action, r.Parameter, r.Reason)
}

// criticalCategory reports whether a category bypasses the size
// ceiling: session lifecycle and purchases are never dropped locally.
func criticalCategory(category string) bool {
	switch category {
	case types.CategorySessionStart, types.CategorySessionEnd, types.CategoryBusiness:
		return true
	}
	return false
}
