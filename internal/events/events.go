package events

import (
	"log"

	"github.com/pulsekit/pulsekit/internal/validate"
	"github.com/pulsekit/pulsekit/pkg/types"
)

// AddSessionStartEvent queues the session start event and flushes it
// immediately so the collector learns about the session right away.
func (p *Pipeline) AddSessionStartEvent() {
	if !p.state.SubmissionEnabled() {
		return
	}

	sessionNum := p.state.IncrementSessionNum()

	ev := types.Event{
		"category":    types.CategorySessionStart,
		"session_num": sessionNum,
	}
	p.addDimensions(ev)
	p.addCustomFields(ev, p.state.ValidatedCustomFields(nil))
	p.addEventToStore(ev)

	log.Printf("events: add SESSION START event")

	p.ProcessEvents(types.CategorySessionStart, false)
}

// AddSessionEndEvent queues the session end event with the elapsed
// session length and flushes the whole queue.
func (p *Pipeline) AddSessionEndEvent() {
	if !p.state.SubmissionEnabled() {
		return
	}

	length := p.state.CurrentSessionLength()
	if length < 0 {
		log.Printf("events: session length negative, resetting to 0")
		length = 0
	}

	ev := types.Event{
		"category": types.CategorySessionEnd,
		"length":   length,
	}
	p.addDimensions(ev)
	p.addCustomFields(ev, p.state.ValidatedCustomFields(nil))
	p.addEventToStore(ev)

	log.Printf("events: add SESSION END event")

	p.ProcessEvents("", false)
}

// AddBusinessEvent queues a purchase event. amount is in cents.
func (p *Pipeline) AddBusinessEvent(currency string, amount int64, itemType, itemID, cartType string, fields map[string]any) {
	if !p.state.SubmissionEnabled() {
		return
	}

	if r := validate.BusinessEvent(currency, amount, cartType, itemType, itemID); !r.OK {
		p.reportInvalid(r)
		return
	}

	transactionNum := p.state.IncrementTransactionNum()

	ev := types.Event{
		"category":        types.CategoryBusiness,
		"event_id":        itemType + ":" + itemID,
		"currency":        currency,
		"amount":          amount,
		"transaction_num": transactionNum,
	}
	ev.SetIfNotEmpty("cart_type", cartType)
	p.addDimensions(ev)
	p.addCustomFields(ev, p.state.ValidatedCustomFields(fields))

	log.Printf("events: add BUSINESS event: {currency:%s, amount:%d, itemType:%s, itemId:%s, cartType:%s}",
		currency, amount, itemType, itemID, cartType)

	p.addEventToStore(ev)
}

// AddResourceEvent queues a virtual currency flow event. Sink amounts
// are stored negated.
func (p *Pipeline) AddResourceEvent(flow types.ResourceFlowType, currency string, amount float64, itemType, itemID string, fields map[string]any) {
	if !p.state.SubmissionEnabled() {
		return
	}

	r := validate.ResourceEvent(flow, currency, amount, itemType, itemID,
		p.state.AvailableResourceCurrencies(), p.state.AvailableResourceItemTypes())
	if !r.OK {
		p.reportInvalid(r)
		return
	}

	if flow == types.FlowSink {
		amount = -amount
	}

	ev := types.Event{
		"category": types.CategoryResource,
		"event_id": flow.String() + ":" + currency + ":" + itemType + ":" + itemID,
		"amount":   amount,
	}
	p.addDimensions(ev)
	p.addCustomFields(ev, p.state.ValidatedCustomFields(fields))

	log.Printf("events: add RESOURCE event: {currency:%s, amount:%f, itemType:%s, itemId:%s}",
		currency, amount, itemType, itemID)

	p.addEventToStore(ev)
}

// AddProgressionEvent queues a progression event. Fail increments the
// persisted attempt counter; Complete stamps and clears it.
func (p *Pipeline) AddProgressionEvent(status types.ProgressionStatus, part1, part2, part3 string, score int, sendScore bool, fields map[string]any) {
	if !p.state.SubmissionEnabled() {
		return
	}

	if r := validate.ProgressionEvent(status, part1, part2, part3); !r.OK {
		p.reportInvalid(r)
		return
	}

	identifier := part1
	if part2 != "" {
		identifier += ":" + part2
		if part3 != "" {
			identifier += ":" + part3
		}
	}

	ev := types.Event{
		"category": types.CategoryProgression,
		"event_id": status.String() + ":" + identifier,
	}

	if sendScore && status != types.ProgressionStart {
		ev["score"] = score
	}

	switch status {
	case types.ProgressionFail:
		p.state.IncrementProgressionTries(identifier)
	case types.ProgressionComplete:
		ev["attempt_num"] = p.state.IncrementProgressionTries(identifier)
		p.state.ClearProgressionTries(identifier)
	}

	p.addDimensions(ev)
	p.addCustomFields(ev, p.state.ValidatedCustomFields(fields))

	log.Printf("events: add PROGRESSION event: {status:%s, progression:%s, score:%d}",
		status, identifier, score)

	p.addEventToStore(ev)
}

// AddDesignEvent queues a design event with an optional value.
func (p *Pipeline) AddDesignEvent(eventID string, value float64, sendValue bool, fields map[string]any) {
	if !p.state.SubmissionEnabled() {
		return
	}

	if r := validate.DesignEvent(eventID); !r.OK {
		p.reportInvalid(r)
		return
	}

	ev := types.Event{
		"category": types.CategoryDesign,
		"event_id": eventID,
	}
	if sendValue {
		ev["value"] = value
	}
	p.addCustomFields(ev, p.state.ValidatedCustomFields(fields))
	p.addDimensions(ev)

	log.Printf("events: add DESIGN event: {eventId:%s, value:%f}", eventID, value)

	p.addEventToStore(ev)
}

// AddErrorEvent queues an error report. function and line, when set,
// point at the reporting call site.
func (p *Pipeline) AddErrorEvent(severity types.ErrorSeverity, message, function string, line int, fields map[string]any, skipFields bool) {
	if !p.state.SubmissionEnabled() {
		return
	}

	if r := validate.ErrorEvent(severity, message); !r.OK {
		p.reportInvalid(r)
		return
	}

	ev := types.Event{
		"category": types.CategoryError,
		"severity": severity.String(),
		"message":  message,
	}
	if function != "" {
		if len(function) > 256 {
			function = function[:256]
		}
		ev["function_name"] = function
		if line >= 0 {
			ev["line_number"] = line
		}
	}
	if !skipFields {
		p.addCustomFields(ev, p.state.ValidatedCustomFields(fields))
	}
	p.addDimensions(ev)

	log.Printf("events: add ERROR event: {severity:%s, message:%s}", severity, message)

	p.addEventToStore(ev)
}

// AddLevelEvent queues a level lifecycle event.
func (p *Pipeline) AddLevelEvent(status types.LevelStatus, id int, name string, value int, fields map[string]any) {
	if !p.state.SubmissionEnabled() {
		return
	}

	if r := validate.LevelEvent(status, id, name); !r.OK {
		p.reportInvalid(r)
		return
	}

	ev := types.Event{
		"category":   types.CategoryLevel,
		"status":     status.String(),
		"level_id":   id,
		"level_name": name,
		"value":      value,
	}
	p.addCustomFields(ev, p.state.ValidatedCustomFields(fields))
	p.addDimensions(ev)

	log.Printf("events: add LEVEL event: {status:%s, id:%d, name:%s}", status, id, name)

	p.addEventToStore(ev)
}

// AddSDKInitEvent queues the startup health report. Sent once per
// process start when enabled.
func (p *Pipeline) AddSDKInitEvent() {
	if !p.state.SubmissionEnabled() || !p.opts.EnableSDKInitEvent {
		return
	}

	ev := types.Event{
		"category": types.CategorySDKInit,
		// session num is already incremented by the start event
		"is_first_sdk_init": p.state.SessionNum() == 1,
	}
	ev.Merge(p.healthAnnotations())
	p.addDimensions(ev)

	log.Printf("events: add SDK INIT event")

	p.addEventToStore(ev)
}

// AddHealthEvent queues a periodic runtime health sample.
func (p *Pipeline) AddHealthEvent() {
	if !p.state.SubmissionEnabled() || !p.opts.EnableHealthEvent {
		return
	}

	ev := types.Event{
		"category": types.CategoryHealth,
	}
	ev.Merge(p.healthAnnotations())
	p.addDimensions(ev)

	log.Printf("events: add HEALTH event")

	p.addEventToStore(ev)
}
