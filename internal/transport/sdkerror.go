package transport

import (
	"sync"

	"github.com/spaolacci/murmur3"
)

// ErrorCategory identifies the subsystem a diagnostic event originates
// from.
type ErrorCategory int

const (
	CategoryEventValidation ErrorCategory = iota + 1
	CategoryDatabase
	CategoryInit
	CategoryHTTP
	CategoryJSON
)

func (c ErrorCategory) String() string {
	switch c {
	case CategoryEventValidation:
		return "event_validation"
	case CategoryDatabase:
		return "db"
	case CategoryInit:
		return "init"
	case CategoryHTTP:
		return "http"
	case CategoryJSON:
		return "json"
	}
	return ""
}

// ErrorArea narrows a diagnostic event to the operation that failed.
type ErrorArea int

const (
	AreaBusinessEvent ErrorArea = iota + 1
	AreaResourceEvent
	AreaProgressionEvent
	AreaDesignEvent
	AreaErrorEvent
	AreaLevelEvent
	AreaInitHTTP
	AreaEventsHTTP
	AreaProcessEvents
	AreaAddEventsToStore
)

func (a ErrorArea) String() string {
	switch a {
	case AreaBusinessEvent:
		return "business"
	case AreaResourceEvent:
		return "resource"
	case AreaProgressionEvent:
		return "progression"
	case AreaDesignEvent:
		return "design"
	case AreaErrorEvent:
		return "error"
	case AreaLevelEvent:
		return "level"
	case AreaInitHTTP:
		return "init_http"
	case AreaEventsHTTP:
		return "events_http"
	case AreaProcessEvents:
		return "process_events"
	case AreaAddEventsToStore:
		return "add_events_to_store"
	}
	return ""
}

// ErrorAction names the specific check or step that failed.
type ErrorAction int

const (
	ActionInvalidCurrency ErrorAction = iota + 1
	ActionInvalidShortString
	ActionInvalidEventPartLength
	ActionInvalidEventPartCharacters
	ActionInvalidStore
	ActionInvalidFlowType
	ActionStringEmptyOrNull
	ActionNotFoundInAvailableCurrencies
	ActionInvalidAmount
	ActionNotFoundInAvailableItemTypes
	ActionWrongProgressionOrder
	ActionInvalidEventIDLength
	ActionInvalidEventIDCharacters
	ActionInvalidProgressionStatus
	ActionInvalidSeverity
	ActionInvalidLongString
	ActionDatabaseTooLarge
	ActionDatabaseOpenOrCreate
	ActionJSONError
	ActionFailHTTPJSONDecode
	ActionFailHTTPJSONEncode
)

func (a ErrorAction) String() string {
	switch a {
	case ActionInvalidCurrency:
		return "invalid_currency"
	case ActionInvalidShortString:
		return "invalid_short_string"
	case ActionInvalidEventPartLength:
		return "invalid_event_part_length"
	case ActionInvalidEventPartCharacters:
		return "invalid_event_part_characters"
	case ActionInvalidStore:
		return "invalid_store"
	case ActionInvalidFlowType:
		return "invalid_flow_type"
	case ActionStringEmptyOrNull:
		return "string_empty_or_null"
	case ActionNotFoundInAvailableCurrencies:
		return "not_found_in_available_currencies"
	case ActionInvalidAmount:
		return "invalid_amount"
	case ActionNotFoundInAvailableItemTypes:
		return "not_found_in_available_item_types"
	case ActionWrongProgressionOrder:
		return "wrong_progression_order"
	case ActionInvalidEventIDLength:
		return "invalid_event_id_length"
	case ActionInvalidEventIDCharacters:
		return "invalid_event_id_characters"
	case ActionInvalidProgressionStatus:
		return "invalid_progression_status"
	case ActionInvalidSeverity:
		return "invalid_severity"
	case ActionInvalidLongString:
		return "invalid_long_string"
	case ActionDatabaseTooLarge:
		return "db_too_large"
	case ActionDatabaseOpenOrCreate:
		return "db_open_or_create"
	case ActionJSONError:
		return "json_error"
	case ActionFailHTTPJSONDecode:
		return "fail_http_json_decode"
	case ActionFailHTTPJSONEncode:
		return "fail_http_json_encode"
	}
	return ""
}

// ErrorParameter names the payload field a validation diagnostic refers
// to. Zero means no specific parameter.
type ErrorParameter int

const (
	ParameterCurrency ErrorParameter = iota + 1
	ParameterCartType
	ParameterItemType
	ParameterItemID
	ParameterStore
	ParameterFlowType
	ParameterAmount
	ParameterProgression01
	ParameterProgression02
	ParameterProgression03
	ParameterEventID
	ParameterProgressionStatus
	ParameterSeverity
	ParameterMessage
)

func (p ErrorParameter) String() string {
	switch p {
	case ParameterCurrency:
		return "currency"
	case ParameterCartType:
		return "cart_type"
	case ParameterItemType:
		return "item_type"
	case ParameterItemID:
		return "item_id"
	case ParameterStore:
		return "store"
	case ParameterFlowType:
		return "flow_type"
	case ParameterAmount:
		return "amount"
	case ParameterProgression01:
		return "progression01"
	case ParameterProgression02:
		return "progression02"
	case ParameterProgression03:
		return "progression03"
	case ParameterEventID:
		return "event_id"
	case ParameterProgressionStatus:
		return "progression_status"
	case ParameterSeverity:
		return "severity"
	case ParameterMessage:
		return "message"
	}
	return ""
}

// maxErrorCount caps how many diagnostics are sent per distinct
// (category, area, action) tuple for the lifetime of the client, so a
// persistently failing integration cannot flood the collector.
const maxErrorCount = 10

type errorLimiter struct {
	mu     sync.Mutex
	counts map[uint64]int
}

func newErrorLimiter() *errorLimiter {
	return &errorLimiter{counts: make(map[uint64]int)}
}

func (l *errorLimiter) allow(category ErrorCategory, area ErrorArea, action ErrorAction) bool {
	h := murmur3.New64()
	h.Write([]byte(category.String()))
	h.Write([]byte{0})
	h.Write([]byte(area.String()))
	h.Write([]byte{0})
	h.Write([]byte(action.String()))
	key := h.Sum64()

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.counts[key] >= maxErrorCount {
		return false
	}
	l.counts[key]++
	return true
}
