// Package types provides the core data types shared by the pulsekit SDK.
package types

// Event categories as they appear on the wire and in the local queue.
const (
	CategorySessionStart = "user"
	CategorySessionEnd   = "session_end"
	CategoryDesign       = "design"
	CategoryBusiness     = "business"
	CategoryProgression  = "progression"
	CategoryResource     = "resource"
	CategoryError        = "error"
	CategorySDKInit      = "sdk_init"
	CategoryHealth       = "health"
	CategoryLevel        = "level"
)

// Event is the canonical event record: field name to value. Typed event
// constructors build these; they are serialized only at the store and
// transport boundaries.
type Event map[string]any

// Category returns the event's category field, or "" when absent.
func (e Event) Category() string {
	if c, ok := e["category"].(string); ok {
		return c
	}
	return ""
}

// SessionID returns the event's session_id field, or "" when absent.
func (e Event) SessionID() string {
	if s, ok := e["session_id"].(string); ok {
		return s
	}
	return ""
}

// ClientTS returns the event's client timestamp, or 0 when absent.
// Timestamps survive a JSON round trip as float64.
func (e Event) ClientTS() int64 {
	switch v := e["client_ts"].(type) {
	case int64:
		return v
	case float64:
		return int64(v)
	case int:
		return int64(v)
	}
	return 0
}

// SetIfNotEmpty adds key=value only when value is a non-empty string.
func (e Event) SetIfNotEmpty(key, value string) {
	if value != "" {
		e[key] = value
	}
}

// Merge copies all fields from other into e, overwriting on conflict.
func (e Event) Merge(other Event) {
	for k, v := range other {
		e[k] = v
	}
}
