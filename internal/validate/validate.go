// Package validate rejects malformed caller input before it reaches
// the durable queue. Each check failure carries the diagnostic tuple
// reported on the transport side channel.
package validate

import (
	"log"
	"regexp"
	"strconv"

	"github.com/pulsekit/pulsekit/internal/transport"
	"github.com/pulsekit/pulsekit/pkg/types"
)

// Result is the verdict of an event validation. When OK is false the
// remaining fields identify the failed check for diagnostics.
type Result struct {
	OK        bool
	Category  transport.ErrorCategory
	Area      transport.ErrorArea
	Action    transport.ErrorAction
	Parameter transport.ErrorParameter
	Reason    string
}

func fail(area transport.ErrorArea, action transport.ErrorAction, parameter transport.ErrorParameter, reason string) Result {
	return Result{
		Category:  transport.CategoryEventValidation,
		Area:      area,
		Action:    action,
		Parameter: parameter,
		Reason:    reason,
	}
}

var (
	currencyRe     = regexp.MustCompile(`^[A-Z]{3}$`)
	eventPartRe    = regexp.MustCompile(`^[A-Za-z0-9\s\-_.()!?]{1,64}$`)
	eventIDRe      = regexp.MustCompile(`^[A-Za-z0-9\s\-_.()!?]{1,64}(:[A-Za-z0-9\s\-_.()!?]{1,64}){0,4}$`)
	gameKeyRe      = regexp.MustCompile(`^[A-Za-z0-9]{32}$`)
	secretRe       = regexp.MustCompile(`^[A-Za-z0-9]{40}$`)
	connectionRe   = regexp.MustCompile(`^(wwan|wifi|lan|offline)$`)
	currencyNameRe = regexp.MustCompile(`^[A-Za-z]+$`)
	customKeyRe    = regexp.MustCompile(`^[A-Za-z0-9_]{1,64}$`)
)

// MaxClientTS is the largest accepted client timestamp, seconds.
const MaxClientTS = 99999999999

// BusinessEvent validates a purchase event. Checks run in a fixed
// order and the first failure wins.
func BusinessEvent(currency string, amount int64, cartType, itemType, itemID string) Result {
	if !Currency(currency) {
		log.Printf("validate: business event currency must be a 3 letter ISO code, got %q", currency)
		return fail(transport.AreaBusinessEvent, transport.ActionInvalidCurrency, transport.ParameterCurrency, currency)
	}
	if amount < 0 {
		log.Printf("validate: business event amount cannot be negative, got %d", amount)
		return fail(transport.AreaBusinessEvent, transport.ActionInvalidAmount, transport.ParameterAmount, strconv.FormatInt(amount, 10))
	}
	if !ShortString(cartType, true) {
		log.Printf("validate: business event cart type cannot be above 32 characters, got %q", cartType)
		return fail(transport.AreaBusinessEvent, transport.ActionInvalidShortString, transport.ParameterCartType, cartType)
	}
	if !EventPartLength(itemType, false) {
		log.Printf("validate: business event item type must be 1 to 64 characters, got %q", itemType)
		return fail(transport.AreaBusinessEvent, transport.ActionInvalidEventPartLength, transport.ParameterItemType, itemType)
	}
	if !EventPartCharacters(itemType) {
		log.Printf("validate: business event item type has invalid characters: %q", itemType)
		return fail(transport.AreaBusinessEvent, transport.ActionInvalidEventPartCharacters, transport.ParameterItemType, itemType)
	}
	if !EventPartLength(itemID, false) {
		log.Printf("validate: business event item id must be 1 to 64 characters, got %q", itemID)
		return fail(transport.AreaBusinessEvent, transport.ActionInvalidEventPartLength, transport.ParameterItemID, itemType)
	}
	if !EventPartCharacters(itemID) {
		log.Printf("validate: business event item id has invalid characters: %q", itemID)
		return fail(transport.AreaBusinessEvent, transport.ActionInvalidEventPartCharacters, transport.ParameterItemID, itemType)
	}
	return Result{OK: true}
}

// ResourceEvent validates a virtual-currency flow event against the
// configured currency and item type whitelists.
func ResourceEvent(flow types.ResourceFlowType, currency string, amount float64, itemType, itemID string, availableCurrencies, availableItemTypes []string) Result {
	if flow.String() == "" {
		log.Printf("validate: resource event has invalid flow type")
		return fail(transport.AreaResourceEvent, transport.ActionInvalidFlowType, transport.ParameterFlowType, "flow type")
	}
	if currency == "" {
		log.Printf("validate: resource event currency cannot be empty")
		return fail(transport.AreaResourceEvent, transport.ActionStringEmptyOrNull, transport.ParameterCurrency, "currency")
	}
	if !contains(availableCurrencies, currency) {
		log.Printf("validate: resource event currency %q not in configured list", currency)
		return fail(transport.AreaResourceEvent, transport.ActionNotFoundInAvailableCurrencies, transport.ParameterCurrency, currency)
	}
	if amount <= 0 {
		log.Printf("validate: resource event amount must be positive, got %f", amount)
		return fail(transport.AreaResourceEvent, transport.ActionInvalidAmount, transport.ParameterAmount, strconv.FormatFloat(amount, 'f', -1, 64))
	}
	if itemType == "" {
		log.Printf("validate: resource event item type cannot be empty")
		return fail(transport.AreaResourceEvent, transport.ActionStringEmptyOrNull, transport.ParameterItemType, "item type is empty")
	}
	if !EventPartLength(itemType, false) {
		log.Printf("validate: resource event item type must be 1 to 64 characters, got %q", itemType)
		return fail(transport.AreaResourceEvent, transport.ActionInvalidEventPartLength, transport.ParameterItemType, itemType)
	}
	if !EventPartCharacters(itemType) {
		log.Printf("validate: resource event item type has invalid characters: %q", itemType)
		return fail(transport.AreaResourceEvent, transport.ActionInvalidEventPartCharacters, transport.ParameterItemType, itemType)
	}
	if !contains(availableItemTypes, itemType) {
		log.Printf("validate: resource event item type %q not in configured list", itemType)
		return fail(transport.AreaResourceEvent, transport.ActionNotFoundInAvailableItemTypes, transport.ParameterItemType, itemType)
	}
	if !EventPartLength(itemID, false) {
		log.Printf("validate: resource event item id must be 1 to 64 characters, got %q", itemID)
		return fail(transport.AreaResourceEvent, transport.ActionInvalidEventPartLength, transport.ParameterItemID, itemID)
	}
	if !EventPartCharacters(itemID) {
		log.Printf("validate: resource event item id has invalid characters: %q", itemID)
		return fail(transport.AreaResourceEvent, transport.ActionInvalidEventPartCharacters, transport.ParameterItemID, itemID)
	}
	return Result{OK: true}
}

// ProgressionEvent validates a progression event. Hierarchy parts must
// be supplied as 01, 01+02 or 01+02+03. Acceptance hinges on part 1
// alone; later parts still run their checks so the diagnostic tuple
// reflects the deepest failing part.
func ProgressionEvent(status types.ProgressionStatus, part1, part2, part3 string) Result {
	if status.String() == "" {
		log.Printf("validate: progression event has invalid status")
		return fail(transport.AreaProgressionEvent, transport.ActionInvalidProgressionStatus, transport.ParameterProgressionStatus, "Invalid progression")
	}
	if !progressionOrder(part1, part2, part3) {
		log.Printf("validate: progression parts must be set as 01, 01+02 or 01+02+03")
		return fail(transport.AreaProgressionEvent, transport.ActionWrongProgressionOrder, 0, part1+":"+part2+":"+part3)
	}

	out := Result{}
	ok1 := progressionPart(part1, 0, &out)
	progressionPart(part2, 1, &out)
	progressionPart(part3, 2, &out)
	out.OK = ok1
	return out
}

func progressionOrder(part1, part2, part3 string) bool {
	if part3 != "" && (part1 == "" || part2 == "") {
		return false
	}
	if part2 != "" && part1 == "" {
		return false
	}
	return part1 != ""
}

func progressionPart(part string, level int, out *Result) bool {
	if !EventPartLength(part, true) {
		log.Printf("validate: progression part %d must be 64 characters or less, got %q", level+1, part)
		*out = fail(transport.AreaProgressionEvent, transport.ActionInvalidEventPartLength,
			transport.ParameterProgression01+transport.ErrorParameter(level), part)
		return false
	}
	if part != "" && !EventPartCharacters(part) {
		log.Printf("validate: progression part %d has invalid characters: %q", level+1, part)
		*out = fail(transport.AreaProgressionEvent, transport.ActionInvalidEventPartCharacters,
			transport.ParameterProgression01+transport.ErrorParameter(level), part)
		return false
	}
	return true
}

// DesignEvent validates a design event id: 1 to 5 colon separated
// parts, each 1 to 64 characters of the allowed set.
func DesignEvent(eventID string) Result {
	if !EventIDLength(eventID) {
		log.Printf("validate: design event id must be 1 to 5 parts of 64 characters or less, got %q", eventID)
		return fail(transport.AreaDesignEvent, transport.ActionInvalidEventIDLength, transport.ParameterEventID, eventID)
	}
	if !EventIDCharacters(eventID) {
		log.Printf("validate: design event id has invalid characters: %q", eventID)
		return fail(transport.AreaDesignEvent, transport.ActionInvalidEventIDCharacters, transport.ParameterEventID, eventID)
	}
	return Result{OK: true}
}

// ErrorEvent validates an error report: known severity, message under
// 8192 characters (empty allowed).
func ErrorEvent(severity types.ErrorSeverity, message string) Result {
	if severity.String() == "" {
		log.Printf("validate: error event has unsupported severity")
		return fail(transport.AreaErrorEvent, transport.ActionInvalidSeverity, transport.ParameterSeverity, "Invalid severity")
	}
	if !LongString(message, true) {
		log.Printf("validate: error event message cannot be above 8192 characters")
		return fail(transport.AreaErrorEvent, transport.ActionInvalidLongString, transport.ParameterMessage, message)
	}
	return Result{OK: true}
}

// LevelEvent validates a level lifecycle event. Start events require a
// non-negative id and a name.
func LevelEvent(status types.LevelStatus, id int, name string) Result {
	if status.String() == "" {
		log.Printf("validate: level event has invalid status")
		return fail(transport.AreaLevelEvent, transport.ActionInvalidEventPartCharacters, transport.ParameterProgressionStatus, "")
	}
	if status == types.LevelStart {
		if id < 0 {
			log.Printf("validate: level event id cannot be negative")
			return Result{}
		}
		if name == "" {
			log.Printf("validate: level event name cannot be empty")
			return Result{}
		}
	}
	return Result{OK: true}
}

// Keys validates the game key and secret shape before any network use.
func Keys(gameKey, gameSecret string) bool {
	return gameKeyRe.MatchString(gameKey) && secretRe.MatchString(gameSecret)
}

// SDKErrorEvent reports whether a diagnostic event may be sent at all:
// valid keys and a fully mapped tuple.
func SDKErrorEvent(gameKey, gameSecret string, category transport.ErrorCategory, area transport.ErrorArea, action transport.ErrorAction) bool {
	if !Keys(gameKey, gameSecret) {
		log.Printf("validate: cannot report sdk error, game key or secret is malformed")
		return false
	}
	return category.String() != "" && area.String() != "" && action.String() != ""
}

// Currency reports whether s is a 3 letter uppercase ISO currency code.
func Currency(s string) bool {
	return currencyRe.MatchString(s)
}

// EventPartLength bounds one event id part at 64 characters.
func EventPartLength(s string, allowEmpty bool) bool {
	if s == "" {
		return allowEmpty
	}
	return len(s) <= 64
}

// EventPartCharacters restricts one event id part to letters, digits,
// whitespace and -_.()!?.
func EventPartCharacters(s string) bool {
	return eventPartRe.MatchString(s)
}

// EventIDLength checks the 1 to 5 part colon structure.
func EventIDLength(s string) bool {
	if s == "" {
		return false
	}
	parts := 1
	last := -1
	for i := 0; i < len(s); i++ {
		if s[i] != ':' {
			continue
		}
		if i-last-1 < 1 || i-last-1 > 64 {
			return false
		}
		parts++
		last = i
	}
	if len(s)-last-1 < 1 || len(s)-last-1 > 64 {
		return false
	}
	return parts <= 5
}

// EventIDCharacters checks the colon structure and the character set of
// every part.
func EventIDCharacters(s string) bool {
	return eventIDRe.MatchString(s)
}

// ShortString bounds a string at 32 characters.
func ShortString(s string, allowEmpty bool) bool {
	if s == "" {
		return allowEmpty
	}
	return len(s) <= 32
}

// String bounds a string at 64 characters.
func String(s string, allowEmpty bool) bool {
	if s == "" {
		return allowEmpty
	}
	return len(s) <= 64
}

// LongString bounds a string at 8192 characters.
func LongString(s string, allowEmpty bool) bool {
	if s == "" {
		return allowEmpty
	}
	return len(s) <= 8192
}

// Build accepts a build string of at most 32 characters.
func Build(s string) bool {
	return ShortString(s, false)
}

// ConnectionType accepts the known connection type names.
func ConnectionType(s string) bool {
	return connectionRe.MatchString(s)
}

// ClientTS bounds a client timestamp to a sane epoch-seconds range.
func ClientTS(ts int64) bool {
	return ts >= 0 && ts <= MaxClientTS
}

// Dimension accepts an empty value or one present in the configured
// list for its slot.
func Dimension(value string, available []string) bool {
	if value == "" {
		return true
	}
	return contains(available, value)
}

// CustomDimensions validates a configured dimension whitelist: at most
// 20 values of at most 32 characters, none empty.
func CustomDimensions(values []string) bool {
	return stringArray(values, 20, 32, false, "custom dimensions")
}

// ResourceCurrencies validates the configured virtual currency list.
func ResourceCurrencies(values []string) bool {
	if !stringArray(values, 20, 64, false, "resource currencies") {
		return false
	}
	for _, v := range values {
		if !currencyNameRe.MatchString(v) {
			log.Printf("validate: resource currency can only be A-Z, a-z, got %q", v)
			return false
		}
	}
	return true
}

// ResourceItemTypes validates the configured item type list.
func ResourceItemTypes(values []string) bool {
	if !stringArray(values, 20, 32, false, "resource item types") {
		return false
	}
	for _, v := range values {
		if !EventPartCharacters(v) {
			log.Printf("validate: resource item type has invalid characters: %q", v)
			return false
		}
	}
	return true
}

func stringArray(values []string, maxCount, maxLen int, allowNone bool, tag string) bool {
	if len(values) == 0 {
		return allowNone
	}
	if len(values) > maxCount {
		log.Printf("validate: [%s] at most %d values allowed, got %d", tag, maxCount, len(values))
		return false
	}
	for _, v := range values {
		if v == "" {
			log.Printf("validate: [%s] empty value in list", tag)
			return false
		}
		if len(v) > maxLen {
			log.Printf("validate: [%s] value %q exceeds max length %d", tag, v, maxLen)
			return false
		}
	}
	return true
}

// CustomFields sanitizes caller-supplied custom fields: at most 50
// keys, keys matching [A-Za-z0-9_]{1,64}, values numbers, booleans or
// strings of 1 to 256 characters. Offending entries are dropped with a
// log line, never fatal.
func CustomFields(fields map[string]any) map[string]any {
	if len(fields) == 0 {
		return nil
	}

	out := make(map[string]any, len(fields))
	for k, v := range fields {
		if len(out) >= 50 {
			log.Printf("validate: custom fields capped at 50 keys, dropping the rest")
			break
		}
		if !customKeyRe.MatchString(k) {
			log.Printf("validate: custom field key %q rejected", k)
			continue
		}
		switch val := v.(type) {
		case string:
			if len(val) < 1 || len(val) > 256 {
				log.Printf("validate: custom field %q string value length out of range", k)
				continue
			}
			out[k] = val
		case bool, int, int32, int64, uint, uint32, uint64, float32, float64:
			out[k] = val
		default:
			log.Printf("validate: custom field %q has unsupported value type %T", k, v)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// UserID accepts a non-empty custom user id.
func UserID(id string) bool {
	if id == "" {
		log.Printf("validate: user id cannot be empty")
		return false
	}
	return true
}
