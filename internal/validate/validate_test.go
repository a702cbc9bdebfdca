package validate

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/pulsekit/pulsekit/internal/transport"
	"github.com/pulsekit/pulsekit/pkg/types"
)

func TestBusinessEvent(t *testing.T) {
	r := BusinessEvent("USD", 99, "shop", "pack", "starter")
	assert.True(t, r.OK)

	r = BusinessEvent("usd", 99, "shop", "pack", "starter")
	assert.False(t, r.OK)
	assert.Equal(t, transport.ActionInvalidCurrency, r.Action)
	assert.Equal(t, transport.ParameterCurrency, r.Parameter)
	assert.Equal(t, "usd", r.Reason)

	r = BusinessEvent("USD", -1, "shop", "pack", "starter")
	assert.False(t, r.OK)
	assert.Equal(t, transport.ActionInvalidAmount, r.Action)

	r = BusinessEvent("USD", 99, strings.Repeat("x", 33), "pack", "starter")
	assert.False(t, r.OK)
	assert.Equal(t, transport.ActionInvalidShortString, r.Action)
	assert.Equal(t, transport.ParameterCartType, r.Parameter)

	r = BusinessEvent("USD", 99, "shop", "", "starter")
	assert.False(t, r.OK)
	assert.Equal(t, transport.ActionInvalidEventPartLength, r.Action)
	assert.Equal(t, transport.ParameterItemType, r.Parameter)

	// The item id failure reports the item type as its reason.
	r = BusinessEvent("USD", 99, "shop", "pack", "")
	assert.False(t, r.OK)
	assert.Equal(t, transport.ActionInvalidEventPartLength, r.Action)
	assert.Equal(t, transport.ParameterItemID, r.Parameter)
	assert.Equal(t, "pack", r.Reason)

	r = BusinessEvent("USD", 99, "shop", "pack", "bad#id")
	assert.False(t, r.OK)
	assert.Equal(t, transport.ActionInvalidEventPartCharacters, r.Action)
	assert.Equal(t, "pack", r.Reason)
}

func TestResourceEvent(t *testing.T) {
	currencies := []string{"gems", "gold"}
	itemTypes := []string{"boost", "chest"}

	r := ResourceEvent(types.FlowSource, "gems", 10, "boost", "daily", currencies, itemTypes)
	assert.True(t, r.OK)

	r = ResourceEvent(types.ResourceFlowType(99), "gems", 10, "boost", "daily", currencies, itemTypes)
	assert.False(t, r.OK)
	assert.Equal(t, transport.ActionInvalidFlowType, r.Action)

	r = ResourceEvent(types.FlowSink, "diamonds", 10, "boost", "daily", currencies, itemTypes)
	assert.False(t, r.OK)
	assert.Equal(t, transport.ActionNotFoundInAvailableCurrencies, r.Action)
	assert.Equal(t, "diamonds", r.Reason)

	r = ResourceEvent(types.FlowSink, "gems", 0, "boost", "daily", currencies, itemTypes)
	assert.False(t, r.OK)
	assert.Equal(t, transport.ActionInvalidAmount, r.Action)

	r = ResourceEvent(types.FlowSink, "gems", 10, "potion", "daily", currencies, itemTypes)
	assert.False(t, r.OK)
	assert.Equal(t, transport.ActionNotFoundInAvailableItemTypes, r.Action)

	r = ResourceEvent(types.FlowSink, "gems", 10, "boost", "", currencies, itemTypes)
	assert.False(t, r.OK)
	assert.Equal(t, transport.ParameterItemID, r.Parameter)
}

func TestProgressionEvent(t *testing.T) {
	r := ProgressionEvent(types.ProgressionStart, "world01", "level01", "phase01")
	assert.True(t, r.OK)

	r = ProgressionEvent(types.ProgressionStart, "world01", "", "")
	assert.True(t, r.OK)

	r = ProgressionEvent(types.ProgressionStatus(99), "world01", "", "")
	assert.False(t, r.OK)
	assert.Equal(t, transport.ActionInvalidProgressionStatus, r.Action)

	// Parts must nest: 01, 01+02 or 01+02+03.
	r = ProgressionEvent(types.ProgressionStart, "", "level01", "")
	assert.False(t, r.OK)
	assert.Equal(t, transport.ActionWrongProgressionOrder, r.Action)

	r = ProgressionEvent(types.ProgressionStart, "world01", "", "phase01")
	assert.False(t, r.OK)
	assert.Equal(t, transport.ActionWrongProgressionOrder, r.Action)

	r = ProgressionEvent(types.ProgressionStart, "bad#part", "", "")
	assert.False(t, r.OK)
	assert.Equal(t, transport.ActionInvalidEventPartCharacters, r.Action)
	assert.Equal(t, transport.ParameterProgression01, r.Parameter)

	// Acceptance hinges on part 1; a failing later part still passes
	// but its diagnostic tuple wins.
	r = ProgressionEvent(types.ProgressionStart, "world01", "bad#part", "")
	assert.True(t, r.OK)
	assert.Equal(t, transport.ActionInvalidEventPartCharacters, r.Action)
	assert.Equal(t, transport.ParameterProgression02, r.Parameter)
	assert.Equal(t, "bad#part", r.Reason)
}

func TestDesignEvent(t *testing.T) {
	assert.True(t, DesignEvent("kill").OK)
	assert.True(t, DesignEvent("a:b:c:d:e").OK)

	r := DesignEvent("")
	assert.False(t, r.OK)
	assert.Equal(t, transport.ActionInvalidEventIDLength, r.Action)

	r = DesignEvent("a:b:c:d:e:f")
	assert.False(t, r.OK)
	assert.Equal(t, transport.ActionInvalidEventIDLength, r.Action)

	r = DesignEvent(strings.Repeat("x", 65))
	assert.False(t, r.OK)
	assert.Equal(t, transport.ActionInvalidEventIDLength, r.Action)

	r = DesignEvent("kill::respawn")
	assert.False(t, r.OK)
	assert.Equal(t, transport.ActionInvalidEventIDLength, r.Action)

	r = DesignEvent("kill:re#spawn")
	assert.False(t, r.OK)
	assert.Equal(t, transport.ActionInvalidEventIDCharacters, r.Action)
}

func TestErrorEvent(t *testing.T) {
	assert.True(t, ErrorEvent(types.SeverityInfo, "something went wrong").OK)
	assert.True(t, ErrorEvent(types.SeverityCritical, "").OK)

	r := ErrorEvent(types.ErrorSeverity(99), "message")
	assert.False(t, r.OK)
	assert.Equal(t, transport.ActionInvalidSeverity, r.Action)

	r = ErrorEvent(types.SeverityInfo, strings.Repeat("x", 8193))
	assert.False(t, r.OK)
	assert.Equal(t, transport.ActionInvalidLongString, r.Action)
}

func TestLevelEvent(t *testing.T) {
	assert.True(t, LevelEvent(types.LevelStart, 1, "intro").OK)
	assert.True(t, LevelEvent(types.LevelComplete, -1, "").OK)

	assert.False(t, LevelEvent(types.LevelStatus(99), 1, "intro").OK)
	assert.False(t, LevelEvent(types.LevelStart, -1, "intro").OK)
	assert.False(t, LevelEvent(types.LevelStart, 1, "").OK)
}

func TestKeys(t *testing.T) {
	key := strings.Repeat("a", 32)
	secret := strings.Repeat("b", 40)

	assert.True(t, Keys(key, secret))
	assert.False(t, Keys(key+"a", secret))
	assert.False(t, Keys(key, secret[:39]))
	assert.False(t, Keys(strings.Repeat("-", 32), secret))
	assert.False(t, Keys("", ""))
}

func TestClientTS(t *testing.T) {
	assert.True(t, ClientTS(0))
	assert.True(t, ClientTS(1756500000))
	assert.True(t, ClientTS(MaxClientTS))
	assert.False(t, ClientTS(-1))
	assert.False(t, ClientTS(MaxClientTS+1))
}

func TestEventIDLength(t *testing.T) {
	assert.True(t, EventIDLength("a"))
	assert.True(t, EventIDLength(strings.Repeat("x", 64)))
	assert.True(t, EventIDLength("a:b:c:d:e"))
	assert.False(t, EventIDLength(""))
	assert.False(t, EventIDLength(":a"))
	assert.False(t, EventIDLength("a:"))
	assert.False(t, EventIDLength("a:b:c:d:e:f"))
	assert.False(t, EventIDLength("a:"+strings.Repeat("x", 65)))
}

func TestConnectionType(t *testing.T) {
	for _, v := range []string{"offline", "lan", "wifi", "wwan"} {
		assert.True(t, ConnectionType(v), v)
	}
	assert.False(t, ConnectionType("ethernet"))
	assert.False(t, ConnectionType(""))
}

func TestCustomDimensions(t *testing.T) {
	assert.True(t, CustomDimensions([]string{"ninja", "knight"}))
	assert.False(t, CustomDimensions(nil))
	assert.False(t, CustomDimensions([]string{""}))
	assert.False(t, CustomDimensions([]string{strings.Repeat("x", 33)}))

	many := make([]string, 21)
	for i := range many {
		many[i] = "v"
	}
	assert.False(t, CustomDimensions(many))
}

func TestResourceCurrencies(t *testing.T) {
	assert.True(t, ResourceCurrencies([]string{"gems", "gold"}))
	assert.False(t, ResourceCurrencies([]string{"gems", "gold2"}))
	assert.False(t, ResourceCurrencies([]string{""}))
}

func TestResourceItemTypes(t *testing.T) {
	assert.True(t, ResourceItemTypes([]string{"boost", "daily chest"}))
	assert.False(t, ResourceItemTypes([]string{"bad#type"}))
	assert.False(t, ResourceItemTypes([]string{strings.Repeat("x", 33)}))
}

func TestCustomFields(t *testing.T) {
	out := CustomFields(map[string]any{
		"level":       12,
		"ratio":       0.5,
		"hardcore":    true,
		"server":      "eu-west",
		"bad key":     "dropped",
		"empty_value": "",
		"long_value":  strings.Repeat("x", 257),
		"wrong_type":  []string{"nope"},
	})

	assert.Equal(t, map[string]any{
		"level":    12,
		"ratio":    0.5,
		"hardcore": true,
		"server":   "eu-west",
	}, out)
}

func TestCustomFields_Empty(t *testing.T) {
	assert.Nil(t, CustomFields(nil))
	assert.Nil(t, CustomFields(map[string]any{}))
	assert.Nil(t, CustomFields(map[string]any{"bad key": "x"}))
}

func TestCustomFields_CapsAtFifty(t *testing.T) {
	fields := make(map[string]any, 60)
	for i := 0; i < 60; i++ {
		fields["key_"+strings.Repeat("a", i+1)] = i
	}
	out := CustomFields(fields)
	assert.Len(t, out, 50)
}
