package pulsekit

import (
	"log"

	"github.com/pulsekit/pulsekit/pkg/types"
)

// configure runs a pre-init setter, logging and dropping it when
// Initialize already happened.
func (c *Client) configure(name string, apply func(p *pending)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.initialized {
		log.Printf("pulsekit: %s must be called before Initialize, ignoring", name)
		return
	}
	apply(&c.pending)
}

// ConfigureAvailableCustomDimensions01 whitelists the values accepted
// for custom dimension slot 1. At most 20 values of 32 characters.
func (c *Client) ConfigureAvailableCustomDimensions01(values []string) {
	c.configure("ConfigureAvailableCustomDimensions01", func(p *pending) { p.dimensions01 = values })
}

func (c *Client) ConfigureAvailableCustomDimensions02(values []string) {
	c.configure("ConfigureAvailableCustomDimensions02", func(p *pending) { p.dimensions02 = values })
}

func (c *Client) ConfigureAvailableCustomDimensions03(values []string) {
	c.configure("ConfigureAvailableCustomDimensions03", func(p *pending) { p.dimensions03 = values })
}

// ConfigureAvailableResourceCurrencies whitelists virtual currency
// names for resource events.
func (c *Client) ConfigureAvailableResourceCurrencies(values []string) {
	c.configure("ConfigureAvailableResourceCurrencies", func(p *pending) { p.currencies = values })
}

// ConfigureAvailableResourceItemTypes whitelists item types for
// resource events.
func (c *Client) ConfigureAvailableResourceItemTypes(values []string) {
	c.configure("ConfigureAvailableResourceItemTypes", func(p *pending) { p.itemTypes = values })
}

// ConfigureBuild sets the build string attached to every event.
func (c *Client) ConfigureBuild(build string) {
	c.configure("ConfigureBuild", func(p *pending) { p.build = build })
}

// ConfigureUserID overrides the generated user identity.
func (c *Client) ConfigureUserID(id string) {
	c.configure("ConfigureUserID", func(p *pending) { p.customUserID = id })
}

// ConfigureExternalUserID attaches a host-side user identity as
// user_id_ext without replacing the SDK identity.
func (c *Client) ConfigureExternalUserID(id string) {
	c.configure("ConfigureExternalUserID", func(p *pending) { p.externalUserID = id })
}

// ConfigureDeviceModel overrides the reported device model.
func (c *Client) ConfigureDeviceModel(model string) {
	c.device.SetModel(model)
}

// ConfigureDeviceManufacturer overrides the reported manufacturer.
func (c *Client) ConfigureDeviceManufacturer(manufacturer string) {
	c.device.SetManufacturer(manufacturer)
}

// ConfigurePlatform overrides the reported platform name.
func (c *Client) ConfigurePlatform(platform string) {
	c.device.SetPlatform(platform)
}

// ConfigureOSVersion overrides the reported OS version string.
func (c *Client) ConfigureOSVersion(v string) {
	c.device.SetOSVersion(v)
}

// ConfigureGameEngineVersion reports the engine version used by the
// host game.
func (c *Client) ConfigureGameEngineVersion(v string) {
	c.device.SetEngineVersion(v)
}

// ConfigureSDKWrapperVersion reports an engine wrapper build of this
// SDK; it replaces the native sdk_version annotation.
func (c *Client) ConfigureSDKWrapperVersion(v string) {
	c.device.SetSDKWrapperVersion(v)
}

// SetConnectionType updates the reported connection type
// (offline/lan/wifi/wwan). Callable at any time.
func (c *Client) SetConnectionType(connection string) {
	c.device.SetConnectionType(connection)
}

// SetEnabledEventSubmission is the master switch: when off, all event
// APIs silently drop.
func (c *Client) SetEnabledEventSubmission(enabled bool) {
	if c.ending() {
		return
	}
	c.sched.Submit(func() {
		if c.ready() {
			c.state.SetSubmissionEnabled(enabled)
		}
	})
}

// submit runs task on the worker once the client is initialized; the
// task is still enqueued but dropped at run time when it is not.
func (c *Client) submit(what string, task func()) {
	if c.ending() {
		return
	}
	c.sched.Submit(func() {
		if !c.ready() {
			log.Printf("pulsekit: could not add %s, SDK is not initialized", what)
			return
		}
		task()
	})
}

// AddBusinessEvent records a real-money purchase. amount is in cents;
// itemType and itemID form the event hierarchy; cartType is an
// optional purchase context. fields are merged into custom_fields.
func (c *Client) AddBusinessEvent(currency string, amount int64, itemType, itemID, cartType string, fields map[string]any) {
	c.submit("business event", func() {
		c.pipeline.AddBusinessEvent(currency, amount, itemType, itemID, cartType, fields)
	})
}

// AddResourceEvent records a virtual currency flow: FlowSource grants,
// FlowSink spends.
func (c *Client) AddResourceEvent(flow types.ResourceFlowType, currency string, amount float64, itemType, itemID string, fields map[string]any) {
	c.submit("resource event", func() {
		c.pipeline.AddResourceEvent(flow, currency, amount, itemType, itemID, fields)
	})
}

// AddProgressionEvent records progress through up to three hierarchy
// parts. Pass sendScore to attach the score on Complete/Fail.
func (c *Client) AddProgressionEvent(status types.ProgressionStatus, part1, part2, part3 string, score int, sendScore bool, fields map[string]any) {
	c.submit("progression event", func() {
		c.pipeline.AddProgressionEvent(status, part1, part2, part3, score, sendScore, fields)
	})
}

// AddDesignEvent records a custom design event with an optional value.
func (c *Client) AddDesignEvent(eventID string, value float64, sendValue bool, fields map[string]any) {
	c.submit("design event", func() {
		c.pipeline.AddDesignEvent(eventID, value, sendValue, fields)
	})
}

// AddErrorEvent records an error report of up to 8192 characters.
func (c *Client) AddErrorEvent(severity types.ErrorSeverity, message string, fields map[string]any) {
	c.submit("error event", func() {
		c.pipeline.AddErrorEvent(severity, message, "", -1, fields, false)
	})
}

// AddLevelEvent records a level lifecycle transition.
func (c *Client) AddLevelEvent(status types.LevelStatus, id int, name string, value int, fields map[string]any) {
	c.submit("level event", func() {
		c.pipeline.AddLevelEvent(status, id, name, value, fields)
	})
}

// SetCustomDimension01 sets the active value for dimension slot 1; it
// must be empty or whitelisted. Callable before or after Initialize.
func (c *Client) SetCustomDimension01(value string) {
	c.mu.Lock()
	if !c.initialized {
		c.pending.dimension01 = value
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()
	c.sched.Submit(func() { c.state.SetCustomDimension01(value) })
}

func (c *Client) SetCustomDimension02(value string) {
	c.mu.Lock()
	if !c.initialized {
		c.pending.dimension02 = value
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()
	c.sched.Submit(func() { c.state.SetCustomDimension02(value) })
}

func (c *Client) SetCustomDimension03(value string) {
	c.mu.Lock()
	if !c.initialized {
		c.pending.dimension03 = value
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()
	c.sched.Submit(func() { c.state.SetCustomDimension03(value) })
}

// SetGlobalCustomEventFields sets fields merged into every subsequent
// event's custom_fields; per-event fields win on conflict.
func (c *Client) SetGlobalCustomEventFields(fields map[string]any) {
	c.submit("global custom fields", func() {
		c.state.SetGlobalCustomFields(fields)
	})
}

// AddRemoteConfigsListener registers a callback invoked with the
// active remote config set after every handshake. Register before
// Initialize to observe the first one.
func (c *Client) AddRemoteConfigsListener(listener func(configs map[string]any)) {
	c.mu.Lock()
	if !c.initialized {
		c.pending.listeners = append(c.pending.listeners, listener)
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()
	c.sched.Submit(func() {
		if c.ready() {
			c.state.AddRemoteConfigsListener(listener)
		}
	})
}

// IsRemoteConfigsReady reports whether a handshake has populated the
// remote config set.
func (c *Client) IsRemoteConfigsReady() bool {
	if !c.ready() {
		return false
	}
	return c.state.RemoteConfigsReady()
}

// GetRemoteConfigsValueAsString returns the active remote config value
// for key, or fallback when absent.
func (c *Client) GetRemoteConfigsValueAsString(key, fallback string) string {
	if !c.ready() {
		return fallback
	}
	return c.state.RemoteConfigValue(key, fallback)
}

// GetRemoteConfigsContentAsString returns the whole active remote
// config set as a JSON document.
func (c *Client) GetRemoteConfigsContentAsString() string {
	if !c.ready() {
		return "{}"
	}
	return c.state.RemoteConfigsContent()
}

// GetABTestingID returns the A/B test id assigned by the collector.
func (c *Client) GetABTestingID() string {
	if !c.ready() {
		return ""
	}
	return c.state.ABTestingID()
}

// GetABTestingVariantID returns the assigned A/B variant id.
func (c *Client) GetABTestingVariantID() string {
	if !c.ready() {
		return ""
	}
	return c.state.ABTestingVariantID()
}

// GetSessionID returns the current session id, empty when no session
// is open.
func (c *Client) GetSessionID() string {
	if !c.ready() {
		return ""
	}
	return c.state.SessionID()
}

// GetUserID returns the effective user identity.
func (c *Client) GetUserID() string {
	if !c.ready() {
		return ""
	}
	return c.state.UserID()
}

// GetLastSessionLength returns the length in seconds of the most
// recently closed session.
func (c *Client) GetLastSessionLength() int64 {
	if !c.ready() {
		return 0
	}
	return c.state.LastSessionLength()
}

// GetTotalSessionLength returns accumulated playtime in seconds across
// all sessions including the current one.
func (c *Client) GetTotalSessionLength() int64 {
	if !c.ready() {
		return 0
	}
	return c.state.TotalSessionLength()
}
