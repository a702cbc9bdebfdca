package state

import (
	"encoding/json"
	"log"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/pulsekit/pulsekit/internal/transport"
	"github.com/pulsekit/pulsekit/internal/validate"
	"github.com/pulsekit/pulsekit/pkg/types"
)

// InitSender is the handshake capability StartNewSession needs from the
// transport. Narrowed to an interface so tests can fake the collector.
type InitSender interface {
	SendInit(annotations types.Event, configsHash string) (transport.Outcome, map[string]any)
}

// StartNewSession performs the init handshake, applies the resulting
// config and, when the SDK ends up enabled, establishes a new session
// identity. The caller decides what to do with the queue based on
// Enabled afterwards.
func (s *State) StartNewSession(tr InitSender) {
	log.Printf("state: starting a new session")

	s.validateAndFixDimensions()

	outcome, resp := tr.SendInit(s.InitAnnotations(), s.ConfigsHash())
	s.applyInitResponse(outcome, resp)

	if !s.Enabled() {
		log.Printf("state: could not start session, sdk is disabled")
		return
	}

	s.mu.Lock()
	s.sessionID = strings.ToLower(uuid.NewString())
	s.mu.Unlock()

	// sessionStart uses the adjusted clock so it lines up with the
	// client_ts of the events that follow.
	start := s.ClientTSAdjusted()

	s.mu.Lock()
	s.sessionStart = start
	s.sessionBegan = time.Now()
	s.mu.Unlock()
}

func (s *State) applyInitResponse(outcome transport.Outcome, resp map[string]any) {
	s.mu.Lock()

	switch {
	case outcome.Accepted() && resp != nil:
		offset := int64(0)
		if serverTS := optInt(resp, "server_ts", -1); serverTS > 0 {
			offset = serverTS - time.Now().Unix()
		}
		// Stored with the config so the offset survives offline starts.
		resp["time_offset"] = offset

		if outcome != transport.Created {
			// Not modified since our configs hash: the collector omits
			// unchanged remote config fields, fill them from cache.
			cached := s.currentConfigLocked()
			if _, ok := resp["configs"]; !ok {
				if configs, ok := cached["configs"]; ok {
					resp["configs"] = configs
				}
			}
			for _, key := range []string{"configs_hash", "ab_id", "ab_variant_id"} {
				if v, ok := cached[key].(string); ok {
					resp[key] = v
				}
			}
		}

		s.configsHash = optString(resp, "configs_hash")
		s.abID = optString(resp, "ab_id")
		s.abVariantID = optString(resp, "ab_variant_id")

		if raw, err := json.Marshal(resp); err != nil {
			log.Printf("state: failed to encode config for caching: %v", err)
		} else if err := s.store.SetState(keySDKConfigCached, string(raw)); err != nil {
			log.Printf("state: failed to cache config: %v", err)
		}

		s.sdkConfigCached = mergeConfig(s.sdkConfigCached, resp)
		s.sdkConfig = mergeConfig(s.sdkConfig, resp)
		s.initAuthorized = true

	case outcome == transport.Unauthorized:
		log.Printf("state: initialize failed, unauthorized")
		s.initAuthorized = false

	default:
		switch outcome {
		case transport.NoResponse, transport.RequestTimeout:
			log.Printf("state: init call failed, no response (offline or timeout)")
		case transport.BadResponse, transport.JSONEncodeFailed, transport.JSONDecodeFailed:
			log.Printf("state: init call failed, bad response")
		default:
			log.Printf("state: init call failed: %s", outcome)
		}

		if len(s.sdkConfig) == 0 {
			if len(s.sdkConfigCached) > 0 {
				log.Printf("state: using cached init values")
				s.sdkConfig = s.sdkConfigCached
			} else {
				log.Printf("state: using default init values")
				s.sdkConfig = map[string]any{}
			}
		}
		s.initAuthorized = true
	}

	current := s.currentConfigLocked()
	s.enabled = s.initAuthorized && optBool(current, "enabled", true)
	s.clientServerTimeOffset = optInt(current, "time_offset", 0)

	listeners, configs := s.populateConfigurationsLocked(current)
	s.mu.Unlock()

	// Notified outside the lock: listeners may call back into the
	// accessors.
	for _, listener := range listeners {
		listener(configs)
	}
}

func mergeConfig(dst, src map[string]any) map[string]any {
	if dst == nil {
		dst = make(map[string]any, len(src))
	}
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

// validateAndFixDimensions clears any active dimension value no longer
// present in its configured list.
func (s *State) validateAndFixDimensions() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !validate.Dimension(s.dimension01, s.availableDimensions01) {
		log.Printf("state: invalid dimension01 %q, clearing", s.dimension01)
		s.dimension01 = ""
	}
	if !validate.Dimension(s.dimension02, s.availableDimensions02) {
		log.Printf("state: invalid dimension02 %q, clearing", s.dimension02)
		s.dimension02 = ""
	}
	if !validate.Dimension(s.dimension03, s.availableDimensions03) {
		log.Printf("state: invalid dimension03 %q, clearing", s.dimension03)
		s.dimension03 = ""
	}
}

func (s *State) ConfigsHash() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.configsHash
}

func (s *State) ABTestingID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.abID
}

func (s *State) ABTestingVariantID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.abVariantID
}

// EventAnnotations builds the shared field set stamped onto every
// queued event.
func (s *State) EventAnnotations() types.Event {
	s.mu.RLock()
	defer s.mu.RUnlock()

	event := types.Event{
		"v":               2,
		"event_uuid":      uuid.NewString(),
		"user_id":         s.identifier,
		"sdk_version":     s.device.RelevantSDKVersion(),
		"client_ts":       s.clientTSAdjustedLocked(),
		"os_version":      s.device.OSVersion(),
		"manufacturer":    s.device.Manufacturer(),
		"device":          s.device.Model(),
		"platform":        s.device.Platform(),
		"session_id":      s.sessionID,
		"session_num":     s.sessionNum,
		"connection_type": s.device.ConnectionType(),

		"current_session_length":  s.currentSessionLengthLocked(),
		"lifetime_session_length": s.totalSessionTime + s.currentSessionLengthLocked(),
	}

	if len(s.trackingConfigs) > 0 {
		event["configurations_v3"] = s.trackingConfigs
	}

	event.SetIfNotEmpty("ab_id", s.abID)
	event.SetIfNotEmpty("ab_variant_id", s.abVariantID)
	event.SetIfNotEmpty("user_id_ext", s.externalUserID)
	event.SetIfNotEmpty("build", s.build)
	event.SetIfNotEmpty("engine_version", s.device.EngineVersion())

	return event
}

// InitAnnotations builds the handshake request body and records which
// identity it was made for.
func (s *State) InitAnnotations() types.Event {
	s.mu.RLock()
	id := s.identifier
	s.mu.RUnlock()

	if id != "" {
		if err := s.store.SetState(keyLastIdentifier, id); err != nil {
			log.Printf("state: failed to persist last used identifier: %v", err)
		}
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	event := types.Event{
		"user_id":      id,
		"sdk_version":  s.device.RelevantSDKVersion(),
		"os_version":   s.device.OSVersion(),
		"manufacturer": s.device.Manufacturer(),
		"device":       s.device.Model(),
		"platform":     s.device.Platform(),
		"session_id":   s.sessionID,
		"session_num":  s.sessionNum,
		"random_salt":  s.sessionNum,
	}
	event.SetIfNotEmpty("build", s.build)
	event.SetIfNotEmpty("engine_version", s.device.EngineVersion())
	return event
}

// SDKErrorAnnotations builds the device field set for diagnostic
// events. Wired into the transport as its annotations source.
func (s *State) SDKErrorAnnotations() types.Event {
	s.mu.RLock()
	defer s.mu.RUnlock()

	event := types.Event{
		"v":               2,
		"event_uuid":      uuid.NewString(),
		"sdk_version":     s.device.RelevantSDKVersion(),
		"os_version":      s.device.OSVersion(),
		"manufacturer":    s.device.Manufacturer(),
		"device":          s.device.Model(),
		"platform":        s.device.Platform(),
		"connection_type": s.device.ConnectionType(),
	}
	event.SetIfNotEmpty("build", s.build)
	event.SetIfNotEmpty("engine_version", s.device.EngineVersion())
	return event
}

func (s *State) clientTSAdjustedLocked() int64 {
	ts := time.Now().Unix() + s.clientServerTimeOffset
	if !validate.ClientTS(ts) {
		return time.Now().Unix()
	}
	return ts
}

func (s *State) currentSessionLengthLocked() int64 {
	if s.sessionBegan.IsZero() {
		return 0
	}
	return int64(time.Since(s.sessionBegan).Seconds())
}

// populateConfigurationsLocked extracts the remote config entries whose
// time window covers the current adjusted timestamp. It returns the
// registered listeners and a config snapshot for the caller to notify
// with after releasing the lock.
func (s *State) populateConfigurationsLocked(cfg map[string]any) ([]RemoteConfigsListener, map[string]any) {
	s.gameConfigs = make(map[string]any)
	s.trackingConfigs = nil

	now := time.Now().Unix() + s.clientServerTimeOffset

	if configs, ok := cfg["configs"].([]any); ok {
		for _, raw := range configs {
			entry, ok := raw.(map[string]any)
			if !ok || len(entry) == 0 {
				continue
			}
			key := optString(entry, "key")
			value, hasValue := entry["value"]
			startTS := optInt(entry, "start_ts", math.MinInt64)
			endTS := optInt(entry, "end_ts", math.MaxInt64)

			if key == "" || !hasValue || now <= startTS || now >= endTS {
				continue
			}
			s.gameConfigs[key] = value
			s.trackingConfigs = append(s.trackingConfigs, map[string]any{
				"key": key,
				"id":  entry["id"],
				"vsn": entry["vsn"],
			})
		}
	}

	log.Printf("state: remote configs ready with %d configuration(s)", len(s.gameConfigs))
	s.remoteConfigsReady = true

	configs := make(map[string]any, len(s.gameConfigs))
	for k, v := range s.gameConfigs {
		configs[k] = v
	}
	return append([]RemoteConfigsListener(nil), s.listeners...), configs
}

// RemoteConfigsReady reports whether a handshake (or cached config) has
// populated the remote config set.
func (s *State) RemoteConfigsReady() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.remoteConfigsReady
}

// RemoteConfigValue returns the active value for key as a string, or
// fallback when absent.
func (s *State) RemoteConfigValue(key, fallback string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.gameConfigs[key]
	if !ok {
		return fallback
	}
	if str, ok := v.(string); ok {
		return str
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return fallback
	}
	return string(raw)
}

// RemoteConfigsContent returns the whole active remote config set as a
// JSON document.
func (s *State) RemoteConfigsContent() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	raw, err := json.Marshal(s.gameConfigs)
	if err != nil {
		return "{}"
	}
	return string(raw)
}

// AddRemoteConfigsListener registers a callback invoked after every
// handshake with the active remote config set.
func (s *State) AddRemoteConfigsListener(listener RemoteConfigsListener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, listener)
}
