// Package state holds the cross-session SDK state: user identity,
// session and transaction counters, custom dimensions, remote config
// and the authorization verdict from the init handshake. Scalars are
// written through to the store so every value survives a restart.
package state

import (
	"encoding/json"
	"log"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pulsekit/pulsekit/internal/device"
	"github.com/pulsekit/pulsekit/internal/store"
	"github.com/pulsekit/pulsekit/internal/validate"
)

// Persisted state keys.
const (
	keyDefaultUserID    = "default_user_id"
	keySessionNum       = "session_num"
	keyTransactionNum   = "transaction_num"
	keyDimension01      = "dimension01"
	keyDimension02      = "dimension02"
	keyDimension03      = "dimension03"
	keyLastSessionTime  = "last_session_time"
	keyTotalSessionTime = "total_session_time"
	keySDKConfigCached  = "sdk_config_cached"
	keyLastIdentifier   = "last_used_identifier"
)

// RemoteConfigsListener is notified with the active remote config
// key/value set whenever a handshake repopulates it.
type RemoteConfigsListener func(configs map[string]any)

// State is the mutable SDK state for one game key. All mutation happens
// on the scheduler worker; the mutex only guards the read-side
// accessors exposed to caller goroutines.
type State struct {
	mu sync.RWMutex

	store  *store.Store
	device *device.Info

	gameKey    string
	gameSecret string

	build          string
	customUserID   string
	externalUserID string
	defaultUserID  string
	identifier     string

	sessionID      string
	sessionStart   int64
	sessionBegan   time.Time
	sessionNum     int64
	transactionNum int64

	dimension01 string
	dimension02 string
	dimension03 string

	availableDimensions01 []string
	availableDimensions02 []string
	availableDimensions03 []string
	availableCurrencies   []string
	availableItemTypes    []string

	globalCustomFields map[string]any
	progressionTries   map[string]int

	lastSessionTime  int64
	totalSessionTime int64

	sdkConfig       map[string]any
	sdkConfigCached map[string]any
	configsHash     string
	abID            string
	abVariantID     string

	clientServerTimeOffset int64

	gameConfigs        map[string]any
	trackingConfigs    []map[string]any
	remoteConfigsReady bool
	listeners          []RemoteConfigsListener

	initAuthorized    bool
	enabled           bool
	initialized       bool
	submissionEnabled bool
}

// New creates state bound to a store and device info. Nothing is read
// from the store until EnsurePersistedStates.
func New(st *store.Store, dev *device.Info) *State {
	return &State{
		store:             st,
		device:            dev,
		submissionEnabled: true,
	}
}

func (s *State) SetKeys(gameKey, gameSecret string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gameKey = gameKey
	s.gameSecret = gameSecret
}

func (s *State) GameKey() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.gameKey
}

func (s *State) GameSecret() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.gameSecret
}

// EnsurePersistedStates restores all cross-session scalars from the
// store, generating and persisting a default user id on first run.
func (s *State) EnsurePersistedStates() error {
	persisted, err := s.store.AllState()
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if id := persisted[keyDefaultUserID]; id != "" {
		s.defaultUserID = id
	} else {
		s.defaultUserID = uuid.NewString()
		if err := s.store.SetState(keyDefaultUserID, s.defaultUserID); err != nil {
			log.Printf("state: failed to persist default user id: %v", err)
		}
	}
	s.cacheIdentifierLocked()

	s.sessionNum = parseInt(persisted[keySessionNum])
	s.transactionNum = parseInt(persisted[keyTransactionNum])

	s.dimension01 = s.restoreScalarLocked(persisted, keyDimension01, s.dimension01)
	s.dimension02 = s.restoreScalarLocked(persisted, keyDimension02, s.dimension02)
	s.dimension03 = s.restoreScalarLocked(persisted, keyDimension03, s.dimension03)

	s.lastSessionTime = parseInt(persisted[keyLastSessionTime])
	s.totalSessionTime = parseInt(persisted[keyTotalSessionTime])

	if raw := persisted[keySDKConfigCached]; raw != "" {
		var cached map[string]any
		if err := json.Unmarshal([]byte(raw), &cached); err != nil {
			log.Printf("state: discarding undecodable cached config: %v", err)
		} else {
			// A cached configs hash only applies to the identity that
			// produced it. An identity change forces a full refetch.
			if last := persisted[keyLastIdentifier]; last != "" && last != s.identifier {
				delete(cached, "configs_hash")
			}
			s.sdkConfigCached = cached
		}
	}

	current := s.currentConfigLocked()
	s.configsHash = optString(current, "configs_hash")
	s.abID = optString(current, "ab_id")
	s.abVariantID = optString(current, "ab_variant_id")

	tries, err := s.store.AllProgression()
	if err != nil {
		return err
	}
	s.progressionTries = tries

	s.initialized = true
	return nil
}

// restoreScalarLocked implements write-through restore: a value set
// before initialization wins and is persisted, otherwise the cached
// value is adopted.
func (s *State) restoreScalarLocked(persisted map[string]string, key, current string) string {
	if current != "" {
		if err := s.store.SetState(key, current); err != nil {
			log.Printf("state: failed to persist %s: %v", key, err)
		}
		return current
	}
	return persisted[key]
}

func (s *State) cacheIdentifierLocked() {
	if s.customUserID != "" {
		s.identifier = s.customUserID
	} else {
		s.identifier = s.defaultUserID
	}
}

// currentConfigLocked returns the active config: live handshake result
// first, then the cached one, then empty.
func (s *State) currentConfigLocked() map[string]any {
	if len(s.sdkConfig) > 0 {
		return s.sdkConfig
	}
	return s.sdkConfigCached
}

func (s *State) Initialized() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.initialized
}

// Enabled reports whether events may be queued: authorized handshake
// and not disabled by remote config.
func (s *State) Enabled() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.enabled
}

// SubmissionEnabled is the host-controlled master switch. When off the
// SDK accepts calls but queues nothing.
func (s *State) SubmissionEnabled() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.submissionEnabled
}

func (s *State) SetSubmissionEnabled(enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.submissionEnabled = enabled
}

func (s *State) SessionStarted() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sessionStart != 0
}

func (s *State) SessionID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sessionID
}

func (s *State) SessionStart() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sessionStart
}

func (s *State) UserID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.identifier
}

// SetCustomUserID overrides the generated user identity. Takes effect
// on the next handshake.
func (s *State) SetCustomUserID(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.customUserID = id
	s.cacheIdentifierLocked()
}

func (s *State) SetExternalUserID(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.externalUserID = id
}

func (s *State) SetBuild(build string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.build = build
}

func (s *State) Build() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.build
}

func (s *State) SetAvailableCustomDimensions01(values []string) {
	if !validate.CustomDimensions(values) {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.availableDimensions01 = values
	log.Printf("state: available custom dimensions 01 set: %v", values)
}

func (s *State) SetAvailableCustomDimensions02(values []string) {
	if !validate.CustomDimensions(values) {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.availableDimensions02 = values
	log.Printf("state: available custom dimensions 02 set: %v", values)
}

func (s *State) SetAvailableCustomDimensions03(values []string) {
	if !validate.CustomDimensions(values) {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.availableDimensions03 = values
	log.Printf("state: available custom dimensions 03 set: %v", values)
}

func (s *State) SetAvailableResourceCurrencies(values []string) {
	if !validate.ResourceCurrencies(values) {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.availableCurrencies = values
	log.Printf("state: available resource currencies set: %v", values)
}

func (s *State) SetAvailableResourceItemTypes(values []string) {
	if !validate.ResourceItemTypes(values) {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.availableItemTypes = values
	log.Printf("state: available resource item types set: %v", values)
}

func (s *State) AvailableResourceCurrencies() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.availableCurrencies
}

func (s *State) AvailableResourceItemTypes() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.availableItemTypes
}

// SetCustomDimension01 sets the active value for dimension slot 1. The
// value must be empty or present in the configured list.
func (s *State) SetCustomDimension01(value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !validate.Dimension(value, s.availableDimensions01) {
		log.Printf("state: custom dimension 01 %q not in available list, ignoring", value)
		return
	}
	s.dimension01 = value
	if err := s.store.SetState(keyDimension01, value); err != nil {
		log.Printf("state: failed to persist dimension01: %v", err)
	}
}

func (s *State) SetCustomDimension02(value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !validate.Dimension(value, s.availableDimensions02) {
		log.Printf("state: custom dimension 02 %q not in available list, ignoring", value)
		return
	}
	s.dimension02 = value
	if err := s.store.SetState(keyDimension02, value); err != nil {
		log.Printf("state: failed to persist dimension02: %v", err)
	}
}

func (s *State) SetCustomDimension03(value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !validate.Dimension(value, s.availableDimensions03) {
		log.Printf("state: custom dimension 03 %q not in available list, ignoring", value)
		return
	}
	s.dimension03 = value
	if err := s.store.SetState(keyDimension03, value); err != nil {
		log.Printf("state: failed to persist dimension03: %v", err)
	}
}

func (s *State) Dimension01() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dimension01
}

func (s *State) Dimension02() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dimension02
}

func (s *State) Dimension03() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dimension03
}

// SetGlobalCustomFields replaces the fields merged into every event.
func (s *State) SetGlobalCustomFields(fields map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.globalCustomFields = fields
}

// ValidatedCustomFields merges the global fields with per-event ones
// (per-event wins) and sanitizes the result.
func (s *State) ValidatedCustomFields(eventFields map[string]any) map[string]any {
	s.mu.RLock()
	merged := make(map[string]any, len(s.globalCustomFields)+len(eventFields))
	for k, v := range s.globalCustomFields {
		merged[k] = v
	}
	s.mu.RUnlock()
	for k, v := range eventFields {
		merged[k] = v
	}
	return validate.CustomFields(merged)
}

// IncrementSessionNum bumps and persists the session counter.
func (s *State) IncrementSessionNum() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessionNum++
	if err := s.store.SetState(keySessionNum, strconv.FormatInt(s.sessionNum, 10)); err != nil {
		log.Printf("state: failed to persist session num: %v", err)
	}
	return s.sessionNum
}

func (s *State) SessionNum() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sessionNum
}

// IncrementTransactionNum bumps and persists the purchase counter.
func (s *State) IncrementTransactionNum() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transactionNum++
	if err := s.store.SetState(keyTransactionNum, strconv.FormatInt(s.transactionNum, 10)); err != nil {
		log.Printf("state: failed to persist transaction num: %v", err)
	}
	return s.transactionNum
}

func (s *State) TransactionNum() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.transactionNum
}

// ClientTSAdjusted is the current time corrected by the server clock
// offset learned during the handshake.
func (s *State) ClientTSAdjusted() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ts := time.Now().Unix() + s.clientServerTimeOffset
	if !validate.ClientTS(ts) {
		return time.Now().Unix()
	}
	return ts
}

// CurrentSessionLength is seconds elapsed since session start,
// measured on the monotonic clock.
func (s *State) CurrentSessionLength() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.sessionBegan.IsZero() {
		return 0
	}
	return int64(time.Since(s.sessionBegan).Seconds())
}

// TotalSessionLength is accumulated playtime across all sessions
// including the current one.
func (s *State) TotalSessionLength() int64 {
	s.mu.RLock()
	total := s.totalSessionTime
	began := s.sessionBegan
	s.mu.RUnlock()
	if began.IsZero() {
		return total
	}
	return total + int64(time.Since(began).Seconds())
}

func (s *State) LastSessionLength() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastSessionTime
}

// UpdateTotalSessionTime folds the current session length into the
// persisted playtime counters. Called on suspend and quit.
func (s *State) UpdateTotalSessionTime() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sessionBegan.IsZero() {
		return
	}
	s.lastSessionTime = int64(time.Since(s.sessionBegan).Seconds())
	s.totalSessionTime += s.lastSessionTime

	if err := s.store.SetState(keyLastSessionTime, strconv.FormatInt(s.lastSessionTime, 10)); err != nil {
		log.Printf("state: failed to persist last session time: %v", err)
	}
	if err := s.store.SetState(keyTotalSessionTime, strconv.FormatInt(s.totalSessionTime, 10)); err != nil {
		log.Printf("state: failed to persist total session time: %v", err)
	}
}

// IncrementProgressionTries bumps and persists the attempt counter for
// a progression key.
func (s *State) IncrementProgressionTries(progression string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.progressionTries == nil {
		s.progressionTries = make(map[string]int)
	}
	s.progressionTries[progression]++
	tries := s.progressionTries[progression]
	if err := s.store.SetProgression(progression, tries); err != nil {
		log.Printf("state: failed to persist progression tries: %v", err)
	}
	return tries
}

func (s *State) ProgressionTries(progression string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.progressionTries[progression]
}

// ClearProgressionTries resets the attempt counter after a Complete or
// Fail event.
func (s *State) ClearProgressionTries(progression string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.progressionTries, progression)
	if err := s.store.DeleteProgression(progression); err != nil {
		log.Printf("state: failed to delete progression tries: %v", err)
	}
}

// EndSession clears the in-memory session identity after the end event
// is queued. The persisted counters stay.
func (s *State) EndSession() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessionStart = 0
	s.sessionBegan = time.Time{}
}

func parseInt(s string) int64 {
	if s == "" {
		return 0
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0
	}
	return n
}

func optString(m map[string]any, key string) string {
	if v, ok := m[key].(string); ok {
		return v
	}
	return ""
}

func optBool(m map[string]any, key string, fallback bool) bool {
	if v, ok := m[key].(bool); ok {
		return v
	}
	return fallback
}

func optInt(m map[string]any, key string, fallback int64) int64 {
	switch v := m[key].(type) {
	case int64:
		return v
	case float64:
		return int64(v)
	case int:
		return int64(v)
	}
	return fallback
}
