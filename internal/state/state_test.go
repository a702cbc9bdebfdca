package state

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pulsekit/pulsekit/internal/device"
	"github.com/pulsekit/pulsekit/internal/store"
	"github.com/pulsekit/pulsekit/internal/transport"
	"github.com/pulsekit/pulsekit/pkg/types"
)

// fakeInit answers the handshake with a scripted outcome and body,
// recording the request for assertions.
type fakeInit struct {
	outcome transport.Outcome
	resp    map[string]any

	gotAnnotations types.Event
	gotConfigsHash string
}

func (f *fakeInit) SendInit(annotations types.Event, configsHash string) (transport.Outcome, map[string]any) {
	f.gotAnnotations = annotations
	f.gotConfigsHash = configsHash
	return f.outcome, f.resp
}

func newTestState(t *testing.T) (*State, *store.Store) {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "state.sqlite3"), store.DefaultOptions())
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return New(st, device.New()), st
}

func TestEnsurePersistedStates_GeneratesUserID(t *testing.T) {
	s, st := newTestState(t)

	require.NoError(t, s.EnsurePersistedStates())
	assert.True(t, s.Initialized())

	id := s.UserID()
	assert.NotEmpty(t, id)

	// The generated id survives a fresh state over the same store.
	s2 := New(st, device.New())
	require.NoError(t, s2.EnsurePersistedStates())
	assert.Equal(t, id, s2.UserID())
}

func TestEnsurePersistedStates_CustomUserIDWins(t *testing.T) {
	s, _ := newTestState(t)
	s.SetCustomUserID("player-42")
	require.NoError(t, s.EnsurePersistedStates())
	assert.Equal(t, "player-42", s.UserID())
}

func TestEnsurePersistedStates_RestoresCounters(t *testing.T) {
	s, st := newTestState(t)
	require.NoError(t, s.EnsurePersistedStates())

	s.IncrementSessionNum()
	s.IncrementSessionNum()
	s.IncrementTransactionNum()

	s2 := New(st, device.New())
	require.NoError(t, s2.EnsurePersistedStates())
	assert.Equal(t, int64(2), s2.SessionNum())
	assert.Equal(t, int64(1), s2.TransactionNum())
}

func TestEnsurePersistedStates_DimensionWriteThrough(t *testing.T) {
	s, st := newTestState(t)
	s.SetAvailableCustomDimensions01([]string{"ninja"})
	s.SetCustomDimension01("ninja")
	require.NoError(t, s.EnsurePersistedStates())
	assert.Equal(t, "ninja", s.Dimension01())

	s2 := New(st, device.New())
	require.NoError(t, s2.EnsurePersistedStates())
	assert.Equal(t, "ninja", s2.Dimension01())
}

func TestSetCustomDimension_RejectsUnknownValue(t *testing.T) {
	s, _ := newTestState(t)
	s.SetAvailableCustomDimensions01([]string{"ninja", "knight"})

	s.SetCustomDimension01("wizard")
	assert.Empty(t, s.Dimension01())

	s.SetCustomDimension01("knight")
	assert.Equal(t, "knight", s.Dimension01())

	// empty always clears
	s.SetCustomDimension01("")
	assert.Empty(t, s.Dimension01())
}

func TestStartNewSession_AcceptedHandshake(t *testing.T) {
	s, _ := newTestState(t)
	require.NoError(t, s.EnsurePersistedStates())

	tr := &fakeInit{outcome: transport.Ok, resp: map[string]any{
		"enabled":       true,
		"server_ts":     float64(time.Now().Unix() + 120),
		"configs_hash":  "hash-1",
		"ab_id":         "exp-7",
		"ab_variant_id": "b",
	}}
	s.StartNewSession(tr)

	assert.True(t, s.Enabled())
	assert.True(t, s.SessionStarted())
	assert.NotEmpty(t, s.SessionID())
	assert.Equal(t, "hash-1", s.ConfigsHash())
	assert.Equal(t, "exp-7", s.ABTestingID())
	assert.Equal(t, "b", s.ABTestingVariantID())

	// The server clock offset feeds the adjusted timestamp.
	assert.InDelta(t, time.Now().Unix()+120, s.ClientTSAdjusted(), 5)
}

func TestStartNewSession_Unauthorized(t *testing.T) {
	s, _ := newTestState(t)
	require.NoError(t, s.EnsurePersistedStates())

	s.StartNewSession(&fakeInit{outcome: transport.Unauthorized})

	assert.False(t, s.Enabled())
	assert.False(t, s.SessionStarted())
	assert.Empty(t, s.SessionID())
}

func TestStartNewSession_DisabledByRemoteConfig(t *testing.T) {
	s, _ := newTestState(t)
	require.NoError(t, s.EnsurePersistedStates())

	s.StartNewSession(&fakeInit{outcome: transport.Ok, resp: map[string]any{"enabled": false}})

	assert.False(t, s.Enabled())
	assert.False(t, s.SessionStarted())
}

func TestStartNewSession_OfflineFallsBackToCache(t *testing.T) {
	s, st := newTestState(t)
	require.NoError(t, s.EnsurePersistedStates())

	// First run online caches the config.
	s.StartNewSession(&fakeInit{outcome: transport.Ok, resp: map[string]any{
		"enabled":      true,
		"configs_hash": "hash-1",
	}})
	require.True(t, s.Enabled())

	// Second run offline, fresh state over the same store.
	s2 := New(st, device.New())
	require.NoError(t, s2.EnsurePersistedStates())
	s2.StartNewSession(&fakeInit{outcome: transport.NoResponse})

	assert.True(t, s2.Enabled())
	assert.True(t, s2.SessionStarted())
	assert.Equal(t, "hash-1", s2.ConfigsHash())
}

func TestStartNewSession_OfflineWithoutCacheUsesDefaults(t *testing.T) {
	s, _ := newTestState(t)
	require.NoError(t, s.EnsurePersistedStates())

	s.StartNewSession(&fakeInit{outcome: transport.NoResponse})

	assert.True(t, s.Enabled())
	assert.True(t, s.SessionStarted())
}

func TestStartNewSession_SendsCachedConfigsHash(t *testing.T) {
	s, st := newTestState(t)
	require.NoError(t, s.EnsurePersistedStates())

	s.StartNewSession(&fakeInit{outcome: transport.Ok, resp: map[string]any{
		"enabled":      true,
		"configs_hash": "hash-1",
	}})

	s2 := New(st, device.New())
	require.NoError(t, s2.EnsurePersistedStates())
	tr := &fakeInit{outcome: transport.Ok, resp: map[string]any{"enabled": true}}
	s2.StartNewSession(tr)

	assert.Equal(t, "hash-1", tr.gotConfigsHash)
}

func TestStartNewSession_IdentityChangeDropsConfigsHash(t *testing.T) {
	s, st := newTestState(t)
	require.NoError(t, s.EnsurePersistedStates())
	s.StartNewSession(&fakeInit{outcome: transport.Ok, resp: map[string]any{
		"enabled":      true,
		"configs_hash": "hash-1",
	}})

	s2 := New(st, device.New())
	s2.SetCustomUserID("someone-else")
	require.NoError(t, s2.EnsurePersistedStates())

	tr := &fakeInit{outcome: transport.Ok, resp: map[string]any{"enabled": true}}
	s2.StartNewSession(tr)
	assert.Empty(t, tr.gotConfigsHash)
}

func TestStartNewSession_ClearsStaleDimensions(t *testing.T) {
	s, _ := newTestState(t)
	s.SetAvailableCustomDimensions01([]string{"ninja"})
	s.SetCustomDimension01("ninja")
	require.NoError(t, s.EnsurePersistedStates())

	// Shrink the list so the active value is no longer allowed.
	s.SetAvailableCustomDimensions01([]string{"knight"})
	s.StartNewSession(&fakeInit{outcome: transport.Ok, resp: map[string]any{"enabled": true}})

	assert.Empty(t, s.Dimension01())
}

func TestRemoteConfigs_WindowFiltering(t *testing.T) {
	s, _ := newTestState(t)
	require.NoError(t, s.EnsurePersistedStates())

	now := time.Now().Unix()
	s.StartNewSession(&fakeInit{outcome: transport.Ok, resp: map[string]any{
		"enabled": true,
		"configs": []any{
			map[string]any{"key": "active", "value": "yes", "id": "c1", "vsn": float64(1)},
			map[string]any{"key": "expired", "value": "no", "end_ts": float64(now - 100)},
			map[string]any{"key": "future", "value": "no", "start_ts": float64(now + 100)},
			map[string]any{"key": "", "value": "no key"},
			map[string]any{"key": "no_value"},
		},
	}})

	assert.True(t, s.RemoteConfigsReady())
	assert.Equal(t, "yes", s.RemoteConfigValue("active", ""))
	assert.Equal(t, "fallback", s.RemoteConfigValue("expired", "fallback"))
	assert.Equal(t, "fallback", s.RemoteConfigValue("future", "fallback"))
	assert.JSONEq(t, `{"active":"yes"}`, s.RemoteConfigsContent())
}

func TestRemoteConfigs_ListenerNotified(t *testing.T) {
	s, _ := newTestState(t)
	require.NoError(t, s.EnsurePersistedStates())

	var got map[string]any
	s.AddRemoteConfigsListener(func(configs map[string]any) { got = configs })

	s.StartNewSession(&fakeInit{outcome: transport.Ok, resp: map[string]any{
		"enabled": true,
		"configs": []any{
			map[string]any{"key": "speed", "value": float64(3)},
		},
	}})

	require.NotNil(t, got)
	assert.Equal(t, float64(3), got["speed"])
}

func TestRemoteConfigs_ListenerMayUseAccessors(t *testing.T) {
	s, _ := newTestState(t)
	require.NoError(t, s.EnsurePersistedStates())

	// Listeners calling back into the accessors must not block on the
	// state lock held during the handshake.
	var gotValue string
	var gotReady bool
	s.AddRemoteConfigsListener(func(configs map[string]any) {
		gotValue = s.RemoteConfigValue("difficulty", "fallback")
		gotReady = s.RemoteConfigsReady()
	})

	done := make(chan struct{})
	go func() {
		s.StartNewSession(&fakeInit{outcome: transport.Ok, resp: map[string]any{
			"enabled": true,
			"configs": []any{
				map[string]any{"key": "difficulty", "value": "hard"},
			},
		}})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("StartNewSession did not return while notifying listeners")
	}
	assert.Equal(t, "hard", gotValue)
	assert.True(t, gotReady)
}

func TestEventAnnotations(t *testing.T) {
	s, _ := newTestState(t)
	s.SetBuild("1.2.3")
	s.SetExternalUserID("steam-123")
	require.NoError(t, s.EnsurePersistedStates())
	s.StartNewSession(&fakeInit{outcome: transport.Ok, resp: map[string]any{"enabled": true}})
	s.IncrementSessionNum()

	ev := s.EventAnnotations()
	assert.Equal(t, 2, ev["v"])
	assert.NotEmpty(t, ev["event_uuid"])
	assert.Equal(t, s.UserID(), ev["user_id"])
	assert.Equal(t, s.SessionID(), ev["session_id"])
	assert.Equal(t, int64(1), ev["session_num"])
	assert.Equal(t, "1.2.3", ev["build"])
	assert.Equal(t, "steam-123", ev["user_id_ext"])
	assert.NotNil(t, ev["client_ts"])
	assert.NotNil(t, ev["current_session_length"])

	// Distinct uuid per event.
	assert.NotEqual(t, ev["event_uuid"], s.EventAnnotations()["event_uuid"])
}

func TestInitAnnotations(t *testing.T) {
	s, _ := newTestState(t)
	require.NoError(t, s.EnsurePersistedStates())
	s.IncrementSessionNum()

	ev := s.InitAnnotations()
	assert.Equal(t, s.UserID(), ev["user_id"])
	assert.Equal(t, int64(1), ev["session_num"])
	assert.Equal(t, int64(1), ev["random_salt"])
	_, hasBuild := ev["build"]
	assert.False(t, hasBuild)
}

func TestValidatedCustomFields_MergePrecedence(t *testing.T) {
	s, _ := newTestState(t)
	s.SetGlobalCustomFields(map[string]any{"region": "eu", "tier": "gold"})

	out := s.ValidatedCustomFields(map[string]any{"tier": "platinum"})
	assert.Equal(t, "eu", out["region"])
	assert.Equal(t, "platinum", out["tier"])
}

func TestProgressionTries(t *testing.T) {
	s, st := newTestState(t)
	require.NoError(t, s.EnsurePersistedStates())

	assert.Equal(t, 1, s.IncrementProgressionTries("world01:level01"))
	assert.Equal(t, 2, s.IncrementProgressionTries("world01:level01"))

	// Tries survive restart.
	s2 := New(st, device.New())
	require.NoError(t, s2.EnsurePersistedStates())
	assert.Equal(t, 2, s2.ProgressionTries("world01:level01"))

	s2.ClearProgressionTries("world01:level01")
	assert.Equal(t, 0, s2.ProgressionTries("world01:level01"))
}

func TestUpdateTotalSessionTime(t *testing.T) {
	s, st := newTestState(t)
	require.NoError(t, s.EnsurePersistedStates())
	s.StartNewSession(&fakeInit{outcome: transport.Ok, resp: map[string]any{"enabled": true}})

	s.UpdateTotalSessionTime()
	s.EndSession()
	assert.False(t, s.SessionStarted())

	// Near-zero lengths, but persisted.
	s2 := New(st, device.New())
	require.NoError(t, s2.EnsurePersistedStates())
	assert.GreaterOrEqual(t, s2.LastSessionLength(), int64(0))
	assert.GreaterOrEqual(t, s2.TotalSessionLength(), int64(0))
}

func TestSubmissionEnabledSwitch(t *testing.T) {
	s, _ := newTestState(t)
	assert.True(t, s.SubmissionEnabled())
	s.SetSubmissionEnabled(false)
	assert.False(t, s.SubmissionEnabled())
}
