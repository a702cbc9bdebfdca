package store

import (
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "queue.sqlite3"), DefaultOptions())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStore_OpenCreatesSchema(t *testing.T) {
	s := openTestStore(t)
	assert.True(t, s.Ready())

	n, err := s.CountByStatus(StatusNew)
	assert.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestStore_ReopenKeepsRows(t *testing.T) {
	path := filepath.Join(t.TempDir(), "queue.sqlite3")

	s, err := Open(path, DefaultOptions())
	require.NoError(t, err)
	require.NoError(t, s.InsertEvent("design", "sess-1", 100, []byte(`{"category":"design"}`)))
	require.NoError(t, s.Close())

	s, err = Open(path, DefaultOptions())
	require.NoError(t, err)
	defer s.Close()

	payloads, err := s.NewEventPayloads("")
	assert.NoError(t, err)
	require.Len(t, payloads, 1)
	assert.JSONEq(t, `{"category":"design"}`, string(payloads[0]))
}

func TestStore_ClaimDeleteRevertCycle(t *testing.T) {
	s := openTestStore(t)

	for i := 0; i < 3; i++ {
		require.NoError(t, s.InsertEvent("design", "sess-1", int64(100+i), []byte(fmt.Sprintf(`{"n":%d}`, i))))
	}

	require.NoError(t, s.ClaimNew("req-1", ""))

	n, err := s.CountByStatus(StatusNew)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	n, err = s.CountByStatus("req-1")
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	// revert puts everything back for retry
	require.NoError(t, s.RevertRequest("req-1"))
	n, err = s.CountByStatus(StatusNew)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	// claim again and settle by deletion
	require.NoError(t, s.ClaimNew("req-2", ""))
	require.NoError(t, s.DeleteRequest("req-2"))

	payloads, err := s.NewEventPayloads("")
	assert.NoError(t, err)
	assert.Empty(t, payloads)
}

func TestStore_ClaimNewFiltersByCategory(t *testing.T) {
	s := openTestStore(t)

	require.NoError(t, s.InsertEvent("user", "sess-1", 100, []byte(`{"category":"user"}`)))
	require.NoError(t, s.InsertEvent("design", "sess-1", 101, []byte(`{"category":"design"}`)))

	require.NoError(t, s.ClaimNew("req-1", "user"))

	payloads, err := s.NewEventPayloads("")
	require.NoError(t, err)
	require.Len(t, payloads, 1)
	assert.JSONEq(t, `{"category":"design"}`, string(payloads[0]))
}

func TestStore_ResetAllToNewRecoversStuckRows(t *testing.T) {
	s := openTestStore(t)

	require.NoError(t, s.InsertEvent("design", "sess-1", 100, []byte(`{}`)))
	require.NoError(t, s.ClaimNew("crashed-request", ""))

	require.NoError(t, s.ResetAllToNew())

	n, err := s.CountByStatus(StatusNew)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestStore_BoundTimestamp(t *testing.T) {
	s := openTestStore(t)

	for i := 0; i < 5; i++ {
		require.NoError(t, s.InsertEvent("design", "sess-1", int64(100+i), []byte(`{}`)))
	}

	ts, ok, err := s.BoundTimestamp("", 3)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(102), ts)

	payloads, err := s.NewEventPayloadsUpTo("", ts)
	require.NoError(t, err)
	assert.Len(t, payloads, 3)

	// fewer rows than the limit
	_, ok, err = s.BoundTimestamp("", 10)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStore_PayloadsOrderedOldestFirst(t *testing.T) {
	s := openTestStore(t)

	require.NoError(t, s.InsertEvent("design", "sess-1", 300, []byte(`{"n":3}`)))
	require.NoError(t, s.InsertEvent("design", "sess-1", 100, []byte(`{"n":1}`)))
	require.NoError(t, s.InsertEvent("design", "sess-1", 200, []byte(`{"n":2}`)))

	payloads, err := s.NewEventPayloads("")
	require.NoError(t, err)
	require.Len(t, payloads, 3)
	assert.JSONEq(t, `{"n":1}`, string(payloads[0]))
	assert.JSONEq(t, `{"n":3}`, string(payloads[2]))
}

func TestStore_StateRoundTrip(t *testing.T) {
	s := openTestStore(t)

	require.NoError(t, s.SetState("session_num", "7"))
	require.NoError(t, s.SetState("dimension01", "ninja"))

	all, err := s.AllState()
	require.NoError(t, err)
	assert.Equal(t, "7", all["session_num"])
	assert.Equal(t, "ninja", all["dimension01"])

	// empty value deletes
	require.NoError(t, s.SetState("dimension01", ""))
	all, err = s.AllState()
	require.NoError(t, err)
	_, present := all["dimension01"]
	assert.False(t, present)
}

func TestStore_SessionMarkers(t *testing.T) {
	s := openTestStore(t)

	require.NoError(t, s.UpsertSession("sess-old", 100, []byte(`{"session_id":"sess-old"}`)))
	require.NoError(t, s.UpsertSession("sess-current", 200, []byte(`{"session_id":"sess-current"}`)))

	stale, err := s.StaleSessions("sess-current")
	require.NoError(t, err)
	require.Len(t, stale, 1)
	assert.Equal(t, "sess-old", stale[0].SessionID)
	assert.Equal(t, int64(100), stale[0].StartTS)
	assert.JSONEq(t, `{"session_id":"sess-old"}`, string(stale[0].Snapshot))

	require.NoError(t, s.DeleteSession("sess-old"))
	stale, err = s.StaleSessions("sess-current")
	require.NoError(t, err)
	assert.Empty(t, stale)
}

func TestStore_ProgressionRoundTrip(t *testing.T) {
	s := openTestStore(t)

	require.NoError(t, s.SetProgression("world01:level01", 3))
	require.NoError(t, s.SetProgression("world01:level02", 1))

	all, err := s.AllProgression()
	require.NoError(t, err)
	assert.Equal(t, 3, all["world01:level01"])
	assert.Equal(t, 1, all["world01:level02"])

	require.NoError(t, s.DeleteProgression("world01:level01"))
	all, err = s.AllProgression()
	require.NoError(t, err)
	_, present := all["world01:level01"]
	assert.False(t, present)
}

func TestStore_TrimDropsOldestSessions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "queue.sqlite3")

	s, err := Open(path, DefaultOptions())
	require.NoError(t, err)

	payload := make([]byte, 4096)
	for i := range payload {
		payload[i] = byte(i) // incompressible enough for snappy
	}
	for sess := 0; sess < 5; sess++ {
		for i := 0; i < 20; i++ {
			require.NoError(t, s.InsertEvent("design",
				fmt.Sprintf("sess-%d", sess), int64(sess*1000+i), payload))
		}
	}
	require.NoError(t, s.Close())

	// A tiny trim threshold forces the startup trim of the 3 oldest
	// sessions.
	s, err = Open(path, Options{MaxSizeBytes: DefaultMaxSizeBytes, TrimThreshold: 1024})
	require.NoError(t, err)
	defer s.Close()

	payloads, err := s.NewEventPayloads("")
	require.NoError(t, err)
	assert.Len(t, payloads, 40)
}

func TestStore_TooLargeForEvents(t *testing.T) {
	path := filepath.Join(t.TempDir(), "queue.sqlite3")
	s, err := Open(path, Options{MaxSizeBytes: 1, TrimThreshold: 1})
	require.NoError(t, err)
	defer s.Close()

	assert.True(t, s.TooLargeForEvents())
}
