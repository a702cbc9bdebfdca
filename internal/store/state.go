package store

import "fmt"

// SetState upserts a persisted scalar. An empty value deletes the key.
func (s *Store) SetState(key, value string) error {
	if value == "" {
		return s.execWrite("DELETE FROM state WHERE key = ?", key)
	}
	return s.execWrite("INSERT OR REPLACE INTO state (key, value) VALUES(?, ?)", key, value)
}

// AllState returns every persisted key/value row.
func (s *Store) AllState() (map[string]string, error) {
	rows, err := s.db.Query("SELECT key, value FROM state")
	if err != nil {
		return nil, fmt.Errorf("store: state query failed: %w", err)
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, fmt.Errorf("store: failed to scan state row: %w", err)
		}
		out[k] = v
	}
	return out, rows.Err()
}

// UpsertSession writes the continuity marker for an open session: its
// start timestamp and the last event snapshot seen for it.
func (s *Store) UpsertSession(sessionID string, startTS int64, snapshot []byte) error {
	return s.execWrite(
		"INSERT OR REPLACE INTO session (session_id, timestamp, event) VALUES(?, ?, ?)",
		sessionID, startTS, encodeBlob(snapshot))
}

// DeleteSession removes a session continuity marker, done when the
// session's end event is durably queued.
func (s *Store) DeleteSession(sessionID string) error {
	return s.execWrite("DELETE FROM session WHERE session_id = ?", sessionID)
}

// StaleSessions returns continuity markers for every session other than
// the current one. Their presence after process start signals an
// unclean shutdown that needs a synthesized session-end event.
func (s *Store) StaleSessions(currentSessionID string) ([]SessionRow, error) {
	rows, err := s.db.Query(
		"SELECT session_id, timestamp, event FROM session WHERE session_id != ?",
		currentSessionID)
	if err != nil {
		return nil, fmt.Errorf("store: session query failed: %w", err)
	}
	defer rows.Close()

	var out []SessionRow
	for rows.Next() {
		var r SessionRow
		var blob []byte
		if err := rows.Scan(&r.SessionID, &r.StartTS, &blob); err != nil {
			return nil, fmt.Errorf("store: failed to scan session row: %w", err)
		}
		snapshot, err := decodeBlob(blob)
		if err != nil {
			return nil, fmt.Errorf("store: failed to decode session snapshot: %w", err)
		}
		r.Snapshot = snapshot
		out = append(out, r)
	}
	return out, rows.Err()
}

// SetProgression persists the attempt counter for a progression key.
func (s *Store) SetProgression(key string, tries int) error {
	return s.execWrite(
		"INSERT OR REPLACE INTO progression (progression, tries) VALUES(?, ?)", key, tries)
}

// DeleteProgression removes the attempt counter for a progression key.
func (s *Store) DeleteProgression(key string) error {
	return s.execWrite("DELETE FROM progression WHERE progression = ?", key)
}

// AllProgression returns every persisted progression attempt counter.
func (s *Store) AllProgression() (map[string]int, error) {
	rows, err := s.db.Query("SELECT progression, tries FROM progression")
	if err != nil {
		return nil, fmt.Errorf("store: progression query failed: %w", err)
	}
	defer rows.Close()

	out := make(map[string]int)
	for rows.Next() {
		var k string
		var tries int
		if err := rows.Scan(&k, &tries); err != nil {
			return nil, fmt.Errorf("store: failed to scan progression row: %w", err)
		}
		out[k] = tries
	}
	return out, rows.Err()
}
