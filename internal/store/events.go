package store

import "fmt"

// StatusNew marks a queued event row not yet claimed by any flush.
const StatusNew = "new"

// InsertEvent queues a serialized event record with status "new".
func (s *Store) InsertEvent(category, sessionID string, clientTS int64, event []byte) error {
	return s.execWrite(
		"INSERT INTO events (status, category, session_id, client_ts, event) VALUES(?, ?, ?, ?, ?)",
		StatusNew, category, sessionID, clientTS, encodeBlob(event))
}

// NewEventPayloads returns the decoded payloads of all rows with status
// "new", oldest first, optionally filtered by category.
func (s *Store) NewEventPayloads(category string) ([][]byte, error) {
	query := "SELECT event FROM events WHERE status = ?"
	args := []any{StatusNew}
	if category != "" {
		query += " AND category = ?"
		args = append(args, category)
	}
	query += " ORDER BY client_ts ASC"
	return s.queryPayloads(query, args...)
}

// NewEventPayloadsUpTo is NewEventPayloads bounded by client timestamp
// (inclusive).
func (s *Store) NewEventPayloadsUpTo(category string, maxTS int64) ([][]byte, error) {
	query := "SELECT event FROM events WHERE status = ?"
	args := []any{StatusNew}
	if category != "" {
		query += " AND category = ?"
		args = append(args, category)
	}
	query += " AND client_ts <= ? ORDER BY client_ts ASC"
	args = append(args, maxTS)
	return s.queryPayloads(query, args...)
}

func (s *Store) queryPayloads(query string, args ...any) ([][]byte, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: event query failed: %w", err)
	}
	defer rows.Close()

	var payloads [][]byte
	for rows.Next() {
		var blob []byte
		if err := rows.Scan(&blob); err != nil {
			return nil, fmt.Errorf("store: failed to scan event: %w", err)
		}
		payload, err := decodeBlob(blob)
		if err != nil {
			return nil, fmt.Errorf("store: failed to decode event blob: %w", err)
		}
		payloads = append(payloads, payload)
	}
	return payloads, rows.Err()
}

// BoundTimestamp returns the client timestamp of the limit-th oldest
// "new" row, used to bound an oversized batch to the oldest subset.
// ok is false when fewer than limit rows exist.
func (s *Store) BoundTimestamp(category string, limit int) (ts int64, ok bool, err error) {
	query := "SELECT client_ts FROM events WHERE status = ?"
	args := []any{StatusNew}
	if category != "" {
		query += " AND category = ?"
		args = append(args, category)
	}
	query += " ORDER BY client_ts ASC LIMIT 1 OFFSET ?"
	args = append(args, limit-1)

	row := s.db.QueryRow(query, args...)
	if err := row.Scan(&ts); err != nil {
		return 0, false, nil
	}
	return ts, true, nil
}

// ClaimNew atomically reassigns all "new" rows (optionally filtered by
// category) to the given request id, making them visible to exactly one
// in-flight send attempt.
func (s *Store) ClaimNew(requestID, category string) error {
	query := "UPDATE events SET status = ? WHERE status = ?"
	args := []any{requestID, StatusNew}
	if category != "" {
		query += " AND category = ?"
		args = append(args, category)
	}
	return s.execWrite(query, args...)
}

// ClaimNewUpTo is ClaimNew bounded by client timestamp (inclusive).
func (s *Store) ClaimNewUpTo(requestID, category string, maxTS int64) error {
	query := "UPDATE events SET status = ? WHERE status = ?"
	args := []any{requestID, StatusNew}
	if category != "" {
		query += " AND category = ?"
		args = append(args, category)
	}
	query += " AND client_ts <= ?"
	args = append(args, maxTS)
	return s.execWrite(query, args...)
}

// DeleteRequest removes every row claimed under the given request id.
func (s *Store) DeleteRequest(requestID string) error {
	return s.execWrite("DELETE FROM events WHERE status = ?", requestID)
}

// RevertRequest puts every row claimed under the given request id back
// to "new" for retry on the next flush.
func (s *Store) RevertRequest(requestID string) error {
	return s.execWrite("UPDATE events SET status = ? WHERE status = ?", StatusNew, requestID)
}

// ResetAllToNew resets every row to "new", recovering rows stuck in a
// claimed status after a crash between claim and delete.
func (s *Store) ResetAllToNew() error {
	return s.execWrite("UPDATE events SET status = ?", StatusNew)
}

// CountByStatus returns the number of event rows with the given status.
func (s *Store) CountByStatus(status string) (int, error) {
	var n int
	err := s.db.QueryRow("SELECT COUNT(*) FROM events WHERE status = ?", status).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("store: count failed: %w", err)
	}
	return n, nil
}
