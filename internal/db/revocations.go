package db

import "time"

// ListPendingRevocations returns every pending revocation, soonest first.
// Used on startup to re-arm expiry timers.
func (db *DB) ListPendingRevocations() ([]*PendingRevocation, error) {
	rows, err := db.conn.Query(`
		SELECT session_id, device_identifier, fire_at
		FROM pending_revocations ORDER BY fire_at ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var pending []*PendingRevocation
	for rows.Next() {
		p := &PendingRevocation{}
		if err := rows.Scan(&p.SessionID, &p.DeviceIdentifier, &p.FireAt); err != nil {
			return nil, err
		}
		pending = append(pending, p)
	}
	return pending, rows.Err()
}

// DuePendingRevocations returns revocations whose fire time has elapsed.
func (db *DB) DuePendingRevocations(now time.Time) ([]*PendingRevocation, error) {
	rows, err := db.conn.Query(`
		SELECT session_id, device_identifier, fire_at
		FROM pending_revocations WHERE fire_at <= ? ORDER BY fire_at ASC
	`, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var due []*PendingRevocation
	for rows.Next() {
		p := &PendingRevocation{}
		if err := rows.Scan(&p.SessionID, &p.DeviceIdentifier, &p.FireAt); err != nil {
			return nil, err
		}
		due = append(due, p)
	}
	return due, rows.Err()
}

// DeletePendingRevocation removes a revocation that no longer applies,
// e.g. for a session independently marked failed before expiry fired.
func (db *DB) DeletePendingRevocation(sessionID string) error {
	_, err := db.conn.Exec(`DELETE FROM pending_revocations WHERE session_id = ?`, sessionID)
	return err
}
