package db

import (
	"database/sql"
	"time"
)

const sessionColumns = `id, checkout_request_id, device_identifier, phone_number, plan_id, plan_name, duration_secs, amount, receipt_number, failure_reason, state, created_at, paid_at, expires_at, revoked_at`

// CreateSession inserts a new pending session.
func (db *DB) CreateSession(s *Session) error {
	var checkoutID interface{}
	if s.CheckoutRequestID != "" {
		checkoutID = s.CheckoutRequestID
	}
	_, err := db.conn.Exec(`
		INSERT INTO sessions (`+sessionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, s.ID, checkoutID, s.DeviceIdentifier, s.PhoneNumber, s.PlanID, s.PlanName,
		int64(s.Duration.Seconds()), s.Amount, s.ReceiptNumber, s.FailureReason,
		s.State, s.CreatedAt, s.PaidAt, s.ExpiresAt, s.RevokedAt)
	return err
}

func scanSession(row interface{ Scan(...interface{}) error }) (*Session, error) {
	s := &Session{}
	var checkoutID, planName, receipt, reason sql.NullString
	var durationSecs int64
	var paidAt, expiresAt, revokedAt sql.NullTime
	err := row.Scan(&s.ID, &checkoutID, &s.DeviceIdentifier, &s.PhoneNumber,
		&s.PlanID, &planName, &durationSecs, &s.Amount, &receipt, &reason,
		&s.State, &s.CreatedAt, &paidAt, &expiresAt, &revokedAt)
	if err != nil {
		return nil, err
	}
	if checkoutID.Valid {
		s.CheckoutRequestID = checkoutID.String
	}
	if planName.Valid {
		s.PlanName = planName.String
	}
	if receipt.Valid {
		s.ReceiptNumber = receipt.String
	}
	if reason.Valid {
		s.FailureReason = reason.String
	}
	s.Duration = time.Duration(durationSecs) * time.Second
	if paidAt.Valid {
		s.PaidAt = &paidAt.Time
	}
	if expiresAt.Valid {
		s.ExpiresAt = &expiresAt.Time
	}
	if revokedAt.Valid {
		s.RevokedAt = &revokedAt.Time
	}
	return s, nil
}

// GetSession retrieves a session by ID.
func (db *DB) GetSession(id string) (*Session, error) {
	row := db.conn.QueryRow(`SELECT `+sessionColumns+` FROM sessions WHERE id = ?`, id)
	return scanSession(row)
}

// GetSessionByCheckoutID retrieves a session by the provider correlation id.
// Returns sql.ErrNoRows when the correlation id is unknown.
func (db *DB) GetSessionByCheckoutID(checkoutID string) (*Session, error) {
	row := db.conn.QueryRow(`SELECT `+sessionColumns+` FROM sessions WHERE checkout_request_id = ?`, checkoutID)
	return scanSession(row)
}

// ListSessions returns all sessions, optionally filtered by state.
func (db *DB) ListSessions(state SessionState) ([]*Session, error) {
	var rows *sql.Rows
	var err error

	if state != "" {
		rows, err = db.conn.Query(`SELECT `+sessionColumns+` FROM sessions WHERE state = ? ORDER BY created_at DESC`, state)
	} else {
		rows, err = db.conn.Query(`SELECT ` + sessionColumns + ` FROM sessions ORDER BY created_at DESC`)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []*Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}

// SetCheckoutRequestID records the provider correlation id. The id is
// assigned exactly once; a second assignment is a no-op.
func (db *DB) SetCheckoutRequestID(id, checkoutID string) error {
	_, err := db.conn.Exec(`
		UPDATE sessions SET checkout_request_id = ?
		WHERE id = ? AND checkout_request_id IS NULL
	`, checkoutID, id)
	return err
}

// MarkPaid transitions pending -> paid. Returns false if the session was not
// pending, which means a concurrent callback already settled it.
func (db *DB) MarkPaid(id string, paidAt time.Time, receipt string, amount int64) (bool, error) {
	res, err := db.conn.Exec(`
		UPDATE sessions SET state = ?, paid_at = ?, receipt_number = ?, amount = ?
		WHERE id = ? AND state = ?
	`, SessionPaid, paidAt, receipt, amount, id, SessionPending)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

// MarkFailed transitions pending or paid -> failed with a recorded reason.
func (db *DB) MarkFailed(id, reason string) (bool, error) {
	res, err := db.conn.Exec(`
		UPDATE sessions SET state = ?, failure_reason = ?
		WHERE id = ? AND state IN (?, ?)
	`, SessionFailed, reason, id, SessionPending, SessionPaid)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

// AdmitSession transitions paid -> admitted and records the pending
// revocation in the same transaction, so a restart cannot lose the
// obligation to revoke.
func (db *DB) AdmitSession(id string, expiresAt time.Time) (bool, error) {
	tx, err := db.conn.Begin()
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	res, err := tx.Exec(`
		UPDATE sessions SET state = ?, expires_at = ?
		WHERE id = ? AND state = ?
	`, SessionAdmitted, expiresAt, id, SessionPaid)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n != 1 {
		return false, nil
	}

	_, err = tx.Exec(`
		INSERT OR REPLACE INTO pending_revocations (session_id, device_identifier, fire_at)
		SELECT id, device_identifier, ? FROM sessions WHERE id = ?
	`, expiresAt, id)
	if err != nil {
		return false, err
	}

	return true, tx.Commit()
}

// ExpireSession transitions admitted -> expired and deletes the pending
// revocation atomically.
func (db *DB) ExpireSession(id string, revokedAt time.Time) (bool, error) {
	tx, err := db.conn.Begin()
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	res, err := tx.Exec(`
		UPDATE sessions SET state = ?, revoked_at = ?
		WHERE id = ? AND state = ?
	`, SessionExpired, revokedAt, id, SessionAdmitted)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n != 1 {
		return false, nil
	}

	if _, err := tx.Exec(`DELETE FROM pending_revocations WHERE session_id = ?`, id); err != nil {
		return false, err
	}

	return true, tx.Commit()
}

// Stats returns session counts and confirmed revenue for the dashboard.
func (db *DB) Stats() (total int, admitted int, revenue int64, err error) {
	row := db.conn.QueryRow(`SELECT COUNT(*) FROM sessions`)
	if err = row.Scan(&total); err != nil {
		return
	}

	row = db.conn.QueryRow(`SELECT COUNT(*) FROM sessions WHERE state = ?`, SessionAdmitted)
	if err = row.Scan(&admitted); err != nil {
		return
	}

	row = db.conn.QueryRow(`
		SELECT COALESCE(SUM(amount), 0) FROM sessions WHERE state IN (?, ?, ?)
	`, SessionPaid, SessionAdmitted, SessionExpired)
	err = row.Scan(&revenue)
	return
}
