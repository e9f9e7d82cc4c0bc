// Package db provides SQLite storage for hotspot sessions, plans and
// pending revocations.
package db

import (
	"database/sql"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// SessionState represents the lifecycle state of a session.
type SessionState string

const (
	// SessionPending indicates the session is awaiting payment confirmation.
	SessionPending SessionState = "pending"
	// SessionPaid indicates payment was confirmed but the device is not yet admitted.
	SessionPaid SessionState = "paid"
	// SessionAdmitted indicates the device has network access.
	SessionAdmitted SessionState = "admitted"
	// SessionExpired indicates the session ran out and access was revoked.
	SessionExpired SessionState = "expired"
	// SessionFailed is terminal: payment failed or admission could not complete.
	SessionFailed SessionState = "failed"
)

// Session represents a purchased access session.
type Session struct {
	ID                string
	CheckoutRequestID string // provider correlation id, assigned once
	DeviceIdentifier  string // MAC or IP of the paying device
	PhoneNumber       string
	PlanID            int64
	PlanName          string
	Duration          time.Duration
	Amount            int64 // whole currency units
	ReceiptNumber     string
	FailureReason     string
	State             SessionState
	CreatedAt         time.Time
	PaidAt            *time.Time
	ExpiresAt         *time.Time
	RevokedAt         *time.Time
}

// PendingRevocation is the durable obligation to revoke an admitted device.
type PendingRevocation struct {
	SessionID        string
	DeviceIdentifier string
	FireAt           time.Time
}

// Plan is a purchasable time-bounded access plan.
type Plan struct {
	ID              int64
	Name            string
	DurationMinutes int64
	Price           int64
	IsActive        bool
}

// Duration returns the plan's access duration.
func (p *Plan) Duration() time.Duration {
	return time.Duration(p.DurationMinutes) * time.Minute
}

// DB represents the database connection.
type DB struct {
	conn *sql.DB
}

// Open opens the SQLite database and creates tables if needed.
func Open(path string) (*DB, error) {
	conn, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}

	// Compare-and-set transitions rely on serialized writes.
	conn.SetMaxOpenConns(1)

	if err := createTables(conn); err != nil {
		conn.Close()
		return nil, err
	}

	return &DB{conn: conn}, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

func createTables(conn *sql.DB) error {
	_, err := conn.Exec(`
		CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			checkout_request_id TEXT UNIQUE,
			device_identifier TEXT NOT NULL,
			phone_number TEXT NOT NULL,
			plan_id INTEGER NOT NULL,
			plan_name TEXT DEFAULT '',
			duration_secs INTEGER NOT NULL,
			amount INTEGER NOT NULL,
			receipt_number TEXT DEFAULT '',
			failure_reason TEXT DEFAULT '',
			state TEXT NOT NULL DEFAULT 'pending',
			created_at DATETIME,
			paid_at DATETIME,
			expires_at DATETIME,
			revoked_at DATETIME
		);

		CREATE TABLE IF NOT EXISTS pending_revocations (
			session_id TEXT PRIMARY KEY,
			device_identifier TEXT NOT NULL,
			fire_at DATETIME NOT NULL
		);

		CREATE TABLE IF NOT EXISTS plans (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL,
			duration_minutes INTEGER NOT NULL,
			price INTEGER NOT NULL,
			is_active INTEGER DEFAULT 1
		);

		CREATE INDEX IF NOT EXISTS idx_sessions_state ON sessions(state);
		CREATE INDEX IF NOT EXISTS idx_sessions_created ON sessions(created_at);
		CREATE INDEX IF NOT EXISTS idx_revocations_fire_at ON pending_revocations(fire_at);
	`)
	return err
}
