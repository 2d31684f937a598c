package db

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Fixed width so pushed_at sorts as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// PushRecord is one settings payload sent (or dry-run) to a panel. It is an
// audit trail only; provisioning state is never restored from it.
type PushRecord struct {
	ID           string
	PushedAt     time.Time
	ModelName    string
	SerialNumber string
	URLBase      string
	Payload      string
	DryRun       bool
	Error        string
}

// RecordPush stores a push and returns its generated ID.
func RecordPush(db *sql.DB, rec PushRecord) (string, error) {
	id := uuid.NewString()
	if rec.PushedAt.IsZero() {
		rec.PushedAt = time.Now()
	}

	tx, err := db.Begin()
	if err != nil {
		return "", fmt.Errorf("start transaction: %w", err)
	}
	_, err = tx.Exec(`INSERT INTO pushes (id, pushed_at, model_name, serial_number, url_base, payload, dry_run, error) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		id, rec.PushedAt.UTC().Format(timeLayout), rec.ModelName, rec.SerialNumber, rec.URLBase, rec.Payload, rec.DryRun, nullString(rec.Error))
	if err != nil {
		tx.Rollback()
		return "", fmt.Errorf("insert push: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("commit push: %w", err)
	}
	return id, nil
}

// GetPushHistory returns up to limit pushes, newest first.
func GetPushHistory(db *sql.DB, limit int) ([]PushRecord, error) {
	rows, err := db.Query(`SELECT id, pushed_at, model_name, serial_number, url_base, payload, dry_run, error FROM pushes ORDER BY pushed_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query pushes: %w", err)
	}
	defer rows.Close()

	var records []PushRecord
	for rows.Next() {
		var rec PushRecord
		var pushedAt string
		var serial, errText sql.NullString
		err = rows.Scan(&rec.ID, &pushedAt, &rec.ModelName, &serial, &rec.URLBase, &rec.Payload, &rec.DryRun, &errText)
		if err != nil {
			return nil, fmt.Errorf("failed to scan push: %w", err)
		}
		rec.PushedAt, err = time.Parse(timeLayout, pushedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to parse pushed_at %q: %w", pushedAt, err)
		}
		rec.SerialNumber = serial.String
		rec.Error = errText.String
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read pushes: %w", err)
	}
	return records, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
