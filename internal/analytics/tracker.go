package analytics

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"kanbansync/internal/utils"
)

// Tracker handles analytics event recording
type Tracker struct {
	db      *sql.DB
	enabled bool
	now     func() time.Time
	mu      sync.Mutex
}

// NewTracker creates a new analytics tracker.
// If enabled is false, nothing is recorded but the database is still opened
// so that Summary works.
func NewTracker(dbPath string, enabled bool) (*Tracker, error) {
	db, err := openDB(dbPath)
	if err != nil {
		return nil, err
	}

	return &Tracker{
		db:      db,
		enabled: enabled,
		now:     time.Now,
	}, nil
}

// Enabled reports whether events are recorded
func (t *Tracker) Enabled() bool {
	return t != nil && t.enabled
}

// Close closes the database connection
func (t *Tracker) Close() error {
	if t != nil && t.db != nil {
		return t.db.Close()
	}
	return nil
}

// TrackCommand runs fn and records its outcome. fn always runs; the event is
// written synchronously before returning because the process exits right
// after the command. Recording failures are logged at debug level only.
func (t *Tracker) TrackCommand(cmd string, flags []string, fn func() error) error {
	if !t.Enabled() {
		return fn()
	}

	start := t.now()
	err := fn()

	event := Event{
		Timestamp:    t.now().Unix(),
		InvocationID: utils.GetLogger().InvocationID(),
		Command:      cmd,
		Success:      err == nil,
		DurationMs:   t.now().Sub(start).Milliseconds(),
		ErrorType:    utils.Category(err),
	}
	if len(flags) > 0 {
		flagsJSON, _ := json.Marshal(flags)
		event.Flags = string(flagsJSON)
	}

	if logErr := t.logEvent(event); logErr != nil {
		utils.Debugf("analytics: %v", logErr)
	}
	return err
}

// logEvent records an event to the database
func (t *Tracker) logEvent(event Event) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	_, err := t.db.Exec(`
		INSERT INTO events (timestamp, invocation_id, command, success, duration_ms, error_type, flags)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, event.Timestamp, event.InvocationID, event.Command, boolToInt(event.Success),
		event.DurationMs, nullString(event.ErrorType), nullString(event.Flags))
	return err
}

// Cleanup removes events older than the specified retention period.
// Returns the number of deleted events.
func (t *Tracker) Cleanup(retentionDays int) (int64, error) {
	if retentionDays <= 0 {
		return 0, nil
	}
	cutoff := t.now().Unix() - int64(retentionDays*86400)

	result, err := t.db.Exec("DELETE FROM events WHERE timestamp < ?", cutoff)
	if err != nil {
		return 0, err
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}
	if deleted > 0 {
		_, _ = t.db.Exec("VACUUM")
	}
	return deleted, nil
}

// Events returns the recorded events, oldest first
func (t *Tracker) Events() ([]Event, error) {
	rows, err := t.db.Query(`
		SELECT id, timestamp, invocation_id, command, success, COALESCE(duration_ms, 0),
		       COALESCE(error_type, ''), COALESCE(flags, '')
		FROM events ORDER BY timestamp, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var events []Event
	for rows.Next() {
		var e Event
		var success int
		if err := rows.Scan(&e.ID, &e.Timestamp, &e.InvocationID, &e.Command, &success,
			&e.DurationMs, &e.ErrorType, &e.Flags); err != nil {
			return nil, err
		}
		e.Success = success == 1
		events = append(events, e)
	}
	return events, rows.Err()
}

// Summary aggregates all recorded events
func (t *Tracker) Summary() (*Summary, error) {
	s := &Summary{ErrorTypes: map[string]int64{}}

	var first, last sql.NullInt64
	err := t.db.QueryRow(`
		SELECT COUNT(*), COALESCE(SUM(1 - success), 0), MIN(timestamp), MAX(timestamp)
		FROM events`).Scan(&s.Total, &s.Failures, &first, &last)
	if err != nil {
		return nil, fmt.Errorf("failed to summarize events: %w", err)
	}
	if s.Total == 0 {
		return s, nil
	}
	s.FirstEvent = time.Unix(first.Int64, 0)
	s.LastEvent = time.Unix(last.Int64, 0)

	rows, err := t.db.Query(`
		SELECT command, COUNT(*), SUM(1 - success), CAST(AVG(COALESCE(duration_ms, 0)) AS INTEGER)
		FROM events GROUP BY command ORDER BY COUNT(*) DESC, command`)
	if err != nil {
		return nil, fmt.Errorf("failed to summarize commands: %w", err)
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		var c CommandStats
		if err := rows.Scan(&c.Command, &c.Runs, &c.Failures, &c.AvgDurationMs); err != nil {
			return nil, err
		}
		s.Commands = append(s.Commands, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	errRows, err := t.db.Query(`
		SELECT error_type, COUNT(*) FROM events
		WHERE error_type IS NOT NULL GROUP BY error_type`)
	if err != nil {
		return nil, fmt.Errorf("failed to summarize errors: %w", err)
	}
	defer func() { _ = errRows.Close() }()
	for errRows.Next() {
		var kind string
		var n int64
		if err := errRows.Scan(&kind, &n); err != nil {
			return nil, err
		}
		s.ErrorTypes[kind] = n
	}
	return s, errRows.Err()
}
