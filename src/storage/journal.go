package storage

import (
	"database/sql"
	"fmt"
	"time"

	"submission-observer/src/logger"
	"submission-observer/src/models"

	_ "modernc.org/sqlite"
)

// -----------------------------------------------------------------------------

// AsyncJournalDB persists the troubleshooting event journal to a local SQLite
// file. Advisory storage only: writes never block or fail the event path, and
// the rows are never read back as authoritative state.
type AsyncJournalDB struct {
	Config *models.MConfig
	DB     *sql.DB
	Logger *logger.Logger
}

// -----------------------------------------------------------------------------

func NewAsyncJournalDB(cfg *models.MConfig, log *logger.Logger) (*AsyncJournalDB, error) {
	return &AsyncJournalDB{
		Config: cfg,
		Logger: log,
	}, nil
}

// -----------------------------------------------------------------------------

func (d *AsyncJournalDB) Initialize() error {
	dsn := d.Config.Journal.DBPath

	// Open DB
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return err
	}

	if err := db.Ping(); err != nil {
		return err
	}

	d.DB = db

	// PRAGMA optimizations
	if _, err := db.Exec("PRAGMA journal_mode = WAL;"); err != nil {
		d.Logger.Warning("Failed to set WAL mode: %v", err)
	}
	if _, err := db.Exec("PRAGMA synchronous = NORMAL;"); err != nil {
		d.Logger.Warning("Failed to set synchronous mode: %v", err)
	}

	return d.createTables()
}

// -----------------------------------------------------------------------------

func (d *AsyncJournalDB) createTables() error {
	// The journal survives restarts, so no DROP here
	// SQLite types: INTEGER for int64, TEXT for string
	query := `
		CREATE TABLE IF NOT EXISTS events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			ts INTEGER,
			topic TEXT,
			kind TEXT,
			participation_id INTEGER,
			submission_id INTEGER,
			detail TEXT
		);
	`
	if _, err := d.DB.Exec(query); err != nil {
		return fmt.Errorf("failed to create events: %w", err)
	}

	if _, err := d.DB.Exec("CREATE INDEX IF NOT EXISTS idx_events_ts ON events (ts)"); err != nil {
		return fmt.Errorf("failed to create idx_events_ts: %w", err)
	}

	return nil
}

// -----------------------------------------------------------------------------

// RecordEvent appends one row. Failures are logged and swallowed so a broken
// journal cannot take down the event path.
func (d *AsyncJournalDB) RecordEvent(record models.MEventRecord) {
	if d.DB == nil {
		return
	}

	_, err := d.DB.Exec(`
		INSERT INTO events (ts, topic, kind, participation_id, submission_id, detail)
		VALUES (?, ?, ?, ?, ?, ?)
	`, record.Timestamp, record.Topic, record.Kind, record.ParticipationID, record.SubmissionID, record.Detail)
	if err != nil {
		d.Logger.Warning("Journal insert error: %v", err)
	}
}

// -----------------------------------------------------------------------------

// RecentEvents returns the newest n rows, newest first.
func (d *AsyncJournalDB) RecentEvents(n int) ([]models.MEventRecord, error) {
	if n <= 0 {
		return nil, nil
	}

	rows, err := d.DB.Query(`
		SELECT ts, topic, kind, participation_id, submission_id, detail
		FROM events
		ORDER BY id DESC
		LIMIT ?
	`, n)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.MEventRecord
	for rows.Next() {
		var rec models.MEventRecord
		if err := rows.Scan(&rec.Timestamp, &rec.Topic, &rec.Kind, &rec.ParticipationID, &rec.SubmissionID, &rec.Detail); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}

	return out, rows.Err()
}

// -----------------------------------------------------------------------------

func (d *AsyncJournalDB) CleanupOldEvents() error {
	retentionDays := d.Config.Journal.RetentionDays
	cutoff := time.Now().UTC().AddDate(0, 0, -retentionDays).Unix()

	res, err := d.DB.Exec("DELETE FROM events WHERE ts < ?", cutoff)
	if err != nil {
		d.Logger.Error("Cleanup events error: %v", err)
		return err
	}

	if deleted, err := res.RowsAffected(); err == nil && deleted > 0 {
		d.Logger.Info("Cleanup removed %d journal rows older than %d days", deleted, retentionDays)
	}
	return nil
}

// -----------------------------------------------------------------------------

func (d *AsyncJournalDB) Close() error {
	if d.DB != nil {
		return d.DB.Close()
	}
	return nil
}
