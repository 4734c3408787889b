// Package store persists recordings and correction job records in SQLite.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"livescribe/internal/domain"
)

// ErrNotFound is returned when a recording or job does not exist.
var ErrNotFound = errors.New("not found")

// Store provides read-write access to the livescribe SQLite database.
type Store struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS recordings (
	id        TEXT PRIMARY KEY,
	ownerId   TEXT NOT NULL,
	language  TEXT NOT NULL,
	startedAt INTEGER NOT NULL,
	stoppedAt INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS segments (
	recordingId   TEXT NOT NULL,
	id            INTEGER NOT NULL,
	text          TEXT NOT NULL,
	startOffsetMs INTEGER NOT NULL,
	speakerId     TEXT NOT NULL DEFAULT '',
	isCorrected   INTEGER NOT NULL DEFAULT 0,
	correctedText TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (recordingId, id)
);
CREATE TABLE IF NOT EXISTS translations (
	recordingId TEXT NOT NULL,
	language    TEXT NOT NULL,
	text        TEXT NOT NULL,
	PRIMARY KEY (recordingId, language)
);
CREATE TABLE IF NOT EXISTS correction_jobs (
	recordingId   TEXT NOT NULL,
	kind          TEXT NOT NULL,
	status        TEXT NOT NULL,
	error         TEXT NOT NULL DEFAULT '',
	correctedText TEXT NOT NULL DEFAULT '',
	createdAt     INTEGER NOT NULL,
	updatedAt     INTEGER NOT NULL,
	PRIMARY KEY (recordingId, kind)
);
`

// Open opens (and if needed initializes) the database.
func Open(path string) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// SaveRecording writes the recording, its segments and translations in one
// transaction.
func (s *Store) SaveRecording(ctx context.Context, rec domain.Recording) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin save: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO recordings (id, ownerId, language, startedAt, stoppedAt)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET stoppedAt = excluded.stoppedAt
	`, rec.ID, rec.OwnerID, rec.Language, rec.StartedAt.Unix(), rec.StoppedAt.Unix())
	if err != nil {
		return fmt.Errorf("insert recording: %w", err)
	}

	for _, segment := range rec.Segments {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO segments (recordingId, id, text, startOffsetMs, speakerId, isCorrected, correctedText)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(recordingId, id) DO NOTHING
		`, rec.ID, segment.ID, segment.Text, segment.StartOffsetMs, segment.SpeakerID, boolToInt(segment.IsCorrected), segment.CorrectedText)
		if err != nil {
			return fmt.Errorf("insert segment %d: %w", segment.ID, err)
		}
	}

	for _, translation := range rec.Translations {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO translations (recordingId, language, text)
			VALUES (?, ?, ?)
			ON CONFLICT(recordingId, language) DO UPDATE SET text = excluded.text
		`, rec.ID, translation.Language, translation.Text)
		if err != nil {
			return fmt.Errorf("insert translation %s: %w", translation.Language, err)
		}
	}

	return tx.Commit()
}

// GetRecording loads a recording with its segments and translations.
func (s *Store) GetRecording(ctx context.Context, id string) (domain.Recording, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, ownerId, language, startedAt, stoppedAt
		FROM recordings WHERE id = ?
	`, id)

	var rec domain.Recording
	var startedAt, stoppedAt int64
	if err := row.Scan(&rec.ID, &rec.OwnerID, &rec.Language, &startedAt, &stoppedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Recording{}, ErrNotFound
		}
		return domain.Recording{}, fmt.Errorf("scan recording: %w", err)
	}
	rec.StartedAt = time.Unix(startedAt, 0)
	rec.StoppedAt = time.Unix(stoppedAt, 0)

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, text, startOffsetMs, speakerId, isCorrected, correctedText
		FROM segments WHERE recordingId = ? ORDER BY id ASC
	`, id)
	if err != nil {
		return domain.Recording{}, fmt.Errorf("query segments: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var segment domain.Segment
		var corrected int
		if err := rows.Scan(&segment.ID, &segment.Text, &segment.StartOffsetMs, &segment.SpeakerID, &corrected, &segment.CorrectedText); err != nil {
			return domain.Recording{}, fmt.Errorf("scan segment: %w", err)
		}
		segment.IsCorrected = corrected != 0
		rec.Segments = append(rec.Segments, segment)
	}
	if err := rows.Err(); err != nil {
		return domain.Recording{}, err
	}

	translationRows, err := s.db.QueryContext(ctx, `
		SELECT language, text FROM translations WHERE recordingId = ? ORDER BY language ASC
	`, id)
	if err != nil {
		return domain.Recording{}, fmt.Errorf("query translations: %w", err)
	}
	defer translationRows.Close()

	for translationRows.Next() {
		var translation domain.Translation
		if err := translationRows.Scan(&translation.Language, &translation.Text); err != nil {
			return domain.Recording{}, fmt.Errorf("scan translation: %w", err)
		}
		rec.Translations = append(rec.Translations, translation)
	}
	return rec, translationRows.Err()
}

// CreateJob inserts a pending job. An existing record for the same
// recording and kind is left untouched.
func (s *Store) CreateJob(ctx context.Context, recordingID string, kind string) error {
	now := time.Now().Unix()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO correction_jobs (recordingId, kind, status, createdAt, updatedAt)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(recordingId, kind) DO NOTHING
	`, recordingID, kind, domain.JobStatusPending, now, now)
	if err != nil {
		return fmt.Errorf("create job: %w", err)
	}
	return nil
}

// BeginProcessing claims a pending job. The guarded update is the lock that
// prevents duplicate concurrent runs: it is applied before any backend call.
func (s *Store) BeginProcessing(ctx context.Context, recordingID string, kind string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE correction_jobs SET status = ?, updatedAt = ?
		WHERE recordingId = ? AND kind = ? AND status = ?
	`, domain.JobStatusProcessing, time.Now().Unix(), recordingID, kind, domain.JobStatusPending)
	if err != nil {
		return false, fmt.Errorf("begin processing: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected == 1, nil
}

// CompleteJob stores the corrected text alongside the original and marks the
// job completed.
func (s *Store) CompleteJob(ctx context.Context, recordingID string, kind string, correctedText string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE correction_jobs SET status = ?, correctedText = ?, error = '', updatedAt = ?
		WHERE recordingId = ? AND kind = ?
	`, domain.JobStatusCompleted, correctedText, time.Now().Unix(), recordingID, kind)
	if err != nil {
		return fmt.Errorf("complete job: %w", err)
	}
	return nil
}

// FailJob records the failure message for diagnostics.
func (s *Store) FailJob(ctx context.Context, recordingID string, kind string, message string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE correction_jobs SET status = ?, error = ?, updatedAt = ?
		WHERE recordingId = ? AND kind = ?
	`, domain.JobStatusFailed, message, time.Now().Unix(), recordingID, kind)
	if err != nil {
		return fmt.Errorf("fail job: %w", err)
	}
	return nil
}

// RetryJob moves a failed job back to pending. It reports false without any
// state change when the job is not in the failed state — in particular while
// it is processing.
func (s *Store) RetryJob(ctx context.Context, recordingID string, kind string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE correction_jobs SET status = ?, error = '', updatedAt = ?
		WHERE recordingId = ? AND kind = ? AND status = ?
	`, domain.JobStatusPending, time.Now().Unix(), recordingID, kind, domain.JobStatusFailed)
	if err != nil {
		return false, fmt.Errorf("retry job: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected == 1, nil
}

// GetJob loads one correction job record.
func (s *Store) GetJob(ctx context.Context, recordingID string, kind string) (domain.CorrectionJob, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT recordingId, kind, status, error, correctedText, createdAt, updatedAt
		FROM correction_jobs WHERE recordingId = ? AND kind = ?
	`, recordingID, kind)

	var job domain.CorrectionJob
	var status string
	var createdAt, updatedAt int64
	if err := row.Scan(&job.RecordingID, &job.Kind, &status, &job.Error, &job.CorrectedText, &createdAt, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.CorrectionJob{}, ErrNotFound
		}
		return domain.CorrectionJob{}, fmt.Errorf("scan job: %w", err)
	}
	job.Status = domain.JobStatus(status)
	job.CreatedAt = time.Unix(createdAt, 0)
	job.UpdatedAt = time.Unix(updatedAt, 0)
	return job, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
