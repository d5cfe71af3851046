// Package store persists finalized reports and clinical ground-truth
// records in SQLite for the offline validation path.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/LeeSeogMin/senior-mhealth-analysis/internal/models"
)

const schema = `
	CREATE TABLE IF NOT EXISTS reports (
		session_id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		generated_at TIMESTAMP NOT NULL,
		status TEXT NOT NULL,
		requires_expert_review INTEGER NOT NULL,
		degraded INTEGER NOT NULL,
		indicators TEXT NOT NULL,
		stage_statuses TEXT NOT NULL
	);
	CREATE TABLE IF NOT EXISTS clinical_records (
		session_id TEXT NOT NULL,
		scale TEXT NOT NULL,
		score DOUBLE NOT NULL,
		max_score DOUBLE NOT NULL,
		rated_at TIMESTAMP NOT NULL,
		PRIMARY KEY(session_id, scale),
		FOREIGN KEY(session_id) REFERENCES reports(session_id)
	);
`

// Store wraps the SQLite handle.
type Store struct {
	db *sql.DB
}

// Open opens or creates the database at path and ensures the schema.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Save inserts one finalized report as a single row. A report is written
// whole or not at all; consumers never observe a partial report.
func (s *Store) Save(ctx context.Context, report *models.AnalysisReport) error {
	indicators, err := json.Marshal(report.Indicators)
	if err != nil {
		return fmt.Errorf("marshal indicators: %w", err)
	}
	stages, err := json.Marshal(report.StageStatuses)
	if err != nil {
		return fmt.Errorf("marshal stage statuses: %w", err)
	}

	degraded := 0
	for _, ind := range report.Indicators {
		if ind.Degraded {
			degraded = 1
			break
		}
	}
	review := 0
	if report.RequiresExpertReview {
		review = 1
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO reports
			(session_id, user_id, generated_at, status, requires_expert_review, degraded, indicators, stage_statuses)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		report.SessionID, report.UserID, report.GeneratedAt, string(report.Status),
		review, degraded, string(indicators), string(stages))
	return err
}

// SaveClinicalRecord stores a ground-truth clinical score for a session.
func (s *Store) SaveClinicalRecord(ctx context.Context, rec models.ClinicalRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO clinical_records (session_id, scale, score, max_score, rated_at)
		VALUES (?, ?, ?, ?, ?)`,
		rec.SessionID, string(rec.Scale), rec.Score, rec.MaxScore, rec.RatedAt)
	return err
}

// LabeledReport pairs a stored report with one of its clinical records.
type LabeledReport struct {
	Report models.AnalysisReport
	Record models.ClinicalRecord
}

// ListLabeled returns every report holding a ground-truth record for the
// given scale, oldest first.
func (s *Store) ListLabeled(ctx context.Context, scale models.ClinicalScale) ([]LabeledReport, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT r.session_id, r.user_id, r.generated_at, r.status, r.requires_expert_review,
		       r.indicators, r.stage_statuses,
		       c.score, c.max_score, c.rated_at
		FROM reports r
		JOIN clinical_records c ON c.session_id = r.session_id
		WHERE c.scale = ?
		ORDER BY r.generated_at`,
		string(scale))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []LabeledReport
	for rows.Next() {
		var (
			lr            LabeledReport
			status        string
			review        int
			indicators    string
			stageStatuses string
			generatedAt   time.Time
			ratedAt       time.Time
		)
		if err := rows.Scan(
			&lr.Report.SessionID, &lr.Report.UserID, &generatedAt, &status, &review,
			&indicators, &stageStatuses,
			&lr.Record.Score, &lr.Record.MaxScore, &ratedAt,
		); err != nil {
			return nil, err
		}
		lr.Report.GeneratedAt = generatedAt
		lr.Report.Status = models.SessionStatus(status)
		lr.Report.RequiresExpertReview = review != 0
		if err := json.Unmarshal([]byte(indicators), &lr.Report.Indicators); err != nil {
			return nil, fmt.Errorf("unmarshal indicators for %s: %w", lr.Report.SessionID, err)
		}
		if err := json.Unmarshal([]byte(stageStatuses), &lr.Report.StageStatuses); err != nil {
			return nil, fmt.Errorf("unmarshal stage statuses for %s: %w", lr.Report.SessionID, err)
		}
		lr.Record.SessionID = lr.Report.SessionID
		lr.Record.Scale = scale
		lr.Record.RatedAt = ratedAt
		out = append(out, lr)
	}
	return out, rows.Err()
}
