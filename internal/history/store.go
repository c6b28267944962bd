// Package history persists scan results to SQLite. One scan.db lives
// inside the scan's output directory; the store carries no state
// across runs.
package history

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // CGO-free SQLite driver

	"github.com/ppiankov/vulnwatch/internal/decision"
	"github.com/ppiankov/vulnwatch/internal/plan"
	"github.com/ppiankov/vulnwatch/internal/runner"
	"github.com/ppiankov/vulnwatch/internal/scan"
)

// ScanSummary is a compact representation of a stored scan.
type ScanSummary struct {
	ID            int64     `json:"id"`
	ScanID        string    `json:"scanId"`
	Target        string    `json:"target"`
	StartedAt     time.Time `json:"startedAt"`
	FindingsCount int       `json:"findingsCount"`
	CritCount     int       `json:"critCount"`
	HighCount     int       `json:"highCount"`
	ToolsExecuted int       `json:"toolsExecuted"`
	ToolsBlocked  int       `json:"toolsBlocked"`
}

// Store persists scan reports to SQLite.
type Store struct {
	db *sql.DB
}

// Open creates or opens a SQLite database at the given path and runs
// migrations. Use ":memory:" for an in-memory database (tests).
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close() //nolint:errcheck // best-effort cleanup
		return nil, fmt.Errorf("setting WAL mode: %w", err)
	}
	if err := migrate(db); err != nil {
		db.Close() //nolint:errcheck // best-effort cleanup
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Save persists one report: scan row, tool outcome rows, finding rows.
func (s *Store) Save(rep *scan.Report) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // commit below; rollback is no-op after commit

	var crit, high int
	for i := range rep.Findings.Items {
		switch rep.Findings.Items[i].Severity.Rank() {
		case 4:
			crit++
		case 3:
			high++
		}
	}

	result, err := tx.Exec(
		"INSERT INTO scans (scan_id, target, target_type, started_at, finished_at, findings_count, crit_count, high_count, tools_executed, tools_blocked, tools_skipped) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)",
		rep.ScanID, rep.Profile.Host, string(rep.Profile.Type), rep.StartedAt, rep.FinishedAt,
		rep.Findings.Count, crit, high,
		rep.Coverage.Executed, len(rep.Coverage.Blocked), len(rep.Coverage.Skipped),
	)
	if err != nil {
		return fmt.Errorf("inserting scan: %w", err)
	}
	scanRow, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("getting scan id: %w", err)
	}

	toolStmt, err := tx.Prepare(
		"INSERT INTO tool_outcomes (scan_row, tool, category, stage, verdict, reason, outcome, failure_reason, exit_code, duration_ms, findings_count) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)",
	)
	if err != nil {
		return fmt.Errorf("preparing outcome insert: %w", err)
	}
	defer toolStmt.Close() //nolint:errcheck // statement lifetime bounded by tx

	for i := range rep.Execution {
		o := &rep.Execution[i]
		if _, err := toolStmt.Exec(scanRow, o.Tool, string(o.Category), o.Stage, string(o.Verdict), o.Reason, string(o.Class), string(o.FailureReason), o.ExitCode, o.DurationMS, o.FindingsCount); err != nil {
			return fmt.Errorf("inserting outcome: %w", err)
		}
	}

	findStmt, err := tx.Prepare(
		"INSERT INTO findings (scan_row, finding_id, vuln_type, endpoint, parameter, severity, owasp, confidence, tool, crawler_verified, evidence) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)",
	)
	if err != nil {
		return fmt.Errorf("preparing finding insert: %w", err)
	}
	defer findStmt.Close() //nolint:errcheck // statement lifetime bounded by tx

	for i := range rep.Findings.Items {
		f := &rep.Findings.Items[i]
		if _, err := findStmt.Exec(scanRow, f.ID, string(f.Type), f.Endpoint, f.Parameter, string(f.Severity), string(f.OWASP), f.Confidence, f.Tool, f.CrawlerVerified, f.Evidence); err != nil {
			return fmt.Errorf("inserting finding: %w", err)
		}
	}

	return tx.Commit()
}

// List returns the most recent scan summaries, ordered newest first.
func (s *Store) List(limit int) ([]ScanSummary, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := s.db.Query(
		"SELECT id, scan_id, target, started_at, findings_count, crit_count, high_count, tools_executed, tools_blocked FROM scans ORDER BY started_at DESC LIMIT ?",
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying scans: %w", err)
	}
	defer rows.Close() //nolint:errcheck // read-only query

	var summaries []ScanSummary
	for rows.Next() {
		var sm ScanSummary
		if err := rows.Scan(&sm.ID, &sm.ScanID, &sm.Target, &sm.StartedAt, &sm.FindingsCount, &sm.CritCount, &sm.HighCount, &sm.ToolsExecuted, &sm.ToolsBlocked); err != nil {
			return nil, fmt.Errorf("scanning scan row: %w", err)
		}
		summaries = append(summaries, sm)
	}
	return summaries, rows.Err()
}

// ToolHistory returns outcome rows for one tool across stored scans,
// newest first.
func (s *Store) ToolHistory(tool string, limit int) ([]scan.ToolOutcome, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := s.db.Query(`
		SELECT t.tool, t.category, t.stage, t.verdict, t.reason, t.outcome, t.failure_reason, t.exit_code, t.duration_ms, t.findings_count
		FROM tool_outcomes t
		JOIN scans sc ON sc.id = t.scan_row
		WHERE t.tool = ?
		ORDER BY sc.started_at DESC
		LIMIT ?`,
		tool, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying tool history: %w", err)
	}
	defer rows.Close() //nolint:errcheck // read-only query

	var outcomes []scan.ToolOutcome
	for rows.Next() {
		var o scan.ToolOutcome
		var category, verdict, class, failure string
		if err := rows.Scan(&o.Tool, &category, &o.Stage, &verdict, &o.Reason, &class, &failure, &o.ExitCode, &o.DurationMS, &o.FindingsCount); err != nil {
			return nil, fmt.Errorf("scanning outcome row: %w", err)
		}
		o.Category = plan.Category(category)
		o.Verdict = decision.Verdict(verdict)
		o.Class = runner.OutcomeClass(class)
		o.FailureReason = runner.FailureReason(failure)
		outcomes = append(outcomes, o)
	}
	return outcomes, rows.Err()
}
