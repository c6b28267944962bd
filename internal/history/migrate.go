package history

import "database/sql"

const schema = `
CREATE TABLE IF NOT EXISTS scans (
    id             INTEGER PRIMARY KEY AUTOINCREMENT,
    scan_id        TEXT NOT NULL DEFAULT '',
    target         TEXT NOT NULL DEFAULT '',
    target_type    TEXT NOT NULL DEFAULT '',
    started_at     DATETIME NOT NULL,
    finished_at    DATETIME,
    findings_count INTEGER NOT NULL DEFAULT 0,
    crit_count     INTEGER NOT NULL DEFAULT 0,
    high_count     INTEGER NOT NULL DEFAULT 0,
    tools_executed INTEGER NOT NULL DEFAULT 0,
    tools_blocked  INTEGER NOT NULL DEFAULT 0,
    tools_skipped  INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS tool_outcomes (
    id             INTEGER PRIMARY KEY AUTOINCREMENT,
    scan_row       INTEGER NOT NULL REFERENCES scans(id),
    tool           TEXT NOT NULL DEFAULT '',
    category       TEXT NOT NULL DEFAULT '',
    stage          INTEGER NOT NULL DEFAULT 0,
    verdict        TEXT NOT NULL DEFAULT '',
    reason         TEXT NOT NULL DEFAULT '',
    outcome        TEXT NOT NULL DEFAULT '',
    failure_reason TEXT NOT NULL DEFAULT '',
    exit_code      INTEGER NOT NULL DEFAULT 0,
    duration_ms    INTEGER NOT NULL DEFAULT 0,
    findings_count INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS findings (
    id               INTEGER PRIMARY KEY AUTOINCREMENT,
    scan_row         INTEGER NOT NULL REFERENCES scans(id),
    finding_id       TEXT NOT NULL DEFAULT '',
    vuln_type        TEXT NOT NULL DEFAULT '',
    endpoint         TEXT NOT NULL DEFAULT '',
    parameter        TEXT NOT NULL DEFAULT '',
    severity         TEXT NOT NULL DEFAULT '',
    owasp            TEXT NOT NULL DEFAULT '',
    confidence       INTEGER NOT NULL DEFAULT 0,
    tool             TEXT NOT NULL DEFAULT '',
    crawler_verified BOOLEAN NOT NULL DEFAULT 0,
    evidence         TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_outcomes_scan ON tool_outcomes(scan_row);
CREATE INDEX IF NOT EXISTS idx_outcomes_tool ON tool_outcomes(tool);
CREATE INDEX IF NOT EXISTS idx_findings_scan ON findings(scan_row);
CREATE INDEX IF NOT EXISTS idx_findings_severity ON findings(severity);
`

func migrate(db *sql.DB) error {
	_, err := db.Exec(schema)
	return err
}
