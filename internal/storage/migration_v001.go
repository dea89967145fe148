package storage

import "database/sql"

// migrateV001 creates the initial schema: visit history, feedback, exclusion
// rules, and the key/value config table. Every statement uses IF NOT EXISTS
// for idempotency.
func migrateV001(tx *sql.Tx) error {
	stmts := []string{
		// ── Tables ──────────────────────────────────────────────

		`CREATE TABLE IF NOT EXISTS visits (
			id              TEXT PRIMARY KEY,
			url             TEXT NOT NULL UNIQUE,
			title           TEXT NOT NULL DEFAULT '',
			domain          TEXT NOT NULL DEFAULT '',
			last_visited    DATETIME NOT NULL,
			visit_count     INTEGER NOT NULL DEFAULT 0 CHECK (visit_count >= 0),
			engagement      REAL,
			pattern_hour    INTEGER,
			pattern_weekday INTEGER,
			time_spent_ms   INTEGER NOT NULL DEFAULT 0,
			search_query    TEXT NOT NULL DEFAULT '',
			tab_count       INTEGER NOT NULL DEFAULT 0,
			topics          TEXT NOT NULL DEFAULT '',
			created_at      DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,

		`CREATE TABLE IF NOT EXISTS feedback (
			id     TEXT PRIMARY KEY,
			url    TEXT NOT NULL,
			useful BOOLEAN NOT NULL,
			ts     DATETIME NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS exclusions (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			rule_type  TEXT NOT NULL CHECK (rule_type IN ('domain', 'regex')),
			rule_value TEXT NOT NULL,
			reason     TEXT NOT NULL DEFAULT '',
			is_default BOOLEAN NOT NULL DEFAULT 0,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			UNIQUE(rule_type, rule_value)
		)`,

		`CREATE TABLE IF NOT EXISTS config (
			key        TEXT PRIMARY KEY,
			value      TEXT NOT NULL,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,

		// ── Indexes ────────────────────────────────────────────

		`CREATE INDEX IF NOT EXISTS idx_visits_last_visited ON visits(last_visited)`,
		`CREATE INDEX IF NOT EXISTS idx_visits_domain       ON visits(domain)`,
		`CREATE INDEX IF NOT EXISTS idx_feedback_url        ON feedback(url)`,
		`CREATE INDEX IF NOT EXISTS idx_exclusions_rule     ON exclusions(rule_type, rule_value)`,
	}

	for _, stmt := range stmts {
		if _, err := tx.Exec(stmt); err != nil {
			return err
		}
	}

	// ── Default exclusion rules ────────────────────────────────
	return seedDefaultExclusions(tx)
}

// seedDefaultExclusions inserts the curated denylist. Uses INSERT OR IGNORE
// so re-running is safe.
func seedDefaultExclusions(tx *sql.Tx) error {
	type rule struct {
		RuleType  string
		RuleValue string
		Reason    string
	}

	defaults := []rule{
		{"domain", "chase.com", "Banking - financial privacy"},
		{"domain", "bankofamerica.com", "Banking - financial privacy"},
		{"domain", "paypal.com", "Payment - financial privacy"},
		{"domain", "1password.com", "Password manager - credential privacy"},
		{"domain", "bitwarden.com", "Password manager - credential privacy"},
		{"domain", "accounts.google.com", "Auth provider - credential privacy"},
		{"domain", "login.microsoftonline.com", "Auth provider - credential privacy"},
		{"domain", "mychart.com", "Healthcare - HIPAA privacy"},
		{"domain", "irs.gov", "Tax - financial privacy"},
		{"regex", `.*\.xxx$`, "Adult content exclusion"},
	}

	const insertSQL = `INSERT OR IGNORE INTO exclusions (rule_type, rule_value, reason, is_default) VALUES (?, ?, ?, 1)`

	for _, r := range defaults {
		if _, err := tx.Exec(insertSQL, r.RuleType, r.RuleValue, r.Reason); err != nil {
			return err
		}
	}

	return nil
}
