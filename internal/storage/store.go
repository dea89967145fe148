package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// timeLayout is fixed-width so stored timestamps compare correctly as text.
const timeLayout = "2006-01-02T15:04:05.000Z07:00"

// behaviorSummaryKey is the config row holding the last computed BehaviorSummary.
const behaviorSummaryKey = "behavior_patterns"

// Store defines the interface for visit history operations.
type Store interface {
	RecordVisit(ctx context.Context, visit *Visit) (*HistoryRecord, error)
	GetRecord(ctx context.Context, rawURL string) (*HistoryRecord, error)
	GetHistory(ctx context.Context, q HistoryQuery) ([]HistoryRecord, error)
	RecordFeedback(ctx context.Context, fb Feedback) error
	GetBehaviorPatternSummary(ctx context.Context) (*BehaviorSummary, error)
	RecomputeBehaviorPatterns(ctx context.Context) error
	CountExpired(ctx context.Context, olderThan time.Time) (int64, error)
	PruneExpired(ctx context.Context, olderThan time.Time) (int64, error)
	PurgeAll(ctx context.Context) error
	GetStats(ctx context.Context) (*Stats, error)
	IsExcluded(domain string) bool
	Close() error
}

// SQLiteStore implements Store backed by a SQLite database.
type SQLiteStore struct {
	db *sql.DB

	// Prepared statements
	getRecord      *sql.Stmt
	insertFeedback *sql.Stmt

	// Cached exclusion rules (loaded once at init)
	domainExclusions []string
	regexExclusions  []*regexp.Regexp
}

// NewSQLiteStore creates a new SQLiteStore from an already-opened and migrated database.
func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	s := &SQLiteStore{db: db}

	if err := s.prepareStatements(); err != nil {
		return nil, fmt.Errorf("prepare statements: %w", err)
	}

	if err := s.loadExclusions(); err != nil {
		return nil, fmt.Errorf("load exclusions: %w", err)
	}

	return s, nil
}

const recordColumns = `id, url, title, domain, last_visited, visit_count, engagement,
	pattern_hour, pattern_weekday, time_spent_ms, search_query, tab_count, topics`

func (s *SQLiteStore) prepareStatements() error {
	var err error

	s.getRecord, err = s.db.Prepare(`SELECT ` + recordColumns + ` FROM visits WHERE url = ?`)
	if err != nil {
		return err
	}

	s.insertFeedback, err = s.db.Prepare(`
		INSERT INTO feedback (id, url, useful, ts) VALUES (?, ?, ?, ?)
	`)
	if err != nil {
		return err
	}

	return nil
}

// loadExclusions loads domain and regex exclusion rules from the database.
func (s *SQLiteStore) loadExclusions() error {
	rows, err := s.db.Query("SELECT rule_type, rule_value FROM exclusions")
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var ruleType, ruleValue string
		if err := rows.Scan(&ruleType, &ruleValue); err != nil {
			return err
		}
		switch ruleType {
		case "domain":
			s.domainExclusions = append(s.domainExclusions, ruleValue)
		case "regex":
			re, err := regexp.Compile(ruleValue)
			if err != nil {
				continue // skip invalid regex
			}
			s.regexExclusions = append(s.regexExclusions, re)
		}
	}

	return rows.Err()
}

// IsExcluded reports whether a domain is blocked by exclusion rules.
// Subdomains of an excluded domain are excluded too.
func (s *SQLiteStore) IsExcluded(domain string) bool {
	domain = strings.ToLower(domain)
	for _, d := range s.domainExclusions {
		if domain == d || strings.HasSuffix(domain, "."+d) {
			return true
		}
	}
	for _, re := range s.regexExclusions {
		if re.MatchString(domain) {
			return true
		}
	}
	return false
}

// parseTimestamp tries several common SQLite timestamp formats.
func parseTimestamp(s string) (time.Time, error) {
	formats := []string{
		timeLayout,
		time.RFC3339Nano,
		time.RFC3339,
		"2006-01-02 15:04:05.999999999-07:00",
		"2006-01-02 15:04:05",
	}
	for _, f := range formats {
		if t, err := time.Parse(f, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("cannot parse timestamp: %s", s)
}

func formatTimestamp(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

// extractDomain pulls the lowercased hostname from a URL string.
func extractDomain(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}

func joinTopics(topics []string) string {
	return strings.Join(topics, ",")
}

func splitTopics(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, ",")
}

// mergeTopics returns the union of a and b, preserving first-seen order.
func mergeTopics(a, b []string) []string {
	seen := make(map[string]bool, len(a)+len(b))
	var out []string
	for _, t := range append(append([]string{}, a...), b...) {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}

// RecordVisit folds a navigation into the URL's history record, creating the
// record on first visit. Visits to excluded domains are silently skipped and
// return a nil record.
func (s *SQLiteStore) RecordVisit(ctx context.Context, visit *Visit) (*HistoryRecord, error) {
	domain := extractDomain(visit.URL)
	if domain == "" {
		return nil, fmt.Errorf("invalid URL: %q", visit.URL)
	}
	if s.IsExcluded(domain) {
		return nil, nil // silently skip
	}

	if visit.Timestamp.IsZero() {
		visit.Timestamp = time.Now()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	rec, err := scanRecord(tx.StmtContext(ctx, s.getRecord).QueryRowContext(ctx, visit.URL))
	switch {
	case errors.Is(err, ErrNotFound):
		rec = &HistoryRecord{
			ID:     uuid.NewString(),
			URL:    visit.URL,
			Domain: domain,
		}
	case err != nil:
		return nil, fmt.Errorf("load record: %w", err)
	}

	applyVisit(rec, visit)

	var engagement sql.NullFloat64
	if rec.Engagement != nil {
		engagement = sql.NullFloat64{Float64: *rec.Engagement, Valid: true}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO visits (`+recordColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(url) DO UPDATE SET
			title = excluded.title,
			last_visited = excluded.last_visited,
			visit_count = excluded.visit_count,
			engagement = excluded.engagement,
			pattern_hour = excluded.pattern_hour,
			pattern_weekday = excluded.pattern_weekday,
			time_spent_ms = excluded.time_spent_ms,
			search_query = excluded.search_query,
			tab_count = excluded.tab_count,
			topics = excluded.topics
	`,
		rec.ID, rec.URL, rec.Title, rec.Domain, formatTimestamp(rec.VisitedAt), rec.VisitCount,
		engagement, rec.TimePattern.Hour, int(rec.TimePattern.Weekday),
		rec.TimeSpent.Milliseconds(), rec.SearchQuery, rec.TabCount, joinTopics(rec.Topics),
	)
	if err != nil {
		return nil, fmt.Errorf("upsert visit: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit visit: %w", err)
	}
	return rec, nil
}

// applyVisit merges a new visit into an existing record. Dwell time is a
// running mean; the time pattern follows the latest visit.
func applyVisit(rec *HistoryRecord, v *Visit) {
	if v.Title != "" {
		rec.Title = v.Title
	}
	if v.TimeSpent > 0 {
		if rec.TimeSpent > 0 && rec.VisitCount > 0 {
			total := rec.TimeSpent*time.Duration(rec.VisitCount) + v.TimeSpent
			rec.TimeSpent = total / time.Duration(rec.VisitCount+1)
		} else {
			rec.TimeSpent = v.TimeSpent
		}
	}
	rec.VisitCount++
	if v.Timestamp.After(rec.VisitedAt) {
		rec.VisitedAt = v.Timestamp
	}
	if v.Engagement != nil {
		e := *v.Engagement
		rec.Engagement = &e
	}
	local := v.Timestamp.Local()
	rec.TimePattern = &TimePattern{Hour: local.Hour(), Weekday: local.Weekday()}
	if v.SearchQuery != "" {
		rec.SearchQuery = v.SearchQuery
	}
	if v.TabCount > 0 {
		rec.TabCount = v.TabCount
	}
	rec.Topics = mergeTopics(rec.Topics, v.Topics)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*HistoryRecord, error) {
	var (
		r          HistoryRecord
		tsStr      string
		engagement sql.NullFloat64
		hour       sql.NullInt64
		weekday    sql.NullInt64
		spentMS    int64
		topics     string
	)
	err := row.Scan(
		&r.ID, &r.URL, &r.Title, &r.Domain, &tsStr, &r.VisitCount, &engagement,
		&hour, &weekday, &spentMS, &r.SearchQuery, &r.TabCount, &topics,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	r.VisitedAt, _ = parseTimestamp(tsStr)
	if engagement.Valid {
		e := engagement.Float64
		r.Engagement = &e
	}
	if hour.Valid && weekday.Valid {
		r.TimePattern = &TimePattern{Hour: int(hour.Int64), Weekday: time.Weekday(weekday.Int64)}
	}
	r.TimeSpent = time.Duration(spentMS) * time.Millisecond
	r.Topics = splitTopics(topics)
	return &r, nil
}

// GetRecord retrieves the history record for an exact URL.
func (s *SQLiteStore) GetRecord(ctx context.Context, rawURL string) (*HistoryRecord, error) {
	rec, err := scanRecord(s.getRecord.QueryRowContext(ctx, rawURL))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, fmt.Errorf("record %s: %w", rawURL, ErrNotFound)
		}
		return nil, fmt.Errorf("get record: %w", err)
	}
	return rec, nil
}

// GetHistory returns records last visited inside the query's time range,
// most recent first.
func (s *SQLiteStore) GetHistory(ctx context.Context, q HistoryQuery) ([]HistoryRecord, error) {
	if q.Limit <= 0 {
		q.Limit = 1000
	}

	var clauses []string
	var args []interface{}
	if !q.Since.IsZero() {
		clauses = append(clauses, "last_visited >= ?")
		args = append(args, formatTimestamp(q.Since))
	}
	if !q.Until.IsZero() {
		clauses = append(clauses, "last_visited <= ?")
		args = append(args, formatTimestamp(q.Until))
	}

	where := ""
	if len(clauses) > 0 {
		where = " WHERE " + strings.Join(clauses, " AND ")
	}

	query := `SELECT ` + recordColumns + ` FROM visits` + where + ` ORDER BY last_visited DESC LIMIT ?`
	args = append(args, q.Limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	records := []HistoryRecord{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		records = append(records, *rec)
	}
	return records, rows.Err()
}

// RecordFeedback persists a usefulness report for a predicted URL.
func (s *SQLiteStore) RecordFeedback(ctx context.Context, fb Feedback) error {
	if fb.URL == "" {
		return fmt.Errorf("feedback URL is required")
	}
	if fb.ID == "" {
		fb.ID = uuid.NewString()
	}
	if fb.Timestamp.IsZero() {
		fb.Timestamp = time.Now()
	}
	_, err := s.insertFeedback.ExecContext(ctx, fb.ID, fb.URL, fb.Useful, formatTimestamp(fb.Timestamp))
	if err != nil {
		return fmt.Errorf("insert feedback: %w", err)
	}
	return nil
}

// GetBehaviorPatternSummary returns the last computed summary, or nil when
// patterns have never been computed.
func (s *SQLiteStore) GetBehaviorPatternSummary(ctx context.Context) (*BehaviorSummary, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, "SELECT value FROM config WHERE key = ?", behaviorSummaryKey).Scan(&raw)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("read behavior summary: %w", err)
	}

	var summary BehaviorSummary
	if err := json.Unmarshal([]byte(raw), &summary); err != nil {
		return nil, fmt.Errorf("decode behavior summary: %w", err)
	}
	return &summary, nil
}

// RecomputeBehaviorPatterns derives top domains and peak hours from the
// visits table and stores the result as the current summary.
func (s *SQLiteStore) RecomputeBehaviorPatterns(ctx context.Context) error {
	summary := BehaviorSummary{ComputedAt: time.Now().UTC()}

	err := s.db.QueryRowContext(ctx, "SELECT COALESCE(SUM(visit_count), 0) FROM visits").Scan(&summary.TotalVisits)
	if err != nil {
		return fmt.Errorf("count visits: %w", err)
	}
	if summary.TotalVisits == 0 {
		return nil
	}

	summary.TopDomains, err = s.topDomains(ctx, 10)
	if err != nil {
		return err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT pattern_hour, SUM(visit_count) AS cnt FROM visits
		WHERE pattern_hour IS NOT NULL
		GROUP BY pattern_hour ORDER BY cnt DESC, pattern_hour ASC LIMIT 3
	`)
	if err != nil {
		return fmt.Errorf("peak hours: %w", err)
	}
	for rows.Next() {
		var hour, cnt int64
		if err := rows.Scan(&hour, &cnt); err != nil {
			rows.Close()
			return err
		}
		summary.PeakHours = append(summary.PeakHours, int(hour))
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}
	sort.Ints(summary.PeakHours)

	raw, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("encode behavior summary: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO config (key, value, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP
	`, behaviorSummaryKey, string(raw))
	if err != nil {
		return fmt.Errorf("store behavior summary: %w", err)
	}
	return nil
}

func (s *SQLiteStore) topDomains(ctx context.Context, limit int) ([]DomainCount, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT domain, SUM(visit_count) AS cnt FROM visits GROUP BY domain ORDER BY cnt DESC, domain ASC LIMIT ?",
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("top domains: %w", err)
	}
	defer rows.Close()

	var out []DomainCount
	for rows.Next() {
		var dc DomainCount
		if err := rows.Scan(&dc.Domain, &dc.Count); err != nil {
			return nil, err
		}
		out = append(out, dc)
	}
	return out, rows.Err()
}

// CountExpired reports how many records PruneExpired would delete.
func (s *SQLiteStore) CountExpired(ctx context.Context, olderThan time.Time) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM visits WHERE last_visited < ?", formatTimestamp(olderThan),
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count expired: %w", err)
	}
	return n, nil
}

// PruneExpired deletes records last visited before olderThan.
func (s *SQLiteStore) PruneExpired(ctx context.Context, olderThan time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM visits WHERE last_visited < ?", formatTimestamp(olderThan))
	if err != nil {
		return 0, fmt.Errorf("prune visits: %w", err)
	}
	return res.RowsAffected()
}

// PurgeAll deletes all history, feedback and derived patterns.
func (s *SQLiteStore) PurgeAll(ctx context.Context) error {
	stmts := []string{
		"DELETE FROM feedback",
		"DELETE FROM visits",
		"DELETE FROM config WHERE key = '" + behaviorSummaryKey + "'",
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("purge (%s): %w", stmt, err)
		}
	}
	return nil
}

// GetStats returns aggregate statistics about the database.
func (s *SQLiteStore) GetStats(ctx context.Context) (*Stats, error) {
	stats := &Stats{}

	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*), COALESCE(SUM(visit_count), 0) FROM visits",
	).Scan(&stats.TotalURLs, &stats.TotalVisits)
	if err != nil {
		return nil, fmt.Errorf("count visits: %w", err)
	}

	err = s.db.QueryRowContext(ctx,
		"SELECT COUNT(*), COALESCE(SUM(CASE WHEN useful THEN 1 ELSE 0 END), 0) FROM feedback",
	).Scan(&stats.TotalFeedback, &stats.UsefulFeedback)
	if err != nil {
		return nil, fmt.Errorf("count feedback: %w", err)
	}

	// Oldest and newest (handle empty DB)
	if stats.TotalURLs > 0 {
		var oldestStr, newestStr string
		err = s.db.QueryRowContext(ctx, "SELECT MIN(last_visited), MAX(last_visited) FROM visits").Scan(&oldestStr, &newestStr)
		if err != nil {
			return nil, fmt.Errorf("visit time range: %w", err)
		}
		stats.OldestVisit, _ = parseTimestamp(oldestStr)
		stats.NewestVisit, _ = parseTimestamp(newestStr)
	}

	stats.TopDomains, err = s.topDomains(ctx, 10)
	if err != nil {
		return nil, err
	}
	return stats, nil
}

// Close releases all prepared statements. The underlying *sql.DB is NOT
// closed; that is the caller's responsibility.
func (s *SQLiteStore) Close() error {
	for _, stmt := range []*sql.Stmt{s.getRecord, s.insertFeedback} {
		if stmt != nil {
			stmt.Close()
		}
	}
	return nil
}
