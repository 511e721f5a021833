package storage

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	// Import the SQLite driver.
	_ "modernc.org/sqlite"
)

const DefaultRequestLogKeep = 1000

const requestSchema = `
CREATE TABLE IF NOT EXISTS requests (
	seq        INTEGER PRIMARY KEY AUTOINCREMENT,
	id         TEXT NOT NULL UNIQUE,
	ts         INTEGER NOT NULL,
	user_id    TEXT NOT NULL,
	input      TEXT NOT NULL,
	processed  TEXT NOT NULL,
	provenance TEXT NOT NULL,
	intent     TEXT NOT NULL DEFAULT '',
	confidence REAL NOT NULL DEFAULT 0,
	tier       TEXT NOT NULL DEFAULT '',
	fallback   INTEGER NOT NULL DEFAULT 0,
	latency_ms INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_requests_intent ON requests(intent);
`

type RequestRecord struct {
	ID         string    `json:"id"`
	Timestamp  time.Time `json:"timestamp"`
	UserID     string    `json:"user_id"`
	Input      string    `json:"input"`
	Processed  string    `json:"processed"`
	Provenance string    `json:"provenance"`
	Intent     string    `json:"intent,omitempty"`
	Confidence float64   `json:"confidence"`
	Tier       string    `json:"tier,omitempty"`
	Fallback   bool      `json:"fallback"`
	LatencyMs  int64     `json:"latency_ms"`
}

// RequestLog is a SQLite table of handled requests, trimmed to the newest keep rows.
type RequestLog struct {
	db   *sql.DB
	keep int
}

// OpenRequestLog opens or creates the database at path. ":memory:" works for tests.
func OpenRequestLog(ctx context.Context, path string, keep int) (*RequestLog, error) {
	if path == "" {
		return nil, errors.New("request log path required")
	}
	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(10000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open request log: %s", path)
	}
	// one writer; also keeps a :memory: database alive across calls
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(0)

	if _, err := db.ExecContext(ctx, requestSchema); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "failed to create requests table")
	}
	if keep <= 0 {
		keep = DefaultRequestLogKeep
	}
	return &RequestLog{db: db, keep: keep}, nil
}

// Record inserts rec, filling ID and Timestamp when empty.
func (l *RequestLog) Record(ctx context.Context, rec RequestRecord) (string, error) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now()
	}
	_, err := l.db.ExecContext(ctx,
		`INSERT INTO requests (id, ts, user_id, input, processed, provenance, intent, confidence, tier, fallback, latency_ms)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Timestamp.UnixMilli(), rec.UserID, rec.Input, rec.Processed, rec.Provenance,
		rec.Intent, rec.Confidence, rec.Tier, rec.Fallback, rec.LatencyMs)
	if err != nil {
		return "", errors.Wrap(err, "failed to insert request")
	}

	_, err = l.db.ExecContext(ctx,
		`DELETE FROM requests WHERE seq <= (SELECT seq FROM requests ORDER BY seq DESC LIMIT 1 OFFSET ?)`, l.keep)
	if err != nil {
		return rec.ID, errors.Wrap(err, "failed to trim request log")
	}
	return rec.ID, nil
}

// Recent returns up to n records, newest first.
func (l *RequestLog) Recent(ctx context.Context, n int) ([]RequestRecord, error) {
	rows, err := l.db.QueryContext(ctx,
		`SELECT id, ts, user_id, input, processed, provenance, intent, confidence, tier, fallback, latency_ms
		 FROM requests ORDER BY seq DESC LIMIT ?`, n)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query requests")
	}
	defer rows.Close()

	var out []RequestRecord
	for rows.Next() {
		var (
			rec RequestRecord
			ts  int64
		)
		if err := rows.Scan(&rec.ID, &ts, &rec.UserID, &rec.Input, &rec.Processed, &rec.Provenance,
			&rec.Intent, &rec.Confidence, &rec.Tier, &rec.Fallback, &rec.LatencyMs); err != nil {
			return nil, errors.Wrap(err, "failed to scan request")
		}
		rec.Timestamp = time.UnixMilli(ts)
		out = append(out, rec)
	}
	return out, rows.Err()
}

type Share struct {
	Count int     `json:"count"`
	Rate  float64 `json:"rate"`
}

type IntentShare struct {
	Intent     string  `json:"intent"`
	Count      int     `json:"count"`
	Percentage float64 `json:"percentage"`
}

type Analytics struct {
	TotalRequests      int              `json:"total_requests"`
	AverageConfidence  float64          `json:"average_confidence"`
	AverageLatencyMs   float64          `json:"average_latency_ms"`
	FallbackRate       float64          `json:"fallback_rate"`
	Provenance         map[string]Share `json:"provenance"`
	ConfidenceLevels   map[string]Share `json:"confidence_levels"`
	IntentDistribution map[string]int   `json:"intent_distribution"`
	TopIntents         []IntentShare    `json:"top_intents"`
}

// Analytics summarizes the retained rows. Average confidence and the intent distribution only
// cover classifier answers; memory rotations repeat an earlier intent and are counted by provenance.
func (l *RequestLog) Analytics(ctx context.Context) (*Analytics, error) {
	a := &Analytics{
		Provenance:         map[string]Share{},
		ConfidenceLevels:   map[string]Share{},
		IntentDistribution: map[string]int{},
		TopIntents:         []IntentShare{},
	}

	var (
		avgLatency sql.NullFloat64
		fallbacks  sql.NullInt64
	)
	err := l.db.QueryRowContext(ctx, `SELECT COUNT(*), AVG(latency_ms), SUM(fallback) FROM requests`).
		Scan(&a.TotalRequests, &avgLatency, &fallbacks)
	if err != nil {
		return nil, errors.Wrap(err, "failed to count requests")
	}
	if a.TotalRequests == 0 {
		return a, nil
	}
	total := float64(a.TotalRequests)
	a.AverageLatencyMs = avgLatency.Float64
	a.FallbackRate = float64(fallbacks.Int64) / total

	var avgConf sql.NullFloat64
	if err := l.db.QueryRowContext(ctx, `SELECT AVG(confidence) FROM requests WHERE provenance = 'ml'`).Scan(&avgConf); err != nil {
		return nil, errors.Wrap(err, "failed to average confidence")
	}
	a.AverageConfidence = avgConf.Float64

	if err := l.shares(ctx, `SELECT provenance, COUNT(*) FROM requests GROUP BY provenance`, total, a.Provenance); err != nil {
		return nil, err
	}
	if err := l.shares(ctx, `SELECT tier, COUNT(*) FROM requests WHERE tier != '' GROUP BY tier`, total, a.ConfidenceLevels); err != nil {
		return nil, err
	}

	rows, err := l.db.QueryContext(ctx,
		`SELECT intent, COUNT(*) AS n FROM requests WHERE intent != '' AND provenance = 'ml' GROUP BY intent ORDER BY n DESC, intent`)
	if err != nil {
		return nil, errors.Wrap(err, "failed to group intents")
	}
	defer rows.Close()
	for rows.Next() {
		var (
			intent string
			n      int
		)
		if err := rows.Scan(&intent, &n); err != nil {
			return nil, errors.Wrap(err, "failed to scan intent")
		}
		a.IntentDistribution[intent] = n
		if len(a.TopIntents) < 5 {
			a.TopIntents = append(a.TopIntents, IntentShare{Intent: intent, Count: n, Percentage: float64(n) / total * 100})
		}
	}
	return a, rows.Err()
}

func (l *RequestLog) shares(ctx context.Context, query string, total float64, into map[string]Share) error {
	rows, err := l.db.QueryContext(ctx, query)
	if err != nil {
		return errors.Wrap(err, "failed to group requests")
	}
	defer rows.Close()
	for rows.Next() {
		var (
			key string
			n   int
		)
		if err := rows.Scan(&key, &n); err != nil {
			return errors.Wrap(err, "failed to scan group")
		}
		into[key] = Share{Count: n, Rate: float64(n) / total}
	}
	return rows.Err()
}

func (l *RequestLog) Close() error {
	return l.db.Close()
}
