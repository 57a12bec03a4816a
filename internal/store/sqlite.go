// ABOUTME: SQLite implementation of the Store interface using modernc.org/sqlite
// ABOUTME: Provides transcript/metrics/feedback persistence with automatic schema creation

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements the Store interface using SQLite
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore creates a new SQLite store at the given path.
// The schema is automatically created if it doesn't exist.
// Parent directories are created if needed.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store")

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// WAL mode for better concurrent performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	s := &SQLiteStore{
		db:     db,
		logger: logger,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("SQLite store initialized", "path", path)
	return s, nil
}

// createSchema creates the database tables if they don't exist
func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS sessions (
			session_id TEXT PRIMARY KEY,
			started_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS messages (
			id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			created_at TEXT NOT NULL,

			CHECK (role IN ('user', 'assistant', 'system'))
		);

		CREATE INDEX IF NOT EXISTS idx_messages_session
			ON messages(session_id, created_at);

		CREATE TABLE IF NOT EXISTS latencies (
			session_id TEXT NOT NULL,
			kind TEXT NOT NULL,
			latency_ms REAL NOT NULL,
			recorded_at TEXT NOT NULL,

			CHECK (kind IN ('retrieval', 'llm'))
		);

		CREATE INDEX IF NOT EXISTS idx_latencies_session
			ON latencies(session_id, kind);

		CREATE TABLE IF NOT EXISTS recommendations (
			session_id TEXT NOT NULL,
			sku TEXT NOT NULL,
			recorded_at TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_recommendations_session
			ON recommendations(session_id);

		CREATE TABLE IF NOT EXISTS message_feedback (
			session_id TEXT NOT NULL,
			message_id TEXT NOT NULL,
			feedback TEXT NOT NULL,
			recorded_at TEXT NOT NULL,

			PRIMARY KEY (session_id, message_id),
			CHECK (feedback IN ('positive', 'negative'))
		);

		CREATE TABLE IF NOT EXISTS conversation_feedback (
			session_id TEXT PRIMARY KEY,
			rating INTEGER NOT NULL,
			comment TEXT,
			products_json TEXT NOT NULL,
			created_at TEXT NOT NULL,

			CHECK (rating BETWEEN 1 AND 5)
		);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	s.logger.Info("closing SQLite store")
	return s.db.Close()
}

// touchSession creates the session row on first activity and bumps
// updated_at on every subsequent write
func (s *SQLiteStore) touchSession(ctx context.Context, sessionID string, now time.Time) error {
	ts := now.UTC().Format(time.RFC3339)
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (session_id, started_at, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(session_id) DO UPDATE SET updated_at = excluded.updated_at
	`, sessionID, ts, ts)
	if err != nil {
		return fmt.Errorf("touching session: %w", err)
	}
	return nil
}

// LogMessage appends a message to a session's transcript
func (s *SQLiteStore) LogMessage(ctx context.Context, msg *StoredMessage) error {
	if err := s.touchSession(ctx, msg.SessionID, msg.CreatedAt); err != nil {
		return err
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO messages (id, session_id, role, content, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, msg.ID, msg.SessionID, msg.Role, msg.Content,
		msg.CreatedAt.UTC().Format(time.RFC3339))
	if err != nil {
		if isConstraintViolation(err) {
			return ErrDuplicateMessage
		}
		return fmt.Errorf("inserting message: %w", err)
	}

	s.logger.Debug("logged message", "id", msg.ID, "session_id", msg.SessionID, "role", msg.Role)
	return nil
}

// isConstraintViolation checks if the error is a SQLite constraint violation
func isConstraintViolation(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "UNIQUE constraint failed") ||
		strings.Contains(errStr, "constraint failed")
}

// SessionHistory returns a session's messages in chronological order
func (s *SQLiteStore) SessionHistory(ctx context.Context, sessionID string) ([]*StoredMessage, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, role, content, created_at
		FROM messages
		WHERE session_id = ?
		ORDER BY created_at ASC, id ASC
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("querying messages: %w", err)
	}
	defer rows.Close()

	var messages []*StoredMessage
	for rows.Next() {
		var msg StoredMessage
		var createdAtStr string

		if err := rows.Scan(&msg.ID, &msg.SessionID, &msg.Role, &msg.Content, &createdAtStr); err != nil {
			return nil, fmt.Errorf("scanning message row: %w", err)
		}

		msg.CreatedAt, err = time.Parse(time.RFC3339, createdAtStr)
		if err != nil {
			return nil, fmt.Errorf("parsing message created_at: %w", err)
		}

		messages = append(messages, &msg)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating message rows: %w", err)
	}
	return messages, nil
}

func (s *SQLiteStore) recordLatency(ctx context.Context, sessionID, kind string, latencyMS float64) error {
	now := time.Now()
	if err := s.touchSession(ctx, sessionID, now); err != nil {
		return err
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO latencies (session_id, kind, latency_ms, recorded_at)
		VALUES (?, ?, ?, ?)
	`, sessionID, kind, latencyMS, now.UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("inserting %s latency: %w", kind, err)
	}
	return nil
}

// RecordRetrievalLatency logs one retrieval timing for a session
func (s *SQLiteStore) RecordRetrievalLatency(ctx context.Context, sessionID string, latencyMS float64) error {
	return s.recordLatency(ctx, sessionID, "retrieval", latencyMS)
}

// RecordLLMLatency logs one model-call timing for a session
func (s *SQLiteStore) RecordLLMLatency(ctx context.Context, sessionID string, latencyMS float64) error {
	return s.recordLatency(ctx, sessionID, "llm", latencyMS)
}

// RecordRecommendations logs product SKUs surfaced in a session
func (s *SQLiteStore) RecordRecommendations(ctx context.Context, sessionID string, skus []string) error {
	if len(skus) == 0 {
		return nil
	}

	now := time.Now()
	if err := s.touchSession(ctx, sessionID, now); err != nil {
		return err
	}

	ts := now.UTC().Format(time.RFC3339)
	for _, sku := range skus {
		if _, err := s.db.ExecContext(ctx, `
			INSERT INTO recommendations (session_id, sku, recorded_at)
			VALUES (?, ?, ?)
		`, sessionID, sku, ts); err != nil {
			return fmt.Errorf("inserting recommendation: %w", err)
		}
	}

	s.logger.Debug("recorded recommendations", "session_id", sessionID, "count", len(skus))
	return nil
}

// RecordMessageFeedback stores a thumbs-up/down on one assistant message
func (s *SQLiteStore) RecordMessageFeedback(ctx context.Context, sessionID, messageID, feedback string) error {
	now := time.Now()
	if err := s.touchSession(ctx, sessionID, now); err != nil {
		return err
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO message_feedback (session_id, message_id, feedback, recorded_at)
		VALUES (?, ?, ?, ?)
	`, sessionID, messageID, feedback, now.UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("recording message feedback: %w", err)
	}

	s.logger.Debug("recorded message feedback", "session_id", sessionID, "message_id", messageID, "feedback", feedback)
	return nil
}

// RecordConversationFeedback stores a rating for a whole conversation.
// The products recommended so far in the session are snapshotted alongside
// the rating so the listing can show them even after the session moves on.
func (s *SQLiteStore) RecordConversationFeedback(ctx context.Context, sessionID string, rating int, comment string) error {
	now := time.Now()
	if err := s.touchSession(ctx, sessionID, now); err != nil {
		return err
	}

	products, err := s.sessionProducts(ctx, sessionID)
	if err != nil {
		return err
	}
	productsJSON, err := json.Marshal(products)
	if err != nil {
		return fmt.Errorf("encoding products: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO conversation_feedback (session_id, rating, comment, products_json, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, sessionID, rating, nullString(comment), string(productsJSON),
		now.UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("recording conversation feedback: %w", err)
	}

	s.logger.Info("recorded conversation feedback", "session_id", sessionID, "rating", rating)
	return nil
}

// nullString returns nil for empty strings, otherwise the string
func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// GetConversationFeedback returns a session's conversation rating.
// Returns ErrNotFound if none has been recorded.
func (s *SQLiteStore) GetConversationFeedback(ctx context.Context, sessionID string) (*ConversationFeedback, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT session_id, rating, comment, products_json, created_at
		FROM conversation_feedback
		WHERE session_id = ?
	`, sessionID)

	var fb ConversationFeedback
	var comment sql.NullString
	var productsJSON, createdAtStr string

	err := row.Scan(&fb.SessionID, &fb.Rating, &comment, &productsJSON, &createdAtStr)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning conversation feedback: %w", err)
	}

	if comment.Valid {
		fb.Comment = comment.String
	}
	if err := json.Unmarshal([]byte(productsJSON), &fb.ProductsRecommended); err != nil {
		return nil, fmt.Errorf("decoding products: %w", err)
	}
	fb.CreatedAt, err = time.Parse(time.RFC3339, createdAtStr)
	if err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}

	return &fb, nil
}

// sessionProducts returns the SKUs recommended in a session, in insertion order
func (s *SQLiteStore) sessionProducts(ctx context.Context, sessionID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT sku FROM recommendations
		WHERE session_id = ?
		ORDER BY rowid ASC
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("querying recommendations: %w", err)
	}
	defer rows.Close()

	products := []string{}
	for rows.Next() {
		var sku string
		if err := rows.Scan(&sku); err != nil {
			return nil, fmt.Errorf("scanning recommendation: %w", err)
		}
		products = append(products, sku)
	}
	return products, rows.Err()
}

// ListConversations returns summaries of all sessions, most recent first
func (s *SQLiteStore) ListConversations(ctx context.Context) ([]*ConversationSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT session_id, started_at, updated_at
		FROM sessions
		ORDER BY updated_at DESC, session_id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("querying sessions: %w", err)
	}
	defer rows.Close()

	var summaries []*ConversationSummary
	for rows.Next() {
		var summary ConversationSummary
		var startedAtStr, updatedAtStr string

		if err := rows.Scan(&summary.SessionID, &startedAtStr, &updatedAtStr); err != nil {
			return nil, fmt.Errorf("scanning session row: %w", err)
		}

		summary.StartedAt, err = time.Parse(time.RFC3339, startedAtStr)
		if err != nil {
			return nil, fmt.Errorf("parsing started_at: %w", err)
		}
		summary.UpdatedAt, err = time.Parse(time.RFC3339, updatedAtStr)
		if err != nil {
			return nil, fmt.Errorf("parsing updated_at: %w", err)
		}

		summaries = append(summaries, &summary)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating session rows: %w", err)
	}

	for _, summary := range summaries {
		if err := s.fillSummary(ctx, summary); err != nil {
			return nil, err
		}
	}
	return summaries, nil
}

// fillSummary populates the per-session fields of a ConversationSummary
func (s *SQLiteStore) fillSummary(ctx context.Context, summary *ConversationSummary) error {
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM messages WHERE session_id = ?
	`, summary.SessionID).Scan(&summary.MessageCount)
	if err != nil {
		return fmt.Errorf("counting messages: %w", err)
	}

	var firstUser sql.NullString
	err = s.db.QueryRowContext(ctx, `
		SELECT content FROM messages
		WHERE session_id = ? AND role = 'user'
		ORDER BY created_at ASC, id ASC
		LIMIT 1
	`, summary.SessionID).Scan(&firstUser)
	if err != nil && err != sql.ErrNoRows {
		return fmt.Errorf("querying first user message: %w", err)
	}
	if firstUser.Valid {
		summary.FirstUserMessage = firstUser.String
	}

	summary.ProductsRecommended, err = s.sessionProducts(ctx, summary.SessionID)
	if err != nil {
		return err
	}

	fb, err := s.GetConversationFeedback(ctx, summary.SessionID)
	if err != nil && err != ErrNotFound {
		return err
	}
	summary.Feedback = fb
	if err == ErrNotFound {
		summary.Feedback = nil
	}
	return nil
}

// GetSessionMetrics returns the rollup for one session
func (s *SQLiteStore) GetSessionMetrics(ctx context.Context, sessionID string) (*SessionMetrics, error) {
	metrics := &SessionMetrics{SessionID: sessionID}

	var startedAtStr, updatedAtStr string
	err := s.db.QueryRowContext(ctx, `
		SELECT started_at, updated_at FROM sessions WHERE session_id = ?
	`, sessionID).Scan(&startedAtStr, &updatedAtStr)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying session: %w", err)
	}

	metrics.StartedAt, err = time.Parse(time.RFC3339, startedAtStr)
	if err != nil {
		return nil, fmt.Errorf("parsing started_at: %w", err)
	}
	metrics.UpdatedAt, err = time.Parse(time.RFC3339, updatedAtStr)
	if err != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", err)
	}

	err = s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM messages WHERE session_id = ? AND role = 'user'
	`, sessionID).Scan(&metrics.TurnCount)
	if err != nil {
		return nil, fmt.Errorf("counting turns: %w", err)
	}

	metrics.RetrievalLatencyMS, err = s.averageLatency(ctx, sessionID, "retrieval")
	if err != nil {
		return nil, err
	}
	metrics.LLMLatencyMS, err = s.averageLatency(ctx, sessionID, "llm")
	if err != nil {
		return nil, err
	}

	metrics.RecommendedProducts, err = s.sessionProducts(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	metrics.UserFeedback = map[string]string{}
	rows, err := s.db.QueryContext(ctx, `
		SELECT message_id, feedback FROM message_feedback WHERE session_id = ?
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("querying message feedback: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var messageID, feedback string
		if err := rows.Scan(&messageID, &feedback); err != nil {
			return nil, fmt.Errorf("scanning message feedback: %w", err)
		}
		metrics.UserFeedback[messageID] = feedback
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating message feedback: %w", err)
	}

	return metrics, nil
}

// averageLatency returns the mean of one latency kind for a session,
// or 0 when none were recorded
func (s *SQLiteStore) averageLatency(ctx context.Context, sessionID, kind string) (float64, error) {
	var avg sql.NullFloat64
	err := s.db.QueryRowContext(ctx, `
		SELECT AVG(latency_ms) FROM latencies WHERE session_id = ? AND kind = ?
	`, sessionID, kind).Scan(&avg)
	if err != nil {
		return 0, fmt.Errorf("averaging %s latency: %w", kind, err)
	}
	if !avg.Valid {
		return 0, nil
	}
	return avg.Float64, nil
}

// GetAggregateMetrics returns the rollup across all sessions.
// Latency averages are computed per session first, then averaged across
// sessions, so a chatty session doesn't dominate the fleet numbers.
func (s *SQLiteStore) GetAggregateMetrics(ctx context.Context) (*AggregateMetrics, error) {
	agg := &AggregateMetrics{MostRecommendedProducts: []string{}}

	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sessions`).Scan(&agg.TotalSessions)
	if err != nil {
		return nil, fmt.Errorf("counting sessions: %w", err)
	}
	if agg.TotalSessions == 0 {
		return agg, nil
	}

	var totalTurns int
	err = s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM messages WHERE role = 'user'
	`).Scan(&totalTurns)
	if err != nil {
		return nil, fmt.Errorf("counting user messages: %w", err)
	}
	agg.AverageTurns = float64(totalTurns) / float64(agg.TotalSessions)

	agg.AverageRetrievalLatencyMS, err = s.fleetAverageLatency(ctx, "retrieval", agg.TotalSessions)
	if err != nil {
		return nil, err
	}
	agg.AverageLLMLatencyMS, err = s.fleetAverageLatency(ctx, "llm", agg.TotalSessions)
	if err != nil {
		return nil, err
	}

	agg.MostRecommendedProducts, err = s.topProducts(ctx, 5)
	if err != nil {
		return nil, err
	}

	var total, positive int
	err = s.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(SUM(feedback = 'positive'), 0) FROM message_feedback
	`).Scan(&total, &positive)
	if err != nil {
		return nil, fmt.Errorf("counting feedback: %w", err)
	}
	if total > 0 {
		ratio := float64(positive) / float64(total)
		agg.PositiveFeedbackRatio = &ratio
	}

	return agg, nil
}

// fleetAverageLatency sums per-session averages and divides by the total
// session count, counting silent sessions as zero
func (s *SQLiteStore) fleetAverageLatency(ctx context.Context, kind string, totalSessions int) (float64, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT AVG(latency_ms) FROM latencies WHERE kind = ? GROUP BY session_id
	`, kind)
	if err != nil {
		return 0, fmt.Errorf("averaging %s latencies: %w", kind, err)
	}
	defer rows.Close()

	var sum float64
	for rows.Next() {
		var avg float64
		if err := rows.Scan(&avg); err != nil {
			return 0, fmt.Errorf("scanning %s average: %w", kind, err)
		}
		sum += avg
	}
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("iterating %s averages: %w", kind, err)
	}
	return sum / float64(totalSessions), nil
}

// topProducts returns the most recommended SKUs across all sessions,
// ties broken alphabetically for a stable ordering
func (s *SQLiteStore) topProducts(ctx context.Context, limit int) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT sku, COUNT(*) AS freq
		FROM recommendations
		GROUP BY sku
	`)
	if err != nil {
		return nil, fmt.Errorf("querying product frequency: %w", err)
	}
	defer rows.Close()

	type productCount struct {
		sku   string
		count int
	}
	var counts []productCount
	for rows.Next() {
		var pc productCount
		if err := rows.Scan(&pc.sku, &pc.count); err != nil {
			return nil, fmt.Errorf("scanning product frequency: %w", err)
		}
		counts = append(counts, pc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating product frequency: %w", err)
	}

	sort.Slice(counts, func(i, j int) bool {
		if counts[i].count != counts[j].count {
			return counts[i].count > counts[j].count
		}
		return counts[i].sku < counts[j].sku
	})

	top := []string{}
	for i, pc := range counts {
		if i >= limit {
			break
		}
		top = append(top, pc.sku)
	}
	return top, nil
}

// Ensure SQLiteStore implements Store interface
var _ Store = (*SQLiteStore)(nil)
