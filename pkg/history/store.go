package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"

	"github.com/harun/quiver/internal/observability"
	"github.com/harun/quiver/pkg/toolmanager"
)

// maxContentBytes bounds the stored tool output per row.
const maxContentBytes = 4096

// Entry is one recorded tool call outcome.
type Entry struct {
	ID           int64     `json:"id"`
	RunID        string    `json:"run_id"`
	DispatchID   string    `json:"dispatch_id"`
	CallID       string    `json:"call_id"`
	Tool         string    `json:"tool"`
	Outcome      string    `json:"outcome"`
	Content      string    `json:"content,omitempty"`
	ErrorMessage string    `json:"error_message,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// Config holds history store configuration.
type Config struct {
	Path string `json:"path" mapstructure:"path"`
}

// Store persists tool call outcomes to SQLite. Writes happen after a
// dispatch settles, never inside the fan-out.
type Store struct {
	db     *sql.DB
	logger zerolog.Logger
}

// NewStore opens (or creates) the history database.
func NewStore(cfg Config, logger zerolog.Logger) (*Store, error) {
	if cfg.Path == "" {
		return nil, errors.New("history database path is required")
	}

	db, err := sql.Open("sqlite3", cfg.Path+"?_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open history database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	s := &Store{
		db:     db,
		logger: logger.With().Str("component", "history").Logger(),
	}

	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize history schema: %w", err)
	}

	s.logger.Info().Str("path", cfg.Path).Msg("History store ready")
	return s, nil
}

func (s *Store) initSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS tool_calls (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id TEXT NOT NULL,
			dispatch_id TEXT NOT NULL,
			call_id TEXT NOT NULL,
			tool TEXT NOT NULL,
			outcome TEXT NOT NULL,
			content TEXT NOT NULL DEFAULT '',
			error_message TEXT NOT NULL DEFAULT '',
			created_at INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_tool_calls_run ON tool_calls(run_id);
		CREATE INDEX IF NOT EXISTS idx_tool_calls_tool ON tool_calls(tool);
		CREATE INDEX IF NOT EXISTS idx_tool_calls_created ON tool_calls(created_at);
	`

	_, err := s.db.Exec(schema)
	return err
}

// RecordResponses writes one row per response in a single transaction.
func (s *Store) RecordResponses(ctx context.Context, runID, dispatchID string, responses []toolmanager.ToolCallResponse) error {
	if len(responses) == 0 {
		return nil
	}

	start := time.Now()
	err := s.recordResponses(ctx, runID, dispatchID, responses)
	observability.RecordHistoryWrite(time.Since(start), err == nil)
	if err != nil {
		s.logger.Error().
			Str("run_id", runID).
			Str("dispatch_id", dispatchID).
			Err(err).
			Msg("Failed to record tool call history")
		return err
	}

	s.logger.Debug().
		Str("run_id", runID).
		Str("dispatch_id", dispatchID).
		Int("rows", len(responses)).
		Msg("Tool call history recorded")
	return nil
}

func (s *Store) recordResponses(ctx context.Context, runID, dispatchID string, responses []toolmanager.ToolCallResponse) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO tool_calls (run_id, dispatch_id, call_id, tool, outcome, content, error_message, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UnixMilli()
	for _, resp := range responses {
		outcome := "success"
		if !resp.Successful() {
			outcome = "error"
		}
		content := resp.Content
		if len(content) > maxContentBytes {
			content = content[:maxContentBytes]
		}
		if _, err := stmt.ExecContext(ctx, runID, dispatchID, resp.ID, resp.Name, outcome, content, resp.ErrorMessage, now); err != nil {
			return fmt.Errorf("failed to insert tool call row: %w", err)
		}
	}

	return tx.Commit()
}

// Recent returns the newest entries, most recent first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	return s.query(ctx, `
		SELECT id, run_id, dispatch_id, call_id, tool, outcome, content, error_message, created_at
		FROM tool_calls ORDER BY id DESC LIMIT ?
	`, limit)
}

// ByRun returns every entry of one agent run in insertion order.
func (s *Store) ByRun(ctx context.Context, runID string) ([]Entry, error) {
	return s.query(ctx, `
		SELECT id, run_id, dispatch_id, call_id, tool, outcome, content, error_message, created_at
		FROM tool_calls WHERE run_id = ? ORDER BY id
	`, runID)
}

// ByTool returns the newest entries for one tool, most recent first.
func (s *Store) ByTool(ctx context.Context, tool string, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	return s.query(ctx, `
		SELECT id, run_id, dispatch_id, call_id, tool, outcome, content, error_message, created_at
		FROM tool_calls WHERE tool = ? ORDER BY id DESC LIMIT ?
	`, tool, limit)
}

func (s *Store) query(ctx context.Context, query string, args ...interface{}) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("history query failed: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var createdAt int64
		if err := rows.Scan(&e.ID, &e.RunID, &e.DispatchID, &e.CallID, &e.Tool, &e.Outcome, &e.Content, &e.ErrorMessage, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan history row: %w", err)
		}
		e.CreatedAt = time.UnixMilli(createdAt)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}
