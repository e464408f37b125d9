package trajectory

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schemaSQL string

// SessionRecord is a persisted session with its trajectory and usage.
type SessionRecord struct {
	ID         string
	Query      string
	Answer     string
	Success    bool
	Iterations int
	TotalCost  float64
	CreatedAt  time.Time
	Steps      []Step
	Usage      []UsageRecord
}

// Store persists finished sessions to SQLite.
type Store struct {
	mu     sync.Mutex
	db     *sql.DB
	ownsDB bool
}

// StoreConfig configures the session store.
type StoreConfig struct {
	// Path is the database file. Empty means in-memory.
	Path string

	// DB is an existing connection to use instead of opening one.
	DB *sql.DB
}

// NewStore opens (or adopts) a database and ensures the schema exists.
func NewStore(cfg StoreConfig) (*Store, error) {
	db := cfg.DB
	ownsDB := false
	if db == nil {
		dsn := cfg.Path
		if dsn == "" {
			dsn = "file::memory:?cache=shared"
		}
		var err error
		db, err = sql.Open("sqlite", dsn)
		if err != nil {
			return nil, fmt.Errorf("open database: %w", err)
		}
		ownsDB = true
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		if ownsDB {
			db.Close()
		}
		return nil, fmt.Errorf("init schema: %w", err)
	}

	return &Store{db: db, ownsDB: ownsDB}, nil
}

// Close closes the database if owned.
func (s *Store) Close() error {
	if s.ownsDB && s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Save writes a finished session and returns its id.
func (s *Store) Save(ctx context.Context, rec SessionRecord) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO sessions (id, query, answer, success, iterations, total_cost) VALUES (?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Query, rec.Answer, rec.Success, rec.Iterations, rec.TotalCost)
	if err != nil {
		return "", fmt.Errorf("insert session: %w", err)
	}

	for _, st := range rec.Steps {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO steps (session_id, iteration, type, response, code, output, error) VALUES (?, ?, ?, ?, ?, ?, ?)`,
			rec.ID, st.Iteration, string(st.Type), st.Response, st.Code, st.Output, st.Error)
		if err != nil {
			return "", fmt.Errorf("insert step: %w", err)
		}
	}

	for _, u := range rec.Usage {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO usage_records (session_id, model, prompt_tokens, completion_tokens, cost) VALUES (?, ?, ?, ?, ?)`,
			rec.ID, u.Model, u.PromptTokens, u.CompletionTokens, u.Cost)
		if err != nil {
			return "", fmt.Errorf("insert usage: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("commit: %w", err)
	}
	return rec.ID, nil
}

// Get loads a session with its full trajectory.
func (s *Store) Get(ctx context.Context, id string) (*SessionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec := SessionRecord{ID: id}
	err := s.db.QueryRowContext(ctx,
		`SELECT query, answer, success, iterations, total_cost, created_at FROM sessions WHERE id = ?`, id).
		Scan(&rec.Query, &rec.Answer, &rec.Success, &rec.Iterations, &rec.TotalCost, &rec.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("load session %s: %w", id, err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT iteration, type, response, code, output, error, created_at FROM steps WHERE session_id = ? ORDER BY id`, id)
	if err != nil {
		return nil, fmt.Errorf("load steps: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var st Step
		var typ string
		var response, code, output, errText sql.NullString
		if err := rows.Scan(&st.Iteration, &typ, &response, &code, &output, &errText, &st.Timestamp); err != nil {
			return nil, fmt.Errorf("scan step: %w", err)
		}
		st.Type = StepType(typ)
		st.Response = response.String
		st.Code = code.String
		st.Output = output.String
		st.Error = errText.String
		rec.Steps = append(rec.Steps, st)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	urows, err := s.db.QueryContext(ctx,
		`SELECT model, prompt_tokens, completion_tokens, cost FROM usage_records WHERE session_id = ? ORDER BY id`, id)
	if err != nil {
		return nil, fmt.Errorf("load usage: %w", err)
	}
	defer urows.Close()
	for urows.Next() {
		var u UsageRecord
		if err := urows.Scan(&u.Model, &u.PromptTokens, &u.CompletionTokens, &u.Cost); err != nil {
			return nil, fmt.Errorf("scan usage: %w", err)
		}
		rec.Usage = append(rec.Usage, u)
	}
	return &rec, urows.Err()
}

// List returns recent sessions without their trajectories, newest first.
func (s *Store) List(ctx context.Context, limit int) ([]SessionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, query, answer, success, iterations, total_cost, created_at FROM sessions ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var out []SessionRecord
	for rows.Next() {
		var rec SessionRecord
		if err := rows.Scan(&rec.ID, &rec.Query, &rec.Answer, &rec.Success, &rec.Iterations, &rec.TotalCost, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
