package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/mohammad-safakhou/analyst/internal/agent"
)

type Store struct {
	DB *sql.DB
}

var (
	// ErrNotFound is returned when a row does not exist or belongs to another user.
	ErrNotFound = errors.New("not found")
	// ErrDuplicate is returned on a unique constraint violation.
	ErrDuplicate = errors.New("already exists")
)

// Analysis statuses.
const (
	StatusDone   = "done"
	StatusFailed = "failed"
)

// NewWithDSN constructs the Store using an explicit Postgres DSN
func NewWithDSN(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{DB: db}, nil
}

// Close closes the database handle.
func (s *Store) Close() error { return s.DB.Close() }

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

// User operations
func (s *Store) CreateUser(ctx context.Context, email, hash string) (string, error) {
	var id string
	err := s.DB.QueryRowContext(ctx, `INSERT INTO users (email, password_hash) VALUES ($1,$2) RETURNING id`, email, hash).Scan(&id)
	if isUniqueViolation(err) {
		return "", fmt.Errorf("user %s: %w", email, ErrDuplicate)
	}
	return id, err
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (id string, hash string, err error) {
	err = s.DB.QueryRowContext(ctx, `SELECT id, password_hash FROM users WHERE email=$1`, email).Scan(&id, &hash)
	if errors.Is(err, sql.ErrNoRows) {
		err = ErrNotFound
	}
	return
}

// Dataset is an uploaded file owned by a user.
type Dataset struct {
	ID        string    `json:"id"`
	UserID    string    `json:"-"`
	FileKey   string    `json:"file_key"`
	Filename  string    `json:"filename"`
	Size      int64     `json:"size"`
	CreatedAt time.Time `json:"created_at"`
}

// SaveDataset records an upload. Re-uploading the same key replaces the metadata.
func (s *Store) SaveDataset(ctx context.Context, d Dataset) (Dataset, error) {
	err := s.DB.QueryRowContext(ctx, `
INSERT INTO datasets (user_id, file_key, filename, size_bytes)
VALUES ($1,$2,$3,$4)
ON CONFLICT (user_id, file_key) DO UPDATE SET
  filename = EXCLUDED.filename,
  size_bytes = EXCLUDED.size_bytes,
  created_at = NOW()
RETURNING id, created_at`, d.UserID, d.FileKey, d.Filename, d.Size).Scan(&d.ID, &d.CreatedAt)
	return d, err
}

func (s *Store) ListDatasets(ctx context.Context, userID string) ([]Dataset, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT id, user_id, file_key, filename, size_bytes, created_at FROM datasets WHERE user_id=$1 ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Dataset
	for rows.Next() {
		var d Dataset
		if err := rows.Scan(&d.ID, &d.UserID, &d.FileKey, &d.Filename, &d.Size, &d.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (s *Store) GetDataset(ctx context.Context, userID, fileKey string) (Dataset, error) {
	var d Dataset
	err := s.DB.QueryRowContext(ctx, `SELECT id, user_id, file_key, filename, size_bytes, created_at FROM datasets WHERE user_id=$1 AND file_key=$2`, userID, fileKey).
		Scan(&d.ID, &d.UserID, &d.FileKey, &d.Filename, &d.Size, &d.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Dataset{}, ErrNotFound
	}
	return d, err
}

// Analysis is one persisted orchestration run, successful or not.
type Analysis struct {
	ID           string               `json:"id"`
	UserID       string               `json:"-"`
	DatasetKey   string               `json:"dataset_reference"`
	Goal         string               `json:"goal"`
	Status       string               `json:"status"`
	Plan         []string             `json:"plan"`
	Rationale    string               `json:"rationale,omitempty"`
	Trace        agent.ExecutionTrace `json:"-"`
	FinalCode    string               `json:"final_code,omitempty"`
	ErrorKind    string               `json:"error_kind,omitempty"`
	ErrorMessage string               `json:"error_message,omitempty"`
	Duration     time.Duration        `json:"-"`
	CreatedAt    time.Time            `json:"created_at"`
}

const analysisColumns = `id, user_id, dataset_key, goal, status, plan, rationale, trace, final_code, error_kind, error_message, duration_ms, created_at`

func (s *Store) SaveAnalysis(ctx context.Context, a Analysis) error {
	trace := a.Trace
	if trace == nil {
		trace = agent.ExecutionTrace{}
	}
	traceJSON, err := json.Marshal(trace)
	if err != nil {
		return fmt.Errorf("marshal trace: %w", err)
	}
	plan := a.Plan
	if plan == nil {
		plan = []string{}
	}
	_, err = s.DB.ExecContext(ctx, `
INSERT INTO analyses (id, user_id, dataset_key, goal, status, plan, rationale, trace, final_code, error_kind, error_message, duration_ms)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
		a.ID, a.UserID, a.DatasetKey, a.Goal, a.Status, pq.Array(plan), a.Rationale, traceJSON,
		a.FinalCode, a.ErrorKind, a.ErrorMessage, a.Duration.Milliseconds())
	if isUniqueViolation(err) {
		return fmt.Errorf("analysis %s: %w", a.ID, ErrDuplicate)
	}
	return err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanAnalysis(row scanner) (Analysis, error) {
	var (
		a          Analysis
		plan       pq.StringArray
		traceJSON  []byte
		durationMS int64
	)
	if err := row.Scan(&a.ID, &a.UserID, &a.DatasetKey, &a.Goal, &a.Status, &plan, &a.Rationale, &traceJSON,
		&a.FinalCode, &a.ErrorKind, &a.ErrorMessage, &durationMS, &a.CreatedAt); err != nil {
		return Analysis{}, err
	}
	a.Plan = []string(plan)
	a.Duration = time.Duration(durationMS) * time.Millisecond
	if len(traceJSON) > 0 {
		if err := json.Unmarshal(traceJSON, &a.Trace); err != nil {
			return Analysis{}, fmt.Errorf("decode trace of %s: %w", a.ID, err)
		}
	}
	return a, nil
}

func (s *Store) GetAnalysis(ctx context.Context, userID, id string) (Analysis, error) {
	row := s.DB.QueryRowContext(ctx, `SELECT `+analysisColumns+` FROM analyses WHERE id=$1 AND user_id=$2`, id, userID)
	a, err := scanAnalysis(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Analysis{}, ErrNotFound
	}
	return a, err
}

// ListAnalyses returns a user's analyses, newest first.
func (s *Store) ListAnalyses(ctx context.Context, userID string, limit int) ([]Analysis, error) {
	if limit <= 0 {
		limit = 50
	}
	return s.queryAnalyses(ctx, `SELECT `+analysisColumns+` FROM analyses WHERE user_id=$1 ORDER BY created_at DESC LIMIT $2`, userID, limit)
}

// ListRecentAnalyses returns the newest analyses of all users, used to warm the search index.
func (s *Store) ListRecentAnalyses(ctx context.Context, limit int) ([]Analysis, error) {
	if limit <= 0 {
		limit = 1000
	}
	return s.queryAnalyses(ctx, `SELECT `+analysisColumns+` FROM analyses ORDER BY created_at DESC LIMIT $1`, limit)
}

func (s *Store) queryAnalyses(ctx context.Context, query string, args ...any) ([]Analysis, error) {
	rows, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Analysis
	for rows.Next() {
		a, err := scanAnalysis(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
