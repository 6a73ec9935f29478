package store

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"

	"github.com/mohammad-safakhou/analyst/internal/agent"
)

func newMock(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return &Store{DB: db}, mock
}

func TestCreateUserDuplicate(t *testing.T) {
	st, mock := newMock(t)
	query := regexp.QuoteMeta(`INSERT INTO users (email, password_hash) VALUES ($1,$2) RETURNING id`)
	mock.ExpectQuery(query).
		WithArgs("a@b.c", "hash").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("u-1"))
	mock.ExpectQuery(query).
		WithArgs("a@b.c", "hash").
		WillReturnError(&pq.Error{Code: "23505"})

	id, err := st.CreateUser(context.Background(), "a@b.c", "hash")
	if err != nil || id != "u-1" {
		t.Fatalf("CreateUser = %q, %v", id, err)
	}
	if _, err := st.CreateUser(context.Background(), "a@b.c", "hash"); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestGetUserByEmailNotFound(t *testing.T) {
	st, mock := newMock(t)
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT id, password_hash FROM users WHERE email=$1`)).
		WithArgs("nobody@x").
		WillReturnError(sql.ErrNoRows)

	if _, _, err := st.GetUserByEmail(context.Background(), "nobody@x"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSaveDatasetUpserts(t *testing.T) {
	st, mock := newMock(t)
	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO datasets (user_id, file_key, filename, size_bytes)`)).
		WithArgs("u-1", "u-1/sales.csv", "sales.csv", int64(42)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow("d-1", now))

	d, err := st.SaveDataset(context.Background(), Dataset{UserID: "u-1", FileKey: "u-1/sales.csv", Filename: "sales.csv", Size: 42})
	if err != nil {
		t.Fatalf("SaveDataset: %v", err)
	}
	if d.ID != "d-1" || !d.CreatedAt.Equal(now) {
		t.Fatalf("unexpected dataset: %#v", d)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestSaveAnalysisEncodesPlanAndTrace(t *testing.T) {
	st, mock := newMock(t)
	a := Analysis{
		ID:         "run-1",
		UserID:     "u-1",
		DatasetKey: "u-1/sales.csv",
		Goal:       "plot revenue",
		Status:     StatusDone,
		Plan:       []string{"data_viz_agent"},
		Trace: agent.ExecutionTrace{
			{Step: 0, Result: agent.AgentResult{AgentName: "data_viz_agent", Code: "px.line(df)"}},
		},
		FinalCode: "px.line(df)",
		Duration:  1500 * time.Millisecond,
	}
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO analyses (id, user_id, dataset_key, goal, status, plan, rationale, trace, final_code, error_kind, error_message, duration_ms)`)).
		WithArgs("run-1", "u-1", "u-1/sales.csv", "plot revenue", StatusDone, sqlmock.AnyArg(), "", sqlmock.AnyArg(), "px.line(df)", "", "", int64(1500)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := st.SaveAnalysis(context.Background(), a); err != nil {
		t.Fatalf("SaveAnalysis: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func analysisRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "user_id", "dataset_key", "goal", "status", "plan", "rationale", "trace",
		"final_code", "error_kind", "error_message", "duration_ms", "created_at",
	})
}

func TestGetAnalysisDecodesRow(t *testing.T) {
	st, mock := newMock(t)
	now := time.Now()
	trace := []byte(`[{"step":0,"result":{"agent_name":"preprocessing_agent","code":"df.dropna()"}},{"step":1,"result":{"agent_name":"data_viz_agent","commentary":"line chart","code":"px.line(df)"}}]`)
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT ` + analysisColumns + ` FROM analyses WHERE id=$1 AND user_id=$2`)).
		WithArgs("run-1", "u-1").
		WillReturnRows(analysisRows().AddRow(
			"run-1", "u-1", "u-1/sales.csv", "plot revenue", StatusDone, []byte(`{preprocessing_agent,data_viz_agent}`), "",
			trace, "final", "", "", int64(250), now,
		))

	a, err := st.GetAnalysis(context.Background(), "u-1", "run-1")
	if err != nil {
		t.Fatalf("GetAnalysis: %v", err)
	}
	if len(a.Plan) != 2 || a.Plan[1] != "data_viz_agent" {
		t.Fatalf("plan = %v", a.Plan)
	}
	if names := a.Trace.Names(); len(names) != 2 || names[0] != "preprocessing_agent" {
		t.Fatalf("trace = %#v", a.Trace)
	}
	if a.Trace[1].Result.Commentary != "line chart" {
		t.Fatalf("commentary lost: %#v", a.Trace[1])
	}
	if a.Duration != 250*time.Millisecond {
		t.Fatalf("duration = %v", a.Duration)
	}
}

func TestGetAnalysisOtherUser(t *testing.T) {
	st, mock := newMock(t)
	mock.ExpectQuery(regexp.QuoteMeta(`FROM analyses WHERE id=$1 AND user_id=$2`)).
		WithArgs("run-1", "u-2").
		WillReturnRows(analysisRows())

	if _, err := st.GetAnalysis(context.Background(), "u-2", "run-1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestListAnalysesDefaultLimit(t *testing.T) {
	st, mock := newMock(t)
	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta(`FROM analyses WHERE user_id=$1 ORDER BY created_at DESC LIMIT $2`)).
		WithArgs("u-1", 50).
		WillReturnRows(analysisRows().
			AddRow("run-2", "u-1", "k", "g2", StatusFailed, []byte(`{}`), "", []byte(`[]`), "", "AgentExecutionError", "boom", int64(10), now).
			AddRow("run-1", "u-1", "k", "g1", StatusDone, []byte(`{data_viz_agent}`), "", []byte(`[]`), "code", "", "", int64(20), now))

	out, err := st.ListAnalyses(context.Background(), "u-1", 0)
	if err != nil {
		t.Fatalf("ListAnalyses: %v", err)
	}
	if len(out) != 2 || out[0].ErrorKind != "AgentExecutionError" || len(out[0].Plan) != 0 {
		t.Fatalf("unexpected list: %#v", out)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}
