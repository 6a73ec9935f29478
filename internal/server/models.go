package server

import (
	"encoding/json"
	"time"

	"github.com/mohammad-safakhou/analyst/internal/agent"
	"github.com/mohammad-safakhou/analyst/internal/store"
)

// HTTPError is a generic error envelope returned by the server.
type HTTPError struct {
	Error string `json:"error"`
}

// AuthSignupRequest represents the signup payload.
type AuthSignupRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// AuthLoginRequest represents the login payload.
type AuthLoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// TokenResponse carries a bearer token.
type TokenResponse struct {
	Token string `json:"token"`
}

// MeResponse returns the current authenticated user id.
type MeResponse struct {
	UserID string `json:"user_id"`
}

// UploadResponse names the stored key of an uploaded dataset.
type UploadResponse struct {
	FileKey string `json:"file_key"`
	Size    int64  `json:"size"`
}

// AnalysisRequest starts an analysis of an uploaded dataset.
type AnalysisRequest struct {
	Goal             string `json:"goal"`
	DatasetReference string `json:"dataset_reference"`
}

// AnalysisResponse is the result of a successful run.
type AnalysisResponse struct {
	ID        string              `json:"id"`
	FinalCode string              `json:"final_code"`
	Trace     []agent.AgentResult `json:"per_agent_trace"`
	Plan      []string            `json:"plan"`
	Rationale string              `json:"rationale,omitempty"`
	ResultKey string              `json:"result_key,omitempty"`
}

// RunErrorResponse describes a failed run.
type RunErrorResponse struct {
	ID      string              `json:"id"`
	Kind    agent.Kind          `json:"kind"`
	Message string              `json:"message"`
	Trace   []agent.AgentResult `json:"trace"`
}

// AnalysisRecord is a stored analysis as served to its owner.
type AnalysisRecord struct {
	store.Analysis
	Trace []agent.AgentResult `json:"per_agent_trace"`
}

func analysisRecord(a store.Analysis) AnalysisRecord {
	return AnalysisRecord{Analysis: a, Trace: a.Trace.Results()}
}

// AnalysisListResponse wraps a page of stored analyses.
type AnalysisListResponse struct {
	Items []AnalysisRecord `json:"items"`
}

// ResultResponse is one stored result document.
type ResultResponse struct {
	Key      string          `json:"key"`
	Modified time.Time       `json:"modified"`
	Document json.RawMessage `json:"document"`
}

// AgentResponse describes one catalog entry.
type AgentResponse struct {
	Name    string   `json:"name"`
	Purpose string   `json:"purpose"`
	Inputs  []string `json:"inputs"`
	Outputs []string `json:"outputs"`
}

// resultDocument is written next to the dataset after a successful run.
type resultDocument struct {
	ID        string              `json:"id"`
	Goal      string              `json:"goal"`
	Dataset   string              `json:"dataset_reference"`
	Plan      []string            `json:"plan"`
	Trace     []agent.AgentResult `json:"per_agent_trace"`
	FinalCode string              `json:"final_code"`
}
