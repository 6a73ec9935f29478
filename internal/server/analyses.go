package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"path"
	"sort"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/mohammad-safakhou/analyst/internal/agent"
	"github.com/mohammad-safakhou/analyst/internal/dataset"
	"github.com/mohammad-safakhou/analyst/internal/search"
	"github.com/mohammad-safakhou/analyst/internal/store"
)

// AnalysisRepository persists finished runs.
type AnalysisRepository interface {
	SaveAnalysis(ctx context.Context, a store.Analysis) error
	GetAnalysis(ctx context.Context, userID, id string) (store.Analysis, error)
	ListAnalyses(ctx context.Context, userID string, limit int) ([]store.Analysis, error)
}

// Runner executes one analysis.
type Runner interface {
	RunDetailed(ctx context.Context, catalog agent.Catalog, dataset, goal string) (agent.Outcome, error)
}

type AnalysesHandler struct {
	Repo       AnalysisRepository
	Datasets   DatasetRepository
	Blobs      dataset.Blobs
	Index      *search.Index
	Runner     Runner
	Catalog    agent.Catalog
	SampleRows int
	Logger     *log.Logger
}

func (h *AnalysesHandler) Register(g *echo.Group) {
	g.POST("", h.create)
	g.GET("", h.list)
	g.GET("/search", h.search)
	g.GET("/:id", h.get)
}

// RegisterResults mounts the listing of stored result documents.
func (h *AnalysesHandler) RegisterResults(g *echo.Group) {
	g.GET("", h.results)
}

// runError carries a failed run to the central error handler.
type runError struct {
	status int
	body   RunErrorResponse
}

func (e *runError) Error() string { return string(e.body.Kind) + ": " + e.body.Message }

func statusForKind(k agent.Kind) int {
	switch k {
	case agent.KindUnknownAgent:
		return http.StatusUnprocessableEntity
	case agent.KindPlanning, agent.KindAgentExecution, agent.KindCombination,
		agent.KindService, agent.KindMalformedResponse:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func datasetName(key string) string {
	base := path.Base(key)
	return strings.TrimSuffix(base, path.Ext(base))
}

// Create
//
//	@Summary	Run an analysis
//	@Tags		analyses
//	@Accept		json
//	@Param		payload	body		AnalysisRequest	true	"Goal and dataset"
//	@Success	200		{object}	AnalysisResponse
//	@Failure	400		{object}	HTTPError
//	@Failure	404		{object}	HTTPError
//	@Failure	422		{object}	RunErrorResponse
//	@Failure	502		{object}	RunErrorResponse
//	@Router		/api/analyses [post]
func (h *AnalysesHandler) create(c echo.Context) error {
	var req AnalysisRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	req.Goal = strings.TrimSpace(req.Goal)
	if req.Goal == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "goal is required")
	}
	uid := userID(c)
	if !dataset.Owns(uid, req.DatasetReference) {
		return echo.NewHTTPError(http.StatusNotFound, "dataset not found")
	}
	ctx := c.Request().Context()
	if _, err := h.Datasets.GetDataset(ctx, uid, req.DatasetReference); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "dataset not found")
		}
		return err
	}

	rc, err := h.Blobs.Get(ctx, req.DatasetReference)
	if err != nil {
		if errors.Is(err, dataset.ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "dataset not found")
		}
		return err
	}
	sample, err := dataset.Sample(rc, datasetName(req.DatasetReference), h.SampleRows)
	rc.Close()
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	out, runErr := h.Runner.RunDetailed(ctx, h.Catalog, sample, req.Goal)
	rec := store.Analysis{
		ID:         out.ID,
		UserID:     uid,
		DatasetKey: req.DatasetReference,
		Goal:       req.Goal,
		Status:     store.StatusDone,
		Plan:       out.Plan.Steps,
		Rationale:  out.Plan.Rationale,
		Trace:      out.Trace,
		FinalCode:  out.Artifact.Code,
		Duration:   out.Duration,
	}
	if runErr != nil {
		rec.Status = store.StatusFailed
		rec.ErrorKind = string(agent.KindOf(runErr))
		rec.ErrorMessage = runErr.Error()
	}
	// Persistence failures are logged; the caller still gets the run outcome.
	if err := h.Repo.SaveAnalysis(ctx, rec); err != nil {
		h.Logger.Printf("save analysis %s: %v", rec.ID, err)
	}
	if h.Index != nil && rec.Status == store.StatusDone {
		if err := h.Index.Add(search.Document{ID: rec.ID, UserID: uid, Goal: rec.Goal, Plan: rec.Plan, Code: rec.FinalCode}); err != nil {
			h.Logger.Printf("index analysis %s: %v", rec.ID, err)
		}
	}

	if runErr != nil {
		kind := agent.KindOf(runErr)
		return &runError{status: statusForKind(kind), body: RunErrorResponse{
			ID: out.ID, Kind: kind, Message: runErr.Error(), Trace: out.Trace.Results(),
		}}
	}

	resultKey := dataset.ResultKey(uid, req.DatasetReference)
	if err := h.writeResult(ctx, resultKey, rec); err != nil {
		h.Logger.Printf("write result %s: %v", resultKey, err)
		resultKey = ""
	}
	return c.JSON(http.StatusOK, AnalysisResponse{
		ID:        rec.ID,
		FinalCode: rec.FinalCode,
		Trace:     rec.Trace.Results(),
		Plan:      rec.Plan,
		Rationale: rec.Rationale,
		ResultKey: resultKey,
	})
}

func (h *AnalysesHandler) writeResult(ctx context.Context, key string, a store.Analysis) error {
	b, err := json.MarshalIndent(resultDocument{
		ID:        a.ID,
		Goal:      a.Goal,
		Dataset:   a.DatasetKey,
		Plan:      a.Plan,
		Trace:     a.Trace.Results(),
		FinalCode: a.FinalCode,
	}, "", "  ")
	if err != nil {
		return err
	}
	return h.Blobs.Put(ctx, key, bytes.NewReader(b))
}

func (h *AnalysesHandler) list(c echo.Context) error {
	limit := 50
	if s := c.QueryParam("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 || n > 500 {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid limit")
		}
		limit = n
	}
	items, err := h.Repo.ListAnalyses(c.Request().Context(), userID(c), limit)
	if err != nil {
		return err
	}
	out := AnalysisListResponse{Items: make([]AnalysisRecord, 0, len(items))}
	for _, a := range items {
		out.Items = append(out.Items, analysisRecord(a))
	}
	return c.JSON(http.StatusOK, out)
}

func (h *AnalysesHandler) get(c echo.Context) error {
	a, err := h.Repo.GetAnalysis(c.Request().Context(), userID(c), c.Param("id"))
	if errors.Is(err, store.ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "analysis not found")
	}
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, analysisRecord(a))
}

func (h *AnalysesHandler) search(c echo.Context) error {
	q := c.QueryParam("q")
	if strings.TrimSpace(q) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "q is required")
	}
	if h.Index == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "search disabled")
	}
	hits, err := h.Index.Search(userID(c), q, 20)
	if err != nil {
		return fmt.Errorf("search: %w", err)
	}
	if hits == nil {
		hits = []search.Hit{}
	}
	return c.JSON(http.StatusOK, hits)
}

// results lists the result documents stored for the caller, newest first.
func (h *AnalysesHandler) results(c echo.Context) error {
	ctx := c.Request().Context()
	objs, err := h.Blobs.List(ctx, dataset.ResultsPrefix(userID(c)))
	if err != nil {
		return fmt.Errorf("list results: %w", err)
	}
	sort.SliceStable(objs, func(i, j int) bool { return objs[i].Modified.After(objs[j].Modified) })
	out := make([]ResultResponse, 0, len(objs))
	for _, o := range objs {
		rc, err := h.Blobs.Get(ctx, o.Key)
		if errors.Is(err, dataset.ErrNotFound) {
			continue
		}
		if err != nil {
			return err
		}
		b, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return fmt.Errorf("read %s: %w", o.Key, err)
		}
		if !json.Valid(b) {
			h.Logger.Printf("skip malformed result %s", o.Key)
			continue
		}
		out = append(out, ResultResponse{Key: o.Key, Modified: o.Modified, Document: b})
	}
	return c.JSON(http.StatusOK, out)
}
