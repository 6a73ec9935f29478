package server

import (
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mohammad-safakhou/analyst/internal/capability"
	"github.com/mohammad-safakhou/analyst/internal/dataset"
	"github.com/mohammad-safakhou/analyst/internal/search"
)

// Repository is everything the handlers persist.
type Repository interface {
	UserRepository
	DatasetRepository
	AnalysisRepository
}

// Deps wires the HTTP API to its collaborators.
type Deps struct {
	Repo           Repository
	Blobs          dataset.Blobs
	Index          *search.Index
	Runner         Runner
	Catalog        *capability.Catalog
	Gatherer       prometheus.Gatherer
	Secret         []byte
	TokenTTL       time.Duration
	SecureCookies  bool
	MaxUploadBytes int64
	SampleRows     int
	Logger         *log.Logger
}

// New builds the echo instance with every route mounted.
func New(d Deps) *echo.Echo {
	if d.Logger == nil {
		d.Logger = log.New(log.Writer(), "[HTTP] ", log.LstdFlags)
	}
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.HTTPErrorHandler = errorHandler(d.Logger)
	if d.MaxUploadBytes > 0 {
		// multipart overhead on top of the file itself
		e.Use(middleware.BodyLimit(fmt.Sprintf("%dB", d.MaxUploadBytes+1<<20)))
	}

	e.GET("/healthz", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })
	if d.Gatherer != nil {
		e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{})))
	}

	api := e.Group("/api")
	auth := &AuthHandler{Users: d.Repo, Secret: d.Secret, TokenTTL: d.TokenTTL, SecureCookies: d.SecureCookies}
	auth.Register(api.Group("/auth"))

	protected := api.Group("", RequireAuth(d.Secret))
	protected.GET("/me", func(c echo.Context) error {
		return c.JSON(http.StatusOK, MeResponse{UserID: userID(c)})
	})

	ds := &DatasetsHandler{Repo: d.Repo, Blobs: d.Blobs, MaxUploadBytes: d.MaxUploadBytes}
	ds.Register(protected.Group("/datasets"))

	an := &AnalysesHandler{
		Repo:       d.Repo,
		Datasets:   d.Repo,
		Blobs:      d.Blobs,
		Index:      d.Index,
		Runner:     d.Runner,
		Catalog:    d.Catalog,
		SampleRows: d.SampleRows,
		Logger:     d.Logger,
	}
	an.Register(protected.Group("/analyses"))
	an.RegisterResults(protected.Group("/results"))

	ag := &AgentsHandler{Catalog: d.Catalog}
	ag.Register(protected.Group("/agents"))
	return e
}

// errorHandler renders every error as JSON and logs it once.
func errorHandler(logger *log.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		code := http.StatusInternalServerError
		var body any
		var re *runError
		var he *echo.HTTPError
		switch {
		case errors.As(err, &re):
			code = re.status
			body = re.body
		case errors.As(err, &he):
			code = he.Code
			msg := http.StatusText(code)
			if he.Message != nil {
				msg = fmt.Sprint(he.Message)
			}
			body = HTTPError{Error: msg}
		default:
			body = HTTPError{Error: err.Error()}
		}
		req := c.Request()
		logger.Printf("%d %s %s from %s: %v", code, req.Method, req.URL.Path, c.RealIP(), err)
		if c.Response().Committed {
			return
		}
		if req.Method == http.MethodHead {
			_ = c.NoContent(code)
			return
		}
		_ = c.JSON(code, body)
	}
}
