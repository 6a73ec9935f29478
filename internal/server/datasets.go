package server

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/mohammad-safakhou/analyst/internal/dataset"
	"github.com/mohammad-safakhou/analyst/internal/store"
)

// DatasetRepository records uploaded datasets.
type DatasetRepository interface {
	SaveDataset(ctx context.Context, d store.Dataset) (store.Dataset, error)
	ListDatasets(ctx context.Context, userID string) ([]store.Dataset, error)
	GetDataset(ctx context.Context, userID, fileKey string) (store.Dataset, error)
}

type DatasetsHandler struct {
	Repo           DatasetRepository
	Blobs          dataset.Blobs
	MaxUploadBytes int64
}

func (h *DatasetsHandler) Register(g *echo.Group) {
	g.POST("", h.upload)
	g.GET("", h.list)
}

// Upload
//
//	@Summary	Upload a CSV dataset
//	@Tags		datasets
//	@Accept		multipart/form-data
//	@Param		file	formData	file	true	"CSV file"
//	@Success	201		{object}	UploadResponse
//	@Failure	400		{object}	HTTPError
//	@Failure	413		{object}	HTTPError
//	@Router		/api/datasets [post]
func (h *DatasetsHandler) upload(c echo.Context) error {
	uid := userID(c)
	fh, err := c.FormFile("file")
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "missing file")
	}
	if h.MaxUploadBytes > 0 && fh.Size > h.MaxUploadBytes {
		return echo.NewHTTPError(http.StatusRequestEntityTooLarge, fmt.Sprintf("file exceeds %d bytes", h.MaxUploadBytes))
	}
	key, err := dataset.Key(uid, fh.Filename)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	f, err := fh.Open()
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	defer f.Close()

	var body io.Reader = f
	if h.MaxUploadBytes > 0 {
		body = io.LimitReader(f, h.MaxUploadBytes)
	}
	ctx := c.Request().Context()
	if err := h.Blobs.Put(ctx, key, body); err != nil {
		return fmt.Errorf("store %s: %w", key, err)
	}
	d, err := h.Repo.SaveDataset(ctx, store.Dataset{UserID: uid, FileKey: key, Filename: fh.Filename, Size: fh.Size})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, UploadResponse{FileKey: d.FileKey, Size: d.Size})
}

func (h *DatasetsHandler) list(c echo.Context) error {
	items, err := h.Repo.ListDatasets(c.Request().Context(), userID(c))
	if err != nil {
		return err
	}
	if items == nil {
		items = []store.Dataset{}
	}
	return c.JSON(http.StatusOK, items)
}
