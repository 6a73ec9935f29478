package server

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/mohammad-safakhou/analyst/internal/capability"
)

type AgentsHandler struct {
	Catalog *capability.Catalog
}

func (h *AgentsHandler) Register(g *echo.Group) {
	g.GET("", h.list)
}

func fieldNames(fs []capability.Field) []string {
	out := make([]string, 0, len(fs))
	for _, f := range fs {
		if f.Optional {
			out = append(out, f.Name+"?")
			continue
		}
		out = append(out, f.Name)
	}
	return out
}

func (h *AgentsHandler) list(c echo.Context) error {
	descs := h.Catalog.DescribeAll()
	out := make([]AgentResponse, 0, len(descs))
	for _, d := range descs {
		spec, err := h.Catalog.Resolve(d.Name)
		if err != nil {
			return err
		}
		out = append(out, AgentResponse{
			Name:    spec.Name,
			Purpose: spec.Purpose,
			Inputs:  fieldNames(spec.InputContract),
			Outputs: fieldNames(spec.OutputContract),
		})
	}
	return c.JSON(http.StatusOK, out)
}
