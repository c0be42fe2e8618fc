package main

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/hrygo/dagflow/internal/dagflow"
)

func (s *Server) registerRoutes() {
	s.echo.POST("/executions", s.handleCreateExecution)
	s.echo.GET("/executions/:id", s.handleGetExecution)
	s.echo.POST("/cache/clear", s.handleClearCache)
	s.echo.GET("/graph/:dag_id", s.handleExportGraph)
	s.echo.GET("/metrics", echo.WrapHandler(s.exporter.Handler()))
}

type createExecutionRequest struct {
	DAGID             string         `json:"dag_id"`
	Inputs            map[string]any `json:"inputs"`
	Mode              string         `json:"mode"`
	RerunAffectedOnly bool           `json:"rerun_affected_only"`
}

func (s *Server) handleCreateExecution(c echo.Context) error {
	var req createExecutionRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.DAGID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "dag_id is required")
	}

	snap, err := s.engine.Execute(c.Request().Context(), req.DAGID, req.Inputs, dagflow.Mode(req.Mode), req.RerunAffectedOnly)
	if err != nil {
		if err == dagflow.ErrDAGNotFound {
			return echo.NewHTTPError(http.StatusNotFound, err.Error())
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	s.exporter.ObserveRun(snap)
	s.exporter.Sync(s.engine.Metrics())

	return c.JSON(http.StatusOK, snap)
}

func (s *Server) handleGetExecution(c echo.Context) error {
	snap, err := s.engine.Status(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	}
	return c.JSON(http.StatusOK, snap)
}

func (s *Server) handleClearCache(c echo.Context) error {
	s.engine.ClearCache()
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) handleExportGraph(c echo.Context) error {
	g, err := s.engine.Graph(c.Param("dag_id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	}
	return c.Blob(http.StatusOK, "text/vnd.graphviz", []byte(dagflow.ExportDOT(g)))
}
