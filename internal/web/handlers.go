package web

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/a-h/templ"
	"github.com/go-chi/chi/v5"

	"github.com/JonMunkholm/ecsv/internal/core"
	"github.com/JonMunkholm/ecsv/internal/web/templates"
)

const dashboardLimit = 50

// handleDashboard renders recent imports. A missing database still renders
// the page with an error in place of the history.
func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	params := templates.DashboardParams{Limiter: s.service.LimiterStatus()}

	imports, err := s.service.ListImports(r.Context(), dashboardLimit)
	if err != nil {
		params.HistoryError = core.FormatUserError(err)
	}
	params.Imports = imports

	templ.Handler(templates.Dashboard(params)).ServeHTTP(w, r)
}

// handleImportDetail renders one import. Imports still running have no
// history record yet and get a progress page instead.
func (s *Server) handleImportDetail(w http.ResponseWriter, r *http.Request) {
	importID := chi.URLParam(r, "importID")

	rec, err := s.service.GetImport(r.Context(), importID)
	if err == nil {
		templ.Handler(templates.ImportDetail(rec)).ServeHTTP(w, r)
		return
	}

	if progress, perr := s.service.GetImportProgress(importID); perr == nil {
		templ.Handler(templates.ImportRunning(progress)).ServeHTTP(w, r)
		return
	}
	s.respondError(w, r, err, 0)
}

type healthResponse struct {
	Status   string             `json:"status"`
	Database string             `json:"database"`
	Imports  core.LimiterStatus `json:"imports"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	resp := healthResponse{Status: "ok", Database: "ok", Imports: s.service.LimiterStatus()}
	status := http.StatusOK

	switch err := s.service.Ping(ctx); {
	case errors.Is(err, core.ErrNoDatabase):
		resp.Database = "not configured"
	case err != nil:
		resp.Status = "degraded"
		resp.Database = "unreachable"
		status = http.StatusServiceUnavailable
	}

	writeJSON(w, status, resp)
}
