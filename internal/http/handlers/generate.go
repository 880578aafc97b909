package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"fossapp/internal/generate"
)

type jobCreatedResponse struct {
	Success bool   `json:"success"`
	JobID   string `json:"job_id"`
	Message string `json:"message,omitempty"`
}

// TileGenerate accepts a tile request, creates the job and returns its id
// immediately; the workflow runs detached from this request.
func (a *App) TileGenerate(w http.ResponseWriter, r *http.Request) {
	if a.identity(r) == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	if !a.rateLimit(w, r, "tiles", a.TileRate) {
		return
	}

	var req generate.TileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	req.TileName = strings.TrimSpace(req.TileName)
	if req.TileName == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "tile_name required")
		return
	}
	if len(req.Products) == 0 {
		a.error(w, http.StatusBadRequest, "bad_request", "at least one product required")
		return
	}

	jobID := a.Gen.StartTile(req)
	a.Logger.Info().Str("job_id", jobID).Str("tile", req.TileName).Str("user", a.identity(r)).Msg("tile generation started")
	a.json(w, http.StatusAccepted, jobCreatedResponse{Success: true, JobID: jobID, Message: "generation started"})
}

// PlaygroundGenerate accepts a free-form drawing description.
func (a *App) PlaygroundGenerate(w http.ResponseWriter, r *http.Request) {
	if a.identity(r) == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	if !a.rateLimit(w, r, "playground", a.PlaygroundRate) {
		return
	}

	var req generate.PlaygroundRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	req.Description = strings.TrimSpace(req.Description)
	if req.Description == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "description required")
		return
	}

	jobID := a.Gen.StartPlayground(req)
	a.Logger.Info().Str("job_id", jobID).Str("user", a.identity(r)).Msg("playground generation started")
	a.json(w, http.StatusAccepted, jobCreatedResponse{Success: true, JobID: jobID, Message: "generation started"})
}

// CaseStudyGenerate starts an XREF drawing for a project area.
func (a *App) CaseStudyGenerate(w http.ResponseWriter, r *http.Request) {
	if a.identity(r) == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	if !a.Gen.HasProjects() {
		a.error(w, http.StatusServiceUnavailable, "unavailable", "case-study generation is not configured")
		return
	}
	if !a.rateLimit(w, r, "case-studies", a.CaseStudyRate) {
		return
	}

	var req generate.CaseStudyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	req.ProjectID = strings.TrimSpace(req.ProjectID)
	req.AreaID = strings.TrimSpace(req.AreaID)
	if req.ProjectID == "" || req.AreaID == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "project_id and area_id required")
		return
	}

	jobID := a.Gen.StartCaseStudy(req)
	a.Logger.Info().Str("job_id", jobID).Str("project", req.ProjectID).Str("user", a.identity(r)).Msg("case-study generation started")
	a.json(w, http.StatusAccepted, jobCreatedResponse{Success: true, JobID: jobID, Message: "generation started"})
}
