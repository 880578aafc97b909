package handlers

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"fossapp/internal/jobs"
	"fossapp/pkg/zip"
)

// JobStatus returns a point-in-time snapshot of the job; clients poll it
// alongside or instead of the stream.
func (a *App) JobStatus(w http.ResponseWriter, r *http.Request) {
	job := a.jobFromRequest(w, r)
	if job == nil {
		return
	}
	a.json(w, http.StatusOK, map[string]any{
		"job_id":   job.ID,
		"label":    job.Label,
		"status":   job.Status,
		"messages": job.Messages,
		"result":   job.Result,
		"has_dwg":  len(job.DWG) > 0,
		"has_png":  len(job.PNG) > 0,
	})
}

// DownloadDWG serves the drawing artifact.
func (a *App) DownloadDWG(w http.ResponseWriter, r *http.Request) {
	job := a.jobFromRequest(w, r)
	if job == nil {
		return
	}
	if len(job.DWG) == 0 {
		a.error(w, http.StatusNotFound, "not_found", "no drawing available for this job")
		return
	}
	name := "drawing.dwg"
	if job.Result != nil && job.Result.DWGFile != "" {
		name = job.Result.DWGFile
	}
	serveArtifact(w, name, "application/octet-stream", job.DWG)
}

// DownloadPNG serves the preview artifact.
func (a *App) DownloadPNG(w http.ResponseWriter, r *http.Request) {
	job := a.jobFromRequest(w, r)
	if job == nil {
		return
	}
	if len(job.PNG) == 0 {
		a.error(w, http.StatusNotFound, "not_found", "no preview available for this job")
		return
	}
	name := "preview.png"
	if job.Result != nil && job.Result.PNGFile != "" {
		name = job.Result.PNGFile
	}
	serveArtifact(w, name, "image/png", job.PNG)
}

// DownloadZip bundles every artifact the job produced into one archive.
func (a *App) DownloadZip(w http.ResponseWriter, r *http.Request) {
	job := a.jobFromRequest(w, r)
	if job == nil {
		return
	}
	var entries []zip.Entry
	if len(job.DWG) > 0 {
		name := "drawing.dwg"
		if job.Result != nil && job.Result.DWGFile != "" {
			name = job.Result.DWGFile
		}
		entries = append(entries, zip.Entry{Filename: name, Data: job.DWG})
	}
	if len(job.PNG) > 0 {
		name := "preview.png"
		if job.Result != nil && job.Result.PNGFile != "" {
			name = job.Result.PNGFile
		}
		entries = append(entries, zip.Entry{Filename: name, Data: job.PNG})
	}
	if len(entries) == 0 {
		a.error(w, http.StatusNotFound, "not_found", "no artifacts available for this job")
		return
	}
	archive := zip.Archive(entries)
	if archive == nil {
		a.error(w, http.StatusInternalServerError, "internal", "failed to build archive")
		return
	}
	serveArtifact(w, job.ID+".zip", "application/zip", archive)
}

func (a *App) jobFromRequest(w http.ResponseWriter, r *http.Request) *jobs.Job {
	jobID := chi.URLParam(r, "job_id")
	if jobID == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "job_id required")
		return nil
	}
	job := a.Jobs.Get(jobID)
	if job == nil {
		a.error(w, http.StatusNotFound, "not_found", "job not found")
		return nil
	}
	return job
}

func serveArtifact(w http.ResponseWriter, name, contentType string, data []byte) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
