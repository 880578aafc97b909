package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"fossapp/internal/jobs"
)

// JobStream serves the SSE progress feed for one job: backlog first, then
// live messages, then a distinguished done event carrying the final status.
// The subscription is torn down when the client disconnects; closing the
// stream never cancels the generation itself.
func (a *App) JobStream(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "job_id")
	if jobID == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "job_id required")
		return
	}

	backlog, live, cancel, ok := a.Jobs.Subscribe(jobID)
	if !ok {
		a.error(w, http.StatusNotFound, "not_found", "job not found")
		return
	}
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher, canFlush := w.(http.Flusher)

	write := func(msg jobs.ProgressMessage) {
		data, err := json.Marshal(msg)
		if err != nil {
			return
		}
		fmt.Fprintf(w, "data: %s\n\n", data)
		if canFlush {
			flusher.Flush()
		}
	}

	terminalSeen := false
	for _, msg := range backlog {
		write(msg)
		if msg.Terminal() {
			terminalSeen = true
		}
	}

	for !terminalSeen && live != nil {
		select {
		case msg, open := <-live:
			if !open {
				terminalSeen = true
				break
			}
			write(msg)
			if msg.Terminal() {
				terminalSeen = true
			}
		case <-r.Context().Done():
			return
		}
	}

	a.writeDone(w, jobID, canFlush, flusher)
}

func (a *App) writeDone(w http.ResponseWriter, jobID string, canFlush bool, flusher http.Flusher) {
	status := jobs.StatusFailed
	if job := a.Jobs.Get(jobID); job != nil {
		status = job.Status
	}
	fmt.Fprintf(w, "event: done\ndata: {\"status\":%q}\n\n", status)
	if canFlush {
		flusher.Flush()
	}
}
