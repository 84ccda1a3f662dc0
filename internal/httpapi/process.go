package httpapi

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"wacrm/internal/observability"
	"wacrm/internal/worker"
)

// handleProcessPending triggers a drain of all pending actions, streaming a
// progress line per completed batch. Safe to call repeatedly: a trigger that
// lands mid-run gets 409 and nothing else happens.
func (a *API) handleProcessPending(w http.ResponseWriter, r *http.Request) {
	if a.TriggerToken != "" && r.Header.Get("X-Trigger-Token") != a.TriggerToken {
		observability.APIRequests.WithLabelValues("/v1/actions/process", "403").Inc()
		http.Error(w, "invalid trigger token", http.StatusForbidden)
		return
	}

	flusher, _ := w.(http.Flusher)
	wrote := false
	progress := func(batch, total int) {
		if !wrote {
			w.Header().Set("Content-Type", "text/plain; charset=utf-8")
			wrote = true
		}
		fmt.Fprintf(w, "Processed batch %d/%d\n", batch, total)
		if flusher != nil {
			flusher.Flush()
		}
	}

	err := a.Scheduler.RunOnce(r.Context(), progress)
	switch {
	case errors.Is(err, worker.ErrRunInProgress):
		observability.APIRequests.WithLabelValues("/v1/actions/process", "409").Inc()
		http.Error(w, "a run is already in progress", http.StatusConflict)
		return
	case err != nil:
		slog.Error("pending actions run failed", "err", err)
		observability.APIRequests.WithLabelValues("/v1/actions/process", "500").Inc()
		if wrote {
			// Headers are gone; report the abort in-band.
			fmt.Fprintf(w, "Run aborted: %s\n", err)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	observability.APIRequests.WithLabelValues("/v1/actions/process", "200").Inc()
	fmt.Fprintln(w, "All pending actions processed")
}
