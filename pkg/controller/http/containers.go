package http

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/m-mizutani/ctxlog"
	"github.com/m-mizutani/goerr/v2"

	"github.com/m-mizutani/drover/pkg/domain/interfaces"
	"github.com/m-mizutani/drover/pkg/domain/model"
)

// drainTimeout bounds how long a drain request may block
const drainTimeout = 30 * time.Second

// ContainerHandler serves the per-container operations: scan triggering and
// the job read model, plus the engine-wide drain primitive.
type ContainerHandler struct {
	reconciler interfaces.Reconciler
}

// HandleScan runs a full scan synchronously and reports its result. A
// Failure result means the job set was left untouched.
func (h *ContainerHandler) HandleScan(w http.ResponseWriter, r *http.Request) {
	containerID := chi.URLParam(r, "containerID")

	result, err := h.reconciler.Scan(r.Context(), containerID)
	if err != nil {
		writeError(w, err, http.StatusNotFound)
		return
	}

	status := http.StatusOK
	if result.Status == model.ScanFailure {
		status = http.StatusBadGateway
	}
	writeJSON(r, w, status, result)
}

// HandleJobs returns the container's child jobs for rendering
func (h *ContainerHandler) HandleJobs(w http.ResponseWriter, r *http.Request) {
	containerID := chi.URLParam(r, "containerID")

	jobs, err := h.reconciler.Jobs(containerID)
	if err != nil {
		writeError(w, err, http.StatusNotFound)
		return
	}
	writeJSON(r, w, http.StatusOK, map[string]any{
		"container": containerID,
		"jobs":      jobs,
	})
}

// HandleDrain blocks until all events up to the requested watermark (default:
// the current one) have committed
func (h *ContainerHandler) HandleDrain(w http.ResponseWriter, r *http.Request) {
	mark := h.reconciler.Watermark()
	if v := r.URL.Query().Get("watermark"); v != "" {
		parsed, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			writeError(w, goerr.Wrap(err, "invalid watermark"), http.StatusBadRequest)
			return
		}
		mark = parsed
	}

	ctx, cancel := context.WithTimeout(r.Context(), drainTimeout)
	defer cancel()

	if err := h.reconciler.Wait(ctx, mark); err != nil {
		writeError(w, goerr.Wrap(err, "drain timed out"), http.StatusGatewayTimeout)
		return
	}
	writeJSON(r, w, http.StatusOK, map[string]any{"drained": mark})
}

func writeJSON(r *http.Request, w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		ctxlog.From(r.Context()).Error("Failed to encode response", "error", err)
	}
}
