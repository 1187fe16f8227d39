package http

import (
	"encoding/json"
	"net/http"
	"sort"

	"github.com/m-mizutani/ctxlog"

	"github.com/m-mizutani/drover/pkg/domain/interfaces"
	"github.com/m-mizutani/drover/pkg/domain/model"
	"github.com/m-mizutani/drover/pkg/domain/types"
)

// handleHealth reports liveness and the configured container set
func handleHealth(reconciler interfaces.Reconciler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		containers := reconciler.ContainerIDs()
		sort.Strings(containers)

		status := &model.HealthStatus{
			Status:     "healthy",
			Service:    "drover",
			Version:    types.Version,
			Containers: containers,
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		if err := json.NewEncoder(w).Encode(status); err != nil {
			ctxlog.From(r.Context()).Error("Failed to encode health response", "error", err)
		}
	}
}
