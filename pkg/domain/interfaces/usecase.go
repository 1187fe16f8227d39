package interfaces

//go:generate moq -out mocks/reconciler_mock.go -pkg mocks . Reconciler

import (
	"context"

	"github.com/m-mizutani/drover/pkg/domain/model"
)

// Reconciler is the engine entry point exposed to controllers and
// orchestration harnesses.
type Reconciler interface {
	// Scan runs a full reconciliation pass over one container
	Scan(ctx context.Context, containerID string) (*model.ScanResult, error)

	// Fire submits an event for asynchronous processing and returns the
	// watermark sequence assigned to it
	Fire(ctx context.Context, containerID string, ev model.Event) (uint64, error)

	// Watermark returns the sequence of the most recently submitted event
	Watermark() uint64

	// Wait blocks until every event submitted at or before mark has
	// finished its commit phase, or the context is done
	Wait(ctx context.Context, mark uint64) error

	// Jobs returns a snapshot of the container's child jobs for rendering
	Jobs(containerID string) ([]model.ChildJob, error)

	// ContainerIDs lists the configured containers
	ContainerIDs() []string
}
