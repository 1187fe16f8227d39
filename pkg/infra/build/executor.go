package build

import (
	"context"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/m-mizutani/ctxlog"

	"github.com/m-mizutani/drover/pkg/domain/interfaces"
	"github.com/m-mizutani/drover/pkg/domain/model"
)

// LogExecutor is the shipped build executor: it assigns each trigger an ID
// and logs it. Real build systems plug in behind interfaces.BuildExecutor;
// the engine never waits for completion either way.
type LogExecutor struct {
	triggered atomic.Int64
}

// NewLogExecutor creates a LogExecutor
func NewLogExecutor() *LogExecutor {
	return &LogExecutor{}
}

// Trigger implements interfaces.BuildExecutor
func (e *LogExecutor) Trigger(ctx context.Context, containerID string, job model.ChildJob, rev model.Revision) {
	e.triggered.Add(1)
	ctxlog.From(ctx).Info("build dispatched",
		"build_id", uuid.NewString(),
		"container", containerID,
		"job", job.EncodedName,
		"display_name", job.DisplayName,
		"revision", string(rev),
		"build_number", job.BuildCount)
}

// Triggered returns the number of builds dispatched so far
func (e *LogExecutor) Triggered() int64 {
	return e.triggered.Load()
}

var _ interfaces.BuildExecutor = (*LogExecutor)(nil)
