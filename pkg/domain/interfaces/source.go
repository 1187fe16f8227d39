package interfaces

//go:generate moq -out mocks/source_mock.go -pkg mocks . Source

import (
	"context"

	"github.com/m-mizutani/drover/pkg/domain/model"
)

// Source is an upstream that exposes heads. Implementations are external
// collaborators (GitHub, a test fixture, ...); the engine only probes them.
// All methods are read-only and safe for concurrent use.
type Source interface {
	// ID returns the stable identifier the source is ranked under
	ID() string

	// ListHeads returns every head the source currently exposes. Criteria
	// filtering is applied by the caller.
	ListHeads(ctx context.Context) ([]model.Head, error)

	// LookupHead probes for a single head by category and name. The second
	// return value is false when the source does not currently report it.
	LookupHead(ctx context.Context, category model.HeadCategory, name string) (model.Head, bool, error)

	// CurrentRevision returns the content revision of the given head
	CurrentRevision(ctx context.Context, head model.Head) (model.Revision, error)
}

// Criteria decides whether a head qualifies for a job in a container
type Criteria interface {
	Matches(sourceID string, head model.Head) bool
}

// BuildStrategy decides whether an evaluation should trigger a build.
// Strategies are held in an ordered list; any strategy returning true
// triggers a build. lastBuilt is empty when the job has never been built.
type BuildStrategy interface {
	ShouldBuild(sourceID string, head model.Head, current, lastBuilt, lastSeen model.Revision) bool
}

// BuildExecutor accepts build triggers. Fire-and-forget: the engine never
// waits for build completion.
type BuildExecutor interface {
	Trigger(ctx context.Context, containerID string, job model.ChildJob, rev model.Revision)
}

// Notifier receives out-of-band alerts about failed scans
type Notifier interface {
	NotifyScanFailure(ctx context.Context, result *model.ScanResult) error
}
