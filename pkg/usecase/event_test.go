package usecase_test

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/m-mizutani/ctxlog"
	"github.com/m-mizutani/gt"

	"github.com/m-mizutani/drover/pkg/domain/interfaces"
	"github.com/m-mizutani/drover/pkg/domain/model"
	"github.com/m-mizutani/drover/pkg/usecase"
)

func headEvent(typ model.HeadEventType, sourceID, name string) model.HeadEvent {
	return model.HeadEvent{
		ID:       "test-delivery",
		Type:     typ,
		SourceID: sourceID,
		Head: model.Head{
			SourceID: sourceID,
			Category: model.CategoryBranch,
			Name:     name,
		},
		ReceivedAt: time.Now(),
	}
}

func fireAndWait(t *testing.T, engine *usecase.Reconciler, containerID string, ev model.Event) {
	t.Helper()
	fireAndWaitCtx(t, context.Background(), engine, containerID, ev)
}

func fireAndWaitCtx(t *testing.T, ctx context.Context, engine *usecase.Reconciler, containerID string, ev model.Event) {
	t.Helper()
	seq, err := engine.Fire(ctx, containerID, ev)
	gt.NoError(t, err)
	gt.NoError(t, engine.Wait(context.Background(), seq))
}

func TestFire_OwnershipLifecycle(t *testing.T) {
	foo := newMockSource("foo")
	bar := newMockSource("bar")
	foo.set(model.CategoryBranch, "feature", "r1")
	bar.set(model.CategoryBranch, "feature", "r2")

	exec := &mockExecutor{}
	engine := usecase.New(exec)
	engine.AddContainer(usecase.NewContainer("app", []interfaces.Source{foo, bar}))

	mustScan(t, engine, "app")
	feature := jobByName(t, mustJobs(t, engine, "app"), "feature")
	gt.Equal(t, feature.OwningSourceID, "foo")
	gt.Equal(t, feature.LastBuiltRevision, model.Revision("r1"))
	gt.Equal(t, feature.BuildCount, 1)

	// The owner deletes the head and says so. The job dies but stays
	// recorded.
	foo.remove(model.CategoryBranch, "feature")
	fireAndWait(t, engine, "app", headEvent(model.HeadEventRemoved, "foo", "feature"))

	feature = jobByName(t, mustJobs(t, engine, "app"), "feature")
	gt.Equal(t, feature.State, model.JobStateDead)
	gt.False(t, feature.Enabled)

	// The lower-ranked source still has the head. Its event resurrects the
	// job under the new owner and forces a rebuild at the new revision.
	fireAndWait(t, engine, "app", headEvent(model.HeadEventUpdated, "bar", "feature"))

	feature = jobByName(t, mustJobs(t, engine, "app"), "feature")
	gt.Equal(t, feature.State, model.JobStateLive)
	gt.Equal(t, feature.OwningSourceID, "bar")
	gt.Equal(t, feature.LastBuiltRevision, model.Revision("r2"))
	gt.Equal(t, feature.BuildCount, 2)
	gt.True(t, exec.waitForTriggers(2, time.Second))
}

// syncWriter makes a byte buffer safe for the engine's async log writes
type syncWriter struct {
	mu  sync.Mutex
	buf []byte
}

func (w *syncWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.buf = append(w.buf, p...)
	return len(p), nil
}

func (w *syncWriter) String() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return string(w.buf)
}

func TestFire_CreatedNoOpWritesNothing(t *testing.T) {
	src := newMockSource("origin")
	src.set(model.CategoryBranch, "main", "aaa")

	engine := usecase.New(&mockExecutor{})
	engine.AddContainer(usecase.NewContainer("app", []interfaces.Source{src}))

	mustScan(t, engine, "app")
	before := mustJobs(t, engine, "app")

	out := &syncWriter{}
	logger := slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{Level: slog.LevelDebug}))
	ctx := ctxlog.With(context.Background(), logger)

	// A redundant creation event for an up-to-date job is a complete no-op:
	// no mutation, no build, not even a log line
	fireAndWaitCtx(t, ctx, engine, "app", headEvent(model.HeadEventCreated, "origin", "main"))

	gt.Equal(t, mustJobs(t, engine, "app"), before)
	gt.Equal(t, out.String(), "")
}

func TestFire_RemovedRumorDisregarded(t *testing.T) {
	src := newMockSource("origin")
	src.set(model.CategoryBranch, "main", "aaa")

	engine := usecase.New(&mockExecutor{})
	engine.AddContainer(usecase.NewContainer("app", []interfaces.Source{src}))

	mustScan(t, engine, "app")

	// The event claims removal but the source still reports the head. Truth
	// wins: the job stays live.
	fireAndWait(t, engine, "app", headEvent(model.HeadEventRemoved, "origin", "main"))

	main := jobByName(t, mustJobs(t, engine, "app"), "main")
	gt.Equal(t, main.State, model.JobStateLive)
}

func TestFire_UnconfiguredSourceIgnored(t *testing.T) {
	src := newMockSource("origin")
	src.set(model.CategoryBranch, "main", "aaa")

	engine := usecase.New(&mockExecutor{})
	engine.AddContainer(usecase.NewContainer("app", []interfaces.Source{src}))

	mustScan(t, engine, "app")
	before := mustJobs(t, engine, "app")

	fireAndWait(t, engine, "app", headEvent(model.HeadEventCreated, "ghost", "main"))
	gt.Equal(t, mustJobs(t, engine, "app"), before)
}

func TestFire_HigherRankClaimSuppressesCreate(t *testing.T) {
	primary := newMockSource("primary")
	fallback := newMockSource("fallback")
	primary.set(model.CategoryBranch, "shared", "r1")
	fallback.set(model.CategoryBranch, "shared", "r2")

	engine := usecase.New(&mockExecutor{})
	engine.AddContainer(usecase.NewContainer("app", []interfaces.Source{primary, fallback}))

	// The lower-ranked source announces a head the higher-ranked source also
	// reports. The event may not claim it; the next scan will assign it.
	fireAndWait(t, engine, "app", headEvent(model.HeadEventCreated, "fallback", "shared"))
	gt.Equal(t, len(mustJobs(t, engine, "app")), 0)

	// From the higher-ranked source itself the same event creates the job
	fireAndWait(t, engine, "app", headEvent(model.HeadEventCreated, "primary", "shared"))
	jobs := mustJobs(t, engine, "app")
	gt.Equal(t, len(jobs), 1)
	gt.Equal(t, jobs[0].OwningSourceID, "primary")
}

func TestFire_LowerRankEventNeverPreempts(t *testing.T) {
	primary := newMockSource("primary")
	fallback := newMockSource("fallback")
	primary.set(model.CategoryBranch, "feature", "r1")
	fallback.set(model.CategoryBranch, "feature", "r9")

	engine := usecase.New(&mockExecutor{})
	engine.AddContainer(usecase.NewContainer("app", []interfaces.Source{primary, fallback}))

	mustScan(t, engine, "app")

	fireAndWait(t, engine, "app", headEvent(model.HeadEventUpdated, "fallback", "feature"))

	feature := jobByName(t, mustJobs(t, engine, "app"), "feature")
	gt.Equal(t, feature.OwningSourceID, "primary")
	gt.Equal(t, feature.LastBuiltRevision, model.Revision("r1"))
	gt.Equal(t, feature.BuildCount, 1)
}

func TestFire_ValidationFailureIgnoresEvent(t *testing.T) {
	src := newMockSource("origin")
	src.set(model.CategoryBranch, "main", "aaa")

	engine := usecase.New(&mockExecutor{})
	engine.AddContainer(usecase.NewContainer("app", []interfaces.Source{src}))

	mustScan(t, engine, "app")
	before := mustJobs(t, engine, "app")

	src.set(model.CategoryBranch, "main", "bbb")
	src.setRevErr(mockError("flaky upstream"))
	fireAndWait(t, engine, "app", headEvent(model.HeadEventUpdated, "origin", "main"))

	// The failed validation changed nothing; a later event picks it up
	gt.Equal(t, mustJobs(t, engine, "app"), before)

	src.setRevErr(nil)
	fireAndWait(t, engine, "app", headEvent(model.HeadEventUpdated, "origin", "main"))
	main := jobByName(t, mustJobs(t, engine, "app"), "main")
	gt.Equal(t, main.LastBuiltRevision, model.Revision("bbb"))
}

func TestFire_ConcurrentEventsValidateInParallel(t *testing.T) {
	src := newMockSource("origin")
	src.delay = 10 * time.Millisecond
	for i := 0; i < 40; i++ {
		src.set(model.CategoryBranch, fmt.Sprintf("branch-%02d", i), model.Revision(fmt.Sprintf("rev-%02d", i)))
	}

	exec := &mockExecutor{}
	engine := usecase.New(exec)
	engine.AddContainer(usecase.NewContainer("app", []interfaces.Source{src}))

	ctx := context.Background()
	var last uint64
	for i := 0; i < 40; i++ {
		seq, err := engine.Fire(ctx, "app", headEvent(model.HeadEventCreated, "origin", fmt.Sprintf("branch-%02d", i)))
		gt.NoError(t, err)
		last = seq
	}
	gt.Equal(t, engine.Watermark(), last)
	gt.NoError(t, engine.Wait(ctx, last))

	jobs := mustJobs(t, engine, "app")
	gt.Equal(t, len(jobs), 40)
	for _, j := range jobs {
		gt.Equal(t, j.BuildCount, 1)
		gt.Equal(t, j.State, model.JobStateLive)
	}

	// With per-event latency at the source, a serialized pipeline could not
	// overlap probes
	gt.True(t, src.peakInflight() > 1)
	gt.True(t, exec.waitForTriggers(40, 2*time.Second))
}

func TestWait_TimesOutWhileEventsInflight(t *testing.T) {
	src := newMockSource("origin")
	src.delay = 200 * time.Millisecond
	src.set(model.CategoryBranch, "main", "aaa")

	engine := usecase.New(&mockExecutor{})
	engine.AddContainer(usecase.NewContainer("app", []interfaces.Source{src}))

	seq, err := engine.Fire(context.Background(), "app", headEvent(model.HeadEventCreated, "origin", "main"))
	gt.NoError(t, err)

	short, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	gt.Error(t, engine.Wait(short, seq))

	// The event is still completing in the background; a patient wait drains
	gt.NoError(t, engine.Wait(context.Background(), seq))
	gt.Equal(t, len(mustJobs(t, engine, "app")), 1)
}
