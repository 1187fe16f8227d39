package usecase_test

import (
	"context"
	"testing"
	"time"

	"github.com/m-mizutani/gt"

	"github.com/m-mizutani/drover/pkg/domain/interfaces"
	"github.com/m-mizutani/drover/pkg/domain/model"
	"github.com/m-mizutani/drover/pkg/usecase"
)

func TestSetSources_InFlightPassKeepsItsSnapshot(t *testing.T) {
	old := newMockSource("old")
	old.delay = 100 * time.Millisecond
	old.set(model.CategoryBranch, "from-old", "r1")

	next := newMockSource("next")
	next.set(model.CategoryBranch, "from-next", "r2")

	engine := usecase.New(&mockExecutor{})
	container := usecase.NewContainer("app", []interfaces.Source{old},
		usecase.WithRetention(model.RetentionPolicy{KeepCount: 1}))
	engine.AddContainer(container)

	done := make(chan *model.ScanResult, 1)
	go func() {
		result, err := engine.Scan(context.Background(), "app")
		if err != nil {
			t.Error(err)
			return
		}
		done <- result
	}()

	// Wait until the pass is inside discovery, then swap the topology out
	// from under it
	deadline := time.Now().Add(time.Second)
	for old.peakInflight() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	gt.True(t, old.peakInflight() > 0)
	container.SetSources([]interfaces.Source{next})

	// The in-flight pass still commits against the topology it started with
	select {
	case result := <-done:
		gt.Equal(t, result.Status, model.ScanSuccess)
		gt.Equal(t, result.Created, 1)
	case <-time.After(2 * time.Second):
		t.Fatal("scan did not finish")
	}

	jobs := mustJobs(t, engine, "app")
	gt.Equal(t, len(jobs), 1)
	gt.Equal(t, jobs[0].DisplayName, "from-old")
	gt.Equal(t, jobs[0].OwningSourceID, "old")

	// The next pass runs on the replaced topology
	second := mustScan(t, engine, "app")
	gt.Equal(t, second.Created, 1)
	gt.Equal(t, second.Deadened, 1)

	jobs = mustJobs(t, engine, "app")
	gt.Equal(t, jobByName(t, jobs, "from-next").OwningSourceID, "next")
	gt.Equal(t, jobByName(t, jobs, "from-old").State, model.JobStateDead)
}

func TestUpdateSources_AppliesFromNextPass(t *testing.T) {
	a := newMockSource("a")
	a.set(model.CategoryBranch, "main", "r1")
	b := newMockSource("b")
	b.set(model.CategoryBranch, "alt", "r2")

	engine := usecase.New(&mockExecutor{})
	engine.AddContainer(usecase.NewContainer("app", []interfaces.Source{a},
		usecase.WithRetention(model.RetentionPolicy{KeepCount: 1})))

	mustScan(t, engine, "app")
	gt.Equal(t, mustJobs(t, engine, "app")[0].DisplayName, "main")

	gt.NoError(t, engine.UpdateSources("app", []interfaces.Source{b}))

	second := mustScan(t, engine, "app")
	gt.Equal(t, second.Created, 1)
	gt.Equal(t, second.Deadened, 1)
	gt.Equal(t, jobByName(t, mustJobs(t, engine, "app"), "alt").OwningSourceID, "b")
}

func TestUpdateSources_UnknownContainer(t *testing.T) {
	engine := usecase.New(&mockExecutor{})
	gt.Error(t, engine.UpdateSources("nope", nil))
}

func TestSources_ReturnsRankedCopy(t *testing.T) {
	a := newMockSource("a")
	b := newMockSource("b")
	container := usecase.NewContainer("app", []interfaces.Source{a, b})

	sources := container.Sources()
	gt.Equal(t, len(sources), 2)
	gt.Equal(t, sources[0].ID(), "a")
	gt.Equal(t, sources[1].ID(), "b")

	// Mutating the returned slice must not affect the container
	sources[0] = b
	gt.Equal(t, container.Sources()[0].ID(), "a")
}
