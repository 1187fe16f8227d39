package usecase

import (
	"context"
	"sync"
	"time"

	"github.com/m-mizutani/ctxlog"
	"github.com/m-mizutani/goerr/v2"
	"golang.org/x/sync/errgroup"

	"github.com/m-mizutani/drover/pkg/domain/interfaces"
	"github.com/m-mizutani/drover/pkg/domain/model"
	"github.com/m-mizutani/drover/pkg/domain/types"
	"github.com/m-mizutani/drover/pkg/utils/async"
	"github.com/m-mizutani/drover/pkg/utils/nameenc"
)

// discoveryParallelism bounds concurrent ListHeads calls within one scan
const discoveryParallelism = 8

// Reconciler drives head-to-job reconciliation for a set of containers.
// Full scans and events share the per-container commit lock; all discovery
// and validation I/O runs outside it.
type Reconciler struct {
	executor interfaces.BuildExecutor
	notifier interfaces.Notifier

	mu         sync.RWMutex
	containers map[string]*Container

	wm *watermark
}

// Option configures a Reconciler
type Option func(*Reconciler)

// WithNotifier installs an out-of-band notifier for scan failures
func WithNotifier(n interfaces.Notifier) Option {
	return func(r *Reconciler) { r.notifier = n }
}

// New creates a reconciliation engine dispatching builds to the given
// executor
func New(executor interfaces.BuildExecutor, opts ...Option) *Reconciler {
	r := &Reconciler{
		executor:   executor,
		containers: map[string]*Container{},
		wm:         newWatermark(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// AddContainer registers a container with the engine
func (r *Reconciler) AddContainer(c *Container) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.containers[c.ID()] = c
}

// UpdateSources replaces a container's ranked source list, keeping its job
// set. Reconciliations already in flight finish on the snapshot they took;
// the new topology applies from the next pass.
func (r *Reconciler) UpdateSources(containerID string, sources []interfaces.Source) error {
	c, err := r.container(containerID)
	if err != nil {
		return err
	}
	c.SetSources(sources)
	return nil
}

// ContainerIDs lists registered containers
func (r *Reconciler) ContainerIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.containers))
	for id := range r.containers {
		ids = append(ids, id)
	}
	return ids
}

// Jobs returns the job read model of one container
func (r *Reconciler) Jobs(containerID string) ([]model.ChildJob, error) {
	c, err := r.container(containerID)
	if err != nil {
		return nil, err
	}
	return c.Jobs(), nil
}

// Watermark returns the sequence of the most recently submitted event
func (r *Reconciler) Watermark() uint64 {
	return r.wm.current()
}

// Wait blocks until all events submitted at or before mark have committed
func (r *Reconciler) Wait(ctx context.Context, mark uint64) error {
	return r.wm.wait(ctx, mark)
}

func (r *Reconciler) container(id string) (*Container, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.containers[id]
	if !ok {
		return nil, goerr.New("unknown container", goerr.V("container", id))
	}
	return c, nil
}

// Scan runs a full reconciliation pass over one container. The pass is
// all-or-nothing: any discovery failure aborts before the commit phase and
// leaves the job set untouched.
func (r *Reconciler) Scan(ctx context.Context, containerID string) (*model.ScanResult, error) {
	c, err := r.container(containerID)
	if err != nil {
		return nil, err
	}
	return r.scan(ctx, c, ""), nil
}

// resolvedHead is one head after ownership resolution, with the owner's
// fetched revision
type resolvedHead struct {
	owner    interfaces.Source
	head     model.Head
	revision model.Revision
}

// scan is the full-scan protocol. A non-empty onlySource restricts fresh
// discovery to that source; the other sources contribute their last-known
// head sets (the ContainerEvent path).
func (r *Reconciler) scan(ctx context.Context, c *Container, onlySource string) *model.ScanResult {
	logger := ctxlog.From(ctx)
	snap := c.snapshot()
	result := &model.ScanResult{
		ContainerID: c.ID(),
		StartedAt:   time.Now(),
	}
	defer func() { result.Duration = time.Since(result.StartedAt) }()

	// Discovery: every ranked source in parallel, qualifying heads only.
	// Failures are recorded per source and abort the pass after the phase.
	cached := map[string]map[string]model.Head{}
	if onlySource != "" {
		cached = c.reportedSnapshot()
	}

	reports := make([]map[string]model.Head, len(snap.sources))
	var (
		errMu sync.Mutex
		eg    errgroup.Group
	)
	eg.SetLimit(discoveryParallelism)

	for i, src := range snap.sources {
		if onlySource != "" && src.ID() != onlySource {
			reports[i] = cached[src.ID()]
			continue
		}
		eg.Go(func() error {
			heads, err := src.ListHeads(ctx)
			if err != nil {
				err = goerr.Wrap(err, "head discovery failed",
					goerr.V("source", src.ID()), goerr.T(types.ErrTagDiscovery))
				errMu.Lock()
				result.SourceErrors = append(result.SourceErrors, model.SourceError{
					SourceID: src.ID(),
					Message:  err.Error(),
				})
				errMu.Unlock()
				return nil
			}
			qualifying := map[string]model.Head{}
			for _, h := range heads {
				if snap.criteria.Matches(src.ID(), h) {
					qualifying[identityKey(h.Category, h.Name)] = h
				}
			}
			reports[i] = qualifying
			return nil
		})
	}
	_ = eg.Wait()

	if len(result.SourceErrors) > 0 {
		return r.failScan(ctx, result)
	}

	// Ownership resolution per head identity
	reporters := map[string]map[string]bool{}
	headsBySource := map[string]map[string]model.Head{}
	for i, src := range snap.sources {
		for key, head := range reports[i] {
			if reporters[key] == nil {
				reporters[key] = map[string]bool{}
				headsBySource[key] = map[string]model.Head{}
			}
			reporters[key][src.ID()] = true
			headsBySource[key][src.ID()] = head
		}
	}

	resolved := map[string]*resolvedHead{}
	for key, reporting := range reporters {
		owner, owned := ResolveOwner(snap.sources, reporting)
		if !owned {
			continue
		}
		resolved[key] = &resolvedHead{owner: owner, head: headsBySource[key][owner.ID()]}
	}

	// Revision fetch from each head's owner, still outside the lock.
	// Revision I/O is discovery too: a failure aborts the whole pass.
	var revGroup errgroup.Group
	revGroup.SetLimit(discoveryParallelism)
	for _, rh := range resolved {
		revGroup.Go(func() error {
			rev, err := rh.owner.CurrentRevision(ctx, rh.head)
			if err != nil {
				err = goerr.Wrap(err, "revision fetch failed",
					goerr.V("source", rh.owner.ID()), goerr.V("head", rh.head.Name),
					goerr.T(types.ErrTagDiscovery))
				errMu.Lock()
				result.SourceErrors = append(result.SourceErrors, model.SourceError{
					SourceID: rh.owner.ID(),
					Message:  err.Error(),
				})
				errMu.Unlock()
				return nil
			}
			rh.revision = rev
			return nil
		})
	}
	_ = revGroup.Wait()

	if len(result.SourceErrors) > 0 {
		return r.failScan(ctx, result)
	}

	// Commit: the only section holding the container lock
	c.mu.Lock()
	now := time.Now()

	for key, rh := range resolved {
		r.applyObservation(ctx, c, key, rh.owner.ID(), rh.head, rh.revision, snap, result)
	}

	for key, job := range c.jobs {
		if job.State != model.JobStateLive {
			continue
		}
		if _, present := resolved[key]; !present {
			job.MarkDead(now)
			result.Deadened++
			logger.Info("job head disappeared",
				"container", c.ID(), "job", job.EncodedName)
		}
	}

	var dead []*model.ChildJob
	deadKeys := map[*model.ChildJob]string{}
	for key, job := range c.jobs {
		if job.State == model.JobStateDead {
			dead = append(dead, job)
			deadKeys[job] = key
		}
	}
	_, del := PartitionDead(dead, snap.retention, now)
	for _, job := range del {
		delete(c.jobs, deadKeys[job])
		result.Deleted++
		logger.Info("dead job deleted",
			"container", c.ID(), "job", job.EncodedName)
	}

	for i, src := range snap.sources {
		if onlySource == "" || src.ID() == onlySource {
			c.setReported(src.ID(), reports[i])
		}
	}
	c.mu.Unlock()

	result.Status = model.ScanSuccess
	if result.Mutated() {
		logger.Info("scan committed",
			"container", c.ID(),
			"created", result.Created,
			"built", result.Built,
			"deadened", result.Deadened,
			"deleted", result.Deleted,
			"takeovers", result.Takeovers)
	}
	return result
}

// failScan finalizes an aborted pass: nothing was committed, the job set is
// exactly as before the scan.
func (r *Reconciler) failScan(ctx context.Context, result *model.ScanResult) *model.ScanResult {
	result.Status = model.ScanFailure
	ctxlog.From(ctx).Error("scan aborted, no mutations committed",
		"container", result.ContainerID,
		"source_errors", result.SourceErrors)

	if r.notifier != nil {
		if err := r.notifier.NotifyScanFailure(ctx, result); err != nil {
			ctxlog.From(ctx).Warn("scan failure notification failed", "error", err)
		}
	}
	return result
}

// applyObservation reconciles one (head, owner, revision) observation against
// the job set. Caller must hold c.mu. Creation, resurrection, takeover and
// the build decision all happen here, for scans and events alike.
func (r *Reconciler) applyObservation(ctx context.Context, c *Container, key, ownerID string, head model.Head, rev model.Revision, snap containerSnapshot, result *model.ScanResult) {
	logger := ctxlog.From(ctx)
	now := time.Now()

	job, exists := c.jobs[key]
	switch {
	case !exists:
		job = &model.ChildJob{
			EncodedName:    nameenc.Encode(head.Name),
			DisplayName:    head.Name,
			OwningSourceID: ownerID,
			Category:       head.Category,
			State:          model.JobStateLive,
			Enabled:        true,
		}
		c.jobs[key] = job
		result.Created++
		logger.Info("job created",
			"container", c.ID(), "job", job.EncodedName, "owner", ownerID)

	case job.State == model.JobStateDead:
		// Resurrection is evaluated as if newly created: the built revision
		// is cleared so the strategy sees a first observation
		job.Resurrect(ownerID)
		result.Resurrected++
		logger.Info("job resurrected",
			"container", c.ID(), "job", job.EncodedName, "owner", ownerID)

	case job.OwningSourceID != ownerID:
		prev := job.OwningSourceID
		job.OwningSourceID = ownerID
		result.Takeovers++
		logger.Info("job ownership takeover",
			"container", c.ID(), "job", job.EncodedName,
			"from", prev, "to", ownerID)
	}

	if evaluateStrategies(snap.strategies, ownerID, head, rev, job.LastBuiltRevision, job.LastSeenRevision) {
		job.RecordBuild(rev, now)
		result.Built++
		logger.Info("build triggered",
			"container", c.ID(), "job", job.EncodedName,
			"revision", string(rev), "build", job.BuildCount)
		r.dispatchBuild(ctx, c.ID(), *job, rev)
		return
	}

	if job.LastSeenRevision != rev {
		result.Updated++
		logger.Info("revision observed without build",
			"container", c.ID(), "job", job.EncodedName, "revision", string(rev))
	}
	job.Observe(rev)
}

// dispatchBuild hands the trigger to the executor without waiting for it
func (r *Reconciler) dispatchBuild(ctx context.Context, containerID string, job model.ChildJob, rev model.Revision) {
	async.Dispatch(ctx, func(ctx context.Context) error {
		r.executor.Trigger(ctx, containerID, job, rev)
		return nil
	})
}

var _ interfaces.Reconciler = (*Reconciler)(nil)
