package usecase

import (
	"context"
	"time"

	"github.com/m-mizutani/ctxlog"
	"github.com/m-mizutani/goerr/v2"

	"github.com/m-mizutani/drover/pkg/domain/model"
	"github.com/m-mizutani/drover/pkg/domain/types"
	"github.com/m-mizutani/drover/pkg/utils/async"
)

// Fire submits an event for asynchronous reconciliation and returns the
// watermark sequence assigned to it. Events are hints: the engine re-derives
// truth from the named source before mutating anything, so a stale or lying
// payload cannot corrupt the job set. Validation runs fully in parallel with
// other events; only the commit section takes the container lock.
func (r *Reconciler) Fire(ctx context.Context, containerID string, ev model.Event) (uint64, error) {
	c, err := r.container(containerID)
	if err != nil {
		return 0, err
	}

	seq := r.wm.submit()
	async.Dispatch(ctx, func(ctx context.Context) error {
		defer r.wm.finish(seq)

		switch e := ev.(type) {
		case model.HeadEvent:
			r.handleHeadEvent(ctx, c, e)
		case model.ContainerEvent:
			// Head unidentified: scan the named source's contribution
			// merged against the other sources' last-known state
			if snap := c.snapshot(); snap.source(e.SourceID) != nil {
				r.scan(ctx, c, e.SourceID)
			}
		}
		return nil
	})
	return seq, nil
}

// headTruth is the revalidated state of one head at one source
type headTruth struct {
	head      model.Head
	revision  model.Revision
	qualifies bool
}

// handleHeadEvent runs the per-head reconciliation protocol. Removal events
// never delete jobs; creation events for already up-to-date jobs are
// complete no-ops, including zero log writes.
func (r *Reconciler) handleHeadEvent(ctx context.Context, c *Container, e model.HeadEvent) {
	logger := ctxlog.From(ctx)
	snap := c.snapshot()

	src := snap.source(e.SourceID)
	if src == nil || !e.Head.Category.Valid() {
		logger.Debug("ignoring event for unconfigured source",
			"container", c.ID(), "source", e.SourceID, "event", e.ID)
		return
	}

	truth, err := r.revalidate(ctx, snap, e)
	if err != nil {
		// Validation failures mean "ignore this event"; the next scan or
		// event re-derives truth. No retry.
		logger.Warn("event validation failed, ignoring",
			"container", c.ID(), "source", e.SourceID,
			"head", e.Head.Name, "event", e.ID, "error", err)
		return
	}

	// Quick ownership probe: a head may only be claimed via event when no
	// higher-ranked source currently reports it qualifying. Read-only, so
	// it runs before the commit lock.
	higherClaims := false
	if truth.qualifies {
		higherClaims, err = r.higherRankReports(ctx, snap, e.SourceID, truth.head)
		if err != nil {
			logger.Warn("event validation failed, ignoring",
				"container", c.ID(), "source", e.SourceID,
				"head", e.Head.Name, "event", e.ID, "error", err)
			return
		}
	}

	key := identityKey(e.Head.Category, e.Head.Name)
	evRank := snap.rank(e.SourceID)

	result := &model.ScanResult{ContainerID: c.ID()}

	c.mu.Lock()
	defer c.mu.Unlock()

	job, exists := c.jobs[key]
	switch {
	case !exists:
		// Nothing recorded for a head that does not qualify; otherwise this
		// is the full-scan creation step scoped to one head
		if truth.qualifies && !higherClaims {
			r.applyObservation(ctx, c, key, e.SourceID, truth.head, truth.revision, snap, result)
		}

	case job.State == model.JobStateDead:
		// A dead job stays dead until some source re-validates its head;
		// ownership then falls to that source regardless of the dead
		// owner's rank
		if truth.qualifies && !higherClaims {
			r.applyObservation(ctx, c, key, e.SourceID, truth.head, truth.revision, snap, result)
		}

	case job.OwningSourceID == e.SourceID:
		if truth.qualifies {
			r.applyObservation(ctx, c, key, e.SourceID, truth.head, truth.revision, snap, result)
		} else {
			// The owner confirmed the head is gone. The job goes dead; it
			// is never deleted by an event.
			job.MarkDead(time.Now())
			result.Deadened++
			logger.Info("job head removed by owner",
				"container", c.ID(), "job", job.EncodedName, "source", e.SourceID)
		}

	case snap.rank(job.OwningSourceID) < evRank:
		// Owned by a higher-priority source: lower-priority events never
		// preempt, whatever they claim

	default:
		// Owned by a lower-priority source: the event's source takes over
		// if it qualifies
		if truth.qualifies {
			r.applyObservation(ctx, c, key, e.SourceID, truth.head, truth.revision, snap, result)
		}
	}

	c.updateReported(e.SourceID, key, truth.head, truth.qualifies)
}

// revalidate re-derives a head's state directly from the source named by the
// event. The event payload itself is never trusted.
func (r *Reconciler) revalidate(ctx context.Context, snap containerSnapshot, e model.HeadEvent) (*headTruth, error) {
	src := snap.source(e.SourceID)

	head, found, err := src.LookupHead(ctx, e.Head.Category, e.Head.Name)
	if err != nil {
		return nil, goerr.Wrap(err, "head lookup failed",
			goerr.V("source", e.SourceID), goerr.V("head", e.Head.Name),
			goerr.T(types.ErrTagValidation))
	}

	truth := &headTruth{head: head}
	if !found || !snap.criteria.Matches(e.SourceID, head) {
		return truth, nil
	}

	rev, err := src.CurrentRevision(ctx, head)
	if err != nil {
		return nil, goerr.Wrap(err, "revision fetch failed",
			goerr.V("source", e.SourceID), goerr.V("head", e.Head.Name),
			goerr.T(types.ErrTagValidation))
	}
	truth.qualifies = true
	truth.revision = rev
	return truth, nil
}

// higherRankReports probes whether any source ranked above the given one
// currently reports the head as qualifying
func (r *Reconciler) higherRankReports(ctx context.Context, snap containerSnapshot, sourceID string, head model.Head) (bool, error) {
	rank := snap.rank(sourceID)
	for i := 0; i < rank; i++ {
		src := snap.sources[i]
		h, found, err := src.LookupHead(ctx, head.Category, head.Name)
		if err != nil {
			return false, goerr.Wrap(err, "higher-rank probe failed",
				goerr.V("source", src.ID()), goerr.V("head", head.Name),
				goerr.T(types.ErrTagValidation))
		}
		if found && snap.criteria.Matches(src.ID(), h) {
			return true, nil
		}
	}
	return false, nil
}
