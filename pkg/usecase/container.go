package usecase

import (
	"sort"
	"sync"

	"github.com/m-mizutani/drover/pkg/domain/interfaces"
	"github.com/m-mizutani/drover/pkg/domain/model"
	"github.com/m-mizutani/drover/pkg/utils/nameenc"
)

// Container owns one set of child jobs reconciled against a ranked list of
// sources. The commit mutex serializes structural mutation of the job set;
// discovery and validation I/O never runs under it.
type Container struct {
	id string

	// mu is the commit lock. It guards jobs and reported.
	mu       sync.Mutex
	jobs     map[string]*model.ChildJob
	reported map[string]map[string]model.Head // sourceID -> identity -> head

	// cfgMu guards the configured topology. Reconciliations work on an
	// immutable snapshot taken at entry, so a topology change only affects
	// passes started after it.
	cfgMu       sync.RWMutex
	sources     []interfaces.Source
	criteria    interfaces.Criteria
	strategies  []interfaces.BuildStrategy
	retention   model.RetentionPolicy
	initialScan bool
}

// ContainerOption configures a Container
type ContainerOption func(*Container)

// WithCriteria sets the qualification predicate (default: match all)
func WithCriteria(c interfaces.Criteria) ContainerOption {
	return func(ct *Container) { ct.criteria = c }
}

// WithStrategies sets the ordered build strategy list. An empty list falls
// back to the default revision-change rule.
func WithStrategies(s ...interfaces.BuildStrategy) ContainerOption {
	return func(ct *Container) { ct.strategies = s }
}

// WithRetention sets the dead job retention policy (default: delete
// immediately)
func WithRetention(p model.RetentionPolicy) ContainerOption {
	return func(ct *Container) { ct.retention = p }
}

// WithoutInitialScan suppresses the scan normally run when the container is
// first loaded
func WithoutInitialScan() ContainerOption {
	return func(ct *Container) { ct.initialScan = false }
}

// NewContainer creates a container over the given ranked sources. Rank 0 is
// the highest priority; two sources never share a rank.
func NewContainer(id string, sources []interfaces.Source, opts ...ContainerOption) *Container {
	c := &Container{
		id:          id,
		jobs:        map[string]*model.ChildJob{},
		reported:    map[string]map[string]model.Head{},
		sources:     append([]interfaces.Source{}, sources...),
		criteria:    MatchAll(),
		initialScan: true,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ID returns the container identifier
func (c *Container) ID() string { return c.id }

// InitialScan reports whether the container wants a scan at startup
func (c *Container) InitialScan() bool {
	c.cfgMu.RLock()
	defer c.cfgMu.RUnlock()
	return c.initialScan
}

// SetSources replaces the ranked source list. Reconciliations already in
// flight keep their snapshot.
func (c *Container) SetSources(sources []interfaces.Source) {
	c.cfgMu.Lock()
	defer c.cfgMu.Unlock()
	c.sources = append([]interfaces.Source{}, sources...)
}

// Sources returns a copy of the current ranked source list
func (c *Container) Sources() []interfaces.Source {
	c.cfgMu.RLock()
	defer c.cfgMu.RUnlock()
	return append([]interfaces.Source{}, c.sources...)
}

// Jobs returns a copy of the job set sorted by encoded name
func (c *Container) Jobs() []model.ChildJob {
	c.mu.Lock()
	defer c.mu.Unlock()

	jobs := make([]model.ChildJob, 0, len(c.jobs))
	for _, j := range c.jobs {
		jobs = append(jobs, *j)
	}
	sort.Slice(jobs, func(i, j int) bool { return jobs[i].EncodedName < jobs[j].EncodedName })
	return jobs
}

// snapshot captures the configured topology for one reconciliation pass
func (c *Container) snapshot() containerSnapshot {
	c.cfgMu.RLock()
	defer c.cfgMu.RUnlock()
	return containerSnapshot{
		sources:    append([]interfaces.Source{}, c.sources...),
		criteria:   c.criteria,
		strategies: append([]interfaces.BuildStrategy{}, c.strategies...),
		retention:  c.retention,
	}
}

// containerSnapshot is the immutable topology a single pass works against
type containerSnapshot struct {
	sources    []interfaces.Source
	criteria   interfaces.Criteria
	strategies []interfaces.BuildStrategy
	retention  model.RetentionPolicy
}

// source returns the configured source with the given ID, or nil
func (s containerSnapshot) source(id string) interfaces.Source {
	for _, src := range s.sources {
		if src.ID() == id {
			return src
		}
	}
	return nil
}

// rank returns the rank index of a source ID, or -1 if not configured
func (s containerSnapshot) rank(id string) int {
	for i, src := range s.sources {
		if src.ID() == id {
			return i
		}
	}
	return -1
}

// identityKey derives the job identity of a head. Category is part of the
// identity; the name is Unicode-normalized so visually identical names share
// one job.
func identityKey(category model.HeadCategory, name string) string {
	return string(category) + "\x00" + nameenc.Normalize(name)
}

// reportedSnapshot copies the last-known qualifying head sets, used to stand
// in for sources that a restricted scan does not re-discover
func (c *Container) reportedSnapshot() map[string]map[string]model.Head {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make(map[string]map[string]model.Head, len(c.reported))
	for srcID, heads := range c.reported {
		m := make(map[string]model.Head, len(heads))
		for k, h := range heads {
			m[k] = h
		}
		out[srcID] = m
	}
	return out
}

// setReported records heads as the source's last-known contribution. Caller
// must hold c.mu.
func (c *Container) setReported(sourceID string, heads map[string]model.Head) {
	c.reported[sourceID] = heads
}

// updateReported adjusts a single head in the source's last-known set.
// Caller must hold c.mu.
func (c *Container) updateReported(sourceID, key string, head model.Head, present bool) {
	heads := c.reported[sourceID]
	if heads == nil {
		if !present {
			return
		}
		heads = map[string]model.Head{}
		c.reported[sourceID] = heads
	}
	if present {
		heads[key] = head
	} else {
		delete(heads, key)
	}
}
