package model

import "time"

// JobState represents the lifecycle state of a child job
type JobState string

const (
	JobStateLive JobState = "live"
	JobStateDead JobState = "dead"
)

// ChildJob is the build job tracking one decoded head identity within a
// container. At most one ChildJob exists per (category, decoded name) pair.
//
// LastSeenRevision is updated on every evaluation of the job, whether or not
// a build is triggered. LastBuiltRevision is updated only when a build is
// actually dispatched; it stays empty until a strategy first approves one.
type ChildJob struct {
	EncodedName       string       `json:"encoded_name"` // Stable filesystem-safe identifier
	DisplayName       string       `json:"display_name"` // Raw head name, verbatim
	OwningSourceID    string       `json:"owning_source_id"`
	Category          HeadCategory `json:"category"`
	LastSeenRevision  Revision     `json:"last_seen_revision"`
	LastBuiltRevision Revision     `json:"last_built_revision"`
	State             JobState     `json:"state"`
	Enabled           bool         `json:"enabled"`
	BuildCount        int          `json:"build_count"`
	LastBuildAt       time.Time    `json:"last_build_at,omitempty"`
	DeadSince         time.Time    `json:"dead_since,omitempty"`
}

// Observe records a freshly fetched revision without triggering a build
func (j *ChildJob) Observe(rev Revision) {
	j.LastSeenRevision = rev
}

// RecordBuild records that a build was dispatched at the given revision
func (j *ChildJob) RecordBuild(rev Revision, at time.Time) {
	j.LastSeenRevision = rev
	j.LastBuiltRevision = rev
	j.BuildCount++
	j.LastBuildAt = at
}

// MarkDead transitions the job out of the live set. Dead jobs are disabled
// and retained until the retention policy evicts them during a scan.
func (j *ChildJob) MarkDead(at time.Time) {
	if j.State == JobStateDead {
		return
	}
	j.State = JobStateDead
	j.Enabled = false
	j.DeadSince = at
}

// Resurrect transitions a dead job back to live under a new owner. The job
// is evaluated as if newly created afterwards, so the built revision is
// cleared to force a fresh build decision.
func (j *ChildJob) Resurrect(ownerID string) {
	j.State = JobStateLive
	j.Enabled = true
	j.OwningSourceID = ownerID
	j.LastBuiltRevision = ""
	j.DeadSince = time.Time{}
}
