package usecase

import (
	"sort"
	"time"

	"github.com/m-mizutani/drover/pkg/domain/model"
)

// PartitionDead splits a container's dead jobs into the set to keep
// (disabled but retained) and the set to delete, per the retention policy.
// Most recently built jobs are kept first; eviction starts from the oldest
// last build time. Jobs that were never built sort oldest.
func PartitionDead(dead []*model.ChildJob, policy model.RetentionPolicy, now time.Time) (keep, del []*model.ChildJob) {
	if policy.KeepsNothing() {
		return nil, dead
	}

	sorted := append([]*model.ChildJob{}, dead...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].LastBuildAt.After(sorted[j].LastBuildAt)
	})

	for i, job := range sorted {
		if policy.KeepCount > 0 && i >= policy.KeepCount {
			del = append(del, job)
			continue
		}
		if policy.KeepDuration > 0 && now.Sub(job.LastBuildAt) > policy.KeepDuration {
			del = append(del, job)
			continue
		}
		keep = append(keep, job)
	}
	return keep, del
}
