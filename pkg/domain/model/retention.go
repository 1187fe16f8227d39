package model

import "time"

// RetentionPolicy controls how many dead jobs a container keeps around
// before the scan commit deletes them.
//
// A zero policy deletes dead jobs immediately. KeepCount retains at most
// that many dead jobs (most recently built first); KeepDuration retains
// jobs whose last build is younger than the duration. When both are set a
// job must satisfy both to be kept.
type RetentionPolicy struct {
	KeepCount    int           `yaml:"keep_count" json:"keep_count"`
	KeepDuration time.Duration `yaml:"keep_duration" json:"keep_duration"`
}

// KeepsNothing reports whether the policy is "delete immediately"
func (p RetentionPolicy) KeepsNothing() bool {
	return p.KeepCount <= 0 && p.KeepDuration <= 0
}
