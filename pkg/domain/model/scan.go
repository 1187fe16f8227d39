package model

import "time"

// ScanStatus is the outcome of a full container scan
type ScanStatus string

const (
	ScanSuccess ScanStatus = "success"
	ScanFailure ScanStatus = "failure"
)

// SourceError records a discovery failure scoped to one source
type SourceError struct {
	SourceID string `json:"source_id"`
	Message  string `json:"message"`
}

// ScanResult summarizes one reconciliation pass over a container.
//
// On Failure no mutation of the job set has been committed: the job set is
// exactly as it was before the scan started.
type ScanResult struct {
	ContainerID  string        `json:"container_id"`
	Status       ScanStatus    `json:"status"`
	Created      int           `json:"created"`
	Updated      int           `json:"updated"`
	Built        int           `json:"built"`
	Deadened     int           `json:"deadened"`
	Resurrected  int           `json:"resurrected"`
	Takeovers    int           `json:"takeovers"`
	Deleted      int           `json:"deleted"`
	SourceErrors []SourceError `json:"source_errors,omitempty"`
	StartedAt    time.Time     `json:"started_at"`
	Duration     time.Duration `json:"duration"`
}

// Mutated reports whether the pass changed the job set at all
func (r *ScanResult) Mutated() bool {
	return r.Created+r.Updated+r.Built+r.Deadened+r.Resurrected+r.Takeovers+r.Deleted > 0
}
