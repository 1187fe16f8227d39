package usecase_test

import (
	"context"
	"sync"
	"time"

	"github.com/m-mizutani/drover/pkg/domain/model"
)

// mockHead keys a head inside a mock source
type mockHead struct {
	cat  model.HeadCategory
	name string
}

// mockSource is a scriptable in-memory source. All methods are safe for
// concurrent use; an optional delay simulates upstream latency and the
// peak in-flight counter proves parallel validation.
type mockSource struct {
	id    string
	delay time.Duration

	mu       sync.Mutex
	heads    map[mockHead]model.Revision
	listErr  error
	revErr   error
	inflight int
	peak     int
}

func newMockSource(id string) *mockSource {
	return &mockSource{id: id, heads: map[mockHead]model.Revision{}}
}

func (s *mockSource) set(cat model.HeadCategory, name string, rev model.Revision) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.heads[mockHead{cat, name}] = rev
}

func (s *mockSource) remove(cat model.HeadCategory, name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.heads, mockHead{cat, name})
}

func (s *mockSource) setListErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listErr = err
}

func (s *mockSource) setRevErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.revErr = err
}

func (s *mockSource) peakInflight() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.peak
}

func (s *mockSource) ID() string { return s.id }

func (s *mockSource) ListHeads(ctx context.Context) ([]model.Head, error) {
	s.trackEnter()
	defer s.trackLeave()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listErr != nil {
		return nil, s.listErr
	}
	heads := make([]model.Head, 0, len(s.heads))
	for k := range s.heads {
		heads = append(heads, model.Head{SourceID: s.id, Category: k.cat, Name: k.name})
	}
	return heads, nil
}

func (s *mockSource) LookupHead(ctx context.Context, category model.HeadCategory, name string) (model.Head, bool, error) {
	s.trackEnter()
	defer s.trackLeave()

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.heads[mockHead{category, name}]; !ok {
		return model.Head{}, false, nil
	}
	return model.Head{SourceID: s.id, Category: category, Name: name}, true, nil
}

func (s *mockSource) CurrentRevision(ctx context.Context, head model.Head) (model.Revision, error) {
	s.trackEnter()
	defer s.trackLeave()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.revErr != nil {
		return "", s.revErr
	}
	rev, ok := s.heads[mockHead{head.Category, head.Name}]
	if !ok {
		return "", errHeadGone
	}
	return rev, nil
}

// trackEnter/trackLeave measure concurrent in-flight probes and apply the
// configured latency outside the state lock
func (s *mockSource) trackEnter() {
	s.mu.Lock()
	s.inflight++
	if s.inflight > s.peak {
		s.peak = s.inflight
	}
	s.mu.Unlock()
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
}

func (s *mockSource) trackLeave() {
	s.mu.Lock()
	s.inflight--
	s.mu.Unlock()
}

// mockExecutor records every build trigger
type mockExecutor struct {
	mu       sync.Mutex
	triggers []buildTrigger
}

type buildTrigger struct {
	containerID string
	job         string
	rev         model.Revision
}

func (e *mockExecutor) Trigger(ctx context.Context, containerID string, job model.ChildJob, rev model.Revision) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.triggers = append(e.triggers, buildTrigger{containerID, job.EncodedName, rev})
}

func (e *mockExecutor) count() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.triggers)
}

// waitForTriggers polls until at least n builds were dispatched or the
// timeout expires. Build dispatch is fire-and-forget, so commits can finish
// slightly before the executor sees the trigger.
func (e *mockExecutor) waitForTriggers(n int, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if e.count() >= n {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return e.count() >= n
}

type mockError string

func (e mockError) Error() string { return string(e) }

const errHeadGone = mockError("head not found")
