package usecase

import (
	"github.com/m-mizutani/drover/pkg/domain/interfaces"
	"github.com/m-mizutani/drover/pkg/domain/model"
)

// StrategyFunc adapts a plain function to the BuildStrategy interface
type StrategyFunc func(sourceID string, head model.Head, current, lastBuilt, lastSeen model.Revision) bool

// ShouldBuild implements interfaces.BuildStrategy
func (f StrategyFunc) ShouldBuild(sourceID string, head model.Head, current, lastBuilt, lastSeen model.Revision) bool {
	return f(sourceID, head, current, lastBuilt, lastSeen)
}

// DefaultStrategy builds when the observed revision differs from the last
// built one; a job that has never been built counts as changed. Tag heads
// are excluded from automatic builds by convention; configure
// BuildTagsStrategy to opt them in.
func DefaultStrategy() interfaces.BuildStrategy {
	return StrategyFunc(func(_ string, head model.Head, current, lastBuilt, _ model.Revision) bool {
		if head.Category == model.CategoryTag {
			return false
		}
		return lastBuilt.None() || current != lastBuilt
	})
}

// BuildTagsStrategy applies the revision-change rule to tag heads only
func BuildTagsStrategy() interfaces.BuildStrategy {
	return StrategyFunc(func(_ string, head model.Head, current, lastBuilt, _ model.Revision) bool {
		if head.Category != model.CategoryTag {
			return false
		}
		return lastBuilt.None() || current != lastBuilt
	})
}

// evaluateStrategies runs the configured strategy list in order; any true
// triggers a build. An empty list falls back to the default rule.
func evaluateStrategies(strategies []interfaces.BuildStrategy, sourceID string, head model.Head, current, lastBuilt, lastSeen model.Revision) bool {
	if len(strategies) == 0 {
		return DefaultStrategy().ShouldBuild(sourceID, head, current, lastBuilt, lastSeen)
	}
	for _, s := range strategies {
		if s.ShouldBuild(sourceID, head, current, lastBuilt, lastSeen) {
			return true
		}
	}
	return false
}
