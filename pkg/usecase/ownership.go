package usecase

import "github.com/m-mizutani/drover/pkg/domain/interfaces"

// ResolveOwner picks the owning source for one head: the highest-priority
// (lowest rank index) source among those currently reporting it with
// qualification. Rank is the sole tie-break; two sources never share a rank.
// Returns false when no ranked source reports the head, which makes the head
// unowned and its job a candidate for the dead state.
func ResolveOwner(ranked []interfaces.Source, reporters map[string]bool) (interfaces.Source, bool) {
	for _, src := range ranked {
		if reporters[src.ID()] {
			return src, true
		}
	}
	return nil, false
}
