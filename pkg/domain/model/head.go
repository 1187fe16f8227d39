package model

// HeadCategory classifies a head by the kind of upstream history it names
type HeadCategory string

const (
	CategoryBranch        HeadCategory = "branch"
	CategoryTag           HeadCategory = "tag"
	CategoryChangeRequest HeadCategory = "change_request"
)

// Valid reports whether the category is one of the known kinds
func (c HeadCategory) Valid() bool {
	switch c {
	case CategoryBranch, CategoryTag, CategoryChangeRequest:
		return true
	}
	return false
}

// Head is a named unit of history reported by a source. It is an immutable
// value: identity is (SourceID, Category, Name) and only a source produces one.
type Head struct {
	SourceID string       // Source that reported this head
	Category HeadCategory // Branch, tag or change request
	Name     string       // Raw head name, verbatim from the source
}

// Revision is an opaque source-defined token for observed content state.
// It is comparable only for equality within the same head. The zero value
// means "no revision observed yet".
type Revision string

// None reports whether no revision has been recorded
func (r Revision) None() bool {
	return r == ""
}
