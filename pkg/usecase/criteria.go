package usecase

import (
	"regexp"

	"github.com/m-mizutani/goerr/v2"

	"github.com/m-mizutani/drover/pkg/domain/interfaces"
	"github.com/m-mizutani/drover/pkg/domain/model"
	"github.com/m-mizutani/drover/pkg/domain/types"
)

type matchAll struct{}

func (matchAll) Matches(string, model.Head) bool { return true }

// MatchAll qualifies every head
func MatchAll() interfaces.Criteria { return matchAll{} }

type regexCriteria struct {
	include    []*regexp.Regexp
	exclude    []*regexp.Regexp
	categories map[model.HeadCategory]bool
}

// NewRegexCriteria builds a criteria predicate from regular expression
// lists. A head qualifies when its category is allowed, its name matches at
// least one include pattern (empty include list matches everything) and no
// exclude pattern. Patterns are anchored implicitly.
func NewRegexCriteria(include, exclude []string, categories []model.HeadCategory) (interfaces.Criteria, error) {
	c := &regexCriteria{categories: map[model.HeadCategory]bool{}}

	for _, cat := range categories {
		if !cat.Valid() {
			return nil, goerr.New("unknown head category",
				goerr.V("category", cat), goerr.T(types.ErrTagConfig))
		}
		c.categories[cat] = true
	}

	var err error
	if c.include, err = compileAnchored(include); err != nil {
		return nil, err
	}
	if c.exclude, err = compileAnchored(exclude); err != nil {
		return nil, err
	}
	return c, nil
}

func compileAnchored(patterns []string) ([]*regexp.Regexp, error) {
	out := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		re, err := regexp.Compile("^(?:" + p + ")$")
		if err != nil {
			return nil, goerr.Wrap(err, "invalid criteria pattern",
				goerr.V("pattern", p), goerr.T(types.ErrTagConfig))
		}
		out = append(out, re)
	}
	return out, nil
}

func (c *regexCriteria) Matches(_ string, head model.Head) bool {
	if len(c.categories) > 0 && !c.categories[head.Category] {
		return false
	}
	if len(c.include) > 0 {
		included := false
		for _, re := range c.include {
			if re.MatchString(head.Name) {
				included = true
				break
			}
		}
		if !included {
			return false
		}
	}
	for _, re := range c.exclude {
		if re.MatchString(head.Name) {
			return false
		}
	}
	return true
}
