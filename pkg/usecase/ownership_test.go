package usecase_test

import (
	"testing"

	"github.com/m-mizutani/gt"

	"github.com/m-mizutani/drover/pkg/domain/interfaces"
	"github.com/m-mizutani/drover/pkg/usecase"
)

func TestResolveOwner(t *testing.T) {
	a := newMockSource("a")
	b := newMockSource("b")
	c := newMockSource("c")
	ranked := []interfaces.Source{a, b, c}

	tests := []struct {
		name      string
		reporters map[string]bool
		wantOwner string
		wantOwned bool
	}{
		{
			name:      "highest rank wins",
			reporters: map[string]bool{"a": true, "b": true, "c": true},
			wantOwner: "a",
			wantOwned: true,
		},
		{
			name:      "middle rank when top silent",
			reporters: map[string]bool{"b": true, "c": true},
			wantOwner: "b",
			wantOwned: true,
		},
		{
			name:      "single reporter",
			reporters: map[string]bool{"c": true},
			wantOwner: "c",
			wantOwned: true,
		},
		{
			name:      "no reporters means unowned",
			reporters: map[string]bool{},
			wantOwned: false,
		},
		{
			name:      "unranked reporters are ignored",
			reporters: map[string]bool{"x": true},
			wantOwned: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			owner, owned := usecase.ResolveOwner(ranked, tt.reporters)
			gt.Equal(t, owned, tt.wantOwned)
			if tt.wantOwned {
				gt.Equal(t, owner.ID(), tt.wantOwner)
			}
		})
	}
}
