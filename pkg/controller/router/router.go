// Package router classifies inbound SCM notifications and dispatches them
// into the reconciliation engine. Payloads are treated as hints: the router
// checks shape only, and the engine revalidates content against the source.
package router

import (
	"context"
	"encoding/json"
	"time"

	"github.com/m-mizutani/ctxlog"
	"github.com/m-mizutani/goerr/v2"

	"github.com/m-mizutani/drover/pkg/domain/interfaces"
	"github.com/m-mizutani/drover/pkg/domain/model"
	"github.com/m-mizutani/drover/pkg/domain/types"
)

// Payload is the wire form of an inbound SCM notification
type Payload struct {
	Container string `json:"container"`
	Scope     string `json:"scope"` // "head" or "source"
	Event     string `json:"event,omitempty"`
	Source    string `json:"source"`
	Category  string `json:"category,omitempty"`
	Name      string `json:"name,omitempty"`
	Revision  string `json:"revision,omitempty"`
}

const (
	// ScopeHead targets a single head of a source
	ScopeHead = "head"
	// ScopeSource signals "something changed in this source, rescan it"
	ScopeSource = "source"
)

// Router dispatches classified events into the engine
type Router struct {
	reconciler interfaces.Reconciler
}

// New creates a Router over the given engine
func New(reconciler interfaces.Reconciler) *Router {
	return &Router{reconciler: reconciler}
}

// Route parses a raw notification and fires the corresponding event,
// returning the watermark sequence assigned to it
func (r *Router) Route(ctx context.Context, deliveryID string, raw []byte) (uint64, error) {
	var p Payload
	if err := json.Unmarshal(raw, &p); err != nil {
		return 0, goerr.Wrap(err, "malformed event payload", goerr.T(types.ErrTagValidation))
	}

	ev, err := r.classify(deliveryID, &p)
	if err != nil {
		return 0, err
	}

	ctxlog.From(ctx).Debug("routing event",
		"delivery", deliveryID,
		"container", p.Container,
		"scope", p.Scope,
		"source", p.Source)

	return r.reconciler.Fire(ctx, p.Container, ev)
}

// classify maps a payload to a head-scoped or source-scoped event
func (r *Router) classify(deliveryID string, p *Payload) (model.Event, error) {
	if p.Container == "" || p.Source == "" {
		return nil, goerr.New("event payload missing container or source",
			goerr.T(types.ErrTagValidation))
	}

	switch p.Scope {
	case ScopeSource:
		return model.ContainerEvent{
			ID:         deliveryID,
			SourceID:   p.Source,
			ReceivedAt: time.Now(),
		}, nil

	case ScopeHead:
		evType := model.HeadEventType(p.Event)
		if !evType.Valid() {
			return nil, goerr.New("unknown head event type",
				goerr.V("event", p.Event), goerr.T(types.ErrTagValidation))
		}
		category := model.HeadCategory(p.Category)
		if !category.Valid() {
			return nil, goerr.New("unknown head category",
				goerr.V("category", p.Category), goerr.T(types.ErrTagValidation))
		}
		if p.Name == "" {
			return nil, goerr.New("head event missing name", goerr.T(types.ErrTagValidation))
		}
		return model.HeadEvent{
			ID:       deliveryID,
			Type:     evType,
			SourceID: p.Source,
			Head: model.Head{
				SourceID: p.Source,
				Category: category,
				Name:     p.Name,
			},
			RevisionHint: model.Revision(p.Revision),
			ReceivedAt:   time.Now(),
		}, nil

	default:
		return nil, goerr.New("unknown event scope",
			goerr.V("scope", p.Scope), goerr.T(types.ErrTagValidation))
	}
}
