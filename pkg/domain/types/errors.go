package types

import "github.com/m-mizutani/goerr/v2"

// Error tags classify failures by how the engine reacts to them.
//
// Discovery failures are scoped to a source and abort the commit of the
// scan that observed them. Validation failures mean the triggering event
// is ignored. Config failures are fatal at startup.
var (
	ErrTagDiscovery  = goerr.NewTag("discovery")
	ErrTagValidation = goerr.NewTag("validation")
	ErrTagConfig     = goerr.NewTag("config")
)
