// Package router implements the client-facing selection and correlation
// index at the heart of the control plane: verb-based round-robin
// fan-out, dialog failover across app-name peers, and the transaction
// and API request bindings that let the SIP engine's callbacks resolve
// which client owns a given piece of in-flight work.
//
// Grounded on internal/transaction/manager.go and internal/registrar's
// map-plus-mutex shape, generalized from a single lookup table into the
// several correlated indexes spec.md 4.4 requires, all under one coarse
// lock per the source's concurrency model (DESIGN NOTES: "do not try to
// shard the indexes").
package router

import "errors"

// ErrConsistency is raised when the SIP engine promotes a dialog for a
// transaction id the Router has no record of in either the net-tx or
// app-tx index. This indicates a bug upstream of the Router; callers
// log it and drop the promotion rather than propagating it further.
var ErrConsistency = errors.New("router: dialog promoted for unknown transaction")

// supportedVerbs is the set of SIP methods the Router will fan out to
// registered clients. Method names are matched case-insensitively.
var supportedVerbs = map[string]bool{
	"invite":    true,
	"ack":       true,
	"bye":       true,
	"cancel":    true,
	"register":  true,
	"options":   true,
	"info":      true,
	"prack":     true,
	"update":    true,
	"subscribe": true,
	"notify":    true,
	"refer":     true,
	"message":   true,
	"publish":   true,
}

// Client is the non-owning surface the Router holds for a connected
// session. The Router never owns a Client's lifecycle; Alive reports
// whether the underlying connection is still usable, and is safe to
// call after the client has been evicted from every index.
type Client interface {
	ID() string
	AppName() (name string, ok bool)
	Alive() bool
}
