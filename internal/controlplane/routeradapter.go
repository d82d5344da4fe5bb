package controlplane

import (
	"github.com/sipmesh/controlplane/internal/router"
	"github.com/sipmesh/controlplane/internal/session"
)

// routerAPI adapts *router.Router to session.RouterAPI. The two
// packages each declare their own Client interface with an identical
// method set so neither has to import the other, but a Go method only
// satisfies an interface if its parameter types are literally the same
// named type — router.Router.Join takes a router.Client, not a
// session.Client, so *router.Router does not itself satisfy
// session.RouterAPI even though the shapes line up. This adapter's
// methods are declared against session.Client directly; passing that
// value on to *router.Router.Join type-checks because session.Client's
// method set is identical to router.Client's, which Go's assignability
// rules do allow for interface-to-interface arguments.
type routerAPI struct {
	r *router.Router
}

func (a routerAPI) Join(c session.Client)                   { a.r.Join(c) }
func (a routerAPI) Leave(id string)                         { a.r.Leave(id) }
func (a routerAPI) RegisterVerb(id, verb string) bool       { return a.r.RegisterVerb(id, verb) }
func (a routerAPI) RegisterService(id, appName string) bool { return a.r.RegisterService(id, appName) }
func (a routerAPI) AddAppTx(txID, id string) bool           { return a.r.AddAppTx(txID, id) }
func (a routerAPI) RemoveAppTx(txID string)                 { a.r.RemoveAppTx(txID) }
func (a routerAPI) RemoveNetTx(txID string)                 { a.r.RemoveNetTx(txID) }
func (a routerAPI) AddApiReq(msgID, id string) bool         { return a.r.AddApiReq(msgID, id) }
func (a routerAPI) RemoveApiReq(msgID string)               { a.r.RemoveApiReq(msgID) }
