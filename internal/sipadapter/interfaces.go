// Package sipadapter implements the callback surface the SIP engine
// collaborator invokes: an incoming request or response resolves to a
// client via the Router, gets serialized onto that client's frame
// stream, and the relevant bindings are updated in lockstep.
//
// Grounded on internal/proxy/interfaces.go and internal/handlers'
// interface-driven engine callback shape (a narrow interface per
// concern, structs carrying the wire fields), generalized from SIP
// message objects to the raw meta/start-line/headers/body tuples this
// system treats as opaque cargo.
package sipadapter

import "github.com/sipmesh/controlplane/internal/router"

// Sender is the delivery surface a resolved router.Client must also
// provide. session.Session satisfies this in addition to
// router.Client; the type assertion in Adapter is how the two halves
// of the client abstraction (identity vs. delivery) are joined back
// together without the router package needing to know about framing.
type Sender interface {
	router.Client
	Send(payload string) error
}

// RawMessage carries the wire fragments of one SIP message as handed
// down by the SIP engine. The engine owns SIP parsing; this package
// only reassembles these fragments into the client control-channel
// frame shape.
type RawMessage struct {
	Meta      string
	StartLine string
	Headers   string
	Body      string
}

// RequestMeta carries the correlation identifiers the SIP engine has
// already minted for a request outside any dialog.
type RequestMeta struct {
	TxID string
}

// CDR is a call detail record as the SIP engine reports it: a
// complete raw SIP fragment plus a meta tag identifying the record
// type, mirroring the server-to-client CDR frame shape.
type CDR struct {
	Meta      string
	StartLine string
	Headers   string
	Body      string
}

// CDRStore persists CDRs independently of delivering them to clients.
// Implemented by internal/cdr.Store.
type CDRStore interface {
	Insert(cdr CDR) error
}
