// Package controlplane wires the frame codec, message codec, router,
// session, SIP event adapter, and acceptor into one running process,
// and owns the ordered start/stop lifecycle across them.
//
// Grounded on internal/server/server.go's SIPServerImpl: a numbered
// initializeComponents step list building collaborators bottom-up,
// exposed through Start/Stop/RunWithSignalHandling.
package controlplane

import "github.com/sipmesh/controlplane/internal/session"

// Engine is the out-of-scope SIP stack collaborator: it satisfies both
// session.DialogController and session.ProxyController. spec.md places
// "the SIP stack itself" out of scope for this repository, so
// ControlPlane never constructs one — the caller supplies it, the same
// way internal/server/server.go's SIPServerImpl is handed a concrete
// database.DatabaseManager rather than building the database engine
// inline.
type Engine interface {
	session.DialogController
	session.ProxyController

	// OutboundConnectFailed reports that a server-initiated dial to
	// hostport never produced a connection, so the engine can release
	// whatever pending transaction msgID was minted for.
	OutboundConnectFailed(hostport, msgID string)
}
