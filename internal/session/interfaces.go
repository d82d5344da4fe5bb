// Package session implements the per-connection client state machine:
// it owns the socket and frame decoder, classifies inbound control
// messages, and dispatches them to the Router and onward to the SIP
// engine collaborator.
//
// Grounded on internal/transport/tcp_connection_manager.go (managed
// connection struct, id generation, activity tracking, read/write
// timeouts) generalized from a bare byte-stream manager into a
// verb-classifying state machine, and on internal/handlers' interface-
// driven dispatch shape for the DialogController/ProxyController
// collaborators.
package session

import "github.com/sipmesh/controlplane/internal/ctlmsg"

// State is a client session's position in its lifecycle.
type State int

const (
	StateInitial State = iota
	StateAuthenticated
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateInitial:
		return "initial"
	case StateAuthenticated:
		return "authenticated"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Direction records whether a session originated from an accepted
// inbound connection or a server-initiated outbound connect.
type Direction int

const (
	DirectionInbound Direction = iota
	DirectionOutbound
)

// Client is the identity surface a Session presents to the Router.
// Mirrors router.Client's method set without importing internal/router.
type Client interface {
	ID() string
	AppName() (string, bool)
	Alive() bool
}

// RouterAPI is the subset of *router.Router a Session needs. Session
// depends on this interface, not the concrete type, so it never
// imports internal/router. *router.Router does not satisfy it directly
// (its Join takes a router.Client); internal/controlplane's routerAPI
// adapts it.
type RouterAPI interface {
	Join(c Client)
	Leave(id string)
	RegisterVerb(id, verb string) bool
	RegisterService(id, appName string) bool
	AddAppTx(txID, id string) bool
	RemoveAppTx(txID string)
	RemoveNetTx(txID string)
	AddApiReq(msgID, id string) bool
	RemoveApiReq(msgID string)
}

// DialogController is the out-of-scope SIP stack collaborator that
// owns transaction state machines, retransmission, and SDP handling.
// The session hands off outbound application commands to it once the
// Router has recorded the correlating bindings.
type DialogController interface {
	// SendRequestOutsideDialog dispatches a brand new SIP request and
	// returns the tx-id and dialog-id the engine minted for it.
	SendRequestOutsideDialog(msg *ctlmsg.Message) (txID, dialogID string, err error)
	// SendRequestInsideDialog dispatches a request that continues an
	// established dialog, returning the tx-id the engine minted.
	SendRequestInsideDialog(dialogID string, msg *ctlmsg.Message) (txID string, err error)
	// RespondToSipRequest delivers a client-originated SIP response
	// for a network-originated transaction.
	RespondToSipRequest(txID string, msg *ctlmsg.Message) error
	// SendCancelRequest cancels a pending outbound transaction.
	SendCancelRequest(txID string, msg *ctlmsg.Message) error
	// ResolveDialogForCallID finds a dialog the engine already knows
	// about from a request's Call-ID header, used when a client omits
	// the dialog-id but the request is plainly in-dialog.
	ResolveDialogForCallID(callID string) (dialogID string, ok bool)
}

// ProxyController is the out-of-scope collaborator that executes the
// proxy verb: forking a request to one or more destinations under the
// flags and timeouts the client supplied.
type ProxyController interface {
	Proxy(txID string, args ctlmsg.ProxyArgs, msg *ctlmsg.Message) error
}
