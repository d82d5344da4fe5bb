package sipadapter

import (
	"strings"

	"github.com/google/uuid"

	"github.com/sipmesh/controlplane/internal/ctlmsg"
	"github.com/sipmesh/controlplane/internal/logging"
	"github.com/sipmesh/controlplane/internal/router"
)

// Adapter implements the SIP engine's callback surface. It never owns
// a client's lifecycle: every lookup goes through the Router, and a
// resolved router.Client is delivered to only after a successful
// assertion to Sender.
type Adapter struct {
	router *router.Router
	store  CDRStore
	logger logging.Logger
}

// New builds an Adapter over router. store may be nil to disable CDR
// persistence while still broadcasting records to clients.
func New(r *router.Router, store CDRStore, logger logging.Logger) *Adapter {
	return &Adapter{router: r, store: store, logger: logger}
}

// OnRequestOutsideDialog selects a client for a brand new inbound
// request, records the net-tx binding, and forwards the frame. Returns
// false when no live client is registered for the verb (the SIP
// engine is expected to reject the request, typically with a 503).
func (a *Adapter) OnRequestOutsideDialog(verb string, raw RawMessage, meta RequestMeta) bool {
	client := a.router.SelectForInboundRequestOutsideDialog(verb)
	if client == nil {
		a.logger.Warn("no client registered for verb", logging.VerbField(verb))
		return false
	}
	sender, ok := client.(Sender)
	if !ok {
		a.logger.Error("selected client cannot receive frames", logging.ClientField(client.ID()))
		return false
	}

	a.router.AddNetTx(meta.TxID, client.ID())
	payload := ctlmsg.BuildSIPDelivery(uuid.NewString(), raw.Meta, meta.TxID, "", raw.StartLine, raw.Headers, raw.Body)
	if err := sender.Send(payload); err != nil {
		a.logger.Warn("delivery failed", logging.ClientField(client.ID()), logging.ErrorField(err))
		return false
	}
	return true
}

// OnRequestInsideDialog selects the client bound to dialogID, falling
// back to the client bound to the original INVITE's net-tx when the
// dialog binding has already been torn down (a late ACK racing a
// BYE). It records a net-tx binding for txID unless this is an ACK,
// and forwards the frame. An ACK instead clears the net-tx binding
// left over from the INVITE, per invariant that a net-transaction
// binding does not outlive the ACK. A BYE removes the dialog binding
// once the frame has been forwarded.
func (a *Adapter) OnRequestInsideDialog(dialogID, txID, inviteTxID string, raw RawMessage, isACK bool) bool {
	client := a.router.SelectForDialog(dialogID)
	if client == nil {
		client = a.router.FindForNetTx(inviteTxID)
	}
	if client == nil {
		a.logger.Warn("no client for dialog", logging.DialogField(dialogID))
		return false
	}
	sender, ok := client.(Sender)
	if !ok {
		a.logger.Error("selected client cannot receive frames", logging.ClientField(client.ID()))
		return false
	}

	if isACK {
		a.router.RemoveNetTx(inviteTxID)
	} else {
		a.router.AddNetTx(txID, client.ID())
	}

	payload := ctlmsg.BuildSIPDelivery(uuid.NewString(), raw.Meta, txID, dialogID, raw.StartLine, raw.Headers, raw.Body)
	if err := sender.Send(payload); err != nil {
		a.logger.Warn("delivery failed", logging.ClientField(client.ID()), logging.ErrorField(err))
		return false
	}

	if isBye(raw.StartLine) {
		a.router.RemoveDialog(dialogID)
	}
	return true
}

// OnResponseInsideTransaction delivers a network-originated response
// to the client that started the app-transaction. Final responses
// (status >= 200) remove the app-tx binding; a response to a BYE also
// removes the dialog binding.
func (a *Adapter) OnResponseInsideTransaction(txID, dialogID string, status int, raw RawMessage, respondsToBye bool) {
	client := a.router.FindForAppTx(txID)
	if client == nil {
		a.logger.Warn("no client for app transaction", logging.TransactionField(txID))
		return
	}
	sender, ok := client.(Sender)
	if !ok {
		a.logger.Error("selected client cannot receive frames", logging.ClientField(client.ID()))
		return
	}

	payload := ctlmsg.BuildSIPDelivery(uuid.NewString(), raw.Meta, txID, dialogID, raw.StartLine, raw.Headers, raw.Body)
	if err := sender.Send(payload); err != nil {
		a.logger.Warn("delivery failed", logging.ClientField(client.ID()), logging.ErrorField(err))
	}

	if status >= 200 {
		a.router.RemoveAppTx(txID)
	}
	if respondsToBye {
		a.router.RemoveDialog(dialogID)
	}
}

// OnApiResponse delivers a response to a client-originated command.
// While trailing carries the "continue" marker, the api-req binding
// survives the delivery; otherwise it is removed.
func (a *Adapter) OnApiResponse(clientMsgID, body, trailing string) {
	client := a.router.FindForApiReq(clientMsgID)
	if client == nil {
		a.logger.Warn("no client for api request", logging.MsgIDField(clientMsgID))
		return
	}
	sender, ok := client.(Sender)
	if !ok {
		a.logger.Error("selected client cannot receive frames", logging.ClientField(client.ID()))
		return
	}

	continueMore := ctlmsg.HasContinueMarker(trailing)
	payload := ctlmsg.BuildAPIResponse(uuid.NewString(), clientMsgID, body, continueMore)
	if err := sender.Send(payload); err != nil {
		a.logger.Warn("delivery failed", logging.ClientField(client.ID()), logging.ErrorField(err))
	}
	if !continueMore {
		a.router.RemoveApiReq(clientMsgID)
	}
}

// OnCallDetailRecord broadcasts a completed call's record to every
// currently authenticated client and, when a store is configured,
// archives it. Delivery is best-effort: a CDR is informational, not a
// correlated request/response, so a failed send to one client does
// not block delivery to the rest.
func (a *Adapter) OnCallDetailRecord(cdr CDR) {
	for _, client := range a.router.AllClients() {
		sender, ok := client.(Sender)
		if !ok {
			continue
		}
		payload := ctlmsg.BuildCDR(uuid.NewString(), cdr.Meta, cdr.StartLine, cdr.Headers, cdr.Body)
		if err := sender.Send(payload); err != nil {
			a.logger.Warn("cdr delivery failed", logging.ClientField(client.ID()), logging.ErrorField(err))
		}
	}

	if a.store == nil {
		return
	}
	if err := a.store.Insert(cdr); err != nil {
		a.logger.Error("cdr archive write failed", logging.ErrorField(err))
	}
}

func isBye(startLine string) bool {
	return strings.HasPrefix(startLine, "BYE")
}
