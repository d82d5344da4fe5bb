package controlplane

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/sipmesh/controlplane/internal/ctlmsg"
	"github.com/sipmesh/controlplane/internal/logging"
)

// NullEngine is a placeholder Engine for running the control plane
// standalone, without a real SIP stack attached. It mints ids so
// clients get well-formed acknowledgements for every dialog command,
// but never actually forwards anything onto a network; Proxy is
// rejected with an error. cmd/controlplaned
// uses it as the default when no other Engine is wired in; a real
// deployment replaces it with an adapter over an actual SIP stack.
type NullEngine struct {
	logger logging.Logger
}

// NewNullEngine builds a NullEngine that logs every command it would
// otherwise have forwarded.
func NewNullEngine(logger logging.Logger) *NullEngine {
	return &NullEngine{logger: logger}
}

func (e *NullEngine) SendRequestOutsideDialog(msg *ctlmsg.Message) (txID, dialogID string, err error) {
	txID, dialogID = uuid.NewString(), uuid.NewString()
	e.logger.Warn("null engine: dropping request outside dialog",
		logging.MsgIDField(msg.ID), logging.TransactionField(txID))
	return txID, dialogID, nil
}

func (e *NullEngine) SendRequestInsideDialog(dialogID string, msg *ctlmsg.Message) (txID string, err error) {
	txID = uuid.NewString()
	e.logger.Warn("null engine: dropping request inside dialog",
		logging.DialogField(dialogID), logging.TransactionField(txID))
	return txID, nil
}

func (e *NullEngine) RespondToSipRequest(txID string, msg *ctlmsg.Message) error {
	e.logger.Warn("null engine: dropping response", logging.TransactionField(txID))
	return nil
}

func (e *NullEngine) SendCancelRequest(txID string, msg *ctlmsg.Message) error {
	e.logger.Warn("null engine: dropping cancel", logging.TransactionField(txID))
	return nil
}

func (e *NullEngine) ResolveDialogForCallID(callID string) (dialogID string, ok bool) {
	return "", false
}

func (e *NullEngine) Proxy(txID string, args ctlmsg.ProxyArgs, msg *ctlmsg.Message) error {
	e.logger.Warn("null engine: dropping proxy request", logging.TransactionField(txID))
	return fmt.Errorf("controlplane: no engine attached, cannot proxy")
}

func (e *NullEngine) OutboundConnectFailed(hostport, msgID string) {
	e.logger.Warn("null engine: outbound connect failed",
		logging.StringField("hostport", hostport), logging.MsgIDField(msgID))
}
