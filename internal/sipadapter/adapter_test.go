package sipadapter

import (
	"bytes"
	"testing"

	"github.com/sipmesh/controlplane/internal/ctlmsg"
	"github.com/sipmesh/controlplane/internal/logging"
	"github.com/sipmesh/controlplane/internal/router"
)

type fakeSender struct {
	id      string
	appName string
	hasApp  bool
	alive   bool
	sent    []string
	sendErr error
}

func (f *fakeSender) ID() string                   { return f.id }
func (f *fakeSender) AppName() (string, bool)       { return f.appName, f.hasApp }
func (f *fakeSender) Alive() bool                   { return f.alive }
func (f *fakeSender) Send(payload string) error {
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, payload)
	return nil
}

func newSender(id string) *fakeSender {
	return &fakeSender{id: id, alive: true}
}

func testAdapter() (*Adapter, *router.Router) {
	r := router.New()
	logger := logging.NewStructuredLogger(logging.ErrorLevel, &bytes.Buffer{})
	return New(r, nil, logger), r
}

func TestOnRequestOutsideDialog_Delivers(t *testing.T) {
	a, r := testAdapter()
	c := newSender("A")
	r.Join(c)
	r.RegisterVerb("A", "invite")

	ok := a.OnRequestOutsideDialog("invite", RawMessage{Meta: "INVITE", StartLine: "INVITE sip:bob@example.com SIP/2.0"}, RequestMeta{TxID: "tx1"})
	if !ok {
		t.Fatalf("expected delivery to succeed")
	}
	if len(c.sent) != 1 {
		t.Fatalf("expected one delivered frame, got %d", len(c.sent))
	}
	if got := r.FindForNetTx("tx1"); got == nil || got.ID() != "A" {
		t.Fatalf("expected net-tx bound to A, got %v", got)
	}
}

func TestOnRequestOutsideDialog_NoClient(t *testing.T) {
	a, _ := testAdapter()
	if a.OnRequestOutsideDialog("invite", RawMessage{}, RequestMeta{TxID: "tx1"}) {
		t.Fatalf("expected false with no registered client")
	}
}

func TestOnRequestInsideDialog_ByeRemovesDialog(t *testing.T) {
	a, r := testAdapter()
	c := newSender("Z")
	r.Join(c)
	r.AddNetTx("tx1", "Z")
	if err := r.BindDialogToTransaction("tx1", "d2"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ok := a.OnRequestInsideDialog("d2", "tx2", "tx1", RawMessage{StartLine: "BYE sip:bob@example.com SIP/2.0"}, false)
	if !ok {
		t.Fatalf("expected delivery to succeed")
	}
	if c2 := r.SelectForDialog("d2"); c2 != nil {
		t.Fatalf("expected dialog removed after BYE, got %v", c2)
	}
}

func TestOnRequestInsideDialog_AckSkipsNetTxBinding(t *testing.T) {
	a, r := testAdapter()
	c := newSender("Z")
	r.Join(c)
	r.AddNetTx("tx1", "Z")
	r.BindDialogToTransaction("tx1", "d3")

	a.OnRequestInsideDialog("d3", "tx-ack", "tx1", RawMessage{StartLine: "ACK sip:bob@example.com SIP/2.0"}, true)

	if got := r.FindForNetTx("tx-ack"); got != nil {
		t.Fatalf("expected ACK to not create a net-tx binding, got %v", got)
	}
}

func TestOnRequestInsideDialog_AckRemovesInviteNetTx(t *testing.T) {
	a, r := testAdapter()
	c := newSender("Z")
	r.Join(c)
	r.AddNetTx("tx1", "Z")
	r.BindDialogToTransaction("tx1", "d4")

	a.OnRequestInsideDialog("d4", "tx-ack", "tx1", RawMessage{StartLine: "ACK sip:bob@example.com SIP/2.0"}, true)

	if got := r.FindForNetTx("tx1"); got != nil {
		t.Fatalf("expected invite net-tx binding removed after ACK, got %v", got)
	}
}

func TestOnRequestInsideDialog_AckFallsBackToNetTxAfterDialogTornDown(t *testing.T) {
	a, r := testAdapter()
	c := newSender("Z")
	r.Join(c)
	r.AddNetTx("tx1", "Z")
	r.BindDialogToTransaction("tx1", "d5")
	r.RemoveDialog("d5")

	ok := a.OnRequestInsideDialog("d5", "tx-ack", "tx1", RawMessage{StartLine: "ACK sip:bob@example.com SIP/2.0"}, true)
	if !ok {
		t.Fatalf("expected ACK to be delivered via the invite's net-tx fallback")
	}
	if len(c.sent) != 1 {
		t.Fatalf("expected the ACK to be forwarded to the invite's client, got %d frames", len(c.sent))
	}
}

func TestOnResponseInsideTransaction_FinalRemovesAppTx(t *testing.T) {
	a, r := testAdapter()
	c := newSender("C1")
	r.Join(c)
	r.AddAppTx("tx1", "C1")

	a.OnResponseInsideTransaction("tx1", "", 200, RawMessage{StartLine: "SIP/2.0 200 OK"}, false)

	if got := r.FindForAppTx("tx1"); got != nil {
		t.Fatalf("expected app-tx removed after final response, got %v", got)
	}
	if len(c.sent) != 1 {
		t.Fatalf("expected one delivered frame, got %d", len(c.sent))
	}
}

func TestOnResponseInsideTransaction_ProvisionalKeepsAppTx(t *testing.T) {
	a, r := testAdapter()
	c := newSender("C1")
	r.Join(c)
	r.AddAppTx("tx1", "C1")

	a.OnResponseInsideTransaction("tx1", "", 180, RawMessage{StartLine: "SIP/2.0 180 Ringing"}, false)

	if got := r.FindForAppTx("tx1"); got == nil {
		t.Fatalf("expected app-tx to survive a provisional response")
	}
}

func TestOnApiResponse_StreamingKeepsBinding(t *testing.T) {
	a, r := testAdapter()
	c := newSender("C1")
	r.Join(c)
	r.AddApiReq("m1", "C1")

	a.OnApiResponse("m1", "resp-1", "continue")
	if got := r.FindForApiReq("m1"); got == nil {
		t.Fatalf("expected binding to survive a streaming response")
	}

	a.OnApiResponse("m1", "resp-2", "")
	if got := r.FindForApiReq("m1"); got != nil {
		t.Fatalf("expected binding removed after final response")
	}
	if len(c.sent) != 2 {
		t.Fatalf("expected two delivered frames, got %d", len(c.sent))
	}
}

func TestOnApiResponse_NoBindingLogsAndDrops(t *testing.T) {
	a, _ := testAdapter()
	// Should not panic even with no binding present.
	a.OnApiResponse("ghost", "resp", "")
}

type fakeStore struct {
	inserted []CDR
}

func (f *fakeStore) Insert(cdr CDR) error {
	f.inserted = append(f.inserted, cdr)
	return nil
}

func TestOnCallDetailRecord_BroadcastsAndArchives(t *testing.T) {
	r := router.New()
	logger := logging.NewStructuredLogger(logging.ErrorLevel, &bytes.Buffer{})
	store := &fakeStore{}
	a := New(r, store, logger)

	c1, c2 := newSender("C1"), newSender("C2")
	r.Join(c1)
	r.Join(c2)

	a.OnCallDetailRecord(CDR{Meta: "invite", StartLine: "INVITE sip:bob@example.com SIP/2.0"})

	if len(c1.sent) != 1 || len(c2.sent) != 1 {
		t.Fatalf("expected both clients to receive the CDR, got %d and %d", len(c1.sent), len(c2.sent))
	}
	if len(store.inserted) != 1 {
		t.Fatalf("expected the CDR to be archived, got %d rows", len(store.inserted))
	}
}

func TestBuildSIPDelivery_UsedByAdapterParses(t *testing.T) {
	// Sanity check that the frame the adapter builds parses back into
	// a message with the expected verb and args.
	got := ctlmsg.BuildSIPDelivery("u1", "INVITE", "tx1", "d1", "INVITE sip:bob@example.com SIP/2.0", "", "")
	msg, err := ctlmsg.Parse(got)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msg.Verb != ctlmsg.VerbSIP {
		t.Fatalf("expected sip verb, got %q", msg.Verb)
	}
}
