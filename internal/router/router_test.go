package router

import "testing"

type mockClient struct {
	id      string
	appName string
	hasApp  bool
	alive   bool
}

func (m *mockClient) ID() string { return m.id }
func (m *mockClient) AppName() (string, bool) {
	return m.appName, m.hasApp
}
func (m *mockClient) Alive() bool { return m.alive }

func newMockClient(id string) *mockClient {
	return &mockClient{id: id, alive: true}
}

func TestVerbFanOut_RoundRobin(t *testing.T) {
	r := New()
	a, b, c := newMockClient("A"), newMockClient("B"), newMockClient("C")
	r.Join(a)
	r.Join(b)
	r.Join(c)
	if !r.RegisterVerb("A", "INVITE") || !r.RegisterVerb("B", "invite") || !r.RegisterVerb("C", "Invite") {
		t.Fatalf("expected all registrations to succeed")
	}

	got := []string{
		r.SelectForInboundRequestOutsideDialog("invite").ID(),
		r.SelectForInboundRequestOutsideDialog("invite").ID(),
		r.SelectForInboundRequestOutsideDialog("invite").ID(),
		r.SelectForInboundRequestOutsideDialog("invite").ID(),
	}
	want := []string{"A", "B", "C", "A"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("call %d: got %s want %s (full: %v)", i, got[i], want[i], got)
		}
	}
}

func TestRegisterVerb_UnsupportedVerb(t *testing.T) {
	r := New()
	a := newMockClient("A")
	r.Join(a)
	if r.RegisterVerb("A", "FROBNICATE") {
		t.Fatalf("expected unsupported verb to be rejected")
	}
}

func TestRegisterVerb_UnjoinedClient(t *testing.T) {
	r := New()
	if r.RegisterVerb("ghost", "invite") {
		t.Fatalf("expected registration for unjoined client to fail")
	}
}

func TestSelect_SkipsDeadRegistrations(t *testing.T) {
	r := New()
	a, b, c := newMockClient("A"), newMockClient("B"), newMockClient("C")
	r.Join(a)
	r.Join(b)
	r.Join(c)
	r.RegisterVerb("A", "invite")
	r.RegisterVerb("B", "invite")
	r.RegisterVerb("C", "invite")

	b.alive = false

	got := []string{
		r.SelectForInboundRequestOutsideDialog("invite").ID(),
		r.SelectForInboundRequestOutsideDialog("invite").ID(),
	}
	if got[0] != "A" || got[1] != "C" {
		t.Fatalf("expected A then C skipping dead B, got %v", got)
	}
}

func TestSelect_NoRegistrations(t *testing.T) {
	r := New()
	if got := r.SelectForInboundRequestOutsideDialog("invite"); got != nil {
		t.Fatalf("expected nil, got %v", got)
	}
}

func TestLeave_NoFurtherSelection(t *testing.T) {
	r := New()
	a := newMockClient("A")
	r.Join(a)
	r.RegisterVerb("A", "invite")

	r.Leave("A")

	if got := r.SelectForInboundRequestOutsideDialog("invite"); got != nil {
		t.Fatalf("expected nil after leave, got %v", got)
	}
}

func TestDialogFailover(t *testing.T) {
	r := New()
	x := &mockClient{id: "X", appName: "voicemail", hasApp: true, alive: true}
	r.Join(x)
	r.RegisterVerb("X", "invite")
	r.RegisterService("X", "voicemail")

	selected := r.SelectForInboundRequestOutsideDialog("invite")
	if selected.ID() != "X" {
		t.Fatalf("expected X selected, got %s", selected.ID())
	}
	if err := r.BindDialogToTransaction("net-tx-1", "d1"); err != ErrConsistency {
		t.Fatalf("expected ErrConsistency before net-tx binding recorded, got %v", err)
	}

	r.AddNetTx("net-tx-1", "X")
	if err := r.BindDialogToTransaction("net-tx-1", "d1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c := r.SelectForDialog("d1"); c == nil || c.ID() != "X" {
		t.Fatalf("expected d1 bound to X, got %v", c)
	}

	x.alive = false
	y := &mockClient{id: "Y", appName: "voicemail", hasApp: true, alive: true}
	r.Join(y)
	r.RegisterService("Y", "voicemail")

	c := r.SelectForDialog("d1")
	if c == nil || c.ID() != "Y" {
		t.Fatalf("expected failover to Y, got %v", c)
	}

	c2 := r.SelectForDialog("d1")
	if c2 == nil || c2.ID() != "Y" {
		t.Fatalf("expected rebind to persist on Y, got %v", c2)
	}
}

func TestBindDialogToTransaction_ReliableProvisionalAlreadyElevated(t *testing.T) {
	r := New()
	z := newMockClient("Z")
	r.Join(z)
	r.AddAppTx("app-tx-1", "Z")

	if err := r.BindDialogToTransaction("app-tx-1", "d2"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// A later message reuses a different tx-id, but the dialog is
	// already bound: BindDialogToTransaction must not raise
	// ErrConsistency for an unknown tx-id in that case.
	if err := r.BindDialogToTransaction("unrelated-tx", "d2"); err != nil {
		t.Fatalf("expected no error for an already-bound dialog, got %v", err)
	}
	if c := r.SelectForDialog("d2"); c == nil || c.ID() != "Z" {
		t.Fatalf("expected d2 still bound to Z, got %v", c)
	}
}

func TestBindDialogToTransaction_UnknownRaisesConsistencyError(t *testing.T) {
	r := New()
	if err := r.BindDialogToTransaction("nowhere", "dX"); err != ErrConsistency {
		t.Fatalf("expected ErrConsistency, got %v", err)
	}
}

func TestByeTeardown(t *testing.T) {
	r := New()
	z := newMockClient("Z")
	r.Join(z)
	r.AddNetTx("tx1", "Z")
	if err := r.BindDialogToTransaction("tx1", "d2"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c := r.SelectForDialog("d2"); c == nil {
		t.Fatalf("expected d2 bound before teardown")
	}

	r.RemoveDialog("d2")

	if c := r.SelectForDialog("d2"); c != nil {
		t.Fatalf("expected no client after removeDialog, got %v", c)
	}
}

func TestApiReqBindingLifecycle(t *testing.T) {
	r := New()
	c := newMockClient("C1")
	r.Join(c)

	if !r.AddApiReq("m1", "C1") {
		t.Fatalf("expected binding to succeed")
	}
	if got := r.FindForApiReq("m1"); got == nil || got.ID() != "C1" {
		t.Fatalf("expected C1, got %v", got)
	}

	r.RemoveApiReq("m1")
	if got := r.FindForApiReq("m1"); got != nil {
		t.Fatalf("expected no binding after removal, got %v", got)
	}
}

func TestAddBinding_UnjoinedClientFails(t *testing.T) {
	r := New()
	if r.AddNetTx("tx1", "ghost") {
		t.Fatalf("expected binding for unjoined client to fail")
	}
}

func TestNetTxAndAppTxAreIndependent(t *testing.T) {
	r := New()
	c := newMockClient("C1")
	r.Join(c)
	r.AddNetTx("tx1", "C1")

	if got := r.FindForAppTx("tx1"); got != nil {
		t.Fatalf("expected app-tx lookup to miss a net-tx binding, got %v", got)
	}
	if got := r.FindForNetTx("tx1"); got == nil {
		t.Fatalf("expected net-tx lookup to hit")
	}
}
