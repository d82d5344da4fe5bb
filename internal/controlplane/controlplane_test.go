package controlplane

import (
	"bytes"
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/sipmesh/controlplane/internal/config"
	"github.com/sipmesh/controlplane/internal/ctlmsg"
	"github.com/sipmesh/controlplane/internal/frame"
	"github.com/sipmesh/controlplane/internal/logging"
)

func testLogger() logging.Logger {
	return logging.NewStructuredLogger(logging.ErrorLevel, &bytes.Buffer{})
}

func testConfig() *config.Config {
	cfg := config.GetDefaultConfig()
	cfg.ControlPlane.ListenAddress = "127.0.0.1"
	cfg.ControlPlane.ListenPort = 0
	cfg.ControlPlane.AuthTimeoutMS = 500
	cfg.CDR.Enabled = false
	return cfg
}

// stubEngine is a minimal Engine standing in for the out-of-scope SIP
// stack: it accepts every outbound command and mints ids without
// forwarding anything over a wire.
type stubEngine struct {
	mu              sync.Mutex
	failedHostports []string
	failedMsgIDs    []string
}

func (*stubEngine) SendRequestOutsideDialog(msg *ctlmsg.Message) (string, string, error) {
	return "tx-1", "dlg-1", nil
}
func (*stubEngine) SendRequestInsideDialog(dialogID string, msg *ctlmsg.Message) (string, error) {
	return "tx-2", nil
}
func (*stubEngine) RespondToSipRequest(txID string, msg *ctlmsg.Message) error { return nil }
func (*stubEngine) SendCancelRequest(txID string, msg *ctlmsg.Message) error   { return nil }
func (*stubEngine) ResolveDialogForCallID(callID string) (string, bool)        { return "", false }
func (*stubEngine) Proxy(txID string, args ctlmsg.ProxyArgs, msg *ctlmsg.Message) error {
	return nil
}
func (e *stubEngine) OutboundConnectFailed(hostport, msgID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.failedHostports = append(e.failedHostports, hostport)
	e.failedMsgIDs = append(e.failedMsgIDs, msgID)
}
func (e *stubEngine) failures() ([]string, []string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string{}, e.failedHostports...), append([]string{}, e.failedMsgIDs...)
}

func TestNew_RejectsNilEngine(t *testing.T) {
	if _, err := New(testConfig(), nil, testLogger()); err == nil {
		t.Fatalf("expected error for nil engine")
	}
}

func TestControlPlane_StartAcceptsAndAuthenticatesClient(t *testing.T) {
	cp, err := New(testConfig(), &stubEngine{}, testLogger())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := cp.Start(); err != nil {
		t.Fatalf("unexpected error starting: %v", err)
	}
	defer cp.Stop()

	conn, err := net.Dial("tcp", cp.accept.ListenAddr())
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer conn.Close()

	authMsg := &ctlmsg.Message{ID: "m1", Verb: ctlmsg.VerbAuthenticate, Args: []string{cp.cfg.ControlPlane.SharedSecret}}
	if _, err := conn.Write(frame.EncodeString(ctlmsg.Format(authMsg))); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 4096)
	n, err := conn.Read(buf)
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}

	dec := frame.NewDecoder(4096)
	frames, err := dec.Push(buf[:n])
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if len(frames) != 1 {
		t.Fatalf("expected exactly one frame, got %d", len(frames))
	}

	msg, err := ctlmsg.Parse(string(frames[0]))
	if err != nil {
		t.Fatalf("response does not parse: %v", err)
	}
	if msg.Verb != ctlmsg.VerbResponse {
		t.Fatalf("expected a response, got verb %q", msg.Verb)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cp.Stats()["active_sessions"].(int) == 1 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("expected one active session after authenticate")
}

func TestControlPlane_ConnectOutboundReportsFailure(t *testing.T) {
	engine := &stubEngine{}
	cp, err := New(testConfig(), engine, testLogger())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := cp.Start(); err != nil {
		t.Fatalf("unexpected error starting: %v", err)
	}
	defer cp.Stop()

	cp.ConnectOutbound(context.Background(), "127.0.0.1:1", "m1", 200*time.Millisecond)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if hostports, _ := engine.failures(); len(hostports) == 1 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	hostports, msgIDs := engine.failures()
	if len(hostports) != 1 || hostports[0] != "127.0.0.1:1" {
		t.Fatalf("expected engine notified of failed hostport, got %v", hostports)
	}
	if len(msgIDs) != 1 || msgIDs[0] != "m1" {
		t.Fatalf("expected engine notified with pending msg-id m1, got %v", msgIDs)
	}
}
