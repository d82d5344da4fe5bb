package acceptor

import (
	"bytes"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/sipmesh/controlplane/internal/logging"
)

func testLogger() logging.Logger {
	return logging.NewStructuredLogger(logging.ErrorLevel, &bytes.Buffer{})
}

func TestAcceptor_DispatchesAcceptedConnections(t *testing.T) {
	sched := NewScheduler(2, 8)
	sched.Start()
	defer sched.Stop()

	var mu sync.Mutex
	var handled []string

	a := New(sched, testLogger(), func(conn net.Conn) {
		mu.Lock()
		handled = append(handled, conn.RemoteAddr().String())
		mu.Unlock()
		conn.Close()
	}, nil, nil)

	if err := a.Start("127.0.0.1:0"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer a.Stop()

	addr := a.listener.Addr().String()
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		mu.Lock()
		n := len(handled)
		mu.Unlock()
		if n > 0 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("expected accepted connection to be dispatched")
}

func TestAcceptor_StartTwiceFails(t *testing.T) {
	sched := NewScheduler(1, 1)
	sched.Start()
	defer sched.Stop()

	a := New(sched, testLogger(), func(net.Conn) {}, nil, nil)
	if err := a.Start("127.0.0.1:0"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer a.Stop()

	if err := a.Start("127.0.0.1:0"); err == nil {
		t.Fatalf("expected second Start to fail")
	}
}

func TestAcceptor_StopIsIdempotent(t *testing.T) {
	sched := NewScheduler(1, 1)
	sched.Start()
	defer sched.Stop()

	a := New(sched, testLogger(), func(net.Conn) {}, nil, nil)
	if err := a.Start("127.0.0.1:0"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := a.Stop(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := a.Stop(); err != nil {
		t.Fatalf("expected second Stop to be a no-op, got %v", err)
	}
}
