// Package acceptor implements the TCP accept loop, the client I/O
// scheduler, and the outbound connector the SIP engine uses to push
// unsolicited work to a specific remote application.
//
// Grounded on internal/transport/tcp.go's deadline-polling accept
// loop and start/stop lifecycle, generalized from a SIP message
// transport into a raw-connection handoff to internal/session.
package acceptor

import (
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/sipmesh/controlplane/internal/logging"
)

// InboundHandler is invoked once per accepted connection, on a
// scheduler worker goroutine.
type InboundHandler func(conn net.Conn)

// OutboundReady is invoked when an outbound dial succeeds. The
// Acceptor does not schedule the connection itself; the callback owns
// it from then on.
type OutboundReady func(conn net.Conn, hostport string)

// OutboundFailed is invoked when every resolved address for an
// outbound dial has been tried and failed.
type OutboundFailed func(hostport string, err error)

// Acceptor owns a TCP listener and the scheduler that runs every
// connection's I/O.
type Acceptor struct {
	listener  net.Listener
	scheduler *Scheduler
	logger    logging.Logger

	inbound        InboundHandler
	outboundReady  OutboundReady
	outboundFailed OutboundFailed

	mu       sync.Mutex
	running  bool
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

// New builds an Acceptor. scheduler must already be started.
func New(scheduler *Scheduler, logger logging.Logger, inbound InboundHandler, ready OutboundReady, failed OutboundFailed) *Acceptor {
	return &Acceptor{
		scheduler:      scheduler,
		logger:         logger,
		inbound:        inbound,
		outboundReady:  ready,
		outboundFailed: failed,
	}
}

// Start binds address and begins accepting connections in a
// background goroutine.
func (a *Acceptor) Start(address string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.running {
		return fmt.Errorf("acceptor: already running")
	}

	listener, err := net.Listen("tcp", address)
	if err != nil {
		return fmt.Errorf("acceptor: listen on %s: %w", address, err)
	}

	a.listener = listener
	a.stopCh = make(chan struct{})
	a.running = true

	a.wg.Add(1)
	go a.acceptLoop()

	return nil
}

// ListenAddr returns the address the Acceptor is bound to. Only valid
// after a successful Start.
func (a *Acceptor) ListenAddr() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.listener == nil {
		return ""
	}
	return a.listener.Addr().String()
}

// Stop closes the listener and waits for the accept loop to exit. It
// does not stop the Scheduler or close already-accepted connections;
// the caller owns their lifecycle.
func (a *Acceptor) Stop() error {
	a.mu.Lock()
	if !a.running {
		a.mu.Unlock()
		return nil
	}
	a.running = false
	close(a.stopCh)
	if a.listener != nil {
		a.listener.Close()
	}
	a.mu.Unlock()

	a.wg.Wait()
	return nil
}

func (a *Acceptor) acceptLoop() {
	defer a.wg.Done()

	for {
		select {
		case <-a.stopCh:
			return
		default:
		}

		if tcpListener, ok := a.listener.(*net.TCPListener); ok {
			tcpListener.SetDeadline(time.Now().Add(time.Second))
		}

		conn, err := a.listener.Accept()
		if err != nil {
			if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
				continue
			}
			select {
			case <-a.stopCh:
				return
			default:
				a.logger.Warn("accept failed", logging.ErrorField(err))
				continue
			}
		}

		handler := a.inbound
		if !a.scheduler.Post(func() { handler(conn) }) {
			a.logger.Warn("scheduler queue full, dropping accepted connection", logging.StringField("remote", conn.RemoteAddr().String()))
			conn.Close()
		}
	}
}
