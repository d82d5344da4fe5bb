package controlplane

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"runtime"
	"sync"
	"syscall"
	"time"

	"github.com/sipmesh/controlplane/internal/acceptor"
	"github.com/sipmesh/controlplane/internal/cdr"
	"github.com/sipmesh/controlplane/internal/config"
	"github.com/sipmesh/controlplane/internal/logging"
	"github.com/sipmesh/controlplane/internal/router"
	"github.com/sipmesh/controlplane/internal/session"
	"github.com/sipmesh/controlplane/internal/sipadapter"
)

// ControlPlane owns every collaborator's lifecycle: the Router, the
// optional CDR archive, the SIP event adapter, the client I/O
// scheduler, and the Acceptor. Modeled on
// internal/server/server.go's SIPServerImpl, minus the pieces that
// belong to the out-of-scope SIP stack (transaction state machines,
// registrar, proxy forwarding) — those live behind the injected
// Engine instead.
type ControlPlane struct {
	cfg    *config.Config
	logger logging.Logger

	router      *router.Router
	sessionAPI  session.RouterAPI
	cdrStore    *cdr.Store
	adapter     *sipadapter.Adapter
	engine      Engine

	scheduler *acceptor.Scheduler
	accept    *acceptor.Acceptor

	sessionCfg session.Config

	mu              sync.Mutex
	sessions        map[string]*session.Session
	pendingOutbound map[string]string

	wg sync.WaitGroup
}

// New builds every collaborator in dependency order but starts
// nothing. engine is the caller-supplied out-of-scope SIP stack
// collaborator; it is never nil.
func New(cfg *config.Config, engine Engine, logger logging.Logger) (*ControlPlane, error) {
	if engine == nil {
		return nil, fmt.Errorf("controlplane: engine must not be nil")
	}

	cp := &ControlPlane{
		cfg:      cfg,
		logger:   logger,
		engine:   engine,
		router:   router.New(),
		sessions: make(map[string]*session.Session),
	}
	cp.sessionAPI = routerAPI{cp.router}
	cp.sessionCfg = session.Config{
		SharedSecret:        cfg.ControlPlane.SharedSecret,
		AdvertisedHostports: cfg.ControlPlane.AdvertisedHostports,
		AuthTimeout:         time.Duration(cfg.ControlPlane.AuthTimeoutMS) * time.Millisecond,
		InboundBufferBytes:  cfg.ControlPlane.InboundBufferBytes,
	}

	if cfg.CDR.Enabled {
		store, err := cdr.Open(cfg.CDR.Path, logger)
		if err != nil {
			return nil, fmt.Errorf("controlplane: open cdr archive: %w", err)
		}
		cp.cdrStore = store
	}

	var cdrSink sipadapter.CDRStore
	if cp.cdrStore != nil {
		cdrSink = cp.cdrStore
	}
	cp.adapter = sipadapter.New(cp.router, cdrSink, logger)

	cp.scheduler = acceptor.NewScheduler(runtime.NumCPU()*4, 256)
	cp.accept = acceptor.New(cp.scheduler, logger, cp.handleInbound, cp.handleOutboundReady, cp.handleOutboundFailed)

	return cp, nil
}

// Adapter exposes the SIP event adapter so the caller's Engine can
// deliver network-side events (inbound requests, responses, CDRs) back
// into the client roster.
func (cp *ControlPlane) Adapter() *sipadapter.Adapter {
	return cp.adapter
}

// Router exposes the client/verb/dialog index directly, for callers
// that need read-only diagnostics beyond Stats.
func (cp *ControlPlane) Router() *router.Router {
	return cp.router
}

// Start begins accepting connections. The scheduler is started first
// so no accepted connection can be dropped for want of a worker.
func (cp *ControlPlane) Start() error {
	cp.scheduler.Start()

	addr := fmt.Sprintf("%s:%d", cp.cfg.ControlPlane.ListenAddress, cp.cfg.ControlPlane.ListenPort)
	if err := cp.accept.Start(addr); err != nil {
		cp.scheduler.Stop()
		return fmt.Errorf("controlplane: start acceptor: %w", err)
	}

	cp.logger.Info("control plane listening", logging.StringField("address", addr))
	return nil
}

// Stop closes the listener, drains in-flight sessions, and closes the
// CDR archive. It does not force-close already-accepted connections;
// each Session's own read loop exits when its socket is closed by the
// remote end or by a protocol error.
func (cp *ControlPlane) Stop() error {
	cp.logger.Info("control plane shutting down")

	if err := cp.accept.Stop(); err != nil {
		cp.logger.Warn("acceptor stop error", logging.ErrorField(err))
	}
	cp.scheduler.Stop()

	done := make(chan struct{})
	go func() {
		cp.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(30 * time.Second):
		cp.logger.Warn("timed out waiting for sessions to drain")
	}

	if cp.cdrStore != nil {
		if err := cp.cdrStore.Close(); err != nil {
			cp.logger.Warn("error closing cdr archive", logging.ErrorField(err))
		}
	}
	return nil
}

// RunWithSignalHandling starts the control plane and blocks until
// SIGINT or SIGTERM, then shuts down gracefully.
func (cp *ControlPlane) RunWithSignalHandling() error {
	if err := cp.Start(); err != nil {
		return err
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	cp.logger.Info("received shutdown signal", logging.StringField("signal", sig.String()))

	return cp.Stop()
}

// ConnectOutbound asks the Acceptor to dial hostport and, on success,
// wraps the connection in an outbound Session that immediately sends
// an authenticate frame carrying msgID as its correlation id.
func (cp *ControlPlane) ConnectOutbound(ctx context.Context, hostport, msgID string, timeout time.Duration) {
	cp.pendingOutboundMsgID(hostport, msgID)
	cp.accept.Connect(ctx, hostport, timeout)
}

// pendingOutboundMsgID stashes the msg-id an outbound dial should
// authenticate with, keyed by hostport, so the OutboundReady callback
// (which only receives the net.Conn and hostport from Acceptor) can
// recover it. Overwritten by whichever ConnectOutbound call for that
// hostport ran most recently; concurrent dials to the same hostport
// are not expected from a single Engine.
func (cp *ControlPlane) pendingOutboundMsgID(hostport, msgID string) {
	cp.mu.Lock()
	defer cp.mu.Unlock()
	if cp.pendingOutbound == nil {
		cp.pendingOutbound = make(map[string]string)
	}
	cp.pendingOutbound[hostport] = msgID
}

func (cp *ControlPlane) handleInbound(conn net.Conn) {
	sess := session.New(conn, session.DirectionInbound, cp.sessionAPI, cp.engine, cp.engine, cp.logger, cp.sessionCfg)
	cp.runSession(sess, func(ctx context.Context) { sess.Run(ctx) })
}

func (cp *ControlPlane) handleOutboundReady(conn net.Conn, hostport string) {
	cp.mu.Lock()
	msgID := cp.pendingOutbound[hostport]
	delete(cp.pendingOutbound, hostport)
	cp.mu.Unlock()

	sess := session.New(conn, session.DirectionOutbound, cp.sessionAPI, cp.engine, cp.engine, cp.logger, cp.sessionCfg)
	cp.runSession(sess, func(ctx context.Context) {
		if err := sess.RunOutbound(ctx, msgID); err != nil {
			cp.logger.Warn("outbound session failed", logging.StringField("hostport", hostport), logging.ErrorField(err))
		}
	})
}

func (cp *ControlPlane) handleOutboundFailed(hostport string, err error) {
	cp.mu.Lock()
	msgID := cp.pendingOutbound[hostport]
	delete(cp.pendingOutbound, hostport)
	cp.mu.Unlock()

	cp.logger.Warn("outbound connect failed", logging.StringField("hostport", hostport), logging.ErrorField(err))
	cp.engine.OutboundConnectFailed(hostport, msgID)
}

// runSession joins sess into the Router before starting the goroutine
// that drives it (its own goroutine, not a scheduler worker), and
// removes it from the
// local bookkeeping map once its loop returns. The Router learns about
// disconnects on its own, through Session.Close calling router.Leave.
func (cp *ControlPlane) runSession(sess *session.Session, drive func(ctx context.Context)) {
	cp.router.Join(sess)

	cp.mu.Lock()
	cp.sessions[sess.ID()] = sess
	cp.mu.Unlock()

	cp.wg.Add(1)
	go func() {
		defer cp.wg.Done()
		defer func() {
			cp.mu.Lock()
			delete(cp.sessions, sess.ID())
			cp.mu.Unlock()
		}()
		drive(context.Background())
	}()
}

// Stats reports a snapshot combining router bindings and known
// sessions, in the map[string]interface{} shape the teacher's
// collaborators use for diagnostics.
func (cp *ControlPlane) Stats() map[string]interface{} {
	cp.mu.Lock()
	sessionCount := len(cp.sessions)
	cp.mu.Unlock()

	stats := cp.router.Stats()
	stats["active_sessions"] = sessionCount
	return stats
}
