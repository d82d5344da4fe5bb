package session

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/sipmesh/controlplane/internal/ctlmsg"
	"github.com/sipmesh/controlplane/internal/frame"
	"github.com/sipmesh/controlplane/internal/logging"
)

// idCounter generates unique session identities across the process,
// matching the connection-id counter convention in
// internal/transport/tcp_connection_manager.go.
var idCounter int64

// Config carries the process-wide values a Session needs at
// construction time. It is read-only after startup, per the source's
// "no module-global state" note — the controlplane orchestrator
// injects one shared instance into every Session.
type Config struct {
	SharedSecret        string
	AdvertisedHostports []string
	AuthTimeout         time.Duration
	InboundBufferBytes  int
}

// Session is a single client connection's state machine. It owns the
// socket and a frame.Decoder, and satisfies session.Client (and, by
// extension, router.Client) so the Router can hold a non-owning
// reference to it.
type Session struct {
	id        string
	conn      net.Conn
	writer    *bufio.Writer
	decoder   *frame.Decoder
	direction Direction

	router   RouterAPI
	dialogs  DialogController
	proxyCtl ProxyController
	logger   logging.Logger
	cfg      Config

	mu           sync.RWMutex
	state        State
	appName      string
	hasApp       bool
	lastActivity time.Time

	writeMu sync.Mutex

	authTimer *time.Timer
	closed    atomic.Bool
}

// New wraps an accepted or dialed connection in a Session. The caller
// is responsible for calling Run (inbound) or RunOutbound (outbound).
func New(conn net.Conn, direction Direction, router RouterAPI, dialogs DialogController, proxyCtl ProxyController, logger logging.Logger, cfg Config) *Session {
	n := atomic.AddInt64(&idCounter, 1)
	s := &Session{
		id:           fmt.Sprintf("sess-%d-%s->%s", n, conn.LocalAddr(), conn.RemoteAddr()),
		conn:         conn,
		writer:       bufio.NewWriter(conn),
		decoder:      frame.NewDecoder(cfg.InboundBufferBytes),
		direction:    direction,
		router:       router,
		dialogs:      dialogs,
		proxyCtl:     proxyCtl,
		logger:       logger,
		cfg:          cfg,
		state:        StateInitial,
		lastActivity: time.Now(),
	}
	return s
}

// ID returns the session's unique identity.
func (s *Session) ID() string { return s.id }

// AppName reports the app-name declared at authentication time, if any.
func (s *Session) AppName() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.appName, s.hasApp
}

// Alive reports whether the session is still usable. The Router treats
// this as the promotion check for a non-owning reference.
func (s *Session) Alive() bool {
	return !s.closed.Load()
}

// State returns the session's current lifecycle state.
func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Run drives an inbound (accepted) session: read frames until the
// connection drops or a protocol/auth error closes it.
func (s *Session) Run(ctx context.Context) {
	if s.cfg.AuthTimeout > 0 {
		s.armAuthTimeout()
	}
	s.readLoop(ctx)
}

// RunOutbound drives a server-initiated session: send an authenticate
// frame immediately, then behave like Run. Mirrors
// original_source/src/client.cpp's connect-then-authenticate flow for
// outbound clients (Client::connect_handler).
func (s *Session) RunOutbound(ctx context.Context, msgID string) error {
	authMsg := &ctlmsg.Message{
		ID:   msgID,
		Verb: ctlmsg.VerbAuthenticate,
		Args: []string{s.cfg.SharedSecret},
	}
	if err := s.send(ctlmsg.Format(authMsg)); err != nil {
		s.closeLocked(err)
		return err
	}
	if s.cfg.AuthTimeout > 0 {
		s.armAuthTimeout()
	}
	s.readLoop(ctx)
	return nil
}

func (s *Session) armAuthTimeout() {
	s.authTimer = time.AfterFunc(s.cfg.AuthTimeout, func() {
		if s.State() == StateInitial {
			s.logger.Warn("closing unauthenticated session", logging.ClientField(s.id))
			s.closeLocked(fmt.Errorf("session: authentication timed out"))
		}
	})
}

func (s *Session) disarmAuthTimeout() {
	if s.authTimer != nil {
		s.authTimer.Stop()
	}
}

func (s *Session) readLoop(ctx context.Context) {
	buf := make([]byte, 4096)
	for {
		select {
		case <-ctx.Done():
			s.closeLocked(ctx.Err())
			return
		default:
		}

		n, err := s.conn.Read(buf)
		if n > 0 {
			s.mu.Lock()
			s.lastActivity = time.Now()
			s.mu.Unlock()

			payloads, decodeErr := s.decoder.Push(buf[:n])
			for _, payload := range payloads {
				if handleErr := s.handleFrame(string(payload)); handleErr != nil {
					s.logger.Warn("dropping malformed frame", logging.ClientField(s.id), logging.ErrorField(handleErr))
				}
				if !s.Alive() {
					return
				}
			}
			if decodeErr != nil {
				s.logger.Error("frame protocol error, closing session", logging.ClientField(s.id), logging.ErrorField(decodeErr))
				s.closeLocked(decodeErr)
				return
			}
		}
		if err != nil {
			s.closeLocked(err)
			return
		}
	}
}

// handleFrame classifies and dispatches one decoded payload per
// spec.md 4.3's per-frame handling table.
func (s *Session) handleFrame(payload string) error {
	msg, err := ctlmsg.Parse(payload)
	if err != nil {
		s.sendError("", "malformed message")
		s.closeLocked(err)
		return err
	}

	switch msg.Verb {
	case ctlmsg.VerbAuthenticate:
		return s.handleAuthenticate(msg)
	case ctlmsg.VerbRoute:
		return s.requireAuthenticated(msg, s.handleRoute)
	case ctlmsg.VerbSIP:
		return s.requireAuthenticated(msg, s.handleSIP)
	case ctlmsg.VerbProxy:
		return s.requireAuthenticated(msg, s.handleProxy)
	default:
		s.sendError(msg.ID, "unsupported verb")
		return fmt.Errorf("session: unsupported verb %q", msg.Verb)
	}
}

func (s *Session) requireAuthenticated(msg *ctlmsg.Message, handle func(*ctlmsg.Message) error) error {
	if s.State() != StateAuthenticated {
		s.sendError(msg.ID, "not authenticated")
		return fmt.Errorf("session: verb %q before authentication", msg.Verb)
	}
	return handle(msg)
}

func (s *Session) handleAuthenticate(msg *ctlmsg.Message) error {
	args, err := ctlmsg.ParseAuthenticateArgs(msg.Args)
	if err != nil {
		s.sendError(msg.ID, "malformed authenticate")
		s.closeLocked(err)
		return err
	}

	if args.Secret != s.cfg.SharedSecret {
		s.sendError(msg.ID, "incorrect secret")
		s.closeLocked(fmt.Errorf("session: incorrect secret"))
		return nil
	}

	s.mu.Lock()
	s.state = StateAuthenticated
	if args.HasApp {
		s.appName = args.AppName
		s.hasApp = true
	}
	s.mu.Unlock()

	s.disarmAuthTimeout()

	if args.HasApp {
		s.router.RegisterService(s.id, args.AppName)
	}

	hostports := strings.Join(s.cfg.AdvertisedHostports, ",")
	return s.send(ctlmsg.BuildOKResponse(uuid.NewString(), msg.ID, hostports))
}

func (s *Session) handleRoute(msg *ctlmsg.Message) error {
	verb, err := ctlmsg.ParseRouteArgs(msg.Args)
	if err != nil {
		s.sendError(msg.ID, "malformed route")
		return err
	}
	if !s.router.RegisterVerb(s.id, verb) {
		s.sendError(msg.ID, "unsupported sip verb")
		return nil
	}
	return s.send(ctlmsg.BuildOKResponse(uuid.NewString(), msg.ID))
}

// handleSIP classifies a sip verb frame per spec.md 4.3's decision
// chain: outgoing response, cancel, request in a known dialog
// (explicit or discovered via Call-ID), or request outside any dialog.
func (s *Session) handleSIP(msg *ctlmsg.Message) error {
	args, err := ctlmsg.ParseSIPArgs(msg.Args)
	if err != nil {
		s.sendError(msg.ID, "malformed sip")
		return err
	}

	switch {
	case ctlmsg.IsSIPResponse(msg.StartLine):
		if args.TxID == "" {
			s.sendError(msg.ID, "response missing tx-id")
			return nil
		}
		if err := s.dialogs.RespondToSipRequest(args.TxID, msg); err != nil {
			s.sendError(msg.ID, err.Error())
			return nil
		}
		s.router.AddApiReq(msg.ID, s.id)
		return s.send(ctlmsg.BuildOKResponse(uuid.NewString(), msg.ID, args.TxID))

	case args.DialogID != "":
		txID, err := s.dialogs.SendRequestInsideDialog(args.DialogID, msg)
		if err != nil {
			s.sendError(msg.ID, err.Error())
			return nil
		}
		s.router.AddAppTx(txID, s.id)
		s.router.AddApiReq(msg.ID, s.id)
		return s.send(ctlmsg.BuildOKResponse(uuid.NewString(), msg.ID, txID, args.DialogID))

	case args.TxID != "" && ctlmsg.IsCancel(msg.StartLine):
		if err := s.dialogs.SendCancelRequest(args.TxID, msg); err != nil {
			s.sendError(msg.ID, err.Error())
			return nil
		}
		s.router.AddApiReq(msg.ID, s.id)
		return s.send(ctlmsg.BuildOKResponse(uuid.NewString(), msg.ID, args.TxID))

	default:
		if callID, ok := ctlmsg.GetHeader(msg.Headers, "Call-ID"); ok {
			if dialogID, found := s.dialogs.ResolveDialogForCallID(callID); found {
				txID, err := s.dialogs.SendRequestInsideDialog(dialogID, msg)
				if err != nil {
					s.sendError(msg.ID, err.Error())
					return nil
				}
				s.router.AddAppTx(txID, s.id)
				s.router.AddApiReq(msg.ID, s.id)
				return s.send(ctlmsg.BuildOKResponse(uuid.NewString(), msg.ID, txID, dialogID))
			}
		}

		txID, dialogID, err := s.dialogs.SendRequestOutsideDialog(msg)
		if err != nil {
			s.sendError(msg.ID, err.Error())
			return nil
		}
		s.router.AddAppTx(txID, s.id)
		s.router.AddApiReq(msg.ID, s.id)
		return s.send(ctlmsg.BuildOKResponse(uuid.NewString(), msg.ID, txID, dialogID))
	}
}

func (s *Session) handleProxy(msg *ctlmsg.Message) error {
	args, err := ctlmsg.ParseProxyArgs(msg.Args)
	if err != nil {
		s.sendError(msg.ID, "malformed proxy")
		return err
	}
	if err := s.proxyCtl.Proxy(args.TxID, args, msg); err != nil {
		s.sendError(msg.ID, err.Error())
		return nil
	}
	// The proxy controller owns this transaction from here; clear the
	// net-transaction binding for tx-id.
	s.router.RemoveNetTx(args.TxID)
	s.router.AddApiReq(msg.ID, s.id)
	return s.send(ctlmsg.BuildOKResponse(uuid.NewString(), msg.ID))
}

func (s *Session) sendError(clientMsgID, reason string) {
	if err := s.send(ctlmsg.BuildErrorResponse(uuid.NewString(), clientMsgID, reason)); err != nil {
		s.logger.Warn("failed to deliver error response", logging.ClientField(s.id), logging.ErrorField(err))
	}
}

// Send writes an already-formatted control payload to the client,
// framing it on the wire. Safe for concurrent use; callers on the SIP
// engine side use this to deliver asynchronous sip/response/cdr
// frames.
func (s *Session) Send(payload string) error {
	return s.send(payload)
}

func (s *Session) send(payload string) error {
	if !s.Alive() {
		return fmt.Errorf("session: write to closed session %s", s.id)
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if _, err := s.writer.Write(frame.EncodeString(payload)); err != nil {
		s.logger.Warn("write failed", logging.ClientField(s.id), logging.ErrorField(err))
		return err
	}
	return s.writer.Flush()
}

// Close terminates the session and evicts it from the Router.
func (s *Session) Close() error {
	s.closeLocked(nil)
	return nil
}

func (s *Session) closeLocked(cause error) {
	if !s.closed.CompareAndSwap(false, true) {
		return
	}
	s.disarmAuthTimeout()
	s.mu.Lock()
	s.state = StateClosed
	idleSince := s.lastActivity
	s.mu.Unlock()
	s.router.Leave(s.id)
	_ = s.conn.Close()

	fields := []logging.Field{
		logging.ClientField(s.id),
		logging.SinceField("idle_for", idleSince),
		logging.BytesField("buffered", s.decoder.BufferedBytes()),
	}
	if cause != nil {
		fields = append(fields, logging.ErrorField(cause))
	}
	s.logger.Debug("session closed", fields...)
}
