package acceptor

import (
	"context"
	"fmt"
	"net"
	"strings"
	"time"
)

// dialAny tries every address a hostport's host resolves to, in
// order, returning the first successful connection. Mirrors
// original_source/src/client.cpp's Client::connect_handler, which
// walks a boost::asio tcp::resolver::iterator trying each candidate
// address before declaring the outbound attempt failed.
func dialAny(ctx context.Context, hostport string, timeout time.Duration) (net.Conn, error) {
	host, port, err := net.SplitHostPort(hostport)
	if err != nil {
		return nil, fmt.Errorf("acceptor: invalid outbound address %q: %w", hostport, err)
	}

	addrs, err := net.DefaultResolver.LookupHost(ctx, host)
	if err != nil {
		return nil, fmt.Errorf("acceptor: resolve %q: %w", host, err)
	}
	if len(addrs) == 0 {
		return nil, fmt.Errorf("acceptor: %q resolved to no addresses", host)
	}

	var dialer net.Dialer
	dialer.Timeout = timeout

	var errs []string
	for _, addr := range addrs {
		target := net.JoinHostPort(addr, port)
		conn, dialErr := dialer.DialContext(ctx, "tcp", target)
		if dialErr == nil {
			return conn, nil
		}
		errs = append(errs, fmt.Sprintf("%s: %v", target, dialErr))
	}

	return nil, fmt.Errorf("acceptor: all resolved addresses for %q failed: %s", hostport, strings.Join(errs, "; "))
}

// Connect dials hostport, trying every resolved address, and reports
// the outcome through the Acceptor's outbound callbacks. On success
// the connection is handed to outboundReady, which owns it from then
// on; the Acceptor does not post it to the scheduler. The caller
// (typically the session package) still owns the authenticate-first
// handshake.
func (a *Acceptor) Connect(ctx context.Context, hostport string, timeout time.Duration) {
	conn, err := dialAny(ctx, hostport, timeout)
	if err != nil {
		a.outboundFailed(hostport, err)
		return
	}

	a.outboundReady(conn, hostport)
}
