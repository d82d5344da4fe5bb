package ctlmsg

import "errors"

// ErrInsufficientArgs is returned when a verb's argument tuple is shorter
// than its grammar requires.
var ErrInsufficientArgs = errors.New("ctlmsg: insufficient arguments for verb")

// ErrMalformedFlag is returned when a proxy positional flag token is
// empty. Per the wire grammar, each flag position must carry either its
// keyword (meaning "enabled") or any other non-empty token (meaning
// "disabled") — an empty token is malformed, not "disabled".
var ErrMalformedFlag = errors.New("ctlmsg: empty proxy flag token")

// AuthenticateArgs is the parsed argument tuple of an authenticate verb:
// <secret> [<app-name>].
type AuthenticateArgs struct {
	Secret  string
	AppName string
	HasApp  bool
}

// ParseAuthenticateArgs parses the arguments of an authenticate message.
func ParseAuthenticateArgs(args []string) (AuthenticateArgs, error) {
	if len(args) < 1 {
		return AuthenticateArgs{}, ErrInsufficientArgs
	}
	a := AuthenticateArgs{Secret: args[0]}
	if len(args) >= 2 && args[1] != "" {
		a.AppName = args[1]
		a.HasApp = true
	}
	return a, nil
}

// ParseRouteArgs parses the arguments of a route message: <sip-verb>.
func ParseRouteArgs(args []string) (string, error) {
	if len(args) < 1 || args[0] == "" {
		return "", ErrInsufficientArgs
	}
	return args[0], nil
}

// SIPArgs is the parsed argument tuple of a sip verb:
// <tx-id>|<dialog-id>[|<route-url>].
type SIPArgs struct {
	TxID      string
	DialogID  string
	RouteURL  string
	HasRoute  bool
}

// ParseSIPArgs parses the arguments of a sip message.
func ParseSIPArgs(args []string) (SIPArgs, error) {
	if len(args) < 2 {
		return SIPArgs{}, ErrInsufficientArgs
	}
	s := SIPArgs{TxID: args[0], DialogID: args[1]}
	if len(args) >= 3 && args[2] != "" {
		s.RouteURL = args[2]
		s.HasRoute = true
	}
	return s, nil
}

// ProxyArgs is the parsed argument tuple of a proxy message:
// <tx-id>|<flag>|<flag>|<flag>|<flag>|<prov-timeout>|<final-timeout>|<dest>+
type ProxyArgs struct {
	TxID                string
	RemainInDialog      bool
	FullResponse        bool
	FollowRedirects     bool
	Simultaneous        bool
	ProvisionalTimeout  string
	FinalTimeout        string
	Destinations        []string
}

const (
	flagRemainInDialog  = "remainInDialog"
	flagFullResponse    = "fullResponse"
	flagFollowRedirects = "followRedirects"
	flagSimultaneous    = "simultaneous"
)

// ParseProxyArgs parses the arguments of a proxy message.
func ParseProxyArgs(args []string) (ProxyArgs, error) {
	// tx-id + 4 flags + 2 timeouts + at least one destination.
	if len(args) < 8 {
		return ProxyArgs{}, ErrInsufficientArgs
	}

	remain, err := parseFlag(args[1], flagRemainInDialog)
	if err != nil {
		return ProxyArgs{}, err
	}
	full, err := parseFlag(args[2], flagFullResponse)
	if err != nil {
		return ProxyArgs{}, err
	}
	redirects, err := parseFlag(args[3], flagFollowRedirects)
	if err != nil {
		return ProxyArgs{}, err
	}
	simultaneous, err := parseFlag(args[4], flagSimultaneous)
	if err != nil {
		return ProxyArgs{}, err
	}

	dests := make([]string, len(args)-7)
	copy(dests, args[7:])

	return ProxyArgs{
		TxID:               args[0],
		RemainInDialog:     remain,
		FullResponse:       full,
		FollowRedirects:    redirects,
		Simultaneous:       simultaneous,
		ProvisionalTimeout: args[5],
		FinalTimeout:       args[6],
		Destinations:       dests,
	}, nil
}

// parseFlag interprets one positional proxy flag token: an exact match
// on keyword means enabled, any other non-empty token means disabled,
// and an empty token is malformed.
func parseFlag(token, keyword string) (bool, error) {
	if token == "" {
		return false, ErrMalformedFlag
	}
	return token == keyword, nil
}
