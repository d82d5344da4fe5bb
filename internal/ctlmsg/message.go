package ctlmsg

import (
	"errors"
	"strings"
)

// ErrMalformed is returned when a payload's meta section doesn't carry
// at least a message id and a verb token.
var ErrMalformed = errors.New("ctlmsg: malformed message: fewer than 2 meta tokens")

// Message is the parsed form of one control-channel frame payload.
type Message struct {
	ID        string
	Verb      Verb
	Args      []string
	StartLine string
	Headers   string
	Body      string
}

// Parse splits a frame payload into its meta tokens and, when present,
// the SIP start-line/headers/body block that follows.
//
// Grammar: meta CRLF start-line CRLF headers CRLF CRLF body, where every
// part after meta is optional (authenticate/route/response carry meta
// only).
func Parse(payload string) (*Message, error) {
	metaPart, rest, hasRest := cutCRLF(payload)

	tokens := strings.Split(metaPart, "|")
	if len(tokens) < 2 {
		return nil, ErrMalformed
	}

	msg := &Message{
		ID:   tokens[0],
		Verb: Verb(tokens[1]),
		Args: tokens[2:],
	}

	if !hasRest {
		return msg, nil
	}

	startLine, rest2, hasRest2 := cutCRLF(rest)
	msg.StartLine = startLine
	if !hasRest2 {
		return msg, nil
	}

	if idx := strings.Index(rest2, "\r\n\r\n"); idx >= 0 {
		msg.Headers = rest2[:idx]
		msg.Body = rest2[idx+4:]
	} else {
		msg.Headers = rest2
	}

	return msg, nil
}

// cutCRLF splits s at the first CRLF, reporting whether one was found.
func cutCRLF(s string) (before, after string, found bool) {
	idx := strings.Index(s, "\r\n")
	if idx < 0 {
		return s, "", false
	}
	return s[:idx], s[idx+2:], true
}

// Format is the inverse of Parse for payloads in canonical form: meta
// only, or meta CRLF start-line CRLF headers CRLF CRLF body. Any other
// payload comes back normalized to that form (for example with the
// CRLF CRLF separator added after the headers), not byte for byte.
func Format(msg *Message) string {
	tokens := make([]string, 0, len(msg.Args)+2)
	tokens = append(tokens, msg.ID, string(msg.Verb))
	tokens = append(tokens, msg.Args...)
	meta := strings.Join(tokens, "|")

	if msg.StartLine == "" && msg.Headers == "" && msg.Body == "" {
		return meta
	}

	var b strings.Builder
	b.WriteString(meta)
	b.WriteString("\r\n")
	b.WriteString(msg.StartLine)
	b.WriteString("\r\n")
	b.WriteString(msg.Headers)
	b.WriteString("\r\n\r\n")
	b.WriteString(msg.Body)
	return b.String()
}

// IsSIPResponse reports whether a start-line represents a SIP response
// rather than a request ("SIP/2.0 200 OK" vs "INVITE sip:...").
func IsSIPResponse(startLine string) bool {
	return strings.HasPrefix(startLine, "SIP/")
}

// IsCancel reports whether a start-line is a CANCEL request.
func IsCancel(startLine string) bool {
	return strings.HasPrefix(startLine, "CANCEL")
}

// GetHeader performs a case-insensitive lookup of a "Name: value" header
// line within a CRLF-joined headers block, returning the trimmed value.
func GetHeader(headers, name string) (string, bool) {
	prefix := strings.ToLower(name) + ":"
	for _, line := range strings.Split(headers, "\r\n") {
		if strings.HasPrefix(strings.ToLower(line), prefix) {
			return strings.TrimSpace(line[len(prefix):]), true
		}
	}
	return "", false
}
