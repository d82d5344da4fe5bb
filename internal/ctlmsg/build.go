package ctlmsg

import "strings"

// BuildOKResponse formats an OK response to a client message, optionally
// carrying trailing data (e.g. a fresh tx-id/dialog-id, or "continue" to
// keep a streaming API request's binding alive).
func BuildOKResponse(uuid, clientMsgID string, extra ...string) string {
	msg := &Message{ID: uuid, Verb: VerbResponse, Args: append([]string{clientMsgID, "OK"}, extra...)}
	return Format(msg)
}

// BuildErrorResponse formats a NO response with a reason.
func BuildErrorResponse(uuid, clientMsgID, reason string) string {
	msg := &Message{ID: uuid, Verb: VerbResponse, Args: []string{clientMsgID, "NO", reason}}
	return Format(msg)
}

// BuildSIPDelivery formats an inbound SIP request/response frame destined
// for a client: "<uuid>|sip|<sip-meta>|<tx-id>|<dialog-id>|" + CRLF + raw.
// dialogID may be empty for requests outside any dialog.
func BuildSIPDelivery(uuid, sipMeta, txID, dialogID, startLine, headers, body string) string {
	args := []string{sipMeta, txID, dialogID, ""}
	msg := &Message{
		ID:        uuid,
		Verb:      VerbSIP,
		Args:      args,
		StartLine: startLine,
		Headers:   headers,
		Body:      body,
	}
	return Format(msg)
}

// BuildAPIResponse formats an (optionally streaming) response to a
// client-originated command. continueMore keeps the api-req binding
// alive for a subsequent response to the same msg-id.
func BuildAPIResponse(uuid, clientMsgID, body string, continueMore bool) string {
	args := []string{clientMsgID, body}
	if continueMore {
		args = append(args, "continue")
	}
	msg := &Message{ID: uuid, Verb: VerbResponse, Args: args}
	return Format(msg)
}

// HasContinueMarker reports whether a trailing response tail carries the
// "continue" marker that keeps an api-req binding alive.
func HasContinueMarker(tail string) bool {
	return strings.Contains(tail, "continue")
}

// BuildCDR formats a call-detail-record frame: "<uuid>|<cdr-meta>" + CRLF
// + raw SIP. Unlike the other shapes this has no verb token of its own —
// cdrMeta carries whatever record-type tag the SIP engine assigns.
func BuildCDR(uuid, cdrMeta, startLine, headers, body string) string {
	var b strings.Builder
	b.WriteString(uuid)
	b.WriteString("|")
	b.WriteString(cdrMeta)
	b.WriteString("\r\n")
	b.WriteString(startLine)
	b.WriteString("\r\n")
	b.WriteString(headers)
	b.WriteString("\r\n\r\n")
	b.WriteString(body)
	return b.String()
}
