// Package urc classifies unsolicited result code lines from a GSM modem.
// Classification is substring based and first match wins, in the fixed
// priority order of the switch in Classify.
package urc

import (
	"strconv"
	"strings"
)

type Kind uint8

const (
	KindPlain Kind = iota
	KindRing
	KindCallerID
	KindAccept
	KindTerminated
	KindError
	KindTone
	KindMessage
)

func (k Kind) String() string {
	switch k {
	case KindPlain:
		return "plain"
	case KindRing:
		return "ring"
	case KindCallerID:
		return "caller-id"
	case KindAccept:
		return "accept"
	case KindTerminated:
		return "terminated"
	case KindError:
		return "error"
	case KindTone:
		return "tone"
	case KindMessage:
		return "message"
	}
	return "unknown"
}

const (
	markRing     = "RING"
	markCallerID = "+CLIP:"
	markAccept   = "OK"
	markError    = "ERROR"
	markTone     = "+DTMF:"
	markMessage  = "+CMT:"
)

// Every way a modem reports that the call is over.
var terminators = []string{"NO CARRIER", "BUSY", "NO ANSWER"}

type Event struct {
	Kind Kind
	Line string

	// KindCallerID only; empty when the quoting is malformed.
	Number string

	// KindTone only; -1 when the payload is not numeric.
	Tone int
}

// Classify expects a complete line, already trimmed of whitespace.
func Classify(line string) Event {
	switch {
	case strings.Contains(line, markRing):
		return Event{Kind: KindRing, Line: line}

	case strings.Contains(line, markCallerID):
		after := line[strings.Index(line, markCallerID)+len(markCallerID):]
		return Event{Kind: KindCallerID, Line: line, Number: quotedField(after)}

	case line == markAccept:
		return Event{Kind: KindAccept, Line: line}

	case containsAny(line, terminators):
		return Event{Kind: KindTerminated, Line: line}

	case strings.Contains(line, markError):
		return Event{Kind: KindError, Line: line}

	case strings.Contains(line, markTone):
		after := strings.TrimSpace(line[strings.Index(line, markTone)+len(markTone):])
		code, err := strconv.Atoi(after)
		if err != nil {
			code = -1
		}
		return Event{Kind: KindTone, Line: line, Tone: code}

	case strings.HasPrefix(line, markMessage):
		return Event{Kind: KindMessage, Line: line}
	}
	return Event{Kind: KindPlain, Line: line}
}

// quotedField returns the substring between the first and second double
// quote of s, or "" when either quote is missing.
func quotedField(s string) string {
	begin := strings.IndexByte(s, '"')
	if begin < 0 {
		return ""
	}
	end := strings.IndexByte(s[begin+1:], '"')
	if end < 0 {
		return ""
	}
	return s[begin+1 : begin+1+end]
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
