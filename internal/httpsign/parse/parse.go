// Package parse implements a byte-buffer HTTP request parser: a state
// machine over a caller-owned buffer that tracks the body as offsets into
// it. The request line, the header block and the lowercased header names
// are copied into strings while parsing. The three terminal states are
// Complete, Incomplete (need more bytes), and Invalid (the connection
// should be closed with a 400).
package parse

import (
	"bytes"
	"strings"

	"github.com/Bidon15/bls-remote-signer/internal/config"
)

// Status is the outcome of a parse attempt over the current buffer.
type Status int

const (
	Incomplete Status = iota
	Complete
	Invalid
)

func (s Status) String() string {
	switch s {
	case Incomplete:
		return "Incomplete"
	case Complete:
		return "Complete"
	case Invalid:
		return "Invalid"
	default:
		return "Unknown"
	}
}

// Method is the restricted set of HTTP methods this core recognizes.
type Method int

const (
	MethodUnknown Method = iota
	MethodGET
	MethodPOST
)

// Accept classifies the request's declared response content type.
type Accept int

const (
	TextPlain Accept = iota
	ApplicationJSON
)

// Endpoint tags which of the four wire operations a request targets.
// EndpointUnrecognized covers any method/path combination not in the
// recognized set.
type Endpoint int

const (
	EndpointUnrecognized Endpoint = iota
	EndpointUpcheck
	EndpointListKeys
	EndpointSign
	EndpointImport
)

// headerTerminatorLen is len("\r\n\r\n").
const headerTerminatorLen = 4

// headerStallThreshold is the buffer size past which an unterminated
// header block is treated as malformed rather than merely incomplete.
const headerStallThreshold = 300

// Request is the parsed result. The body is held as offsets into the
// buffer the caller passed to Parse, valid only as long as that buffer is
// not reused or mutated; SignPKHex is a string copy of the path's key.
type Request struct {
	Method    Method
	Endpoint  Endpoint
	Accept    Accept
	SignPKHex string // 96 lowercase hex chars, no "0x", set only for EndpointSign

	BodyStart int
	BodyEnd   int
}

// Body returns the request body slice into buf. Valid only when the
// Request was produced by parsing that same buf.
func (r Request) Body(buf []byte) []byte {
	return buf[r.BodyStart:r.BodyEnd]
}

// Parse runs the request parsing state machine over buf. It never
// mutates buf; the body offsets in the returned Request refer into it.
func Parse(buf []byte, cfg config.Config) (Request, Status, error) {
	cfg = cfg.WithDefaults()

	headerEnd := indexHeaderTerminator(buf)
	if headerEnd < 0 {
		if len(buf) < headerStallThreshold {
			return Request{}, Incomplete, nil
		}
		return Request{}, Invalid, nil
	}

	head := buf[:headerEnd]
	requestLineEnd := bytes.Index(head, []byte("\r\n"))
	var headerBlock string
	var requestLine string
	if requestLineEnd < 0 {
		requestLine = string(head)
		headerBlock = ""
	} else {
		requestLine = string(head[:requestLineEnd])
		headerBlock = string(head[requestLineEnd+2:])
	}

	method, path, ok := parseRequestLine(requestLine)
	if !ok || method == MethodUnknown {
		return Request{}, Invalid, nil
	}

	headers, ok := parseHeaders(headerBlock, cfg.MaxHeaders)
	if !ok {
		return Request{}, Invalid, nil
	}

	accept := classifyAccept(headers)
	bodyStart := headerEnd + headerTerminatorLen

	if method == MethodGET {
		if len(buf) != bodyStart {
			return Request{}, Invalid, nil
		}
		return Request{
			Method:    MethodGET,
			Endpoint:  classifyGETPath(path),
			Accept:    accept,
			BodyStart: bodyStart,
			BodyEnd:   bodyStart,
		}, Complete, nil
	}

	// POST: body framing is driven by Content-Length.
	contentLength, ok := lookupHeader(headers, "content-length")
	if !ok {
		return Request{}, Invalid, nil
	}
	n, ok := parseNonNegativeInt(contentLength)
	if !ok {
		return Request{}, Invalid, nil
	}

	needed := bodyStart + n
	if len(buf) < needed {
		return Request{}, Incomplete, nil
	}
	if len(buf) > needed {
		return Request{}, Invalid, nil
	}

	endpoint, signPK := classifyPOSTPath(path)
	return Request{
		Method:    MethodPOST,
		Endpoint:  endpoint,
		Accept:    accept,
		SignPKHex: signPK,
		BodyStart: bodyStart,
		BodyEnd:   needed,
	}, Complete, nil
}

var headerTerminator = []byte("\r\n\r\n")

func indexHeaderTerminator(buf []byte) int {
	return bytes.Index(buf, headerTerminator)
}

func parseRequestLine(line string) (Method, string, bool) {
	sp1 := strings.IndexByte(line, ' ')
	if sp1 < 0 {
		return MethodUnknown, "", false
	}
	methodTok := line[:sp1]
	rest := line[sp1+1:]
	sp2 := strings.IndexByte(rest, ' ')
	if sp2 < 0 {
		return MethodUnknown, "", false
	}
	path := rest[:sp2]

	var method Method
	switch methodTok {
	case "GET":
		method = MethodGET
	case "POST":
		method = MethodPOST
	default:
		return MethodUnknown, "", false
	}
	if path == "" {
		return MethodUnknown, "", false
	}
	return method, path, true
}

type header struct {
	name  string // lowercase
	value string
}

// parseHeaders tokenizes "\r\n"-separated "Name: Value" lines per RFC 7230.
// An empty block is valid (zero headers). Exceeding maxHeaders, or any line
// that isn't a well-formed token/value pair, is a parse failure.
func parseHeaders(block string, maxHeaders int) ([]header, bool) {
	if block == "" {
		return nil, true
	}
	lines := strings.Split(block, "\r\n")
	if len(lines) > maxHeaders {
		return nil, false
	}
	headers := make([]header, 0, len(lines))
	for _, line := range lines {
		colon := strings.IndexByte(line, ':')
		if colon <= 0 {
			return nil, false
		}
		name := line[:colon]
		if !isValidToken(name) {
			return nil, false
		}
		value := strings.TrimSpace(line[colon+1:])
		headers = append(headers, header{name: strings.ToLower(name), value: value})
	}
	return headers, true
}

// isValidToken reports whether s is a legal RFC 7230 header field-name
// token: visible ASCII, no separators or whitespace.
func isValidToken(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		case strings.IndexByte("!#$%&'*+-.^_`|~", c) >= 0:
		default:
			return false
		}
	}
	return true
}

func lookupHeader(headers []header, lowerName string) (string, bool) {
	for _, h := range headers {
		if h.name == lowerName {
			return h.value, true
		}
	}
	return "", false
}

func classifyAccept(headers []header) Accept {
	v, ok := lookupHeader(headers, "accept")
	if !ok {
		return TextPlain
	}
	v = strings.TrimSpace(strings.ToLower(v))
	if v == "application/json" || v == "*/*" {
		return ApplicationJSON
	}
	return TextPlain
}

func parseNonNegativeInt(s string) (int, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	n := 0
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c < '0' || c > '9' {
			return 0, false
		}
		n = n*10 + int(c-'0')
	}
	return n, true
}

func classifyGETPath(path string) Endpoint {
	switch path {
	case "/upcheck", "/healthz":
		return EndpointUpcheck
	case "/api/v1/eth2/publicKeys":
		return EndpointListKeys
	default:
		return EndpointUnrecognized
	}
}

const signPathPrefix = "/api/v1/eth2/sign/0x"

// classifyPOSTPath recognizes the Sign and Import paths. A Sign path
// requires exactly 96 lowercase hex characters after the prefix and
// nothing else; anything shorter, longer, or containing non-hex bytes is
// unrecognized rather than a malformed Sign.
func classifyPOSTPath(path string) (Endpoint, string) {
	if path == "/eth/v1/keystores" {
		return EndpointImport, ""
	}
	if strings.HasPrefix(path, signPathPrefix) {
		pk := path[len(signPathPrefix):]
		if len(pk) == 96 && isLowerHex(pk) {
			return EndpointSign, pk
		}
		return EndpointUnrecognized, ""
	}
	return EndpointUnrecognized, ""
}

func isLowerHex(s string) bool {
	for i := 0; i < len(s); i++ {
		c := s[i]
		if !((c >= '0' && c <= '9') || (c >= 'a' && c <= 'f')) {
			return false
		}
	}
	return true
}
