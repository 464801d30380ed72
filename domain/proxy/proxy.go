// Package proxy provides the Data Plane's request/response value types and
// per-request state machine (§4.3).
package proxy

import (
	"io"
	"net/http"

	"github.com/oagw/gateway/domain/problem"
)

// Context is the public contract's input: proxy_request(Context) -> Response.
type Context struct {
	TenantID    string
	Method      string
	Alias       string
	PathSuffix  string
	QueryParams map[string][]string
	Headers     http.Header
	Body        []byte
	InstanceURI string
}

// Response is the public contract's output. Body is a byte-stream handed to
// the caller as an io.ReadCloser so the Data Plane never buffers it
// entirely (§5 "Backpressure", §9 "Streaming bodies").
type Response struct {
	Status      int
	Headers     http.Header
	Body        io.ReadCloser
	ErrorSource problem.Source
}

// State is one node of the per-request state machine of §4.3:
// Received -> Resolved -> Authorized -> Forwarded -> Streaming -> Done | Aborted(kind).
type State int

const (
	StateReceived State = iota
	StateResolved
	StateAuthorized
	StateForwarded
	StateStreaming
	StateDone
	StateAborted
)

func (s State) String() string {
	switch s {
	case StateReceived:
		return "received"
	case StateResolved:
		return "resolved"
	case StateAuthorized:
		return "authorized"
	case StateForwarded:
		return "forwarded"
	case StateStreaming:
		return "streaming"
	case StateDone:
		return "done"
	case StateAborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// Machine tracks one request's progress through the pipeline and the kind
// it was aborted with, if any. It is not safe for concurrent use — exactly
// one goroutine drives one request.
type Machine struct {
	state      State
	abortedKind problem.Kind
}

// NewMachine starts a state machine in StateReceived.
func NewMachine() *Machine { return &Machine{state: StateReceived} }

// State returns the machine's current state.
func (m *Machine) State() State { return m.state }

// Advance moves the machine forward. It panics when asked to leave
// StateAborted, since that indicates a programming error in the Data Plane
// orchestration rather than a request-time failure; no other transition is
// checked.
func (m *Machine) Advance(to State) {
	if m.state == StateAborted && to != StateAborted {
		panic("proxy: cannot advance out of StateAborted")
	}
	m.state = to
}

// Abort terminates the machine with the given taxonomy kind. Streaming may
// transition to Aborted on a body stream error; every other abort happens
// before Streaming begins.
func (m *Machine) Abort(kind problem.Kind) {
	m.state = StateAborted
	m.abortedKind = kind
}

// AbortedKind returns the kind the machine was aborted with, valid only
// when State() == StateAborted.
func (m *Machine) AbortedKind() problem.Kind { return m.abortedKind }
