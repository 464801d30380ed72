package proxy_test

import (
	"testing"

	"github.com/oagw/gateway/domain/problem"
	"github.com/oagw/gateway/domain/proxy"
)

func TestMachine_StartsReceived(t *testing.T) {
	m := proxy.NewMachine()
	if m.State() != proxy.StateReceived {
		t.Errorf("State() = %v, want Received", m.State())
	}
}

func TestMachine_AdvancesThroughFullPipeline(t *testing.T) {
	m := proxy.NewMachine()
	for _, s := range []proxy.State{proxy.StateResolved, proxy.StateAuthorized, proxy.StateForwarded, proxy.StateStreaming, proxy.StateDone} {
		m.Advance(s)
		if m.State() != s {
			t.Fatalf("State() = %v, want %v", m.State(), s)
		}
	}
}

func TestMachine_Abort_SetsKind(t *testing.T) {
	m := proxy.NewMachine()
	m.Abort(problem.KindUpstreamDisabled)
	if m.State() != proxy.StateAborted {
		t.Fatalf("State() = %v, want Aborted", m.State())
	}
	if m.AbortedKind() != problem.KindUpstreamDisabled {
		t.Errorf("AbortedKind() = %v, want %v", m.AbortedKind(), problem.KindUpstreamDisabled)
	}
}

func TestMachine_PanicsAdvancingOutOfAborted(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected a panic advancing out of Aborted")
		}
	}()
	m := proxy.NewMachine()
	m.Abort(problem.KindInternal)
	m.Advance(proxy.StateDone)
}

func TestState_String(t *testing.T) {
	cases := map[proxy.State]string{
		proxy.StateReceived:   "received",
		proxy.StateResolved:   "resolved",
		proxy.StateAuthorized: "authorized",
		proxy.StateForwarded:  "forwarded",
		proxy.StateStreaming:  "streaming",
		proxy.StateDone:       "done",
		proxy.StateAborted:    "aborted",
	}
	for state, want := range cases {
		if got := state.String(); got != want {
			t.Errorf("State(%d).String() = %q, want %q", state, got, want)
		}
	}
}
