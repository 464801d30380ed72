package oagwid_test

import (
	"testing"

	"github.com/google/uuid"

	"github.com/oagw/gateway/domain/oagwid"
)

func TestFormatParse_RoundTrips(t *testing.T) {
	id := uuid.New()
	formatted := oagwid.Format(oagwid.TypeUpstream, id)

	if want := "gts.x.core.oagw.upstream.v1~" + noHyphens(id); formatted != want {
		t.Errorf("Format = %q, want %q", formatted, want)
	}

	parsed, err := oagwid.Parse(oagwid.TypeUpstream, formatted)
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	if parsed != id {
		t.Errorf("Parse round-trip = %v, want %v", parsed, id)
	}
}

func TestParse_RejectsWrongType(t *testing.T) {
	id := uuid.New()
	formatted := oagwid.Format(oagwid.TypeUpstream, id)
	if _, err := oagwid.Parse(oagwid.TypeRoute, formatted); err == nil {
		t.Error("expected an error parsing an upstream id as a route id")
	}
}

func TestParse_RejectsMalformedHex(t *testing.T) {
	if _, err := oagwid.Parse(oagwid.TypeUpstream, "gts.x.core.oagw.upstream.v1~not-hex"); err == nil {
		t.Error("expected an error for malformed hex")
	}
}

func TestErrorID_Format(t *testing.T) {
	if got, want := oagwid.ErrorID("validation.error"), "gts.x.core.errors.err.v1~x.oagw.validation.error.v1"; got != want {
		t.Errorf("ErrorID = %q, want %q", got, want)
	}
}

func noHyphens(id uuid.UUID) string {
	s := id.String()
	out := make([]byte, 0, len(s))
	for _, c := range []byte(s) {
		if c != '-' {
			out = append(out, c)
		}
	}
	return string(out)
}
