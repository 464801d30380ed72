// Package oagwid implements the GTS typed identifier scheme used to expose
// internal UUIDs externally on the Management REST surface.
package oagwid

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Type enumerates the resource kinds that carry a GTS identifier.
type Type string

const (
	TypeUpstream Type = "upstream"
	TypeRoute    Type = "route"
)

const (
	prefixFmt = "gts.x.core.oagw.%s.v1"
	separator = "~"
)

// Format renders the typed external identifier for an internal UUID.
func Format(t Type, id uuid.UUID) string {
	return fmt.Sprintf(prefixFmt, t) + separator + strings.ReplaceAll(id.String(), "-", "")
}

// Parse splits a GTS identifier on its final "~", validates the schema
// segment against the expected type, and parses the hex segment as a UUID.
// It rejects any string that does not split on the final separator, fails
// schema validation, or fails UUID validation.
func Parse(t Type, s string) (uuid.UUID, error) {
	idx := strings.LastIndex(s, separator)
	if idx < 0 {
		return uuid.Nil, fmt.Errorf("oagwid: %q has no %q separator", s, separator)
	}
	schema, hex := s[:idx], s[idx+1:]
	want := fmt.Sprintf(prefixFmt, t)
	if schema != want {
		return uuid.Nil, fmt.Errorf("oagwid: %q has schema %q, want %q", s, schema, want)
	}
	id, err := parseHex(hex)
	if err != nil {
		return uuid.Nil, fmt.Errorf("oagwid: %q: %w", s, err)
	}
	return id, nil
}

// parseHex parses a 32-character unhyphenated hex UUID segment.
func parseHex(hex string) (uuid.UUID, error) {
	if len(hex) != 32 {
		return uuid.Nil, fmt.Errorf("identifier segment must be 32 hex characters, got %d", len(hex))
	}
	dashed := hex[0:8] + "-" + hex[8:12] + "-" + hex[12:16] + "-" + hex[16:20] + "-" + hex[20:32]
	return uuid.Parse(dashed)
}

// ErrorID renders the stable GTS error-identifier for a taxonomy kind, e.g.
// "rate_limit.exceeded" -> "gts.x.core.errors.err.v1~x.oagw.rate_limit.exceeded.v1".
func ErrorID(kind string) string {
	return "gts.x.core.errors.err.v1~x.oagw." + kind + ".v1"
}
