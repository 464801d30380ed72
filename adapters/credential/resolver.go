// Package credential implements the `cred://name` resolver of §4.1/§4.4:
// auth configs reference secret material indirectly so the resolved value
// never appears in stored config or logs.
package credential

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/oagw/gateway/domain/authplugin"
	"github.com/oagw/gateway/ports"
)

const scheme = "cred://"

var (
	_ ports.CredentialResolver      = (*EnvResolver)(nil)
	_ authplugin.CredentialResolver = (*EnvResolver)(nil)
)

// EnvResolver resolves `cred://name` references against environment
// variables named `OAGW_CRED_<NAME>` (uppercased, non-alphanumerics
// replaced with underscores), following the teacher's config.go convention
// of layering environment variables over file-based settings. An optional
// in-process overlay lets callers such as tests register secrets without
// touching the process environment.
type EnvResolver struct {
	mu      sync.RWMutex
	overlay map[string]string
}

// NewEnvResolver constructs an EnvResolver with an empty overlay.
func NewEnvResolver() *EnvResolver {
	return &EnvResolver{overlay: make(map[string]string)}
}

// Set registers or replaces a secret in the in-process overlay, taking
// precedence over the environment. No HTTP surface of the gateway calls it;
// within this repository only tests do.
func (r *EnvResolver) Set(name, value string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.overlay[name] = value
}

// Resolve implements ports.CredentialResolver and authplugin.CredentialResolver.
func (r *EnvResolver) Resolve(ctx context.Context, ref string) (string, error) {
	name, err := parseRef(ref)
	if err != nil {
		return "", err
	}

	r.mu.RLock()
	if v, ok := r.overlay[name]; ok {
		r.mu.RUnlock()
		return v, nil
	}
	r.mu.RUnlock()

	envKey := "OAGW_CRED_" + sanitizeEnvKey(name)
	v, ok := os.LookupEnv(envKey)
	if !ok {
		return "", fmt.Errorf("credential: %q not found", ref)
	}
	return v, nil
}

func parseRef(ref string) (string, error) {
	if !strings.HasPrefix(ref, scheme) {
		return "", fmt.Errorf("credential: %q is not a cred:// reference", ref)
	}
	name := strings.TrimPrefix(ref, scheme)
	if name == "" {
		return "", fmt.Errorf("credential: %q has an empty name", ref)
	}
	return name, nil
}

func sanitizeEnvKey(name string) string {
	var b strings.Builder
	for _, r := range strings.ToUpper(name) {
		switch {
		case r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}
