// Package authplugin implements the pluggable credential-injection
// strategies of §4.4: a registry keyed by string plugin-type identifier,
// mapping to an interface with a single Authenticate method. Built-in
// plugins cover API-Key, Bearer, Basic, and OAuth2 client-credentials.
package authplugin

import (
	"context"
	"net/http"
)

// FailureKind enumerates the plugin failure modes of §4.3 stage 8, each
// mapped by the caller onto a fixed HTTP status (500/401/403/500).
type FailureKind string

const (
	FailureSecretNotFound FailureKind = "secret_not_found"
	FailureAuthFailed     FailureKind = "auth_failed"
	FailureRejected       FailureKind = "rejected"
	FailureInternal       FailureKind = "internal"
)

// Error is returned by Authenticate on failure.
type Error struct {
	Kind    FailureKind
	Message string
}

func (e *Error) Error() string { return string(e.Kind) + ": " + e.Message }

// CredentialResolver resolves a `cred://name` reference to secret material.
// Implementations must never log the resolved value.
type CredentialResolver interface {
	Resolve(ctx context.Context, ref string) (string, error)
}

// Plugin authenticates an outbound request by mutating its header map in
// place. Plugins must not perform network I/O beyond credential
// resolution (§4.4).
type Plugin interface {
	Authenticate(ctx context.Context, headers http.Header, config map[string]any, resolver CredentialResolver) *Error
}

// Registry maps a plugin-type identifier to its Plugin implementation.
// Read-only after startup (§5 "Shared resources").
type Registry struct {
	plugins map[string]Plugin
}

// NewRegistry constructs a Registry pre-populated with the built-in
// plugins, keyed the way upstream.AuthConfig.PluginType names them.
func NewRegistry() *Registry {
	r := &Registry{plugins: make(map[string]Plugin)}
	r.Register("gts.x.core.oagw.authplugin.v1~x.core.oagw.api_key.v1", APIKeyPlugin{})
	r.Register("gts.x.core.oagw.authplugin.v1~x.core.oagw.bearer.v1", BearerPlugin{})
	r.Register("gts.x.core.oagw.authplugin.v1~x.core.oagw.basic.v1", BasicPlugin{})
	r.Register("gts.x.core.oagw.authplugin.v1~x.core.oagw.oauth2_client_credentials.v1", &OAuth2ClientCredentialsPlugin{})
	return r
}

// Register adds or replaces a plugin under the given type identifier.
func (r *Registry) Register(pluginType string, p Plugin) {
	r.plugins[pluginType] = p
}

// Lookup returns the plugin registered under pluginType, if any.
func (r *Registry) Lookup(pluginType string) (Plugin, bool) {
	p, ok := r.plugins[pluginType]
	return p, ok
}

// Registered reports whether pluginType names a registered plugin; it is
// the func passed to upstream.Validate for auth.plugin_type checking.
func (r *Registry) Registered(pluginType string) bool {
	_, ok := r.plugins[pluginType]
	return ok
}

func stringField(config map[string]any, key string) (string, bool) {
	v, ok := config[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}
