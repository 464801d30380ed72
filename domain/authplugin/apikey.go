package authplugin

import (
	"context"
	"net/http"
)

// APIKeyPlugin reads {header, prefix, secret_ref} from config, resolves
// secret_ref via the credential resolver, and sets
// headers[header] = prefix + secret (§4.4).
type APIKeyPlugin struct{}

func (APIKeyPlugin) Authenticate(ctx context.Context, headers http.Header, config map[string]any, resolver CredentialResolver) *Error {
	header, ok := stringField(config, "header")
	if !ok || header == "" {
		return &Error{Kind: FailureInternal, Message: "api_key plugin config missing \"header\""}
	}
	secretRef, ok := stringField(config, "secret_ref")
	if !ok || secretRef == "" {
		return &Error{Kind: FailureInternal, Message: "api_key plugin config missing \"secret_ref\""}
	}
	prefix, _ := stringField(config, "prefix")

	secret, err := resolver.Resolve(ctx, secretRef)
	if err != nil {
		return &Error{Kind: FailureSecretNotFound, Message: err.Error()}
	}

	headers.Set(header, prefix+secret)
	return nil
}
