package authplugin

import (
	"context"
	"net/http"
)

// BearerPlugin resolves {secret_ref} and sets
// Authorization: Bearer <secret>, the same shape as APIKeyPlugin
// specialized to the Authorization header (§4.4).
type BearerPlugin struct{}

func (BearerPlugin) Authenticate(ctx context.Context, headers http.Header, config map[string]any, resolver CredentialResolver) *Error {
	secretRef, ok := stringField(config, "secret_ref")
	if !ok || secretRef == "" {
		return &Error{Kind: FailureInternal, Message: "bearer plugin config missing \"secret_ref\""}
	}

	token, err := resolver.Resolve(ctx, secretRef)
	if err != nil {
		return &Error{Kind: FailureSecretNotFound, Message: err.Error()}
	}

	headers.Set("Authorization", "Bearer "+token)
	return nil
}
