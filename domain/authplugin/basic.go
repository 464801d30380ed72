package authplugin

import (
	"context"
	"encoding/base64"
	"net/http"
)

// BasicPlugin resolves {username_ref, password_ref} (or a literal
// "username" alongside a resolved "password_ref") and sets
// Authorization: Basic <base64(username:password)> (§4.4).
type BasicPlugin struct{}

func (BasicPlugin) Authenticate(ctx context.Context, headers http.Header, config map[string]any, resolver CredentialResolver) *Error {
	passwordRef, ok := stringField(config, "password_ref")
	if !ok || passwordRef == "" {
		return &Error{Kind: FailureInternal, Message: "basic plugin config missing \"password_ref\""}
	}

	username, _ := stringField(config, "username")
	if usernameRef, ok := stringField(config, "username_ref"); ok && usernameRef != "" {
		resolved, err := resolver.Resolve(ctx, usernameRef)
		if err != nil {
			return &Error{Kind: FailureSecretNotFound, Message: err.Error()}
		}
		username = resolved
	}

	password, err := resolver.Resolve(ctx, passwordRef)
	if err != nil {
		return &Error{Kind: FailureSecretNotFound, Message: err.Error()}
	}

	token := base64.StdEncoding.EncodeToString([]byte(username + ":" + password))
	headers.Set("Authorization", "Basic "+token)
	return nil
}
