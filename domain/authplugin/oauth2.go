package authplugin

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// assertionClaims is the JWT client-assertion signed locally by
// OAuth2ClientCredentialsPlugin in RFC 7523's client-assertion shape, using
// HS256 over the resolved shared secret.
type assertionClaims struct {
	jwt.RegisteredClaims
}

// OAuth2ClientCredentialsPlugin signs a local JWT client assertion from a
// resolved signing secret and injects it as the bearer credential. Per
// §4.4, plugins must not perform network I/O beyond credential resolution,
// so this plugin never calls the token endpoint itself — the gateway is not
// the OAuth2 client in the RFC 6749 sense; it manufactures the assertion the
// upstream itself is configured to accept, the same way the API-Key and
// Bearer plugins manufacture a header value from a resolved secret.
type OAuth2ClientCredentialsPlugin struct {
	// Clock allows deterministic tests; defaults to time.Now.
	Clock func() time.Time
}

func (p *OAuth2ClientCredentialsPlugin) now() time.Time {
	if p.Clock != nil {
		return p.Clock()
	}
	return time.Now()
}

func (p *OAuth2ClientCredentialsPlugin) Authenticate(ctx context.Context, headers http.Header, config map[string]any, resolver CredentialResolver) *Error {
	clientID, ok := stringField(config, "client_id")
	if !ok || clientID == "" {
		return &Error{Kind: FailureInternal, Message: "oauth2_client_credentials plugin config missing \"client_id\""}
	}
	secretRef, ok := stringField(config, "secret_ref")
	if !ok || secretRef == "" {
		return &Error{Kind: FailureInternal, Message: "oauth2_client_credentials plugin config missing \"secret_ref\""}
	}
	audience, _ := stringField(config, "audience")
	header, ok := stringField(config, "header")
	if !ok || header == "" {
		header = "Authorization"
	}

	secret, err := resolver.Resolve(ctx, secretRef)
	if err != nil {
		return &Error{Kind: FailureSecretNotFound, Message: err.Error()}
	}

	now := p.now()
	claims := assertionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    clientID,
			Subject:   clientID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(5 * time.Minute)),
		},
	}
	if audience != "" {
		claims.Audience = jwt.ClaimStrings{audience}
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return &Error{Kind: FailureInternal, Message: fmt.Sprintf("signing client assertion: %v", err)}
	}

	if header == "Authorization" {
		headers.Set(header, "Bearer "+signed)
	} else {
		headers.Set(header, signed)
	}
	return nil
}
