package credential_test

import (
	"context"
	"os"
	"testing"

	"github.com/oagw/gateway/adapters/credential"
)

func TestEnvResolver_ResolvesFromEnvironment(t *testing.T) {
	os.Setenv("OAGW_CRED_OPENAI_KEY", "sk-test123")
	defer os.Unsetenv("OAGW_CRED_OPENAI_KEY")

	r := credential.NewEnvResolver()
	got, err := r.Resolve(context.Background(), "cred://openai-key")
	if err != nil {
		t.Fatalf("Resolve error: %v", err)
	}
	if got != "sk-test123" {
		t.Errorf("Resolve = %q, want sk-test123", got)
	}
}

func TestEnvResolver_OverlayTakesPrecedence(t *testing.T) {
	os.Setenv("OAGW_CRED_OPENAI_KEY", "from-env")
	defer os.Unsetenv("OAGW_CRED_OPENAI_KEY")

	r := credential.NewEnvResolver()
	r.Set("openai-key", "from-overlay")

	got, err := r.Resolve(context.Background(), "cred://openai-key")
	if err != nil {
		t.Fatalf("Resolve error: %v", err)
	}
	if got != "from-overlay" {
		t.Errorf("Resolve = %q, want from-overlay", got)
	}
}

func TestEnvResolver_NotFound(t *testing.T) {
	r := credential.NewEnvResolver()
	_, err := r.Resolve(context.Background(), "cred://does-not-exist")
	if err == nil {
		t.Fatal("expected error for unresolved credential")
	}
}

func TestEnvResolver_InvalidScheme(t *testing.T) {
	r := credential.NewEnvResolver()
	_, err := r.Resolve(context.Background(), "http://not-a-cred-ref")
	if err == nil {
		t.Fatal("expected error for non-cred:// reference")
	}
}

func TestEnvResolver_EmptyName(t *testing.T) {
	r := credential.NewEnvResolver()
	_, err := r.Resolve(context.Background(), "cred://")
	if err == nil {
		t.Fatal("expected error for empty credential name")
	}
}
