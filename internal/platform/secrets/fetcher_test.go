package secrets

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"github.com/googleapis/gax-go/v2"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type fakeSecretClient struct {
	mu     sync.Mutex
	values map[string]string
	err    error
	calls  map[string]int
}

func newFakeSecretClient() *fakeSecretClient {
	return &fakeSecretClient{values: map[string]string{}, calls: map[string]int{}}
}

func (c *fakeSecretClient) AccessSecretVersion(_ context.Context, req *secretmanagerpb.AccessSecretVersionRequest, _ ...gax.CallOption) (*secretmanagerpb.AccessSecretVersionResponse, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls[req.GetName()]++
	if c.err != nil {
		return nil, c.err
	}
	value, ok := c.values[req.GetName()]
	if !ok {
		return nil, status.Error(codes.NotFound, "missing")
	}
	return &secretmanagerpb.AccessSecretVersionResponse{Payload: &secretmanagerpb.SecretPayload{Data: []byte(value)}}, nil
}

func (c *fakeSecretClient) Close() error { return nil }

func TestResolveCachesRemoteSecret(t *testing.T) {
	ctx := context.Background()
	client := newFakeSecretClient()
	resource := "projects/mkt/secrets/stripe_api/versions/latest"
	client.values[resource] = "sk_test_remote"

	fetcher, err := NewFetcher(ctx, "mkt", WithSecretManagerClient(client), WithFallbackFile(""))
	if err != nil {
		t.Fatalf("NewFetcher: %v", err)
	}

	for i := 0; i < 2; i++ {
		got, err := fetcher.Resolve(ctx, "secret://stripe/api")
		if err != nil {
			t.Fatalf("Resolve: %v", err)
		}
		if got != "sk_test_remote" {
			t.Fatalf("expected remote value, got %q", got)
		}
	}
	if client.calls[resource] != 1 {
		t.Fatalf("expected one remote call, got %d", client.calls[resource])
	}
}

func TestResolvePinnedVersion(t *testing.T) {
	ctx := context.Background()
	client := newFakeSecretClient()
	client.values["projects/mkt/secrets/oidc_audience/versions/3"] = "aud-v3"

	fetcher, err := NewFetcher(ctx, "mkt", WithSecretManagerClient(client), WithFallbackFile(""))
	if err != nil {
		t.Fatalf("NewFetcher: %v", err)
	}
	got, err := fetcher.Resolve(ctx, "secret://oidc_audience?version=3")
	if err != nil || got != "aud-v3" {
		t.Fatalf("expected aud-v3, got %q (%v)", got, err)
	}
}

func TestResolveFallsBackWhenUnavailable(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), ".secrets.local")
	if err := os.WriteFile(path, []byte("# local\nstripe_api=\"sk_test_local\"\n"), 0o600); err != nil {
		t.Fatalf("write fallback: %v", err)
	}

	client := newFakeSecretClient()
	client.err = status.Error(codes.Unavailable, "offline")
	fetcher, err := NewFetcher(ctx, "mkt", WithSecretManagerClient(client), WithFallbackFile(path))
	if err != nil {
		t.Fatalf("NewFetcher: %v", err)
	}
	got, err := fetcher.Resolve(ctx, "secret://stripe/api")
	if err != nil || got != "sk_test_local" {
		t.Fatalf("expected fallback value, got %q (%v)", got, err)
	}
}

func TestResolveSurfacesNonFallbackErrors(t *testing.T) {
	ctx := context.Background()
	client := newFakeSecretClient()
	client.err = status.Error(codes.InvalidArgument, "bad name")
	fetcher, err := NewFetcher(ctx, "mkt", WithSecretManagerClient(client), WithFallbackFile(""))
	if err != nil {
		t.Fatalf("NewFetcher: %v", err)
	}
	if _, err := fetcher.Resolve(ctx, "secret://stripe/api"); err == nil {
		t.Fatalf("expected error")
	}
}

func TestParseReferenceRejectsOtherSchemes(t *testing.T) {
	if _, _, err := parseReference("https://example.com/key"); err == nil {
		t.Fatalf("expected scheme error")
	}
	if _, _, err := parseReference("secret://"); err == nil {
		t.Fatalf("expected missing name error")
	}
}
