package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadWithDefaults(t *testing.T) {
	env := map[string]string{
		"MKT_FIREBASE_PROJECT_ID":  "mkt-dev",
		"MKT_STORAGE_MEDIA_BUCKET": "mkt-media-dev",
	}

	cfg, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""))
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, 15*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, "mkt-dev", cfg.Firestore.ProjectID)
	assert.Equal(t, "mkt-dev", cfg.Notifications.ProjectID)
	assert.Equal(t, defaultNotificationsTopic, cfg.Notifications.Topic)
	assert.Equal(t, []string{defaultOIDCIssuer}, cfg.Security.OIDC.Issuers)
	assert.Equal(t, defaultIdempotencyHeader, cfg.Idempotency.Header)
	assert.Equal(t, "ORD", cfg.Orders.NumberPrefix)
	assert.Equal(t, 24*time.Hour, cfg.Orders.PendingCancelWindow)
	assert.Equal(t, 2*time.Hour, cfg.Orders.ProcessingCancelWindow)
	assert.Equal(t, 30*24*time.Hour, cfg.Orders.ReturnWindow)
	assert.Equal(t, defaultCatalogCacheSize, cfg.Catalog.CacheSize)
}

func TestLoadWithOverridesAndSecrets(t *testing.T) {
	env := map[string]string{
		"MKT_SERVER_PORT":                     "9090",
		"MKT_FIREBASE_PROJECT_ID":             "mkt-prod",
		"MKT_FIRESTORE_PROJECT_ID":            "mkt-fire",
		"MKT_STORAGE_MEDIA_BUCKET":            "media-prod",
		"MKT_STRIPE_API_KEY":                  "sm://stripe/api",
		"MKT_SECURITY_OIDC_ISSUERS":           "https://a.example, https://b.example",
		"MKT_ORDERS_NUMBER_PREFIX":            "MK",
		"MKT_ORDERS_PROCESSING_CANCEL_WINDOW": "90m",
		"MKT_CATALOG_CACHE_TTL":               "5m",
	}

	var requested string
	resolver := SecretResolverFunc(func(_ context.Context, ref string) (string, error) {
		requested = ref
		return "sk_live_resolved", nil
	})

	cfg, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""), WithSecretResolver(resolver))
	require.NoError(t, err)

	assert.Equal(t, "secret://stripe/api", requested)
	assert.Equal(t, "sk_live_resolved", cfg.Stripe.APIKey)
	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Equal(t, "mkt-fire", cfg.Firestore.ProjectID)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Security.OIDC.Issuers)
	assert.Equal(t, "MK", cfg.Orders.NumberPrefix)
	assert.Equal(t, 90*time.Minute, cfg.Orders.ProcessingCancelWindow)
	assert.Equal(t, 5*time.Minute, cfg.Catalog.CacheTTL)
}

func TestLoadSecretWithoutResolver(t *testing.T) {
	env := map[string]string{
		"MKT_FIREBASE_PROJECT_ID":  "mkt-dev",
		"MKT_STORAGE_MEDIA_BUCKET": "media",
		"MKT_STRIPE_API_KEY":       "secret://stripe/api",
	}

	_, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""))
	var secretErr *SecretError
	require.ErrorAs(t, err, &secretErr)
	assert.Equal(t, "secret://stripe/api", secretErr.Ref)
	assert.True(t, errors.Is(err, errSecretResolverNotConfigured))
}

func TestLoadValidationError(t *testing.T) {
	_, err := Load(context.Background(), WithEnvMap(map[string]string{
		"MKT_ORDERS_RETURN_WINDOW": "-1h",
	}), WithoutSystemEnv(), WithEnvFile(""))

	var validationErr *ValidationError
	require.ErrorAs(t, err, &validationErr)
	assert.Contains(t, validationErr.Fields(), "Firebase.ProjectID")
	assert.Contains(t, validationErr.Fields(), "Storage.MediaBucket")
	assert.Contains(t, validationErr.Fields(), "Orders.ReturnWindow")
}

func TestLoadReadsDotEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	content := "# local overrides\nexport MKT_FIREBASE_PROJECT_ID=\"mkt-local\"\nMKT_STORAGE_MEDIA_BUCKET=local-media\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := Load(context.Background(), WithoutSystemEnv(), WithEnvFile(path), WithEnvMap(map[string]string{
		"MKT_STORAGE_MEDIA_BUCKET": "explicit-media",
	}))
	require.NoError(t, err)

	assert.Equal(t, "mkt-local", cfg.Firebase.ProjectID)
	assert.Equal(t, "explicit-media", cfg.Storage.MediaBucket)
}
