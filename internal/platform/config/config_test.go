package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadWithDefaults(t *testing.T) {
	cfg, err := Load(context.Background(), WithEnvMap(map[string]string{}), WithoutSystemEnv(), WithEnvFile(""))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Server.Port != "8080" {
		t.Errorf("expected default port 8080, got %s", cfg.Server.Port)
	}
	if cfg.Server.ReadTimeout != 15*time.Second {
		t.Errorf("unexpected read timeout: %s", cfg.Server.ReadTimeout)
	}
	if cfg.Registry.Source != RegistrySourceFile {
		t.Errorf("expected default registry source file, got %s", cfg.Registry.Source)
	}
	if cfg.Registry.FilePath != defaultRegistryFilePath {
		t.Errorf("unexpected default registry file: %s", cfg.Registry.FilePath)
	}
	if cfg.Registry.ReloadInterval != defaultReloadInterval {
		t.Errorf("unexpected default reload interval: %s", cfg.Registry.ReloadInterval)
	}
	if cfg.Engine.PackingFactor != defaultPackingFactor {
		t.Errorf("unexpected default packing factor: %v", cfg.Engine.PackingFactor)
	}
	if cfg.Engine.DefaultPriority != "price" {
		t.Errorf("unexpected default rank priority: %s", cfg.Engine.DefaultPriority)
	}
	if !cfg.Features.EnableAffiliateTracking {
		t.Errorf("expected affiliate tracking enabled by default")
	}
	if cfg.Security.Environment != "local" {
		t.Errorf("expected default security environment local, got %s", cfg.Security.Environment)
	}
	if cfg.Security.HMAC.SignatureHeader != defaultHMACSignatureHeader {
		t.Errorf("expected default signature header, got %s", cfg.Security.HMAC.SignatureHeader)
	}
}

func TestLoadWithOverridesAndSecrets(t *testing.T) {
	env := map[string]string{
		"SHIPPING_SERVER_PORT":                    "9090",
		"SHIPPING_SERVER_READ_TIMEOUT":            "20s",
		"SHIPPING_SERVER_WRITE_TIMEOUT":           "25s",
		"SHIPPING_SERVER_IDLE_TIMEOUT":            "2m",
		"SHIPPING_REGISTRY_SOURCE":                "firestore",
		"SHIPPING_REGISTRY_PROJECT_ID":            "mg-prod",
		"SHIPPING_REGISTRY_PARTNERS_COLLECTION":   "partners",
		"SHIPPING_REGISTRY_ZONES_COLLECTION":      "zones",
		"SHIPPING_REGISTRY_RELOAD_INTERVAL":       "90s",
		"SHIPPING_ENGINE_PACKING_FACTOR":          "1.35",
		"SHIPPING_ENGINE_DEFAULT_PRIORITY":        "Speed",
		"SHIPPING_PSP_STRIPE_API_KEY":             "secret://stripe/api",
		"SHIPPING_PSP_STRIPE_WEBHOOK_SECRET":      "secret://stripe/webhook",
		"SHIPPING_FEATURE_AFFILIATE_TRACKING":     "false",
		"SHIPPING_FEATURE_CHECKOUT_SESSIONS":      "true",
		"SHIPPING_SECURITY_ENVIRONMENT":           "prod",
		"SHIPPING_SECURITY_HMAC_SECRETS":          "rates=secret://hmac/rates,internal=internal-secret",
		"SHIPPING_SECURITY_HMAC_HEADER_SIGNATURE": "X-Custom-Signature",
		"SHIPPING_SECURITY_HMAC_CLOCK_SKEW":       "3m",
		"SHIPPING_SECURITY_HMAC_NONCE_TTL":        "10m",
	}

	secrets := map[string]string{
		"secret://stripe/api":     "stripe-key",
		"secret://stripe/webhook": "stripe-webhook",
		"secret://hmac/rates":     "rates-hmac",
	}

	resolver := SecretResolverFunc(func(_ context.Context, ref string) (string, error) {
		if v, ok := secrets[ref]; ok {
			return v, nil
		}
		return "", &SecretError{Ref: ref, Err: errSecretResolverNotConfigured}
	})

	cfg, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""), WithSecretResolver(resolver))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Server.Port != "9090" {
		t.Errorf("expected port 9090, got %s", cfg.Server.Port)
	}
	if cfg.Server.IdleTimeout != 2*time.Minute {
		t.Errorf("unexpected idle timeout: %s", cfg.Server.IdleTimeout)
	}
	if cfg.Registry.Source != RegistrySourceFirestore {
		t.Errorf("expected firestore registry source, got %s", cfg.Registry.Source)
	}
	if cfg.Registry.PartnersCollection != "partners" || cfg.Registry.ZonesCollection != "zones" {
		t.Errorf("unexpected registry collections: %s / %s", cfg.Registry.PartnersCollection, cfg.Registry.ZonesCollection)
	}
	if cfg.Registry.ReloadInterval != 90*time.Second {
		t.Errorf("unexpected reload interval %s", cfg.Registry.ReloadInterval)
	}
	if cfg.Engine.PackingFactor != 1.35 {
		t.Errorf("unexpected packing factor %v", cfg.Engine.PackingFactor)
	}
	if cfg.Engine.DefaultPriority != "speed" {
		t.Errorf("expected lower-cased priority, got %s", cfg.Engine.DefaultPriority)
	}
	if cfg.PSP.StripeAPIKey != "stripe-key" {
		t.Errorf("expected resolved stripe api key, got %s", cfg.PSP.StripeAPIKey)
	}
	if cfg.PSP.StripeWebhookSecret != "stripe-webhook" {
		t.Errorf("expected resolved stripe webhook secret, got %s", cfg.PSP.StripeWebhookSecret)
	}
	if cfg.Features.EnableAffiliateTracking {
		t.Errorf("expected affiliate tracking disabled")
	}
	if cfg.Security.Environment != "prod" {
		t.Errorf("expected security environment prod, got %s", cfg.Security.Environment)
	}
	if cfg.Security.HMAC.Secrets["rates"] != "rates-hmac" {
		t.Errorf("expected resolved rates hmac secret, got %s", cfg.Security.HMAC.Secrets["rates"])
	}
	if cfg.Security.HMAC.Secrets["internal"] != "internal-secret" {
		t.Errorf("expected literal internal secret, got %s", cfg.Security.HMAC.Secrets["internal"])
	}
	if cfg.Security.HMAC.SignatureHeader != "X-Custom-Signature" {
		t.Errorf("unexpected signature header %s", cfg.Security.HMAC.SignatureHeader)
	}
	if cfg.Security.HMAC.ClockSkew != 3*time.Minute {
		t.Errorf("unexpected clock skew %s", cfg.Security.HMAC.ClockSkew)
	}
	if cfg.Security.HMAC.NonceTTL != 10*time.Minute {
		t.Errorf("unexpected nonce ttl %s", cfg.Security.HMAC.NonceTTL)
	}
}

func TestLoadDotEnvFallback(t *testing.T) {
	dir := t.TempDir()
	envPath := filepath.Join(dir, ".env.test")
	content := "SHIPPING_SERVER_PORT=7070\nSHIPPING_REGISTRY_FILE=testdata/registry.json\n"
	if err := os.WriteFile(envPath, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write dotenv file: %v", err)
	}

	cfg, err := Load(context.Background(), WithEnvFile(envPath), WithoutSystemEnv())
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Server.Port != "7070" {
		t.Errorf("expected port from dotenv 7070, got %s", cfg.Server.Port)
	}
	if cfg.Registry.FilePath != "testdata/registry.json" {
		t.Errorf("expected registry file from dotenv, got %s", cfg.Registry.FilePath)
	}
}

func TestLoadMissingRequired(t *testing.T) {
	env := map[string]string{
		"SHIPPING_REGISTRY_SOURCE": "firestore",
	}
	_, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""))
	if err == nil {
		t.Fatal("expected validation error, got nil")
	}
	var validation *ValidationError
	if !errors.As(err, &validation) {
		t.Fatalf("expected ValidationError, got %T", err)
	}
	fields := validation.Fields()
	if len(fields) == 0 || fields[0] != "Registry.ProjectID" {
		t.Fatalf("unexpected missing fields %v", fields)
	}
}

func TestLoadRejectsUnknownRegistrySource(t *testing.T) {
	env := map[string]string{
		"SHIPPING_REGISTRY_SOURCE": "dynamodb",
	}
	_, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""))
	if err == nil {
		t.Fatal("expected validation error, got nil")
	}
	if _, ok := err.(*ValidationError); !ok {
		t.Fatalf("expected ValidationError, got %T", err)
	}
}

func TestLoadRejectsPackingFactorBelowOne(t *testing.T) {
	env := map[string]string{
		"SHIPPING_ENGINE_PACKING_FACTOR": "0.5",
	}
	_, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""))
	if err == nil {
		t.Fatal("expected validation error, got nil")
	}
	if _, ok := err.(*ValidationError); !ok {
		t.Fatalf("expected ValidationError, got %T", err)
	}
}

func TestLoadSecretResolverError(t *testing.T) {
	env := map[string]string{
		"SHIPPING_PSP_STRIPE_API_KEY": "secret://missing",
	}

	_, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""))
	if err == nil {
		t.Fatal("expected secret resolution error, got nil")
	}
	var secretErr *SecretError
	if !errors.As(err, &secretErr) {
		t.Fatalf("expected SecretError, got %T", err)
	}
	if secretErr.Ref != "secret://missing" {
		t.Errorf("unexpected secret ref %s", secretErr.Ref)
	}
}

func TestEnvironmentValuesMergesSources(t *testing.T) {
	dir := t.TempDir()
	envPath := filepath.Join(dir, ".env.test")
	content := "SHIPPING_REGISTRY_PROJECT_ID=dot-project\nSHIPPING_SECRET_FALLBACK_FILE=.dot.local\n"
	if err := os.WriteFile(envPath, []byte(content), 0o600); err != nil {
		t.Fatalf("failed writing env file: %v", err)
	}

	t.Setenv("SHIPPING_REGISTRY_PROJECT_ID", "os-project")
	t.Setenv("SHIPPING_SECRET_PROJECT_IDS", "prod=project-prod")

	overrides := map[string]string{
		"SHIPPING_REGISTRY_PROJECT_ID": "override-project",
		"SHIPPING_SECRET_VERSION_PINS": "secret://stripe/api=5",
	}

	values, err := EnvironmentValues(WithEnvFile(envPath), WithEnvMap(overrides))
	if err != nil {
		t.Fatalf("EnvironmentValues returned error: %v", err)
	}

	if got := values["SHIPPING_REGISTRY_PROJECT_ID"]; got != "override-project" {
		t.Fatalf("expected override project, got %s", got)
	}
	if got := values["SHIPPING_SECRET_FALLBACK_FILE"]; got != ".dot.local" {
		t.Fatalf("expected dotenv fallback file, got %s", got)
	}
	if got := values["SHIPPING_SECRET_PROJECT_IDS"]; got != "prod=project-prod" {
		t.Fatalf("expected system env project map, got %s", got)
	}
	if got := values["SHIPPING_SECRET_VERSION_PINS"]; got != "secret://stripe/api=5" {
		t.Fatalf("expected override version pin, got %s", got)
	}
}

func TestLoadMissingRequiredSecrets(t *testing.T) {
	_, err := Load(context.Background(),
		WithEnvMap(map[string]string{}),
		WithoutSystemEnv(),
		WithEnvFile(""),
		WithRequiredSecrets("PSP.StripeAPIKey"),
	)
	if err == nil {
		t.Fatal("expected missing secrets error, got nil")
	}
	var missing *MissingSecretsError
	if !errors.As(err, &missing) {
		t.Fatalf("expected MissingSecretsError, got %T", err)
	}
	expectedRedacted := redactSecretName("PSP.StripeAPIKey")
	if got := missing.RedactedNames(); len(got) != 1 || got[0] != expectedRedacted {
		t.Fatalf("unexpected redacted names %v", got)
	}
}

func TestLoadMissingRequiredSecretsPanic(t *testing.T) {
	defer func() {
		rec := recover()
		if rec == nil {
			t.Fatal("expected panic when required secrets missing")
		}
		missing, ok := rec.(*MissingSecretsError)
		if !ok {
			t.Fatalf("expected MissingSecretsError panic, got %T", rec)
		}
		if len(missing.Names()) != 1 || missing.Names()[0] != "PSP.StripeAPIKey" {
			t.Fatalf("unexpected missing secrets %v", missing.Names())
		}
	}()

	Load(context.Background(),
		WithEnvMap(map[string]string{}),
		WithoutSystemEnv(),
		WithEnvFile(""),
		WithRequiredSecrets("PSP.StripeAPIKey"),
		WithPanicOnMissingSecrets(),
	)
}

func TestLoadSupportsLegacySecretScheme(t *testing.T) {
	env := map[string]string{
		"SHIPPING_PSP_STRIPE_WEBHOOK_SECRET": "sm://stripe/webhook",
	}

	secrets := map[string]string{
		"secret://stripe/webhook": "legacy-secret",
	}

	resolver := SecretResolverFunc(func(_ context.Context, ref string) (string, error) {
		if v, ok := secrets[ref]; ok {
			return v, nil
		}
		return "", &SecretError{Ref: ref, Err: errors.New("not found")}
	})

	cfg, err := Load(context.Background(),
		WithEnvMap(env),
		WithoutSystemEnv(),
		WithEnvFile(""),
		WithSecretResolver(resolver),
	)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.PSP.StripeWebhookSecret != "legacy-secret" {
		t.Fatalf("expected legacy secret, got %s", cfg.PSP.StripeWebhookSecret)
	}
}
