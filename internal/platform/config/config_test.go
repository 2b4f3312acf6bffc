package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func baseEnv() map[string]string {
	return map[string]string{
		"API_FIREBASE_PROJECT_ID": "pantry-dev",
	}
}

func TestLoadWithDefaults(t *testing.T) {
	cfg, err := Load(context.Background(), WithEnvMap(baseEnv()), WithoutSystemEnv(), WithEnvFile(""))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Server.Port != "8080" {
		t.Errorf("expected default port 8080, got %s", cfg.Server.Port)
	}
	if cfg.Server.ReadTimeout != 15*time.Second {
		t.Errorf("unexpected read timeout: %s", cfg.Server.ReadTimeout)
	}
	if cfg.Storage.Backend != StorageBackendFirestore {
		t.Errorf("expected firestore backend, got %s", cfg.Storage.Backend)
	}
	if cfg.Storage.Firestore.ProjectID != "pantry-dev" {
		t.Errorf("expected firestore project to default to firebase project, got %s", cfg.Storage.Firestore.ProjectID)
	}
	if cfg.PSP.DefaultProvider != "razorpay" || cfg.PSP.Currency != "INR" {
		t.Errorf("unexpected psp defaults %+v", cfg.PSP)
	}
	if cfg.Notifications.Backend != NotificationBackendLog {
		t.Errorf("expected log notifications, got %s", cfg.Notifications.Backend)
	}
	if cfg.Delivery.OTPTTL != 24*time.Hour || cfg.Delivery.OTPMaxAttempts != 5 {
		t.Errorf("unexpected delivery defaults %+v", cfg.Delivery)
	}
	if cfg.Delivery.CourierSecretName != "courier" {
		t.Errorf("unexpected courier secret name %s", cfg.Delivery.CourierSecretName)
	}
	if cfg.Security.Environment != "local" {
		t.Errorf("expected default security environment local, got %s", cfg.Security.Environment)
	}
	if len(cfg.Security.OIDC.Issuers) != 1 || cfg.Security.OIDC.Issuers[0] != defaultSecurityIssuer {
		t.Errorf("expected default issuer, got %v", cfg.Security.OIDC.Issuers)
	}
	if cfg.Security.HMAC.SignatureHeader != defaultHMACSignatureHeader {
		t.Errorf("expected default signature header, got %s", cfg.Security.HMAC.SignatureHeader)
	}
	if cfg.Idempotency.Header != defaultIdempotencyHeader || cfg.Idempotency.TTL != defaultIdempotencyTTL {
		t.Errorf("unexpected idempotency defaults %+v", cfg.Idempotency)
	}
}

func TestLoadWithOverridesAndSecrets(t *testing.T) {
	env := map[string]string{
		"API_SERVER_PORT":               "9090",
		"API_SERVER_READ_TIMEOUT":       "20s",
		"API_FIREBASE_PROJECT_ID":       "pantry-prod",
		"API_STORAGE_BACKEND":           "Mongo",
		"API_MONGO_URI":                 "secret://mongo/uri",
		"API_MONGO_DATABASE":            "pantry",
		"API_PSP_DEFAULT_PROVIDER":      "stripe",
		"API_PSP_CURRENCY":              "usd",
		"API_PSP_RAZORPAY_KEY_ID":       "rzp_test_1",
		"API_PSP_RAZORPAY_KEY_SECRET":   "sm://razorpay/secret",
		"API_PSP_STRIPE_API_KEY":        "secret://stripe/api",
		"API_NOTIFY_BACKEND":            "kafka",
		"API_NOTIFY_TOPIC":              "orders",
		"API_NOTIFY_KAFKA_BROKERS":      "k1:9092, k2:9092",
		"API_DELIVERY_OTP_TTL":          "2h",
		"API_DELIVERY_OTP_MAX_ATTEMPTS": "3",
		"API_SECURITY_HMAC_SECRETS":     "Courier=secret://courier/hmac",
		"API_SECURITY_OIDC_AUDIENCE":    "https://api.example.com",
		"API_SECURITY_OIDC_ISSUERS":     "https://accounts.google.com, https://issuer.example.com",
	}
	secrets := map[string]string{
		"secret://mongo/uri":       "mongodb://db:27017",
		"secret://razorpay/secret": "rzp-secret",
		"secret://stripe/api":      "sk_test",
		"secret://courier/hmac":    "courier-key",
	}
	resolver := SecretResolverFunc(func(_ context.Context, ref string) (string, error) {
		if v, ok := secrets[ref]; ok {
			return v, nil
		}
		return "", errors.New("not found")
	})

	cfg, err := Load(context.Background(),
		WithEnvMap(env),
		WithoutSystemEnv(),
		WithEnvFile(""),
		WithSecretResolver(resolver),
		WithRequiredSecrets("PSP.RazorpayKeySecret", "Security.HMAC.Secrets[courier]"),
	)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Server.Port != "9090" || cfg.Server.ReadTimeout != 20*time.Second {
		t.Errorf("unexpected server config %+v", cfg.Server)
	}
	if cfg.Storage.Backend != StorageBackendMongo || cfg.Storage.Mongo.URI != "mongodb://db:27017" {
		t.Errorf("unexpected storage config %+v", cfg.Storage)
	}
	if cfg.PSP.DefaultProvider != "stripe" || cfg.PSP.Currency != "USD" {
		t.Errorf("unexpected psp config %+v", cfg.PSP)
	}
	if cfg.PSP.RazorpayKeySecret != "rzp-secret" || cfg.PSP.StripeAPIKey != "sk_test" {
		t.Errorf("expected resolved psp secrets, got %+v", cfg.PSP)
	}
	if len(cfg.Notifications.KafkaBrokers) != 2 || cfg.Notifications.KafkaBrokers[1] != "k2:9092" {
		t.Errorf("unexpected brokers %v", cfg.Notifications.KafkaBrokers)
	}
	if cfg.Delivery.OTPTTL != 2*time.Hour || cfg.Delivery.OTPMaxAttempts != 3 {
		t.Errorf("unexpected delivery config %+v", cfg.Delivery)
	}
	if got := cfg.Security.HMAC.Secrets["courier"]; got != "courier-key" {
		t.Errorf("expected resolved courier secret, got %q", got)
	}
	if len(cfg.Security.OIDC.Issuers) != 2 {
		t.Errorf("unexpected issuers %v", cfg.Security.OIDC.Issuers)
	}
}

func TestLoadDotEnvFallback(t *testing.T) {
	dir := t.TempDir()
	envPath := filepath.Join(dir, ".env.test")
	content := "API_SERVER_PORT=7070\nexport API_FIREBASE_PROJECT_ID=\"pantry-dot\"\n# comment\nAPI_STORAGE_BACKEND=memory\n"
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
	if cfg.Firebase.ProjectID != "pantry-dot" {
		t.Errorf("expected firebase project from dotenv, got %s", cfg.Firebase.ProjectID)
	}
	if cfg.Storage.Backend != StorageBackendMemory {
		t.Errorf("expected memory backend, got %s", cfg.Storage.Backend)
	}
}

func TestLoadMissingDotEnvIsIgnored(t *testing.T) {
	_, err := Load(context.Background(),
		WithEnvFile(filepath.Join(t.TempDir(), "absent.env")),
		WithEnvMap(baseEnv()),
		WithoutSystemEnv(),
	)
	if err != nil {
		t.Fatalf("expected missing dotenv to be ignored, got %v", err)
	}
}

func TestLoadMissingRequired(t *testing.T) {
	_, err := Load(context.Background(), WithEnvMap(map[string]string{}), WithoutSystemEnv(), WithEnvFile(""))
	var validation *ValidationError
	if !errors.As(err, &validation) {
		t.Fatalf("expected ValidationError, got %T", err)
	}
	if fields := validation.Fields(); len(fields) == 0 || fields[0] != "Firebase.ProjectID" {
		t.Fatalf("unexpected fields %v", fields)
	}
}

func TestLoadRejectsIncompleteBackends(t *testing.T) {
	cases := map[string]struct {
		env   map[string]string
		field string
	}{
		"mongo without uri": {
			env:   map[string]string{"API_STORAGE_BACKEND": "mongo"},
			field: "Storage.Mongo.URI",
		},
		"kafka without brokers": {
			env:   map[string]string{"API_NOTIFY_BACKEND": "kafka"},
			field: "Notifications.KafkaBrokers",
		},
		"unknown backend": {
			env:   map[string]string{"API_STORAGE_BACKEND": "postgres"},
			field: "Storage.Backend",
		},
		"unknown provider": {
			env:   map[string]string{"API_PSP_DEFAULT_PROVIDER": "paypal"},
			field: "PSP.DefaultProvider",
		},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			env := baseEnv()
			for k, v := range tc.env {
				env[k] = v
			}
			_, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""))
			var validation *ValidationError
			if !errors.As(err, &validation) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
			found := false
			for _, field := range validation.Fields() {
				if field == tc.field {
					found = true
				}
			}
			if !found {
				t.Fatalf("expected %s in %v", tc.field, validation.Fields())
			}
		})
	}
}

func TestLoadSecretResolverError(t *testing.T) {
	env := baseEnv()
	env["API_PSP_STRIPE_API_KEY"] = "secret://missing"

	_, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""))
	var secretErr *SecretError
	if !errors.As(err, &secretErr) {
		t.Fatalf("expected SecretError, got %T", err)
	}
	if secretErr.Ref != "secret://missing" {
		t.Errorf("unexpected secret ref %s", secretErr.Ref)
	}
	if !errors.Is(err, errSecretResolverNotConfigured) {
		t.Errorf("expected resolver not configured cause, got %v", err)
	}
}

func TestEnvironmentValuesMergesSources(t *testing.T) {
	dir := t.TempDir()
	envPath := filepath.Join(dir, ".env.test")
	content := "API_FIREBASE_PROJECT_ID=dot-project\nAPI_SECRET_FALLBACK_FILE=.dot.local\n"
	if err := os.WriteFile(envPath, []byte(content), 0o600); err != nil {
		t.Fatalf("failed writing env file: %v", err)
	}

	t.Setenv("API_FIREBASE_PROJECT_ID", "os-project")
	t.Setenv("API_SECRET_PROJECT_IDS", "prod=project-prod")

	values, err := EnvironmentValues(WithEnvFile(envPath), WithEnvMap(map[string]string{
		"API_FIREBASE_PROJECT_ID": "override-project",
	}))
	if err != nil {
		t.Fatalf("EnvironmentValues returned error: %v", err)
	}

	if got := values["API_FIREBASE_PROJECT_ID"]; got != "override-project" {
		t.Fatalf("expected override project, got %s", got)
	}
	if got := values["API_SECRET_FALLBACK_FILE"]; got != ".dot.local" {
		t.Fatalf("expected dotenv fallback file, got %s", got)
	}
	if got := values["API_SECRET_PROJECT_IDS"]; got != "prod=project-prod" {
		t.Fatalf("expected system env project map, got %s", got)
	}
}

func TestLoadMissingRequiredSecrets(t *testing.T) {
	_, err := Load(context.Background(),
		WithEnvMap(baseEnv()),
		WithoutSystemEnv(),
		WithEnvFile(""),
		WithRequiredSecrets("PSP.RazorpayKeySecret", "PSP.RazorpayKeySecret"),
	)
	var missing *MissingSecretsError
	if !errors.As(err, &missing) {
		t.Fatalf("expected MissingSecretsError, got %T", err)
	}
	if names := missing.Names(); len(names) != 1 || names[0] != "PSP.RazorpayKeySecret" {
		t.Fatalf("unexpected missing names %v", names)
	}
	if redacted := missing.RedactedNames(); len(redacted) != 1 || redacted[0] == "PSP.RazorpayKeySecret" {
		t.Fatalf("expected redacted names, got %v", redacted)
	}
}
