package internal

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	pkgconfig "github.com/starford/monteerly/pkg/config"
)

func TestDefaultConfigValid(t *testing.T) {
	cfg := NewDefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should pass: %v", err)
	}
	if !cfg.Attachments.Enabled() {
		t.Error("attachments should be enabled by default")
	}
}

func TestAuthConfig_ShortTTL(t *testing.T) {
	cfg := AuthConfig{SessionTTL: time.Second}
	if err := cfg.Validate(); err == nil {
		t.Fatal("ttl under a minute should fail")
	}
}

func TestFederatedConfig_DisabledIgnoresFields(t *testing.T) {
	cfg := FederatedConfig{Enabled: false, AuthURL: "not a url"}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("disabled federated config should pass: %v", err)
	}
}

func TestFederatedConfig_EnabledRequiresEndpoints(t *testing.T) {
	cfg := FederatedConfig{Enabled: true, Provider: "google", ClientID: "id", ClientSecret: "secret"}
	err := cfg.Validate()
	if err == nil {
		t.Fatal("enabled federated config without endpoints should fail")
	}
	if !strings.Contains(err.Error(), "auth.federated") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestFederatedConfig_EnabledValid(t *testing.T) {
	cfg := FederatedConfig{
		Enabled:      true,
		Provider:     "google",
		ClientID:     "id",
		ClientSecret: "secret",
		RedirectURL:  "http://localhost:8080/api/auth/federated/callback",
		AuthURL:      "https://accounts.google.com/o/oauth2/auth",
		TokenURL:     "https://oauth2.googleapis.com/token",
		UserInfoURL:  "https://openidconnect.googleapis.com/v1/userinfo",
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("complete federated config should pass: %v", err)
	}
}

func TestFullConfig_AuthValidationCalled(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Auth.Federated.Enabled = true
	if err := cfg.Validate(); err == nil {
		t.Fatal("full config validate should catch federated error")
	}
}

func TestMCPConfig(t *testing.T) {
	if err := (&MCPConfig{}).Validate(); err == nil {
		t.Error("empty mcp credentials should fail")
	}
	if err := (&MCPConfig{Email: "nope", Password: "x"}).Validate(); err == nil {
		t.Error("malformed email should fail")
	}
	if err := (&MCPConfig{Email: "studio@example.com", Password: "x"}).Validate(); err != nil {
		t.Errorf("valid mcp credentials should pass: %v", err)
	}
}

func TestLoadExpandsEnv(t *testing.T) {
	t.Setenv("MONTEERLY_TEST_DB", "/tmp/expanded.db")
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := `
app:
  log_level: debug
  http:
    port: 9090
sqlite:
  path: ${MONTEERLY_TEST_DB}
auth:
  session_ttl: 2h
sync:
  watch_external: true
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := NewDefaultConfig()
	if err := pkgconfig.Load(path, cfg); err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.SQLite.Path != "/tmp/expanded.db" {
		t.Errorf("sqlite path = %q", cfg.SQLite.Path)
	}
	if cfg.App.HTTP.Port != 9090 {
		t.Errorf("port = %d", cfg.App.HTTP.Port)
	}
	if cfg.Auth.SessionTTL != 2*time.Hour {
		t.Errorf("session ttl = %v", cfg.Auth.SessionTTL)
	}
	if !cfg.Sync.WatchExternal {
		t.Error("watch_external should be true")
	}
	if cfg.Attachments.Path != "./attachments" {
		t.Errorf("attachments default lost: %q", cfg.Attachments.Path)
	}
}
