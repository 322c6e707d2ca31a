package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoad_FullConfig(t *testing.T) {
	yaml := `bridge_id: bridge-a
transport: websocket
listen: 127.0.0.1:9400
path: /__specbridge
evaluator: lua

browser:
  enabled: true
  headless: false
  exec_path: /usr/bin/chromium
  no_sandbox: true

journal:
  backend: s3
  dataset: relay
  path: my-bucket/journal
  region: us-east-1
  endpoint: https://minio.example.com
  s3_path_style: true

adapter:
  type: webhook
  url: https://hooks.example.com/specbridge
  headers:
    Authorization: Bearer token123
  timeout: 10s
  backoff: 250ms
  retries: 3

log:
  level: debug
`
	cfg, err := Load(writeTemp(t, yaml))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	assertEqual(t, "bridge_id", cfg.BridgeID, "bridge-a")
	assertEqual(t, "transport", cfg.Transport, TransportWebSocket)
	assertEqual(t, "listen", cfg.Listen, "127.0.0.1:9400")
	assertEqual(t, "path", cfg.Path, "/__specbridge")
	assertEqual(t, "evaluator", cfg.Evaluator, EvaluatorLua)

	if !cfg.Browser.Enabled || cfg.Browser.IsHeadless() || !cfg.Browser.NoSandbox {
		t.Errorf("browser = %+v", cfg.Browser)
	}
	assertEqual(t, "browser.exec_path", cfg.Browser.ExecPath, "/usr/bin/chromium")

	assertEqual(t, "journal.backend", cfg.Journal.Backend, JournalS3)
	assertEqual(t, "journal.dataset", cfg.Journal.Dataset, "relay")
	assertEqual(t, "journal.path", cfg.Journal.Path, "my-bucket/journal")
	assertEqual(t, "journal.region", cfg.Journal.Region, "us-east-1")
	assertEqual(t, "journal.endpoint", cfg.Journal.Endpoint, "https://minio.example.com")
	if !cfg.Journal.S3PathStyle {
		t.Error("expected journal.s3_path_style=true")
	}

	assertEqual(t, "adapter.type", cfg.Adapter.Type, AdapterWebhook)
	assertEqual(t, "adapter.headers.Authorization", cfg.Adapter.Headers["Authorization"], "Bearer token123")
	if cfg.Adapter.Timeout.Duration != 10*time.Second {
		t.Errorf("adapter.timeout = %v", cfg.Adapter.Timeout.Duration)
	}
	if cfg.Adapter.Backoff.Duration != 250*time.Millisecond {
		t.Errorf("adapter.backoff = %v", cfg.Adapter.Backoff.Duration)
	}
	if cfg.Adapter.Retries == nil || *cfg.Adapter.Retries != 3 {
		t.Error("expected adapter.retries=3")
	}
	assertEqual(t, "log.level", cfg.Log.Level, "debug")
}

func TestLoad_EmptyLikeConfigs(t *testing.T) {
	for name, content := range map[string]string{
		"empty":      "",
		"whitespace": "   \n  \n",
		"comments":   "# nothing\n# here\n",
	} {
		t.Run(name, func(t *testing.T) {
			cfg, err := Load(writeTemp(t, content))
			if err != nil {
				t.Fatalf("Load failed: %v", err)
			}
			if cfg.Transport != "" || !cfg.Browser.IsHeadless() {
				t.Errorf("expected zero config, got %+v", cfg)
			}
		})
	}
}

func TestLoad_FileNotFound(t *testing.T) {
	_, err := Load("/nonexistent/specbridge.yaml")
	if err == nil || !strings.Contains(err.Error(), "not found") {
		t.Fatalf("err = %v, want not found", err)
	}
}

func TestLoadOptional(t *testing.T) {
	cfg, err := LoadOptional(filepath.Join(t.TempDir(), "missing.yaml"), false)
	if err != nil || cfg == nil {
		t.Fatalf("optional missing file: cfg=%v err=%v", cfg, err)
	}
	if _, err := LoadOptional(filepath.Join(t.TempDir(), "missing.yaml"), true); err == nil {
		t.Fatal("required missing file should fail")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	if _, err := Load(writeTemp(t, "{{invalid yaml")); err == nil {
		t.Fatal("expected error for invalid YAML")
	}
}

func TestLoad_EnvExpansion(t *testing.T) {
	t.Setenv("SPECBRIDGE_TEST_HOOK", "https://hooks.example.com/x")

	yaml := `adapter:
  type: webhook
  url: ${SPECBRIDGE_TEST_HOOK}
journal:
  backend: ${SPECBRIDGE_TEST_UNSET:-fs}
`
	cfg, err := Load(writeTemp(t, yaml))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	assertEqual(t, "adapter.url", cfg.Adapter.URL, "https://hooks.example.com/x")
	assertEqual(t, "journal.backend", cfg.Journal.Backend, JournalFS)
}

func TestLoad_UnknownKeysRejected(t *testing.T) {
	tests := map[string]string{
		"bogus_key":     "transport: stdio\nbogus_key: x\n",
		"unknown_field": "journal:\n  backend: fs\n  unknown_field: bad\n",
	}
	for key, yaml := range tests {
		t.Run(key, func(t *testing.T) {
			_, err := Load(writeTemp(t, yaml))
			if err == nil {
				t.Fatal("expected error for unknown key")
			}
			if !strings.Contains(err.Error(), key) {
				t.Errorf("error should mention %s, got: %v", key, err)
			}
		})
	}
}

func TestValidate(t *testing.T) {
	negative := -1
	tests := []struct {
		name    string
		cfg     Config
		wantErr string
	}{
		{"zero", Config{}, ""},
		{"bad transport", Config{Transport: "carrier-pigeon"}, "transport"},
		{"bad evaluator", Config{Evaluator: "js"}, "evaluator"},
		{"bad backend", Config{Journal: JournalConfig{Backend: "gcs"}}, "journal.backend"},
		{"s3 needs path", Config{Journal: JournalConfig{Backend: JournalS3}}, "journal.path"},
		{"adapter needs url", Config{Adapter: AdapterConfig{Type: AdapterRedis}}, "adapter.url"},
		{"negative retries", Config{Adapter: AdapterConfig{Retries: &negative}}, "adapter.retries"},
		{"retain_for on webhook", Config{Adapter: AdapterConfig{Type: AdapterWebhook, URL: "http://x", RetainFor: Duration{time.Minute}}}, "retain_for"},
		{"retain_for on redis", Config{Adapter: AdapterConfig{Type: AdapterRedis, URL: "redis://x:6379", RetainFor: Duration{time.Minute}}}, ""},
		{"bad level", Config{Log: LogConfig{Level: "loud"}}, "log.level"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.cfg.Validate()
			if tc.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
				t.Errorf("err = %v, want mention of %s", err, tc.wantErr)
			}
		})
	}
}

func TestLoad_RetriesZeroDistinctFromNil(t *testing.T) {
	cfg, err := Load(writeTemp(t, "adapter:\n  type: webhook\n  url: https://example.com\n  retries: 0\n"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Adapter.Retries == nil || *cfg.Adapter.Retries != 0 {
		t.Fatalf("retries = %v, want *0", cfg.Adapter.Retries)
	}

	cfg, err = Load(writeTemp(t, "adapter:\n  type: webhook\n  url: https://example.com\n"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Adapter.Retries != nil {
		t.Errorf("omitted retries = %d, want nil", *cfg.Adapter.Retries)
	}
}

func TestDuration(t *testing.T) {
	if _, err := Load(writeTemp(t, "adapter:\n  timeout: not-a-duration\n")); err == nil ||
		!strings.Contains(err.Error(), "invalid duration") {
		t.Errorf("err = %v, want invalid duration", err)
	}

	cfg, err := Load(writeTemp(t, "adapter:\n  timeout: \"\"\n"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Adapter.Timeout.Duration != 0 {
		t.Errorf("empty duration = %v, want 0", cfg.Adapter.Timeout.Duration)
	}

	out, err := Duration{Duration: 90 * time.Second}.MarshalYAML()
	if err != nil || out != "1m30s" {
		t.Errorf("MarshalYAML = %v, %v", out, err)
	}
}

// writeTemp writes content to a temp file and returns the path.
func writeTemp(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "specbridge.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write temp file: %v", err)
	}
	return path
}

func assertEqual(t *testing.T, field, got, want string) {
	t.Helper()
	if got != want {
		t.Errorf("%s: got %q, want %q", field, got, want)
	}
}
