package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

var coordinatorKeys = []string{
	"FAVTUBE_API_BASE",
	"CHROMIUM_CDP_ADDRESS",
	"CHROMIUM_CDP_PORT",
	"COORDINATOR_CDP_DRIVER",
	"COORDINATOR_TAB_URL_FILTER",
	"COORDINATOR_POLL_INTERVAL_MS",
	"COORDINATOR_EVAL_TIMEOUT_MS",
	"COORDINATOR_BACKEND_TIMEOUT_MS",
	"COORDINATOR_BIND_ADDR",
	"COORDINATOR_PORT_CANDIDATES",
	"COORDINATOR_PORT_AUTO_FALLBACK",
	"COORDINATOR_LOG_LEVEL",
	"COORDINATOR_LOG_FILE",
	"COORDINATOR_JOURNAL_DIR",
	"COORDINATOR_NTFY_ENDPOINT",
	"COORDINATOR_LAUNCH_BROWSER",
	"COORDINATOR_START_URL",
	"COORDINATOR_PROFILE_DIR",
	"COORDINATOR_CONFIG_FILE",
}

// clearEnv blanks every coordinator key; t.Setenv restores them afterwards,
// which also undoes values exported by an overlay.
func clearEnv(t *testing.T) {
	t.Helper()
	t.Chdir(t.TempDir())
	for _, k := range coordinatorKeys {
		t.Setenv(k, "")
	}
}

func TestLoadCoordinatorDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := LoadCoordinator()
	if err != nil {
		t.Fatalf("LoadCoordinator: %v", err)
	}
	if cfg.APIBase != "http://localhost:8080" {
		t.Fatalf("APIBase = %q", cfg.APIBase)
	}
	if cfg.CDPURL() != "http://127.0.0.1:9222" {
		t.Fatalf("CDPURL = %q", cfg.CDPURL())
	}
	if cfg.CDPDriver != DriverRaw {
		t.Fatalf("CDPDriver = %q", cfg.CDPDriver)
	}
	if cfg.TabURLFilter != "youtube.com" {
		t.Fatalf("TabURLFilter = %q", cfg.TabURLFilter)
	}
	if cfg.PollInterval() != 800*time.Millisecond {
		t.Fatalf("PollInterval = %s", cfg.PollInterval())
	}
	if cfg.BindAddr != "127.0.0.1:8190" {
		t.Fatalf("BindAddr = %q", cfg.BindAddr)
	}
	if cfg.JournalDir != "" || cfg.NtfyEndpoint != "" {
		t.Fatalf("journal/ntfy should default to disabled: %+v", cfg)
	}
	if cfg.LaunchBrowser {
		t.Fatal("LaunchBrowser should default to false")
	}
}

func TestLoadCoordinatorEnvAndClamps(t *testing.T) {
	clearEnv(t)
	t.Setenv("FAVTUBE_API_BASE", "http://backend:9000/")
	t.Setenv("COORDINATOR_CDP_DRIVER", "ChromeDP")
	t.Setenv("COORDINATOR_POLL_INTERVAL_MS", "10")
	t.Setenv("COORDINATOR_EVAL_TIMEOUT_MS", "50")
	t.Setenv("COORDINATOR_PORT_CANDIDATES", " 127.0.0.1:1, ,127.0.0.1:2 ")
	t.Setenv("COORDINATOR_LOG_LEVEL", "DEBUG")

	cfg, err := LoadCoordinator()
	if err != nil {
		t.Fatalf("LoadCoordinator: %v", err)
	}
	if cfg.APIBase != "http://backend:9000" {
		t.Fatalf("APIBase should drop the trailing slash, got %q", cfg.APIBase)
	}
	if cfg.CDPDriver != DriverChromedp {
		t.Fatalf("CDPDriver = %q", cfg.CDPDriver)
	}
	if cfg.PollIntervalMS != 100 || cfg.EvalTimeoutMS != 1000 {
		t.Fatalf("clamps not applied: poll=%d eval=%d", cfg.PollIntervalMS, cfg.EvalTimeoutMS)
	}
	if len(cfg.PortCandidates) != 2 || cfg.PortCandidates[1] != "127.0.0.1:2" {
		t.Fatalf("PortCandidates = %v", cfg.PortCandidates)
	}
	if cfg.LogLevel != "debug" {
		t.Fatalf("LogLevel = %q", cfg.LogLevel)
	}
}

func TestLoadCoordinatorRejectsBadValues(t *testing.T) {
	tests := []struct {
		key, val string
	}{
		{"FAVTUBE_API_BASE", "localhost:8080"},
		{"FAVTUBE_API_BASE", "ftp://host"},
		{"COORDINATOR_CDP_DRIVER", "puppeteer"},
		{"CHROMIUM_CDP_PORT", "70000"},
	}
	for _, tc := range tests {
		t.Run(tc.key+"="+tc.val, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(tc.key, tc.val)
			if _, err := LoadCoordinator(); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestLoadCoordinatorOverlayEnvironmentWins(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "coordinator.yaml")
	body := `
favtube_api_base: http://overlay:8080
COORDINATOR_POLL_INTERVAL_MS: 1500
COORDINATOR_LAUNCH_BROWSER: true
COORDINATOR_PORT_CANDIDATES: ["127.0.0.1:9001", "127.0.0.1:9002"]
COORDINATOR_BIND_ADDR: 127.0.0.1:7000
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("COORDINATOR_CONFIG_FILE", path)
	t.Setenv("COORDINATOR_BIND_ADDR", "127.0.0.1:7777")

	cfg, err := LoadCoordinator()
	if err != nil {
		t.Fatalf("LoadCoordinator: %v", err)
	}
	if cfg.APIBase != "http://overlay:8080" {
		t.Fatalf("APIBase = %q", cfg.APIBase)
	}
	if cfg.PollIntervalMS != 1500 || !cfg.LaunchBrowser {
		t.Fatalf("overlay values not applied: %+v", cfg)
	}
	if len(cfg.PortCandidates) != 2 || cfg.PortCandidates[0] != "127.0.0.1:9001" {
		t.Fatalf("PortCandidates = %v", cfg.PortCandidates)
	}
	if cfg.BindAddr != "127.0.0.1:7777" {
		t.Fatalf("environment should win over overlay, got %q", cfg.BindAddr)
	}
	if cfg.ConfigFile != path {
		t.Fatalf("ConfigFile = %q", cfg.ConfigFile)
	}
}

func TestLoadCoordinatorMissingOverlayIsSkipped(t *testing.T) {
	clearEnv(t)
	t.Setenv("COORDINATOR_CONFIG_FILE", filepath.Join(t.TempDir(), "absent.yaml"))

	if _, err := LoadCoordinator(); err != nil {
		t.Fatalf("missing overlay should be skipped, got %v", err)
	}
}

func TestLoadOverlayErrors(t *testing.T) {
	dir := t.TempDir()

	if _, err := LoadOverlay(filepath.Join(dir, "nope.yaml")); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected ErrNotExist, got %v", err)
	}

	bad := filepath.Join(dir, "bad.yaml")
	if err := os.WriteFile(bad, []byte("a: [1, 2\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadOverlay(bad); err == nil {
		t.Fatal("expected parse error")
	}

	nested := filepath.Join(dir, "nested.yaml")
	if err := os.WriteFile(nested, []byte("FAVTUBE_API_BASE:\n  host: x\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadOverlay(nested); err == nil {
		t.Fatal("expected nested map to be rejected")
	}
}
