package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// CDP drivers selectable with COORDINATOR_CDP_DRIVER.
const (
	DriverRaw      = "raw"
	DriverChromedp = "chromedp"
)

// CoordinatorConfig holds configuration for the FavTube coordinator daemon.
type CoordinatorConfig struct {
	APIBase          string
	CDPAddress       string
	CDPPort          int
	CDPDriver        string
	TabURLFilter     string
	PollIntervalMS   int
	EvalTimeoutMS    int
	BackendTimeoutMS int

	BindAddr         string
	PortCandidates   []string
	PortAutoFallback bool

	LogLevel string
	LogFile  string

	JournalDir   string
	NtfyEndpoint string

	LaunchBrowser bool
	StartURL      string
	ProfileDir    string

	ConfigFile string
}

// LoadCoordinator reads coordinator configuration. Sources in increasing
// precedence: defaults, the YAML file named by COORDINATOR_CONFIG_FILE, .env,
// and the process environment.
func LoadCoordinator() (*CoordinatorConfig, error) {
	loadDotEnv()

	path := os.Getenv("COORDINATOR_CONFIG_FILE")
	if path != "" {
		overlay, err := LoadOverlay(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
			slog.Warn("config overlay not found, skipping", "path", path)
		case err != nil:
			return nil, err
		default:
			if err := overlay.apply(); err != nil {
				return nil, err
			}
		}
	}

	cfg := &CoordinatorConfig{
		APIBase:          strings.TrimRight(getEnvOrDefault("FAVTUBE_API_BASE", "http://localhost:8080"), "/"),
		CDPAddress:       getEnvOrDefault("CHROMIUM_CDP_ADDRESS", "127.0.0.1"),
		CDPPort:          getEnvIntOrDefault("CHROMIUM_CDP_PORT", 9222),
		CDPDriver:        strings.ToLower(getEnvOrDefault("COORDINATOR_CDP_DRIVER", DriverRaw)),
		TabURLFilter:     getEnvOrDefault("COORDINATOR_TAB_URL_FILTER", "youtube.com"),
		PollIntervalMS:   getEnvIntOrDefault("COORDINATOR_POLL_INTERVAL_MS", 800),
		EvalTimeoutMS:    getEnvIntOrDefault("COORDINATOR_EVAL_TIMEOUT_MS", 5000),
		BackendTimeoutMS: getEnvIntOrDefault("COORDINATOR_BACKEND_TIMEOUT_MS", 10000),
		BindAddr:         getEnvOrDefault("COORDINATOR_BIND_ADDR", "127.0.0.1:8190"),
		PortCandidates:   getEnvListOrDefault("COORDINATOR_PORT_CANDIDATES", []string{"127.0.0.1:8191", "127.0.0.1:8192"}),
		PortAutoFallback: getEnvBoolOrDefault("COORDINATOR_PORT_AUTO_FALLBACK", true),
		LogLevel:         strings.ToLower(getEnvOrDefault("COORDINATOR_LOG_LEVEL", "info")),
		LogFile:          getEnvOrDefault("COORDINATOR_LOG_FILE", "logs/favtube_coordinator.log"),
		JournalDir:       os.Getenv("COORDINATOR_JOURNAL_DIR"),
		NtfyEndpoint:     os.Getenv("COORDINATOR_NTFY_ENDPOINT"),
		LaunchBrowser:    getEnvBoolOrDefault("COORDINATOR_LAUNCH_BROWSER", false),
		StartURL:         getEnvOrDefault("COORDINATOR_START_URL", "https://www.youtube.com/"),
		ProfileDir:       getEnvOrDefault("COORDINATOR_PROFILE_DIR", "./browser_profile"),
		ConfigFile:       path,
	}
	if cfg.PollIntervalMS < 100 {
		cfg.PollIntervalMS = 100
	}
	if cfg.EvalTimeoutMS < 1000 {
		cfg.EvalTimeoutMS = 1000
	}
	if cfg.BackendTimeoutMS < 1000 {
		cfg.BackendTimeoutMS = 1000
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *CoordinatorConfig) validate() error {
	u, err := url.Parse(c.APIBase)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Errorf("FAVTUBE_API_BASE must be an http(s) URL, got %q", c.APIBase)
	}
	if c.CDPDriver != DriverRaw && c.CDPDriver != DriverChromedp {
		return fmt.Errorf("COORDINATOR_CDP_DRIVER must be %q or %q, got %q", DriverRaw, DriverChromedp, c.CDPDriver)
	}
	if c.CDPPort <= 0 || c.CDPPort > 65535 {
		return fmt.Errorf("CHROMIUM_CDP_PORT out of range: %d", c.CDPPort)
	}
	return nil
}

// CDPURL returns the CDP HTTP endpoint.
func (c *CoordinatorConfig) CDPURL() string {
	return "http://" + c.CDPAddress + ":" + strconv.Itoa(c.CDPPort)
}

// PollInterval returns the location poll interval.
func (c *CoordinatorConfig) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalMS) * time.Millisecond
}

// EvalTimeout returns the per-evaluation CDP timeout.
func (c *CoordinatorConfig) EvalTimeout() time.Duration {
	return time.Duration(c.EvalTimeoutMS) * time.Millisecond
}

// BackendTimeout returns the HTTP client timeout for backend calls.
func (c *CoordinatorConfig) BackendTimeout() time.Duration {
	return time.Duration(c.BackendTimeoutMS) * time.Millisecond
}
