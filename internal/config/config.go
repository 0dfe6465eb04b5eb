// Package config provides bridge configuration loaded from environment variables.
package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"

	"github.com/morezero/wallet-bridge/pkg/commsutil"
	"github.com/morezero/wallet-bridge/pkg/semver"
)

const logPrefix = "config:LoadConfig"

// Surface kinds accepted by SURFACE.
const (
	SurfaceChromedp  = "chromedp"
	SurfaceWebSocket = "websocket"
)

// Config holds wallet-bridge configuration.
type Config struct {
	// COMMS: connect to standalone NATS at COMMSURL.
	COMMSURL  string `envconfig:"COMMS_URL" default:"nats://127.0.0.1:4222"`
	COMMSName string `envconfig:"SERVICE_NAME" default:"wallet-bridge"`

	// Originator is stamped on every call envelope. Empty means "go_" + SERVICE_NAME.
	OriginatorOverride string `envconfig:"ORIGINATOR"`

	// Relay and event subjects. An empty BRIDGE_SUBJECT derives one from SERVICE_NAME.
	BridgeSubject       string        `envconfig:"BRIDGE_SUBJECT" default:"cap.cwi.bridge.v1"`
	BridgeQueue         string        `envconfig:"BRIDGE_QUEUE" default:"wallet-bridge"`
	EventSubject        string        `envconfig:"BRIDGE_EVENT_SUBJECT" default:"bridge.events"`
	RelayRequestTimeout time.Duration `envconfig:"RELAY_REQUEST_TIMEOUT" default:"65s"`

	// Page surface
	Surface             string        `envconfig:"SURFACE" default:"chromedp"`
	StartURL            string        `envconfig:"WEBVIEW_START_URL" default:"https://staging-mobile-portal.babbage.systems"`
	UserAgent           string        `envconfig:"WEBVIEW_USER_AGENT" default:"babbage-webview-inlay"`
	ChromeRemoteURL     string        `envconfig:"CHROME_REMOTE_URL"`
	ChromeHeadless      bool          `envconfig:"CHROME_HEADLESS" default:"true"`
	BrowserStartTimeout time.Duration `envconfig:"BROWSER_START_TIMEOUT" default:"30s"`
	WSSurfaceAddr       string        `envconfig:"WS_SURFACE_ADDR" default:"127.0.0.1:8787"`
	WSAllowedOrigins    []string      `envconfig:"WS_ALLOWED_ORIGINS"`

	// Calls
	CallTimeout      time.Duration `envconfig:"CALL_TIMEOUT" default:"60s"`
	DeliverTimeout   time.Duration `envconfig:"DELIVER_TIMEOUT" default:"10s"`
	LegacyProtocol   bool          `envconfig:"LEGACY_PROTOCOL" default:"false"`
	CatalogFile      string        `envconfig:"OPERATIONS_CATALOG_FILE"`
	MinWalletVersion string        `envconfig:"MIN_WALLET_VERSION"`

	// Database (call journal; empty URL disables it)
	DatabaseURL      string        `envconfig:"DATABASE_URL"`
	RunMigrations    bool          `envconfig:"RUN_MIGRATIONS" default:"false"`
	MigrationPath    string        `envconfig:"MIGRATION_PATH" default:"migrations"`
	JournalRetention time.Duration `envconfig:"JOURNAL_RETENTION" default:"0"`

	// HTTP health and metrics endpoint (BRIDGE_HTTP_ADDR preferred, e.g. "0.0.0.0:8080")
	HTTPAddr           string        `envconfig:"BRIDGE_HTTP_ADDR"`
	HTTPPort           int           `envconfig:"HTTP_PORT" default:"8080"`
	HealthCheckTimeout time.Duration `envconfig:"HEALTH_CHECK_TIMEOUT" default:"5s"`

	// Logging
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`
}

// LoadConfig loads configuration from environment variables.
func LoadConfig() (*Config, error) {
	var c Config
	if err := envconfig.Process("", &c); err != nil {
		return nil, err
	}
	return &c, nil
}

// Originator returns the originator stamped on call envelopes.
func (c *Config) Originator() string {
	if c.OriginatorOverride != "" {
		return c.OriginatorOverride
	}
	return "go_" + c.COMMSName
}

// RelaySubject returns the subject relay requests are served on.
func (c *Config) RelaySubject() string {
	if c.BridgeSubject != "" {
		return c.BridgeSubject
	}
	return commsutil.BuildBridgeSubject(c.COMMSName, 1)
}

// JournalEnabled reports whether calls are journaled to the database.
func (c *Config) JournalEnabled() bool {
	return c.DatabaseURL != ""
}

// ListenAddr returns the HTTP listen address.
func (c *Config) ListenAddr() string {
	if c.HTTPAddr != "" {
		return c.HTTPAddr
	}
	return fmt.Sprintf(":%d", c.HTTPPort)
}

// ValidateForServe checks required config when running the bridge.
func (c *Config) ValidateForServe() error {
	switch c.Surface {
	case SurfaceChromedp:
		if c.StartURL == "" {
			return fmt.Errorf("%s - WEBVIEW_START_URL is required for the chromedp surface", logPrefix)
		}
	case SurfaceWebSocket:
		if c.WSSurfaceAddr == "" {
			return fmt.Errorf("%s - WS_SURFACE_ADDR is required for the websocket surface", logPrefix)
		}
	default:
		return fmt.Errorf("%s - SURFACE must be %q or %q, got %q", logPrefix, SurfaceChromedp, SurfaceWebSocket, c.Surface)
	}
	if c.CallTimeout < 0 {
		return fmt.Errorf("%s - CALL_TIMEOUT must not be negative", logPrefix)
	}
	if c.RelayRequestTimeout <= 0 {
		return fmt.Errorf("%s - RELAY_REQUEST_TIMEOUT must be positive", logPrefix)
	}
	if c.DeliverTimeout <= 0 {
		return fmt.Errorf("%s - DELIVER_TIMEOUT must be positive", logPrefix)
	}
	if c.HealthCheckTimeout <= 0 {
		return fmt.Errorf("%s - HEALTH_CHECK_TIMEOUT must be positive", logPrefix)
	}
	if err := semver.ValidateConstraint(c.MinWalletVersion); err != nil {
		return fmt.Errorf("%s - MIN_WALLET_VERSION: %w", logPrefix, err)
	}
	return nil
}

// ValidateForDB checks required config when running DB-dependent commands (migrate).
func (c *Config) ValidateForDB() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("%s - DATABASE_URL is required", logPrefix)
	}
	return nil
}
