package authsession

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/rvpalivoda/authsession/session"
)

// Config holds every tunable of a Session. Start from DefaultConfig and
// set HTTP.BaseURL.
type Config struct {
	HTTP      HTTPConfig
	Endpoints EndpointsConfig
	Storage   StorageConfig
	Renewal   RenewalConfig
	Profile   ProfileConfig
	Logout    LogoutConfig
	Audit     AuditConfig
	Metrics   MetricsConfig
}

/*
====================================
HTTP CONFIG
====================================
*/

// HTTPConfig configures the request transport.
type HTTPConfig struct {
	BaseURL   string
	Timeout   time.Duration
	UserAgent string
	// Tracing wraps outgoing requests with OpenTelemetry spans.
	Tracing bool
}

// EndpointsConfig holds the server paths, relative to HTTP.BaseURL.
// RecoveryChallenge must contain the {username} placeholder.
type EndpointsConfig struct {
	Login             string
	Register          string
	RecoveryChallenge string
	Recover           string
	Refresh           string
	Logout            string
	Profile           string
	RegenerateWords   string
	ChangePassword    string
	VerifyPassword    string
	SetPinCode        string
	Enable2FA         string
	Verify2FA         string
	Disable2FA        string
}

/*
====================================
SESSION CONFIG
====================================
*/

// StorageConfig names the two persisted records.
type StorageConfig struct {
	TokenKey    string
	IdentityKey string
}

// RenewalConfig controls proactive renewal. When Proactive is set, a
// request whose access credential expires within Skew is preceded by a
// renewal instead of waiting for the 401.
type RenewalConfig struct {
	Proactive bool
	Skew      time.Duration
}

type ProfileConfig struct {
	FetchOnLogin bool
}

// LogoutConfig bounds the best-effort server notification.
type LogoutConfig struct {
	Timeout time.Duration
}

/*
====================================
OBSERVABILITY CONFIG
====================================
*/

// AuditConfig configures the asynchronous audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig toggles in-process counters and the request latency
// histogram.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

const usernamePlaceholder = "{username}"

// DefaultConfig returns the configuration for the stock server API. Only
// HTTP.BaseURL is left empty.
func DefaultConfig() Config {
	return Config{
		HTTP: HTTPConfig{
			Timeout:   15 * time.Second,
			UserAgent: "authsession",
		},
		Endpoints: EndpointsConfig{
			Login:             "/auth/login",
			Register:          "/auth/register",
			RecoveryChallenge: "/auth/recover/" + usernamePlaceholder,
			Recover:           "/auth/recover",
			Refresh:           "/auth/refresh",
			Logout:            "/auth/logout",
			Profile:           "/auth/profile",
			RegenerateWords:   "/auth/mnemonic/regenerate",
			ChangePassword:    "/auth/password",
			VerifyPassword:    "/auth/verify-password",
			SetPinCode:        "/auth/pincode",
			Enable2FA:         "/auth/2fa/enable",
			Verify2FA:         "/auth/2fa/verify",
			Disable2FA:        "/auth/2fa/disable",
		},
		Storage: StorageConfig{
			TokenKey:    session.DefaultTokenKey,
			IdentityKey: session.DefaultIdentityKey,
		},
		Renewal: RenewalConfig{
			Proactive: false,
			Skew:      30 * time.Second,
		},
		Profile: ProfileConfig{
			FetchOnLogin: false,
		},
		Logout: LogoutConfig{
			Timeout: 5 * time.Second,
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 256,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 false,
			EnableLatencyHistograms: false,
		},
	}
}

// cloneConfig returns a detached copy of cfg.
func cloneConfig(cfg Config) Config {
	return cfg
}

/*
====================================
VALIDATION
====================================
*/

// Validate reports the first configuration problem found.
func (c *Config) Validate() error {
	// HTTP
	if strings.TrimSpace(c.HTTP.BaseURL) == "" {
		return errors.New("HTTP BaseURL is required")
	}
	u, err := url.Parse(c.HTTP.BaseURL)
	if err != nil {
		return fmt.Errorf("HTTP BaseURL is invalid: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return errors.New("HTTP BaseURL must use http or https")
	}
	if u.Host == "" {
		return errors.New("HTTP BaseURL must include a host")
	}
	if c.HTTP.Timeout < 0 {
		return errors.New("HTTP Timeout must be >= 0")
	}

	// Endpoints
	for _, ep := range []struct {
		name, path string
	}{
		{"Login", c.Endpoints.Login},
		{"Register", c.Endpoints.Register},
		{"RecoveryChallenge", c.Endpoints.RecoveryChallenge},
		{"Recover", c.Endpoints.Recover},
		{"Refresh", c.Endpoints.Refresh},
		{"Logout", c.Endpoints.Logout},
		{"Profile", c.Endpoints.Profile},
		{"RegenerateWords", c.Endpoints.RegenerateWords},
		{"ChangePassword", c.Endpoints.ChangePassword},
		{"VerifyPassword", c.Endpoints.VerifyPassword},
		{"SetPinCode", c.Endpoints.SetPinCode},
		{"Enable2FA", c.Endpoints.Enable2FA},
		{"Verify2FA", c.Endpoints.Verify2FA},
		{"Disable2FA", c.Endpoints.Disable2FA},
	} {
		if !strings.HasPrefix(ep.path, "/") {
			return fmt.Errorf("Endpoints %s must be an absolute path", ep.name)
		}
	}
	if !strings.Contains(c.Endpoints.RecoveryChallenge, usernamePlaceholder) {
		return errors.New("Endpoints RecoveryChallenge must contain " + usernamePlaceholder)
	}

	// Storage
	if c.Storage.TokenKey == "" || c.Storage.IdentityKey == "" {
		return errors.New("Storage keys must be non-empty")
	}
	if c.Storage.TokenKey == c.Storage.IdentityKey {
		return errors.New("Storage TokenKey and IdentityKey must differ")
	}

	// Renewal
	if c.Renewal.Skew < 0 {
		return errors.New("Renewal Skew must be >= 0")
	}
	if c.Renewal.Proactive && c.Renewal.Skew > time.Hour {
		return errors.New("Renewal Skew must be <= 1h when Proactive is enabled")
	}

	// Logout
	if c.Logout.Timeout <= 0 {
		return errors.New("Logout Timeout must be > 0")
	}

	// Audit
	if c.Audit.BufferSize < 0 {
		return errors.New("Audit BufferSize must be >= 0")
	}

	return nil
}
