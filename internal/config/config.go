// Package config holds the server configuration and its validation.
package config

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// Mode selects which WebDAV verbs the server offers.
type Mode string

const (
	ModeReadOnly  Mode = "read-only"
	ModeReadWrite Mode = "read-write"
)

// Config is the fully parsed server configuration.
type Config struct {
	// RootID is the id or share code of the folder exposed as "/". Empty
	// means the authenticated account's own root folder.
	RootID string

	// APIToken is a pre-existing bearer token. Empty means a guest account
	// is created on demand.
	APIToken string

	// Password is the plaintext folder password; it never leaves the
	// process unhashed.
	Password string

	Mode Mode
	Host string
	Port int

	// Bypass enables rewriting download links through the bypass proxy.
	Bypass bool

	// Auth is an optional "user:password" pair protecting the listener.
	Auth string

	LogLevel string
	LogFile  string
}

// Validate checks the configuration for values that cannot work.
func (c *Config) Validate() error {
	switch c.Mode {
	case ModeReadOnly, ModeReadWrite:
	default:
		return fmt.Errorf("invalid mode %q: must be %q or %q", c.Mode, ModeReadOnly, ModeReadWrite)
	}
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if c.Host == "" {
		return fmt.Errorf("host must not be empty")
	}
	if c.Auth != "" && !strings.Contains(c.Auth, ":") {
		return fmt.Errorf("auth must be in user:password form")
	}
	return nil
}

// ReadOnly reports whether mutating verbs are disabled.
func (c *Config) ReadOnly() bool {
	return c.Mode == ModeReadOnly
}

// PasswordHash returns the hex-encoded SHA-256 digest of the folder
// password, which is the form the API expects, or "" when no password is
// set.
func (c *Config) PasswordHash() string {
	if c.Password == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(c.Password))
	return hex.EncodeToString(sum[:])
}

// BasicAuth splits Auth into its user and password halves. The third
// return is false when no auth is configured.
func (c *Config) BasicAuth() (user, password string, ok bool) {
	if c.Auth == "" {
		return "", "", false
	}
	user, password, _ = strings.Cut(c.Auth, ":")
	return user, password, true
}
