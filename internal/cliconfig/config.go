// Package cliconfig assembles the agent configuration from its three layers:
// TOML file, MEDLINK_* environment variables, and command-line flags. An
// explicitly set flag always wins over file and environment values.
package cliconfig

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/medlink-labs/medlink/internal/domain"
)

// DefaultAPIURL is the default clinic API endpoint.
const DefaultAPIURL = "https://api.medlink.example.com"

// Config holds the complete agent configuration.
type Config struct {
	APIURL     string `validate:"required,url"`
	APIKey     string `validate:"required"`
	ClinicID   string `validate:"required"`
	ClinicCode string

	WatchDir        string `validate:"required"`
	ProcessedDir    string
	FailedDir       string
	ExportDir       string
	DeleteOnSuccess bool

	Debounce          time.Duration
	MaxFileSize       int64
	MaxRetries        int
	RetryDelay        time.Duration
	HeartbeatInterval time.Duration
	PollInterval      time.Duration
	HTTPTimeout       time.Duration

	ExportEnabled     bool
	ExportFilePattern string

	StatusAddr string
	Once       bool
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() Config {
	return Config{
		APIURL:            DefaultAPIURL,
		APIKey:            os.Getenv("MEDLINK_API_KEY"),
		Debounce:          500 * time.Millisecond,
		MaxFileSize:       10 << 20,
		MaxRetries:        3,
		RetryDelay:        5 * time.Second,
		HeartbeatInterval: 60 * time.Second,
		PollInterval:      60 * time.Second,
		HTTPTimeout:       30 * time.Second,
		ExportFilePattern: "{clinic}_{timestamp}_{id}",
	}
}

var validate = validator.New()

// Validate checks the configuration and fills derived defaults.
func (c *Config) Validate() error {
	// Ensure no trailing slash
	if len(c.APIURL) > 0 && c.APIURL[len(c.APIURL)-1] == '/' {
		c.APIURL = c.APIURL[:len(c.APIURL)-1]
	}

	if c.ClinicCode == "" {
		c.ClinicCode = c.ClinicID
	}

	// Delete and move-to-processed are mutually exclusive dispositions.
	if c.DeleteOnSuccess {
		c.ProcessedDir = ""
	} else if c.ProcessedDir == "" && c.WatchDir != "" {
		c.ProcessedDir = filepath.Join(c.WatchDir, "processed")
	}
	if c.FailedDir == "" && c.WatchDir != "" {
		c.FailedDir = filepath.Join(c.WatchDir, "failed")
	}
	if c.ExportEnabled && c.ExportDir == "" {
		if c.WatchDir == "" {
			return fmt.Errorf("%w: export-dir is required when export is enabled", domain.ErrInvalidConfig)
		}
		c.ExportDir = filepath.Join(c.WatchDir, "export")
	}

	if c.Debounce <= 0 {
		return fmt.Errorf("%w: debounce must be positive", domain.ErrInvalidConfig)
	}
	if c.MaxRetries <= 0 {
		return fmt.Errorf("%w: max-retries must be positive", domain.ErrInvalidConfig)
	}
	if c.RetryDelay <= 0 {
		return fmt.Errorf("%w: retry-delay must be positive", domain.ErrInvalidConfig)
	}
	if c.HeartbeatInterval <= 0 {
		return fmt.Errorf("%w: heartbeat-interval must be positive", domain.ErrInvalidConfig)
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("%w: poll-interval must be positive", domain.ErrInvalidConfig)
	}

	if err := validate.Struct(c); err != nil {
		if errs, ok := err.(validator.ValidationErrors); ok && len(errs) > 0 {
			return fmt.Errorf("%w: %s failed %q", domain.ErrInvalidConfig, errs[0].Field(), errs[0].Tag())
		}
		return fmt.Errorf("%w: %v", domain.ErrInvalidConfig, err)
	}
	return nil
}

// configSetter helps apply configuration values while respecting flag precedence.
// It only applies values if the corresponding flag hasn't been explicitly set.
type configSetter struct {
	changed map[string]bool
}

// newConfigSetter creates a new setter with the given changed flags map.
func newConfigSetter(changed map[string]bool) *configSetter {
	return &configSetter{changed: changed}
}

// setString sets a string value if not empty and flag not changed.
func (s *configSetter) setString(flag, value string, dst *string) {
	if value == "" || s.changed[flag] {
		return
	}
	*dst = value
}

// setInt sets an int value if positive and flag not changed.
func (s *configSetter) setInt(flag string, value int, dst *int) {
	if value <= 0 || s.changed[flag] {
		return
	}
	*dst = value
}

// setInt64 sets an int64 value if positive and flag not changed.
func (s *configSetter) setInt64(flag string, value int64, dst *int64) {
	if value <= 0 || s.changed[flag] {
		return
	}
	*dst = value
}

// setDuration parses and sets a duration from string if valid and flag not changed.
func (s *configSetter) setDuration(flag, value string, dst *time.Duration) error {
	if value == "" || s.changed[flag] {
		return nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("parse %s: %w", flag, err)
	}
	*dst = d
	return nil
}

// setBool sets a bool value from a pointer if not nil and flag not changed.
func (s *configSetter) setBool(flag string, value *bool, dst *bool) {
	if value == nil || s.changed[flag] {
		return
	}
	*dst = *value
}

// setIntFromString parses a string to int and sets the destination if valid.
// Used for environment variables that come as strings.
func (s *configSetter) setIntFromString(flag, value string, dst *int) error {
	if value == "" || s.changed[flag] {
		return nil
	}
	i, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("parse %s: %w", flag, err)
	}
	if i <= 0 {
		return nil
	}
	*dst = i
	return nil
}

// setInt64FromString parses a string to int64 and sets the destination if valid.
func (s *configSetter) setInt64FromString(flag, value string, dst *int64) error {
	if value == "" || s.changed[flag] {
		return nil
	}
	i, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return fmt.Errorf("parse %s: %w", flag, err)
	}
	if i <= 0 {
		return nil
	}
	*dst = i
	return nil
}

// setBoolFromString parses a string to bool and sets the destination.
// Accepts "true", "1" as true, anything else as false.
// Used for environment variables that come as strings.
func (s *configSetter) setBoolFromString(flag, value string, dst *bool) {
	if value == "" || s.changed[flag] {
		return
	}
	*dst = value == "true" || value == "1"
}
