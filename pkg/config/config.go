package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/google/uuid"
)

// DefaultSettingsFile is the file name searched for by LoadSettings.
const DefaultSettingsFile = "appsettings.json"

// ErrSettingsNotFound is returned when the settings file exists neither in the
// starting directory nor in any of its parents.
var ErrSettingsNotFound = errors.New("settings file not found")

// Settings holds the values issued to a merchant integration. The JSON keys
// match the flat settings file shared with the other Kody samples.
//
// Each field can be overridden from the environment.
type Settings struct {
	// Address is the URI of the terminal service, e.g. "https://grpc.kodypay.com".
	Address string `json:"Address" env:"KODY_ADDRESS"`
	// StoreID is the UUID of the store the terminals belong to.
	StoreID string `json:"StoreId" env:"KODY_STORE_ID"`
	// APIKey is sent with every call in the X-API-Key header.
	APIKey string `json:"ApiKey" env:"KODY_API_KEY"`
}

// Validate checks that Address is either a URI with a host or a bare
// "host:port", StoreID is a UUID and APIKey is present.
func (s *Settings) Validate() error {
	if s.Address == "" {
		return errors.New("address is required")
	}
	if err := validateAddress(s.Address); err != nil {
		return fmt.Errorf("invalid address %q: %w", s.Address, err)
	}
	if _, err := uuid.Parse(s.StoreID); err != nil {
		return fmt.Errorf("invalid store id %q: %w", s.StoreID, err)
	}
	if s.APIKey == "" {
		return errors.New("api key is required")
	}
	return nil
}

// validateAddress accepts the forms the transport dials: "https://host[:port]",
// "http://host:port" and "host:port" (plaintext).
func validateAddress(addr string) error {
	if !strings.Contains(addr, "://") {
		host, port, err := net.SplitHostPort(addr)
		if err != nil {
			return err
		}
		if host == "" || port == "" {
			return errors.New("expected host:port")
		}
		return nil
	}
	u, err := url.Parse(addr)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return errors.New("missing host")
	}
	return nil
}

// Store returns the parsed store UUID. Call Validate first.
func (s *Settings) Store() uuid.UUID {
	id, _ := uuid.Parse(s.StoreID)
	return id
}

// FindFileInDirectoryOrParents looks for fileName in dir and then in each
// parent directory up to the filesystem root. It returns the full path of the
// first match, or "" when there is none.
func FindFileInDirectoryOrParents(dir, fileName string) string {
	dir, err := filepath.Abs(dir)
	if err != nil {
		return ""
	}
	for {
		candidate := filepath.Join(dir, fileName)
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

// LoadSettings searches for fileName starting at the working directory and
// decodes it. An empty fileName means DefaultSettingsFile.
func LoadSettings(fileName string) (*Settings, error) {
	wd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("get working directory: %w", err)
	}
	return LoadSettingsFrom(wd, fileName, env.Options{})
}

// LoadSettingsFrom is LoadSettings with an explicit starting directory and
// environment options. Environment values take precedence over the file.
func LoadSettingsFrom(dir, fileName string, opts env.Options) (*Settings, error) {
	if fileName == "" {
		fileName = DefaultSettingsFile
	}
	path := FindFileInDirectoryOrParents(dir, fileName)
	if path == "" {
		return nil, fmt.Errorf("%w: %q in %s or any parent directory", ErrSettingsNotFound, fileName, dir)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read settings %s: %w", path, err)
	}

	var s Settings
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("decode settings %s: %w", path, err)
	}
	if err := env.ParseWithOptions(&s, opts); err != nil {
		return nil, fmt.Errorf("apply environment overrides: %w", err)
	}
	return &s, nil
}

// Timeouts controls client deadlines.
// Zero values will be replaced by defaults in WithDefaults.
type Timeouts struct {
	Dial      time.Duration // connect (WithWaitReady) and health checks
	Request   time.Duration // Pay, Cancel and PaymentDetails
	Terminals time.Duration // Terminals
}

// WithDefaults returns a copy of t with zero values replaced by defaults:
//
//	Dial:      5s
//	Request:   3m
//	Terminals: 30s
func (t Timeouts) WithDefaults() Timeouts {
	tt := t
	if tt.Dial == 0 {
		tt.Dial = 5 * time.Second
	}
	if tt.Request == 0 {
		tt.Request = 3 * time.Minute
	}
	if tt.Terminals == 0 {
		tt.Terminals = 30 * time.Second
	}
	return tt
}
