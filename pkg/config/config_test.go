package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/caarlos0/env/v10"
)

const validSettings = `{
	"Address": "https://grpc-staging.kodypay.com",
	"StoreId": "5fa2dd05-1805-494d-b843-fa1a7c34cf8a",
	"ApiKey": "secret"
}`

// writeSettings creates fileName with content under dir.
func writeSettings(t *testing.T, dir, fileName, content string) string {
	t.Helper()
	path := filepath.Join(dir, fileName)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write settings: %v", err)
	}
	return path
}

func TestFindFileInDirectoryOrParents(t *testing.T) {
	root := t.TempDir()
	nested := filepath.Join(root, "a", "b", "c")
	if err := os.MkdirAll(nested, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	want := writeSettings(t, filepath.Join(root, "a"), DefaultSettingsFile, validSettings)

	got := FindFileInDirectoryOrParents(nested, DefaultSettingsFile)
	if got != want {
		t.Fatalf("FindFileInDirectoryOrParents() = %q, want %q", got, want)
	}

	if got := FindFileInDirectoryOrParents(nested, "missing-kody-settings.json"); got != "" {
		t.Fatalf("expected no match, got %q", got)
	}
}

func TestFindFileInDirectoryOrParents_PrefersClosest(t *testing.T) {
	root := t.TempDir()
	nested := filepath.Join(root, "child")
	if err := os.MkdirAll(nested, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	writeSettings(t, root, DefaultSettingsFile, validSettings)
	want := writeSettings(t, nested, DefaultSettingsFile, validSettings)

	if got := FindFileInDirectoryOrParents(nested, DefaultSettingsFile); got != want {
		t.Fatalf("got %q, want closest %q", got, want)
	}
}

func TestLoadSettingsFrom(t *testing.T) {
	root := t.TempDir()
	nested := filepath.Join(root, "samples", "payment")
	if err := os.MkdirAll(nested, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	writeSettings(t, root, DefaultSettingsFile, validSettings)

	s, err := LoadSettingsFrom(nested, "", env.Options{Environment: map[string]string{}})
	if err != nil {
		t.Fatalf("LoadSettingsFrom: %v", err)
	}
	if s.Address != "https://grpc-staging.kodypay.com" {
		t.Fatalf("unexpected Address: %s", s.Address)
	}
	if s.StoreID != "5fa2dd05-1805-494d-b843-fa1a7c34cf8a" {
		t.Fatalf("unexpected StoreID: %s", s.StoreID)
	}
	if s.APIKey != "secret" {
		t.Fatalf("unexpected APIKey: %s", s.APIKey)
	}
	if err := s.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if s.Store().String() != s.StoreID {
		t.Fatalf("Store() = %s, want %s", s.Store(), s.StoreID)
	}
}

func TestLoadSettingsFrom_EnvironmentOverrides(t *testing.T) {
	dir := t.TempDir()
	writeSettings(t, dir, DefaultSettingsFile, validSettings)

	s, err := LoadSettingsFrom(dir, DefaultSettingsFile, env.Options{Environment: map[string]string{
		"KODY_API_KEY": "from-env",
	}})
	if err != nil {
		t.Fatalf("LoadSettingsFrom: %v", err)
	}
	if s.APIKey != "from-env" {
		t.Fatalf("APIKey = %q, want env override", s.APIKey)
	}
	if s.Address != "https://grpc-staging.kodypay.com" {
		t.Fatalf("Address should keep file value, got %q", s.Address)
	}
}

func TestLoadSettingsFrom_NotFound(t *testing.T) {
	_, err := LoadSettingsFrom(t.TempDir(), "missing-kody-settings.json", env.Options{})
	if !errors.Is(err, ErrSettingsNotFound) {
		t.Fatalf("expected ErrSettingsNotFound, got %v", err)
	}
}

func TestLoadSettingsFrom_InvalidJSON(t *testing.T) {
	dir := t.TempDir()
	writeSettings(t, dir, DefaultSettingsFile, `{"Address": `)

	_, err := LoadSettingsFrom(dir, DefaultSettingsFile, env.Options{})
	if err == nil {
		t.Fatal("expected decode error")
	}
	if errors.Is(err, ErrSettingsNotFound) {
		t.Fatalf("decode error must not look like a missing file: %v", err)
	}
}

func TestSettingsValidate(t *testing.T) {
	tests := []struct {
		name    string
		s       Settings
		wantErr bool
	}{
		{
			name: "valid",
			s:    Settings{Address: "https://grpc.kodypay.com", StoreID: "5fa2dd05-1805-494d-b843-fa1a7c34cf8a", APIKey: "k"},
		},
		{
			name:    "missing address",
			s:       Settings{StoreID: "5fa2dd05-1805-494d-b843-fa1a7c34cf8a", APIKey: "k"},
			wantErr: true,
		},
		{
			name:    "bare host without port",
			s:       Settings{Address: "grpc.kodypay.com", StoreID: "5fa2dd05-1805-494d-b843-fa1a7c34cf8a", APIKey: "k"},
			wantErr: true,
		},
		{
			name: "host and port without scheme",
			s:    Settings{Address: "localhost:9090", StoreID: "5fa2dd05-1805-494d-b843-fa1a7c34cf8a", APIKey: "k"},
		},
		{
			name: "plaintext uri",
			s:    Settings{Address: "http://127.0.0.1:8080", StoreID: "5fa2dd05-1805-494d-b843-fa1a7c34cf8a", APIKey: "k"},
		},
		{
			name:    "port without host",
			s:       Settings{Address: ":9090", StoreID: "5fa2dd05-1805-494d-b843-fa1a7c34cf8a", APIKey: "k"},
			wantErr: true,
		},
		{
			name:    "uri without host",
			s:       Settings{Address: "https://", StoreID: "5fa2dd05-1805-494d-b843-fa1a7c34cf8a", APIKey: "k"},
			wantErr: true,
		},
		{
			name:    "unsupported scheme",
			s:       Settings{Address: "ftp://grpc.kodypay.com", StoreID: "5fa2dd05-1805-494d-b843-fa1a7c34cf8a", APIKey: "k"},
			wantErr: true,
		},
		{
			name:    "store id not a uuid",
			s:       Settings{Address: "https://grpc.kodypay.com", StoreID: "store-1", APIKey: "k"},
			wantErr: true,
		},
		{
			name:    "missing api key",
			s:       Settings{Address: "https://grpc.kodypay.com", StoreID: "5fa2dd05-1805-494d-b843-fa1a7c34cf8a"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.s.Validate()
			if tt.wantErr && err == nil {
				t.Fatal("expected error")
			}
			if !tt.wantErr && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

// TestTimeoutsWithDefaults verifies that WithDefaults preserves explicitly set
// timeout values and fills in defaults for zero values.
func TestTimeoutsWithDefaults(t *testing.T) {
	in := Timeouts{
		Request: time.Second,
	}

	out := in.WithDefaults()

	if out.Request != time.Second {
		t.Fatalf("Request overwritten: got %v", out.Request)
	}
	if out.Dial != 5*time.Second {
		t.Fatalf("Dial default mismatch: %v", out.Dial)
	}
	if out.Terminals != 30*time.Second {
		t.Fatalf("Terminals default mismatch: %v", out.Terminals)
	}

	if got := (Timeouts{}).WithDefaults().Request; got != 3*time.Minute {
		t.Fatalf("Request default mismatch: %v", got)
	}
}
