package config

import (
	"log/slog"
	"testing"
	"time"
)

func TestParseDefaults(t *testing.T) {
	cfg, err := Parse(map[string]string{})
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if cfg.Port != 8080 {
		t.Errorf("Port = %d, want 8080", cfg.Port)
	}
	if cfg.RefreshDelay != 2*time.Second {
		t.Errorf("RefreshDelay = %v, want 2s", cfg.RefreshDelay)
	}
	if cfg.TokenStore != TokenStoreSQLite {
		t.Errorf("TokenStore = %q, want sqlite", cfg.TokenStore)
	}
	if cfg.APIBaseURL() != DefaultAPIURL {
		t.Errorf("APIBaseURL() = %q, want %q", cfg.APIBaseURL(), DefaultAPIURL)
	}
	if cfg.IsAPIConfigured() {
		t.Error("IsAPIConfigured() = true with no API_URL set")
	}
}

func TestIsAPIConfigured(t *testing.T) {
	tests := []struct {
		name    string
		environ map[string]string
		want    bool
	}{
		{"unset", map[string]string{}, false},
		{"default placeholder", map[string]string{"API_URL": DefaultAPIURL}, false},
		{"default placeholder with slash", map[string]string{"API_URL": DefaultAPIURL + "/"}, false},
		{"frontend port placeholder", map[string]string{"API_URL": "http://localhost:3000/api"}, false},
		{"real url", map[string]string{"API_URL": "https://api.devfolio.example/api"}, true},
		{"loopback ip", map[string]string{"API_URL": "http://127.0.0.1:8000/api"}, true},
		{"legacy variable", map[string]string{"NEXT_PUBLIC_API_URL": "https://api.devfolio.example/api"}, true},
		{
			"API_URL wins over legacy",
			map[string]string{"API_URL": "http://localhost:3000", "NEXT_PUBLIC_API_URL": "https://api.devfolio.example/api"},
			false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Parse(tt.environ)
			if err != nil {
				t.Fatalf("Parse() error = %v", err)
			}
			if got := cfg.IsAPIConfigured(); got != tt.want {
				t.Errorf("IsAPIConfigured() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestParseRejectsInvalid(t *testing.T) {
	tests := []struct {
		name    string
		environ map[string]string
	}{
		{"short secret", map[string]string{"SESSION_SECRET": "short"}},
		{"bad port", map[string]string{"PORT": "70000"}},
		{"unknown token store", map[string]string{"TOKEN_STORE": "memcached"}},
		{"non-numeric port", map[string]string{"PORT": "eighty"}},
		{"zero client max", map[string]string{"CLIENT_MAX": "0"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Parse(tt.environ); err == nil {
				t.Fatal("Parse() should have returned an error")
			}
		})
	}
}

func TestSlogLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"WARN":    slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for in, want := range tests {
		if got := (Config{LogLevel: in}).SlogLevel(); got != want {
			t.Errorf("SlogLevel(%q) = %v, want %v", in, got, want)
		}
	}
}
