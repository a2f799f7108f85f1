package config

import (
	"testing"
	"time"
)

func TestFromEnvDefaults(t *testing.T) {
	t.Setenv("GIN_MODE", "debug")
	t.Setenv("JWT_SECRET", "")
	t.Setenv("JWT_EXPIRES_IN", "")
	t.Setenv("SLOW_QUERY_THRESHOLD", "")
	t.Setenv("STORAGE_DRIVER", "")

	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}
	if cfg.Auth.JWTSecret != defaultJWTSecret {
		t.Errorf("Expected development secret fallback, got %q", cfg.Auth.JWTSecret)
	}
	if cfg.Auth.JWTExpiresIn != 7*24*time.Hour {
		t.Errorf("Expected 7 day expiry, got %v", cfg.Auth.JWTExpiresIn)
	}
	if cfg.Database.SlowQueryThreshold != 200*time.Millisecond {
		t.Errorf("Expected 200ms slow query threshold, got %v", cfg.Database.SlowQueryThreshold)
	}
	if cfg.Storage.Driver != "local" {
		t.Errorf("Expected local storage driver, got %q", cfg.Storage.Driver)
	}
	if cfg.Extraction.MaxAttempts != 3 {
		t.Errorf("Expected 3 extraction attempts, got %d", cfg.Extraction.MaxAttempts)
	}
}

func TestFromEnvRequiresSecretInRelease(t *testing.T) {
	t.Setenv("GIN_MODE", "release")
	t.Setenv("JWT_SECRET", "")

	if _, err := FromEnv(); err == nil {
		t.Fatal("Expected error when JWT_SECRET is missing in release mode")
	}
}

func TestFromEnvOverrides(t *testing.T) {
	t.Setenv("GIN_MODE", "debug")
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("JWT_EXPIRES_IN", "12h")
	t.Setenv("SLOW_QUERY_THRESHOLD", "1s")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("CORS_ORIGINS", "https://a.example, https://b.example")

	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}
	if cfg.Auth.JWTExpiresIn != 12*time.Hour {
		t.Errorf("Expected 12h, got %v", cfg.Auth.JWTExpiresIn)
	}
	if cfg.Database.SlowQueryThreshold != time.Second {
		t.Errorf("Expected 1s, got %v", cfg.Database.SlowQueryThreshold)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Expected debug level, got %q", cfg.Log.Level)
	}
	if len(cfg.HTTP.CORSOrigins) != 2 || cfg.HTTP.CORSOrigins[1] != "https://b.example" {
		t.Errorf("Unexpected CORS origins %v", cfg.HTTP.CORSOrigins)
	}
}

func TestParseExpiry(t *testing.T) {
	tests := []struct {
		in      string
		want    time.Duration
		wantErr bool
	}{
		{"7d", 7 * 24 * time.Hour, false},
		{"1d", 24 * time.Hour, false},
		{"90m", 90 * time.Minute, false},
		{"", 7 * 24 * time.Hour, false},
		{"0d", 0, true},
		{"xd", 0, true},
		{"-1h", 0, true},
	}
	for _, tt := range tests {
		got, err := ParseExpiry(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseExpiry(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if !tt.wantErr && got != tt.want {
			t.Errorf("ParseExpiry(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestDatabaseDSN(t *testing.T) {
	tests := []struct {
		name string
		cfg  DatabaseConfig
		want string
	}{
		{"empty", DatabaseConfig{}, ""},
		{"ssl off", DatabaseConfig{URL: "postgres://u:p@h/db"}, "postgres://u:p@h/db?sslmode=disable"},
		{"ssl on", DatabaseConfig{URL: "postgres://u:p@h/db?x=1", SSL: true}, "postgres://u:p@h/db?x=1&sslmode=require"},
		{"explicit", DatabaseConfig{URL: "postgres://h/db?sslmode=verify-full", SSL: false}, "postgres://h/db?sslmode=verify-full"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.cfg.DSN(); got != tt.want {
				t.Errorf("Expected %q, got %q", tt.want, got)
			}
		})
	}
}
