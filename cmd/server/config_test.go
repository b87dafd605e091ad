package main

import (
	"flag"
	"os"
	"testing"
	"time"

	mbconfig "github.com/thenexusengine/tne_medbridge/internal/config"
)

// clearEnvVars removes every env var ParseConfig reads so tests start clean
func clearEnvVars() {
	vars := []string{
		"MEDBRIDGE_PORT",
		"VANTAGE_ENDPOINT",
		"VANTAGE_APP_ID",
		"VANTAGE_TEST_MODE",
		"REDIS_URL",
		"DB_HOST",
		"DB_PORT",
		"DB_USER",
		"DB_PASSWORD",
		"DB_NAME",
		"DB_SSL_MODE",
	}
	for _, v := range vars {
		os.Unsetenv(v)
	}
}

// resetFlags gives each test a fresh flag set; ParseConfig registers
// flags globally
func resetFlags() {
	flag.CommandLine = flag.NewFlagSet(os.Args[0], flag.ExitOnError)
	os.Args = []string{os.Args[0]}
}

func TestParseConfig_Defaults(t *testing.T) {
	clearEnvVars()
	resetFlags()

	cfg := ParseConfig()

	if cfg.Port != "8000" {
		t.Errorf("Expected default port '8000', got '%s'", cfg.Port)
	}
	if cfg.VantageEndpoint != "https://ads.vantage.io" {
		t.Errorf("Expected default endpoint, got '%s'", cfg.VantageEndpoint)
	}
	if cfg.VantageAppID != "" {
		t.Errorf("Expected empty app id, got '%s'", cfg.VantageAppID)
	}
	if cfg.TestMode {
		t.Error("Expected test mode to default off")
	}
	if cfg.LoadTimeout != mbconfig.DefaultLoadTimeout {
		t.Errorf("Expected load timeout %v, got %v", mbconfig.DefaultLoadTimeout, cfg.LoadTimeout)
	}
	if cfg.ShowTimeout != mbconfig.DefaultShowTimeout {
		t.Errorf("Expected show timeout %v, got %v", mbconfig.DefaultShowTimeout, cfg.ShowTimeout)
	}
	if cfg.TokenTTL != mbconfig.DefaultTokenTTL {
		t.Errorf("Expected token TTL %v, got %v", mbconfig.DefaultTokenTTL, cfg.TokenTTL)
	}
	if cfg.DatabaseConfig != nil {
		t.Error("Expected nil database config without DB_HOST")
	}
	if cfg.RedisURL != "" {
		t.Errorf("Expected empty redis URL, got '%s'", cfg.RedisURL)
	}
}

func TestParseConfig_EnvOverrides(t *testing.T) {
	clearEnvVars()
	resetFlags()

	os.Setenv("MEDBRIDGE_PORT", "9090")
	os.Setenv("VANTAGE_ENDPOINT", "https://staging.vantage.io")
	os.Setenv("VANTAGE_APP_ID", "app-42")
	os.Setenv("VANTAGE_TEST_MODE", "true")
	os.Setenv("REDIS_URL", "redis://localhost:6379")
	defer clearEnvVars()

	cfg := ParseConfig()

	if cfg.Port != "9090" {
		t.Errorf("Expected port '9090', got '%s'", cfg.Port)
	}
	if cfg.VantageEndpoint != "https://staging.vantage.io" {
		t.Errorf("Expected staging endpoint, got '%s'", cfg.VantageEndpoint)
	}
	if cfg.VantageAppID != "app-42" {
		t.Errorf("Expected app id 'app-42', got '%s'", cfg.VantageAppID)
	}
	if !cfg.TestMode {
		t.Error("Expected test mode enabled from env")
	}
	if cfg.RedisURL != "redis://localhost:6379" {
		t.Errorf("Expected redis URL from env, got '%s'", cfg.RedisURL)
	}
}

func TestParseConfig_DatabaseFromEnv(t *testing.T) {
	clearEnvVars()
	resetFlags()

	os.Setenv("DB_HOST", "db.internal")
	os.Setenv("DB_PORT", "5433")
	os.Setenv("DB_USER", "svc")
	os.Setenv("DB_PASSWORD", "secret")
	os.Setenv("DB_NAME", "placements")
	os.Setenv("DB_SSL_MODE", "require")
	defer clearEnvVars()

	cfg := ParseConfig()

	db := cfg.DatabaseConfig
	if db == nil {
		t.Fatal("Expected database config when DB_HOST is set")
	}
	if db.Host != "db.internal" {
		t.Errorf("Expected host 'db.internal', got '%s'", db.Host)
	}
	if db.Port != "5433" {
		t.Errorf("Expected port '5433', got '%s'", db.Port)
	}
	if db.User != "svc" {
		t.Errorf("Expected user 'svc', got '%s'", db.User)
	}
	if db.Password != "secret" {
		t.Errorf("Expected password 'secret', got '%s'", db.Password)
	}
	if db.Name != "placements" {
		t.Errorf("Expected name 'placements', got '%s'", db.Name)
	}
	if db.SSLMode != "require" {
		t.Errorf("Expected sslmode 'require', got '%s'", db.SSLMode)
	}
}

func TestParseConfig_DatabaseDefaults(t *testing.T) {
	clearEnvVars()
	resetFlags()

	os.Setenv("DB_HOST", "localhost")
	defer clearEnvVars()

	cfg := ParseConfig()

	db := cfg.DatabaseConfig
	if db == nil {
		t.Fatal("Expected database config when DB_HOST is set")
	}
	if db.Port != "5432" {
		t.Errorf("Expected default port '5432', got '%s'", db.Port)
	}
	if db.User != "medbridge" {
		t.Errorf("Expected default user 'medbridge', got '%s'", db.User)
	}
	if db.Name != "medbridge" {
		t.Errorf("Expected default name 'medbridge', got '%s'", db.Name)
	}
	if db.SSLMode != "disable" {
		t.Errorf("Expected default sslmode 'disable', got '%s'", db.SSLMode)
	}
}

func TestToAdapterConfig(t *testing.T) {
	cfg := &ServerConfig{
		LoadTimeout:  15 * time.Second,
		ShowTimeout:  5 * time.Second,
		TokenTimeout: 2 * time.Second,
		TokenTTL:     20 * time.Minute,
		TestMode:     true,
	}

	ac := cfg.ToAdapterConfig()

	if ac.LoadTimeout != 15*time.Second {
		t.Errorf("Expected load timeout 15s, got %v", ac.LoadTimeout)
	}
	if ac.ShowTimeout != 5*time.Second {
		t.Errorf("Expected show timeout 5s, got %v", ac.ShowTimeout)
	}
	if ac.TokenTimeout != 2*time.Second {
		t.Errorf("Expected token timeout 2s, got %v", ac.TokenTimeout)
	}
	if ac.TokenTTL != 20*time.Minute {
		t.Errorf("Expected token TTL 20m, got %v", ac.TokenTTL)
	}
	if !ac.TestMode {
		t.Error("Expected test mode carried over")
	}
}

func TestToClientConfig(t *testing.T) {
	cfg := &ServerConfig{
		VantageEndpoint: "https://ads.vantage.io",
		VantageAppID:    "app-1",
		VantageTimeout:  30 * time.Second,
	}

	cc := cfg.ToClientConfig()

	if cc.Endpoint != "https://ads.vantage.io" {
		t.Errorf("Expected endpoint carried over, got '%s'", cc.Endpoint)
	}
	if cc.AppID != "app-1" {
		t.Errorf("Expected app id 'app-1', got '%s'", cc.AppID)
	}
	if cc.Timeout != 30*time.Second {
		t.Errorf("Expected timeout 30s, got %v", cc.Timeout)
	}
}

func TestGetEnvOrDefault(t *testing.T) {
	os.Setenv("TEST_CONFIG_VAR", "value")
	defer os.Unsetenv("TEST_CONFIG_VAR")

	if got := getEnvOrDefault("TEST_CONFIG_VAR", "default"); got != "value" {
		t.Errorf("Expected 'value', got '%s'", got)
	}
	if got := getEnvOrDefault("TEST_CONFIG_UNSET", "default"); got != "default" {
		t.Errorf("Expected 'default', got '%s'", got)
	}
}

func TestGetEnvBoolOrDefault(t *testing.T) {
	tests := []struct {
		value        string
		setEnv       bool
		defaultValue bool
		expected     bool
	}{
		{"true", true, false, true},
		{"1", true, false, true},
		{"yes", true, false, true},
		{"false", true, true, false},
		{"0", true, true, false},
		{"garbage", true, true, false},
		{"", false, true, true},
		{"", false, false, false},
	}

	for _, tt := range tests {
		key := "TEST_CONFIG_BOOL"
		os.Unsetenv(key)
		if tt.setEnv {
			os.Setenv(key, tt.value)
		}

		got := getEnvBoolOrDefault(key, tt.defaultValue)
		if got != tt.expected {
			t.Errorf("getEnvBoolOrDefault(%q, %v) = %v, want %v",
				tt.value, tt.defaultValue, got, tt.expected)
		}
		os.Unsetenv(key)
	}
}
