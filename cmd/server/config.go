package main

import (
	"flag"
	"os"
	"time"

	"github.com/thenexusengine/tne_medbridge/internal/adapter"
	mbconfig "github.com/thenexusengine/tne_medbridge/internal/config"
	"github.com/thenexusengine/tne_medbridge/internal/partner"
)

// ServerConfig holds all server configuration
type ServerConfig struct {
	// Server
	Port string

	// Vantage
	VantageEndpoint string
	VantageAppID    string
	VantageTimeout  time.Duration

	// Adapter
	LoadTimeout  time.Duration
	ShowTimeout  time.Duration
	TokenTimeout time.Duration
	TokenTTL     time.Duration
	TestMode     bool

	// Allowlist refresh
	AllowlistRefresh time.Duration

	// Database
	DatabaseConfig *DatabaseConfig

	// Redis
	RedisURL string
}

// DatabaseConfig holds database connection configuration
type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	Name     string
	SSLMode  string
}

// ParseConfig parses configuration from flags and environment variables
func ParseConfig() *ServerConfig {
	// Parse flags with environment variable fallbacks
	port := flag.String("port", getEnvOrDefault("MEDBRIDGE_PORT", "8000"), "Server port")
	endpoint := flag.String("vantage-endpoint", getEnvOrDefault("VANTAGE_ENDPOINT", "https://ads.vantage.io"), "Vantage ad service URL")
	appID := flag.String("vantage-app-id", os.Getenv("VANTAGE_APP_ID"), "Vantage application id")
	testMode := flag.Bool("test-mode", getEnvBoolOrDefault("VANTAGE_TEST_MODE", false), "Start with Vantage test mode enabled")
	loadTimeout := flag.Duration("load-timeout", mbconfig.DefaultLoadTimeout, "Ad load timeout")
	flag.Parse()

	return &ServerConfig{
		Port:             *port,
		VantageEndpoint:  *endpoint,
		VantageAppID:     *appID,
		VantageTimeout:   mbconfig.DefaultLoadTimeout,
		LoadTimeout:      *loadTimeout,
		ShowTimeout:      mbconfig.DefaultShowTimeout,
		TokenTimeout:     mbconfig.DefaultTokenTimeout,
		TokenTTL:         mbconfig.DefaultTokenTTL,
		TestMode:         *testMode,
		AllowlistRefresh: mbconfig.AllowlistRefreshInterval,
		DatabaseConfig:   parseDatabaseConfig(),
		RedisURL:         os.Getenv("REDIS_URL"),
	}
}

// parseDatabaseConfig reads database settings; nil when DB_HOST is unset
func parseDatabaseConfig() *DatabaseConfig {
	dbHost := os.Getenv("DB_HOST")
	if dbHost == "" {
		return nil
	}
	return &DatabaseConfig{
		Host:     dbHost,
		Port:     getEnvOrDefault("DB_PORT", "5432"),
		User:     getEnvOrDefault("DB_USER", "medbridge"),
		Password: getEnvOrDefault("DB_PASSWORD", ""),
		Name:     getEnvOrDefault("DB_NAME", "medbridge"),
		SSLMode:  getEnvOrDefault("DB_SSL_MODE", "disable"),
	}
}

// ToAdapterConfig converts ServerConfig to adapter.Config
func (c *ServerConfig) ToAdapterConfig() *adapter.Config {
	return &adapter.Config{
		LoadTimeout:  c.LoadTimeout,
		ShowTimeout:  c.ShowTimeout,
		TokenTimeout: c.TokenTimeout,
		TokenTTL:     c.TokenTTL,
		TestMode:     c.TestMode,
	}
}

// ToClientConfig converts ServerConfig to partner.ClientConfig
func (c *ServerConfig) ToClientConfig() partner.ClientConfig {
	return partner.ClientConfig{
		Endpoint: c.VantageEndpoint,
		AppID:    c.VantageAppID,
		Timeout:  c.VantageTimeout,
	}
}

// getEnvOrDefault returns the environment variable value or a default
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBoolOrDefault returns the environment variable as bool or a default
func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value == "true" || value == "1" || value == "yes"
}
