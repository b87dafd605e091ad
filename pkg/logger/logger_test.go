package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

// captureLogOutput redirects stdout while fn runs and returns what was
// written
func captureLogOutput(fn func()) string {
	old := os.Stdout
	r, w, _ := os.Pipe()
	os.Stdout = w

	fn()

	w.Close()
	os.Stdout = old

	var buf bytes.Buffer
	io.Copy(&buf, r)
	return buf.String()
}

// parseLogLine parses a single JSON log line
func parseLogLine(t *testing.T, line string) map[string]interface{} {
	t.Helper()

	var entry map[string]interface{}
	if err := json.Unmarshal([]byte(line), &entry); err != nil {
		t.Fatalf("Failed to parse log line %q: %v", line, err)
	}
	return entry
}

func TestDefaultConfig(t *testing.T) {
	// Clear env vars to test defaults
	os.Unsetenv("LOG_LEVEL")
	os.Unsetenv("LOG_FORMAT")

	cfg := DefaultConfig()

	if cfg.Level != "info" {
		t.Errorf("Expected default level 'info', got '%s'", cfg.Level)
	}
	if cfg.Format != "json" {
		t.Errorf("Expected default format 'json', got '%s'", cfg.Format)
	}
	if cfg.TimeFormat != time.RFC3339 {
		t.Errorf("Expected RFC3339 time format, got '%s'", cfg.TimeFormat)
	}
}

func TestDefaultConfig_EnvOverrides(t *testing.T) {
	os.Setenv("LOG_LEVEL", "debug")
	os.Setenv("LOG_FORMAT", "console")
	defer os.Unsetenv("LOG_LEVEL")
	defer os.Unsetenv("LOG_FORMAT")

	cfg := DefaultConfig()

	if cfg.Level != "debug" {
		t.Errorf("Expected level 'debug' from env, got '%s'", cfg.Level)
	}
	if cfg.Format != "console" {
		t.Errorf("Expected format 'console' from env, got '%s'", cfg.Format)
	}
}

func TestGetEnv(t *testing.T) {
	tests := []struct {
		name         string
		key          string
		value        string
		setEnv       bool
		defaultValue string
		expected     string
	}{
		{
			name:         "env var set",
			key:          "TEST_LOGGER_VAR",
			value:        "custom",
			setEnv:       true,
			defaultValue: "default",
			expected:     "custom",
		},
		{
			name:         "env var not set",
			key:          "TEST_LOGGER_UNSET",
			setEnv:       false,
			defaultValue: "default",
			expected:     "default",
		},
		{
			name:         "env var empty",
			key:          "TEST_LOGGER_EMPTY",
			value:        "",
			setEnv:       true,
			defaultValue: "default",
			expected:     "default",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.setEnv {
				os.Setenv(tt.key, tt.value)
				defer os.Unsetenv(tt.key)
			}

			got := getEnv(tt.key, tt.defaultValue)
			if got != tt.expected {
				t.Errorf("getEnv(%s, %s) = %s, want %s", tt.key, tt.defaultValue, got, tt.expected)
			}
		})
	}
}

func TestInit_JSONFormat(t *testing.T) {
	output := captureLogOutput(func() {
		Init(Config{
			Level:      "info",
			Format:     "json",
			TimeFormat: time.RFC3339,
		})
		Log.Info().Msg("test message")
	})

	if output == "" {
		t.Fatal("Expected log output")
	}

	entry := parseLogLine(t, strings.TrimSpace(output))

	if entry["message"] != "test message" {
		t.Errorf("Expected message 'test message', got '%v'", entry["message"])
	}
	if entry["service"] != "medbridge" {
		t.Errorf("Expected service 'medbridge', got '%v'", entry["service"])
	}
	if entry["level"] != "info" {
		t.Errorf("Expected level 'info', got '%v'", entry["level"])
	}
	if _, ok := entry["time"]; !ok {
		t.Error("Expected timestamp in log entry")
	}
}

func TestInit_ConsoleFormat(t *testing.T) {
	output := captureLogOutput(func() {
		Init(Config{
			Level:      "info",
			Format:     "console",
			TimeFormat: time.RFC3339,
		})
		Log.Info().Msg("console test")
	})

	if output == "" {
		t.Fatal("Expected log output")
	}

	// Console format is human-readable, not JSON
	if !strings.Contains(output, "console test") {
		t.Errorf("Expected output to contain 'console test', got: %s", output)
	}
	if !strings.Contains(output, "INF") {
		t.Errorf("Expected console level marker 'INF', got: %s", output)
	}
}

func TestInit_LogLevels(t *testing.T) {
	tests := []struct {
		configLevel string
		logDebug    bool
		logInfo     bool
		logWarn     bool
		logError    bool
	}{
		{"debug", true, true, true, true},
		{"info", false, true, true, true},
		{"warn", false, false, true, true},
		{"error", false, false, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.configLevel, func(t *testing.T) {
			output := captureLogOutput(func() {
				Init(Config{
					Level:      tt.configLevel,
					Format:     "json",
					TimeFormat: time.RFC3339,
				})
				Log.Debug().Msg("debug msg")
				Log.Info().Msg("info msg")
				Log.Warn().Msg("warn msg")
				Log.Error().Msg("error msg")
			})

			checks := []struct {
				msg      string
				expected bool
			}{
				{"debug msg", tt.logDebug},
				{"info msg", tt.logInfo},
				{"warn msg", tt.logWarn},
				{"error msg", tt.logError},
			}

			for _, check := range checks {
				got := strings.Contains(output, check.msg)
				if got != check.expected {
					t.Errorf("Level %s: message %q logged=%v, want %v",
						tt.configLevel, check.msg, got, check.expected)
				}
			}
		})
	}
}

func TestInit_InvalidLevel(t *testing.T) {
	output := captureLogOutput(func() {
		Init(Config{
			Level:      "not-a-level",
			Format:     "json",
			TimeFormat: time.RFC3339,
		})
		Log.Debug().Msg("debug msg")
		Log.Info().Msg("info msg")
	})

	// Invalid level falls back to info
	if strings.Contains(output, "debug msg") {
		t.Error("Expected debug to be filtered at fallback info level")
	}
	if !strings.Contains(output, "info msg") {
		t.Error("Expected info to be logged at fallback info level")
	}
}

func TestWithRequestID(t *testing.T) {
	ctx := context.Background()
	ctx = WithRequestID(ctx, "req-123")

	value := ctx.Value(RequestIDKey)
	if value != "req-123" {
		t.Errorf("Expected 'req-123', got '%v'", value)
	}
}

func TestWithPlacementID(t *testing.T) {
	ctx := context.Background()
	ctx = WithPlacementID(ctx, "plc-456")

	value := ctx.Value(PlacementIDKey)
	if value != "plc-456" {
		t.Errorf("Expected 'plc-456', got '%v'", value)
	}
}

func TestFromContext_WithBothIDs(t *testing.T) {
	Init(Config{Level: "info", Format: "json", TimeFormat: time.RFC3339})

	ctx := context.Background()
	ctx = WithRequestID(ctx, "req-123")
	ctx = WithPlacementID(ctx, "plc-456")

	output := captureLogOutput(func() {
		Init(Config{Level: "info", Format: "json", TimeFormat: time.RFC3339})
		logger := FromContext(ctx)
		logger.Info().Msg("context test")
	})

	entry := parseLogLine(t, strings.TrimSpace(output))

	if entry["request_id"] != "req-123" {
		t.Errorf("Expected request_id 'req-123', got '%v'", entry["request_id"])
	}
	if entry["placement_id"] != "plc-456" {
		t.Errorf("Expected placement_id 'plc-456', got '%v'", entry["placement_id"])
	}
}

func TestFromContext_EmptyContext(t *testing.T) {
	output := captureLogOutput(func() {
		Init(Config{Level: "info", Format: "json", TimeFormat: time.RFC3339})
		logger := FromContext(context.Background())
		logger.Info().Msg("no ids")
	})

	entry := parseLogLine(t, strings.TrimSpace(output))

	if _, ok := entry["request_id"]; ok {
		t.Error("Expected no request_id for empty context")
	}
	if _, ok := entry["placement_id"]; ok {
		t.Error("Expected no placement_id for empty context")
	}
}

func TestFromContext_EmptyStringIgnored(t *testing.T) {
	ctx := WithRequestID(context.Background(), "")

	output := captureLogOutput(func() {
		Init(Config{Level: "info", Format: "json", TimeFormat: time.RFC3339})
		logger := FromContext(ctx)
		logger.Info().Msg("empty id")
	})

	entry := parseLogLine(t, strings.TrimSpace(output))

	if _, ok := entry["request_id"]; ok {
		t.Error("Expected empty request_id to be skipped")
	}
}

func TestComponentLoggers(t *testing.T) {
	tests := []struct {
		name      string
		construct func() zerolog.Logger
		component string
	}{
		{"adapter", Adapter, "adapter"},
		{"partner", Partner, "partner"},
		{"http", HTTP, "http"},
		{"storage", Storage, "storage"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			output := captureLogOutput(func() {
				Init(Config{Level: "info", Format: "json", TimeFormat: time.RFC3339})
				logger := tt.construct()
				logger.Info().Msg("component test")
			})

			entry := parseLogLine(t, strings.TrimSpace(output))

			if entry["component"] != tt.component {
				t.Errorf("Expected component '%s', got '%v'", tt.component, entry["component"])
			}
		})
	}
}

func TestPlacementLogger(t *testing.T) {
	output := captureLogOutput(func() {
		Init(Config{Level: "info", Format: "json", TimeFormat: time.RFC3339})
		logger := Placement("plc-789")
		logger.Info().Msg("placement test")
	})

	entry := parseLogLine(t, strings.TrimSpace(output))

	if entry["placement_id"] != "plc-789" {
		t.Errorf("Expected placement_id 'plc-789', got '%v'", entry["placement_id"])
	}
}

func TestRequestLogger_Info(t *testing.T) {
	output := captureLogOutput(func() {
		Init(Config{Level: "info", Format: "json", TimeFormat: time.RFC3339})
		rl := NewRequestLogger("req-abc")
		rl.Info("processing request")
	})

	entry := parseLogLine(t, strings.TrimSpace(output))

	if entry["request_id"] != "req-abc" {
		t.Errorf("Expected request_id 'req-abc', got '%v'", entry["request_id"])
	}
	if entry["message"] != "processing request" {
		t.Errorf("Expected message 'processing request', got '%v'", entry["message"])
	}
}

func TestRequestLogger_Error(t *testing.T) {
	output := captureLogOutput(func() {
		Init(Config{Level: "info", Format: "json", TimeFormat: time.RFC3339})
		rl := NewRequestLogger("req-abc")
		rl.Error("request failed", errors.New("connection refused"))
	})

	entry := parseLogLine(t, strings.TrimSpace(output))

	if entry["level"] != "error" {
		t.Errorf("Expected level 'error', got '%v'", entry["level"])
	}
	if entry["error"] != "connection refused" {
		t.Errorf("Expected error 'connection refused', got '%v'", entry["error"])
	}
}

func TestRequestLogger_WithField(t *testing.T) {
	output := captureLogOutput(func() {
		Init(Config{Level: "info", Format: "json", TimeFormat: time.RFC3339})
		rl := NewRequestLogger("req-abc")
		rl = rl.WithField("format", "banner")
		rl.Info("with field")
	})

	entry := parseLogLine(t, strings.TrimSpace(output))

	if entry["format"] != "banner" {
		t.Errorf("Expected format 'banner', got '%v'", entry["format"])
	}
	if entry["request_id"] != "req-abc" {
		t.Errorf("Expected request_id to be preserved, got '%v'", entry["request_id"])
	}
}

func TestRequestLogger_MultipleFields(t *testing.T) {
	output := captureLogOutput(func() {
		Init(Config{Level: "info", Format: "json", TimeFormat: time.RFC3339})
		rl := NewRequestLogger("req-abc")
		rl = rl.WithField("format", "rewarded").WithField("attempt", 2)
		rl.Info("multiple fields")
	})

	entry := parseLogLine(t, strings.TrimSpace(output))

	if entry["format"] != "rewarded" {
		t.Errorf("Expected format 'rewarded', got '%v'", entry["format"])
	}
	if entry["attempt"] != float64(2) {
		t.Errorf("Expected attempt 2, got '%v'", entry["attempt"])
	}
}

func TestRequestLogger_Duration(t *testing.T) {
	rl := NewRequestLogger("req-abc")
	time.Sleep(10 * time.Millisecond)

	d := rl.Duration()
	if d < 10*time.Millisecond {
		t.Errorf("Expected duration >= 10ms, got %v", d)
	}
}

func TestRequestLogger_LogComplete(t *testing.T) {
	output := captureLogOutput(func() {
		Init(Config{Level: "info", Format: "json", TimeFormat: time.RFC3339})
		rl := NewRequestLogger("req-abc")
		rl.LogComplete(200)
	})

	entry := parseLogLine(t, strings.TrimSpace(output))

	if entry["status"] != float64(200) {
		t.Errorf("Expected status 200, got '%v'", entry["status"])
	}
	if _, ok := entry["duration_ms"]; !ok {
		t.Error("Expected duration_ms in completion log")
	}
	if entry["message"] != "request completed" {
		t.Errorf("Expected message 'request completed', got '%v'", entry["message"])
	}
}
