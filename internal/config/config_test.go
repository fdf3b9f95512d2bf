package config

import (
	"os"
	"testing"
	"time"
)

func TestRequireEnv(t *testing.T) {
	tests := []struct {
		name      string
		key       string
		value     string
		shouldSet bool
		wantPanic bool
	}{
		{
			name:      "variable set",
			key:       "TEST_VAR",
			value:     "test_value",
			shouldSet: true,
			wantPanic: false,
		},
		{
			name:      "variable not set",
			key:       "TEST_VAR_MISSING",
			shouldSet: false,
			wantPanic: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.shouldSet {
				if err := os.Setenv(tt.key, tt.value); err != nil {
					t.Fatalf("failed to set env var: %v", err)
				}
				defer func() {
					if err := os.Unsetenv(tt.key); err != nil {
						t.Errorf("failed to unset env var: %v", err)
					}
				}()
			}

			if tt.wantPanic {
				defer func() {
					if r := recover(); r == nil {
						t.Errorf("requireEnv() should have panicked")
					}
				}()
			}

			result := requireEnv(tt.key)
			if !tt.wantPanic && result != tt.value {
				t.Errorf("requireEnv() = %v, want %v", result, tt.value)
			}
		})
	}
}

func TestGetenvInt(t *testing.T) {
	tests := []struct {
		name     string
		value    string
		def      int
		expected int
	}{
		{name: "valid integer", value: "42", def: 1, expected: 42},
		{name: "invalid integer uses default", value: "not_a_number", def: 7, expected: 7},
		{name: "missing variable uses default", value: "", def: 3, expected: 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("TEST_INT", tt.value)
			if got := getenvInt("TEST_INT", tt.def); got != tt.expected {
				t.Errorf("getenvInt() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestSplitAndTrim(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected []string
	}{
		{name: "empty", input: "", expected: nil},
		{name: "single", input: "10.0.0.0/8", expected: []string{"10.0.0.0/8"}},
		{name: "spaces and quotes", input: ` "a.example.com" , 'b.example.com',,`, expected: []string{"a.example.com", "b.example.com"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := splitAndTrim(tt.input)
			if len(got) != len(tt.expected) {
				t.Fatalf("splitAndTrim() = %v, want %v", got, tt.expected)
			}
			for i := range got {
				if got[i] != tt.expected[i] {
					t.Errorf("splitAndTrim()[%d] = %q, want %q", i, got[i], tt.expected[i])
				}
			}
		})
	}
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("MARKSYNC_SOURCE_FILE", "bookmarks.json")
	t.Setenv("MARKSYNC_API_URL", "")

	cfg := Load()

	if cfg.StateFile != "./marksync-state.json" {
		t.Errorf("StateFile = %q", cfg.StateFile)
	}
	if cfg.SyncInterval != 15*time.Minute {
		t.Errorf("SyncInterval = %v", cfg.SyncInterval)
	}
	if cfg.Concurrency != 4 || cfg.MaxFailedRuns != 5 || cfg.EnrichMaxAttempts != 4 {
		t.Errorf("unexpected enrichment defaults: %+v", cfg)
	}
	if !cfg.FetchFromFolders || !cfg.Enrich || !cfg.KeepBackups {
		t.Errorf("expected boolean defaults to be true: %+v", cfg)
	}
	if cfg.RedisEnabled() {
		t.Errorf("redis should be disabled without MARKSYNC_REDIS_ADDR")
	}
	if !cfg.HasSource() {
		t.Errorf("expected a configured source")
	}
}

func TestLoadSourceValidation(t *testing.T) {
	t.Run("both sources", func(t *testing.T) {
		t.Setenv("MARKSYNC_SOURCE_FILE", "bookmarks.json")
		t.Setenv("MARKSYNC_API_URL", "https://api.example.com")
		t.Setenv("MARKSYNC_API_TOKEN", "secret")
		defer func() {
			if r := recover(); r == nil {
				t.Errorf("Load() should have panicked")
			}
		}()
		Load()
	})

	t.Run("api without token", func(t *testing.T) {
		t.Setenv("MARKSYNC_SOURCE_FILE", "")
		t.Setenv("MARKSYNC_API_URL", "https://api.example.com")
		t.Setenv("MARKSYNC_API_TOKEN", "")
		defer func() {
			if r := recover(); r == nil {
				t.Errorf("Load() should have panicked")
			}
		}()
		Load()
	})

	t.Run("no source", func(t *testing.T) {
		t.Setenv("MARKSYNC_SOURCE_FILE", "")
		t.Setenv("MARKSYNC_API_URL", "")
		cfg := Load()
		defer func() {
			if r := recover(); r == nil {
				t.Errorf("RequireSource() should have panicked")
			}
		}()
		cfg.RequireSource()
	})
}

func TestMustDuration(t *testing.T) {
	tests := []struct {
		name     string
		key      string
		value    string
		def      time.Duration
		expected time.Duration
	}{
		{
			name:     "valid duration",
			key:      "TEST_DURATION",
			value:    "5s",
			def:      1 * time.Second,
			expected: 5 * time.Second,
		},
		{
			name:     "invalid duration uses default",
			key:      "TEST_DURATION_INVALID",
			value:    "invalid",
			def:      10 * time.Second,
			expected: 10 * time.Second,
		},
		{
			name:     "missing variable uses default",
			key:      "TEST_DURATION_MISSING",
			value:    "",
			def:      15 * time.Second,
			expected: 15 * time.Second,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.value != "" {
				if err := os.Setenv(tt.key, tt.value); err != nil {
					t.Fatalf("failed to set env var: %v", err)
				}
				defer func() {
					if err := os.Unsetenv(tt.key); err != nil {
						t.Errorf("failed to unset env var: %v", err)
					}
				}()
			}

			result := mustDuration(tt.key, tt.def)
			if result != tt.expected {
				t.Errorf("mustDuration() = %v, want %v", result, tt.expected)
			}
		})
	}
}

func TestMustBool(t *testing.T) {
	tests := []struct {
		name     string
		key      string
		value    string
		def      bool
		expected bool
	}{
		{
			name:     "true value",
			key:      "TEST_BOOL",
			value:    "true",
			def:      false,
			expected: true,
		},
		{
			name:     "false value",
			key:      "TEST_BOOL_FALSE",
			value:    "false",
			def:      true,
			expected: false,
		},
		{
			name:     "invalid value uses default",
			key:      "TEST_BOOL_INVALID",
			value:    "invalid",
			def:      true,
			expected: true,
		},
		{
			name:     "missing variable uses default",
			key:      "TEST_BOOL_MISSING",
			value:    "",
			def:      false,
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.value != "" {
				if err := os.Setenv(tt.key, tt.value); err != nil {
					t.Fatalf("failed to set env var: %v", err)
				}
				defer func() {
					if err := os.Unsetenv(tt.key); err != nil {
						t.Errorf("failed to unset env var: %v", err)
					}
				}()
			}

			result := mustBool(tt.key, tt.def)
			if result != tt.expected {
				t.Errorf("mustBool() = %v, want %v", result, tt.expected)
			}
		})
	}
}
