package model

import "testing"

func TestDefaultConfigValidates(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Fatalf("built-in defaults must validate: %v", err)
	}
}

func TestValidate_LogSettings(t *testing.T) {
	for _, format := range []string{"", "text", "console", "json", "JSON"} {
		cfg := DefaultConfig()
		cfg.Log.Format = format
		if err := cfg.Validate(); err != nil {
			t.Errorf("format %q rejected: %v", format, err)
		}
	}

	cfg := DefaultConfig()
	cfg.Log.Format = "yaml"
	if err := cfg.Validate(); err == nil {
		t.Error("unknown log format must be rejected")
	}

	cfg = DefaultConfig()
	cfg.Log.Level = "loud"
	if err := cfg.Validate(); err == nil {
		t.Error("unknown log level must be rejected")
	}
}

func TestValidate_RejectsBadProviderEntries(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Providers = map[string]ProviderConfig{
		"geni": {RateLimitMs: 0, MaxGenerationDepth: 5},
	}
	if err := cfg.Validate(); err == nil {
		t.Error("non-positive rate limit must be rejected")
	}

	cfg.Providers = map[string]ProviderConfig{
		"geni": {RateLimitMs: 1000, MaxGenerationDepth: 0},
	}
	if err := cfg.Validate(); err == nil {
		t.Error("non-positive generation depth must be rejected")
	}
}
