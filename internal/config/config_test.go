package config

import (
	"log/slog"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}

	if cfg.Server.Port != "8080" {
		t.Errorf("port = %q", cfg.Server.Port)
	}
	if cfg.Logging.Level != slog.LevelInfo {
		t.Errorf("log level = %v", cfg.Logging.Level)
	}
	if cfg.Pipeline.ProposeLimit != 5 {
		t.Errorf("propose limit = %d", cfg.Pipeline.ProposeLimit)
	}
	if cfg.Pipeline.FuzzyThreshold != 0.75 {
		t.Errorf("fuzzy threshold = %v", cfg.Pipeline.FuzzyThreshold)
	}
	if cfg.Notify.Channel != "sms" {
		t.Errorf("channel = %q", cfg.Notify.Channel)
	}
	if cfg.Notify.ResponseWindow != 24*time.Hour {
		t.Errorf("response window = %v", cfg.Notify.ResponseWindow)
	}
	if cfg.Registration.EmergencyThreshold != 3 {
		t.Errorf("emergency threshold = %d", cfg.Registration.EmergencyThreshold)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("PIPELINE_PROPOSE_LIMIT", "2")
	t.Setenv("PIPELINE_FUZZY_THRESHOLD", "0.9")
	t.Setenv("NOTIFY_CHANNEL", "email")
	t.Setenv("PIPELINE_SOURCES", "library=https://lib.example.com/feed, parks=https://parks.example.com/feed")

	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}

	if cfg.Server.Port != "9090" {
		t.Errorf("port = %q", cfg.Server.Port)
	}
	if cfg.Logging.Level != slog.LevelDebug {
		t.Errorf("log level = %v", cfg.Logging.Level)
	}
	if cfg.Pipeline.ProposeLimit != 2 {
		t.Errorf("propose limit = %d", cfg.Pipeline.ProposeLimit)
	}
	if cfg.Pipeline.FuzzyThreshold != 0.9 {
		t.Errorf("fuzzy threshold = %v", cfg.Pipeline.FuzzyThreshold)
	}
	if cfg.Notify.Channel != "email" {
		t.Errorf("channel = %q", cfg.Notify.Channel)
	}
	if len(cfg.Pipeline.Sources) != 2 || cfg.Pipeline.Sources["parks"] != "https://parks.example.com/feed" {
		t.Errorf("sources = %v", cfg.Pipeline.Sources)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	cases := []struct {
		key, value string
	}{
		{"PIPELINE_INTERVAL_MINUTES", "0"},
		{"PIPELINE_PROPOSE_LIMIT", "-1"},
		{"PIPELINE_FUZZY_THRESHOLD", "1.5"},
		{"PIPELINE_FUZZY_THRESHOLD", "0"},
		{"PIPELINE_RETENTION_DAYS", "-7"},
		{"NOTIFY_RESPONSE_WINDOW_HOURS", "abc"},
		{"NOTIFY_CHANNEL", "carrier-pigeon"},
		{"LOG_FORMAT", "xml"},
		{"LOG_LEVEL", "loud"},
		{"SERVER_READ_TIMEOUT_SECONDS", "-5"},
	}

	for _, tc := range cases {
		t.Run(tc.key+"="+tc.value, func(t *testing.T) {
			t.Setenv(tc.key, tc.value)
			if _, err := Load(); err == nil {
				t.Errorf("Load accepted %s=%s", tc.key, tc.value)
			}
		})
	}
}

func TestParseSources(t *testing.T) {
	sources, err := parseSources("library=https://a/feed,parks=https://b/feed")
	if err != nil {
		t.Fatal(err)
	}
	if sources["library"] != "https://a/feed" || sources["parks"] != "https://b/feed" {
		t.Errorf("sources = %v", sources)
	}

	if _, err := parseSources("library"); err == nil {
		t.Error("entry without a URL must be rejected")
	}
	if _, err := parseSources("=https://a/feed"); err == nil {
		t.Error("entry without a name must be rejected")
	}

	empty, err := parseSources("")
	if err != nil {
		t.Fatal(err)
	}
	if len(empty) != 0 {
		t.Errorf("empty input produced %v", empty)
	}
}
