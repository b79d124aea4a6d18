package config

import (
	"errors"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("VIEW_STATE_BACKEND", "")
	t.Setenv("UNIT_SYSTEM", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ServerPort != "4000" || cfg.UnitSystem != "metric" || cfg.ViewStateBackend != BackendPostgres {
		t.Errorf("defaults = %+v", cfg)
	}
	if cfg.GeocodeInterval != 5*time.Minute || cfg.GeocodeBatchSize != 50 {
		t.Errorf("geocode defaults = %v %d", cfg.GeocodeInterval, cfg.GeocodeBatchSize)
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("PORT", "8080")
	t.Setenv("DEBUG", "true")
	t.Setenv("UNIT_SYSTEM", "imperial_uk")
	t.Setenv("VIEW_STATE_BACKEND", "badger")
	t.Setenv("VIEW_STATE_DIR", "/tmp/views")
	t.Setenv("GEOCODE_INTERVAL", "90s")
	t.Setenv("GEOCODE_BATCH_SIZE", "not-a-number")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ServerPort != "8080" || !cfg.Debug || cfg.UnitSystem != "imperial_uk" {
		t.Errorf("cfg = %+v", cfg)
	}
	if cfg.ViewStateBackend != BackendBadger || cfg.ViewStateDir != "/tmp/views" {
		t.Errorf("view state = %s %s", cfg.ViewStateBackend, cfg.ViewStateDir)
	}
	if cfg.GeocodeInterval != 90*time.Second {
		t.Errorf("interval = %v", cfg.GeocodeInterval)
	}
	if cfg.GeocodeBatchSize != 50 {
		t.Errorf("unparseable int should fall back, got %d", cfg.GeocodeBatchSize)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	tests := map[string][2]string{
		"unit system": {"UNIT_SYSTEM", "furlongs"},
		"backend":     {"VIEW_STATE_BACKEND", "redis"},
		"port":        {"PORT", "http"},
	}
	for name, kv := range tests {
		t.Run(name, func(t *testing.T) {
			t.Setenv(kv[0], kv[1])
			if _, err := Load(); !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("err = %v, want ErrInvalidConfig", err)
			}
		})
	}
}
