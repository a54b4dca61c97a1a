package config

import (
	"os"
	"testing"
	"time"
)

func TestConfig_UnlimitedMaxMarketDuration(t *testing.T) {
	t.Run("zero_duration_allowed", func(t *testing.T) {
		os.Setenv("MAX_MARKET_DURATION", "0")
		t.Cleanup(func() { os.Unsetenv("MAX_MARKET_DURATION") })

		cfg, err := LoadFromEnv()
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if cfg.MaxMarketDuration != 0 {
			t.Errorf("expected MaxMarketDuration to be 0, got %v", cfg.MaxMarketDuration)
		}
	})

	t.Run("positive_duration_allowed", func(t *testing.T) {
		os.Setenv("MAX_MARKET_DURATION", "48h")
		t.Cleanup(func() { os.Unsetenv("MAX_MARKET_DURATION") })

		cfg, err := LoadFromEnv()
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if cfg.MaxMarketDuration != 48*time.Hour {
			t.Errorf("expected MaxMarketDuration to be 48h, got %v", cfg.MaxMarketDuration)
		}
	})
}

func TestConfig_NegativeValuesRejected(t *testing.T) {
	base := func() *Config {
		return &Config{
			HTTPPort:           "8080",
			FeedWSURL:          "wss://test.example/ws/market",
			CatalogURL:         "https://test.example",
			ArbMaxCombined:     1.0,
			MinArbTicks:        2,
			MaxSubscriptions:   100,
			SubscribeChunkSize: 500,
			RemoveGraceTicks:   2,
			WriterQueueSize:    100,
			StorageMode:        "console",
		}
	}

	t.Run("negative_max_market_duration_rejected", func(t *testing.T) {
		cfg := base()
		cfg.MaxMarketDuration = -1 * time.Hour

		err := cfg.Validate()
		if err == nil {
			t.Fatal("expected error for negative MaxMarketDuration, got nil")
		}
	})

	t.Run("negative_min_volume_rejected", func(t *testing.T) {
		cfg := base()
		cfg.MinVolume24h = -1

		err := cfg.Validate()
		if err == nil {
			t.Fatal("expected error for negative MinVolume24h, got nil")
		}
	})
}

func TestConfig_ArbMaxCombinedValidation(t *testing.T) {
	base := func() *Config {
		return &Config{
			HTTPPort:           "8080",
			FeedWSURL:          "wss://test.example/ws/market",
			CatalogURL:         "https://test.example",
			MinArbTicks:        2,
			MaxSubscriptions:   100,
			SubscribeChunkSize: 500,
			RemoveGraceTicks:   2,
			WriterQueueSize:    100,
			StorageMode:        "console",
		}
	}

	t.Run("zero_rejected", func(t *testing.T) {
		cfg := base()
		cfg.ArbMaxCombined = 0
		if err := cfg.Validate(); err == nil {
			t.Fatal("expected error for ArbMaxCombined=0, got nil")
		}
	})

	t.Run("above_one_rejected", func(t *testing.T) {
		cfg := base()
		cfg.ArbMaxCombined = 1.5
		if err := cfg.Validate(); err == nil {
			t.Fatal("expected error for ArbMaxCombined=1.5, got nil")
		}
	})

	t.Run("one_allowed", func(t *testing.T) {
		cfg := base()
		cfg.ArbMaxCombined = 1.0
		if err := cfg.Validate(); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
	})

	t.Run("default_via_env_is_1", func(t *testing.T) {
		cfg, err := LoadFromEnv()
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if cfg.ArbMaxCombined != 1.0 {
			t.Errorf("expected default ArbMaxCombined to be 1.0, got %v", cfg.ArbMaxCombined)
		}
	})
}

func TestConfig_MinArbTicksValidation(t *testing.T) {
	t.Run("default_is_2", func(t *testing.T) {
		cfg, err := LoadFromEnv()
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if cfg.MinArbTicks != 2 {
			t.Errorf("expected default MinArbTicks to be 2, got %d", cfg.MinArbTicks)
		}
	})

	t.Run("zero_rejected", func(t *testing.T) {
		cfg := &Config{
			HTTPPort:           "8080",
			FeedWSURL:          "wss://test.example/ws/market",
			CatalogURL:         "https://test.example",
			ArbMaxCombined:     1.0,
			MinArbTicks:        0,
			MaxSubscriptions:   100,
			SubscribeChunkSize: 500,
			RemoveGraceTicks:   2,
			WriterQueueSize:    100,
			StorageMode:        "console",
		}
		if err := cfg.Validate(); err == nil {
			t.Fatal("expected error for MinArbTicks=0, got nil")
		}
	})
}

func TestConfig_PinnedPrefixesFromEnv(t *testing.T) {
	os.Setenv("PINNED_MARKET_PREFIXES", "nfl-, nba-,mlb-")
	t.Cleanup(func() { os.Unsetenv("PINNED_MARKET_PREFIXES") })

	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	want := []string{"nfl-", "nba-", "mlb-"}
	if len(cfg.PinnedPrefixes) != len(want) {
		t.Fatalf("expected %d prefixes, got %v", len(want), cfg.PinnedPrefixes)
	}
	for i, p := range want {
		if cfg.PinnedPrefixes[i] != p {
			t.Errorf("prefix[%d] = %q, want %q", i, cfg.PinnedPrefixes[i], p)
		}
	}
}

func TestConfig_SubscribeChunkSizeValidation(t *testing.T) {
	base := func() *Config {
		return &Config{
			HTTPPort:         "8080",
			FeedWSURL:        "wss://test.example/ws/market",
			CatalogURL:       "https://test.example",
			ArbMaxCombined:   1.0,
			MinArbTicks:      2,
			MaxSubscriptions: 100,
			RemoveGraceTicks: 2,
			WriterQueueSize:  100,
			StorageMode:      "console",
		}
	}

	t.Run("over_500_rejected", func(t *testing.T) {
		cfg := base()
		cfg.SubscribeChunkSize = 501
		if err := cfg.Validate(); err == nil {
			t.Fatal("expected error for chunk size > 500, got nil")
		}
	})

	t.Run("500_allowed", func(t *testing.T) {
		cfg := base()
		cfg.SubscribeChunkSize = 500
		if err := cfg.Validate(); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
	})
}

func TestConfig_StorageModeValidation(t *testing.T) {
	base := func() *Config {
		return &Config{
			HTTPPort:           "8080",
			FeedWSURL:          "wss://test.example/ws/market",
			CatalogURL:         "https://test.example",
			ArbMaxCombined:     1.0,
			MinArbTicks:        2,
			MaxSubscriptions:   100,
			SubscribeChunkSize: 500,
			RemoveGraceTicks:   2,
			WriterQueueSize:    100,
		}
	}

	t.Run("invalid_mode_rejected", func(t *testing.T) {
		cfg := base()
		cfg.StorageMode = "sqlite"
		if err := cfg.Validate(); err == nil {
			t.Fatal("expected error for invalid StorageMode, got nil")
		}
	})

	t.Run("postgres_allowed", func(t *testing.T) {
		cfg := base()
		cfg.StorageMode = "postgres"
		if err := cfg.Validate(); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
	})
}
