package oracle

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
)

func validConfig() Config {
	return Config{
		Admin:             "admin",
		BaseSymbol:        "USD",
		Decimals:          14,
		FxSource:          "https://fx.example.com/rates",
		MaxYieldDeviation: decimal.NewFromInt(1),
		Period:            86400000,
		Resolution:        300000,
	}
}

func TestConfigValidate(t *testing.T) {
	if err := validConfig().Validate(); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}

	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing admin", func(c *Config) { c.Admin = " " }},
		{"missing base", func(c *Config) { c.BaseSymbol = "" }},
		{"decimals too small", func(c *Config) { c.Decimals = 0 }},
		{"decimals too large", func(c *Config) { c.Decimals = 19 }},
		{"zero resolution", func(c *Config) { c.Resolution = 0 }},
		{"resolution exceeds period", func(c *Config) { c.Resolution = c.Period + 1 }},
		{"resolution does not divide period", func(c *Config) { c.Resolution = 300001 }},
		{"negative deviation", func(c *Config) { c.MaxYieldDeviation = decimal.NewFromInt(-1) }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validConfig()
			tc.mutate(&cfg)
			if err := cfg.Validate(); !errors.Is(err, ErrInvalidConfig) {
				t.Fatalf("expected ErrInvalidConfig, got %v", err)
			}
		})
	}
}

func TestConfigApply(t *testing.T) {
	cfg := validConfig()

	newDeviation := decimal.NewFromFloat(2.5)
	newSource := "https://fx.example.com/v2"
	updated := cfg.Apply(ConfigPatch{
		FxSource:          &newSource,
		MaxYieldDeviation: &newDeviation,
	})

	if updated.FxSource != newSource {
		t.Fatalf("fx source not applied: %s", updated.FxSource)
	}
	if !updated.MaxYieldDeviation.Equal(newDeviation) {
		t.Fatalf("deviation not applied: %s", updated.MaxYieldDeviation)
	}
	// Untouched fields survive, and the receiver is not mutated.
	if updated.Admin != cfg.Admin || updated.Period != cfg.Period {
		t.Fatalf("unrelated fields changed: %#v", updated)
	}
	if cfg.FxSource == newSource {
		t.Fatalf("patch mutated the original config")
	}
}

func TestRetainedBuckets(t *testing.T) {
	cfg := validConfig()
	if got := cfg.RetainedBuckets(); got != 288 {
		t.Fatalf("expected 288 retained buckets, got %d", got)
	}
}

func TestBucketFor(t *testing.T) {
	cases := []struct {
		ts, resolution, want int64
	}{
		{1700000123456, 300000, 1700000100000},
		{1700000100000, 300000, 1700000100000},
		{299999, 300000, 0},
		{300000, 300000, 300000},
	}
	for _, tc := range cases {
		if got := BucketFor(tc.ts, tc.resolution); got != tc.want {
			t.Fatalf("BucketFor(%d, %d) = %d, want %d", tc.ts, tc.resolution, got, tc.want)
		}
	}
}
