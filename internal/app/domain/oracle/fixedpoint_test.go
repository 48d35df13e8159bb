package oracle

import (
	"errors"
	"math/big"
	"testing"

	"github.com/shopspring/decimal"
)

func maxScaledCoefficient(t *testing.T) *big.Int {
	t.Helper()
	return new(big.Int).Lsh(big.NewInt(1), 127)
}

func dec(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(s)
	if err != nil {
		t.Fatalf("parse decimal %q: %v", s, err)
	}
	return d
}

func TestNormalizePrice_Truncates(t *testing.T) {
	got, err := NormalizePrice(dec(t, "1.23456"), decimal.NewFromInt(1), 2)
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if got.String() != "1.23" {
		t.Fatalf("expected 1.23, got %s", got)
	}

	// Truncation rounds toward zero, never up.
	got, err = NormalizePrice(dec(t, "0.999"), decimal.NewFromInt(1), 2)
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if got.String() != "0.99" {
		t.Fatalf("expected 0.99, got %s", got)
	}
}

func TestNormalizePrice_AppliesRate(t *testing.T) {
	got, err := NormalizePrice(dec(t, "100"), dec(t, "1.1"), 4)
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if !got.Equal(dec(t, "110")) {
		t.Fatalf("expected 110, got %s", got)
	}
}

func TestNormalizePrice_Overflow(t *testing.T) {
	huge := decimal.New(1, 40) // 1e40
	if _, err := NormalizePrice(huge, decimal.NewFromInt(1), 18); !errors.Is(err, ErrOverflow) {
		t.Fatalf("expected overflow, got %v", err)
	}
}

func TestImpliedYield(t *testing.T) {
	cases := []struct {
		name      string
		current   string
		reference string
		decimals  uint32
		want      string
	}{
		{"half percent gain", "100.5", "100", 2, "0.5"},
		{"five percent gain", "105", "100", 2, "5"},
		{"loss is negative", "95", "100", 2, "-5"},
		{"flat", "100", "100", 2, "0"},
		{"truncated quotient", "101", "3", 2, "3266.66"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ImpliedYield(dec(t, tc.current), dec(t, tc.reference), tc.decimals)
			if err != nil {
				t.Fatalf("implied yield: %v", err)
			}
			if !got.Equal(dec(t, tc.want)) {
				t.Fatalf("expected %s, got %s", tc.want, got)
			}
		})
	}
}

func TestImpliedYield_ZeroReference(t *testing.T) {
	if _, err := ImpliedYield(dec(t, "100"), decimal.Zero, 2); !errors.Is(err, ErrOverflow) {
		t.Fatalf("expected overflow on zero reference, got %v", err)
	}
}

func TestDeviation(t *testing.T) {
	if got := Deviation(dec(t, "0.5"), dec(t, "-0.25")); !got.Equal(dec(t, "0.75")) {
		t.Fatalf("expected 0.75, got %s", got)
	}
	if got := Deviation(dec(t, "-1"), dec(t, "1")); !got.Equal(dec(t, "2")) {
		t.Fatalf("expected 2, got %s", got)
	}
}

func TestCheckRange(t *testing.T) {
	// 2^127 is the first magnitude that no longer fits.
	limit := decimal.NewFromBigInt(maxScaledCoefficient(t), 0)
	if err := CheckRange(limit.Sub(decimal.NewFromInt(1)), 0); err != nil {
		t.Fatalf("expected value below 2^127 to fit: %v", err)
	}
	if err := CheckRange(limit, 0); !errors.Is(err, ErrOverflow) {
		t.Fatalf("expected overflow at 2^127, got %v", err)
	}
}
