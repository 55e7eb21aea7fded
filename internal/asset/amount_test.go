package asset

import (
	"math/big"
	"testing"

	"github.com/shopspring/decimal"
)

func TestToWei(t *testing.T) {
	tests := []struct {
		name     string
		amount   string
		decimals uint8
		want     string
	}{
		{"one_eth", "1", 18, "1000000000000000000"},
		{"fraction_eth", "1.5", 18, "1500000000000000000"},
		{"usdc_six_decimals", "10.25", 6, "10250000"},
		{"zero", "0", 18, "0"},
		{"negative_sell_amount", "-10", 6, "-10000000"},
		{"truncates_excess_precision", "0.0000001", 6, "0"},
		{"tiny_wei", "0.000000000000000001", 18, "1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := decimal.RequireFromString(tt.amount)
			got := ToWei(d, tt.decimals)
			if got.String() != tt.want {
				t.Errorf("ToWei(%s, %d) = %s, want %s", tt.amount, tt.decimals, got, tt.want)
			}
		})
	}
}

func TestFromWei(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		decimals uint8
		want     string
	}{
		{"one_eth", "1000000000000000000", 18, "1"},
		{"usdc", "10250000", 6, "10.25"},
		{"zero", "0", 18, "0"},
		{"single_wei", "1", 18, "0.000000000000000001"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw, _ := new(big.Int).SetString(tt.raw, 10)
			got := FromWei(raw, tt.decimals)
			if !got.Equal(decimal.RequireFromString(tt.want)) {
				t.Errorf("FromWei(%s, %d) = %s, want %s", tt.raw, tt.decimals, got, tt.want)
			}
		})
	}
}

// ToWei(FromWei(x, d), d) = x for every raw integer x.
func TestWeiRoundTrip(t *testing.T) {
	raws := []string{"0", "1", "999", "1000000", "1000000000000000000", "123456789012345678901234567"}
	for _, s := range raws {
		for _, d := range []uint8{0, 6, 8, 18} {
			raw, _ := new(big.Int).SetString(s, 10)
			back := ToWei(FromWei(raw, d), d)
			if back.Cmp(raw) != 0 {
				t.Errorf("round trip %s at %d decimals: got %s", s, d, back)
			}
		}
	}
}

func TestFromWeiNil(t *testing.T) {
	if !FromWei(nil, 18).IsZero() {
		t.Error("FromWei(nil) should be zero")
	}
}

func TestToWeiExact(t *testing.T) {
	if _, err := ToWeiExact(decimal.RequireFromString("0.0000001"), 6); err == nil {
		t.Error("expected error for excess precision")
	}
	got, err := ToWeiExact(decimal.RequireFromString("1.25"), 6)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.String() != "1250000" {
		t.Errorf("got %s, want 1250000", got)
	}
}

func TestParse(t *testing.T) {
	if _, err := Parse("ARB"); err != nil {
		t.Errorf("ARB should parse: %v", err)
	}
	if _, err := Parse("DOGE2"); err == nil {
		t.Error("unknown symbol should fail")
	}
}

func TestPairString(t *testing.T) {
	p := Pair{Base: ARB, Quote: USDC}
	if p.String() != "ARB_USDC" {
		t.Errorf("got %s", p.String())
	}
}
