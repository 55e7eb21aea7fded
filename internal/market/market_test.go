package market

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestDeltaBp(t *testing.T) {
	tests := []struct {
		name   string
		higher string
		lower  string
		want   string
	}{
		{"one_percent", "101", "100", "100"},
		{"spec_example", "1.010", "1.001", "89.9100899100899101"},
		{"equal", "100", "100", "0"},
		{"zero_lower_guarded", "100", "0", "0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DeltaBp(decimal.RequireFromString(tt.higher), decimal.RequireFromString(tt.lower))
			want := decimal.RequireFromString(tt.want)
			if got.Sub(want).Abs().GreaterThan(decimal.New(1, -6)) {
				t.Errorf("DeltaBp(%s, %s) = %s, want %s", tt.higher, tt.lower, got, want)
			}
		})
	}
}
