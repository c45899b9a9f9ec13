package core

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
)

func TestParseAmount(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"plain integer", "450", "450"},
		{"two decimals", "120.50", "120.5"},
		{"comma separator", "120,50", "120.5"},
		{"negative", "-80.25", "-80.25"},
		{"rounds to cents", "10.005", "10.01"},
		{"whitespace", " 15.00 ", "15"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseAmount(tt.input)
			if err != nil {
				t.Fatalf("ParseAmount(%q) error = %v", tt.input, err)
			}
			if got.String() != tt.want {
				t.Errorf("ParseAmount(%q) = %s, want %s", tt.input, got, tt.want)
			}
		})
	}
}

func TestParseAmountRejectsGarbage(t *testing.T) {
	for _, input := range []string{"", "abc", "12.3.4", "€10"} {
		if _, err := ParseAmount(input); !errors.Is(err, ErrValidation) {
			t.Errorf("ParseAmount(%q) error = %v, want ErrValidation", input, err)
		}
	}
}

func TestFormatAmountAlwaysTwoDecimals(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"450", "450.00"},
		{"120.5", "120.50"},
		{"-80", "-80.00"},
		{"0", "0.00"},
	}
	for _, tt := range tests {
		if got := FormatAmount(decimal.RequireFromString(tt.input)); got != tt.want {
			t.Errorf("FormatAmount(%s) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestDecimalAdditionIsExact(t *testing.T) {
	// 0.1 + 0.2 is the classic binary float failure.
	sum := decimal.RequireFromString("0.1").Add(decimal.RequireFromString("0.2"))
	if !sum.Equal(decimal.RequireFromString("0.3")) {
		t.Errorf("0.1 + 0.2 = %s, want 0.3", sum)
	}
}
