package money

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
)

func TestParse(t *testing.T) {
	cases := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"300", "300", false},
		{" 49.99 ", "49.99", false},
		{"1,250.50", "1250.5", false},
		{"0", "", true},
		{"-5", "", true},
		{"abc", "", true},
		{"", "", true},
	}
	for _, tc := range cases {
		got, err := Parse(tc.in)
		if tc.wantErr {
			if err == nil {
				t.Errorf("Parse(%q) expected error, got %s", tc.in, got)
			}
			continue
		}
		if err != nil {
			t.Errorf("Parse(%q) unexpected error: %v", tc.in, err)
			continue
		}
		if got.String() != tc.want {
			t.Errorf("Parse(%q) = %s, want %s", tc.in, got, tc.want)
		}
	}
}

func TestParseNotPositive(t *testing.T) {
	if _, err := Parse("0.00"); !errors.Is(err, ErrNotPositive) {
		t.Fatalf("expected ErrNotPositive, got %v", err)
	}
}

func TestPerHead(t *testing.T) {
	total := decimal.RequireFromString("300")
	if got := PerHead(total, 3); got.StringFixed(2) != "100.00" {
		t.Fatalf("PerHead(300, 3) = %s", got)
	}
	if got := PerHead(decimal.RequireFromString("100"), 3); got.StringFixed(2) != "33.33" {
		t.Fatalf("PerHead(100, 3) = %s", got)
	}
	if got := PerHead(total, 0); !got.IsZero() {
		t.Fatalf("PerHead with zero participants = %s", got)
	}
}

func TestSumMatches(t *testing.T) {
	total := decimal.RequireFromString("300")
	if !SumMatches(decimal.RequireFromString("300"), total) {
		t.Fatal("exact sum should match")
	}
	if !SumMatches(decimal.RequireFromString("299.99"), total) {
		t.Fatal("sum within tolerance should match")
	}
	if SumMatches(decimal.RequireFromString("299.98"), total) {
		t.Fatal("sum beyond tolerance should not match")
	}
}

func TestFormat(t *testing.T) {
	if got := Format("$", decimal.RequireFromString("49.9")); got != "$49.90" {
		t.Fatalf("Format = %s", got)
	}
	if got := Format("", decimal.RequireFromString("1")); got != "$1.00" {
		t.Fatalf("Format default symbol = %s", got)
	}
}
