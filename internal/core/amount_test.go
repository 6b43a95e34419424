package core

import (
	"testing"
)

func TestParseAmount(t *testing.T) {
	cases := []struct {
		in   string
		want string
		ok   bool
	}{
		{"12.34", "12.34", true},
		{"12,34", "12.34", true},
		{" 40.00 ", "40", true},
		{"0.01", "0.01", true},
		{"0.009", "", false},
		{"0", "", false},
		{"", "", false},
		{"-5", "", false},
		{"+5", "", false},
		{"abc", "", false},
		{"1.2.3", "", false},
	}
	for _, tc := range cases {
		got, err := ParseAmount(tc.in)
		if tc.ok && err != nil {
			t.Fatalf("ParseAmount(%q): unexpected error %v", tc.in, err)
		}
		if !tc.ok {
			if err == nil {
				t.Fatalf("ParseAmount(%q): expected error", tc.in)
			}
			continue
		}
		if got.String() != tc.want {
			t.Fatalf("ParseAmount(%q) = %s, want %s", tc.in, got, tc.want)
		}
	}
}

func TestFormatAmount(t *testing.T) {
	d, err := ParseAmount("160.5")
	if err != nil {
		t.Fatal(err)
	}
	if s := FormatAmount(d, "USD"); s != "$160.50" {
		t.Fatalf("got %q", s)
	}
	if s := FormatAmount(d, "EUR"); s != "€160.50" {
		t.Fatalf("got %q", s)
	}
}
