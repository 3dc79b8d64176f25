package utils

import "testing"

func TestParseLimit(t *testing.T) {
	cases := []struct {
		s        string
		def, max int
		want     int
	}{
		{"", 50, 200, 50},
		{"20", 50, 200, 20},
		{" 20 ", 50, 200, 20},
		{"0", 50, 200, 50},
		{"-3", 50, 200, 50},
		{"x", 50, 200, 50},
		{"999", 50, 200, 200},
		{"999999999999999999999999", 50, 200, 50},
		{"500", 50, 0, 500},
	}
	for _, tc := range cases {
		if got := ParseLimit(tc.s, tc.def, tc.max); got != tc.want {
			t.Fatalf("ParseLimit(%q, %d, %d) = %d; want %d", tc.s, tc.def, tc.max, got, tc.want)
		}
	}
}
