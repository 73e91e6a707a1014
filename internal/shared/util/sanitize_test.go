package util

import (
	"errors"
	"testing"
)

func TestSafeFileName(t *testing.T) {
	cases := []struct {
		in   string
		want string
		err  bool
	}{
		{in: "DISC-rapport-jan.pdf", want: "DISC-rapport-jan.pdf"},
		{in: " reports/org-1/v1/jan.pdf ", want: "jan.pdf"},
		{in: `dir\report "x";.pdf`, want: "report _x__.pdf"},
		{in: "line\nbreak.pdf", want: "linebreak.pdf"},
		{in: "../etc/passwd", err: true},
		{in: "   ", err: true},
		{in: "/", err: true},
	}
	for _, tc := range cases {
		got, err := SafeFileName(tc.in)
		if tc.err {
			if !errors.Is(err, ErrInvalidFileName) {
				t.Fatalf("%q: expected ErrInvalidFileName, got %q, %v", tc.in, got, err)
			}
			continue
		}
		if err != nil || got != tc.want {
			t.Fatalf("%q: got %q, %v; want %q", tc.in, got, err, tc.want)
		}
	}
}
