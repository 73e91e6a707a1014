package util

import "testing"

func TestFingerprint(t *testing.T) {
	got := Fingerprint("Jan@Example.com ")
	if got != Fingerprint("jan@example.com") {
		t.Fatalf("expected case and space insensitive fingerprint, got %s", got)
	}
	if got == Fingerprint("piet@example.com") {
		t.Fatalf("expected distinct fingerprints")
	}
	for _, ch := range got {
		if !((ch >= 'a' && ch <= 'f') || (ch >= '0' && ch <= '9')) {
			t.Fatalf("fingerprint contains non-hex character: %c", ch)
		}
	}
	if len(got) != 12 {
		t.Fatalf("expected 12 hex characters, got %d", len(got))
	}
}
