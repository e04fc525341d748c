package domain

import "testing"

func TestInfoHashHexRoundTrip(t *testing.T) {
	h, err := InfoHashFromHex("0123456789abcdef0123456789abcdef01234567")
	if err != nil {
		t.Fatalf("InfoHashFromHex: %v", err)
	}
	if got := h.Hex(); got != "0123456789abcdef0123456789abcdef01234567" {
		t.Fatalf("Hex() = %q, want original string", got)
	}
}

func TestInfoHashIsZero(t *testing.T) {
	zero := InfoHash(make([]byte, 20))
	if !zero.IsZero() {
		t.Fatal("all-zero 20-byte hash should be IsZero")
	}

	nonZero, err := InfoHashFromHex("0000000000000000000000000000000000000001")
	if err != nil {
		t.Fatalf("InfoHashFromHex: %v", err)
	}
	if nonZero.IsZero() {
		t.Fatal("hash with a trailing 1 byte should not be IsZero")
	}
}

func TestInfoHashFromHexInvalid(t *testing.T) {
	if _, err := InfoHashFromHex("not-hex"); err == nil {
		t.Fatal("expected an error decoding non-hex input")
	}
}
