package domain

import (
	"errors"
	"testing"
)

func TestEngineErrorUnwrap(t *testing.T) {
	cause := errors.New("disk full")
	err := NewEngineError(SeverityRecovered, "persist", cause)
	if !errors.Is(err, cause) {
		t.Fatal("EngineError should unwrap to its underlying cause")
	}
}

func TestEngineErrorMessageWithAndWithoutHash(t *testing.T) {
	cause := errors.New("boom")
	err := NewEngineError(SeveritySurfaced, "remove_torrent", cause)

	if got := err.Error(); got == "" {
		t.Fatal("Error() should not be empty")
	}

	err.WithHash("deadbeef", RpcId(5))
	msg := err.Error()
	if msg == "" {
		t.Fatal("Error() with hash should not be empty")
	}
	if err.InfoHash != "deadbeef" || err.RpcID != 5 {
		t.Fatalf("WithHash did not set fields: InfoHash=%q RpcID=%d", err.InfoHash, err.RpcID)
	}
}

func TestSeverityString(t *testing.T) {
	cases := map[Severity]string{
		SeverityFatal:     "fatal",
		SeveritySurfaced:  "surfaced",
		SeverityRecovered: "recovered",
		SeveritySilent:    "silent",
	}
	for sev, want := range cases {
		if got := sev.String(); got != want {
			t.Errorf("Severity(%d).String() = %q, want %q", sev, got, want)
		}
	}
}
