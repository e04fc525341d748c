package torrentmgr

import "testing"

func TestDhtNodeCountNilClientIsZero(t *testing.T) {
	if got := dhtNodeCount(nil); got != 0 {
		t.Fatalf("dhtNodeCount(nil) = %d, want 0", got)
	}
}
