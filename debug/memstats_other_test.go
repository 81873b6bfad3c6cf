//go:build !windows

package debug

import "testing"

func TestParseVmRSS(t *testing.T) {
	status := "Name:\tpulse\nVmPeak:\t  9000 kB\nVmRSS:\t  1234 kB\nThreads:\t8\n"
	if got := parseVmRSS(status); got != 1234*1024 {
		t.Fatalf("rss = %d", got)
	}
	if got := parseVmRSS("VmRSS: junk"); got != 0 {
		t.Fatalf("malformed rss = %d", got)
	}
	if got := parseVmRSS(""); got != 0 {
		t.Fatalf("empty rss = %d", got)
	}
}
