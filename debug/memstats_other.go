//go:build !windows

package debug

import (
	"context"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// StartMemLogger logs resident set size (from /proc where available)
// alongside Go heap stats every interval until ctx is done.
func StartMemLogger(ctx context.Context, interval time.Duration, logger *slog.Logger) {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	go every(ctx, interval, func() {
		logger.Info("memstats", memAttrs(residentSet())...)
	})
}

// residentSet reads VmRSS from /proc/self/status; 0 when unavailable.
func residentSet() uint64 {
	b, err := os.ReadFile("/proc/self/status")
	if err != nil {
		return 0
	}
	return parseVmRSS(string(b))
}

func parseVmRSS(status string) uint64 {
	for _, line := range strings.Split(status, "\n") {
		if !strings.HasPrefix(line, "VmRSS:") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			return 0
		}
		kb, err := strconv.ParseUint(fields[1], 10, 64)
		if err != nil {
			return 0
		}
		return kb * 1024
	}
	return 0
}
