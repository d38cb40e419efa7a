package stats

import (
	"context"
	"fmt"
	"time"

	"github.com/maksimkurb/keen-relay/src/internal/log"
)

// StartReporter logs traffic rates every interval while there is activity.
// It stops when ctx is cancelled.
func StartReporter(ctx context.Context, c *Collector, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		var prev Snapshot
		for {
			select {
			case <-ticker.C:
				cur := c.Snapshot()
				if line, active := formatDelta(prev, cur, interval); active {
					log.Infof("%s", line)
				}
				prev = cur
			case <-ctx.Done():
				return
			}
		}
	}()
}

func formatDelta(prev, cur Snapshot, interval time.Duration) (string, bool) {
	secs := interval.Seconds()
	up := float64(cur.BytesUp-prev.BytesUp) / secs
	down := float64(cur.BytesDown-prev.BytesDown) / secs
	opened := cur.TunnelsOpened - prev.TunnelsOpened
	closed := cur.TunnelsClosed - prev.TunnelsClosed
	queries := cur.DNSQueries - prev.DNSQueries

	active := opened > 0 || closed > 0 || queries > 0 || up > 10 || down > 10
	return fmt.Sprintf("Up: %s/s | Down: %s/s | Tunnels: %2d↑ %2d↓ (%d active) | DNS: %d queries",
		formatBytes(up), formatBytes(down), opened, closed, cur.TunnelsActive, queries), active
}

// byteUnits defines the units for formatting byte counts in a human-readable way.
var byteUnits = []string{"B", "KiB", "MiB", "GiB", "TiB", "PiB"}

// formatBytes formats a byte count with a fixed width of 8 characters,
// e.g. "99.0   B", " 1.5 KiB".
func formatBytes(b float64) string {
	unitIdx := 0

	// to prevent "100.0 KiB", which is 9 chars
	for b > 99 && unitIdx < 5 {
		b /= 1024
		unitIdx++
	}

	return fmt.Sprintf("%4.1f %3s", b, byteUnits[unitIdx])
}
