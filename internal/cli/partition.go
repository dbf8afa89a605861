package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/vmanchik/sparkify-pipeline/internal/scheduler"
)

var partitionLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04",
	"2006-01-02T15",
	"2006-01-02",
}

// parsePartition reads a partition timestamp in UTC. Empty means the
// partition the most recent tick of schedule processed, the same one the
// scheduler would pick at now.
func parsePartition(s, schedule string, now time.Time) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return scheduler.LogicalDate(schedule, now)
	}
	for _, layout := range partitionLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid partition %q: use RFC3339, 2006-01-02T15 or 2006-01-02", s)
}
