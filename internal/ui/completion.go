package ui

import (
	"fmt"

	"github.com/bamsammich/aio/internal/stats"
)

// CompletionSummary builds a final summary line from a snapshot.
// Format: done ✓  ops 3  size 2.1 GB  avg 641 MB/s  time 3s  errors 0
func CompletionSummary(snap stats.Snapshot) string {
	total := snap.TotalBytes()
	avgSpeed := 0.0
	if snap.Elapsed.Seconds() > 0 {
		avgSpeed = float64(total) / snap.Elapsed.Seconds()
	}

	icon := "\u2713"
	if snap.OpsFailed > 0 || snap.OpsSkipped > 0 {
		icon = "\u2717"
	}

	base := fmt.Sprintf("done %s  ops %s  size %s  avg %s  time %s",
		icon,
		FormatCount(snap.OpsCompleted),
		FormatBytes(total),
		FormatRate(avgSpeed),
		FormatDuration(snap.Elapsed),
	)

	if snap.OpsSkipped > 0 {
		base += fmt.Sprintf("  skipped %s", FormatCount(snap.OpsSkipped))
	}

	base += fmt.Sprintf("  errors %d", snap.OpsFailed)

	return base
}
