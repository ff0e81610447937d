// Package output renders operator-facing progress: framed sections,
// status icons and summaries for each phase of a deploy.
package output

import (
	"fmt"
	"os"
)

// Colors for terminal output.
const (
	colorReset = "\033[0m"
	colorRed   = "\033[31m"
)

func isTerminal() bool {
	fi, err := os.Stdout.Stat()
	if err != nil {
		return false
	}
	return fi.Mode()&os.ModeCharDevice != 0
}

// UseColor returns true if colored output should be used.
// Respects NO_COLOR env, TERM=dumb, and terminal detection.
func UseColor() bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	if os.Getenv("TERM") == "dumb" {
		return false
	}
	return isTerminal() || IsCI()
}

// RowStatus writes a row with label, detail, and a status icon.
func RowStatus(sec *Section, label, detail, status string, color bool) {
	icon := StatusIcon(status, color)
	if detail != "" {
		sec.Row("%-24s %s %s", label, detail, icon)
	} else {
		sec.Row("%-24s %s", label, icon)
	}
}

// RowErrors writes one row per error message, marked as failed.
func RowErrors(sec *Section, errs []string, color bool) {
	for _, e := range errs {
		sec.Row("%s %s", StatusIcon("failed", color), e)
	}
}

// ArtifactRow describes one published or built file.
type ArtifactRow struct {
	Key    string
	Size   int64
	Status string // success, failed, skipped
	Detail string
}

// SectionArtifacts writes an aligned key / size / status table.
func SectionArtifacts(sec *Section, rows []ArtifactRow, color bool) {
	width := 0
	for _, r := range rows {
		width = max(width, len(r.Key))
	}
	for _, r := range rows {
		line := fmt.Sprintf("%-*s %9s %s", width, r.Key, HumanSize(r.Size), StatusIcon(r.Status, color))
		if r.Detail != "" {
			detail := r.Detail
			if r.Status == "failed" && color {
				detail = colorRed + detail + colorReset
			}
			line += "  " + detail
		}
		sec.Row("%s", line)
	}
}

// HumanSize formats a byte count (1.2 KB, 3.4 MB).
func HumanSize(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(n)/float64(div), "KMGTPE"[exp])
}
