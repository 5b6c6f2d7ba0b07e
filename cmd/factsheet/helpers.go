package main

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/mattn/go-isatty"

	"factsheet/internal/store"
)

const (
	ansiGreen  = "\x1b[32m"
	ansiYellow = "\x1b[33m"
	ansiRed    = "\x1b[31m"
	ansiReset  = "\x1b[0m"
)

func shouldColorize(writer io.Writer) bool {
	file, ok := writer.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// statusLabel renders a job or review status, colored when writing to a
// terminal.
func statusLabel(writer io.Writer, status string) string {
	if !shouldColorize(writer) {
		return status
	}
	switch status {
	case string(store.JobSucceeded), string(store.ReviewApproved):
		return ansiGreen + status + ansiReset
	case string(store.JobFailed):
		return ansiRed + status + ansiReset
	case string(store.JobPending), string(store.JobRunning), string(store.ReviewDraft):
		return ansiYellow + status + ansiReset
	default:
		return status
	}
}

func formatTimestamp(value time.Time) string {
	if value.IsZero() {
		return "-"
	}
	return value.Local().Format("2006-01-02 15:04:05")
}

func valueOrDash(value string) string {
	if strings.TrimSpace(value) == "" {
		return "-"
	}
	return value
}

func truncateText(value string, limit int) string {
	runes := []rune(value)
	if limit <= 0 || len(runes) <= limit {
		return value
	}
	if limit <= 3 {
		return string(runes[:limit])
	}
	return string(runes[:limit-3]) + "..."
}
