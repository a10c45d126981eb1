package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"

	"flowq/internal/cleanup"
)

type statusKind int

const (
	statusInfo statusKind = iota
	statusOK
	statusWarn
)

const (
	ansiReset  = "\x1b[0m"
	ansiGreen  = "\x1b[32m"
	ansiYellow = "\x1b[33m"
	ansiBlue   = "\x1b[34m"
)

const (
	statusLabelWidth = 16
	statusIndent     = "  "
)

func renderStatusLine(label string, kind statusKind, message string, colorize bool) string {
	statusText := statusKindLabel(kind)
	if message != "" {
		statusText = fmt.Sprintf("[%s] %s", statusText, message)
	} else {
		statusText = fmt.Sprintf("[%s]", statusText)
	}
	base := fmt.Sprintf("%s%-*s %s", statusIndent, statusLabelWidth, label+":", statusText)
	if colorize {
		if color := statusKindColor(kind); color != "" {
			return color + base + ansiReset
		}
	}
	return base
}

func statusKindLabel(kind statusKind) string {
	switch kind {
	case statusOK:
		return "OK"
	case statusWarn:
		return "WARN"
	default:
		return "INFO"
	}
}

func statusKindColor(kind statusKind) string {
	switch kind {
	case statusOK:
		return ansiGreen
	case statusWarn:
		return ansiYellow
	default:
		return ansiBlue
	}
}

func renderSectionHeader(title string, colorize bool) []string {
	line := fmt.Sprintf("== %s ==", strings.TrimSpace(title))
	rule := strings.Repeat("-", len(line))
	if colorize {
		line = ansiBlue + line + ansiReset
		rule = ansiBlue + rule + ansiReset
	}
	return []string{line, rule}
}

// renderQueueHealth lays out a health report as status lines followed by
// any issues found.
func renderQueueHealth(h cleanup.QueueHealth, colorize bool) string {
	lines := renderSectionHeader(fmt.Sprintf("Queue %d health", h.QueueID), colorize)

	overall := statusOK
	summary := "no issues"
	if !h.Healthy() {
		overall = statusWarn
		summary = fmt.Sprintf("%d issue(s)", len(h.Issues))
	}
	lines = append(lines,
		renderStatusLine("Overall", overall, summary, colorize),
		renderStatusLine("Active", statusInfo, yesNo(h.IsActive), colorize),
		renderStatusLine("Queued", statusInfo, fmt.Sprintf("%d (oldest %s)", h.Queued, formatOptionalTime(h.OldestQueuedAt)), colorize),
		renderStatusLine("In progress", statusInfo, fmt.Sprintf("%d (oldest %s)", h.InProgress, formatOptionalTime(h.OldestStartedAt)), colorize),
		renderStatusLine("Stale", countKind(h.Stale), fmt.Sprintf("%d", h.Stale), colorize),
		renderStatusLine("Failed", countKind(h.Failed), fmt.Sprintf("%d", h.Failed), colorize),
		renderStatusLine("Dead-lettered", countKind(h.DeadLettered), fmt.Sprintf("%d", h.DeadLettered), colorize),
	)
	for _, issue := range h.Issues {
		lines = append(lines, renderStatusLine("Issue", statusWarn, issue, colorize))
	}
	return strings.Join(lines, "\n") + "\n"
}

func countKind(count int) statusKind {
	if count > 0 {
		return statusWarn
	}
	return statusOK
}

func shouldColorize(writer io.Writer) bool {
	file, ok := writer.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
