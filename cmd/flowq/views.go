package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"flowq/internal/flow"
	"flowq/internal/queue"
)

var titleCaser = cases.Title(language.Und)

// formatStatusLabel renders snake_case statuses as "In Progress".
func formatStatusLabel(status string) string {
	status = strings.TrimSpace(status)
	if status == "" {
		return ""
	}
	return titleCaser.String(strings.ReplaceAll(status, "_", " "))
}

func formatDisplayTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04:05")
}

func formatOptionalTime(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return formatDisplayTime(*t)
}

func formatDuration(d time.Duration) string {
	if d <= 0 {
		return "-"
	}
	return d.Round(time.Millisecond).String()
}

func orDash(value string) string {
	if strings.TrimSpace(value) == "" {
		return "-"
	}
	return value
}

func buildQueueRows(queues []*queue.Queue) [][]string {
	rows := make([][]string, 0, len(queues))
	for _, q := range queues {
		state := "Active"
		if !q.IsActive {
			state = "Paused"
		}
		rows = append(rows, []string{
			strconv.FormatInt(q.ID, 10),
			q.ProjectID,
			q.Name,
			state,
			strconv.Itoa(q.MaxParallelItems),
			formatDuration(q.ProcessingTimeout),
		})
	}
	return rows
}

func buildItemRows(items []*queue.Item) [][]string {
	rows := make([][]string, 0, len(items))
	position := 0
	for _, item := range items {
		pos := "-"
		if item.Status == queue.StatusQueued {
			position++
			pos = strconv.Itoa(position)
		}
		status := formatStatusLabel(string(item.Status))
		if item.DeadLettered {
			status += " (dead-lettered)"
		}
		rows = append(rows, []string{
			strconv.FormatInt(item.ID, 10),
			pos,
			item.Ref().String(),
			item.Title,
			strconv.Itoa(item.Priority),
			status,
			orDash(item.AgentID),
			strconv.Itoa(item.RetryCount),
		})
	}
	return rows
}

func itemDetails(item *queue.Item) [][2]string {
	pairs := [][2]string{
		{"ID", strconv.FormatInt(item.ID, 10)},
		{"Queue", strconv.FormatInt(item.QueueID, 10)},
		{"Ref", item.Ref().String()},
		{"Title", item.Title},
		{"Priority", strconv.Itoa(item.Priority)},
		{"Status", formatStatusLabel(string(item.Status))},
		{"Agent", orDash(item.AgentID)},
		{"Retries", strconv.Itoa(item.RetryCount)},
		{"Created", formatDisplayTime(item.CreatedAt)},
		{"Started", formatOptionalTime(item.StartedAt)},
		{"Completed", formatOptionalTime(item.CompletedAt)},
		{"Estimated", formatDuration(item.EstimatedProcessingTime)},
		{"Actual", formatDuration(item.ActualProcessingTime)},
	}
	if item.Description != "" {
		pairs = append(pairs, [2]string{"Description", item.Description})
	}
	if item.ErrorMessage != "" {
		pairs = append(pairs, [2]string{"Error", item.ErrorMessage})
	}
	if item.Output != "" {
		pairs = append(pairs, [2]string{"Output", item.Output})
	}
	if item.DeadLettered {
		pairs = append(pairs, [2]string{"Dead-lettered", fmt.Sprintf("%s (%s)", formatOptionalTime(item.DeadLetteredAt), orDash(item.DeadLetterReason))})
	}
	return pairs
}

func queueDetails(q *queue.Queue, counts queue.StatusCounts) [][2]string {
	return [][2]string{
		{"ID", strconv.FormatInt(q.ID, 10)},
		{"Project", q.ProjectID},
		{"Name", q.Name},
		{"Description", orDash(q.Description)},
		{"Active", yesNo(q.IsActive)},
		{"Max parallel", strconv.Itoa(q.MaxParallelItems)},
		{"Timeout", formatDuration(q.ProcessingTimeout)},
		{"Queued", strconv.Itoa(counts.Queued)},
		{"In progress", strconv.Itoa(counts.InProgress)},
		{"Completed", strconv.Itoa(counts.Completed)},
		{"Failed", strconv.Itoa(counts.Failed)},
		{"Cancelled", strconv.Itoa(counts.Cancelled)},
		{"Dead-lettered", strconv.Itoa(counts.DeadLettered)},
	}
}

func queueStateDetails(state flow.QueueState) string {
	if !state.InQueue() {
		return "not queued"
	}
	label := fmt.Sprintf("queue %d, %s", state.QueueID, formatStatusLabel(string(state.Status)))
	if state.Position > 0 {
		label += fmt.Sprintf(", position %d", state.Position)
	}
	if state.AgentID != "" {
		label += ", agent " + state.AgentID
	}
	return label
}
