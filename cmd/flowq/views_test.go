package main

import (
	"strings"
	"testing"
	"time"

	"flowq/internal/queue"
)

func TestFormatStatusLabel(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"in_progress", "In Progress"},
		{"queued", "Queued"},
		{" failed ", "Failed"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := formatStatusLabel(tt.in); got != tt.want {
			t.Fatalf("formatStatusLabel(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestBuildItemRowsNumbersQueuedItems(t *testing.T) {
	now := time.Now()
	items := []*queue.Item{
		{ID: 3, ItemType: queue.ItemTypeChat, ItemID: 1, Title: "running", Status: queue.StatusInProgress, AgentID: "a", CreatedAt: now},
		{ID: 1, ItemType: queue.ItemTypeChat, ItemID: 2, Title: "first", Status: queue.StatusQueued, CreatedAt: now},
		{ID: 2, ItemType: queue.ItemTypeTask, ItemID: 9, Title: "second", Status: queue.StatusQueued, CreatedAt: now},
		{ID: 4, ItemType: queue.ItemTypeChat, ItemID: 3, Title: "dead", Status: queue.StatusFailed, DeadLettered: true, CreatedAt: now},
	}
	rows := buildItemRows(items)
	if len(rows) != 4 {
		t.Fatalf("expected 4 rows, got %d", len(rows))
	}
	if rows[0][1] != "-" || rows[1][1] != "1" || rows[2][1] != "2" {
		t.Fatalf("unexpected positions: %v %v %v", rows[0], rows[1], rows[2])
	}
	if rows[2][2] != "task:9" {
		t.Fatalf("unexpected ref column: %v", rows[2])
	}
	if !strings.Contains(rows[3][5], "dead-lettered") {
		t.Fatalf("expected dead-letter marker, got %v", rows[3])
	}
}

func TestTableLayoutRender(t *testing.T) {
	if got := itemTable.render(nil); got != "Queue is empty" {
		t.Fatalf("expected empty message, got %q", got)
	}
	if got := statsTable.render(nil); !strings.Contains(strings.ToLower(got), "status") {
		t.Fatalf("expected bare header for layout without empty message, got %q", got)
	}

	out := ticketTable.render([][]string{{"7", "Write docs"}, {"8", "Ship", "Done", "-", "extra"}})
	for _, want := range []string{"Write docs", "Ship", "Done"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in table:\n%s", want, out)
		}
	}
	if strings.Contains(out, "extra") {
		t.Fatalf("expected cells beyond the header to be dropped:\n%s", out)
	}
}
