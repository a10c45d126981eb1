package main

import (
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

type columnAlignment int

const (
	alignLeft columnAlignment = iota
	alignRight
)

// tableLayout describes one listing: its columns and what to print when
// there is nothing to list.
type tableLayout struct {
	headers []string
	aligns  []columnAlignment
	empty   string
}

var (
	queueTable = tableLayout{
		headers: []string{"ID", "Project", "Name", "State", "Parallel", "Timeout"},
		aligns:  []columnAlignment{alignRight, alignLeft, alignLeft, alignLeft, alignRight, alignLeft},
		empty:   "No queues",
	}
	itemTable = tableLayout{
		headers: []string{"ID", "Pos", "Ref", "Title", "Priority", "Status", "Agent", "Retries"},
		aligns:  []columnAlignment{alignRight, alignRight, alignLeft, alignLeft, alignRight, alignLeft, alignLeft, alignRight},
		empty:   "Queue is empty",
	}
	statsTable = tableLayout{
		headers: []string{"Status", "Count"},
		aligns:  []columnAlignment{alignLeft, alignRight},
	}
	ticketTable = tableLayout{
		headers: []string{"ID", "Title", "Status", "Queue"},
		aligns:  []columnAlignment{alignRight, alignLeft, alignLeft, alignLeft},
		empty:   "No tickets",
	}
	taskTable = tableLayout{
		headers: []string{"Task", "Title", "Status", "Queue"},
		aligns:  []columnAlignment{alignRight, alignLeft, alignLeft, alignLeft},
		empty:   "No tasks",
	}
)

// render draws rows under the layout's headers. Short rows are padded and
// extra cells dropped. With no rows the layout's empty message is returned
// instead of a bare header.
func (l tableLayout) render(rows [][]string) string {
	columns := len(l.headers)
	if columns == 0 {
		return ""
	}
	if len(rows) == 0 && l.empty != "" {
		return l.empty
	}

	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.AppendHeader(l.row(l.headers))
	for _, cells := range rows {
		tw.AppendRow(l.row(cells))
	}

	configs := make([]table.ColumnConfig, columns)
	for i := range configs {
		align := text.AlignLeft
		if i < len(l.aligns) && l.aligns[i] == alignRight {
			align = text.AlignRight
		}
		configs[i] = table.ColumnConfig{Number: i + 1, Align: align, AlignHeader: text.AlignLeft}
	}
	tw.SetColumnConfigs(configs)
	return tw.Render()
}

func (l tableLayout) row(cells []string) table.Row {
	row := make(table.Row, len(l.headers))
	for i := range row {
		if i < len(cells) {
			row[i] = cells[i]
		} else {
			row[i] = ""
		}
	}
	return row
}

// renderDetails renders label/value pairs as a two-column table without a
// header, for single-record show commands.
func renderDetails(pairs [][2]string) string {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	for _, pair := range pairs {
		tw.AppendRow(table.Row{pair[0], pair[1]})
	}
	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, Align: text.AlignLeft},
		{Number: 2, Align: text.AlignLeft},
	})
	return tw.Render()
}
