package main

import (
	"strconv"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"yaad/internal/media"
)

// column describes one table column; numeric columns are right-aligned.
type column struct {
	title   string
	numeric bool
}

func renderTable(columns []column, rows [][]string) string {
	if len(columns) == 0 {
		return ""
	}

	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)

	header := make(table.Row, len(columns))
	configs := make([]table.ColumnConfig, len(columns))
	for i, col := range columns {
		header[i] = col.title
		align := text.AlignLeft
		if col.numeric {
			align = text.AlignRight
		}
		configs[i] = table.ColumnConfig{
			Number:      i + 1,
			Align:       align,
			AlignHeader: text.AlignLeft,
		}
	}
	tw.AppendHeader(header)
	tw.SetColumnConfigs(configs)

	for _, row := range rows {
		r := make(table.Row, len(columns))
		for i := range columns {
			if i < len(row) {
				r[i] = row[i]
			}
		}
		tw.AppendRow(r)
	}

	return tw.Render()
}

func resultTable(result media.ImportResult) string {
	columns := []column{
		{title: "Imported", numeric: true},
		{title: "Updated", numeric: true},
		{title: "Skipped", numeric: true},
		{title: "Failed", numeric: true},
		{title: "Total", numeric: true},
	}
	row := []string{
		strconv.Itoa(result.Imported),
		strconv.Itoa(result.Updated),
		strconv.Itoa(result.Skipped),
		strconv.Itoa(result.Failed),
		strconv.Itoa(result.Total()),
	}
	return renderTable(columns, [][]string{row})
}
