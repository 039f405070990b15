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

// tableColumn names a column and how its cells line up.
type tableColumn struct {
	title string
	align columnAlignment
}

// renderTable draws rows under columns. A non-nil footer is rendered below
// the body, padded or truncated to the column count.
func renderTable(columns []tableColumn, rows [][]string, footer []string) string {
	if len(columns) == 0 {
		return ""
	}

	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.Style().Format.Footer = text.FormatDefault
	tw.AppendHeader(toRow(columns, func(i int) string { return columns[i].title }))
	for _, row := range rows {
		tw.AppendRow(toRow(columns, cellAt(row)))
	}
	if footer != nil {
		tw.AppendFooter(toRow(columns, cellAt(footer)))
	}

	configs := make([]table.ColumnConfig, 0, len(columns))
	for i, col := range columns {
		align := text.AlignLeft
		if col.align == alignRight {
			align = text.AlignRight
		}
		configs = append(configs, table.ColumnConfig{
			Number:           i + 1,
			Align:            align,
			AlignFooter:      align,
			AlignHeader:      text.AlignLeft,
			WidthMax:         72,
			WidthMaxEnforcer: text.WrapSoft,
		})
	}
	tw.SetColumnConfigs(configs)
	return tw.Render() + "\n"
}

func toRow(columns []tableColumn, cell func(int) string) table.Row {
	row := make(table.Row, len(columns))
	for i := range columns {
		row[i] = cell(i)
	}
	return row
}

func cellAt(values []string) func(int) string {
	return func(i int) string {
		if i < len(values) {
			return values[i]
		}
		return ""
	}
}
