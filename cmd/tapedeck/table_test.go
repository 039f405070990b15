package main

import (
	"strings"
	"testing"
)

func TestRenderTableKeepsFooterCase(t *testing.T) {
	out := renderTable([]tableColumn{
		{title: "Segment"},
		{title: "Size", align: alignRight},
	}, [][]string{{"2026-01-01_00-00-00.mkv", "10 B"}}, []string{"1 files", "10 B"})

	requireContains(t, out, "1 files")
	if strings.Contains(out, "1 FILES") {
		t.Fatalf("footer was upper-cased:\n%s", out)
	}
	requireContains(t, out, "2026-01-01_00-00-00.mkv")
}
