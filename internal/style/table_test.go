package style

import (
	"strings"
	"testing"
)

func TestTable_RenderAlignsColumns(t *testing.T) {
	tbl := NewTable(
		Column{Name: "BRANCH", Width: 10},
		Column{Name: "STATUS", Width: 12},
	)
	tbl.AddRow("main", "idle")
	tbl.AddRow("release", "integrating")

	out := tbl.Render()
	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	if len(lines) != 4 { // header, separator, 2 rows
		t.Fatalf("expected 4 lines, got %d: %q", len(lines), out)
	}
	if !strings.Contains(lines[0], "BRANCH") {
		t.Errorf("header missing BRANCH: %q", lines[0])
	}
}

func TestTable_TruncatesOverlongValues(t *testing.T) {
	tbl := NewTable(Column{Name: "X", Width: 5})
	tbl.AddRow("abcdefgh")

	out := tbl.Render()
	if !strings.Contains(out, "...") {
		t.Errorf("expected truncated value to contain ellipsis, got %q", out)
	}
}

func TestTable_NoHeaderSeparatorWhenDisabled(t *testing.T) {
	tbl := NewTable(Column{Name: "X", Width: 3}).SetHeaderSeparator(false)
	tbl.AddRow("a")

	out := tbl.Render()
	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines with separator disabled, got %d: %q", len(lines), out)
	}
}

func TestStripAnsi_RemovesEscapeCodes(t *testing.T) {
	got := stripAnsi("\x1b[1;32mhello\x1b[0m")
	if got != "hello" {
		t.Errorf("stripAnsi() = %q, want %q", got, "hello")
	}
}
