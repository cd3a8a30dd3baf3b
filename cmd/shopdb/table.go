// ABOUTME: Column-aligned table output for the shopdb CLI
// ABOUTME: Aligns plain text first and colors the header afterwards so escapes never skew widths

package main

import (
	"bytes"
	"io"
	"strings"
	"text/tabwriter"
)

type table struct {
	header []string
	rows   [][]string
}

func newTable(header ...string) *table {
	return &table{header: header}
}

func (t *table) row(cells ...string) {
	t.rows = append(t.rows, cells)
}

// render writes the aligned table to w with a colored header line.
func (t *table) render(w io.Writer) error {
	var buf bytes.Buffer
	tw := tabwriter.NewWriter(&buf, 0, 4, 2, ' ', 0)
	io.WriteString(tw, strings.Join(t.header, "\t")+"\n")
	for _, r := range t.rows {
		io.WriteString(tw, strings.Join(r, "\t")+"\n")
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	header, body, _ := strings.Cut(buf.String(), "\n")
	if _, err := headerColor.Fprintln(w, strings.TrimRight(header, " ")); err != nil {
		return err
	}
	_, err := io.WriteString(w, body)
	return err
}
