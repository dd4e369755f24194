package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"

	"github.com/Tyrowin/nexus/internal/stats"
)

var (
	cyan   = color.New(color.FgCyan).SprintFunc()
	green  = color.New(color.FgGreen).SprintFunc()
	yellow = color.New(color.FgYellow).SprintFunc()
	red    = color.New(color.FgRed).SprintFunc()
	bold   = color.New(color.Bold).SprintFunc()
	faint  = color.New(color.Faint).SprintFunc()
)

// printTable prints rows under headers in aligned columns.
func printTable(w io.Writer, headers []string, rows [][]string) {
	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = len(h)
	}
	for _, row := range rows {
		for i, cell := range row {
			if i < len(widths) && len(cell) > widths[i] {
				widths[i] = len(cell)
			}
		}
	}

	for i, h := range headers {
		fmt.Fprintf(w, "%-*s  ", widths[i], h)
	}
	fmt.Fprintln(w)
	for i := range headers {
		fmt.Fprintf(w, "%s  ", strings.Repeat("-", widths[i]))
	}
	fmt.Fprintln(w)
	for _, row := range rows {
		for i, cell := range row {
			if i < len(widths) {
				fmt.Fprintf(w, "%-*s  ", widths[i], cell)
			}
		}
		fmt.Fprintln(w)
	}
}

// printStatistics renders every counter of snap, followed by derived values.
func printStatistics(w io.Writer, snap stats.Snapshot) {
	rows := make([][]string, 0, len(stats.Counters())+2)
	for _, c := range stats.Counters() {
		rows = append(rows, []string{c.String(), fmt.Sprint(snap.Get(c))})
	}
	rows = append(rows,
		[]string{"active_connections", fmt.Sprint(snap.Active())},
		[]string{"rejection_ratio", fmt.Sprintf("%.2f", snap.RejectionRatio())},
	)
	printTable(w, []string{"COUNTER", "VALUE"}, rows)
}
