package runner

import (
	"fmt"
	"io"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// writeSummaryTable renders the run's per-test results as a console table.
// It closes every spec-reporter run, so a client tailing the stream gets a
// readable summary after the raw test output.
func writeSummaryTable(w io.Writer, rep report) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetTitle(fmt.Sprintf("Test Results (%s)", formatDuration(rep.Stats.Duration)))

	t.AppendHeader(table.Row{"Test", "Duration", "Status"})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Name: "Test", WidthMax: 60, WidthMaxEnforcer: text.WrapSoft},
		{Name: "Duration", Align: text.AlignRight},
	})

	for _, tc := range rep.Tests {
		t.AppendRow(table.Row{tc.Title, formatDuration(tc.Duration), getResultString(tc.Status)})
	}

	t.AppendFooter(table.Row{
		fmt.Sprintf("%d tests", rep.Stats.Tests),
		formatDuration(rep.Stats.Duration),
		fmt.Sprintf("%d passed, %d failed, %d skipped",
			rep.Stats.Passes, rep.Stats.Failures, rep.Stats.Skipped),
	})

	t.Render()
}

func getResultString(status string) string {
	switch status {
	case ActionPass:
		return "✓ pass"
	case ActionSkip:
		return "- skip"
	default:
		return "✗ fail"
	}
}

// Helper function to format duration to seconds with 1 decimal place
func formatDuration(seconds float64) string {
	return fmt.Sprintf("%.1fs", seconds)
}
