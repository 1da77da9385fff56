package cli

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/askiada/go-looprelax/internal/batch"
	"github.com/askiada/go-looprelax/pkg/pipeline/checkpoint"
)

var (
	colorSuccess = lipgloss.Color("#00D787")
	colorWarning = lipgloss.Color("#FFAF00")
	colorError   = lipgloss.Color("#FF5F87")
	colorInfo    = lipgloss.Color("#5FAFFF")
	colorMuted   = lipgloss.Color("#888888")

	styleHeader  = lipgloss.NewStyle().Foreground(colorInfo).Bold(true).Padding(0, 1)
	styleCell    = lipgloss.NewStyle().Padding(0, 1)
	styleSuccess = styleCell.Foreground(colorSuccess)
	styleWarning = styleCell.Foreground(colorWarning)
	styleBorder  = lipgloss.NewStyle().Foreground(colorMuted)
	styleTitle   = lipgloss.NewStyle().Foreground(colorInfo).Bold(true)
	styleError   = lipgloss.NewStyle().Foreground(colorError).Bold(true)
)

const statusColumn = 2

func newTable(headers ...string) *table.Table {
	return table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(styleBorder).
		Headers(headers...)
}

func renderReports(wrt io.Writer, reports []batch.Report) error {
	rows := make([][]string, 0, len(reports))
	for _, report := range reports {
		score := "-"
		if v, ok := report.Scores.Get("final_looprelax_score"); ok {
			score = strconv.FormatFloat(v, 'f', 3, 64)
		}
		rows = append(rows, []string{
			report.Job.Name,
			report.Job.Tag,
			report.Result.Status.String(),
			strconv.FormatBool(report.Result.AllRegionsClosed),
			strconv.Itoa(report.Result.RegionCount),
			strconv.Itoa(report.Result.RemodelAttempts),
			score,
			report.Elapsed.Round(time.Millisecond).String(),
		})
	}

	t := newTable("model", "tag", "status", "closed", "regions", "attempts", "score", "elapsed").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return styleHeader
			case col == statusColumn && row >= 0 && row < len(reports) && reports[row].Retry():
				return styleWarning
			case col == statusColumn:
				return styleSuccess
			default:
				return styleCell
			}
		})
	_, err := fmt.Fprintln(wrt, t.Render())

	return err
}

func renderRecords(wrt io.Writer, tag string, recs []*checkpoint.Record) error {
	_, err := fmt.Fprintln(wrt, styleTitle.Render(fmt.Sprintf("%d checkpoint(s) for %s", len(recs), tag)))
	if err != nil || len(recs) == 0 {
		return err
	}

	rows := make([][]string, 0, len(recs))
	for _, rec := range recs {
		debug := "-"
		if rec.DebugScore != nil {
			debug = strconv.FormatFloat(*rec.DebugScore, 'f', 3, 64)
		}
		rows = append(rows, []string{
			rec.Label,
			strconv.FormatBool(rec.HasSnapshot()),
			strconv.FormatBool(rec.Recoverable),
			strconv.FormatBool(rec.Closed),
			debug,
			rec.CreatedAt.Format(time.RFC3339),
		})
	}
	t := newTable("label", "snapshot", "recoverable", "closed", "debug score", "created").
		Rows(rows...).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return styleHeader
			}
			return styleCell
		})
	_, err = fmt.Fprintln(wrt, t.Render())

	return err
}
