// Package report renders session snapshots as human-readable build
// reports: markdown for the CLI, HTML for the daemon endpoint. Rendering
// is pure; everything shown comes from the snapshot.
package report

import (
	"bytes"
	"fmt"
	"math"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"git.home.luguber.info/inful/buildmon/internal/errors"
	"git.home.luguber.info/inful/buildmon/internal/supervisor"
)

// printer formats counts with locale separators ("12,345 lines").
var printer = message.NewPrinter(language.English)

const timeLayout = "2006-01-02 15:04:05"

// Markdown renders the full session report.
func Markdown(snap supervisor.Snapshot) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Build Report: %s\n\n", snap.BuildID)

	writeSummary(&b, snap)
	writeErrors(&b, snap)
	writeResources(&b, snap)
	writeTiming(&b, snap)
	writeHealth(&b, snap)
	writeDependencies(&b, snap)
	writeNotices(&b, snap)

	return b.String()
}

// HTML renders the markdown report as a standalone page.
func HTML(snap supervisor.Snapshot) (string, error) {
	md := goldmark.New(goldmark.WithExtensions(extension.GFM))
	var body bytes.Buffer
	if err := md.Convert([]byte(Markdown(snap)), &body); err != nil {
		return "", errors.InternalError("render session report", err)
	}

	var page strings.Builder
	page.WriteString("<!DOCTYPE html>\n<html>\n<head>\n<meta charset=\"utf-8\">\n")
	fmt.Fprintf(&page, "<title>Build %s</title>\n", snap.BuildID)
	page.WriteString("</head>\n<body>\n")
	page.Write(body.Bytes())
	page.WriteString("</body>\n</html>\n")
	return page.String(), nil
}

// LogText joins the retained output lines for the raw log export.
func LogText(lines []string) string {
	if len(lines) == 0 {
		return ""
	}
	return strings.Join(lines, "\n") + "\n"
}

func writeSummary(b *strings.Builder, snap supervisor.Snapshot) {
	b.WriteString("## Summary\n\n")
	b.WriteString("| Field | Value |\n| --- | --- |\n")
	row(b, "Status", string(snap.Status))
	row(b, "Targets", targetList(snap.Targets))
	if snap.Phase != "" {
		row(b, "Phase", snap.Phase)
	}
	if snap.Context.ParallelJobs > 0 {
		row(b, "Parallel jobs", fmt.Sprintf("%d", snap.Context.ParallelJobs))
	}
	row(b, "Started", snap.StartedAt.Format(timeLayout))
	row(b, "Duration", formatSeconds(snap.DurationSeconds))
	row(b, "Return code", returnCode(snap))
	lines := printer.Sprintf("%d", snap.OutputLines)
	if snap.DroppedLines > 0 {
		lines += printer.Sprintf(" (%d dropped)", snap.DroppedLines)
	}
	row(b, "Output lines", lines)
	row(b, "Compiler warnings", printer.Sprintf("%d", snap.WarningCount))
	b.WriteString("\n")
}

func writeErrors(b *strings.Builder, snap supervisor.Snapshot) {
	fmt.Fprintf(b, "## Errors (%s)\n\n", printer.Sprintf("%d", snap.ErrorCount))
	if snap.ErrorCount == 0 {
		b.WriteString("No errors recorded.\n\n")
		return
	}

	b.WriteString("| Location | Category | Severity | Message |\n| --- | --- | --- | --- |\n")
	for _, rec := range snap.Errors {
		fmt.Fprintf(b, "| %s | %s | %s | %s |\n",
			cell(location(rec)), rec.Category, rec.Severity, cell(rec.Message))
	}
	if snap.ErrorCount > len(snap.Errors) {
		fmt.Fprintf(b, "\nShowing the first %s of %s errors.\n",
			printer.Sprintf("%d", len(snap.Errors)),
			printer.Sprintf("%d", snap.ErrorCount))
	}
	b.WriteString("\n")

	writeFixes(b, snap)
}

// writeFixes lists one suggestion per matched pattern; a root cause
// repeated down the log still renders a single remediation.
func writeFixes(b *strings.Builder, snap supervisor.Snapshot) {
	seen := map[string]bool{}
	wroteHeader := false
	for _, rec := range snap.Errors {
		if rec.Fix == nil || seen[rec.Fix.Pattern] {
			continue
		}
		seen[rec.Fix.Pattern] = true
		if !wroteHeader {
			b.WriteString("### Suggested fixes\n\n")
			wroteHeader = true
		}
		fmt.Fprintf(b, "**%s** (%s, confidence %d%%)\n\n", rec.Fix.Text, rec.Fix.FixType, rec.Fix.Confidence)
		if len(rec.Fix.Commands) > 0 {
			b.WriteString("```\n")
			for _, cmd := range rec.Fix.Commands {
				b.WriteString(cmd)
				b.WriteString("\n")
			}
			b.WriteString("```\n\n")
		}
	}
}

func writeResources(b *strings.Builder, snap supervisor.Snapshot) {
	if snap.ResourceUsage == "" && snap.ResourcePeak == "" {
		return
	}
	b.WriteString("## Resources\n\n")
	if snap.ResourceUsage != "" {
		fmt.Fprintf(b, "- Average usage: %s\n", snap.ResourceUsage)
	}
	if snap.ResourcePeak != "" {
		fmt.Fprintf(b, "- Peak usage: %s\n", snap.ResourcePeak)
	}
	b.WriteString("\n")
}

func writeTiming(b *strings.Builder, snap supervisor.Snapshot) {
	if snap.Prediction == nil {
		return
	}
	p := snap.Prediction
	b.WriteString("## Timing\n\n")
	fmt.Fprintf(b, "- Estimated: %s (confidence %.0f%%, %s samples)\n",
		formatSeconds(p.DurationSeconds), p.Confidence*100, printer.Sprintf("%d", p.Samples))
	if snap.Status.Active() {
		if snap.ETA != "" {
			fmt.Fprintf(b, "- Expected completion: %s\n", snap.ETA)
		}
	} else {
		fmt.Fprintf(b, "- Actual: %s (%s)\n",
			formatSeconds(snap.DurationSeconds), deviation(snap.DurationSeconds, p.DurationSeconds))
	}
	b.WriteString("\n")
}

func writeHealth(b *strings.Builder, snap supervisor.Snapshot) {
	if snap.HealthScore == nil {
		return
	}
	b.WriteString("## Health\n\n")
	fmt.Fprintf(b, "Build health %d/100 (%s).\n\n", *snap.HealthScore, healthWord(*snap.HealthScore))
}

func writeDependencies(b *strings.Builder, snap supervisor.Snapshot) {
	if len(snap.DependencyChanges) == 0 {
		return
	}
	b.WriteString("## Dependency changes\n\n")
	b.WriteString("| File | Change | Impact |\n| --- | --- | --- |\n")
	for _, c := range snap.DependencyChanges {
		fmt.Fprintf(b, "| %s | %s | %s |\n", cell(c.Path), c.Kind, c.Impact)
	}
	if snap.BuildRecommendation != "" {
		fmt.Fprintf(b, "\nRecommendation: %s\n", snap.BuildRecommendation)
	}
	b.WriteString("\n")
}

func writeNotices(b *strings.Builder, snap supervisor.Snapshot) {
	if len(snap.Warnings) == 0 {
		return
	}
	b.WriteString("## Notices\n\n")
	for _, w := range snap.Warnings {
		fmt.Fprintf(b, "- %s\n", w)
	}
	b.WriteString("\n")
}

func row(b *strings.Builder, field, value string) {
	fmt.Fprintf(b, "| %s | %s |\n", field, cell(value))
}

// cell escapes the markdown table delimiter inside field values.
func cell(s string) string {
	return strings.ReplaceAll(s, "|", "\\|")
}

func targetList(targets []string) string {
	if len(targets) == 0 {
		return "(default)"
	}
	return strings.Join(targets, ", ")
}

// location renders file:line:column as far as the record reported them.
func location(rec supervisor.ErrorRecord) string {
	if rec.File == "" {
		return "-"
	}
	loc := rec.File
	if rec.Line > 0 {
		loc = fmt.Sprintf("%s:%d", loc, rec.Line)
		if rec.Column > 0 {
			loc = fmt.Sprintf("%s:%d", loc, rec.Column)
		}
	}
	return loc
}

func returnCode(snap supervisor.Snapshot) string {
	if snap.ReturnCode != nil {
		return fmt.Sprintf("%d", *snap.ReturnCode)
	}
	if snap.Status.Active() {
		return "pending"
	}
	return "none"
}

func formatSeconds(seconds float64) string {
	return fmt.Sprintf("%.1fs", seconds)
}

// deviation phrases actual versus estimated duration. Differences under
// one percent read as on estimate.
func deviation(actual, estimate float64) string {
	if estimate <= 0 {
		return "no estimate"
	}
	pct := (actual - estimate) / estimate * 100
	switch {
	case math.Abs(pct) < 1:
		return "on estimate"
	case pct > 0:
		return fmt.Sprintf("%.0f%% over estimate", pct)
	default:
		return fmt.Sprintf("%.0f%% under estimate", -pct)
	}
}

// healthWord brackets a score the way operators talk about it.
func healthWord(score int) string {
	switch {
	case score >= 90:
		return "excellent"
	case score >= 70:
		return "good"
	case score >= 50:
		return "moderate"
	default:
		return "poor"
	}
}
