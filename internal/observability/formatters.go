// Package observability provides formatted output utilities for verbose CLI mode.
package observability

import (
	"fmt"
	"io"
	"strings"

	"github.com/jonathan/video-curator/internal/db"
)

const (
	// boxWidth is the default width for formatted output boxes
	boxWidth = 60
	// maxItemsToShow is the default number of items to display in lists
	maxItemsToShow = 5
)

// Printer handles formatted output for verbose mode
type Printer struct {
	out io.Writer
}

// NewPrinter creates a new Printer that writes to the given writer
func NewPrinter(out io.Writer) *Printer {
	return &Printer{out: out}
}

// printBox prints a formatted box with a title and content
//
//nolint:errcheck // writing to stdout; errors are not recoverable
func (p *Printer) printBox(title string, content string) {
	border := strings.Repeat("─", boxWidth-2)
	fmt.Fprintf(p.out, "┌%s┐\n", border)
	fmt.Fprintf(p.out, "│ %-*s │\n", boxWidth-4, title)
	fmt.Fprintf(p.out, "├%s┤\n", border)

	lines := strings.Split(content, "\n")
	for _, line := range lines {
		// Truncate long lines
		if len(line) > boxWidth-4 {
			line = line[:boxWidth-7] + "..."
		}
		fmt.Fprintf(p.out, "│ %-*s │\n", boxWidth-4, line)
	}

	fmt.Fprintf(p.out, "└%s┘\n", border)
}

// PrintRunSummary outputs a human-readable summary of a finished run.
func (p *Printer) PrintRunSummary(run *db.CurationRun) {
	if run == nil {
		return
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Run:      %s\n", run.ID))
	sb.WriteString(fmt.Sprintf("Kind:     %s (by %s)\n", run.Kind, run.TriggeredBy))
	sb.WriteString(fmt.Sprintf("Status:   %s\n", run.Status))
	sb.WriteString("\n")
	sb.WriteString(fmt.Sprintf("Screened: %d\n", run.Screened))
	sb.WriteString(fmt.Sprintf("Admitted: %d\n", run.Admitted))
	if rate := run.AcceptanceRate(); rate != nil {
		sb.WriteString(fmt.Sprintf("Rate:     %.1f%% (band: %s)\n", *rate*100, run.GuardrailBand))
	} else {
		sb.WriteString(fmt.Sprintf("Rate:     n/a (band: %s)\n", run.GuardrailBand))
	}
	sb.WriteString(fmt.Sprintf("Quota:    %d units\n", run.QuotaUnits))

	if run.SkipCounts.Total() > 0 {
		sb.WriteString("\nRejections:\n")
		for _, item := range []struct {
			label string
			count int
		}{
			{"duplicate", run.SkipCounts.Duplicate},
			{"too short", run.SkipCounts.TooShort},
			{"too long", run.SkipCounts.TooLong},
			{"non-instructional", run.SkipCounts.NonInstructional},
			{"low quality", run.SkipCounts.LowQuality},
		} {
			if item.count > 0 {
				sb.WriteString(fmt.Sprintf("  • %-18s %d\n", item.label, item.count))
			}
		}
	}

	if run.ErrorMessage != nil {
		sb.WriteString(fmt.Sprintf("\nError: %s\n", *run.ErrorMessage))
	}

	p.printBox("CURATION RUN SUMMARY", strings.TrimSuffix(sb.String(), "\n"))
}

// PrintQuotaStatus outputs today's quota ledger.
func (p *Printer) PrintQuotaStatus(ledger *db.QuotaLedger) {
	if ledger == nil {
		return
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Date:     %s\n", ledger.UsageDate))
	sb.WriteString(fmt.Sprintf("Used:     %d / %d units\n", ledger.UnitsConsumed, ledger.DailyBudget))
	sb.WriteString(fmt.Sprintf("Searches: %d\n", ledger.SearchCount))
	sb.WriteString(fmt.Sprintf("Details:  %d\n", ledger.DetailCount))
	if ledger.Exhausted {
		sb.WriteString("\n⚠ EXHAUSTED until the daily reset")
	}

	p.printBox("QUOTA STATUS", sb.String())
}

// PrintSources outputs the rotation pool with cooldown markers.
func (p *Printer) PrintSources(sources []db.SourceState) {
	if len(sources) == 0 {
		p.printBox("SOURCE POOL", "No sources configured.")
		return
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Total sources: %d\n\n", len(sources)))

	count := min(len(sources), maxItemsToShow)
	for i := 0; i < count; i++ {
		s := sources[i]
		title := s.ChannelTitle
		if len(title) > 30 {
			title = title[:27] + "..."
		}
		sb.WriteString(fmt.Sprintf("• %-30s %d videos", title, s.LibraryCount))
		if s.Verified {
			sb.WriteString(" ✓")
		}
		sb.WriteString("\n")
		if s.CooldownUntil != nil {
			sb.WriteString(fmt.Sprintf("  cooldown until %s\n", s.CooldownUntil.Format("2006-01-02")))
		}
	}
	if len(sources) > maxItemsToShow {
		sb.WriteString(fmt.Sprintf("\n... and %d more sources", len(sources)-maxItemsToShow))
	}

	p.printBox("SOURCE POOL", strings.TrimSuffix(sb.String(), "\n"))
}
