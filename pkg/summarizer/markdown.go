package summarizer

import (
	"fmt"
	"strings"
)

// Translator maps an English heading or label to the output language.
type Translator func(key string) string

// MarkdownFormatter renders a Summary as a Markdown document.
type MarkdownFormatter struct {
	translate Translator
	version   string
}

// MarkdownOption configures a MarkdownFormatter.
type MarkdownOption func(*MarkdownFormatter)

// WithTranslator sets the translator for headings and labels.
func WithTranslator(t Translator) MarkdownOption {
	return func(f *MarkdownFormatter) {
		f.translate = t
	}
}

// WithVersion adds the tool version to the header.
func WithVersion(version string) MarkdownOption {
	return func(f *MarkdownFormatter) {
		f.version = version
	}
}

// NewMarkdownFormatter creates a MarkdownFormatter.
func NewMarkdownFormatter(opts ...MarkdownOption) *MarkdownFormatter {
	f := &MarkdownFormatter{
		translate: func(key string) string { return key },
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Format implements Formatter.
func (f *MarkdownFormatter) Format(summary *Summary) string {
	t := f.translate
	var b strings.Builder

	fmt.Fprintf(&b, "# %s\n\n", t("Extraction Summary"))
	fmt.Fprintf(&b, "- %s: %s\n", t("Generated"), summary.GeneratedAt.Format("2006-01-02 15:04:05 MST"))
	if f.version != "" {
		fmt.Fprintf(&b, "- %s: %s\n", t("Version"), f.version)
	}
	if summary.TotalDuration > 0 {
		fmt.Fprintf(&b, "- %s: %.1f s\n", t("Elapsed"), summary.TotalDuration.Seconds())
	}
	b.WriteString("\n")

	f.writeSettings(&b, summary.Settings)
	f.writeJobs(&b, summary.Jobs)
	for _, job := range summary.Jobs {
		f.writeFrames(&b, job)
	}
	return b.String()
}

func (f *MarkdownFormatter) writeSettings(b *strings.Builder, s Settings) {
	t := f.translate
	fmt.Fprintf(b, "## %s\n\n", t("Settings"))
	fmt.Fprintf(b, "| %s | %s |\n|---|---|\n", t("Setting"), t("Value"))
	fmt.Fprintf(b, "| %s | %d |\n", t("Quality"), s.Quality)
	if s.MaxWidth > 0 {
		fmt.Fprintf(b, "| %s | %d px |\n", t("Max Width"), s.MaxWidth)
	} else {
		fmt.Fprintf(b, "| %s | %s |\n", t("Max Width"), t("Original"))
	}
	fmt.Fprintf(b, "| %s | %d ms |\n", t("Tolerance"), s.Tolerance.Milliseconds())
	fmt.Fprintf(b, "| %s | %d ms |\n", t("Timeout"), s.Timeout.Milliseconds())
	if s.Fallback {
		fmt.Fprintf(b, "| %s | %s |\n", t("Fallback"), t("Enabled"))
	} else {
		fmt.Fprintf(b, "| %s | %s |\n", t("Fallback"), t("Disabled"))
	}
	if s.Concurrency > 0 {
		fmt.Fprintf(b, "| %s | %d |\n", t("Concurrency"), s.Concurrency)
	}
	b.WriteString("\n")
}

func (f *MarkdownFormatter) writeJobs(b *strings.Builder, jobs []JobInfo) {
	t := f.translate
	fmt.Fprintf(b, "## %s\n\n", t("Jobs"))
	if len(jobs) == 0 {
		fmt.Fprintf(b, "%s\n\n", t("No jobs."))
		return
	}

	fmt.Fprintf(b, "| %s | %s | %s | %s | %s | %s |\n|---|---|---|---|---|---|\n",
		t("Job"), t("Video"), t("Codec"), t("Frames"), t("Size"), t("Result"))

	found, total := 0, 0
	for _, job := range jobs {
		codec := job.Codec
		if codec == "" {
			codec = "-"
		}
		outcome := string(job.Reason)
		if job.Error != "" {
			outcome = t("Error") + ": " + job.Error
		}
		fmt.Fprintf(b, "| %s | %s | %s | %d / %d | %s | %s |\n",
			escapeCell(job.Name), escapeCell(job.Video), escapeCell(codec),
			job.Found(), len(job.Shots), formatBytes(job.Bytes()), escapeCell(outcome))
		found += job.Found()
		total += len(job.Shots)
	}
	fmt.Fprintf(b, "\n%s: %d / %d\n\n", t("Frames found"), found, total)
}

func (f *MarkdownFormatter) writeFrames(b *strings.Builder, job JobInfo) {
	if len(job.Shots) == 0 {
		return
	}
	t := f.translate
	fmt.Fprintf(b, "### %s\n\n", escapeCell(job.Name))
	fmt.Fprintf(b, "| # | %s | %s | %s | %s |\n|---|---|---|---|---|\n",
		t("Requested"), t("Label"), t("Frame"), t("Source"))

	for i, s := range job.Shots {
		frame := t("Absent")
		if s.Present {
			frame = fmt.Sprintf("%.3f s", float64(s.TimestampUs)/1e6)
		}
		fmt.Fprintf(b, "| %d | %.3f s | %s | %s | %s |\n",
			i+1, s.Seconds, escapeCell(s.Label), frame, s.Source)
	}
	b.WriteString("\n")
}

// escapeCell keeps a value inside its table cell.
func escapeCell(s string) string {
	s = strings.ReplaceAll(s, "|", `\|`)
	return strings.Join(strings.Fields(s), " ")
}

// formatBytes formats a byte count with binary units.
func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit && exp < 2; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.2f %cB", float64(n)/float64(div), "KMG"[exp])
}
