package summarizer

import (
	"strings"
	"testing"
	"time"

	"github.com/user/framegrab/pkg/mocks"
	"github.com/user/framegrab/pkg/pipeline"
)

func sampleSummary() *Summary {
	return &Summary{
		GeneratedAt: time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC),
		Settings: Settings{
			Quality:     80,
			Tolerance:   100 * time.Millisecond,
			Timeout:     30 * time.Second,
			Fallback:    true,
			Concurrency: 2,
		},
		Jobs: []JobInfo{
			{
				Name:   "match",
				Video:  "/videos/match.mp4",
				Codec:  "avc1.64001f",
				Reason: pipeline.FinishDrained,
				Shots: []ShotInfo{
					{Seconds: 12.5, Label: "Goal", Present: true, TimestampUs: 12_480_000, Source: pipeline.SourceDecoder, Bytes: 1024 * 1024},
					{Seconds: 99},
				},
			},
			{
				Name:   "broken",
				Video:  "/videos/broken.mp4",
				Reason: pipeline.FinishFailed,
				Error:  "no video track",
			},
		},
	}
}

func TestMarkdownFormatter_Format(t *testing.T) {
	result := NewMarkdownFormatter().Format(sampleSummary())

	checks := []string{
		"# Extraction Summary",
		"2024-01-15 10:30:00 UTC",
		"| Quality | 80 |",
		"| Max Width | Original |",
		"| Tolerance | 100 ms |",
		"| Timeout | 30000 ms |",
		"| Fallback | Enabled |",
		"| Concurrency | 2 |",
		"| match | /videos/match.mp4 | avc1.64001f | 1 / 2 | 1.00 MB | drained |",
		"| broken | /videos/broken.mp4 | - | 0 / 0 | 0 B | Error: no video track |",
		"Frames found: 1 / 2",
		"### match",
		"| 1 | 12.500 s | Goal | 12.480 s | decoder |",
		"| 2 | 99.000 s |  | Absent |  |",
	}
	for _, check := range checks {
		if !strings.Contains(result, check) {
			t.Errorf("expected output to contain %q\n%s", check, result)
		}
	}

	if strings.Contains(result, "### broken") {
		t.Error("jobs without shots should have no frame table")
	}
	if strings.Contains(result, "Elapsed") {
		t.Error("elapsed time should be omitted when not measured")
	}
}

func TestMarkdownFormatter_Elapsed(t *testing.T) {
	summary := sampleSummary()
	summary.TotalDuration = 2500 * time.Millisecond

	result := NewMarkdownFormatter().Format(summary)
	if !strings.Contains(result, "- Elapsed: 2.5 s") {
		t.Errorf("expected elapsed time in output:\n%s", result)
	}
}

func TestMarkdownFormatter_NoJobs(t *testing.T) {
	result := NewMarkdownFormatter().Format(&Summary{GeneratedAt: time.Now()})

	if !strings.Contains(result, "No jobs.") {
		t.Error("expected output to mention the missing jobs")
	}
	if !strings.Contains(result, "| Fallback | Disabled |") {
		t.Error("expected fallback to be reported as disabled")
	}
}

func TestMarkdownFormatter_EscapesCells(t *testing.T) {
	summary := sampleSummary()
	summary.Jobs[0].Shots[0].Label = "Home | Away\nfinal"

	result := NewMarkdownFormatter().Format(summary)
	if !strings.Contains(result, `Home \| Away final`) {
		t.Errorf("expected escaped label in output:\n%s", result)
	}
}

func TestMarkdownFormatter_WithTranslator(t *testing.T) {
	translator := func(key string) string {
		translations := map[string]string{
			"Extraction Summary": "抽出サマリー",
			"Settings":           "設定",
			"Absent":             "なし",
		}
		if v, ok := translations[key]; ok {
			return v
		}
		return key
	}

	result := NewMarkdownFormatter(WithTranslator(translator)).Format(sampleSummary())

	for _, want := range []string{"# 抽出サマリー", "## 設定", "| なし |"} {
		if !strings.Contains(result, want) {
			t.Errorf("expected translated %q", want)
		}
	}
}

func TestMarkdownFormatter_WithVersion(t *testing.T) {
	result := NewMarkdownFormatter(WithVersion("v1.2.0")).Format(sampleSummary())

	if !strings.Contains(result, "- Version: v1.2.0") {
		t.Error("expected output to contain version 'v1.2.0'")
	}
}

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		bytes int64
		want  string
	}{
		{0, "0 B"},
		{100, "100 B"},
		{1024, "1.00 KB"},
		{1536, "1.50 KB"},
		{1024 * 1024, "1.00 MB"},
		{1024 * 1024 * 1024, "1.00 GB"},
		{1536 * 1024 * 1024, "1.50 GB"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			got := formatBytes(tt.bytes)
			if got != tt.want {
				t.Errorf("formatBytes(%d) = %q, want %q", tt.bytes, got, tt.want)
			}
		})
	}
}

func TestWriter_Write(t *testing.T) {
	fs := mocks.NewFileSystem()
	w := NewWriter(FormatFunc(func(s *Summary) string { return "report" }), fs)

	if err := w.Write("/out/summary.md", NewSummary()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	data, err := fs.ReadFile("/out/summary.md")
	if err != nil || string(data) != "report" {
		t.Errorf("expected report to be written, got %q (%v)", data, err)
	}
}
