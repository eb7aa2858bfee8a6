package progress

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		input    int64
		expected string
	}{
		{0, "0 B"},
		{100, "100 B"},
		{1024, "1.00 KB"},
		{1536, "1.50 KB"},
		{1024 * 1024, "1.00 MB"},
		{1024 * 1024 * 1024, "1.00 GB"},
		{2.5 * 1024 * 1024 * 1024 * 1024, "2.50 TB"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, FormatBytes(tt.input), "FormatBytes(%d)", tt.input)
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		input    time.Duration
		expected string
	}{
		{0, "0s"},
		{30 * time.Second, "30s"},
		{90 * time.Second, "1m 30s"},
		{time.Hour + 5*time.Minute + 3*time.Second, "1h 5m 3s"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, formatDuration(tt.input), "formatDuration(%v)", tt.input)
	}
}

func TestReporterOutput(t *testing.T) {
	var buf bytes.Buffer
	now := time.Date(2022, 8, 8, 14, 0, 0, 0, time.UTC)

	reporter := NewReporter(Options{
		Program:   "1355",
		ChunkSize: 8,
		Output:    &buf,
		Now:       func() time.Time { return now },
	})

	reporter.Start()
	reporter.Matched(10, 2)
	reporter.ChunkStarted(0, 8)
	now = now.Add(30 * time.Second)
	reporter.ChunkCompleted(0, 120)
	reporter.ChunkStarted(1, 2)
	now = now.Add(60 * time.Second)
	reporter.ChunkCompleted(1, 40)
	reporter.Stop()
	reporter.Stop()

	out := buf.String()
	for _, want := range []string{
		"[templates] Fetching products for program 1355\n",
		"[templates] Found 10 matching observations, 2 chunks of up to 8\n",
		"[templates] Chunks: 1/2 completed | Products: 120 | Elapsed: 30s",
		"[templates] Chunks: 2/2 completed | Products: 160 | Elapsed: 1m 30s",
		"[templates] Listed 160 products from 2 chunks in 1m 30s\n",
	} {
		assert.Contains(t, out, want)
	}
	assert.Equal(t, 1, strings.Count(out, "Listed"), "final status exactly once")
}

func TestReporterFailure(t *testing.T) {
	var buf bytes.Buffer
	reporter := NewReporter(Options{Program: "1355", Output: &buf})

	reporter.Start()
	reporter.Matched(3, 3)
	reporter.ChunkCompleted(0, 5)
	reporter.ChunkFailed(1)

	assert.Contains(t, buf.String(), "Chunk 2 failed")
}

func TestReporterNoObservations(t *testing.T) {
	var buf bytes.Buffer
	reporter := NewReporter(Options{Program: "9999", Output: &buf})

	reporter.Start()
	reporter.Stop()

	assert.NotContains(t, buf.String(), "Listed")
}
