package progress

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTransferOutput(t *testing.T) {
	var buf bytes.Buffer
	now := time.Date(2022, 8, 8, 14, 0, 0, 0, time.UTC)

	tr := NewTransfer(TransferOptions{
		Files:  3,
		Bytes:  4 * 1024,
		Output: &buf,
		Now:    func() time.Time { return now },
	})

	tr.Start()
	now = now.Add(2 * time.Second)
	tr.FileCompleted("a_uncal.fits", 2048)
	tr.FileSkipped("b_uncal.fits")
	tr.FileFailed("c_uncal.fits")
	tr.Stop()
	tr.Stop()

	out := buf.String()
	for _, want := range []string{
		"[templates] Mirroring 3 files (4.00 KB)\n",
		"[templates] Files: 1/3 | 2.00 KB | 1.00 KB/s | Elapsed: 2s",
		"[templates] Files: 2/3 | 2.00 KB",
		"[templates] Failed: c_uncal.fits\n",
		"[templates] Mirrored 1 files (2.00 KB), skipped 1, failed 1 in 2s\n",
	} {
		assert.Contains(t, out, want)
	}
	assert.Equal(t, 1, strings.Count(out, "Mirrored"), "final status exactly once")
}

func TestTransferUnknownSize(t *testing.T) {
	var buf bytes.Buffer
	tr := NewTransfer(TransferOptions{Files: 2, Output: &buf})

	tr.Start()
	assert.Contains(t, buf.String(), "[templates] Mirroring 2 files\n")
}
