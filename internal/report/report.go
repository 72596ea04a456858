// Package report accumulates per-asset outcomes and byte totals for a run
// and writes them out as CSV.
package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/Lllllllleong/pdfassetmigrator/internal/models"
)

const bytesPerMB = 1024 * 1024

// File names written by Export. Both are overwritten on every run.
const (
	DetailFileName = "pdf_compression_report.csv"
	TotalsFileName = "pdf_compression_totals.csv"
)

// Totals are running byte sums over done outcomes only.
type Totals struct {
	OriginalBytes   int64
	CompressedBytes int64
}

// SavedBytes is the reduction achieved across done outcomes.
func (t Totals) SavedBytes() int64 {
	return t.OriginalBytes - t.CompressedBytes
}

// EfficiencyPercent is (1 - compressed/original) * 100. It is 0 when
// nothing was compressed.
func (t Totals) EfficiencyPercent() float64 {
	if t.OriginalBytes <= 0 {
		return 0
	}
	return (1 - float64(t.CompressedBytes)/float64(t.OriginalBytes)) * 100
}

// MB converts a byte count to mebibytes.
func MB(n int64) float64 {
	return float64(n) / bytesPerMB
}

func formatMB(n int64) string {
	return strconv.FormatFloat(MB(n), 'f', 2, 64)
}

// Builder collects outcome rows for a single run. It is owned by one
// goroutine and is not safe for concurrent use.
type Builder struct {
	RunID    string
	rows     []models.Outcome
	totals   Totals
	done     int
	failures int
}

// NewBuilder returns an empty Builder for runID.
func NewBuilder(runID string) *Builder {
	return &Builder{RunID: runID}
}

// Add appends an outcome. Only done outcomes move the totals; every other
// status counts as a failure.
func (b *Builder) Add(o models.Outcome) {
	b.rows = append(b.rows, o)
	if o.Status == models.StatusDone {
		b.done++
		b.totals.OriginalBytes += o.OriginalSize
		b.totals.CompressedBytes += o.CompressedSize
		return
	}
	b.failures++
}

// Rows returns the outcomes in the order they were added.
func (b *Builder) Rows() []models.Outcome {
	return b.rows
}

// Totals returns the aggregate byte counts.
func (b *Builder) Totals() Totals {
	return b.totals
}

// Done is the number of done outcomes.
func (b *Builder) Done() int {
	return b.done
}

// Failures is the number of skipped and errored outcomes.
func (b *Builder) Failures() int {
	return b.failures
}

// WriteDetailCSV writes one line per outcome.
func (b *Builder) WriteDetailCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"id", "original", "original_mb", "optimized_mb", "status"}); err != nil {
		return err
	}
	for _, o := range b.rows {
		record := []string{o.AssetID, o.Original, formatMB(o.OriginalSize), formatMB(o.CompressedSize), o.Label()}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteTotalsCSV writes the aggregate totals as a single data line.
func (b *Builder) WriteTotalsCSV(w io.Writer) error {
	t := b.totals
	cw := csv.NewWriter(w)
	records := [][]string{
		{"total_original_mb", "total_compressed_mb", "total_saved_mb", "efficiency_percent"},
		{formatMB(t.OriginalBytes), formatMB(t.CompressedBytes), formatMB(t.SavedBytes()), strconv.FormatFloat(t.EfficiencyPercent(), 'f', 2, 64)},
	}
	if err := cw.WriteAll(records); err != nil {
		return err
	}
	return cw.Error()
}

// Export writes the detail and totals reports into dir, replacing any
// previous files.
func (b *Builder) Export(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create export dir %s: %w", dir, err)
	}
	if err := writeFile(filepath.Join(dir, DetailFileName), b.WriteDetailCSV); err != nil {
		return err
	}
	return writeFile(filepath.Join(dir, TotalsFileName), b.WriteTotalsCSV)
}

func writeFile(path string, write func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := write(f); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", path, err)
	}
	return nil
}

// Response summarizes the run for the function triggers.
func (b *Builder) Response() models.RunResponse {
	t := b.totals
	return models.RunResponse{
		Status:            "success",
		RunID:             b.RunID,
		Done:              b.done,
		Failures:          b.failures,
		OriginalMB:        round2(MB(t.OriginalBytes)),
		CompressedMB:      round2(MB(t.CompressedBytes)),
		SavedMB:           round2(MB(t.SavedBytes())),
		EfficiencyPercent: round2(t.EfficiencyPercent()),
	}
}

// Summary is the console line printed at the end of a run.
func (b *Builder) Summary() string {
	t := b.totals
	return fmt.Sprintf(
		"Compressed %d PDFs (%d failed): %s MB -> %s MB, saved %s MB (%.2f%%)",
		b.done, b.failures,
		formatMB(t.OriginalBytes), formatMB(t.CompressedBytes), formatMB(t.SavedBytes()),
		t.EfficiencyPercent(),
	)
}

func round2(f float64) float64 {
	v, _ := strconv.ParseFloat(strconv.FormatFloat(f, 'f', 2, 64), 64)
	return v
}
