package report

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Lllllllleong/pdfassetmigrator/internal/models"
)

const mb = 1024 * 1024

func TestTotals_Efficiency(t *testing.T) {
	tests := []struct {
		name      string
		totals    Totals
		wantSaved int64
		wantPct   float64
	}{
		{"100 to 60", Totals{OriginalBytes: 100 * mb, CompressedBytes: 60 * mb}, 40 * mb, 40},
		{"30 to 9", Totals{OriginalBytes: 30 * mb, CompressedBytes: 9 * mb}, 21 * mb, 70},
		{"nothing done", Totals{}, 0, 0},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.wantSaved, tc.totals.SavedBytes())
			assert.InDelta(t, tc.wantPct, tc.totals.EfficiencyPercent(), 1e-9)
		})
	}
}

func TestBuilder_TotalsOnlyFromDone(t *testing.T) {
	b := NewBuilder("run-1")
	b.Add(models.Outcome{AssetID: "a", OriginalSize: 10 * mb, CompressedSize: 4 * mb, Status: models.StatusDone})
	b.Add(models.Outcome{AssetID: "b", OriginalSize: 5 * mb, CompressedSize: 6 * mb, Status: models.StatusSkipped})
	b.Add(models.Outcome{AssetID: "c", OriginalSize: 7 * mb, Status: models.StatusError, Detail: "boom"})

	assert.Equal(t, Totals{OriginalBytes: 10 * mb, CompressedBytes: 4 * mb}, b.Totals())
	assert.Equal(t, 1, b.Done())
	assert.Equal(t, 2, b.Failures())
	assert.Len(t, b.Rows(), 3)
}

func TestBuilder_WriteTotalsCSV(t *testing.T) {
	b := NewBuilder("run-1")
	b.Add(models.Outcome{AssetID: "a", OriginalSize: 100 * mb, CompressedSize: 60 * mb, Status: models.StatusDone})

	var buf bytes.Buffer
	require.NoError(t, b.WriteTotalsCSV(&buf))
	assert.Equal(t,
		"total_original_mb,total_compressed_mb,total_saved_mb,efficiency_percent\n100.00,60.00,40.00,40.00\n",
		buf.String())
}

func TestBuilder_WriteTotalsCSV_NoDoneAssets(t *testing.T) {
	b := NewBuilder("run-1")
	b.Add(models.Outcome{AssetID: "a", Status: models.StatusError, Detail: "x"})

	var buf bytes.Buffer
	require.NoError(t, b.WriteTotalsCSV(&buf))
	assert.Equal(t,
		"total_original_mb,total_compressed_mb,total_saved_mb,efficiency_percent\n0.00,0.00,0.00,0.00\n",
		buf.String())
}

func TestBuilder_WriteDetailCSV(t *testing.T) {
	b := NewBuilder("run-1")
	b.Add(models.Outcome{AssetID: "a", Original: "gs://b/a.pdf", OriginalSize: 10 * mb, CompressedSize: 4 * mb, Status: models.StatusDone})
	b.Add(models.Outcome{AssetID: "b", Original: "gs://b/b.pdf", OriginalSize: 3 * mb / 2, Status: models.StatusError, Detail: "upload failed, retry later"})

	var buf bytes.Buffer
	require.NoError(t, b.WriteDetailCSV(&buf))
	assert.Equal(t,
		"id,original,original_mb,optimized_mb,status\n"+
			"a,gs://b/a.pdf,10.00,4.00,done\n"+
			"b,gs://b/b.pdf,1.50,0.00,\"error:upload failed, retry later\"\n",
		buf.String())
}

func TestBuilder_ExportOverwrites(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "export")

	first := NewBuilder("run-1")
	first.Add(models.Outcome{AssetID: "a", OriginalSize: mb, CompressedSize: mb / 2, Status: models.StatusDone})
	first.Add(models.Outcome{AssetID: "b", Status: models.StatusSkipped})
	require.NoError(t, first.Export(dir))

	second := NewBuilder("run-2")
	require.NoError(t, second.Export(dir))

	detail, err := os.ReadFile(filepath.Join(dir, DetailFileName))
	require.NoError(t, err)
	assert.Equal(t, "id,original,original_mb,optimized_mb,status\n", string(detail))

	totals, err := os.ReadFile(filepath.Join(dir, TotalsFileName))
	require.NoError(t, err)
	assert.Contains(t, string(totals), "0.00,0.00,0.00,0.00")
}

func TestBuilder_ResponseAndSummary(t *testing.T) {
	b := NewBuilder("run-9")
	b.Add(models.Outcome{AssetID: "a", OriginalSize: 10 * mb, CompressedSize: 4 * mb, Status: models.StatusDone})
	b.Add(models.Outcome{AssetID: "b", OriginalSize: 20 * mb, CompressedSize: 5 * mb, Status: models.StatusDone})
	b.Add(models.Outcome{AssetID: "c", Status: models.StatusSkipped})

	resp := b.Response()
	assert.Equal(t, "run-9", resp.RunID)
	assert.Equal(t, 2, resp.Done)
	assert.Equal(t, 1, resp.Failures)
	assert.Equal(t, 30.0, resp.OriginalMB)
	assert.Equal(t, 9.0, resp.CompressedMB)
	assert.Equal(t, 21.0, resp.SavedMB)
	assert.Equal(t, 70.0, resp.EfficiencyPercent)

	assert.Equal(t, "Compressed 2 PDFs (1 failed): 30.00 MB -> 9.00 MB, saved 21.00 MB (70.00%)", b.Summary())
}
