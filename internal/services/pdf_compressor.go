package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/Lllllllleong/pdfassetmigrator/internal/gcp"
	"github.com/Lllllllleong/pdfassetmigrator/internal/metrics"
	"github.com/Lllllllleong/pdfassetmigrator/internal/models"
	"github.com/Lllllllleong/pdfassetmigrator/internal/pdf"
	"github.com/Lllllllleong/pdfassetmigrator/internal/references"
	"github.com/Lllllllleong/pdfassetmigrator/internal/report"
)

// RecordSource pages through the primary record collection.
type RecordSource interface {
	Count(ctx context.Context) (int64, error)
	Page(ctx context.Context, cursor string) ([]gcp.Record, string, error)
}

// AssetRepository reads asset metadata and commits compressed locations.
type AssetRepository interface {
	GetAsset(ctx context.Context, id string) (*models.Asset, error)
	SetCompressedURL(ctx context.Context, id, url string) error
}

// ObjectStorage moves asset content between object storage and local disk.
type ObjectStorage interface {
	Download(ctx context.Context, loc gcp.Location, destPath string) (int64, error)
	Upload(ctx context.Context, loc gcp.Location, localPath string) error
}

// Compressor turns the PDF at inputPath into a compressed file at outputPath.
type Compressor interface {
	Compress(ctx context.Context, inputPath, outputPath string) error
}

// Dependencies are the collaborators of a PDFCompressorFunction.
type Dependencies struct {
	Records    RecordSource
	Assets     AssetRepository
	Objects    ObjectStorage
	Compressor Compressor
	// NewMetrics builds the recorder for each run. Defaults to metrics.NewRecorder.
	NewMetrics func() *metrics.Recorder
	// PageCounter defaults to pdf.PageCount.
	PageCounter func(path string) (int, error)
}

// PDFCompressorFunction scans records for PDF asset references and replaces
// each referenced PDF with a compressed rendition when that makes it smaller.
type PDFCompressorFunction struct {
	records     RecordSource
	assets      AssetRepository
	objects     ObjectStorage
	compressor  Compressor
	newMetrics  func() *metrics.Recorder
	pageCounter func(path string) (int, error)
	clients     *gcp.Clients
	config      PDFCompressorConfig
}

// NewPDFCompressor connects to Firestore and Cloud Storage and wires the
// production gateways. Call Close when done.
func NewPDFCompressor(ctx context.Context, config PDFCompressorConfig) (*PDFCompressorFunction, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	clients, err := gcp.Open(ctx, config.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("failed to open GCP clients: %w", err)
	}

	var compressor Compressor
	switch config.Compressor {
	case CompressorPDFCPU:
		compressor = pdf.NewOptimizer()
	default:
		compressor = pdf.NewGhostscript(config.GhostscriptPath, config.ImageDPI)
	}

	f := NewPDFCompressorWithDeps(config, Dependencies{
		Records:    gcp.NewRecordStore(clients.Firestore, config.RecordsCollection, config.PageSize),
		Assets:     gcp.NewAssetStore(clients.Firestore, config.AssetsCollection),
		Objects:    gcp.NewObjectStore(clients.Storage),
		Compressor: compressor,
	})
	f.clients = clients
	slog.Info("PDF compressor initialized.",
		"recordsCollection", config.RecordsCollection,
		"assetsCollection", config.AssetsCollection,
		"compressor", config.Compressor,
	)
	return f, nil
}

// NewPDFCompressorWithDeps builds a PDFCompressorFunction over the given
// collaborators. It does not validate config.
func NewPDFCompressorWithDeps(config PDFCompressorConfig, deps Dependencies) *PDFCompressorFunction {
	f := &PDFCompressorFunction{
		records:     deps.Records,
		assets:      deps.Assets,
		objects:     deps.Objects,
		compressor:  deps.Compressor,
		newMetrics:  deps.NewMetrics,
		pageCounter: deps.PageCounter,
		config:      config,
	}
	if f.newMetrics == nil {
		f.newMetrics = metrics.NewRecorder
	}
	if f.pageCounter == nil {
		f.pageCounter = pdf.PageCount
	}
	return f
}

// Close releases the GCP clients opened by NewPDFCompressor.
func (f *PDFCompressorFunction) Close() error {
	if f.clients == nil {
		return nil
	}
	return f.clients.Close()
}

// run is the state of one Process call.
type run struct {
	logCtx  *slog.Logger
	rep     *report.Builder
	metrics *metrics.Recorder
	dryRun  bool
	// seen holds every asset ID referenced so far. An asset is looked up and
	// attempted at most once per run, whatever its outcome.
	seen map[string]struct{}
}

// Process runs one full pass over the record collection. Per-asset failures
// are recorded in the returned report and never abort the run; only store
// connection and paging failures and cancellation do. The report is exported
// even when the run stops early.
func (f *PDFCompressorFunction) Process(ctx context.Context, req models.RunRequest) (*report.Builder, error) {
	runID := uuid.NewString()
	limit := f.config.RecordLimit
	if req.RecordLimit > 0 {
		limit = req.RecordLimit
	}
	r := &run{
		logCtx:  slog.With("runId", runID),
		rep:     report.NewBuilder(runID),
		metrics: f.newMetrics(),
		dryRun:  f.config.DryRun || req.DryRun,
		seen:    make(map[string]struct{}),
	}
	logCtx := r.logCtx
	logCtx.Info("Starting compression run.", "dryRun", r.dryRun, "recordLimit", limit)

	if err := os.MkdirAll(f.config.ScratchDir, 0o755); err != nil {
		return r.rep, fmt.Errorf("failed to create scratch dir: %w", err)
	}

	total, err := f.records.Count(ctx)
	if err != nil {
		logCtx.Error("Failed to reach record store", "error", err)
		return r.rep, fmt.Errorf("record store unavailable: %w", err)
	}
	logCtx.Info("Counted records.", "recordsTotal", total)

	scanned, runErr := f.scan(ctx, r, total, limit)
	if limit == 0 && runErr == nil && int64(scanned) != total {
		logCtx.Warn("Record count drifted during the run.", "recordsTotal", total, "recordsScanned", scanned)
	}

	if err := f.finish(ctx, r); err != nil && runErr == nil {
		runErr = err
	}
	return r.rep, runErr
}

func (f *PDFCompressorFunction) scan(ctx context.Context, r *run, total int64, limit int) (int, error) {
	logCtx := r.logCtx
	cursor := ""
	scanned := 0
	for {
		if err := ctx.Err(); err != nil {
			logCtx.Warn("Run interrupted. Stopping before the next page.", "cursor", cursor, "error", err)
			return scanned, fmt.Errorf("run interrupted after %d records: %w", scanned, err)
		}

		records, next, err := f.records.Page(ctx, cursor)
		if err != nil {
			logCtx.Error("Failed to fetch page", "cursor", cursor, "error", err)
			return scanned, fmt.Errorf("failed to fetch page after %q: %w", cursor, err)
		}
		if len(records) == 0 {
			return scanned, nil
		}
		if next == cursor {
			return scanned, fmt.Errorf("cursor did not advance past %q", cursor)
		}

		for _, rec := range records {
			if limit > 0 && scanned >= limit {
				logCtx.Info("Record limit reached.", "recordLimit", limit)
				return scanned, nil
			}
			if ctx.Err() != nil {
				break
			}
			scanned++
			r.metrics.RecordsScanned(1)
			f.processRecord(ctx, r, logCtx.With("recordId", rec.ID), rec)
		}

		cursor = next
		t := r.rep.Totals()
		logCtx.Info("Page complete.",
			"cursor", cursor,
			"recordsScanned", scanned,
			"recordsTotal", total,
			"done", r.rep.Done(),
			"failures", r.rep.Failures(),
			"savedMB", fmt.Sprintf("%.2f", report.MB(t.SavedBytes())),
		)
	}
}

func (f *PDFCompressorFunction) processRecord(ctx context.Context, r *run, logCtx *slog.Logger, rec gcp.Record) {
	refs, err := references.Extract(rec.Data, f.config.ReferenceKey)
	if err != nil {
		logCtx.Warn("Skipping record with unreadable structure.", "error", err)
		return
	}
	for _, assetID := range refs {
		if ctx.Err() != nil {
			return
		}
		if _, ok := r.seen[assetID]; ok {
			logCtx.Debug("Asset already handled in this run. Skipping.", "assetId", assetID)
			continue
		}
		r.seen[assetID] = struct{}{}

		start := time.Now()
		outcome, attempted := f.processReference(ctx, logCtx.With("assetId", assetID), assetID, r.dryRun)
		if !attempted {
			continue
		}
		r.rep.Add(outcome)
		r.metrics.ObserveOutcome(outcome, time.Since(start))
	}
}

// processReference runs the per-asset state machine under the asset timeout.
// The bool result is false when the asset was not attempted at all.
func (f *PDFCompressorFunction) processReference(ctx context.Context, logCtx *slog.Logger, assetID string, dryRun bool) (models.Outcome, bool) {
	assetCtx, cancel := context.WithTimeout(ctx, f.config.AssetTimeout)
	defer cancel()

	asset, err := f.assets.GetAsset(assetCtx, assetID)
	if errors.Is(err, gcp.ErrAssetNotFound) {
		logCtx.Debug("No PDF asset for reference. Skipping.")
		return models.Outcome{}, false
	}
	if err != nil {
		logCtx.Error("Failed to fetch asset", "error", err)
		return models.Outcome{AssetID: assetID, Status: models.StatusError, Detail: err.Error()}, true
	}
	if asset.Original == "" {
		logCtx.Debug("Asset has no original location. Skipping.")
		return models.Outcome{}, false
	}
	if asset.IsCompressed() && !f.config.ReprocessCompressed {
		logCtx.Info("Asset already compressed. Skipping.", "compressedOptimizedUrl", asset.CompressedOptimizedURL)
		return models.Outcome{}, false
	}

	outcome := models.Outcome{AssetID: assetID, Original: asset.Original}
	if err := f.compressAsset(assetCtx, logCtx, asset, &outcome, dryRun); err != nil {
		if ctx.Err() == nil && errors.Is(assetCtx.Err(), context.DeadlineExceeded) {
			err = fmt.Errorf("timed out after %s: %w", f.config.AssetTimeout, err)
		}
		logCtx.Error("Asset processing failed", "error", err)
		outcome.Status = models.StatusError
		outcome.Detail = err.Error()
	}
	return outcome, true
}

// compressAsset downloads, compresses, validates and commits one asset. It
// sets outcome.Status to done or skipped on success. The scratch directory is
// removed on every return path.
func (f *PDFCompressorFunction) compressAsset(ctx context.Context, logCtx *slog.Logger, asset *models.Asset, outcome *models.Outcome, dryRun bool) error {
	src, err := gcp.ParseLocation(asset.Original, f.config.AssetsBucket)
	if err != nil {
		return err
	}

	workDir, err := os.MkdirTemp(f.config.ScratchDir, "asset-*")
	if err != nil {
		return fmt.Errorf("failed to create scratch dir: %w", err)
	}
	defer os.RemoveAll(workDir)

	sourcePath := filepath.Join(workDir, src.FileName())
	compressedPath := filepath.Join(workDir, "compressed-"+src.FileName())

	originalSize, err := f.objects.Download(ctx, src, sourcePath)
	if err != nil {
		return fmt.Errorf("download failed: %w", err)
	}
	outcome.OriginalSize = originalSize

	if err := f.compressor.Compress(ctx, sourcePath, compressedPath); err != nil {
		return fmt.Errorf("compression failed: %w", err)
	}
	info, err := os.Stat(compressedPath)
	if err != nil {
		return fmt.Errorf("failed to stat compressed file: %w", err)
	}
	outcome.CompressedSize = info.Size()

	if outcome.CompressedSize >= outcome.OriginalSize {
		outcome.Status = models.StatusSkipped
		outcome.Detail = fmt.Sprintf("compressed size %d >= original size %d", outcome.CompressedSize, outcome.OriginalSize)
		logCtx.Warn("Compression did not reduce size. Keeping original.",
			"originalSize", outcome.OriginalSize, "compressedSize", outcome.CompressedSize)
		return nil
	}
	if f.config.VerifyPages {
		if err := f.verifyPages(logCtx, sourcePath, compressedPath); err != nil {
			return err
		}
	}

	dest := src.Sibling(f.config.CompressedSuffix)
	if dryRun {
		outcome.Status = models.StatusDone
		outcome.Detail = "dry-run"
		logCtx.Info("Dry run: skipping upload and commit.", "destination", dest.String())
		return nil
	}

	if err := f.objects.Upload(ctx, dest, compressedPath); err != nil {
		return fmt.Errorf("upload to %s failed: %w", dest.String(), err)
	}
	if err := f.assets.SetCompressedURL(ctx, asset.ID, dest.String()); err != nil {
		return fmt.Errorf("commit failed after upload of %s: %w", dest.String(), err)
	}

	outcome.Status = models.StatusDone
	logCtx.Info("Asset compressed.",
		"originalSize", outcome.OriginalSize,
		"compressedSize", outcome.CompressedSize,
		"destination", dest.String(),
	)
	return nil
}

// verifyPages rejects compressed output that pdfcpu cannot read or whose
// page count differs from a readable original.
func (f *PDFCompressorFunction) verifyPages(logCtx *slog.Logger, sourcePath, compressedPath string) error {
	compressedPages, err := f.pageCounter(compressedPath)
	if err != nil {
		return fmt.Errorf("compressed PDF is unreadable: %w", err)
	}
	originalPages, err := f.pageCounter(sourcePath)
	if err != nil {
		logCtx.Warn("Original PDF is unreadable by the validator; skipping page comparison.", "error", err)
		return nil
	}
	if originalPages != compressedPages {
		return fmt.Errorf("page count changed from %d to %d", originalPages, compressedPages)
	}
	return nil
}

func (f *PDFCompressorFunction) finish(ctx context.Context, r *run) error {
	logCtx, rep := r.logCtx, r.rep
	var exportErr error
	if err := rep.Export(f.config.ExportDir); err != nil {
		logCtx.Error("Failed to write reports", "error", err, "exportDir", f.config.ExportDir)
		exportErr = err
	}

	if f.config.PushgatewayURL != "" {
		pushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		if err := r.metrics.Push(pushCtx, f.config.PushgatewayURL, rep.RunID); err != nil {
			logCtx.Warn("Failed to push metrics", "error", err)
		}
	}

	t := rep.Totals()
	logCtx.Info("Compression run complete.",
		"done", rep.Done(),
		"failures", rep.Failures(),
		"originalMB", fmt.Sprintf("%.2f", report.MB(t.OriginalBytes)),
		"compressedMB", fmt.Sprintf("%.2f", report.MB(t.CompressedBytes)),
		"savedMB", fmt.Sprintf("%.2f", report.MB(t.SavedBytes())),
		"efficiencyPercent", fmt.Sprintf("%.2f", t.EfficiencyPercent()),
	)
	return exportErr
}
