package services

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/Lllllllleong/pdfassetmigrator/internal/gcp"
	"github.com/Lllllllleong/pdfassetmigrator/internal/models"
)

const mb = 1024 * 1024

// writeSized creates a sparse file of the given size.
func writeSized(path string, size int64) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := f.Truncate(size); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// fakeRecords serves records in ID order, pageSize at a time.
type fakeRecords struct {
	records  []gcp.Record
	pageSize int
	countErr error
	pageErr  error
	// failAfter makes Page fail once this many pages have been served.
	failAfter int
	stuck     bool

	cursors []string
	pages   int
}

func newFakeRecords(pageSize int, records ...gcp.Record) *fakeRecords {
	sort.Slice(records, func(i, j int) bool { return records[i].ID < records[j].ID })
	return &fakeRecords{records: records, pageSize: pageSize, failAfter: -1}
}

func (r *fakeRecords) Count(ctx context.Context) (int64, error) {
	if r.countErr != nil {
		return 0, r.countErr
	}
	return int64(len(r.records)), nil
}

func (r *fakeRecords) Page(ctx context.Context, cursor string) ([]gcp.Record, string, error) {
	r.cursors = append(r.cursors, cursor)
	if r.failAfter >= 0 && r.pages >= r.failAfter {
		return nil, "", r.pageErr
	}
	if r.stuck && len(r.records) > 0 {
		r.pages++
		return r.records[:1], cursor, nil
	}
	var page []gcp.Record
	for _, rec := range r.records {
		if cursor != "" && rec.ID <= cursor {
			continue
		}
		page = append(page, rec)
		if len(page) == r.pageSize {
			break
		}
	}
	if len(page) == 0 {
		return nil, "", nil
	}
	r.pages++
	return page, page[len(page)-1].ID, nil
}

type commit struct {
	id  string
	url string
}

// fakeAssets is an in-memory asset store. Commits mutate the stored asset.
type fakeAssets struct {
	mu      sync.Mutex
	assets  map[string]*models.Asset
	getErr  map[string]error
	setErr  map[string]error
	lookups []string
	commits []commit
}

func newFakeAssets(assets ...*models.Asset) *fakeAssets {
	f := &fakeAssets{assets: map[string]*models.Asset{}, getErr: map[string]error{}, setErr: map[string]error{}}
	for _, a := range assets {
		f.assets[a.ID] = a
	}
	return f
}

func pdfAsset(id, original string) *models.Asset {
	return &models.Asset{ID: id, Kind: models.AssetKindPDF, Original: original}
}

func (f *fakeAssets) GetAsset(ctx context.Context, id string) (*models.Asset, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lookups = append(f.lookups, id)
	if err := f.getErr[id]; err != nil {
		return nil, err
	}
	a, ok := f.assets[id]
	if !ok || a.Kind != models.AssetKindPDF {
		return nil, gcp.ErrAssetNotFound
	}
	cp := *a
	return &cp, nil
}

func (f *fakeAssets) SetCompressedURL(ctx context.Context, id, url string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.commits = append(f.commits, commit{id: id, url: url})
	if err := f.setErr[id]; err != nil {
		return err
	}
	a, ok := f.assets[id]
	if !ok {
		return gcp.ErrAssetNotFound
	}
	a.CompressedOptimizedURL = url
	return nil
}

// fakeObjects materialises downloads as sparse files of a configured size.
type fakeObjects struct {
	sizes       map[string]int64
	downloadErr map[string]error
	uploadErr   error
	uploads     []gcp.Location
	downloaded  []string
}

func newFakeObjects(sizes map[string]int64) *fakeObjects {
	return &fakeObjects{sizes: sizes, downloadErr: map[string]error{}}
}

func (o *fakeObjects) Download(ctx context.Context, loc gcp.Location, destPath string) (int64, error) {
	if err := o.downloadErr[loc.Key]; err != nil {
		return 0, err
	}
	size, ok := o.sizes[loc.Key]
	if !ok {
		return 0, gcp.ErrObjectNotFound
	}
	o.downloaded = append(o.downloaded, destPath)
	return size, writeSized(destPath, size)
}

func (o *fakeObjects) Upload(ctx context.Context, loc gcp.Location, localPath string) error {
	if _, err := os.Stat(localPath); err != nil {
		return err
	}
	o.uploads = append(o.uploads, loc)
	return o.uploadErr
}

// fakeCompressor writes an output whose size is keyed by the input file name.
type fakeCompressor struct {
	sizes map[string]int64
	errs  map[string]error
	block map[string]bool
	calls int
}

func newFakeCompressor(sizes map[string]int64) *fakeCompressor {
	return &fakeCompressor{sizes: sizes, errs: map[string]error{}, block: map[string]bool{}}
}

func (c *fakeCompressor) Compress(ctx context.Context, inputPath, outputPath string) error {
	c.calls++
	name := filepath.Base(inputPath)
	if c.block[name] {
		<-ctx.Done()
		return ctx.Err()
	}
	if err := c.errs[name]; err != nil {
		return err
	}
	size, ok := c.sizes[name]
	if !ok {
		return errors.New("no size configured for " + name)
	}
	return writeSized(outputPath, size)
}

func testConfig(t *testing.T) PDFCompressorConfig {
	t.Helper()
	cfg := DefaultConfig()
	cfg.ProjectID = "test-project"
	cfg.AssetsBucket = "assets"
	cfg.ScratchDir = filepath.Join(t.TempDir(), "scratch")
	cfg.ExportDir = filepath.Join(t.TempDir(), "export")
	cfg.VerifyPages = false
	cfg.AssetTimeout = time.Minute
	return cfg
}

// record builds a record whose body references the given asset IDs.
func record(id string, assetIDs ...string) gcp.Record {
	var body []any
	for _, a := range assetIDs {
		body = append(body, map[string]any{"type": "attachment", "assetId": a})
	}
	return gcp.Record{ID: id, Data: map[string]any{"title": id, "body": body}}
}
