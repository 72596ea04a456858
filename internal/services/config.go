package services

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Lllllllleong/pdfassetmigrator/internal/gcp"
	"github.com/Lllllllleong/pdfassetmigrator/internal/pdf"
	"github.com/Lllllllleong/pdfassetmigrator/internal/references"
)

// Compressor backends.
const (
	CompressorGhostscript = "ghostscript"
	CompressorPDFCPU      = "pdfcpu"
)

// PDFCompressorConfig holds configuration for the compression run.
type PDFCompressorConfig struct {
	ProjectID           string        `yaml:"projectId"`
	RecordsCollection   string        `yaml:"recordsCollection"`
	AssetsCollection    string        `yaml:"assetsCollection"`
	AssetsBucket        string        `yaml:"assetsBucket"`
	ReferenceKey        string        `yaml:"referenceKey"`
	PageSize            int           `yaml:"pageSize"`
	CompressedSuffix    string        `yaml:"compressedSuffix"`
	ScratchDir          string        `yaml:"scratchDir"`
	ExportDir           string        `yaml:"exportDir"`
	Compressor          string        `yaml:"compressor"`
	GhostscriptPath     string        `yaml:"ghostscriptPath"`
	ImageDPI            int           `yaml:"imageDpi"`
	AssetTimeout        time.Duration `yaml:"assetTimeout"`
	VerifyPages         bool          `yaml:"verifyPages"`
	ReprocessCompressed bool          `yaml:"reprocessCompressed"`
	DryRun              bool          `yaml:"dryRun"`
	RecordLimit         int           `yaml:"recordLimit"`
	PushgatewayURL      string        `yaml:"pushgatewayUrl"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() PDFCompressorConfig {
	return PDFCompressorConfig{
		RecordsCollection: "records",
		AssetsCollection:  "assets",
		ReferenceKey:      references.DefaultKey,
		PageSize:          gcp.DefaultPageSize,
		CompressedSuffix:  "_compressed.pdf",
		ScratchDir:        filepath.Join(os.TempDir(), "pdf-compressor"),
		ExportDir:         "export",
		Compressor:        CompressorGhostscript,
		GhostscriptPath:   "gs",
		ImageDPI:          pdf.DefaultImageDPI,
		AssetTimeout:      10 * time.Minute,
		VerifyPages:       true,
	}
}

// ApplyFile overlays values from a YAML file. Keys absent from the file keep
// their current values.
func (c *PDFCompressorConfig) ApplyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

// ApplyEnv overlays values from environment variables.
func (c *PDFCompressorConfig) ApplyEnv() error {
	c.ProjectID = gcp.GetEnv("PROJECT_ID", c.ProjectID)
	c.RecordsCollection = gcp.GetEnv("RECORDS_COLLECTION", c.RecordsCollection)
	c.AssetsCollection = gcp.GetEnv("ASSETS_COLLECTION", c.AssetsCollection)
	c.AssetsBucket = gcp.GetEnv("ASSETS_BUCKET", c.AssetsBucket)
	c.ReferenceKey = gcp.GetEnv("REFERENCE_KEY", c.ReferenceKey)
	c.CompressedSuffix = gcp.GetEnv("COMPRESSED_SUFFIX", c.CompressedSuffix)
	c.ScratchDir = gcp.GetEnv("SCRATCH_DIR", c.ScratchDir)
	c.ExportDir = gcp.GetEnv("EXPORT_DIR", c.ExportDir)
	c.Compressor = gcp.GetEnv("COMPRESSOR", c.Compressor)
	c.GhostscriptPath = gcp.GetEnv("GS_PATH", c.GhostscriptPath)
	c.PushgatewayURL = gcp.GetEnv("PUSHGATEWAY_URL", c.PushgatewayURL)

	var err error
	if c.PageSize, err = envInt("PAGE_SIZE", c.PageSize); err != nil {
		return err
	}
	if c.ImageDPI, err = envInt("IMAGE_DPI", c.ImageDPI); err != nil {
		return err
	}
	if c.RecordLimit, err = envInt("RECORD_LIMIT", c.RecordLimit); err != nil {
		return err
	}
	if c.VerifyPages, err = envBool("VERIFY_PAGES", c.VerifyPages); err != nil {
		return err
	}
	if c.ReprocessCompressed, err = envBool("REPROCESS_COMPRESSED", c.ReprocessCompressed); err != nil {
		return err
	}
	if c.DryRun, err = envBool("DRY_RUN", c.DryRun); err != nil {
		return err
	}
	if v, ok := os.LookupEnv("ASSET_TIMEOUT"); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("ASSET_TIMEOUT: %w", err)
		}
		c.AssetTimeout = d
	}
	return nil
}

// Validate checks required fields and value ranges.
func (c PDFCompressorConfig) Validate() error {
	switch {
	case c.ProjectID == "":
		return fmt.Errorf("PROJECT_ID environment variable must be set")
	case c.AssetsBucket == "":
		return fmt.Errorf("ASSETS_BUCKET environment variable must be set")
	case c.RecordsCollection == "" || c.AssetsCollection == "":
		return fmt.Errorf("RECORDS_COLLECTION and ASSETS_COLLECTION must not be empty")
	case c.ReferenceKey == "":
		return fmt.Errorf("REFERENCE_KEY must not be empty")
	case c.PageSize < 1:
		return fmt.Errorf("PAGE_SIZE must be positive, got %d", c.PageSize)
	case c.AssetTimeout <= 0:
		return fmt.Errorf("ASSET_TIMEOUT must be positive, got %s", c.AssetTimeout)
	case c.RecordLimit < 0:
		return fmt.Errorf("RECORD_LIMIT cannot be negative")
	case c.CompressedSuffix == "" || strings.EqualFold(c.CompressedSuffix, ".pdf"):
		return fmt.Errorf("COMPRESSED_SUFFIX %q would overwrite the original object", c.CompressedSuffix)
	case c.Compressor != CompressorGhostscript && c.Compressor != CompressorPDFCPU:
		return fmt.Errorf("COMPRESSOR must be %q or %q, got %q", CompressorGhostscript, CompressorPDFCPU, c.Compressor)
	}
	return nil
}

func envInt(key string, fallback int) (int, error) {
	v, ok := os.LookupEnv(key)
	if !ok {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

func envBool(key string, fallback bool) (bool, error) {
	v, ok := os.LookupEnv(key)
	if !ok {
		return fallback, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%s: %w", key, err)
	}
	return b, nil
}
