package pdf

import (
	"context"
	"fmt"
	"os"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// Optimizer compresses PDFs in process with pdfcpu.
type Optimizer struct {
	conf *model.Configuration
}

// NewOptimizer returns an Optimizer using relaxed validation.
func NewOptimizer() *Optimizer {
	return &Optimizer{conf: relaxedConfig()}
}

// Compress optimizes inputPath into outputPath. pdfcpu cannot be interrupted
// mid-file, so ctx is only checked before starting.
func (o *Optimizer) Compress(ctx context.Context, inputPath, outputPath string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := api.OptimizeFile(inputPath, outputPath, o.conf); err != nil {
		return fmt.Errorf("pdfcpu optimize failed: %w", err)
	}
	return checkOutput(outputPath)
}

// PageCount returns the number of pages in the PDF at path.
func PageCount(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	n, err := api.PageCount(f, relaxedConfig())
	if err != nil {
		return 0, fmt.Errorf("failed to read page count of %s: %w", path, err)
	}
	return n, nil
}

func relaxedConfig() *model.Configuration {
	cfg := model.NewDefaultConfiguration()
	cfg.ValidationMode = model.ValidationRelaxed
	return cfg
}
