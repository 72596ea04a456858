package pdf

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// DefaultImageDPI is the resolution images are downsampled to.
const DefaultImageDPI = 150

// waitDelay bounds how long Wait lingers on open pipes after gs is killed.
const waitDelay = 5 * time.Second

// ErrNoOutput is returned when a compressor exits cleanly without writing output.
var ErrNoOutput = errors.New("compressor produced no output")

// Ghostscript compresses PDFs with the pdfwrite device. Fonts are embedded,
// images downsampled to ImageDPI and page auto-rotation is disabled so page
// geometry is preserved.
type Ghostscript struct {
	Path     string
	ImageDPI int
}

// NewGhostscript returns a Ghostscript compressor for the binary at path.
func NewGhostscript(path string, dpi int) *Ghostscript {
	if path == "" {
		path = "gs"
	}
	if dpi <= 0 {
		dpi = DefaultImageDPI
	}
	return &Ghostscript{Path: path, ImageDPI: dpi}
}

// Args returns the gs command line for one conversion.
func (g *Ghostscript) Args(inputPath, outputPath string) []string {
	dpi := strconv.Itoa(g.ImageDPI)
	return []string{
		"-sDEVICE=pdfwrite",
		"-dCompatibilityLevel=1.4",
		"-dNOPAUSE",
		"-dQUIET",
		"-dBATCH",
		"-dSAFER",
		"-dEmbedAllFonts=true",
		"-dSubsetFonts=true",
		"-dDownsampleColorImages=true",
		"-dColorImageResolution=" + dpi,
		"-dDownsampleGrayImages=true",
		"-dGrayImageResolution=" + dpi,
		"-dDownsampleMonoImages=true",
		"-dMonoImageResolution=" + dpi,
		"-dAutoRotatePages=/None",
		"-sOutputFile=" + outputPath,
		inputPath,
	}
}

// Compress runs gs and blocks until it exits. Cancelling ctx kills the process.
func (g *Ghostscript) Compress(ctx context.Context, inputPath, outputPath string) error {
	cmd := exec.CommandContext(ctx, g.Path, g.Args(inputPath, outputPath)...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	cmd.WaitDelay = waitDelay

	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("ghostscript interrupted: %w", ctxErr)
		}
		return fmt.Errorf("ghostscript failed: %w: %s", err, tail(stderr.String(), 512))
	}
	return checkOutput(outputPath)
}

func checkOutput(path string) error {
	info, err := os.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("%w: %s", ErrNoOutput, path)
	}
	if err != nil {
		return fmt.Errorf("failed to stat compressor output: %w", err)
	}
	if info.Size() == 0 {
		return fmt.Errorf("%w: %s is empty", ErrNoOutput, path)
	}
	return nil
}

func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) > n {
		return "..." + s[len(s)-n:]
	}
	return s
}
