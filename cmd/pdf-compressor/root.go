package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Lllllllleong/pdfassetmigrator/internal/models"
	"github.com/Lllllllleong/pdfassetmigrator/internal/services"
)

type rootOptions struct {
	configPath  string
	debug       bool
	logFormat   string
	dryRun      bool
	recordLimit int
	pageSize    int
	compressor  string
	reprocess   bool
	exportDir   string
}

func newRootCmd() *cobra.Command {
	return newRootCommand(&rootOptions{})
}

func newRootCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pdf-compressor",
		Short: "Compress PDF assets referenced by Firestore records",
		Long: `Scans the record collection in document ID order, finds asset references,
and replaces each referenced PDF with a compressed rendition when it is smaller.
A detail report and a totals report are written to the export directory.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			setupLogging(cmd.ErrOrStderr(), *opts)

			cfg, err := buildConfig(cmd, *opts)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			f, err := services.NewPDFCompressor(ctx, cfg)
			if err != nil {
				slog.Error("Critical error during initialization", "error", err)
				return err
			}
			defer func() {
				if err := f.Close(); err != nil {
					slog.Warn("Failed to close clients", "error", err)
				}
			}()

			rep, err := f.Process(ctx, models.RunRequest{})
			if rep != nil {
				fmt.Fprintln(cmd.OutOrStdout(), rep.Summary())
			}
			return err
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&opts.configPath, "config", "", "YAML config file")
	flags.BoolVar(&opts.debug, "debug", false, "enable debug logging")
	flags.StringVar(&opts.logFormat, "log-format", "json", "log format: json or text")
	flags.BoolVar(&opts.dryRun, "dry-run", false, "compress and validate without uploading or committing")
	flags.IntVar(&opts.recordLimit, "limit", 0, "maximum number of records to scan (0 = all)")
	flags.IntVar(&opts.pageSize, "page-size", 0, "records fetched per page")
	flags.StringVar(&opts.compressor, "compressor", "", "compressor backend: ghostscript or pdfcpu")
	flags.BoolVar(&opts.reprocess, "reprocess", false, "recompress assets that already have a compressed rendition")
	flags.StringVar(&opts.exportDir, "export-dir", "", "directory for the CSV reports")
	return cmd
}

// buildConfig layers defaults, the optional config file, the environment
// and explicitly set flags, then validates the result.
func buildConfig(cmd *cobra.Command, opts rootOptions) (services.PDFCompressorConfig, error) {
	cfg := services.DefaultConfig()
	if opts.configPath != "" {
		if err := cfg.ApplyFile(opts.configPath); err != nil {
			return cfg, err
		}
	}
	if err := cfg.ApplyEnv(); err != nil {
		return cfg, err
	}

	flags := cmd.Flags()
	if flags.Changed("page-size") {
		cfg.PageSize = opts.pageSize
	}
	if flags.Changed("compressor") {
		cfg.Compressor = opts.compressor
	}
	if flags.Changed("reprocess") {
		cfg.ReprocessCompressed = opts.reprocess
	}
	if flags.Changed("export-dir") {
		cfg.ExportDir = opts.exportDir
	}
	if flags.Changed("dry-run") {
		cfg.DryRun = opts.dryRun
	}
	if flags.Changed("limit") {
		cfg.RecordLimit = opts.recordLimit
	}
	return cfg, cfg.Validate()
}

func setupLogging(w io.Writer, opts rootOptions) {
	level := slog.LevelInfo
	if opts.debug {
		level = slog.LevelDebug
	}
	handlerOpts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if opts.logFormat == "text" {
		handler = slog.NewTextHandler(w, handlerOpts)
	} else {
		handler = slog.NewJSONHandler(w, handlerOpts)
	}
	slog.SetDefault(slog.New(handler))
}
