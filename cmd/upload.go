// Copyright (C) 2025 Cartoflow, Inc
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, version 3.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <http://www.gnu.org/licenses/>.

package cmd

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/cartoflow/terraload/config"
	"github.com/cartoflow/terraload/internal/assetpath"
	"github.com/cartoflow/terraload/internal/catalog"
	"github.com/cartoflow/terraload/internal/gee"
	"github.com/cartoflow/terraload/internal/ledger"
	"github.com/cartoflow/terraload/internal/metadata"
	"github.com/cartoflow/terraload/internal/retry"
	"github.com/cartoflow/terraload/internal/throttle"
	"github.com/cartoflow/terraload/internal/uploader"
)

// uploadFlags is the shared flag set for the upload and tabup commands.
type uploadFlags struct {
	source        string
	dest          string
	metadataCSV   string
	pyramiding    string
	nodata        float64
	mask          bool
	overwrite     bool
	workers       int
	maxInflight   int
	resume        bool
	retryFailed   bool
	dryRun        bool
	createParents bool
	xColumn       string
	yColumn       string
}

func registerUploadFlags(cmd *cobra.Command, f *uploadFlags) {
	cmd.Flags().StringVar(&f.source, "source", "", "source directory to scan")
	cmd.Flags().StringVar(&f.dest, "dest", "", "destination asset path root")
	cmd.Flags().StringVar(&f.metadataCSV, "metadata", "", "metadata CSV keyed by asset name")
	cmd.Flags().BoolVar(&f.overwrite, "overwrite", false, "submit even when the destination asset exists")
	cmd.Flags().IntVar(&f.workers, "workers", 0, "worker pool size")
	cmd.Flags().IntVar(&f.maxInflight, "max-inflight", 0, "ceiling on outstanding remote jobs")
	cmd.Flags().BoolVar(&f.resume, "resume", true, "skip items already recorded as done in the ledger")
	cmd.Flags().BoolVar(&f.retryFailed, "retry-failed", false, "re-process items the ledger records as failed")
	cmd.Flags().BoolVar(&f.dryRun, "dry-run", false, "plan only, no remote mutations or ledger writes")
	cmd.Flags().BoolVar(&f.createParents, "create-parents", false, "create the destination container if absent")
	_ = cmd.MarkFlagRequired("source")
	_ = cmd.MarkFlagRequired("dest")
}

func newUploadCmd() *cobra.Command {
	var flags uploadFlags
	cmd := &cobra.Command{
		Use:   "upload",
		Short: "Batch-ingest rasters into an image collection",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runUpload(cmd, &flags, gee.KindImage)
		},
	}
	registerUploadFlags(cmd, &flags)
	cmd.Flags().StringVar(&flags.pyramiding, "pyramiding", "MEAN", "pyramiding policy (MEAN, MODE, MIN, MAX, SAMPLE)")
	cmd.Flags().Float64Var(&flags.nodata, "nodata", 0, "nodata value applied to every raster")
	cmd.Flags().BoolVar(&flags.mask, "mask", false, "use the last band as a mask")
	return cmd
}

func newTabupCmd() *cobra.Command {
	var flags uploadFlags
	cmd := &cobra.Command{
		Use:   "tabup",
		Short: "Batch-ingest tables (zipped shapefiles and coordinate CSVs)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runUpload(cmd, &flags, gee.KindTable)
		},
	}
	registerUploadFlags(cmd, &flags)
	cmd.Flags().StringVar(&flags.xColumn, "x", "", "longitude column name for CSV payloads")
	cmd.Flags().StringVar(&flags.yColumn, "y", "", "latitude column name for CSV payloads")
	return cmd
}

func runUpload(cmd *cobra.Command, flags *uploadFlags, kind gee.AssetKind) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}
	applyUploadFlags(cmd, flags, cfg)

	ctx, cancel := handleSignals(cmd.Context())
	defer cancel()

	_, closeLog, err := setupLogging(cmd.Name(), flags.source)
	if err != nil {
		return err
	}
	defer func() { _ = closeLog() }()

	var table *metadata.Table
	if flags.metadataCSV != "" {
		table, err = metadata.LoadCSV(flags.metadataCSV, "")
		if err != nil {
			return fmt.Errorf("load metadata: %w", err)
		}
	}

	items, rejected, err := catalog.Build(flags.source, flags.dest, kind, table)
	if err != nil {
		return err
	}
	if rerr := catalog.RejectionError(rejected); rerr != nil {
		slog.Warn("Some files were excluded by validation", slog.Any("error", rerr))
	}
	if len(items) == 0 {
		return fmt.Errorf("no uploadable files in %s", flags.source)
	}
	slog.Info("Built work item set",
		slog.Int("items", len(items)),
		slog.Int("rejected", len(rejected)))

	if table != nil {
		if missing := table.MissingFor(itemNames(items)); len(missing) > 0 {
			slog.Warn("Some files have no metadata row; they upload without properties",
				slog.Int("count", len(missing)),
				slog.Any("names", missing))
		}
	}

	session, err := newSession(cfg)
	if err != nil {
		return err
	}
	client := gee.NewClient(cfg.BaseURL, cfg.Project, session)

	if flags.createParents && !flags.dryRun {
		root, err := assetpath.Normalize(flags.dest)
		if err != nil {
			return err
		}
		if kind == gee.KindImage {
			err = client.EnsureImageCollection(ctx, root)
		} else {
			err = client.CreateFolderIfAbsent(ctx, root)
		}
		if err != nil {
			return fmt.Errorf("create destination container: %w", err)
		}
	}

	ledgerPath := filepath.Join(flags.source, ledger.DefaultFilename)
	if !flags.resume && !flags.dryRun {
		if err := os.Remove(ledgerPath); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("discard previous ledger: %w", err)
		}
	}
	store, err := ledger.Open(ledgerPath)
	if err != nil {
		return err
	}

	ceiling := cfg.Upload.ImageCeiling
	if kind == gee.KindTable {
		ceiling = cfg.Upload.TableCeiling
	}
	if flags.maxInflight > 0 {
		ceiling = flags.maxInflight
	}

	transport, err := newTransport(ctx, cfg, session)
	if err != nil {
		return err
	}

	var nodata *float64
	if cmd.Flags().Changed("nodata") {
		nodata = &flags.nodata
	}

	pool := uploader.New(
		client,
		transport,
		store,
		throttle.New(client, ceiling, cfg.Upload.PollInterval),
		retry.NewClassifier(cfg.Upload.MaxAttempts),
		uploader.Options{
			Workers:            cfg.Upload.Workers,
			AllowOverwrite:     cfg.Upload.Overwrite,
			RetryFailed:        flags.retryFailed,
			DryRun:             flags.dryRun,
			PyramidingPolicy:   flags.pyramiding,
			NoData:             nodata,
			MaskBands:          flags.mask,
			XColumn:            flags.xColumn,
			YColumn:            flags.yColumn,
			StatusPollInterval: cfg.Upload.StatusPollInterval,
			QuotaPause:         cfg.Upload.QuotaPause,
		},
	)

	summary, err := pool.Run(ctx, items)
	fmt.Fprintln(cmd.OutOrStdout(), summary.String())
	if err != nil {
		var ioErr *ledger.IOError
		if errors.As(err, &ioErr) {
			return fmt.Errorf("halting, progress could not be persisted: %w", ioErr)
		}
		return err
	}
	if !summary.Ok() {
		return fmt.Errorf("%d items failed; re-run with --retry-failed to retry them", summary.Failed)
	}
	return nil
}

func itemNames(items []*catalog.Item) []string {
	names := make([]string, len(items))
	for i, item := range items {
		names[i] = item.AssetName
	}
	return names
}

// applyUploadFlags folds explicit flags over the loaded configuration.
func applyUploadFlags(cmd *cobra.Command, flags *uploadFlags, cfg *config.Config) {
	if flags.workers > 0 {
		cfg.Upload.Workers = flags.workers
	}
	if cmd.Flags().Changed("overwrite") {
		cfg.Upload.Overwrite = flags.overwrite
	}
}

func init() {
	rootCmd.AddCommand(newUploadCmd())
	rootCmd.AddCommand(newTabupCmd())
}
