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

// Package uploader drains the work item set: N workers pull items in catalog
// order and run each through resume skip, existence check, throttle
// admission, staging, submission, and status polling, recording every
// transition in the ledger. One item's failure never aborts its siblings;
// only a ledger write failure or cancellation halts the run.
package uploader

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/errgroup"

	"github.com/cartoflow/terraload/internal/catalog"
	"github.com/cartoflow/terraload/internal/gee"
	"github.com/cartoflow/terraload/internal/ledger"
	"github.com/cartoflow/terraload/internal/retry"
	"github.com/cartoflow/terraload/internal/staging"
	"github.com/cartoflow/terraload/internal/throttle"
)

// CatalogAPI is the slice of the remote catalog client the pool consumes.
type CatalogAPI interface {
	CreateIngestionJob(ctx context.Context, req gee.IngestionRequest, allowOverwrite bool) (string, error)
	GetJobStatus(ctx context.Context, jobID string) (gee.Job, error)
	AssetExists(ctx context.Context, path string) (bool, error)
}

// Defaults for the per-run tunables.
const (
	DefaultWorkers            = 1
	DefaultStatusPollInterval = 15 * time.Second
	DefaultQuotaPause         = 2 * time.Minute
)

// Options are the per-run knobs.
type Options struct {
	// Workers is the pool size; each worker runs one item to completion
	// before pulling the next.
	Workers int
	// AllowOverwrite submits even when the destination asset exists; under
	// the default deny policy an existing asset marks the item Skipped.
	AllowOverwrite bool
	// RetryFailed makes ledger entries in the Failed state eligible again.
	RetryFailed bool
	// DryRun plans the run without remote mutations or ledger writes.
	DryRun bool

	// Ingestion request defaults applied to every item.
	PyramidingPolicy string
	NoData           *float64
	MaskBands        bool
	XColumn          string
	YColumn          string

	// StatusPollInterval paces job status polling after submission.
	StatusPollInterval time.Duration
	// QuotaPause is how long the whole pool backs off after the platform
	// reports quota exhaustion.
	QuotaPause time.Duration
}

// Pool orchestrates one batch run.
type Pool struct {
	catalog    CatalogAPI
	transport  staging.Transport
	ledger     *ledger.Store
	throttle   *throttle.Throttle
	classifier *retry.Classifier
	opts       Options
}

// New builds a pool. All collaborators are explicit handles; there is no
// ambient session or client state.
func New(api CatalogAPI, transport staging.Transport, store *ledger.Store, th *throttle.Throttle, cl *retry.Classifier, opts Options) *Pool {
	if opts.Workers <= 0 {
		opts.Workers = DefaultWorkers
	}
	if opts.StatusPollInterval <= 0 {
		opts.StatusPollInterval = DefaultStatusPollInterval
	}
	if opts.QuotaPause <= 0 {
		opts.QuotaPause = DefaultQuotaPause
	}
	return &Pool{
		catalog:    api,
		transport:  transport,
		ledger:     store,
		throttle:   th,
		classifier: cl,
		opts:       opts,
	}
}

// Run reconciles the ledger against remote job state, then drains items.
// The returned error is fatal-only (ledger I/O or cancellation); per-item
// failures land in the summary, not the error.
func (p *Pool) Run(ctx context.Context, items []*catalog.Item) (Summary, error) {
	if p.opts.DryRun {
		return p.plan(items), nil
	}

	if err := p.Reconcile(ctx); err != nil {
		return Summary{}, err
	}

	queue := make(chan *catalog.Item)
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer close(queue)
		for _, item := range items {
			select {
			case queue <- item:
			case <-gctx.Done():
				// Stop admitting new items; in-flight workers finish their
				// current item.
				return gctx.Err()
			}
		}
		return nil
	})

	for i := 0; i < p.opts.Workers; i++ {
		g.Go(func() error {
			for item := range queue {
				if err := p.processItem(gctx, item); err != nil {
					return err
				}
			}
			return nil
		})
	}

	err := g.Wait()
	return p.summarize(items), err
}

// plan reports what a real run would do, with zero remote or ledger writes.
func (p *Pool) plan(items []*catalog.Item) Summary {
	s := Summary{Total: len(items)}
	for _, item := range items {
		if entry, ok := p.ledger.Get(item.DestinationPath); ok && entry.State.Terminal() {
			s.Skipped++
			continue
		}
		slog.Info("Would submit",
			slog.String("local", item.LocalPath),
			slog.String("destination", item.DestinationPath))
		s.Planned++
	}
	return s
}

// processItem runs the full per-item state machine. Per-item failures are
// folded into the ledger; the returned error is fatal-only.
func (p *Pool) processItem(ctx context.Context, item *catalog.Item) error {
	dest := item.DestinationPath
	log := slog.With(slog.String("destination", dest))

	entry, known := p.ledger.Get(dest)
	if known {
		switch {
		case entry.State.Terminal():
			log.Debug("Already terminal in ledger, skipping")
			return nil
		case entry.State == ledger.StateFailed && !p.opts.RetryFailed:
			log.Debug("Previously failed, skipping (retry-failed not set)")
			return nil
		case entry.State == ledger.StateSubmitted && entry.RemoteJobID != "":
			// Reconciliation left this job in flight. Re-adopt it: account
			// the slot and poll to terminal instead of resubmitting.
			if err := p.throttle.RequestAdmission(ctx); err != nil {
				return err
			}
			return p.awaitJob(ctx, item, entry.RemoteJobID)
		}
	}

	if !known {
		if err := p.ledger.Transition(dest, ledger.StatePending); err != nil {
			return err
		}
	}

	exists, done, err := p.resolveExistence(ctx, item, log)
	if err != nil || done {
		return err
	}
	if exists && !p.opts.AllowOverwrite {
		log.Info("Destination asset exists, skipping")
		itemsSkipped.Add(ctx, 1)
		return p.ledger.Transition(dest, ledger.StateSkipped)
	}

	return p.submitLoop(ctx, item, log)
}

// resolveExistence queries the destination path right before submission.
// Transient query failures retry under the item's shared attempt budget.
// done means the item reached a terminal ledger state during the check.
func (p *Pool) resolveExistence(ctx context.Context, item *catalog.Item, log *slog.Logger) (exists, done bool, err error) {
	for {
		exists, err := p.catalog.AssetExists(ctx, item.DestinationPath)
		if err == nil {
			return exists, false, nil
		}

		item.Attempt++
		verdict := p.classifier.Classify(err, item.Attempt)
		if !verdict.Retry {
			log.Warn("Existence check failed permanently", slog.Any("error", err))
			itemsFailed.Add(ctx, 1)
			return false, true, p.ledger.Transition(item.DestinationPath, ledger.StateFailed,
				ledger.IncrementAttempts(), ledger.WithError(err.Error()))
		}
		if lerr := p.ledger.Transition(item.DestinationPath, ledger.StatePending,
			ledger.IncrementAttempts(), ledger.WithError(err.Error())); lerr != nil {
			return false, false, lerr
		}
		if err := p.backoff(ctx, verdict, log); err != nil {
			return false, false, err
		}
	}
}

// submitLoop runs staging and submission under the retry policy until the
// item reaches a terminal ledger state.
func (p *Pool) submitLoop(ctx context.Context, item *catalog.Item, log *slog.Logger) error {
	dest := item.DestinationPath
	for {
		if err := p.throttle.RequestAdmission(ctx); err != nil {
			return err
		}

		ref, err := p.transport.Stage(ctx, item.LocalPath)
		if err != nil {
			p.throttle.ReleaseFailed()
			done, lerr := p.recordFailure(ctx, item, err, log)
			if lerr != nil || done {
				return lerr
			}
			continue
		}

		// Once staged, the submission itself runs to completion even during
		// shutdown so the ledger reflects what was actually sent.
		jobID, err := p.catalog.CreateIngestionJob(context.WithoutCancel(ctx),
			p.buildRequest(item, ref), p.opts.AllowOverwrite)
		if err != nil {
			p.throttle.ReleaseFailed()
			done, lerr := p.recordFailure(ctx, item, err, log)
			if lerr != nil || done {
				return lerr
			}
			continue
		}

		item.Attempt++
		submissions.Add(ctx, 1)
		if err := p.ledger.Transition(dest, ledger.StateSubmitted,
			ledger.WithJobID(jobID), ledger.IncrementAttempts()); err != nil {
			return err
		}
		log.Info("Submitted ingestion job",
			slog.String("job", jobID),
			slog.Int("attempt", item.Attempt))

		return p.awaitJob(ctx, item, jobID)
	}
}

// recordFailure classifies one staging or submission failure, persists the
// attempt, and applies the verdict. done means the item reached a terminal
// state and the caller moves on.
func (p *Pool) recordFailure(ctx context.Context, item *catalog.Item, cause error, log *slog.Logger) (done bool, err error) {
	item.Attempt++
	verdict := p.classifier.Classify(cause, item.Attempt)

	if !verdict.Retry {
		log.Warn("Item failed permanently",
			slog.Int("attempts", item.Attempt),
			slog.Any("error", cause))
		itemsFailed.Add(ctx, 1)
		return true, p.ledger.Transition(item.DestinationPath, ledger.StateFailed,
			ledger.IncrementAttempts(), ledger.WithError(cause.Error()))
	}

	retries.Add(ctx, 1)
	if err := p.ledger.Transition(item.DestinationPath, ledger.StatePending,
		ledger.IncrementAttempts(), ledger.WithError(cause.Error())); err != nil {
		return false, err
	}
	return false, p.backoff(ctx, verdict, log)
}

// backoff waits out a retry verdict: pool-wide pause for quota exhaustion,
// per-item delay for transient remote failures, immediate for local ones.
func (p *Pool) backoff(ctx context.Context, verdict retry.Verdict, log *slog.Logger) error {
	switch verdict.Category {
	case retry.QuotaExhausted:
		log.Warn("Platform quota exhausted, pausing pool",
			slog.Duration("pause", p.opts.QuotaPause))
		p.throttle.PauseFor(p.opts.QuotaPause)
		return nil
	case retry.TransientRemote:
		log.Info("Transient remote failure, backing off",
			slog.Duration("delay", verdict.Delay))
		return sleepCtx(ctx, verdict.Delay)
	default:
		return nil
	}
}

// awaitJob polls the submitted job to a terminal remote state, then records
// the outcome and releases the throttle slot.
func (p *Pool) awaitJob(ctx context.Context, item *catalog.Item, jobID string) error {
	dest := item.DestinationPath
	for {
		job, err := p.catalog.GetJobStatus(ctx, jobID)
		if err != nil {
			if ctx.Err() != nil {
				// Entry stays Submitted; the next run reconciles it.
				return ctx.Err()
			}
			slog.Warn("Could not poll job status",
				slog.String("job", jobID), slog.Any("error", err))
		} else if job.State.Terminal() {
			p.throttle.ReleaseAfterTerminal()
			if job.State == gee.JobSucceeded {
				itemsSucceeded.Add(ctx, 1)
				return p.ledger.Transition(dest, ledger.StateSucceeded)
			}
			msg := job.Error
			if msg == "" {
				msg = fmt.Sprintf("ingestion job ended %s", job.State)
			}
			itemsFailed.Add(ctx, 1)
			return p.ledger.Transition(dest, ledger.StateFailed, ledger.WithError(msg))
		}

		if err := sleepCtx(ctx, jittered(p.opts.StatusPollInterval)); err != nil {
			return err
		}
	}
}

// buildRequest merges run defaults with the item's metadata row.
func (p *Pool) buildRequest(item *catalog.Item, payloadRef string) gee.IngestionRequest {
	req := gee.IngestionRequest{
		DestinationPath:  item.DestinationPath,
		PayloadRef:       payloadRef,
		Kind:             item.Kind,
		PyramidingPolicy: p.opts.PyramidingPolicy,
		NoData:           p.opts.NoData,
		MaskBands:        p.opts.MaskBands,
		XColumn:          p.opts.XColumn,
		YColumn:          p.opts.YColumn,
	}
	if item.Metadata != nil {
		start, end, props := item.Metadata.TimeBounds()
		req.Properties = props
		req.StartTimeMS = start
		req.EndTimeMS = end
	}
	return req
}

// Reconcile resolves ledger entries left Submitted by a previous run: ask
// the platform for each job's current state rather than resubmitting. A
// vanished job makes the entry eligible again; a poll failure leaves it
// Submitted for the workers to re-adopt.
func (p *Pool) Reconcile(ctx context.Context) error {
	for dest, entry := range p.ledger.Entries() {
		if entry.State != ledger.StateSubmitted {
			continue
		}
		if entry.RemoteJobID == "" {
			if err := p.ledger.Transition(dest, ledger.StatePending,
				ledger.WithError("submitted entry had no job id")); err != nil {
				return err
			}
			continue
		}

		job, err := p.catalog.GetJobStatus(ctx, entry.RemoteJobID)
		if err != nil {
			var apiErr *gee.APIError
			if errors.As(err, &apiErr) && apiErr.NotFound() {
				slog.Warn("Remote job vanished, item re-eligible",
					slog.String("destination", dest),
					slog.String("job", entry.RemoteJobID))
				if err := p.ledger.Transition(dest, ledger.StatePending,
					ledger.WithError("remote job not found during reconciliation")); err != nil {
					return err
				}
				continue
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			slog.Warn("Could not reconcile submitted entry",
				slog.String("destination", dest), slog.Any("error", err))
			continue
		}

		switch job.State {
		case gee.JobSucceeded:
			if err := p.ledger.Transition(dest, ledger.StateSucceeded); err != nil {
				return err
			}
		case gee.JobFailed, gee.JobCancelled:
			msg := job.Error
			if msg == "" {
				msg = fmt.Sprintf("ingestion job ended %s", job.State)
			}
			if err := p.ledger.Transition(dest, ledger.StateFailed,
				ledger.WithError(msg)); err != nil {
				return err
			}
		}
	}
	return nil
}

func (p *Pool) summarize(items []*catalog.Item) Summary {
	s := Summary{Total: len(items)}
	for _, item := range items {
		entry, ok := p.ledger.Get(item.DestinationPath)
		if !ok {
			continue
		}
		switch entry.State {
		case ledger.StateSucceeded:
			s.Succeeded++
		case ledger.StateSkipped:
			s.Skipped++
		case ledger.StateFailed:
			s.Failed++
			s.Failures = append(s.Failures, Failure{
				DestinationPath: entry.DestinationPath,
				LastError:       entry.LastError,
				Attempts:        entry.Attempts,
			})
		}
	}
	return s
}

// jittered spreads the fixed poll interval +/-10%.
func jittered(d time.Duration) time.Duration {
	spread := int64(d) / 5
	if spread <= 0 {
		return d
	}
	return d - time.Duration(spread/2) + time.Duration(rand.Int64N(spread))
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

var (
	submissions    metric.Int64Counter
	retries        metric.Int64Counter
	itemsSucceeded metric.Int64Counter
	itemsFailed    metric.Int64Counter
	itemsSkipped   metric.Int64Counter
)

func init() {
	meter := otel.Meter("github.com/cartoflow/terraload/internal/uploader")

	var err error
	submissions, err = meter.Int64Counter(
		"terraload.uploader.submissions",
		metric.WithDescription("Number of ingestion job submissions"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create uploader.submissions counter: %w", err))
	}

	retries, err = meter.Int64Counter(
		"terraload.uploader.retries",
		metric.WithDescription("Number of per-item retries"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create uploader.retries counter: %w", err))
	}

	itemsSucceeded, err = meter.Int64Counter(
		"terraload.uploader.succeeded",
		metric.WithDescription("Number of items ingested successfully"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create uploader.succeeded counter: %w", err))
	}

	itemsFailed, err = meter.Int64Counter(
		"terraload.uploader.failed",
		metric.WithDescription("Number of items that failed permanently"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create uploader.failed counter: %w", err))
	}

	itemsSkipped, err = meter.Int64Counter(
		"terraload.uploader.skipped",
		metric.WithDescription("Number of items skipped"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create uploader.skipped counter: %w", err))
	}
}
