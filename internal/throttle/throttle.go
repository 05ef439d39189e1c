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

// Package throttle bounds the number of outstanding remote ingestion jobs.
// It is the run's sole backpressure mechanism: without it, unbounded
// submission overflows the platform's own queue-depth limit and causes bulk
// rejection.
package throttle

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jellydator/ttlcache/v3"
)

// Default ceilings by asset kind; the platform enforces a larger queue for
// table ingestion than for image ingestion.
const (
	DefaultImageCeiling = 2000
	DefaultTableCeiling = 2800

	// DefaultPollInterval is how often blocked workers re-check the remote
	// outstanding-job count.
	DefaultPollInterval = 30 * time.Second
)

const countKey = "outstanding"

// RemoteCounter supplies the platform's live count of queued-plus-running
// jobs.
type RemoteCounter interface {
	OutstandingJobCount(ctx context.Context) (int, error)
}

// Throttle admits submissions while the outstanding job count stays under
// the ceiling. The local counter is not persisted; it is re-derived from
// the remote platform on restart.
type Throttle struct {
	remote  RemoteCounter
	ceiling int
	poll    time.Duration

	// local tracks jobs this process admitted that have not reached a
	// terminal remote state.
	local atomic.Int64

	// pausedUntil delays all admissions after a platform quota rejection.
	pauseMu     sync.Mutex
	pausedUntil time.Time

	// cache holds the last remote count for one poll interval so that many
	// simultaneously blocked workers share a single remote query.
	fetchMu sync.Mutex
	cache   *ttlcache.Cache[string, int]
}

// New builds a throttle with the given ceiling and poll interval.
func New(remote RemoteCounter, ceiling int, poll time.Duration) *Throttle {
	if ceiling <= 0 {
		ceiling = DefaultImageCeiling
	}
	if poll <= 0 {
		poll = DefaultPollInterval
	}
	cache := ttlcache.New[string, int](
		ttlcache.WithTTL[string, int](poll),
		ttlcache.WithDisableTouchOnHit[string, int](),
	)
	return &Throttle{
		remote:  remote,
		ceiling: ceiling,
		poll:    poll,
		cache:   cache,
	}
}

// Ceiling returns the configured maximum outstanding jobs.
func (t *Throttle) Ceiling() int { return t.ceiling }

// Outstanding returns the process-local outstanding count.
func (t *Throttle) Outstanding() int { return int(t.local.Load()) }

// RequestAdmission blocks until the outstanding count is below the ceiling,
// then reserves a slot. It returns the context error when the run is
// cancelled while waiting.
func (t *Throttle) RequestAdmission(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if wait := t.pauseRemaining(); wait > 0 {
			if err := sleepCtx(ctx, wait); err != nil {
				return err
			}
			continue
		}

		if t.tryAdmit(ctx) {
			return nil
		}
		if err := sleepCtx(ctx, jittered(t.poll)); err != nil {
			return err
		}
	}
}

func (t *Throttle) tryAdmit(ctx context.Context) bool {
	// Optimistic local reservation first; reconcile against the remote
	// count before committing.
	n := t.local.Add(1)
	if int(n) > t.ceiling {
		t.local.Add(-1)
		return false
	}
	remote, err := t.remoteCount(ctx)
	if err != nil {
		// A failed poll does not block forever: fall back to the local
		// counter, which the reservation above already checked.
		slog.Warn("Could not poll remote outstanding job count", slog.Any("error", err))
		return true
	}
	if remote >= t.ceiling {
		t.local.Add(-1)
		return false
	}
	return true
}

// ReleaseAfterTerminal frees a slot once the submitted job reached a
// terminal remote state. Submission returning locally is not enough; the
// remote queue may still hold the job.
func (t *Throttle) ReleaseAfterTerminal() {
	if t.local.Add(-1) < 0 {
		t.local.Store(0)
	}
}

// ReleaseFailed frees a slot for a submission that never became a remote
// job.
func (t *Throttle) ReleaseFailed() { t.ReleaseAfterTerminal() }

// PauseFor delays all admissions, used when the platform reports quota
// exhaustion: the whole pool backs off, not just the failing item.
func (t *Throttle) PauseFor(d time.Duration) {
	t.pauseMu.Lock()
	defer t.pauseMu.Unlock()
	until := time.Now().Add(d)
	if until.After(t.pausedUntil) {
		t.pausedUntil = until
	}
}

func (t *Throttle) pauseRemaining() time.Duration {
	t.pauseMu.Lock()
	defer t.pauseMu.Unlock()
	return time.Until(t.pausedUntil)
}

func (t *Throttle) remoteCount(ctx context.Context) (int, error) {
	if item := t.cache.Get(countKey); item != nil {
		return item.Value(), nil
	}
	t.fetchMu.Lock()
	defer t.fetchMu.Unlock()
	if item := t.cache.Get(countKey); item != nil {
		return item.Value(), nil
	}
	n, err := t.remote.OutstandingJobCount(ctx)
	if err != nil {
		return 0, err
	}
	t.cache.Set(countKey, n, ttlcache.DefaultTTL)
	return n, nil
}

// jittered spreads the fixed poll interval +/-10% so blocked workers do not
// stampede the remote platform in lockstep.
func jittered(d time.Duration) time.Duration {
	spread := int64(d) / 5
	if spread <= 0 {
		return d
	}
	return d - time.Duration(spread/2) + time.Duration(rand.Int64N(spread))
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
