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

// Package retry decides what happens after a work item fails: retry now,
// retry with backoff, pause the whole pool, or give up. The attempt cap is
// global per item across all categories so no item can retry forever.
package retry

import (
	"context"
	"errors"
	"math/rand/v2"
	"net"
	"syscall"
	"time"

	"github.com/aws/smithy-go"

	"github.com/cartoflow/terraload/internal/gee"
)

// Category is the failure class driving retry policy.
type Category int

const (
	// Permanent failures are terminal; the item is marked failed.
	Permanent Category = iota
	// TransientLocal failures (disk busy, temporary lock) retry immediately.
	TransientLocal
	// TransientRemote failures (rate limit, timeout, 5xx) retry with
	// exponential backoff.
	TransientRemote
	// QuotaExhausted pauses the whole pool until the throttle admits again,
	// then retries this item. It is not an item failure.
	QuotaExhausted
)

func (c Category) String() string {
	switch c {
	case TransientLocal:
		return "transient-local"
	case TransientRemote:
		return "transient-remote"
	case QuotaExhausted:
		return "quota-exhausted"
	default:
		return "permanent"
	}
}

// Verdict is the policy decision for one failure.
type Verdict struct {
	Category Category
	Retry    bool
	Delay    time.Duration
}

// Classifier applies the retry policy table.
type Classifier struct {
	// MaxAttempts is the global per-item attempt cap. Exceeding it converts
	// any transient classification into a permanent failure.
	MaxAttempts int

	// BackoffFunc overrides the delay schedule; nil means Backoff.
	BackoffFunc func(attempt int) time.Duration
}

// DefaultMaxAttempts bounds submission attempts per item.
const DefaultMaxAttempts = 5

// NewClassifier returns a classifier with the given attempt cap, or the
// default when cap is not positive.
func NewClassifier(maxAttempts int) *Classifier {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	return &Classifier{MaxAttempts: maxAttempts}
}

// Classify inspects a failure after the given attempt number (1-based) and
// returns the verdict. Context cancellation is never retried: the run is
// shutting down.
func (c *Classifier) Classify(err error, attempt int) Verdict {
	category := categorize(err)

	if category == QuotaExhausted {
		// Quota pauses do not consume the item's retry budget the way
		// ordinary transients do, but the global cap still terminates.
		if attempt >= c.MaxAttempts {
			return Verdict{Category: Permanent}
		}
		return Verdict{Category: QuotaExhausted, Retry: true}
	}

	if category == Permanent || attempt >= c.MaxAttempts {
		return Verdict{Category: Permanent}
	}

	v := Verdict{Category: category, Retry: true}
	if category == TransientRemote {
		if c.BackoffFunc != nil {
			v.Delay = c.BackoffFunc(attempt)
		} else {
			v.Delay = Backoff(attempt)
		}
	}
	return v
}

func categorize(err error) Category {
	if err == nil {
		return Permanent
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return Permanent
	}

	var apiErr *gee.APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.QuotaExhausted():
			return QuotaExhausted
		case apiErr.Transient():
			return TransientRemote
		default:
			return Permanent
		}
	}

	var awsErr smithy.APIError
	if errors.As(err, &awsErr) {
		switch awsErr.ErrorCode() {
		case "ThrottlingException", "Throttling", "SlowDown", "RequestTimeout",
			"InternalError", "ServiceUnavailable":
			return TransientRemote
		}
		if awsErr.ErrorFault() == smithy.FaultServer {
			return TransientRemote
		}
		return Permanent
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return TransientRemote
	}

	switch {
	case errors.Is(err, syscall.EAGAIN),
		errors.Is(err, syscall.EBUSY),
		errors.Is(err, syscall.EINTR),
		errors.Is(err, syscall.ETXTBSY):
		return TransientLocal
	}

	return Permanent
}

// Backoff returns the jittered exponential delay before retry number
// attempt+1. The jitter keeps simultaneous retries from re-converging on
// the remote platform.
func Backoff(attempt int) time.Duration {
	base := 2 * time.Second
	// Clamp the exponent: the shift overflows int64 for large attempt
	// counts, and past the cap the exact exponent no longer matters.
	if attempt < 1 {
		attempt = 1
	}
	if attempt > 6 {
		attempt = 6
	}
	d := base << (attempt - 1)
	if d > time.Minute {
		d = time.Minute
	}
	// +/- 20% jitter
	jitter := time.Duration(rand.Int64N(int64(d) / 5 * 2))
	return d - d/5 + jitter
}
