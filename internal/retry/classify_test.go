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

package retry

import (
	"context"
	"errors"
	"fmt"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/cartoflow/terraload/internal/gee"
)

func TestClassify(t *testing.T) {
	c := NewClassifier(5)

	tests := []struct {
		name     string
		err      error
		attempt  int
		category Category
		retry    bool
	}{
		{
			name:     "rate limited",
			err:      &gee.APIError{StatusCode: 503},
			attempt:  1,
			category: TransientRemote,
			retry:    true,
		},
		{
			name:     "quota exhausted",
			err:      &gee.APIError{StatusCode: 429, Status: "RESOURCE_EXHAUSTED"},
			attempt:  1,
			category: QuotaExhausted,
			retry:    true,
		},
		{
			name:     "remote argument rejection",
			err:      &gee.APIError{StatusCode: 400, Status: "INVALID_ARGUMENT", Message: "bad manifest"},
			attempt:  1,
			category: Permanent,
		},
		{
			name:     "wrapped remote error",
			err:      fmt.Errorf("submit: %w", &gee.APIError{StatusCode: 500}),
			attempt:  2,
			category: TransientRemote,
			retry:    true,
		},
		{
			name:     "disk busy",
			err:      fmt.Errorf("open payload: %w", syscall.EBUSY),
			attempt:  1,
			category: TransientLocal,
			retry:    true,
		},
		{
			name:     "plain local error",
			err:      errors.New("malformed payload"),
			attempt:  1,
			category: Permanent,
		},
		{
			name:     "cancelled run",
			err:      context.Canceled,
			attempt:  1,
			category: Permanent,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			v := c.Classify(tc.err, tc.attempt)
			require.Equal(t, tc.category, v.Category)
			require.Equal(t, tc.retry, v.Retry)
		})
	}
}

func TestAttemptCapConvertsTransientToPermanent(t *testing.T) {
	c := NewClassifier(3)
	transient := &gee.APIError{StatusCode: 503}

	v := c.Classify(transient, 2)
	require.True(t, v.Retry)

	v = c.Classify(transient, 3)
	require.Equal(t, Permanent, v.Category)
	require.False(t, v.Retry)

	// Quota classification is also bounded by the cap.
	quota := &gee.APIError{StatusCode: 429, Status: "RESOURCE_EXHAUSTED"}
	v = c.Classify(quota, 3)
	require.Equal(t, Permanent, v.Category)
}

func TestTransientLocalRetriesImmediately(t *testing.T) {
	c := NewClassifier(5)
	v := c.Classify(syscall.EAGAIN, 1)
	require.Equal(t, TransientLocal, v.Category)
	require.Zero(t, v.Delay)
}

func TestBackoffGrowsAndCaps(t *testing.T) {
	prevMax := time.Duration(0)
	for attempt := 1; attempt <= 8; attempt++ {
		d := Backoff(attempt)
		require.Positive(t, d)
		require.LessOrEqual(t, d, time.Minute+time.Minute/5)
		if attempt <= 5 {
			require.Greater(t, d, prevMax/4, "attempt %d", attempt)
		}
		prevMax = d
	}
}

func TestBackoffLargeAttemptStaysCapped(t *testing.T) {
	// A high configured attempt cap can drive the attempt count far past
	// the point where the exponential shift would overflow; the delay must
	// stay positive and capped, never wrap negative.
	for _, attempt := range []int{34, 63, 64, 100, 1 << 20} {
		d := Backoff(attempt)
		require.Positive(t, d, "attempt %d", attempt)
		require.LessOrEqual(t, d, time.Minute+time.Minute/5, "attempt %d", attempt)
	}
}
