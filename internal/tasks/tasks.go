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

// Package tasks inspects and cancels remote ingestion jobs. It only reads
// job state and requests cancellation; scheduling stays on the platform.
package tasks

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/cartoflow/terraload/internal/gee"
)

// API is the slice of the remote catalog client this package consumes.
type API interface {
	ListJobs(ctx context.Context) ([]gee.Job, error)
	GetJobStatus(ctx context.Context, jobID string) (gee.Job, error)
	CancelJob(ctx context.Context, jobID string) error
}

// List returns jobs, optionally filtered to one state.
func List(ctx context.Context, api API, state gee.JobState) ([]gee.Job, error) {
	jobs, err := api.ListJobs(ctx)
	if err != nil {
		return nil, err
	}
	if state == "" {
		return jobs, nil
	}
	filtered := jobs[:0]
	for _, j := range jobs {
		if j.State == state {
			filtered = append(filtered, j)
		}
	}
	return filtered, nil
}

// Lookup fetches one job by identifier.
func Lookup(ctx context.Context, api API, jobID string) (gee.Job, error) {
	return api.GetJobStatus(ctx, jobID)
}

// Summarize tallies jobs by state, with states in stable order.
func Summarize(jobs []gee.Job) []StateCount {
	counts := make(map[gee.JobState]int)
	for _, j := range jobs {
		counts[j.State]++
	}
	out := make([]StateCount, 0, len(counts))
	for state, n := range counts {
		out = append(out, StateCount{State: state, Count: n})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].State < out[j].State })
	return out
}

// StateCount is one row of the task summary.
type StateCount struct {
	State gee.JobState
	Count int
}

// Cancel cancels jobs per selector: "all" (pending and running), "running",
// "pending", or a single job identifier. Returns the number of jobs
// cancellation was requested for.
func Cancel(ctx context.Context, api API, selector string) (int, error) {
	switch strings.ToLower(selector) {
	case "":
		return 0, fmt.Errorf("cancel selector is required")
	case "all":
		return cancelByState(ctx, api, gee.JobPending, gee.JobRunning)
	case "running":
		return cancelByState(ctx, api, gee.JobRunning)
	case "pending":
		return cancelByState(ctx, api, gee.JobPending)
	default:
		if err := api.CancelJob(ctx, selector); err != nil {
			return 0, err
		}
		return 1, nil
	}
}

func cancelByState(ctx context.Context, api API, states ...gee.JobState) (int, error) {
	jobs, err := api.ListJobs(ctx)
	if err != nil {
		return 0, err
	}
	want := make(map[gee.JobState]struct{}, len(states))
	for _, s := range states {
		want[s] = struct{}{}
	}
	n := 0
	for _, j := range jobs {
		if _, ok := want[j.State]; !ok {
			continue
		}
		if err := api.CancelJob(ctx, j.ID); err != nil {
			return n, fmt.Errorf("cancel %s: %w", j.ID, err)
		}
		n++
	}
	return n, nil
}
