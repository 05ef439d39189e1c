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

package gee

import (
	"fmt"
	"strings"
	"time"
)

// JobState is the remote ingestion job lifecycle as this system observes it.
type JobState string

const (
	JobPending   JobState = "PENDING"
	JobRunning   JobState = "RUNNING"
	JobSucceeded JobState = "SUCCEEDED"
	JobFailed    JobState = "FAILED"
	JobCancelled JobState = "CANCELLED"
	JobUnknown   JobState = "UNKNOWN"
)

// Terminal reports whether the remote job will not change state again.
func (s JobState) Terminal() bool {
	return s == JobSucceeded || s == JobFailed || s == JobCancelled
}

// normalizeJobState folds the platform's historical state aliases into the
// canonical set.
func normalizeJobState(raw string) JobState {
	switch strings.ToUpper(raw) {
	case "PENDING", "READY", "QUEUED":
		return JobPending
	case "RUNNING":
		return JobRunning
	case "SUCCEEDED", "COMPLETED":
		return JobSucceeded
	case "FAILED":
		return JobFailed
	case "CANCELLED", "CANCELLING":
		return JobCancelled
	default:
		return JobUnknown
	}
}

// Job is a reference to a remote ingestion job. This system only observes
// job state, it never mutates remote scheduling.
type Job struct {
	ID              string
	State           JobState
	Type            string
	Description     string
	DestinationPath string
	Attempt         int
	StartTime       time.Time
	UpdateTime      time.Time
	Error           string
}

// AssetKind is the payload kind being ingested.
type AssetKind string

const (
	KindImage AssetKind = "image"
	KindTable AssetKind = "table"
)

// Asset is the remote catalog's record for a path.
type Asset struct {
	Name       string
	Type       string
	SizeBytes  int64
	QuotaBytes int64
	QuotaUsed  int64
	AssetCount int64
	AssetQuota int64
}

// IngestionRequest describes one ingestion job submission.
type IngestionRequest struct {
	// DestinationPath is the canonical asset path to create.
	DestinationPath string
	// PayloadRef is the staged payload reference returned by the staging
	// transport.
	PayloadRef string
	Kind       AssetKind

	PyramidingPolicy string
	NoData           *float64
	MaskBands        bool
	// XColumn/YColumn name the coordinate columns for tabular point data.
	XColumn string
	YColumn string

	Properties  map[string]any
	StartTimeMS int64
	EndTimeMS   int64
}

// APIError is a non-2xx response from the remote catalog.
type APIError struct {
	StatusCode int
	Status     string
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("remote catalog: HTTP %d %s", e.StatusCode, e.Status)
	}
	return fmt.Sprintf("remote catalog: HTTP %d %s: %s", e.StatusCode, e.Status, e.Message)
}

// NotFound reports whether the error is a missing-asset response.
func (e *APIError) NotFound() bool { return e.StatusCode == 404 }

// Transient reports whether the request may succeed if repeated.
func (e *APIError) Transient() bool {
	return e.StatusCode == 429 || e.StatusCode == 408 || e.StatusCode >= 500
}

// QuotaExhausted reports a platform-level quota or job-limit rejection.
// These pause the whole pool rather than failing the item.
func (e *APIError) QuotaExhausted() bool {
	if e.Status == "RESOURCE_EXHAUSTED" {
		return true
	}
	msg := strings.ToLower(e.Message)
	return strings.Contains(msg, "quota") || strings.Contains(msg, "too many pending tasks")
}
