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

// Package gee talks to the remote asset catalog's REST surface: ingestion
// job submission, job status, asset existence, and asset management. The
// catalog's own job scheduler is opaque; this client only submits jobs and
// observes their state transitions.
package gee

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DefaultBaseURL is the production catalog endpoint.
const DefaultBaseURL = "https://earthengine.googleapis.com"

// Client is the concrete remote catalog client. Callers that only need a
// slice of its surface declare their own interfaces.
type Client struct {
	baseURL string
	project string
	session *Session

	// newRequestID generates ingestion request IDs; replaceable in tests.
	newRequestID func() string
}

// NewClient builds a catalog client for one cloud project. The session
// handle is explicit; there is no ambient global credential state.
func NewClient(baseURL, project string, session *Session) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL:      strings.TrimRight(baseURL, "/"),
		project:      project,
		session:      session,
		newRequestID: uuid.NewString,
	}
}

// Project returns the cloud project this client operates on.
func (c *Client) Project() string { return c.project }

// operation is the wire shape of a remote ingestion job.
type operation struct {
	Name     string `json:"name"`
	Done     bool   `json:"done"`
	Metadata struct {
		Type            string   `json:"type"`
		State           string   `json:"state"`
		Description     string   `json:"description"`
		Attempt         int      `json:"attempt"`
		CreateTime      string   `json:"createTime"`
		UpdateTime      string   `json:"updateTime"`
		DestinationUris []string `json:"destinationUris"`
	} `json:"metadata"`
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

func (op *operation) toJob() Job {
	j := Job{
		ID:          op.Name,
		State:       normalizeJobState(op.Metadata.State),
		Type:        op.Metadata.Type,
		Description: op.Metadata.Description,
		Attempt:     op.Metadata.Attempt,
		Error:       op.Error.Message,
	}
	if ts, err := time.Parse(time.RFC3339, op.Metadata.CreateTime); err == nil {
		j.StartTime = ts
	}
	if ts, err := time.Parse(time.RFC3339, op.Metadata.UpdateTime); err == nil {
		j.UpdateTime = ts
	}
	if len(op.Metadata.DestinationUris) > 0 {
		j.DestinationPath = strings.TrimPrefix(op.Metadata.DestinationUris[0], "https://code.earthengine.google.com/?asset=")
	}
	return j
}

// CreateIngestionJob submits one staged payload for ingestion and returns
// the remote job identifier. A fresh request ID makes retried submissions
// distinct on the remote side.
func (c *Client) CreateIngestionJob(ctx context.Context, req IngestionRequest, allowOverwrite bool) (string, error) {
	verb := "image:import"
	if req.Kind == KindTable {
		verb = "table:import"
	}

	body := c.buildManifest(req, allowOverwrite)
	endpoint := fmt.Sprintf("%s/v1/projects/%s/%s", c.baseURL, url.PathEscape(c.project), verb)

	var op operation
	if err := c.call(ctx, http.MethodPost, endpoint, body, &op); err != nil {
		return "", err
	}
	if op.Name == "" {
		return "", &APIError{StatusCode: 502, Status: "BAD_RESPONSE", Message: "ingestion response had no operation name"}
	}
	return op.Name, nil
}

func (c *Client) buildManifest(req IngestionRequest, allowOverwrite bool) map[string]any {
	manifest := map[string]any{
		"name":       req.DestinationPath,
		"properties": req.Properties,
	}
	if req.Kind == KindTable {
		source := map[string]any{"uris": []string{req.PayloadRef}}
		if req.XColumn != "" && req.YColumn != "" {
			source["csvColumnDataTypeOverrides"] = map[string]string{
				req.XColumn: "NUMERIC",
				req.YColumn: "NUMERIC",
			}
			source["geodesicColumns"] = []string{req.XColumn, req.YColumn}
		}
		manifest["sources"] = []any{source}
	} else {
		manifest["tilesets"] = []any{
			map[string]any{"sources": []any{map[string]any{"uris": []string{req.PayloadRef}}}},
		}
		if req.PyramidingPolicy != "" {
			manifest["pyramidingPolicy"] = req.PyramidingPolicy
		}
		if req.NoData != nil {
			manifest["missingData"] = map[string]any{"values": []float64{*req.NoData}}
		}
		if req.MaskBands {
			manifest["maskBands"] = map[string]any{"bandIds": []string{}, "tilesetId": ""}
		}
	}
	if req.StartTimeMS > 0 {
		manifest["startTime"] = map[string]int64{"seconds": req.StartTimeMS / 1000}
	}
	if req.EndTimeMS > 0 {
		manifest["endTime"] = map[string]int64{"seconds": req.EndTimeMS / 1000}
	}

	key := "imageManifest"
	if req.Kind == KindTable {
		key = "tableManifest"
	}
	return map[string]any{
		key:         manifest,
		"requestId": c.newRequestID(),
		"overwrite": allowOverwrite,
	}
}

// GetJobStatus polls one remote job.
func (c *Client) GetJobStatus(ctx context.Context, jobID string) (Job, error) {
	endpoint := fmt.Sprintf("%s/v1/%s", c.baseURL, jobID)
	var op operation
	if err := c.call(ctx, http.MethodGet, endpoint, nil, &op); err != nil {
		return Job{}, err
	}
	return op.toJob(), nil
}

// ListJobs returns all ingestion jobs visible to the project.
func (c *Client) ListJobs(ctx context.Context) ([]Job, error) {
	endpoint := fmt.Sprintf("%s/v1/projects/%s/operations", c.baseURL, url.PathEscape(c.project))
	var resp struct {
		Operations []operation `json:"operations"`
	}
	if err := c.call(ctx, http.MethodGet, endpoint, nil, &resp); err != nil {
		return nil, err
	}
	jobs := make([]Job, 0, len(resp.Operations))
	for i := range resp.Operations {
		jobs = append(jobs, resp.Operations[i].toJob())
	}
	return jobs, nil
}

// CancelJob requests cancellation of one remote job.
func (c *Client) CancelJob(ctx context.Context, jobID string) error {
	endpoint := fmt.Sprintf("%s/v1/%s:cancel", c.baseURL, jobID)
	return c.call(ctx, http.MethodPost, endpoint, map[string]any{}, nil)
}

// OutstandingJobCount returns the number of queued-plus-running jobs. This
// feeds the submission throttle.
func (c *Client) OutstandingJobCount(ctx context.Context) (int, error) {
	jobs, err := c.ListJobs(ctx)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, j := range jobs {
		if j.State == JobPending || j.State == JobRunning {
			n++
		}
	}
	return n, nil
}

// GetAsset fetches the catalog record for a path, or an APIError with
// NotFound set.
func (c *Client) GetAsset(ctx context.Context, path string) (Asset, error) {
	endpoint := fmt.Sprintf("%s/v1/%s", c.baseURL, path)
	var resp struct {
		Name      string `json:"name"`
		Type      string `json:"type"`
		SizeBytes int64  `json:"sizeBytes,string"`
		Quota     struct {
			SizeBytes     int64 `json:"sizeBytes,string"`
			MaxSizeBytes  int64 `json:"maxSizeBytes,string"`
			AssetCount    int64 `json:"assetCount,string"`
			MaxAssetCount int64 `json:"maxAssetCount,string"`
		} `json:"quota"`
	}
	if err := c.call(ctx, http.MethodGet, endpoint, nil, &resp); err != nil {
		return Asset{}, err
	}
	return Asset{
		Name:       resp.Name,
		Type:       resp.Type,
		SizeBytes:  resp.SizeBytes,
		QuotaUsed:  resp.Quota.SizeBytes,
		QuotaBytes: resp.Quota.MaxSizeBytes,
		AssetCount: resp.Quota.AssetCount,
		AssetQuota: resp.Quota.MaxAssetCount,
	}, nil
}

// AssetExists queries current remote state for a destination path. No local
// caching: each call observes the catalog as it is right now.
func (c *Client) AssetExists(ctx context.Context, path string) (bool, error) {
	_, err := c.GetAsset(ctx, path)
	if err == nil {
		return true, nil
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.NotFound() {
		return false, nil
	}
	return false, err
}

// createAsset creates a container asset (folder or image collection) at path.
func (c *Client) createAsset(ctx context.Context, path, assetType string) error {
	parent, assetID, ok := splitAssetPath(path)
	if !ok {
		return &APIError{StatusCode: 400, Status: "INVALID_ARGUMENT", Message: fmt.Sprintf("cannot derive parent for %q", path)}
	}
	endpoint := fmt.Sprintf("%s/v1/%s/assets?assetId=%s", c.baseURL, parent, url.QueryEscape(assetID))
	return c.call(ctx, http.MethodPost, endpoint, map[string]any{"type": assetType}, nil)
}

// CreateFolderIfAbsent ensures a folder exists at path.
func (c *Client) CreateFolderIfAbsent(ctx context.Context, path string) error {
	exists, err := c.AssetExists(ctx, path)
	if err != nil || exists {
		return err
	}
	return c.createAsset(ctx, path, "FOLDER")
}

// EnsureImageCollection ensures path is an image collection, creating it if
// absent and failing if the path exists as something else.
func (c *Client) EnsureImageCollection(ctx context.Context, path string) error {
	asset, err := c.GetAsset(ctx, path)
	if err == nil {
		if strings.EqualFold(asset.Type, "IMAGE_COLLECTION") {
			return nil
		}
		return &APIError{StatusCode: 409, Status: "ALREADY_EXISTS", Message: fmt.Sprintf("%s exists but is %s, not an image collection", path, asset.Type)}
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.NotFound() {
		return c.createAsset(ctx, path, "IMAGE_COLLECTION")
	}
	return err
}

// DeleteAsset removes one asset. Containers must be emptied first; the
// platform rejects deleting a non-empty folder or collection.
func (c *Client) DeleteAsset(ctx context.Context, path string) error {
	endpoint := fmt.Sprintf("%s/v1/%s", c.baseURL, path)
	return c.call(ctx, http.MethodDelete, endpoint, nil, nil)
}

// ListChildAssets returns the leaf names of the assets directly under path.
func (c *Client) ListChildAssets(ctx context.Context, path string) ([]string, error) {
	endpoint := fmt.Sprintf("%s/v1/%s:listAssets", c.baseURL, path)
	var resp struct {
		Assets []struct {
			ID   string `json:"id"`
			Name string `json:"name"`
		} `json:"assets"`
	}
	if err := c.call(ctx, http.MethodGet, endpoint, nil, &resp); err != nil {
		return nil, err
	}
	names := make([]string, 0, len(resp.Assets))
	for _, a := range resp.Assets {
		full := a.Name
		if full == "" {
			full = a.ID
		}
		if i := strings.LastIndex(full, "/"); i >= 0 {
			full = full[i+1:]
		}
		names = append(names, full)
	}
	return names, nil
}

// call performs one JSON request/response round trip.
func (c *Client) call(ctx context.Context, method, endpoint string, body any, out any) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reqBody)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.session.Do(req)
	if err != nil {
		return fmt.Errorf("remote catalog request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: resp.StatusCode, Status: resp.Status}
		var errResp struct {
			Error struct {
				Message string `json:"message"`
				Status  string `json:"status"`
			} `json:"error"`
		}
		if json.Unmarshal(data, &errResp) == nil && errResp.Error.Message != "" {
			apiErr.Message = errResp.Error.Message
			apiErr.Status = errResp.Error.Status
		}
		return apiErr
	}

	if out != nil && len(data) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

// splitAssetPath splits a canonical path into its parent resource and leaf
// asset id, e.g. projects/p/assets/a/b -> (projects/p, a/b).
func splitAssetPath(path string) (parent, assetID string, ok bool) {
	i := strings.Index(path, "/assets/")
	if i < 0 {
		return "", "", false
	}
	return path[:i], path[i+len("/assets/"):], true
}
