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
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c := NewClient(srv.URL, "my-project", NewTokenSession("test-token"))
	c.newRequestID = func() string { return "req-fixed" }
	return c
}

func TestCreateIngestionJob(t *testing.T) {
	var captured map[string]any
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/projects/my-project/image:import", r.URL.Path)
		require.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		_ = json.NewEncoder(w).Encode(map[string]any{"name": "projects/my-project/operations/OP1"})
	})

	nodata := -9999.0
	jobID, err := c.CreateIngestionJob(context.Background(), IngestionRequest{
		DestinationPath:  "projects/my-project/assets/coll/tile_1",
		PayloadRef:       "gs://staging/tile_1.tif",
		Kind:             KindImage,
		PyramidingPolicy: "MEAN",
		NoData:           &nodata,
		Properties:       map[string]any{"class": "GASTROPODA"},
		StartTimeMS:      1704067200000,
	}, false)
	require.NoError(t, err)
	require.Equal(t, "projects/my-project/operations/OP1", jobID)

	require.Equal(t, "req-fixed", captured["requestId"])
	require.Equal(t, false, captured["overwrite"])
	manifest := captured["imageManifest"].(map[string]any)
	require.Equal(t, "projects/my-project/assets/coll/tile_1", manifest["name"])
	require.Equal(t, "MEAN", manifest["pyramidingPolicy"])
	require.Contains(t, manifest, "missingData")
	require.Equal(t, map[string]any{"seconds": float64(1704067200)}, manifest["startTime"])
}

func TestCreateIngestionJobTable(t *testing.T) {
	var captured map[string]any
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/projects/my-project/table:import", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		_ = json.NewEncoder(w).Encode(map[string]any{"name": "projects/my-project/operations/OP2"})
	})

	jobID, err := c.CreateIngestionJob(context.Background(), IngestionRequest{
		DestinationPath: "projects/my-project/assets/points",
		PayloadRef:      "gs://staging/points.csv",
		Kind:            KindTable,
		XColumn:         "longitude",
		YColumn:         "latitude",
	}, true)
	require.NoError(t, err)
	require.Equal(t, "projects/my-project/operations/OP2", jobID)
	require.Equal(t, true, captured["overwrite"])
	require.Contains(t, captured, "tableManifest")
}

func TestGetJobStatus(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/projects/my-project/operations/OP1", r.URL.Path)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"name": "projects/my-project/operations/OP1",
			"metadata": map[string]any{
				"type":        "INGEST_IMAGE",
				"state":       "COMPLETED",
				"description": `Asset ingestion: "tile_1"`,
			},
		})
	})

	job, err := c.GetJobStatus(context.Background(), "projects/my-project/operations/OP1")
	require.NoError(t, err)
	require.Equal(t, JobSucceeded, job.State)
	require.True(t, job.State.Terminal())
}

func TestAssetExists(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1/projects/my-project/assets/coll/here":
			_ = json.NewEncoder(w).Encode(map[string]any{"name": "projects/my-project/assets/coll/here", "type": "IMAGE"})
		default:
			w.WriteHeader(http.StatusNotFound)
			_ = json.NewEncoder(w).Encode(map[string]any{"error": map[string]any{"message": "not found", "status": "NOT_FOUND"}})
		}
	})

	exists, err := c.AssetExists(context.Background(), "projects/my-project/assets/coll/here")
	require.NoError(t, err)
	require.True(t, exists)

	exists, err = c.AssetExists(context.Background(), "projects/my-project/assets/coll/missing")
	require.NoError(t, err)
	require.False(t, exists)
}

func TestDeleteAsset(t *testing.T) {
	var method, path string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		method = r.Method
		path = r.URL.Path
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("{}"))
	})

	err := c.DeleteAsset(context.Background(), "projects/my-project/assets/coll/tile_1")
	require.NoError(t, err)
	require.Equal(t, http.MethodDelete, method)
	require.Equal(t, "/v1/projects/my-project/assets/coll/tile_1", path)
}

func TestListChildAssets(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/projects/my-project/assets/coll:listAssets", r.URL.Path)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"assets": []map[string]any{
				{"name": "projects/my-project/assets/coll/tile_1"},
				{"id": "projects/my-project/assets/coll/tile_2"},
			},
		})
	})

	names, err := c.ListChildAssets(context.Background(), "projects/my-project/assets/coll")
	require.NoError(t, err)
	require.Equal(t, []string{"tile_1", "tile_2"}, names)
}

func TestOutstandingJobCount(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"operations": []map[string]any{
				{"name": "op/1", "metadata": map[string]any{"state": "RUNNING"}},
				{"name": "op/2", "metadata": map[string]any{"state": "PENDING"}},
				{"name": "op/3", "metadata": map[string]any{"state": "COMPLETED"}},
				{"name": "op/4", "metadata": map[string]any{"state": "FAILED"}},
			},
		})
	})

	n, err := c.OutstandingJobCount(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, n)
}

func TestEnsureImageCollection(t *testing.T) {
	var created map[string]any
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			require.Equal(t, "/v1/projects/my-project/assets", r.URL.Path)
			require.Equal(t, "coll", r.URL.Query().Get("assetId"))
			require.NoError(t, json.NewDecoder(r.Body).Decode(&created))
			_ = json.NewEncoder(w).Encode(map[string]any{"name": "projects/my-project/assets/coll"})
			return
		}
		w.WriteHeader(http.StatusNotFound)
		_ = json.NewEncoder(w).Encode(map[string]any{"error": map[string]any{"message": "not found", "status": "NOT_FOUND"}})
	})

	require.NoError(t, c.EnsureImageCollection(context.Background(), "projects/my-project/assets/coll"))
	require.Equal(t, "IMAGE_COLLECTION", created["type"])
}

func TestEnsureImageCollectionWrongType(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"name": "projects/my-project/assets/coll", "type": "FOLDER"})
	})

	err := c.EnsureImageCollection(context.Background(), "projects/my-project/assets/coll")
	require.Error(t, err)
	require.Contains(t, err.Error(), "not an image collection")
}

func TestAPIErrorClassification(t *testing.T) {
	tests := []struct {
		name      string
		err       APIError
		transient bool
		quota     bool
	}{
		{name: "rate limited", err: APIError{StatusCode: 429, Status: "RESOURCE_EXHAUSTED"}, transient: true, quota: true},
		{name: "server error", err: APIError{StatusCode: 503}, transient: true},
		{name: "bad request", err: APIError{StatusCode: 400, Status: "INVALID_ARGUMENT"}},
		{name: "quota message", err: APIError{StatusCode: 400, Message: "project quota exceeded"}, quota: true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.transient, tc.err.Transient())
			require.Equal(t, tc.quota, tc.err.QuotaExhausted())
		})
	}
}

func TestCookieSessionRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), DefaultCookieFile)
	require.NoError(t, SaveCookies(path, []Cookie{{Name: "SID", Value: "abc"}}))

	sess, err := LoadCookieSession(path)
	require.NoError(t, err)

	var got string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if c, err := r.Cookie("SID"); err == nil {
			got = c.Value
		}
	}))
	defer srv.Close()

	req, err := http.NewRequest(http.MethodGet, srv.URL, nil)
	require.NoError(t, err)
	resp, err := sess.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, "abc", got)
}
