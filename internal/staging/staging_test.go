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

package staging

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cartoflow/terraload/internal/gee"
)

func writePayload(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestSignedURLTransportStage(t *testing.T) {
	var gotField, gotFilename string

	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	defer srv.Close()

	mux.HandleFunc("/geturl", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"url": srv.URL + "/put"})
	})
	mux.HandleFunc("/put", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(1<<20))
		for field, headers := range r.MultipartForm.File {
			gotField = field
			gotFilename = headers[0].Filename
		}
		json.NewEncoder(w).Encode([]string{"staged/abc123/tile_1.tif"})
	})

	session := gee.NewTokenSession("tok")
	session.HTTPClient = srv.Client()
	tr := NewSignedURLTransport(session, srv.URL+"/geturl")

	payload := writePayload(t, "tile_1.tif", "raster-bytes")
	ref, err := tr.Stage(context.Background(), payload)
	require.NoError(t, err)
	assert.Equal(t, "staged/abc123/tile_1.tif", ref)
	assert.Equal(t, "image_file", gotField)
	assert.Equal(t, "tile_1.tif", gotFilename)
}

func TestSignedURLTransportRejectedUpload(t *testing.T) {
	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	defer srv.Close()

	mux.HandleFunc("/geturl", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"url": srv.URL + "/put"})
	})
	mux.HandleFunc("/put", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusForbidden)
	})

	session := gee.NewTokenSession("tok")
	session.HTTPClient = srv.Client()
	tr := NewSignedURLTransport(session, srv.URL+"/geturl")

	_, err := tr.Stage(context.Background(), writePayload(t, "a.tif", "x"))
	var apiErr *gee.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusForbidden, apiErr.StatusCode)
}

func TestSignedURLTransportMissingURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{}`)
	}))
	defer srv.Close()

	session := gee.NewTokenSession("tok")
	session.HTTPClient = srv.Client()
	tr := NewSignedURLTransport(session, srv.URL)

	_, err := tr.Stage(context.Background(), writePayload(t, "a.tif", "x"))
	require.Error(t, err)
}

type fakeUploader struct {
	bucket string
	key    string
	body   []byte
	err    error
}

func (f *fakeUploader) Upload(ctx context.Context, input *s3.PutObjectInput, opts ...func(*manager.Uploader)) (*manager.UploadOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.bucket = *input.Bucket
	f.key = *input.Key
	data, err := io.ReadAll(input.Body)
	if err != nil {
		return nil, err
	}
	f.body = data
	return &manager.UploadOutput{}, nil
}

func TestS3TransportStage(t *testing.T) {
	up := &fakeUploader{}
	tr := &S3Transport{
		cfg:      S3Config{Bucket: "stage-bucket", Prefix: "runs/abc", RefScheme: "gs"},
		uploader: up,
	}

	payload := writePayload(t, "tile_2.tif", "raster-bytes")
	ref, err := tr.Stage(context.Background(), payload)
	require.NoError(t, err)
	assert.Equal(t, "gs://stage-bucket/runs/abc/tile_2.tif", ref)
	assert.Equal(t, "stage-bucket", up.bucket)
	assert.Equal(t, "runs/abc/tile_2.tif", up.key)
	assert.Equal(t, []byte("raster-bytes"), up.body)
}

func TestS3TransportMissingFile(t *testing.T) {
	tr := &S3Transport{cfg: S3Config{Bucket: "b", RefScheme: "gs"}, uploader: &fakeUploader{}}
	_, err := tr.Stage(context.Background(), filepath.Join(t.TempDir(), "absent.tif"))
	require.Error(t, err)
}

func TestNewS3TransportRequiresBucket(t *testing.T) {
	_, err := NewS3Transport(context.Background(), S3Config{})
	require.Error(t, err)
}
