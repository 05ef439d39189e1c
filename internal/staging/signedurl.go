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
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"sync"

	"github.com/cartoflow/terraload/internal/gee"
)

// DefaultUploadURLEndpoint hands out one-shot staging URLs for the
// cookie-authenticated session.
const DefaultUploadURLEndpoint = "https://code.earthengine.google.com/assets/upload/geturl"

// SignedURLTransport stages payloads through the platform's own staging
// flow: fetch a one-shot upload URL, then POST the file as multipart form
// data. The response carries the staged payload reference.
type SignedURLTransport struct {
	Endpoint string
	Session  *gee.Session

	// The URL endpoint rejects concurrent geturl requests on one session,
	// so fetches are serialized.
	urlMu sync.Mutex
}

// NewSignedURLTransport builds the transport on an explicit session handle.
func NewSignedURLTransport(session *gee.Session, endpoint string) *SignedURLTransport {
	if endpoint == "" {
		endpoint = DefaultUploadURLEndpoint
	}
	return &SignedURLTransport{Endpoint: endpoint, Session: session}
}

// Stage uploads one local file and returns its staged reference.
func (t *SignedURLTransport) Stage(ctx context.Context, localPath string) (string, error) {
	uploadURL, err := t.fetchUploadURL(ctx)
	if err != nil {
		stageErrors.Add(ctx, 1)
		return "", err
	}

	ref, size, err := t.put(ctx, uploadURL, localPath)
	if err != nil {
		stageErrors.Add(ctx, 1)
		return "", err
	}
	stageCount.Add(ctx, 1)
	stageBytes.Add(ctx, size)
	return ref, nil
}

func (t *SignedURLTransport) fetchUploadURL(ctx context.Context) (string, error) {
	t.urlMu.Lock()
	defer t.urlMu.Unlock()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.Endpoint, nil)
	if err != nil {
		return "", err
	}
	resp, err := t.Session.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch staging URL: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", &gee.APIError{StatusCode: resp.StatusCode, Status: resp.Status, Message: "staging URL request rejected"}
	}
	var body struct {
		URL string `json:"url"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("decode staging URL response: %w", err)
	}
	if body.URL == "" {
		return "", fmt.Errorf("staging URL response had no url field")
	}
	return body.URL, nil
}

func (t *SignedURLTransport) put(ctx context.Context, uploadURL, localPath string) (string, int64, error) {
	f, err := os.Open(localPath)
	if err != nil {
		return "", 0, fmt.Errorf("open payload: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return "", 0, fmt.Errorf("stat payload: %w", err)
	}

	// Stream the multipart body through a pipe instead of buffering whole
	// rasters in memory.
	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		part, err := mw.CreateFormFile("image_file", filepath.Base(localPath))
		if err != nil {
			pw.CloseWithError(err)
			return
		}
		if _, err := io.Copy(part, f); err != nil {
			pw.CloseWithError(err)
			return
		}
		pw.CloseWithError(mw.Close())
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, uploadURL, pr)
	if err != nil {
		return "", 0, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := t.Session.Do(req)
	if err != nil {
		return "", 0, fmt.Errorf("stage payload: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", 0, &gee.APIError{StatusCode: resp.StatusCode, Status: resp.Status, Message: "staging upload rejected"}
	}

	var refs []string
	if err := json.NewDecoder(resp.Body).Decode(&refs); err != nil {
		return "", 0, fmt.Errorf("decode staging response: %w", err)
	}
	if len(refs) == 0 {
		return "", 0, fmt.Errorf("staging response held no payload reference")
	}
	return refs[0], info.Size(), nil
}
