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
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"
)

// DefaultCookieFile is where the staging-session cookie list is stored.
// Capturing the cookies from a browser is outside this tool; the file is a
// JSON array of {name, value} objects pasted in via `terraload cookies`.
const DefaultCookieFile = "cookie_jar.json"

// Session is an explicit authenticated-session handle. It is passed into
// the client, worker pool, and staging transport instead of living in
// package-level state.
type Session struct {
	HTTPClient *http.Client

	token   string
	cookies []*http.Cookie
}

// Cookie is one stored browser cookie.
type Cookie struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// NewTokenSession authenticates API calls with a bearer token.
func NewTokenSession(token string) *Session {
	return &Session{
		HTTPClient: &http.Client{Timeout: 60 * time.Second},
		token:      token,
	}
}

// LoadCookieSession reads a stored cookie list and builds a session from it.
func LoadCookieSession(path string) (*Session, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read cookie file: %w", err)
	}
	var cookies []Cookie
	if err := json.Unmarshal(data, &cookies); err != nil {
		return nil, fmt.Errorf("decode cookie file %s: %w", path, err)
	}
	if len(cookies) == 0 {
		return nil, fmt.Errorf("cookie file %s holds no cookies", path)
	}

	s := &Session{HTTPClient: &http.Client{Timeout: 60 * time.Second}}
	for _, c := range cookies {
		s.cookies = append(s.cookies, &http.Cookie{Name: c.Name, Value: c.Value})
	}
	return s, nil
}

// SaveCookies persists a cookie list for later sessions.
func SaveCookies(path string, cookies []Cookie) error {
	data, err := json.MarshalIndent(cookies, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0600)
}

// Apply decorates a request with the session's credentials.
func (s *Session) Apply(req *http.Request) {
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}
	for _, c := range s.cookies {
		req.AddCookie(c)
	}
}

// Do applies credentials and executes the request.
func (s *Session) Do(req *http.Request) (*http.Response, error) {
	s.Apply(req)
	client := s.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	return client.Do(req)
}
