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

package cmd

import (
	"context"
	"fmt"

	"github.com/cartoflow/terraload/config"
	"github.com/cartoflow/terraload/internal/gee"
	"github.com/cartoflow/terraload/internal/staging"
)

// newSession builds the authenticated session handle every remote call runs
// through: bearer token when configured, stored browser cookies otherwise.
func newSession(cfg *config.Config) (*gee.Session, error) {
	if cfg.Auth.Token != "" {
		return gee.NewTokenSession(cfg.Auth.Token), nil
	}
	cookieFile := cfg.Auth.CookieFile
	if cookieFile == "" {
		cookieFile = gee.DefaultCookieFile
	}
	session, err := gee.LoadCookieSession(cookieFile)
	if err != nil {
		return nil, fmt.Errorf("no auth token configured and no usable cookie session: %w", err)
	}
	return session, nil
}

// newTransport selects the staging backend: an object-storage bucket when
// configured, the platform's signed-URL flow otherwise.
func newTransport(ctx context.Context, cfg *config.Config, session *gee.Session) (staging.Transport, error) {
	if cfg.Staging.Bucket != "" {
		return staging.NewS3Transport(ctx, staging.S3Config{
			Bucket:    cfg.Staging.Bucket,
			Prefix:    cfg.Staging.Prefix,
			Region:    cfg.Staging.Region,
			Endpoint:  cfg.Staging.Endpoint,
			AccessKey: cfg.Staging.AccessKey,
			SecretKey: cfg.Staging.SecretKey,
			RefScheme: cfg.Staging.RefScheme,
		})
	}
	return staging.NewSignedURLTransport(session, ""), nil
}
