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

package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/cartoflow/terraload/internal/retry"
	"github.com/cartoflow/terraload/internal/throttle"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	require.Equal(t, 1, cfg.Upload.Workers)
	require.Equal(t, throttle.DefaultImageCeiling, cfg.Upload.ImageCeiling)
	require.Equal(t, throttle.DefaultTableCeiling, cfg.Upload.TableCeiling)
	require.Equal(t, retry.DefaultMaxAttempts, cfg.Upload.MaxAttempts)
	require.Equal(t, throttle.DefaultPollInterval, cfg.Upload.PollInterval)
	require.False(t, cfg.Upload.Overwrite)
	require.Empty(t, cfg.Staging.Bucket)
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("TERRALOAD_PROJECT", "demo-project")
	t.Setenv("TERRALOAD_UPLOAD_WORKERS", "4")
	t.Setenv("TERRALOAD_UPLOAD_MAX_ATTEMPTS", "7")
	t.Setenv("TERRALOAD_UPLOAD_POLL_INTERVAL", "10s")
	t.Setenv("TERRALOAD_UPLOAD_OVERWRITE", "true")
	t.Setenv("TERRALOAD_STAGING_BUCKET", "stage-bucket")
	t.Setenv("TERRALOAD_STAGING_ACCESS_KEY", "AKIAEXAMPLE")
	t.Setenv("TERRALOAD_STAGING_SECRET_KEY", "hush")
	t.Setenv("TERRALOAD_AUTH_COOKIE_FILE", "jar.json")

	cfg, err := Load()
	require.NoError(t, err)

	require.Equal(t, "demo-project", cfg.Project)
	require.Equal(t, 4, cfg.Upload.Workers)
	require.Equal(t, 7, cfg.Upload.MaxAttempts)
	require.Equal(t, 10*time.Second, cfg.Upload.PollInterval)
	require.True(t, cfg.Upload.Overwrite)
	require.Equal(t, "stage-bucket", cfg.Staging.Bucket)
	require.Equal(t, "AKIAEXAMPLE", cfg.Staging.AccessKey)
	require.Equal(t, "hush", cfg.Staging.SecretKey)
	require.Equal(t, "jar.json", cfg.Auth.CookieFile)
}
