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
	"reflect"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/cartoflow/terraload/internal/retry"
	"github.com/cartoflow/terraload/internal/throttle"
	"github.com/cartoflow/terraload/internal/uploader"
)

// Config aggregates configuration for the application.
// Each field is owned by its respective package.
type Config struct {
	// Project is the cloud project owning the destination assets.
	Project string `mapstructure:"project"`
	// BaseURL overrides the remote catalog endpoint, mainly for tests.
	BaseURL string `mapstructure:"base_url"`

	Auth    AuthConfig    `mapstructure:"auth"`
	Upload  UploadConfig  `mapstructure:"upload"`
	Staging StagingConfig `mapstructure:"staging"`
}

// AuthConfig selects the session used against the remote catalog.
type AuthConfig struct {
	// Token is a bearer token for the REST API.
	Token string `mapstructure:"token"`
	// CookieFile holds the browser cookie list for the signed-URL staging
	// session.
	CookieFile string `mapstructure:"cookie_file"`
}

// UploadConfig tunes the worker pool, throttle, and retry policy.
type UploadConfig struct {
	Workers      int `mapstructure:"workers"`
	ImageCeiling int `mapstructure:"image_ceiling"`
	TableCeiling int `mapstructure:"table_ceiling"`
	MaxAttempts  int `mapstructure:"max_attempts"`

	PollInterval       time.Duration `mapstructure:"poll_interval"`
	StatusPollInterval time.Duration `mapstructure:"status_poll_interval"`
	QuotaPause         time.Duration `mapstructure:"quota_pause"`

	// Overwrite allows submission over existing destination assets; the
	// default deny policy skips them.
	Overwrite bool `mapstructure:"overwrite"`
}

// StagingConfig selects and tunes the staging transport. An empty bucket
// means the signed-URL transport.
type StagingConfig struct {
	Bucket    string `mapstructure:"bucket"`
	Prefix    string `mapstructure:"prefix"`
	Region    string `mapstructure:"region"`
	Endpoint  string `mapstructure:"endpoint"`
	RefScheme string `mapstructure:"ref_scheme"`

	// AccessKey and SecretKey are static bucket credentials, mainly for
	// S3-compatible endpoints. Empty means the ambient credential chain.
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
}

// Load reads configuration from files and environment variables.
// Environment variables use the prefix "TERRALOAD" and the dot character
// in keys is replaced by an underscore. For example, "upload.workers"
// becomes "TERRALOAD_UPLOAD_WORKERS".
func Load() (*Config, error) {
	cfg := &Config{
		Upload: UploadConfig{
			Workers:            uploader.DefaultWorkers,
			ImageCeiling:       throttle.DefaultImageCeiling,
			TableCeiling:       throttle.DefaultTableCeiling,
			MaxAttempts:        retry.DefaultMaxAttempts,
			PollInterval:       throttle.DefaultPollInterval,
			StatusPollInterval: uploader.DefaultStatusPollInterval,
			QuotaPause:         uploader.DefaultQuotaPause,
		},
	}

	v := viper.New()
	v.SetConfigName("config")
	v.AddConfigPath(".")
	v.SetEnvPrefix("TERRALOAD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindEnvs(v, cfg)
	_ = v.ReadInConfig()

	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// bindEnvs registers all keys within cfg so that viper will look up
// corresponding environment variables when unmarshalling.
func bindEnvs(v *viper.Viper, cfg any, parts ...string) {
	val := reflect.ValueOf(cfg)
	typ := reflect.TypeOf(cfg)
	if typ.Kind() == reflect.Ptr {
		val = val.Elem()
		typ = typ.Elem()
	}
	for i := 0; i < typ.NumField(); i++ {
		f := typ.Field(i)
		tag := f.Tag.Get("mapstructure")
		if tag == "" {
			tag = strings.ToLower(f.Name)
		}
		key := append(parts, tag)
		if f.Type.Kind() == reflect.Struct {
			bindEnvs(v, val.Field(i).Interface(), key...)
			continue
		}
		_ = v.BindEnv(strings.Join(key, "."))
	}
}
