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
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("github.com/cartoflow/terraload/internal/staging")

// S3Config describes an object-storage staging bucket. The S3 API also
// fronts Google Cloud Storage buckets in interoperability mode, which is
// the common case for this platform.
type S3Config struct {
	Bucket    string
	Prefix    string
	Region    string
	Endpoint  string
	AccessKey string
	SecretKey string
	// RefScheme is the URI scheme of returned references; the catalog
	// ingests from gs:// URIs.
	RefScheme string
}

// s3PutAPI is the slice of the upload manager this transport uses.
type s3PutAPI interface {
	Upload(ctx context.Context, input *s3.PutObjectInput, opts ...func(*manager.Uploader)) (*manager.UploadOutput, error)
}

// S3Transport stages payloads into an object-storage bucket the remote
// platform can ingest from.
type S3Transport struct {
	cfg      S3Config
	uploader s3PutAPI
}

// NewS3Transport builds the bucket staging transport.
func NewS3Transport(ctx context.Context, cfg S3Config) (*S3Transport, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("staging bucket is required")
	}
	if cfg.RefScheme == "" {
		cfg.RefScheme = "gs"
	}

	var loadOpts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(cfg.Region))
	}
	if cfg.AccessKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load staging credentials: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})
	return &S3Transport{cfg: cfg, uploader: manager.NewUploader(client)}, nil
}

// Stage uploads one local file into the staging bucket and returns the
// reference the ingestion request will use.
func (t *S3Transport) Stage(ctx context.Context, localPath string) (string, error) {
	key := path.Join(t.cfg.Prefix, filepath.Base(localPath))

	ctx, span := tracer.Start(ctx, "staging.S3Transport.Stage",
		trace.WithAttributes(
			attribute.String("bucket", t.cfg.Bucket),
			attribute.String("key", key),
		),
	)
	defer span.End()

	f, err := os.Open(localPath)
	if err != nil {
		stageErrors.Add(ctx, 1)
		return "", fmt.Errorf("open payload: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		stageErrors.Add(ctx, 1)
		return "", fmt.Errorf("stat payload: %w", err)
	}

	if _, err := t.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket: aws.String(t.cfg.Bucket),
		Key:    aws.String(key),
		Body:   f,
	}); err != nil {
		stageErrors.Add(ctx, 1)
		return "", fmt.Errorf("stage payload to bucket: %w", err)
	}

	stageCount.Add(ctx, 1)
	stageBytes.Add(ctx, info.Size())
	return fmt.Sprintf("%s://%s/%s", strings.TrimSuffix(t.cfg.RefScheme, "://"), t.cfg.Bucket, key), nil
}
