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

// Package staging moves local payloads to an intermediate location the
// remote platform can ingest from, returning a reference usable in an
// ingestion request.
package staging

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

// Transport stages one local file and returns the payload reference the
// ingestion request will carry.
type Transport interface {
	Stage(ctx context.Context, localPath string) (ref string, err error)
}

var (
	stageCount  metric.Int64Counter
	stageBytes  metric.Int64Counter
	stageErrors metric.Int64Counter
)

func init() {
	meter := otel.Meter("github.com/cartoflow/terraload/internal/staging")

	var err error
	stageCount, err = meter.Int64Counter(
		"terraload.staging.count",
		metric.WithDescription("Number of payloads staged"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create staging.count counter: %w", err))
	}

	stageBytes, err = meter.Int64Counter(
		"terraload.staging.bytes",
		metric.WithDescription("Bytes staged for ingestion"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create staging.bytes counter: %w", err))
	}

	stageErrors, err = meter.Int64Counter(
		"terraload.staging.errors",
		metric.WithDescription("Number of staging failures"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create staging.errors counter: %w", err))
	}
}
