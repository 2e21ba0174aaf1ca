// Copyright 2025 The Relay Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package tracing wires OpenTelemetry span export for pipeline runs.
// Spans are written as JSON lines to a local file so test tooling can
// collect them as a run artifact; there is no collector dependency.
package tracing

import (
	"context"
	"fmt"
	"os"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// EnvTracingPath names the environment variable carrying the span
// output file. Tracing is disabled when neither this variable nor an
// explicit path is set.
const EnvTracingPath = "TRACING_PATH"

// Provider owns the tracer provider and its output file.
type Provider struct {
	tp   *sdktrace.TracerProvider
	file *os.File
}

// Setup creates a file-exporting tracer provider. path may be empty,
// in which case TRACING_PATH decides; with no path at all the returned
// provider is a no-op.
func Setup(path, version string) (*Provider, error) {
	if path == "" {
		path = os.Getenv(EnvTracingPath)
	}
	if path == "" {
		return &Provider{}, nil
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("opening trace output %s: %w", path, err)
	}

	exporter, err := stdouttrace.New(
		stdouttrace.WithWriter(f),
		stdouttrace.WithoutTimestamps(),
	)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("creating trace exporter: %w", err)
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			"",
			semconv.ServiceName("relay"),
			semconv.ServiceVersion(version),
		),
	)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("creating trace resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)

	return &Provider{tp: tp, file: f}, nil
}

// Tracer returns a tracer for the given scope. A no-op tracer is
// returned when tracing is disabled.
func (p *Provider) Tracer(name string) trace.Tracer {
	if p.tp == nil {
		return noop.NewTracerProvider().Tracer(name)
	}
	return p.tp.Tracer(name)
}

// Shutdown flushes pending spans and closes the output file.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p.tp == nil {
		return nil
	}
	err := p.tp.Shutdown(ctx)
	if cerr := p.file.Close(); err == nil {
		err = cerr
	}
	return err
}
