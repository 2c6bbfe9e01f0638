/*
 * Licensed to the Apache Software Foundation (ASF) under one or more
 * contributor license agreements.  See the NOTICE file distributed with
 * this work for additional information regarding copyright ownership.
 * The ASF licenses this file to You under the Apache License, Version 2.0
 * (the "License"); you may not use this file except in compliance with
 * the License.  You may obtain a copy of the License at
 *
 *    http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package otel_trace wires optional OpenTelemetry tracing of the main loop.
// otel_trace 包为主循环接入可选的 OpenTelemetry 追踪。
package otel_trace

import (
	"context"
	"fmt"

	"github.com/arcctl/actd/internal/config"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

const tracerName = "github.com/arcctl/actd"

// Tracing owns a tracer and the provider that must be flushed on exit.
// Tracing 持有追踪器以及退出时需要刷新的提供者。
type Tracing struct {
	tracer   trace.Tracer
	shutdown func(context.Context) error
	enabled  bool
}

// Init initializes tracing based on configuration. When telemetry is
// disabled a noop tracer is returned.
// Init 根据配置初始化追踪，禁用时返回空操作追踪器。
func Init(ctx context.Context, cfg config.TelemetryConfig, serviceName string) (*Tracing, error) {
	if !cfg.Enabled {
		return Noop(), nil
	}

	opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(cfg.Endpoint)}
	if cfg.Insecure {
		opts = append(opts, otlptracegrpc.WithInsecure())
	}
	exporter, err := otlptracegrpc.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create trace exporter: %w", err)
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(resource.NewSchemaless(
			attribute.String("service.name", serviceName),
		)),
	)
	otel.SetTracerProvider(provider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	return &Tracing{
		tracer:   provider.Tracer(tracerName),
		shutdown: provider.Shutdown,
		enabled:  true,
	}, nil
}

// Noop returns tracing that records nothing.
func Noop() *Tracing {
	return &Tracing{tracer: noop.NewTracerProvider().Tracer("noop")}
}

// Tracer returns the tracer.
func (t *Tracing) Tracer() trace.Tracer {
	return t.tracer
}

// IsEnabled returns whether spans are exported.
// IsEnabled 返回追踪是否已启用。
func (t *Tracing) IsEnabled() bool {
	return t.enabled
}

// Close flushes and stops the exporter.
func (t *Tracing) Close() error {
	if t.shutdown == nil {
		return nil
	}
	shutdown := t.shutdown
	t.shutdown = nil
	return shutdown(context.Background())
}
