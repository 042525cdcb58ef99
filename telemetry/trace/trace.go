//
// Tencent is pleased to support the open source community by making flow-controller available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// flow-controller is licensed under the Apache License Version 2.0.
//
//

// Package trace provides the tracer handle used across flow-controller.
package trace

import (
	"go.opentelemetry.io/otel"
	oteltrace "go.opentelemetry.io/otel/trace"
)

// InstrumentName identifies this module in recorded spans.
const InstrumentName = "trpc.group/trpc-go/flow-controller"

// Span names recorded by the engine and the HTTP surface.
const (
	SpanProcessMessage = "flow.process_message"
	SpanReloadFlow     = "flow.reload"
	SpanAIQuery        = "flow.ai_query"
)

// Tracer is the tracer used for all spans. It resolves against the global
// otel tracer provider, so it stays a no-op until an SDK provider is
// installed by the embedding process.
var Tracer oteltrace.Tracer = otel.Tracer(InstrumentName)
