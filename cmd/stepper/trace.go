// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"time"

	"github.com/invowk/stepper/internal/provision"

	"github.com/charmbracelet/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// tracerName is the instrumentation scope of spans recorded by the CLI.
const tracerName = "github.com/invowk/stepper"

// spanLogProcessor writes finished provisioning spans to the logger, one
// line per step and one for the whole run.
type spanLogProcessor struct {
	logger *log.Logger
}

// newTraceProvider returns a tracer provider that reports spans through logger.
func newTraceProvider(logger *log.Logger) *sdktrace.TracerProvider {
	return sdktrace.NewTracerProvider(
		sdktrace.WithSpanProcessor(&spanLogProcessor{logger: logger.WithPrefix("trace")}),
	)
}

func (p *spanLogProcessor) OnStart(context.Context, sdktrace.ReadWriteSpan) {}

func (p *spanLogProcessor) OnEnd(span sdktrace.ReadOnlySpan) {
	elapsed := span.EndTime().Sub(span.StartTime()).Round(time.Millisecond)
	attrs := span.Attributes()

	keyvals := []any{"span", span.Name(), "elapsed", elapsed}
	if span.Parent().IsValid() {
		keyvals = append(keyvals, "kind", attributeString(attrs, provision.StepKindKey))
	} else {
		keyvals = append(keyvals, "state", attributeString(attrs, provision.StateKey))
	}

	if status := span.Status(); status.Code == codes.Error {
		p.logger.Error("span failed", append(keyvals, "err", status.Description)...)
		return
	}
	p.logger.Info("span", keyvals...)
}

func (p *spanLogProcessor) Shutdown(context.Context) error {
	return nil
}

func (p *spanLogProcessor) ForceFlush(context.Context) error {
	return nil
}

func attributeString(attrs []attribute.KeyValue, key string) string {
	for _, attr := range attrs {
		if string(attr.Key) == key {
			return attr.Value.Emit()
		}
	}
	return ""
}
