// SPDX-License-Identifier: MPL-2.0

package provision

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/invowk/stepper/pkg/stepfile"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// Span names and attribute keys recorded for each run.
const (
	RunSpanName   = "stepper.provision"
	PlanEventName = "stepper.plan"
	PlanJSONKey   = "stepper.plan.json"
	StepIndexKey  = "stepper.step.index"
	StepKindKey   = "stepper.step.kind"
	StateKey      = "stepper.state"
)

type (
	// plannedStep is the JSON form of one step in the plan event.
	plannedStep struct {
		Index int    `json:"index"`
		Kind  string `json:"kind"`
		Title string `json:"title"`
	}

	// operation wraps the span of one run; each step gets a child span.
	operation struct {
		ctx    context.Context
		tracer trace.Tracer
		span   trace.Span
	}
)

// startOperation opens the run span and records the ordered plan as an event.
func startOperation(ctx context.Context, tracer trace.Tracer, steps []stepfile.Step) *operation {
	if tracer == nil {
		tracer = noop.NewTracerProvider().Tracer("")
	}

	plan := make([]plannedStep, len(steps))
	for i, s := range steps {
		plan[i] = plannedStep{Index: i, Kind: string(s.Kind), Title: s.Describe()}
	}
	// Marshalling a slice of plain structs cannot fail.
	planJSON, _ := json.Marshal(plan)

	spanCtx, span := tracer.Start(ctx, RunSpanName, trace.WithAttributes(
		attribute.Int("stepper.steps", len(steps)),
	))
	span.AddEvent(PlanEventName, trace.WithAttributes(
		attribute.String(PlanJSONKey, string(planJSON)),
	))

	return &operation{ctx: spanCtx, tracer: tracer, span: span}
}

// Context returns the context carrying the run span.
func (o *operation) Context() context.Context {
	return o.ctx
}

// runStep runs fn inside a child span named after the step kind.
func (o *operation) runStep(index int, step stepfile.Step, fn func(context.Context) error) error {
	stepCtx, span := o.tracer.Start(o.ctx, fmt.Sprintf("step %d: %s", index, step.Kind), trace.WithAttributes(
		attribute.Int(StepIndexKey, index),
		attribute.String(StepKindKey, string(step.Kind)),
	))
	defer span.End()

	if err := fn(stepCtx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, strings.TrimSpace(err.Error()))
		return err
	}
	return nil
}

// end closes the run span with the final state.
func (o *operation) end(state State, err error) {
	o.span.SetAttributes(attribute.String(StateKey, state.String()))
	if err != nil {
		o.span.RecordError(err)
		o.span.SetStatus(codes.Error, strings.TrimSpace(err.Error()))
	}
	o.span.End()
}
