// Package llm defines the narrow interface to the language-model
// capability. The orchestration core treats the model as a black box that
// consumes ordered prior turns and produces a stream of text fragments and
// structured tool-invocation requests.
package llm

import (
	"context"

	"lingua/pkg/models"
)

// ToolCall is a structured request by the model to perform a named action.
type ToolCall struct {
	// ID is the model-assigned invocation id, unique within the step.
	ID   string
	Name string
	Args map[string]any
}

// ToolResult is the textual outcome handed back to the model for a call.
type ToolResult struct {
	ID     string
	Name   string
	Output string
}

// Event is one element of a model step's output stream: either a text
// fragment or a tool invocation.
type Event struct {
	Text string
	Call *ToolCall
}

// Turn is one prior conversation entry presented to the model.
type Turn struct {
	Role models.Role
	Text string
	// Calls the assistant made during this turn (replayed on later steps).
	Calls []ToolCall
	// Results for tool-result turns.
	Results []ToolResult
}

// ToolDef declares a tool the model may invoke. All parameters are
// required strings; the closed set of gated actions needs nothing richer.
type ToolDef struct {
	Name        string
	Description string
	// Params maps argument name to its description.
	Params map[string]string
}

// Request describes one model step.
type Request struct {
	System string
	Turns  []Turn
	Tools  []ToolDef
}

// Provider runs one model step, invoking emit for each event in stream
// order until the step completes. A non-nil error from emit aborts the
// step. Implementations must honor ctx cancellation and deadlines.
type Provider interface {
	Generate(ctx context.Context, req Request, emit func(Event) error) error
}
