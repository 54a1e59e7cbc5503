// Package orchestrator wires the planning and execution core to its
// infrastructure: it builds the plan for a request, runs it, forwards
// lifecycle events to the event bus, records metrics and persists the
// turn run.
//
// The engine is constructed explicitly at process start and passed by
// injection; there is no process-wide instance.
package orchestrator
