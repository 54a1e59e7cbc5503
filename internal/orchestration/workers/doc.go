// Package workers provides the concrete worker implementations the
// orchestration engine routes tasks to: researcher, synthesizer, aggregator,
// verifier and the placeholder tool executor.
//
// Workers are stateless after construction and safe to invoke concurrently;
// several nodes of one batch may resolve to the same instance.
package workers
