// Package contracts defines the shared data model of the answer-orchestration
// core: plan graphs and their nodes, worker tasks and results, run records,
// and the Worker interface every concrete worker implements.
//
// Worker outputs are schema-light maps with a handful of well-known keys
// ("answer", "summary", "text", "citations", "passed", "reasons"). Helpers in
// this package read the known keys; unknown keys are carried through untouched.
package contracts
