// Package task defines the deferred-execution data model: task IDs, specs
// (callable plus literal-or-reference arguments), the append-only dependency
// Graph they accumulate into, and the error taxonomy shared by graph
// construction and execution.
package task
