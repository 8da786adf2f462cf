// Package process runs one external command to a terminal state.
//
// A Runner polls the child at a fixed interval. When its owner expires, its
// context is done, or Terminate is called, it sends a terminate signal once
// and escalates to a kill after a short countdown. On process-wide abort the
// child is killed unconditionally. Run never returns while the child's state
// is ambiguous.
package process
