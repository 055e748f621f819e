// Package scenario runs declarative engine scripts.
//
// A scenario declares stores, their reactions, action channels and a list of
// steps (dispatches and history commands), then asserts on the final store
// states and the history. Scenarios are written in YAML or CUE; both decode
// into the same Scenario type.
//
// Every run uses a fresh engine with a fixed session token, so the canonical
// history of a scenario is deterministic and can be compared against a
// golden file with RunWithGolden.
//
// # Reaction Ops
//
//   - add: state + value (numbers)
//   - set: value
//   - payload: the action payload
//   - append: state with the payload (or value) appended
//   - merge: state with the payload object merged in
//   - count: length of the source store's state
//   - copy: the source store's state
//
// Numbers from either format are normalized to int64 when integral and
// float64 otherwise.
package scenario
