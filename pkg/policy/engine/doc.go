// Package engine evaluates jobs and inference results against a policy bundle.
//
// Evaluation is two-staged. EvaluateInput runs before any work is done on the
// uploaded artifact; EvaluateOutput runs on the detector's result before it is
// persisted. Both return a Decision value and never an error: a violation is a
// policy outcome, not a failure of the engine.
//
// # Output rules
//
// Output rules are checked in a fixed order and the first violated rule is the
// only one reported:
//
//  1. out.size              canonical JSON longer than max_response_size
//  2. out.forbidden_pattern a string value contains a forbidden substring
//  3. out.cats_limit        count greater than max_cats
//
// Every output violation redacts. Redaction does not edit fields; it re-emits
// the result restricted to the known-safe keys count, confidence,
// processingTime and modelName.
package engine
