// Package worker runs the job lifecycle: it pops job envelopes from the
// queue, claims each job in the keyed store, gates it through the input
// policy, runs the detector, gates the result through the output policy and
// persists the terminal state.
//
// # Lifecycle
//
// A job moves queued -> processing -> completed or failed. The claim is a
// compare-and-swap on the store, so a job that another delivery already
// claimed (or finished) is skipped without writing to the store or the
// audit trail. Completed and failed are both sticky.
//
// Every policy evaluation is recorded as a signed audit record before its
// outcome is acted on:
//
//	input_policy_decision   {job_id, decision, policy_digest}
//	output_policy_decision  {job_id, decision, policy_digest}
//
// # Failures
//
// Per-job failures are *jobs.Failure values returned by each step. A panic
// anywhere after the claim is recovered into a failed job with code
// internal, so a job never stays in processing because of a bug.
//
// Transient store errors during the claim are returned to the Worker, which
// pushes the envelope back onto the queue and backs off.
//
// # Shutdown
//
// Run returns after the job in progress finishes. Jobs are processed on a
// context that ignores cancellation so a shutdown signal cannot leave a
// claimed job half written.
package worker
