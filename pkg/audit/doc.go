// Package audit produces signed, sequenced audit records for every policy
// and lifecycle decision.
//
// A record is a flat JSON object:
//
//	{"event":"input_policy_decision","timestamp":1735689600,"simulated":true,
//	 "sequence":7,"job_id":"...","decision":{...},"policy_digest":"...",
//	 "signature":"<hex HMAC-SHA256>"}
//
// The signature covers the RFC 8785 canonical encoding of every other field,
// so any change to the body, including reordering-insensitive changes such as
// a flipped boolean, fails Verify.
//
// Sequence numbers come from a Sequence owned by one Emitter. They start at 1
// for the first record, increase by one per record and never repeat while
// the process runs. Records reach the Sink in sequence order.
//
// Publishing is best-effort: a sink failure is logged and counted, and the
// caller's operation continues.
package audit
