// Package attestation gates access to data-key material on evidence about
// the running image and the policy in effect.
//
// Two interfaces carry the contract: a Verifier decides whether evidence is
// acceptable, and a KeyReleaseClient exchanges evidence for wrapped key
// material. KeyReleaseClient implementations do not verify; callers must
// verify first, which Gate does. The development implementations accept only
// simulated evidence and return clearly labelled placeholder keys.
//
// Production deployments substitute hardware-backed implementations behind
// the same interfaces; nothing else in the worker changes.
package attestation
