// Package jobs defines the job envelope exchanged with the upload front end
// and the state machine the worker drives it through.
//
// A job moves queued → processing → completed | failed. Completed and failed
// are terminal and sticky; processing is owned by whichever worker claimed it.
// The front end owns the envelope, so fields this package does not model are
// carried through persistence unchanged.
package jobs
