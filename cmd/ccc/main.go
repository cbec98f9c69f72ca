// ccc is the confidential cat counter worker.
//
// It pulls job envelopes from a Redis list, gates each job through the input
// and output policies of a content-addressed policy bundle, runs cat
// detection on the uploaded image and writes the outcome back to Redis.
// Every policy decision is written to a signed, sequenced audit log.
//
// Usage:
//
//	# Start the worker with default configuration
//	ccc run
//
//	# Start with a configuration file
//	ccc run --config /etc/ccc/config.yaml
//
//	# Print the digest of a policy bundle
//	ccc policy digest --file policy-bundle.json
//
//	# Verify an audit log
//	ccc audit verify audit.log
//
//	# Queue a job for an uploaded file
//	ccc enqueue --filename cat.jpg --size 2048
package main

func main() {
	Execute()
}
