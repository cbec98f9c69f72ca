// Package bundle loads the versioned policy bundle that gates every job.
//
// A bundle is a small JSON document of thresholds and pattern lists:
//
//	{
//	  "version": "1.0",
//	  "max_response_size": 2048,
//	  "forbidden_patterns": ["image/", "data:", "/9j/", "iVBOR"],
//	  "min_confidence": 0.0,
//	  "max_cats": 20,
//	  "max_upload_size": 26214400
//	}
//
// # Loading
//
// The Loader reads raw bytes from a Source (a file or a Git repository),
// computes a SHA-256 digest over those bytes and parses them. Loading favours
// availability: a missing source or unparseable content falls back to the
// conservative Default bundle, and the digest is then recomputed over the
// default's canonical bytes so that the digest always describes the bundle
// actually in effect.
//
// # Signatures
//
// When both a signing key and an expected signature are configured the raw
// bytes must satisfy hex(HMAC-SHA256(key, raw)) == signature. A mismatch is a
// *SignatureError and must abort startup: a tampered but parseable bundle is
// never replaced by defaults.
//
// # Lifetime
//
// Bundles are immutable for the life of the process. The DriftWatcher only
// reports that the file on disk no longer matches the digest in effect; it
// never reloads.
package bundle
