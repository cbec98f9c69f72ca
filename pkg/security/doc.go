// Package security groups the worker's secret handling and transport
// security.
//
// Subpackages:
//
//	secrets  resolves ${secret:name} references from env and file providers
//	tls      serves and hot-reloads the ops server certificate
package security
