/*
Package secrets resolves ${secret:name} references in configuration.

Signing keys for the policy bundle and the audit trail should not live in a
config file. Instead the file names them:

	policy:
	  hmac_key: ${secret:policy-bundle-hmac-key}
	audit:
	  hmac_key: ${secret:audit-hmac-key}

At startup the run command builds a Manager from security.secrets and calls
ResolveFields on the key fields.

# Providers

  - EnvProvider reads PREFIX + NAME (upper-cased, hyphens to underscores).
  - FileProvider reads one file per secret from a directory and requires
    0600 or 0400 permissions. With watching enabled it re-reads rotated files.

Providers are consulted in order. A provider that does not have a secret is
skipped; the first value found wins and is cached for the configured TTL.
*/
package secrets
