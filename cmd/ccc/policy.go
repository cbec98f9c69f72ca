package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jellywish/confidential-cat-counter/pkg/cli"
	"github.com/jellywish/confidential-cat-counter/pkg/policy/bundle"
)

var policyFlags struct {
	file      string
	key       string
	signature string
}

var policyCmd = &cobra.Command{
	Use:   "policy",
	Short: "Inspect, sign and verify policy bundles",
	Long: `Inspect, sign and verify policy bundles.

A bundle is identified by the SHA-256 digest of its raw bytes; the signature is
hex(HMAC-SHA256(key, raw bytes)). Neither is computed over a re-encoding, so
reformatting a bundle changes both.`,
}

var policyDigestCmd = &cobra.Command{
	Use:   "digest",
	Short: "Print the digest of a bundle file",
	Long: `Print the digest of a bundle file. Without --file, prints the digest of
the built-in default bundle.`,
	RunE: runPolicyDigest,
}

var policySignCmd = &cobra.Command{
	Use:     "sign",
	Short:   "Print the HMAC signature of a bundle file",
	Example: `  ccc policy sign --file policy-bundle.json --key "$POLICY_BUNDLE_HMAC_KEY"`,
	RunE:    runPolicySign,
}

var policyVerifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Verify a bundle file against an expected signature",
	RunE:  runPolicyVerify,
}

var policyShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the bundle the worker would put into effect",
	Long: `Show the bundle the worker would put into effect for --file, including
fallback to the default bundle when the file is missing or does not parse.`,
	RunE: runPolicyShow,
}

func init() {
	rootCmd.AddCommand(policyCmd)
	policyCmd.AddCommand(policyDigestCmd, policySignCmd, policyVerifyCmd, policyShowCmd)

	policyCmd.PersistentFlags().StringVarP(&policyFlags.file, "file", "f", "", "policy bundle file")
	policySignCmd.Flags().StringVar(&policyFlags.key, "key", "", "HMAC signing key")
	policyVerifyCmd.Flags().StringVar(&policyFlags.key, "key", "", "HMAC signing key")
	policyVerifyCmd.Flags().StringVar(&policyFlags.signature, "signature", "", "expected hex signature")
}

func readBundleFile() ([]byte, error) {
	if policyFlags.file == "" {
		return nil, cli.NewConfigError("file", "--file is required", nil)
	}
	raw, err := os.ReadFile(policyFlags.file)
	if err != nil {
		return nil, fmt.Errorf("failed to read bundle: %w", err)
	}
	return raw, nil
}

func runPolicyDigest(cmd *cobra.Command, args []string) error {
	if policyFlags.file == "" {
		raw, err := bundle.CanonicalBytes(bundle.Default())
		if err != nil {
			return err
		}
		return writeOutput(cmd, map[string]any{
			"digest": bundle.Digest(raw),
			"source": string(bundle.OriginDefault),
		})
	}

	raw, err := readBundleFile()
	if err != nil {
		return err
	}
	return writeOutput(cmd, map[string]any{
		"digest": bundle.Digest(raw),
		"source": policyFlags.file,
	})
}

func runPolicySign(cmd *cobra.Command, args []string) error {
	if policyFlags.key == "" {
		return cli.NewConfigError("key", "--key is required", nil)
	}
	raw, err := readBundleFile()
	if err != nil {
		return err
	}
	return writeOutput(cmd, map[string]any{
		"digest":    bundle.Digest(raw),
		"signature": bundle.Sign([]byte(policyFlags.key), raw),
	})
}

func runPolicyVerify(cmd *cobra.Command, args []string) error {
	if policyFlags.key == "" || policyFlags.signature == "" {
		return cli.NewConfigError("signature", "--key and --signature are both required", nil)
	}
	raw, err := readBundleFile()
	if err != nil {
		return err
	}
	if err := bundle.Verify([]byte(policyFlags.key), raw, policyFlags.signature, policyFlags.file); err != nil {
		return err
	}
	return writeOutput(cmd, map[string]any{
		"digest":   bundle.Digest(raw),
		"verified": true,
	})
}

func runPolicyShow(cmd *cobra.Command, args []string) error {
	var source bundle.Source
	if policyFlags.file != "" {
		source = bundle.NewFileSource(policyFlags.file)
	}
	loader, err := bundle.NewLoader(bundle.Options{Source: source})
	if err != nil {
		return err
	}
	b, digest, err := loader.Load(context.Background())
	if err != nil {
		return err
	}
	prov := loader.Provenance()

	return writeOutput(cmd, map[string]any{
		"digest":             digest,
		"origin":             string(prov.Origin),
		"location":           prov.Location,
		"version":            b.Version,
		"max_response_size":  b.MaxResponseSize,
		"forbidden_patterns": b.ForbiddenPatterns,
		"min_confidence":     b.MinConfidence,
		"max_cats":           b.MaxCats,
		"max_upload_size":    b.MaxUploadSize,
	})
}
