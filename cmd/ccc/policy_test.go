package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/jellywish/confidential-cat-counter/pkg/cli"
	"github.com/jellywish/confidential-cat-counter/pkg/policy/bundle"
)

const testBundle = `{"version":"2.0","max_cats":5,"forbidden_patterns":["secret"]}`

func writeBundle(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "policy-bundle.json")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write bundle: %v", err)
	}
	return path
}

func TestPolicyDigest(t *testing.T) {
	resetFlags(t)
	outputFormat = "json"

	defaultRaw, err := bundle.CanonicalBytes(bundle.Default())
	if err != nil {
		t.Fatalf("CanonicalBytes() failed: %v", err)
	}

	tests := []struct {
		name string
		file string
		want string
	}{
		{"file", writeBundle(t, testBundle), bundle.Digest([]byte(testBundle))},
		{"default bundle", "", bundle.Digest(defaultRaw)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			policyFlags.file = tt.file
			cmd, buf := newTestCommand()
			if err := runPolicyDigest(cmd, nil); err != nil {
				t.Fatalf("runPolicyDigest() failed: %v", err)
			}
			if got := decodeOutput(t, buf)["digest"]; got != tt.want {
				t.Errorf("digest = %v, want %s", got, tt.want)
			}
		})
	}
}

func TestPolicySignAndVerify(t *testing.T) {
	resetFlags(t)
	outputFormat = "json"
	policyFlags.file = writeBundle(t, testBundle)
	policyFlags.key = "bundle-key"

	cmd, buf := newTestCommand()
	if err := runPolicySign(cmd, nil); err != nil {
		t.Fatalf("runPolicySign() failed: %v", err)
	}
	sig, _ := decodeOutput(t, buf)["signature"].(string)
	if sig != bundle.Sign([]byte("bundle-key"), []byte(testBundle)) {
		t.Fatalf("signature = %q", sig)
	}

	policyFlags.signature = sig
	cmd, buf = newTestCommand()
	if err := runPolicyVerify(cmd, nil); err != nil {
		t.Fatalf("runPolicyVerify() failed: %v", err)
	}
	if decodeOutput(t, buf)["verified"] != true {
		t.Error("expected verified = true")
	}
}

func TestPolicyVerify_Mismatch(t *testing.T) {
	resetFlags(t)
	policyFlags.file = writeBundle(t, testBundle)
	policyFlags.key = "bundle-key"
	policyFlags.signature = bundle.Sign([]byte("other-key"), []byte(testBundle))

	cmd, _ := newTestCommand()
	err := runPolicyVerify(cmd, nil)
	if !bundle.IsSignatureError(err) {
		t.Fatalf("expected *SignatureError, got %v", err)
	}
	if code := cli.ExitCode(err); code != cli.ExitConfigError {
		t.Errorf("exit code = %d, want %d", code, cli.ExitConfigError)
	}
}

func TestPolicyCommands_MissingFlags(t *testing.T) {
	resetFlags(t)

	cmd, _ := newTestCommand()
	if err := runPolicySign(cmd, nil); cli.ExitCode(err) != cli.ExitConfigError {
		t.Errorf("sign without key: err = %v", err)
	}
	policyFlags.key = "k"
	if err := runPolicySign(cmd, nil); cli.ExitCode(err) != cli.ExitConfigError {
		t.Errorf("sign without file: err = %v", err)
	}
	if err := runPolicyVerify(cmd, nil); cli.ExitCode(err) != cli.ExitConfigError {
		t.Errorf("verify without signature: err = %v", err)
	}
}

func TestPolicyShow(t *testing.T) {
	resetFlags(t)
	outputFormat = "json"

	tests := []struct {
		name        string
		file        string
		wantOrigin  string
		wantMaxCats float64
	}{
		{"parsed", writeBundle(t, testBundle), string(bundle.OriginSource), 5},
		{"missing", filepath.Join(t.TempDir(), "absent.json"), string(bundle.OriginFallbackMissing), bundle.DefaultMaxCats},
		{"invalid", writeBundle(t, `[1,2]`), string(bundle.OriginFallbackInvalid), bundle.DefaultMaxCats},
		{"unreadable", t.TempDir(), string(bundle.OriginFallbackUnreadable), bundle.DefaultMaxCats},
		{"no file", "", string(bundle.OriginDefault), bundle.DefaultMaxCats},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			policyFlags.file = tt.file
			cmd, buf := newTestCommand()
			if err := runPolicyShow(cmd, nil); err != nil {
				t.Fatalf("runPolicyShow() failed: %v", err)
			}
			out := decodeOutput(t, buf)
			if out["origin"] != tt.wantOrigin {
				t.Errorf("origin = %v, want %s", out["origin"], tt.wantOrigin)
			}
			if out["max_cats"] != tt.wantMaxCats {
				t.Errorf("max_cats = %v, want %v", out["max_cats"], tt.wantMaxCats)
			}
		})
	}
}
