package tls

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// writePair writes a self-signed certificate valid until notAfter.
func writePair(t *testing.T, dir string, notAfter time.Time) (certFile, keyFile string) {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(notAfter.Unix()),
		Subject:      pkix.Name{CommonName: "ccc-ops"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     notAfter,
		DNSNames:     []string{"localhost"},
		KeyUsage:     x509.KeyUsageDigitalSignature,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	if err != nil {
		t.Fatal(err)
	}
	keyDER, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		t.Fatal(err)
	}

	certFile = filepath.Join(dir, "tls.crt")
	keyFile = filepath.Join(dir, "tls.key")
	if err := os.WriteFile(certFile, pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}), 0600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(keyFile, pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER}), 0600); err != nil {
		t.Fatal(err)
	}
	return certFile, keyFile
}

func TestNewCertificateReloader(t *testing.T) {
	notAfter := time.Now().Add(90 * 24 * time.Hour).Truncate(time.Second)
	certFile, keyFile := writePair(t, t.TempDir(), notAfter)

	r, err := NewCertificateReloader(certFile, keyFile, nil)
	if err != nil {
		t.Fatalf("NewCertificateReloader() failed: %v", err)
	}
	if !r.NotAfter().Equal(notAfter) {
		t.Errorf("NotAfter() = %v, want %v", r.NotAfter(), notAfter)
	}

	cert, err := r.TLSConfig().GetCertificate(nil)
	if err != nil || cert == nil || cert.Leaf.Subject.CommonName != "ccc-ops" {
		t.Errorf("GetCertificate() = %v, %v", cert, err)
	}
}

func TestNewCertificateReloader_Errors(t *testing.T) {
	dir := t.TempDir()
	expiredCert, expiredKey := writePair(t, filepath.Join(dir), time.Now().Add(-time.Minute))

	tests := []struct {
		name     string
		certFile string
		keyFile  string
	}{
		{"missing paths", "", ""},
		{"absent files", filepath.Join(dir, "absent.crt"), filepath.Join(dir, "absent.key")},
		{"expired", expiredCert, expiredKey},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewCertificateReloader(tt.certFile, tt.keyFile, nil); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestCertificateReloader_WatchPicksUpRotation(t *testing.T) {
	dir := t.TempDir()
	first := time.Now().Add(24 * time.Hour).Truncate(time.Second)
	certFile, keyFile := writePair(t, dir, first)

	r, err := NewCertificateReloader(certFile, keyFile, nil)
	if err != nil {
		t.Fatalf("NewCertificateReloader() failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Watch(ctx) }()
	defer func() {
		cancel()
		<-done
	}()

	// Give the watcher time to register before rotating.
	time.Sleep(100 * time.Millisecond)
	second := time.Now().Add(365 * 24 * time.Hour).Truncate(time.Second)
	writePair(t, dir, second)

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if r.NotAfter().Equal(second) {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Errorf("NotAfter() = %v after rotation, want %v", r.NotAfter(), second)
}

func TestCertificateReloader_KeepsCertificateOnBadReload(t *testing.T) {
	dir := t.TempDir()
	notAfter := time.Now().Add(24 * time.Hour).Truncate(time.Second)
	certFile, keyFile := writePair(t, dir, notAfter)

	r, err := NewCertificateReloader(certFile, keyFile, nil)
	if err != nil {
		t.Fatalf("NewCertificateReloader() failed: %v", err)
	}
	if err := os.WriteFile(certFile, []byte("not a certificate"), 0600); err != nil {
		t.Fatal(err)
	}

	if err := r.Reload(); err == nil {
		t.Fatal("expected Reload() to fail")
	}
	if !r.NotAfter().Equal(notAfter) {
		t.Error("certificate replaced by a failed reload")
	}
}
