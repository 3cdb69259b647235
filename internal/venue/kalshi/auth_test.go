package kalshi

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"strings"
	"testing"
)

func generateTestKeyPEM(t *testing.T) ([]byte, *rsa.PrivateKey) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}

	der, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		t.Fatalf("marshal key: %v", err)
	}

	block := &pem.Block{Type: "PRIVATE KEY", Bytes: der}
	return pem.EncodeToMemory(block), key
}

func TestLoadPrivateKeyPEM(t *testing.T) {
	pemBytes, want := generateTestKeyPEM(t)

	got, err := LoadPrivateKeyPEM(pemBytes)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got.N.Cmp(want.N) != 0 {
		t.Error("loaded key modulus does not match generated key")
	}
}

func TestLoadPrivateKeyPEMRejectsGarbage(t *testing.T) {
	_, err := LoadPrivateKeyPEM([]byte("not a pem block"))
	if err == nil {
		t.Fatal("expected error for non-PEM input")
	}
}

func TestSignProducesDeterministicLengthSignature(t *testing.T) {
	_, key := generateTestKeyPEM(t)

	sig, err := Sign(key, "1700000000000", "GET", "/trade-api/v2/portfolio/balance")
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if sig == "" {
		t.Fatal("expected non-empty signature")
	}
}

func TestAuthHeadersIncludesAllThreeHeaders(t *testing.T) {
	_, key := generateTestKeyPEM(t)

	headers, err := AuthHeaders("key-id", key, "GET", "/trade-api/v2/markets")
	if err != nil {
		t.Fatalf("auth headers: %v", err)
	}

	for _, h := range []string{"KALSHI-ACCESS-KEY", "KALSHI-ACCESS-TIMESTAMP", "KALSHI-ACCESS-SIGNATURE"} {
		if headers[h] == "" {
			t.Errorf("expected header %s to be set", h)
		}
	}

	if headers["KALSHI-ACCESS-KEY"] != "key-id" {
		t.Errorf("expected key id to be passed through, got %s", headers["KALSHI-ACCESS-KEY"])
	}

	if !strings.Contains(headers["KALSHI-ACCESS-TIMESTAMP"], "1") {
		t.Error("expected a unix millis timestamp")
	}
}
