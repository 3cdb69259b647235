// Package kalshi adapts the Kalshi REST and WebSocket APIs to the
// venue-neutral interfaces in internal/venue.
package kalshi

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"fmt"
	"strconv"
	"time"
)

// LoadPrivateKeyPEM parses an RSA private key from PEM bytes, trying
// PKCS8 first (the format Kalshi's API key generator emits) and falling
// back to PKCS1.
func LoadPrivateKeyPEM(pemBytes []byte) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return nil, fmt.Errorf("no PEM block found")
	}

	if key, err := x509.ParsePKCS8PrivateKey(block.Bytes); err == nil {
		rsaKey, ok := key.(*rsa.PrivateKey)
		if !ok {
			return nil, fmt.Errorf("private key is not RSA")
		}
		return rsaKey, nil
	}

	rsaKey, err := x509.ParsePKCS1PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parsing private key (tried PKCS8 and PKCS1): %w", err)
	}
	return rsaKey, nil
}

// Sign computes the RSA-PSS signature Kalshi expects over
// timestampMS+method+path, salt length equal to the SHA-256 hash size.
func Sign(privateKey *rsa.PrivateKey, timestampMS, method, path string) (string, error) {
	message := timestampMS + method + path
	hash := sha256.Sum256([]byte(message))

	sig, err := rsa.SignPSS(rand.Reader, privateKey, crypto.SHA256, hash[:], &rsa.PSSOptions{
		SaltLength: rsa.PSSSaltLengthEqualsHash,
	})
	if err != nil {
		return "", fmt.Errorf("signing: %w", err)
	}

	return base64.StdEncoding.EncodeToString(sig), nil
}

// AuthHeaders builds the three KALSHI-ACCESS-* headers for one request.
func AuthHeaders(apiKeyID string, privateKey *rsa.PrivateKey, method, path string) (map[string]string, error) {
	ts := strconv.FormatInt(time.Now().UnixMilli(), 10)

	sig, err := Sign(privateKey, ts, method, path)
	if err != nil {
		return nil, err
	}

	return map[string]string{
		"KALSHI-ACCESS-KEY":       apiKeyID,
		"KALSHI-ACCESS-TIMESTAMP": ts,
		"KALSHI-ACCESS-SIGNATURE": sig,
	}, nil
}
