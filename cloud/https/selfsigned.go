// Copyright 2025 The Filen Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package https

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"io/ioutil"
	"math/big"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/FilenCloudDienste/filen-webdav/errors"
	"github.com/FilenCloudDienste/filen-webdav/log"
)

// The self-signed certificate the gateway presents to local WebDAV
// clients. Clients pin or ignore it; it exists only to give the loopback
// hop TLS framing.
const (
	certCommonName = "local.webdav.filen.io"
	certKeyBits    = 2048

	// Certificates are valid for a year but replaced five days early so
	// a running server never crosses its own expiry.
	certValidity   = 365 * 24 * time.Hour
	certRegenerate = 360 * 24 * time.Hour
)

// now is replaced by tests.
var now = time.Now

// selfSignedCert returns the cached certificate if its regeneration
// deadline has not passed, generating and caching a fresh one otherwise.
func selfSignedCert(certFile, keyFile, expiryFile string) (tls.Certificate, error) {
	const op errors.Op = "cloud/https.selfSignedCert"
	if certFile == "" || keyFile == "" || expiryFile == "" {
		return tls.Certificate{}, errors.E(op, errors.Invalid, errors.Str("certificate cache locations not set"))
	}
	if cert, ok := cachedCert(certFile, keyFile, expiryFile); ok {
		return cert, nil
	}
	cert, err := generateCert(certFile, keyFile, expiryFile)
	if err != nil {
		return tls.Certificate{}, errors.E(op, err)
	}
	return cert, nil
}

func cachedCert(certFile, keyFile, expiryFile string) (tls.Certificate, bool) {
	data, err := ioutil.ReadFile(expiryFile)
	if err != nil {
		return tls.Certificate{}, false
	}
	expiry, err := strconv.ParseInt(strings.TrimSpace(string(data)), 10, 64)
	if err != nil || now().Unix() >= expiry {
		return tls.Certificate{}, false
	}
	cert, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		log.Error.Printf("https: discarding unreadable cached certificate: %v", err)
		return tls.Certificate{}, false
	}
	return cert, true
}

func generateCert(certFile, keyFile, expiryFile string) (tls.Certificate, error) {
	log.Info.Printf("https: generating self-signed certificate for %s", certCommonName)

	key, err := rsa.GenerateKey(rand.Reader, certKeyBits)
	if err != nil {
		return tls.Certificate{}, err
	}
	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return tls.Certificate{}, err
	}
	notBefore := now()
	template := x509.Certificate{
		SerialNumber:          serial,
		Subject:               pkix.Name{CommonName: certCommonName},
		DNSNames:              []string{certCommonName},
		NotBefore:             notBefore,
		NotAfter:              notBefore.Add(certValidity),
		SignatureAlgorithm:    x509.SHA256WithRSA,
		KeyUsage:              x509.KeyUsageKeyEncipherment | x509.KeyUsageDigitalSignature,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
	}
	der, err := x509.CreateCertificate(rand.Reader, &template, &template, &key.PublicKey, key)
	if err != nil {
		return tls.Certificate{}, err
	}

	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)})

	if err := os.MkdirAll(filepath.Dir(certFile), 0700); err != nil {
		return tls.Certificate{}, err
	}
	if err := ioutil.WriteFile(certFile, certPEM, 0600); err != nil {
		return tls.Certificate{}, err
	}
	if err := ioutil.WriteFile(keyFile, keyPEM, 0600); err != nil {
		return tls.Certificate{}, err
	}
	expiry := notBefore.Add(certRegenerate).Unix()
	if err := ioutil.WriteFile(expiryFile, []byte(strconv.FormatInt(expiry, 10)), 0600); err != nil {
		return tls.Certificate{}, err
	}
	return tls.X509KeyPair(certPEM, keyPEM)
}
