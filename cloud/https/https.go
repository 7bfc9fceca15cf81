// Copyright 2025 The Filen Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package https builds the gateway's network listener: plain HTTP for
// loopback development, HTTPS with a cached self-signed certificate by
// default, or HTTPS with Let's Encrypt certificates when a cache
// directory and host list are configured.
package https

import (
	"crypto/tls"
	"net"

	"golang.org/x/crypto/acme/autocert"
	"golang.org/x/net/netutil"

	"github.com/FilenCloudDienste/filen-webdav/errors"
	"github.com/FilenCloudDienste/filen-webdav/log"
	"github.com/FilenCloudDienste/filen-webdav/serverutil"
)

// Options configures Listen.
type Options struct {
	// Addr is the host and port to listen on.
	Addr string

	// InsecureHTTP serves cleartext HTTP. A warning is logged when the
	// address is not loopback.
	InsecureHTTP bool

	// LetsEncryptCache names a directory for Let's Encrypt
	// certificates. If non-empty, Let's Encrypt is used instead of the
	// self-signed certificate.
	LetsEncryptCache string

	// LetsEncryptHosts restricts the hosts for which certificates are
	// requested. It should be set whenever LetsEncryptCache is.
	LetsEncryptHosts []string

	// CertFile, KeyFile and ExpiryFile are the cache locations for the
	// self-signed certificate, its key, and its regeneration deadline.
	// All three must be set unless InsecureHTTP or Let's Encrypt is
	// selected.
	CertFile   string
	KeyFile    string
	ExpiryFile string

	// MaxConnections caps concurrently accepted connections.
	// Zero means unlimited.
	MaxConnections int
}

// Listen returns a listener on opt.Addr, TLS-wrapped unless
// opt.InsecureHTTP is set.
func Listen(opt *Options) (net.Listener, error) {
	const op errors.Op = "cloud/https.Listen"

	var config *tls.Config
	switch {
	case opt.InsecureHTTP:
		log.Info.Printf("https: serving insecure HTTP on %q", opt.Addr)
		host, _, err := net.SplitHostPort(opt.Addr)
		if err != nil {
			return nil, errors.E(op, errors.Invalid, err)
		}
		if !serverutil.IsLoopback(host) {
			log.Error.Printf("https: WARNING: serving insecure HTTP on non-loopback address %q", opt.Addr)
		}
	case opt.LetsEncryptCache != "":
		log.Info.Printf("https: serving HTTPS on %q using Let's Encrypt certificates", opt.Addr)
		log.Info.Printf("https: caching Let's Encrypt certificates in %v", opt.LetsEncryptCache)
		manager := autocert.Manager{
			Prompt: autocert.AcceptTOS,
			Cache:  autocert.DirCache(opt.LetsEncryptCache),
		}
		if h := opt.LetsEncryptHosts; len(h) > 0 {
			manager.HostPolicy = autocert.HostWhitelist(h...)
		}
		config = &tls.Config{GetCertificate: manager.GetCertificate}
	default:
		log.Info.Printf("https: serving HTTPS on %q using a self-signed certificate", opt.Addr)
		cert, err := selfSignedCert(opt.CertFile, opt.KeyFile, opt.ExpiryFile)
		if err != nil {
			return nil, errors.E(op, err)
		}
		config = newTLSConfig(cert)
	}

	ln, err := net.Listen("tcp", opt.Addr)
	if err != nil {
		return nil, errors.E(op, errors.IO, err)
	}
	if opt.MaxConnections > 0 {
		ln = netutil.LimitListener(ln, opt.MaxConnections)
	}
	if config != nil {
		ln = tls.NewListener(ln, config)
	}
	return ln, nil
}

func newTLSConfig(cert tls.Certificate) *tls.Config {
	return &tls.Config{
		CipherSuites: []uint16{
			tls.TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384,
			tls.TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256,
			tls.TLS_ECDHE_ECDSA_WITH_CHACHA20_POLY1305,
			tls.TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384,
			tls.TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256,
			tls.TLS_ECDHE_RSA_WITH_CHACHA20_POLY1305,
		},
		MinVersion:               tls.VersionTLS12,
		PreferServerCipherSuites: true, // Use our choice, not the client's choice
		CurvePreferences:         []tls.CurveID{tls.CurveP521, tls.CurveP384, tls.CurveP256, tls.X25519},
		Certificates:             []tls.Certificate{cert},
	}
}
