// Copyright 2025 The Filen Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Webdavserver is the WebDAV gateway binary. It loads the YAML
// configuration, builds a backend session, and serves RFC 4918 clients
// on the configured address.
//
// With -kind inprocess (the default) the server runs self-contained
// against an in-memory store, which is useful for demos and client
// interoperability testing but keeps nothing across restarts.
package main

import (
	"context"
	"flag"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/FilenCloudDienste/filen-webdav/backend/inprocess"
	"github.com/FilenCloudDienste/filen-webdav/cloud/https"
	"github.com/FilenCloudDienste/filen-webdav/config"
	"github.com/FilenCloudDienste/filen-webdav/dav"
	"github.com/FilenCloudDienste/filen-webdav/log"
	"github.com/FilenCloudDienste/filen-webdav/server"
	"github.com/FilenCloudDienste/filen-webdav/shutdown"
)

var (
	configFile = flag.String("config", "", "`path` to the YAML configuration file")
	addrFlag   = flag.String("addr", "", "listen `address`, overriding the configuration")
	insecure   = flag.Bool("http", false, "serve insecure HTTP even if the configuration says HTTPS")
	logLevel   = flag.String("loglevel", "info", "logging `level`: debug, info, error, disabled")
	kind       = flag.String("kind", "inprocess", "backend `kind`: inprocess")
	letsCache  = flag.String("letscache", "", "Let's Encrypt cache `directory`; enables Let's Encrypt")
	letsHosts  = flag.String("letshosts", "", "comma-separated host allowlist for Let's Encrypt")
	maxConns   = flag.Int("maxconns", 0, "maximum concurrent connections; 0 means unlimited")
)

func main() {
	flag.Parse()

	cfg := config.New()
	if *configFile != "" {
		var err error
		cfg, err = config.FromFile(*configFile)
		if err != nil {
			log.Fatalf("webdavserver: %v", err)
		}
	}
	if cfg.DisableLogging {
		log.SetLevel("disabled")
	} else {
		if err := log.SetLevel(*logLevel); err != nil {
			log.Fatalf("webdavserver: %v", err)
		}
		if name, err := config.LogFile(); err == nil {
			if err := os.MkdirAll(filepath.Dir(name), 0700); err == nil {
				log.ToFile(name)
			}
		}
	}
	if cfg.Threads > 0 {
		runtime.GOMAXPROCS(cfg.Threads)
	}

	// The scratch tier is plaintext and session-scoped: empty it before
	// serving.
	scratchDir, err := config.TempDiskDir()
	if err != nil {
		log.Fatalf("webdavserver: %v", err)
	}
	if err := os.RemoveAll(scratchDir); err != nil {
		log.Fatalf("webdavserver: emptying scratch dir: %v", err)
	}
	if err := os.MkdirAll(scratchDir, 0700); err != nil {
		log.Fatalf("webdavserver: creating scratch dir: %v", err)
	}

	opts := server.Options{ScratchDir: scratchDir}
	switch *kind {
	case "inprocess":
		if cfg.Proxy() {
			log.Error.Printf("webdavserver: WARNING: inprocess proxy mode accepts any credentials")
			opts.Login = func(ctx context.Context, email, password, twoFactorCode string) (dav.Backend, error) {
				return inprocess.New(), nil
			}
		} else {
			opts.Backend = inprocess.New()
		}
	default:
		log.Fatalf("webdavserver: unknown backend kind %q", *kind)
	}

	s, err := server.New(cfg, opts)
	if err != nil {
		log.Fatalf("webdavserver: %v", err)
	}

	addr := cfg.Addr()
	if *addrFlag != "" {
		addr = *addrFlag
	}
	certFile, _ := config.CertFile()
	keyFile, _ := config.KeyFile()
	expiryFile, _ := config.ExpiryFile()
	ln, err := https.Listen(&https.Options{
		Addr:             addr,
		InsecureHTTP:     *insecure || !cfg.HTTPS,
		LetsEncryptCache: *letsCache,
		LetsEncryptHosts: splitHosts(*letsHosts),
		CertFile:         certFile,
		KeyFile:          keyFile,
		ExpiryFile:       expiryFile,
		MaxConnections:   *maxConns,
	})
	if err != nil {
		log.Fatalf("webdavserver: %v", err)
	}

	// First signal drains in-flight requests; a second one destroys the
	// live connections.
	shutdown.OnSignal(func() { s.Stop(false) })
	shutdown.Handle(func() {
		s.Stop(true)
		ln.Close()
	})

	log.Info.Printf("webdavserver: serving on %s", addr)
	err = s.Serve(ln)
	log.Printf("webdavserver: %v", err)
	shutdown.Now(1)
}

func splitHosts(s string) []string {
	var hosts []string
	for _, h := range strings.Split(s, ",") {
		if h = strings.TrimSpace(h); h != "" {
			hosts = append(hosts, h)
		}
	}
	return hosts
}
