// Copyright 2025 The Filen Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package config

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefaults(t *testing.T) {
	cfg := New()
	if err := cfg.Valid(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if got, want := cfg.Addr(), "127.0.0.1:1900"; got != want {
		t.Errorf("Addr() = %q, want %q", got, want)
	}
	if !cfg.Proxy() {
		t.Error("default config should be proxy mode (no user)")
	}
}

func TestValid(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		errStr string // empty means valid
	}{
		{"defaults", func(c *Config) {}, ""},
		{"digestWithUser", func(c *Config) {
			c.AuthMode = AuthDigest
			c.User = &User{Username: "u", Password: "p"}
		}, ""},
		{"digestWithoutUser", func(c *Config) {
			c.AuthMode = AuthDigest
		}, "digest requires user"},
		{"unknownAuthMode", func(c *Config) {
			c.AuthMode = "kerberos"
		}, "unknown authMode"},
		{"emptyUsername", func(c *Config) {
			c.User = &User{Password: "p"}
		}, "requires a username"},
		{"badRateKey", func(c *Config) {
			c.RateLimit.Key = "session"
		}, "unknown rateLimit key"},
		{"zeroWindow", func(c *Config) {
			c.RateLimit.WindowMS = 0
		}, "must be positive"},
		{"badPort", func(c *Config) {
			c.Port = 70000
		}, "out of range"},
		{"badGlob", func(c *Config) {
			c.TempFilesToStoreOnDisk = []string{"[x"}
		}, "bad scratch pattern"},
		{"goodGlobs", func(c *Config) {
			c.TempFilesToStoreOnDisk = []string{"*.DS_Store", "._*", "Thumbs.db"}
		}, ""},
	}
	for _, test := range tests {
		cfg := New()
		test.mutate(cfg)
		err := cfg.Valid()
		if test.errStr == "" {
			if err != nil {
				t.Errorf("%s: unexpected error: %v", test.name, err)
			}
			continue
		}
		if err == nil {
			t.Errorf("%s: expected error containing %q, got nil", test.name, test.errStr)
			continue
		}
		if !strings.Contains(err.Error(), test.errStr) {
			t.Errorf("%s: error %q does not contain %q", test.name, err, test.errStr)
		}
	}
}

func TestFromFile(t *testing.T) {
	dir, err := ioutil.TempDir("", "filen-config")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(dir)

	name := filepath.Join(dir, "webdav.yaml")
	const body = `
hostname: 0.0.0.0
port: 2015
authMode: basic
https: true
user:
  username: admin
  password: hunter2
rateLimit:
  windowMs: 500
  limit: 100
  key: ip
tempFilesToStoreOnDisk:
  - "*.DS_Store"
  - "Thumbs.db"
threads: 2
`
	if err := ioutil.WriteFile(name, []byte(body), 0600); err != nil {
		t.Fatal(err)
	}
	cfg, err := FromFile(name)
	if err != nil {
		t.Fatal(err)
	}
	if got, want := cfg.Addr(), "0.0.0.0:2015"; got != want {
		t.Errorf("Addr() = %q, want %q", got, want)
	}
	if cfg.Proxy() {
		t.Error("config with user should not be proxy mode")
	}
	if !cfg.HTTPS {
		t.Error("https not set")
	}
	if got, want := cfg.RateLimit.Key, KeyIP; got != want {
		t.Errorf("RateLimit.Key = %q, want %q", got, want)
	}
	if len(cfg.TempFilesToStoreOnDisk) != 2 {
		t.Errorf("TempFilesToStoreOnDisk = %v", cfg.TempFilesToStoreOnDisk)
	}

	// Unknown fields are rejected, not ignored.
	if err := ioutil.WriteFile(name, []byte("bogusField: 1\n"), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := FromFile(name); err == nil {
		t.Error("expected error for unknown field")
	}

	if _, err := FromFile(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestLayout(t *testing.T) {
	old := baseDir
	baseDir = func() (string, error) { return "/cfg", nil }
	defer func() { baseDir = old }()

	for _, test := range []struct {
		fn   func() (string, error)
		want string
	}{
		{WebDAVDir, filepath.Join("/cfg", "@filen", "webdav")},
		{CertFile, filepath.Join("/cfg", "@filen", "webdav", "cert")},
		{KeyFile, filepath.Join("/cfg", "@filen", "webdav", "privateKey")},
		{ExpiryFile, filepath.Join("/cfg", "@filen", "webdav", "expiry")},
		{TempDiskDir, filepath.Join("/cfg", "@filen", "webdav", "tempDiskFiles")},
		{LogFile, filepath.Join("/cfg", "@filen", "logs", "webdav.log")},
	} {
		got, err := test.fn()
		if err != nil {
			t.Fatal(err)
		}
		if got != test.want {
			t.Errorf("got %q, want %q", got, test.want)
		}
	}
}
