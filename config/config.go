// Copyright 2025 The Filen Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package config defines the gateway's configuration and the layout of
// its state on the local machine. Configuration is a YAML file; state
// (certificates, scratch files, logs) lives under the platform
// user-configuration directory.
package config

import (
	"io/ioutil"
	"net"
	"os"
	goPath "path"
	"path/filepath"
	"runtime"
	"strconv"

	yaml "gopkg.in/yaml.v2"

	"github.com/FilenCloudDienste/filen-webdav/errors"
)

// Authentication modes.
const (
	AuthBasic  = "basic"
	AuthDigest = "digest"
)

// Rate-limit keying modes.
const (
	KeyIP       = "ip"
	KeyUsername = "username"
)

// User is the single-tenant credential pair. When absent from the
// configuration the gateway runs in proxy mode and clients carry their
// own store credentials in the Basic password.
type User struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// RateLimit configures the fixed-window limiter applied before
// authentication.
type RateLimit struct {
	// WindowMS is the window length in milliseconds.
	WindowMS int `yaml:"windowMs"`

	// Limit is the number of requests allowed per key per window.
	Limit int `yaml:"limit"`

	// Key selects what identifies a visitor: "ip" or "username".
	Key string `yaml:"key"`
}

// Config collects every knob the gateway accepts.
type Config struct {
	// Hostname and Port form the listen address.
	Hostname string `yaml:"hostname"`
	Port     int    `yaml:"port"`

	// AuthMode is "basic" or "digest". Digest requires User.
	AuthMode string `yaml:"authMode"`

	// HTTPS enables TLS with a cached self-signed certificate.
	HTTPS bool `yaml:"https"`

	// User, when set, selects single-tenant operation.
	User *User `yaml:"user"`

	RateLimit RateLimit `yaml:"rateLimit"`

	// TempFilesToStoreOnDisk holds glob patterns, matched against file
	// base names, whose bodies are kept in local plaintext scratch
	// files and never uploaded to the store.
	TempFilesToStoreOnDisk []string `yaml:"tempFilesToStoreOnDisk"`

	// DisableLogging silences the process log entirely.
	DisableLogging bool `yaml:"disableLogging"`

	// Threads caps GOMAXPROCS. Zero means the CPU count.
	Threads int `yaml:"threads"`
}

// New returns a Config holding every default.
func New() *Config {
	return &Config{
		Hostname: "127.0.0.1",
		Port:     1900,
		AuthMode: AuthBasic,
		RateLimit: RateLimit{
			WindowMS: 1000,
			Limit:    1000,
			Key:      KeyUsername,
		},
		Threads: runtime.NumCPU(),
	}
}

// FromFile reads the YAML file at name over the defaults.
func FromFile(name string) (*Config, error) {
	const op errors.Op = "config.FromFile"
	data, err := ioutil.ReadFile(name)
	if err != nil {
		return nil, errors.E(op, errors.IO, err)
	}
	cfg := New()
	if err := yaml.UnmarshalStrict(data, cfg); err != nil {
		return nil, errors.E(op, errors.Invalid, err)
	}
	if err := cfg.Valid(); err != nil {
		return nil, errors.E(op, err)
	}
	return cfg, nil
}

// Valid checks the configuration for contradictions. It is called by
// FromFile and again by the server constructor, which may have been
// handed a Config built in code.
func (c *Config) Valid() error {
	const op errors.Op = "config.Valid"
	switch c.AuthMode {
	case AuthBasic:
	case AuthDigest:
		if c.User == nil {
			return errors.E(op, errors.Invalid, errors.Str("authMode digest requires user"))
		}
	default:
		return errors.E(op, errors.Invalid, errors.Errorf("unknown authMode %q", c.AuthMode))
	}
	if c.User != nil && c.User.Username == "" {
		return errors.E(op, errors.Invalid, errors.Str("user requires a username"))
	}
	switch c.RateLimit.Key {
	case KeyIP, KeyUsername:
	default:
		return errors.E(op, errors.Invalid, errors.Errorf("unknown rateLimit key %q", c.RateLimit.Key))
	}
	if c.RateLimit.WindowMS <= 0 || c.RateLimit.Limit <= 0 {
		return errors.E(op, errors.Invalid, errors.Str("rateLimit window and limit must be positive"))
	}
	if c.Port <= 0 || c.Port > 65535 {
		return errors.E(op, errors.Invalid, errors.Errorf("port %d out of range", c.Port))
	}
	for _, pattern := range c.TempFilesToStoreOnDisk {
		if _, err := goPath.Match(pattern, ""); err != nil {
			return errors.E(op, errors.Invalid, errors.Errorf("bad scratch pattern %q: %v", pattern, err))
		}
	}
	return nil
}

// Addr returns the listen address in host:port form.
func (c *Config) Addr() string {
	return net.JoinHostPort(c.Hostname, strconv.Itoa(c.Port))
}

// Proxy reports whether the gateway runs in proxy mode, that is,
// without configured single-tenant credentials.
func (c *Config) Proxy() bool { return c.User == nil }

// baseDir is replaced by tests that must not touch the real
// configuration directory.
var baseDir = defaultBaseDir

// The filesystem layout under the platform configuration directory.
// Scratch files, certificates and logs of one host share one root so an
// uninstall can remove a single tree.

// WebDAVDir returns the directory holding the gateway's own state.
func WebDAVDir() (string, error) {
	dir, err := baseDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "@filen", "webdav"), nil
}

// CertFile, KeyFile and ExpiryFile return the cache locations of the
// self-signed TLS certificate, its private key, and its regeneration
// deadline.
func CertFile() (string, error)   { return webdavFile("cert") }
func KeyFile() (string, error)    { return webdavFile("privateKey") }
func ExpiryFile() (string, error) { return webdavFile("expiry") }

// TempDiskDir returns the directory holding plaintext scratch files.
func TempDiskDir() (string, error) { return webdavFile("tempDiskFiles") }

// LogFile returns the rotating log file location.
func LogFile() (string, error) {
	dir, err := baseDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "@filen", "logs", "webdav.log"), nil
}

func webdavFile(name string) (string, error) {
	dir, err := WebDAVDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, name), nil
}

func defaultBaseDir() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", errors.E(errors.Op("config.baseDir"), errors.IO, err)
	}
	return dir, nil
}
