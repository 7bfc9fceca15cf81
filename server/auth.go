// Copyright 2025 The Filen Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package server

import (
	"crypto/md5"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"net/http"
	"strings"

	"github.com/FilenCloudDienste/filen-webdav/dav"
	"github.com/FilenCloudDienste/filen-webdav/errors"
	"github.com/FilenCloudDienste/filen-webdav/log"
)

const authRealm = "Default realm"

// An authenticator binds a user state to a request, or writes its 401
// challenge and returns an error of kind Unauthenticated. Failures
// never reveal which credential was wrong.
type authenticator interface {
	authenticate(w http.ResponseWriter, r *http.Request) (*userState, error)
}

// equalConstantTime compares two strings without leaking their common
// prefix length or, via the hashing, their lengths.
func equalConstantTime(a, b string) bool {
	ha := sha256.Sum256([]byte(a))
	hb := sha256.Sum256([]byte(b))
	return subtle.ConstantTimeCompare(ha[:], hb[:]) == 1
}

// basicAuth is Basic authentication against the configured single
// tenant credentials.
type basicAuth struct {
	state    *userState
	username string
	password string
}

func (a *basicAuth) authenticate(w http.ResponseWriter, r *http.Request) (*userState, error) {
	const op errors.Op = "server.basicAuth"
	username, password, ok := r.BasicAuth()
	if ok && equalConstantTime(username, a.username) && equalConstantTime(password, a.password) {
		return a.state, nil
	}
	challengeBasic(w)
	return nil, errors.E(op, errors.Unauthenticated)
}

func challengeBasic(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", `Basic realm="`+authRealm+`", charset="UTF-8"`)
	empty(w, http.StatusUnauthorized)
}

// proxyAuth is multi-tenant Basic authentication: the username is the
// account email and the password carries the account secret, in the
// form password=<secret>[&twoFactorAuthentication=<otp>].
type proxyAuth struct {
	users *userTable
	login dav.LoginFunc
}

func (a *proxyAuth) authenticate(w http.ResponseWriter, r *http.Request) (*userState, error) {
	const op errors.Op = "server.proxyAuth"
	email, rawPassword, ok := r.BasicAuth()
	if !ok || !strings.Contains(email, "@") || !strings.HasPrefix(rawPassword, "password=") {
		challengeBasic(w)
		return nil, errors.E(op, errors.Unauthenticated)
	}
	secret, otp := parseProxyPassword(rawPassword)
	name := dav.UserName(email)

	// Serialize first-login per username so a burst of requests from a
	// freshly mounted client performs one backend login.
	mu := a.users.lockLogin(name)
	mu.Lock()
	defer mu.Unlock()

	if u := a.users.get(name); u != nil {
		if equalConstantTime(rawPassword, u.authedPassword) {
			return u, nil
		}
		// Credential changed; retire the old session and fall
		// through to a fresh login.
		a.users.remove(name)
	}

	backend, err := a.login(r.Context(), email, secret, otp)
	if err != nil {
		log.Debug.Printf("server: proxy login failed for a user") // never log the credential
		challengeBasic(w)
		return nil, errors.E(op, name, errors.Unauthenticated, err)
	}
	u := newUserState(name, backend, rawPassword)
	u.cancelPwd = backend.OnPasswordChanged(func() {
		log.Info.Printf("server: password changed, evicting session for %s", name)
		a.users.remove(name)
	})
	a.users.add(u)
	return u, nil
}

// parseProxyPassword splits password=<secret>[&twoFactorAuthentication=<otp>].
// The secret may itself contain ampersands; only the literal
// twoFactorAuthentication suffix is recognized.
func parseProxyPassword(raw string) (secret, otp string) {
	secret = strings.TrimPrefix(raw, "password=")
	const sep = "&twoFactorAuthentication="
	if i := strings.LastIndex(secret, sep); i >= 0 {
		otp = secret[i+len(sep):]
		secret = secret[:i]
	}
	return secret, otp
}

// digestAuth is Digest authentication (RFC 2617, qop "auth") against
// the configured single-tenant credentials. Nonces are not tracked;
// clients supply their own counts.
type digestAuth struct {
	state    *userState
	username string
	password string
}

func (a *digestAuth) authenticate(w http.ResponseWriter, r *http.Request) (*userState, error) {
	const op errors.Op = "server.digestAuth"
	params := parseDigest(r.Header.Get("Authorization"))
	if params == nil {
		a.challenge(w)
		return nil, errors.E(op, errors.Unauthenticated)
	}
	if !equalConstantTime(params["username"], a.username) {
		a.challenge(w)
		return nil, errors.E(op, errors.Unauthenticated)
	}
	ha1 := md5hex(params["username"] + ":" + params["realm"] + ":" + a.password)
	ha2 := md5hex(r.Method + ":" + params["uri"])
	expected := md5hex(strings.Join([]string{
		ha1, params["nonce"], params["nc"], params["cnonce"], params["qop"], ha2,
	}, ":"))
	if !equalConstantTime(expected, params["response"]) {
		a.challenge(w)
		return nil, errors.E(op, errors.Unauthenticated)
	}
	return a.state, nil
}

func (a *digestAuth) challenge(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", fmt.Sprintf(
		`Digest realm="%s", qop="auth", nonce="%s", opaque="%s"`,
		authRealm, randomHex(16), randomHex(16)))
	empty(w, http.StatusUnauthorized)
}

func md5hex(s string) string {
	sum := md5.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}

func randomHex(n int) string {
	b := make([]byte, n)
	rand.Read(b)
	return hex.EncodeToString(b)
}

// parseDigest breaks an Authorization: Digest header into its
// parameters. It returns nil if the header is not a Digest header.
func parseDigest(header string) map[string]string {
	const prefix = "Digest "
	if len(header) < len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return nil
	}
	params := make(map[string]string)
	for _, part := range splitQuoted(header[len(prefix):]) {
		kv := strings.SplitN(strings.TrimSpace(part), "=", 2)
		if len(kv) != 2 {
			continue
		}
		params[strings.ToLower(kv[0])] = strings.Trim(kv[1], `"`)
	}
	return params
}

// splitQuoted splits on commas that are outside double quotes.
func splitQuoted(s string) []string {
	var parts []string
	var inQuotes bool
	start := 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '"':
			inQuotes = !inQuotes
		case ',':
			if !inQuotes {
				parts = append(parts, s[start:i])
				start = i + 1
			}
		}
	}
	return append(parts, s[start:])
}

// claimedUsername extracts the username asserted by the Authorization
// header without verifying it, for username-keyed rate limiting.
func claimedUsername(r *http.Request) string {
	h := r.Header.Get("Authorization")
	switch {
	case strings.HasPrefix(h, "Basic "), strings.HasPrefix(h, "basic "):
		raw, err := base64.StdEncoding.DecodeString(h[len("Basic "):])
		if err != nil {
			return ""
		}
		if i := strings.IndexByte(string(raw), ':'); i >= 0 {
			return string(raw[:i])
		}
	case strings.HasPrefix(h, "Digest "), strings.HasPrefix(h, "digest "):
		return parseDigest(h)["username"]
	}
	return ""
}
