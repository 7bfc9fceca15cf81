// Copyright 2025 The Filen Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package path canonicalizes and prints the slash-separated names the
// gateway serves. Names are absolute POSIX paths, percent-decoded
// exactly once at the HTTP boundary, with no trailing slash except for
// the root "/".
package path

import (
	"net/url"
	"strings"
	"unicode/utf8"

	gopath "path"

	"golang.org/x/text/unicode/norm"

	"github.com/FilenCloudDienste/filen-webdav/dav"
)

// Clean returns the canonical form of a decoded path: NFC-normalized
// (macOS clients send decomposed Unicode), absolute, with duplicate
// slashes and dot segments collapsed and any trailing slash removed
// except on the root itself. Dot-dot segments cannot climb above root.
func Clean(name dav.PathName) dav.PathName {
	s := norm.NFC.String(string(name))
	if !strings.HasPrefix(s, "/") {
		s = "/" + s
	}
	return dav.PathName(gopath.Clean(s))
}

// Dir returns the parent of the path. The parent of the root is the
// root.
func Dir(name dav.PathName) dav.PathName {
	return dav.PathName(gopath.Dir(string(Clean(name))))
}

// Base returns the last element of the path, "/" for the root.
func Base(name dav.PathName) string {
	return gopath.Base(string(Clean(name)))
}

// IsRoot reports whether the path names the root directory.
func IsRoot(name dav.PathName) bool {
	return Clean(name) == dav.Root
}

// Join appends elems to name with separating slashes and returns the
// cleaned result.
func Join(name dav.PathName, elems ...string) dav.PathName {
	parts := append([]string{string(name)}, elems...)
	return Clean(dav.PathName(strings.Join(parts, "/")))
}

// IsRelative reports whether a decoded destination path begins with a
// relative segment ("..", "./" and so "../"). Such destinations are
// refused before any cleaning could mask them.
func IsRelative(s string) bool {
	return strings.HasPrefix(s, "..") || strings.HasPrefix(s, "./")
}

// Escape percent-encodes the path for use inside an href. Slashes are
// preserved; everything a URL path cannot carry literally is escaped.
func Escape(name dav.PathName) string {
	u := url.URL{Path: string(name)}
	return u.EscapedPath()
}

// reservedNames are the Windows device names that cannot be used as
// file names, with or without an extension.
var reservedNames = map[string]bool{
	"CON": true, "PRN": true, "AUX": true, "NUL": true,
	"COM1": true, "COM2": true, "COM3": true, "COM4": true, "COM5": true,
	"COM6": true, "COM7": true, "COM8": true, "COM9": true,
	"LPT1": true, "LPT2": true, "LPT3": true, "LPT4": true, "LPT5": true,
	"LPT6": true, "LPT7": true, "LPT8": true, "LPT9": true,
}

const maxFilenameBytes = 255

// Sanitize rewrites name so it is storable on any local filesystem:
// control characters and the characters <>:"/\|?* are stripped,
// trailing dots and spaces are trimmed, Windows reserved device names
// are prefixed with an underscore, and the result is truncated to 255
// bytes. An empty result becomes "_".
func Sanitize(name string) string {
	var b strings.Builder
	for _, r := range name {
		switch {
		case r < 0x20 || r == 0x7f:
		case strings.ContainsRune(`<>:"/\|?*`, r):
		default:
			b.WriteRune(r)
		}
	}
	s := strings.TrimRight(b.String(), " .")
	stem := s
	if i := strings.IndexByte(s, '.'); i >= 0 {
		stem = s[:i]
	}
	if reservedNames[strings.ToUpper(stem)] {
		s = "_" + s
	}
	if len(s) > maxFilenameBytes {
		s = s[:maxFilenameBytes]
		// Do not leave a torn UTF-8 sequence at the cut. The builder
		// pass replaced any invalid input bytes, so only the tail can
		// be invalid here.
		for len(s) > 0 && !utf8.ValidString(s) {
			s = s[:len(s)-1]
		}
	}
	if s == "" {
		s = "_"
	}
	return s
}
