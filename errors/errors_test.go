// Copyright 2025 The Filen Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package errors

import (
	stderrors "errors"
	"fmt"
	"io"
	"testing"

	"github.com/FilenCloudDienste/filen-webdav/dav"
)

func TestMarshalText(t *testing.T) {
	// Nested E calls collapse duplicated fields and pull the inner
	// Kind outward.
	err := E(Op("server.Get"), dav.PathName("/photos/cat.jpg"),
		E(Op("backend.Download"), dav.PathName("/photos/cat.jpg"), IO, Str("connection reset")))
	want := "server.Get: /photos/cat.jpg: I/O error:\n\tbackend.Download: connection reset"
	if got := err.Error(); got != want {
		t.Errorf("got %q; want %q", got, want)
	}
}

func TestSeparator(t *testing.T) {
	defer func(prev string) { Separator = prev }(Separator)
	Separator = ":: "

	err := E(Op("server.Put"), dav.PathName("/a"),
		E(Op("backend.Upload"), Internal, Str("exploded")))
	want := "server.Put: /a: internal error:: backend.Upload: exploded"
	if got := err.Error(); got != want {
		t.Errorf("got %q; want %q", got, want)
	}
}

func TestDoesNotChangePreviousError(t *testing.T) {
	err := E(Permission)
	err2 := E(Op("I will NOT modify err"), err)

	want := "I will NOT modify err: permission denied"
	if err2.Error() != want {
		t.Fatalf("got %q; want %q", err2.Error(), want)
	}
	kind := err.(*Error).Kind
	if kind != Permission {
		t.Fatalf("err.Kind changed to %v", kind)
	}
}

func TestMatch(t *testing.T) {
	const (
		path = dav.PathName("/docs/report.txt")
		user = dav.UserName("ann@example.com")
		op   = Op("server.Delete")
	)
	err := E(op, path, user, NotExist, Str("gone"))

	tests := []struct {
		templ error
		match bool
	}{
		{E(NotExist), true},
		{E(op), true},
		{E(op, path), true},
		{E(op, path, user, NotExist, Str("gone")), true},
		{E(Permission), false},
		{E(op, dav.PathName("/other")), false},
		{E(op, dav.UserName("bob@example.com")), false},
		{E(op, Str("different message")), false},
		{Str("gone"), false}, // not an *Error
	}
	for _, test := range tests {
		if got := Match(test.templ, err); got != test.match {
			t.Errorf("Match(%q, %q) = %v; want %v", test.templ, err, got, test.match)
		}
	}
}

func TestIs(t *testing.T) {
	if Is(NotExist, nil) {
		t.Error("Is(NotExist, nil) = true")
	}
	if Is(NotExist, Str("plain")) {
		t.Error("Is on a non-Error = true")
	}
	err := E(Op("outer"), E(Op("inner"), Precondition))
	if !Is(Precondition, err) {
		t.Error("Is does not find the kind of a nested error")
	}
	if Is(NotExist, err) {
		t.Error("Is reports the wrong kind")
	}
}

func TestUnwrap(t *testing.T) {
	err := E(Op("server.Get"), IO, io.ErrUnexpectedEOF)
	if !stderrors.Is(err, io.ErrUnexpectedEOF) {
		t.Error("standard errors.Is cannot see through Error")
	}
}

func ExampleError() {
	inner := E(Op("backend.Stat"), dav.PathName("/a/b"), NotExist)
	outer := E(Op("server.Propfind"), dav.UserName("ann@example.com"), inner)
	fmt.Println(outer)
	// Output:
	// server.Propfind, user ann@example.com: item does not exist:
	//	backend.Stat: /a/b
}
