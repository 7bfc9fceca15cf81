// Copyright 2025 The Filen Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package server

import (
	"bytes"
	"io"
	"io/ioutil"
	"net/http"
	"strings"
	"time"

	"github.com/FilenCloudDienste/filen-webdav/errors"
)

// xmlBodyLimit caps how much of a request body the XML-bodied verbs
// will read.
const xmlBodyLimit = 1 << 20

// frameBody distinguishes an empty PUT from a streaming one without
// buffering the body. Finder and Explorer open a file with a bodyless
// PUT to probe for writability; the only way to tell that apart from a
// slow upload is to wait for the first byte.
//
// It reads exactly one byte, blocking up to timeout. If the byte
// arrives, the returned reader replays it followed by the rest of the
// body. If the client declared zero length, sent EOF, went away, or the
// timeout lapsed, empty is true.
func frameBody(r *http.Request, timeout time.Duration) (body io.Reader, empty bool, err error) {
	const op errors.Op = "server.frameBody"
	if r.ContentLength == 0 {
		return nil, true, nil
	}

	type first struct {
		b   byte
		err error
	}
	ch := make(chan first, 1)
	go func() {
		var buf [1]byte
		_, err := io.ReadFull(r.Body, buf[:])
		ch <- first{buf[0], err}
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case f := <-ch:
		if f.err == io.EOF || f.err == io.ErrUnexpectedEOF {
			return nil, true, nil
		}
		if f.err != nil {
			return nil, false, errors.E(op, errors.IO, f.err)
		}
		return io.MultiReader(bytes.NewReader([]byte{f.b}), r.Body), false, nil
	case <-timer.C:
		// The prober is still holding the file open. The pending read
		// unblocks when the request body is closed at handler exit.
		return nil, true, nil
	case <-r.Context().Done():
		return nil, true, nil
	}
}

// readXMLBody returns the request body as text when its declared
// content type is XML, bounded by xmlBodyLimit. Other bodies yield the
// empty string; the body is drained either way so the connection can be
// reused.
func readXMLBody(r *http.Request) (string, error) {
	const op errors.Op = "server.readXMLBody"
	defer io.Copy(ioutil.Discard, io.LimitReader(r.Body, xmlBodyLimit))

	ct := r.Header.Get("Content-Type")
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = ct[:i]
	}
	ct = strings.TrimSpace(strings.ToLower(ct))
	if ct != "application/xml" && ct != "text/xml" && ct != "" {
		return "", nil
	}
	data, err := ioutil.ReadAll(io.LimitReader(r.Body, xmlBodyLimit))
	if err != nil {
		return "", errors.E(op, errors.IO, err)
	}
	return string(data), nil
}
