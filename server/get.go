// Copyright 2025 The Filen Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package server

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/FilenCloudDienste/filen-webdav/dav"
	"github.com/FilenCloudDienste/filen-webdav/errors"
	"github.com/FilenCloudDienste/filen-webdav/log"
)

// byteRange is an inclusive range of body bytes.
type byteRange struct {
	start, end int64
}

func (br byteRange) length() int64 { return br.end - br.start + 1 }

// parseRange interprets the Range header (or, for older clients, a
// Content-Range header carrying the same bytes= form) against a body of
// the given size. It returns nil when no range was requested and an
// Invalid error when the header is malformed or outside the body.
func parseRange(r *http.Request, size int64) (*byteRange, error) {
	const op errors.Op = "server.parseRange"
	header := r.Header.Get("Range")
	if header == "" {
		header = r.Header.Get("Content-Range")
	}
	if header == "" {
		return nil, nil
	}
	spec, ok := trimBytesPrefix(header)
	if !ok {
		return nil, errors.E(op, errors.Invalid, errors.Errorf("malformed range %q", header))
	}
	dash := strings.IndexByte(spec, '-')
	if dash <= 0 {
		return nil, errors.E(op, errors.Invalid, errors.Errorf("malformed range %q", header))
	}
	start, err := strconv.ParseInt(spec[:dash], 10, 64)
	if err != nil {
		return nil, errors.E(op, errors.Invalid, errors.Errorf("malformed range %q", header))
	}
	end := size - 1
	if rest := spec[dash+1:]; rest != "" {
		end, err = strconv.ParseInt(rest, 10, 64)
		if err != nil {
			return nil, errors.E(op, errors.Invalid, errors.Errorf("malformed range %q", header))
		}
	}
	if start < 0 || start > end || end >= size {
		return nil, errors.E(op, errors.Invalid, errors.Errorf("range [%d, %d] outside %d bytes", start, end, size))
	}
	return &byteRange{start: start, end: end}, nil
}

func trimBytesPrefix(header string) (string, bool) {
	const prefix = "bytes="
	if strings.HasPrefix(header, prefix) {
		return strings.TrimSpace(header[len(prefix):]), true
	}
	return "", false
}

// setBodyHeaders sets the headers HEAD and GET share, returning the
// status to use.
func setBodyHeaders(w http.ResponseWriter, res *dav.Resource, br *byteRange) int {
	w.Header().Set("Content-Type", res.MIME)
	w.Header().Set("Accept-Ranges", "bytes")
	if br == nil {
		w.Header().Set("Content-Length", strconv.FormatInt(res.Size, 10))
		return http.StatusOK
	}
	w.Header().Set("Content-Length", strconv.FormatInt(br.length(), 10))
	w.Header().Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", br.start, br.end, res.Size))
	return http.StatusPartialContent
}

func (s *Server) handleHead(w *responseWriter, r *http.Request, u *userState) error {
	const op errors.Op = "server.Head"
	name := reqPath(r)
	res, err := s.resolve(r.Context(), u, name)
	if err != nil {
		return errors.E(op, name, err)
	}
	if res == nil {
		empty(w, http.StatusNotFound)
		return nil
	}
	if res.IsDir() {
		empty(w, http.StatusForbidden)
		return nil
	}
	br, err := parseRange(r, res.Size)
	if err != nil {
		return errors.E(op, name, err)
	}
	w.WriteHeader(setBodyHeaders(w, res, br))
	return nil
}

func (s *Server) handleGet(w *responseWriter, r *http.Request, u *userState) error {
	const op errors.Op = "server.Get"
	ctx := r.Context()
	name := reqPath(r)
	res, err := s.resolve(ctx, u, name)
	if err != nil {
		return errors.E(op, name, err)
	}
	if res == nil {
		empty(w, http.StatusNotFound)
		return nil
	}
	if res.IsDir() {
		empty(w, http.StatusForbidden)
		return nil
	}
	if res.Tier == dav.TierVirtual || res.Size == 0 {
		w.Header().Set("Content-Type", res.MIME)
		empty(w, http.StatusOK)
		return nil
	}

	br, err := parseRange(r, res.Size)
	if err != nil {
		return errors.E(op, name, err)
	}
	status := setBodyHeaders(w, res, br)

	var src io.ReadCloser
	switch res.Tier {
	case dav.TierDisk:
		src, err = openScratchRange(s.scratchFile(res.TempDiskID), br)
	default:
		full := byteRange{start: 0, end: res.Size - 1}
		if br != nil {
			full = *br
		}
		src, err = u.backend.Download(ctx, resourceStats(res), full.start, full.end)
	}
	if err != nil {
		return errors.E(op, name, err)
	}
	defer src.Close()

	w.WriteHeader(status)
	if _, err := io.Copy(w, src); err != nil {
		// Headers are out; the only honest signal left is tearing
		// down the connection.
		log.Error.Printf("server: Get %s: stream: %v", name, err)
		panic(http.ErrAbortHandler)
	}
	return nil
}

// openScratchRange opens a scratch file, positioned and limited to the
// requested range.
func openScratchRange(name string, br *byteRange) (io.ReadCloser, error) {
	const op errors.Op = "server.openScratchRange"
	f, err := os.Open(name)
	if err != nil {
		return nil, errors.E(op, errors.IO, err)
	}
	if br == nil {
		return f, nil
	}
	if _, err := f.Seek(br.start, io.SeekStart); err != nil {
		f.Close()
		return nil, errors.E(op, errors.IO, err)
	}
	return &limitedFile{f: f, r: io.LimitReader(f, br.length())}, nil
}

type limitedFile struct {
	f *os.File
	r io.Reader
}

func (l *limitedFile) Read(p []byte) (int, error) { return l.r.Read(p) }
func (l *limitedFile) Close() error               { return l.f.Close() }
