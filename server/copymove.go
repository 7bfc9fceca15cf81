// Copyright 2025 The Filen Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package server

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/FilenCloudDienste/filen-webdav/dav"
	"github.com/FilenCloudDienste/filen-webdav/errors"
	"github.com/FilenCloudDienste/filen-webdav/path"
)

// handleCopyMove serves COPY and MOVE, which differ only in whether the
// source survives. The destination purge is permanent for virtual and
// disk sources but a trash move for backend sources: overlay entries
// are inherently ephemeral, while backend overwrites stay recoverable.
func (s *Server) handleCopyMove(w *responseWriter, r *http.Request, u *userState) error {
	op := errors.Op("server.Copy")
	move := r.Method == "MOVE"
	if move {
		op = "server.Move"
	}
	ctx := r.Context()
	src := reqPath(r)

	dst, status := s.parseDestination(r)
	if status != 0 {
		empty(w, status)
		return nil
	}

	var srcRes, dstRes *dav.Resource
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		srcRes, err = s.resolve(gctx, u, src)
		return err
	})
	g.Go(func() (err error) {
		dstRes, err = s.resolve(gctx, u, dst)
		return err
	})
	if err := g.Wait(); err != nil {
		return errors.E(op, src, err)
	}
	if srcRes == nil {
		empty(w, http.StatusNotFound)
		return nil
	}
	if src == dst {
		empty(w, http.StatusCreated)
		return nil
	}
	if strings.HasPrefix(string(dst), string(src)+"/") {
		// Into its own descendant.
		empty(w, http.StatusForbidden)
		return nil
	}
	if dstRes != nil && r.Header.Get("Overwrite") != "T" {
		empty(w, http.StatusForbidden)
		return nil
	}

	done := http.StatusCreated
	if dstRes != nil {
		// Permanence follows the source tier; see the comment above.
		permanent := srcRes.Tier != dav.TierBackend
		if err := s.purgeDestination(ctx, u, dstRes, permanent); err != nil {
			return errors.E(op, dst, err)
		}
		done = http.StatusNoContent
	}

	var err error
	switch srcRes.Tier {
	case dav.TierVirtual:
		err = transferVirtual(u, srcRes, dst, move)
	case dav.TierDisk:
		err = s.transferDisk(u, srcRes, dst, move)
	default:
		if move {
			err = u.backend.Rename(ctx, src, dst)
		} else {
			err = u.backend.Copy(ctx, src, dst)
		}
	}
	if err != nil {
		return errors.E(op, src, err)
	}
	empty(w, done)
	return nil
}

// parseDestination extracts and canonicalizes the Destination header.
// A non-zero status refuses the request: 400 for an absent, unparseable
// or foreign-host destination, 403 for a traversal attempt.
func (s *Server) parseDestination(r *http.Request) (dav.PathName, int) {
	header := r.Header.Get("Destination")
	if header == "" {
		return "", http.StatusBadRequest
	}
	du, err := url.Parse(header)
	if err != nil || du.Scheme == "" || du.Host == "" {
		return "", http.StatusBadRequest
	}
	if du.Hostname() != hostname(r.Host) {
		return "", http.StatusBadRequest
	}
	if path.IsRelative(du.Path) || path.IsRelative(strings.TrimPrefix(du.Path, "/")) {
		return "", http.StatusForbidden
	}
	return path.Clean(dav.PathName(du.Path)), 0
}

// hostname strips the port and any IPv6 brackets from a request Host
// header, matching what url.URL.Hostname yields for the Destination.
func hostname(host string) string {
	return (&url.URL{Host: host}).Hostname()
}

// purgeDestination removes an existing destination from its tier so
// the transfer lands on a clear path.
func (s *Server) purgeDestination(ctx context.Context, u *userState, res *dav.Resource, permanent bool) error {
	switch res.Tier {
	case dav.TierVirtual:
		u.deleteVirtual(res.Path)
	case dav.TierDisk:
		if err := removeWithRetry(s.scratchFile(res.TempDiskID)); err != nil {
			return err
		}
		u.deleteDisk(res.Path)
	default:
		if err := u.backend.Unlink(ctx, res.Path, permanent); err != nil {
			return err
		}
	}
	return nil
}

// transferVirtual re-homes a virtual placeholder. A move re-keys the
// entry; a copy duplicates the record under a fresh uuid.
func transferVirtual(u *userState, src *dav.Resource, dst dav.PathName, move bool) error {
	cp := *src
	cp.Path = dst
	cp.Name = path.Base(dst)
	cp.MIME = dav.MIMEByName(cp.Name)
	if move {
		u.deleteVirtual(src.Path)
	} else {
		cp.UUID = uuid.NewString()
	}
	u.setVirtual(dst, &cp)
	return nil
}

// transferDisk renames or duplicates the scratch file, deriving the
// destination's own tempDiskID so a later operation on the destination
// path finds it.
func (s *Server) transferDisk(u *userState, src *dav.Resource, dst dav.PathName, move bool) error {
	const op errors.Op = "server.transferDisk"
	id := tempDiskID(u.name, dst)
	cp := *src
	cp.Path = dst
	cp.Name = path.Base(dst)
	cp.MIME = dav.MIMEByName(cp.Name)
	cp.TempDiskID = id
	if move {
		if err := os.Rename(s.scratchFile(src.TempDiskID), s.scratchFile(id)); err != nil {
			return errors.E(op, dst, errors.IO, err)
		}
		u.deleteDisk(src.Path)
	} else {
		cp.UUID = uuid.NewString()
		if err := copyFile(s.scratchFile(src.TempDiskID), s.scratchFile(id)); err != nil {
			return errors.E(op, dst, errors.IO, err)
		}
	}
	u.setDisk(dst, &cp)
	return nil
}

func copyFile(from, to string) error {
	src, err := os.Open(from)
	if err != nil {
		return err
	}
	defer src.Close()
	dst, err := os.Create(to)
	if err != nil {
		return err
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		os.Remove(to)
		return err
	}
	return dst.Close()
}
