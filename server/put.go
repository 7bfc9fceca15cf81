// Copyright 2025 The Filen Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package server

import (
	"io"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/FilenCloudDienste/filen-webdav/dav"
	"github.com/FilenCloudDienste/filen-webdav/errors"
	"github.com/FilenCloudDienste/filen-webdav/log"
	"github.com/FilenCloudDienste/filen-webdav/path"
)

// handlePut serves PUT and its POST alias. There is no path-level
// locking: concurrent writes to one path are last-writer-wins at the
// store.
func (s *Server) handlePut(w *responseWriter, r *http.Request, u *userState) error {
	const op errors.Op = "server.Put"
	ctx := r.Context()
	name := reqPath(r)
	if path.IsRoot(name) {
		empty(w, http.StatusForbidden)
		return nil
	}
	parent := path.Dir(name)
	base := path.Base(name)

	// Writing over a directory is forbidden.
	if st, err := u.backend.Stat(ctx, name); err == nil {
		if st.Kind == dav.Directory {
			empty(w, http.StatusForbidden)
			return nil
		}
	} else if !errors.Is(errors.NotExist, err) {
		return errors.E(op, name, err)
	}

	// The parent must exist and be a directory. Mkdir is idempotent,
	// so create-and-restat covers both the fresh and existing cases.
	if err := u.backend.Mkdir(ctx, parent); err != nil {
		return errors.E(op, parent, errors.Precondition, err)
	}
	pst, err := u.backend.Stat(ctx, parent)
	if err != nil || pst.Kind != dav.Directory {
		empty(w, http.StatusPreconditionFailed)
		return nil
	}

	body, bodyEmpty, err := frameBody(r, s.firstByte)
	if err != nil {
		return errors.E(op, name, err)
	}

	// A bodyless PUT is a writability probe: materialize a virtual
	// placeholder so the probe's follow-up PROPFIND or GET sees the
	// file instead of a 404.
	if bodyEmpty {
		u.setVirtual(name, virtualResource(name, base))
		empty(w, http.StatusCreated)
		return nil
	}

	if s.scratchMatch(base) {
		return s.putScratch(w, u, name, base, body)
	}

	st, err := u.backend.Upload(ctx, body, pst.UUID, base)
	if err != nil {
		u.purge(name)
		return errors.E(op, name, errors.Internal, err)
	}
	// Prime the SDK's metadata index so an immediate re-stat sees the
	// new file without a round trip.
	u.backend.DropItem(name)
	u.backend.PutItem(name, st)
	empty(w, http.StatusCreated)
	u.purge(name)
	return nil
}

// putScratch streams a sidecar file to local disk. The store never
// sees these bytes.
func (s *Server) putScratch(w *responseWriter, u *userState, name dav.PathName, base string, body io.Reader) error {
	const op errors.Op = "server.putScratch"
	id := tempDiskID(u.name, name)
	target := s.scratchFile(id)
	if err := removeWithRetry(target); err != nil {
		return errors.E(op, name, err)
	}
	f, err := os.Create(target)
	if err != nil {
		return errors.E(op, name, errors.IO, err)
	}
	size, err := io.Copy(f, body)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(target)
		u.purge(name)
		return errors.E(op, name, errors.IO, err)
	}
	u.setDisk(name, diskResource(name, base, size, id))
	log.Debug.Printf("server: stored %d scratch bytes for %s", size, name)
	empty(w, http.StatusCreated)
	return nil
}

// virtualResource synthesizes the zero-byte placeholder for an empty
// PUT.
func virtualResource(name dav.PathName, base string) *dav.Resource {
	now := time.Now()
	return &dav.Resource{
		Tier:     dav.TierVirtual,
		Kind:     dav.File,
		UUID:     uuid.NewString(),
		Path:     name,
		Name:     base,
		MIME:     dav.MIMEByName(base),
		Size:     0,
		Chunks:   1,
		Version:  dav.VirtualFileVersion,
		Modified: now,
		Created:  now,
	}
}

// diskResource describes a stored scratch file.
func diskResource(name dav.PathName, base string, size int64, tempDiskID string) *dav.Resource {
	now := time.Now()
	chunks := (size + dav.UploadChunkSize - 1) / dav.UploadChunkSize
	if chunks < 1 {
		chunks = 1
	}
	return &dav.Resource{
		Tier:       dav.TierDisk,
		Kind:       dav.File,
		UUID:       uuid.NewString(),
		Path:       name,
		Name:       base,
		MIME:       dav.MIMEByName(base),
		Size:       size,
		Chunks:     chunks,
		Modified:   now,
		Created:    now,
		TempDiskID: tempDiskID,
	}
}
