// Copyright 2025 The Filen Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package server

import (
	"net/http"

	"github.com/FilenCloudDienste/filen-webdav/dav"
	"github.com/FilenCloudDienste/filen-webdav/errors"
)

// handleDelete serves DELETE. Backend deletions are soft: the entity
// moves to the account trash. Overlay tiers have nothing to keep, so
// their records (and any scratch file) are destroyed outright.
func (s *Server) handleDelete(w *responseWriter, r *http.Request, u *userState) error {
	const op errors.Op = "server.Delete"
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

	switch res.Tier {
	case dav.TierVirtual:
		u.deleteVirtual(name)
	case dav.TierDisk:
		if err := removeWithRetry(s.scratchFile(res.TempDiskID)); err != nil {
			return errors.E(op, name, err)
		}
		u.deleteDisk(name)
	default:
		if err := u.backend.Unlink(ctx, name, false); err != nil {
			return errors.E(op, name, err)
		}
	}
	empty(w, http.StatusOK)
	return nil
}
