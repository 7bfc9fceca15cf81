// Copyright 2025 The Filen Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package server

import (
	"net/http"

	"github.com/FilenCloudDienste/filen-webdav/errors"
	"github.com/FilenCloudDienste/filen-webdav/path"
)

// handleMkcol serves MKCOL. An existing directory at the target is not
// an error: the store de-duplicates name+parent collisions, so the
// lenient create-and-recheck reply is 201 either way.
func (s *Server) handleMkcol(w *responseWriter, r *http.Request, u *userState) error {
	const op errors.Op = "server.Mkcol"
	ctx := r.Context()
	name := reqPath(r)
	if path.IsRoot(name) {
		empty(w, http.StatusForbidden)
		return nil
	}

	parentRes, err := s.resolve(ctx, u, path.Dir(name))
	if err != nil {
		return errors.E(op, name, err)
	}
	if parentRes == nil || !parentRes.IsDir() {
		empty(w, http.StatusPreconditionFailed)
		return nil
	}

	if err := u.backend.Mkdir(ctx, name); err != nil {
		return errors.E(op, name, err)
	}
	res, err := s.resolve(ctx, u, name)
	if err != nil {
		return errors.E(op, name, err)
	}
	if res == nil || !res.IsDir() {
		empty(w, http.StatusNotFound)
		return nil
	}
	empty(w, http.StatusCreated)
	return nil
}
