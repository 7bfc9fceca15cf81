// Copyright 2025 The Filen Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package server

import (
	"net/http"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/FilenCloudDienste/filen-webdav/dav"
	"github.com/FilenCloudDienste/filen-webdav/errors"
	"github.com/FilenCloudDienste/filen-webdav/log"
	"github.com/FilenCloudDienste/filen-webdav/path"
)

// How many child stats a directory listing issues at once.
const propfindStatConcurrency = 8

// handlePropfind serves PROPFIND. The request body is accepted but not
// interpreted: the reply always carries the full property set, which
// every known client accepts. Depth infinity is served as depth 1;
// recursing an entire remote tree for one request is not a defensible
// trade.
func (s *Server) handlePropfind(w *responseWriter, r *http.Request, u *userState) error {
	const op errors.Op = "server.Propfind"
	ctx := r.Context()
	name := reqPath(r)
	if _, err := readXMLBody(r); err != nil {
		return errors.E(op, name, err)
	}

	res, err := s.resolve(ctx, u, name)
	if err != nil {
		return errors.E(op, name, err)
	}
	if res == nil {
		return writeNotFoundMultistatus(w, path.Escape(name))
	}

	fs, err := u.statFS(ctx)
	if err != nil {
		// Serve the listing anyway; quota is advisory.
		log.Error.Printf("server: Propfind %s: statfs: %v", name, err)
		fs = dav.StatFS{}
	}

	list := []*dav.Resource{res}
	if res.IsDir() && r.Header.Get("Depth") != "0" {
		children, err := s.listChildren(r, u, res.Path)
		if err != nil {
			return errors.E(op, name, err)
		}
		list = append(list, children...)
	}
	return writeMultistatus(w, list, fs)
}

// listChildren reads a directory from the backend, stats the children
// in parallel, and appends the overlay-tier entries parented here.
func (s *Server) listChildren(r *http.Request, u *userState, dir dav.PathName) ([]*dav.Resource, error) {
	const op errors.Op = "server.listChildren"
	names, err := u.backend.ReadDir(r.Context(), dir)
	if err != nil {
		if errors.Is(errors.NotExist, err) {
			return nil, nil
		}
		return nil, errors.E(op, dir, err)
	}

	// Overlay entries shadow same-path backend children; an empty PUT
	// over an existing file must list once, as the virtual record.
	shadowed := make(map[dav.PathName]bool)
	overlay := u.overlayChildren(dir, path.Dir)
	for _, res := range overlay {
		shadowed[res.Path] = true
	}

	children := make([]*dav.Resource, len(names))
	g, ctx := errgroup.WithContext(r.Context())
	g.SetLimit(propfindStatConcurrency)
	var mu sync.Mutex
	for i, child := range names {
		i, childPath := i, path.Join(dir, child)
		if shadowed[childPath] {
			continue
		}
		g.Go(func() error {
			st, err := u.backend.Stat(ctx, childPath)
			if err != nil {
				// A sibling deleted mid-listing is not an error.
				if errors.Is(errors.NotExist, err) {
					return nil
				}
				return err
			}
			mu.Lock()
			children[i] = st.Resource(childPath)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, errors.E(op, dir, err)
	}

	list := make([]*dav.Resource, 0, len(children)+len(overlay))
	for _, res := range children {
		if res != nil {
			list = append(list, res)
		}
	}
	return append(list, overlay...), nil
}
