// Copyright 2025 The Filen Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package server

import (
	"context"
	"net/http"

	"github.com/FilenCloudDienste/filen-webdav/dav"
	"github.com/FilenCloudDienste/filen-webdav/errors"
	"github.com/FilenCloudDienste/filen-webdav/path"
)

// reqPath canonicalizes the request URL: net/http has already
// percent-decoded it, so only normalization remains.
func reqPath(r *http.Request) dav.PathName {
	return path.Clean(dav.PathName(r.URL.Path))
}

// resolve maps a path to the resource presently serving it, consulting
// the tiers in overlay order: virtual, disk, backend. A path in no tier
// resolves to nil with no error; the resolver never mutates the tier
// maps.
func (s *Server) resolve(ctx context.Context, u *userState, name dav.PathName) (*dav.Resource, error) {
	if res := u.virtualGet(name); res != nil {
		return res, nil
	}
	if res := u.diskGet(name); res != nil {
		return res, nil
	}
	st, err := u.backend.Stat(ctx, name)
	if err != nil {
		if errors.Is(errors.NotExist, err) {
			return nil, nil
		}
		return nil, err
	}
	return st.Resource(name), nil
}

// resourceStats reconstructs the backend metadata record from a
// backend-tier resource, for the download and metadata-edit calls.
func resourceStats(res *dav.Resource) *dav.Stats {
	return &dav.Stats{
		UUID:     res.UUID,
		Kind:     res.Kind,
		Name:     res.Name,
		Size:     res.Size,
		Chunks:   res.Chunks,
		Modified: res.Modified,
		Created:  res.Created,
		MIME:     res.MIME,
		Key:      res.Key,
		Bucket:   res.Bucket,
		Region:   res.Region,
		Version:  res.Version,
		Hash:     res.Hash,
	}
}
