// Copyright 2025 The Filen Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package server

import (
	"encoding/hex"
	"os"
	goPath "path"
	"path/filepath"
	"time"

	"lukechampine.com/blake3"

	"github.com/FilenCloudDienste/filen-webdav/dav"
	"github.com/FilenCloudDienste/filen-webdav/errors"
	"github.com/FilenCloudDienste/filen-webdav/path"
)

// Scratch files on Windows network shares can stay locked by a virus
// scanner or the Explorer preview pane well after the handle is
// released, so removal retries for a long time.
var (
	rmRetryDeadline = 10 * time.Minute
	rmRetryInterval = 250 * time.Millisecond
)

// scratchMatch reports whether a file name matches one of the
// configured sidecar patterns, so its bytes stay on local disk and
// never reach the store.
func (s *Server) scratchMatch(name string) bool {
	for _, pattern := range s.config.TempFilesToStoreOnDisk {
		if ok, err := goPath.Match(pattern, name); err == nil && ok {
			return true
		}
	}
	return false
}

// tempDiskID derives the scratch file name for a user's path: a fast
// hash so renames need not rewrite content-addressed names, sanitized
// for the local filesystem.
func tempDiskID(user dav.UserName, name dav.PathName) string {
	sum := blake3.Sum256([]byte(string(user) + "_" + string(name)))
	return path.Sanitize(hex.EncodeToString(sum[:]))
}

// scratchFile returns the absolute location of a scratch file.
func (s *Server) scratchFile(id string) string {
	return filepath.Join(s.scratchDir, id)
}

// removeWithRetry removes name, retrying transient failures until the
// deadline. A missing file is success.
func removeWithRetry(name string) error {
	const op errors.Op = "server.removeWithRetry"
	deadline := time.Now().Add(rmRetryDeadline)
	for {
		err := os.Remove(name)
		if err == nil || os.IsNotExist(err) {
			return nil
		}
		if time.Now().After(deadline) {
			return errors.E(op, errors.IO, err)
		}
		time.Sleep(rmRetryInterval)
	}
}
