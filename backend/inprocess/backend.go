// Copyright 2025 The Filen Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package inprocess implements a simple, non-persistent, in-memory
// store session. It backs the gateway's tests and the self-contained
// demo mode of the server binary.
package inprocess

// The implementation is a flat map from path to node, guarded by one
// RWMutex. Directory structure is implied by path prefixes; a
// directory's children are found by scanning. Simple but slow safety,
// which is fine for a double.

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/hex"
	"io"
	"io/ioutil"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/FilenCloudDienste/filen-webdav/dav"
	"github.com/FilenCloudDienste/filen-webdav/errors"
	"github.com/FilenCloudDienste/filen-webdav/path"
)

// Synthetic placement metadata, so backend resources round-trip with
// every field populated the way the real store populates them.
const (
	bucket = "filen-inprocess"
	region = "local"

	defaultCapacity = 100 << 30
)

// Service implements dav.Backend in memory.
type Service struct {
	mu    sync.RWMutex
	nodes map[dav.PathName]*node
	index map[dav.PathName]dav.Stats // metadata overlay primed by PutItem
	used  int64
	max   int64
	trash []Trashed

	pwdMu   sync.Mutex
	pwdSubs map[int]func()
	pwdNext int
}

type node struct {
	stats dav.Stats
	data  []byte
}

// Trashed records one Unlink call, for tests asserting the permanence
// policy.
type Trashed struct {
	Path      dav.PathName
	Permanent bool
}

var _ dav.Backend = (*Service)(nil)

// New returns an empty session holding only the root directory.
func New() *Service {
	s := &Service{
		nodes:   make(map[dav.PathName]*node),
		index:   make(map[dav.PathName]dav.Stats),
		max:     defaultCapacity,
		pwdSubs: make(map[int]func()),
	}
	s.nodes[dav.Root] = &node{stats: newDirStats("/")}
	return s
}

// SetCapacity changes the account capacity reported by StatFS.
func (s *Service) SetCapacity(max int64) {
	s.mu.Lock()
	s.max = max
	s.mu.Unlock()
}

// Trash returns every Unlink recorded so far.
func (s *Service) Trash() []Trashed {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Trashed(nil), s.trash...)
}

// ChangePassword simulates a password change on another device: every
// registered subscriber fires once and is dropped.
func (s *Service) ChangePassword() {
	s.pwdMu.Lock()
	subs := s.pwdSubs
	s.pwdSubs = make(map[int]func())
	s.pwdMu.Unlock()
	for _, fn := range subs {
		fn()
	}
}

func newDirStats(name string) dav.Stats {
	now := time.Now()
	return dav.Stats{
		UUID:     uuid.NewString(),
		Kind:     dav.Directory,
		Name:     name,
		Modified: now,
		Created:  now,
	}
}

func newFileStats(name string, size int64) dav.Stats {
	now := time.Now()
	key := make([]byte, 32)
	rand.Read(key)
	chunks := (size + dav.UploadChunkSize - 1) / dav.UploadChunkSize
	if chunks < 1 {
		chunks = 1
	}
	return dav.Stats{
		UUID:     uuid.NewString(),
		Kind:     dav.File,
		Name:     name,
		Size:     size,
		Chunks:   chunks,
		Modified: now,
		Created:  now,
		MIME:     dav.MIMEByName(name),
		Key:      hex.EncodeToString(key),
		Bucket:   bucket,
		Region:   region,
		Version:  dav.VirtualFileVersion,
	}
}

// Stat implements dav.Backend.
func (s *Service) Stat(ctx context.Context, name dav.PathName) (*dav.Stats, error) {
	const op errors.Op = "backend/inprocess.Stat"
	name = path.Clean(name)
	s.mu.RLock()
	defer s.mu.RUnlock()
	if st, ok := s.index[name]; ok {
		return &st, nil
	}
	n, ok := s.nodes[name]
	if !ok {
		return nil, errors.E(op, name, errors.NotExist)
	}
	st := n.stats
	return &st, nil
}

// ReadDir implements dav.Backend.
func (s *Service) ReadDir(ctx context.Context, name dav.PathName) ([]string, error) {
	const op errors.Op = "backend/inprocess.ReadDir"
	name = path.Clean(name)
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, ok := s.nodes[name]
	if !ok {
		return nil, errors.E(op, name, errors.NotExist)
	}
	if n.stats.Kind != dav.Directory {
		return nil, errors.E(op, name, errors.NotDir)
	}
	var names []string
	for p := range s.nodes {
		if p != name && path.Dir(p) == name {
			names = append(names, path.Base(p))
		}
	}
	sort.Strings(names)
	return names, nil
}

// Mkdir implements dav.Backend. Intermediate directories are created as
// needed; an existing directory at name is not an error, matching the
// store's name+parent de-duplication.
func (s *Service) Mkdir(ctx context.Context, name dav.PathName) error {
	const op errors.Op = "backend/inprocess.Mkdir"
	name = path.Clean(name)
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mkdirLocked(op, name)
}

func (s *Service) mkdirLocked(op errors.Op, name dav.PathName) error {
	if n, ok := s.nodes[name]; ok {
		if n.stats.Kind != dav.Directory {
			return errors.E(op, name, errors.NotDir)
		}
		return nil
	}
	if !path.IsRoot(name) {
		if err := s.mkdirLocked(op, path.Dir(name)); err != nil {
			return err
		}
	}
	s.nodes[name] = &node{stats: newDirStats(path.Base(name))}
	return nil
}

// Rename implements dav.Backend.
func (s *Service) Rename(ctx context.Context, from, to dav.PathName) error {
	const op errors.Op = "backend/inprocess.Rename"
	return s.transfer(op, from, to, true)
}

// Copy implements dav.Backend.
func (s *Service) Copy(ctx context.Context, from, to dav.PathName) error {
	const op errors.Op = "backend/inprocess.Copy"
	return s.transfer(op, from, to, false)
}

func (s *Service) transfer(op errors.Op, from, to dav.PathName, move bool) error {
	from, to = path.Clean(from), path.Clean(to)
	s.mu.Lock()
	defer s.mu.Unlock()
	src, ok := s.nodes[from]
	if !ok {
		return errors.E(op, from, errors.NotExist)
	}
	if _, ok := s.nodes[to]; ok {
		return errors.E(op, to, errors.Exist)
	}
	parent, ok := s.nodes[path.Dir(to)]
	if !ok || parent.stats.Kind != dav.Directory {
		return errors.E(op, path.Dir(to), errors.NotDir)
	}

	// Collect the subtree first; the map cannot be mutated mid-scan.
	prefix := string(from) + "/"
	moved := map[dav.PathName]*node{to: src}
	for p, n := range s.nodes {
		if strings.HasPrefix(string(p), prefix) {
			moved[to+dav.PathName(strings.TrimPrefix(string(p), string(from)))] = n
		}
	}
	for dst, n := range moved {
		nn := &node{stats: n.stats, data: n.data}
		if !move {
			nn.stats.UUID = uuid.NewString()
			s.used += int64(len(nn.data))
		}
		nn.stats.Name = path.Base(dst)
		s.nodes[dst] = nn
		delete(s.index, dst)
	}
	if move {
		delete(s.nodes, from)
		delete(s.index, from)
		for p := range s.nodes {
			if strings.HasPrefix(string(p), prefix) {
				delete(s.nodes, p)
				delete(s.index, p)
			}
		}
	}
	return nil
}

// Unlink implements dav.Backend. The permanence flag is recorded but
// otherwise both flavors remove the subtree; the double has no trash
// folder to move entries into.
func (s *Service) Unlink(ctx context.Context, name dav.PathName, permanent bool) error {
	const op errors.Op = "backend/inprocess.Unlink"
	name = path.Clean(name)
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.nodes[name]
	if !ok {
		return errors.E(op, name, errors.NotExist)
	}
	if path.IsRoot(name) {
		return errors.E(op, name, errors.Permission, errors.Str("cannot remove root"))
	}
	s.trash = append(s.trash, Trashed{Path: name, Permanent: permanent})
	s.used -= int64(len(n.data))
	delete(s.nodes, name)
	delete(s.index, name)
	prefix := string(name) + "/"
	for p, c := range s.nodes {
		if strings.HasPrefix(string(p), prefix) {
			s.used -= int64(len(c.data))
			delete(s.nodes, p)
			delete(s.index, p)
		}
	}
	return nil
}

// StatFS implements dav.Backend.
func (s *Service) StatFS(ctx context.Context) (dav.StatFS, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return dav.StatFS{Used: s.used, Max: s.max}, nil
}

// Upload implements dav.Backend.
func (s *Service) Upload(ctx context.Context, src io.Reader, parentUUID, name string) (*dav.Stats, error) {
	const op errors.Op = "backend/inprocess.Upload"
	data, err := ioutil.ReadAll(src)
	if err != nil {
		return nil, errors.E(op, errors.IO, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, errors.E(op, errors.IO, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	parentPath, ok := s.findByUUIDLocked(parentUUID)
	if !ok {
		return nil, errors.E(op, errors.NotExist, errors.Errorf("no directory with uuid %s", parentUUID))
	}
	if s.nodes[parentPath].stats.Kind != dav.Directory {
		return nil, errors.E(op, parentPath, errors.NotDir)
	}
	target := path.Join(parentPath, name)
	if old, ok := s.nodes[target]; ok {
		// Last writer wins.
		s.used -= int64(len(old.data))
	}
	st := newFileStats(name, int64(len(data)))
	s.nodes[target] = &node{stats: st, data: data}
	delete(s.index, target)
	s.used += int64(len(data))
	return &st, nil
}

// Download implements dav.Backend. The range is inclusive on both ends.
func (s *Service) Download(ctx context.Context, st *dav.Stats, start, end int64) (io.ReadCloser, error) {
	const op errors.Op = "backend/inprocess.Download"
	s.mu.RLock()
	defer s.mu.RUnlock()
	name, ok := s.findByUUIDLocked(st.UUID)
	if !ok {
		return nil, errors.E(op, errors.NotExist, errors.Errorf("no file with uuid %s", st.UUID))
	}
	n := s.nodes[name]
	if n.stats.Kind != dav.File {
		return nil, errors.E(op, name, errors.IsDir)
	}
	if start < 0 || end < start || end >= int64(len(n.data)) {
		return nil, errors.E(op, name, errors.Invalid, errors.Errorf("range [%d, %d] outside %d bytes", start, end, len(n.data)))
	}
	return &ctxReader{ctx: ctx, r: bytes.NewReader(n.data[start : end+1])}, nil
}

// EditFileMetadata implements dav.Backend.
func (s *Service) EditFileMetadata(ctx context.Context, id string, meta dav.FileMetadata) error {
	const op errors.Op = "backend/inprocess.EditFileMetadata"
	s.mu.Lock()
	defer s.mu.Unlock()
	name, ok := s.findByUUIDLocked(id)
	if !ok {
		return errors.E(op, errors.NotExist, errors.Errorf("no file with uuid %s", id))
	}
	n := s.nodes[name]
	if n.stats.Kind != dav.File {
		return errors.E(op, name, errors.IsDir)
	}
	n.stats.Name = meta.Name
	n.stats.Key = meta.Key
	n.stats.Modified = meta.Modified
	n.stats.Created = meta.Created
	n.stats.Hash = meta.Hash
	n.stats.MIME = meta.MIME
	return nil
}

// DropItem implements dav.Backend.
func (s *Service) DropItem(name dav.PathName) {
	s.mu.Lock()
	delete(s.index, path.Clean(name))
	s.mu.Unlock()
}

// PutItem implements dav.Backend.
func (s *Service) PutItem(name dav.PathName, st *dav.Stats) {
	s.mu.Lock()
	s.index[path.Clean(name)] = *st
	s.mu.Unlock()
}

// OnPasswordChanged implements dav.Backend.
func (s *Service) OnPasswordChanged(fn func()) (cancel func()) {
	s.pwdMu.Lock()
	id := s.pwdNext
	s.pwdNext++
	s.pwdSubs[id] = fn
	s.pwdMu.Unlock()
	return func() {
		s.pwdMu.Lock()
		delete(s.pwdSubs, id)
		s.pwdMu.Unlock()
	}
}

// Close implements dav.Backend.
func (s *Service) Close() error {
	s.pwdMu.Lock()
	s.pwdSubs = make(map[int]func())
	s.pwdMu.Unlock()
	return nil
}

func (s *Service) findByUUIDLocked(id string) (dav.PathName, bool) {
	for p, n := range s.nodes {
		if n.stats.UUID == id {
			return p, true
		}
	}
	return "", false
}

// ctxReader fails reads once the request context ends, so an abandoned
// download stops promptly.
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}

func (c *ctxReader) Close() error { return nil }
