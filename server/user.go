// Copyright 2025 The Filen Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package server

import (
	"context"
	"sync"
	"time"

	"github.com/FilenCloudDienste/filen-webdav/cache"
	"github.com/FilenCloudDienste/filen-webdav/dav"
)

// statFSLifetime bounds how stale the quota figures served by PROPFIND
// may be.
const statFSLifetime = time.Minute

// userState holds everything the gateway keeps per authenticated user:
// the backend session, the virtual and disk tier maps, the per-path
// mutex table, and the statfs cache.
type userState struct {
	name    dav.UserName
	backend dav.Backend

	// authedPassword is the raw credential presented at login, kept for
	// the fast byte-equal re-auth comparison in proxy mode. It is never
	// logged.
	authedPassword string

	mu      sync.Mutex
	virtual map[dav.PathName]*dav.Resource
	disk    map[dav.PathName]*dav.Resource
	pathMu  map[dav.PathName]*sync.Mutex

	statfs *cache.TTL

	// cancelPwd releases the passwordChanged subscription, proxy mode
	// only.
	cancelPwd func()

	closeOnce sync.Once
}

func newUserState(name dav.UserName, backend dav.Backend, authedPassword string) *userState {
	return &userState{
		name:           name,
		backend:        backend,
		authedPassword: authedPassword,
		virtual:        make(map[dav.PathName]*dav.Resource),
		disk:           make(map[dav.PathName]*dav.Resource),
		pathMu:         make(map[dav.PathName]*sync.Mutex),
		statfs:         cache.NewTTL(statFSLifetime),
	}
}

func (u *userState) virtualGet(p dav.PathName) *dav.Resource {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.virtual[p]
}

func (u *userState) diskGet(p dav.PathName) *dav.Resource {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.disk[p]
}

// setVirtual stores a virtual resource at p. The disk entry for p is
// dropped, keeping the one-tier-per-path invariant.
func (u *userState) setVirtual(p dav.PathName, r *dav.Resource) {
	u.mu.Lock()
	u.virtual[p] = r
	delete(u.disk, p)
	u.mu.Unlock()
}

// setDisk stores a disk resource at p and drops any virtual entry.
func (u *userState) setDisk(p dav.PathName, r *dav.Resource) {
	u.mu.Lock()
	u.disk[p] = r
	delete(u.virtual, p)
	u.mu.Unlock()
}

func (u *userState) deleteVirtual(p dav.PathName) {
	u.mu.Lock()
	delete(u.virtual, p)
	u.mu.Unlock()
}

func (u *userState) deleteDisk(p dav.PathName) {
	u.mu.Lock()
	delete(u.disk, p)
	u.mu.Unlock()
}

// purge drops p from both overlay tiers.
func (u *userState) purge(p dav.PathName) {
	u.mu.Lock()
	delete(u.virtual, p)
	delete(u.disk, p)
	u.mu.Unlock()
}

// overlayChildren returns the virtual and disk resources whose parent
// is dir, for PROPFIND listings.
func (u *userState) overlayChildren(dir dav.PathName, parentOf func(dav.PathName) dav.PathName) []*dav.Resource {
	u.mu.Lock()
	defer u.mu.Unlock()
	var children []*dav.Resource
	for p, r := range u.virtual {
		if parentOf(p) == dir && p != dir {
			children = append(children, r)
		}
	}
	for p, r := range u.disk {
		if parentOf(p) == dir && p != dir {
			children = append(children, r)
		}
	}
	return children
}

// pathLock returns the mutex for p, creating it on first use. The table
// is an extension point; the current handlers resolve fresh instead of
// locking.
func (u *userState) pathLock(p dav.PathName) *sync.Mutex {
	u.mu.Lock()
	defer u.mu.Unlock()
	m, ok := u.pathMu[p]
	if !ok {
		m = new(sync.Mutex)
		u.pathMu[p] = m
	}
	return m
}

// statFS returns the account capacity, cached for a minute.
func (u *userState) statFS(ctx context.Context) (dav.StatFS, error) {
	const key = "statfs"
	if v, ok := u.statfs.Get(key); ok {
		return v.(dav.StatFS), nil
	}
	fs, err := u.backend.StatFS(ctx)
	if err != nil {
		return dav.StatFS{}, err
	}
	u.statfs.Add(key, fs)
	return fs, nil
}

// close releases the session. Safe to call more than once; eviction and
// passwordChanged may race.
func (u *userState) close() {
	u.closeOnce.Do(func() {
		if u.cancelPwd != nil {
			u.cancelPwd()
		}
		u.backend.Close()
	})
}

// userTable holds the per-user states. Single-tenant mode pins one
// entry; proxy mode fills a bounded LRU whose evictions close the
// evicted session.
type userTable struct {
	single *userState // single-tenant entry, nil in proxy mode

	mu       sync.Mutex
	sessions *cache.LRU // dav.UserName -> *userState
	loginMu  map[dav.UserName]*sync.Mutex
}

func newUserTable(max int) *userTable {
	return &userTable{
		sessions: cache.NewLRU(max),
		loginMu:  make(map[dav.UserName]*sync.Mutex),
	}
}

func (t *userTable) get(name dav.UserName) *userState {
	if t.single != nil {
		return t.single
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if v, ok := t.sessions.Get(name); ok {
		return v.(*userState)
	}
	return nil
}

func (t *userTable) add(u *userState) {
	t.mu.Lock()
	_, evicted := t.sessions.Add(u.name, u)
	t.mu.Unlock()
	if evicted != nil {
		evicted.(*userState).close()
	}
}

func (t *userTable) remove(name dav.UserName) {
	t.mu.Lock()
	v, ok := t.sessions.Remove(name)
	t.mu.Unlock()
	if ok {
		v.(*userState).close()
	}
}

// lockLogin serializes first-login for one username.
func (t *userTable) lockLogin(name dav.UserName) *sync.Mutex {
	t.mu.Lock()
	defer t.mu.Unlock()
	m, ok := t.loginMu[name]
	if !ok {
		m = new(sync.Mutex)
		t.loginMu[name] = m
	}
	return m
}
