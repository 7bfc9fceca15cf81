// Copyright 2025 The Filen Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package dav

import (
	"context"
	"io"
	"mime"
	gopath "path"
	"strings"
	"time"
)

// A UserName identifies an authenticated user of the gateway. In proxy
// mode it is the account email; in single-tenant mode it is whatever
// name the administrator configured.
type UserName string

// A PathName is an absolute POSIX path inside a user's drive, with no
// trailing slash except for the root, which is "/".
// Example: /photos/2025/beach.jpg
type PathName string

// Root is the path name of the drive root.
const Root PathName = "/"

// Kind discriminates files from directories.
type Kind uint8

const (
	// File is a regular file.
	File Kind = iota

	// Directory is a collection.
	Directory
)

func (k Kind) String() string {
	switch k {
	case File:
		return "file"
	case Directory:
		return "directory"
	}
	return "unknown"
}

// Tier identifies where a Resource's bytes and metadata actually live.
type Tier uint8

const (
	// TierBackend marks the canonical resource in the remote store.
	TierBackend Tier = iota

	// TierVirtual marks a zero-byte in-memory placeholder created by an
	// empty PUT. It is promoted to the backend tier by the next
	// non-empty PUT on the same path and is never uploaded itself.
	TierVirtual

	// TierDisk marks a plaintext scratch file on local disk, used for
	// paths matching the configured sidecar patterns. It is never
	// promoted to the backend tier.
	TierDisk
)

func (t Tier) String() string {
	switch t {
	case TierBackend:
		return "backend"
	case TierVirtual:
		return "virtual"
	case TierDisk:
		return "disk"
	}
	return "unknown"
}

// UploadChunkSize is the fixed size in bytes of the chunks the store
// splits uploads into. The chunk count reported for a file is always
// ceil(size/UploadChunkSize), with a minimum of one.
const UploadChunkSize = 1024 * 1024

// VirtualFileVersion is the encryption version recorded on synthesized
// virtual placeholders so they round-trip through metadata edits like a
// freshly uploaded file would.
const VirtualFileVersion = 2

// A Resource is the server's representation of a single entity at a
// single path, tagged by the tier it was drawn from. The common header
// is filled for every tier; Bucket, Region, Version and Key are set only
// for backend resources, and TempDiskID only for disk resources.
type Resource struct {
	Tier Tier
	Kind Kind

	// UUID is the store's opaque identifier for the entity. Virtual and
	// disk resources get a freshly generated one.
	UUID string

	Path PathName
	Name string

	// MIME is the content type derived from the name; empty means
	// application/octet-stream.
	MIME string

	Size   int64
	Chunks int64

	Modified time.Time
	Created  time.Time

	// Hash is the store's plaintext digest, when known.
	Hash string

	// Backend tier only.
	Bucket  string
	Region  string
	Version int
	Key     string

	// Disk tier only: the sanitized scratch file name.
	TempDiskID string
}

// IsDir reports whether the resource is a collection.
func (r *Resource) IsDir() bool { return r.Kind == Directory }

// URL returns the href form of the resource path: the path itself for
// files, the path with a trailing slash for directories, and "/" for
// the root.
func (r *Resource) URL() string {
	if r.Kind == Directory && r.Path != Root {
		return string(r.Path) + "/"
	}
	return string(r.Path)
}

// Stats is the metadata record the store returns for one entity.
type Stats struct {
	UUID     string
	Kind     Kind
	Name     string
	Size     int64
	Chunks   int64
	Modified time.Time
	Created  time.Time
	MIME     string

	// Key is the per-file content key. Opaque to the gateway.
	Key     string
	Bucket  string
	Region  string
	Version int
	Hash    string
}

// Resource converts the record into a backend-tier Resource at path.
func (st *Stats) Resource(path PathName) *Resource {
	m := st.MIME
	if m == "" {
		m = MIMEByName(st.Name)
	}
	return &Resource{
		Tier:     TierBackend,
		Kind:     st.Kind,
		UUID:     st.UUID,
		Path:     path,
		Name:     st.Name,
		MIME:     m,
		Size:     st.Size,
		Chunks:   st.Chunks,
		Modified: st.Modified,
		Created:  st.Created,
		Hash:     st.Hash,
		Bucket:   st.Bucket,
		Region:   st.Region,
		Version:  st.Version,
		Key:      st.Key,
	}
}

// StatFS is the aggregated capacity of one account, in bytes.
type StatFS struct {
	Used int64
	Max  int64
}

// FileMetadata is the mutable portion of a file's metadata, passed to
// Backend.EditFileMetadata whole. Callers populate every field from the
// current record and overwrite only what changed.
type FileMetadata struct {
	Name     string
	Key      string
	Modified time.Time
	Created  time.Time
	Hash     string
	Size     int64
	MIME     string
}

// Backend is one authenticated session with the encrypted store: the
// gateway's entire view of the SDK. Implementations perform all
// encryption and decryption internally; paths and readers crossing this
// interface carry plaintext names and plaintext bytes.
//
// Methods taking a Context must honor cancellation promptly, in
// particular Download readers must release their upstream fetches when
// the context ends.
type Backend interface {
	// Stat returns the metadata record for path, or an error of kind
	// NotExist when nothing lives there.
	Stat(ctx context.Context, path PathName) (*Stats, error)

	// ReadDir returns the child names of the directory at path.
	ReadDir(ctx context.Context, path PathName) ([]string, error)

	// Mkdir creates the directory at path. It is idempotent: the store
	// de-duplicates name+parent collisions.
	Mkdir(ctx context.Context, path PathName) error

	// Rename moves from to to, directories recursively.
	Rename(ctx context.Context, from, to PathName) error

	// Copy duplicates from at to, directories recursively.
	Copy(ctx context.Context, from, to PathName) error

	// Unlink removes path. With permanent false the entity is moved to
	// the account trash; with permanent true it is destroyed.
	Unlink(ctx context.Context, path PathName, permanent bool) error

	// StatFS returns the account's capacity and usage.
	StatFS(ctx context.Context) (StatFS, error)

	// Upload streams src as a new file named name under the directory
	// identified by parentUUID, returning the record of the stored
	// file. The reader is consumed to EOF on success.
	Upload(ctx context.Context, src io.Reader, parentUUID, name string) (*Stats, error)

	// Download opens a plaintext byte stream for the file described by
	// st, covering the inclusive byte range [start, end]. The caller
	// must close the returned reader.
	Download(ctx context.Context, st *Stats, start, end int64) (io.ReadCloser, error)

	// EditFileMetadata rewrites the metadata of the file identified by
	// uuid.
	EditFileMetadata(ctx context.Context, uuid string, meta FileMetadata) error

	// DropItem removes path from the SDK's in-memory metadata index, so
	// a later Stat consults the store again.
	DropItem(path PathName)

	// PutItem records st at path in the SDK's in-memory metadata index,
	// so a Stat issued immediately after an upload sees the new file.
	PutItem(path PathName, st *Stats)

	// OnPasswordChanged registers fn to run when the account password
	// changes out from under the session. The returned cancel func
	// releases the subscription. fn may be invoked at most once.
	OnPasswordChanged(fn func()) (cancel func())

	// Close releases the session.
	Close() error
}

// LoginFunc opens a new Backend session for the given credentials.
// The proxy-mode authenticator calls it once per distinct credential
// set. twoFactorCode is empty when the client supplied none.
type LoginFunc func(ctx context.Context, email, password, twoFactorCode string) (Backend, error)

// MIMEByName returns the content type for a file name, falling back to
// application/octet-stream when the extension is unknown.
func MIMEByName(name string) string {
	t := mime.TypeByExtension(gopath.Ext(name))
	if t == "" {
		return "application/octet-stream"
	}
	// Strip any charset parameter; DAV clients want the bare type.
	if i := strings.IndexByte(t, ';'); i >= 0 {
		t = strings.TrimSpace(t[:i])
	}
	return t
}
