// Copyright 2025 The Filen Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

/*
Package dav contains the global types and interfaces shared by the
components of the Filen WebDAV gateway.

The gateway presents a user's end-to-end-encrypted drive as a standard
WebDAV tree. OS-native clients (Finder, Explorer, rclone, Cyberduck)
mount it and issue ordinary file operations, which the server translates
into calls against the client-side-encrypting storage SDK. All
cryptography happens inside the SDK; the gateway never holds plaintext
at rest beyond optional local scratch files.

A served name is a Resource, tagged with the Tier its bytes live in:

* The backend tier is the remote encrypted store, reached through a
Backend session. It is canonical: everything durable lives there.

* The virtual tier is an in-memory zero-byte placeholder. Clients such
as Finder create a file with an empty PUT and immediately stat it; the
placeholder satisfies that probe and is replaced by the real file when
the bytes arrive.

* The disk tier is a local plaintext scratch file for names matching the
configured sidecar patterns (.DS_Store, Thumbs.db, ._*). Those never
reach the encrypted store.

A path appears in at most one tier at a time; resolution order is
virtual, then disk, then backend.

The Backend interface is the contract with the storage SDK. It is
consumed here, never implemented, with one exception: backend/inprocess
provides a complete in-memory implementation used by tests and by the
self-contained demo mode of the server binary.

Methods of these types that accept or return pointers or slices do not
share the underlying data with the caller; either side may mutate its
copy freely.
*/
package dav
