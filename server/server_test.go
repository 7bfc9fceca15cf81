// Copyright 2025 The Filen Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package server

import (
	"context"
	"io"
	"io/ioutil"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FilenCloudDienste/filen-webdav/backend/inprocess"
	"github.com/FilenCloudDienste/filen-webdav/config"
	"github.com/FilenCloudDienste/filen-webdav/dav"
)

const (
	testUser     = "admin"
	testPassword = "hunter2"
)

type fixture struct {
	t       *testing.T
	ts      *httptest.Server
	srv     *Server
	backend *inprocess.Service
	scratch string
}

func newFixture(t *testing.T, mutate func(*config.Config)) *fixture {
	t.Helper()
	cfg := config.New()
	cfg.User = &config.User{Username: testUser, Password: testPassword}
	if mutate != nil {
		mutate(cfg)
	}
	backend := inprocess.New()
	scratch := t.TempDir()
	s, err := New(cfg, Options{Backend: backend, ScratchDir: scratch})
	require.NoError(t, err)
	ts := httptest.NewServer(s)
	t.Cleanup(ts.Close)
	return &fixture{t: t, ts: ts, srv: s, backend: backend, scratch: scratch}
}

// do sends one authenticated request. Headers come in key, value pairs.
func (f *fixture) do(method, path, body string, headers ...string) *http.Response {
	f.t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, f.ts.URL+path, rd)
	require.NoError(f.t, err)
	req.SetBasicAuth(testUser, testPassword)
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	resp, err := f.ts.Client().Do(req)
	require.NoError(f.t, err)
	return resp
}

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	data, err := ioutil.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(data)
}

func TestOptionsAndCommonHeaders(t *testing.T) {
	f := newFixture(t, nil)
	resp := f.do("OPTIONS", "/", "")
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "OPTIONS, GET, HEAD, PUT, DELETE, PROPFIND, PROPPATCH, MKCOL, COPY, MOVE", resp.Header.Get("Allow"))
	assert.Equal(t, "1, 2", resp.Header.Get("DAV"))
	assert.Equal(t, "Filen WebDAV", resp.Header.Get("Server"))
	assert.Equal(t, "DAV", resp.Header.Get("MS-Author-Via"))
	assert.Equal(t, "no-cache", resp.Header.Get("Cache-Control"))
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestEmptyPutMakesVirtualFile(t *testing.T) {
	f := newFixture(t, nil)

	resp := f.do("PUT", "/a.txt", "")
	resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	// The probe's follow-up PROPFIND sees the file with size zero.
	resp = f.do("PROPFIND", "/", "", "Depth", "1")
	body := readBody(t, resp)
	require.Equal(t, http.StatusMultiStatus, resp.StatusCode)
	assert.Contains(t, body, "/a.txt")
	assert.Contains(t, body, "<D:getcontentlength>0</D:getcontentlength>")

	resp = f.do("GET", "/a.txt", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, readBody(t, resp))

	// The store never saw the placeholder.
	_, err := f.backend.Stat(context.Background(), "/a.txt")
	assert.Error(t, err)
}

func TestPutGetRoundTrip(t *testing.T) {
	f := newFixture(t, nil)

	resp := f.do("PUT", "/a.txt", "hello")
	resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = f.do("GET", "/a.txt", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "5", resp.Header.Get("Content-Length"))
	assert.Equal(t, "hello", readBody(t, resp))

	resp = f.do("HEAD", "/a.txt", "", "Range", "bytes=0-2")
	resp.Body.Close()
	require.Equal(t, http.StatusPartialContent, resp.StatusCode)
	assert.Equal(t, "bytes 0-2/5", resp.Header.Get("Content-Range"))
	assert.Equal(t, "3", resp.Header.Get("Content-Length"))
}

func TestEmptyPutThenBytes(t *testing.T) {
	f := newFixture(t, nil)

	resp := f.do("PUT", "/a.txt", "")
	resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = f.do("PUT", "/a.txt", "content")
	resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = f.do("GET", "/a.txt", "")
	assert.Equal(t, "content", readBody(t, resp))

	// Promotion cleared the virtual record: the bytes now come from
	// the store.
	st, err := f.backend.Stat(context.Background(), "/a.txt")
	require.NoError(t, err)
	assert.Equal(t, int64(7), st.Size)
}

func TestRangeGet(t *testing.T) {
	f := newFixture(t, nil)
	resp := f.do("PUT", "/r.bin", "0123456789")
	resp.Body.Close()

	resp = f.do("GET", "/r.bin", "", "Range", "bytes=2-5")
	require.Equal(t, http.StatusPartialContent, resp.StatusCode)
	assert.Equal(t, "bytes 2-5/10", resp.Header.Get("Content-Range"))
	assert.Equal(t, "2345", readBody(t, resp))

	// Open-ended range runs to the last byte.
	resp = f.do("GET", "/r.bin", "", "Range", "bytes=7-")
	require.Equal(t, http.StatusPartialContent, resp.StatusCode)
	assert.Equal(t, "789", readBody(t, resp))

	// The legacy Content-Range spelling is accepted.
	resp = f.do("GET", "/r.bin", "", "Content-Range", "bytes=0-1")
	require.Equal(t, http.StatusPartialContent, resp.StatusCode)
	assert.Equal(t, "01", readBody(t, resp))

	for _, bad := range []string{"bytes=5-2", "bytes=0-10", "bytes=x-2", "chunks=0-1", "bytes=-5"} {
		resp = f.do("GET", "/r.bin", "", "Range", bad)
		resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, "range %q", bad)
	}
}

func TestGetAndHeadOfDirectory(t *testing.T) {
	f := newFixture(t, nil)
	resp := f.do("MKCOL", "/d", "")
	resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	for _, method := range []string{"GET", "HEAD"} {
		resp = f.do(method, "/d", "")
		resp.Body.Close()
		assert.Equal(t, http.StatusForbidden, resp.StatusCode, method)
	}
}

func TestMkcolMovePropfind(t *testing.T) {
	f := newFixture(t, nil)

	for _, p := range []string{"/d", "/d/e"} {
		resp := f.do("MKCOL", p, "")
		resp.Body.Close()
		require.Equal(t, http.StatusCreated, resp.StatusCode, p)
	}
	// MKCOL on an existing directory stays lenient.
	resp := f.do("MKCOL", "/d", "")
	resp.Body.Close()
	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = f.do("PUT", "/d/e/f", "xy")
	resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = f.do("PROPFIND", "/d", "", "Depth", "1")
	body := readBody(t, resp)
	require.Equal(t, http.StatusMultiStatus, resp.StatusCode)
	assert.Contains(t, body, "/d/e/")
	assert.Contains(t, body, dirContentType)

	resp = f.do("MOVE", "/d/e/f", "", "Destination", f.ts.URL+"/d/e/g", "Overwrite", "F")
	resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = f.do("GET", "/d/e/g", "")
	assert.Equal(t, "xy", readBody(t, resp))
	resp = f.do("GET", "/d/e/f", "")
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestMkcolMissingParent(t *testing.T) {
	f := newFixture(t, nil)
	resp := f.do("MKCOL", "/no/such/parent", "")
	resp.Body.Close()
	assert.Equal(t, http.StatusPreconditionFailed, resp.StatusCode)
}

func TestPutUnderFileParent(t *testing.T) {
	f := newFixture(t, nil)
	resp := f.do("PUT", "/f", "data")
	resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = f.do("PUT", "/f/child", "x")
	resp.Body.Close()
	assert.Equal(t, http.StatusPreconditionFailed, resp.StatusCode)
}

func TestDeleteRemovesEveryTier(t *testing.T) {
	f := newFixture(t, nil)

	resp := f.do("PUT", "/gone.txt", "bits")
	resp.Body.Close()
	resp = f.do("DELETE", "/gone.txt", "")
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	for _, method := range []string{"GET", "HEAD", "PROPFIND"} {
		resp = f.do(method, "/gone.txt", "")
		resp.Body.Close()
		assert.Equal(t, http.StatusNotFound, resp.StatusCode, method)
	}
	// Backend deletions are soft.
	trash := f.backend.Trash()
	require.Len(t, trash, 1)
	assert.False(t, trash[0].Permanent)

	resp = f.do("DELETE", "/gone.txt", "")
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestCopyPreservesSource(t *testing.T) {
	f := newFixture(t, nil)
	resp := f.do("PUT", "/orig", "same bytes")
	resp.Body.Close()

	resp = f.do("COPY", "/orig", "", "Destination", f.ts.URL+"/dup")
	resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = f.do("GET", "/orig", "")
	a := readBody(t, resp)
	resp = f.do("GET", "/dup", "")
	b := readBody(t, resp)
	assert.Equal(t, a, b)
	assert.Equal(t, "same bytes", a)
}

func TestMoveOverwrite(t *testing.T) {
	f := newFixture(t, nil)
	for p, body := range map[string]string{"/p": "new", "/q": "old"} {
		resp := f.do("PUT", p, body)
		resp.Body.Close()
	}

	// Without Overwrite: T an existing destination refuses.
	resp := f.do("MOVE", "/p", "", "Destination", f.ts.URL+"/q")
	resp.Body.Close()
	require.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = f.do("MOVE", "/p", "", "Destination", f.ts.URL+"/q", "Overwrite", "T")
	resp.Body.Close()
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = f.do("GET", "/q", "")
	assert.Equal(t, "new", readBody(t, resp))
	resp = f.do("GET", "/p", "")
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestDestinationValidation(t *testing.T) {
	f := newFixture(t, nil)
	resp := f.do("PUT", "/src", "x")
	resp.Body.Close()

	cases := []struct {
		dest   string
		status int
	}{
		{"", http.StatusBadRequest},
		{"/relative/only", http.StatusBadRequest},
		{"http://other.example.com/src2", http.StatusBadRequest},
		{"%%%", http.StatusBadRequest},
	}
	for _, c := range cases {
		headers := []string{}
		if c.dest != "" {
			headers = []string{"Destination", c.dest}
		}
		resp = f.do("MOVE", "/src", "", headers...)
		resp.Body.Close()
		assert.Equal(t, c.status, resp.StatusCode, "destination %q", c.dest)
	}

	// A traversal destination is forbidden, not merely invalid.
	req, err := http.NewRequest("MOVE", f.ts.URL+"/src", nil)
	require.NoError(t, err)
	req.SetBasicAuth(testUser, testPassword)
	req.Header.Set("Destination", "http://"+req.URL.Host+"/../escape")
	resp, err = f.ts.Client().Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestDestinationIPv6Host(t *testing.T) {
	f := newFixture(t, nil)
	resp := f.do("PUT", "/v6src", "x")
	resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	// The bracketed request host and the Destination host must compare
	// equal once both are stripped to the bare address.
	req, err := http.NewRequest("MOVE", f.ts.URL+"/v6src", nil)
	require.NoError(t, err)
	req.SetBasicAuth(testUser, testPassword)
	req.Host = "[::1]:1900"
	req.Header.Set("Destination", "http://[::1]:1900/v6dst")
	resp, err = f.ts.Client().Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = f.do("GET", "/v6dst", "")
	assert.Equal(t, "x", readBody(t, resp))
}

func TestMoveIntoDescendant(t *testing.T) {
	f := newFixture(t, nil)
	resp := f.do("MKCOL", "/d", "")
	resp.Body.Close()
	resp = f.do("MOVE", "/d", "", "Destination", f.ts.URL+"/d/sub")
	resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestScratchTier(t *testing.T) {
	f := newFixture(t, func(cfg *config.Config) {
		cfg.TempFilesToStoreOnDisk = []string{"Thumbs.db", "._*"}
	})

	resp := f.do("PUT", "/Thumbs.db", "zz")
	resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	// The store never saw an upload.
	_, err := f.backend.Stat(context.Background(), "/Thumbs.db")
	assert.Error(t, err)

	// The bytes live in a sanitized scratch file.
	id := tempDiskID(testUser, "/Thumbs.db")
	data, err := ioutil.ReadFile(f.scratch + "/" + id)
	require.NoError(t, err)
	assert.Equal(t, "zz", string(data))

	resp = f.do("GET", "/Thumbs.db", "")
	assert.Equal(t, "zz", readBody(t, resp))

	// Ranges come straight off the file.
	resp = f.do("GET", "/Thumbs.db", "", "Range", "bytes=1-1")
	require.Equal(t, http.StatusPartialContent, resp.StatusCode)
	assert.Equal(t, "z", readBody(t, resp))

	// Sidecars show up in listings.
	resp = f.do("PROPFIND", "/", "", "Depth", "1")
	assert.Contains(t, readBody(t, resp), "Thumbs.db")

	// MOVE renames the scratch file under the destination's id.
	resp = f.do("MOVE", "/Thumbs.db", "", "Destination", f.ts.URL+"/._sidecar")
	resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	if _, err := os.Stat(f.scratch + "/" + id); !os.IsNotExist(err) {
		t.Errorf("old scratch file still present: %v", err)
	}
	resp = f.do("GET", "/._sidecar", "")
	assert.Equal(t, "zz", readBody(t, resp))

	resp = f.do("DELETE", "/._sidecar", "")
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	newID := tempDiskID(testUser, "/._sidecar")
	if _, err := os.Stat(f.scratch + "/" + newID); !os.IsNotExist(err) {
		t.Errorf("scratch file survived DELETE: %v", err)
	}
	resp = f.do("GET", "/._sidecar", "")
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestPropfindMissing(t *testing.T) {
	f := newFixture(t, nil)
	resp := f.do("PROPFIND", "/nothing", "", "Depth", "0")
	body := readBody(t, resp)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Contains(t, body, "HTTP/1.1 404 NOT FOUND")
	assert.Contains(t, body, "D:multistatus")
}

func TestPropfindDepthZero(t *testing.T) {
	f := newFixture(t, nil)
	resp := f.do("MKCOL", "/d", "")
	resp.Body.Close()
	resp = f.do("PUT", "/d/child", "x")
	resp.Body.Close()

	resp = f.do("PROPFIND", "/d", "", "Depth", "0")
	body := readBody(t, resp)
	require.Equal(t, http.StatusMultiStatus, resp.StatusCode)
	assert.Contains(t, body, "/d/")
	assert.NotContains(t, body, "child")
}

func TestPropfindListsQuota(t *testing.T) {
	f := newFixture(t, nil)
	f.backend.SetCapacity(1000)
	resp := f.do("PUT", "/f", "0123456789")
	resp.Body.Close()

	resp = f.do("PROPFIND", "/", "", "Depth", "0")
	body := readBody(t, resp)
	assert.Contains(t, body, "<D:quota-used-bytes>10</D:quota-used-bytes>")
	assert.Contains(t, body, "<D:quota-available-bytes>990</D:quota-available-bytes>")
}

func TestProppatchTimestamps(t *testing.T) {
	f := newFixture(t, nil)
	resp := f.do("PUT", "/stamp", "x")
	resp.Body.Close()

	const body = `<?xml version="1.0"?>
<D:propertyupdate xmlns:D="DAV:">
 <D:set><D:prop>
  <D:getlastmodified>Fri, 13 Feb 2015 13:30:00 GMT</D:getlastmodified>
  <D:creationdate>Mon, 01 Jan 2001 00:00:00 GMT</D:creationdate>
 </D:prop></D:set>
</D:propertyupdate>`
	resp = f.do("PROPPATCH", "/stamp", body, "Content-Type", "application/xml")
	ms := readBody(t, resp)
	require.Equal(t, http.StatusMultiStatus, resp.StatusCode)
	assert.Contains(t, ms, "HTTP/1.1 207 Multi-Status")

	resp = f.do("PROPFIND", "/stamp", "", "Depth", "0")
	listing := readBody(t, resp)
	assert.Contains(t, listing, "Fri, 13 Feb 2015 13:30:00 GMT")
	assert.Contains(t, listing, "Mon, 01 Jan 2001 00:00:00 GMT")
}

func TestProppatchReplacesOverlayResource(t *testing.T) {
	f := newFixture(t, func(cfg *config.Config) {
		cfg.TempFilesToStoreOnDisk = []string{"._*"}
	})
	u := f.srv.users.single

	const body = `<?xml version="1.0"?>
<D:propertyupdate xmlns:D="DAV:">
 <D:set><D:prop>
  <D:getlastmodified>Fri, 13 Feb 2015 13:30:00 GMT</D:getlastmodified>
 </D:prop></D:set>
</D:propertyupdate>`

	resp := f.do("PUT", "/v.txt", "")
	resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	before := u.virtualGet("/v.txt")
	require.NotNil(t, before)
	wasModified := before.Modified

	resp = f.do("PROPPATCH", "/v.txt", body, "Content-Type", "application/xml")
	resp.Body.Close()
	require.Equal(t, http.StatusMultiStatus, resp.StatusCode)

	// The record published before the patch is never written again; the
	// patch installs a fresh one.
	assert.Equal(t, wasModified, before.Modified)
	after := u.virtualGet("/v.txt")
	require.NotNil(t, after)
	assert.NotSame(t, before, after)
	assert.Equal(t, "Fri, 13 Feb 2015 13:30:00 GMT", after.Modified.UTC().Format(http.TimeFormat))

	// Same contract on the disk tier.
	resp = f.do("PUT", "/._side", "x")
	resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	diskBefore := u.diskGet("/._side")
	require.NotNil(t, diskBefore)
	resp = f.do("PROPPATCH", "/._side", body, "Content-Type", "application/xml")
	resp.Body.Close()
	require.Equal(t, http.StatusMultiStatus, resp.StatusCode)
	assert.NotSame(t, diskBefore, u.diskGet("/._side"))
}

func TestProppatchConcurrentWithReads(t *testing.T) {
	f := newFixture(t, nil)
	resp := f.do("PUT", "/c.txt", "")
	resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	const body = `<?xml version="1.0"?>
<D:propertyupdate xmlns:D="DAV:">
 <D:set><D:prop>
  <D:getlastmodified>Fri, 13 Feb 2015 13:30:00 GMT</D:getlastmodified>
 </D:prop></D:set>
</D:propertyupdate>`

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 25; i++ {
			resp := f.do("PROPFIND", "/c.txt", "", "Depth", "0")
			resp.Body.Close()
			resp = f.do("GET", "/c.txt", "")
			resp.Body.Close()
		}
	}()
	for i := 0; i < 25; i++ {
		resp := f.do("PROPPATCH", "/c.txt", body, "Content-Type", "application/xml")
		resp.Body.Close()
	}
	<-done
}

func TestProppatchDirectoryIsNoop(t *testing.T) {
	f := newFixture(t, nil)
	resp := f.do("MKCOL", "/d", "")
	resp.Body.Close()
	resp = f.do("PROPPATCH", "/d", `<D:propertyupdate xmlns:D="DAV:"/>`, "Content-Type", "text/xml")
	body := readBody(t, resp)
	assert.Equal(t, http.StatusMultiStatus, resp.StatusCode)
	assert.Contains(t, body, "HTTP/1.1 207 Multi-Status")
}

func TestXMLVerbStatusReachesOuterWriter(t *testing.T) {
	f := newFixture(t, nil)
	u := f.srv.users.single

	rec := httptest.NewRecorder()
	outer := &responseWriter{ResponseWriter: rec}
	req := httptest.NewRequest("PROPFIND", "/", nil)
	req.Header.Set("Depth", "0")
	f.srv.xmlVerbs.ServeHTTP(outer, withXMLState(req, u, outer))

	// The outer writer built before the gzip wrapper must know the 207
	// went out, or the recovery path would try a second header.
	assert.True(t, outer.wrote)
	assert.Equal(t, http.StatusMultiStatus, outer.status)
	assert.Equal(t, http.StatusMultiStatus, rec.Code)
}

func TestLockNotImplemented(t *testing.T) {
	f := newFixture(t, nil)
	for _, method := range []string{"LOCK", "UNLOCK"} {
		resp := f.do(method, "/a.txt", "")
		resp.Body.Close()
		assert.Equal(t, http.StatusNotImplemented, resp.StatusCode, method)
	}
}

func TestUnsupportedVerb(t *testing.T) {
	f := newFixture(t, nil)
	resp := f.do("TRACE", "/", "")
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestRateLimit(t *testing.T) {
	f := newFixture(t, func(cfg *config.Config) {
		cfg.RateLimit.Limit = 3
		cfg.RateLimit.WindowMS = 60000
	})
	var last int
	for i := 0; i < 4; i++ {
		resp := f.do("OPTIONS", "/", "")
		resp.Body.Close()
		last = resp.StatusCode
	}
	assert.Equal(t, http.StatusTooManyRequests, last)
}

func TestProxyModeLogin(t *testing.T) {
	cfg := config.New()
	var logins int32
	backend := inprocess.New()
	login := func(ctx context.Context, email, password, otp string) (dav.Backend, error) {
		require.Equal(t, "user@x.y", email)
		require.Equal(t, "p", password)
		require.Equal(t, "123456", otp)
		atomic.AddInt32(&logins, 1)
		return backend, nil
	}
	s, err := New(cfg, Options{Login: login, ScratchDir: t.TempDir()})
	require.NoError(t, err)
	ts := httptest.NewServer(s)
	defer ts.Close()

	do := func(password string) int {
		req, err := http.NewRequest("OPTIONS", ts.URL+"/", nil)
		require.NoError(t, err)
		req.SetBasicAuth("user@x.y", password)
		resp, err := ts.Client().Do(req)
		require.NoError(t, err)
		resp.Body.Close()
		return resp.StatusCode
	}

	// First request logs in; the second, with the byte-equal raw
	// password, hits the authed cache.
	require.Equal(t, http.StatusOK, do("password=p&twoFactorAuthentication=123456"))
	require.Equal(t, http.StatusOK, do("password=p&twoFactorAuthentication=123456"))
	assert.Equal(t, int32(1), atomic.LoadInt32(&logins))

	// Malformed proxy credentials never reach the login path.
	require.Equal(t, http.StatusUnauthorized, do("p"))
	assert.Equal(t, int32(1), atomic.LoadInt32(&logins))

	// A password change on another device evicts the session; the next
	// request logs in again.
	backend.ChangePassword()
	require.Equal(t, http.StatusOK, do("password=p&twoFactorAuthentication=123456"))
	assert.Equal(t, int32(2), atomic.LoadInt32(&logins))
}
