// Copyright 2025 The Filen Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package server implements the WebDAV gateway: an RFC 4918 method
// dispatcher layered over a remote end-to-end-encrypted store, with a
// per-user overlay of virtual (in-memory) and disk-scratch resources on
// top of the backend tier.
package server

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/NYTimes/gziphandler"
	"github.com/google/uuid"

	"github.com/FilenCloudDienste/filen-webdav/config"
	"github.com/FilenCloudDienste/filen-webdav/dav"
	"github.com/FilenCloudDienste/filen-webdav/errors"
	"github.com/FilenCloudDienste/filen-webdav/log"
	"github.com/FilenCloudDienste/filen-webdav/serverutil"
)

// Options supplies the server's collaborators.
type Options struct {
	// Backend is the authenticated session for single-tenant mode.
	// Required when the configuration carries a user.
	Backend dav.Backend

	// Login opens sessions for proxy mode. Required when the
	// configuration carries no user.
	Login dav.LoginFunc

	// ScratchDir holds plaintext scratch files for paths matching the
	// configured sidecar patterns. Required when any pattern is set.
	ScratchDir string

	// MaxSessions bounds the proxy-mode session table.
	// Zero means the default of 100.
	MaxSessions int

	// FirstByteTimeout bounds how long a PUT may sit idle before its
	// body is treated as empty. Zero means the default of 15 seconds.
	FirstByteTimeout time.Duration
}

const (
	defaultMaxSessions      = 100
	defaultFirstByteTimeout = 15 * time.Second
)

// Server is the WebDAV gateway. It implements http.Handler; the full
// middleware chain (rate limit, authentication, common DAV headers,
// method dispatch) runs inside ServeHTTP.
type Server struct {
	config     *config.Config
	users      *userTable
	limiter    *serverutil.RateLimiter
	auth       authenticator
	scratchDir string
	firstByte  time.Duration

	// xmlVerbs serves PROPFIND and PROPPATCH with negotiated gzip.
	// Byte-stream verbs are never wrapped so ranges stay exact.
	xmlVerbs http.Handler

	mu    sync.Mutex
	conns map[string]net.Conn
	ids   map[net.Conn]string
	hs    *http.Server
}

// New builds a Server from its configuration and collaborators.
func New(cfg *config.Config, opts Options) (*Server, error) {
	const op errors.Op = "server.New"
	if err := cfg.Valid(); err != nil {
		return nil, errors.E(op, err)
	}
	if len(cfg.TempFilesToStoreOnDisk) > 0 && opts.ScratchDir == "" {
		return nil, errors.E(op, errors.Invalid, errors.Str("scratch patterns configured without a scratch directory"))
	}
	if opts.MaxSessions == 0 {
		opts.MaxSessions = defaultMaxSessions
	}
	if opts.FirstByteTimeout == 0 {
		opts.FirstByteTimeout = defaultFirstByteTimeout
	}

	s := &Server{
		config: cfg,
		limiter: &serverutil.RateLimiter{
			Window: time.Duration(cfg.RateLimit.WindowMS) * time.Millisecond,
			Limit:  cfg.RateLimit.Limit,
		},
		scratchDir: opts.ScratchDir,
		firstByte:  opts.FirstByteTimeout,
		conns:      make(map[string]net.Conn),
		ids:        make(map[net.Conn]string),
	}
	s.xmlVerbs = gziphandler.GzipHandler(http.HandlerFunc(s.serveXMLVerb))

	if cfg.Proxy() {
		if opts.Login == nil {
			return nil, errors.E(op, errors.Invalid, errors.Str("proxy mode requires a login function"))
		}
		s.users = newUserTable(opts.MaxSessions)
		s.auth = &proxyAuth{users: s.users, login: opts.Login}
		return s, nil
	}

	if opts.Backend == nil {
		return nil, errors.E(op, errors.Invalid, errors.Str("single-tenant mode requires a backend session"))
	}
	state := newUserState(dav.UserName(cfg.User.Username), opts.Backend, cfg.User.Password)
	s.users = newUserTable(1)
	s.users.single = state
	switch cfg.AuthMode {
	case config.AuthBasic:
		s.auth = &basicAuth{state: state, username: cfg.User.Username, password: cfg.User.Password}
	case config.AuthDigest:
		s.auth = &digestAuth{state: state, username: cfg.User.Username, password: cfg.User.Password}
	}
	return s, nil
}

// ServeHTTP runs the middleware chain and dispatches the verb.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	rw := &responseWriter{ResponseWriter: w}
	defer func() {
		if v := recover(); v != nil {
			if v == http.ErrAbortHandler {
				// A handler aborted mid-stream; let net/http tear
				// down the connection.
				panic(v)
			}
			log.Error.Printf("server: panic in %s %s: %v", r.Method, r.URL.Path, v)
			if !rw.wrote {
				empty(rw, http.StatusInternalServerError)
			}
		}
	}()

	if ok, wait := s.limiter.Pass(s.rateKey(r)); !ok {
		rw.Header().Set("Retry-After", strconv.Itoa(int(wait/time.Second)+1))
		empty(rw, http.StatusTooManyRequests)
		return
	}

	u, err := s.auth.authenticate(rw, r)
	if err != nil {
		// The authenticator has written its challenge. Never say
		// which credential was wrong.
		log.Debug.Printf("server: authentication failed for %s %s", r.Method, r.URL.Path)
		return
	}

	davHeaders(rw)

	switch r.Method {
	case "PROPFIND", "PROPPATCH":
		s.xmlVerbs.ServeHTTP(rw, withXMLState(r, u, rw))
	default:
		s.dispatch(rw, r, u)
	}
}

// serveXMLVerb is the tail of the chain for the XML-bodied verbs,
// reached through the gzip wrapper. The inner writer reports its writes
// to the outer one built in ServeHTTP, so the recovery path never
// writes a second header after a reply went out through the wrapper.
func (s *Server) serveXMLVerb(w http.ResponseWriter, r *http.Request) {
	rw := &responseWriter{ResponseWriter: w}
	st := xmlStateFrom(r)
	if st == nil {
		empty(rw, http.StatusInternalServerError)
		return
	}
	rw.outer = st.outer
	s.dispatch(rw, r, st.user)
}

func (s *Server) dispatch(w *responseWriter, r *http.Request, u *userState) {
	var err error
	switch r.Method {
	case "OPTIONS":
		empty(w, http.StatusOK)
	case "HEAD":
		err = s.handleHead(w, r, u)
	case "GET":
		err = s.handleGet(w, r, u)
	case "PUT", "POST":
		err = s.handlePut(w, r, u)
	case "PROPFIND":
		err = s.handlePropfind(w, r, u)
	case "PROPPATCH":
		err = s.handleProppatch(w, r, u)
	case "MKCOL":
		err = s.handleMkcol(w, r, u)
	case "DELETE":
		err = s.handleDelete(w, r, u)
	case "COPY", "MOVE":
		err = s.handleCopyMove(w, r, u)
	case "LOCK", "UNLOCK":
		// Deliberately unimplemented; clients fall back to
		// optimistic concurrency.
		empty(w, http.StatusNotImplemented)
	default:
		empty(w, http.StatusBadRequest)
	}
	if err != nil {
		log.Error.Printf("server: %s %s: %v", r.Method, r.URL.Path, err)
		if !w.wrote {
			empty(w, kindStatus(err))
		}
	}
}

// rateKey identifies a visitor for the rate limiter: the client IP, or
// the claimed (not yet verified) username from the auth header when the
// administrator keys by username.
func (s *Server) rateKey(r *http.Request) string {
	if s.config.RateLimit.Key == config.KeyUsername {
		if name := claimedUsername(r); name != "" {
			return name
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// Serve accepts connections on ln until Stop is called. Live
// connections are registered so a terminating Stop can destroy them.
func (s *Server) Serve(ln net.Listener) error {
	hs := &http.Server{
		Handler:           s,
		ReadHeaderTimeout: 5 * time.Second,
		// WriteTimeout stays 0: it would also bound streaming GETs.
		IdleTimeout: 60 * time.Second,
		ErrorLog:    log.NewStdLogger(log.Info),
		ConnState:   s.connState,
	}
	s.mu.Lock()
	s.hs = hs
	s.mu.Unlock()
	return hs.Serve(ln)
}

func (s *Server) connState(c net.Conn, state http.ConnState) {
	switch state {
	case http.StateNew:
		id := uuid.NewString()
		s.mu.Lock()
		s.conns[id] = c
		s.ids[c] = id
		s.mu.Unlock()
	case http.StateClosed, http.StateHijacked:
		s.mu.Lock()
		if id, ok := s.ids[c]; ok {
			delete(s.conns, id)
			delete(s.ids, c)
		}
		s.mu.Unlock()
	}
}

// Stop stops accepting connections and waits for in-flight handlers.
// With terminate set, live connections are destroyed instead of
// drained.
func (s *Server) Stop(terminate bool) error {
	s.mu.Lock()
	hs := s.hs
	if terminate {
		for _, c := range s.conns {
			c.Close()
		}
	}
	s.mu.Unlock()
	if hs == nil {
		return nil
	}
	return hs.Shutdown(context.Background())
}

// davHeaders sets the common WebDAV response headers every reply
// carries.
func davHeaders(w http.ResponseWriter) {
	h := w.Header()
	h.Set("Allow", "OPTIONS, GET, HEAD, PUT, DELETE, PROPFIND, PROPPATCH, MKCOL, COPY, MOVE")
	h.Set("DAV", "1, 2")
	h.Set("Access-Control-Allow-Origin", "*")
	h.Set("Access-Control-Allow-Credentials", "true")
	h.Set("Access-Control-Expose-Headers", "DAV, content-length, Allow")
	h.Set("MS-Author-Via", "DAV")
	h.Set("Server", "Filen WebDAV")
	h.Set("Cache-Control", "no-cache")
}

// kindStatus maps an error to its HTTP status.
func kindStatus(err error) int {
	switch {
	case errors.Is(errors.Invalid, err):
		return http.StatusBadRequest
	case errors.Is(errors.Unauthenticated, err):
		return http.StatusUnauthorized
	case errors.Is(errors.Permission, err), errors.Is(errors.Exist, err), errors.Is(errors.IsDir, err):
		return http.StatusForbidden
	case errors.Is(errors.NotExist, err):
		return http.StatusNotFound
	case errors.Is(errors.Precondition, err), errors.Is(errors.NotDir, err):
		return http.StatusPreconditionFailed
	case errors.Is(errors.NotImplemented, err):
		return http.StatusNotImplemented
	}
	return http.StatusInternalServerError
}

// responseWriter remembers whether the header block has been written,
// so error paths never write headers twice. A writer built behind the
// gzip wrapper carries a pointer to the outer writer and mirrors its
// write state there; the gzip layer may hold the actual header back
// until it has sniffed the body, so the mirror cannot wait for the
// bytes to land.
type responseWriter struct {
	http.ResponseWriter
	wrote  bool
	status int
	outer  *responseWriter
}

func (w *responseWriter) WriteHeader(status int) {
	if w.wrote {
		return
	}
	w.wrote = true
	w.status = status
	w.ResponseWriter.WriteHeader(status)
	if w.outer != nil && !w.outer.wrote {
		w.outer.wrote = true
		w.outer.status = status
	}
}

func (w *responseWriter) Write(p []byte) (int, error) {
	if !w.wrote {
		w.WriteHeader(http.StatusOK)
	}
	return w.ResponseWriter.Write(p)
}

// empty replies with the given status and an explicit zero length.
func empty(w http.ResponseWriter, status int) {
	w.Header().Set("Content-Length", "0")
	w.WriteHeader(status)
}

type contextKey int

const xmlStateKey contextKey = 0

// xmlState carries the authenticated user and the outer response writer
// across the gzip wrapper to serveXMLVerb.
type xmlState struct {
	user  *userState
	outer *responseWriter
}

func withXMLState(r *http.Request, u *userState, outer *responseWriter) *http.Request {
	return r.WithContext(context.WithValue(r.Context(), xmlStateKey, &xmlState{user: u, outer: outer}))
}

func xmlStateFrom(r *http.Request) *xmlState {
	st, _ := r.Context().Value(xmlStateKey).(*xmlState)
	return st
}
