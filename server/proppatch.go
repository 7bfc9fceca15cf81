// Copyright 2025 The Filen Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package server

import (
	"encoding/xml"
	"net/http"
	"strings"
	"time"

	"github.com/FilenCloudDienste/filen-webdav/dav"
	"github.com/FilenCloudDienste/filen-webdav/errors"
	"github.com/FilenCloudDienste/filen-webdav/path"
)

// handleProppatch serves PROPPATCH. Only timestamp mutation on files is
// supported; everything else is acknowledged and dropped. The reply is
// always the empty-prop 207.
func (s *Server) handleProppatch(w *responseWriter, r *http.Request, u *userState) error {
	const op errors.Op = "server.Proppatch"
	ctx := r.Context()
	name := reqPath(r)
	body, err := readXMLBody(r)
	if err != nil {
		return errors.E(op, name, err)
	}

	res, err := s.resolve(ctx, u, name)
	if err != nil {
		return errors.E(op, name, err)
	}
	if res == nil {
		empty(w, http.StatusNotFound)
		return nil
	}
	href := path.Escape(dav.PathName(res.URL()))
	if res.IsDir() {
		return writeProppatchMultistatus(w, href)
	}

	modified, created := parsePropertyUpdate(body)
	if modified == nil && created == nil {
		return writeProppatchMultistatus(w, href)
	}

	switch res.Tier {
	case dav.TierVirtual, dav.TierDisk:
		// Published resources are read without a lock, so replace the
		// record rather than mutating it in place.
		cp := *res
		if modified != nil {
			cp.Modified = *modified
		}
		if created != nil {
			cp.Created = *created
		}
		if res.Tier == dav.TierVirtual {
			u.setVirtual(name, &cp)
		} else {
			u.setDisk(name, &cp)
		}
	default:
		meta := dav.FileMetadata{
			Name:     res.Name,
			Key:      res.Key,
			Modified: res.Modified,
			Created:  res.Created,
			Hash:     res.Hash,
			Size:     res.Size,
			MIME:     res.MIME,
		}
		if modified != nil {
			meta.Modified = *modified
		}
		if created != nil {
			meta.Created = *created
		}
		if err := u.backend.EditFileMetadata(ctx, res.UUID, meta); err != nil {
			return errors.E(op, name, err)
		}
		st := resourceStats(res)
		st.Modified = meta.Modified
		st.Created = meta.Created
		u.backend.DropItem(name)
		u.backend.PutItem(name, st)
	}
	return writeProppatchMultistatus(w, href)
}

// propertyupdate mirrors <D:propertyupdate><D:set><D:prop>…; the
// decoder's case-insensitive element matching tolerates unprefixed, d:
// and D: forms.
type propertyupdate struct {
	Sets []struct {
		Prop struct {
			Inner []rawProperty `xml:",any"`
		} `xml:"prop"`
	} `xml:"set"`
}

type rawProperty struct {
	XMLName xml.Name
	Value   string `xml:",chardata"`
}

// parsePropertyUpdate extracts the recognized timestamp properties from
// a PROPPATCH body. Unparseable dates are dropped; the verb must end in
// a 207 regardless.
func parsePropertyUpdate(body string) (modified, created *time.Time) {
	var update propertyupdate
	if err := xml.Unmarshal([]byte(body), &update); err != nil {
		return nil, nil
	}
	for _, set := range update.Sets {
		for _, p := range set.Prop.Inner {
			t, err := parsePropertyDate(strings.TrimSpace(p.Value))
			if err != nil {
				continue
			}
			switch strings.ToLower(p.XMLName.Local) {
			case "getlastmodified", "lastmodified":
				modified = &t
			case "creationdate", "getcreationdate":
				created = &t
			}
		}
	}
	return modified, created
}

func parsePropertyDate(s string) (time.Time, error) {
	if t, err := http.ParseTime(s); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, s)
}
