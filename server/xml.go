// Copyright 2025 The Filen Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package server

import (
	"bytes"
	"encoding/xml"
	"net/http"
	"net/url"
	"strconv"

	"github.com/FilenCloudDienste/filen-webdav/dav"
	"github.com/FilenCloudDienste/filen-webdav/errors"
	"github.com/FilenCloudDienste/filen-webdav/path"
)

// The RFC 4918 multi-status envelope. Marshalled with an explicit D:
// prefix because several Windows clients refuse a defaulted namespace.
type multistatus struct {
	XMLName   xml.Name      `xml:"D:multistatus"`
	Namespace string        `xml:"xmlns:D,attr"`
	Responses []davResponse `xml:"D:response"`
}

type davResponse struct {
	Href     string   `xml:"D:href"`
	Propstat propstat `xml:"D:propstat"`
}

type propstat struct {
	Prop   prop   `xml:"D:prop"`
	Status string `xml:"D:status"`
}

type prop struct {
	LastModified   string        `xml:"D:getlastmodified,omitempty"`
	DisplayName    string        `xml:"D:displayname,omitempty"`
	ContentLength  *int64        `xml:"D:getcontentlength"`
	ETag           string        `xml:"D:getetag,omitempty"`
	CreationDate   string        `xml:"D:creationdate,omitempty"`
	QuotaAvailable *int64        `xml:"D:quota-available-bytes"`
	QuotaUsed      *int64        `xml:"D:quota-used-bytes"`
	ContentType    string        `xml:"D:getcontenttype,omitempty"`
	ResourceType   *resourceType `xml:"D:resourcetype"`
}

type resourceType struct {
	Collection *struct{} `xml:"D:collection"`
	File       *struct{} `xml:"D:file"`
}

const dirContentType = "httpd/unix-directory"

// timeRFC1123 formats a time the way getlastmodified wants it:
// ddd, DD MMM YYYY HH:mm:ss GMT.
func timeRFC1123(t dav.Resource) (modified, created string) {
	return t.Modified.UTC().Format(http.TimeFormat), t.Created.UTC().Format(http.TimeFormat)
}

// resourceProps builds the full property set for one resource.
func resourceProps(res *dav.Resource, fs dav.StatFS) prop {
	modified, created := timeRFC1123(*res)
	length := res.Size
	contentType := res.MIME
	rt := &resourceType{File: &struct{}{}}
	if res.IsDir() {
		length = 0
		contentType = dirContentType
		rt = &resourceType{Collection: &struct{}{}}
	}
	available := fs.Max - fs.Used
	if available < 0 {
		available = 0
	}
	used := fs.Used
	return prop{
		LastModified:   modified,
		DisplayName:    url.PathEscape(res.Name),
		ContentLength:  &length,
		ETag:           res.UUID,
		CreationDate:   created,
		QuotaAvailable: &available,
		QuotaUsed:      &used,
		ContentType:    contentType,
		ResourceType:   rt,
	}
}

// writeMultistatus emits a 207 whose response list carries the full
// property set for each resource.
func writeMultistatus(w http.ResponseWriter, resources []*dav.Resource, fs dav.StatFS) error {
	ms := multistatus{Namespace: "DAV:"}
	for _, res := range resources {
		ms.Responses = append(ms.Responses, davResponse{
			Href: path.Escape(dav.PathName(res.URL())),
			Propstat: propstat{
				Prop:   resourceProps(res, fs),
				Status: "HTTP/1.1 200 OK",
			},
		})
	}
	return writeXML(w, http.StatusMultiStatus, ms)
}

// writeNotFoundMultistatus emits the DAV 404 body: the envelope with an
// empty prop group and a 404 status line, under HTTP status 404.
func writeNotFoundMultistatus(w http.ResponseWriter, href string) error {
	ms := multistatus{
		Namespace: "DAV:",
		Responses: []davResponse{{
			Href: href,
			Propstat: propstat{
				Status: "HTTP/1.1 404 NOT FOUND",
			},
		}},
	}
	return writeXML(w, http.StatusNotFound, ms)
}

// writeProppatchMultistatus emits the empty-prop 207 that closes every
// PROPPATCH.
func writeProppatchMultistatus(w http.ResponseWriter, href string) error {
	ms := multistatus{
		Namespace: "DAV:",
		Responses: []davResponse{{
			Href: href,
			Propstat: propstat{
				Status: "HTTP/1.1 207 Multi-Status",
			},
		}},
	}
	return writeXML(w, http.StatusMultiStatus, ms)
}

func writeXML(w http.ResponseWriter, status int, body interface{}) error {
	const op errors.Op = "server.writeXML"
	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	enc := xml.NewEncoder(&buf)
	if err := enc.Encode(body); err != nil {
		return errors.E(op, errors.Internal, err)
	}
	w.Header().Set("Content-Type", "application/xml; charset=utf-8")
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(status)
	_, err := w.Write(buf.Bytes())
	if err != nil {
		return errors.E(op, errors.IO, err)
	}
	return nil
}
