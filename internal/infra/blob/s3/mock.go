package s3

import (
	"bytes"
	"context"
	"crypto/md5" //nolint:gosec // mock etag
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"
)

// NewMock returns a Store whose SDK client talks to an in-process fake bucket
// instead of the network. It serves HEAD, GET, PUT, DELETE and ListObjectsV2.
func NewMock(ctx context.Context) (*Store, error) {
	return New(ctx, Config{
		Bucket:          "mock-bucket",
		Region:          defaultRegion,
		Endpoint:        "https://mock.s3.local",
		AccessKeyID:     "AKIAMOCK",
		SecretAccessKey: "mock-secret",
		PathStyle:       true,
		HTTPClient:      &http.Client{Transport: newFakeBucket()},
	})
}

type fakeObject struct {
	body        []byte
	contentType string
	metadata    http.Header
	modified    time.Time
}

type fakeBucket struct {
	mu      sync.Mutex
	objects map[string]fakeObject
}

func newFakeBucket() *fakeBucket {
	return &fakeBucket{objects: make(map[string]fakeObject)}
}

func respond(status int, body []byte, header http.Header) *http.Response {
	if header == nil {
		header = http.Header{}
	}
	return &http.Response{
		StatusCode:    status,
		Body:          io.NopCloser(bytes.NewReader(body)),
		ContentLength: int64(len(body)),
		Header:        header,
	}
}

func etagOf(body []byte) string {
	sum := md5.Sum(body) //nolint:gosec
	return `"` + hex.EncodeToString(sum[:]) + `"`
}

func (b *fakeBucket) RoundTrip(req *http.Request) (*http.Response, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	// path style: /<bucket>/<key>
	parts := strings.SplitN(strings.TrimPrefix(req.URL.Path, "/"), "/", 2)
	key := ""
	if len(parts) == 2 {
		key = parts[1]
	}
	if req.Method == http.MethodGet && req.URL.Query().Get("list-type") == "2" {
		return b.list(req.URL.Query().Get("prefix")), nil
	}
	switch req.Method {
	case http.MethodHead, http.MethodGet:
		obj, ok := b.objects[key]
		if !ok {
			return respond(http.StatusNotFound, nil, nil), nil
		}
		header := obj.metadata.Clone()
		header.Set("Content-Length", strconv.Itoa(len(obj.body)))
		header.Set("Content-Type", obj.contentType)
		header.Set("ETag", etagOf(obj.body))
		header.Set("Last-Modified", obj.modified.Format(http.TimeFormat))
		if req.Method == http.MethodHead {
			resp := respond(http.StatusOK, nil, header)
			resp.ContentLength = int64(len(obj.body))
			return resp, nil
		}
		return respond(http.StatusOK, obj.body, header), nil
	case http.MethodPut:
		body, err := io.ReadAll(req.Body)
		if err != nil {
			return nil, err
		}
		if decoded, ok := decodeAWSChunked(body); ok {
			body = decoded
		}
		meta := http.Header{}
		for name, values := range req.Header {
			if strings.HasPrefix(strings.ToLower(name), "x-amz-meta-") {
				meta[name] = values
			}
		}
		b.objects[key] = fakeObject{
			body:        body,
			contentType: req.Header.Get("Content-Type"),
			metadata:    meta,
			modified:    time.Now().UTC().Truncate(time.Second),
		}
		return respond(http.StatusOK, nil, http.Header{"ETag": {etagOf(body)}}), nil
	case http.MethodDelete:
		delete(b.objects, key)
		return respond(http.StatusNoContent, nil, nil), nil
	}
	return respond(http.StatusNotImplemented, nil, nil), nil
}

func (b *fakeBucket) list(prefix string) *http.Response {
	keys := make([]string, 0, len(b.objects))
	for k := range b.objects {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	slices.Sort(keys)
	var out strings.Builder
	out.WriteString(`<?xml version="1.0" encoding="UTF-8"?><ListBucketResult><IsTruncated>false</IsTruncated>`)
	for _, k := range keys {
		obj := b.objects[k]
		fmt.Fprintf(&out, "<Contents><Key>%s</Key><Size>%d</Size><ETag>%s</ETag><LastModified>%s</LastModified></Contents>",
			k, len(obj.body), etagOf(obj.body), obj.modified.Format(time.RFC3339))
	}
	out.WriteString("</ListBucketResult>")
	return respond(http.StatusOK, []byte(out.String()), http.Header{"Content-Type": {"application/xml"}})
}

// decodeAWSChunked unwraps a single-chunk aws-chunked body: <hex-size>[;ext]\r\n<data>\r\n0\r\n...
func decodeAWSChunked(raw []byte) ([]byte, bool) {
	head, rest, ok := bytes.Cut(raw, []byte("\r\n"))
	if !ok {
		return nil, false
	}
	sizeField, _, _ := bytes.Cut(head, []byte(";"))
	size, err := strconv.ParseInt(string(sizeField), 16, 64)
	if err != nil || size < 0 || int64(len(rest)) < size+2 {
		return nil, false
	}
	if !bytes.HasPrefix(rest[size:], []byte("\r\n0")) {
		return nil, false
	}
	return rest[:size], true
}
