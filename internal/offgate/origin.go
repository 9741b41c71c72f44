package offgate

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strings"
	"time"
)

// originClient fetches from the storefront origin and snapshots responses
// into CacheEntry values.
type originClient struct {
	base   string
	client *http.Client
}

func newOriginClient(base string) *originClient {
	return &originClient{
		base:   base,
		client: &http.Client{Timeout: 30 * time.Second},
	}
}

func (o *originClient) fetch(ctx context.Context, method, uri string, hdr http.Header, body []byte) (CacheEntry, error) {
	var rd io.Reader
	if len(body) > 0 {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, o.base+uri, rd)
	if err != nil {
		return CacheEntry{}, err
	}
	copyHeaders(req.Header, hdr)
	req.Header.Set("Accept-Encoding", "identity")

	resp, err := o.client.Do(req)
	if err != nil {
		return CacheEntry{}, err
	}
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return CacheEntry{}, err
	}

	ent := CacheEntry{
		Status: resp.StatusCode,
		Header: cloneHeader(resp.Header),
		Body:   b,
	}
	ent.Header.Del("Content-Length")
	return ent, nil
}

// reachable probes the origin. Used by the connectivity monitor as the
// online/offline signal.
func (o *originClient) reachable(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, o.base+"/", nil)
	if err != nil {
		return false
	}
	resp, err := o.client.Do(req)
	if err != nil {
		return false
	}
	_ = resp.Body.Close()
	return true
}

func copyHeaders(dst, src http.Header) {
	for k, vs := range src {
		if strings.EqualFold(k, "Host") {
			continue
		}
		for _, v := range vs {
			dst.Add(k, v)
		}
	}
}

func cloneHeader(h http.Header) http.Header {
	out := make(http.Header, len(h))
	for k, vs := range h {
		vv := make([]string, len(vs))
		copy(vv, vs)
		out[k] = vv
	}
	return out
}

func writeEntry(w http.ResponseWriter, ent CacheEntry) {
	for k, vs := range ent.Header {
		for _, v := range vs {
			w.Header().Add(k, v)
		}
	}
	status := ent.Status
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	_, _ = w.Write(ent.Body)
}
