package offgate

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"
)

// errUnsatisfied means every step of a strategy failed and the fallback
// handler should answer the request. Strategies must not have written to the
// ResponseWriter when returning it.
var errUnsatisfied = errors.New("request not satisfiable")

type strategy interface {
	serve(w http.ResponseWriter, r *http.Request) error
}

// networkFirst attempts the origin within a hard timeout, caching and
// returning the live response; on failure it serves the request's own cache
// entry if one exists. Used for navigations.
type networkFirst struct {
	origin  *originClient
	store   *cacheStore
	ns      Namespace
	timeout time.Duration
}

func (nf *networkFirst) serve(w http.ResponseWriter, r *http.Request) error {
	uri := r.URL.RequestURI()
	ctx, cancel := context.WithTimeout(r.Context(), nf.timeout)
	defer cancel()

	ent, err := nf.origin.fetch(ctx, r.Method, uri, r.Header, nil)
	if err == nil {
		nf.store.Put(nf.ns, r.Method, uri, ent)
		writeEntry(w, ent)
		return nil
	}
	if cached, ok := nf.store.Get(nf.ns, r.Method, uri); ok {
		writeEntry(w, cached)
		return nil
	}
	return errUnsatisfied
}

// staleWhileRevalidate serves the cached copy immediately when present and
// refreshes it in the background; on a miss it goes to the network.
type staleWhileRevalidate struct {
	origin     *originClient
	store      *cacheStore
	ns         Namespace
	revalidate func(ns Namespace, method, uri string, hdr http.Header)
}

func (sw *staleWhileRevalidate) serve(w http.ResponseWriter, r *http.Request) error {
	uri := r.URL.RequestURI()
	if cached, ok := sw.store.Get(sw.ns, r.Method, uri); ok {
		writeEntry(w, cached)
		sw.revalidate(sw.ns, r.Method, uri, r.Header)
		return nil
	}
	ent, err := sw.origin.fetch(r.Context(), r.Method, uri, r.Header, nil)
	if err != nil {
		return errUnsatisfied
	}
	sw.store.Put(sw.ns, r.Method, uri, ent)
	writeEntry(w, ent)
	return nil
}

// cacheFirst only touches the network on a cache miss. Used for media.
type cacheFirst struct {
	origin *originClient
	store  *cacheStore
	ns     Namespace
}

func (cf *cacheFirst) serve(w http.ResponseWriter, r *http.Request) error {
	uri := r.URL.RequestURI()
	if cached, ok := cf.store.Get(cf.ns, r.Method, uri); ok {
		writeEntry(w, cached)
		return nil
	}
	ent, err := cf.origin.fetch(r.Context(), r.Method, uri, r.Header, nil)
	if err != nil {
		return errUnsatisfied
	}
	cf.store.Put(cf.ns, r.Method, uri, ent)
	writeEntry(w, ent)
	return nil
}

// networkOnly forwards mutations untouched. A network-level failure (never
// an HTTP error response) lands the snapshot in the mutation queue and the
// caller gets 202 instead of an error.
type networkOnly struct {
	origin *originClient
	queue  *mutationQueue
}

func (no *networkOnly) serve(w http.ResponseWriter, r *http.Request) error {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return errUnsatisfied
	}
	uri := r.URL.RequestURI()

	ent, ferr := no.origin.fetch(r.Context(), r.Method, uri, r.Header, body)
	if ferr == nil {
		writeEntry(w, ent)
		return nil
	}

	qm, qerr := no.queue.Enqueue(r.Method, uri, r.Header, body)
	if qerr != nil {
		return errUnsatisfied
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	_ = json.NewEncoder(w).Encode(map[string]any{"queued": true, "id": qm.ID})
	return nil
}

// passThrough proxies without caching. Used for unclassified requests and
// as every strategy when the durable store is unavailable at startup.
type passThrough struct {
	origin *originClient
}

func (pt *passThrough) serve(w http.ResponseWriter, r *http.Request) error {
	var body []byte
	if r.Body != nil {
		b, err := io.ReadAll(r.Body)
		if err != nil {
			return errUnsatisfied
		}
		body = b
	}
	ent, err := pt.origin.fetch(r.Context(), r.Method, r.URL.RequestURI(), r.Header, body)
	if err != nil {
		return errUnsatisfied
	}
	writeEntry(w, ent)
	return nil
}
