package offgate

import (
	"net/http"
	"strings"
)

const offlineJSONBody = `{"error":"offline","message":"This content is unavailable while you are offline."}`

// fallbackHandler answers requests that no strategy could satisfy:
// navigations get the precached offline page, JSON consumers get a
// structured 503, everything else gets a bare 502.
type fallbackHandler struct {
	store       *cacheStore
	offlinePage string
	metrics     *metrics
}

func (f *fallbackHandler) serve(w http.ResponseWriter, r *http.Request, class requestClass) {
	if class == classNavigation && f.store != nil {
		if ent, ok := f.store.Get(NamespacePrecache, http.MethodGet, f.offlinePage); ok {
			f.metrics.fellBack("offline-page")
			writeEntry(w, ent)
			return
		}
	}
	if class != classNavigation && acceptsJSON(r) {
		f.metrics.fellBack("json")
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(offlineJSONBody))
		return
	}
	// Network-error result: status only, no fabricated body.
	f.metrics.fellBack("error")
	w.WriteHeader(http.StatusBadGateway)
}

func acceptsJSON(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "application/json")
}
