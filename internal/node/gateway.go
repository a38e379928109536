package node

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"

	"causalkv/internal/storage"
)

const maxValueBytes = 1 << 20

type entryJSON struct {
	Version string `json:"version"`
	Counter uint64 `json:"counter"`
	Replica int    `json:"replica"`
	Key     string `json:"key"`
	Value   string `json:"value"`
}

type valueJSON struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// NewGateway exposes n over HTTP. The request body of PUT /kv/{key} is
// the raw value. metricsHandler may be nil.
func NewGateway(n *Node, metricsHandler http.Handler, logger log.Logger) http.Handler {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	g := &gateway{node: n, logger: log.With(logger, "component", "gateway")}

	r := chi.NewRouter()

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "node": n.ID()})
	})
	r.Get("/entries", g.entries)
	r.Get("/entries/shadowed", g.shadowed)
	r.Get("/kv/{key}", g.get)
	r.Put("/kv/{key}", g.put)
	r.Delete("/kv/{key}", g.delete)
	if metricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", metricsHandler)
	}

	return r
}

type gateway struct {
	node   *Node
	logger log.Logger
}

func (g *gateway) get(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	value, err := g.node.Get(key)
	if err != nil {
		g.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, valueJSON{Key: key, Value: value})
}

func (g *gateway) put(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxValueBytes))
	if err != nil {
		code := http.StatusBadRequest
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			code = http.StatusRequestEntityTooLarge
		}
		writeJSON(w, code, map[string]string{"error": err.Error()})
		return
	}
	if err := g.node.Put(key, string(body)); err != nil {
		g.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, valueJSON{Key: key, Value: string(body)})
}

func (g *gateway) delete(w http.ResponseWriter, r *http.Request) {
	if err := g.node.Delete(chi.URLParam(r, "key")); err != nil {
		g.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (g *gateway) entries(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, toEntryJSON(g.node.Snapshot()))
}

// shadowed lists concurrent writes that lost the tie-break and are
// hidden from reads.
func (g *gateway) shadowed(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, toEntryJSON(g.node.Shadowed()))
}

func toEntryJSON(entries []storage.Entry) []entryJSON {
	out := make([]entryJSON, len(entries))
	for i, e := range entries {
		out[i] = entryJSON{
			Version: e.Version.String(),
			Counter: e.Version.Counter,
			Replica: e.Version.Replica,
			Key:     e.Key,
			Value:   e.Value,
		}
	}
	return out
}

func (g *gateway) fail(w http.ResponseWriter, err error) {
	code := http.StatusInternalServerError
	switch {
	case errors.Is(err, ErrNotFound):
		code = http.StatusNotFound
	case errors.Is(err, ErrEmptyKey):
		code = http.StatusBadRequest
	default:
		level.Error(g.logger).Log("msg", "request failed", "err", err)
	}
	writeJSON(w, code, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
