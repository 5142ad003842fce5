package emulator

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/florianilch/rconf/internal/remoteconfig"
)

// maxTemplateSize caps request bodies; the real service rejects templates above 1 MiB.
const maxTemplateSize = 1 << 20

func (e *Emulator) getTemplate(w http.ResponseWriter, r *http.Request) {
	projectID := r.PathValue("project")

	e.mu.Lock()
	t := e.current(projectID)
	etag, body := t.etag, t.body
	e.mu.Unlock()

	e.metrics.observe(r.Method, outcomeOK)
	writeTemplate(w, etag, body)
}

func (e *Emulator) putTemplate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	projectID := r.PathValue("project")

	ifMatch := r.Header.Get("If-Match")
	if ifMatch == "" {
		e.metrics.observe(r.Method, outcomeInvalid)
		writeAPIError(ctx, w, http.StatusBadRequest, "If-Match header is required")
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxTemplateSize))
	if err != nil {
		e.metrics.observe(r.Method, outcomeInvalid)
		writeAPIError(ctx, w, http.StatusBadRequest, "template too large or unreadable")
		return
	}

	var doc remoteconfig.Document
	if err := json.Unmarshal(body, &doc); err != nil || doc == nil {
		e.metrics.observe(r.Method, outcomeInvalid)
		writeAPIError(ctx, w, http.StatusBadRequest, "template must be a JSON object")
		return
	}
	stored, err := encodeTemplate(doc)
	if err != nil {
		e.metrics.observe(r.Method, outcomeInvalid)
		writeAPIError(ctx, w, http.StatusBadRequest, err.Error())
		return
	}

	e.mu.Lock()
	t := e.current(projectID)
	if ifMatch != remoteconfig.WildcardVersion && ifMatch != t.etag {
		current := t.etag
		e.mu.Unlock()

		slog.InfoContext(ctx, "rejected stale write", "project", projectID, "if_match", ifMatch, "current", current)
		e.metrics.observe(r.Method, outcomeConflict)
		writeAPIError(ctx, w, http.StatusConflict, fmt.Sprintf("etag mismatch: template is at %s", current))
		return
	}
	t.etag = newETag()
	t.body = stored
	etag := t.etag
	e.mu.Unlock()

	e.metrics.observe(r.Method, outcomeOK)
	e.metrics.writes.Inc()
	writeTemplate(w, etag, stored)
}

func writeTemplate(w http.ResponseWriter, etag string, body []byte) {
	w.Header().Set("ETag", etag)
	w.Header().Set("Content-Type", "application/json; charset=UTF-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

// encodeTemplate normalizes a template to compact JSON.
func encodeTemplate(doc remoteconfig.Document) ([]byte, error) {
	if doc == nil {
		return nil, fmt.Errorf("template must be a JSON object")
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(doc); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}
