package web

import (
	"bytes"
	"encoding/json"
	"html/template"
	"io"
	"net/http"
	"strconv"

	"github.com/yuin/goldmark"

	"github.com/hpungsan/keepsake/internal/errors"
)

// maxBodyBytes bounds request payloads. Capsule bodies are limited in
// characters; this only stops abuse before decoding.
const maxBodyBytes = 1 << 20

// errorBody is the JSON error envelope.
func errorBody(code, message string, status int) map[string]any {
	return map[string]any{
		"error": map[string]any{
			"code":    code,
			"message": message,
			"status":  status,
		},
	}
}

// renderError writes a KeepsakeError as JSON. Anything else is a 500.
func renderError(w http.ResponseWriter, err error) {
	kErr, ok := errors.As(err)
	if !ok {
		kErr = errors.NewInternal(err)
	}

	body := errorBody(string(kErr.Code), kErr.Message, kErr.Status)
	inner := body["error"].(map[string]any)
	if len(kErr.Details) > 0 {
		inner["details"] = kErr.Details
	}
	if kErr.Retryable() {
		inner["retryable"] = true
	}
	renderJSON(w, kErr.Status, body)
}

// renderJSON writes a JSON response.
func renderJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// renderMarkdown converts markdown text to HTML using goldmark. Raw HTML
// in the source is omitted.
func renderMarkdown(md string) template.HTML {
	var buf bytes.Buffer
	if err := goldmark.Convert([]byte(md), &buf); err != nil {
		return template.HTML(template.HTMLEscapeString(md))
	}
	return template.HTML(buf.String())
}

// readBody reads a bounded request body.
func readBody(r *http.Request) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes+1))
	if err != nil {
		return nil, errors.NewValidation("could not read request body")
	}
	if len(data) > maxBodyBytes {
		return nil, errors.NewValidation("request body too large")
	}
	return data, nil
}

// decodeStrict decodes a JSON object into v, rejecting unknown fields.
func decodeStrict(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return errors.NewValidation("invalid JSON: " + err.Error())
	}
	return nil
}

// parseIntParam parses an integer query parameter with a default value.
func parseIntParam(r *http.Request, name string, defaultVal int) int {
	s := r.URL.Query().Get(name)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return defaultVal
	}
	return v
}

// parseBoolParam parses a boolean query parameter.
func parseBoolParam(r *http.Request, name string) bool {
	s := r.URL.Query().Get(name)
	return s == "true" || s == "1"
}
