package middleware

import (
	"bytes"
	"io"
	"net/http"

	"github.com/brokerline/backend/internal/httpx"
)

// SchemaValidator validates a raw JSON body against a named schema.
type SchemaValidator interface {
	ValidateJSON(name string, raw []byte) error
}

// SchemaCheck rejects bodies that do not match the named schema, then
// restores r.Body so the handler can decode it again.
func SchemaCheck(v SchemaValidator, schema string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
			r.Body.Close()
			if err != nil {
				httpx.Error(w, http.StatusBadRequest, "failed to read body")
				return
			}
			if err := v.ValidateJSON(schema, body); err != nil {
				httpx.Error(w, http.StatusBadRequest, err.Error())
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))
			next.ServeHTTP(w, r)
		})
	}
}
