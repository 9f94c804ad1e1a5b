package middleware

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// captureLogs swaps the global zerolog writer for the duration of fn and
// returns what was written.
func captureLogs(fn func()) string {
	var buf bytes.Buffer
	orig := log.Logger
	log.Logger = zerolog.New(&buf)
	defer func() { log.Logger = orig }()
	fn()
	return buf.String()
}

func TestRedactingLogger_ScrubsQueryAndHeaders(t *testing.T) {
	r := newRouter()
	r.Use(RedactingLogger(RedactOptions{}))
	r.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	out := captureLogs(func() {
		req := httptest.NewRequest(http.MethodGet,
			"/x?email=alice@example.com&conv=0b81a9e8-9f5c-4d8e-8f2a-5f0e9c2d1ab3", nil)
		req.Header.Set("X-Contact", "call +1 212-555-1212")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
	})

	for _, leaked := range []string{"alice@example.com", "0b81a9e8", "212-555-1212"} {
		if strings.Contains(out, leaked) {
			t.Fatalf("log leaked %q: %s", leaked, out)
		}
	}
	if !strings.Contains(out, "[REDACTED:email]") || !strings.Contains(out, "[REDACTED:id]") {
		t.Fatalf("redaction markers missing: %s", out)
	}
}

func TestRedactingLogger_MasksIdentityHeaders(t *testing.T) {
	r := newRouter()
	r.Use(RedactingLogger(RedactOptions{MaskHeaders: []string{"X-Api-Key"}}))
	r.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	out := captureLogs(func() {
		req := httptest.NewRequest(http.MethodGet, "/x", nil)
		req.Header.Set("Cookie", "sc_guest_id=g-12345678-secret")
		req.Header.Set("X-Admin-ID", "admin-7")
		req.Header.Set("X-Api-Key", "topsecret")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
	})

	for _, leaked := range []string{"g-12345678-secret", "admin-7", "topsecret"} {
		if strings.Contains(out, leaked) {
			t.Fatalf("log leaked %q: %s", leaked, out)
		}
	}
}

func TestRedactingLogger_LogsStatusAndPath(t *testing.T) {
	r := newRouter()
	r.Use(RedactingLogger(RedactOptions{}))
	r.GET("/conversations/:id", func(c *gin.Context) { c.Status(http.StatusNotFound) })

	out := captureLogs(func() {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/conversations/abc", nil))
	})

	if !strings.Contains(out, `"path":"/conversations/:id"`) {
		t.Fatalf("route path missing: %s", out)
	}
	if !strings.Contains(out, `"status":404`) {
		t.Fatalf("status missing: %s", out)
	}
	if !strings.Contains(out, `"level":"warn"`) {
		t.Fatalf("4xx not logged at warn: %s", out)
	}
}
