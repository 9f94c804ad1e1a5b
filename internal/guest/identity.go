// Package guest issues and recognizes the pseudo-identity of an anonymous
// site visitor. No server-side guest account exists: the identifier is a
// correlation key only, persisted in durable client storage (a long-lived
// cookie). When the client refuses cookies the identity degrades to a
// session-scoped value echoed through a header; messages sent under it will
// not correlate across reloads, which is a documented degradation rather
// than an error.
package guest

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/http"
	"regexp"
	"time"

	"github.com/gin-gonic/gin"
)

const (
	// CookieName is the durable client storage slot for the guest id.
	CookieName = "sc_guest_id"
	// HeaderGuestID carries a session-scoped id when cookies are unavailable.
	HeaderGuestID = "X-Guest-ID"
	// cookieTTL keeps the identity for a year of page loads.
	cookieTTL = 365 * 24 * time.Hour
)

// idRE bounds accepted identifiers: generated ids match it, and anything a
// client presents must too, so malformed values never reach logs or the DB.
var idRE = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._:\-]{7,63}$`)

// NewID generates an identifier unique with overwhelming probability:
// a millisecond time component plus a random hex suffix.
func NewID() string {
	var buf [6]byte
	if _, err := rand.Read(buf[:]); err != nil {
		// crypto/rand failing is effectively fatal elsewhere; fall back to
		// the clock alone rather than panicking in a request path.
		return fmt.Sprintf("g-%d-0", time.Now().UnixNano())
	}
	return fmt.Sprintf("g-%d-%s", time.Now().UnixMilli(), hex.EncodeToString(buf[:]))
}

// Valid reports whether id is an acceptable guest identifier.
func Valid(id string) bool { return idRE.MatchString(id) }

// ContextKey is the Gin context key under which Identify stores the resolved
// guest id for downstream middleware (logging, rate limiting) and handlers.
const ContextKey = "guestID"

// Identify is a Gin middleware that resolves the guest identity once per
// request and stashes it in the context under ContextKey.
func Identify() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, _ := EnsureID(c)
		c.Set(ContextKey, id)
		c.Next()
	}
}

// FromContext returns the guest id stashed by Identify, or "" when absent.
func FromContext(c *gin.Context) string {
	if v, ok := c.Get(ContextKey); ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// EnsureID resolves the guest identity for the current request and returns
// it together with whether it is durably persisted.
//
// Resolution order:
//  1. cookie: the durable identity, reused as-is.
//  2. X-Guest-ID header: session-scoped fallback supplied by clients that
//     could not store the cookie; reused but reported as not persisted.
//  3. otherwise a fresh id is generated and written back as a cookie.
//
// One storage write happens on first use; subsequent calls in the same
// browser profile return the same id with no side effect.
func EnsureID(c *gin.Context) (id string, persisted bool) {
	if v, err := c.Cookie(CookieName); err == nil && Valid(v) {
		return v, true
	}
	if v := c.GetHeader(HeaderGuestID); v != "" && Valid(v) {
		return v, false
	}

	id = NewID()
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(CookieName, id, int(cookieTTL.Seconds()), "/", "", false, true)
	return id, true
}
