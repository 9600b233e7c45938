package core

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/sessions"
)

const sessionName = "ticketaps_session"

// Public endpoints under /api/v1; every other API route sits behind RequireToken.
const (
	staffLoginPath   = "/api/v1/auth/login"
	airlineLoginPath = "/api/v1/airline/auth/login"
	logoutPath       = "/api/v1/auth/logout"
)

// multipartOverhead is allowed on top of MaxAttachmentSize for form fields and part headers.
const multipartOverhead = 1 << 20
const sessionMaxAge = 8 * 60 * 60

// SessionMiddleware loads the cookie session (creating an empty one) and exposes it as "session".
func SessionMiddleware(cfg Config, store sessions.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		session, err := store.Get(c.Request, sessionName)
		if err != nil && session == nil {
			respondError(c, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "session error")
			c.Abort()
			return
		}
		// a cookie signed with a rotated key decodes with an error; start over with a fresh session
		applySessionOptions(cfg, session)
		c.Set("session", session)
		c.Next()
	}
}

// OriginRefererMiddleware validates Origin/Referer against allowed list and sets CORS headers.
func OriginRefererMiddleware(cfg Config) gin.HandlerFunc {
	allowed := map[string]struct{}{}
	for _, o := range cfg.AllowedOrigins {
		allowed[strings.ToLower(o)] = struct{}{}
	}

	isAllowed := func(origin string) bool {
		if origin == "" {
			// Same-origin navigation and non-browser clients send no Origin.
			return true
		}
		_, ok := allowed[strings.ToLower(origin)]
		return ok
	}

	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if referer := c.GetHeader("Referer"); origin == "" && referer != "" {
			if u, err := url.Parse(referer); err == nil && u.Host != "" {
				origin = u.Scheme + "://" + u.Host
			}
		}

		if !isAllowed(origin) {
			respondError(c, http.StatusForbidden, "FORBIDDEN", "origin not allowed")
			c.Abort()
			return
		}
		if origin != "" {
			setCORSHeaders(c, origin)
		}
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

func setCORSHeaders(c *gin.Context, origin string) {
	c.Header("Access-Control-Allow-Origin", origin)
	c.Header("Vary", "Origin")
	c.Header("Access-Control-Allow-Credentials", "true")
	c.Header("Access-Control-Allow-Headers", "Content-Type, X-CSRF-Token, X-Username, X-Token-Key, X-Request-ID")
	c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
	c.Header("Access-Control-Expose-Headers", "X-CSRF-Token, X-Request-ID")
}

// CSRFMiddleware issues a per-session CSRF token and checks it on unsafe requests that rely on the session cookie.
// Requests carrying their token key in a header or query parameter skip the check on token-guarded routes,
// where RequireToken verifies that key.
func CSRFMiddleware(cfg Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		session := sessionFrom(c)
		if session == nil {
			respondError(c, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "session error")
			c.Abort()
			return
		}

		token, _ := session.Values["csrf_token"].(string)
		if token == "" {
			var err error
			token, err = generateCSRFToken()
			if err != nil {
				respondError(c, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "failed to issue csrf token")
				c.Abort()
				return
			}
			session.Values["csrf_token"] = token
			if err := session.Save(c.Request, c.Writer); err != nil {
				respondError(c, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "failed to persist session")
				c.Abort()
				return
			}
		}

		if !isSafeMethod(c.Request.Method) && !csrfExemptPath(c.Request.URL.Path) &&
			!(hasExplicitToken(c) && tokenGuardedPath(c.Request.URL.Path)) {
			if header := c.GetHeader("X-CSRF-Token"); header == "" || header != token {
				respondError(c, http.StatusForbidden, "FORBIDDEN", "invalid csrf token")
				c.Abort()
				return
			}
		}

		c.Writer.Header().Set("X-CSRF-Token", token)
		c.Next()
	}
}

func isSafeMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions, http.MethodTrace:
		return true
	default:
		return false
	}
}

func csrfExemptPath(path string) bool {
	switch path {
	case staffLoginPath, airlineLoginPath:
		return true
	default:
		return false
	}
}

func tokenGuardedPath(path string) bool {
	if !strings.HasPrefix(path, "/api/v1/") {
		return false
	}
	switch path {
	case staffLoginPath, airlineLoginPath, logoutPath:
		return false
	default:
		return true
	}
}

// BodyLimitMiddleware rejects bodies over limit bytes; limit <= 0 disables it.
func BodyLimitMiddleware(limit int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if limit <= 0 || c.Request.Body == nil || c.Request.Body == http.NoBody {
			c.Next()
			return
		}
		if c.Request.ContentLength > limit {
			respondError(c, http.StatusRequestEntityTooLarge, "PAYLOAD_TOO_LARGE",
				fmt.Sprintf("request body exceeds %d bytes", limit))
			c.Abort()
			return
		}
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)
		c.Next()
	}
}

func requestBodyLimit(cfg Config) int64 {
	if cfg.MaxAttachmentSize <= 0 {
		return 0
	}
	return cfg.MaxAttachmentSize + multipartOverhead
}

func generateCSRFToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(b), nil
}

func applySessionOptions(cfg Config, session *sessions.Session) {
	if session.Options == nil {
		session.Options = &sessions.Options{}
	}
	session.Options.Path = "/"
	session.Options.MaxAge = sessionMaxAge
	session.Options.HttpOnly = true
	session.Options.Secure = cfg.CookieSecure
	session.Options.SameSite = sameSiteFromString(cfg.CookieSameSite)
}

func sameSiteFromString(v string) http.SameSite {
	switch strings.ToLower(v) {
	case "lax":
		return http.SameSiteLaxMode
	case "none":
		return http.SameSiteNoneMode
	default:
		return http.SameSiteStrictMode
	}
}
