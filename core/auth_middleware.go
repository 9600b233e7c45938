package core

import (
	"errors"
	"log"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/sessions"
)

const (
	headerUsername = "X-Username"
	headerTokenKey = "X-Token-Key"

	principalKey = "principal"

	sessionUsernameKey = "username"
	sessionRealmKey    = "realm"
	sessionTokenKey    = "tokenkey"

	unauthorizedMessage = "invalid username or token key"
)

// Principal is the authenticated caller attached to the gin context.
type Principal struct {
	Identity string
	Realm    Realm
}

type requireTokenConfig struct {
	limiter AuthFailureLimiter
}

// RequireTokenOption customizes RequireToken.
type RequireTokenOption func(*requireTokenConfig)

// WithFailureLimiter rejects identities over the failure limit with 429 before any lookup.
func WithFailureLimiter(l AuthFailureLimiter) RequireTokenOption {
	return func(cfg *requireTokenConfig) {
		cfg.limiter = l
	}
}

// RequireToken authenticates every request of a route group against realm.
// Only an Allow decision reaches the handlers.
func RequireToken(realm Realm, authn Authenticator, opts ...RequireTokenOption) gin.HandlerFunc {
	var cfg requireTokenConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	return func(c *gin.Context) {
		creds := credentialsFromRequest(c, realm)
		if strings.TrimSpace(creds.identity) == "" || creds.token == "" {
			respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", "username and token key are required")
			c.Abort()
			return
		}

		ctx := c.Request.Context()
		if cfg.limiter != nil {
			blocked, retryAfter, err := cfg.limiter.Blocked(ctx, realm, creds.identity, c.ClientIP())
			if err != nil {
				log.Printf("auth: failure limiter unavailable realm=%s: %v", realm, err)
			} else if blocked {
				c.Header("Retry-After", strconv.Itoa(retryAfterSeconds(retryAfter)))
				respondError(c, http.StatusTooManyRequests, "RATE_LIMITED", "too many failed attempts")
				c.Abort()
				return
			}
		}

		decision, err := authn.Authenticate(ctx, creds.identity, realm, creds.token)
		if err != nil {
			if errors.Is(err, ErrMissingCredentials) {
				respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", "username and token key are required")
				c.Abort()
				return
			}
			log.Printf("auth: credential lookup failed realm=%s source=%s: %v", realm, creds.source, err)
			respondError(c, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "authentication unavailable")
			c.Abort()
			return
		}
		if !decision.Allowed() {
			if cfg.limiter != nil {
				if err := cfg.limiter.RecordFailure(ctx, realm, creds.identity, c.ClientIP()); err != nil {
					log.Printf("auth: record failure realm=%s: %v", realm, err)
				}
			}
			respondError(c, http.StatusUnauthorized, "UNAUTHORIZED", unauthorizedMessage)
			c.Abort()
			return
		}

		c.Set(principalKey, Principal{Identity: creds.identity, Realm: realm})
		c.Next()
	}
}

// principalFrom returns the caller set by RequireToken.
func principalFrom(c *gin.Context) (Principal, bool) {
	v, ok := c.Get(principalKey)
	if !ok {
		return Principal{}, false
	}
	p, ok := v.(Principal)
	return p, ok
}

type presentedCredentials struct {
	identity string
	token    string
	source   string
}

// credentialsFromRequest reads headers first, then query parameters, then the login session.
// The session is only used when it was issued for the same realm.
func credentialsFromRequest(c *gin.Context, realm Realm) presentedCredentials {
	if id, tok := c.GetHeader(headerUsername), c.GetHeader(headerTokenKey); id != "" || tok != "" {
		return presentedCredentials{identity: id, token: tok, source: "header"}
	}
	if id, tok := c.Query("username"), queryTokenKey(c); id != "" || tok != "" {
		return presentedCredentials{identity: id, token: tok, source: "query"}
	}
	if sess := sessionFrom(c); sess != nil {
		if r, _ := sess.Values[sessionRealmKey].(string); r == string(realm) {
			id, _ := sess.Values[sessionUsernameKey].(string)
			tok, _ := sess.Values[sessionTokenKey].(string)
			return presentedCredentials{identity: id, token: tok, source: "session"}
		}
	}
	return presentedCredentials{}
}

// queryTokenKey also accepts the misspelled parameter older clients send.
func queryTokenKey(c *gin.Context) string {
	return firstNonEmpty(c.Query("setTokenkey"), c.Query("setTokkenkey"))
}

// hasExplicitToken reports whether the request carries its token outside the session cookie.
func hasExplicitToken(c *gin.Context) bool {
	return c.GetHeader(headerTokenKey) != "" || queryTokenKey(c) != ""
}

func sessionFrom(c *gin.Context) *sessions.Session {
	v, ok := c.Get("session")
	if !ok {
		return nil
	}
	sess, _ := v.(*sessions.Session)
	return sess
}

func retryAfterSeconds(d time.Duration) int {
	s := int(math.Ceil(d.Seconds()))
	if s < 1 {
		return 1
	}
	return s
}
