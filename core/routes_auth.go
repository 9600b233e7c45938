package core

import (
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
)

type loginRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *routeHandlers) login(realm Realm) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req loginRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", "invalid json")
			return
		}
		identity := strings.TrimSpace(req.Username)
		if identity == "" {
			identity = strings.TrimSpace(req.Email)
		}
		if identity == "" || req.Password == "" {
			respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", "username and password are required")
			return
		}

		ctx := c.Request.Context()
		limiter := h.deps.FailureLimiter
		if limiter != nil {
			if blocked, retryIn, err := limiter.Blocked(ctx, realm, identity, c.ClientIP()); err != nil {
				log.Printf("login: failure limiter unavailable: %v", err)
			} else if blocked {
				c.Header("Retry-After", strconv.Itoa(retryAfterSeconds(retryIn)))
				respondError(c, http.StatusTooManyRequests, "RATE_LIMITED", "too many failed attempts")
				return
			}
		}

		acct, err := h.deps.Logins.Login(ctx, realm, identity, req.Password)
		if err != nil {
			if errors.Is(err, ErrInvalidCredentials) {
				if limiter != nil {
					if err := limiter.RecordFailure(ctx, realm, identity, c.ClientIP()); err != nil {
						log.Printf("login: record failure: %v", err)
					}
				}
				respondError(c, http.StatusUnauthorized, "INVALID_CREDENTIALS", "invalid username or password")
				return
			}
			log.Printf("login %s/%q: %v", realm, identity, err)
			respondError(c, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "login failed")
			return
		}

		session := sessionFrom(c)
		if session == nil {
			respondError(c, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "session error")
			return
		}
		csrfToken, err := generateCSRFToken()
		if err != nil {
			respondError(c, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "failed to issue csrf token")
			return
		}
		// a fresh session on login; nothing from an earlier identity survives
		session.Values = map[any]any{
			sessionUsernameKey: acct.Identity,
			sessionRealmKey:    string(acct.Realm),
			sessionTokenKey:    acct.TokenKey,
			"csrf_token":       csrfToken,
		}
		applySessionOptions(h.cfg, session)
		if err := session.Save(c.Request, c.Writer); err != nil {
			respondError(c, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "failed to persist session")
			return
		}
		c.Header("X-CSRF-Token", csrfToken)

		c.JSON(http.StatusOK, gin.H{
			"user": gin.H{
				"username":     acct.Identity,
				"realm":        acct.Realm,
				"display_name": acct.DisplayName,
				"role":         acct.Role,
			},
			"tokenkey": acct.TokenKey,
		})
	}
}

func (h *routeHandlers) logout(c *gin.Context) {
	session := sessionFrom(c)
	if session == nil {
		c.Status(http.StatusNoContent)
		return
	}
	session.Values = map[any]any{}
	session.Options.MaxAge = -1
	if err := session.Save(c.Request, c.Writer); err != nil {
		respondError(c, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "failed to clear session")
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *routeHandlers) me(c *gin.Context) {
	p, _ := principalFrom(c)
	c.JSON(http.StatusOK, gin.H{"user": gin.H{"username": p.Identity, "realm": p.Realm}})
}
