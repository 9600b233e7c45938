package core

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/sessions"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newAuthTestEngine(realm Realm, authn Authenticator, session *sessions.Session, opts ...RequireTokenOption) (*gin.Engine, *int) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	if session != nil {
		r.Use(func(c *gin.Context) {
			c.Set("session", session)
			c.Next()
		})
	}
	reached := 0
	g := r.Group("/protected", RequireToken(realm, authn, opts...))
	g.GET("", func(c *gin.Context) {
		reached++
		p, ok := principalFrom(c)
		if !ok {
			c.Status(http.StatusTeapot)
			return
		}
		c.JSON(http.StatusOK, gin.H{"identity": p.Identity, "realm": p.Realm})
	})
	return r, &reached
}

func doGet(r http.Handler, target string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, target, nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRequireToken_HeaderCredentials(t *testing.T) {
	authn, _ := newTestAuthenticator()
	r, reached := newAuthTestEngine(RealmStaff, authn, nil)

	w := doGet(r, "/protected", map[string]string{headerUsername: "agent7", headerTokenKey: "abc123"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.JSONEq(t, `{"identity":"agent7","realm":"staff"}`, w.Body.String())
	assert.Equal(t, 1, *reached)
}

func TestRequireToken_QueryCredentials(t *testing.T) {
	authn, _ := newTestAuthenticator()
	r, _ := newAuthTestEngine(RealmAirline, authn, nil)

	w := doGet(r, "/protected?username=ops@air.com&setTokenkey=tok-ops", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = doGet(r, "/protected?username=ops@air.com&setTokkenkey=tok-ops", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRequireToken_MissingCredentials(t *testing.T) {
	authn, store := newTestAuthenticator()
	r, reached := newAuthTestEngine(RealmStaff, authn, nil)

	for _, target := range []string{"/protected", "/protected?username=agent7", "/protected?setTokenkey=abc123"} {
		w := doGet(r, target, nil)
		assert.Equal(t, http.StatusBadRequest, w.Code, target)
		assert.Contains(t, w.Body.String(), "VALIDATION_ERROR")
	}
	assert.Zero(t, *reached)
	assert.Zero(t, store.calls())
}

func TestRequireToken_DenialsAreIndistinguishable(t *testing.T) {
	authn, _ := newTestAuthenticator()
	r, reached := newAuthTestEngine(RealmStaff, authn, nil)

	mismatch := doGet(r, "/protected", map[string]string{headerUsername: "agent7", headerTokenKey: "ABC123"})
	notFound := doGet(r, "/protected", map[string]string{headerUsername: "ghost", headerTokenKey: "abc123"})

	assert.Equal(t, http.StatusUnauthorized, mismatch.Code)
	assert.Equal(t, http.StatusUnauthorized, notFound.Code)
	assert.Equal(t, mismatch.Body.String(), notFound.Body.String())
	assert.Zero(t, *reached)
}

func TestRequireToken_StoreFault(t *testing.T) {
	authn, store := newTestAuthenticator()
	store.err = errors.New("db down")
	r, reached := newAuthTestEngine(RealmStaff, authn, nil)

	w := doGet(r, "/protected", map[string]string{headerUsername: "agent7", headerTokenKey: "abc123"})
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), "db down")
	assert.Zero(t, *reached)
}

func TestRequireToken_SessionFallbackMatchesRealm(t *testing.T) {
	authn, _ := newTestAuthenticator()
	cookieStore := sessions.NewCookieStore([]byte("test-session-key"))
	sess := sessions.NewSession(cookieStore, sessionName)
	sess.Values[sessionUsernameKey] = "agent7"
	sess.Values[sessionRealmKey] = string(RealmStaff)
	sess.Values[sessionTokenKey] = "abc123"

	staff, _ := newAuthTestEngine(RealmStaff, authn, sess)
	assert.Equal(t, http.StatusOK, doGet(staff, "/protected", nil).Code)

	airline, _ := newAuthTestEngine(RealmAirline, authn, sess)
	assert.Equal(t, http.StatusBadRequest, doGet(airline, "/protected", nil).Code)
}

func TestRequireToken_FailureLimiter(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	limiter := NewRedisAuthFailureLimiter(client, 2, time.Minute)
	authn, store := newTestAuthenticator()
	r, _ := newAuthTestEngine(RealmStaff, authn, nil, WithFailureLimiter(limiter))

	bad := map[string]string{headerUsername: "agent7", headerTokenKey: "nope"}
	assert.Equal(t, http.StatusUnauthorized, doGet(r, "/protected", bad).Code)
	assert.Equal(t, http.StatusUnauthorized, doGet(r, "/protected", bad).Code)

	calls := store.calls()
	w := doGet(r, "/protected", map[string]string{headerUsername: "agent7", headerTokenKey: "abc123"})
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))
	assert.Equal(t, calls, store.calls(), "blocked requests must not reach the store")

	var body struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "RATE_LIMITED", body.Error.Code)

	mr.FastForward(2 * time.Minute)
	assert.Equal(t, http.StatusOK, doGet(r, "/protected", map[string]string{headerUsername: "agent7", headerTokenKey: "abc123"}).Code)
}

func TestRequireToken_LimiterOutageFailsOpen(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })
	limiter := NewRedisAuthFailureLimiter(client, 1, time.Minute)
	mr.Close()

	authn, _ := newTestAuthenticator()
	r, _ := newAuthTestEngine(RealmStaff, authn, nil, WithFailureLimiter(limiter))
	w := doGet(r, "/protected", map[string]string{headerUsername: "agent7", headerTokenKey: "abc123"})
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRequireToken_FailureLimiterIsPerClient(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	limiter := NewRedisAuthFailureLimiter(client, 2, time.Minute)
	authn, _ := newTestAuthenticator()
	r, _ := newAuthTestEngine(RealmStaff, authn, nil, WithFailureLimiter(limiter))
	_ = r.SetTrustedProxies(nil)

	from := func(addr, token string) int {
		req := httptest.NewRequest(http.MethodGet, "/protected", nil)
		req.RemoteAddr = addr
		req.Header.Set(headerUsername, "agent7")
		req.Header.Set(headerTokenKey, token)
		// ignored: no proxy is trusted
		req.Header.Set("X-Forwarded-For", "198.51.100.9")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w.Code
	}

	assert.Equal(t, http.StatusUnauthorized, from("203.0.113.5:4000", "nope"))
	assert.Equal(t, http.StatusUnauthorized, from("203.0.113.5:4001", "nope"))
	assert.Equal(t, http.StatusTooManyRequests, from("203.0.113.5:4002", "abc123"))

	// the account owner on another address is not locked out
	assert.Equal(t, http.StatusOK, from("192.0.2.44:5000", "abc123"))
}

func TestAuthFailureKey_HidesIdentity(t *testing.T) {
	key := authFailureKey(RealmAirline, "flyer@air.com", "203.0.113.5")
	assert.NotContains(t, key, "flyer")
	assert.NotContains(t, key, "203.0.113.5")
	assert.Contains(t, key, "auth:fail:airline:")
	assert.NotEqual(t, key, authFailureKey(RealmStaff, "flyer@air.com", "203.0.113.5"))
	assert.NotEqual(t, key, authFailureKey(RealmAirline, "flyer@air.com", "192.0.2.44"))
}

func TestNewRedisAuthFailureLimiter_Disabled(t *testing.T) {
	assert.Nil(t, NewRedisAuthFailureLimiter(nil, 5, time.Minute))
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"})
	t.Cleanup(func() { _ = client.Close() })
	assert.Nil(t, NewRedisAuthFailureLimiter(client, 0, time.Minute))
}
