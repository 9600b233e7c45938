package core

import (
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/sessions"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

// RouterDeps are the collaborators the HTTP handlers need.
// FailureLimiter and Queue may be nil.
type RouterDeps struct {
	Authenticator  Authenticator
	FailureLimiter AuthFailureLimiter
	Logins         LoginService
	Staff          StaffUserRepository
	Lookups        LookupRepository
	AirlineDetails AirlineDetailRepository
	Tickets        TicketRepository
	Announcements  AnnouncementRepository
	Attachments    AttachmentStore
	Queue          JobQueue
	Audit          AuditLog
	Metrics        *MetricsService
	DB             Pinger
}

// NewPgRouterDeps wires the postgres and redis backed implementations.
func NewPgRouterDeps(cfg Config, db *pgxpool.Pool, rdb *redis.Client, attachments AttachmentStore) RouterDeps {
	staff := NewPgStaffUserRepository(db)
	airline := NewPgAirlineUserRepository(db)
	deps := RouterDeps{
		Authenticator:  NewTokenAuthenticator(NewPgCredentialStore(db)),
		Logins:         NewRepositoryLoginService(staff, airline),
		Staff:          staff,
		Lookups:        NewPgLookupRepository(db),
		AirlineDetails: NewPgAirlineDetailRepository(db),
		Tickets:        NewPgTicketRepository(db),
		Announcements:  NewPgAnnouncementRepository(db),
		Attachments:    attachments,
		Audit:          NewPgAuditLog(db),
		DB:             db,
	}
	if rdb != nil {
		deps.Queue = NewRedisQueue(rdb)
		deps.Metrics = NewMetricsService(rdb)
		if l := NewRedisAuthFailureLimiter(rdb, cfg.AuthFailureLimit, cfg.AuthFailureWindow); l != nil {
			deps.FailureLimiter = l
		}
	}
	return deps
}

type routeHandlers struct {
	cfg       Config
	deps      RouterDeps
	startedAt time.Time
}

// NewRouter constructs the Gin engine with routes wired.
func NewRouter(cfg Config, store sessions.Store, deps RouterDeps) *gin.Engine {
	h := &routeHandlers{cfg: cfg, deps: deps, startedAt: time.Now()}
	r := gin.New()
	r.MaxMultipartMemory = 8 << 20
	if err := r.SetTrustedProxies(cfg.TrustedProxies); err != nil {
		log.Printf("invalid TRUSTED_PROXIES %v: %v; trusting none", cfg.TrustedProxies, err)
		_ = r.SetTrustedProxies(nil)
	}

	// Global middleware: logging -> body limit -> origin/CORS -> session -> CSRF
	r.Use(gin.Recovery(), RequestLogger())
	r.Use(BodyLimitMiddleware(requestBodyLimit(cfg)))
	r.Use(OriginRefererMiddleware(cfg))
	r.Use(SessionMiddleware(cfg, store))
	r.Use(CSRFMiddleware(cfg))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	var authOpts []RequireTokenOption
	if deps.FailureLimiter != nil {
		authOpts = append(authOpts, WithFailureLimiter(deps.FailureLimiter))
	}

	api := r.Group("/api/v1")
	api.POST("/auth/login", h.login(RealmStaff))
	api.POST("/airline/auth/login", h.login(RealmAirline))
	api.POST("/auth/logout", h.logout)

	staff := api.Group("", RequireToken(RealmStaff, deps.Authenticator, authOpts...))
	{
		staff.GET("/auth/me", h.me)
		h.registerLookupRoutes(staff)
		h.registerAirlineDetailRoutes(staff)
		h.registerTicketRoutes(staff)
		h.registerAnnouncementRoutes(staff)
		h.registerAdminRoutes(staff)
		staff.GET("/attachments/:key", h.downloadAttachment)
	}

	airline := api.Group("/airline", RequireToken(RealmAirline, deps.Authenticator, authOpts...))
	{
		airline.GET("/auth/me", h.me)
		h.registerAirlineAnnouncementRoutes(airline)
		airline.GET("/attachments/:key", h.downloadAirlineAttachment)
	}

	return r
}

// audit records a mutation by the current principal.
func (h *routeHandlers) audit(c *gin.Context, action, entity, entityID, detail string) {
	if h.deps.Audit == nil {
		return
	}
	p, _ := principalFrom(c)
	h.deps.Audit.Record(c.Request.Context(), AuditEntry{
		Actor:    p.Identity,
		Realm:    p.Realm,
		Action:   action,
		Entity:   entity,
		EntityID: entityID,
		Detail:   detail,
	})
}
