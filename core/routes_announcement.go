package core

import (
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
)

type announcementRequest struct {
	Title        string `json:"titleName" form:"titleName"`
	Reason       string `json:"reasonText" form:"reasonText"`
	StatusID     int64  `json:"astid" form:"astid"`
	AudienceID   int64  `json:"tgadid" form:"tgadid"`
	CusID        string `json:"cus_id" form:"cus_id"`
	GroupID      int64  `json:"group_id" form:"group_id"`
	StartDate    string `json:"startdate" form:"startdate"`
	EndDate      string `json:"enddate" form:"enddate"`
	ScheduleDate string `json:"scheduledate" form:"scheduledate"`
	ScheduleHour string `json:"schedulehour" form:"schedulehour"`
}

func (r announcementRequest) input() (AnnouncementInput, error) {
	in := AnnouncementInput{
		Title:        r.Title,
		Reason:       r.Reason,
		StatusID:     r.StatusID,
		AudienceID:   r.AudienceID,
		CusID:        r.CusID,
		GroupID:      r.GroupID,
		ScheduleHour: r.ScheduleHour,
	}
	var err error
	if in.StartDate, err = parseDate(r.StartDate); err != nil {
		return in, err
	}
	if in.EndDate, err = parseDate(r.EndDate); err != nil {
		return in, err
	}
	if in.ScheduleDate, err = parseDate(r.ScheduleDate); err != nil {
		return in, err
	}
	return in, in.Validate()
}

// bindAnnouncement validates the body before any attachment is stored.
func (h *routeHandlers) bindAnnouncement(c *gin.Context) (AnnouncementInput, bool) {
	var req announcementRequest
	if err := c.ShouldBind(&req); err != nil {
		respondBindError(c, err)
		return AnnouncementInput{}, false
	}
	in, err := req.input()
	if err != nil {
		respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
		return AnnouncementInput{}, false
	}
	key, ok := h.saveUpload(c)
	if !ok {
		return AnnouncementInput{}, false
	}
	in.AttachFile = key
	return in, true
}

// enqueueDispatch reports whether the fan-out job was queued. A failure is logged and reported to the
// client as dispatch_queued=false; the announcement itself is already stored.
func (h *routeHandlers) enqueueDispatch(c *gin.Context, id int64) bool {
	if h.deps.Queue == nil {
		return false
	}
	if err := EnqueueAnnouncement(c.Request.Context(), h.deps.Queue, id); err != nil {
		log.Printf("announcement %d: enqueue dispatch: %v", id, err)
		return false
	}
	return true
}

func (h *routeHandlers) registerAnnouncementRoutes(g *gin.RouterGroup) {
	g.POST("/announcements", func(c *gin.Context) {
		in, ok := h.bindAnnouncement(c)
		if !ok {
			return
		}
		a, err := h.deps.Announcements.Create(c.Request.Context(), in, principalIdentity(c))
		if err != nil {
			h.discardUpload(c, in.AttachFile)
			respondRepoError(c, err, "announcement")
			return
		}
		h.audit(c, "create", "announcementdetails", strconv.FormatInt(a.ID, 10), a.Title)
		c.JSON(http.StatusCreated, gin.H{"announcement": a, "dispatch_queued": h.enqueueDispatch(c, a.ID)})
	})

	g.GET("/announcements", func(c *gin.Context) {
		page, perPage, ok := pageBounds(c)
		if !ok {
			return
		}
		f := AnnouncementFilter{Search: strings.TrimSpace(c.Query("searchtext"))}
		if s := strings.TrimSpace(c.Query("searchStatus")); s != "" {
			id, err := strconv.ParseInt(s, 10, 64)
			if err != nil || id <= 0 {
				respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", "searchStatus must be a positive integer")
				return
			}
			f.StatusID = id
		}
		dates, err := parseDateRange(c.Query("searchStartdate"), c.Query("searchEnddate"))
		if err != nil {
			respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
			return
		}
		f.Dates = dates
		items, total, err := h.deps.Announcements.List(c.Request.Context(), f, page, perPage)
		if err != nil {
			respondRepoError(c, err, "announcement")
			return
		}
		respondList(c, items, page, perPage, total)
	})

	g.GET("/announcements/:id", func(c *gin.Context) {
		id, ok := idParam(c)
		if !ok {
			return
		}
		a, err := h.deps.Announcements.Get(c.Request.Context(), id)
		if err != nil {
			respondRepoError(c, err, "announcement")
			return
		}
		c.JSON(http.StatusOK, a)
	})

	g.PUT("/announcements/:id", func(c *gin.Context) {
		id, ok := idParam(c)
		if !ok {
			return
		}
		in, ok := h.bindAnnouncement(c)
		if !ok {
			return
		}
		a, err := h.deps.Announcements.Update(c.Request.Context(), id, in, principalIdentity(c))
		if err != nil {
			h.discardUpload(c, in.AttachFile)
			respondRepoError(c, err, "announcement")
			return
		}
		h.audit(c, "update", "announcementdetails", strconv.FormatInt(id, 10), a.Title)
		c.JSON(http.StatusOK, gin.H{"announcement": a, "dispatch_queued": h.enqueueDispatch(c, id)})
	})

	g.PATCH("/announcements/:id/status", func(c *gin.Context) {
		id, ok := idParam(c)
		if !ok {
			return
		}
		var req struct {
			StatusID     int64  `json:"astid"`
			ActionStatus string `json:"actionStatus"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", "invalid json")
			return
		}
		if req.StatusID <= 0 {
			respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", "astid is required")
			return
		}
		active := !strings.EqualFold(strings.TrimSpace(req.ActionStatus), "Delete")
		a, err := h.deps.Announcements.SetStatus(c.Request.Context(), id, req.StatusID, active, principalIdentity(c))
		if err != nil {
			respondRepoError(c, err, "announcement")
			return
		}
		h.audit(c, "status", "announcementdetails", strconv.FormatInt(id, 10), req.ActionStatus)
		queued := false
		if active {
			queued = h.enqueueDispatch(c, id)
		}
		c.JSON(http.StatusOK, gin.H{"announcement": a, "dispatch_queued": queued})
	})

	g.DELETE("/announcements/:id", func(c *gin.Context) {
		id, ok := idParam(c)
		if !ok {
			return
		}
		if err := h.deps.Announcements.Deactivate(c.Request.Context(), id, principalIdentity(c)); err != nil {
			respondRepoError(c, err, "announcement")
			return
		}
		h.audit(c, "delete", "announcementdetails", strconv.FormatInt(id, 10), "")
		c.Status(http.StatusNoContent)
	})

	g.GET("/announcements/:id/audience", func(c *gin.Context) {
		id, ok := idParam(c)
		if !ok {
			return
		}
		members, err := h.deps.Announcements.Audience(c.Request.Context(), id)
		if err != nil {
			respondRepoError(c, err, "announcement")
			return
		}
		read := 0
		for _, m := range members {
			if m.ReadStatus == ReceiptRead {
				read++
			}
		}
		c.JSON(http.StatusOK, gin.H{"items": members, "total": len(members), "read": read})
	})
}

func (h *routeHandlers) registerAirlineAnnouncementRoutes(g *gin.RouterGroup) {
	list := func(unreadOnly bool) gin.HandlerFunc {
		return func(c *gin.Context) {
			page, perPage, ok := pageBounds(c)
			if !ok {
				return
			}
			items, total, err := h.deps.Announcements.ListForUser(c.Request.Context(), principalIdentity(c), unreadOnly, page, perPage)
			if err != nil {
				respondRepoError(c, err, "announcement")
				return
			}
			respondList(c, items, page, perPage, total)
		}
	}
	g.GET("/announcements", list(false))
	g.GET("/announcements/unread", list(true))

	g.GET("/announcements/:id", func(c *gin.Context) {
		id, ok := idParam(c)
		if !ok {
			return
		}
		rc, err := h.deps.Announcements.GetForUser(c.Request.Context(), id, principalIdentity(c))
		if err != nil {
			respondRepoError(c, err, "announcement")
			return
		}
		c.JSON(http.StatusOK, rc)
	})

	g.POST("/announcements/:id/read", func(c *gin.Context) {
		id, ok := idParam(c)
		if !ok {
			return
		}
		if err := h.deps.Announcements.MarkRead(c.Request.Context(), id, principalIdentity(c)); err != nil {
			respondRepoError(c, err, "announcement")
			return
		}
		rc, err := h.deps.Announcements.GetForUser(c.Request.Context(), id, principalIdentity(c))
		if err != nil {
			respondRepoError(c, err, "announcement")
			return
		}
		c.JSON(http.StatusOK, rc)
	})
}
