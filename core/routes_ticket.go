package core

import (
	"net/http"
	"net/mail"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
)

type ticketRequest struct {
	Subject      string `json:"subject" form:"subject"`
	Email        string `json:"email" form:"email"`
	CategoryID   int64  `json:"tcid" form:"tcid"`
	PriorityID   int64  `json:"ptid" form:"ptid"`
	Descriptions string `json:"descriptions" form:"descriptions"`
}

func (r ticketRequest) validate() string {
	switch {
	case strings.TrimSpace(r.Subject) == "":
		return "subject is required"
	case strings.TrimSpace(r.Email) == "":
		return "email is required"
	case r.CategoryID <= 0:
		return "tcid is required"
	case r.PriorityID <= 0:
		return "ptid is required"
	}
	if _, err := mail.ParseAddress(strings.TrimSpace(r.Email)); err != nil {
		return "email is invalid"
	}
	return ""
}

var ticketStatuses = map[string]bool{TicketOpen: true, TicketAssigned: true, TicketClosed: true}

func (h *routeHandlers) registerTicketRoutes(g *gin.RouterGroup) {
	g.POST("/tickets", h.createTicket)
	g.GET("/tickets", h.listTickets)

	g.GET("/tickets/:id", func(c *gin.Context) {
		id, ok := idParam(c)
		if !ok {
			return
		}
		t, err := h.deps.Tickets.Get(c.Request.Context(), id)
		if err != nil {
			respondRepoError(c, err, "ticket")
			return
		}
		c.JSON(http.StatusOK, t)
	})

	g.POST("/tickets/:id/reassign", func(c *gin.Context) {
		id, ok := idParam(c)
		if !ok {
			return
		}
		var req struct {
			Assignee string `json:"assignee"`
		}
		if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Assignee) == "" {
			respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", "assignee is required")
			return
		}
		t, err := h.deps.Tickets.Reassign(c.Request.Context(), id, req.Assignee, principalIdentity(c))
		if err != nil {
			respondRepoError(c, err, "ticket")
			return
		}
		h.audit(c, "reassign", "ticketdetails", strconv.FormatInt(id, 10), req.Assignee)
		c.JSON(http.StatusOK, t)
	})

	g.POST("/tickets/:id/close", func(c *gin.Context) {
		id, ok := idParam(c)
		if !ok {
			return
		}
		var req struct {
			Reason string `json:"reason"`
		}
		if c.Request.ContentLength != 0 {
			if err := c.ShouldBindJSON(&req); err != nil {
				respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", "invalid json")
				return
			}
		}
		t, err := h.deps.Tickets.Close(c.Request.Context(), id, req.Reason, principalIdentity(c))
		if err != nil {
			respondRepoError(c, err, "ticket")
			return
		}
		h.audit(c, "close", "ticketdetails", strconv.FormatInt(id, 10), req.Reason)
		c.JSON(http.StatusOK, t)
	})

	g.GET("/tickets/:id/notes", func(c *gin.Context) {
		id, ok := idParam(c)
		if !ok {
			return
		}
		notes, err := h.deps.Tickets.ListNotes(c.Request.Context(), id)
		if err != nil {
			respondRepoError(c, err, "ticket")
			return
		}
		c.JSON(http.StatusOK, gin.H{"items": notes})
	})

	g.POST("/tickets/:id/notes", h.addTicketNote)
}

func (h *routeHandlers) createTicket(c *gin.Context) {
	var req ticketRequest
	if err := c.ShouldBind(&req); err != nil {
		respondBindError(c, err)
		return
	}
	if msg := req.validate(); msg != "" {
		respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", msg)
		return
	}
	key, ok := h.saveUpload(c)
	if !ok {
		return
	}
	t, err := h.deps.Tickets.Create(c.Request.Context(), TicketInput{
		Subject:      req.Subject,
		Email:        req.Email,
		CategoryID:   req.CategoryID,
		PriorityID:   req.PriorityID,
		Descriptions: req.Descriptions,
		AttachFile:   key,
	}, principalIdentity(c))
	if err != nil {
		h.discardUpload(c, key)
		respondRepoError(c, err, "ticket")
		return
	}
	h.audit(c, "create", "ticketdetails", strconv.FormatInt(t.ID, 10), t.Code)
	c.JSON(http.StatusCreated, t)
}

func (h *routeHandlers) listTickets(c *gin.Context) {
	page, perPage, ok := pageBounds(c)
	if !ok {
		return
	}
	f := TicketFilter{Search: strings.TrimSpace(c.Query("searchtext"))}
	if s := strings.TrimSpace(c.Query("search_status")); s != "" {
		if !ticketStatuses[s] {
			respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", "search_status must be Open, Assigned or Closed")
			return
		}
		f.Status = s
	}
	if s := strings.TrimSpace(c.Query("search_category")); s != "" {
		id, err := strconv.ParseInt(s, 10, 64)
		if err != nil || id <= 0 {
			respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", "search_category must be a positive integer")
			return
		}
		f.CategoryID = id
	}
	dates, err := parseDateRange(c.Query("search_startdate"), c.Query("search_enddate"))
	if err != nil {
		respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
		return
	}
	f.Dates = dates

	items, total, err := h.deps.Tickets.List(c.Request.Context(), f, page, perPage)
	if err != nil {
		respondRepoError(c, err, "ticket")
		return
	}
	respondList(c, items, page, perPage, total)
}

func (h *routeHandlers) addTicketNote(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	var req struct {
		Note string `json:"note" form:"note"`
	}
	if err := c.ShouldBind(&req); err != nil {
		respondBindError(c, err)
		return
	}
	if strings.TrimSpace(req.Note) == "" {
		respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", "note is required")
		return
	}
	// checked before the upload is stored; AddNote checks again under lock
	t, err := h.deps.Tickets.Get(c.Request.Context(), id)
	if err != nil {
		respondRepoError(c, err, "ticket")
		return
	}
	if t.Status == TicketClosed {
		respondRepoError(c, ErrTicketClosed, "ticket")
		return
	}
	key, ok := h.saveUpload(c)
	if !ok {
		return
	}
	note, err := h.deps.Tickets.AddNote(c.Request.Context(), id, req.Note, key, principalIdentity(c))
	if err != nil {
		h.discardUpload(c, key)
		respondRepoError(c, err, "ticket")
		return
	}
	h.audit(c, "note", "ticketdetails", strconv.FormatInt(id, 10), "")
	c.JSON(http.StatusCreated, note)
}
