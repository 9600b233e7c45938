package core

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
)

type lookupRequest struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

func (r lookupRequest) validate() (code, name string, ok bool) {
	code = strings.TrimSpace(r.Code)
	name = strings.TrimSpace(r.Name)
	return code, name, code != "" && name != ""
}

func (h *routeHandlers) registerLookupRoutes(g *gin.RouterGroup) {
	for _, t := range LookupTables {
		g.GET("/"+t.Kind, h.listLookup(t))
		g.GET("/"+t.Kind+"/:id", h.getLookup(t))
		g.POST("/"+t.Kind, h.createLookup(t))
		g.PUT("/"+t.Kind+"/:id", h.updateLookup(t))
		g.DELETE("/"+t.Kind+"/:id", h.deleteLookup(t))
	}
}

func (h *routeHandlers) listLookup(t LookupTable) gin.HandlerFunc {
	return func(c *gin.Context) {
		page, perPage, ok := pageBounds(c)
		if !ok {
			return
		}
		items, total, err := h.deps.Lookups.List(c.Request.Context(), t, strings.TrimSpace(c.Query("searchtext")), page, perPage)
		if err != nil {
			respondRepoError(c, err, t.Label)
			return
		}
		respondList(c, items, page, perPage, total)
	}
}

func (h *routeHandlers) getLookup(t LookupTable) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := idParam(c)
		if !ok {
			return
		}
		item, err := h.deps.Lookups.Get(c.Request.Context(), t, id)
		if err != nil {
			respondRepoError(c, err, t.Label)
			return
		}
		c.JSON(http.StatusOK, item)
	}
}

func (h *routeHandlers) createLookup(t LookupTable) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req lookupRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", "invalid json")
			return
		}
		code, name, ok := req.validate()
		if !ok {
			respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", "code and name are required")
			return
		}
		item, err := h.deps.Lookups.Create(c.Request.Context(), t, code, name, principalIdentity(c))
		if err != nil {
			respondRepoError(c, err, t.Label)
			return
		}
		h.audit(c, "create", t.Table, strconv.FormatInt(item.ID, 10), code)
		c.JSON(http.StatusCreated, item)
	}
}

func (h *routeHandlers) updateLookup(t LookupTable) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := idParam(c)
		if !ok {
			return
		}
		var req lookupRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", "invalid json")
			return
		}
		code, name, ok := req.validate()
		if !ok {
			respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", "code and name are required")
			return
		}
		item, err := h.deps.Lookups.Update(c.Request.Context(), t, id, code, name, principalIdentity(c))
		if err != nil {
			respondRepoError(c, err, t.Label)
			return
		}
		h.audit(c, "update", t.Table, strconv.FormatInt(id, 10), code)
		c.JSON(http.StatusOK, item)
	}
}

func (h *routeHandlers) deleteLookup(t LookupTable) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := idParam(c)
		if !ok {
			return
		}
		if err := h.deps.Lookups.Deactivate(c.Request.Context(), t, id, principalIdentity(c)); err != nil {
			respondRepoError(c, err, t.Label)
			return
		}
		h.audit(c, "delete", t.Table, strconv.FormatInt(id, 10), "")
		c.Status(http.StatusNoContent)
	}
}

type airlineDetailRequest struct {
	GroupID int64  `json:"galid"`
	CusID   string `json:"cusid"`
}

func (h *routeHandlers) registerAirlineDetailRoutes(g *gin.RouterGroup) {
	g.GET("/airline-details", func(c *gin.Context) {
		page, perPage, ok := pageBounds(c)
		if !ok {
			return
		}
		dates, err := parseDateRange(c.Query("search_startdate"), c.Query("search_enddate"))
		if err != nil {
			respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
			return
		}
		f := AirlineDetailFilter{Search: strings.TrimSpace(c.Query("searchtext")), Dates: dates}
		items, total, err := h.deps.AirlineDetails.List(c.Request.Context(), f, page, perPage)
		if err != nil {
			respondRepoError(c, err, "airline detail")
			return
		}
		respondList(c, items, page, perPage, total)
	})

	g.GET("/airline-details/:id", func(c *gin.Context) {
		id, ok := idParam(c)
		if !ok {
			return
		}
		d, err := h.deps.AirlineDetails.Get(c.Request.Context(), id)
		if err != nil {
			respondRepoError(c, err, "airline detail")
			return
		}
		c.JSON(http.StatusOK, d)
	})

	g.POST("/airline-details", func(c *gin.Context) {
		req, ok := bindAirlineDetail(c)
		if !ok {
			return
		}
		d, err := h.deps.AirlineDetails.Create(c.Request.Context(), req.GroupID, req.CusID, principalIdentity(c))
		if err != nil {
			respondRepoError(c, err, "airline detail")
			return
		}
		h.audit(c, "create", "airlinedetails", strconv.FormatInt(d.ID, 10), req.CusID)
		c.JSON(http.StatusCreated, d)
	})

	g.PUT("/airline-details/:id", func(c *gin.Context) {
		id, ok := idParam(c)
		if !ok {
			return
		}
		req, ok := bindAirlineDetail(c)
		if !ok {
			return
		}
		d, err := h.deps.AirlineDetails.Update(c.Request.Context(), id, req.GroupID, req.CusID, principalIdentity(c))
		if err != nil {
			respondRepoError(c, err, "airline detail")
			return
		}
		h.audit(c, "update", "airlinedetails", strconv.FormatInt(id, 10), req.CusID)
		c.JSON(http.StatusOK, d)
	})

	g.DELETE("/airline-details/:id", func(c *gin.Context) {
		id, ok := idParam(c)
		if !ok {
			return
		}
		if err := h.deps.AirlineDetails.Deactivate(c.Request.Context(), id, principalIdentity(c)); err != nil {
			respondRepoError(c, err, "airline detail")
			return
		}
		h.audit(c, "delete", "airlinedetails", strconv.FormatInt(id, 10), "")
		c.Status(http.StatusNoContent)
	})
}

func bindAirlineDetail(c *gin.Context) (airlineDetailRequest, bool) {
	var req airlineDetailRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", "invalid json")
		return req, false
	}
	req.CusID = strings.TrimSpace(req.CusID)
	if req.GroupID <= 0 || req.CusID == "" {
		respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", "galid and cusid are required")
		return req, false
	}
	return req, true
}
