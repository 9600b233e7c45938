package core

import (
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

const (
	defaultPerPage = 20
	maxPerPage     = 100
	dateLayout     = "2006-01-02"
)

// respondError sends unified error payload {"error": {"code", "message"}}.
func respondError(c *gin.Context, status int, code, message string) {
	c.JSON(status, gin.H{"error": gin.H{"code": code, "message": message}})
}

// respondList sends the paginated list envelope.
func respondList(c *gin.Context, items any, page, perPage, total int) {
	c.JSON(http.StatusOK, gin.H{
		"items":       items,
		"page":        page,
		"per_page":    perPage,
		"total_items": total,
		"total_pages": calcTotalPages(total, perPage),
	})
}

func parsePagination(pageStr, perPageStr string) (int, int, error) {
	page := 1
	perPage := defaultPerPage
	if strings.TrimSpace(pageStr) != "" {
		p, err := strconv.Atoi(pageStr)
		if err != nil || p <= 0 {
			return 0, 0, errors.New("page must be a positive integer")
		}
		page = p
	}
	if strings.TrimSpace(perPageStr) != "" {
		p, err := strconv.Atoi(perPageStr)
		if err != nil || p <= 0 {
			return 0, 0, errors.New("per_page must be a positive integer")
		}
		if p > maxPerPage {
			p = maxPerPage
		}
		perPage = p
	}
	return page, perPage, nil
}

func calcTotalPages(total, perPage int) int {
	if perPage <= 0 {
		return 0
	}
	return (total + perPage - 1) / perPage
}

// pageBounds binds pagination and writes the 400 itself; ok=false means the handler should return.
func pageBounds(c *gin.Context) (page, perPage int, ok bool) {
	page, perPage, err := parsePagination(c.Query("page"), c.Query("per_page"))
	if err != nil {
		respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
		return 0, 0, false
	}
	return page, perPage, true
}

// idParam parses the :id path parameter and writes the 400 itself.
func idParam(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", "invalid id")
		return 0, false
	}
	return id, true
}

// parseDate accepts YYYY-MM-DD; empty input returns nil.
func parseDate(s string) (*time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return nil, errors.New("dates must be formatted as YYYY-MM-DD")
	}
	return &t, nil
}

// parseDateRange parses an optional start/end pair; the end date is inclusive.
func parseDateRange(start, end string) (DateRange, error) {
	from, err := parseDate(start)
	if err != nil {
		return DateRange{}, err
	}
	to, err := parseDate(end)
	if err != nil {
		return DateRange{}, err
	}
	if from != nil && to != nil && to.Before(*from) {
		return DateRange{}, errors.New("end date is before start date")
	}
	if to != nil {
		next := to.AddDate(0, 0, 1)
		to = &next
	}
	return DateRange{From: from, Until: to}, nil
}

// DateRange is a half-open [From, Until) filter; nil bounds are open.
type DateRange struct {
	From  *time.Time
	Until *time.Time
}

// principalIdentity returns the authenticated identity for audit columns.
func principalIdentity(c *gin.Context) string {
	p, _ := principalFrom(c)
	return p.Identity
}

// respondRepoError maps repository errors to the error envelope; unexpected errors are logged and hidden.
func respondRepoError(c *gin.Context, err error, what string) {
	switch {
	case errors.Is(err, ErrNotFound):
		respondError(c, http.StatusNotFound, "NOT_FOUND", what+" not found")
	case errors.Is(err, ErrDuplicate):
		respondError(c, http.StatusConflict, "CONFLICT", what+" already exists")
	case errors.Is(err, ErrTicketClosed):
		respondError(c, http.StatusConflict, "CONFLICT", "ticket is closed")
	case errors.Is(err, ErrInvalidAssignee), errors.Is(err, ErrInvalidReference):
		respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
	default:
		log.Printf("%s %s: %s: %v", c.Request.Method, c.Request.URL.Path, what, err)
		respondError(c, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "failed to process "+what)
	}
}

// respondBindError answers a failed ShouldBind; bodies cut off by BodyLimitMiddleware get 413.
func respondBindError(c *gin.Context, err error) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		respondError(c, http.StatusRequestEntityTooLarge, "PAYLOAD_TOO_LARGE", "request body too large")
		return
	}
	respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", "invalid request body")
}
