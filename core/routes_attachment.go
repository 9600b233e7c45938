package core

import (
	"errors"
	"fmt"
	"log"
	"mime"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
)

const attachmentField = "fileattach"

// saveUpload stores the optional multipart attachment and returns its key ("" when none was sent).
// ok=false means the response has already been written.
func (h *routeHandlers) saveUpload(c *gin.Context) (key string, ok bool) {
	if !strings.HasPrefix(c.ContentType(), "multipart/form-data") {
		return "", true
	}
	fh, err := c.FormFile(attachmentField)
	if errors.Is(err, http.ErrMissingFile) {
		return "", true
	}
	if err != nil {
		respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", "invalid multipart body")
		return "", false
	}
	if h.cfg.MaxAttachmentSize > 0 && fh.Size > h.cfg.MaxAttachmentSize {
		respondError(c, http.StatusRequestEntityTooLarge, "PAYLOAD_TOO_LARGE",
			fmt.Sprintf("attachment exceeds %d bytes", h.cfg.MaxAttachmentSize))
		return "", false
	}
	if h.deps.Attachments == nil {
		respondError(c, http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", "attachment storage is not configured")
		return "", false
	}
	f, err := fh.Open()
	if err != nil {
		respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", "cannot read attachment")
		return "", false
	}
	defer f.Close()

	key, err = h.deps.Attachments.Save(c.Request.Context(), fh.Filename, fh.Header.Get("Content-Type"), f)
	if err != nil {
		log.Printf("attachment save %q: %v", fh.Filename, err)
		respondError(c, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "failed to store attachment")
		return "", false
	}
	return key, true
}

// discardUpload removes an attachment stored for a request whose insert then failed.
func (h *routeHandlers) discardUpload(c *gin.Context, key string) {
	if key == "" || h.deps.Attachments == nil {
		return
	}
	if err := h.deps.Attachments.Delete(c.Request.Context(), key); err != nil {
		log.Printf("attachment cleanup %s: %v", key, err)
	}
}

func (h *routeHandlers) downloadAttachment(c *gin.Context) {
	h.streamAttachment(c, c.Param("key"))
}

// downloadAirlineAttachment only serves files attached to announcements the caller received.
func (h *routeHandlers) downloadAirlineAttachment(c *gin.Context) {
	key := c.Param("key")
	if !ValidAttachmentKey(key) {
		respondError(c, http.StatusNotFound, "NOT_FOUND", "attachment not found")
		return
	}
	visible, err := h.deps.Announcements.AttachmentVisibleTo(c.Request.Context(), key, principalIdentity(c))
	if err != nil {
		respondRepoError(c, err, "attachment")
		return
	}
	if !visible {
		respondError(c, http.StatusNotFound, "NOT_FOUND", "attachment not found")
		return
	}
	h.streamAttachment(c, key)
}

func (h *routeHandlers) streamAttachment(c *gin.Context, key string) {
	if h.deps.Attachments == nil || !ValidAttachmentKey(key) {
		respondError(c, http.StatusNotFound, "NOT_FOUND", "attachment not found")
		return
	}
	rc, err := h.deps.Attachments.Open(c.Request.Context(), key)
	if err != nil {
		respondRepoError(c, err, "attachment")
		return
	}
	defer rc.Close()

	contentType := mime.TypeByExtension(filepath.Ext(key))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	c.DataFromReader(http.StatusOK, -1, contentType, rc, map[string]string{
		"Content-Disposition": fmt.Sprintf(`attachment; filename="%s"`, key),
	})
}
