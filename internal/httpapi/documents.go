package httpapi

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"support-console/internal/audit"
	"support-console/internal/auth"
	"support-console/internal/documents"
	"support-console/internal/ingest"
	"support-console/pkg/logger"

	"github.com/gin-gonic/gin"
)

// maxUploadBytes bounds one document upload.
const maxUploadBytes = 20 << 20

// ListDocuments returns the knowledge base grouped by filename.
func (h Handlers) ListDocuments(c *gin.Context) {
	docs, err := h.Docs.List(c.Request.Context())
	if err != nil {
		logger.FromGin(c).Error("document list failed", "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "document list failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"documents": docs, "count": len(docs)})
}

type uploadRequest struct {
	Text     string `json:"text"`
	Filename string `json:"filename"`
	Language string `json:"language"`
}

// UploadDocument ingests one document. Accepts either a multipart "file"
// part (with optional "language" field) or a JSON body with raw text.
func (h Handlers) UploadDocument(c *gin.Context) {
	if h.Ingest == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "ingest not configured"})
		return
	}

	var req ingest.Request
	if strings.HasPrefix(c.ContentType(), "multipart/") {
		file, header, err := c.Request.FormFile("file")
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "file part required"})
			return
		}
		defer file.Close()
		data, err := io.ReadAll(io.LimitReader(file, maxUploadBytes+1))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "file read failed"})
			return
		}
		if len(data) > maxUploadBytes {
			c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, gin.H{"error": "file too large"})
			return
		}
		req = ingest.Request{
			Filename: header.Filename,
			Data:     data,
			Language: c.PostForm("language"),
		}
	} else {
		var body uploadRequest
		if err := c.ShouldBindJSON(&body); err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
			return
		}
		if strings.TrimSpace(body.Text) == "" || body.Filename == "" {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "text and filename required"})
			return
		}
		req = ingest.Request{Filename: body.Filename, Text: body.Text, Language: body.Language}
	}

	count, err := h.Ingest.Ingest(c.Request.Context(), req)
	if err != nil {
		logger.FromGin(c).Error("document ingest failed", "filename", req.Filename, "err", err)
		c.AbortWithStatusJSON(http.StatusBadGateway, gin.H{"error": "document ingest failed"})
		return
	}
	h.recordDocumentEvent(c, audit.EventTypeDocumentUpload, req.Filename)
	c.JSON(http.StatusCreated, gin.H{"filename": req.Filename, "chunks": count})
}

// DeleteDocument removes a single chunk by id.
func (h Handlers) DeleteDocument(c *gin.Context) {
	id := c.Param("id")
	if id == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "id required"})
		return
	}
	err := h.Docs.Delete(c.Request.Context(), id)
	switch {
	case errors.Is(err, documents.ErrNotFound):
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "document not found"})
	case err != nil:
		logger.FromGin(c).Error("document delete failed", "id", id, "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "document delete failed"})
	default:
		h.recordDocumentEvent(c, audit.EventTypeDocumentDelete, id)
		c.JSON(http.StatusOK, gin.H{"deleted": 1})
	}
}

// DeleteDocumentFile removes every chunk of one source file.
func (h Handlers) DeleteDocumentFile(c *gin.Context) {
	filename := c.Param("filename")
	if filename == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "filename required"})
		return
	}
	count, err := h.Docs.DeleteByFilename(c.Request.Context(), filename)
	switch {
	case errors.Is(err, documents.ErrNotFound):
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "document not found"})
	case err != nil:
		logger.FromGin(c).Error("document delete failed", "filename", filename, "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "document delete failed"})
	default:
		h.recordDocumentEvent(c, audit.EventTypeDocumentDelete, filename)
		c.JSON(http.StatusOK, gin.H{"deleted": count})
	}
}

func (h Handlers) recordDocumentEvent(c *gin.Context, typ audit.EventType, filename string) {
	uid, _ := auth.UserID(c.Request.Context())
	role, _ := auth.Role(c.Request.Context())
	h.Audit.Record(c.Request.Context(), audit.Event{
		Type:        typ,
		ActorUserID: uid,
		ActorRole:   role,
		IPAddress:   c.ClientIP(),
		Filename:    filename,
	})
}
