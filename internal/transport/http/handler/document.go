package handler

import (
	"errors"
	"io"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"pdfchat/internal/app"
	"pdfchat/internal/pkg/pdfextract"
	"pdfchat/internal/transport/http/response"
)

type DocumentHandler struct {
	documentService *app.DocumentService
	sessionService  *app.SessionService
}

func NewDocumentHandler(documentService *app.DocumentService, sessionService *app.SessionService) *DocumentHandler {
	return &DocumentHandler{documentService: documentService, sessionService: sessionService}
}

// Upload ingests a file into the session's vector collection and
// records its metadata.
func (h *DocumentHandler) Upload(c *gin.Context) {
	userID, sessionID, ok := h.resolve(c)
	if !ok {
		return
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "missing file")
		return
	}
	if !app.AllowedExtension(fileHeader.Filename) {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "file type not allowed")
		return
	}
	if fileHeader.Size > app.MaxUploadBytes() {
		response.Error(c, http.StatusRequestEntityTooLarge, response.CodeBadRequest, "file too large")
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "read upload failed")
		return
	}
	defer file.Close()

	text, err := extractText(fileHeader.Filename, file)
	if err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "extract text failed")
		return
	}

	result, err := h.documentService.Ingest(c.Request.Context(), app.IngestInput{
		UserID:    userID,
		SessionID: sessionID,
		FileName:  fileHeader.Filename,
		FileSize:  fileHeader.Size,
		Text:      text,
	})
	if err != nil {
		switch {
		case errors.Is(err, app.ErrInvalidInput),
			errors.Is(err, app.ErrFileTypeNotAllowed),
			errors.Is(err, app.ErrNoExtractableText),
			errors.Is(err, app.ErrSessionNotActive):
			response.Error(c, http.StatusBadRequest, response.CodeBadRequest, err.Error())
		case errors.Is(err, app.ErrFileTooLarge):
			response.Error(c, http.StatusRequestEntityTooLarge, response.CodeBadRequest, err.Error())
		case errors.Is(err, app.ErrSessionNotFound):
			response.Error(c, http.StatusNotFound, response.CodeSessionNotFound, err.Error())
		default:
			response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "ingest failed")
		}
		return
	}

	response.OK(c, result)
}

func (h *DocumentHandler) List(c *gin.Context) {
	userID, sessionID, ok := h.resolve(c)
	if !ok {
		return
	}

	docs, err := h.sessionService.ListDocuments(sessionID, userID)
	if err != nil {
		switch {
		case errors.Is(err, app.ErrSessionNotFound):
			response.Error(c, http.StatusNotFound, response.CodeSessionNotFound, err.Error())
		default:
			response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "list documents failed")
		}
		return
	}
	response.OK(c, docs)
}

func (h *DocumentHandler) Delete(c *gin.Context) {
	userID, sessionID, ok := h.resolve(c)
	if !ok {
		return
	}

	documentID64, err := strconv.ParseUint(c.Param("docID"), 10, 64)
	if err != nil || documentID64 == 0 {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid document id")
		return
	}

	if err := h.documentService.DeleteDocument(userID, sessionID, uint(documentID64)); err != nil {
		switch {
		case errors.Is(err, app.ErrInvalidInput):
			response.Error(c, http.StatusBadRequest, response.CodeBadRequest, err.Error())
		case errors.Is(err, app.ErrSessionNotFound):
			response.Error(c, http.StatusNotFound, response.CodeSessionNotFound, err.Error())
		default:
			response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "delete document failed")
		}
		return
	}
	response.OK(c, gin.H{"deleted_document_id": uint(documentID64)})
}

func (h *DocumentHandler) resolve(c *gin.Context) (userID, sessionID uint, ok bool) {
	userID, ok = getUserIDFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return 0, 0, false
	}

	sessionID64, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || sessionID64 == 0 {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid session id")
		return 0, 0, false
	}
	return userID, uint(sessionID64), true
}

func extractText(fileName string, r io.Reader) (string, error) {
	if strings.ToLower(filepath.Ext(fileName)) == ".pdf" {
		return pdfextract.ExtractText(r)
	}
	b, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
