package handler

import (
	"errors"
	"fmt"
	"mime"
	"net/http"
	"strconv"

	"backoffice/internal/apperr"
	"backoffice/internal/middleware"
	"backoffice/internal/rbac"
	"backoffice/internal/service"
	"backoffice/pkg/logger"
	"backoffice/pkg/pagination"
	"backoffice/pkg/response"

	"github.com/gin-gonic/gin"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// multipartOverhead leaves room for form boundaries and the company field
const multipartOverhead = 1 << 20

type DocumentHandler struct {
	documentService service.DocumentService
	revisionService service.RevisionService
	exportService   service.ExportService
	maxUploadBytes  int64
}

func NewDocumentHandler(documentService service.DocumentService, revisionService service.RevisionService, exportService service.ExportService, maxUploadBytes int64) *DocumentHandler {
	return &DocumentHandler{
		documentService: documentService,
		revisionService: revisionService,
		exportService:   exportService,
		maxUploadBytes:  maxUploadBytes,
	}
}

func (h *DocumentHandler) RegisterRoutes(router *gin.RouterGroup) {
	docs := router.Group("/api/processing-documents")
	{
		read := middleware.RequirePermission(rbac.ResourceDocuments, rbac.ActionRead)
		update := middleware.RequirePermission(rbac.ResourceDocuments, rbac.ActionUpdate)

		docs.GET("/export", middleware.RequirePermission(rbac.ResourceDocuments, rbac.ActionExport), h.Export)
		docs.GET("", read, h.ListDocuments)
		docs.POST("", middleware.RequirePermission(rbac.ResourceDocuments, rbac.ActionCreate), h.UploadDocument)
		docs.GET("/:id", read, h.GetDocument)
		docs.GET("/:id/file", read, h.DownloadFile)
		docs.DELETE("/:id", middleware.RequirePermission(rbac.ResourceDocuments, rbac.ActionDelete), h.DeleteDocument)
		docs.POST("/:id/extract", update, h.TriggerExtraction)
		docs.POST("/:id/split", update, h.SplitDocument)
		docs.POST("/:id/duplicate-decision", update, h.DecideDuplicate)
		docs.PUT("/:id/tags", update, h.ReplaceTags)
		docs.POST("/:id/tags/:tagId", update, h.AddTag)
		docs.DELETE("/:id/tags/:tagId", update, h.RemoveTag)

		docs.GET("/:id/revisions", read, h.ListRevisions)
		docs.POST("/:id/revisions", update, h.CreateRevision)
		docs.GET("/:id/revisions/:revisionId", read, h.GetRevision)
		docs.PUT("/:id/revisions/:revisionId", update, h.UpdateRevision)
		docs.POST("/:id/revisions/:revisionId/approve", middleware.RequirePermission(rbac.ResourceDocuments, rbac.ActionApprove), h.ApproveRevision)
		docs.DELETE("/:id/revisions/:revisionId", update, h.DiscardRevision)
	}
}

// ListDocuments returns a page of documents visible to the caller
// @Summary      List processing documents
// @Tags         documents
// @Security     CookieAuth
// @Produce      json
// @Param        page              query  int     false  "Page number (default: 1)"
// @Param        limit             query  int     false  "Items per page (default: 20)"
// @Param        company_id        query  string  false  "Company ID"
// @Param        pipeline_status   query  string  false  "Pipeline status"
// @Param        duplicate_status  query  string  false  "Duplicate status"
// @Param        tag_id            query  string  false  "Tag ID"
// @Param        parent_id         query  string  false  "Parent document ID (split children)"
// @Param        search            query  string  false  "File name, vendor or document number"
// @Success      200  {object}  response.Response
// @Router       /api/processing-documents [get]
func (h *DocumentHandler) ListDocuments(c *gin.Context) {
	p := pagination.Parse(c)
	docs, total, err := h.documentService.List(c.Request.Context(), service.DocumentListRequest{
		CompanyID:       c.Query("company_id"),
		PipelineStatus:  c.Query("pipeline_status"),
		DuplicateStatus: c.Query("duplicate_status"),
		TagID:           c.Query("tag_id"),
		ParentID:        c.Query("parent_id"),
		Search:          c.Query("search"),
		Page:            p.Page,
		Limit:           p.Limit,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Paginated(docs, total, p.Page, p.Limit))
}

// UploadDocument stores a new source file for a company
// @Summary      Upload document
// @Tags         documents
// @Security     CookieAuth
// @Accept       multipart/form-data
// @Produce      json
// @Param        file          formData  file    true   "PDF, PNG, JPEG, WebP or GIF"
// @Param        company_id    formData  string  true   "Company ID"
// @Param        auto_extract  formData  bool    false  "Queue extraction right away (default: true)"
// @Success      201  {object}  response.Response
// @Failure      400  {object}  response.Response
// @Router       /api/processing-documents [post]
func (h *DocumentHandler) UploadDocument(c *gin.Context) {
	if h.maxUploadBytes > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUploadBytes+multipartOverhead)
	}

	header, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondError(c, apperr.Validation("file exceeds the %d byte limit", h.maxUploadBytes))
			return
		}
		respondError(c, apperr.Validation("file is required"))
		return
	}

	companyID := c.PostForm("company_id")
	if companyID == "" {
		companyID = c.PostForm("companyId")
	}
	autoExtract := true
	if raw := c.PostForm("auto_extract"); raw != "" {
		if v, err := strconv.ParseBool(raw); err == nil {
			autoExtract = v
		}
	}

	file, err := header.Open()
	if err != nil {
		respondError(c, fmt.Errorf("failed to open upload: %w", err))
		return
	}
	defer file.Close()

	doc, err := h.documentService.Upload(c.Request.Context(), service.UploadDocumentInput{
		CompanyID:   companyID,
		FileName:    header.Filename,
		Content:     file,
		AutoExtract: autoExtract,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, response.Success(doc))
}

// GetDocument returns a document with its current revision and history
// @Summary      Get document detail
// @Tags         documents
// @Security     CookieAuth
// @Produce      json
// @Param        id  path  string  true  "Document ID"
// @Success      200  {object}  response.Response
// @Failure      404  {object}  response.Response
// @Router       /api/processing-documents/{id} [get]
func (h *DocumentHandler) GetDocument(c *gin.Context) {
	doc, err := h.documentService.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(doc))
}

// DownloadFile redirects to a presigned URL or streams the original file
// @Summary      Download original file
// @Tags         documents
// @Security     CookieAuth
// @Produce      octet-stream
// @Param        id  path  string  true  "Document ID"
// @Success      200
// @Success      302
// @Failure      404  {object}  response.Response
// @Router       /api/processing-documents/{id}/file [get]
func (h *DocumentHandler) DownloadFile(c *gin.Context) {
	file, err := h.documentService.OpenFile(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	if file.URL != "" {
		c.Redirect(http.StatusFound, file.URL)
		return
	}
	defer file.Content.Close()

	disposition := mime.FormatMediaType("inline", map[string]string{"filename": file.FileName})
	c.DataFromReader(http.StatusOK, file.Size, file.MimeType, file.Content, map[string]string{
		"Content-Disposition": disposition,
	})
}

// DeleteDocument soft deletes a document
// @Summary      Delete document
// @Tags         documents
// @Security     CookieAuth
// @Produce      json
// @Param        id            path   string  true  "Document ID"
// @Param        lock_version  query  int     true  "Expected lock version"
// @Success      200  {object}  response.Response
// @Failure      409  {object}  response.Response
// @Router       /api/processing-documents/{id} [delete]
func (h *DocumentHandler) DeleteDocument(c *gin.Context) {
	lockVersion, ok := lockVersionQuery(c)
	if !ok {
		return
	}
	if err := h.documentService.Delete(c.Request.Context(), c.Param("id"), lockVersion); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(gin.H{"message": "Document deleted"}))
}

// TriggerExtraction queues a document for extraction
// @Summary      Trigger extraction
// @Tags         documents
// @Security     CookieAuth
// @Accept       json
// @Produce      json
// @Param        id       path  string               true  "Document ID"
// @Param        payload  body  service.LockRequest  true  "Lock version"
// @Success      202  {object}  response.Response
// @Failure      409  {object}  response.Response
// @Router       /api/processing-documents/{id}/extract [post]
func (h *DocumentHandler) TriggerExtraction(c *gin.Context) {
	var req service.LockRequest
	if !bindJSON(c, &req) {
		return
	}
	doc, err := h.documentService.TriggerExtraction(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, response.Success(doc))
}

// SplitDocument creates child documents from page ranges
// @Summary      Split document
// @Tags         documents
// @Security     CookieAuth
// @Accept       json
// @Produce      json
// @Param        id       path  string                        true  "Document ID"
// @Param        payload  body  service.SplitDocumentRequest  true  "Page ranges"
// @Success      201  {object}  response.Response
// @Failure      400  {object}  response.Response
// @Failure      409  {object}  response.Response
// @Router       /api/processing-documents/{id}/split [post]
func (h *DocumentHandler) SplitDocument(c *gin.Context) {
	var req service.SplitDocumentRequest
	if !bindJSON(c, &req) {
		return
	}
	doc, err := h.documentService.Split(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, response.Success(doc))
}

// DecideDuplicate confirms or rejects a suspected duplicate
// @Summary      Decide duplicate
// @Tags         documents
// @Security     CookieAuth
// @Accept       json
// @Produce      json
// @Param        id       path  string                            true  "Document ID"
// @Param        payload  body  service.DuplicateDecisionRequest  true  "Decision"
// @Success      200  {object}  response.Response
// @Failure      409  {object}  response.Response
// @Router       /api/processing-documents/{id}/duplicate-decision [post]
func (h *DocumentHandler) DecideDuplicate(c *gin.Context) {
	var req service.DuplicateDecisionRequest
	if !bindJSON(c, &req) {
		return
	}
	doc, err := h.documentService.DecideDuplicate(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(doc))
}

// ReplaceTags sets the full tag list of a document
// @Summary      Replace document tags
// @Tags         documents
// @Security     CookieAuth
// @Accept       json
// @Produce      json
// @Param        id       path  string                      true  "Document ID"
// @Param        payload  body  service.ReplaceTagsRequest  true  "Tag IDs"
// @Success      200  {object}  response.Response
// @Router       /api/processing-documents/{id}/tags [put]
func (h *DocumentHandler) ReplaceTags(c *gin.Context) {
	var req service.ReplaceTagsRequest
	if !bindJSON(c, &req) {
		return
	}
	doc, err := h.documentService.ReplaceTags(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(doc))
}

// AddTag attaches one tag
// @Summary      Add document tag
// @Tags         documents
// @Security     CookieAuth
// @Accept       json
// @Produce      json
// @Param        id       path  string               true  "Document ID"
// @Param        tagId    path  string               true  "Tag ID"
// @Param        payload  body  service.LockRequest  true  "Lock version"
// @Success      200  {object}  response.Response
// @Router       /api/processing-documents/{id}/tags/{tagId} [post]
func (h *DocumentHandler) AddTag(c *gin.Context) {
	var req service.LockRequest
	if !bindJSON(c, &req) {
		return
	}
	doc, err := h.documentService.AddTag(c.Request.Context(), c.Param("id"), c.Param("tagId"), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(doc))
}

// RemoveTag detaches one tag
// @Summary      Remove document tag
// @Tags         documents
// @Security     CookieAuth
// @Produce      json
// @Param        id            path   string  true  "Document ID"
// @Param        tagId         path   string  true  "Tag ID"
// @Param        lock_version  query  int     true  "Expected lock version"
// @Success      200  {object}  response.Response
// @Router       /api/processing-documents/{id}/tags/{tagId} [delete]
func (h *DocumentHandler) RemoveTag(c *gin.Context) {
	lockVersion, ok := lockVersionQuery(c)
	if !ok {
		return
	}
	doc, err := h.documentService.RemoveTag(c.Request.Context(), c.Param("id"), c.Param("tagId"), lockVersion)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(doc))
}

// Export streams approved revisions as an XLSX workbook
// @Summary      Export approved documents
// @Tags         documents
// @Security     CookieAuth
// @Produce      application/vnd.openxmlformats-officedocument.spreadsheetml.sheet
// @Param        company_id  query  string  false  "Company ID"
// @Param        tag_id      query  string  false  "Tag ID"
// @Param        from        query  string  false  "Document date from (YYYY-MM-DD)"
// @Param        to          query  string  false  "Document date to (YYYY-MM-DD)"
// @Success      200
// @Failure      403  {object}  response.Response
// @Router       /api/processing-documents/export [get]
func (h *DocumentHandler) Export(c *gin.Context) {
	file, err := h.exportService.ExportApproved(c.Request.Context(), service.ExportRequest{
		CompanyID: c.Query("company_id"),
		TagID:     c.Query("tag_id"),
		From:      c.Query("from"),
		To:        c.Query("to"),
	})
	if err != nil {
		respondError(c, err)
		return
	}

	c.Header("Content-Type", xlsxContentType)
	c.Header("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": file.FileName}))
	c.Header("X-Export-Rows", strconv.Itoa(file.Rows))
	c.Status(http.StatusOK)
	if _, err := file.WriteTo(c.Writer); err != nil {
		logger.Error(c.Request.Context(), "export stream failed", "error", err)
	}
}

// ListRevisions returns the revision history, newest first
// @Summary      List revisions
// @Tags         revisions
// @Security     CookieAuth
// @Produce      json
// @Param        id  path  string  true  "Document ID"
// @Success      200  {object}  response.Response
// @Router       /api/processing-documents/{id}/revisions [get]
func (h *DocumentHandler) ListRevisions(c *gin.Context) {
	revs, err := h.revisionService.ListRevisions(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(revs))
}

// GetRevision returns one revision with line items and validation issues
// @Summary      Get revision
// @Tags         revisions
// @Security     CookieAuth
// @Produce      json
// @Param        id          path  string  true  "Document ID"
// @Param        revisionId  path  string  true  "Revision ID"
// @Success      200  {object}  response.Response
// @Failure      404  {object}  response.Response
// @Router       /api/processing-documents/{id}/revisions/{revisionId} [get]
func (h *DocumentHandler) GetRevision(c *gin.Context) {
	rev, err := h.revisionService.GetRevision(c.Request.Context(), c.Param("id"), c.Param("revisionId"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(rev))
}

// CreateRevision opens a DRAFT from the current revision plus the payload
// @Summary      Create draft revision
// @Tags         revisions
// @Security     CookieAuth
// @Accept       json
// @Produce      json
// @Param        id       path  string                         true  "Document ID"
// @Param        payload  body  service.CreateRevisionRequest  true  "Revision fields"
// @Success      201  {object}  response.Response
// @Failure      409  {object}  response.Response
// @Router       /api/processing-documents/{id}/revisions [post]
func (h *DocumentHandler) CreateRevision(c *gin.Context) {
	var req service.CreateRevisionRequest
	if !bindJSON(c, &req) {
		return
	}
	res, err := h.revisionService.CreateRevision(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, response.Success(res))
}

// UpdateRevision rewrites a DRAFT and reruns reconciliation
// @Summary      Update draft revision
// @Tags         revisions
// @Security     CookieAuth
// @Accept       json
// @Produce      json
// @Param        id          path  string                         true  "Document ID"
// @Param        revisionId  path  string                         true  "Revision ID"
// @Param        payload     body  service.UpdateRevisionRequest  true  "Revision fields"
// @Success      200  {object}  response.Response
// @Failure      409  {object}  response.Response
// @Router       /api/processing-documents/{id}/revisions/{revisionId} [put]
func (h *DocumentHandler) UpdateRevision(c *gin.Context) {
	var req service.UpdateRevisionRequest
	if !bindJSON(c, &req) {
		return
	}
	res, err := h.revisionService.UpdateRevision(c.Request.Context(), c.Param("id"), c.Param("revisionId"), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(res))
}

// ApproveRevision approves a DRAFT without ERROR issues
// @Summary      Approve revision
// @Tags         revisions
// @Security     CookieAuth
// @Accept       json
// @Produce      json
// @Param        id          path  string               true  "Document ID"
// @Param        revisionId  path  string               true  "Revision ID"
// @Param        payload     body  service.LockRequest  true  "Lock version"
// @Success      200  {object}  response.Response
// @Failure      400  {object}  response.Response
// @Failure      409  {object}  response.Response
// @Router       /api/processing-documents/{id}/revisions/{revisionId}/approve [post]
func (h *DocumentHandler) ApproveRevision(c *gin.Context) {
	var req service.LockRequest
	if !bindJSON(c, &req) {
		return
	}
	res, err := h.revisionService.ApproveRevision(c.Request.Context(), c.Param("id"), c.Param("revisionId"), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(res))
}

// DiscardRevision deletes a DRAFT
// @Summary      Discard draft revision
// @Tags         revisions
// @Security     CookieAuth
// @Produce      json
// @Param        id            path   string  true  "Document ID"
// @Param        revisionId    path   string  true  "Revision ID"
// @Param        lock_version  query  int     true  "Expected lock version"
// @Success      200  {object}  response.Response
// @Failure      409  {object}  response.Response
// @Router       /api/processing-documents/{id}/revisions/{revisionId} [delete]
func (h *DocumentHandler) DiscardRevision(c *gin.Context) {
	lockVersion, ok := lockVersionQuery(c)
	if !ok {
		return
	}
	res, err := h.revisionService.DiscardRevision(c.Request.Context(), c.Param("id"), c.Param("revisionId"), lockVersion)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(res))
}
