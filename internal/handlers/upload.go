package handlers

import (
	"net/http"

	"client-delivery-backend/internal/models"

	"github.com/gin-gonic/gin"
)

// UploadTarget godoc
// @Summary     Prepare a client upload
// @Description Creates the project's media folders on first use and returns the
// @Description folder the client uploads raw footage into.
// @Tags        files
// @Router      /api/v1/projects/{id}/upload-target [post]
func (h *ProjectsHandler) UploadTarget(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	folderID, err := h.projects.UploadTarget(c.Request.Context(), actor, id)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, models.UploadTargetResponse{ProjectID: id.String(), FolderID: folderID})
}

// RecordUpload godoc
// @Summary     Record a finished upload
// @Description The first upload of a draft moves it to awaiting_instructions.
// @Tags        files
// @Router      /api/v1/projects/{id}/files [post]
func (h *ProjectsHandler) RecordUpload(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	var req models.RecordUploadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	f, p, err := h.projects.RecordUpload(c.Request.Context(), actor, id, req)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"file":    fileResponse(f),
		"project": h.projectResponse(p, f.UploadedAt),
	})
}
