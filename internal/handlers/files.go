package handlers

import (
	"net/http"

	"client-delivery-backend/internal/models"

	"github.com/gin-gonic/gin"
)

func fileResponse(f *models.ProjectFile) models.FileResponse {
	return models.FileResponse{
		ID:         f.ID.String(),
		AssetID:    f.AssetID,
		Filename:   f.Filename,
		MediaType:  f.MediaType,
		Kind:       string(f.Kind),
		FileSize:   f.FileSize.Int64,
		ShareURL:   f.ShareURL.String,
		UploadedAt: f.UploadedAt,
	}
}

// ListFiles godoc
// @Summary     List project files
// @Description Returns client uploads and detected deliverables.
// @Tags        files
// @Router      /api/v1/projects/{id}/files [get]
func (h *ProjectsHandler) ListFiles(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	files, err := h.projects.Files(c.Request.Context(), actor, id)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	resp := models.FilesResponse{Files: make([]models.FileResponse, 0, len(files))}
	for i := range files {
		resp.Files = append(resp.Files, fileResponse(&files[i]))
	}
	c.JSON(http.StatusOK, resp)
}

func (h *ProjectsHandler) GetDownloadURL(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	fileID, ok := uuidParam(c, "file_id")
	if !ok {
		return
	}
	url, err := h.projects.DownloadURL(c.Request.Context(), actor, id, fileID)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, models.DownloadResponse{URL: url})
}

func (h *ProjectsHandler) GetThumbnail(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	fileID, ok := uuidParam(c, "file_id")
	if !ok {
		return
	}
	data, contentType, err := h.projects.Thumbnail(c.Request.Context(), actor, id, fileID)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.Header("Cache-Control", "private, max-age=3600")
	c.Data(http.StatusOK, contentType, data)
}
