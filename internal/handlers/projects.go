package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"client-delivery-backend/internal/models"
	"client-delivery-backend/internal/payments"
	"client-delivery-backend/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// ProjectService is the owner-facing surface the HTTP handlers call.
type ProjectService interface {
	Create(ctx context.Context, actor services.Actor, req models.CreateProjectRequest) (*models.Project, error)
	Get(ctx context.Context, actor services.Actor, id uuid.UUID) (*services.ProjectView, error)
	List(ctx context.Context, actor services.Actor) ([]services.ProjectView, error)
	Status(ctx context.Context, actor services.Actor, id uuid.UUID) (*services.ProjectView, bool, error)
	History(ctx context.Context, actor services.Actor, id uuid.UUID) ([]models.StatusTransition, error)
	Files(ctx context.Context, actor services.Actor, id uuid.UUID) ([]models.ProjectFile, error)
	UploadTarget(ctx context.Context, actor services.Actor, id uuid.UUID) (string, error)
	RecordUpload(ctx context.Context, actor services.Actor, id uuid.UUID, req models.RecordUploadRequest) (*models.ProjectFile, *models.Project, error)
	SubmitIntakeForm(ctx context.Context, actor services.Actor, id uuid.UUID, req models.IntakeFormRequest) (*models.Project, error)
	Accept(ctx context.Context, actor services.Actor, id uuid.UUID) (*models.Project, error)
	StartRevisionCheckout(ctx context.Context, actor services.Actor, id uuid.UUID) (*payments.Checkout, error)
	RevisionPaymentStatus(ctx context.Context, actor services.Actor, id uuid.UUID, sessionID string) (*models.RevisionPayment, error)
	GenerateReviewLink(ctx context.Context, actor services.Actor, id uuid.UUID) (*models.ReviewLink, error)
	SubmitRevisionInstructions(ctx context.Context, actor services.Actor, id uuid.UUID, instructions string) (*models.Project, error)
	DownloadURL(ctx context.Context, actor services.Actor, projectID, fileID uuid.UUID) (string, error)
	Thumbnail(ctx context.Context, actor services.Actor, projectID, fileID uuid.UUID) ([]byte, string, error)
	SubscriptionCheckout(ctx context.Context, actor services.Actor, tier models.Tier) (*payments.Checkout, error)
}

var _ ProjectService = (*services.ProjectService)(nil)

type ProjectsHandler struct {
	projects     ProjectService
	accessWindow time.Duration
	logger       *slog.Logger
}

func NewProjectsHandler(projects ProjectService, accessWindow time.Duration, logger *slog.Logger) *ProjectsHandler {
	return &ProjectsHandler{
		projects:     projects,
		accessWindow: accessWindow,
		logger:       logger.With("component", "http"),
	}
}

func (h *ProjectsHandler) projectResponse(p *models.Project, lastActivity time.Time) models.ProjectResponse {
	resp := models.ProjectResponse{
		ID:              p.ID.String(),
		Title:           p.Title,
		Status:          string(p.Status),
		StatusLabel:     p.Status.Label(),
		MediaFolderID:   p.MediaFolderID.String,
		LastActivityAt:  lastActivity,
		AccessExpiresAt: p.CreatedAt.Add(h.accessWindow),
		CreatedAt:       p.CreatedAt,
		UpdatedAt:       p.UpdatedAt,
	}
	if p.ReviewLink.URL.Valid {
		resp.ReviewLink = p.ReviewLink.URL.String
		if p.ReviewLink.ExpiresAt.Valid {
			exp := p.ReviewLink.ExpiresAt.Time
			resp.ReviewLinkExpiry = &exp
		}
	}
	return resp
}

func (h *ProjectsHandler) viewResponse(v *services.ProjectView) models.ProjectResponse {
	return h.projectResponse(&v.Project, v.LastActivity)
}

// CreateProject godoc
// @Summary     Create a project
// @Description Opens a draft project within the caller's subscription allowance.
// @Tags        projects
// @Router      /api/v1/projects [post]
func (h *ProjectsHandler) CreateProject(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	var req models.CreateProjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	p, err := h.projects.Create(c.Request.Context(), actor, req)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, h.projectResponse(p, p.CreatedAt))
}

func (h *ProjectsHandler) ListProjects(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	views, err := h.projects.List(c.Request.Context(), actor)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	resp := models.ProjectListResponse{Projects: make([]models.ProjectResponse, 0, len(views))}
	for i := range views {
		resp.Projects = append(resp.Projects, h.viewResponse(&views[i]))
	}
	c.JSON(http.StatusOK, resp)
}

func (h *ProjectsHandler) GetProject(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	v, err := h.projects.Get(c.Request.Context(), actor, id)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, h.viewResponse(v))
}

// GetStatus godoc
// @Summary     Poll project status
// @Description Reconciles with the media platform, then returns the stored status.
// @Description synced is false when the media platform could not be reached.
// @Tags        projects
// @Router      /api/v1/projects/{id}/status [get]
func (h *ProjectsHandler) GetStatus(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	v, synced, err := h.projects.Status(c.Request.Context(), actor, id)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, models.StatusResponse{
		ProjectID:      v.ID.String(),
		Status:         string(v.Status),
		StatusLabel:    v.Status.Label(),
		ReviewLink:     v.ReviewLink.URL.String,
		LastActivityAt: v.LastActivity,
		Synced:         synced,
	})
}

func (h *ProjectsHandler) GetHistory(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	ts, err := h.projects.History(c.Request.Context(), actor, id)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	resp := models.HistoryResponse{ProjectID: id.String(), Transitions: make([]models.TransitionResponse, 0, len(ts))}
	for _, t := range ts {
		resp.Transitions = append(resp.Transitions, models.TransitionResponse{
			From:      string(t.From),
			To:        string(t.To),
			Event:     string(t.Event),
			CreatedAt: t.CreatedAt,
		})
	}
	c.JSON(http.StatusOK, resp)
}

// SubmitIntake godoc
// @Summary     Record the intake form
// @Description Stores the embedded form's message, replacing an earlier one, and starts the edit.
// @Tags        projects
// @Router      /api/v1/projects/{id}/intake [post]
func (h *ProjectsHandler) SubmitIntake(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	var req models.IntakeFormRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	p, err := h.projects.SubmitIntakeForm(c.Request.Context(), actor, id, req)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, h.projectResponse(p, p.UpdatedAt))
}

func (h *ProjectsHandler) Accept(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	p, err := h.projects.Accept(c.Request.Context(), actor, id)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, h.projectResponse(p, p.UpdatedAt))
}
