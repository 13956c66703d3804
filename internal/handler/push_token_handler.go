package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/citizen-safety-api/internal/dto"
	"github.com/noah-isme/citizen-safety-api/internal/models"
	appErrors "github.com/noah-isme/citizen-safety-api/pkg/errors"
	"github.com/noah-isme/citizen-safety-api/pkg/response"
)

type pushTokenService interface {
	Register(ctx context.Context, userID int64, req dto.RegisterPushTokenRequest) (*models.PushToken, error)
	Remove(ctx context.Context, userID int64, req dto.RemovePushTokenRequest) error
}

// PushTokenHandler manages device registrations.
type PushTokenHandler struct {
	service pushTokenService
}

// NewPushTokenHandler constructs the handler.
func NewPushTokenHandler(svc pushTokenService) *PushTokenHandler {
	return &PushTokenHandler{service: svc}
}

// Register godoc
// @Summary Register push token
// @Tags Notifications
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body dto.RegisterPushTokenRequest true "Device token"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /push-tokens [post]
func (h *PushTokenHandler) Register(c *gin.Context) {
	userID, err := userIDFromContext(c)
	if err != nil {
		response.Error(c, err)
		return
	}

	var req dto.RegisterPushTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid push token payload"))
		return
	}

	token, err := h.service.Register(c.Request.Context(), userID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, token)
}

// Remove godoc
// @Summary Remove push token
// @Tags Notifications
// @Accept json
// @Security BearerAuth
// @Param payload body dto.RemovePushTokenRequest true "Device token"
// @Success 204
// @Failure 400 {object} response.Envelope
// @Router /push-tokens [delete]
func (h *PushTokenHandler) Remove(c *gin.Context) {
	userID, err := userIDFromContext(c)
	if err != nil {
		response.Error(c, err)
		return
	}

	var req dto.RemovePushTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid push token payload"))
		return
	}

	if err := h.service.Remove(c.Request.Context(), userID, req); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
