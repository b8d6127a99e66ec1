package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"processhub_backend/internal/auth/service"
	"processhub_backend/internal/auth/transport"
	"processhub_backend/platform/httpkit"
	"processhub_backend/platform/validator"
)

type Handler struct {
	svc *service.Service
	val *validator.Validator
}

const (
	msgInvalidRequest   = "invalid request"
	msgValidationFailed = "validation failed"
)

func New(svc *service.Service, val *validator.Validator) *Handler {
	return &Handler{svc: svc, val: val}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/magic-link", h.RequestMagicLink)
	rg.POST("/magic-link/verify", h.VerifyMagicLink)
	rg.POST("/refresh", h.Refresh)
	rg.POST("/sign-out", h.SignOut)
}

// bind decodes and validates the JSON body, writing the 400 itself.
func (h *Handler) bind(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return false
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, validator.Describe(err))
		return false
	}
	return true
}

// RequestMagicLink always answers 202 with the same body for well-formed
// input, whether or not the account exists.
func (h *Handler) RequestMagicLink(c *gin.Context) {
	var req transport.MagicLinkRequest
	if !h.bind(c, &req) {
		return
	}

	ack, err := h.svc.RequestMagicLink(c.Request.Context(), req.Email)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.JSON(c, http.StatusAccepted, transport.MagicLinkResponse{
		Message:          ack.Message,
		ExpiresInMinutes: ack.ExpiresInMinutes,
	})
}

func (h *Handler) VerifyMagicLink(c *gin.Context) {
	var req transport.VerifyMagicLinkRequest
	if !h.bind(c, &req) {
		return
	}

	session, err := h.svc.VerifyMagicLink(c.Request.Context(), req.Token)
	if err != nil {
		h.handleCredentialError(c, err)
		return
	}
	httpkit.OK(c, toSessionResponse(session))
}

func (h *Handler) Refresh(c *gin.Context) {
	var req transport.RefreshRequest
	if !h.bind(c, &req) {
		return
	}

	pair, err := h.svc.Refresh(c.Request.Context(), req.RefreshToken)
	if err != nil {
		h.handleCredentialError(c, err)
		return
	}
	httpkit.OK(c, toTokenPairResponse(pair))
}

func (h *Handler) SignOut(c *gin.Context) {
	var req transport.SignOutRequest
	if !h.bind(c, &req) {
		return
	}

	if httpkit.HandleError(c, h.svc.SignOut(c.Request.Context(), req.RefreshToken)) {
		return
	}
	httpkit.OK(c, gin.H{"message": "signed out"})
}

// SwitchOrganization requires an authenticated caller.
func (h *Handler) SwitchOrganization(c *gin.Context) {
	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}

	var req transport.SwitchOrganizationRequest
	if !h.bind(c, &req) {
		return
	}
	organizationID, err := uuid.Parse(req.OrganizationID)
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}

	session, err := h.svc.SwitchOrganization(c.Request.Context(), service.Identity{
		UserID:         identity.UserID(),
		OrganizationID: identity.OrganizationID(),
		Role:           identity.Role(),
	}, organizationID)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, toSessionResponse(session))
}

func (h *Handler) handleCredentialError(c *gin.Context, err error) {
	if errors.Is(err, service.ErrInvalidToken) {
		httpkit.Error(c, http.StatusUnauthorized, service.ErrInvalidToken.Error(), nil)
		return
	}
	httpkit.HandleError(c, err)
}

func toTokenPairResponse(pair service.TokenPair) transport.TokenPairResponse {
	return transport.TokenPairResponse{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		TokenType:    pair.TokenType,
		ExpiresIn:    pair.ExpiresIn,
	}
}

func toSessionResponse(session service.Session) transport.SessionResponse {
	return transport.SessionResponse{
		TokenPairResponse: toTokenPairResponse(session.TokenPair),
		User: transport.UserResponse{
			ID:          session.User.ID.String(),
			Email:       session.User.Email,
			DisplayName: session.User.DisplayName,
		},
		Organization: transport.OrganizationResponse{
			ID:   session.Organization.ID.String(),
			Name: session.Organization.Name,
			Slug: session.Organization.Slug,
			Role: session.Role,
		},
	}
}
