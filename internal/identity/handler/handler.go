package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"processhub_backend/internal/identity/repository"
	"processhub_backend/internal/identity/service"
	"processhub_backend/internal/identity/transport"
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

// RegisterRoutes mounts the identity routes on an authenticated group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/users/me", h.GetMe)
	rg.PATCH("/users/me", h.UpdateMe)
	rg.GET("/organization", h.GetOrganization)
	rg.GET("/organization/members", h.ListMembers)
}

// RegisterAdminRoutes mounts membership management on a group restricted to
// admins of the current organization.
func (h *Handler) RegisterAdminRoutes(rg *gin.RouterGroup) {
	rg.POST("/organization/members", h.AddMember)
}

func (h *Handler) GetMe(c *gin.Context) {
	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}

	profile, err := h.svc.GetMe(c.Request.Context(), identity.UserID())
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, toMeResponse(profile))
}

func (h *Handler) UpdateMe(c *gin.Context) {
	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}

	var req transport.UpdateMeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, validator.Describe(err))
		return
	}

	profile, err := h.svc.UpdateMe(c.Request.Context(), identity.UserID(), service.UpdateProfileInput{
		DisplayName: req.DisplayName,
		Phone:       req.Phone,
	})
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, toMeResponse(profile))
}

// GetOrganization returns the organization the access token is scoped to.
func (h *Handler) GetOrganization(c *gin.Context) {
	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}

	org, err := h.svc.GetOrganization(c.Request.Context())
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.OrganizationResponse{
		ID:        org.ID.String(),
		Name:      org.Name,
		Slug:      org.Slug,
		Role:      identity.Role(),
		CreatedAt: org.CreatedAt,
	})
}

func (h *Handler) ListMembers(c *gin.Context) {
	members, err := h.svc.ListMembers(c.Request.Context())
	if httpkit.HandleError(c, err) {
		return
	}

	resp := transport.ListMembersResponse{Members: make([]transport.MemberResponse, 0, len(members))}
	for _, m := range members {
		resp.Members = append(resp.Members, toMemberResponse(m))
	}
	httpkit.OK(c, resp)
}

// AddMember adds an existing user to the current organization or changes
// their role. Only owners may grant the owner role or re-role an owner.
func (h *Handler) AddMember(c *gin.Context) {
	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}

	var req transport.AddMemberRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, validator.Describe(err))
		return
	}

	byOwner := identity.HasRole(service.RoleOwner)
	if httpkit.HandleError(c, h.svc.AddMember(c.Request.Context(), identity.OrganizationID(), req.Email, req.Role, byOwner)) {
		return
	}
	httpkit.JSON(c, http.StatusCreated, gin.H{"status": "added"})
}

func toMeResponse(profile service.Profile) transport.MeResponse {
	u := profile.User
	resp := transport.MeResponse{
		ID:            u.ID.String(),
		Email:         u.Email,
		DisplayName:   u.DisplayName,
		Phone:         profile.Phone,
		CreatedAt:     u.CreatedAt,
		UpdatedAt:     u.UpdatedAt,
		DeactivatedAt: u.DeactivatedAt,
	}
	if u.DefaultOrganizationID != nil {
		id := u.DefaultOrganizationID.String()
		resp.DefaultOrganizationID = &id
	}
	return resp
}

func toMemberResponse(m repository.Member) transport.MemberResponse {
	return transport.MemberResponse{
		UserID:      m.UserID.String(),
		Email:       m.Email,
		DisplayName: m.DisplayName,
		Role:        m.Role,
		JoinedAt:    m.CreatedAt,
	}
}
