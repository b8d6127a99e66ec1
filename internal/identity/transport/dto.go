package transport

import "time"

type UpdateMeRequest struct {
	DisplayName *string `json:"display_name" validate:"omitempty,max=200"`
	Phone       *string `json:"phone" validate:"omitempty,max=40"`
}

type AddMemberRequest struct {
	Email string `json:"email" validate:"required,email,max=320"`
	Role  string `json:"role" validate:"required,oneof=owner admin member"`
}

type MeResponse struct {
	ID                    string     `json:"id"`
	Email                 string     `json:"email"`
	DisplayName           string     `json:"display_name"`
	Phone                 string     `json:"phone,omitempty"`
	DefaultOrganizationID *string    `json:"default_organization_id,omitempty"`
	CreatedAt             time.Time  `json:"created_at"`
	UpdatedAt             time.Time  `json:"updated_at"`
	DeactivatedAt         *time.Time `json:"deactivated_at,omitempty"`
}

type OrganizationResponse struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Slug      string    `json:"slug"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

type MemberResponse struct {
	UserID      string    `json:"user_id"`
	Email       string    `json:"email"`
	DisplayName string    `json:"display_name"`
	Role        string    `json:"role"`
	JoinedAt    time.Time `json:"joined_at"`
}

type ListMembersResponse struct {
	Members []MemberResponse `json:"members"`
}
