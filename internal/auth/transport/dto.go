package transport

type MagicLinkRequest struct {
	Email string `json:"email" validate:"required,email,max=320"`
}

type VerifyMagicLinkRequest struct {
	Token string `json:"token" validate:"required,max=128"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required,max=128"`
}

type SignOutRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required,max=128"`
}

type SwitchOrganizationRequest struct {
	OrganizationID string `json:"organization_id" validate:"required,uuid"`
}

type MagicLinkResponse struct {
	Message          string `json:"message"`
	ExpiresInMinutes int    `json:"expires_in_minutes"`
}

type TokenPairResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
}

type UserResponse struct {
	ID          string `json:"id"`
	Email       string `json:"email"`
	DisplayName string `json:"display_name"`
}

type OrganizationResponse struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Slug string `json:"slug"`
	Role string `json:"role"`
}

// SessionResponse is returned when a sign-in or organization switch starts
// a new session.
type SessionResponse struct {
	TokenPairResponse
	User         UserResponse         `json:"user"`
	Organization OrganizationResponse `json:"organization"`
}
