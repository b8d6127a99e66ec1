package service

import (
	"context"
	"errors"
	"regexp"
	"strings"

	"github.com/google/uuid"

	"processhub_backend/internal/identity/repository"
	"processhub_backend/platform/apperr"
	"processhub_backend/platform/fieldcrypto"
	"processhub_backend/platform/logger"
	"processhub_backend/platform/phone"
)

const (
	userNotFound         = "user not found"
	organizationNotFound = "organization not found"
)

const (
	RoleOwner  = "owner"
	RoleAdmin  = "admin"
	RoleMember = "member"
)

var slugPattern = regexp.MustCompile(`^[a-z0-9]+(?:-[a-z0-9]+)*$`)

// Repository is the persistence surface the service depends on.
type Repository interface {
	FindUserByEmail(ctx context.Context, email string) (repository.User, error)
	GetUser(ctx context.Context, userID uuid.UUID) (repository.User, error)
	CreateUser(ctx context.Context, email, displayName string) (repository.User, error)
	UpdateProfile(ctx context.Context, userID uuid.UUID, update repository.ProfileUpdate) (repository.User, error)
	DeactivateUser(ctx context.Context, userID uuid.UUID) error
	GetCurrentOrganization(ctx context.Context) (repository.Organization, error)
	ListMembers(ctx context.Context) ([]repository.Member, error)
	CreateOrganization(ctx context.Context, name, slug string, ownerID uuid.UUID) (repository.Organization, error)
	AddMember(ctx context.Context, organizationID, userID uuid.UUID, role string, byOwner bool) error
}

var _ Repository = (*repository.Repository)(nil)

// Profile is a user with the phone number decrypted.
type Profile struct {
	User  repository.User
	Phone string
}

// UpdateProfileInput holds optional changes. A non-nil empty Phone clears it.
type UpdateProfileInput struct {
	DisplayName *string
	Phone       *string
}

type Service struct {
	repo   Repository
	crypto *fieldcrypto.Service
	log    *logger.Logger
}

func New(repo Repository, crypto *fieldcrypto.Service, log *logger.Logger) *Service {
	if log == nil {
		log = logger.Nop()
	}
	return &Service{repo: repo, crypto: crypto, log: log}
}

func (s *Service) GetMe(ctx context.Context, userID uuid.UUID) (Profile, error) {
	user, err := s.repo.GetUser(ctx, userID)
	if err != nil {
		return Profile{}, mapNotFound(err, userNotFound)
	}
	return s.toProfile(ctx, user)
}

func (s *Service) UpdateMe(ctx context.Context, userID uuid.UUID, input UpdateProfileInput) (Profile, error) {
	var update repository.ProfileUpdate

	if input.DisplayName != nil {
		name := strings.TrimSpace(*input.DisplayName)
		if name == "" {
			return Profile{}, apperr.Validation("display name cannot be empty")
		}
		update.DisplayName = &name
	}

	if input.Phone != nil {
		normalized, err := phone.Normalize(*input.Phone, phone.DefaultRegion)
		if err != nil {
			return Profile{}, apperr.Validation("invalid phone number")
		}
		if normalized == "" {
			update.ClearPhone = true
		} else {
			ciphertext, err := s.crypto.Encrypt(normalized)
			if err != nil {
				return Profile{}, apperr.Wrap(apperr.KindInternal, "failed to protect phone number", err)
			}
			update.PhoneCiphertext = &ciphertext
			s.log.WithContext(ctx).Info("phone number updated", "userId", userID.String(), "phone", phone.Mask(normalized))
		}
	}

	user, err := s.repo.UpdateProfile(ctx, userID, update)
	if err != nil {
		return Profile{}, mapNotFound(err, userNotFound)
	}
	return s.toProfile(ctx, user)
}

// toProfile decrypts the stored phone. A value that fails to decrypt is an
// integrity failure and is returned as an error, never as an empty phone.
func (s *Service) toProfile(ctx context.Context, user repository.User) (Profile, error) {
	plain, err := s.crypto.DecryptPtr(user.PhoneCiphertext)
	if err != nil {
		s.log.WithContext(ctx).Error("stored phone number failed to decrypt", "userId", user.ID.String(), "error", err)
		return Profile{}, apperr.Wrap(apperr.KindIntegrity, "stored phone number failed to decrypt", err)
	}

	profile := Profile{User: user}
	if plain != nil {
		profile.Phone = *plain
	}
	return profile, nil
}

// GetOrganization returns the organization bound to ctx.
func (s *Service) GetOrganization(ctx context.Context) (repository.Organization, error) {
	org, err := s.repo.GetCurrentOrganization(ctx)
	if err != nil {
		return repository.Organization{}, mapNotFound(err, organizationNotFound)
	}
	return org, nil
}

func (s *Service) ListMembers(ctx context.Context) ([]repository.Member, error) {
	return s.repo.ListMembers(ctx)
}

// Provisioning. These run from the operator CLI, outside any request.

func (s *Service) CreateUser(ctx context.Context, email, displayName string) (repository.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if !strings.Contains(email, "@") {
		return repository.User{}, apperr.Validation("a valid email is required")
	}

	user, err := s.repo.CreateUser(ctx, email, strings.TrimSpace(displayName))
	if errors.Is(err, repository.ErrDuplicate) {
		return repository.User{}, apperr.New(apperr.KindConflict, "a user with this email already exists")
	}
	return user, err
}

// CreateOrganization creates the organization with ownerEmail as its owner.
func (s *Service) CreateOrganization(ctx context.Context, name, slug, ownerEmail string) (repository.Organization, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return repository.Organization{}, apperr.Validation("organization name is required")
	}
	slug = strings.ToLower(strings.TrimSpace(slug))
	if !slugPattern.MatchString(slug) {
		return repository.Organization{}, apperr.Validation("slug must be lowercase letters, digits and dashes")
	}

	owner, err := s.repo.FindUserByEmail(ctx, ownerEmail)
	if err != nil {
		return repository.Organization{}, mapNotFound(err, userNotFound)
	}

	org, err := s.repo.CreateOrganization(ctx, name, slug, owner.ID)
	if errors.Is(err, repository.ErrDuplicate) {
		return repository.Organization{}, apperr.New(apperr.KindConflict, "an organization with this slug already exists")
	}
	return org, err
}

// AddMember adds the user behind email to the organization or changes their
// role. Only an owner may grant the owner role or change an owner's role.
func (s *Service) AddMember(ctx context.Context, organizationID uuid.UUID, email, role string, byOwner bool) error {
	switch role {
	case RoleOwner, RoleAdmin, RoleMember:
	default:
		return apperr.Validation("role must be owner, admin or member")
	}
	if role == RoleOwner && !byOwner {
		return apperr.Forbidden("only owners can add owners")
	}

	user, err := s.repo.FindUserByEmail(ctx, email)
	if err != nil {
		return mapNotFound(err, userNotFound)
	}
	err = s.repo.AddMember(ctx, organizationID, user.ID, role, byOwner)
	if errors.Is(err, repository.ErrOwnerProtected) {
		return apperr.Forbidden("only owners can change an owner's role")
	}
	return mapNotFound(err, organizationNotFound)
}

// DeactivateUser marks the user inactive and returns its id so callers can
// end its sessions.
func (s *Service) DeactivateUser(ctx context.Context, email string) (uuid.UUID, error) {
	user, err := s.repo.FindUserByEmail(ctx, email)
	if err != nil {
		return uuid.Nil, mapNotFound(err, userNotFound)
	}
	if err := s.repo.DeactivateUser(ctx, user.ID); err != nil {
		return uuid.Nil, mapNotFound(err, userNotFound)
	}
	return user.ID, nil
}

func mapNotFound(err error, message string) error {
	if errors.Is(err, repository.ErrNotFound) {
		return apperr.NotFound(message)
	}
	return err
}
