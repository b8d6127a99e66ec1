package tenantctl

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	identityservice "processhub_backend/internal/identity/service"
)

func newOrgCommand(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "org",
		Short: "Manage organizations",
	}

	var name, slug, owner string
	create := &cobra.Command{
		Use:   "create",
		Short: "Create an organization owned by an existing user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := e.identity(cmd.Context())
			if err != nil {
				return err
			}
			org, err := svc.CreateOrganization(cmd.Context(), name, slug, owner)
			if err != nil {
				return err
			}
			e.printf("created organization %s (%s)\n", org.Slug, org.ID)
			return nil
		},
	}
	create.Flags().StringVar(&name, "name", "", "display name")
	create.Flags().StringVar(&slug, "slug", "", "unique lowercase slug")
	create.Flags().StringVar(&owner, "owner", "", "email of the owning user")
	markRequired(create, "name", "slug", "owner")

	cmd.AddCommand(create)
	return cmd
}

func newUserCommand(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage users",
	}

	var email, displayName string
	add := &cobra.Command{
		Use:   "add",
		Short: "Pre-provision a user so they can sign in",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := e.identity(cmd.Context())
			if err != nil {
				return err
			}
			user, err := svc.CreateUser(cmd.Context(), email, displayName)
			if err != nil {
				return err
			}
			e.printf("created user %s (%s)\n", user.Email, user.ID)
			return nil
		},
	}
	add.Flags().StringVar(&email, "email", "", "email address")
	add.Flags().StringVar(&displayName, "name", "", "display name")
	markRequired(add, "email")

	var deactivateEmail string
	deactivate := &cobra.Command{
		Use:   "deactivate",
		Short: "Block sign-in for a user and end all of their sessions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			identity, err := e.identity(cmd.Context())
			if err != nil {
				return err
			}
			sessions, err := e.auth(cmd.Context())
			if err != nil {
				return err
			}
			userID, err := identity.DeactivateUser(cmd.Context(), deactivateEmail)
			if err != nil {
				return err
			}
			if err := sessions.RevokeAllSessions(cmd.Context(), userID); err != nil {
				return fmt.Errorf("user deactivated but sessions not revoked: %w", err)
			}
			e.printf("deactivated user %s\n", userID)
			return nil
		},
	}
	deactivate.Flags().StringVar(&deactivateEmail, "email", "", "email address")
	markRequired(deactivate, "email")

	cmd.AddCommand(add, deactivate)
	return cmd
}

func newMemberCommand(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "member",
		Short: "Manage organization memberships",
	}

	var orgID, email, role string
	add := &cobra.Command{
		Use:   "add",
		Short: "Add a user to an organization or change their role",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(orgID)
			if err != nil {
				return fmt.Errorf("invalid --org: %w", err)
			}
			svc, err := e.identity(cmd.Context())
			if err != nil {
				return err
			}
			// The operator acts with owner authority.
			if err := svc.AddMember(cmd.Context(), id, email, role, true); err != nil {
				return err
			}
			e.printf("%s is now %s of %s\n", email, role, id)
			return nil
		},
	}
	add.Flags().StringVar(&orgID, "org", "", "organization id")
	add.Flags().StringVar(&email, "email", "", "email of an existing user")
	add.Flags().StringVar(&role, "role", identityservice.RoleMember, "owner, admin or member")
	markRequired(add, "org", "email")

	cmd.AddCommand(add)
	return cmd
}

func markRequired(cmd *cobra.Command, names ...string) {
	for _, name := range names {
		_ = cmd.MarkFlagRequired(name)
	}
}
