package tenantctl

import (
	"github.com/spf13/cobra"

	"processhub_backend/platform/fieldcrypto"
)

func newKeyCommand(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "key",
		Short: "Inspect the field encryption key",
	}

	var secret string
	derive := &cobra.Command{
		Use:   "derive",
		Short: "Print the fingerprint of the key derived from the configured secret",
		Long: `Print the fingerprint of the field encryption key.

Hosts that print the same fingerprint can decrypt each other's data. Pass
--secret to check a value without loading the rest of the configuration.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if secret == "" {
				cfg, err := e.config()
				if err != nil {
					return err
				}
				secret = cfg.FieldEncryptionSecret()
			}
			e.printf("%s\n", fieldcrypto.Fingerprint(secret))
			return nil
		},
	}
	derive.Flags().StringVar(&secret, "secret", "", "secret to derive from instead of FIELD_ENCRYPTION_KEY")

	cmd.AddCommand(derive)
	return cmd
}

func newCredentialsCommand(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "credentials",
		Short: "Maintain stored credentials",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "purge",
		Short: "Delete expired magic links and refresh tokens",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := e.auth(cmd.Context())
			if err != nil {
				return err
			}
			result, err := svc.PurgeExpired(cmd.Context())
			if err != nil {
				return err
			}
			e.printf("purged %d magic links and %d refresh tokens\n", result.MagicLinks, result.RefreshTokens)
			return nil
		},
	})
	return cmd
}
